package broadcast

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/sirupsen/logrus"
)

// ConnMetrics receives NATS connection state changes.
type ConnMetrics interface {
	SetConnected(connected bool)
}

// Connect dials NATS and reports connection state to m (may be nil).
func Connect(url, name string, m ConnMetrics, log logrus.FieldLogger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.SetConnected(false)
			}
			log.WithError(err).Warn("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.SetConnected(true)
			}
			log.Info("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.SetConnected(false)
			}
			log.Info("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.SetConnected(true)
	}
	return nc, nil
}

// NATSStore keeps each keyspace in its own JetStream key-value bucket named
// <prefix>_<keyspace>.
type NATSStore struct {
	js     jetstream.JetStream
	prefix string
	log    logrus.FieldLogger

	mu      sync.Mutex
	buckets map[string]jetstream.KeyValue
}

func NewNATSStore(nc *nats.Conn, prefix string, log logrus.FieldLogger) (*NATSStore, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &NATSStore{
		js:      js,
		prefix:  prefix,
		log:     log,
		buckets: make(map[string]jetstream.KeyValue),
	}, nil
}

// Ensure creates (or updates) the buckets for the given keyspaces.
func (s *NATSStore) Ensure(ctx context.Context, keyspaces ...string) error {
	for _, ks := range keyspaces {
		if _, err := s.bucket(ctx, ks); err != nil {
			return err
		}
	}
	return nil
}

func (s *NATSStore) bucket(ctx context.Context, keyspace string) (jetstream.KeyValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if kv, ok := s.buckets[keyspace]; ok {
		return kv, nil
	}
	name := bucketToken(s.prefix + "_" + keyspace)
	kv, err := s.js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: "fleet " + keyspace,
		History:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("kv bucket %s: %w", name, err)
	}
	s.buckets[keyspace] = kv
	return kv, nil
}

func (s *NATSStore) Write(ctx context.Context, keyspace, id string, record any) error {
	kv, err := s.bucket(ctx, keyspace)
	if err != nil {
		return err
	}
	key, err := encodeKey(id)
	if err != nil {
		return err
	}
	b, err := json.Marshal(record)
	if err != nil {
		return err
	}
	_, err = kv.Put(ctx, key, b)
	return err
}

func (s *NATSStore) Read(ctx context.Context, keyspace, id string, into any) error {
	kv, err := s.bucket(ctx, keyspace)
	if err != nil {
		return err
	}
	key, err := encodeKey(id)
	if err != nil {
		return err
	}
	entry, err := kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return ErrNotFound
		}
		return err
	}
	return json.Unmarshal(entry.Value(), into)
}

func (s *NATSStore) Subscribe(ctx context.Context, keyspace string, fn func(Snapshot)) (func(), error) {
	kv, err := s.bucket(ctx, keyspace)
	if err != nil {
		return nil, err
	}
	wctx, cancel := context.WithCancel(ctx)
	w, err := kv.WatchAll(wctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("watch %s: %w", keyspace, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		snap := make(Snapshot)
		initialDone := false
		for entry := range w.Updates() {
			// nil marks the end of the initial values
			if entry == nil {
				initialDone = true
				fn(snap.clone())
				continue
			}
			switch entry.Operation() {
			case jetstream.KeyValueDelete, jetstream.KeyValuePurge:
				delete(snap, decodeKey(entry.Key()))
			default:
				snap[decodeKey(entry.Key())] = json.RawMessage(entry.Value())
			}
			if initialDone {
				fn(snap.clone())
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := w.Stop(); err != nil {
				s.log.WithError(err).WithField("keyspace", keyspace).Debug("kv watcher stop")
			}
			cancel()
			<-done
		})
	}, nil
}

var errEmptyID = errors.New("empty record id")

// encodeKey maps an id onto the KV key alphabet. The encoding is reversible
// so distinct ids never share a key.
func encodeKey(id string) (string, error) {
	if id == "" {
		return "", errEmptyID
	}
	return base64.RawURLEncoding.EncodeToString([]byte(id)), nil
}

// decodeKey reverses encodeKey. Keys written by something else are returned as is.
func decodeKey(key string) string {
	b, err := base64.RawURLEncoding.DecodeString(key)
	if err != nil {
		return key
	}
	return string(b)
}

// bucketToken maps a bucket name onto the KV bucket alphabet.
func bucketToken(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}
