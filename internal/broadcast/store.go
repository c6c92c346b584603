package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Keyspaces written by the tracking core.
const (
	Locations = "locations"
	Alerts    = "alerts"
)

var ErrNotFound = errors.New("broadcast: key not found")

// Snapshot is the full content of one keyspace: id -> encoded record.
type Snapshot map[string]json.RawMessage

// Store is a real-time key-value store fanning out writes to subscribers.
// Writes are total overwrites, last writer wins.
type Store interface {
	Write(ctx context.Context, keyspace, id string, record any) error
	Read(ctx context.Context, keyspace, id string, into any) error
	// Subscribe calls fn with the current snapshot and again after every
	// change to any entry of the keyspace. The returned func unsubscribes.
	Subscribe(ctx context.Context, keyspace string, fn func(Snapshot)) (func(), error)
}

// Decode unmarshals every record of a snapshot, in key order.
func Decode[T any](s Snapshot) ([]T, error) {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		var v T
		if err := json.Unmarshal(s[k], &v); err != nil {
			return nil, fmt.Errorf("decode %q: %w", k, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (s Snapshot) clone() Snapshot {
	c := make(Snapshot, len(s))
	for k, v := range s {
		c[k] = v
	}
	return c
}
