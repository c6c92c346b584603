package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"fleet-tracker/internal/broadcast"
	"fleet-tracker/internal/fleet"
	"fleet-tracker/internal/geo"
)

var origin = geo.Point{Lat: 12.9716, Lng: 77.5946}

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 6, 3, 7, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func seqIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("alert-%d", n)
	}
}

// testRoute lays stops 1 km apart heading north from origin.
func testRoute(n int) fleet.Route {
	r := fleet.Route{ID: "route-1", Name: "Campus Loop"}
	for i := 0; i < n; i++ {
		p := geo.Offset(origin, float64(i)*1000, 0)
		r.Stops = append(r.Stops, fleet.Stop{
			ID:   fmt.Sprintf("stop-%d", i),
			Name: fmt.Sprintf("Stop %d", i),
			Lat:  p.Lat,
			Lng:  p.Lng,
		})
	}
	return r
}

var testVan = fleet.Van{ID: "van-7", VanNumber: "KA-01-7", Capacity: 14, RouteID: "route-1"}

func sampleAt(p geo.Point, ts time.Time) fleet.Sample {
	return fleet.Sample{Lat: p.Lat, Lng: p.Lng, Timestamp: ts}
}

var errStoreDown = errors.New("store unavailable")

type write struct {
	keyspace string
	id       string
	raw      json.RawMessage
}

// recordingStore logs every successful write and can be told to fail.
type recordingStore struct {
	*broadcast.MemoryStore

	mu       sync.Mutex
	writes   []write
	failures int
}

func newRecordingStore() *recordingStore {
	return &recordingStore{MemoryStore: broadcast.NewMemoryStore()}
}

func (r *recordingStore) Write(ctx context.Context, keyspace, id string, record any) error {
	r.mu.Lock()
	if r.failures > 0 {
		r.failures--
		r.mu.Unlock()
		return errStoreDown
	}
	b, err := json.Marshal(record)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	r.writes = append(r.writes, write{keyspace: keyspace, id: id, raw: b})
	r.mu.Unlock()
	return r.MemoryStore.Write(ctx, keyspace, id, record)
}

func (r *recordingStore) failNext(n int) {
	r.mu.Lock()
	r.failures = n
	r.mu.Unlock()
}

func (r *recordingStore) count(keyspace string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, w := range r.writes {
		if w.keyspace == keyspace {
			n++
		}
	}
	return n
}

func (r *recordingStore) all() []write {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]write(nil), r.writes...)
}

func (r *recordingStore) locations(t *testing.T) []fleet.LocationRecord {
	t.Helper()
	var out []fleet.LocationRecord
	for _, w := range r.all() {
		if w.keyspace != broadcast.Locations {
			continue
		}
		var rec fleet.LocationRecord
		require.NoError(t, json.Unmarshal(w.raw, &rec))
		out = append(out, rec)
	}
	return out
}

// fakeSource hands the registered callbacks to the test. emit keeps
// delivering after cancel so the sampler's own guard is what is tested.
type fakeSource struct {
	mu        sync.Mutex
	onFix     func(Fix)
	onErr     func(error)
	cancelled bool
	watchErr  error
}

func (f *fakeSource) Watch(onFix func(Fix), onErr func(error)) (func(), error) {
	if f.watchErr != nil {
		return nil, f.watchErr
	}
	f.mu.Lock()
	f.onFix, f.onErr = onFix, onErr
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.cancelled = true
		f.mu.Unlock()
	}, nil
}

func (f *fakeSource) emit(p geo.Point) {
	f.mu.Lock()
	fn := f.onFix
	f.mu.Unlock()
	if fn != nil {
		speed := 4.2
		fn(Fix{Lat: p.Lat, Lng: p.Lng, Speed: &speed})
	}
}

func (f *fakeSource) fail(err error) {
	f.mu.Lock()
	fn := f.onErr
	f.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (f *fakeSource) isCancelled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}
