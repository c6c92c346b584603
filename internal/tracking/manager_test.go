package tracking

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-tracker/internal/broadcast"
	"fleet-tracker/internal/fleet"
)

type fakeDirectory struct {
	vans   map[string]fleet.Van
	routes map[string]fleet.Route
}

func (d *fakeDirectory) VanForDriver(_ context.Context, driverID string) (fleet.Van, error) {
	v, ok := d.vans[driverID]
	if !ok {
		return fleet.Van{}, fleet.ErrNoVanAssigned
	}
	return v, nil
}

func (d *fakeDirectory) Route(_ context.Context, routeID string) (fleet.Route, error) {
	r, ok := d.routes[routeID]
	if !ok {
		return fleet.Route{}, fleet.ErrRouteNotFound
	}
	return r, nil
}

type sourceRegistry struct {
	mu      sync.Mutex
	sources map[string]*fakeSource
	err     error
}

func (r *sourceRegistry) factory(busID string, _ fleet.Route) (Source, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	src := &fakeSource{}
	r.sources[busID] = src
	return src, nil
}

type countingTrips struct {
	nopMetrics
	mu      sync.Mutex
	started int
	ended   int
	active  int
}

func (c *countingTrips) TripStarted()      { c.mu.Lock(); c.started++; c.mu.Unlock() }
func (c *countingTrips) TripEnded()        { c.mu.Lock(); c.ended++; c.mu.Unlock() }
func (c *countingTrips) ActiveTrips(n int) { c.mu.Lock(); c.active = n; c.mu.Unlock() }

func (c *countingTrips) get() (started, ended, active int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started, c.ended, c.active
}

func newTestManager(t *testing.T) (*Manager, *sourceRegistry, *broadcast.MemoryStore, *countingTrips) {
	t.Helper()
	route := testRoute(2)
	dir := &fakeDirectory{
		vans: map[string]fleet.Van{
			"drv-1":   testVan,
			"drv-2":   {ID: "van-8", VanNumber: "KA-01-8", RouteID: "route-1"},
			"drv-nr":  {ID: "van-9"},
			"drv-bad": {ID: "van-10", RouteID: "route-x"},
		},
		routes: map[string]fleet.Route{route.ID: route},
	}
	reg := &sourceRegistry{sources: make(map[string]*fakeSource)}
	store := broadcast.NewMemoryStore()
	m := &countingTrips{}
	mgr := NewManager(context.Background(), dir, reg.factory, DefaultConfig(), Deps{
		Store:   store,
		Log:     testLogger(),
		Metrics: m,
	})
	t.Cleanup(func() { mgr.Shutdown(context.Background()) })
	return mgr, reg, store, m
}

func TestManagerStartTrip(t *testing.T) {
	mgr, _, _, m := newTestManager(t)

	snap, err := mgr.StartTrip(context.Background(), "drv-1")
	require.NoError(t, err)
	assert.Equal(t, "drv-1", snap.BusID)
	assert.Equal(t, "van-7", snap.VanID)
	assert.Equal(t, "route-1", snap.RouteID)
	assert.True(t, snap.IsDriving)

	_, err = mgr.StartTrip(context.Background(), "drv-1")
	assert.ErrorIs(t, err, ErrAlreadyDriving)

	got, err := mgr.Trip("drv-1")
	require.NoError(t, err)
	assert.Equal(t, snap.VanID, got.VanID)
	assert.Equal(t, []string{"drv-1"}, mgr.Active())

	started, _, active := m.get()
	assert.Equal(t, 1, started)
	assert.Equal(t, 1, active)
}

func TestManagerAssignmentErrors(t *testing.T) {
	mgr, reg, _, _ := newTestManager(t)
	ctx := context.Background()

	_, err := mgr.StartTrip(ctx, "nobody")
	assert.ErrorIs(t, err, fleet.ErrNoVanAssigned)

	_, err = mgr.StartTrip(ctx, "drv-nr")
	assert.ErrorIs(t, err, fleet.ErrNoRouteAssigned)

	_, err = mgr.StartTrip(ctx, "drv-bad")
	assert.ErrorIs(t, err, fleet.ErrRouteNotFound)

	reg.err = errors.New("no feed")
	_, err = mgr.StartTrip(ctx, "drv-1")
	assert.ErrorIs(t, err, ErrSensorUnavailable)
	assert.Empty(t, mgr.Active())

	reg.err = nil
	_, err = mgr.StartTrip(ctx, "drv-1")
	assert.NoError(t, err, "a failed start does not block the driver")
}

func TestManagerTripLifecycle(t *testing.T) {
	mgr, reg, store, m := newTestManager(t)
	ctx := context.Background()

	_, err := mgr.StartTrip(ctx, "drv-1")
	require.NoError(t, err)
	reg.sources["drv-1"].emit(origin)

	snap, err := mgr.MarkArrived("drv-1")
	require.NoError(t, err)
	assert.Equal(t, fleet.Arrived, snap.ArrivalStatus)

	snap, err = mgr.Depart(ctx, "drv-1")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.StopIndex)

	snap, err = mgr.Depart(ctx, "drv-1")
	require.NoError(t, err)
	assert.False(t, snap.IsDriving)

	assert.Eventually(t, func() bool { return len(mgr.Active()) == 0 }, timeout, tick)
	_, err = mgr.Trip("drv-1")
	assert.ErrorIs(t, err, ErrNotDriving)

	var rec fleet.LocationRecord
	require.NoError(t, store.Read(ctx, broadcast.Locations, "drv-1", &rec))
	assert.False(t, rec.IsOnline)

	_, err = mgr.StartTrip(ctx, "drv-1")
	require.NoError(t, err, "driver can start again after the trip ended")

	require.NoError(t, mgr.EndTrip(ctx, "drv-1"))
	assert.Eventually(t, func() bool {
		_, ended, active := m.get()
		return ended == 2 && active == 0
	}, timeout, tick)
}

func TestManagerEndedTripIsGoneImmediately(t *testing.T) {
	mgr, reg, store, _ := newTestManager(t)
	ctx := context.Background()

	_, err := mgr.StartTrip(ctx, "drv-1")
	require.NoError(t, err)
	reg.sources["drv-1"].emit(origin)

	reqCtx, cancel := context.WithCancel(ctx)
	cancel()
	require.NoError(t, mgr.EndTrip(reqCtx, "drv-1"))

	_, err = mgr.Trip("drv-1")
	assert.ErrorIs(t, err, ErrNotDriving)
	_, err = mgr.MarkArrived("drv-1")
	assert.ErrorIs(t, err, ErrNotDriving)
	_, err = mgr.Depart(ctx, "drv-1")
	assert.ErrorIs(t, err, ErrNotDriving)
	assert.ErrorIs(t, mgr.EndTrip(ctx, "drv-1"), ErrNotDriving)

	var rec fleet.LocationRecord
	require.NoError(t, store.Read(ctx, broadcast.Locations, "drv-1", &rec))
	assert.False(t, rec.IsOnline)
}

func TestManagerShutdownEndsAllTrips(t *testing.T) {
	mgr, _, store, _ := newTestManager(t)
	ctx := context.Background()

	_, err := mgr.StartTrip(ctx, "drv-1")
	require.NoError(t, err)
	_, err = mgr.StartTrip(ctx, "drv-2")
	require.NoError(t, err)

	mgr.Shutdown(ctx)
	assert.Empty(t, mgr.Active())

	recs, err := broadcast.Decode[fleet.LocationRecord](store.Snapshot(broadcast.Locations))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	for _, r := range recs {
		assert.False(t, r.IsOnline, r.BusID)
	}

	assert.ErrorIs(t, mgr.EndTrip(ctx, "drv-1"), ErrNotDriving)
}
