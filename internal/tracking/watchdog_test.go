package tracking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-tracker/internal/broadcast"
	"fleet-tracker/internal/fleet"
	"fleet-tracker/internal/geo"
)

type watchdogRig struct {
	clk     *fakeClock
	state   *SessionState
	move    *MovementTracker
	prog    *TripProgressEngine
	store   *recordingStore
	wd      *StoppageWatchdog
	elapsed int
}

func newWatchdogRig(route fleet.Route) *watchdogRig {
	r := &watchdogRig{clk: newFakeClock(), store: newRecordingStore()}
	r.state = NewSessionState("bus-1", testVan, route)
	r.move = NewMovementTracker(r.state, 30)
	r.prog = NewTripProgressEngine(r.state, 100)
	r.wd = NewStoppageWatchdog(r.state, r.store, 10*time.Second, 5*time.Minute, r.clk.Now, seqIDs(), testLogger(), nil)
	r.move.Reset(r.clk.Now())
	r.prog.Begin()
	return r
}

// run feeds one sample per second at pos and polls the watchdog every ten
// seconds, returning the alerts raised.
func (r *watchdogRig) run(t *testing.T, seconds int, pos geo.Point) []*fleet.StoppageAlert {
	t.Helper()
	var out []*fleet.StoppageAlert
	for i := 0; i < seconds; i++ {
		r.clk.Advance(time.Second)
		r.elapsed++
		r.move.Observe(sampleAt(pos, r.clk.Now()), r.clk.Now())
		if r.elapsed%10 == 0 {
			a, err := r.wd.Evaluate(context.Background())
			require.NoError(t, err)
			if a != nil {
				out = append(out, a)
			}
		}
	}
	return out
}

func TestOneAlertPerStoppageEpisode(t *testing.T) {
	r := newWatchdogRig(testRoute(3))

	first := r.run(t, 360, origin)
	require.Len(t, first, 1)
	a := first[0]
	assert.Equal(t, "alert-1", a.ID)
	assert.Equal(t, "bus-1", a.BusID)
	assert.Equal(t, "van-7", a.VanID)
	assert.Equal(t, "route-1", a.RouteID)
	assert.False(t, a.IsResolved)
	assert.InDelta(t, origin.Lat, a.Location.Lat, 1e-9)
	assert.Greater(t, a.DetectedAt.Sub(a.StartTime), 5*time.Minute)
	assert.Equal(t, "Van KA-01-7 has not moved for 5 minutes on route Campus Loop", a.Message)
	assert.True(t, r.state.Alerted())

	moved := geo.Offset(origin, 40, 0)
	assert.Empty(t, r.run(t, 1, moved))
	assert.False(t, r.state.Alerted())

	second := r.run(t, 360, moved)
	require.Len(t, second, 1)
	assert.NotEqual(t, a.ID, second[0].ID)
	assert.True(t, second[0].StartTime.After(a.StartTime))

	assert.Equal(t, 2, r.store.count(broadcast.Alerts))
}

func TestNoAlertAtThreshold(t *testing.T) {
	r := newWatchdogRig(testRoute(3))
	assert.Empty(t, r.run(t, 300, origin))
}

func TestWatchdogFiresWithoutSamples(t *testing.T) {
	r := newWatchdogRig(testRoute(3))
	r.clk.Advance(5*time.Minute + time.Second)

	a, err := r.wd.Evaluate(context.Background())
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Zero(t, a.Location, "no sample was ever received")
}

func TestWatchdogRetriesFailedWriteWithSameID(t *testing.T) {
	ctx := context.Background()
	r := newWatchdogRig(testRoute(3))
	r.move.Observe(sampleAt(origin, r.clk.Now()), r.clk.Now())
	r.clk.Advance(6 * time.Minute)

	r.store.failNext(1)
	a, err := r.wd.Evaluate(ctx)
	require.ErrorIs(t, err, errStoreDown)
	assert.Nil(t, a)
	assert.False(t, r.state.Alerted(), "episode reopened for retry")

	r.clk.Advance(10 * time.Second)
	a, err = r.wd.Evaluate(ctx)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "alert-1", a.ID)
	assert.Equal(t, r.clk.Now(), a.DetectedAt)

	var stored fleet.StoppageAlert
	require.NoError(t, r.store.Read(ctx, broadcast.Alerts, "alert-1", &stored))
	assert.Equal(t, a.StartTime.Unix(), stored.StartTime.Unix())
	assert.Equal(t, 1, r.store.count(broadcast.Alerts))
}

func TestWatchdogIdleWhenNotDriving(t *testing.T) {
	r := newWatchdogRig(testRoute(3))
	r.prog.End()
	r.clk.Advance(time.Hour)

	a, err := r.wd.Evaluate(context.Background())
	require.NoError(t, err)
	assert.Nil(t, a)
	assert.Zero(t, r.store.count(broadcast.Alerts))
}

func TestStoppageMessageFallsBackToIDs(t *testing.T) {
	msg := stoppageMessage(fleet.Van{ID: "van-9"}, fleet.Route{ID: "route-3"}, 7*time.Minute+30*time.Second)
	assert.Equal(t, "Van van-9 has not moved for 7 minutes on route route-3", msg)
}
