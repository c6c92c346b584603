package tracking

import (
	"time"

	"fleet-tracker/internal/fleet"
	"fleet-tracker/internal/geo"
)

// MovementTracker maintains the stall clock. Movement is measured against
// the immediately preceding sample, not a fixed anchor, so a slow drift of
// less than the threshold per sample never resets the clock.
type MovementTracker struct {
	state     *SessionState
	threshold float64 // meters
}

func NewMovementTracker(state *SessionState, thresholdM float64) *MovementTracker {
	return &MovementTracker{state: state, threshold: thresholdM}
}

// Reset starts a new stall clock at now, as on trip start.
func (m *MovementTracker) Reset(now time.Time) {
	st := m.state
	st.mu.Lock()
	st.lastMovement = now
	st.alerted = false
	st.hasPosition = false
	st.position = fleet.Sample{}
	st.mu.Unlock()
}

// Observe records a sample and reports whether it reset the stall clock.
// Significant movement also clears the alerted flag, opening a new
// stoppage episode.
func (m *MovementTracker) Observe(s fleet.Sample, now time.Time) bool {
	st := m.state
	st.mu.Lock()
	defer st.mu.Unlock()

	reset := false
	if !st.hasPosition {
		st.lastMovement = now
		reset = true
	} else if geo.DistanceMeters(st.position.Point(), s.Point()) > m.threshold {
		st.lastMovement = now
		st.alerted = false
		reset = true
	}
	st.position = s
	st.hasPosition = true
	st.sensorErr = nil
	return reset
}

func (m *MovementTracker) StallDuration(now time.Time) time.Duration {
	return now.Sub(m.state.LastMovement())
}
