package tracking

import (
	"fleet-tracker/internal/fleet"
	"fleet-tracker/internal/geo"
)

// TripProgressEngine tracks the target stop and arrival status. The stop
// index only moves forward, one stop at a time, and returns to 0 when a trip
// begins or ends.
type TripProgressEngine struct {
	state  *SessionState
	radius float64 // meters
}

func NewTripProgressEngine(state *SessionState, arrivalRadiusM float64) *TripProgressEngine {
	return &TripProgressEngine{state: state, radius: arrivalRadiusM}
}

func (e *TripProgressEngine) Begin() {
	st := e.state
	st.mu.Lock()
	st.stopIndex = 0
	st.status = fleet.EnRoute
	st.driving = true
	st.mu.Unlock()
}

// Observe re-derives the arrival status from the distance to the target
// stop. There is no hysteresis: each sample decides on its own.
func (e *TripProgressEngine) Observe(s fleet.Sample) fleet.ArrivalStatus {
	st := e.state
	st.mu.Lock()
	defer st.mu.Unlock()

	stop, ok := st.targetLocked()
	if !ok {
		return st.status
	}
	if geo.DistanceMeters(s.Point(), stop.Point()) < e.radius {
		st.status = fleet.Arriving
	} else {
		st.status = fleet.EnRoute
	}
	return st.status
}

// MarkArrived is the driver's manual confirmation at the current stop.
func (e *TripProgressEngine) MarkArrived() error {
	st := e.state
	st.mu.Lock()
	defer st.mu.Unlock()
	if !st.driving {
		return ErrNotDriving
	}
	st.status = fleet.Arrived
	return nil
}

// Depart targets the next stop. At the last stop it ends the trip instead
// and reports ended=true; the caller owns the teardown.
func (e *TripProgressEngine) Depart() (ended bool, err error) {
	st := e.state
	st.mu.Lock()
	defer st.mu.Unlock()
	if !st.driving {
		return false, ErrNotDriving
	}
	if st.stopIndex < len(st.route.Stops)-1 {
		st.stopIndex++
		st.status = fleet.EnRoute
		return false, nil
	}
	st.driving = false
	st.stopIndex = 0
	st.status = fleet.EnRoute
	return true, nil
}

func (e *TripProgressEngine) End() {
	st := e.state
	st.mu.Lock()
	st.driving = false
	st.stopIndex = 0
	st.status = fleet.EnRoute
	st.mu.Unlock()
}

// Target returns the stop the vehicle is heading to.
func (e *TripProgressEngine) Target() (fleet.Stop, bool) {
	st := e.state
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.targetLocked()
}
