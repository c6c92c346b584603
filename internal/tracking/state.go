package tracking

import (
	"sync"
	"time"

	"fleet-tracker/internal/fleet"
)

// Clock returns the current time. Sessions take one so tests can drive time.
type Clock func() time.Time

// SessionState is the state of one driver session, shared by the sample
// path, the location publisher and the stoppage watchdog. Each field is a
// last-write-wins register; no cross-field atomicity is promised to readers.
type SessionState struct {
	mu sync.RWMutex

	busID string
	van   fleet.Van
	route fleet.Route

	position    fleet.Sample
	hasPosition bool
	sensorErr   error

	lastMovement time.Time
	alerted      bool

	stopIndex int
	status    fleet.ArrivalStatus
	driving   bool
}

func NewSessionState(busID string, van fleet.Van, route fleet.Route) *SessionState {
	return &SessionState{
		busID:  busID,
		van:    van,
		route:  route,
		status: fleet.EnRoute,
	}
}

// TripSnapshot is a point-in-time copy of a session for callers outside the
// tracking loop.
type TripSnapshot struct {
	BusID         string              `json:"busId"`
	VanID         string              `json:"vanId"`
	RouteID       string              `json:"routeId"`
	RouteName     string              `json:"routeName"`
	StopIndex     int                 `json:"currentStopIndex"`
	StopCount     int                 `json:"stopCount"`
	NextStop      *fleet.Stop         `json:"nextStop,omitempty"`
	ArrivalStatus fleet.ArrivalStatus `json:"arrivalStatus"`
	IsDriving     bool                `json:"isDriving"`
	Position      *fleet.Sample       `json:"position,omitempty"`
	LastMovement  time.Time           `json:"lastMovement"`
	Alerted       bool                `json:"stoppageAlerted"`
	SensorError   string              `json:"sensorError,omitempty"`
}

func (s *SessionState) Snapshot() TripSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := TripSnapshot{
		BusID:         s.busID,
		VanID:         s.van.ID,
		RouteID:       s.route.ID,
		RouteName:     s.route.Name,
		StopIndex:     s.stopIndex,
		StopCount:     len(s.route.Stops),
		ArrivalStatus: s.status,
		IsDriving:     s.driving,
		LastMovement:  s.lastMovement,
		Alerted:       s.alerted,
	}
	if stop, ok := s.targetLocked(); ok {
		snap.NextStop = &stop
	}
	if s.hasPosition {
		p := s.position
		snap.Position = &p
	}
	if s.sensorErr != nil {
		snap.SensorError = s.sensorErr.Error()
	}
	return snap
}

// Position returns the latest accepted sample.
func (s *SessionState) Position() (fleet.Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.position, s.hasPosition
}

func (s *SessionState) SensorError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sensorErr
}

func (s *SessionState) setSensorError(err error) {
	s.mu.Lock()
	s.sensorErr = err
	s.mu.Unlock()
}

func (s *SessionState) StopIndex() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopIndex
}

func (s *SessionState) Status() fleet.ArrivalStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *SessionState) Driving() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.driving
}

func (s *SessionState) LastMovement() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastMovement
}

func (s *SessionState) Alerted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.alerted
}

// targetLocked returns the stop at the current index while driving.
func (s *SessionState) targetLocked() (fleet.Stop, bool) {
	if !s.driving || s.stopIndex < 0 || s.stopIndex >= len(s.route.Stops) {
		return fleet.Stop{}, false
	}
	return s.route.Stops[s.stopIndex], true
}
