package tracking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"fleet-tracker/internal/broadcast"
	"fleet-tracker/internal/fleet"
)

// offlineWriteTimeout bounds the terminal write, which is detached from the
// caller's cancellation.
const offlineWriteTimeout = 5 * time.Second

// Config holds the tuning of a driver session.
type Config struct {
	PublishInterval    time.Duration
	WatchdogInterval   time.Duration
	StoppageThreshold  time.Duration
	MovementThresholdM float64
	ArrivalRadiusM     float64
}

func DefaultConfig() Config {
	return Config{
		PublishInterval:    time.Second,
		WatchdogInterval:   10 * time.Second,
		StoppageThreshold:  5 * time.Minute,
		MovementThresholdM: 30,
		ArrivalRadiusM:     100,
	}
}

// Deps are the collaborators of a session. Clock, NewID, Log and Metrics
// default when nil.
type Deps struct {
	Store   broadcast.Store
	Source  Source
	Clock   Clock
	NewID   func() string
	Log     logrus.FieldLogger
	Metrics Metrics
}

func (d *Deps) defaults() {
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	if d.Log == nil {
		d.Log = logrus.StandardLogger()
	}
	if d.Metrics == nil {
		d.Metrics = nopMetrics{}
	}
}

// Session is one driver's active trip: a single sample feed plus the
// publisher and watchdog tasks, coordinating only through SessionState.
type Session struct {
	state     *SessionState
	sampler   *GeoSampler
	movement  *MovementTracker
	progress  *TripProgressEngine
	publisher *LocationPublisher
	watchdog  *StoppageWatchdog
	clock     Clock
	log       logrus.FieldLogger
	metrics   Metrics

	mu     sync.Mutex
	ended  bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}
}

// StartSession validates the assignment and starts the feed and both
// periodic tasks. The tasks live until End, or until parent is cancelled.
func StartSession(parent context.Context, busID string, van fleet.Van, route fleet.Route, cfg Config, deps Deps) (*Session, error) {
	switch {
	case van.ID == "":
		return nil, fleet.ErrNoVanAssigned
	case route.ID == "":
		return nil, fleet.ErrNoRouteAssigned
	case len(route.Stops) == 0:
		return nil, fmt.Errorf("route %s: %w", route.ID, ErrRouteHasNoStops)
	}
	deps.defaults()

	log := deps.Log.WithFields(logrus.Fields{
		"bus_id":   busID,
		"van_id":   van.ID,
		"route_id": route.ID,
	})
	state := NewSessionState(busID, van, route)
	s := &Session{
		state:     state,
		sampler:   NewGeoSampler(deps.Source, deps.Clock),
		movement:  NewMovementTracker(state, cfg.MovementThresholdM),
		progress:  NewTripProgressEngine(state, cfg.ArrivalRadiusM),
		publisher: NewLocationPublisher(state, deps.Store, cfg.PublishInterval, deps.Clock, log),
		watchdog:  NewStoppageWatchdog(state, deps.Store, cfg.WatchdogInterval, cfg.StoppageThreshold, deps.Clock, deps.NewID, log, deps.Metrics),
		clock:     deps.Clock,
		log:       log,
		metrics:   deps.Metrics,
		done:      make(chan struct{}),
	}

	s.movement.Reset(deps.Clock())
	s.progress.Begin()

	if err := s.sampler.Start(s.onSample, s.onSensorError); err != nil {
		s.progress.End()
		return nil, err
	}

	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.publisher.Run(ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.watchdog.Run(ctx)
	}()

	s.metrics.TripStarted()
	log.WithField("stops", len(route.Stops)).Info("trip started")
	return s, nil
}

func (s *Session) onSample(sample fleet.Sample) {
	now := s.clock()
	if s.movement.Observe(sample, now) {
		s.log.WithFields(logrus.Fields{"lat": sample.Lat, "lng": sample.Lng}).Debug("movement")
	}
	s.progress.Observe(sample)
	s.metrics.SampleReceived()
}

func (s *Session) onSensorError(err error) {
	s.state.setSensorError(err)
	s.metrics.SensorError()
	s.log.WithError(err).Warn("position sensor error, publishing paused")
}

func (s *Session) State() *SessionState { return s.state }

func (s *Session) Snapshot() TripSnapshot { return s.state.Snapshot() }

// Done is closed once the trip has ended and the terminal write was issued.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) finished() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Session) MarkArrived() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return ErrNotDriving
	}
	if err := s.progress.MarkArrived(); err != nil {
		return err
	}
	if stop, ok := s.progress.Target(); ok {
		s.log.WithField("stop_id", stop.ID).Info("arrived at stop")
	}
	return nil
}

// Depart moves on to the next stop. At the final stop it ends the trip and
// reports ended=true.
func (s *Session) Depart(ctx context.Context) (ended bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return false, ErrNotDriving
	}
	ended, err = s.progress.Depart()
	if err != nil {
		return false, err
	}
	if !ended {
		if stop, ok := s.progress.Target(); ok {
			s.log.WithField("stop_id", stop.ID).Info("departed towards next stop")
		}
		return false, nil
	}
	s.log.Info("final stop reached")
	return true, s.endLocked(ctx)
}

// End stops the feed, cancels both periodic tasks and writes the offline
// record, in that order, before returning. The offline write ignores ctx
// cancellation but keeps its values. A failed offline write is logged, not
// returned.
func (s *Session) End(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return ErrNotDriving
	}
	return s.endLocked(ctx)
}

func (s *Session) endLocked(ctx context.Context) error {
	s.ended = true
	s.sampler.Stop()
	s.progress.End()
	s.cancel()
	s.wg.Wait()

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), offlineWriteTimeout)
	err := s.publisher.PublishOffline(wctx)
	cancel()
	close(s.done)
	s.metrics.TripEnded()
	if err != nil {
		// the trip is over either way; consumers see the stale record
		s.log.WithError(err).Warn("offline write failed")
	}
	s.log.Info("trip ended")
	return nil
}
