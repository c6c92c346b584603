package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"fleet-tracker/internal/fleet"
)

// Directory resolves a driver's assignment. Implementations return
// fleet.ErrNoVanAssigned / fleet.ErrRouteNotFound when nothing is assigned.
type Directory interface {
	VanForDriver(ctx context.Context, driverID string) (fleet.Van, error)
	Route(ctx context.Context, routeID string) (fleet.Route, error)
}

// SourceFactory builds the position feed for one driver's trip.
type SourceFactory func(busID string, route fleet.Route) (Source, error)

// Manager runs at most one Session per driver.
type Manager struct {
	root    context.Context
	dir     Directory
	sources SourceFactory
	cfg     Config
	deps    Deps

	mu       sync.Mutex
	running  map[string]*Session
	starting map[string]bool
	wg       sync.WaitGroup
}

// NewManager creates a manager. deps.Source is ignored; each trip gets its
// own source from sources.
func NewManager(root context.Context, dir Directory, sources SourceFactory, cfg Config, deps Deps) *Manager {
	deps.defaults()
	return &Manager{
		root:     root,
		dir:      dir,
		sources:  sources,
		cfg:      cfg,
		deps:     deps,
		running:  make(map[string]*Session),
		starting: make(map[string]bool),
	}
}

// StartTrip resolves the driver's van and route and starts a session.
func (m *Manager) StartTrip(ctx context.Context, driverID string) (TripSnapshot, error) {
	m.mu.Lock()
	if s, exists := m.running[driverID]; (exists && !s.finished()) || m.starting[driverID] {
		m.mu.Unlock()
		return TripSnapshot{}, ErrAlreadyDriving
	}
	m.starting[driverID] = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.starting, driverID)
		m.mu.Unlock()
	}()

	van, route, err := m.resolve(ctx, driverID)
	if err != nil {
		return TripSnapshot{}, err
	}
	src, err := m.sources(driverID, route)
	if err != nil {
		return TripSnapshot{}, fmt.Errorf("%w: %v", ErrSensorUnavailable, err)
	}
	deps := m.deps
	deps.Source = src
	s, err := StartSession(m.root, driverID, van, route, m.cfg, deps)
	if err != nil {
		return TripSnapshot{}, err
	}

	m.mu.Lock()
	m.running[driverID] = s
	m.deps.Metrics.ActiveTrips(len(m.running))
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		<-s.Done()
		m.mu.Lock()
		if m.running[driverID] == s {
			delete(m.running, driverID)
		}
		m.deps.Metrics.ActiveTrips(len(m.running))
		m.mu.Unlock()
	}()
	return s.Snapshot(), nil
}

func (m *Manager) resolve(ctx context.Context, driverID string) (fleet.Van, fleet.Route, error) {
	van, err := m.dir.VanForDriver(ctx, driverID)
	if err != nil {
		return fleet.Van{}, fleet.Route{}, fmt.Errorf("driver %s: %w", driverID, err)
	}
	if van.ID == "" {
		return fleet.Van{}, fleet.Route{}, fmt.Errorf("driver %s: %w", driverID, fleet.ErrNoVanAssigned)
	}
	if van.RouteID == "" {
		return fleet.Van{}, fleet.Route{}, fmt.Errorf("van %s: %w", van.ID, fleet.ErrNoRouteAssigned)
	}
	route, err := m.dir.Route(ctx, van.RouteID)
	if err != nil {
		return fleet.Van{}, fleet.Route{}, fmt.Errorf("van %s: %w", van.ID, err)
	}
	return van, route, nil
}

func (m *Manager) session(driverID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.running[driverID]
	// an ended session stays in running until its cleanup goroutine runs
	if !ok || s.finished() {
		return nil, ErrNotDriving
	}
	return s, nil
}

func (m *Manager) Trip(driverID string) (TripSnapshot, error) {
	s, err := m.session(driverID)
	if err != nil {
		return TripSnapshot{}, err
	}
	return s.Snapshot(), nil
}

func (m *Manager) MarkArrived(driverID string) (TripSnapshot, error) {
	s, err := m.session(driverID)
	if err != nil {
		return TripSnapshot{}, err
	}
	if err := s.MarkArrived(); err != nil {
		return TripSnapshot{}, err
	}
	return s.Snapshot(), nil
}

// Depart advances the driver's trip; departing the final stop ends it.
func (m *Manager) Depart(ctx context.Context, driverID string) (TripSnapshot, error) {
	s, err := m.session(driverID)
	if err != nil {
		return TripSnapshot{}, err
	}
	if _, err := s.Depart(ctx); err != nil {
		return s.Snapshot(), err
	}
	return s.Snapshot(), nil
}

func (m *Manager) EndTrip(ctx context.Context, driverID string) error {
	s, err := m.session(driverID)
	if err != nil {
		return err
	}
	return s.End(ctx)
}

// Active returns the ids of drivers with a running trip.
func (m *Manager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.running))
	for id := range m.running {
		ids = append(ids, id)
	}
	return ids
}

// Shutdown ends every running trip, issuing each terminal write.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	sessions := make(map[string]*Session, len(m.running))
	for id, s := range m.running {
		sessions[id] = s
	}
	m.mu.Unlock()

	for id, s := range sessions {
		if err := s.End(ctx); err != nil && !errors.Is(err, ErrNotDriving) {
			m.deps.Log.WithError(err).WithField("bus_id", id).Warn("end trip on shutdown")
		}
	}
	m.wg.Wait()
	m.deps.Log.WithField("trips", len(sessions)).Info("tracking manager stopped")
}
