package tracking

import (
	"fmt"
	"sync"
	"time"

	"fleet-tracker/internal/fleet"
	"fleet-tracker/internal/geo"
)

// Fix is a raw position as delivered by a device feed.
type Fix struct {
	Lat       float64
	Lng       float64
	Speed     *float64 // m/s, nil when the device does not report it
	Timestamp time.Time
}

// Source is a platform position feed. Watch delivers fixes asynchronously at
// whatever rate the device produces them; delivery errors go to onErr and do
// not end the feed. cancel stops the feed.
type Source interface {
	Watch(onFix func(Fix), onErr func(error)) (cancel func(), err error)
}

// GeoSampler turns a Source into a stream of normalized samples. It can be
// started once. After Stop returns no further sample or error is delivered.
type GeoSampler struct {
	src Source
	now Clock

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  func()
}

func NewGeoSampler(src Source, now Clock) *GeoSampler {
	return &GeoSampler{src: src, now: now}
}

func (g *GeoSampler) Start(onSample func(fleet.Sample), onErr func(error)) error {
	g.mu.Lock()
	if g.started {
		g.mu.Unlock()
		return ErrSamplerStarted
	}
	g.started = true
	g.mu.Unlock()

	cancel, err := g.src.Watch(
		func(f Fix) {
			g.mu.Lock()
			defer g.mu.Unlock()
			if g.stopped {
				return
			}
			s, err := Normalize(f, g.now())
			if err != nil {
				onErr(err)
				return
			}
			onSample(s)
		},
		func(err error) {
			g.mu.Lock()
			defer g.mu.Unlock()
			if g.stopped {
				return
			}
			onErr(err)
		},
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSensorUnavailable, err)
	}

	g.mu.Lock()
	g.cancel = cancel
	stopped := g.stopped
	g.mu.Unlock()
	// Stop raced the Watch call
	if stopped && cancel != nil {
		cancel()
	}
	return nil
}

// Stop cancels the feed. Deliveries in flight finish before Stop returns.
func (g *GeoSampler) Stop() {
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return
	}
	g.stopped = true
	cancel := g.cancel
	g.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Normalize validates a fix and fills defaults: missing or negative speed is
// 0, a missing timestamp is now.
func Normalize(f Fix, now time.Time) (fleet.Sample, error) {
	p := geo.Point{Lat: f.Lat, Lng: f.Lng}
	if !p.Valid() {
		return fleet.Sample{}, fmt.Errorf("%w: lat=%v lng=%v", ErrInvalidFix, f.Lat, f.Lng)
	}
	speed := 0.0
	if f.Speed != nil && *f.Speed > 0 {
		speed = *f.Speed
	}
	ts := f.Timestamp
	if ts.IsZero() {
		ts = now
	}
	return fleet.Sample{Lat: f.Lat, Lng: f.Lng, SpeedMps: speed, Timestamp: ts}, nil
}
