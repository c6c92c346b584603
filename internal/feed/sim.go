package feed

import (
	"context"
	"sync"
	"time"

	"fleet-tracker/internal/fleet"
	"fleet-tracker/internal/geo"
	"fleet-tracker/internal/tracking"
)

// SimConfig drives simulated vehicles along their route.
type SimConfig struct {
	SpeedMps float64
	Interval time.Duration
	Dwell    time.Duration
}

// schedule maps elapsed trip time to distance along the stop polyline:
// travel at constant speed between stops, dwell at each intermediate stop.
type schedule struct {
	pts   []geo.Point
	cum   []float64
	times []time.Duration
	dists []float64
}

func newSchedule(stops []fleet.Stop, speedMps float64, dwell time.Duration) schedule {
	s := schedule{pts: fleet.Route{Stops: stops}.Points()}
	s.cum = geo.CumDistances(s.pts)
	if len(s.pts) == 0 {
		return s
	}

	appendKF := func(t time.Duration, d float64) {
		s.times = append(s.times, t)
		s.dists = append(s.dists, d)
	}
	appendKF(0, 0)
	if speedMps <= 0 {
		return s
	}
	t := time.Duration(0)
	for i := 1; i < len(s.pts); i++ {
		seg := s.cum[i] - s.cum[i-1]
		t += time.Duration(seg / speedMps * float64(time.Second))
		appendKF(t, s.cum[i])
		if i < len(s.pts)-1 && dwell > 0 {
			t += dwell
			appendKF(t, s.cum[i])
		}
	}
	return s
}

// Duration is the time to reach the final stop.
func (s schedule) Duration() time.Duration {
	if len(s.times) == 0 {
		return 0
	}
	return s.times[len(s.times)-1]
}

func (s schedule) distAt(elapsed time.Duration) float64 {
	n := len(s.times)
	if n == 0 {
		return 0
	}
	if elapsed <= s.times[0] {
		return s.dists[0]
	}
	if elapsed >= s.times[n-1] {
		return s.dists[n-1]
	}
	i := 0
	for i+1 < n && elapsed > s.times[i+1] {
		i++
	}
	t0, t1 := s.times[i], s.times[i+1]
	d0, d1 := s.dists[i], s.dists[i+1]
	if t1 <= t0 {
		return d0
	}
	frac := float64(elapsed-t0) / float64(t1-t0)
	return d0 + (d1-d0)*frac
}

// At returns the simulated position after elapsed.
func (s schedule) At(elapsed time.Duration) geo.Point {
	p, _ := geo.Interpolate(s.pts, s.cum, s.distAt(elapsed))
	return p
}

// SimSource drives one vehicle along its route's stops, then holds it at
// the final stop until cancelled.
type SimSource struct {
	sched    schedule
	interval time.Duration
}

func NewSimSource(route fleet.Route, cfg SimConfig) *SimSource {
	return &SimSource{sched: newSchedule(route.Stops, cfg.SpeedMps, cfg.Dwell), interval: cfg.Interval}
}

func (s *SimSource) Watch(onFix func(tracking.Fix), _ func(error)) (func(), error) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.run(ctx, onFix)
	}()
	return func() {
		cancel()
		wg.Wait()
	}, nil
}

func (s *SimSource) run(ctx context.Context, onFix func(tracking.Fix)) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	start := time.Now()
	var last geo.Point
	var lastAt time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			p := s.sched.At(now.Sub(start))
			speed := 0.0
			if !lastAt.IsZero() {
				if dt := now.Sub(lastAt).Seconds(); dt > 0 {
					speed = geo.DistanceMeters(last, p) / dt
				}
			}
			last, lastAt = p, now
			onFix(tracking.Fix{Lat: p.Lat, Lng: p.Lng, Speed: &speed, Timestamp: now})
		}
	}
}

// SimSources returns a factory giving every trip a simulated vehicle.
func SimSources(cfg SimConfig) tracking.SourceFactory {
	return func(_ string, route fleet.Route) (tracking.Source, error) {
		return NewSimSource(route, cfg), nil
	}
}
