package tracking

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"fleet-tracker/internal/broadcast"
	"fleet-tracker/internal/fleet"
)

// StoppageWatchdog polls the stall clock on its own timer and raises at most
// one alert per stoppage episode. It does not depend on samples arriving.
type StoppageWatchdog struct {
	state     *SessionState
	store     broadcast.Store
	interval  time.Duration
	threshold time.Duration
	now       Clock
	newID     func() string
	log       logrus.FieldLogger
	metrics   Metrics

	// pending is an alert whose write failed; the next tick rewrites it
	// under the same id.
	pending *fleet.StoppageAlert
}

func NewStoppageWatchdog(state *SessionState, store broadcast.Store, interval, threshold time.Duration, now Clock, newID func() string, log logrus.FieldLogger, m Metrics) *StoppageWatchdog {
	if m == nil {
		m = nopMetrics{}
	}
	return &StoppageWatchdog{
		state:     state,
		store:     store,
		interval:  interval,
		threshold: threshold,
		now:       now,
		newID:     newID,
		log:       log,
		metrics:   m,
	}
}

// Evaluate runs one check. It returns the alert written on this tick, if any.
func (w *StoppageWatchdog) Evaluate(ctx context.Context) (*fleet.StoppageAlert, error) {
	now := w.now()

	st := w.state
	st.mu.Lock()
	if !st.driving || st.alerted {
		st.mu.Unlock()
		return nil, nil
	}
	stall := now.Sub(st.lastMovement)
	if stall <= w.threshold {
		st.mu.Unlock()
		return nil, nil
	}
	st.alerted = true
	episodeStart := st.lastMovement
	alert := w.pending
	if alert == nil || !alert.StartTime.Equal(episodeStart) {
		alert = &fleet.StoppageAlert{
			ID:        w.newID(),
			BusID:     st.busID,
			VanID:     st.van.ID,
			RouteID:   st.route.ID,
			StartTime: episodeStart,
			Message:   stoppageMessage(st.van, st.route, stall),
		}
		if st.hasPosition {
			alert.Location = st.position.Point()
		}
	}
	alert.DetectedAt = now
	st.mu.Unlock()

	if err := w.store.Write(ctx, broadcast.Alerts, alert.ID, alert); err != nil {
		w.pending = alert
		st.mu.Lock()
		// only reopen the episode if no movement happened meanwhile
		if st.lastMovement.Equal(episodeStart) {
			st.alerted = false
		}
		st.mu.Unlock()
		return nil, fmt.Errorf("write alert %s: %w", alert.ID, err)
	}
	w.pending = nil
	w.metrics.AlertRaised()
	return alert, nil
}

// Run evaluates until ctx is done.
func (w *StoppageWatchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			alert, err := w.Evaluate(ctx)
			if err != nil {
				if ctx.Err() == nil {
					w.log.WithError(err).Warn("stoppage alert write failed")
				}
				continue
			}
			if alert != nil {
				w.log.WithFields(logrus.Fields{
					"alert_id":   alert.ID,
					"stopped_at": alert.StartTime.Format(time.RFC3339),
					"lat":        alert.Location.Lat,
					"lng":        alert.Location.Lng,
				}).Warn("stoppage detected")
			}
		}
	}
}

func stoppageMessage(van fleet.Van, route fleet.Route, stall time.Duration) string {
	vehicle := van.VanNumber
	if vehicle == "" {
		vehicle = van.ID
	}
	where := route.Name
	if where == "" {
		where = route.ID
	}
	return fmt.Sprintf("Van %s has not moved for %d minutes on route %s", vehicle, int(stall.Minutes()), where)
}
