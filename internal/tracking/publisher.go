package tracking

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"fleet-tracker/internal/broadcast"
	"fleet-tracker/internal/fleet"
)

// LocationPublisher writes the latest position and trip progress to the
// broadcast store on a fixed interval, independent of the sample rate.
type LocationPublisher struct {
	state    *SessionState
	store    broadcast.Store
	interval time.Duration
	now      Clock
	log      logrus.FieldLogger
}

func NewLocationPublisher(state *SessionState, store broadcast.Store, interval time.Duration, now Clock, log logrus.FieldLogger) *LocationPublisher {
	return &LocationPublisher{state: state, store: store, interval: interval, now: now, log: log}
}

// Record builds the record for the current tick. ok is false when nothing
// should be written: no sample yet, a pending sensor error, or no trip.
func (p *LocationPublisher) Record() (rec fleet.LocationRecord, ok bool) {
	st := p.state
	st.mu.RLock()
	defer st.mu.RUnlock()

	if !st.driving || !st.hasPosition || st.sensorErr != nil {
		return fleet.LocationRecord{}, false
	}
	rec = fleet.LocationRecord{
		BusID:         st.busID,
		Lat:           st.position.Lat,
		Lng:           st.position.Lng,
		Speed:         st.position.SpeedMps,
		RouteID:       st.route.ID,
		VanID:         st.van.ID,
		ArrivalStatus: st.status,
		UpdatedAt:     p.now(),
		IsOnline:      true,
	}
	if stop, ok := st.targetLocked(); ok {
		rec.NextStopID = stop.ID
		rec.NextStopName = stop.Name
	}
	return rec, true
}

// PublishOnce performs one tick. It reports whether a write was attempted.
func (p *LocationPublisher) PublishOnce(ctx context.Context) (bool, error) {
	rec, ok := p.Record()
	if !ok {
		return false, nil
	}
	return true, p.store.Write(ctx, broadcast.Locations, rec.BusID, rec)
}

// Run publishes until ctx is done. Failed writes are logged and superseded
// by the next tick.
func (p *LocationPublisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.PublishOnce(ctx); err != nil && ctx.Err() == nil {
				p.log.WithError(err).Warn("location write failed")
			}
		}
	}
}

// PublishOffline writes the terminal record that signals the vehicle is gone.
func (p *LocationPublisher) PublishOffline(ctx context.Context) error {
	st := p.state
	st.mu.RLock()
	rec := fleet.LocationRecord{
		BusID:         st.busID,
		VanID:         st.van.ID,
		ArrivalStatus: fleet.EnRoute,
		UpdatedAt:     p.now(),
		IsOnline:      false,
	}
	st.mu.RUnlock()
	return p.store.Write(ctx, broadcast.Locations, rec.BusID, rec)
}
