package metrics

import "time"

// Tracking adapts the collector to the tracking session events.
func (c *Collector) Tracking() *TrackingMetrics { return &TrackingMetrics{c: c} }

type TrackingMetrics struct{ c *Collector }

func (m *TrackingMetrics) SampleReceived()   { m.c.SamplesReceived.Inc() }
func (m *TrackingMetrics) SensorError()      { m.c.SensorErrors.Inc() }
func (m *TrackingMetrics) AlertRaised()      { m.c.AlertsRaised.Inc() }
func (m *TrackingMetrics) TripStarted()      { m.c.TripsStarted.Inc() }
func (m *TrackingMetrics) TripEnded()        { m.c.TripsEnded.Inc() }
func (m *TrackingMetrics) ActiveTrips(n int) { m.c.ActiveTrips.Set(float64(n)) }

// Store adapts the collector to broadcast store writes and the NATS
// connection state.
func (c *Collector) Store() *StoreMetrics { return &StoreMetrics{c: c} }

type StoreMetrics struct{ c *Collector }

func (m *StoreMetrics) WriteInc(keyspace string)    { m.c.StoreWrites.WithLabelValues(keyspace).Inc() }
func (m *StoreMetrics) WriteErrInc(keyspace string) { m.c.StoreWriteErrs.WithLabelValues(keyspace).Inc() }
func (m *StoreMetrics) WriteObserve(d time.Duration) {
	m.c.StoreWriteDuration.Observe(d.Seconds())
}
func (m *StoreMetrics) SetConnected(b bool) {
	if b {
		m.c.StoreConnected.Set(1)
	} else {
		m.c.StoreConnected.Set(0)
	}
}

// GPS adapts the collector to the simulator's GPS publisher.
func (c *Collector) GPS() *GPSMetrics { return &GPSMetrics{c: c} }

type GPSMetrics struct{ c *Collector }

func (m *GPSMetrics) PublishedInc()                  { m.c.GPSPublished.Inc() }
func (m *GPSMetrics) PublishErrInc()                 { m.c.GPSPublishErrs.Inc() }
func (m *GPSMetrics) PublishObserve(d time.Duration) { m.c.GPSPublishDuration.Observe(d.Seconds()) }
