package tracking

// Metrics receives tracking events. Implementations must be safe for
// concurrent use.
type Metrics interface {
	SampleReceived()
	SensorError()
	AlertRaised()
	TripStarted()
	TripEnded()
	ActiveTrips(n int)
}

type nopMetrics struct{}

func (nopMetrics) SampleReceived() {}
func (nopMetrics) SensorError()    {}
func (nopMetrics) AlertRaised()    {}
func (nopMetrics) TripStarted()    {}
func (nopMetrics) TripEnded()      {}
func (nopMetrics) ActiveTrips(int) {}
