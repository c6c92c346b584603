package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

type Collector struct {
	reg *prometheus.Registry

	ActiveTrips  prometheus.Gauge
	TripsStarted prometheus.Counter
	TripsEnded   prometheus.Counter

	SamplesReceived prometheus.Counter
	SensorErrors    prometheus.Counter
	AlertsRaised    prometheus.Counter

	StoreWrites        *prometheus.CounterVec // keyspace label: locations|alerts
	StoreWriteErrs     *prometheus.CounterVec
	StoreConnected     prometheus.Gauge
	StoreWriteDuration prometheus.Histogram

	GPSPublished       prometheus.Counter
	GPSPublishErrs     prometheus.Counter
	GPSPublishDuration prometheus.Histogram

	PublishInterval   prometheus.Gauge // seconds
	WatchdogInterval  prometheus.Gauge // seconds
	StoppageThreshold prometheus.Gauge // seconds
}

func NewCollector(publishInterval, watchdogInterval, stoppageThreshold time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		ActiveTrips: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fleet_active_trips",
			Help: "Number of driver sessions currently tracking.",
		}),
		TripsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleet_trips_started_total",
			Help: "Total trips started.",
		}),
		TripsEnded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleet_trips_ended_total",
			Help: "Total trips ended, by the driver or at the final stop.",
		}),
		SamplesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleet_samples_received_total",
			Help: "Total valid position samples received from devices.",
		}),
		SensorErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleet_sensor_errors_total",
			Help: "Total position sensor errors, including rejected fixes.",
		}),
		AlertsRaised: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleet_stoppage_alerts_total",
			Help: "Total stoppage alerts written.",
		}),
		StoreWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleet_store_writes_total",
			Help: "Total broadcast store writes.",
		}, []string{"keyspace"}),
		StoreWriteErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleet_store_write_errors_total",
			Help: "Total failed broadcast store writes.",
		}, []string{"keyspace"}),
		StoreConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fleet_store_connected",
			Help: "1 if the NATS connection is established, 0 otherwise.",
		}),
		StoreWriteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fleet_store_write_duration_seconds",
			Help:    "Duration to marshal and write a broadcast record.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		GPSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleet_gps_published_total",
			Help: "Total simulated GPS reports published.",
		}),
		GPSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleet_gps_publish_errors_total",
			Help: "Total simulated GPS publish errors.",
		}),
		GPSPublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fleet_gps_publish_duration_seconds",
			Help:    "Duration to marshal and publish a GPS report.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		PublishInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fleet_publish_interval_seconds",
			Help: "Location publish interval in seconds.",
		}),
		WatchdogInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fleet_watchdog_interval_seconds",
			Help: "Stoppage watchdog poll interval in seconds.",
		}),
		StoppageThreshold: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fleet_stoppage_threshold_seconds",
			Help: "Stall duration that raises a stoppage alert.",
		}),
	}

	reg.MustRegister(
		c.ActiveTrips, c.TripsStarted, c.TripsEnded,
		c.SamplesReceived, c.SensorErrors, c.AlertsRaised,
		c.StoreWrites, c.StoreWriteErrs, c.StoreConnected, c.StoreWriteDuration,
		c.GPSPublished, c.GPSPublishErrs, c.GPSPublishDuration,
		c.PublishInterval, c.WatchdogInterval, c.StoppageThreshold,
	)

	c.PublishInterval.Set(publishInterval.Seconds())
	c.WatchdogInterval.Set(watchdogInterval.Seconds())
	c.StoppageThreshold.Set(stoppageThreshold.Seconds())

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string, log logrus.FieldLogger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics server error")
		}
	}()
	log.WithField("addr", addr).Info("metrics listening")
	return srv
}
