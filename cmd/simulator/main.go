package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"fleet-tracker/internal/broadcast"
	"fleet-tracker/internal/config"
	"fleet-tracker/internal/db"
	"fleet-tracker/internal/feed"
	"fleet-tracker/internal/logger"
	"fleet-tracker/internal/metrics"
	"fleet-tracker/internal/tracking"
)

// The simulator plays the driver devices: every assigned van is driven along
// its route and its fixes are published on the GPS subjects the tracker
// consumes in nats feed mode.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config error: %v", err)
	}
	log, err := logger.Setup(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		logrus.Fatalf("logger error: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sqlDB, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db open error: %v", err)
	}
	defer sqlDB.Close()
	if err := db.Ping(ctx, sqlDB); err != nil {
		log.Fatalf("db ping error: %v", err)
	}
	dir := db.NewDirectory(sqlDB)

	mcol := metrics.NewCollector(cfg.PublishInterval, cfg.WatchdogInterval, cfg.StoppageThreshold)
	if cfg.MetricsAddr != "" {
		srv := mcol.Serve(cfg.MetricsAddr, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	nc, err := broadcast.Connect(cfg.NATSURL, "fleet-simulator", mcol.Store(), log)
	if err != nil {
		log.Fatalf("nats error: %v", err)
	}
	defer nc.Close()
	pub := feed.NewPublisher(nc, cfg.GPSSubjectPrefix, cfg.LogNATSSubjects, log, mcol.GPS())

	drivers := cfg.SimDrivers
	if len(drivers) == 0 {
		if drivers, err = dir.Drivers(ctx); err != nil {
			log.Fatalf("list drivers error: %v", err)
		}
	}
	if len(drivers) == 0 {
		log.Warn("no drivers with an assigned van")
	}

	simCfg := feed.SimConfig{SpeedMps: cfg.SimSpeedMps, Interval: cfg.SimInterval, Dwell: cfg.SimDwell}
	var cancels []func()
	for _, driverID := range drivers {
		dlog := log.WithField("bus_id", driverID)
		van, err := dir.VanForDriver(ctx, driverID)
		if err != nil {
			dlog.WithError(err).Warn("skipping driver")
			continue
		}
		route, err := dir.Route(ctx, van.RouteID)
		if err != nil {
			dlog.WithError(err).Warn("skipping driver")
			continue
		}
		if len(route.Stops) == 0 {
			dlog.WithField("route_id", route.ID).Warn("route has no stops")
			continue
		}

		busID := driverID
		stop, err := feed.NewSimSource(route, simCfg).Watch(func(fix tracking.Fix) {
			msg := feed.GPSMessage{Lat: fix.Lat, Lng: fix.Lng, Speed: fix.Speed, Timestamp: fix.Timestamp}
			if err := pub.Publish(busID, msg); err != nil {
				dlog.WithError(err).Debug("publish failed")
			}
		}, nil)
		if err != nil {
			dlog.WithError(err).Warn("start simulated device")
			continue
		}
		cancels = append(cancels, stop)
		dlog.WithFields(logrus.Fields{
			"van_id":   van.ID,
			"route_id": route.ID,
			"stops":    len(route.Stops),
		}).Info("simulated device started")
	}

	<-ctx.Done()
	for _, stop := range cancels {
		stop()
	}
	if err := nc.Drain(); err != nil {
		log.WithError(err).Warn("nats drain")
	}
	log.WithField("devices", len(cancels)).Info("shutdown complete")
}
