package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"fleet-tracker/internal/api"
	"fleet-tracker/internal/broadcast"
	"fleet-tracker/internal/config"
	"fleet-tracker/internal/db"
	"fleet-tracker/internal/feed"
	"fleet-tracker/internal/logger"
	"fleet-tracker/internal/metrics"
	"fleet-tracker/internal/tracking"
)

func main() {
	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config error: %v", err)
	}
	log, err := logger.Setup(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		logrus.Fatalf("logger error: %v", err)
	}

	// Root context with cancellation on SIGINT/SIGTERM
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
	if err := db.EnsureSchema(ctx, sqlDB); err != nil {
		log.Fatalf("db schema error: %v", err)
	}

	// Metrics are always collected; METRICS_ADDR only controls exposure
	mcol := metrics.NewCollector(cfg.PublishInterval, cfg.WatchdogInterval, cfg.StoppageThreshold)
	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = mcol.Serve(cfg.MetricsAddr, log)
	}

	nc, err := broadcast.Connect(cfg.NATSURL, "fleet-tracker", mcol.Store(), log)
	if err != nil {
		log.Fatalf("nats error: %v", err)
	}
	defer nc.Close()

	kv, err := broadcast.NewNATSStore(nc, cfg.KVBucketPrefix, log)
	if err != nil {
		log.Fatalf("broadcast store error: %v", err)
	}
	if err := kv.Ensure(ctx, broadcast.Locations, broadcast.Alerts); err != nil {
		log.Fatalf("broadcast buckets error: %v", err)
	}
	store := broadcast.Instrument(kv, mcol.Store())

	sources, hub := feedSources(cfg, nc, log)

	mgr := tracking.NewManager(ctx, db.NewDirectory(sqlDB), sources, tracking.Config{
		PublishInterval:    cfg.PublishInterval,
		WatchdogInterval:   cfg.WatchdogInterval,
		StoppageThreshold:  cfg.StoppageThreshold,
		MovementThresholdM: cfg.MovementThresholdM,
		ArrivalRadiusM:     cfg.ArrivalRadiusM,
	}, tracking.Deps{
		Store:   store,
		Log:     log,
		Metrics: mcol.Tracking(),
	})

	// Read side for the admin and student views
	locations, err := broadcast.NewCache(ctx, store, broadcast.Locations)
	if err != nil {
		log.Fatalf("locations cache error: %v", err)
	}
	defer locations.Close()
	alerts, err := broadcast.NewCache(ctx, store, broadcast.Alerts)
	if err != nil {
		log.Fatalf("alerts cache error: %v", err)
	}
	defer alerts.Close()

	opts := api.Options{
		Trips:          mgr,
		Store:          store,
		Locations:      locations,
		Alerts:         alerts,
		Health:         healthCheck(nc, sqlDB),
		AllowedOrigins: cfg.AllowedOrigins,
		Log:            log,
	}
	if hub != nil {
		opts.Feed = hub
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewServer(opts).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("http server error")
			cancel()
		}
	}()
	log.WithFields(logrus.Fields{
		"addr":      cfg.HTTPAddr,
		"feed_mode": cfg.FeedMode,
	}).Info("fleet tracker started")

	// Block until context cancelled
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	// every running trip gets its offline record before NATS goes away
	mgr.Shutdown(shutdownCtx)
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	if err := nc.Drain(); err != nil {
		log.WithError(err).Warn("nats drain")
	}
	log.Info("shutdown complete")
}

func feedSources(cfg *config.Config, nc *nats.Conn, log logrus.FieldLogger) (tracking.SourceFactory, *feed.Hub) {
	switch cfg.FeedMode {
	case config.FeedWS:
		hub := feed.NewHub(log)
		return hub.Sources(), hub
	case config.FeedSim:
		return feed.SimSources(feed.SimConfig{
			SpeedMps: cfg.SimSpeedMps,
			Interval: cfg.SimInterval,
			Dwell:    cfg.SimDwell,
		}), nil
	default:
		return feed.NATSSources(nc, cfg.GPSSubjectPrefix, log), nil
	}
}

func healthCheck(nc *nats.Conn, sqlDB *sql.DB) func(context.Context) error {
	return func(ctx context.Context) error {
		if !nc.IsConnected() {
			return errors.New("nats disconnected")
		}
		if err := db.Ping(ctx, sqlDB); err != nil {
			return errors.New("database unreachable")
		}
		return nil
	}
}
