package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type FeedMode string

const (
	FeedNATS FeedMode = "nats"
	FeedWS   FeedMode = "ws"
	FeedSim  FeedMode = "sim"
)

type Config struct {
	DatabaseURL      string
	NATSURL          string
	KVBucketPrefix   string
	GPSSubjectPrefix string
	FeedMode         FeedMode
	LogNATSSubjects  bool

	PublishInterval    time.Duration
	WatchdogInterval   time.Duration
	StoppageThreshold  time.Duration
	MovementThresholdM float64
	ArrivalRadiusM     float64

	SimSpeedMps float64
	SimInterval time.Duration
	SimDwell    time.Duration
	SimDrivers  []string

	HTTPAddr       string
	AllowedOrigins []string
	MetricsAddr    string

	LogLevel  string
	LogFormat string
	LogFile   string
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	// Database URL: prefer DATABASE_URL / PG_DSN, else build from PG* vars
	dsn := firstNonEmpty(
		os.Getenv("DATABASE_URL"),
		os.Getenv("PG_DSN"),
	)
	if dsn == "" {
		host := getenvDefault("PGHOST", "127.0.0.1")
		port := getenvDefault("PGPORT", "5432")
		user := getenvDefault("PGUSER", "postgres")
		pass := os.Getenv("PGPASSWORD")
		db := os.Getenv("PGDATABASE")
		if db == "" {
			return nil, errors.New("PGDATABASE or DATABASE_URL must be set")
		}
		sslmode := getenvDefault("PGSSLMODE", "disable")
		if pass != "" {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode)
		} else {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode)
		}
	} else {
		cfg.DatabaseURL = dsn
	}

	cfg.NATSURL = getenvDefault("NATS_URL", "nats://127.0.0.1:4222")
	cfg.KVBucketPrefix = getenvDefault("KV_BUCKET_PREFIX", "fleet")
	cfg.GPSSubjectPrefix = getenvDefault("GPS_SUBJECT_PREFIX", "fleet.gps")
	cfg.LogNATSSubjects = parseBool(os.Getenv("LOG_NATS_SUBJECTS"))

	switch mode := FeedMode(strings.ToLower(getenvDefault("FEED_MODE", string(FeedNATS)))); mode {
	case FeedNATS, FeedWS, FeedSim:
		cfg.FeedMode = mode
	default:
		return nil, fmt.Errorf("invalid FEED_MODE: %q (want nats, ws or sim)", mode)
	}

	var err error
	if cfg.PublishInterval, err = positiveDuration("PUBLISH_INTERVAL_MS", time.Millisecond, 1000); err != nil {
		return nil, err
	}
	if cfg.WatchdogInterval, err = positiveDuration("WATCHDOG_INTERVAL_SEC", time.Second, 10); err != nil {
		return nil, err
	}
	if cfg.StoppageThreshold, err = positiveDuration("STOPPAGE_THRESHOLD_SEC", time.Second, 300); err != nil {
		return nil, err
	}
	if cfg.MovementThresholdM, err = positiveFloat("MOVEMENT_THRESHOLD_M", 30); err != nil {
		return nil, err
	}
	if cfg.ArrivalRadiusM, err = positiveFloat("ARRIVAL_RADIUS_M", 100); err != nil {
		return nil, err
	}

	// Simulator
	if cfg.SimSpeedMps, err = positiveFloat("SIM_SPEED_MPS", 8); err != nil {
		return nil, err
	}
	if cfg.SimInterval, err = positiveDuration("SIM_INTERVAL_MS", time.Millisecond, 1000); err != nil {
		return nil, err
	}
	if v := os.Getenv("SIM_DWELL_SEC"); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil || sec < 0 {
			return nil, fmt.Errorf("invalid SIM_DWELL_SEC: %q", v)
		}
		cfg.SimDwell = time.Duration(sec) * time.Second
	} else {
		cfg.SimDwell = 20 * time.Second
	}
	cfg.SimDrivers = splitList(os.Getenv("SIM_DRIVERS"))

	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", ":8080")
	cfg.AllowedOrigins = splitList(os.Getenv("CORS_ALLOWED_ORIGINS"))
	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	cfg.LogLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.LogFormat = getenvDefault("LOG_FORMAT", "text")
	cfg.LogFile = os.Getenv("LOG_FILE")

	return cfg, nil
}

func positiveDuration(key string, unit time.Duration, def int) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return time.Duration(def) * unit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return time.Duration(n) * unit, nil
}

func positiveFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return f, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
