package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"fleet-tracker/internal/broadcast"
	"fleet-tracker/internal/tracking"
)

// Trips is the driver-facing trip lifecycle, implemented by tracking.Manager.
type Trips interface {
	StartTrip(ctx context.Context, driverID string) (tracking.TripSnapshot, error)
	Trip(driverID string) (tracking.TripSnapshot, error)
	MarkArrived(driverID string) (tracking.TripSnapshot, error)
	Depart(ctx context.Context, driverID string) (tracking.TripSnapshot, error)
	EndTrip(ctx context.Context, driverID string) error
}

// Snapshotter serves the latest contents of a broadcast keyspace.
type Snapshotter interface {
	Snapshot() broadcast.Snapshot
}

// DeviceFeed accepts device WebSocket connections.
type DeviceFeed interface {
	Serve(w http.ResponseWriter, r *http.Request, driverID string)
}

type Options struct {
	Trips     Trips
	Store     broadcast.Store
	Locations Snapshotter
	Alerts    Snapshotter
	// Feed is nil unless devices report over WebSocket.
	Feed DeviceFeed
	// Health reports dependency failures on /healthz; nil always reports ok.
	Health         func(ctx context.Context) error
	AllowedOrigins []string
	Log            logrus.FieldLogger
}

type Server struct {
	opts Options
	log  logrus.FieldLogger
}

func NewServer(opts Options) *Server {
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Server{opts: opts, log: opts.Log}
}

// Router wires the API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/healthz", s.health)

	r.Route("/drivers/{driverID}", func(r chi.Router) {
		r.Post("/trip", s.startTrip)
		r.Get("/trip", s.getTrip)
		r.Delete("/trip", s.endTrip)
		r.Post("/trip/arrived", s.markArrived)
		r.Post("/trip/depart", s.depart)
		if s.opts.Feed != nil {
			r.Get("/feed", s.deviceFeed)
		}
	})

	r.Get("/locations", s.listLocations)
	r.Get("/alerts", s.listAlerts)
	r.Post("/alerts/{alertID}/ack", s.ackAlert)
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.opts.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.opts.Health(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status":    "error",
				"error":     err.Error(),
				"timestamp": time.Now().UTC(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) deviceFeed(w http.ResponseWriter, r *http.Request) {
	s.opts.Feed.Serve(w, r, chi.URLParam(r, "driverID"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
