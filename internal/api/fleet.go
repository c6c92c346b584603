package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"fleet-tracker/internal/broadcast"
	"fleet-tracker/internal/fleet"
	"fleet-tracker/internal/tracking"
)

type LocationsResponse struct {
	Locations   []fleet.LocationRecord `json:"locations"`
	Count       int                    `json:"count"`
	GeneratedAt time.Time              `json:"generatedAt"`
}

type AlertsResponse struct {
	Alerts      []fleet.StoppageAlert `json:"alerts"`
	Count       int                   `json:"count"`
	GeneratedAt time.Time             `json:"generatedAt"`
}

// GET /locations?online=true&routeId=&vanId=
func (s *Server) listLocations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := fleet.LocationFilter{RouteID: q.Get("routeId"), VanID: q.Get("vanId")}
	if v := q.Get("online"); v != "" {
		online, err := strconv.ParseBool(v)
		if err != nil {
			badRequest(w, "online must be true or false")
			return
		}
		f.OnlineOnly = online
	}

	recs, err := broadcast.Decode[fleet.LocationRecord](s.opts.Locations.Snapshot())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	recs = fleet.FilterLocations(recs, f)
	if recs == nil {
		recs = []fleet.LocationRecord{}
	}
	writeJSON(w, http.StatusOK, LocationsResponse{Locations: recs, Count: len(recs), GeneratedAt: time.Now().UTC()})
}

// GET /alerts?resolved=false
func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	var resolved *bool
	if v := r.URL.Query().Get("resolved"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			badRequest(w, "resolved must be true or false")
			return
		}
		resolved = &b
	}

	alerts, err := broadcast.Decode[fleet.StoppageAlert](s.opts.Alerts.Snapshot())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	alerts = fleet.FilterAlerts(alerts, resolved)
	if alerts == nil {
		alerts = []fleet.StoppageAlert{}
	}
	writeJSON(w, http.StatusOK, AlertsResponse{Alerts: alerts, Count: len(alerts), GeneratedAt: time.Now().UTC()})
}

// POST /alerts/{alertID}/ack
func (s *Server) ackAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := tracking.AcknowledgeAlert(r.Context(), s.opts.Store, chi.URLParam(r, "alertID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}
