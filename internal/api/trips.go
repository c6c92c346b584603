package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fleet-tracker/internal/tracking"
)

// POST /drivers/{driverID}/trip
func (s *Server) startTrip(w http.ResponseWriter, r *http.Request) {
	snap, err := s.opts.Trips.StartTrip(r.Context(), chi.URLParam(r, "driverID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

// GET /drivers/{driverID}/trip
func (s *Server) getTrip(w http.ResponseWriter, r *http.Request) {
	snap, err := s.opts.Trips.Trip(chi.URLParam(r, "driverID"))
	if errors.Is(err, tracking.ErrNotDriving) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "No trip is in progress.", Code: "not_driving"})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// DELETE /drivers/{driverID}/trip
func (s *Server) endTrip(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Trips.EndTrip(r.Context(), chi.URLParam(r, "driverID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /drivers/{driverID}/trip/arrived
func (s *Server) markArrived(w http.ResponseWriter, r *http.Request) {
	snap, err := s.opts.Trips.MarkArrived(chi.URLParam(r, "driverID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// POST /drivers/{driverID}/trip/depart
// Departing the final stop ends the trip; the body then has isDriving=false.
func (s *Server) depart(w http.ResponseWriter, r *http.Request) {
	snap, err := s.opts.Trips.Depart(r.Context(), chi.URLParam(r, "driverID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
