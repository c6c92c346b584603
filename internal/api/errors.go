package api

import (
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"fleet-tracker/internal/fleet"
	"fleet-tracker/internal/tracking"
)

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

const contactAdmin = "Please contact an administrator to fix the assignment."

// statusFor maps domain errors to an HTTP status, a stable code and the
// message shown to the driver.
func statusFor(err error) (int, string, string) {
	switch {
	case errors.Is(err, fleet.ErrNoVanAssigned):
		return http.StatusUnprocessableEntity, "no_van_assigned", "No van is assigned to you. " + contactAdmin
	case errors.Is(err, fleet.ErrNoRouteAssigned):
		return http.StatusUnprocessableEntity, "no_route_assigned", "Your van has no route assigned. " + contactAdmin
	case errors.Is(err, fleet.ErrRouteNotFound):
		return http.StatusUnprocessableEntity, "route_not_found", "Your van's route could not be found. " + contactAdmin
	case errors.Is(err, tracking.ErrRouteHasNoStops):
		return http.StatusUnprocessableEntity, "route_has_no_stops", "Your route has no stops. " + contactAdmin
	case errors.Is(err, tracking.ErrAlreadyDriving):
		return http.StatusConflict, "already_driving", "A trip is already in progress."
	case errors.Is(err, tracking.ErrNotDriving):
		return http.StatusConflict, "not_driving", "No trip is in progress."
	case errors.Is(err, tracking.ErrSensorUnavailable):
		return http.StatusServiceUnavailable, "sensor_unavailable", "Location is unavailable. Check location permissions and try again."
	case errors.Is(err, tracking.ErrAlertNotFound):
		return http.StatusNotFound, "alert_not_found", "Alert not found."
	default:
		return http.StatusInternalServerError, "internal", "Internal error."
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := statusFor(err)
	log := s.log.WithError(err).WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"status": status,
	})
	if status >= 500 {
		log.Error("request failed")
	} else {
		log.Debug("request rejected")
	}
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: msg, Code: "bad_request"})
}
