package tracking

import "errors"

var (
	ErrRouteHasNoStops   = errors.New("route has no stops")
	ErrNotDriving        = errors.New("no active trip")
	ErrAlreadyDriving    = errors.New("trip already active")
	ErrInvalidFix        = errors.New("invalid position fix")
	ErrSensorUnavailable = errors.New("position sensor unavailable")
	ErrSamplerStarted    = errors.New("sampler already started")
	ErrAlertNotFound     = errors.New("alert not found")
)
