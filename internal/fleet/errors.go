package fleet

import "errors"

// Assignment errors are fatal to trip start; the driver needs an administrator
// to fix the van or route assignment.
var (
	ErrNoVanAssigned   = errors.New("no van assigned to driver")
	ErrNoRouteAssigned = errors.New("no route assigned to van")
	ErrRouteNotFound   = errors.New("route not found")
)
