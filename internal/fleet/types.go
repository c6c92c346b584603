package fleet

import (
	"time"

	"fleet-tracker/internal/geo"
)

type Stop struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

func (s Stop) Point() geo.Point { return geo.Point{Lat: s.Lat, Lng: s.Lng} }

// Route is an ordered list of stops; order defines traversal.
type Route struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Stops []Stop `json:"stops"`
}

// Points returns the stop positions in traversal order.
func (r Route) Points() []geo.Point {
	pts := make([]geo.Point, len(r.Stops))
	for i, s := range r.Stops {
		pts[i] = s.Point()
	}
	return pts
}

type Van struct {
	ID        string `json:"id"`
	VanNumber string `json:"vanNumber"`
	Capacity  int    `json:"capacity"`
	RouteID   string `json:"routeId"`
}

type ArrivalStatus string

const (
	EnRoute  ArrivalStatus = "en_route"
	Arriving ArrivalStatus = "arriving"
	Arrived  ArrivalStatus = "arrived"
)

// Sample is a normalized position fix.
type Sample struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	SpeedMps  float64   `json:"speedMps"`
	Timestamp time.Time `json:"timestamp"`
}

func (s Sample) Point() geo.Point { return geo.Point{Lat: s.Lat, Lng: s.Lng} }

// LocationRecord is the published per-vehicle record, overwritten on every publish.
type LocationRecord struct {
	BusID         string        `json:"busId"`
	Lat           float64       `json:"lat"`
	Lng           float64       `json:"lng"`
	Speed         float64       `json:"speed"`
	RouteID       string        `json:"routeId"`
	VanID         string        `json:"vanId,omitempty"`
	NextStopID    string        `json:"nextStopId,omitempty"`
	NextStopName  string        `json:"nextStopName,omitempty"`
	ArrivalStatus ArrivalStatus `json:"arrivalStatus,omitempty"`
	UpdatedAt     time.Time     `json:"updatedAt"`
	IsOnline      bool          `json:"isOnline"`
}

type StoppageAlert struct {
	ID         string    `json:"id"`
	BusID      string    `json:"busId"`
	VanID      string    `json:"vanId"`
	RouteID    string    `json:"routeId"`
	Location   geo.Point `json:"location"`
	StartTime  time.Time `json:"startTime"`
	DetectedAt time.Time `json:"detectedAt"`
	Message    string    `json:"message"`
	IsResolved bool      `json:"isResolved"`
}
