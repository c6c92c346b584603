package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"fleet-tracker/internal/tracking"
)

// GPSMessage is the wire format of a device position report, shared by the
// NATS and WebSocket feeds. A non-empty Error reports a sensor failure
// instead of a position.
type GPSMessage struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Speed     *float64  `json:"speed,omitempty"`
	Timestamp time.Time `json:"timestamp,omitzero"`
	Error     string    `json:"error,omitempty"`
}

// ErrDevice wraps a failure reported by the device itself.
var ErrDevice = errors.New("device reported error")

// decode parses a payload into a fix, or the error the device reported.
func decode(data []byte) (tracking.Fix, error) {
	var msg GPSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return tracking.Fix{}, fmt.Errorf("%w: %v", tracking.ErrInvalidFix, err)
	}
	if msg.Error != "" {
		return tracking.Fix{}, fmt.Errorf("%w: %s", ErrDevice, msg.Error)
	}
	return tracking.Fix{
		Lat:       msg.Lat,
		Lng:       msg.Lng,
		Speed:     msg.Speed,
		Timestamp: msg.Timestamp,
	}, nil
}

// Subject is the NATS subject a bus reports on.
func Subject(prefix, busID string) string {
	return fmt.Sprintf("%s.%s", prefix, subjectToken(busID))
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS tokens cannot contain spaces, '>', '*' or '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
