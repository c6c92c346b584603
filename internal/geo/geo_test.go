package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistanceMeters(t *testing.T) {
	tests := []struct {
		name      string
		a, b      Point
		expected  float64
		tolerance float64
	}{
		{"same point", Point{12.97, 77.59}, Point{12.97, 77.59}, 0, 0.001},
		{"one degree of latitude", Point{0, 0}, Point{1, 0}, 111195, 10},
		{"one degree of longitude at equator", Point{0, 0}, Point{0, 1}, 111195, 10},
		{"short hop", Point{0, 0}, Point{0.0009, 0}, 100.08, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, DistanceMeters(tt.a, tt.b), tt.tolerance)
		})
	}
}

func TestBearingDeg(t *testing.T) {
	assert.InDelta(t, 0, BearingDeg(Point{40, -122}, Point{41, -122}), 1)
	assert.InDelta(t, 90, BearingDeg(Point{40, -122}, Point{40, -121}), 1)
	assert.InDelta(t, 180, BearingDeg(Point{41, -122}, Point{40, -122}), 1)
	assert.InDelta(t, 270, BearingDeg(Point{40, -121}, Point{40, -122}), 1)
}

func TestOffsetRoundTrip(t *testing.T) {
	origin := Point{12.9716, 77.5946}
	moved := Offset(origin, 30, 40)
	assert.InDelta(t, 50, DistanceMeters(origin, moved), 0.1)
}

func TestValid(t *testing.T) {
	assert.True(t, Point{0, 0}.Valid())
	assert.True(t, Point{-90, 180}.Valid())
	assert.False(t, Point{91, 0}.Valid())
	assert.False(t, Point{0, -181}.Valid())
	assert.False(t, Point{math.NaN(), 0}.Valid())
	assert.False(t, Point{0, math.Inf(1)}.Valid())
}

func TestInterpolate(t *testing.T) {
	pts := []Point{{0, 0}, Offset(Point{0, 0}, 100, 0), Offset(Point{0, 0}, 100, 100)}
	cum := CumDistances(pts)
	require.Len(t, cum, 3)
	assert.InDelta(t, 200, cum[2], 0.5)

	p, brng := Interpolate(pts, cum, 50)
	assert.InDelta(t, 50, DistanceMeters(pts[0], p), 0.5)
	assert.InDelta(t, 0, brng, 1)

	p, brng = Interpolate(pts, cum, 150)
	assert.InDelta(t, 50, DistanceMeters(pts[1], p), 0.5)
	assert.InDelta(t, 90, brng, 1)

	p, _ = Interpolate(pts, cum, -10)
	assert.Equal(t, pts[0], p)
	p, _ = Interpolate(pts, cum, 1e6)
	assert.Equal(t, pts[2], p)
}
