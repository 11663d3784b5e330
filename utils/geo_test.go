package utils

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"attendguard/model"
)

func TestDistanceMeters(t *testing.T) {
	tests := []struct {
		name string
		a, b model.GeoCoordinate
		want float64
	}{
		{
			name: "same point",
			a:    model.GeoCoordinate{Latitude: 40.7128, Longitude: -74.0060},
			b:    model.GeoCoordinate{Latitude: 40.7128, Longitude: -74.0060},
			want: 0,
		},
		{
			name: "about 100m north",
			a:    model.GeoCoordinate{Latitude: 0, Longitude: 0},
			b:    model.GeoCoordinate{Latitude: 0.0008993, Longitude: 0},
			want: 100,
		},
		{
			name: "about 10km east on the equator",
			a:    model.GeoCoordinate{Latitude: 0, Longitude: 0},
			b:    model.GeoCoordinate{Latitude: 0, Longitude: 0.0899322},
			want: 10000,
		},
		{
			name: "0.00029 degrees",
			a:    model.GeoCoordinate{Latitude: 0, Longitude: 0},
			b:    model.GeoCoordinate{Latitude: 0.00029, Longitude: 0},
			want: 32.25,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceMeters(tt.a, tt.b)
			if tt.want == 0 {
				assert.InDelta(t, 0, got, 1e-9)
				return
			}
			assert.InEpsilon(t, tt.want, got, 0.01)
		})
	}
}

func TestDistanceMetersIsSymmetric(t *testing.T) {
	a := model.GeoCoordinate{Latitude: 51.5074, Longitude: -0.1278}
	b := model.GeoCoordinate{Latitude: 48.8566, Longitude: 2.3522}
	assert.InDelta(t, DistanceMeters(a, b), DistanceMeters(b, a), 1e-6)
	assert.InEpsilon(t, 343_500, DistanceMeters(a, b), 0.01)
}

func TestDistanceMetersInvalidInput(t *testing.T) {
	origin := model.GeoCoordinate{}
	invalid := []model.GeoCoordinate{
		{Latitude: math.NaN(), Longitude: 0},
		{Latitude: 0, Longitude: math.Inf(1)},
		{Latitude: 91, Longitude: 0},
		{Latitude: 0, Longitude: -180.5},
	}
	for _, c := range invalid {
		assert.True(t, math.IsNaN(DistanceMeters(origin, c)), "%+v", c)
		assert.True(t, math.IsNaN(DistanceMeters(c, origin)), "%+v", c)
	}
}

func TestWithinRadius(t *testing.T) {
	center := model.GeoCoordinate{Latitude: 0, Longitude: 0}
	inside := model.GeoCoordinate{Latitude: 0.00029, Longitude: 0}

	t.Run("inside", func(t *testing.T) {
		res := WithinRadius(inside, model.AttendanceLocation{Center: center, RadiusMeters: 50})
		assert.True(t, res.IsValid)
		assert.InEpsilon(t, 32.25, res.Distance, 0.01)
	})

	t.Run("outside", func(t *testing.T) {
		res := WithinRadius(inside, model.AttendanceLocation{Center: center, RadiusMeters: 30})
		assert.False(t, res.IsValid)
	})

	t.Run("boundary is inclusive", func(t *testing.T) {
		d := DistanceMeters(inside, center)
		res := WithinRadius(inside, model.AttendanceLocation{Center: center, RadiusMeters: d})
		assert.True(t, res.IsValid)
	})

	t.Run("invalid position is never inside", func(t *testing.T) {
		res := WithinRadius(model.GeoCoordinate{Latitude: math.NaN()}, model.AttendanceLocation{Center: center, RadiusMeters: math.MaxFloat64})
		assert.False(t, res.IsValid)
		assert.True(t, math.IsNaN(res.Distance))
	})
}

func TestFormatDistance(t *testing.T) {
	assert.Equal(t, "32m", FormatDistance(32.25))
	assert.Equal(t, "999m", FormatDistance(999.4))
	assert.Equal(t, "1.2km", FormatDistance(1234))
	assert.Equal(t, "unknown distance", FormatDistance(math.NaN()))
}
