// Package geo provides the great-circle geometry shared by the proximity
// filter and the cluster finder.
package geo

import (
	"fmt"
	"math"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

// EarthRadiusKm is the IUGG mean Earth radius.
const EarthRadiusKm = 6371.0088

// Point is a WGS-84 latitude/longitude pair in degrees.
type Point struct {
	Lat float64
	Lon float64
}

// LatLng converts the point to an s2 coordinate.
func (p Point) LatLng() s2.LatLng {
	return s2.LatLngFromDegrees(p.Lat, p.Lon)
}

// DistanceKm returns the great-circle surface distance between a and b in kilometers.
func DistanceKm(a, b Point) float64 {
	if a == b {
		return 0
	}
	return float64(a.LatLng().Distance(b.LatLng())) * EarthRadiusKm
}

// AngleForKm converts a surface distance to the central angle it subtends.
func AngleForKm(km float64) s1.Angle {
	return s1.Angle(km / EarthRadiusKm)
}

// Validate reports whether lat/lon form a usable coordinate.
func Validate(lat, lon float64) error {
	switch {
	case math.IsNaN(lat) || math.IsInf(lat, 0):
		return fmt.Errorf("latitude %v is not finite", lat)
	case math.IsNaN(lon) || math.IsInf(lon, 0):
		return fmt.Errorf("longitude %v is not finite", lon)
	case lat < -90 || lat > 90:
		return fmt.Errorf("latitude %v out of range [-90, 90]", lat)
	case lon < -180 || lon > 180:
		return fmt.Errorf("longitude %v out of range [-180, 180]", lon)
	}
	return nil
}
