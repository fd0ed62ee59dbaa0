// Package geo answers point-in-zone and proximity questions for the engine.
package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/spec-kit/civic-requests/internal/domain"
)

const earthRadiusKm = 6371.0

// Point is a [lon, lat] position.
type Point struct {
	Lon float64
	Lat float64
}

// PointOf converts a request location into a Point.
func PointOf(loc domain.Location) Point {
	return Point{Lon: loc.Lon, Lat: loc.Lat}
}

// ValidatePoint rejects coordinates outside WGS84 ranges.
func ValidatePoint(p Point) error {
	if math.IsNaN(p.Lon) || math.IsNaN(p.Lat) {
		return errors.New("coordinates must be numbers")
	}
	if p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("longitude %v out of range", p.Lon)
	}
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("latitude %v out of range", p.Lat)
	}
	return nil
}

// ValidatePolygon checks that every ring is closed-able and has enough vertices.
func ValidatePolygon(poly domain.Polygon) error {
	if poly.Empty() {
		return errors.New("polygon has no outer ring")
	}
	if poly.Type != "" && poly.Type != "Polygon" {
		return fmt.Errorf("unsupported geometry type %q", poly.Type)
	}
	for i, ring := range poly.Coordinates {
		if len(ring) < 3 {
			return fmt.Errorf("ring %d needs at least 3 positions", i)
		}
		for j, pos := range ring {
			if len(pos) < 2 {
				return fmt.Errorf("ring %d position %d must be [lon, lat]", i, j)
			}
			if err := ValidatePoint(Point{Lon: pos[0], Lat: pos[1]}); err != nil {
				return fmt.Errorf("ring %d position %d: %w", i, j, err)
			}
		}
	}
	return nil
}

// Contains reports whether p lies inside the polygon's outer ring and outside
// every hole. Points on an edge count as inside.
func Contains(poly domain.Polygon, p Point) bool {
	if poly.Empty() {
		return false
	}
	if !ringContains(poly.Coordinates[0], p) {
		return false
	}
	for _, hole := range poly.Coordinates[1:] {
		if ringContains(hole, p) && !onRing(hole, p) {
			return false
		}
	}
	return true
}

// ringContains runs the even-odd ray cast towards +lon.
func ringContains(ring [][]float64, p Point) bool {
	if len(ring) < 3 {
		return false
	}
	if onRing(ring, p) {
		return true
	}
	inside := false
	j := len(ring) - 1
	for i := 0; i < len(ring); i++ {
		xi, yi := ring[i][0], ring[i][1]
		xj, yj := ring[j][0], ring[j][1]
		if (yi > p.Lat) != (yj > p.Lat) {
			crossLon := (xj-xi)*(p.Lat-yi)/(yj-yi) + xi
			if p.Lon < crossLon {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

func onRing(ring [][]float64, p Point) bool {
	const eps = 1e-12
	j := len(ring) - 1
	for i := 0; i < len(ring); i++ {
		ax, ay := ring[j][0], ring[j][1]
		bx, by := ring[i][0], ring[i][1]
		cross := (bx-ax)*(p.Lat-ay) - (by-ay)*(p.Lon-ax)
		if math.Abs(cross) <= eps &&
			p.Lon >= math.Min(ax, bx)-eps && p.Lon <= math.Max(ax, bx)+eps &&
			p.Lat >= math.Min(ay, by)-eps && p.Lat <= math.Max(ay, by)+eps {
			return true
		}
		j = i
	}
	return false
}

// DistanceKm is the haversine great-circle distance between a and b.
func DistanceKm(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}
