package domain

import "time"

// Polygon is a GeoJSON polygon: the first ring is the outer boundary, the
// rest are holes. Positions are [lon, lat].
type Polygon struct {
	Type        string        `json:"type,omitempty" yaml:"type,omitempty"`
	Coordinates [][][]float64 `json:"coordinates" yaml:"coordinates"`
}

// Empty reports whether the polygon has no outer ring.
func (p Polygon) Empty() bool {
	return len(p.Coordinates) == 0 || len(p.Coordinates[0]) == 0
}

// Clone returns a deep copy.
func (p Polygon) Clone() Polygon {
	out := Polygon{Type: p.Type}
	if p.Coordinates == nil {
		return out
	}
	out.Coordinates = make([][][]float64, len(p.Coordinates))
	for i, ring := range p.Coordinates {
		out.Coordinates[i] = make([][]float64, len(ring))
		for j, pos := range ring {
			out.Coordinates[i][j] = append([]float64(nil), pos...)
		}
	}
	return out
}

// Zone is a named coverage area.
type Zone struct {
	ZoneID    string
	Name      string
	Boundary  Polygon
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy of the zone.
func (z *Zone) Clone() *Zone {
	if z == nil {
		return nil
	}
	out := *z
	out.Boundary = z.Boundary.Clone()
	return &out
}
