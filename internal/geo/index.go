package geo

import (
	"math"
	"sort"
	"sync"

	"github.com/spec-kit/civic-requests/internal/domain"
)

// SensitiveLocation is a place whose surroundings raise request impact.
type SensitiveLocation struct {
	Name string  `yaml:"name" json:"name"`
	Type string  `yaml:"type" json:"type"`
	Lon  float64 `yaml:"lon" json:"lon"`
	Lat  float64 `yaml:"lat" json:"lat"`
}

// Index holds zone boundaries and sensitive locations. Safe for concurrent use.
type Index struct {
	mu        sync.RWMutex
	zones     map[string]domain.Polygon
	zoneOrder []string
	sensitive []SensitiveLocation
}

// NewIndex builds an index over the given sensitive locations.
func NewIndex(sensitive []SensitiveLocation) *Index {
	idx := &Index{zones: make(map[string]domain.Polygon)}
	idx.sensitive = append(idx.sensitive, sensitive...)
	return idx
}

// ReplaceZones swaps the full zone set, typically at start-up.
func (i *Index) ReplaceZones(zones []domain.Zone) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.zones = make(map[string]domain.Polygon, len(zones))
	for _, z := range zones {
		i.zones[z.ZoneID] = z.Boundary.Clone()
	}
	i.reorder()
}

// UpsertZone adds or replaces one zone boundary.
func (i *Index) UpsertZone(zone domain.Zone) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.zones[zone.ZoneID] = zone.Boundary.Clone()
	i.reorder()
}

// RemoveZone drops a zone from the index.
func (i *Index) RemoveZone(zoneID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.zones, zoneID)
	i.reorder()
}

func (i *Index) reorder() {
	i.zoneOrder = i.zoneOrder[:0]
	for id := range i.zones {
		i.zoneOrder = append(i.zoneOrder, id)
	}
	sort.Strings(i.zoneOrder)
}

// ZoneContains reports whether the named zone contains p. Unknown zones never do.
func (i *Index) ZoneContains(zoneID string, p Point) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	poly, ok := i.zones[zoneID]
	if !ok {
		return false
	}
	return Contains(poly, p)
}

// ZonesAt returns the ids of every zone containing p, sorted.
func (i *Index) ZonesAt(p Point) []string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	var out []string
	for _, id := range i.zoneOrder {
		if Contains(i.zones[id], p) {
			out = append(out, id)
		}
	}
	return out
}

// PrimaryZone returns the lowest zone id containing p, or "".
func (i *Index) PrimaryZone(p Point) string {
	zones := i.ZonesAt(p)
	if len(zones) == 0 {
		return ""
	}
	return zones[0]
}

// Nearby returns the sensitive locations within radiusKm of p, nearest first.
func (i *Index) Nearby(p Point, radiusKm float64) []domain.SensitiveHit {
	i.mu.RLock()
	defer i.mu.RUnlock()
	var hits []domain.SensitiveHit
	for _, loc := range i.sensitive {
		d := DistanceKm(p, Point{Lon: loc.Lon, Lat: loc.Lat})
		if d <= radiusKm {
			hits = append(hits, domain.SensitiveHit{
				Name:       loc.Name,
				Type:       loc.Type,
				DistanceKm: math.Round(d*1000) / 1000,
			})
		}
	}
	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].DistanceKm != hits[b].DistanceKm {
			return hits[a].DistanceKm < hits[b].DistanceKm
		}
		return hits[a].Name < hits[b].Name
	})
	return hits
}
