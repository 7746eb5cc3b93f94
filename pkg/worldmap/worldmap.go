// Package worldmap models the pre-scanned maps users localize against and
// the distance gate used when selecting one.
package worldmap

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Info describes one scanned map.
type Info struct {
	MapID     int     `json:"mapId"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Altitude  float64 `json:"alt,omitempty"`
}

func (m Info) String() string {
	return fmt.Sprintf("%s (id=%d) @ %v,%v", m.Name, m.MapID, m.Latitude, m.Longitude)
}

// ParseRecord builds an Info from a raw store record. The map id is the
// record key in the store, so it is passed separately. Latitude and
// longitude are required; altitude and name are optional.
func ParseRecord(key string, rec map[string]any) (Info, error) {
	id, err := strconv.Atoi(strings.TrimSpace(key))
	if err != nil {
		return Info{}, fmt.Errorf("map key %q is not numeric", key)
	}

	lat, ok := recFloat(rec["lat"])
	if !ok {
		return Info{}, fmt.Errorf("map %d has no lat", id)
	}
	lon, ok := recFloat(rec["lon"])
	if !ok {
		return Info{}, fmt.Errorf("map %d has no lon", id)
	}

	info := Info{MapID: id, Latitude: lat, Longitude: lon}
	if alt, ok := recFloat(rec["alt"]); ok {
		info.Altitude = alt
	}
	if name, ok := rec["name"].(string); ok && name != "" {
		info.Name = name
	} else {
		info.Name = fmt.Sprintf("Map %d", id)
	}
	return info, nil
}

func recFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

const earthRadiusMeters = 6371000

// HaversineMeters returns the great-circle distance between two coordinates.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(a))
}

// Ranked pairs a map with its distance from a reference point.
type Ranked struct {
	Map      Info
	Distance float64
}

// RankByDistance orders maps by distance from the given coordinates,
// nearest first.
func RankByDistance(maps []Info, lat, lon float64) []Ranked {
	ranked := make([]Ranked, 0, len(maps))
	for _, m := range maps {
		ranked = append(ranked, Ranked{
			Map:      m,
			Distance: HaversineMeters(lat, lon, m.Latitude, m.Longitude),
		})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].Distance < ranked[j].Distance })
	return ranked
}

// Nearest returns the closest map within maxMeters of the given coordinates.
// The bool result is false when no map qualifies: selecting a map the user
// is not physically near is rejected by policy.
func Nearest(maps []Info, lat, lon, maxMeters float64) (Info, bool) {
	ranked := RankByDistance(maps, lat, lon)
	if len(ranked) == 0 || ranked[0].Distance > maxMeters {
		return Info{}, false
	}
	return ranked[0].Map, true
}
