package locate

import (
	"cmp"
	"slices"

	"github.com/umahmood/haversine"

	"github.com/sells-group/barrio-cli/pkg/urbanapi"
)

// Nearby is a restaurant with its distance from the query point.
type Nearby struct {
	urbanapi.Restaurant
	DistanceKm float64 `json:"distance_km"`
}

// RankByDistance orders restaurants by distance from (lat, lng), nearest
// first, dropping those farther than maxKm when maxKm > 0. limit <= 0
// keeps all of them.
func RankByDistance(lat, lng float64, restaurants []urbanapi.Restaurant, maxKm float64, limit int) []Nearby {
	origin := haversine.Coord{Lat: lat, Lon: lng}
	out := make([]Nearby, 0, len(restaurants))
	for _, r := range restaurants {
		_, km := haversine.Distance(origin, haversine.Coord{Lat: r.Lat, Lon: r.Lon})
		if maxKm > 0 && km > maxKm {
			continue
		}
		out = append(out, Nearby{Restaurant: r, DistanceKm: km})
	}
	slices.SortStableFunc(out, func(a, b Nearby) int {
		if c := cmp.Compare(a.DistanceKm, b.DistanceKm); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
