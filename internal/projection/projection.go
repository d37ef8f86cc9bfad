// Package projection converts projected UTM survey coordinates into
// geographic coordinates for map rendering.
package projection

import (
	"encoding/json"
	"math"

	"github.com/im7mortal/UTM"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// Barcelona sits in UTM zone 31 north on the WGS84 datum.
const (
	DefaultZone     = 31
	DefaultNorthern = true
)

var (
	// ErrEmptyRing is returned when a ring has no points.
	ErrEmptyRing = eris.New("projection: empty ring")
	// ErrMalformedPoint is returned when a point has fewer than two ordinates or a non-finite value.
	ErrMalformedPoint = eris.New("projection: malformed point")
	// ErrZoneMismatch is returned by Inverse when a coordinate falls outside the configured zone.
	ErrZoneMismatch = eris.New("projection: coordinate outside configured zone")
)

// LatLng is a geographic coordinate in degrees.
type LatLng struct {
	Lat float64
	Lng float64
}

// MarshalJSON encodes the coordinate as a [lat, lng] pair.
func (p LatLng) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.Lat, p.Lng})
}

// UnmarshalJSON decodes a [lat, lng] pair.
func (p *LatLng) UnmarshalJSON(data []byte) error {
	var pair [2]float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return eris.Wrap(err, "projection: decode lat/lng")
	}
	p.Lat, p.Lng = pair[0], pair[1]
	return nil
}

// Transformer projects between one fixed UTM zone and WGS84.
type Transformer struct {
	zone     int
	northern bool
}

// New creates a Transformer for the given UTM zone and hemisphere.
func New(zone int, northern bool) (*Transformer, error) {
	if zone < 1 || zone > 60 {
		return nil, eris.Errorf("projection: invalid utm zone %d", zone)
	}
	return &Transformer{zone: zone, northern: northern}, nil
}

// Zone returns the configured UTM zone number.
func (t *Transformer) Zone() int { return t.zone }

// Point converts one (easting, northing) pair to latitude/longitude.
func (t *Transformer) Point(easting, northing float64) (LatLng, error) {
	if !finite(easting) || !finite(northing) {
		return LatLng{}, eris.Wrapf(ErrMalformedPoint, "projection: non-finite point (%v, %v)", easting, northing)
	}
	lat, lng, err := UTM.ToLatLon(easting, northing, t.zone, "", t.northern)
	if err != nil {
		return LatLng{}, eris.Wrapf(err, "projection: point (%.1f, %.1f)", easting, northing)
	}
	return LatLng{Lat: lat, Lng: lng}, nil
}

// Ring converts a projected ring point by point. Order and closure are
// preserved; any malformed point fails the whole ring.
func (t *Transformer) Ring(ring [][]float64) ([]LatLng, error) {
	if len(ring) == 0 {
		return nil, ErrEmptyRing
	}

	out := make([]LatLng, 0, len(ring))
	for i, pt := range ring {
		if len(pt) < 2 {
			return nil, eris.Wrapf(ErrMalformedPoint, "projection: point %d has %d ordinates", i, len(pt))
		}
		ll, err := t.Point(pt[0], pt[1])
		if err != nil {
			return nil, eris.Wrapf(err, "projection: ring point %d", i)
		}
		out = append(out, ll)
	}
	return out, nil
}

// Inverse projects a geographic coordinate back into the configured zone.
func (t *Transformer) Inverse(p LatLng) (easting, northing float64, err error) {
	e, n, zone, _, err := UTM.FromLatLon(p.Lat, p.Lng, t.northern)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "projection: inverse (%.6f, %.6f)", p.Lat, p.Lng)
	}
	if zone != t.zone {
		return 0, 0, eris.Wrapf(ErrZoneMismatch, "projection: zone %d, want %d", zone, t.zone)
	}
	return e, n, nil
}

// Closed reports whether the first and last points of a ring coincide.
func Closed(ring []LatLng) bool {
	if len(ring) < 2 {
		return false
	}
	return ring[0] == ring[len(ring)-1]
}

// Polygon builds a go-geom polygon from a geographic ring. Coordinates are
// laid out as (lng, lat) and the ring is closed if the input was open.
func Polygon(ring []LatLng) (*geom.Polygon, error) {
	if len(ring) < 3 {
		return nil, eris.Errorf("projection: polygon needs at least 3 points, got %d", len(ring))
	}

	flat := make([]float64, 0, 2*(len(ring)+1))
	for _, p := range ring {
		flat = append(flat, p.Lng, p.Lat)
	}
	if !Closed(ring) {
		flat = append(flat, ring[0].Lng, ring[0].Lat)
	}
	return geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)}), nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
