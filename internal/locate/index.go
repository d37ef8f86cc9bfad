// Package locate answers point queries against neighborhood polygons and
// ranks nearby places by great-circle distance.
package locate

import (
	"math"

	"github.com/dhconnelly/rtreego"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/umahmood/haversine"
	"go.uber.org/zap"

	"github.com/sells-group/barrio-cli/internal/projection"
)

// minSide keeps degenerate rings indexable.
const minSide = 1e-9

// Region is one indexed polygon, in lng/lat order.
type Region struct {
	Name string
	flat []float64
	rect rtreego.Rect
}

// Bounds implements rtreego.Spatial.
func (r *Region) Bounds() rtreego.Rect { return r.rect }

// Contains reports whether the point lies inside the region's ring.
func (r *Region) Contains(lat, lng float64) bool {
	return xy.IsPointInRing(geom.XY, geom.Coord{lng, lat}, r.flat)
}

// Index is an R-tree over neighborhood rings.
type Index struct {
	tree *rtreego.Rtree
	size int
}

// NewIndex builds an index from named rings. Rings with fewer than three
// points are skipped.
func NewIndex(rings map[string][]projection.LatLng) *Index {
	ix := &Index{tree: rtreego.NewTree(2, 25, 50)}
	for name, ring := range rings {
		r, ok := newRegion(name, ring)
		if !ok {
			zap.L().Warn("locate: skipping ring", zap.String("name", name), zap.Int("points", len(ring)))
			continue
		}
		ix.tree.Insert(r)
		ix.size++
	}
	return ix
}

func newRegion(name string, ring []projection.LatLng) (*Region, bool) {
	if len(ring) < 3 {
		return nil, false
	}
	minLng, minLat := math.Inf(1), math.Inf(1)
	maxLng, maxLat := math.Inf(-1), math.Inf(-1)
	flat := make([]float64, 0, 2*(len(ring)+1))
	for _, p := range ring {
		flat = append(flat, p.Lng, p.Lat)
		minLng, maxLng = math.Min(minLng, p.Lng), math.Max(maxLng, p.Lng)
		minLat, maxLat = math.Min(minLat, p.Lat), math.Max(maxLat, p.Lat)
	}
	if !projection.Closed(ring) {
		flat = append(flat, ring[0].Lng, ring[0].Lat)
	}

	rect, err := rtreego.NewRect(
		rtreego.Point{minLng, minLat},
		[]float64{math.Max(maxLng-minLng, minSide), math.Max(maxLat-minLat, minSide)},
	)
	if err != nil {
		return nil, false
	}
	return &Region{Name: name, flat: flat, rect: rect}, true
}

// Len returns the number of indexed regions.
func (ix *Index) Len() int { return ix.size }

// Locate returns the name of the region containing the point.
func (ix *Index) Locate(lat, lng float64) (string, bool) {
	candidates := ix.tree.SearchIntersect(rtreego.Point{lng, lat}.ToRect(minSide))
	for _, c := range candidates {
		if r := c.(*Region); r.Contains(lat, lng) {
			return r.Name, true
		}
	}
	return "", false
}

// Nearest returns the region whose bounding box is closest to the point,
// provided that box lies within maxKm. maxKm <= 0 means no limit. It is the
// fallback for points that fall between polygons.
func (ix *Index) Nearest(lat, lng, maxKm float64) (string, bool) {
	if ix.size == 0 {
		return "", false
	}
	n := ix.tree.NearestNeighbor(rtreego.Point{lng, lat})
	if n == nil {
		return "", false
	}
	r := n.(*Region)
	if maxKm > 0 && r.distanceKm(lat, lng) > maxKm {
		return "", false
	}
	return r.Name, true
}

// distanceKm is the great-circle distance from the point to the closest
// point of the region's bounding box.
func (r *Region) distanceKm(lat, lng float64) float64 {
	lo, hi := r.rect.PointCoord(0), r.rect.PointCoord(0)+r.rect.LengthsCoord(0)
	clampLng := math.Max(lo, math.Min(hi, lng))
	lo, hi = r.rect.PointCoord(1), r.rect.PointCoord(1)+r.rect.LengthsCoord(1)
	clampLat := math.Max(lo, math.Min(hi, lat))
	_, km := haversine.Distance(haversine.Coord{Lat: lat, Lon: lng}, haversine.Coord{Lat: clampLat, Lon: clampLng})
	return km
}
