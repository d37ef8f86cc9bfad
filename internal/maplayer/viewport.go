package maplayer

import (
	"math"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/barrio-cli/internal/projection"
)

const tileSize = 256

// Viewport is the fitted map view: the bounds it covers, its center and the
// zoom level that shows the bounds in a viewport of the configured size.
type Viewport struct {
	SouthWest projection.LatLng `json:"south_west"`
	NorthEast projection.LatLng `json:"north_east"`
	Center    projection.LatLng `json:"center"`
	Zoom      int               `json:"zoom"`
	Padding   int               `json:"padding"`
}

// fitBounds computes the largest integer zoom at which b fits inside a
// width x height pixel viewport minus padding, in Web Mercator, clamped to
// [minZoom, maxZoom]. b is laid out as (lng, lat).
func fitBounds(b *geom.Bounds, width, height, padding, minZoom, maxZoom int) Viewport {
	west, south := b.Min(0), b.Min(1)
	east, north := b.Max(0), b.Max(1)

	vp := Viewport{
		SouthWest: projection.LatLng{Lat: south, Lng: west},
		NorthEast: projection.LatLng{Lat: north, Lng: east},
		Padding:   padding,
	}

	yN, yS := mercatorY(north), mercatorY(south)
	vp.Center = projection.LatLng{
		Lat: inverseMercatorY((yN + yS) / 2),
		Lng: (west + east) / 2,
	}

	w := float64(width - 2*padding)
	h := float64(height - 2*padding)
	if w <= 0 || h <= 0 {
		vp.Zoom = minZoom
		return vp
	}

	zoom := float64(maxZoom)
	if span := (east - west) / 360 * tileSize; span > 0 {
		zoom = math.Min(zoom, math.Log2(w/span))
	}
	if span := (yN - yS) / (2 * math.Pi) * tileSize; span > 0 {
		zoom = math.Min(zoom, math.Log2(h/span))
	}

	vp.Zoom = int(math.Floor(zoom))
	vp.Zoom = max(minZoom, min(maxZoom, vp.Zoom))
	return vp
}

func mercatorY(lat float64) float64 {
	const maxLat = 85.0511287798
	lat = math.Max(-maxLat, math.Min(maxLat, lat))
	rad := lat * math.Pi / 180
	return math.Log(math.Tan(math.Pi/4 + rad/2))
}

func inverseMercatorY(y float64) float64 {
	return (2*math.Atan(math.Exp(y)) - math.Pi/2) * 180 / math.Pi
}
