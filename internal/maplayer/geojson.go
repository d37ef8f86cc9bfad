package maplayer

import (
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/barrio-cli/internal/barrio"
)

// FeatureCollection renders the current layers as GeoJSON, one feature per
// neighborhood with its style and interaction state as properties.
func (m *Map) FeatureCollection() *geojson.FeatureCollection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(m.layers))}
	union := geom.NewBounds(geom.XY)
	for _, l := range m.layers {
		fc.Features = append(fc.Features, m.featureLocked(l))
		union.Extend(l.Polygon)
	}
	if len(m.layers) > 0 && !union.IsEmpty() {
		fc.BBox = union
	}
	return fc
}

// Feature renders one layer by name.
func (m *Map) Feature(name string) (*geojson.Feature, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.index[barrio.FoldName(name)]
	if !ok {
		return nil, false
	}
	return m.featureLocked(l), true
}

func (m *Map) featureLocked(l *Layer) *geojson.Feature {
	return &geojson.Feature{
		ID:       l.Name,
		BBox:     l.Bounds,
		Geometry: l.Polygon,
		Properties: map[string]interface{}{
			"name":            l.Name,
			"district":        l.Record.District,
			"color":           l.Style.Color,
			"fill_color":      l.Style.FillColor,
			"fill_opacity":    l.Style.FillOpacity,
			"weight":          l.Style.Weight,
			"tooltip":         l.Tooltip,
			"tooltip_visible": l.TooltipVisible,
			"popup_open":      l.PopupOpen,
			"hovered":         barrio.SameName(l.Name, m.hovered),
			"selected":        barrio.SameName(l.Name, m.selected),
		},
	}
}
