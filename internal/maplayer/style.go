package maplayer

import (
	"github.com/sells-group/barrio-cli/internal/barrio"
	"github.com/sells-group/barrio-cli/internal/chart"
)

// Style is the render style of one polygon.
type Style struct {
	Color       string  `json:"color"`
	FillColor   string  `json:"fill_color"`
	FillOpacity float64 `json:"fill_opacity"`
	Weight      int     `json:"weight"`
}

// Default styles for the demographic map and the choropleth variants.
var (
	DemographicStyle = Style{Color: "#2A3A67", FillColor: "#A4D4AE", FillOpacity: 0.3, Weight: 2}
	ChoroplethStyle  = Style{Color: "purple", FillOpacity: 0.7, Weight: 2}
)

// FillFunc chooses the fill color of a neighborhood polygon.
type FillFunc func(rec barrio.Neighborhood) string

// ConstantFill fills every polygon with the same color.
func ConstantFill(color string) FillFunc {
	return func(barrio.Neighborhood) string { return color }
}

// ScaleFill colors each polygon by its value in values under scale.
// Names are matched with barrio.SameName; a missing value counts as 0.
func ScaleFill(scale *chart.Scale, values map[string]float64) FillFunc {
	folded := make(map[string]float64, len(values))
	for name, v := range values {
		folded[barrio.FoldName(name)] = v
	}
	return func(rec barrio.Neighborhood) string {
		return scale.Color(folded[barrio.FoldName(rec.Name)])
	}
}

// LabelFunc renders the popup/tooltip text of a polygon.
type LabelFunc func(rec barrio.Neighborhood) string

// NameLabel labels a polygon with the neighborhood name.
func NameLabel(rec barrio.Neighborhood) string { return rec.Name }
