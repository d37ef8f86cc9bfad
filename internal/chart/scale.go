// Package chart turns neighborhood records and per-neighborhood metrics into
// render-ready series, choropleth scales, legends and paged windows.
package chart

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/samber/lo"
)

// Scale is an ordered threshold table mapping a scalar to one of a fixed set
// of colors. Map fills and legends both read from the same table.
type Scale struct {
	name       string
	thresholds []float64 // strictly descending
	colors     []string  // colors[i] for v > thresholds[i]; last color otherwise
}

// LegendEntry is one legend swatch. To is nil for the open top band.
type LegendEntry struct {
	From  float64  `json:"from"`
	To    *float64 `json:"to"`
	Label string   `json:"label"`
	Color string   `json:"color"`
}

var (
	ylOrRd = []string{"#800026", "#BD0026", "#E31A1C", "#FC4E2A", "#FD8D3C", "#FEB24C", "#FFEDA0"}
	blues  = []string{"#084594", "#2171b5", "#4292c6", "#6baed6", "#9ecae1", "#c6dbef", "#deebf7"}
)

// Built-in scales.
var (
	LocalCount     = MustScale("local_count", []float64{100, 50, 20, 10, 5, 1}, ylOrRd)
	LocalCountBars = LocalCount.WithAlpha("local_count_bars", 0.7)
	AveragePrice   = MustScale("average_price", []float64{50, 40, 30, 20, 10, 5}, blues)
	PriceBars      = MustScale("price_bars", []float64{20000, 15000, 10000, 5000, 2500, 1000}, ylOrRd).
			WithAlpha("price_bars", 0.7)
)

var builtin = lo.KeyBy([]*Scale{LocalCount, LocalCountBars, AveragePrice, PriceBars}, func(s *Scale) string {
	return s.name
})

// LookupScale returns a built-in scale by name.
func LookupScale(name string) (*Scale, bool) {
	s, ok := builtin[name]
	return s, ok
}

// ScaleNames lists the built-in scale names.
func ScaleNames() []string {
	return []string{LocalCount.name, LocalCountBars.name, AveragePrice.name, PriceBars.name}
}

// NewScale validates and builds a scale. Thresholds must be strictly
// descending and there must be exactly one more color than thresholds.
func NewScale(name string, thresholds []float64, colors []string) (*Scale, error) {
	if len(thresholds) == 0 {
		return nil, eris.Errorf("chart: scale %s has no thresholds", name)
	}
	if len(colors) != len(thresholds)+1 {
		return nil, eris.Errorf("chart: scale %s needs %d colors, got %d", name, len(thresholds)+1, len(colors))
	}
	for i := 1; i < len(thresholds); i++ {
		if !(thresholds[i] < thresholds[i-1]) {
			return nil, eris.Errorf("chart: scale %s thresholds not strictly descending at %d", name, i)
		}
	}
	return &Scale{
		name:       name,
		thresholds: append([]float64(nil), thresholds...),
		colors:     append([]string(nil), colors...),
	}, nil
}

// MustScale is NewScale that panics on an invalid table.
func MustScale(name string, thresholds []float64, colors []string) *Scale {
	s, err := NewScale(name, thresholds, colors)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the scale name.
func (s *Scale) Name() string { return s.name }

// Bands returns the number of color bands.
func (s *Scale) Bands() int { return len(s.colors) }

// Band returns the intensity rank of v: 0 is the lowest band and
// Bands()-1 the highest. NaN and values at or below the lowest threshold
// fall in band 0.
func (s *Scale) Band(v float64) int {
	for i, t := range s.thresholds {
		if v > t {
			return len(s.thresholds) - i
		}
	}
	return 0
}

// Color returns the fill color for v.
func (s *Scale) Color(v float64) string {
	return s.colors[len(s.colors)-1-s.Band(v)]
}

// Legend lists the bands from lowest to highest with the same colors Color
// assigns.
func (s *Scale) Legend() []LegendEntry {
	n := len(s.thresholds)
	entries := make([]LegendEntry, 0, n+1)

	from := 0.0
	for i := n - 1; i >= 0; i-- {
		to := s.thresholds[i]
		entries = append(entries, LegendEntry{
			From:  from,
			To:    &to,
			Label: formatBound(from) + "-" + formatBound(to),
			Color: s.colors[i+1],
		})
		from = to
	}
	entries = append(entries, LegendEntry{
		From:  from,
		Label: formatBound(from) + "+",
		Color: s.colors[0],
	})
	return entries
}

// WithAlpha derives a scale with the same thresholds whose hex colors are
// rendered as rgba with the given opacity.
func (s *Scale) WithAlpha(name string, alpha float64) *Scale {
	colors := lo.Map(s.colors, func(c string, _ int) string {
		return hexToRGBA(c, alpha)
	})
	return &Scale{name: name, thresholds: s.thresholds, colors: colors}
}

func formatBound(f float64) string {
	if f == math.Trunc(f) {
		return strconv.FormatFloat(f, 'f', 0, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func hexToRGBA(hex string, alpha float64) string {
	h := strings.TrimPrefix(hex, "#")
	if len(h) != 6 {
		return hex
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return hex
	}
	return fmt.Sprintf("rgba(%d, %d, %d, %s)", v>>16&0xff, v>>8&0xff, v&0xff, strconv.FormatFloat(alpha, 'f', -1, 64))
}
