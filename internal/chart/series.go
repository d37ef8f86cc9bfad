package chart

import (
	"cmp"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/barrio-cli/internal/barrio"
)

// DefaultPalette colors categorical series such as distributions and shares.
var DefaultPalette = []string{
	"#FF6F61", "#2A3A67", "#A4D4AE", "#FFD166",
	"#6A4C93", "#4ECDC4", "#F7B267", "#8D99AE",
}

// Series is a labeled set of values with one color per index.
type Series struct {
	Title  string    `json:"title,omitempty"`
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
	Colors []string  `json:"colors"`
}

// Len returns the number of points in the series.
func (s Series) Len() int { return len(s.Labels) }

// ColorForIndex returns the color of point i, or "" when out of range.
func (s Series) ColorForIndex(i int) string {
	if i < 0 || i >= len(s.Colors) {
		return ""
	}
	return s.Colors[i]
}

// Items returns the series as label/value pairs.
func (s Series) Items() []Item {
	out := make([]Item, len(s.Labels))
	for i := range s.Labels {
		out[i] = Item{Label: s.Labels[i], Value: s.Values[i]}
	}
	return out
}

// FromItems builds a series in item order, colored by scale. A nil scale
// colors every point with the first palette color.
func FromItems(title string, items []Item, scale *Scale) Series {
	s := Series{
		Title:  title,
		Labels: make([]string, len(items)),
		Values: make([]float64, len(items)),
		Colors: make([]string, len(items)),
	}
	for i, it := range items {
		s.Labels[i] = it.Label
		s.Values[i] = it.Value
		if scale != nil {
			s.Colors[i] = scale.Color(it.Value)
		} else {
			s.Colors[i] = DefaultPalette[0]
		}
	}
	return s
}

// FromDistribution builds a series from distribution buckets in natural key
// order ("0-14" before "15-24", "2" before "10"), cycling through palette.
func FromDistribution(title string, d barrio.Distribution, palette []string) Series {
	if len(palette) == 0 {
		palette = DefaultPalette
	}
	keys := d.Keys()
	slices.SortFunc(keys, naturalCompare)

	s := Series{
		Title:  title,
		Labels: keys,
		Values: make([]float64, len(keys)),
		Colors: make([]string, len(keys)),
	}
	for i, k := range keys {
		s.Values[i] = d[k]
		s.Colors[i] = palette[i%len(palette)]
	}
	return s
}

// FromShares builds a series from a label->share map ranked descending.
func FromShares(title string, shares map[string]float64, palette []string) Series {
	if len(palette) == 0 {
		palette = DefaultPalette
	}
	items := FromMap(shares)
	s := FromItems(title, items, nil)
	for i := range s.Colors {
		s.Colors[i] = palette[i%len(palette)]
	}
	return s
}

// FromHistogram builds a series from binned values. edges has one more
// element than values; bin i is labeled "edges[i]-edges[i+1]".
func FromHistogram(title string, values, edges []float64, color string) (Series, error) {
	if len(values) == 0 {
		return Series{Title: title, Labels: []string{}, Values: []float64{}, Colors: []string{}}, nil
	}
	if len(edges) != len(values)+1 {
		return Series{}, eris.Errorf("chart: histogram %s has %d bins but %d edges", title, len(values), len(edges))
	}
	if color == "" {
		color = DefaultPalette[0]
	}
	s := Series{
		Title:  title,
		Labels: make([]string, len(values)),
		Values: slices.Clone(values),
		Colors: make([]string, len(values)),
	}
	for i := range values {
		s.Labels[i] = formatBound(edges[i]) + "-" + formatBound(edges[i+1])
		s.Colors[i] = color
	}
	return s, nil
}

var leadingNumber = regexp.MustCompile(`^\s*(\d+(?:[.,]\d+)?)`)

// naturalCompare orders labels by their leading number when both have one,
// numbered labels before plain ones, then lexically.
func naturalCompare(a, b string) int {
	na, okA := leadingValue(a)
	nb, okB := leadingValue(b)
	switch {
	case okA && okB:
		if c := cmp.Compare(na, nb); c != 0 {
			return c
		}
	case okA:
		return -1
	case okB:
		return 1
	}
	return cmp.Compare(a, b)
}

func leadingValue(s string) (float64, bool) {
	m := leadingNumber.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
