package chart

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalCount_Colors(t *testing.T) {
	tests := []struct {
		v    float64
		want string
	}{
		{150, "#800026"},
		{101, "#800026"},
		{100, "#BD0026"},
		{51, "#BD0026"},
		{21, "#E31A1C"},
		{11, "#FC4E2A"},
		{6, "#FD8D3C"},
		{2, "#FEB24C"},
		{1, "#FFEDA0"},
		{0, "#FFEDA0"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LocalCount.Color(tt.v), "value %v", tt.v)
	}
}

func TestAveragePrice_Colors(t *testing.T) {
	assert.Equal(t, "#084594", AveragePrice.Color(51))
	assert.Equal(t, "#4292c6", AveragePrice.Color(35))
	assert.Equal(t, "#deebf7", AveragePrice.Color(5))
}

func TestPriceBars_Alpha(t *testing.T) {
	assert.Equal(t, "rgba(128, 0, 38, 0.7)", PriceBars.Color(25000))
	assert.Equal(t, "rgba(255, 237, 160, 0.7)", PriceBars.Color(500))
	assert.Equal(t, "rgba(253, 141, 60, 0.7)", LocalCountBars.Color(7))
}

func TestScale_MonotonicAndTotal(t *testing.T) {
	for _, s := range []*Scale{LocalCount, AveragePrice, PriceBars} {
		prev := -1
		for v := 0.0; v <= 30000; v += 0.5 {
			band := s.Band(v)
			require.GreaterOrEqual(t, band, 0)
			require.Less(t, band, s.Bands())
			require.GreaterOrEqual(t, band, prev, "%s at %v", s.Name(), v)
			prev = band
		}
		assert.Equal(t, s.Bands()-1, prev)
	}
}

func TestScale_NaNAndNegative(t *testing.T) {
	assert.Equal(t, 0, LocalCount.Band(math.NaN()))
	assert.Equal(t, 0, LocalCount.Band(-5))
	assert.Equal(t, "#FFEDA0", LocalCount.Color(math.NaN()))
}

func TestScale_LegendMatchesColor(t *testing.T) {
	for _, s := range []*Scale{LocalCount, AveragePrice, PriceBars, LocalCountBars} {
		legend := s.Legend()
		require.Len(t, legend, s.Bands())
		for i, e := range legend {
			// Any value just above the band's lower bound gets the swatch color.
			v := e.From + 1e-6
			if i == 0 {
				v = e.From
			}
			assert.Equal(t, e.Color, s.Color(v), "%s band %s", s.Name(), e.Label)
			if e.To != nil {
				assert.Equal(t, e.Color, s.Color(*e.To), "%s band %s upper bound", s.Name(), e.Label)
			}
		}
		assert.Nil(t, legend[len(legend)-1].To)
	}
}

func TestScale_LegendLabels(t *testing.T) {
	labels := make([]string, 0, 7)
	for _, e := range LocalCount.Legend() {
		labels = append(labels, e.Label)
	}
	assert.Equal(t, []string{"0-1", "1-5", "5-10", "10-20", "20-50", "50-100", "100+"}, labels)
}

func TestNewScale_Validation(t *testing.T) {
	_, err := NewScale("x", nil, []string{"#000"})
	assert.Error(t, err)
	_, err = NewScale("x", []float64{1, 2}, []string{"a", "b", "c"})
	assert.Error(t, err)
	_, err = NewScale("x", []float64{2, 1}, []string{"a", "b"})
	assert.Error(t, err)
	assert.Panics(t, func() { MustScale("x", []float64{1, 1}, []string{"a", "b", "c"}) })
}

func TestLookupScale(t *testing.T) {
	s, ok := LookupScale("average_price")
	require.True(t, ok)
	assert.Same(t, AveragePrice, s)

	_, ok = LookupScale("rainbow")
	assert.False(t, ok)
	assert.Len(t, ScaleNames(), 4)
}
