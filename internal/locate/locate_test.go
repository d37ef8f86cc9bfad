package locate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/barrio-cli/internal/barrio"
	"github.com/sells-group/barrio-cli/internal/projection"
	"github.com/sells-group/barrio-cli/pkg/urbanapi"
)

func square(lat, lng, side float64) []projection.LatLng {
	return []projection.LatLng{
		{Lat: lat, Lng: lng},
		{Lat: lat, Lng: lng + side},
		{Lat: lat + side, Lng: lng + side},
		{Lat: lat + side, Lng: lng},
		{Lat: lat, Lng: lng},
	}
}

func testIndex() *Index {
	return NewIndex(map[string][]projection.LatLng{
		"Sants":  square(41.37, 2.12, 0.01),
		"Gràcia": square(41.40, 2.15, 0.01),
		// Open triangle, closed by the index.
		"El Raval": {{Lat: 41.37, Lng: 2.16}, {Lat: 41.37, Lng: 2.18}, {Lat: 41.39, Lng: 2.17}},
		"broken":   {{Lat: 41.0, Lng: 2.0}},
	})
}

func TestIndex_Locate(t *testing.T) {
	ix := testIndex()
	assert.Equal(t, 3, ix.Len())

	name, ok := ix.Locate(41.375, 2.125)
	require.True(t, ok)
	assert.Equal(t, "Sants", name)

	name, ok = ix.Locate(41.405, 2.155)
	require.True(t, ok)
	assert.Equal(t, "Gràcia", name)

	name, ok = ix.Locate(41.375, 2.17)
	require.True(t, ok)
	assert.Equal(t, "El Raval", name)
}

func TestIndex_LocateInsideBoundsOutsideRing(t *testing.T) {
	ix := testIndex()
	// Inside the triangle's bounding box but outside the triangle.
	_, ok := ix.Locate(41.388, 2.161)
	assert.False(t, ok)
}

func TestIndex_Nearest(t *testing.T) {
	ix := testIndex()
	_, ok := ix.Locate(41.36, 2.125)
	assert.False(t, ok)

	// About 1.1 km south of Sants.
	name, ok := ix.Nearest(41.36, 2.125, 2)
	require.True(t, ok)
	assert.Equal(t, "Sants", name)

	_, ok = ix.Nearest(41.36, 2.125, 0.5)
	assert.False(t, ok)

	name, ok = ix.Nearest(0, 0, 0)
	require.True(t, ok)
	assert.NotEmpty(t, name)

	_, ok = NewIndex(nil).Nearest(41.36, 2.125, 0)
	assert.False(t, ok)
}

func TestRankByDistance(t *testing.T) {
	rs := []urbanapi.Restaurant{
		{Name: "far", Lat: 41.50, Lon: 2.17},
		{Name: "b-near", Lat: 41.381, Lon: 2.17},
		{Name: "a-near", Lat: 41.381, Lon: 2.17},
		{Name: "mid", Lat: 41.39, Lon: 2.17, Rating: barrio.Num(4)},
	}

	got := RankByDistance(41.38, 2.17, rs, 5, 0)
	require.Len(t, got, 3)
	assert.Equal(t, "a-near", got[0].Name)
	assert.Equal(t, "b-near", got[1].Name)
	assert.Equal(t, "mid", got[2].Name)
	assert.InDelta(t, 1.11, got[2].DistanceKm, 0.01)

	got = RankByDistance(41.38, 2.17, rs, 0, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "a-near", got[0].Name)
}
