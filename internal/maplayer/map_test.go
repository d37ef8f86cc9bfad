package maplayer

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/barrio-cli/internal/barrio"
	"github.com/sells-group/barrio-cli/internal/chart"
	"github.com/sells-group/barrio-cli/internal/projection"
)

// degreeProjector treats (x, y) input as (lng, lat) so tests can use
// geographic squares directly.
type degreeProjector struct {
	fail map[string]bool
}

func (p degreeProjector) NamedRing(name string, ring [][]float64) ([]projection.LatLng, error) {
	if p.fail[name] {
		return nil, errors.New("projection failed")
	}
	out := make([]projection.LatLng, 0, len(ring))
	for _, pt := range ring {
		out = append(out, projection.LatLng{Lat: pt[1], Lng: pt[0]})
	}
	return out, nil
}

func square(name string, lng, lat, size float64) barrio.Neighborhood {
	return barrio.Neighborhood{
		Name:       name,
		Population: barrio.Num(1000),
		Geometry: &barrio.Geometry{Coordinates: [][][]float64{{
			{lng, lat}, {lng + size, lat}, {lng + size, lat + size}, {lng, lat + size}, {lng, lat},
		}}},
	}
}

func fixture() []barrio.Neighborhood {
	return []barrio.Neighborhood{
		square("el Raval", 2.16, 41.37, 0.01),
		square("Gràcia", 2.15, 41.40, 0.01),
		square("Sants", 2.13, 41.37, 0.01),
	}
}

func TestMap_Lifecycle(t *testing.T) {
	m := New(degreeProjector{})
	assert.Equal(t, Uninitialized, m.State())
	assert.NotEmpty(t, m.ID())

	require.NoError(t, m.BeginLoad())
	assert.Equal(t, Loading, m.State())

	n, err := m.Rebuild(fixture())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, Populated, m.State())
	assert.Equal(t, 1, m.Generation())
	assert.Equal(t, 1, m.FitCount())

	// A refetch keeps the map populated while loading.
	require.NoError(t, m.BeginLoad())
	assert.Equal(t, Populated, m.State())
	_, err = m.Rebuild(fixture()[:2])
	require.NoError(t, err)
	assert.Equal(t, 2, m.Generation())
	assert.Equal(t, 2, m.FitCount())
	assert.Len(t, m.Layers(), 2)

	m.Dispose()
	assert.Equal(t, Disposed, m.State())
	assert.Empty(t, m.Layers())
	_, err = m.Rebuild(fixture())
	assert.ErrorIs(t, err, ErrDisposed)
	assert.ErrorIs(t, m.BeginLoad(), ErrDisposed)
	assert.ErrorIs(t, m.Hover("Sants"), ErrDisposed)
	_, err = m.SetZoom(14)
	assert.ErrorIs(t, err, ErrDisposed)
}

func TestMap_FailLeavesLoading(t *testing.T) {
	m := New(degreeProjector{})
	require.NoError(t, m.BeginLoad())

	m.Fail(errors.New("connection refused"))
	assert.Equal(t, Loading, m.State())
	assert.Empty(t, m.Layers())
	assert.EqualError(t, m.Err(), "connection refused")

	_, ok := m.Viewport()
	assert.False(t, ok)

	_, err := m.Rebuild(fixture())
	require.NoError(t, err)
	assert.NoError(t, m.Err())
}

func TestMap_EmptyRebuildKeepsState(t *testing.T) {
	m := New(degreeProjector{})
	require.NoError(t, m.BeginLoad())

	n, err := m.Rebuild(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, Loading, m.State())
	assert.Equal(t, 0, m.FitCount())
}

func TestMap_SkipsBadGeometry(t *testing.T) {
	records := append(fixture(),
		barrio.Neighborhood{Name: "sin geometria"},
		barrio.Neighborhood{Name: "rota", Geometry: &barrio.Geometry{Malformed: true}},
		square("falla", 2.0, 41.0, 0.01),
		barrio.Neighborhood{Name: "dos puntos", Geometry: &barrio.Geometry{Coordinates: [][][]float64{{{2.1, 41.3}, {2.2, 41.3}}}}},
	)
	m := New(degreeProjector{fail: map[string]bool{"falla": true}})

	n, err := m.Rebuild(records)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	_, ok := m.Layer("falla")
	assert.False(t, ok)

	// The failed polygon does not widen the fitted bounds.
	vp, ok := m.Viewport()
	require.True(t, ok)
	assert.InDelta(t, 2.13, vp.SouthWest.Lng, 1e-9)
	assert.InDelta(t, 41.37, vp.SouthWest.Lat, 1e-9)
	assert.InDelta(t, 2.17, vp.NorthEast.Lng, 1e-9)
	assert.InDelta(t, 41.41, vp.NorthEast.Lat, 1e-9)
}

func TestMap_Interactions(t *testing.T) {
	var mu sync.Mutex
	var hovered []string
	var selected []string

	m := New(degreeProjector{},
		OnHover(func(rec *barrio.Neighborhood) {
			mu.Lock()
			defer mu.Unlock()
			if rec == nil {
				hovered = append(hovered, "")
				return
			}
			hovered = append(hovered, rec.Name)
		}),
		OnSelect(func(rec barrio.Neighborhood) {
			mu.Lock()
			defer mu.Unlock()
			selected = append(selected, rec.Name)
		}),
	)
	_, err := m.Rebuild(fixture())
	require.NoError(t, err)

	require.NoError(t, m.Hover("gracia"))
	assert.Equal(t, "Gràcia", m.Hovered())
	l, _ := m.Layer("Gràcia")
	assert.True(t, l.PopupOpen)

	require.NoError(t, m.Hover("Sants"))
	l, _ = m.Layer("Gràcia")
	assert.False(t, l.PopupOpen)

	require.NoError(t, m.Leave("Sants"))
	assert.Equal(t, "", m.Hovered())
	l, _ = m.Layer("Sants")
	assert.False(t, l.PopupOpen)

	rec, err := m.Click("EL RAVAL")
	require.NoError(t, err)
	assert.Equal(t, "el Raval", rec.Name)
	assert.Equal(t, 1000.0, rec.Population.Value)
	assert.Equal(t, "el Raval", m.Selected())

	assert.ErrorIs(t, m.Hover("Atlantis"), ErrUnknownLayer)
	_, err = m.Click("Atlantis")
	assert.ErrorIs(t, err, ErrUnknownLayer)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"Gràcia", "Sants", ""}, hovered)
	assert.Equal(t, []string{"el Raval"}, selected)
}

func TestMap_RebuildDropsVanishedSelection(t *testing.T) {
	var cleared bool
	m := New(degreeProjector{}, OnHover(func(rec *barrio.Neighborhood) {
		if rec == nil {
			cleared = true
		}
	}))
	_, err := m.Rebuild(fixture())
	require.NoError(t, err)
	require.NoError(t, m.Hover("Sants"))
	_, err = m.Click("Sants")
	require.NoError(t, err)

	_, err = m.Rebuild(fixture()[:2])
	require.NoError(t, err)
	assert.Equal(t, "", m.Hovered())
	assert.Equal(t, "", m.Selected())
	assert.True(t, cleared)
}

func TestMap_TooltipTiers(t *testing.T) {
	m := New(degreeProjector{}, WithImportant("El Raval"), WithTooltipZoom(14), WithViewportSize(400, 300, 0))
	_, err := m.Rebuild(fixture())
	require.NoError(t, err)

	_, err = m.SetZoom(12)
	require.NoError(t, err)
	visible := map[string]bool{}
	for _, l := range m.Layers() {
		visible[l.Name] = l.TooltipVisible
	}
	assert.Equal(t, map[string]bool{"el Raval": true, "Gràcia": false, "Sants": false}, visible)

	_, err = m.SetZoom(14)
	require.NoError(t, err)
	for _, l := range m.Layers() {
		assert.True(t, l.TooltipVisible, l.Name)
	}

	z, err := m.SetZoom(40)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxZoom, z)
	z, err = m.SetZoom(1)
	require.NoError(t, err)
	assert.Equal(t, DefaultMinZoom, z)
}

func TestMap_ScaleFill(t *testing.T) {
	fill := ScaleFill(chart.LocalCount, map[string]float64{"EL RAVAL": 120, "sants": 7})
	m := New(degreeProjector{}, WithStyle(ChoroplethStyle), WithFill(fill), WithLabel(func(rec barrio.Neighborhood) string {
		return fmt.Sprintf("%s: %d", rec.Name, 1)
	}))
	_, err := m.Rebuild(fixture())
	require.NoError(t, err)

	colors := map[string]string{}
	for _, l := range m.Layers() {
		colors[l.Name] = l.Style.FillColor
		assert.Equal(t, "purple", l.Style.Color)
		assert.Equal(t, 0.7, l.Style.FillOpacity)
	}
	assert.Equal(t, "#800026", colors["el Raval"])
	assert.Equal(t, "#FD8D3C", colors["Sants"])
	assert.Equal(t, "#FFEDA0", colors["Gràcia"])

	l, _ := m.Layer("Sants")
	assert.Equal(t, "Sants: 1", l.Tooltip)
}

func TestMap_ConstantFill(t *testing.T) {
	m := New(degreeProjector{}, WithFill(ConstantFill("#123456")))
	_, err := m.Rebuild(fixture())
	require.NoError(t, err)
	for _, l := range m.Layers() {
		assert.Equal(t, "#123456", l.Style.FillColor)
	}
}

func TestMap_SetFillRecolors(t *testing.T) {
	m := New(degreeProjector{}, WithStyle(ChoroplethStyle))
	_, err := m.Rebuild(fixture())
	require.NoError(t, err)
	gen := m.Generation()

	require.NoError(t, m.SetFill(ScaleFill(chart.LocalCount, map[string]float64{"Sants": 120})))
	l, _ := m.Layer("Sants")
	assert.Equal(t, "#800026", l.Style.FillColor)
	assert.Equal(t, gen+1, m.Generation())

	// The new fill survives a rebuild.
	_, err = m.Rebuild(fixture())
	require.NoError(t, err)
	l, _ = m.Layer("Sants")
	assert.Equal(t, "#800026", l.Style.FillColor)

	require.NoError(t, m.SetFill(nil))
	l, _ = m.Layer("Sants")
	assert.Equal(t, ChoroplethStyle.FillColor, l.Style.FillColor)

	m.Dispose()
	assert.ErrorIs(t, m.SetFill(nil), ErrDisposed)
}

func TestMap_SetFillRefreshesLabelsWithoutFitting(t *testing.T) {
	values := map[string]float64{}
	m := New(degreeProjector{}, WithStyle(ChoroplethStyle), WithLabel(func(rec barrio.Neighborhood) string {
		if v, ok := values[rec.Name]; ok {
			return fmt.Sprintf("%s: %.0f", rec.Name, v)
		}
		return rec.Name
	}))
	_, err := m.Rebuild(fixture())
	require.NoError(t, err)
	require.Equal(t, 1, m.FitCount())
	vp, _ := m.Viewport()

	values["Sants"] = 7
	require.NoError(t, m.SetFill(ScaleFill(chart.LocalCount, values)))

	l, _ := m.Layer("Sants")
	assert.Equal(t, "Sants: 7", l.Tooltip)
	assert.Equal(t, "#FD8D3C", l.Style.FillColor)
	l, _ = m.Layer("Gràcia")
	assert.Equal(t, "Gràcia", l.Tooltip)

	assert.Equal(t, 1, m.FitCount())
	after, _ := m.Viewport()
	assert.Equal(t, vp, after)
}

func TestMap_LeaveOtherLayerKeepsHover(t *testing.T) {
	var events []string
	m := New(degreeProjector{}, OnHover(func(rec *barrio.Neighborhood) {
		if rec == nil {
			events = append(events, "")
			return
		}
		events = append(events, rec.Name)
	}))
	_, err := m.Rebuild(fixture())
	require.NoError(t, err)

	require.NoError(t, m.Hover("Sants"))
	require.NoError(t, m.Leave("Gràcia"))
	assert.Equal(t, "Sants", m.Hovered())
	assert.Equal(t, []string{"Sants"}, events)

	require.NoError(t, m.Leave("Sants"))
	assert.Equal(t, "", m.Hovered())
	assert.Equal(t, []string{"Sants", ""}, events)
}

func TestMap_WithoutTooltips(t *testing.T) {
	m := New(degreeProjector{}, WithImportant("el Raval"), WithoutTooltips())
	_, err := m.Rebuild(fixture())
	require.NoError(t, err)
	_, err = m.SetZoom(DefaultMaxZoom)
	require.NoError(t, err)
	for _, l := range m.Layers() {
		assert.False(t, l.TooltipVisible, l.Name)
	}
}

func TestMap_RebuildIsAtomic(t *testing.T) {
	setA := make([]barrio.Neighborhood, 0, 3)
	for i := 0; i < 3; i++ {
		setA = append(setA, square(fmt.Sprintf("a%d", i), 2.1+float64(i)*0.01, 41.3, 0.01))
	}
	setB := make([]barrio.Neighborhood, 0, 5)
	for i := 0; i < 5; i++ {
		setB = append(setB, square(fmt.Sprintf("b%d", i), 2.1+float64(i)*0.01, 41.4, 0.01))
	}

	m := New(degreeProjector{})
	_, err := m.Rebuild(setA)
	require.NoError(t, err)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	var mixed int
	var mixedMu sync.Mutex

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				layers := m.Layers()
				prefix := layers[0].Name[:1]
				ok := (prefix == "a" && len(layers) == 3) || (prefix == "b" && len(layers) == 5)
				for _, l := range layers {
					ok = ok && l.Name[:1] == prefix
				}
				if !ok {
					mixedMu.Lock()
					mixed++
					mixedMu.Unlock()
				}
			}
		}()
	}

	for i := 0; i < 200; i++ {
		set := setA
		if i%2 == 0 {
			set = setB
		}
		_, err := m.Rebuild(set)
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()

	assert.Equal(t, 0, mixed)
	assert.Equal(t, 201, m.Generation())
	assert.Equal(t, 201, m.FitCount())
}

func TestMap_FeatureCollection(t *testing.T) {
	m := New(degreeProjector{}, WithImportant("Sants"))
	_, err := m.Rebuild(fixture())
	require.NoError(t, err)
	_, err = m.Click("Gràcia")
	require.NoError(t, err)
	_, err = m.SetZoom(12)
	require.NoError(t, err)

	fc := m.FeatureCollection()
	require.Len(t, fc.Features, 3)
	require.NotNil(t, fc.BBox)
	assert.InDelta(t, 2.13, fc.BBox.Min(0), 1e-9)
	assert.InDelta(t, 41.41, fc.BBox.Max(1), 1e-9)

	data, err := json.Marshal(fc)
	require.NoError(t, err)

	var decoded struct {
		Type     string    `json:"type"`
		BBox     []float64 `json:"bbox"`
		Features []struct {
			ID         string         `json:"id"`
			Properties map[string]any `json:"properties"`
			Geometry   struct {
				Type        string        `json:"type"`
				Coordinates [][][]float64 `json:"coordinates"`
			} `json:"geometry"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "FeatureCollection", decoded.Type)
	assert.Len(t, decoded.BBox, 4)
	for _, f := range decoded.Features {
		assert.Equal(t, "Polygon", f.Geometry.Type)
		assert.Len(t, f.Geometry.Coordinates[0], 5)
		assert.Equal(t, f.ID == "Gràcia", f.Properties["selected"])
		assert.Equal(t, f.ID == "Sants", f.Properties["tooltip_visible"])
	}
}

func TestMap_EmptyFeatureCollection(t *testing.T) {
	m := New(degreeProjector{})
	data, err := json.Marshal(m.FeatureCollection())
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"FeatureCollection","features":[]}`, string(data))
}

func TestMap_WithRealTransformer(t *testing.T) {
	tr, err := projection.New(projection.DefaultZone, projection.DefaultNorthern)
	require.NoError(t, err)
	ct := projection.NewCachedTransformer(tr, projection.NewRingCache())

	rec := barrio.Neighborhood{
		Name: "Sant Antoni",
		Geometry: &barrio.Geometry{Coordinates: [][][]float64{{
			{429000, 4580500}, {430000, 4580500}, {430000, 4581500}, {429000, 4581500}, {429000, 4580500},
		}}},
	}
	m := New(ct)
	_, err = m.Rebuild([]barrio.Neighborhood{rec})
	require.NoError(t, err)
	_, err = m.Rebuild([]barrio.Neighborhood{rec})
	require.NoError(t, err)

	l, ok := m.Layer("Sant Antoni")
	require.True(t, ok)
	assert.InDelta(t, 41.38, l.Ring[0].Lat, 0.02)
	assert.InDelta(t, 2.16, l.Ring[0].Lng, 0.02)
	assert.Equal(t, int64(1), ct.Stats().Hits)
}

func TestFitBounds_Barcelona(t *testing.T) {
	b := geom.NewBounds(geom.XY).Set(2.0691, 41.32, 2.2299, 41.47)

	vp := fitBounds(b, 1024, 768, 0, DefaultMinZoom, DefaultMaxZoom)
	assert.Equal(t, 12, vp.Zoom)
	assert.InDelta(t, 2.1495, vp.Center.Lng, 1e-9)
	assert.InDelta(t, 41.395, vp.Center.Lat, 0.01)

	// A tiny area clamps to the max zoom, a degenerate one too.
	tiny := geom.NewBounds(geom.XY).Set(2.17, 41.38, 2.1701, 41.3801)
	assert.Equal(t, DefaultMaxZoom, fitBounds(tiny, 1024, 768, 0, DefaultMinZoom, DefaultMaxZoom).Zoom)
	point := geom.NewBounds(geom.XY).Set(2.17, 41.38, 2.17, 41.38)
	assert.Equal(t, DefaultMaxZoom, fitBounds(point, 1024, 768, 0, DefaultMinZoom, DefaultMaxZoom).Zoom)

	// Padding larger than the viewport falls back to the min zoom.
	assert.Equal(t, DefaultMinZoom, fitBounds(b, 100, 100, 60, DefaultMinZoom, DefaultMaxZoom).Zoom)
}
