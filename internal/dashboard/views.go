package dashboard

import (
	"context"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/barrio-cli/internal/barrio"
	"github.com/sells-group/barrio-cli/internal/chart"
	"github.com/sells-group/barrio-cli/internal/fetch"
	"github.com/sells-group/barrio-cli/internal/locate"
	"github.com/sells-group/barrio-cli/internal/maplayer"
	"github.com/sells-group/barrio-cli/pkg/urbanapi"
)

// CityName selects the city-wide summary where a neighborhood name is expected.
const CityName = "barcelona"

// Distribution fields.
const (
	FieldAge         = "age"
	FieldImmigration = "immigration"
	FieldRooms       = "rooms"
)

// Status is a point-in-time view of the dashboard.
type Status struct {
	Neighborhoods int                        `json:"neighborhoods"`
	EmptyLocals   int                        `json:"empty_locals"`
	InFlight      int                        `json:"in_flight"`
	Maps          map[Variant]maplayer.State `json:"maps"`
	Visible       map[Metric]int             `json:"visible"`
	Filters       urbanapi.Filters           `json:"filters"`
}

// City returns the current city summary.
func (d *Dashboard) City() barrio.City {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.city
}

// Records returns the current neighborhood records.
func (d *Dashboard) Records() []barrio.Neighborhood {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.records)
}

// Status reports counts, map states and chart windows.
func (d *Dashboard) Status() Status {
	d.mu.RLock()
	s := Status{
		Neighborhoods: len(d.records),
		EmptyLocals:   len(d.locals),
		Filters:       d.filters,
		Maps:          make(map[Variant]maplayer.State, len(d.maps)),
		Visible:       make(map[Metric]int, len(d.pagers)),
	}
	d.mu.RUnlock()

	s.InFlight = d.group.InFlight()
	for v, m := range d.maps {
		s.Maps[v] = m.State()
	}
	for k, p := range d.pagers {
		s.Visible[k] = p.Visible()
	}
	return s
}

// Map returns the map of a variant.
func (d *Dashboard) Map(v Variant) (*maplayer.Map, error) {
	m, ok := d.maps[v]
	if !ok {
		return nil, eris.Wrapf(ErrUnknownVariant, "variant %q", v)
	}
	return m, nil
}

// Layers sets the zoom of a variant's map and returns its polygons as GeoJSON.
// zoom <= 0 keeps the current zoom.
func (d *Dashboard) Layers(v Variant, zoom int) (*geojson.FeatureCollection, error) {
	m, err := d.Map(v)
	if err != nil {
		return nil, err
	}
	if zoom > 0 {
		if _, err := m.SetZoom(zoom); err != nil {
			return nil, err
		}
	}
	return m.FeatureCollection(), nil
}

// Legend is the package-level Legend.
func (d *Dashboard) Legend(name string) ([]chart.LegendEntry, error) {
	return Legend(name)
}

// Legend returns the legend of a choropleth variant or a named scale.
func Legend(name string) ([]chart.LegendEntry, error) {
	if s := scaleFor(Variant(name)); s != nil {
		return s.Legend(), nil
	}
	s, ok := chart.LookupScale(name)
	if !ok {
		return nil, eris.Wrapf(ErrUnknownVariant, "scale %q", name)
	}
	return s.Legend(), nil
}

// Neighborhood fetches one neighborhood record and records the visit.
func (d *Dashboard) Neighborhood(ctx context.Context, name string) (barrio.Neighborhood, error) {
	if d.isDisposed() {
		return barrio.Neighborhood{}, ErrDisposed
	}
	if strings.TrimSpace(name) == "" {
		return barrio.Neighborhood{}, ErrNoNeighborhood
	}
	rec, err := fetch.DoVal(ctx, d.group, callKey(keyNeighborhood), func(ctx context.Context) (barrio.Neighborhood, error) {
		return d.client.DemographicsByName(ctx, name)
	})
	if eris.Is(err, urbanapi.ErrNotFound) {
		return barrio.Neighborhood{}, eris.Wrapf(ErrNotFound, "%q", name)
	}
	if err != nil {
		return barrio.Neighborhood{}, eris.Wrapf(err, "dashboard: neighborhood %q", name)
	}
	if d.store != nil {
		if _, err := d.store.RecordView(ctx, rec.Name); err != nil {
			zap.L().Warn("dashboard: record view", zap.String("name", rec.Name), zap.Error(err))
		}
	}
	return rec, nil
}

// AveragePrice returns the average price per m² of the empty locals in one
// neighborhood.
func (d *Dashboard) AveragePrice(ctx context.Context, name string) (urbanapi.NeighborhoodPrice, error) {
	if d.isDisposed() {
		return urbanapi.NeighborhoodPrice{}, ErrDisposed
	}
	if strings.TrimSpace(name) == "" {
		return urbanapi.NeighborhoodPrice{}, ErrNoNeighborhood
	}
	p, err := fetch.DoVal(ctx, d.group, callKey(keyAveragePrice), func(ctx context.Context) (urbanapi.NeighborhoodPrice, error) {
		return d.client.EmptyLocalAveragePrice(ctx, name)
	})
	if eris.Is(err, urbanapi.ErrNotFound) {
		return urbanapi.NeighborhoodPrice{}, eris.Wrapf(ErrNotFound, "%q", name)
	}
	if err != nil {
		return urbanapi.NeighborhoodPrice{}, eris.Wrapf(err, "dashboard: average price of %q", name)
	}
	return p, nil
}

// MapView returns the record of name, or of the last viewed neighborhood
// when name is empty.
func (d *Dashboard) MapView(ctx context.Context, name string) (barrio.Neighborhood, error) {
	if strings.TrimSpace(name) == "" {
		if d.store == nil {
			return barrio.Neighborhood{}, ErrNoNeighborhood
		}
		v, err := d.store.LastViewed(ctx)
		if err != nil {
			return barrio.Neighborhood{}, eris.Wrap(err, "dashboard: last viewed")
		}
		if v == nil {
			return barrio.Neighborhood{}, ErrNoNeighborhood
		}
		name = v.Name
	}
	return d.Neighborhood(ctx, name)
}

// Similar lists neighborhoods with an income close to name's.
func (d *Dashboard) Similar(ctx context.Context, name string) ([]barrio.Neighborhood, error) {
	rec, ok := d.find(name)
	if !ok {
		var err error
		if rec, err = d.Neighborhood(ctx, name); err != nil {
			return nil, err
		}
	}
	if !rec.Income.Valid() {
		return []barrio.Neighborhood{}, nil
	}
	out, err := fetch.DoVal(ctx, d.group, callKey(keySimilar), func(ctx context.Context) ([]barrio.Neighborhood, error) {
		return d.client.SimilarByIncome(ctx, rec.Income.Value)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "dashboard: similar to %q", name)
	}
	return slices.DeleteFunc(out, func(n barrio.Neighborhood) bool {
		return barrio.SameName(n.Name, rec.Name)
	}), nil
}

func (d *Dashboard) find(name string) (barrio.Neighborhood, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return barrio.Find(d.records, name)
}

// Distribution charts one distribution of a neighborhood, or of the whole
// city when name is CityName.
func (d *Dashboard) Distribution(name, field string) (chart.Series, error) {
	var (
		dist  barrio.Distribution
		title string
	)
	if barrio.SameName(name, CityName) {
		city := d.City()
		title = "Barcelona"
		switch field {
		case FieldAge:
			dist = city.AgeDistribution
		case FieldImmigration:
			dist = city.ImmigrationDistribution
		case FieldRooms:
			dist = city.RoomsDistribution
		default:
			return chart.Series{}, eris.Errorf("dashboard: unknown distribution %q", field)
		}
	} else {
		rec, ok := d.find(name)
		if !ok {
			return chart.Series{}, eris.Wrapf(ErrNotFound, "%q", name)
		}
		title = rec.Name
		switch field {
		case FieldAge:
			dist = rec.AgeDistribution
		case FieldImmigration:
			dist = rec.ImmigrationDistribution
		case FieldRooms:
			dist = rec.RoomsDistribution
		default:
			return chart.Series{}, eris.Errorf("dashboard: unknown distribution %q", field)
		}
	}
	return chart.FromDistribution(title, dist, chart.DefaultPalette), nil
}

// MetricChart returns the visible window of a bar chart, highest values
// first. visible > 0 resizes the window before reading it.
func (d *Dashboard) MetricChart(m Metric, visible int) (chart.Series, error) {
	p, ok := d.pagers[m]
	if !ok {
		return chart.Series{}, eris.Wrapf(ErrUnknownVariant, "metric %q", m)
	}
	if visible > 0 {
		p.SetVisible(visible)
	}
	items := chart.Descending(d.metricItems(m))
	return chart.FromItems(m.Title(), chart.Page(items, p.Visible()), m.Scale()), nil
}

func (d *Dashboard) metricItems(m Metric) []chart.Item {
	d.mu.RLock()
	defer d.mu.RUnlock()
	switch m {
	case MetricLocalPrice:
		return localPriceItems(d.locals)
	case MetricAveragePrice:
		return chart.FromMap(d.values[AveragePrice])
	default:
		return chart.FromMap(d.values[LocalCount])
	}
}

// localPriceItems lists the priced locals, labeled by title or address.
func localPriceItems(locals []urbanapi.EmptyLocal) []chart.Item {
	items := make([]chart.Item, 0, len(locals))
	for _, l := range locals {
		if !l.TotalPrice.Valid() {
			continue
		}
		label := l.Title
		if label == "" {
			label = l.Address
		}
		items = append(items, chart.Item{Label: label, Value: l.TotalPrice.Value})
	}
	return items
}

// MoreBars grows a chart window by one step.
func (d *Dashboard) MoreBars(m Metric) (int, error) {
	p, ok := d.pagers[m]
	if !ok {
		return 0, eris.Wrapf(ErrUnknownVariant, "metric %q", m)
	}
	return p.More()
}

// LessBars shrinks a chart window by one step.
func (d *Dashboard) LessBars(m Metric) (int, error) {
	p, ok := d.pagers[m]
	if !ok {
		return 0, eris.Wrapf(ErrUnknownVariant, "metric %q", m)
	}
	return p.Less()
}

// gapKm bounds how far a point between polygons may be from the
// neighborhood it is assigned to.
const gapKm = 0.25

// Locate returns the neighborhood containing a point, or the nearest one
// within gapKm when the point falls between polygons.
func (d *Dashboard) Locate(lat, lng float64) (string, bool) {
	d.mu.RLock()
	ix := d.index
	d.mu.RUnlock()
	if name, ok := ix.Locate(lat, lng); ok {
		return name, true
	}
	return ix.Nearest(lat, lng, gapKm)
}

// Competitors is the restaurant picture around a point.
type Competitors struct {
	Neighborhood  string          `json:"neighborhood,omitempty"`
	Count         int             `json:"count"`
	Cuisines      chart.Series    `json:"cuisines"`
	Types         []chart.Item    `json:"types"`
	Prices        chart.Series    `json:"prices"`
	Ratings       chart.Series    `json:"ratings"`
	Accessibility chart.Series    `json:"accessibility"`
	Nearby        []locate.Nearby `json:"nearby"`
	// Busiest and Quietest rank neighborhoods by nearby restaurant count.
	Busiest  []chart.Item `json:"busiest"`
	Quietest []chart.Item `json:"quietest"`
}

// nearbyRadiusKm bounds the restaurant list around a point.
const nearbyRadiusKm = 1.0

// Competitors fetches the competitor summary and nearby restaurants of a
// point concurrently. top limits the cuisine chart and the restaurant list.
func (d *Dashboard) Competitors(ctx context.Context, lat, lon float64, top int) (Competitors, error) {
	if d.isDisposed() {
		return Competitors{}, ErrDisposed
	}
	if top <= 0 {
		top = d.opts.TopN
	}

	var (
		summary     urbanapi.CompetitorSummary
		restaurants []urbanapi.Restaurant
	)
	err := d.group.Do(ctx, callKey(keyCompetitors), func(ctx context.Context) error {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			summary, err = d.client.Competitors(gctx, lat, lon)
			return err
		})
		g.Go(func() error {
			var err error
			restaurants, err = d.client.NearbyRestaurants(gctx, lat, lon)
			if eris.Is(err, urbanapi.ErrNotFound) {
				restaurants, err = nil, nil
			}
			return err
		})
		return g.Wait()
	})
	if err != nil {
		return Competitors{}, eris.Wrap(err, "dashboard: competitors")
	}

	ratings, err := histogramSeries("Nota", summary.Ratings, "")
	if err != nil {
		return Competitors{}, err
	}
	access, err := histogramSeries("Accesibilidad", summary.Accessibility, chart.DefaultPalette[2])
	if err != nil {
		return Competitors{}, err
	}
	perNeighborhood := chart.CountBy(restaurants, func(r urbanapi.Restaurant) string {
		name, _ := d.Locate(r.Lat, r.Lon)
		return name
	})

	out := Competitors{
		Count:         summary.Count,
		Cuisines:      chart.FromItems("Categoria Cocina", chart.TopN(chart.FromMap(summary.Cuisines), top), nil),
		Types:         chart.CountBy(restaurants, func(r urbanapi.Restaurant) string { return r.Type }),
		Prices:        chart.FromShares("Precio", summary.Prices, chart.DefaultPalette),
		Ratings:       ratings,
		Accessibility: access,
		Nearby:        locate.RankByDistance(lat, lon, restaurants, nearbyRadiusKm, top),
		Busiest:       chart.TopN(perNeighborhood, top),
		Quietest:      chart.BottomN(perNeighborhood, top),
	}
	out.Neighborhood, _ = d.Locate(lat, lon)
	return out, nil
}

func histogramSeries(title string, h urbanapi.Histogram, color string) (chart.Series, error) {
	if h.Empty() {
		return chart.Series{Title: title, Labels: []string{}, Values: []float64{}, Colors: []string{}}, nil
	}
	return chart.FromHistogram(title, h.Values, h.Edges, color)
}

// callKey scopes a fetch key to one call. Lookups that write no shared
// state must not supersede each other across callers.
func callKey(key string) string {
	return key + "/" + uuid.NewString()
}
