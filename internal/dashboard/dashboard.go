// Package dashboard keeps the neighborhood data, map instances and chart
// windows of one Barcelona dashboard session in sync with the backend.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/barrio-cli/internal/barrio"
	"github.com/sells-group/barrio-cli/internal/chart"
	"github.com/sells-group/barrio-cli/internal/fetch"
	"github.com/sells-group/barrio-cli/internal/locate"
	"github.com/sells-group/barrio-cli/internal/maplayer"
	"github.com/sells-group/barrio-cli/internal/projection"
	"github.com/sells-group/barrio-cli/internal/source"
	"github.com/sells-group/barrio-cli/internal/store"
	"github.com/sells-group/barrio-cli/pkg/urbanapi"
)

// Fetch keys. A newer fetch under the same key supersedes the older one;
// single-neighborhood lookups are scoped per call with callKey.
const (
	keyNeighborhoods = "neighborhoods"
	keyLocalCounts   = "local_counts"
	keyAveragePrices = "average_prices"
	keyEmptyLocals   = "empty_locals"
	keyNeighborhood  = "neighborhood"
	keyCompetitors   = "competitors"
	keySimilar       = "similar"
	keyAveragePrice  = "average_price"
)

var (
	// ErrDisposed is returned after Dispose.
	ErrDisposed = eris.New("dashboard: disposed")
	// ErrNoNeighborhood is returned when a view needs a neighborhood and none was chosen.
	ErrNoNeighborhood = eris.New("dashboard: select a neighborhood first")
	// ErrNotFound is returned for unknown neighborhoods.
	ErrNotFound = eris.New("dashboard: neighborhood not found")
)

// Options configures a Dashboard.
type Options struct {
	// Maps are applied to every map variant.
	Maps        []maplayer.Option
	Pager       chart.PagerConfig
	Policy      barrio.MalformedPolicy
	TopN        int
	Boundaries  []source.Boundary
	SnapshotTTL time.Duration
}

// Dashboard is safe for concurrent use.
type Dashboard struct {
	client urbanapi.Client
	store  store.Store
	group  *fetch.Group
	agg    *barrio.Aggregator
	opts   Options

	maps   map[Variant]*maplayer.Map
	pagers map[Metric]*chart.Pager

	// apply serializes map rebuilds.
	apply sync.Mutex

	mu       sync.RWMutex
	filters  urbanapi.Filters
	records  []barrio.Neighborhood
	city     barrio.City
	values   map[Variant]map[string]float64
	locals   []urbanapi.EmptyLocal
	index    *locate.Index
	disposed bool
}

// New creates a Dashboard. st may be nil, in which case nothing is persisted.
func New(client urbanapi.Client, projector maplayer.Projector, st store.Store, opts Options) *Dashboard {
	if opts.Policy == "" {
		opts.Policy = barrio.PolicyZero
	}
	if opts.TopN <= 0 {
		opts.TopN = 10
	}
	d := &Dashboard{
		client: client,
		store:  st,
		group:  fetch.NewGroup(),
		agg:    barrio.NewAggregator(opts.Policy),
		opts:   opts,
		pagers: make(map[Metric]*chart.Pager),
		values: make(map[Variant]map[string]float64),
		city:   barrio.Aggregate(nil),
		index:  locate.NewIndex(nil),
	}
	for _, m := range Metrics() {
		d.pagers[m] = chart.NewPager(0, opts.Pager)
	}

	d.maps = map[Variant]*maplayer.Map{
		Demographic: maplayer.New(projector, append(append([]maplayer.Option{
			maplayer.WithStyle(maplayer.DemographicStyle),
		}, opts.Maps...), maplayer.WithoutTooltips())...),
		LocalCount: maplayer.New(projector, append([]maplayer.Option{
			maplayer.WithStyle(maplayer.ChoroplethStyle),
			maplayer.WithFill(maplayer.ScaleFill(chart.LocalCount, nil)),
			maplayer.WithLabel(d.metricLabel(LocalCount, "%s: %.0f locales vacíos")),
		}, opts.Maps...)...),
		AveragePrice: maplayer.New(projector, append([]maplayer.Option{
			maplayer.WithStyle(maplayer.ChoroplethStyle),
			maplayer.WithFill(maplayer.ScaleFill(chart.AveragePrice, nil)),
			maplayer.WithLabel(d.metricLabel(AveragePrice, "%s: %.2f €/m²")),
		}, opts.Maps...)...),
	}
	return d
}

// metricLabel renders a tooltip from the current metric values.
func (d *Dashboard) metricLabel(v Variant, format string) maplayer.LabelFunc {
	return func(rec barrio.Neighborhood) string {
		d.mu.RLock()
		vals := d.values[v]
		d.mu.RUnlock()
		for name, val := range vals {
			if barrio.SameName(name, rec.Name) {
				return fmt.Sprintf(format, rec.Name, val)
			}
		}
		return rec.Name
	}
}

// Refresh fetches neighborhoods, empty-local counts, average prices and
// listings in parallel. Each result is applied as soon as it arrives, so a
// failing fetch leaves the others in place. The first error is returned.
func (d *Dashboard) Refresh(ctx context.Context) error {
	if d.isDisposed() {
		return ErrDisposed
	}
	for _, m := range d.maps {
		_ = m.BeginLoad()
	}

	var g errgroup.Group
	g.Go(func() error { return d.loadNeighborhoods(ctx) })
	g.Go(func() error { return d.loadLocalCounts(ctx) })
	g.Go(func() error { return d.loadAveragePrices(ctx) })
	g.Go(func() error { return d.loadEmptyLocals(ctx) })
	return g.Wait()
}

// SetFilters changes the demographic filters and refetches neighborhoods.
// A fetch for older filters still in flight is superseded.
func (d *Dashboard) SetFilters(ctx context.Context, f urbanapi.Filters) error {
	if d.isDisposed() {
		return ErrDisposed
	}
	d.mu.Lock()
	d.filters = f
	d.mu.Unlock()
	return d.loadNeighborhoods(ctx)
}

// loadNeighborhoods reads the filters after registering its fetch, so a
// concurrent SetFilters either supersedes it or is seen by it. Finishing
// under the apply lock keeps results in the order their requests started.
func (d *Dashboard) loadNeighborhoods(ctx context.Context) error {
	fctx, h := d.group.Start(ctx, keyNeighborhoods)
	d.mu.RLock()
	f := d.filters
	d.mu.RUnlock()

	records, err := d.client.Demographics(fctx, f)
	if err == nil {
		records = d.withGeometry(fctx, records)
	}

	d.apply.Lock()
	defer d.apply.Unlock()
	if ferr := d.group.Finish(h); ferr != nil {
		return nil
	}
	if err != nil {
		if cached, ok := loadSnapshot[[]barrio.Neighborhood](ctx, d, f.Key()); ok && d.recordCount() == 0 {
			zap.L().Warn("dashboard: using cached neighborhoods", zap.Error(err))
			d.applyNeighborhoodsLocked(cached)
			return nil
		}
		for _, m := range d.maps {
			m.Fail(err)
		}
		return eris.Wrap(err, "dashboard: load neighborhoods")
	}
	d.saveSnapshot(ctx, f.Key(), records)
	d.applyNeighborhoodsLocked(records)
	return nil
}

// withGeometry fills in missing polygons from the offline boundaries and
// then from the backend's geometry listing. A failed listing only logs.
func (d *Dashboard) withGeometry(ctx context.Context, records []barrio.Neighborhood) []barrio.Neighborhood {
	if source.Missing(records) == 0 {
		return records
	}
	records = slices.Clone(records)
	if len(d.opts.Boundaries) > 0 {
		source.Attach(records, d.opts.Boundaries)
		if source.Missing(records) == 0 {
			return records
		}
	}
	shapes, err := d.client.Neighborhoods(ctx)
	if err != nil {
		zap.L().Warn("dashboard: neighborhood geometry unavailable", zap.Error(err))
		return records
	}
	n := source.Attach(records, source.FromRecords(shapes))
	zap.L().Debug("dashboard: attached backend geometry", zap.Int("records", n))
	return records
}

// applyNeighborhoodsLocked aggregates records and rebuilds every map.
// d.apply must be held.
func (d *Dashboard) applyNeighborhoodsLocked(records []barrio.Neighborhood) {
	if len(d.opts.Boundaries) > 0 {
		if n := source.Attach(records, d.opts.Boundaries); n > 0 {
			zap.L().Info("dashboard: attached offline boundaries", zap.Int("records", n))
		}
	}
	city := d.agg.Aggregate(records)

	d.mu.Lock()
	if d.disposed {
		d.mu.Unlock()
		return
	}
	d.records = records
	d.city = city
	d.mu.Unlock()

	for v, m := range d.maps {
		if _, err := m.Rebuild(records); err != nil {
			zap.L().Warn("dashboard: rebuild map", zap.String("variant", string(v)), zap.Error(err))
		}
	}
	d.reindex()
}

// reindex rebuilds the point lookup from the demographic map's projected rings.
func (d *Dashboard) reindex() {
	layers := d.maps[Demographic].Layers()
	rings := make(map[string][]projection.LatLng, len(layers))
	for _, l := range layers {
		rings[l.Name] = l.Ring
	}
	ix := locate.NewIndex(rings)

	d.mu.Lock()
	d.index = ix
	d.mu.Unlock()
}

func (d *Dashboard) loadLocalCounts(ctx context.Context) error {
	counts, err := fetch.DoVal(ctx, d.group, keyLocalCounts, d.client.EmptyLocalCounts)
	if eris.Is(err, fetch.ErrSuperseded) || eris.Is(err, fetch.ErrCanceled) {
		return nil
	}
	if err != nil {
		cached, ok := loadSnapshot[[]urbanapi.NeighborhoodCount](ctx, d, keyLocalCounts)
		if !ok {
			return eris.Wrap(err, "dashboard: load local counts")
		}
		zap.L().Warn("dashboard: using cached local counts", zap.Error(err))
		counts = cached
	} else {
		d.saveSnapshot(ctx, keyLocalCounts, counts)
	}

	values := make(map[string]float64, len(counts))
	for _, c := range counts {
		values[c.Neighborhood] = float64(c.Count)
	}
	d.applyValues(LocalCount, chart.LocalCount, values)
	return nil
}

func (d *Dashboard) loadAveragePrices(ctx context.Context) error {
	prices, err := fetch.DoVal(ctx, d.group, keyAveragePrices, d.client.EmptyLocalAveragePrices)
	if eris.Is(err, fetch.ErrSuperseded) || eris.Is(err, fetch.ErrCanceled) {
		return nil
	}
	if err != nil {
		cached, ok := loadSnapshot[[]urbanapi.NeighborhoodPrice](ctx, d, keyAveragePrices)
		if !ok {
			return eris.Wrap(err, "dashboard: load average prices")
		}
		zap.L().Warn("dashboard: using cached average prices", zap.Error(err))
		prices = cached
	} else {
		d.saveSnapshot(ctx, keyAveragePrices, prices)
	}

	values := make(map[string]float64, len(prices))
	for _, p := range prices {
		if p.AveragePrice.Valid() {
			values[p.Neighborhood] = p.AveragePrice.Value
		}
	}
	d.applyValues(AveragePrice, chart.AveragePrice, values)
	return nil
}

// applyValues stores metric values and restyles the variant's map in
// place. The viewport is fitted by neighborhood rebuilds only.
func (d *Dashboard) applyValues(v Variant, scale *chart.Scale, values map[string]float64) {
	d.apply.Lock()
	defer d.apply.Unlock()

	d.mu.Lock()
	if d.disposed {
		d.mu.Unlock()
		return
	}
	d.values[v] = values
	d.mu.Unlock()

	d.pagers[metricFor(v)].SetTotal(len(values))

	if err := d.maps[v].SetFill(maplayer.ScaleFill(scale, values)); err != nil {
		zap.L().Debug("dashboard: restyle map", zap.String("variant", string(v)), zap.Error(err))
	}
}

func (d *Dashboard) loadEmptyLocals(ctx context.Context) error {
	locals, err := fetch.DoVal(ctx, d.group, keyEmptyLocals, d.client.EmptyLocals)
	if eris.Is(err, fetch.ErrSuperseded) || eris.Is(err, fetch.ErrCanceled) {
		return nil
	}
	if err != nil {
		return eris.Wrap(err, "dashboard: load empty locals")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.disposed {
		return nil
	}
	d.locals = locals
	d.pagers[MetricLocalPrice].SetTotal(len(localPriceItems(locals)))
	return nil
}

func (d *Dashboard) saveSnapshot(ctx context.Context, key string, v any) {
	if d.store == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		zap.L().Warn("dashboard: marshal snapshot", zap.String("key", key), zap.Error(err))
		return
	}
	if err := d.store.SetSnapshot(ctx, key, data, d.opts.SnapshotTTL); err != nil {
		zap.L().Warn("dashboard: save snapshot", zap.String("key", key), zap.Error(err))
	}
}

func loadSnapshot[T any](ctx context.Context, d *Dashboard, key string) (T, bool) {
	var out T
	if d.store == nil {
		return out, false
	}
	data, err := d.store.GetSnapshot(context.WithoutCancel(ctx), key)
	if err != nil || data == nil {
		return out, false
	}
	if err := json.Unmarshal(data, &out); err != nil {
		zap.L().Warn("dashboard: decode snapshot", zap.String("key", key), zap.Error(err))
		return out, false
	}
	return out, true
}

func (d *Dashboard) recordCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.records)
}

func (d *Dashboard) isDisposed() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.disposed
}

// Dispose cancels in-flight fetches and disposes every map.
func (d *Dashboard) Dispose() {
	d.mu.Lock()
	if d.disposed {
		d.mu.Unlock()
		return
	}
	d.disposed = true
	d.mu.Unlock()

	d.group.CancelAll()
	for _, m := range d.maps {
		m.Dispose()
	}
}
