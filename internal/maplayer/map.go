// Package maplayer builds interactive neighborhood polygon layers and owns
// the viewport and interaction state of one map instance.
package maplayer

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/barrio-cli/internal/barrio"
	"github.com/sells-group/barrio-cli/internal/projection"
)

// State is the lifecycle state of a Map.
type State int

// Map lifecycle states.
const (
	Uninitialized State = iota
	Loading
	Populated
	Disposed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Loading:
		return "loading"
	case Populated:
		return "populated"
	case Disposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

var (
	// ErrDisposed is returned by every operation on a disposed Map.
	ErrDisposed = eris.New("maplayer: map disposed")
	// ErrUnknownLayer is returned when an interaction names no current layer.
	ErrUnknownLayer = eris.New("maplayer: unknown layer")
)

// Projector turns a named projected ring into geographic coordinates.
// *projection.CachedTransformer satisfies it.
type Projector interface {
	NamedRing(name string, ring [][]float64) ([]projection.LatLng, error)
}

// Layer is one rendered neighborhood polygon.
type Layer struct {
	Name           string
	Ring           []projection.LatLng
	Polygon        *geom.Polygon
	Bounds         *geom.Bounds
	Style          Style
	Tooltip        string
	TooltipVisible bool
	PopupOpen      bool
	Record         barrio.Neighborhood
}

// Map owns the polygon layers, interaction state and viewport of one map.
// It is safe for concurrent use. Callbacks run without the lock held.
type Map struct {
	mu         sync.RWMutex
	id         string
	opts       options
	projector  Projector
	state      State
	generation int
	layers     []*Layer
	index      map[string]*Layer
	hovered    string
	selected   string
	zoom       int
	viewport   *Viewport
	fits       int
	lastErr    error
}

// New creates an uninitialized Map.
func New(projector Projector, opts ...Option) *Map {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	return &Map{
		id:        uuid.NewString(),
		opts:      o,
		projector: projector,
		state:     Uninitialized,
		index:     make(map[string]*Layer),
		zoom:      o.initialZoom,
	}
}

// ID returns the unique id of this map instance.
func (m *Map) ID() string { return m.id }

// BeginLoad marks the start of a neighborhood fetch. A populated map keeps
// showing its layers until the next Rebuild.
func (m *Map) BeginLoad() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case Disposed:
		return ErrDisposed
	case Uninitialized:
		m.state = Loading
	}
	return nil
}

// Rebuild replaces every layer with one polygon per record that has
// geometry, then fits the viewport to the union of their bounds once.
// Records whose geometry is missing or fails to project are skipped with a
// warning. An empty record list leaves the map unchanged.
func (m *Map) Rebuild(records []barrio.Neighborhood) (int, error) {
	m.mu.RLock()
	state, fill := m.state, m.opts.fill
	m.mu.RUnlock()
	if state == Disposed {
		return 0, ErrDisposed
	}
	if len(records) == 0 {
		zap.L().Warn("maplayer: rebuild with no records", zap.String("map", m.id))
		return 0, nil
	}

	layers, union := m.build(records, fill)

	hover, cleared, err := m.swap(layers, union)
	if err != nil {
		return 0, err
	}

	// The hovered neighborhood may carry new data after a refresh.
	if m.opts.onHover != nil {
		if hover != nil {
			m.opts.onHover(hover)
		} else if cleared {
			m.opts.onHover(nil)
		}
	}

	zap.L().Debug("maplayer: rebuilt",
		zap.String("map", m.id),
		zap.Int("records", len(records)),
		zap.Int("layers", len(layers)),
	)
	return len(layers), nil
}

// swap clears every layer and adds the new ones under a single lock, so
// readers never observe a mix of old and new polygons.
func (m *Map) swap(layers []*Layer, union *geom.Bounds) (hover *barrio.Neighborhood, cleared bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Disposed {
		return nil, false, ErrDisposed
	}

	m.layers = layers
	m.index = make(map[string]*Layer, len(layers))
	for _, l := range layers {
		m.index[barrio.FoldName(l.Name)] = l
	}

	if m.hovered != "" {
		if l, ok := m.index[barrio.FoldName(m.hovered)]; ok {
			l.PopupOpen = true
			rec := l.Record
			hover = &rec
		} else {
			m.hovered = ""
			cleared = true
		}
	}
	if m.selected != "" {
		if _, ok := m.index[barrio.FoldName(m.selected)]; !ok {
			m.selected = ""
		}
	}

	if !union.IsEmpty() {
		vp := fitBounds(union, m.opts.width, m.opts.height, m.opts.padding, m.opts.minZoom, m.opts.maxZoom)
		m.viewport = &vp
		m.zoom = vp.Zoom
		m.fits++
	}
	m.applyTooltipsLocked()

	m.generation++
	m.state = Populated
	m.lastErr = nil
	return hover, cleared, nil
}

func (m *Map) build(records []barrio.Neighborhood, fill FillFunc) ([]*Layer, *geom.Bounds) {
	union := geom.NewBounds(geom.XY)
	layers := make([]*Layer, 0, len(records))

	for _, rec := range records {
		if !rec.HasGeometry() {
			zap.L().Warn("maplayer: neighborhood has no valid geometry", zap.String("neighborhood", rec.Name))
			continue
		}
		ring, err := m.projector.NamedRing(rec.Name, rec.Ring())
		if err != nil {
			zap.L().Warn("maplayer: skipping neighborhood", zap.String("neighborhood", rec.Name), zap.Error(err))
			continue
		}
		poly, err := projection.Polygon(ring)
		if err != nil {
			zap.L().Warn("maplayer: skipping neighborhood", zap.String("neighborhood", rec.Name), zap.Error(err))
			continue
		}

		style := m.opts.style
		if fill != nil {
			style.FillColor = fill(rec)
		}
		layers = append(layers, &Layer{
			Name:    rec.Name,
			Ring:    ring,
			Polygon: poly,
			Bounds:  geom.NewBounds(geom.XY).Extend(poly),
			Style:   style,
			Tooltip: m.opts.label(rec),
			Record:  rec,
		})
		union.Extend(poly)
	}
	return layers, union
}

// SetFill replaces the fill function and restyles the current layers in
// place: fill colors and tooltip text are recomputed, the viewport is left
// alone. Later rebuilds use the new function.
func (m *Map) SetFill(fn FillFunc) error {
	m.mu.Lock()
	if m.state == Disposed {
		m.mu.Unlock()
		return ErrDisposed
	}
	m.opts.fill = fn
	layers := m.layers
	label := m.opts.label
	m.mu.Unlock()

	// Labels may read caller state, so they are computed without the lock.
	type restyle struct {
		fill    string
		tooltip string
	}
	next := make(map[*Layer]restyle, len(layers))
	for _, l := range layers {
		r := restyle{fill: m.opts.style.FillColor, tooltip: label(l.Record)}
		if fn != nil {
			r.fill = fn(l.Record)
		}
		next[l] = r
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Disposed {
		return ErrDisposed
	}
	changed := false
	for _, l := range m.layers {
		r, ok := next[l]
		if !ok {
			// Rebuilt meanwhile; the rebuild already used fn.
			continue
		}
		l.Style.FillColor = r.fill
		l.Tooltip = r.tooltip
		changed = true
	}
	if changed {
		m.generation++
	}
	return nil
}

// Fail records a fetch failure. The map keeps its current state and
// layers: a map that never loaded stays Loading with no polygons.
func (m *Map) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Disposed {
		return
	}
	m.lastErr = err
	zap.L().Error("maplayer: neighborhood fetch failed",
		zap.String("map", m.id),
		zap.String("state", m.state.String()),
		zap.Error(err),
	)
}

// Dispose releases all layers. Every later call returns ErrDisposed or is a no-op.
func (m *Map) Dispose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = Disposed
	m.layers = nil
	m.index = map[string]*Layer{}
	m.hovered = ""
	m.selected = ""
	m.viewport = nil
}

// Hover opens the popup of the named neighborhood and notifies the hover callback.
func (m *Map) Hover(name string) error {
	m.mu.Lock()
	if m.state == Disposed {
		m.mu.Unlock()
		return ErrDisposed
	}
	l, ok := m.index[barrio.FoldName(name)]
	if !ok {
		m.mu.Unlock()
		return eris.Wrapf(ErrUnknownLayer, "maplayer: hover %q", name)
	}
	for _, other := range m.layers {
		other.PopupOpen = false
	}
	l.PopupOpen = true
	m.hovered = l.Name
	rec := l.Record
	m.mu.Unlock()

	if m.opts.onHover != nil {
		m.opts.onHover(&rec)
	}
	return nil
}

// Leave closes the popup of the named neighborhood. The hover callback
// receives nil only when that neighborhood was the hovered one.
func (m *Map) Leave(name string) error {
	m.mu.Lock()
	if m.state == Disposed {
		m.mu.Unlock()
		return ErrDisposed
	}
	l, ok := m.index[barrio.FoldName(name)]
	if !ok {
		m.mu.Unlock()
		return eris.Wrapf(ErrUnknownLayer, "maplayer: leave %q", name)
	}
	l.PopupOpen = false
	cleared := m.hovered != "" && barrio.SameName(m.hovered, l.Name)
	if cleared {
		m.hovered = ""
	}
	m.mu.Unlock()

	if cleared && m.opts.onHover != nil {
		m.opts.onHover(nil)
	}
	return nil
}

// Click selects the named neighborhood and notifies the select callback
// with the full record.
func (m *Map) Click(name string) (barrio.Neighborhood, error) {
	m.mu.Lock()
	if m.state == Disposed {
		m.mu.Unlock()
		return barrio.Neighborhood{}, ErrDisposed
	}
	l, ok := m.index[barrio.FoldName(name)]
	if !ok {
		m.mu.Unlock()
		return barrio.Neighborhood{}, eris.Wrapf(ErrUnknownLayer, "maplayer: click %q", name)
	}
	m.selected = l.Name
	rec := l.Record
	m.mu.Unlock()

	if m.opts.onSelect != nil {
		m.opts.onSelect(rec)
	}
	return rec, nil
}

// SetZoom updates the zoom level, clamped to the configured range, and
// re-evaluates tooltip visibility.
func (m *Map) SetZoom(zoom int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Disposed {
		return 0, ErrDisposed
	}
	m.zoom = max(m.opts.minZoom, min(m.opts.maxZoom, zoom))
	m.applyTooltipsLocked()
	return m.zoom, nil
}

func (m *Map) applyTooltipsLocked() {
	for _, l := range m.layers {
		l.TooltipVisible = m.tooltipVisible(l.Name, m.zoom)
	}
}

// tooltipVisible implements the two-tier label policy: important
// neighborhoods always show, the rest once zoom reaches the threshold.
func (m *Map) tooltipVisible(name string, zoom int) bool {
	if !m.opts.tooltips {
		return false
	}
	if zoom >= m.opts.tooltipZoom {
		return true
	}
	_, important := m.opts.important[barrio.FoldName(name)]
	return important
}

// Layers returns a snapshot of the current layers.
func (m *Map) Layers() []Layer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Layer, len(m.layers))
	for i, l := range m.layers {
		out[i] = *l
	}
	return out
}

// Layer returns a snapshot of one layer by name.
func (m *Map) Layer(name string) (Layer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.index[barrio.FoldName(name)]
	if !ok {
		return Layer{}, false
	}
	return *l, true
}

// State returns the lifecycle state.
func (m *Map) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Generation counts successful rebuilds.
func (m *Map) Generation() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generation
}

// FitCount counts viewport fits. It advances by at most one per Rebuild.
func (m *Map) FitCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fits
}

// Zoom returns the current zoom level.
func (m *Map) Zoom() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.zoom
}

// Hovered returns the hovered neighborhood name, or "".
func (m *Map) Hovered() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hovered
}

// Selected returns the selected neighborhood name, or "".
func (m *Map) Selected() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.selected
}

// Err returns the last recorded fetch failure, cleared by a successful Rebuild.
func (m *Map) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// Viewport returns the last fitted viewport with the current zoom.
func (m *Map) Viewport() (Viewport, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.viewport == nil {
		return Viewport{}, false
	}
	vp := *m.viewport
	vp.Zoom = m.zoom
	return vp, true
}
