package maplayer

import (
	"github.com/sells-group/barrio-cli/internal/barrio"
)

// Viewport and label defaults, matching the Barcelona map views.
const (
	DefaultTooltipZoom = 14
	DefaultMinZoom     = 12
	DefaultMaxZoom     = 19
	DefaultWidth       = 1024
	DefaultHeight      = 768
)

type options struct {
	style       Style
	fill        FillFunc
	label       LabelFunc
	important   map[string]struct{}
	tooltips    bool
	tooltipZoom int
	initialZoom int
	minZoom     int
	maxZoom     int
	width       int
	height      int
	padding     int
	onHover     func(rec *barrio.Neighborhood)
	onSelect    func(rec barrio.Neighborhood)
}

func defaultOptions() options {
	return options{
		style:       DemographicStyle,
		label:       NameLabel,
		important:   map[string]struct{}{},
		tooltips:    true,
		tooltipZoom: DefaultTooltipZoom,
		initialZoom: DefaultMinZoom,
		minZoom:     DefaultMinZoom,
		maxZoom:     DefaultMaxZoom,
		width:       DefaultWidth,
		height:      DefaultHeight,
	}
}

// Option configures a Map.
type Option func(*options)

// WithStyle sets the base polygon style.
func WithStyle(s Style) Option {
	return func(o *options) { o.style = s }
}

// WithFill sets the fill color function. Without it the style's fill color is used.
func WithFill(fn FillFunc) Option {
	return func(o *options) { o.fill = fn }
}

// WithLabel sets the popup/tooltip text function.
func WithLabel(fn LabelFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.label = fn
		}
	}
}

// WithImportant sets the neighborhoods whose labels are always visible.
func WithImportant(names ...string) Option {
	return func(o *options) {
		for _, n := range names {
			o.important[barrio.FoldName(n)] = struct{}{}
		}
	}
}

// WithoutTooltips disables permanent labels; layers only open popups on hover.
func WithoutTooltips() Option {
	return func(o *options) { o.tooltips = false }
}

// WithTooltipZoom sets the zoom from which every label is visible.
func WithTooltipZoom(z int) Option {
	return func(o *options) { o.tooltipZoom = z }
}

// WithZoomRange sets the allowed zoom range. The initial zoom is min.
func WithZoomRange(minZoom, maxZoom int) Option {
	return func(o *options) {
		if minZoom > maxZoom {
			minZoom, maxZoom = maxZoom, minZoom
		}
		o.minZoom, o.maxZoom, o.initialZoom = minZoom, maxZoom, minZoom
	}
}

// WithViewportSize sets the pixel size and padding used to fit bounds.
func WithViewportSize(width, height, padding int) Option {
	return func(o *options) {
		if width > 0 {
			o.width = width
		}
		if height > 0 {
			o.height = height
		}
		if padding >= 0 {
			o.padding = padding
		}
	}
}

// OnHover registers the hover callback. It receives nil when the hover is cleared.
func OnHover(fn func(rec *barrio.Neighborhood)) Option {
	return func(o *options) { o.onHover = fn }
}

// OnSelect registers the click callback.
func OnSelect(fn func(rec barrio.Neighborhood)) Option {
	return func(o *options) { o.onSelect = fn }
}
