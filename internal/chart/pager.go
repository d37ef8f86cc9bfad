package chart

import (
	"sync"

	"github.com/rotisserie/eris"
	"github.com/samber/lo"
)

// Pager boundary errors. The visible count is unchanged when one is returned.
var (
	ErrAtMaximum = eris.New("chart: already showing every item")
	ErrAtMinimum = eris.New("chart: already showing the minimum number of items")
)

// Pager defaults.
const (
	DefaultVisible = 20
	DefaultStep    = 10
	DefaultMin     = 10
)

// PagerConfig tunes a Pager. Zero fields take the defaults.
type PagerConfig struct {
	Visible int `yaml:"visible" mapstructure:"visible"`
	Step    int `yaml:"step" mapstructure:"step"`
	Min     int `yaml:"min" mapstructure:"min"`
}

func (c PagerConfig) withDefaults() PagerConfig {
	if c.Visible <= 0 {
		c.Visible = DefaultVisible
	}
	if c.Step <= 0 {
		c.Step = DefaultStep
	}
	if c.Min <= 0 {
		c.Min = DefaultMin
	}
	return c
}

// Pager tracks how many categories of a bar chart are visible. The count
// stays within [min, total]; when total is below min every item is visible.
type Pager struct {
	mu      sync.Mutex
	cfg     PagerConfig
	total   int
	visible int
	want    int // last requested count, re-clamped when total changes
}

// NewPager creates a Pager over total items.
func NewPager(total int, cfg PagerConfig) *Pager {
	p := &Pager{cfg: cfg.withDefaults()}
	p.total = max(total, 0)
	p.want = p.cfg.Visible
	p.visible = p.clamp(p.want)
	return p
}

// Visible returns the current visible count.
func (p *Pager) Visible() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible
}

// Total returns the number of items being paged.
func (p *Pager) Total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}

// SetTotal changes the item count and re-clamps the visible count.
func (p *Pager) SetTotal(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = max(total, 0)
	p.visible = p.clamp(p.want)
}

// SetVisible requests an explicit visible count, clamped to the valid range.
func (p *Pager) SetVisible(n int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.want = n
	p.visible = p.clamp(n)
	return p.visible
}

// More shows one more step of items.
func (p *Pager) More() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.visible >= p.total {
		return p.visible, ErrAtMaximum
	}
	p.visible = p.clamp(p.visible + p.cfg.Step)
	p.want = p.visible
	return p.visible, nil
}

// Less shows one step fewer items.
func (p *Pager) Less() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.visible <= p.floor() {
		return p.visible, ErrAtMinimum
	}
	p.visible = p.clamp(p.visible - p.cfg.Step)
	p.want = p.visible
	return p.visible, nil
}

func (p *Pager) floor() int {
	return min(p.cfg.Min, p.total)
}

func (p *Pager) clamp(n int) int {
	return lo.Clamp(n, p.floor(), p.total)
}

// Page returns the first visible items of a slice.
func Page[T any](items []T, visible int) []T {
	if visible < 0 {
		visible = 0
	}
	if visible > len(items) {
		visible = len(items)
	}
	return items[:visible]
}
