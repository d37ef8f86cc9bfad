package chart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPager_Defaults(t *testing.T) {
	p := NewPager(73, PagerConfig{})
	assert.Equal(t, 20, p.Visible())
	assert.Equal(t, 73, p.Total())
}

func TestPager_MoreUntilMaximum(t *testing.T) {
	p := NewPager(45, PagerConfig{})

	got, err := p.More()
	require.NoError(t, err)
	assert.Equal(t, 30, got)

	got, err = p.More()
	require.NoError(t, err)
	assert.Equal(t, 40, got)

	// Clamped to the total.
	got, err = p.More()
	require.NoError(t, err)
	assert.Equal(t, 45, got)

	got, err = p.More()
	assert.ErrorIs(t, err, ErrAtMaximum)
	assert.Equal(t, 45, got)
	assert.Equal(t, 45, p.Visible())
}

func TestPager_LessUntilMinimum(t *testing.T) {
	p := NewPager(73, PagerConfig{})

	got, err := p.Less()
	require.NoError(t, err)
	assert.Equal(t, 10, got)

	got, err = p.Less()
	assert.ErrorIs(t, err, ErrAtMinimum)
	assert.Equal(t, 10, got)
	assert.Equal(t, 10, p.Visible())
}

func TestPager_SmallTotal(t *testing.T) {
	p := NewPager(6, PagerConfig{})
	assert.Equal(t, 6, p.Visible())

	_, err := p.More()
	assert.ErrorIs(t, err, ErrAtMaximum)
	_, err = p.Less()
	assert.ErrorIs(t, err, ErrAtMinimum)
	assert.Equal(t, 6, p.Visible())
}

func TestPager_EmptyTotal(t *testing.T) {
	p := NewPager(0, PagerConfig{})
	assert.Equal(t, 0, p.Visible())
	_, err := p.More()
	assert.ErrorIs(t, err, ErrAtMaximum)
}

func TestPager_SetVisibleAndTotal(t *testing.T) {
	p := NewPager(73, PagerConfig{})

	assert.Equal(t, 10, p.SetVisible(3))
	assert.Equal(t, 73, p.SetVisible(500))
	assert.Equal(t, 35, p.SetVisible(35))

	p.SetTotal(25)
	assert.Equal(t, 25, p.Visible())
}

func TestPager_CustomConfig(t *testing.T) {
	p := NewPager(100, PagerConfig{Visible: 15, Step: 5, Min: 5})
	assert.Equal(t, 15, p.Visible())
	got, err := p.Less()
	require.NoError(t, err)
	assert.Equal(t, 10, got)
}

func TestPage(t *testing.T) {
	items := []int{1, 2, 3, 4}
	assert.Equal(t, []int{1, 2}, Page(items, 2))
	assert.Equal(t, items, Page(items, 10))
	assert.Empty(t, Page(items, -1))
}

func TestPager_TotalArrivesLater(t *testing.T) {
	p := NewPager(0, PagerConfig{})
	p.SetTotal(35)
	assert.Equal(t, 20, p.Visible())

	p.SetTotal(12)
	assert.Equal(t, 12, p.Visible())
	p.SetTotal(80)
	assert.Equal(t, 20, p.Visible())
}
