package chart

import (
	"cmp"
	"slices"

	"github.com/samber/lo"
)

// Item is one labeled value of a bar or pie chart.
type Item struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// Descending orders items by value, highest first, ties alphabetical by label.
func Descending(items []Item) []Item {
	out := slices.Clone(items)
	slices.SortFunc(out, func(a, b Item) int {
		if c := cmp.Compare(b.Value, a.Value); c != 0 {
			return c
		}
		return cmp.Compare(a.Label, b.Label)
	})
	return out
}

// Ascending orders items by value, lowest first, ties alphabetical by label.
func Ascending(items []Item) []Item {
	out := slices.Clone(items)
	slices.SortFunc(out, func(a, b Item) int {
		if c := cmp.Compare(a.Value, b.Value); c != 0 {
			return c
		}
		return cmp.Compare(a.Label, b.Label)
	})
	return out
}

// TopN returns the n highest items. n <= 0 returns all items ranked.
func TopN(items []Item, n int) []Item {
	return head(Descending(items), n)
}

// BottomN returns the n lowest items. n <= 0 returns all items ranked.
func BottomN(items []Item, n int) []Item {
	return head(Ascending(items), n)
}

func head(items []Item, n int) []Item {
	if n <= 0 || n >= len(items) {
		return items
	}
	return items[:n]
}

// CountBy counts raw records by key and returns the counts ranked
// descending. Records with an empty key are skipped.
func CountBy[T any](records []T, key func(T) string) []Item {
	counts := lo.CountValuesBy(lo.Filter(records, func(r T, _ int) bool {
		return key(r) != ""
	}), key)

	items := make([]Item, 0, len(counts))
	for label, n := range counts {
		items = append(items, Item{Label: label, Value: float64(n)})
	}
	return Descending(items)
}

// FromMap converts a label->value map to items ranked descending.
func FromMap(m map[string]float64) []Item {
	return Descending(lo.Map(lo.Entries(m), func(e lo.Entry[string, float64], _ int) Item {
		return Item{Label: e.Key, Value: e.Value}
	}))
}
