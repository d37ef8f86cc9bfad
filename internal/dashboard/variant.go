package dashboard

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/barrio-cli/internal/chart"
)

// Variant selects one of the dashboard maps.
type Variant string

// Map variants.
const (
	Demographic  Variant = "demographic"
	LocalCount   Variant = "local_count"
	AveragePrice Variant = "average_price"
)

// ErrUnknownVariant is returned for a variant or metric name that does not exist.
var ErrUnknownVariant = eris.New("dashboard: unknown variant")

// Variants lists the map variants.
func Variants() []Variant { return []Variant{Demographic, LocalCount, AveragePrice} }

// ParseVariant validates a variant name. Empty selects Demographic.
func ParseVariant(s string) (Variant, error) {
	switch Variant(s) {
	case "", Demographic:
		return Demographic, nil
	case LocalCount, AveragePrice:
		return Variant(s), nil
	}
	return "", eris.Wrapf(ErrUnknownVariant, "variant %q", s)
}

// Metric selects a paged bar chart.
type Metric string

// Bar chart metrics.
const (
	MetricLocalCount   Metric = "local_count"
	MetricAveragePrice Metric = "average_price"
	MetricLocalPrice   Metric = "local_price"
)

// Metrics lists the bar chart metrics.
func Metrics() []Metric { return []Metric{MetricLocalCount, MetricAveragePrice, MetricLocalPrice} }

// ParseMetric validates a metric name.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricLocalCount, MetricAveragePrice, MetricLocalPrice:
		return Metric(s), nil
	}
	return "", eris.Wrapf(ErrUnknownVariant, "metric %q", s)
}

// Scale returns the bar color scale of the metric.
func (m Metric) Scale() *chart.Scale {
	switch m {
	case MetricAveragePrice:
		return chart.AveragePrice
	case MetricLocalPrice:
		return chart.PriceBars
	default:
		return chart.LocalCountBars
	}
}

// Title returns the chart title of the metric.
func (m Metric) Title() string {
	switch m {
	case MetricAveragePrice:
		return "Precio medio por m² de locales vacíos"
	case MetricLocalPrice:
		return "Precio total de locales vacíos"
	default:
		return "Locales vacíos por barrio"
	}
}

func metricFor(v Variant) Metric {
	if v == AveragePrice {
		return MetricAveragePrice
	}
	return MetricLocalCount
}

// scaleFor returns the map fill scale of a choropleth variant, or nil.
func scaleFor(v Variant) *chart.Scale {
	switch v {
	case LocalCount:
		return chart.LocalCount
	case AveragePrice:
		return chart.AveragePrice
	}
	return nil
}
