package urbanapi

import (
	"bytes"
	"encoding/json"
	"net/url"

	"github.com/rotisserie/eris"

	"github.com/sells-group/barrio-cli/internal/barrio"
)

// Filters narrows the demographics listing. Empty fields and "all" are not sent.
type Filters struct {
	AgeRange      string `json:"age_range,omitempty"`
	Income        string `json:"income,omitempty"`
	HouseholdSize string `json:"household_size,omitempty"`
}

func (f Filters) values() url.Values {
	v := url.Values{}
	for key, val := range map[string]string{
		"age_range":      f.AgeRange,
		"income":         f.Income,
		"household_size": f.HouseholdSize,
	} {
		if val != "" && val != "all" {
			v.Set(key, val)
		}
	}
	return v
}

// Key identifies the filter combination for request deduplication.
func (f Filters) Key() string {
	if enc := f.values().Encode(); enc != "" {
		return "demographics?" + enc
	}
	return "demographics"
}

// EmptyLocal is a vacant commercial premises listing.
type EmptyLocal struct {
	Title         string        `json:"Título"`
	Address       string        `json:"Dirección completa"`
	TotalPrice    barrio.Number `json:"Precio total (€)"`
	Surface       barrio.Number `json:"Superficie (m2)"`
	PricePerM2    barrio.Number `json:"Precio (€/m2)"`
	Neighborhood  string        `json:"Barrio"`
	Coordinates   []float64     `json:"Coordinates"`
	Accessibility barrio.Number `json:"Accesibilidad"`
}

// NeighborhoodCount is the number of empty locals in a neighborhood.
type NeighborhoodCount struct {
	Neighborhood string `json:"Barrio"`
	Count        int    `json:"count"`
}

// NeighborhoodPrice is the average asking price per square meter of the
// empty locals in a neighborhood.
type NeighborhoodPrice struct {
	Neighborhood string        `json:"Barrio"`
	AveragePrice barrio.Number `json:"average_price"`
}

// Restaurant is a restaurant close to a queried point.
type Restaurant struct {
	Name   string        `json:"name"`
	Lat    float64       `json:"lat"`
	Lon    float64       `json:"lon"`
	Type   string        `json:"type"`
	Rating barrio.Number `json:"rating"`
	Price  string        `json:"price"`
}

// Shares maps a category to its fraction of the total. The backend sends an
// empty array instead of an empty object.
type Shares map[string]float64

// UnmarshalJSON implements json.Unmarshaler.
func (s *Shares) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] == '[' || bytes.Equal(data, []byte("null")) {
		*s = Shares{}
		return nil
	}
	m := map[string]float64{}
	if err := json.Unmarshal(data, &m); err != nil {
		return eris.Wrap(err, "urbanapi: decode shares")
	}
	*s = m
	return nil
}

// Histogram is a binned distribution: Values[i] is the fraction of items in
// [Edges[i], Edges[i+1]).
type Histogram struct {
	Values []float64 `json:"values"`
	Edges  []float64 `json:"edges"`
}

// Empty reports whether the histogram has no bins.
func (h Histogram) Empty() bool { return len(h.Values) == 0 }

// UnmarshalJSON accepts [values, edges] pairs and the empty array.
func (h *Histogram) UnmarshalJSON(data []byte) error {
	*h = Histogram{}
	var pair [][]float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return eris.Wrap(err, "urbanapi: decode histogram")
	}
	switch len(pair) {
	case 0:
		return nil
	case 2:
		if len(pair[0]) > 0 && len(pair[1]) != len(pair[0])+1 {
			return eris.Errorf("urbanapi: histogram has %d values and %d edges", len(pair[0]), len(pair[1]))
		}
		h.Values, h.Edges = pair[0], pair[1]
		return nil
	}
	return eris.Errorf("urbanapi: histogram has %d parts", len(pair))
}

// CompetitorSummary describes the restaurants within walking distance of a point.
type CompetitorSummary struct {
	Cuisines      Shares    `json:"Categoria Cocina"`
	Count         int       `json:"Numero de restaurantes"`
	Prices        Shares    `json:"Precio"`
	Ratings       Histogram `json:"Nota"`
	Accessibility Histogram `json:"Accesibilidad"`
}
