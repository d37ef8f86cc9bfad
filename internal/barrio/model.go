// Package barrio models Barcelona neighborhood demographic records and folds
// them into a population-weighted city summary.
package barrio

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/rotisserie/eris"
)

// Neighborhood is one demographic record as served by the backend.
type Neighborhood struct {
	Name                    string       `json:"Nombre"`
	District                string       `json:"Distrito"`
	Income                  Number       `json:"Renta"`
	Population              Number       `json:"Poblacion"`
	Density                 Number       `json:"Densidad poblacion"`
	LowEducation            Number       `json:"Población con estudios bajos"`
	LowSkilledWorkers       Number       `json:"Trabajadores de baja calificación"`
	Employed                Number       `json:"Población ocupada"`
	AgeDistribution         Distribution `json:"Distribución edad,omitempty"`
	ImmigrationDistribution Distribution `json:"Distribución immigración,omitempty"`
	RoomsDistribution       Distribution `json:"Distribución habitación por casas,omitempty"`
	Geometry                *Geometry    `json:"Geometry,omitempty"`
}

// Ring returns the outer projected ring, or nil when the record has no usable geometry.
func (n Neighborhood) Ring() [][]float64 {
	if n.Geometry == nil || n.Geometry.Malformed || len(n.Geometry.Coordinates) == 0 {
		return nil
	}
	return n.Geometry.Coordinates[0]
}

// HasGeometry reports whether the record carries a non-empty outer ring.
func (n Neighborhood) HasGeometry() bool { return len(n.Ring()) > 0 }

// Distribution maps bucket labels to counts.
type Distribution map[string]float64

// UnmarshalJSON accepts numbers or numeric strings as bucket values.
// Unreadable values count as zero.
func (d *Distribution) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*d = nil
		return nil
	}
	var raw map[string]Number
	if err := json.Unmarshal(data, &raw); err != nil {
		return eris.Wrap(err, "barrio: decode distribution")
	}
	out := make(Distribution, len(raw))
	for k, v := range raw {
		if v.Valid() {
			out[k] = v.Value
		} else {
			out[k] = 0
		}
	}
	*d = out
	return nil
}

// Keys returns the bucket labels in lexical order.
func (d Distribution) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Merge adds every bucket of other into d, creating missing buckets.
func (d Distribution) Merge(other Distribution) {
	for k, v := range other {
		d[k] += v
	}
}

// Total sums all bucket counts.
func (d Distribution) Total() float64 {
	var t float64
	for _, v := range d {
		t += v
	}
	return t
}

// Geometry holds a projected polygon. Malformed is set when the coordinates
// could not be decoded; the record itself is still usable.
type Geometry struct {
	Type        string        `json:"type,omitempty"`
	Coordinates [][][]float64 `json:"coordinates"`
	Malformed   bool          `json:"-"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (g *Geometry) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type        string          `json:"type"`
		Coordinates json.RawMessage `json:"coordinates"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		*g = Geometry{Malformed: true}
		return nil
	}
	*g = Geometry{Type: raw.Type}
	if len(raw.Coordinates) == 0 || bytes.Equal(raw.Coordinates, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(raw.Coordinates, &g.Coordinates); err != nil {
		g.Coordinates = nil
		g.Malformed = true
	}
	return nil
}

// Find returns the record whose name matches name under SameName.
func Find(records []Neighborhood, name string) (Neighborhood, bool) {
	for _, r := range records {
		if SameName(r.Name, name) {
			return r, true
		}
	}
	return Neighborhood{}, false
}
