// Package export writes the city summary, neighborhood records and chart
// series to spreadsheet or YAML reports.
package export

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/barrio-cli/internal/barrio"
	"github.com/sells-group/barrio-cli/internal/chart"
)

// Format is a report encoding.
type Format string

// Report formats.
const (
	XLSX Format = "xlsx"
	YAML Format = "yaml"
)

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return XLSX, nil
	case ".yaml", ".yml":
		return YAML, nil
	}
	return "", eris.Errorf("export: unsupported file extension %q", filepath.Ext(path))
}

// Report is everything an export contains.
type Report struct {
	GeneratedAt   time.Time
	Filters       map[string]string
	City          barrio.City
	Neighborhoods []barrio.Neighborhood
	Charts        []chart.Series
}

// Write encodes r to w in format f.
func Write(w io.Writer, f Format, r Report) error {
	switch f {
	case XLSX:
		return WriteXLSX(w, r)
	case YAML:
		return WriteYAML(w, r)
	}
	return eris.Errorf("export: unknown format %q", f)
}

// Sheet names.
const (
	SheetCity          = "Barcelona"
	SheetNeighborhoods = "Barrios"
)

var neighborhoodHeader = []string{
	"Nombre", "Distrito", "Renta", "Poblacion", "Densidad poblacion",
	"Población con estudios bajos", "Trabajadores de baja calificación", "Población ocupada",
}

// WriteXLSX writes one sheet for the city, one for the records and one per chart.
func WriteXLSX(w io.Writer, r Report) error {
	f := xlsx.NewFile()

	city, err := f.AddSheet(SheetCity)
	if err != nil {
		return eris.Wrap(err, "export: add city sheet")
	}
	addStrings(city, "Campo", "Valor")
	addRate(city, "Renta", r.City.Income)
	addRate(city, "Población con estudios bajos", r.City.LowEducation)
	addRate(city, "Trabajadores de baja calificación", r.City.LowSkilledWorkers)
	addRate(city, "Población ocupada", r.City.Employed)
	addFloat(city, "Poblacion", r.City.Population)
	addFloat(city, "Barrios", float64(r.City.Neighborhoods))
	addFloat(city, "Campos malformados", float64(r.City.MalformedFields))

	recs, err := f.AddSheet(SheetNeighborhoods)
	if err != nil {
		return eris.Wrap(err, "export: add neighborhoods sheet")
	}
	addStrings(recs, neighborhoodHeader...)
	for _, n := range r.Neighborhoods {
		row := recs.AddRow()
		row.AddCell().SetString(n.Name)
		row.AddCell().SetString(n.District)
		for _, v := range []barrio.Number{n.Income, n.Population, n.Density, n.LowEducation, n.LowSkilledWorkers, n.Employed} {
			addNumber(row, v)
		}
	}

	used := map[string]int{SheetCity: 1, SheetNeighborhoods: 1}
	for _, s := range r.Charts {
		sheet, err := f.AddSheet(sheetName(s.Title, used))
		if err != nil {
			return eris.Wrapf(err, "export: add chart sheet %q", s.Title)
		}
		addStrings(sheet, "Etiqueta", "Valor", "Color")
		for j := range s.Labels {
			row := sheet.AddRow()
			row.AddCell().SetString(s.Labels[j])
			row.AddCell().SetFloat(s.Values[j])
			row.AddCell().SetString(s.ColorForIndex(j))
		}
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "export: write xlsx")
	}
	return nil
}

// sheetName makes a unique sheet name within the 31 character limit.
func sheetName(title string, used map[string]int) string {
	base := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '-'
		}
		return r
	}, strings.TrimSpace(title))
	if base == "" {
		base = "Serie"
	}
	if r := []rune(base); len(r) > 26 {
		base = string(r[:26])
	}
	name := base
	for n := 2; used[name] > 0; n++ {
		name = fmt.Sprintf("%s (%d)", base, n)
	}
	used[name]++
	return name
}

func addStrings(sheet *xlsx.Sheet, values ...string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func addFloat(sheet *xlsx.Sheet, label string, v float64) {
	row := sheet.AddRow()
	row.AddCell().SetString(label)
	row.AddCell().SetFloat(v)
}

func addRate(sheet *xlsx.Sheet, label string, r barrio.Rate) {
	row := sheet.AddRow()
	row.AddCell().SetString(label)
	if r.Valid {
		row.AddCell().SetFloat(r.Value)
		return
	}
	row.AddCell().SetString(barrio.FormatNumber(r))
}

func addNumber(row *xlsx.Row, n barrio.Number) {
	switch {
	case n.Valid():
		row.AddCell().SetFloat(n.Value)
	case n.Malformed:
		row.AddCell().SetString(n.Raw)
	default:
		row.AddCell().SetString("")
	}
}

type yamlReport struct {
	GeneratedAt   time.Time          `yaml:"generated_at"`
	Filters       map[string]string  `yaml:"filters,omitempty"`
	City          yamlCity           `yaml:"city"`
	Neighborhoods []yamlNeighborhood `yaml:"neighborhoods"`
	Charts        []chart.Series     `yaml:"charts,omitempty"`
}

type yamlCity struct {
	Income            *float64           `yaml:"renta"`
	LowEducation      *float64           `yaml:"estudios_bajos"`
	LowSkilledWorkers *float64           `yaml:"trabajadores_baja_calificacion"`
	Employed          *float64           `yaml:"poblacion_ocupada"`
	Population        float64            `yaml:"poblacion"`
	Neighborhoods     int                `yaml:"barrios"`
	MalformedFields   int                `yaml:"campos_malformados"`
	Age               map[string]float64 `yaml:"distribucion_edad,omitempty"`
	Immigration       map[string]float64 `yaml:"distribucion_inmigracion,omitempty"`
	Rooms             map[string]float64 `yaml:"distribucion_habitaciones,omitempty"`
}

type yamlNeighborhood struct {
	Name       string   `yaml:"nombre"`
	District   string   `yaml:"distrito,omitempty"`
	Income     *float64 `yaml:"renta"`
	Population *float64 `yaml:"poblacion"`
}

// WriteYAML writes the report as a YAML document. Unavailable values are null.
func WriteYAML(w io.Writer, r Report) error {
	doc := yamlReport{
		GeneratedAt: r.GeneratedAt.UTC(),
		Filters:     r.Filters,
		City: yamlCity{
			Income:            ratePtr(r.City.Income),
			LowEducation:      ratePtr(r.City.LowEducation),
			LowSkilledWorkers: ratePtr(r.City.LowSkilledWorkers),
			Employed:          ratePtr(r.City.Employed),
			Population:        r.City.Population,
			Neighborhoods:     r.City.Neighborhoods,
			MalformedFields:   r.City.MalformedFields,
			Age:               r.City.AgeDistribution,
			Immigration:       r.City.ImmigrationDistribution,
			Rooms:             r.City.RoomsDistribution,
		},
		Neighborhoods: make([]yamlNeighborhood, 0, len(r.Neighborhoods)),
		Charts:        r.Charts,
	}
	for _, n := range r.Neighborhoods {
		doc.Neighborhoods = append(doc.Neighborhoods, yamlNeighborhood{
			Name:       n.Name,
			District:   n.District,
			Income:     numberPtr(n.Income),
			Population: numberPtr(n.Population),
		})
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return eris.Wrap(err, "export: encode yaml")
	}
	return eris.Wrap(enc.Close(), "export: close yaml encoder")
}

func ratePtr(r barrio.Rate) *float64 {
	if !r.Valid {
		return nil
	}
	v := r.Value
	return &v
}

func numberPtr(n barrio.Number) *float64 {
	if !n.Valid() {
		return nil
	}
	v := n.Value
	return &v
}
