package export

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/barrio-cli/internal/barrio"
	"github.com/sells-group/barrio-cli/internal/chart"
)

func sampleReport() Report {
	records := []barrio.Neighborhood{
		{Name: "el Raval", District: "Ciutat Vella", Income: barrio.Num(20000), Population: barrio.Num(1000)},
		{Name: "Gràcia", District: "Gràcia", Income: barrio.Number{Present: true, Malformed: true, Raw: "n/d"}, Population: barrio.Num(3000)},
	}
	return Report{
		GeneratedAt:   time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Filters:       map[string]string{"age_range": "25-34"},
		City:          barrio.NewAggregator(barrio.PolicyExclude).Aggregate(records),
		Neighborhoods: records,
		Charts: []chart.Series{
			chart.FromItems("Locales vacíos por barrio", []chart.Item{{Label: "el Raval", Value: 42}}, chart.LocalCountBars),
			chart.FromItems("Locales vacíos por barrio", []chart.Item{{Label: "Gràcia", Value: 7}}, nil),
		},
	}
}

func TestFormatFromPath(t *testing.T) {
	f, err := FormatFromPath("out/report.XLSX")
	require.NoError(t, err)
	assert.Equal(t, XLSX, f)

	f, err = FormatFromPath("report.yml")
	require.NoError(t, err)
	assert.Equal(t, YAML, f)

	_, err = FormatFromPath("report.csv")
	assert.Error(t, err)
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, XLSX, sampleReport()))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)

	city := sheetRows(t, f, SheetCity)
	assert.Equal(t, []string{"Campo", "Valor"}, city[0])
	assert.Equal(t, "Renta", city[1][0])
	income, err := strconv.ParseFloat(city[1][1], 64)
	require.NoError(t, err)
	assert.InDelta(t, 20000, income, 1e-9)

	recs := sheetRows(t, f, SheetNeighborhoods)
	require.Len(t, recs, 3)
	assert.Equal(t, neighborhoodHeader, recs[0])
	assert.Equal(t, "Gràcia", recs[2][0])
	assert.Equal(t, "n/d", recs[2][2])

	first := sheetRows(t, f, "Locales vacíos por barrio")
	assert.Equal(t, "el Raval", first[1][0])

	second := sheetRows(t, f, "Locales vacíos por barrio (2)")
	assert.Equal(t, "Gràcia", second[1][0])

	_, ok := f.Sheet["missing"]
	assert.False(t, ok)
}

func sheetRows(t *testing.T, f *xlsx.File, name string) [][]string {
	t.Helper()
	sheet, ok := f.Sheet[name]
	require.True(t, ok, name)
	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, YAML, sampleReport()))

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))

	city := doc["city"].(map[string]any)
	assert.Equal(t, 20000, city["renta"])
	assert.Nil(t, city["estudios_bajos"])
	assert.Equal(t, 2, city["barrios"])

	recs := doc["neighborhoods"].([]any)
	require.Len(t, recs, 2)
	gracia := recs[1].(map[string]any)
	assert.Equal(t, "Gràcia", gracia["nombre"])
	assert.Nil(t, gracia["renta"])

	assert.Equal(t, map[string]any{"age_range": "25-34"}, doc["filters"])
	assert.Len(t, doc["charts"], 2)
}

func TestSheetName(t *testing.T) {
	used := map[string]int{}
	assert.Equal(t, "a-b", sheetName("a/b", used))
	assert.Equal(t, "a-b (2)", sheetName("a:b", used))
	assert.Equal(t, "Serie", sheetName("  ", used))
	assert.LessOrEqual(t, len([]rune(sheetName("Precio medio por m² de locales vacíos", used))), 31)
}

func TestWrite_UnknownFormat(t *testing.T) {
	assert.Error(t, Write(&bytes.Buffer{}, "csv", Report{}))
}
