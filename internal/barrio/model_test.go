package barrio

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const backendRecord = `{
	"Nombre": "la Vila de Gràcia",
	"Distrito": "Gràcia",
	"Renta": "21.354,5",
	"Poblacion": 51577,
	"Densidad poblacion": 387.2,
	"Población con estudios bajos": "14,2",
	"Trabajadores de baja calificación": 9.8,
	"Población ocupada": null,
	"Distribución edad": {"0-14": 6120, "15-24": "4311"},
	"Distribución immigración": {"España": 37000, "Resto": 14577},
	"Distribución habitación por casas": {"1": 900, "2": 5400},
	"Geometry": {"type": "Polygon", "coordinates": [[[430000, 4581000], [431000, 4581000], [431000, 4582000], [430000, 4581000]]]}
}`

func TestNeighborhood_DecodeBackendRecord(t *testing.T) {
	var n Neighborhood
	require.NoError(t, json.Unmarshal([]byte(backendRecord), &n))

	assert.Equal(t, "la Vila de Gràcia", n.Name)
	assert.Equal(t, "Gràcia", n.District)
	assert.InDelta(t, 21354.5, n.Income.Value, 1e-9)
	assert.Equal(t, 51577.0, n.Population.Value)
	assert.InDelta(t, 14.2, n.LowEducation.Value, 1e-9)
	assert.False(t, n.Employed.Present)
	assert.Equal(t, 4311.0, n.AgeDistribution["15-24"])
	assert.Equal(t, []string{"1", "2"}, n.RoomsDistribution.Keys())
	assert.Equal(t, 51577.0, n.ImmigrationDistribution.Total())

	require.True(t, n.HasGeometry())
	assert.Len(t, n.Ring(), 4)
	assert.Equal(t, "Polygon", n.Geometry.Type)
}

func TestNeighborhood_MalformedGeometry(t *testing.T) {
	data := `[
		{"Nombre": "sin geometria"},
		{"Nombre": "vacia", "Geometry": {"coordinates": []}},
		{"Nombre": "rota", "Geometry": {"coordinates": "n/d"}},
		{"Nombre": "nula", "Geometry": null}
	]`
	var list []Neighborhood
	require.NoError(t, json.Unmarshal([]byte(data), &list))
	require.Len(t, list, 4)

	for _, n := range list {
		assert.False(t, n.HasGeometry(), n.Name)
	}
	assert.True(t, list[2].Geometry.Malformed)
}

func TestNeighborhood_RoundTripKeepsBackendKeys(t *testing.T) {
	var n Neighborhood
	require.NoError(t, json.Unmarshal([]byte(backendRecord), &n))

	out, err := json.Marshal(n)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"Población con estudios bajos":14.2`)
	assert.Contains(t, string(out), `"Población ocupada":null`)

	var back Neighborhood
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, n.Income.Value, back.Income.Value)
	assert.Equal(t, n.Ring(), back.Ring())
}

func TestFind(t *testing.T) {
	records := []Neighborhood{{Name: "Sant Martí de Provençals"}, {Name: "el Raval"}}

	got, ok := Find(records, "sant marti de provencals")
	require.True(t, ok)
	assert.Equal(t, "Sant Martí de Provençals", got.Name)

	_, ok = Find(records, "Sants")
	assert.False(t, ok)
}

func TestSameName(t *testing.T) {
	assert.True(t, SameName("Gràcia", "gracia"))
	assert.True(t, SameName("  el  Raval ", "El Raval"))
	assert.True(t, SameName("Sant Andreu", "SANT ANDREU"))
	assert.False(t, SameName("Sants", "Sant Antoni"))
	assert.Equal(t, "l'eixample", FoldName("L'Eixample"))
}
