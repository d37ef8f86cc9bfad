package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/barrio-cli/internal/config"
	"github.com/sells-group/barrio-cli/internal/dashboard"
	"github.com/sells-group/barrio-cli/internal/export"
	"github.com/sells-group/barrio-cli/internal/projection"
	"github.com/sells-group/barrio-cli/internal/store"
)

// UTM 31N squares around the center of Barcelona.
var backendRecords = []map[string]any{
	{
		"Nombre": "el Raval", "Distrito": "Ciutat Vella", "Renta": "20000", "Poblacion": 1000,
		"Geometry": map[string]any{"type": "Polygon", "coordinates": [][][]float64{{
			{430000, 4581000}, {431000, 4581000}, {431000, 4582000}, {430000, 4582000}, {430000, 4581000},
		}}},
	},
	{
		"Nombre": "Gràcia", "Distrito": "Gràcia", "Renta": 30000, "Poblacion": 3000,
		"Geometry": map[string]any{"type": "Polygon", "coordinates": [][][]float64{{
			{429000, 4584000}, {430000, 4584000}, {430000, 4585000}, {429000, 4585000}, {429000, 4584000},
		}}},
	},
}

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	reply := func(v any) http.HandlerFunc {
		return func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(v)
		}
	}
	mux.HandleFunc("/api/demographics", reply(backendRecords))
	mux.HandleFunc("/api/empty_locals", reply([]any{}))
	mux.HandleFunc("/api/empty_locals_count_by_neighborhood", reply([]map[string]any{
		{"Barrio": "el Raval", "count": 12}, {"Barrio": "Gràcia", "count": 3},
	}))
	mux.HandleFunc("/api/empty_locals_average_price_by_neighborhood", reply([]map[string]any{
		{"Barrio": "el Raval", "average_price": 21.5},
	}))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(baseURL, dsn string) *config.Config {
	return &config.Config{
		Backend:    config.BackendConfig{BaseURL: baseURL, TimeoutSecs: 5},
		Map:        config.MapConfig{MinZoom: 12, MaxZoom: 19, TooltipZoom: 14},
		Chart:      config.ChartConfig{Visible: 20, Step: 10, Min: 10, TopN: 10},
		Aggregate:  config.AggregateConfig{MalformedPolicy: "zero"},
		Projection: config.ProjectionConfig{Zone: 31, Northern: true},
		Store:      config.StoreConfig{Driver: "sqlite", DatabaseURL: dsn},
		Server:     config.ServerConfig{Port: 8080},
		Retry:      config.RetryConfig{Attempts: 1},
		Cache:      config.CacheConfig{Enabled: true},
	}
}

func TestAppEnv_Close_Nil(t *testing.T) {
	env := &appEnv{}
	assert.NotPanics(t, env.Close)
}

func TestInitEnv_InvalidConfig(t *testing.T) {
	cfg = testConfig("", filepath.Join(t.TempDir(), "x.db"))
	env, err := initEnv(context.Background(), "cli")
	assert.Nil(t, env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend.base_url")
}

func TestInitEnv_BadPolicy(t *testing.T) {
	cfg = testConfig("http://127.0.0.1:1", filepath.Join(t.TempDir(), "x.db"))
	cfg.Aggregate.MalformedPolicy = "drop"
	_, err := initEnv(context.Background(), "cli")
	assert.Error(t, err)
}

func TestLoadDashboard_EndToEnd(t *testing.T) {
	srv := newBackend(t)
	cfg = testConfig(srv.URL, filepath.Join(t.TempDir(), "barrio.db"))

	env, err := loadDashboard(context.Background(), "cli")
	require.NoError(t, err)
	defer env.Close()

	city := env.Dashboard.City()
	assert.Equal(t, 2, city.Neighborhoods)
	assert.InDelta(t, 27500, city.Income.Value, 1e-9)

	var out bytes.Buffer
	formatCity(&out, city)
	assert.Contains(t, out.String(), "27500.00")

	s, err := env.Dashboard.MetricChart(dashboard.MetricLocalCount, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"el Raval", "Gràcia"}, s.Labels)

	tr, err := projection.New(31, true)
	require.NoError(t, err)
	center, err := tr.Point(430500, 4581500)
	require.NoError(t, err)
	name, ok := env.Dashboard.Locate(center.Lat, center.Lng)
	require.True(t, ok)
	assert.Equal(t, "el Raval", name)

	r := buildReport(env.Dashboard)
	assert.Len(t, r.Neighborhoods, 2)
	assert.NotEmpty(t, r.Charts)

	var buf bytes.Buffer
	require.NoError(t, export.Write(&buf, export.YAML, r))
	assert.Contains(t, buf.String(), "renta: 27500")
}

func TestLoadDashboard_BackendDownUsesSnapshot(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "barrio.db")
	srv := newBackend(t)
	cfg = testConfig(srv.URL, dsn)

	env, err := loadDashboard(context.Background(), "cli")
	require.NoError(t, err)
	env.Close()

	srv.Close()
	env, err = loadDashboard(context.Background(), "cli")
	require.NoError(t, err)
	defer env.Close()
	assert.Equal(t, 2, env.Dashboard.City().Neighborhoods)
}

func TestTick_PrunesExpiredSnapshots(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, st.SetSnapshot(ctx, "old", []byte("{}"), time.Nanosecond))
	time.Sleep(time.Millisecond)

	refreshed := false
	tick(ctx, func(context.Context) error {
		refreshed = true
		return nil
	}, st)

	assert.True(t, refreshed)
	data, err := st.GetSnapshot(ctx, "old")
	require.NoError(t, err)
	assert.Nil(t, data)
}
