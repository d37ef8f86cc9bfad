// Package server exposes the dashboard over HTTP as JSON.
package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/barrio-cli/internal/barrio"
	"github.com/sells-group/barrio-cli/internal/chart"
	"github.com/sells-group/barrio-cli/internal/dashboard"
	"github.com/sells-group/barrio-cli/internal/fetch"
	"github.com/sells-group/barrio-cli/internal/maplayer"
	"github.com/sells-group/barrio-cli/internal/resilience"
	"github.com/sells-group/barrio-cli/pkg/urbanapi"
)

// Options configures the router.
type Options struct {
	AllowedOrigins []string
	// RequestTimeout bounds each request. Zero disables it.
	RequestTimeout time.Duration
}

// NewRouter builds the HTTP routes for d.
func NewRouter(d *dashboard.Dashboard, opts Options) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	if opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(opts.RequestTimeout))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	h := &handlers{dash: d}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/map", h.mapView)
	r.Get("/map/{name}", h.mapView)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", h.status)
		r.Get("/city", h.city)
		r.Post("/refresh", h.refresh)
		r.Put("/filters", h.setFilters)
		r.Get("/neighborhoods/{name}", h.neighborhood)
		r.Get("/neighborhoods/{name}/similar", h.similar)
		r.Get("/neighborhoods/{name}/price", h.price)
		r.Get("/layers", h.layers)
		r.Get("/legend/{scale}", h.legend)
		r.Get("/locate", h.locate)

		r.Route("/charts", func(r chi.Router) {
			r.Get("/distribution/{name}", h.distribution)
			r.Get("/competitors", h.competitors)
			r.Get("/{metric}", h.metricChart)
			r.Post("/{metric}/more", h.pageBars(true))
			r.Post("/{metric}/less", h.pageBars(false))
		})
	})
	return r
}

type handlers struct {
	dash *dashboard.Dashboard
}

func (h *handlers) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.dash.Status())
}

func (h *handlers) city(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.dash.City())
}

func (h *handlers) refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.dash.Refresh(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.dash.Status())
}

func (h *handlers) setFilters(w http.ResponseWriter, r *http.Request) {
	var f urbanapi.Filters
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	if err := h.dash.SetFilters(r.Context(), f); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.dash.City())
}

func (h *handlers) neighborhood(w http.ResponseWriter, r *http.Request) {
	rec, err := h.dash.Neighborhood(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handlers) similar(w http.ResponseWriter, r *http.Request) {
	out, err := h.dash.Similar(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) price(w http.ResponseWriter, r *http.Request) {
	p, err := h.dash.AveragePrice(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type mapViewResponse struct {
	Neighborhood barrio.Neighborhood `json:"neighborhood"`
	Layer        *geojson.Feature    `json:"layer,omitempty"`
	Viewport     *maplayer.Viewport  `json:"viewport,omitempty"`
}

// mapView serves /map/{name}; /map restores the last viewed neighborhood.
// It reads the demographic map without changing its selection.
func (h *handlers) mapView(w http.ResponseWriter, r *http.Request) {
	rec, err := h.dash.MapView(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	resp := mapViewResponse{Neighborhood: rec}
	if m, err := h.dash.Map(dashboard.Demographic); err == nil {
		if f, ok := m.Feature(rec.Name); ok {
			resp.Layer = f
		}
		if vp, ok := m.Viewport(); ok {
			resp.Viewport = &vp
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) layers(w http.ResponseWriter, r *http.Request) {
	v, err := dashboard.ParseVariant(r.URL.Query().Get("variant"))
	if err != nil {
		writeError(w, err)
		return
	}
	zoom, ok := intParam(w, r, "zoom")
	if !ok {
		return
	}
	fc, err := h.dash.Layers(v, zoom)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fc)
}

func (h *handlers) legend(w http.ResponseWriter, r *http.Request) {
	entries, err := h.dash.Legend(chi.URLParam(r, "scale"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *handlers) distribution(w http.ResponseWriter, r *http.Request) {
	field := r.URL.Query().Get("field")
	if field == "" {
		field = dashboard.FieldAge
	}
	s, err := h.dash.Distribution(chi.URLParam(r, "name"), field)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *handlers) metricChart(w http.ResponseWriter, r *http.Request) {
	m, err := dashboard.ParseMetric(chi.URLParam(r, "metric"))
	if err != nil {
		writeError(w, err)
		return
	}
	visible, ok := intParam(w, r, "visible")
	if !ok {
		return
	}
	s, err := h.dash.MetricChart(m, visible)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

type pageResponse struct {
	Visible int    `json:"visible"`
	Notice  string `json:"notice,omitempty"`
}

// pageBars grows or shrinks a chart window. Reaching a bound is reported
// as a notice, not an error.
func (h *handlers) pageBars(more bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := dashboard.ParseMetric(chi.URLParam(r, "metric"))
		if err != nil {
			writeError(w, err)
			return
		}
		var n int
		if more {
			n, err = h.dash.MoreBars(m)
		} else {
			n, err = h.dash.LessBars(m)
		}
		resp := pageResponse{Visible: n}
		switch {
		case eris.Is(err, chart.ErrAtMaximum):
			resp.Notice = "Ya se muestran todos los barrios."
		case eris.Is(err, chart.ErrAtMinimum):
			resp.Notice = "No se pueden mostrar menos barrios."
		case err != nil:
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (h *handlers) competitors(w http.ResponseWriter, r *http.Request) {
	lat, lon, ok := pointParams(w, r)
	if !ok {
		return
	}
	top, ok := intParam(w, r, "top")
	if !ok {
		return
	}
	out, err := h.dash.Competitors(r.Context(), lat, lon, top)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) locate(w http.ResponseWriter, r *http.Request) {
	lat, lon, ok := pointParams(w, r)
	if !ok {
		return
	}
	name, found := h.dash.Locate(lat, lon)
	if !found {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "point is outside every neighborhood"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"neighborhood": name})
}

func intParam(w http.ResponseWriter, r *http.Request, key string) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: key + " must be an integer"})
		return 0, false
	}
	return n, true
}

func pointParams(w http.ResponseWriter, r *http.Request) (lat, lon float64, ok bool) {
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(q.Get("lon"), 64)
	if errLat != nil || errLon != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "lat and lon are required"})
		return 0, 0, false
	}
	return lat, lon, true
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}

// writeError maps dashboard and backend errors to a status code.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	switch {
	case eris.Is(err, fetch.ErrSuperseded):
		// A newer request replaced this one; the client may retry.
		writeJSON(w, http.StatusConflict, errorBody{Error: "superseded by a newer request"})
		return
	case eris.Is(err, fetch.ErrCanceled):
		status = http.StatusServiceUnavailable
	case eris.Is(err, dashboard.ErrNotFound), eris.Is(err, urbanapi.ErrNotFound):
		status = http.StatusNotFound
	case eris.Is(err, dashboard.ErrNoNeighborhood), eris.Is(err, dashboard.ErrUnknownVariant):
		status = http.StatusBadRequest
	case eris.Is(err, dashboard.ErrDisposed), eris.Is(err, resilience.ErrBackendUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusBadGateway {
		zap.L().Error("server: request failed", zap.Error(err))
	} else if status >= http.StatusInternalServerError {
		zap.L().Warn("server: request failed", zap.Error(err))
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("server: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
