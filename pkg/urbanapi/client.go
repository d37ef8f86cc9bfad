// Package urbanapi provides a client for the urban-data REST backend that
// serves Barcelona demographics, empty commercial premises and restaurants.
package urbanapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/barrio-cli/internal/barrio"
	"github.com/sells-group/barrio-cli/internal/resilience"
)

// ErrNotFound is returned when the backend has no data for the request.
var ErrNotFound = eris.New("urbanapi: not found")

// Client defines the backend operations.
type Client interface {
	// Demographics lists neighborhood records matching filters.
	Demographics(ctx context.Context, filters Filters) ([]barrio.Neighborhood, error)
	// DemographicsByName returns the record of one neighborhood.
	DemographicsByName(ctx context.Context, name string) (barrio.Neighborhood, error)
	// Neighborhoods lists neighborhoods with geometry.
	Neighborhoods(ctx context.Context) ([]barrio.Neighborhood, error)
	// SimilarByIncome lists neighborhoods whose income is close to income.
	SimilarByIncome(ctx context.Context, income float64) ([]barrio.Neighborhood, error)
	// EmptyLocals lists vacant commercial premises.
	EmptyLocals(ctx context.Context) ([]EmptyLocal, error)
	// EmptyLocalCounts counts empty locals per neighborhood.
	EmptyLocalCounts(ctx context.Context) ([]NeighborhoodCount, error)
	// EmptyLocalAveragePrices averages the price per m² per neighborhood.
	EmptyLocalAveragePrices(ctx context.Context) ([]NeighborhoodPrice, error)
	// EmptyLocalAveragePrice averages the price per m² in one neighborhood.
	EmptyLocalAveragePrice(ctx context.Context, neighborhood string) (NeighborhoodPrice, error)
	// Competitors summarizes restaurants near a point.
	Competitors(ctx context.Context, lat, lon float64) (CompetitorSummary, error)
	// NearbyRestaurants lists restaurants near a point.
	NearbyRestaurants(ctx context.Context, lat, lon float64) ([]Restaurant, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets the backend base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps requests per second. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *httpClient) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

// WithRetry sets the retry policy for transient failures.
func WithRetry(p resilience.Policy) Option {
	return func(c *httpClient) {
		c.retry = p
	}
}

// WithBreaker guards calls with a circuit breaker.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *httpClient) {
		c.breaker = b
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.Policy
	breaker *resilience.Breaker
}

// NewClient creates a backend client. Without options it talks to a local
// backend and does not retry.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: "http://127.0.0.1:5000",
		http: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(10, 5),
		retry:   resilience.NoRetry(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// get fetches path with query and decodes the JSON body into out.
func (c *httpClient) get(ctx context.Context, path string, query url.Values, out any) error {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	p := c.retry
	if p.OnRetry == nil {
		p.OnRetry = resilience.LogRetries(path)
	}

	body, err := resilience.RetryVal(ctx, p, func(ctx context.Context) ([]byte, error) {
		return resilience.Call(ctx, c.breaker, func(ctx context.Context) ([]byte, error) {
			return c.do(ctx, path, reqURL)
		})
	})
	if err != nil {
		if resilience.IsNotFound(err) {
			return eris.Wrapf(ErrNotFound, "urbanapi: %s", path)
		}
		return eris.Wrapf(err, "urbanapi: get %s", path)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrapf(err, "urbanapi: decode %s", path)
	}
	return nil
}

func (c *httpClient) do(ctx context.Context, path, reqURL string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "urbanapi: rate limit")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "urbanapi: create request")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "urbanapi: read response body")
	}

	zap.L().Debug("urbanapi: request",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &resilience.StatusError{Endpoint: path, StatusCode: resp.StatusCode, Body: errorMessage(body)}
	}
	return body, nil
}

// errorMessage extracts {"error": "..."} bodies, falling back to the raw text.
func errorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	const limit = 200
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		s = s[:limit]
	}
	return s
}

func coords(lat, lon float64) url.Values {
	return url.Values{
		"lat": {strconv.FormatFloat(lat, 'f', -1, 64)},
		"lon": {strconv.FormatFloat(lon, 'f', -1, 64)},
	}
}

func (c *httpClient) Demographics(ctx context.Context, filters Filters) ([]barrio.Neighborhood, error) {
	var out []barrio.Neighborhood
	if err := c.get(ctx, "/api/demographics", filters.values(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *httpClient) DemographicsByName(ctx context.Context, name string) (barrio.Neighborhood, error) {
	if strings.TrimSpace(name) == "" {
		return barrio.Neighborhood{}, eris.New("urbanapi: neighborhood name is required")
	}
	var out barrio.Neighborhood
	if err := c.get(ctx, "/api/demographics_by_name", url.Values{"barrio": {name}}, &out); err != nil {
		return barrio.Neighborhood{}, err
	}
	return out, nil
}

func (c *httpClient) Neighborhoods(ctx context.Context) ([]barrio.Neighborhood, error) {
	var out []barrio.Neighborhood
	if err := c.get(ctx, "/api/neighborhoods", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *httpClient) SimilarByIncome(ctx context.Context, income float64) ([]barrio.Neighborhood, error) {
	var out []barrio.Neighborhood
	path := "/api/similar_neighborhoods_by_renta/" + strconv.FormatFloat(income, 'f', -1, 64)
	if err := c.get(ctx, path, nil, &out); err != nil {
		if eris.Is(err, ErrNotFound) {
			return []barrio.Neighborhood{}, nil
		}
		return nil, err
	}
	return out, nil
}

func (c *httpClient) EmptyLocals(ctx context.Context) ([]EmptyLocal, error) {
	var out []EmptyLocal
	if err := c.get(ctx, "/api/empty_locals", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *httpClient) EmptyLocalCounts(ctx context.Context) ([]NeighborhoodCount, error) {
	var out []NeighborhoodCount
	if err := c.get(ctx, "/api/empty_locals_count_by_neighborhood", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *httpClient) EmptyLocalAveragePrices(ctx context.Context) ([]NeighborhoodPrice, error) {
	var out []NeighborhoodPrice
	if err := c.get(ctx, "/api/empty_locals_average_price_by_neighborhood", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *httpClient) EmptyLocalAveragePrice(ctx context.Context, neighborhood string) (NeighborhoodPrice, error) {
	var out struct {
		Neighborhood string        `json:"neighborhood"`
		AveragePrice barrio.Number `json:"average_price"`
	}
	if err := c.get(ctx, "/api/empty_locals_average_price", url.Values{"neighborhood": {neighborhood}}, &out); err != nil {
		return NeighborhoodPrice{}, err
	}
	return NeighborhoodPrice{Neighborhood: out.Neighborhood, AveragePrice: out.AveragePrice}, nil
}

// Competitors returns an empty summary when no restaurant is in range.
func (c *httpClient) Competitors(ctx context.Context, lat, lon float64) (CompetitorSummary, error) {
	var out CompetitorSummary
	if err := c.get(ctx, "/api/neighbours_competitors", coords(lat, lon), &out); err != nil {
		if eris.Is(err, ErrNotFound) {
			return CompetitorSummary{Cuisines: Shares{}, Prices: Shares{}}, nil
		}
		return CompetitorSummary{}, err
	}
	return out, nil
}

func (c *httpClient) NearbyRestaurants(ctx context.Context, lat, lon float64) ([]Restaurant, error) {
	var out []Restaurant
	if err := c.get(ctx, "/nearby_restaurants", coords(lat, lon), &out); err != nil {
		return nil, err
	}
	return out, nil
}
