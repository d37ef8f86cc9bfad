package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/barrio-cli/internal/barrio"
	"github.com/sells-group/barrio-cli/internal/chart"
	"github.com/sells-group/barrio-cli/internal/dashboard"
	"github.com/sells-group/barrio-cli/internal/maplayer"
	"github.com/sells-group/barrio-cli/internal/projection"
	"github.com/sells-group/barrio-cli/internal/resilience"
	"github.com/sells-group/barrio-cli/internal/source"
	"github.com/sells-group/barrio-cli/internal/store"
	"github.com/sells-group/barrio-cli/pkg/urbanapi"
)

// appEnv holds the store, backend client and dashboard shared by every command.
type appEnv struct {
	Store     store.Store
	Client    urbanapi.Client
	Dashboard *dashboard.Dashboard
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Dashboard != nil {
		e.Dashboard.Dispose()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, eris.Wrapf(err, "open %s store", cfg.Store.Driver)
	}
	return st, nil
}

func initClient() urbanapi.Client {
	retry := resilience.PolicyFromSettings(cfg.Retry.Attempts, cfg.Retry.InitialBackoffMs,
		cfg.Retry.MaxBackoffMs, cfg.Retry.Multiplier, cfg.Retry.Jitter)

	return urbanapi.NewClient(
		urbanapi.WithBaseURL(cfg.Backend.BaseURL),
		urbanapi.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Backend.TimeoutSecs) * time.Second}),
		urbanapi.WithRateLimit(cfg.Backend.RateLimit, cfg.Backend.RateBurst),
		urbanapi.WithRetry(retry),
		urbanapi.WithBreaker(resilience.NewBreaker(cfg.Backend.BreakerThreshold,
			time.Duration(cfg.Backend.BreakerCooldown)*time.Second)),
	)
}

func initProjector() (*projection.CachedTransformer, error) {
	t, err := projection.New(cfg.Projection.Zone, cfg.Projection.Northern)
	if err != nil {
		return nil, eris.Wrap(err, "init projection")
	}
	var cache *projection.RingCache
	if cfg.Cache.Enabled {
		cache = projection.NewRingCache()
	}
	return projection.NewCachedTransformer(t, cache), nil
}

func dashboardOptions() (dashboard.Options, error) {
	policy, err := barrio.ParsePolicy(cfg.Aggregate.MalformedPolicy)
	if err != nil {
		return dashboard.Options{}, err
	}
	opts := dashboard.Options{
		Maps: []maplayer.Option{
			maplayer.WithTooltipZoom(cfg.Map.TooltipZoom),
			maplayer.WithZoomRange(cfg.Map.MinZoom, cfg.Map.MaxZoom),
			maplayer.WithViewportSize(cfg.Map.ViewportWidth, cfg.Map.ViewportHeight, cfg.Map.Padding),
			maplayer.WithImportant(cfg.Map.Important...),
		},
		Pager:       chart.PagerConfig{Visible: cfg.Chart.Visible, Step: cfg.Chart.Step, Min: cfg.Chart.Min},
		Policy:      policy,
		TopN:        cfg.Chart.TopN,
		SnapshotTTL: time.Duration(cfg.Store.SnapshotTTLHours) * time.Hour,
	}

	if cfg.Map.ShapefilePath != "" {
		b, err := source.LoadShapefile(cfg.Map.ShapefilePath, source.ShapefileOptions{NameField: cfg.Map.ShapefileNameField})
		if err != nil {
			return dashboard.Options{}, err
		}
		zap.L().Info("loaded offline boundaries", zap.String("path", cfg.Map.ShapefilePath), zap.Int("boundaries", len(b)))
		opts.Boundaries = b
	}
	return opts, nil
}

// initEnv validates the config and wires store, client and dashboard.
// Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	opts, err := dashboardOptions()
	if err != nil {
		return nil, err
	}
	projector, err := initProjector()
	if err != nil {
		return nil, err
	}
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	client := initClient()
	return &appEnv{
		Store:     st,
		Client:    client,
		Dashboard: dashboard.New(client, projector, st, opts),
	}, nil
}

// loadDashboard runs initEnv and an initial refresh. A failed refresh is
// logged; whatever loaded or was cached stays usable.
func loadDashboard(ctx context.Context, mode string) (*appEnv, error) {
	env, err := initEnv(ctx, mode)
	if err != nil {
		return nil, err
	}
	if err := env.Dashboard.Refresh(ctx); err != nil {
		zap.L().Warn("initial refresh incomplete", zap.Error(err))
	}
	return env, nil
}
