package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Backend    BackendConfig    `yaml:"backend" mapstructure:"backend"`
	Map        MapConfig        `yaml:"map" mapstructure:"map"`
	Chart      ChartConfig      `yaml:"chart" mapstructure:"chart"`
	Aggregate  AggregateConfig  `yaml:"aggregate" mapstructure:"aggregate"`
	Projection ProjectionConfig `yaml:"projection" mapstructure:"projection"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// BackendConfig points at the urban-data REST backend.
type BackendConfig struct {
	BaseURL          string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit        float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst        int     `yaml:"rate_burst" mapstructure:"rate_burst"`
	BreakerThreshold int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldown  int     `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
}

// MapConfig configures layer building and the viewport.
type MapConfig struct {
	TooltipZoom        int      `yaml:"tooltip_zoom" mapstructure:"tooltip_zoom"`
	MinZoom            int      `yaml:"min_zoom" mapstructure:"min_zoom"`
	MaxZoom            int      `yaml:"max_zoom" mapstructure:"max_zoom"`
	ViewportWidth      int      `yaml:"viewport_width" mapstructure:"viewport_width"`
	ViewportHeight     int      `yaml:"viewport_height" mapstructure:"viewport_height"`
	Padding            int      `yaml:"padding" mapstructure:"padding"`
	Important          []string `yaml:"important" mapstructure:"important"`
	ShapefilePath      string   `yaml:"shapefile_path" mapstructure:"shapefile_path"`
	ShapefileNameField string   `yaml:"shapefile_name_field" mapstructure:"shapefile_name_field"`
}

// ChartConfig configures bar chart windows and rankings.
type ChartConfig struct {
	Visible int `yaml:"visible" mapstructure:"visible"`
	Step    int `yaml:"step" mapstructure:"step"`
	Min     int `yaml:"min" mapstructure:"min"`
	TopN    int `yaml:"top_n" mapstructure:"top_n"`
}

// AggregateConfig configures city-wide aggregation.
type AggregateConfig struct {
	MalformedPolicy string `yaml:"malformed_policy" mapstructure:"malformed_policy"`
}

// ProjectionConfig selects the source UTM zone.
type ProjectionConfig struct {
	Zone     int  `yaml:"zone" mapstructure:"zone"`
	Northern bool `yaml:"northern" mapstructure:"northern"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	// SnapshotTTLHours bounds how old a cached backend payload may be. 0 keeps it forever.
	SnapshotTTLHours int `yaml:"snapshot_ttl_hours" mapstructure:"snapshot_ttl_hours"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// RetryConfig configures retries of backend calls. Attempts of 1 disables retry.
type RetryConfig struct {
	Attempts         int     `yaml:"attempts" mapstructure:"attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	Jitter           float64 `yaml:"jitter" mapstructure:"jitter"`
}

// CacheConfig configures the projected ring cache.
type CacheConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ImportantNeighborhoods always show their labels on the choropleth maps.
var ImportantNeighborhoods = []string{
	"el Raval", "la Barceloneta", "la Sagrada Família", "la Dreta de l'Eixample",
	"l'Antiga Esquerra de l'Eixample", "la Nova Esquerra de l'Eixample", "Sants", "les Corts",
	"Vallcarca i els Penitents", "el Putxet i el Farró", "el Baix Guinardó", "el Carmel",
	"la Font d’en Fargues", "el Camp d’en Grassot i Gràcia Nova", "el Congrés i els Indians",
	"Navas", "Vallvidrera, el Tibidabo i les Planes", "Sant Martí de Provençals",
	"la Marina del Prat Vermell", "Diagonal Mar i el Front Marítim del Poblenou", "el Poblenou",
	"Provençals del Poblenou", "la Verneda i la Pau", "el Guinardó", "Can Baró",
	"Sarrià", "Pedralbes", "Sant Andreu", "Hostafrancs", "el Barri Gòtic", "el Fort Pienc",
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("BARRIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("backend.base_url", "http://127.0.0.1:5000")
	v.SetDefault("backend.timeout_secs", 15)
	v.SetDefault("backend.rate_limit", 10.0)
	v.SetDefault("backend.rate_burst", 5)
	v.SetDefault("backend.breaker_threshold", 5)
	v.SetDefault("backend.breaker_cooldown_secs", 30)
	v.SetDefault("map.tooltip_zoom", 14)
	v.SetDefault("map.min_zoom", 12)
	v.SetDefault("map.max_zoom", 19)
	v.SetDefault("map.viewport_width", 1024)
	v.SetDefault("map.viewport_height", 768)
	v.SetDefault("map.padding", 0)
	v.SetDefault("map.important", ImportantNeighborhoods)
	v.SetDefault("map.shapefile_name_field", "NOM")
	v.SetDefault("chart.visible", 20)
	v.SetDefault("chart.step", 10)
	v.SetDefault("chart.min", 10)
	v.SetDefault("chart.top_n", 10)
	v.SetDefault("aggregate.malformed_policy", "zero")
	v.SetDefault("projection.zone", 31)
	v.SetDefault("projection.northern", true)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "barrio.db")
	v.SetDefault("store.snapshot_ttl_hours", 24)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("retry.attempts", 1)
	v.SetDefault("retry.initial_backoff_ms", 250)
	v.SetDefault("retry.max_backoff_ms", 5000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter", 0.2)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Mode is "serve"
// or "cli".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Aggregate.MalformedPolicy {
	case "zero", "exclude":
	default:
		errs = append(errs, fmt.Sprintf("aggregate.malformed_policy must be zero or exclude, got %q", c.Aggregate.MalformedPolicy))
	}
	if c.Projection.Zone < 1 || c.Projection.Zone > 60 {
		errs = append(errs, fmt.Sprintf("projection.zone must be between 1 and 60, got %d", c.Projection.Zone))
	}
	if c.Map.MinZoom > c.Map.MaxZoom {
		errs = append(errs, "map.min_zoom must be <= map.max_zoom")
	}
	if c.Chart.Min < 1 || c.Chart.Step < 1 {
		errs = append(errs, "chart.min and chart.step must be >= 1")
	}
	if c.Backend.BaseURL == "" {
		errs = append(errs, "backend.base_url is required")
	}

	switch mode {
	case "cli":
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		switch c.Store.Driver {
		case "sqlite", "postgres":
			if c.Store.DatabaseURL == "" {
				errs = append(errs, "store.database_url is required")
			}
		case "memory":
		default:
			errs = append(errs, fmt.Sprintf("store.driver must be sqlite, postgres or memory, got %q", c.Store.Driver))
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
