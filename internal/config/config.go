// Package config loads service configuration from an optional YAML file,
// an optional .env file and the process environment, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"globalroute/internal/graph"
)

type Config struct {
	Server     Server     `yaml:"server"`
	Graph      Graph      `yaml:"graph"`
	Search     Search     `yaml:"search"`
	Classifier Classifier `yaml:"classifier"`
	Cache      Cache      `yaml:"cache"`
	RateLimit  RateLimit  `yaml:"rate_limit"`
	Tracing    Tracing    `yaml:"tracing"`
	Log        Log        `yaml:"log"`
}

type Server struct {
	Port              string        `yaml:"port"`
	AllowOrigins      []string      `yaml:"allow_origins"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	Debug             bool          `yaml:"debug"`
}

type Graph struct {
	// Snapshot is a .json or .gob file; DatabaseURL is used when empty.
	Snapshot    string `yaml:"snapshot"`
	DatabaseURL string `yaml:"database_url"`
}

type Search struct {
	Timeout            time.Duration     `yaml:"timeout"`
	MaxExpansions      int               `yaml:"max_expansions"`
	HeuristicCacheSize int               `yaml:"heuristic_cache_size"`
	Benchmarks         *graph.Benchmarks `yaml:"benchmarks"`
}

type Classifier struct {
	// Provider is gemini, catalog or none. Empty picks gemini when an API
	// key is present and catalog otherwise.
	Provider   string        `yaml:"provider"`
	Catalog    string        `yaml:"catalog"`
	Endpoint   string        `yaml:"endpoint"`
	Model      string        `yaml:"model"`
	APIKey     string        `yaml:"api_key"`
	Timeout    time.Duration `yaml:"timeout"`
	MinScore   float64       `yaml:"min_score"`
	TopMatches int           `yaml:"top_matches"`
}

type Cache struct {
	RedisURL string        `yaml:"redis_url"`
	TTL      time.Duration `yaml:"ttl"`
	Size     int           `yaml:"size"`
}

type RateLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type Tracing struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	bench := graph.DefaultBenchmarks()
	return Config{
		Server: Server{
			Port:              "8000",
			AllowOrigins:      []string{"*"},
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Graph: Graph{Snapshot: "data/graph.gob"},
		Search: Search{
			Timeout:            30 * time.Second,
			MaxExpansions:      1_000_000,
			HeuristicCacheSize: 256,
			Benchmarks:         &bench,
		},
		Classifier: Classifier{
			Catalog:    "data/logistics_data.json",
			Timeout:    8 * time.Second,
			MinScore:   30,
			TopMatches: 10,
		},
		Cache:     Cache{TTL: 24 * time.Hour, Size: 1024},
		RateLimit: RateLimit{RPS: 20, Burst: 40},
		Tracing:   Tracing{Exporter: "stdout", ServiceName: "globalroute", SampleRatio: 1},
		Log:       Log{Level: "info", Format: "json"},
	}
}

// Load builds the configuration. path may be empty. A missing .env file is
// not an error.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(key); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("PORT", &c.Server.Port)
	if v, ok := lookup("ALLOW_ORIGINS"); ok && v != "" {
		c.Server.AllowOrigins = splitList(v)
	}
	boolean("DEBUG", &c.Server.Debug)
	str("GRAPH_SNAPSHOT", &c.Graph.Snapshot)
	str("DATABASE_URL", &c.Graph.DatabaseURL)
	duration("SEARCH_TIMEOUT", &c.Search.Timeout)
	integer("SEARCH_MAX_EXPANSIONS", &c.Search.MaxExpansions)
	str("CLASSIFIER_PROVIDER", &c.Classifier.Provider)
	str("CLASSIFIER_CATALOG", &c.Classifier.Catalog)
	str("GEMINI_API_KEY", &c.Classifier.APIKey)
	str("GEMINI_MODEL", &c.Classifier.Model)
	duration("CLASSIFIER_TIMEOUT", &c.Classifier.Timeout)
	str("REDIS_URL", &c.Cache.RedisURL)
	duration("CACHE_TTL", &c.Cache.TTL)
	float("RATE_RPS", &c.RateLimit.RPS)
	integer("RATE_BURST", &c.RateLimit.Burst)
	boolean("TRACING_ENABLED", &c.Tracing.Enabled)
	str("TRACING_EXPORTER", &c.Tracing.Exporter)
	str("OTLP_ENDPOINT", &c.Tracing.Endpoint)
	float("TRACING_SAMPLE_RATIO", &c.Tracing.SampleRatio)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	return errors.Join(errs...)
}

// Validate checks value ranges.
func (c Config) Validate() error {
	var errs []error
	if c.Graph.Snapshot == "" && c.Graph.DatabaseURL == "" {
		errs = append(errs, errors.New("graph: snapshot or database_url is required"))
	}
	if c.Search.MaxExpansions < 0 {
		errs = append(errs, errors.New("search.max_expansions must be >= 0"))
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("rate_limit values must be >= 0"))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, errors.New("tracing.sample_ratio must be within [0,1]"))
	}
	switch c.Classifier.Provider {
	case "", "gemini", "catalog", "none":
	default:
		errs = append(errs, fmt.Errorf("classifier.provider: unknown %q", c.Classifier.Provider))
	}
	if c.Search.Benchmarks != nil {
		for m, b := range c.Search.Benchmarks.Modes {
			if _, err := graph.ParseMode(string(m)); err != nil {
				errs = append(errs, fmt.Errorf("search.benchmarks: %w", err))
			}
			if b.SpeedKmh <= 0 {
				errs = append(errs, fmt.Errorf("search.benchmarks.%s: speed_kmh must be > 0", m))
			}
		}
	}
	return errors.Join(errs...)
}

// ClassifierProvider resolves the effective provider.
func (c Config) ClassifierProvider() string {
	if c.Classifier.Provider != "" {
		return c.Classifier.Provider
	}
	if c.Classifier.APIKey != "" {
		return "gemini"
	}
	return "catalog"
}

// Redacted returns a copy safe to expose on debug endpoints.
func (c Config) Redacted() Config {
	if c.Classifier.APIKey != "" {
		c.Classifier.APIKey = "***"
	}
	if c.Graph.DatabaseURL != "" {
		c.Graph.DatabaseURL = "***"
	}
	if c.Cache.RedisURL != "" {
		c.Cache.RedisURL = "***"
	}
	return c
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
