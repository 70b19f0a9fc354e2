// Package config loads testpulse settings from defaults, an optional YAML
// file and TESTPULSE_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kamilpajak/testpulse/internal/cluster"
	"github.com/kamilpajak/testpulse/internal/policy"
)

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig controls the HTTP listeners.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
	// RateLimit is requests per second across /api; 0 disables limiting.
	RateLimit float64 `yaml:"rateLimit"`
	RateBurst int     `yaml:"rateBurst"`
}

// DatabaseConfig configures the optional PostgreSQL archive.
type DatabaseConfig struct {
	URL     string `yaml:"url"`
	Migrate bool   `yaml:"migrate"`
}

// IngestConfig controls report ingestion.
type IngestConfig struct {
	WatchDir string `yaml:"watchDir"`
	Workers  int    `yaml:"workers"`
}

// AnalysisConfig holds the default query parameters.
type AnalysisConfig struct {
	SimilarityThreshold  float64         `yaml:"similarityThreshold"`
	Clustering           cluster.Options `yaml:"clustering"`
	FailureRateThreshold float64         `yaml:"failureRateThreshold"`
	RecentWindow         int             `yaml:"recentWindow"`
	HistoryBuilds        int             `yaml:"historyBuilds"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load initialises Config from a YAML file and optional environment
// overrides. An empty path falls back to TESTPULSE_CONFIG.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("TESTPULSE_CONFIG")
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
			RateLimit:       50,
			RateBurst:       100,
		},
		Ingest: IngestConfig{Workers: 4},
		Analysis: AnalysisConfig{
			SimilarityThreshold:  policy.DefaultSimilarityThreshold,
			Clustering:           cluster.DefaultOptions(),
			FailureRateThreshold: policy.DefaultFailureRateThreshold,
			RecentWindow:         policy.DefaultRecentWindow,
			HistoryBuilds:        policy.DefaultHistoryBuilds,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Validate rejects settings that cannot be clamped into something sensible.
func (c *Config) Validate() error {
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("invalid config: server.rateLimit must not be negative")
	}
	if c.Ingest.Workers < 1 {
		c.Ingest.Workers = 1
	}
	if c.Server.RateBurst < 1 {
		c.Server.RateBurst = 1
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TESTPULSE_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("TESTPULSE_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("TESTPULSE_GRACEFUL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.GracefulTimeout = d
		}
	}
	if v := os.Getenv("TESTPULSE_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Server.RateLimit = f
		}
	}
	if v := os.Getenv("TESTPULSE_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.RateBurst = n
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("TESTPULSE_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("TESTPULSE_DATABASE_MIGRATE"); v != "" {
		cfg.Database.Migrate = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("TESTPULSE_WATCH_DIR"); v != "" {
		cfg.Ingest.WatchDir = v
	}
	if v := os.Getenv("TESTPULSE_INGEST_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingest.Workers = n
		}
	}
	if v := os.Getenv("TESTPULSE_SIMILARITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Analysis.SimilarityThreshold = f
		}
	}
	if v := os.Getenv("TESTPULSE_FAILURE_RATE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Analysis.FailureRateThreshold = f
		}
	}
	if v := os.Getenv("TESTPULSE_RECENT_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Analysis.RecentWindow = n
		}
	}
	if v := os.Getenv("TESTPULSE_HISTORY_BUILDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Analysis.HistoryBuilds = n
		}
	}
	if v := os.Getenv("TESTPULSE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TESTPULSE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
