package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPath names the environment variable consulted when no config path is given.
const EnvPath = "PLANCOST_CONFIG"

// Config holds tunables for exploration, statistics, logging, insights and diff reporting.
type Config struct {
	Explore  ExploreConfig `json:"explore" yaml:"explore"`
	Stats    StatsConfig   `json:"stats" yaml:"stats"`
	Logging  LoggingConfig `json:"logging" yaml:"logging"`
	Insights InsightConfig `json:"insights" yaml:"insights"`
	Diff     DiffConfig    `json:"diff" yaml:"diff"`
}

// ExploreConfig controls alternative plan exploration.
type ExploreConfig struct {
	Bins            int      `json:"bins" yaml:"bins"`
	Parallelism     int      `json:"parallelism" yaml:"parallelism"`
	IncludeDefaults bool     `json:"include_defaults" yaml:"include_defaults"`
	Timeout         Duration `json:"timeout" yaml:"timeout"`
}

// StatsConfig controls catalog statistics lookups.
type StatsConfig struct {
	CacheSize int `json:"cache_size" yaml:"cache_size"`
}

// LoggingConfig selects the log level and an optional Seq endpoint.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	SeqURL string `json:"seq_url" yaml:"seq_url"`
}

// InsightConfig defines thresholds for insight generation.
type InsightConfig struct {
	HotspotCriticalPercent float64 `json:"hotspot_critical_percent" yaml:"hotspot_critical_percent"`
	HotspotWarningPercent  float64 `json:"hotspot_warning_percent" yaml:"hotspot_warning_percent"`
	MismatchWarningRatio   float64 `json:"mismatch_warning_ratio" yaml:"mismatch_warning_ratio"`
	MismatchCriticalRatio  float64 `json:"mismatch_critical_ratio" yaml:"mismatch_critical_ratio"`
	MaxMismatchMessages    int     `json:"max_mismatch_messages" yaml:"max_mismatch_messages"`
}

// DiffConfig defines thresholds for diff summaries.
type DiffConfig struct {
	MinCostDelta     float64 `json:"min_cost_delta" yaml:"min_cost_delta"`
	MinPercentChange float64 `json:"min_percent_change" yaml:"min_percent_change"`
	MaxItems         int     `json:"max_items" yaml:"max_items"`
	CriticalPercent  float64 `json:"critical_percent" yaml:"critical_percent"`
	WarningPercent   float64 `json:"warning_percent" yaml:"warning_percent"`
}

// Duration is a time.Duration written as text ("45s") in config files.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

var (
	mu     sync.RWMutex
	active = Default()
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Explore: ExploreConfig{
			Bins:        10,
			Parallelism: 1,
			Timeout:     Duration(2 * time.Minute),
		},
		Stats: StatsConfig{
			CacheSize: 128,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Insights: InsightConfig{
			HotspotCriticalPercent: 0.50,
			HotspotWarningPercent:  0.25,
			MismatchWarningRatio:   2.0,
			MismatchCriticalRatio:  10.0,
			MaxMismatchMessages:    3,
		},
		Diff: DiffConfig{
			MinCostDelta:     1.0,
			MinPercentChange: 5.0,
			MaxItems:         8,
			CriticalPercent:  50.0,
			WarningPercent:   20.0,
		},
	}
}

// Active returns the currently applied configuration.
func Active() Config {
	mu.RLock()
	defer mu.RUnlock()
	return active
}

// Use replaces the active configuration.
func Use(cfg Config) {
	mu.Lock()
	active = cfg
	mu.Unlock()
}

// Load reads a configuration file on top of the defaults. Files ending in .json are JSON,
// everything else is YAML.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &cfg)
	default:
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects settings the explorer and ranker cannot work with.
func (c Config) Validate() error {
	switch {
	case c.Explore.Bins < 1:
		return fmt.Errorf("explore.bins must be at least 1, got %d", c.Explore.Bins)
	case c.Explore.Parallelism < 1:
		return fmt.Errorf("explore.parallelism must be at least 1, got %d", c.Explore.Parallelism)
	case c.Explore.Timeout <= 0:
		return fmt.Errorf("explore.timeout must be positive, got %s", time.Duration(c.Explore.Timeout))
	case c.Stats.CacheSize < 1:
		return fmt.Errorf("stats.cache_size must be at least 1, got %d", c.Stats.CacheSize)
	}
	return nil
}

// Apply loads configuration from path, falling back to $PLANCOST_CONFIG. An empty path resets
// to the defaults.
func Apply(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		path = strings.TrimSpace(os.Getenv(EnvPath))
	}
	if path == "" {
		Use(Default())
		return nil
	}
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	Use(cfg)
	return nil
}
