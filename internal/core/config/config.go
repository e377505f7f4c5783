package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pulsedeck-lab/pulsedeck/internal/families"
)

// Config represents the top-level application config plus the resolved
// metric family definitions.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Push     PushConfig     `koanf:"push"`

	// Families is populated by Load after parsing family files.
	Families families.Repository `koanf:"-"`
}

type ServerConfig struct {
	Port int    `koanf:"port"`
	Host string `koanf:"host"`
	Mode string `koanf:"mode"` // debug | release
}

type DatabaseConfig struct {
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
}

type MetricsConfig struct {
	ConfigDir       string `koanf:"config_dir"`       // metric family YAML files
	RequireFamilies bool   `koanf:"require_families"` // fail startup when no families load
	RefreshInterval string `koanf:"refresh_interval"` // background refresh cadence per fingerprint
	RollingWindow   string `koanf:"rolling_window"`   // short gauge window
	AnchorWindow    string `koanf:"anchor_window"`    // long gauge window
	MaxLookbackDays int    `koanf:"max_lookback_days"`
	FetchLimit      int    `koanf:"fetch_limit"` // per-query record cap
	CacheCapacity   int    `koanf:"cache_capacity"`
}

type PushConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"` // websocket endpoint for record-change notifications
}

// RefreshIntervalDuration parses the configured refresh interval.
// Validate guarantees this succeeds after Load.
func (c MetricsConfig) RefreshIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.RefreshInterval)
	return d
}

// RollingWindowDuration parses the configured short gauge window.
func (c MetricsConfig) RollingWindowDuration() time.Duration {
	d, _ := time.ParseDuration(c.RollingWindow)
	return d
}

// AnchorWindowDuration parses the configured long gauge window.
func (c MetricsConfig) AnchorWindowDuration() time.Duration {
	d, _ := time.ParseDuration(c.AnchorWindow)
	return d
}

// MaxLookback converts the configured lookback days to a duration.
func (c MetricsConfig) MaxLookback() time.Duration {
	return time.Duration(c.MaxLookbackDays) * 24 * time.Hour
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.Host) == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.Mode != "debug" && c.Server.Mode != "release" {
		return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
	}

	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be > 0")
	}
	if c.Database.MaxIdleConns <= 0 {
		return fmt.Errorf("database.max_idle_conns must be > 0")
	}

	if strings.TrimSpace(c.Metrics.ConfigDir) == "" {
		return fmt.Errorf("metrics.config_dir is required")
	}
	for field, value := range map[string]string{
		"metrics.refresh_interval": c.Metrics.RefreshInterval,
		"metrics.rolling_window":   c.Metrics.RollingWindow,
		"metrics.anchor_window":    c.Metrics.AnchorWindow,
	} {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", field, value, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be > 0", field)
		}
	}
	if c.Metrics.AnchorWindowDuration() < c.Metrics.RollingWindowDuration() {
		return fmt.Errorf("metrics.anchor_window must not be shorter than metrics.rolling_window")
	}
	if c.Metrics.MaxLookbackDays <= 0 {
		return fmt.Errorf("metrics.max_lookback_days must be > 0")
	}
	if c.Metrics.FetchLimit <= 0 {
		return fmt.Errorf("metrics.fetch_limit must be > 0")
	}
	if c.Metrics.CacheCapacity <= 0 {
		return fmt.Errorf("metrics.cache_capacity must be > 0")
	}

	if c.Push.Enabled && strings.TrimSpace(c.Push.URL) == "" {
		return fmt.Errorf("push.url is required when push.enabled is true")
	}

	return nil
}

// Load parses config from file + env, validates it, then loads and validates
// metric family definitions.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":               8080,
		"server.host":               "0.0.0.0",
		"server.mode":               "release",
		"database.dsn":              "postgres://localhost:5432/pulsedeck?sslmode=disable",
		"database.max_open_conns":   25,
		"database.max_idle_conns":   25,
		"database.auto_migrate":     true,
		"metrics.config_dir":        "./config/families",
		"metrics.require_families":  true,
		"metrics.refresh_interval":  "30s",
		"metrics.rolling_window":    "1h",
		"metrics.anchor_window":     "24h",
		"metrics.max_lookback_days": 7,
		"metrics.fetch_limit":       10000,
		"metrics.cache_capacity":    256,
		"push.enabled":              false,
		"push.url":                  "",
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("PULSEDECK_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "PULSEDECK_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	repo, err := families.NewFileSystemRepository(cfg.Metrics.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load metric families: %w", err)
	}
	if cfg.Metrics.RequireFamilies && len(repo.List()) == 0 {
		return nil, fmt.Errorf("no metric families found in %q", cfg.Metrics.ConfigDir)
	}
	cfg.Families = repo

	return &cfg, nil
}
