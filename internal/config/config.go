// Package config loads engine configuration from an optional YAML file
// with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/luminahr/insight/services/risk_engine/internal/reasoning"
)

// Config is the full engine configuration.
type Config struct {
	LogLevel string `yaml:"log_level"`

	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickHouseDSN string `yaml:"clickhouse_dsn"`

	Scope          string `yaml:"scope"`
	LookbackMonths int    `yaml:"lookback_months"`
	MaxParallel    int    `yaml:"max_parallel"`

	ResultCacheTTLSeconds    int `yaml:"result_cache_ttl_seconds"`
	ThresholdCacheTTLSeconds int `yaml:"threshold_cache_ttl_seconds"`
	RuleCacheTTLSeconds      int `yaml:"rule_cache_ttl_seconds"`
	StageCacheTTLSeconds     int `yaml:"stage_cache_ttl_seconds"`

	BaseWeights reasoning.BaseWeights `yaml:"base_weights"`
}

// Load reads config.yaml (or $RISK_ENGINE_CONFIG) if present, then applies
// environment overrides and defaults.
func Load() (*Config, error) {
	var cfg Config

	path := "config.yaml"
	if envPath := os.Getenv("RISK_ENGINE_CONFIG"); envPath != "" {
		path = envPath
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	cfg.LogLevel = envOrDefault("RISK_ENGINE_LOG_LEVEL", cfg.LogLevel)
	cfg.PostgresDSN = envOrDefault("POSTGRES_DSN", cfg.PostgresDSN)
	cfg.ClickHouseDSN = envOrDefault("CLICKHOUSE_DSN", cfg.ClickHouseDSN)
	cfg.Scope = envOrDefault("RISK_ENGINE_SCOPE", cfg.Scope)
	cfg.LookbackMonths = envOrDefaultInt("RISK_ENGINE_LOOKBACK_MONTHS", cfg.LookbackMonths)
	cfg.MaxParallel = envOrDefaultInt("RISK_ENGINE_MAX_PARALLEL", cfg.MaxParallel)
	cfg.ResultCacheTTLSeconds = envOrDefaultInt("RISK_ENGINE_RESULT_TTL_S", cfg.ResultCacheTTLSeconds)
	cfg.ThresholdCacheTTLSeconds = envOrDefaultInt("RISK_ENGINE_THRESHOLD_TTL_S", cfg.ThresholdCacheTTLSeconds)
	cfg.RuleCacheTTLSeconds = envOrDefaultInt("RISK_ENGINE_RULE_TTL_S", cfg.RuleCacheTTLSeconds)
	cfg.StageCacheTTLSeconds = envOrDefaultInt("RISK_ENGINE_STAGE_TTL_S", cfg.StageCacheTTLSeconds)

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Scope == "" {
		cfg.Scope = "global"
	}
	if cfg.LookbackMonths == 0 {
		cfg.LookbackMonths = reasoning.DefaultLookbackMonths
	}
	if cfg.MaxParallel == 0 {
		cfg.MaxParallel = 8
	}
	if cfg.BaseWeights == (reasoning.BaseWeights{}) {
		cfg.BaseWeights = reasoning.DefaultBaseWeights()
	}

	return &cfg, nil
}

// ResultCacheTTL returns the per-subject result TTL (default 1h).
func (c *Config) ResultCacheTTL() time.Duration {
	return ttlOrDefault(c.ResultCacheTTLSeconds, reasoning.DefaultCacheTTL)
}

// ThresholdCacheTTL returns the calibration TTL (default 6h).
func (c *Config) ThresholdCacheTTL() time.Duration {
	return ttlOrDefault(c.ThresholdCacheTTLSeconds, 6*time.Hour)
}

// RuleCacheTTL returns the rule store TTL (default 1h).
func (c *Config) RuleCacheTTL() time.Duration {
	return ttlOrDefault(c.RuleCacheTTLSeconds, time.Hour)
}

// StageCacheTTL returns the stage store TTL (default 1h).
func (c *Config) StageCacheTTL() time.Duration {
	return ttlOrDefault(c.StageCacheTTLSeconds, time.Hour)
}

func ttlOrDefault(seconds int, def time.Duration) time.Duration {
	if seconds <= 0 {
		return def
	}
	return time.Duration(seconds) * time.Second
}

// BuildLogger constructs the production JSON logger at the configured level.
func (c *Config) BuildLogger() (*zap.Logger, error) {
	var level zapcore.Level
	switch c.LogLevel {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	zcfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
	return zcfg.Build()
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
