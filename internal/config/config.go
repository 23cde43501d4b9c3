// Package config loads service configuration from a YAML file with
// environment variable overrides for deployment knobs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	yaml "gopkg.in/yaml.v3"

	"fieldsched/internal/model"
)

// Config holds everything the service and engine need at startup.
type Config struct {
	ListenAddr  string `yaml:"listenAddr"`
	DatabaseURL string `yaml:"databaseUrl"`
	RedisURL    string `yaml:"redisUrl"`

	// Travel/geocoding providers. Empty URLs select the geometric and
	// depot fallbacks respectively.
	RoutingURL  string `yaml:"routingUrl"`
	GeocoderURL string `yaml:"geocoderUrl"`

	// FallbackDepot substitutes for unresolvable addresses. A fixed
	// point keeps passes deterministic.
	FallbackDepot model.GeoPoint `yaml:"fallbackDepot"`

	Weights            model.ScoreWeights `yaml:"weights"`
	BufferMin          int                `yaml:"bufferMin"`
	MinViableMin       int                `yaml:"minViableMin"`
	BaselineHourlyRate float64            `yaml:"baselineHourlyRate"`

	// Provider fan-out limits.
	ProviderRPS         float64       `yaml:"providerRps"`
	ProviderBurst       int           `yaml:"providerBurst"`
	ProviderConcurrency int           `yaml:"providerConcurrency"`
	PassTimeBudget      time.Duration `yaml:"passTimeBudget"`

	// PassLockTTL forces release of a wedged pass lock.
	PassLockTTL time.Duration `yaml:"passLockTtl"`

	// DebounceQuiet is how long the replan trigger waits after the last
	// change notification before starting a pass.
	DebounceQuiet time.Duration `yaml:"debounceQuiet"`

	WebhookMaxAttempts int `yaml:"webhookMaxAttempts"`
}

// Default returns the built-in configuration. The fallback depot is the
// Aarhus office; weights mirror the production tuning.
func Default() Config {
	return Config{
		ListenAddr:          ":8080",
		FallbackDepot:       model.GeoPoint{Lat: 56.1629, Lng: 10.2039},
		Weights:             model.DefaultScoreWeights(),
		BufferMin:           15,
		MinViableMin:        30,
		BaselineHourlyRate:  300,
		ProviderRPS:         10,
		ProviderBurst:       20,
		ProviderConcurrency: 8,
		PassTimeBudget:      2 * time.Minute,
		PassLockTTL:         5 * time.Minute,
		DebounceQuiet:       2 * time.Second,
		WebhookMaxAttempts:  10,
	}
}

// Load reads path (optional) over defaults, then applies env overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.ListenAddr = ":" + v
	}
	c.DatabaseURL = envOr("DATABASE_URL", c.DatabaseURL)
	c.RedisURL = envOr("REDIS_URL", c.RedisURL)
	c.RoutingURL = envOr("ROUTING_URL", c.RoutingURL)
	c.GeocoderURL = envOr("GEOCODER_URL", c.GeocoderURL)
	if v := os.Getenv("WEBHOOK_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.WebhookMaxAttempts = n
		}
	}
	if v := os.Getenv("PROVIDER_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			c.ProviderRPS = f
		}
	}
}

func (c *Config) validate() error {
	w := c.Weights
	if w.Revenue < 0 || w.Balance < 0 || w.Priority < 0 || w.Geography < 0 {
		return fmt.Errorf("score weights must be non-negative")
	}
	if w.Revenue+w.Balance+w.Priority+w.Geography == 0 {
		c.Weights = model.DefaultScoreWeights()
	}
	if c.BufferMin < 0 {
		return fmt.Errorf("bufferMin must be >= 0")
	}
	if c.MinViableMin <= 0 {
		c.MinViableMin = 30
	}
	if c.BaselineHourlyRate <= 0 {
		c.BaselineHourlyRate = 300
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
