package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.BufferMin != 15 || cfg.MinViableMin != 30 {
		t.Fatalf("buffer defaults: %d/%d", cfg.BufferMin, cfg.MinViableMin)
	}
	if cfg.FallbackDepot.Lat == 0 || cfg.FallbackDepot.Lng == 0 {
		t.Fatal("fallback depot must be a fixed point")
	}
	w := cfg.Weights
	if w.Revenue+w.Balance+w.Priority+w.Geography != 1.0 {
		t.Fatalf("default weights must sum to 1, got %+v", w)
	}
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := []byte(`
listenAddr: ":9000"
routingUrl: "http://osrm.internal:5000"
weights:
  revenue: 0.5
  balance: 0.2
  priority: 0.2
  geography: 0.1
bufferMin: 10
`)
	if err := os.WriteFile(path, yaml, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ROUTING_URL", "http://osrm.override:5000")
	t.Setenv("PORT", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("GEOCODER_URL", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":9000" || cfg.BufferMin != 10 {
		t.Fatalf("yaml not applied: %+v", cfg)
	}
	if cfg.RoutingURL != "http://osrm.override:5000" {
		t.Fatalf("env override not applied: %s", cfg.RoutingURL)
	}
	if cfg.Weights.Revenue != 0.5 {
		t.Fatalf("weights not applied: %+v", cfg.Weights)
	}
}

func TestValidateRejectsNegativeWeights(t *testing.T) {
	cfg := Default()
	cfg.Weights.Revenue = -1
	if err := cfg.validate(); err == nil {
		t.Fatal("expected error for negative weight")
	}
}
