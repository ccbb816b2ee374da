package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTestConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write test config: %v", err)
	}
	return path
}

func TestNewManagerAppliesDefaults(t *testing.T) {
	path := writeTestConfig(t, `
risk:
  base_position_sol: 0.5
  max_position_sol: 2.0
  max_concurrent_positions: 3
`)

	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	cfg := m.Get()
	if cfg.Watchlist.MinDataPoints != 20 {
		t.Errorf("expected default min_data_points 20, got %d", cfg.Watchlist.MinDataPoints)
	}
	if cfg.Risk.BasePositionSOL != 0.5 {
		t.Errorf("expected base_position_sol 0.5, got %f", cfg.Risk.BasePositionSOL)
	}
	if len(cfg.Position.TPLadder) != 4 {
		t.Errorf("expected default 4-rung tp ladder, got %d", len(cfg.Position.TPLadder))
	}
	if cfg.Trading.EnableTrading {
		t.Error("expected enable_trading to default false")
	}
}

func TestNewManagerRejectsInvalidConfig(t *testing.T) {
	path := writeTestConfig(t, `
risk:
  base_position_sol: 0
  max_concurrent_positions: 3
`)

	if _, err := NewManager(path); err == nil {
		t.Error("expected error for zero base_position_sol")
	}
}

func TestValidateRejectsMaxBelowBase(t *testing.T) {
	cfg := &Config{
		Risk: RiskConfig{
			BasePositionSOL:        1.0,
			MaxPositionSOL:         0.5,
			MaxConcurrentPositions: 1,
		},
		Watchlist: WatchlistConfig{MinDataPoints: 1},
		Storage:   StorageConfig{SQLitePath: "x.db"},
	}
	if err := Validate(cfg); err == nil {
		t.Error("expected error when max_position_sol < base_position_sol")
	}
}

func TestValidateRejectsOverallocatedLadder(t *testing.T) {
	cfg := &Config{
		Risk: RiskConfig{
			BasePositionSOL:        1.0,
			MaxPositionSOL:         2.0,
			MaxConcurrentPositions: 1,
		},
		Watchlist: WatchlistConfig{MinDataPoints: 1},
		Storage:   StorageConfig{SQLitePath: "x.db"},
		Position: PositionConfig{
			TPLadder: []TPLevelConfig{
				{Multiple: 1.5, Fraction: 0.6},
				{Multiple: 2.0, Fraction: 0.6},
			},
		},
	}
	if err := Validate(cfg); err == nil {
		t.Error("expected error for tp_ladder fractions summing above 1.0")
	}
}

func TestManagerUpdatePersistsEnableTrading(t *testing.T) {
	path := writeTestConfig(t, `
risk:
  base_position_sol: 0.5
  max_position_sol: 2.0
  max_concurrent_positions: 3
`)

	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	var notified bool
	m.SetOnChange(func(*Config) { notified = true })

	if err := m.Update(func(c *Config) { c.Trading.EnableTrading = true }); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !m.Get().Trading.EnableTrading {
		t.Error("expected enable_trading to be true after Update")
	}
	if !notified {
		t.Error("expected onChange callback to fire")
	}
}
