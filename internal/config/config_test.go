package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %s, want 8080", cfg.Port)
	}
	if cfg.TickIntervalMin != 15*time.Second || cfg.TickIntervalMax != 75*time.Second {
		t.Errorf("tick interval = [%s, %s], want [15s, 75s]", cfg.TickIntervalMin, cfg.TickIntervalMax)
	}
	if cfg.FeeRate != 0.002 {
		t.Errorf("FeeRate = %v, want 0.002", cfg.FeeRate)
	}
	if cfg.StartingBalance != 1000 {
		t.Errorf("StartingBalance = %v, want 1000", cfg.StartingBalance)
	}
	if cfg.TargetWinRate != 0.35 {
		t.Errorf("TargetWinRate = %v, want 0.35", cfg.TargetWinRate)
	}
	if cfg.AdvancedMode {
		t.Error("AdvancedMode should default to false")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("TICK_INTERVAL_MIN", "1s")
	t.Setenv("TICK_INTERVAL_MAX", "5s")
	t.Setenv("FEE_RATE", "0.01")
	t.Setenv("ADVANCED_MODE", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("Port = %s, want 9090", cfg.Port)
	}
	if cfg.TickIntervalMin != time.Second || cfg.TickIntervalMax != 5*time.Second {
		t.Errorf("tick interval = [%s, %s], want [1s, 5s]", cfg.TickIntervalMin, cfg.TickIntervalMax)
	}
	if cfg.FeeRate != 0.01 {
		t.Errorf("FeeRate = %v, want 0.01", cfg.FeeRate)
	}
	if !cfg.AdvancedMode {
		t.Error("AdvancedMode should be enabled")
	}
}

func TestLoadRejectsInvertedTickRange(t *testing.T) {
	t.Setenv("TICK_INTERVAL_MIN", "60s")
	t.Setenv("TICK_INTERVAL_MAX", "10s")

	if _, err := Load(); err == nil {
		t.Error("want error for max < min")
	}
}

func TestLoadRejectsBadFeeRate(t *testing.T) {
	t.Setenv("FEE_RATE", "1.5")
	if _, err := Load(); err == nil {
		t.Error("want error for fee rate >= 1")
	}
}

func TestLoadRejectsBadWinRate(t *testing.T) {
	t.Setenv("TARGET_WIN_RATE", "0")
	if _, err := Load(); err == nil {
		t.Error("want error for win rate outside (0, 1)")
	}
}

func TestLoadIgnoresUnparseableValues(t *testing.T) {
	t.Setenv("FEE_RATE", "lots")
	t.Setenv("TICK_INTERVAL_MIN", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.FeeRate != 0.002 {
		t.Errorf("FeeRate = %v, want default 0.002", cfg.FeeRate)
	}
	if cfg.TickIntervalMin != 15*time.Second {
		t.Errorf("TickIntervalMin = %s, want default 15s", cfg.TickIntervalMin)
	}
}
