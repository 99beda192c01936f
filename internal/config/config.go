// Package config loads and validates configuration from environment
// variables, with optional .env file support for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime settings for the crypto engine.
type Config struct {
	// HTTP
	Port string

	// Storage. Empty DatabaseURL selects the in-memory store.
	DatabaseURL string
	RedisURL    string

	// Tick scheduling. Each tick waits a uniform random interval in
	// [TickIntervalMin, TickIntervalMax].
	TickIntervalMin time.Duration
	TickIntervalMax time.Duration

	// Revolatilization cadence (daily in production).
	VolatilityInterval time.Duration

	// Trading
	FeeRate         float64 // fraction, e.g. 0.001 = 0.1%
	StartingBalance float64 // points granted to unseen users

	// Simulation
	TargetWinRate float64
	AdvancedMode  bool
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first if present; real env vars win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisURL:           os.Getenv("REDIS_URL"),
		TickIntervalMin:    getDuration("TICK_INTERVAL_MIN", 15*time.Second),
		TickIntervalMax:    getDuration("TICK_INTERVAL_MAX", 75*time.Second),
		VolatilityInterval: getDuration("VOLATILITY_INTERVAL", 24*time.Hour),
		FeeRate:            getFloat("FEE_RATE", 0.002),
		StartingBalance:    getFloat("STARTING_BALANCE", 1000),
		TargetWinRate:      getFloat("TARGET_WIN_RATE", 0.35),
		AdvancedMode:       getBool("ADVANCED_MODE", false),
	}

	if cfg.TickIntervalMin <= 0 || cfg.TickIntervalMax < cfg.TickIntervalMin {
		return nil, fmt.Errorf("config: invalid tick interval range [%s, %s]",
			cfg.TickIntervalMin, cfg.TickIntervalMax)
	}
	if cfg.FeeRate < 0 || cfg.FeeRate >= 1 {
		return nil, fmt.Errorf("config: FEE_RATE must be in [0, 1), got %v", cfg.FeeRate)
	}
	if cfg.TargetWinRate <= 0 || cfg.TargetWinRate >= 1 {
		return nil, fmt.Errorf("config: TARGET_WIN_RATE must be in (0, 1), got %v", cfg.TargetWinRate)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
