// Package engine computes per-tick price deltas for the simulated market.
//
// The baseline "explosive" mode is a pure function of coin state and the
// injected randomness source. The optional advanced mode blends a
// pattern-derived delta, a small exploitable "skill" delta from technical
// indicators, and a dominant random delta, then amplifies the pattern
// component by the current market phase.
//
// Deltas are fractional price changes and deliberately unbounded here;
// clamping, flooring, and rounding happen at the commit step in the market
// manager. All the stochastic math is float64 — decimals only appear at the
// commit boundary.
package engine

import (
	"math/rand"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/gamby/crypto-engine/internal/model"
)

const (
	// MinimumPrice is the global price floor applied at commit.
	MinimumPrice = 0.0001

	// PricePrecision is the number of decimal places prices are rounded
	// to at commit.
	PricePrecision int32 = 6

	// AmountPrecision is the number of decimal places for coin amounts.
	AmountPrecision int32 = 3

	// Per-commit clamp: a single tick can at most multiply the price by
	// 100 or divide it by 100.
	maxDropFactor = 0.01
	maxGainFactor = 100.0

	megaChance = 0.15

	// Advanced-mode blend weights. They intentionally sum above 1 so
	// randomness dominates while the technical signals stay exploitable.
	patternWeight = 0.3
	skillWeight   = 0.3
	randomWeight  = 0.7
)

// MinimumPriceDecimal is MinimumPrice as a decimal, for commit-side checks.
var MinimumPriceDecimal = decimal.RequireFromString("0.0001")

// Engine computes raw price deltas. Safe for concurrent use; the RNG and
// per-coin pattern state sit behind one mutex.
type Engine struct {
	mu       sync.Mutex
	rng      *rand.Rand
	advanced bool

	patterns   map[string]*patternState
	indicators map[string]Indicators
	phase      model.MarketPhase
}

// New creates an Engine. The caller owns the RNG seed, which makes runs
// reproducible in tests. With advanced=false only the explosive baseline
// runs.
func New(rng *rand.Rand, advanced bool) *Engine {
	return &Engine{
		rng:        rng,
		advanced:   advanced,
		patterns:   make(map[string]*patternState),
		indicators: make(map[string]Indicators),
		phase:      model.PhaseNormal,
	}
}

// Advanced reports whether pattern mode is active.
func (e *Engine) Advanced() bool { return e.advanced }

// ComputeDelta returns the raw fractional price change for one tick of the
// given coin, before balancing and before commit clamping.
func (e *Engine) ComputeDelta(coin *model.Coin) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.advanced {
		return e.advancedDelta(coin)
	}
	return e.explosiveDelta(coin)
}

// explosiveDelta is the baseline movement: a 10-40% base move scaled by
// volatility, with a 15% chance of a 50-150% mega move replacing it.
// Direction is a fair coin flip regardless of the coin's trend factor.
func (e *Engine) explosiveDelta(coin *model.Coin) float64 {
	direction := e.sign()
	base := e.uniform(0.10, 0.40)
	scale := 1 + coin.DailyVolatility/10.0
	delta := direction * base * scale

	if e.rng.Float64() < megaChance {
		delta = e.sign() * e.uniform(0.50, 1.50)
	}
	return delta
}

// advancedDelta blends pattern, skill, and random components.
func (e *Engine) advancedDelta(coin *model.Coin) float64 {
	pattern := e.stepPattern(coin.Ticker)
	skill := e.skillDelta(coin.Ticker)
	random := e.randomDelta()

	return pattern*e.phaseMultiplier()*patternWeight +
		skill*skillWeight +
		random*randomWeight
}

// randomDelta is the dominant stochastic component in advanced mode:
// occasional extreme and large moves over a small base wobble.
func (e *Engine) randomDelta() float64 {
	if e.rng.Float64() < 0.05 {
		return e.sign() * e.uniform(0.30, 1.00)
	}
	if e.rng.Float64() < 0.15 {
		return e.sign() * e.uniform(0.10, 0.30)
	}
	return e.sign() * e.uniform(0.01, 0.15)
}

// skillDelta derives a small predictable bias from the coin's technical
// indicators. Attentive players can read the same indicators through the
// analysis endpoint and front-run it.
func (e *Engine) skillDelta(ticker string) float64 {
	ind, ok := e.indicators[ticker]
	if !ok {
		return 0
	}

	var ma float64
	switch ind.Crossover {
	case CrossoverBullish:
		ma = 0.02
	case CrossoverBearish:
		ma = -0.02
	}

	trend := ind.TrendStrength * 0.03

	var sr float64
	if ind.NearSupport || ind.NearResistance {
		sr = e.uniform(-0.01, 0.01)
	}
	return ma + trend + sr
}

// ObservePrice feeds a committed price history back into the per-coin
// indicator state. Called by the manager after each commit.
func (e *Engine) ObservePrice(ticker string, history []float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.indicators[ticker] = ComputeIndicators(history)
}

// Indicators returns the current indicator snapshot for a ticker.
func (e *Engine) IndicatorsFor(ticker string) Indicators {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.indicators[ticker]
}

func (e *Engine) sign() float64 {
	if e.rng.Float64() > 0.5 {
		return 1
	}
	return -1
}

func (e *Engine) uniform(lo, hi float64) float64 {
	return lo + e.rng.Float64()*(hi-lo)
}
