// Package balancer injects adversarial market mechanics so the long-run
// player win rate converges toward a configured target. It sits between the
// raw engine delta and the commit step: every tick each coin's delta passes
// through a set of probabilistic interventions whose aggregate lean is
// bearish, and a feedback loop periodically retunes how hard they hit based
// on the observed win rate.
package balancer

import (
	"context"
	"math"
	"math/rand"
	"sync"

	"github.com/gamby/crypto-engine/internal/store"
)

const (
	// Final delta clamp: a coin can lose at most 99% or gain at most 500%
	// in a single tick, whatever the mechanisms stack up to.
	minDelta = -0.99
	maxDelta = 5.0

	// Intensity bounds for the feedback loop.
	minIntensity = 0.25
	maxIntensity = 4.0

	// Hysteresis band around the target win rate. Inside the band the
	// intensity holds still.
	upperSlack = 0.15
	lowerSlack = 0.10
)

// Mechanism names, used in results, metrics, and the status report.
const (
	MechWhale        = "whale_trade"
	MechMarketMaker  = "market_maker"
	MechPumpAndDump  = "pump_and_dump"
	MechLiquidityGap = "liquidity_gap"
	MechTimingDelay  = "timing_delay"
)

// Result describes one pass through the balancer.
type Result struct {
	RawDelta   float64  `json:"raw_delta"`
	FinalDelta float64  `json:"final_delta"`
	Mechanisms []string `json:"mechanisms,omitempty"`
}

// Status is a point-in-time report for the balancer endpoint.
type Status struct {
	TargetWinRate  float64          `json:"target_win_rate"`
	SampledWinRate float64          `json:"sampled_win_rate"`
	SampledUsers   int              `json:"sampled_users"`
	Intensity      float64          `json:"intensity"`
	MechanismFires map[string]int64 `json:"mechanism_fires"`
}

// Balancer applies win-rate interventions. Safe for concurrent use.
type Balancer struct {
	mu     sync.Mutex
	rng    *rand.Rand
	target float64

	// intensity scales mechanism fire probabilities. 1.0 is the baseline;
	// the feedback loop moves it when players win too much or too little.
	intensity float64

	lastWinRate  float64
	sampledUsers int
	fires        map[string]int64
}

// New creates a Balancer aiming at the given target win rate.
func New(rng *rand.Rand, targetWinRate float64) *Balancer {
	return &Balancer{
		rng:       rng,
		target:    targetWinRate,
		intensity: 1.0,
		fires:     make(map[string]int64),
	}
}

// Apply runs the raw delta through every mechanism and clamps the result.
func (b *Balancer) Apply(rawDelta float64) Result {
	b.mu.Lock()
	defer b.mu.Unlock()

	res := Result{RawDelta: rawDelta, FinalDelta: rawDelta}

	b.whaleTrade(&res)
	b.marketMaker(&res)
	b.pumpAndDump(&res)
	b.liquidityGap(&res)
	b.timingDelay(&res)

	res.FinalDelta = math.Max(minDelta, math.Min(maxDelta, res.FinalDelta))
	return res
}

// whaleTrade: 8% of ticks a whale moves the price 10-40%, bearish 3:1.
func (b *Balancer) whaleTrade(res *Result) {
	if !b.roll(0.08) {
		return
	}
	magnitude := b.uniform(0.10, 0.40)
	if b.rng.Float64() < 0.75 {
		magnitude = -magnitude
	}
	res.FinalDelta += magnitude
	b.fired(res, MechWhale)
}

// marketMaker: 30% of the time a large engine move (>5%) gets a counter-move
// of up to 2% in the opposite direction. Gated on the raw delta, not the
// running total, so one mechanism never triggers another.
func (b *Balancer) marketMaker(res *Result) {
	if math.Abs(res.RawDelta) <= 0.05 || !b.roll(0.30) {
		return
	}
	counter := b.uniform(0, 0.02)
	if res.RawDelta > 0 {
		counter = -counter
	}
	res.FinalDelta += counter
	b.fired(res, MechMarketMaker)
}

// pumpAndDump: 3% chance of a scheme — a pump, a dump, or a coordinated
// swing that could break either way.
func (b *Balancer) pumpAndDump(res *Result) {
	if !b.roll(0.03) {
		return
	}
	var move float64
	switch b.rng.Intn(3) {
	case 0: // pump
		move = b.uniform(0.20, 0.80)
	case 1: // dump
		move = -b.uniform(0.30, 0.60)
	default: // coordinated
		move = b.uniform(-0.30, 0.30)
	}
	res.FinalDelta += move
	b.fired(res, MechPumpAndDump)
}

// liquidityGap: thin books slip the price 1-5% down. The bigger the move,
// the likelier the gap, capped at 15%.
func (b *Balancer) liquidityGap(res *Result) {
	p := math.Min(0.15, 2*math.Abs(res.RawDelta))
	if !b.roll(p) {
		return
	}
	res.FinalDelta -= b.uniform(0.01, 0.05)
	b.fired(res, MechLiquidityGap)
}

// timingDelay: 20% of moves over 3% get shaved 0.5-2% toward zero, the way
// slow fills eat an entry.
func (b *Balancer) timingDelay(res *Result) {
	if math.Abs(res.RawDelta) <= 0.03 || !b.roll(0.20) {
		return
	}
	shave := b.uniform(0.005, 0.02)
	if res.RawDelta > 0 {
		res.FinalDelta -= shave
	} else {
		res.FinalDelta += shave
	}
	b.fired(res, MechTimingDelay)
}

// SampleWinRate computes the share of traded portfolios sitting at a
// positive all-time profit. Users who never traded are excluded.
func (b *Balancer) SampleWinRate(ctx context.Context, st store.Store) (float64, error) {
	portfolios, err := st.ListTradedPortfolios(ctx, 0)
	if err != nil {
		return 0, err
	}

	winners := 0
	for i := range portfolios {
		if portfolios[i].AllTimeProfitLoss.IsPositive() {
			winners++
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.sampledUsers = len(portfolios)
	if len(portfolios) == 0 {
		b.lastWinRate = b.target
		return b.lastWinRate, nil
	}
	b.lastWinRate = float64(winners) / float64(len(portfolios))
	return b.lastWinRate, nil
}

// Retune adjusts the intervention intensity from an observed win rate.
// Above target+0.15 the interventions get 50% harder; below target-0.10
// they ease off 20%; inside the band nothing moves. Returns the resulting
// intensity and whether it changed.
func (b *Balancer) Retune(winRate float64) (float64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev := b.intensity
	switch {
	case winRate > b.target+upperSlack:
		b.intensity = math.Min(maxIntensity, b.intensity*1.5)
	case winRate < b.target-lowerSlack:
		b.intensity = math.Max(minIntensity, b.intensity*0.8)
	}
	return b.intensity, b.intensity != prev
}

// Status snapshots the balancer state.
func (b *Balancer) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	fires := make(map[string]int64, len(b.fires))
	for k, v := range b.fires {
		fires[k] = v
	}
	return Status{
		TargetWinRate:  b.target,
		SampledWinRate: b.lastWinRate,
		SampledUsers:   b.sampledUsers,
		Intensity:      b.intensity,
		MechanismFires: fires,
	}
}

// roll checks a base probability scaled by the current intensity. Caller
// holds b.mu.
func (b *Balancer) roll(p float64) bool {
	return b.rng.Float64() < math.Min(1, p*b.intensity)
}

func (b *Balancer) uniform(lo, hi float64) float64 {
	return lo + b.rng.Float64()*(hi-lo)
}

func (b *Balancer) fired(res *Result, mech string) {
	res.Mechanisms = append(res.Mechanisms, mech)
	b.fires[mech]++
}
