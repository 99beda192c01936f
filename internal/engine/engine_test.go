package engine

import (
	"math"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/gamby/crypto-engine/internal/model"
)

func dec(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func testEngine(advanced bool) *Engine {
	return New(rand.New(rand.NewSource(42)), advanced)
}

func TestExplosiveDeltaBounds(t *testing.T) {
	e := testEngine(false)
	coin := &model.Coin{Ticker: "MEME", Trend: 1.0, DailyVolatility: 5.0}

	// With volatility 5 the scale is exactly 1.5, so the non-mega magnitude
	// lives in [0.15, 0.60] and a mega move in [0.50, 1.50].
	for i := 0; i < 5000; i++ {
		delta := e.ComputeDelta(coin)
		mag := math.Abs(delta)
		require.GreaterOrEqual(t, mag, 0.15-1e-12, "draw %d: delta %v below minimum", i, delta)
		require.LessOrEqual(t, mag, 1.50+1e-12, "draw %d: delta %v above maximum", i, delta)
	}
}

func TestExplosiveDeltaDirectionIsUniform(t *testing.T) {
	e := testEngine(false)

	// The direction draw is a fair coin flip whatever the trend factor says;
	// trend only feeds the revolatilization bookkeeping.
	for _, trend := range []float64{0.2, 1.0, 1.8} {
		coin := &model.Coin{Ticker: "MEME", Trend: trend, DailyVolatility: 2.0}
		up := 0
		for i := 0; i < 10000; i++ {
			if e.ComputeDelta(coin) > 0 {
				up++
			}
		}
		require.Greater(t, up, 4300, "trend %v: %d/10000 up-moves", trend, up)
		require.Less(t, up, 5700, "trend %v: %d/10000 up-moves", trend, up)
	}
}

func TestAdvancedDeltaIsFinite(t *testing.T) {
	e := testEngine(true)
	coin := &model.Coin{Ticker: "MEME", Trend: 1.0, DailyVolatility: 5.0}

	nonzero := 0
	for i := 0; i < 1000; i++ {
		delta := e.ComputeDelta(coin)
		require.False(t, math.IsNaN(delta) || math.IsInf(delta, 0), "delta %v", delta)
		if delta != 0 {
			nonzero++
		}
	}
	require.Greater(t, nonzero, 900, "advanced mode should move almost every tick")
}

func TestStartingPriceRange(t *testing.T) {
	e := testEngine(false)
	for i := 0; i < 2000; i++ {
		p := e.StartingPrice()
		require.GreaterOrEqual(t, p, 0.001)
		require.LessOrEqual(t, p, 100.0)
	}
}

func TestInitialTrendRange(t *testing.T) {
	e := testEngine(false)
	for i := 0; i < 2000; i++ {
		tr := e.InitialTrend()
		require.GreaterOrEqual(t, tr, 0.3-1e-12)
		require.LessOrEqual(t, tr, 1.8+1e-12)
	}
}

func TestDrawDailyVolatility(t *testing.T) {
	e := testEngine(false)

	nudged := 0
	for i := 0; i < 2000; i++ {
		vol, newTrend := e.DrawDailyVolatility(1.0)
		require.GreaterOrEqual(t, vol, 0.5)
		require.LessOrEqual(t, vol, 12.0)
		if newTrend != nil {
			nudged++
			require.GreaterOrEqual(t, *newTrend, minTrend)
			require.LessOrEqual(t, *newTrend, maxTrend)
		}
	}
	// Nudge probability is 40%; allow generous slack.
	require.Greater(t, nudged, 600)
	require.Less(t, nudged, 1000)
}

func TestDrawDailyVolatilityClampsTrend(t *testing.T) {
	e := testEngine(false)
	for i := 0; i < 500; i++ {
		if _, newTrend := e.DrawDailyVolatility(1.79); newTrend != nil {
			require.LessOrEqual(t, *newTrend, maxTrend)
		}
		if _, newTrend := e.DrawDailyVolatility(0.21); newTrend != nil {
			require.GreaterOrEqual(t, *newTrend, minTrend)
		}
	}
}

func TestUpdatePhase(t *testing.T) {
	cases := []struct {
		name  string
		drift float64
		want  model.MarketPhase
	}{
		{"bull", 0.5, model.PhaseBull},
		{"bear", -0.5, model.PhaseBear},
		{"normal", 0.0, model.PhaseNormal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := testEngine(false)
			coins := []model.Coin{{
				Ticker:        "MEME",
				StartingPrice: dec(10),
				CurrentPrice:  dec(10 * (1 + tc.drift)),
			}}
			e.UpdatePhase(coins)
			require.Equal(t, tc.want, e.Phase())
		})
	}
}

func TestUpdatePhaseVolatile(t *testing.T) {
	// Large opposite drifts cancel in the average but not in magnitude.
	e := testEngine(false)
	coins := []model.Coin{
		{Ticker: "PUMP", StartingPrice: dec(10), CurrentPrice: dec(15)},
		{Ticker: "DUMP", StartingPrice: dec(10), CurrentPrice: dec(5)},
	}
	e.UpdatePhase(coins)
	require.Equal(t, model.PhaseVolatile, e.Phase())
}

func TestStepPatternRegeneratesSeries(t *testing.T) {
	e := testEngine(true)
	e.mu.Lock()
	e.patterns["MEME"] = &patternState{series: []float64{1.0, 1.1}, index: 0}
	e.mu.Unlock()

	e.mu.Lock()
	first := e.stepPattern("MEME")
	e.mu.Unlock()
	require.InDelta(t, 0.1, first, 1e-9)

	// Series exhausted; the next step draws a fresh one without panicking.
	e.mu.Lock()
	next := e.stepPattern("MEME")
	e.mu.Unlock()
	require.False(t, math.IsNaN(next))
}
