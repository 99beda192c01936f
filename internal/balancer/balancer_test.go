package balancer

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/gamby/crypto-engine/internal/store"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func testBalancer() *Balancer {
	return New(rand.New(rand.NewSource(99)), 0.35)
}

func TestApplyClampsFinalDelta(t *testing.T) {
	b := testBalancer()
	for i := 0; i < 2000; i++ {
		res := b.Apply(-5.0)
		require.GreaterOrEqual(t, res.FinalDelta, minDelta)

		res = b.Apply(10.0)
		require.LessOrEqual(t, res.FinalDelta, maxDelta)
	}
}

func TestApplyRecordsMechanisms(t *testing.T) {
	b := testBalancer()

	fired := make(map[string]bool)
	for i := 0; i < 5000; i++ {
		res := b.Apply(0.10)
		require.Equal(t, 0.10, res.RawDelta)
		for _, m := range res.Mechanisms {
			fired[m] = true
		}
	}

	// Over 5000 large moves every mechanism should have hit at least once:
	// the rarest is pump-and-dump at 3%.
	for _, mech := range []string{MechWhale, MechMarketMaker, MechPumpAndDump, MechLiquidityGap, MechTimingDelay} {
		require.True(t, fired[mech], "mechanism %s never fired", mech)
	}

	status := b.Status()
	require.Positive(t, status.MechanismFires[MechWhale])
}

func TestWhaleLeanIsBearish(t *testing.T) {
	b := testBalancer()

	var sum float64
	for i := 0; i < 20000; i++ {
		// Tiny raw delta keeps the other mechanisms mostly quiet.
		res := b.Apply(0.001)
		sum += res.FinalDelta - res.RawDelta
	}
	require.Negative(t, sum, "aggregate intervention lean must be bearish")
}

func TestReactiveMechanismsGateOnRawDelta(t *testing.T) {
	b := testBalancer()

	// Market maker and timing delay react to the engine's move, not to what
	// earlier mechanisms piled on top of it. A tiny raw delta keeps them out
	// even when a whale blows the running total past their thresholds.
	for i := 0; i < 20000; i++ {
		res := b.Apply(0.001)
		require.NotContains(t, res.Mechanisms, MechMarketMaker)
		require.NotContains(t, res.Mechanisms, MechTimingDelay)
	}
}

func TestWinRateConvergesTowardTarget(t *testing.T) {
	ctx := context.Background()
	b := New(rand.New(rand.NewSource(17)), 0.35)
	draws := rand.New(rand.NewSource(18))

	const (
		users         = 50
		ticksPerRound = 10
	)

	// playRound runs every user's coin through one balanced price episode
	// from a fresh cost basis, then samples the resulting win rate.
	playRound := func() float64 {
		st := store.NewMemoryStore()
		for u := 0; u < users; u++ {
			price := 10.0
			for i := 0; i < ticksPerRound; i++ {
				raw := 0.08 * draws.Float64() // bullish drift, up to +8% per tick
				res := b.Apply(raw)
				price *= 1 + res.FinalDelta
			}
			user := fmt.Sprintf("u%d", u)
			require.NoError(t, st.ApplyBuy(ctx, user, "MEME", d(1), d(10)))
			_, err := st.ApplySell(ctx, user, "MEME", d(1), decimal.NewFromFloat(price))
			require.NoError(t, err)
		}
		rate, err := b.SampleWinRate(ctx, st)
		require.NoError(t, err)
		return rate
	}

	// With a pure bullish drift and baseline intensity, far too many players
	// win.
	first := playRound()
	require.Greater(t, first, 0.35, "bullish drift must start above target")
	b.Retune(first)

	// Let the feedback loop run; the win rate must be pulled down toward the
	// target.
	var late float64
	const rounds = 40
	for r := 0; r < rounds; r++ {
		rate := playRound()
		b.Retune(rate)
		if r >= rounds-20 {
			late += rate
		}
	}
	late /= 20

	require.Less(t, late, first, "win rate did not trend down: first %.2f, late %.2f", first, late)
	require.InDelta(t, 0.35, late, 0.25, "late win rate %.2f not near target", late)
}

func TestRetuneHysteresis(t *testing.T) {
	b := testBalancer()

	// Inside the band: no change.
	intensity, changed := b.Retune(0.40)
	require.False(t, changed)
	require.Equal(t, 1.0, intensity)

	// Way above target: interventions get harder.
	intensity, changed = b.Retune(0.60)
	require.True(t, changed)
	require.InDelta(t, 1.5, intensity, 1e-9)

	// Way below target: they ease off.
	intensity, changed = b.Retune(0.10)
	require.True(t, changed)
	require.InDelta(t, 1.2, intensity, 1e-9)
}

func TestRetuneRespectsBounds(t *testing.T) {
	b := testBalancer()
	for i := 0; i < 50; i++ {
		intensity, _ := b.Retune(0.99)
		require.LessOrEqual(t, intensity, maxIntensity)
	}
	for i := 0; i < 50; i++ {
		intensity, _ := b.Retune(0.01)
		require.GreaterOrEqual(t, intensity, minIntensity)
	}
}

func TestSampleWinRate(t *testing.T) {
	ctx := context.Background()
	b := testBalancer()
	st := store.NewMemoryStore()

	// No traded portfolios: report the target itself, so the controller
	// holds still on an empty market.
	rate, err := b.SampleWinRate(ctx, st)
	require.NoError(t, err)
	require.Equal(t, 0.35, rate)

	// One winner, one loser.
	require.NoError(t, st.ApplyBuy(ctx, "winner", "MEME", d(2), d(10)))
	_, err = st.ApplySell(ctx, "winner", "MEME", d(2), d(20))
	require.NoError(t, err)

	require.NoError(t, st.ApplyBuy(ctx, "loser", "MEME", d(2), d(10)))
	_, err = st.ApplySell(ctx, "loser", "MEME", d(2), d(1))
	require.NoError(t, err)

	rate, err = b.SampleWinRate(ctx, st)
	require.NoError(t, err)
	require.Equal(t, 0.5, rate)

	status := b.Status()
	require.Equal(t, 0.5, status.SampledWinRate)
	require.Equal(t, 2, status.SampledUsers)
}
