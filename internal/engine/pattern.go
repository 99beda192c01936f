package engine

import "github.com/gamby/crypto-engine/internal/model"

// patternSteps is the number of per-tick steps a compressed pattern series
// yields. At the default tick cadence one series spans roughly a day of
// play before it is regenerated.
const patternSteps = 2000

// patternState walks a coin along a precomputed relative price path. The
// path is a year-long synthetic series compressed to patternSteps points;
// each tick consumes one step and yields the fractional change between
// consecutive points.
type patternState struct {
	series []float64
	index  int
}

// stepPattern advances the ticker's pattern and returns its fractional
// step change. A fresh series is generated lazily and again when the old
// one runs out. Caller holds e.mu.
func (e *Engine) stepPattern(ticker string) float64 {
	st, ok := e.patterns[ticker]
	if !ok || st.index >= len(st.series)-1 {
		st = &patternState{series: e.generateSeries(patternSteps)}
		e.patterns[ticker] = st
	}

	cur := st.series[st.index]
	next := st.series[st.index+1]
	st.index++

	if cur == 0 {
		return 0
	}
	return (next - cur) / cur
}

// generateSeries builds a synthetic relative price path starting at 1.0.
// Most steps are small wobbles; 5% are extreme moves, which gives the path
// the fat-tailed look of real meme-coin charts. Caller holds e.mu.
func (e *Engine) generateSeries(n int) []float64 {
	series := make([]float64, n)
	level := 1.0
	for i := range series {
		var change float64
		if e.rng.Float64() < 0.05 {
			change = e.uniform(-0.50, 1.00)
		} else {
			change = e.uniform(-0.10, 0.10)
		}
		level *= 1 + change
		if level < 0.01 {
			level = 0.01
		}
		series[i] = level
	}
	return series
}

// UpdatePhase reclassifies the market phase from how far each coin sits
// from its starting price. Called by the manager once per tick sweep.
func (e *Engine) UpdatePhase(coins []model.Coin) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(coins) == 0 {
		e.phase = model.PhaseNormal
		return
	}

	var sum, sumAbs float64
	for i := range coins {
		start, _ := coins[i].StartingPrice.Float64()
		cur, _ := coins[i].CurrentPrice.Float64()
		if start <= 0 {
			continue
		}
		drift := (cur - start) / start
		sum += drift
		if drift < 0 {
			sumAbs -= drift
		} else {
			sumAbs += drift
		}
	}
	avg := sum / float64(len(coins))
	avgAbs := sumAbs / float64(len(coins))

	switch {
	case avg > 0.10:
		e.phase = model.PhaseBull
	case avg < -0.10:
		e.phase = model.PhaseBear
	case avgAbs > 0.30:
		e.phase = model.PhaseVolatile
	default:
		e.phase = model.PhaseNormal
	}
}

// Phase returns the current market phase.
func (e *Engine) Phase() model.MarketPhase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// phaseMultiplier amplifies the pattern component per phase. Caller holds
// e.mu.
func (e *Engine) phaseMultiplier() float64 {
	switch e.phase {
	case model.PhaseBull:
		return 1.3
	case model.PhaseBear:
		return 1.2
	case model.PhaseVolatile:
		return 1.5
	default:
		return 1.0
	}
}
