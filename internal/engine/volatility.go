package engine

// Volatility bands. Revolatilization is deliberately biased toward the high
// and extreme bands; a calm market makes for a boring game.
type volatilityBand struct {
	lo, hi float64
	weight float64
}

var volatilityBands = []volatilityBand{
	{0.5, 2.0, 0.10},  // low
	{2.0, 5.0, 0.20},  // medium
	{5.0, 8.0, 0.40},  // high
	{8.0, 12.0, 0.30}, // extreme
}

const (
	minTrend = 0.2
	maxTrend = 1.8
)

// StartingPrice draws a fresh listing price. Three independent factors
// multiply so the distribution spans several orders of magnitude, clamped
// to [0.001, 100].
func (e *Engine) StartingPrice() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	price := e.uniform(0.01, 50) * e.uniform(0.3, 2.5) * e.uniform(0.7, 1.4)
	if price < 0.001 {
		price = 0.001
	}
	if price > 100 {
		price = 100
	}
	return price
}

// InitialTrend draws a long-run trend factor. A 30% reflection around 1.05
// keeps the population from skewing all-bullish.
func (e *Engine) InitialTrend() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	t := e.uniform(0.3, 1.8)
	if e.rng.Float64() < 0.30 {
		t = 2.1 - t
	}
	return t
}

// DrawDailyVolatility picks a new daily volatility from the weighted bands
// and, with 40% probability, nudges the trend by up to ±0.2 within
// [minTrend, maxTrend]. newTrend is nil when the trend is left alone.
func (e *Engine) DrawDailyVolatility(currentTrend float64) (volatility float64, newTrend *float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	volatility = e.drawVolatility()

	if e.rng.Float64() < 0.40 {
		t := currentTrend + e.uniform(-0.2, 0.2)
		if t < minTrend {
			t = minTrend
		}
		if t > maxTrend {
			t = maxTrend
		}
		newTrend = &t
	}
	return volatility, newTrend
}

// InitialVolatility draws from the same bands as the daily redraw.
func (e *Engine) InitialVolatility() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.drawVolatility()
}

// drawVolatility samples the weighted bands. Caller holds e.mu.
func (e *Engine) drawVolatility() float64 {
	r := e.rng.Float64()
	for _, band := range volatilityBands {
		if r < band.weight {
			return e.uniform(band.lo, band.hi)
		}
		r -= band.weight
	}
	last := volatilityBands[len(volatilityBands)-1]
	return e.uniform(last.lo, last.hi)
}
