package engine

import "math"

// Crossover states for the 5/15 moving-average pair.
const (
	CrossoverBullish = "bullish"
	CrossoverBearish = "bearish"
	CrossoverNone    = "none"
)

// Volatility signal buckets.
const (
	VolNormal   = "normal"
	VolElevated = "elevated"
	VolHigh     = "high"
)

const (
	shortWindow = 5
	longWindow  = 15

	// How close (fractionally) the price must be to a level to count as
	// "near" support or resistance.
	levelProximity = 0.03
)

// Indicators is a technical snapshot computed from a committed price
// history. It both feeds the advanced-mode skill delta and backs the
// analysis endpoint, so players see exactly what the engine sees.
type Indicators struct {
	MA5  float64 `json:"ma5"`
	MA15 float64 `json:"ma15"`

	// Crossover is bullish when MA5 > MA15, bearish when MA5 < MA15.
	Crossover string `json:"crossover"`

	// TrendStrength is the normalized least-squares slope of the recent
	// window, roughly in [-1, 1].
	TrendStrength float64 `json:"trend_strength"`

	Support        float64 `json:"support"`
	Resistance     float64 `json:"resistance"`
	NearSupport    bool    `json:"near_support"`
	NearResistance bool    `json:"near_resistance"`

	// RecentVolatility is the mean absolute step change over the window.
	RecentVolatility float64 `json:"recent_volatility"`
	VolatilitySignal string  `json:"volatility_signal"`
}

// ComputeIndicators derives a full indicator set from a price series
// ordered oldest to newest. Short histories produce a neutral snapshot.
func ComputeIndicators(prices []float64) Indicators {
	ind := Indicators{Crossover: CrossoverNone, VolatilitySignal: VolNormal}
	if len(prices) < 2 {
		return ind
	}

	last := prices[len(prices)-1]

	ind.MA5 = movingAverage(prices, shortWindow)
	ind.MA15 = movingAverage(prices, longWindow)
	if len(prices) >= longWindow {
		switch {
		case ind.MA5 > ind.MA15:
			ind.Crossover = CrossoverBullish
		case ind.MA5 < ind.MA15:
			ind.Crossover = CrossoverBearish
		}
	}

	window := tail(prices, longWindow)
	ind.TrendStrength = trendStrength(window)

	ind.Support, ind.Resistance = levels(window)
	if ind.Support > 0 {
		ind.NearSupport = math.Abs(last-ind.Support)/ind.Support < levelProximity
	}
	if ind.Resistance > 0 {
		ind.NearResistance = math.Abs(last-ind.Resistance)/ind.Resistance < levelProximity
	}

	ind.RecentVolatility = recentVolatility(window)
	switch {
	case ind.RecentVolatility > 0.30:
		ind.VolatilitySignal = VolHigh
	case ind.RecentVolatility > 0.15:
		ind.VolatilitySignal = VolElevated
	}

	return ind
}

func movingAverage(prices []float64, window int) float64 {
	w := tail(prices, window)
	if len(w) == 0 {
		return 0
	}
	var sum float64
	for _, p := range w {
		sum += p
	}
	return sum / float64(len(w))
}

// trendStrength fits a least-squares line through the window and returns
// the per-step slope relative to the mean price, clamped to [-1, 1].
func trendStrength(prices []float64) float64 {
	n := len(prices)
	if n < 3 {
		return 0
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, p := range prices {
		x := float64(i)
		sumX += x
		sumY += p
		sumXY += x * p
		sumXX += x * x
	}
	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	slope := (fn*sumXY - sumX*sumY) / denom
	mean := sumY / fn
	if mean == 0 {
		return 0
	}

	strength := slope / mean * 10
	return math.Max(-1, math.Min(1, strength))
}

func levels(prices []float64) (support, resistance float64) {
	if len(prices) == 0 {
		return 0, 0
	}
	support, resistance = prices[0], prices[0]
	for _, p := range prices[1:] {
		if p < support {
			support = p
		}
		if p > resistance {
			resistance = p
		}
	}
	return support, resistance
}

func recentVolatility(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}
	var sum float64
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			continue
		}
		sum += math.Abs(prices[i]-prices[i-1]) / prices[i-1]
	}
	return sum / float64(len(prices)-1)
}

func tail(prices []float64, n int) []float64 {
	if len(prices) <= n {
		return prices
	}
	return prices[len(prices)-n:]
}
