package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeIndicatorsRisingSeries(t *testing.T) {
	prices := make([]float64, 20)
	for i := range prices {
		prices[i] = float64(i + 1)
	}

	ind := ComputeIndicators(prices)
	require.Equal(t, CrossoverBullish, ind.Crossover)
	require.Greater(t, ind.TrendStrength, 0.0)
	require.Equal(t, 20.0, ind.Resistance)
	require.Equal(t, 6.0, ind.Support, "support comes from the 15-point window")
	require.True(t, ind.NearResistance)
	require.False(t, ind.NearSupport)
}

func TestComputeIndicatorsFallingSeries(t *testing.T) {
	prices := make([]float64, 20)
	for i := range prices {
		prices[i] = float64(20 - i)
	}

	ind := ComputeIndicators(prices)
	require.Equal(t, CrossoverBearish, ind.Crossover)
	require.Less(t, ind.TrendStrength, 0.0)
	require.True(t, ind.NearSupport)
}

func TestComputeIndicatorsShortSeriesIsNeutral(t *testing.T) {
	ind := ComputeIndicators([]float64{5.0})
	require.Equal(t, CrossoverNone, ind.Crossover)
	require.Zero(t, ind.TrendStrength)
	require.Equal(t, VolNormal, ind.VolatilitySignal)

	// 10 points: moving averages exist but no 15-point crossover yet.
	flat := make([]float64, 10)
	for i := range flat {
		flat[i] = 5.0
	}
	ind = ComputeIndicators(flat)
	require.Equal(t, CrossoverNone, ind.Crossover)
	require.Zero(t, ind.RecentVolatility)
}

func TestVolatilitySignalBuckets(t *testing.T) {
	// Alternating ±40% steps: mean absolute change way over the high bar.
	prices := []float64{10, 14, 8.4, 11.76, 7.05, 9.87, 5.92, 8.29, 4.97, 6.96,
		4.18, 5.85, 3.51, 4.91, 2.95, 4.13}
	ind := ComputeIndicators(prices)
	require.Equal(t, VolHigh, ind.VolatilitySignal)
	require.Greater(t, ind.RecentVolatility, 0.30)
}
