package indicator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateSMA(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	sma := CalculateSMA(values, 3)

	require.Len(t, sma, 5)
	assert.True(t, math.IsNaN(sma[0]))
	assert.True(t, math.IsNaN(sma[1]))
	assert.InDelta(t, 2.0, sma[2], 1e-12)
	assert.InDelta(t, 3.0, sma[3], 1e-12)
	assert.InDelta(t, 4.0, sma[4], 1e-12)
}

func TestCalculateSMAPropagatesNaN(t *testing.T) {
	values := []float64{1, math.NaN(), 3, 4, 5}
	sma := CalculateSMA(values, 3)

	// Any window containing the NaN stays NaN.
	assert.True(t, math.IsNaN(sma[2]))
	assert.True(t, math.IsNaN(sma[3]))
	assert.InDelta(t, 4.0, sma[4], 1e-12)
}

func TestCalculateEMA(t *testing.T) {
	values := []float64{10, 20, 30}
	ema := CalculateEMA(values, 3) // alpha = 0.5

	require.Len(t, ema, 3)
	assert.InDelta(t, 10.0, ema[0], 1e-12)
	assert.InDelta(t, 15.0, ema[1], 1e-12)
	assert.InDelta(t, 22.5, ema[2], 1e-12)
}

func TestCalculateEMAEmpty(t *testing.T) {
	assert.Nil(t, CalculateEMA(nil, 3))
	assert.Nil(t, CalculateEMA([]float64{1}, 0))
}

func TestCalculateMACDConstantSeries(t *testing.T) {
	values := make([]float64, 50)
	for i := range values {
		values[i] = 100
	}
	macd, signal, hist := CalculateMACD(values)

	// Constant prices: fast and slow EMAs are equal everywhere.
	for i := range values {
		assert.InDelta(t, 0.0, macd[i], 1e-9)
		assert.InDelta(t, 0.0, signal[i], 1e-9)
		assert.InDelta(t, 0.0, hist[i], 1e-9)
	}
}

func TestCalculateTrueRange(t *testing.T) {
	high := []float64{12, 14, 13}
	low := []float64{10, 11, 9}
	closes := []float64{11, 13, 10}

	tr := CalculateTrueRange(high, low, closes)
	require.Len(t, tr, 3)
	assert.InDelta(t, 2.0, tr[0], 1e-12) // first bar: high-low
	assert.InDelta(t, 3.0, tr[1], 1e-12) // max(3, |14-11|, |11-11|)
	assert.InDelta(t, 4.0, tr[2], 1e-12) // max(4, |13-13|, |9-13|)
}

func TestCalculateATRWarmup(t *testing.T) {
	high := []float64{12, 12, 12, 12}
	low := []float64{10, 10, 10, 10}
	closes := []float64{11, 11, 11, 11}

	atr := CalculateATR(high, low, closes, 3)
	assert.True(t, math.IsNaN(atr[0]))
	assert.True(t, math.IsNaN(atr[1]))
	assert.InDelta(t, 2.0, atr[2], 1e-12)
	assert.InDelta(t, 2.0, atr[3], 1e-12)
}

func TestCalculateRSI(t *testing.T) {
	// Strictly rising by 1: all gains, no losses.
	values := []float64{1, 2, 3, 4, 5, 6}
	rsi := CalculateRSI(values, 3)

	// gains[0] is NaN, so the first valid window ends at index 3.
	assert.True(t, math.IsNaN(rsi[0]))
	assert.True(t, math.IsNaN(rsi[1]))
	assert.True(t, math.IsNaN(rsi[2]))
	// avgLoss = 0: rs is +Inf, RSI saturates at 100.
	assert.InDelta(t, 100.0, rsi[3], 1e-9)
	assert.InDelta(t, 100.0, rsi[5], 1e-9)
}

func TestCalculateRSIBalanced(t *testing.T) {
	// Alternating +1/-1: equal average gain and loss, RSI = 50.
	values := []float64{10, 11, 10, 11, 10, 11, 10}
	rsi := CalculateRSI(values, 4)

	assert.InDelta(t, 50.0, rsi[6], 1e-9)
}

func TestCalculateADXTrendingMarket(t *testing.T) {
	n := 50
	high := make([]float64, n)
	low := make([]float64, n)
	closes := make([]float64, n)
	for i := 0; i < n; i++ {
		base := 100.0 + float64(i)
		high[i] = base + 1
		low[i] = base - 1
		closes[i] = base
	}

	adx := CalculateADX(high, low, closes, 14)
	require.Len(t, adx, n)
	// A one-way march is maximally directional.
	assert.InDelta(t, 100.0, adx[n-1], 1.0)
	assert.True(t, math.IsNaN(adx[10]))
}

func TestRollingMeanEdgeCases(t *testing.T) {
	assert.Nil(t, rollingMean(nil, 3))
	assert.Nil(t, rollingMean([]float64{1, 2}, 0))

	out := rollingMean([]float64{5}, 1)
	require.Len(t, out, 1)
	assert.InDelta(t, 5.0, out[0], 1e-12)
}
