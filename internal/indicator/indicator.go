// Package indicator
package indicator

import "math"

// Rolling-window indicators emit NaN during warmup, and any window that
// contains a NaN input emits NaN. Callers must treat NaN as "not ready".

// CalculateSMA computes a simple moving average.
func CalculateSMA(values []float64, period int) []float64 {
	return rollingMean(values, period)
}

// CalculateEMA computes an exponential moving average with
// alpha = 2/(span+1), seeded from the first value.
func CalculateEMA(values []float64, span int) []float64 {
	if len(values) == 0 || span <= 0 {
		return nil
	}
	alpha := 2.0 / (float64(span) + 1.0)
	ema := make([]float64, len(values))
	ema[0] = values[0]
	for i := 1; i < len(values); i++ {
		ema[i] = alpha*values[i] + (1-alpha)*ema[i-1]
	}
	return ema
}

// CalculateMACD computes MACD(12,26,9): the MACD line, signal line, and histogram.
func CalculateMACD(values []float64) (macd, signal, hist []float64) {
	if len(values) == 0 {
		return nil, nil, nil
	}
	fast := CalculateEMA(values, 12)
	slow := CalculateEMA(values, 26)
	macd = make([]float64, len(values))
	for i := range values {
		macd[i] = fast[i] - slow[i]
	}
	signal = CalculateEMA(macd, 9)
	hist = make([]float64, len(values))
	for i := range values {
		hist[i] = macd[i] - signal[i]
	}
	return macd, signal, hist
}

// CalculateTrueRange computes the true range series. The first bar has no
// previous close, so its range is high-low.
func CalculateTrueRange(high, low, closes []float64) []float64 {
	n := len(closes)
	tr := make([]float64, n)
	for i := 0; i < n; i++ {
		if i == 0 {
			tr[i] = high[i] - low[i]
			continue
		}
		prevClose := closes[i-1]
		tr[i] = math.Max(high[i]-low[i], math.Max(math.Abs(high[i]-prevClose), math.Abs(low[i]-prevClose)))
	}
	return tr
}

// CalculateATR computes the rolling mean of the true range.
func CalculateATR(high, low, closes []float64, period int) []float64 {
	return rollingMean(CalculateTrueRange(high, low, closes), period)
}

// CalculateADX computes the rolling-mean ADX variant: directional movement and
// DX are smoothed with plain rolling means over the period.
func CalculateADX(high, low, closes []float64, period int) []float64 {
	n := len(closes)
	if n == 0 || period <= 0 {
		return nil
	}

	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		upMove := high[i] - high[i-1]
		downMove := low[i-1] - low[i]
		if upMove > downMove && upMove > 0 {
			plusDM[i] = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM[i] = downMove
		}
	}

	trSmooth := rollingMean(CalculateTrueRange(high, low, closes), period)
	plusSmooth := rollingMean(plusDM, period)
	minusSmooth := rollingMean(minusDM, period)

	dx := make([]float64, n)
	for i := 0; i < n; i++ {
		plusDI := 100 * plusSmooth[i] / trSmooth[i]
		minusDI := 100 * minusSmooth[i] / trSmooth[i]
		dx[i] = math.Abs(plusDI-minusDI) / math.Abs(plusDI+minusDI) * 100
	}
	return rollingMean(dx, period)
}

// CalculateRSI computes the rolling-mean RSI: average gain over average loss
// across a plain rolling window.
func CalculateRSI(values []float64, period int) []float64 {
	n := len(values)
	if n == 0 || period <= 0 {
		return nil
	}

	gains := make([]float64, n)
	losses := make([]float64, n)
	gains[0] = math.NaN()
	losses[0] = math.NaN()
	for i := 1; i < n; i++ {
		change := values[i] - values[i-1]
		if change > 0 {
			gains[i] = change
		} else {
			losses[i] = -change
		}
	}

	avgGain := rollingMean(gains, period)
	avgLoss := rollingMean(losses, period)

	rsi := make([]float64, n)
	for i := 0; i < n; i++ {
		rs := avgGain[i] / avgLoss[i]
		rsi[i] = 100 - (100 / (1 + rs))
	}
	return rsi
}

// rollingMean computes a fixed-window mean with NaN warmup and NaN propagation.
func rollingMean(values []float64, period int) []float64 {
	n := len(values)
	if n == 0 || period <= 0 {
		return nil
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		if i < period-1 {
			out[i] = math.NaN()
			continue
		}
		sum := 0.0
		for j := i - period + 1; j <= i; j++ {
			sum += values[j]
		}
		out[i] = sum / float64(period)
	}
	return out
}
