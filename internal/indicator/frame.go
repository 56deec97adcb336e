package indicator

import (
	"math"
	"sort"

	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/candle"
)

// Params holds indicator periods.
type Params struct {
	SMATrendPeriod int
	ATRPeriod      int
	ADXPeriod      int
	RSIPeriod      int
}

// DefaultParams returns the standard periods used by the breakout strategy.
func DefaultParams() Params {
	return Params{
		SMATrendPeriod: 200,
		ATRPeriod:      14,
		ADXPeriod:      14,
		RSIPeriod:      7,
	}
}

// Columns holds the indicator series computed over one candle series.
type Columns struct {
	SMATrend   []float64
	EMA20      []float64
	EMA50      []float64
	EMA200     []float64
	MACD       []float64
	MACDSignal []float64
	MACDHist   []float64
	ATR        []float64
	ADX        []float64
	RSI        []float64
}

// Compute calculates all indicator columns for a sorted candle series.
func Compute(candles []candle.Candle, p Params) Columns {
	n := len(candles)
	closes := candle.Closes(candles)
	high := make([]float64, n)
	low := make([]float64, n)
	for i, c := range candles {
		high[i] = c.High
		low[i] = c.Low
	}

	var cols Columns
	cols.SMATrend = CalculateSMA(closes, p.SMATrendPeriod)
	cols.EMA20 = CalculateEMA(closes, 20)
	cols.EMA50 = CalculateEMA(closes, 50)
	cols.EMA200 = CalculateEMA(closes, 200)
	cols.MACD, cols.MACDSignal, cols.MACDHist = CalculateMACD(closes)
	cols.ATR = CalculateATR(high, low, closes, p.ATRPeriod)
	cols.ADX = CalculateADX(high, low, closes, p.ADXPeriod)
	cols.RSI = CalculateRSI(closes, p.RSIPeriod)
	return cols
}

// Frame is the multi-timeframe view the strategy evaluates: LTF candles with
// their indicator columns, plus the HTF columns forward-filled onto each LTF
// row (each LTF bar sees the most recent HTF bar at or before its open time).
type Frame struct {
	Candles []candle.Candle
	LTF     Columns
	HTF     Columns
}

// Len returns the number of LTF rows.
func (f *Frame) Len() int { return len(f.Candles) }

// BuildFrame computes indicators on both series and pads the HTF columns onto
// the LTF index. Both inputs must be sorted by timestamp ascending.
func BuildFrame(ltf, htf []candle.Candle, p Params) *Frame {
	f := &Frame{
		Candles: ltf,
		LTF:     Compute(ltf, p),
	}

	htfCols := Compute(htf, p)
	n := len(ltf)
	f.HTF = Columns{
		SMATrend: make([]float64, n),
		EMA20:    make([]float64, n),
		EMA50:    make([]float64, n),
		EMA200:   make([]float64, n),
		ATR:      make([]float64, n),
		ADX:      make([]float64, n),
		RSI:      make([]float64, n),
	}

	for i, c := range ltf {
		// Index of the last HTF candle opened at or before this LTF bar.
		j := sort.Search(len(htf), func(k int) bool {
			return htf[k].Timestamp.After(c.Timestamp)
		}) - 1
		if j < 0 {
			f.HTF.SMATrend[i] = math.NaN()
			f.HTF.EMA20[i] = math.NaN()
			f.HTF.EMA50[i] = math.NaN()
			f.HTF.EMA200[i] = math.NaN()
			f.HTF.ATR[i] = math.NaN()
			f.HTF.ADX[i] = math.NaN()
			f.HTF.RSI[i] = math.NaN()
			continue
		}
		f.HTF.SMATrend[i] = htfCols.SMATrend[j]
		f.HTF.EMA20[i] = htfCols.EMA20[j]
		f.HTF.EMA50[i] = htfCols.EMA50[j]
		f.HTF.EMA200[i] = htfCols.EMA200[j]
		f.HTF.ATR[i] = htfCols.ATR[j]
		f.HTF.ADX[i] = htfCols.ADX[j]
		f.HTF.RSI[i] = htfCols.RSI[j]
	}
	return f
}

// Slice returns a view of the frame truncated to the first n rows.
func (f *Frame) Slice(n int) *Frame {
	if n > f.Len() {
		n = f.Len()
	}
	return &Frame{
		Candles: f.Candles[:n],
		LTF:     f.LTF.slice(n),
		HTF:     f.HTF.slice(n),
	}
}

func (c Columns) slice(n int) Columns {
	cut := func(s []float64) []float64 {
		if s == nil {
			return nil
		}
		return s[:n]
	}
	return Columns{
		SMATrend:   cut(c.SMATrend),
		EMA20:      cut(c.EMA20),
		EMA50:      cut(c.EMA50),
		EMA200:     cut(c.EMA200),
		MACD:       cut(c.MACD),
		MACDSignal: cut(c.MACDSignal),
		MACDHist:   cut(c.MACDHist),
		ATR:        cut(c.ATR),
		ADX:        cut(c.ADX),
		RSI:        cut(c.RSI),
	}
}
