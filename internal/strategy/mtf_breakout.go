package strategy

import (
	"math"

	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/config"
	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/indicator"
)

// MTFBreakout trades range breakouts on the lower timeframe in the direction
// of the higher-timeframe trend. The HTF (1h) EMA stack decides direction, a
// set of regime filters rejects chop and directionless volatility, and the
// LTF (15m) supplies the breakout trigger with volume and RSI confirmation.
type MTFBreakout struct {
	cfg config.StrategyConfig
}

func NewMTFBreakout(cfg config.StrategyConfig) *MTFBreakout {
	return &MTFBreakout{cfg: cfg}
}

func (s *MTFBreakout) Name() string { return "mtf_breakout" }

func (s *MTFBreakout) Evaluate(f *indicator.Frame) Signal {
	n := f.Len()
	if n < s.cfg.MinHistoryBars {
		return None
	}

	last := f.Candles[n-1]
	close := last.Close
	volume := last.Volume
	rsiLTF := f.LTF.RSI[n-1]
	atrLTF := f.LTF.ATR[n-1]

	ema20H := f.HTF.EMA20[n-1]
	ema50H := f.HTF.EMA50[n-1]
	ema200H := f.HTF.EMA200[n-1]
	atrH := f.HTF.ATR[n-1]
	adxH := f.HTF.ADX[n-1]
	rsiH := f.HTF.RSI[n-1]
	smaTrendH := f.HTF.SMATrend[n-1]

	for _, v := range []float64{close, ema20H, ema50H, ema200H, atrH, adxH, rsiH, smaTrendH} {
		if math.IsNaN(v) {
			return None
		}
	}

	// HTF trend regime: full EMA stack, both directions.
	var bull, bear bool
	switch {
	case ema20H > ema50H && ema50H > ema200H:
		bull = true
	case ema20H < ema50H && ema50H < ema200H:
		bear = true
	default:
		return None
	}

	if close <= 0 || atrH <= 0 {
		return None
	}
	atrPctH := atrH / close
	if atrPctH < s.cfg.AntiChopMinATRPct {
		return None
	}

	if adxH < s.cfg.BreakoutADXMin {
		return None
	}

	// Drift of LTF closes over roughly one HTF session, as a trend proxy.
	driftH := 0.0
	if n > s.cfg.HTFDriftLookbackBars+1 {
		prev := f.Candles[n-s.cfg.HTFDriftLookbackBars-1].Close
		if close > 0 && prev > 0 {
			driftH = math.Abs(close-prev) / close
		}
	}

	// High volatility with no direction and weak ADX is a saw, not a trend.
	if atrPctH > s.cfg.HTFVolatileATRPct && driftH < s.cfg.HTFVolatileDriftPct && adxH < s.cfg.HTFVolatileADXMax {
		return None
	}

	// Extreme HTF volatility degrades breakout follow-through.
	if s.cfg.DisableVolatileFlat && atrPctH > s.cfg.ATRSuperHighPct {
		return None
	}

	// Daily-scale drift filter over the LTF closes.
	drift := 0.0
	if n > s.cfg.DriftLookbackBars+1 {
		prev := f.Candles[n-s.cfg.DriftLookbackBars-1].Close
		if close > 0 && prev > 0 {
			drift = math.Abs(close-prev) / close
		}
	}

	driftMinEff := s.cfg.DriftMinPct
	if s.cfg.DriftAdaptiveEnabled {
		strongTrend := adxH >= s.cfg.BreakoutADXMin+s.cfg.StrongTrendADXMargin &&
			atrPctH >= s.cfg.AntiChopMinATRPct*1.5 &&
			atrPctH <= s.cfg.HTFVolatileATRPct
		if strongTrend {
			driftMinEff = s.cfg.DriftMinPct * s.cfg.DriftMinLoosenFactor
		}
	}
	if drift < driftMinEff {
		return None
	}

	// Dynamic LTF lookback: wider range in quiet markets, tighter in volatile
	// ones, then adjusted again by drift strength.
	lookback := s.cfg.LTFLookback
	if atrPctH < s.cfg.ATRLowVolPct {
		lookback = minInt(s.cfg.LookbackMax, int(float64(s.cfg.LTFLookback)*1.3))
	} else if atrPctH > s.cfg.ATRHighVolPct {
		lookback = maxInt(s.cfg.LookbackMin, int(float64(s.cfg.LTFLookback)*0.7))
	}
	if drift > s.cfg.DriftMinPct && drift < s.cfg.DriftStrongTrendPct {
		lookback = minInt(s.cfg.LookbackMax, int(float64(lookback)*1.2))
	} else if drift >= s.cfg.DriftStrongTrendPct {
		lookback = maxInt(s.cfg.LookbackMin, int(float64(lookback)*0.85))
	}

	if n < lookback+2 {
		return None
	}

	// Range over the lookback window, excluding the current bar.
	rangeHigh := math.Inf(-1)
	rangeLow := math.Inf(1)
	volSum := 0.0
	for i := n - lookback - 1; i < n-1; i++ {
		c := f.Candles[i]
		if c.High > rangeHigh {
			rangeHigh = c.High
		}
		if c.Low < rangeLow {
			rangeLow = c.Low
		}
		volSum += c.Volume
	}
	longTrigger := rangeHigh * (1.0 + s.cfg.BreakoutBufferPct)
	shortTrigger := rangeLow * (1.0 - s.cfg.BreakoutBufferPct)

	volMA := volSum / float64(lookback)
	if volMA > 0 && volume < volMA*s.cfg.BreakoutVolumeMult {
		return None
	}

	// LTF quiet-market filter. NaN ATR falls through and is rejected by the
	// RSI band comparison below.
	if close <= 0 || atrLTF <= 0 {
		return None
	}
	atrPctLTF := atrLTF / close
	if atrPctLTF < s.cfg.LTFATRMinPct {
		return None
	}

	// Volatile sawtooth filter: elevated ATR with a flat price path.
	slopeAbs := math.NaN()
	if n > s.cfg.LTFSlopeLookback+1 {
		prev := f.Candles[n-s.cfg.LTFSlopeLookback-1].Close
		if close > 0 {
			slopeAbs = math.Abs(close-prev) / close
		}
	}
	if !math.IsNaN(slopeAbs) &&
		atrPctLTF > s.cfg.LTFMicroATRPct &&
		slopeAbs < s.cfg.LTFSlopeMinAbs*s.cfg.LTFVolatileSlopeFactor {
		return None
	}

	// RSI bands, tightened in weak trends and slightly loosened in strong ones.
	rsiLongMin := s.cfg.RSILongMin
	rsiLongMax := s.cfg.RSILongMax
	rsiShortMin := s.cfg.RSIShortMin
	rsiShortMax := s.cfg.RSIShortMax
	if drift > s.cfg.DriftMinPct && drift < s.cfg.DriftStrongTrendPct {
		rsiLongMin += s.cfg.RSILongTighten
		rsiShortMax -= s.cfg.RSIShortTighten
	} else if drift >= s.cfg.DriftStrongTrendPct {
		rsiLongMin = math.Max(40.0, rsiLongMin-s.cfg.RSILongTighten*0.5)
		rsiShortMax = math.Min(60.0, rsiShortMax+s.cfg.RSIShortTighten*0.5)
	}

	if bull && close > longTrigger && rsiLongMin <= rsiLTF && rsiLTF <= rsiLongMax {
		return Buy
	}
	if bear && close < shortTrigger && rsiShortMin <= rsiLTF && rsiLTF <= rsiShortMax {
		return Sell
	}
	return None
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
