package backtest

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// EquityPoint is one bar of the equity curve: balance plus
// mark-to-market PnL at the bar close.
type EquityPoint struct {
	Time   time.Time
	Equity float64
}

// Result summarizes a completed backtest run.
type Result struct {
	InitialBalance float64
	FinalBalance   float64
	TotalPnL       float64
	ROIPct         float64
	MaxDrawdownPct float64
	Curve          []EquityPoint
}

func (b *Backtester) buildResult() *Result {
	initial := b.cfg.InitialBalanceUSDT
	final := b.ledger.Balance()
	return &Result{
		InitialBalance: initial,
		FinalBalance:   final,
		TotalPnL:       final - initial,
		ROIPct:         (final - initial) / initial * 100.0,
		MaxDrawdownPct: maxDrawdownPct(b.curve),
		Curve:          b.curve,
	}
}

// maxDrawdownPct returns the deepest percentage decline from a running
// equity peak.
func maxDrawdownPct(curve []EquityPoint) float64 {
	var peak, maxDD float64
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak <= 0 {
			continue
		}
		dd := (peak - p.Equity) / peak * 100.0
		if dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

func (r *Result) String() string {
	return fmt.Sprintf("balance %.2f -> %.2f, pnl=%.2f, roi=%.2f%%, maxDD=%.2f%%",
		r.InitialBalance, r.FinalBalance, r.TotalPnL, r.ROIPct, r.MaxDrawdownPct)
}

// ExportEquityCurve writes the per-bar equity curve as CSV into dir.
func (r *Result) ExportEquityCurve(dir, name string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create results dir: %w", err)
	}
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create equity curve file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"timestamp", "equity"}); err != nil {
		return "", fmt.Errorf("failed to write equity curve header: %w", err)
	}
	for _, p := range r.Curve {
		row := []string{
			p.Time.UTC().Format(time.RFC3339),
			strconv.FormatFloat(p.Equity, 'f', 4, 64),
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("failed to write equity curve row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to flush equity curve: %w", err)
	}
	return path, nil
}
