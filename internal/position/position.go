// Package position
package position

import (
	"time"
)

// Side of a futures position.
type Side string

const (
	Long  Side = "long"
	Short Side = "short"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Long {
		return Short
	}
	return Long
}

// Close reasons recorded on exits and sent with alerts.
const (
	ReasonStopLoss      = "stop_loss"
	ReasonTP1           = "tp1"
	ReasonTrailingStop  = "trailing_stop"
	ReasonTimeStop      = "time_stop"
	ReasonReverseSignal = "reverse_signal"
	ReasonEndOfData     = "end_of_data"
	ReasonShutdown      = "shutdown"
)

// Position is the state of one open USDT-M futures position. It is a plain
// value that serializes to the state file; all lifecycle logic lives in Ledger.
//
// TP1 and TrailingStop are pointers because "level not armed" is a distinct
// state: TP1 becomes nil forever once the partial take-profit has fired, and
// TrailingStop is nil until TP1 arms it. TP2 is carried through the state
// file but no exit rule consumes it yet; PyramidLevel counts add-on entries
// and stays 0 until pyramiding is enabled.
type Position struct {
	Symbol     string    `json:"symbol"`
	EntryPrice float64   `json:"entry_price"`
	Qty        float64   `json:"qty"`
	Notional   float64   `json:"notional"`
	Side       Side      `json:"side"`
	OpenTime   time.Time `json:"open_time"`
	OpenBar    int64     `json:"open_bar"`

	StopLoss     float64  `json:"stop_loss"`
	TP1          *float64 `json:"tp1,omitempty"`
	TP2          *float64 `json:"tp2,omitempty"`
	PeakPrice    float64  `json:"peak_price"`
	TrailingStop *float64 `json:"trailing_stop,omitempty"`
	PyramidLevel int      `json:"pyramid_level"`
}

// UnrealizedPnL returns the signed mark-to-market profit at the given price.
func (p *Position) UnrealizedPnL(price float64) float64 {
	if p.Side == Long {
		return (price - p.EntryPrice) * p.Qty
	}
	return (p.EntryPrice - price) * p.Qty
}

// AgeBars returns the position age in processed LTF bars.
func (p *Position) AgeBars(currentBar int64) int64 {
	age := currentBar - p.OpenBar
	if age < 0 {
		return 0
	}
	return age
}
