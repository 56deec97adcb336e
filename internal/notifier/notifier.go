// Package notifier
package notifier

import (
	"fmt"
	"time"
)

// Notifier delivers alerts about trading activity. Delivery is fire-and-forget:
// implementations log failures but never surface them, so a dead alert channel
// cannot stall or fail the trading flow.
type Notifier interface {
	NotifyOpenPosition(symbol, side string, qty, entryPrice float64, leverage int)
	NotifyClosePosition(symbol, side string, qty, entryPrice, exitPrice, pnl, roePct float64, duration time.Duration, reason string)
	NotifyOrderError(symbol, side string, qty float64, errMsg string)
	NotifyHeartbeat(equity float64, openPositions int)
	NotifyError(context, errMsg string)
	NotifyBotStopped(openPositions int)
}

// Noop discards all notifications.
type Noop struct{}

func (Noop) NotifyOpenPosition(string, string, float64, float64, int) {}
func (Noop) NotifyClosePosition(string, string, float64, float64, float64, float64, float64, time.Duration, string) {
}
func (Noop) NotifyOrderError(string, string, float64, string) {}
func (Noop) NotifyHeartbeat(float64, int)                     {}
func (Noop) NotifyError(string, string)                       {}
func (Noop) NotifyBotStopped(int)                             {}

// FormatDuration renders a position holding time as "2h 15m 4s".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	hours := total / 3600
	mins := (total % 3600) / 60
	secs := total % 60
	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, mins, secs)
	case mins > 0:
		return fmt.Sprintf("%dm %ds", mins, secs)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}
