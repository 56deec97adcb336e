// Package strategy
package strategy

import (
	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/indicator"
)

// Signal is the trading decision for the latest closed bar.
type Signal int8

const (
	None Signal = iota
	Buy
	Sell
)

func (s Signal) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "none"
	}
}

// Evaluator produces a signal from a multi-timeframe frame. Implementations
// must be pure: no side effects, identical output for identical input.
type Evaluator interface {
	Name() string
	Evaluate(f *indicator.Frame) Signal
}
