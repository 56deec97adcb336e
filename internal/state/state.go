// Package state
package state

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/position"
)

const CurrentVersion = 1

// Balance is the recorded balance of one asset.
type Balance struct {
	Free       float64   `json:"free"`
	Equity     float64   `json:"equity"`
	UpdateTime time.Time `json:"update_time"`
}

// State is the crash-recovery snapshot written to disk. Unknown fields in an
// existing file are dropped on the next save; missing fields keep their
// defaults, so old files from earlier versions still load.
type State struct {
	Version         int                          `json:"version"`
	Positions       map[string]position.Position `json:"positions"`
	Balances        map[string]Balance           `json:"balances"`
	EquityPeak      *float64                     `json:"equity_peak"`
	RealizedPnL     float64                      `json:"realized_pnl"`
	StrategyVersion string                       `json:"strategy_version"`
}

func defaultState(strategyVersion string) State {
	return State{
		Version:         CurrentVersion,
		Positions:       make(map[string]position.Position),
		Balances:        make(map[string]Balance),
		RealizedPnL:     0,
		StrategyVersion: strategyVersion,
	}
}

// Manager persists the bot state as versioned JSON with atomic replace
// semantics: every save writes a temp file in the same directory and renames
// it over the target, so a crash mid-write can never corrupt the state file.
type Manager struct {
	path string
	data State
}

func NewManager(path, strategyVersion string) *Manager {
	return &Manager{
		path: path,
		data: defaultState(strategyVersion),
	}
}

// Load reads the state file if it exists, merging its fields over the
// defaults. A missing file is a fresh start, not an error.
func (m *Manager) Load() error {
	raw, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("State | No state file (%s), starting fresh", m.path)
			return nil
		}
		return fmt.Errorf("failed to read state file %s: %w", m.path, err)
	}

	loaded := defaultState(m.data.StrategyVersion)
	if err := json.Unmarshal(raw, &loaded); err != nil {
		return fmt.Errorf("failed to parse state file %s: %w", m.path, err)
	}
	if loaded.Positions == nil {
		loaded.Positions = make(map[string]position.Position)
	}
	if loaded.Balances == nil {
		loaded.Balances = make(map[string]Balance)
	}
	m.data = loaded
	log.Printf("State | Loaded state from %s (%d positions)", m.path, len(m.data.Positions))
	return nil
}

// Save writes the current state atomically.
func (m *Manager) Save() error {
	payload, err := json.MarshalIndent(m.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return fmt.Errorf("failed to write temp state file: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// Positions returns a copy of the persisted positions.
func (m *Manager) Positions() map[string]position.Position {
	out := make(map[string]position.Position, len(m.data.Positions))
	for sym, p := range m.data.Positions {
		out[sym] = p
	}
	return out
}

// SetPositions replaces the whole position map and saves.
func (m *Manager) SetPositions(positions map[string]position.Position) error {
	m.data.Positions = make(map[string]position.Position, len(positions))
	for sym, p := range positions {
		m.data.Positions[sym] = p
	}
	return m.Save()
}

// UpdateBalance records the balance of one asset and saves.
func (m *Manager) UpdateBalance(asset string, free, equity float64) error {
	m.data.Balances[asset] = Balance{
		Free:       free,
		Equity:     equity,
		UpdateTime: time.Now().UTC(),
	}
	return m.Save()
}

// Balance returns the recorded balance for an asset.
func (m *Manager) Balance(asset string) (Balance, bool) {
	b, ok := m.data.Balances[asset]
	return b, ok
}

// EquityPeak returns the recorded peak equity, or 0 when never set.
func (m *Manager) EquityPeak() float64 {
	if m.data.EquityPeak == nil {
		return 0
	}
	return *m.data.EquityPeak
}

// UpdateEquityPeak raises the peak if the given equity exceeds it.
func (m *Manager) UpdateEquityPeak(equity float64) error {
	if m.data.EquityPeak != nil && equity <= *m.data.EquityPeak {
		return nil
	}
	m.data.EquityPeak = &equity
	return m.Save()
}

// RealizedPnL returns the accumulated realized PnL.
func (m *Manager) RealizedPnL() float64 { return m.data.RealizedPnL }

// SetRealizedPnL records the accumulated realized PnL and saves.
func (m *Manager) SetRealizedPnL(pnl float64) error {
	m.data.RealizedPnL = pnl
	return m.Save()
}
