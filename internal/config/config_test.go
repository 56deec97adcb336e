package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultsAreValid(t *testing.T) {
	assert.NoError(t, Defaults().Validate())
}

func TestValidateRejectsUnknownTimeframe(t *testing.T) {
	cfg := Defaults()
	cfg.LTFTimeframe = "2m"

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), `"2m"`)

	cfg = Defaults()
	cfg.HTFTimeframe = "7h"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadModeAndRisk(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "replay"
	assert.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.RiskPerTrade = 1.5
	assert.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.Mode = "live"
	cfg.PaperTrading = false
	assert.Error(t, cfg.Validate())
}
