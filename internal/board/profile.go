package board

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Mode selects the simulated holding horizon and exit distances.
type Mode string

const (
	ModeSwing    Mode = "SWING"
	ModePosition Mode = "POSITION"
)

// ModeProfile parameterizes one simulation mode. Percent fields are whole
// percents.
type ModeProfile struct {
	// HoldBars is the maximum bars a simulated position is held.
	HoldBars int `yaml:"hold_bars"`
	// StopLossPercent and TakeProfitPercent are the exit distances from entry.
	StopLossPercent   float64 `yaml:"stop_loss_percent"`
	TakeProfitPercent float64 `yaml:"take_profit_percent"`
	// RSIPeriod and RSIOversold drive the recommended-entry pullback trigger.
	RSIPeriod   int     `yaml:"rsi_period"`
	RSIOversold float64 `yaml:"rsi_oversold"`
	// EntryCadence is the bar spacing of the naive market-entry baseline.
	EntryCadence int `yaml:"entry_cadence"`
}

// DefaultProfiles returns the built-in SWING and POSITION parameter sets.
// The two must differ enough that win rates diverge on the same data.
func DefaultProfiles() map[Mode]ModeProfile {
	return map[Mode]ModeProfile{
		ModeSwing: {
			HoldBars:          24,
			StopLossPercent:   3.0,
			TakeProfitPercent: 5.0,
			RSIPeriod:         14,
			RSIOversold:       30,
			EntryCadence:      1,
		},
		ModePosition: {
			HoldBars:          72,
			StopLossPercent:   7.0,
			TakeProfitPercent: 12.0,
			RSIPeriod:         14,
			RSIOversold:       35,
			EntryCadence:      4,
		},
	}
}

// LoadProfiles reads mode profiles from a YAML file, overlaying the
// defaults. A missing path returns the defaults unchanged.
func LoadProfiles(path string) (map[Mode]ModeProfile, error) {
	profiles := DefaultProfiles()
	if path == "" {
		return profiles, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return profiles, nil
		}
		return nil, fmt.Errorf("reading mode profiles: %w", err)
	}
	var parsed map[string]ModeProfile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parsing mode profiles: %w", err)
	}
	for name, prof := range parsed {
		profiles[Mode(name)] = prof
	}
	return profiles, nil
}
