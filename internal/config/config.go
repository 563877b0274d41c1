package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"rudder/internal/scheduler"
)

// Load reads and validates the YAML config at path.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	cfg.applyDefaults()
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":9985"
	}
	if c.Store.Path == "" {
		c.Store.Path = "data/rudder.db"
	}
	if c.Upbit.PriceTTLSec <= 0 {
		c.Upbit.PriceTTLSec = 3
	}
	if c.Board.RefreshInterval == "" {
		c.Board.RefreshInterval = "1d"
	}
	if c.Trading.TickInterval == "" {
		c.Trading.TickInterval = "1m"
	}
	if c.Reconcile.WindowDays <= 0 {
		c.Reconcile.WindowDays = 30
	}
	if c.Reconcile.SweepInterval == "" {
		c.Reconcile.SweepInterval = "6h"
	}
}

func validate(c *Config) error {
	for _, iv := range []struct{ name, value string }{
		{"board.refresh_interval", c.Board.RefreshInterval},
		{"trading.tick_interval", c.Trading.TickInterval},
		{"reconcile.sweep_interval", c.Reconcile.SweepInterval},
	} {
		if _, ok := scheduler.ParseIntervalDuration(iv.value); !ok {
			return fmt.Errorf("config %s: invalid interval %q", iv.name, iv.value)
		}
	}
	if c.Trading.HalfTakeProfitRatio < 0 || c.Trading.HalfTakeProfitRatio > 1 {
		return fmt.Errorf("config trading.half_take_profit_ratio: must be within [0, 1]")
	}
	if c.Trading.TrailingOffsetPercent > 0 && c.Trading.TrailingTriggerPercent > 0 &&
		c.Trading.TrailingOffsetPercent >= c.Trading.TrailingTriggerPercent {
		return fmt.Errorf("config trading: trailing_offset_percent must be below trailing_trigger_percent")
	}
	return nil
}
