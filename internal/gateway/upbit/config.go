package upbit

import "time"

// Config describes the gateway connection and throttling.
type Config struct {
	BaseURL     string
	AccessKey   string
	SecretKey   string
	HTTPTimeout time.Duration
	// RatePerSec and Burst throttle outgoing requests; Upbit enforces
	// endpoint-level quotas and bans on abuse.
	RatePerSec float64
	Burst      int
	// MaxRetries bounds the backoff retry loop per request.
	MaxRetries uint64
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.upbit.com"
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 8
	}
	if c.Burst <= 0 {
		c.Burst = 5
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	return c
}
