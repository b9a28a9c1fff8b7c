package crawler

import (
	"errors"
	"fmt"
	"time"
)

// Config captures every knob that influences a crawl session. It is built
// once, validated and passed by value; nothing mutates it during a run.
type Config struct {
	DelayMin           time.Duration
	DelayMax           time.Duration
	MaxScrolls         int
	ScrollPause        time.Duration
	MaxImages          int
	OpenQPS            float64
	SessionURLCapacity int
	SearchAttempts     int
}

// DefaultConfig returns the standard pacing.
func DefaultConfig() Config {
	return Config{
		DelayMin:           600 * time.Millisecond,
		DelayMax:           1500 * time.Millisecond,
		MaxScrolls:         25,
		ScrollPause:        1200 * time.Millisecond,
		MaxImages:          20,
		SessionURLCapacity: 100_000,
		SearchAttempts:     2,
	}
}

// SlowPreset returns cfg with the conservative inter-record delay used for
// long unattended runs.
func SlowPreset(cfg Config) Config {
	cfg.DelayMin = 3 * time.Second
	cfg.DelayMax = 6 * time.Second
	return cfg
}

// Validate checks for obviously bad configuration combinations.
func (c Config) Validate() error {
	var errs []error
	if c.DelayMin < 0 {
		errs = append(errs, fmt.Errorf("delay_min must be >= 0, got %s", c.DelayMin))
	}
	if c.DelayMax < c.DelayMin {
		errs = append(errs, fmt.Errorf("delay_max (%s) must be >= delay_min (%s)", c.DelayMax, c.DelayMin))
	}
	if c.MaxScrolls <= 0 {
		errs = append(errs, fmt.Errorf("max_scrolls must be > 0, got %d", c.MaxScrolls))
	}
	if c.ScrollPause < 0 {
		errs = append(errs, fmt.Errorf("scroll_pause must be >= 0, got %s", c.ScrollPause))
	}
	if c.MaxImages <= 0 {
		errs = append(errs, fmt.Errorf("max_images must be > 0, got %d", c.MaxImages))
	}
	if c.OpenQPS < 0 {
		errs = append(errs, fmt.Errorf("open_qps must be >= 0, got %g", c.OpenQPS))
	}
	if c.SessionURLCapacity <= 0 {
		errs = append(errs, fmt.Errorf("session_url_capacity must be > 0, got %d", c.SessionURLCapacity))
	}
	if c.SearchAttempts <= 0 {
		errs = append(errs, fmt.Errorf("search_attempts must be > 0, got %d", c.SearchAttempts))
	}
	return errors.Join(errs...)
}
