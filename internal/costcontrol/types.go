// Package costcontrol implements daily and per-session cost accounting for
// provider calls, with alert thresholds and a hard daily shutoff signal.
//
// DESIGN: The tracker is pure accounting. It accumulates spend and returns
// alert signals from Track; acting on them (logging, refusing further calls)
// is the gateway's job.
package costcontrol

import (
	"fmt"
	"time"
)

// Direction distinguishes input from output token pricing.
type Direction string

const (
	Input  Direction = "input"
	Output Direction = "output"
)

// Config holds cost alert thresholds. All amounts are USD.
type Config struct {
	WarningThreshold  float64       `yaml:"warning_threshold"`  // Daily spend that logs a warning. 0 = disabled.
	CriticalThreshold float64       `yaml:"critical_threshold"` // Daily spend that logs a critical alert. 0 = disabled.
	DailyLimit        float64       `yaml:"daily_limit"`        // Daily spend that shuts off provider calls. 0 = unlimited.
	SessionTTL        time.Duration `yaml:"session_ttl"`        // Idle time before a session accumulator is evicted
}

// Validate checks cost control configuration.
func (c *Config) Validate() error {
	if c.WarningThreshold < 0 {
		return fmt.Errorf("cost.warning_threshold must be >= 0, got %f", c.WarningThreshold)
	}
	if c.CriticalThreshold < 0 {
		return fmt.Errorf("cost.critical_threshold must be >= 0, got %f", c.CriticalThreshold)
	}
	if c.DailyLimit < 0 {
		return fmt.Errorf("cost.daily_limit must be >= 0, got %f", c.DailyLimit)
	}
	if c.WarningThreshold > 0 && c.CriticalThreshold > 0 && c.WarningThreshold > c.CriticalThreshold {
		return fmt.Errorf("cost.warning_threshold (%f) must not exceed critical_threshold (%f)",
			c.WarningThreshold, c.CriticalThreshold)
	}
	return nil
}

// TrackResult carries the outcome of one accounting call back to the gateway.
type TrackResult struct {
	Cost      float64 // Cost of this call segment
	DailyCost float64 // Accumulated daily total after this call

	// Alert signals. WarningCrossed and CriticalCrossed fire only on the
	// call that crosses the threshold; LimitExceeded reports current state.
	WarningCrossed  bool
	CriticalCrossed bool
	LimitExceeded   bool
}

// session tracks accumulated cost for a single logical session.
type session struct {
	ID          string
	Cost        float64
	Requests    int
	Model       string
	CreatedAt   time.Time
	LastUpdated time.Time
}

// SessionSnapshot is a read-only copy of a session for the dashboard.
type SessionSnapshot struct {
	ID          string    `json:"id"`
	Cost        float64   `json:"cost"`
	Requests    int       `json:"requests"`
	Model       string    `json:"model"`
	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
}
