// Package breaker implements the circuit breaker that isolates callers from
// a failing model provider.
//
// DESIGN: Standard three-state machine:
//
//	Closed --(FailureThreshold consecutive failures)--> Open
//	Open   --(RecoveryTimeout elapsed, next CanExecute)--> HalfOpen
//	HalfOpen --(HalfOpenTrials consecutive successes)--> Closed
//	HalfOpen --(any failure)--> Open
//
// All transitions happen under one mutex per breaker instance. The
// Open->HalfOpen transition is a side effect of the admission call itself,
// so exactly one concurrent caller wins the transition and begins the trial.
package breaker

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = iota // Normal operation, calls pass through
	StateOpen                  // Calls are rejected
	StateHalfOpen              // Limited trial calls are allowed
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds the circuit breaker configuration. Immutable after construction.
type Config struct {
	FailureThreshold int           `yaml:"failure_threshold"` // Consecutive failures before opening
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout"`  // How long the breaker stays open
	HalfOpenTrials   int           `yaml:"half_open_trials"`  // Successes required to close from half-open
}

// Validate checks breaker configuration.
func (c *Config) Validate() error {
	if c.FailureThreshold <= 0 {
		return fmt.Errorf("breaker.failure_threshold must be > 0, got %d", c.FailureThreshold)
	}
	if c.RecoveryTimeout <= 0 {
		return fmt.Errorf("breaker.recovery_timeout must be > 0, got %s", c.RecoveryTimeout)
	}
	if c.HalfOpenTrials <= 0 {
		return fmt.Errorf("breaker.half_open_trials must be > 0, got %d", c.HalfOpenTrials)
	}
	return nil
}

// Breaker is a process-lifetime circuit breaker around the provider.
type Breaker struct {
	mu           sync.Mutex
	cfg          Config
	state        State
	failureCount int
	lastFailure  time.Time // set whenever state is Open
	halfOpenOK   int       // successful trials so far in half-open
	now          func() time.Time
}

// New creates a circuit breaker in the Closed state.
func New(cfg Config) *Breaker {
	return &Breaker{cfg: cfg, now: time.Now}
}

// CanExecute reports whether a call may proceed. In Open, an allowed call
// transitions the breaker to HalfOpen and resets the trial counter; a blocked
// call returns the remaining cooldown as retryAfter.
func (b *Breaker) CanExecute() (allowed bool, retryAfter time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		return true, 0
	case StateOpen:
		elapsed := b.now().Sub(b.lastFailure)
		if elapsed >= b.cfg.RecoveryTimeout {
			b.state = StateHalfOpen
			b.halfOpenOK = 0
			log.Info().Str("state", b.state.String()).Msg("breaker entering half-open trial")
			return true, 0
		}
		return false, b.cfg.RecoveryTimeout - elapsed
	}
	return true, 0
}

// RecordSuccess records a successful provider call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		// Nothing to do; failureCount only resets on entry to Closed.
	case StateHalfOpen:
		b.halfOpenOK++
		if b.halfOpenOK >= b.cfg.HalfOpenTrials {
			b.state = StateClosed
			b.failureCount = 0
			log.Info().Msg("breaker closed after successful trial")
		}
	case StateOpen:
		// Should not happen: successes are only recorded for admitted calls.
	}
}

// RecordFailure records a failed provider call.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	switch b.state {
	case StateClosed:
		b.failureCount++
		if b.failureCount >= b.cfg.FailureThreshold {
			b.state = StateOpen
			b.lastFailure = now
			log.Warn().
				Int("failures", b.failureCount).
				Dur("recovery_timeout", b.cfg.RecoveryTimeout).
				Msg("breaker opened")
		}
	case StateHalfOpen:
		// A single failure during trial forfeits recovery.
		b.state = StateOpen
		b.lastFailure = now
		log.Warn().Msg("breaker reopened: trial call failed")
	case StateOpen:
		b.lastFailure = now
	}
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot is a read-only view of the breaker for status endpoints.
type Snapshot struct {
	State        string    `json:"state"`
	FailureCount int       `json:"failure_count"`
	LastFailure  time.Time `json:"last_failure,omitempty"`
}

// Snapshot returns a copy of the breaker's observable state.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		State:        b.state.String(),
		FailureCount: b.failureCount,
		LastFailure:  b.lastFailure,
	}
}

// ForceOpen trips the breaker immediately. Operator/test tooling only.
func (b *Breaker) ForceOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateOpen
	b.lastFailure = b.now()
}
