// Package ratelimit implements sliding-window admission control, per-caller
// and global.
//
// DESIGN: Each policy keeps an ordered slice of request timestamps. A check
// evicts entries older than the window, compares the survivor count against
// the limit, and appends the new timestamp — all under one mutex, so check
// and record cannot race. The global policy is checked before the caller
// policy so a globally saturated gateway fails fast.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds rate limiter settings.
type Config struct {
	CallerLimit   int           `yaml:"caller_limit"`   // Requests per caller per window. 0 = unlimited.
	CallerWindow  time.Duration `yaml:"caller_window"`  // Per-caller window duration
	GlobalLimit   int           `yaml:"global_limit"`   // Requests across all callers per window. 0 = unlimited.
	GlobalWindow  time.Duration `yaml:"global_window"`  // Global window duration
	SweepInterval time.Duration `yaml:"sweep_interval"` // How often empty caller entries are swept
}

// Validate checks rate limiter configuration.
func (c *Config) Validate() error {
	if c.CallerLimit < 0 {
		return fmt.Errorf("ratelimit.caller_limit must be >= 0, got %d", c.CallerLimit)
	}
	if c.GlobalLimit < 0 {
		return fmt.Errorf("ratelimit.global_limit must be >= 0, got %d", c.GlobalLimit)
	}
	if c.CallerLimit > 0 && c.CallerWindow <= 0 {
		return fmt.Errorf("ratelimit.caller_window must be > 0 when caller_limit is set")
	}
	if c.GlobalLimit > 0 && c.GlobalWindow <= 0 {
		return fmt.Errorf("ratelimit.global_window must be > 0 when global_limit is set")
	}
	return nil
}

// Decision is the result of an admission check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration // When a retry may succeed; zero if allowed
}

// Usage describes current consumption against one policy.
type Usage struct {
	Count         int     `json:"count"`
	Limit         int     `json:"limit"`
	WindowSeconds float64 `json:"window_seconds"`
	Remaining     int     `json:"remaining"`
}

// Limiter enforces per-caller and global sliding-window limits.
type Limiter struct {
	mu      sync.Mutex
	cfg     Config
	global  []time.Time
	callers map[string][]time.Time
	now     func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

// New creates a limiter and starts its background sweep.
func New(cfg Config) *Limiter {
	l := &Limiter{
		cfg:     cfg,
		callers: make(map[string][]time.Time),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	if cfg.SweepInterval > 0 {
		go l.sweep()
	}
	return l
}

// CheckAndRecord atomically checks both policies and, if both admit, records
// the request. An empty callerID skips the per-caller policy.
func (l *Limiter) CheckAndRecord(callerID string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	// Global policy first: fail fast when the gateway is saturated.
	if l.cfg.GlobalLimit > 0 {
		l.global = evictOlder(l.global, now.Add(-l.cfg.GlobalWindow))
		if len(l.global) >= l.cfg.GlobalLimit {
			return Decision{RetryAfter: retryAfter(l.global[0], l.cfg.GlobalWindow, now)}
		}
	}

	if callerID != "" && l.cfg.CallerLimit > 0 {
		seq := evictOlder(l.callers[callerID], now.Add(-l.cfg.CallerWindow))
		if len(seq) >= l.cfg.CallerLimit {
			l.callers[callerID] = seq
			return Decision{RetryAfter: retryAfter(seq[0], l.cfg.CallerWindow, now)}
		}
		l.callers[callerID] = append(seq, now)
	}

	if l.cfg.GlobalLimit > 0 {
		l.global = append(l.global, now)
	}
	return Decision{Allowed: true}
}

// Usage reports a caller's current consumption.
func (l *Limiter) Usage(callerID string) Usage {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	seq := evictOlder(l.callers[callerID], now.Add(-l.cfg.CallerWindow))
	l.callers[callerID] = seq
	return usageFor(len(seq), l.cfg.CallerLimit, l.cfg.CallerWindow)
}

// UsageGlobal reports consumption against the global policy.
func (l *Limiter) UsageGlobal() Usage {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.global = evictOlder(l.global, now.Add(-l.cfg.GlobalWindow))
	return usageFor(len(l.global), l.cfg.GlobalLimit, l.cfg.GlobalWindow)
}

// Reset clears one caller's recorded requests. Operator/test tooling.
func (l *Limiter) Reset(callerID string) {
	l.mu.Lock()
	delete(l.callers, callerID)
	l.mu.Unlock()
}

// ResetAll clears all recorded requests, including the global sequence.
func (l *Limiter) ResetAll() {
	l.mu.Lock()
	l.global = nil
	l.callers = make(map[string][]time.Time)
	l.mu.Unlock()
}

// Stop halts the background sweep.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// sweep periodically removes caller entries whose windows have fully drained,
// bounding memory growth from one-off callers.
func (l *Limiter) sweep() {
	ticker := time.NewTicker(l.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.mu.Lock()
			now := l.now()
			removed := 0
			for id, seq := range l.callers {
				seq = evictOlder(seq, now.Add(-l.cfg.CallerWindow))
				if len(seq) == 0 {
					delete(l.callers, id)
					removed++
				} else {
					l.callers[id] = seq
				}
			}
			l.mu.Unlock()
			if removed > 0 {
				log.Debug().Int("removed", removed).Msg("rate limiter swept idle callers")
			}
		}
	}
}

// evictOlder drops timestamps before the cutoff, preserving order.
func evictOlder(seq []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(seq) && seq[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return seq
	}
	copy(seq, seq[i:])
	return seq[:len(seq)-i]
}

// retryAfter computes how long until the oldest surviving timestamp ages out.
func retryAfter(oldest time.Time, window time.Duration, now time.Time) time.Duration {
	d := oldest.Add(window).Sub(now)
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return d
}

func usageFor(count, limit int, window time.Duration) Usage {
	remaining := limit - count
	if limit <= 0 || remaining < 0 {
		remaining = 0
	}
	return Usage{
		Count:         count,
		Limit:         limit,
		WindowSeconds: window.Seconds(),
		Remaining:     remaining,
	}
}
