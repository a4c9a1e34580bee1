package costcontrol

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Tracker accumulates spend per UTC day and per logical session.
// The daily total resets exactly once when the date advances; the rollover
// check is serialized with accumulation so concurrent calls racing across a
// day boundary cannot double-reset or lose an increment.
type Tracker struct {
	mu        sync.Mutex
	cfg       Config
	pricing   PricingLookup
	dailyCost float64
	resetDate time.Time // UTC midnight of the day dailyCost covers
	sessions  map[string]*session
	now       func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

// NewTracker creates a cost tracker. Starts a background session sweep when
// a session TTL is configured.
func NewTracker(cfg Config, pricing PricingLookup) *Tracker {
	if pricing == nil {
		pricing = TablePricing{}
	}
	t := &Tracker{
		cfg:      cfg,
		pricing:  pricing,
		sessions: make(map[string]*session),
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	t.resetDate = utcDay(t.now())
	if cfg.SessionTTL > 0 {
		go t.cleanup()
	}
	return t
}

// Track records the cost of tokens flowing one direction through one call.
// It returns the alert signals the gateway must act on.
func (t *Tracker) Track(sessionID string, tokens int, direction Direction, model string) TrackResult {
	cost := float64(tokens) / 1_000_000 * t.pricing.PricePerMillion(model, direction)

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.rolloverLocked(now)

	before := t.dailyCost
	t.dailyCost += cost

	s := t.getOrCreateLocked(sessionID, model, now)
	s.Cost += cost
	s.Requests++
	s.LastUpdated = now
	if model != "" {
		s.Model = model
	}

	return TrackResult{
		Cost:            cost,
		DailyCost:       t.dailyCost,
		WarningCrossed:  crossed(before, t.dailyCost, t.cfg.WarningThreshold),
		CriticalCrossed: crossed(before, t.dailyCost, t.cfg.CriticalThreshold),
		LimitExceeded:   t.cfg.DailyLimit > 0 && t.dailyCost >= t.cfg.DailyLimit,
	}
}

// DailyCost returns the accumulated spend for the current UTC day.
func (t *Tracker) DailyCost() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked(t.now())
	return t.dailyCost
}

// LimitExceeded reports whether today's spend has reached the daily limit.
func (t *Tracker) LimitExceeded() bool {
	if t.cfg.DailyLimit <= 0 {
		return false
	}
	return t.DailyCost() >= t.cfg.DailyLimit
}

// SessionCost returns accumulated cost for a session.
func (t *Tracker) SessionCost(sessionID string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.sessions[sessionID]; ok {
		return s.Cost
	}
	return 0
}

// ResetSession zeroes one session's accumulator without touching the daily total.
func (t *Tracker) ResetSession(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.sessions[sessionID]; ok {
		s.Cost = 0
		s.Requests = 0
		s.LastUpdated = t.now()
	}
}

// Sessions returns a snapshot of all tracked sessions for the dashboard.
func (t *Tracker) Sessions() []SessionSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snapshots := make([]SessionSnapshot, 0, len(t.sessions))
	for _, s := range t.sessions {
		snapshots = append(snapshots, SessionSnapshot{
			ID:          s.ID,
			Cost:        s.Cost,
			Requests:    s.Requests,
			Model:       s.Model,
			CreatedAt:   s.CreatedAt,
			LastUpdated: s.LastUpdated,
		})
	}
	return snapshots
}

// Config returns the tracker's thresholds (for dashboard display).
func (t *Tracker) Config() Config {
	return t.cfg
}

// Stop halts the background session sweep.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
}

// rolloverLocked resets the daily total when the date has advanced past
// resetDate. Must be called under lock.
func (t *Tracker) rolloverLocked(now time.Time) {
	day := utcDay(now)
	if day.After(t.resetDate) {
		log.Info().
			Float64("previous_daily_cost", t.dailyCost).
			Time("day", day).
			Msg("daily cost reset")
		t.dailyCost = 0
		t.resetDate = day
	}
}

func (t *Tracker) getOrCreateLocked(sessionID, model string, now time.Time) *session {
	if s, ok := t.sessions[sessionID]; ok {
		return s
	}
	s := &session{
		ID:          sessionID,
		Model:       model,
		CreatedAt:   now,
		LastUpdated: now,
	}
	t.sessions[sessionID] = s
	return s
}

// cleanup evicts sessions idle longer than the TTL. The daily total is not
// decremented: it is a day-scoped ledger, not a sum over live sessions.
func (t *Tracker) cleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.mu.Lock()
			now := t.now()
			for id, s := range t.sessions {
				if now.Sub(s.LastUpdated) > t.cfg.SessionTTL {
					delete(t.sessions, id)
				}
			}
			t.mu.Unlock()
		}
	}
}

// crossed reports whether a threshold was crossed by this increment.
func crossed(before, after, threshold float64) bool {
	return threshold > 0 && before < threshold && after >= threshold
}

// utcDay truncates a time to UTC midnight.
func utcDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
