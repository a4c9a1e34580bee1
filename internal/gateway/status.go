// Health snapshot exposure for the gateway.
package gateway

import (
	"time"

	"github.com/tutorloop/resilience-gateway/internal/breaker"
	"github.com/tutorloop/resilience-gateway/internal/errclass"
	"github.com/tutorloop/resilience-gateway/internal/ratelimit"
)

// Status is the gateway's service health.
type Status = errclass.Status

// LastError is the diagnostic detail behind a non-healthy status.
type LastError struct {
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusSnapshot is a read-only view of gateway health for the /status
// endpoint and the health check.
type StatusSnapshot struct {
	Status      Status           `json:"status"`
	Breaker     breaker.Snapshot `json:"breaker"`
	DailyCost   float64          `json:"daily_cost_usd"`
	DailyLimit  float64          `json:"daily_limit_usd"`
	GlobalUsage ratelimit.Usage  `json:"global_usage"`
	Model       string           `json:"model"`
	LastError   *LastError       `json:"last_error,omitempty"`
}

// GetStatus returns the current health snapshot. The stored status reflects
// the last completed request; the daily cost limit is re-derived live so the
// snapshot never reports healthy while the gateway would refuse calls.
func (g *Gateway) GetStatus() StatusSnapshot {
	g.mu.Lock()
	status := g.status
	var lastErr *LastError
	if g.lastError != nil {
		le := *g.lastError
		lastErr = &le
	}
	g.mu.Unlock()

	if g.costs.LimitExceeded() {
		status = errclass.StatusUnavailable
	}

	return StatusSnapshot{
		Status:      status,
		Breaker:     g.breaker.Snapshot(),
		DailyCost:   g.costs.DailyCost(),
		DailyLimit:  g.cfg.Cost.DailyLimit,
		GlobalUsage: g.limiter.UsageGlobal(),
		Model:       g.cfg.Provider.Model,
		LastError:   lastErr,
	}
}
