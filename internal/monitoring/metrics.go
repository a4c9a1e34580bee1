// Package monitoring - metrics.go provides simple counters.
//
// DESIGN: Lightweight in-memory counters for operational metrics:
//   - requests/successes:  Total and successful generation counts
//   - fallbacks:           Fallback responses served
//   - retries:             Provider retries performed
//   - rate_limited:        Caller-facing rate-limit rejections
//   - breaker_rejections:  Calls refused by the open breaker
//   - breaker_opens:       Breaker open transitions
//
// For production, export these to Prometheus or similar.
package monitoring

import (
	"fmt"
	"sync/atomic"
	"time"
)

// MetricsCollector collects operational metrics.
type MetricsCollector struct {
	startedAt time.Time

	// Request counters
	requests  atomic.Int64
	successes atomic.Int64
	fallbacks atomic.Int64

	// Resilience counters
	retries           atomic.Int64
	rateLimited       atomic.Int64
	breakerRejections atomic.Int64
	breakerOpens      atomic.Int64
	costShutoffs      atomic.Int64

	// Token counters from provider responses (actual billed usage)
	totalInputTokens  atomic.Int64
	totalOutputTokens atomic.Int64
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		startedAt: time.Now(),
	}
}

// RecordRequest records a generation request.
func (mc *MetricsCollector) RecordRequest(success bool) {
	mc.requests.Add(1)
	if success {
		mc.successes.Add(1)
	}
}

// RecordFallback records a fallback response served to a caller.
func (mc *MetricsCollector) RecordFallback() { mc.fallbacks.Add(1) }

// RecordRetry records one provider retry attempt.
func (mc *MetricsCollector) RecordRetry() { mc.retries.Add(1) }

// RecordRateLimited records a caller-facing rate-limit rejection.
func (mc *MetricsCollector) RecordRateLimited() { mc.rateLimited.Add(1) }

// RecordBreakerRejection records a call refused by the open breaker.
func (mc *MetricsCollector) RecordBreakerRejection() { mc.breakerRejections.Add(1) }

// RecordBreakerOpen records a breaker open transition.
func (mc *MetricsCollector) RecordBreakerOpen() { mc.breakerOpens.Add(1) }

// RecordCostShutoff records a call refused by the daily cost limit.
func (mc *MetricsCollector) RecordCostShutoff() { mc.costShutoffs.Add(1) }

// RecordAPIUsage records actual token usage from the provider response.
func (mc *MetricsCollector) RecordAPIUsage(inputTokens, outputTokens int) {
	mc.totalInputTokens.Add(int64(inputTokens))
	mc.totalOutputTokens.Add(int64(outputTokens))
}

// StartedAt returns when the metrics collector was created.
func (mc *MetricsCollector) StartedAt() time.Time { return mc.startedAt }

// FullStats returns all metrics in a structured format for the /stats endpoint.
func (mc *MetricsCollector) FullStats() StatsResponse {
	uptime := time.Since(mc.startedAt)
	requests := mc.requests.Load()
	successes := mc.successes.Load()

	return StatsResponse{
		Uptime:        formatDuration(uptime),
		UptimeSeconds: int64(uptime.Seconds()),
		StartedAt:     mc.startedAt.Format(time.RFC3339),
		Requests: RequestStats{
			Total:      requests,
			Successful: successes,
			Failed:     requests - successes,
			Fallbacks:  mc.fallbacks.Load(),
		},
		Resilience: ResilienceStats{
			Retries:           mc.retries.Load(),
			RateLimited:       mc.rateLimited.Load(),
			BreakerRejections: mc.breakerRejections.Load(),
			BreakerOpens:      mc.breakerOpens.Load(),
			CostShutoffs:      mc.costShutoffs.Load(),
		},
		Tokens: TokenStats{
			InputTokens:  mc.totalInputTokens.Load(),
			OutputTokens: mc.totalOutputTokens.Load(),
		},
	}
}

// StatsResponse is the structured response for the /stats endpoint.
type StatsResponse struct {
	Uptime        string          `json:"uptime"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	StartedAt     string          `json:"started_at"`
	Requests      RequestStats    `json:"requests"`
	Resilience    ResilienceStats `json:"resilience"`
	Tokens        TokenStats      `json:"tokens"`
}

// RequestStats holds request count metrics.
type RequestStats struct {
	Total      int64 `json:"total"`
	Successful int64 `json:"successful"`
	Failed     int64 `json:"failed"`
	Fallbacks  int64 `json:"fallbacks"`
}

// ResilienceStats holds breaker/limiter/retry metrics.
type ResilienceStats struct {
	Retries           int64 `json:"retries"`
	RateLimited       int64 `json:"rate_limited"`
	BreakerRejections int64 `json:"breaker_rejections"`
	BreakerOpens      int64 `json:"breaker_opens"`
	CostShutoffs      int64 `json:"cost_shutoffs"`
}

// TokenStats holds billed token usage.
type TokenStats struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
