// Package gateway types - request/response contracts for the resilient gateway.
//
// DESIGN: Types used by the gateway for:
//   - Caller-facing generation requests and replies
//   - The rate-limit rejection signal (the one condition surfaced as an error)
//   - Health snapshot exposure
//
// Types are defined here to avoid circular imports and provide clear contracts.
package gateway

import (
	"fmt"
	"time"

	"github.com/tutorloop/resilience-gateway/internal/provider"
)

// Request is one generation request from a caller.
type Request struct {
	Messages    []provider.Message `json:"messages"`
	System      string             `json:"system,omitempty"`
	SessionID   string             `json:"session_id,omitempty"`
	CallerID    string             `json:"caller_id,omitempty"`
	Model       string             `json:"model,omitempty"` // Empty: gateway default
	MaxTokens   int                `json:"max_tokens,omitempty"`
	Temperature float64            `json:"temperature,omitempty"`
}

// Validate rejects requests the provider could never serve. These are the only
// conditions Generate reports as a plain error instead of a fallback reply.
func (r *Request) Validate() error {
	if len(r.Messages) == 0 {
		return fmt.Errorf("request has no messages")
	}
	for i, m := range r.Messages {
		if m.Role != "user" && m.Role != "assistant" {
			return fmt.Errorf("message %d has invalid role %q", i, m.Role)
		}
	}
	return nil
}

// Response is the caller-facing reply. Provider failures never surface here:
// when Fallback is set, Text is a synthesized degraded reply and ErrorKind
// names the failure class behind it.
type Response struct {
	Text      string `json:"text"`
	Model     string `json:"model,omitempty"`
	RequestID string `json:"request_id"`
	Fallback  bool   `json:"fallback"`
	ErrorKind string `json:"error_kind,omitempty"`
	Attempts  int    `json:"attempts,omitempty"`

	InputTokens  int     `json:"input_tokens,omitempty"`
	OutputTokens int     `json:"output_tokens,omitempty"`
	CostUSD      float64 `json:"cost_usd,omitempty"`
}

// RateLimitError is the caller-facing admission rejection. It is distinct from
// provider health: callers should back off and retry, not treat the gateway as
// down.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter.Round(time.Millisecond))
}
