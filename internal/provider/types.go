// Package provider defines the model-provider client contract and its
// structured failure type.
//
// DESIGN: Failures cross this boundary as *Error values, never as raw
// provider exception text. Error carries the structural signals (HTTP status,
// provider error category) the classifier needs, so classification is a total
// function over the type.
package provider

import (
	"context"
	"fmt"
	"time"
)

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Request is one generation request.
type Request struct {
	Messages    []Message
	System      string
	Model       string
	MaxTokens   int
	Temperature float64
}

// Usage holds token counts reported by the provider.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response is a successful generation.
type Response struct {
	Text  string
	Model string
	Usage Usage
}

// Result pairs a response with its error for the async variant.
type Result struct {
	Response *Response
	Err      error
}

// Client sends generation requests to a model provider.
type Client interface {
	// Send performs a blocking generation call.
	Send(ctx context.Context, req Request) (*Response, error)

	// SendAsync performs the call in the background. The returned channel
	// receives exactly one Result and is then closed.
	SendAsync(ctx context.Context, req Request) <-chan Result
}

// Error is a structured provider failure.
type Error struct {
	StatusCode int           // HTTP status, 0 for transport-level failures
	Category   string        // Provider error type, e.g. "rate_limit_error"
	Message    string        // Provider-supplied message (internal use only)
	RetryAfter time.Duration // Provider-suggested backoff, if any
	Raw        []byte        // Raw error body for classification fallback
	Cause      error         // Underlying transport error, if any
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider error: status=%d category=%s", e.StatusCode, e.Category)
	}
	if e.Cause != nil {
		return fmt.Sprintf("provider transport error: %v", e.Cause)
	}
	return fmt.Sprintf("provider error: category=%s", e.Category)
}

func (e *Error) Unwrap() error { return e.Cause }
