// Package errclass turns provider failures into a bounded taxonomy with
// fixed, non-leaking user-facing messages.
//
// DESIGN: Classify is a total function: whatever error reaches it, it returns
// one of the seven kinds. It inspects structural signals only (HTTP status,
// provider error category, transport error types) and never echoes provider
// internals to callers.
package errclass

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/tidwall/gjson"

	"github.com/tutorloop/resilience-gateway/internal/provider"
)

// Kind is the failure taxonomy. Exhaustive and mutually exclusive.
type Kind int

const (
	Unknown Kind = iota
	Authentication
	RateLimited
	Connection
	InvalidRequest
	ServerError
	Timeout
)

func (k Kind) String() string {
	switch k {
	case Authentication:
		return "authentication"
	case RateLimited:
		return "rate_limited"
	case Connection:
		return "connection"
	case InvalidRequest:
		return "invalid_request"
	case ServerError:
		return "server_error"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Status is the derived service health, a pure function of breaker state,
// last error kind, and the daily cost limit.
type Status string

const (
	StatusHealthy     Status = "healthy"
	StatusDegraded    Status = "degraded"
	StatusUnavailable Status = "unavailable"
)

// Classify maps a failure to its kind.
func Classify(err error) Kind {
	if err == nil {
		return Unknown
	}

	var perr *provider.Error
	if errors.As(err, &perr) {
		if k, ok := classifyStatus(perr.StatusCode); ok {
			return k
		}
		category := perr.Category
		if category == "" && len(perr.Raw) > 0 {
			category = gjson.GetBytes(perr.Raw, "error.type").String()
		}
		if k, ok := classifyCategory(category); ok {
			return k
		}
		if perr.Cause != nil {
			return classifyTransport(perr.Cause)
		}
		return Unknown
	}

	return classifyTransport(err)
}

func classifyStatus(status int) (Kind, bool) {
	switch {
	case status == 401 || status == 403:
		return Authentication, true
	case status == 429:
		return RateLimited, true
	case status == 408 || status == 504:
		return Timeout, true
	case status >= 400 && status < 500:
		return InvalidRequest, true
	case status >= 500:
		return ServerError, true
	}
	return Unknown, false
}

func classifyCategory(category string) (Kind, bool) {
	switch category {
	case "authentication_error", "permission_error":
		return Authentication, true
	case "rate_limit_error":
		return RateLimited, true
	case "invalid_request_error", "not_found_error":
		return InvalidRequest, true
	case "overloaded_error", "api_error":
		return ServerError, true
	case "timeout_error":
		return Timeout, true
	}
	return Unknown, false
}

func classifyTransport(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Timeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Timeout
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return Connection
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return Connection
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return Connection
	}
	// http.Client wraps timeouts in url.Error with a descriptive text when
	// the deadline comes from Client.Timeout rather than the context.
	if strings.Contains(err.Error(), "Client.Timeout exceeded") {
		return Timeout
	}

	return Unknown
}

// messages are fixed per kind and never interpolate provider internals.
var messages = map[Kind]string{
	Authentication: "The assistant is not available right now due to a configuration issue. Please contact support.",
	RateLimited:    "The assistant is handling a lot of requests at the moment. Please try again shortly.",
	Connection:     "The assistant could not be reached. Please try again in a few moments.",
	InvalidRequest: "That request could not be processed. Please rephrase and try again.",
	ServerError:    "The assistant ran into a temporary problem. Please try again shortly.",
	Timeout:        "The assistant took too long to respond. Please try again.",
	Unknown:        "Something unexpected happened. Please try again shortly.",
}

// Message returns the fixed user-facing message for a kind.
func Message(kind Kind) string {
	if m, ok := messages[kind]; ok {
		return m
	}
	return messages[Unknown]
}

// StatusEffect returns the service status a failure kind implies. The second
// return is false when the kind carries no provider-health signal
// (caller-side defects must not affect shared health state).
func StatusEffect(kind Kind) (Status, bool) {
	switch kind {
	case Authentication:
		return StatusUnavailable, true
	case InvalidRequest:
		return "", false
	default:
		return StatusDegraded, true
	}
}
