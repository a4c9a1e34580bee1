// Package config - defaults.go centralizes magic numbers and default values.
//
// DESIGN: All default values that appear in multiple places should be defined
// here. This makes configuration more maintainable and auditable.
package config

import "time"

// =============================================================================
// SERVER
// =============================================================================

// DefaultServerPort is the gateway's listen port.
const DefaultServerPort = 18090

// DefaultServerReadTimeout for the HTTP server.
const DefaultServerReadTimeout = 30 * time.Second

// DefaultServerWriteTimeout for the HTTP server.
const DefaultServerWriteTimeout = 2 * time.Minute

// MaxRequestBodySize is the maximum allowed request body (1MB of chat turns).
const MaxRequestBodySize = 1 * 1024 * 1024

// =============================================================================
// CIRCUIT BREAKER
// =============================================================================

// DefaultFailureThreshold is the consecutive-failure count that opens the breaker.
const DefaultFailureThreshold = 5

// DefaultRecoveryTimeout is how long the breaker stays open before a trial.
const DefaultRecoveryTimeout = 60 * time.Second

// DefaultHalfOpenTrials is the successes required to close from half-open.
const DefaultHalfOpenTrials = 3

// =============================================================================
// RATE LIMITING
// =============================================================================

// DefaultCallerLimit is requests per caller per caller window.
const DefaultCallerLimit = 30

// DefaultCallerWindow is the per-caller sliding window.
const DefaultCallerWindow = time.Minute

// DefaultGlobalLimit is requests across all callers per global window.
const DefaultGlobalLimit = 300

// DefaultGlobalWindow is the global sliding window.
const DefaultGlobalWindow = time.Minute

// DefaultSweepInterval is how often idle caller entries are swept.
const DefaultSweepInterval = 5 * time.Minute

// =============================================================================
// COST CONTROL
// =============================================================================

// DefaultWarningThreshold is the daily spend (USD) that logs a warning.
const DefaultWarningThreshold = 5.0

// DefaultCriticalThreshold is the daily spend (USD) that logs a critical alert.
const DefaultCriticalThreshold = 20.0

// DefaultDailyLimit is the daily spend (USD) that shuts off provider calls.
const DefaultDailyLimit = 50.0

// DefaultCostSessionTTL is how long idle cost sessions are tracked.
const DefaultCostSessionTTL = 24 * time.Hour

// =============================================================================
// RETRY AND BACKOFF
// =============================================================================

// DefaultRetryAttempts is the total provider attempts for retryable failures.
const DefaultRetryAttempts = 3

// DefaultRetryBaseDelay is the first backoff delay.
const DefaultRetryBaseDelay = 500 * time.Millisecond

// DefaultRetryMultiplier is the exponential backoff multiplier.
const DefaultRetryMultiplier = 2.0

// DefaultRetryMaxDelay caps the backoff delay.
const DefaultRetryMaxDelay = 8 * time.Second

// =============================================================================
// PROVIDER
// =============================================================================

// DefaultProviderTimeout is the per-call HTTP timeout for the provider.
const DefaultProviderTimeout = 60 * time.Second

// DefaultMaxTokens is the generation cap when a request does not set one.
const DefaultMaxTokens = 1024

// DefaultProductionModel is used when the environment tag is "production".
const DefaultProductionModel = "claude-sonnet-4-5"

// DefaultDevelopmentModel is used for all other environment tags.
const DefaultDevelopmentModel = "claude-haiku-4-5"
