// Resilient generation gateway.
//
// DESIGN: Generate is the single logical operation. Admission order:
//   - breaker.CanExecute():       refused -> fallback, nothing else consulted
//   - cost tracker daily limit:   exceeded -> fallback, provider not called
//   - limiter.CheckAndRecord():   refused -> RateLimitError to the caller
//
// then the provider call with bounded retries. Retries apply only to
// provider-side rate limiting; every other failure kind is terminal for the
// request. Provider failures never surface as errors: the caller always gets
// a reply, real or fallback.
package gateway

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tutorloop/resilience-gateway/internal/breaker"
	"github.com/tutorloop/resilience-gateway/internal/config"
	"github.com/tutorloop/resilience-gateway/internal/costcontrol"
	"github.com/tutorloop/resilience-gateway/internal/errclass"
	"github.com/tutorloop/resilience-gateway/internal/journal"
	"github.com/tutorloop/resilience-gateway/internal/monitoring"
	"github.com/tutorloop/resilience-gateway/internal/provider"
	"github.com/tutorloop/resilience-gateway/internal/ratelimit"
	"github.com/tutorloop/resilience-gateway/internal/tokencount"
)

// defaultSessionID groups requests that carry no session of their own.
const defaultSessionID = "default"

// Gateway mediates all provider calls. Safe for concurrent use; one instance
// serves the whole process.
type Gateway struct {
	cfg       *config.Config
	client    provider.Client
	breaker   *breaker.Breaker
	limiter   *ratelimit.Limiter
	costs     *costcontrol.Tracker
	estimator tokencount.Estimator
	metrics   *monitoring.MetricsCollector
	telemetry *monitoring.Tracker
	journal   *journal.Journal // nil when disabled
	pricing   costcontrol.PricingLookup

	mu        sync.Mutex
	status    Status
	lastError *LastError

	// sleep is swapped out in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error

	server *http.Server
}

// Option configures optional gateway collaborators.
type Option func(*Gateway)

// WithJournal attaches the sqlite audit journal.
func WithJournal(j *journal.Journal) Option {
	return func(g *Gateway) { g.journal = j }
}

// WithTelemetry attaches a telemetry tracker.
func WithTelemetry(t *monitoring.Tracker) Option {
	return func(g *Gateway) { g.telemetry = t }
}

// WithEstimator overrides the token estimator.
func WithEstimator(e tokencount.Estimator) Option {
	return func(g *Gateway) { g.estimator = e }
}

// WithPricing overrides the pricing table used for cost accounting.
func WithPricing(p costcontrol.PricingLookup) Option {
	return func(g *Gateway) { g.pricing = p }
}

// New creates a gateway around a provider client. The config must already be
// validated.
func New(cfg *config.Config, client provider.Client, opts ...Option) *Gateway {
	g := &Gateway{
		cfg:       cfg,
		client:    client,
		breaker:   breaker.New(cfg.Breaker),
		limiter:   ratelimit.New(cfg.RateLimit),
		estimator: tokencount.NewEstimator(),
		metrics:   monitoring.NewMetricsCollector(),
		status:    errclass.StatusHealthy,
		sleep:     sleepCtx,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.costs = costcontrol.NewTracker(cfg.Cost, g.pricing)
	if g.telemetry == nil {
		g.telemetry, _ = monitoring.NewTracker(cfg.Monitoring.Telemetry)
	}
	return g
}

// Generate runs one generation through the full resilience chain. The only
// errors it returns are request validation failures and *RateLimitError;
// provider failures come back as fallback responses.
func (g *Gateway) Generate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	requestID := uuid.New().String()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	model := req.Model
	if model == "" {
		model = g.cfg.Provider.Model
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = defaultSessionID
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = config.DefaultMaxTokens
	}

	if allowed, retryAfter := g.breaker.CanExecute(); !allowed {
		g.metrics.RecordBreakerRejection()
		log.Debug().
			Str("request_id", requestID).
			Dur("retry_after", retryAfter).
			Msg("request refused: breaker open")
		return g.refuse(requestID, sessionID, req.CallerID, model, g.lastErrorKind(), start), nil
	}

	if g.costs.LimitExceeded() {
		g.metrics.RecordCostShutoff()
		g.setStatus(errclass.StatusUnavailable)
		log.Warn().
			Str("request_id", requestID).
			Float64("daily_cost", g.costs.DailyCost()).
			Msg("request refused: daily cost limit reached")
		resp := &Response{
			Text:      costLimitMessage,
			RequestID: requestID,
			Fallback:  true,
			ErrorKind: "cost_limit",
		}
		g.metrics.RecordRequest(false)
		g.metrics.RecordFallback()
		g.record(ctx, requestID, sessionID, req.CallerID, model, "fallback", "cost_limit", 0, provider.Usage{}, 0, time.Since(start))
		return resp, nil
	}

	if d := g.limiter.CheckAndRecord(req.CallerID); !d.Allowed {
		g.metrics.RecordRateLimited()
		g.record(ctx, requestID, sessionID, req.CallerID, model, "rate_limited", "", 0, provider.Usage{}, 0, time.Since(start))
		return nil, &RateLimitError{RetryAfter: d.RetryAfter}
	}

	preq := provider.Request{
		Messages:    req.Messages,
		System:      req.System,
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}
	presp, attempts, err := g.callWithRetry(ctx, requestID, preq)
	if err != nil {
		return g.failure(ctx, requestID, sessionID, req.CallerID, model, attempts, start, err), nil
	}
	return g.success(ctx, requestID, sessionID, req, model, attempts, start, presp), nil
}

// callWithRetry invokes the provider, retrying only rate-limit failures.
// No gateway locks are held across the backoff wait.
func (g *Gateway) callWithRetry(ctx context.Context, requestID string, preq provider.Request) (*provider.Response, int, error) {
	attempts := 0
	for {
		attempts++
		resp, err := g.client.Send(ctx, preq)
		if err == nil {
			return resp, attempts, nil
		}

		kind := errclass.Classify(err)
		if kind != errclass.RateLimited || attempts >= g.cfg.Retry.MaxAttempts {
			return nil, attempts, err
		}

		delay := g.backoffDelay(attempts, err)
		g.metrics.RecordRetry()
		log.Debug().
			Str("request_id", requestID).
			Int("attempt", attempts).
			Dur("delay", delay).
			Msg("provider rate limited, backing off")
		if werr := g.sleep(ctx, delay); werr != nil {
			// Caller gave up mid-wait; the provider failure stands.
			return nil, attempts, err
		}
	}
}

// backoffDelay computes the exponential delay for the next attempt. A
// provider-supplied Retry-After longer than the computed delay wins.
func (g *Gateway) backoffDelay(attempt int, err error) time.Duration {
	d := float64(g.cfg.Retry.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= g.cfg.Retry.Multiplier
	}
	if ceil := float64(g.cfg.Retry.MaxDelay); d > ceil {
		d = ceil
	}
	if g.cfg.Retry.Jitter {
		d = d/2 + rand.Float64()*d/2
	}
	delay := time.Duration(d)

	var perr *provider.Error
	if errors.As(err, &perr) && perr.RetryAfter > delay {
		delay = perr.RetryAfter
	}
	return delay
}

// success records the outcome of a completed provider call and builds the
// caller response.
func (g *Gateway) success(ctx context.Context, requestID, sessionID string, req Request, model string, attempts int, start time.Time, presp *provider.Response) *Response {
	g.breaker.RecordSuccess()

	usage := presp.Usage
	if usage.InputTokens == 0 {
		usage.InputTokens = g.estimateInput(req)
	}
	if usage.OutputTokens == 0 {
		usage.OutputTokens = g.estimator.Estimate(presp.Text)
	}

	inRes := g.costs.Track(sessionID, usage.InputTokens, costcontrol.Input, model)
	outRes := g.costs.Track(sessionID, usage.OutputTokens, costcontrol.Output, model)
	g.handleCostSignals(inRes)
	g.handleCostSignals(outRes)
	cost := inRes.Cost + outRes.Cost

	g.metrics.RecordRequest(true)
	g.metrics.RecordAPIUsage(usage.InputTokens, usage.OutputTokens)

	g.mu.Lock()
	g.lastError = nil
	if outRes.LimitExceeded {
		g.status = errclass.StatusUnavailable
	} else {
		g.status = errclass.StatusHealthy
	}
	g.mu.Unlock()

	duration := time.Since(start)
	g.record(ctx, requestID, sessionID, req.CallerID, model, "success", "", attempts, usage, cost, duration)
	log.Info().
		Str("request_id", requestID).
		Str("model", model).
		Int("attempts", attempts).
		Int("input_tokens", usage.InputTokens).
		Int("output_tokens", usage.OutputTokens).
		Float64("cost_usd", cost).
		Dur("duration", duration).
		Msg("generation complete")

	return &Response{
		Text:         presp.Text,
		Model:        presp.Model,
		RequestID:    requestID,
		Attempts:     attempts,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		CostUSD:      cost,
	}
}

// failure classifies a terminal provider failure, feeds the breaker and
// status, and synthesizes the fallback reply.
func (g *Gateway) failure(ctx context.Context, requestID, sessionID, callerID, model string, attempts int, start time.Time, err error) *Response {
	kind := errclass.Classify(err)

	// Invalid requests are caller defects: the provider is healthy, so they
	// feed neither the breaker nor the shared status.
	if kind != errclass.InvalidRequest {
		prev := g.breaker.State()
		g.breaker.RecordFailure()
		if prev != breaker.StateOpen && g.breaker.State() == breaker.StateOpen {
			g.metrics.RecordBreakerOpen()
			g.telemetry.RecordAlert(&monitoring.AlertEvent{
				Timestamp: time.Now(),
				Alert:     "breaker_open",
				Detail:    kind.String(),
			})
		}
	}
	if status, ok := errclass.StatusEffect(kind); ok {
		g.mu.Lock()
		g.status = status
		g.lastError = &LastError{
			Kind:      kind.String(),
			Message:   err.Error(),
			Timestamp: time.Now(),
		}
		g.mu.Unlock()
	}

	g.metrics.RecordRequest(false)
	g.metrics.RecordFallback()
	g.record(ctx, requestID, sessionID, callerID, model, "fallback", kind.String(), attempts, provider.Usage{}, 0, time.Since(start))
	log.Warn().
		Str("request_id", requestID).
		Str("kind", kind.String()).
		Int("attempts", attempts).
		Err(err).
		Msg("generation failed, serving fallback")

	return &Response{
		Text:      fallbackResponse(kind, ""),
		RequestID: requestID,
		Fallback:  true,
		ErrorKind: kind.String(),
		Attempts:  attempts,
	}
}

// refuse builds the fallback served when the breaker rejects a call outright.
func (g *Gateway) refuse(requestID, sessionID, callerID, model string, kind errclass.Kind, start time.Time) *Response {
	g.metrics.RecordRequest(false)
	g.metrics.RecordFallback()
	g.record(context.Background(), requestID, sessionID, callerID, model, "fallback", kind.String(), 0, provider.Usage{}, 0, time.Since(start))
	return &Response{
		Text:      fallbackResponse(kind, ""),
		RequestID: requestID,
		Fallback:  true,
		ErrorKind: kind.String(),
	}
}

// handleCostSignals acts on threshold crossings reported by the cost tracker.
func (g *Gateway) handleCostSignals(res costcontrol.TrackResult) {
	if res.WarningCrossed {
		log.Warn().Float64("daily_cost", res.DailyCost).Msg("daily cost warning threshold crossed")
		g.telemetry.RecordAlert(&monitoring.AlertEvent{
			Timestamp: time.Now(),
			Alert:     "cost_warning",
			DailyCost: res.DailyCost,
		})
	}
	if res.CriticalCrossed {
		log.Error().Float64("daily_cost", res.DailyCost).Msg("daily cost critical threshold crossed")
		g.telemetry.RecordAlert(&monitoring.AlertEvent{
			Timestamp: time.Now(),
			Alert:     "cost_critical",
			DailyCost: res.DailyCost,
		})
	}
	if res.LimitExceeded && res.DailyCost-res.Cost < g.cfg.Cost.DailyLimit {
		log.Error().Float64("daily_cost", res.DailyCost).Msg("daily cost limit reached, shutting off provider calls")
		g.telemetry.RecordAlert(&monitoring.AlertEvent{
			Timestamp: time.Now(),
			Alert:     "cost_limit",
			DailyCost: res.DailyCost,
		})
	}
}

// record emits the per-request telemetry event and journal row.
func (g *Gateway) record(ctx context.Context, requestID, sessionID, callerID, model, outcome, errorKind string, attempts int, usage provider.Usage, cost float64, duration time.Duration) {
	g.telemetry.RecordRequest(&monitoring.RequestEvent{
		Timestamp:    time.Now(),
		RequestID:    requestID,
		SessionID:    sessionID,
		CallerID:     callerID,
		Model:        model,
		Outcome:      outcome,
		ErrorKind:    errorKind,
		Attempts:     attempts,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		CostUSD:      cost,
		Duration:     duration,
	})
	if g.journal != nil {
		g.journal.Record(ctx, journal.Entry{
			RequestID:    requestID,
			SessionID:    sessionID,
			CallerID:     callerID,
			Model:        model,
			Outcome:      outcome,
			ErrorKind:    errorKind,
			Attempts:     attempts,
			InputTokens:  usage.InputTokens,
			OutputTokens: usage.OutputTokens,
			CostUSD:      cost,
			Duration:     duration,
		})
	}
}

// estimateInput approximates the input token count when the provider response
// carried no usage block.
func (g *Gateway) estimateInput(req Request) int {
	var b strings.Builder
	b.WriteString(req.System)
	for _, m := range req.Messages {
		b.WriteString(m.Content)
	}
	return g.estimator.Estimate(b.String())
}

func (g *Gateway) setStatus(s Status) {
	g.mu.Lock()
	g.status = s
	g.mu.Unlock()
}

// lastErrorKind returns the kind behind the most recent recorded failure, or
// ServerError when none is stored (the breaker cannot be open without one,
// except when forced open by an operator).
func (g *Gateway) lastErrorKind() errclass.Kind {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lastError == nil {
		return errclass.ServerError
	}
	return kindFromString(g.lastError.Kind)
}

// Close stops the gateway's background sweeps.
func (g *Gateway) Close() {
	g.limiter.Stop()
	g.costs.Stop()
}

// sleepCtx waits for d or until the context is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
