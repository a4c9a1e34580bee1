// HTTP surface for the resilience gateway.
//
// DESIGN: Request flow:
//   - handleGenerate(): Entry point for generation requests (POST /v1/generate)
//   - handleHealth():   Liveness/readiness for load balancers (GET /healthz)
//
// Operational endpoints (/status, /stats, /usage, /costs, admin resets) are
// restricted to loopback: they expose cost data and internal state.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tutorloop/resilience-gateway/internal/config"
	"github.com/tutorloop/resilience-gateway/internal/errclass"
	"github.com/tutorloop/resilience-gateway/internal/ratelimit"
)

// HeaderCallerID identifies the caller for rate limiting when the request
// body does not carry a caller_id.
const HeaderCallerID = "X-Caller-ID"

// Start runs the HTTP server. Blocks until Shutdown or a listener error.
func (g *Gateway) Start() error {
	g.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", g.cfg.Server.Port),
		Handler:      g.routes(),
		ReadTimeout:  g.cfg.Server.ReadTimeout,
		WriteTimeout: g.cfg.Server.WriteTimeout,
	}
	log.Info().
		Int("port", g.cfg.Server.Port).
		Str("model", g.cfg.Provider.Model).
		Msg("gateway listening")

	err := g.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops background sweeps.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.Close()
	if g.server == nil {
		return nil
	}
	return g.server.Shutdown(ctx)
}

func (g *Gateway) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/generate", g.handleGenerate)
	mux.HandleFunc("/healthz", g.handleHealth)
	mux.HandleFunc("/status", g.handleStatus)
	mux.HandleFunc("/status/ws", g.handleStatusWS)
	mux.HandleFunc("/stats", g.handleStats)
	mux.HandleFunc("/usage", g.handleUsage)
	mux.HandleFunc("/costs", g.handleCostDashboard)
	mux.HandleFunc("/admin/ratelimit/reset", g.handleRateLimitReset)
	return mux
}

// writeError writes a JSON error response.
func (g *Gateway) writeError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{"message": msg, "type": "gateway_error"},
	})
}

// handleGenerate processes one generation request.
func (g *Gateway) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, config.MaxRequestBodySize)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.CallerID == "" {
		req.CallerID = callerIDFor(r)
	}

	resp, err := g.Generate(r.Context(), req)
	if err != nil {
		var rle *RateLimitError
		if errors.As(err, &rle) {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSeconds(rle.RetryAfter)))
			g.writeError(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		g.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// handleHealth reports service health. Unavailable maps to 503 so load
// balancers stop routing; degraded still accepts traffic.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := g.GetStatus()

	w.Header().Set("Content-Type", "application/json")
	if snap.Status == errclass.StatusUnavailable {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  snap.Status,
		"breaker": snap.Breaker.State,
		"time":    time.Now().Format(time.RFC3339),
	})
}

// handleStatus returns the full health snapshot.
// Restricted to localhost: LastError carries internal diagnostics.
func (g *Gateway) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !isLoopback(r.RemoteAddr) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(g.GetStatus())
}

// handleStats returns aggregated operational metrics as JSON.
// Restricted to localhost to prevent external access to operational metrics.
func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	if !isLoopback(r.RemoteAddr) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(g.metrics.FullStats())
}

// handleUsage reports rate-limit consumption, globally and (with ?caller_id=)
// for one caller.
func (g *Gateway) handleUsage(w http.ResponseWriter, r *http.Request) {
	if !isLoopback(r.RemoteAddr) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	resp := struct {
		Global ratelimit.Usage  `json:"global"`
		Caller *ratelimit.Usage `json:"caller,omitempty"`
	}{Global: g.limiter.UsageGlobal()}

	if callerID := r.URL.Query().Get("caller_id"); callerID != "" {
		u := g.limiter.Usage(callerID)
		resp.Caller = &u
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// handleCostDashboard serves the cost dashboard HTML page.
// Restricted to localhost to prevent external access to cost data.
func (g *Gateway) handleCostDashboard(w http.ResponseWriter, r *http.Request) {
	if !isLoopback(r.RemoteAddr) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	g.costs.HandleDashboard(w, r)
}

// handleRateLimitReset clears recorded requests for one caller (?caller_id=)
// or everything. Operator tooling, loopback only.
func (g *Gateway) handleRateLimitReset(w http.ResponseWriter, r *http.Request) {
	if !isLoopback(r.RemoteAddr) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	callerID := r.URL.Query().Get("caller_id")
	if callerID != "" {
		g.limiter.Reset(callerID)
	} else {
		g.limiter.ResetAll()
	}
	log.Info().Str("caller_id", callerID).Msg("rate limit reset")

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"reset": callerID})
}

// callerIDFor falls back from the caller header to the remote host.
func callerIDFor(r *http.Request) string {
	if id := r.Header.Get(HeaderCallerID); id != "" {
		return id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// retryAfterSeconds rounds a wait up to whole seconds for the Retry-After
// header (zero would invite an immediate retry).
func retryAfterSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}

// isLoopback reports whether the remote address is a loopback interface.
func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
