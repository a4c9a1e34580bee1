package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorloop/resilience-gateway/internal/config"
	"github.com/tutorloop/resilience-gateway/internal/monitoring"
)

const loopbackAddr = "127.0.0.1:54321"

func doRequest(g *Gateway, method, target, body, remoteAddr string) *httptest.ResponseRecorder {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	if remoteAddr != "" {
		r.RemoteAddr = remoteAddr
	}
	w := httptest.NewRecorder()
	g.routes().ServeHTTP(w, r)
	return w
}

func TestHandleGenerate_Success(t *testing.T) {
	client := &fakeClient{results: []fakeResult{okResult("Hello")}}
	g := newTestGateway(t, client)

	w := doRequest(g, http.MethodPost, "/v1/generate",
		`{"messages":[{"role":"user","content":"hi"}],"caller_id":"alice"}`, "")

	require.Equal(t, http.StatusOK, w.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Hello", resp.Text)
	assert.False(t, resp.Fallback)
	assert.NotEmpty(t, resp.RequestID)
}

func TestHandleGenerate_InvalidBody(t *testing.T) {
	g := newTestGateway(t, &fakeClient{results: []fakeResult{okResult("unused")}})

	w := doRequest(g, http.MethodPost, "/v1/generate", "{not json", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(g, http.MethodPost, "/v1/generate", `{"messages":[]}`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(g, http.MethodGet, "/v1/generate", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHandleGenerate_RateLimited(t *testing.T) {
	client := &fakeClient{results: []fakeResult{okResult("first")}}
	g := newTestGateway(t, client, func(cfg *config.Config) {
		cfg.RateLimit.CallerLimit = 1
	})

	body := `{"messages":[{"role":"user","content":"hi"}],"caller_id":"alice"}`
	w := doRequest(g, http.MethodPost, "/v1/generate", body, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(g, http.MethodPost, "/v1/generate", body, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestHandleGenerate_CallerIDFromHeader(t *testing.T) {
	client := &fakeClient{results: []fakeResult{okResult("ok")}}
	g := newTestGateway(t, client, func(cfg *config.Config) {
		cfg.RateLimit.CallerLimit = 1
	})

	body := `{"messages":[{"role":"user","content":"hi"}]}`
	r := httptest.NewRequest(http.MethodPost, "/v1/generate", strings.NewReader(body))
	r.Header.Set(HeaderCallerID, "alice")
	w := httptest.NewRecorder()
	g.routes().ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	// Same header, same budget.
	r = httptest.NewRequest(http.MethodPost, "/v1/generate", strings.NewReader(body))
	r.Header.Set(HeaderCallerID, "alice")
	w = httptest.NewRecorder()
	g.routes().ServeHTTP(w, r)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestHandleHealth(t *testing.T) {
	client := &fakeClient{results: []fakeResult{errResult(401, "authentication_error")}}
	g := newTestGateway(t, client)

	w := doRequest(g, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	// An authentication failure flips health to unavailable.
	_, err := g.Generate(context.Background(), userRequest("alice"))
	require.NoError(t, err)

	w = doRequest(g, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestLoopbackOnlyEndpoints(t *testing.T) {
	g := newTestGateway(t, &fakeClient{results: []fakeResult{okResult("ok")}})

	for _, path := range []string{"/status", "/stats", "/usage", "/costs"} {
		w := doRequest(g, http.MethodGet, path, "", "10.0.0.1:1234")
		assert.Equal(t, http.StatusForbidden, w.Code, path)

		w = doRequest(g, http.MethodGet, path, "", loopbackAddr)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestHandleStatus_Snapshot(t *testing.T) {
	client := &fakeClient{results: []fakeResult{okResult("ok")}}
	g := newTestGateway(t, client)

	_, err := g.Generate(context.Background(), userRequest("alice"))
	require.NoError(t, err)

	w := doRequest(g, http.MethodGet, "/status", "", loopbackAddr)
	require.Equal(t, http.StatusOK, w.Code)

	var snap StatusSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, Status("healthy"), snap.Status)
	assert.Equal(t, "closed", snap.Breaker.State)
	assert.Greater(t, snap.DailyCost, 0.0)
	assert.Nil(t, snap.LastError)
}

func TestHandleStats(t *testing.T) {
	client := &fakeClient{results: []fakeResult{okResult("ok")}}
	g := newTestGateway(t, client)

	_, err := g.Generate(context.Background(), userRequest("alice"))
	require.NoError(t, err)

	w := doRequest(g, http.MethodGet, "/stats", "", loopbackAddr)
	require.Equal(t, http.StatusOK, w.Code)

	var stats monitoring.StatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.Requests.Total)
	assert.Equal(t, int64(1), stats.Requests.Successful)
}

func TestHandleUsage(t *testing.T) {
	client := &fakeClient{results: []fakeResult{okResult("ok")}}
	g := newTestGateway(t, client)

	_, err := g.Generate(context.Background(), userRequest("alice"))
	require.NoError(t, err)

	w := doRequest(g, http.MethodGet, "/usage?caller_id=alice", "", loopbackAddr)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Global struct {
			Count int `json:"count"`
		} `json:"global"`
		Caller *struct {
			Count     int `json:"count"`
			Remaining int `json:"remaining"`
		} `json:"caller"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Global.Count)
	require.NotNil(t, resp.Caller)
	assert.Equal(t, 1, resp.Caller.Count)
}

func TestHandleRateLimitReset(t *testing.T) {
	client := &fakeClient{results: []fakeResult{okResult("ok")}}
	g := newTestGateway(t, client, func(cfg *config.Config) {
		cfg.RateLimit.CallerLimit = 1
	})

	_, err := g.Generate(context.Background(), userRequest("alice"))
	require.NoError(t, err)
	_, err = g.Generate(context.Background(), userRequest("alice"))
	require.Error(t, err)

	// GET is rejected, POST from outside loopback is rejected.
	w := doRequest(g, http.MethodGet, "/admin/ratelimit/reset?caller_id=alice", "", loopbackAddr)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	w = doRequest(g, http.MethodPost, "/admin/ratelimit/reset?caller_id=alice", "", "10.0.0.1:1234")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doRequest(g, http.MethodPost, "/admin/ratelimit/reset?caller_id=alice", "", loopbackAddr)
	require.Equal(t, http.StatusOK, w.Code)

	_, err = g.Generate(context.Background(), userRequest("alice"))
	assert.NoError(t, err)
}
