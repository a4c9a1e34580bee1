package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// DefaultAnthropicBaseURL is the production Anthropic API base URL.
const DefaultAnthropicBaseURL = "https://api.anthropic.com"

const (
	anthropicVersion = "2023-06-01"
	messagesPath     = "/v1/messages"

	// maxErrorBodyLogLen limits error response bodies in logs.
	maxErrorBodyLogLen = 500
)

// AnthropicClient calls the Anthropic Messages API.
type AnthropicClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	signer     RequestSigner // optional, for Bedrock-hosted endpoints
}

// ClientOption configures the AnthropicClient.
type ClientOption func(*AnthropicClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *AnthropicClient) {
		client.httpClient = c
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(client *AnthropicClient) {
		client.httpClient.Timeout = timeout
	}
}

// WithSigner routes requests through an AWS SigV4 signer instead of API-key
// headers (Bedrock-hosted models).
func WithSigner(s RequestSigner) ClientOption {
	return func(client *AnthropicClient) {
		client.signer = s
	}
}

// NewAnthropicClient creates a client for the Anthropic Messages API.
// It reads ANTHROPIC_BASE_URL and ANTHROPIC_API_KEY from environment if not provided.
func NewAnthropicClient(baseURL, apiKey string, opts ...ClientOption) *AnthropicClient {
	if baseURL == "" {
		baseURL = os.Getenv("ANTHROPIC_BASE_URL")
	}
	if baseURL == "" {
		baseURL = DefaultAnthropicBaseURL
	}
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}

	c := &AnthropicClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Send performs a blocking generation call.
func (c *AnthropicClient) Send(ctx context.Context, req Request) (*Response, error) {
	body, err := c.buildBody(req)
	if err != nil {
		return nil, &Error{Category: "invalid_request_error", Message: err.Error(), Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+messagesPath, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Cause: err, Message: err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	if c.signer != nil {
		if err := c.signer.SignRequest(ctx, httpReq, body); err != nil {
			return nil, &Error{Cause: err, Message: "request signing failed"}
		}
	} else {
		httpReq.Header.Set("x-api-key", c.apiKey)
		httpReq.Header.Set("anthropic-version", anthropicVersion)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &Error{Cause: err, Message: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Cause: err, Message: "failed to read response body"}
	}

	if resp.StatusCode >= 400 {
		perr := errorFromResponse(resp, respBody)
		log.Error().
			Int("status", resp.StatusCode).
			Str("category", perr.Category).
			Str("response", string(respBody[:min(maxErrorBodyLogLen, len(respBody))])).
			Msg("provider error response")
		return nil, perr
	}

	return parseResponse(respBody)
}

// SendAsync performs the call in the background.
func (c *AnthropicClient) SendAsync(ctx context.Context, req Request) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		resp, err := c.Send(ctx, req)
		ch <- Result{Response: resp, Err: err}
	}()
	return ch
}

// buildBody marshals the request for the Messages API, stripping any
// provider prefix from the model name ("anthropic/claude-x" -> "claude-x").
func (c *AnthropicClient) buildBody(req Request) ([]byte, error) {
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("request has no messages")
	}

	payload := struct {
		Model       string    `json:"model"`
		MaxTokens   int       `json:"max_tokens"`
		Messages    []Message `json:"messages"`
		System      string    `json:"system,omitempty"`
		Temperature float64   `json:"temperature,omitempty"`
	}{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Messages:    req.Messages,
		System:      req.System,
		Temperature: req.Temperature,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	for _, prefix := range []string{"anthropic/", "openai/", "google/", "meta/"} {
		if strings.HasPrefix(req.Model, prefix) {
			return sjson.SetBytes(body, "model", strings.TrimPrefix(req.Model, prefix))
		}
	}
	return body, nil
}

// parseResponse extracts text and usage from a Messages API response.
func parseResponse(body []byte) (*Response, error) {
	var text strings.Builder
	gjson.GetBytes(body, "content").ForEach(func(_, block gjson.Result) bool {
		if block.Get("type").String() == "text" {
			text.WriteString(block.Get("text").String())
		}
		return true
	})

	return &Response{
		Text:  text.String(),
		Model: gjson.GetBytes(body, "model").String(),
		Usage: Usage{
			InputTokens:  int(gjson.GetBytes(body, "usage.input_tokens").Int()),
			OutputTokens: int(gjson.GetBytes(body, "usage.output_tokens").Int()),
		},
	}, nil
}

// errorFromResponse builds a structured Error from an upstream error response.
func errorFromResponse(resp *http.Response, body []byte) *Error {
	perr := &Error{
		StatusCode: resp.StatusCode,
		Category:   gjson.GetBytes(body, "error.type").String(),
		Message:    gjson.GetBytes(body, "error.message").String(),
		Raw:        body,
	}
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
			perr.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return perr
}
