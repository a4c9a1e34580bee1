// Package monitoring - telemetry.go records events to JSONL files.
//
// DESIGN: Tracker writes structured events as JSONL (one JSON object per
// line), appended immediately after each event for real-time tailing.
package monitoring

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// TelemetryConfig controls JSONL event recording.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	LogPath     string `yaml:"log_path"`
	LogToStdout bool   `yaml:"log_to_stdout"`
}

// RequestEvent is one generation request through the gateway.
type RequestEvent struct {
	Timestamp    time.Time     `json:"timestamp"`
	RequestID    string        `json:"request_id"`
	SessionID    string        `json:"session_id,omitempty"`
	CallerID     string        `json:"caller_id,omitempty"`
	Model        string        `json:"model,omitempty"`
	Outcome      string        `json:"outcome"` // success, fallback, rate_limited
	ErrorKind    string        `json:"error_kind,omitempty"`
	Attempts     int           `json:"attempts,omitempty"`
	InputTokens  int           `json:"input_tokens,omitempty"`
	OutputTokens int           `json:"output_tokens,omitempty"`
	CostUSD      float64       `json:"cost_usd,omitempty"`
	Duration     time.Duration `json:"duration_ns,omitempty"`
}

// AlertEvent records a cost threshold crossing or breaker transition.
type AlertEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Alert     string    `json:"alert"` // cost_warning, cost_critical, cost_limit, breaker_open
	DailyCost float64   `json:"daily_cost,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// Tracker handles telemetry event recording to file.
type Tracker struct {
	config  TelemetryConfig
	logPath string
	mu      sync.Mutex
}

// NewTracker creates a telemetry tracker, ensuring the log directory exists.
func NewTracker(cfg TelemetryConfig) (*Tracker, error) {
	t := &Tracker{config: cfg}

	if !cfg.Enabled || cfg.LogPath == "" {
		return t, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0750); err != nil {
		return nil, err
	}
	t.logPath = cfg.LogPath
	if _, err := os.Stat(cfg.LogPath); os.IsNotExist(err) {
		if f, err := os.Create(cfg.LogPath); err == nil {
			_ = f.Close()
		}
	}

	return t, nil
}

// RecordRequest records a request event.
func (t *Tracker) RecordRequest(event *RequestEvent) {
	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.config.LogToStdout {
		log.Info().
			Str("request_id", event.RequestID).
			Str("outcome", event.Outcome).
			Str("error_kind", event.ErrorKind).
			Int("attempts", event.Attempts).
			Msg("request")
	}

	if t.logPath != "" {
		if err := appendJSONL(t.logPath, event); err != nil {
			log.Debug().Err(err).Msg("failed to append request event")
		}
	}
}

// RecordAlert records an alert event.
func (t *Tracker) RecordAlert(event *AlertEvent) {
	if !t.config.Enabled || t.logPath == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := appendJSONL(t.logPath, event); err != nil {
		log.Debug().Err(err).Msg("failed to append alert event")
	}
}

// appendJSONL appends a single JSON object as a line to the file.
func appendJSONL(path string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	_, err = f.Write(data)
	return err
}
