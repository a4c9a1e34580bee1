// Package journal persists an audit trail of completed generations to an
// embedded sqlite database.
//
// DESIGN: The journal is write-mostly observability. Nothing in the admission
// path (breaker, rate limiter, cost tracker) reads it back — resilience state
// is in-memory by design and starts fresh on every process start.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS generations (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id    TEXT NOT NULL,
	session_id    TEXT,
	caller_id     TEXT,
	model         TEXT,
	outcome       TEXT NOT NULL,
	error_kind    TEXT,
	attempts      INTEGER NOT NULL DEFAULT 0,
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	cost_usd      REAL NOT NULL DEFAULT 0,
	duration_ms   INTEGER NOT NULL DEFAULT 0,
	created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_generations_session ON generations(session_id);
CREATE INDEX IF NOT EXISTS idx_generations_created ON generations(created_at);
`

// Entry is one completed generation.
type Entry struct {
	RequestID    string
	SessionID    string
	CallerID     string
	Model        string
	Outcome      string // success, fallback, rate_limited
	ErrorKind    string
	Attempts     int
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	Duration     time.Duration
}

// Journal records completed generations to sqlite.
type Journal struct {
	db *sql.DB
}

// Open opens (creating if needed) the journal database at path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal db: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent inserts.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Record inserts one entry. Failures are logged, not propagated: the journal
// must never affect request handling.
func (j *Journal) Record(ctx context.Context, e Entry) {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO generations
		(request_id, session_id, caller_id, model, outcome, error_kind,
		 attempts, input_tokens, output_tokens, cost_usd, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RequestID, e.SessionID, e.CallerID, e.Model, e.Outcome, e.ErrorKind,
		e.Attempts, e.InputTokens, e.OutputTokens, e.CostUSD, e.Duration.Milliseconds(),
	)
	if err != nil {
		log.Debug().Err(err).Str("request_id", e.RequestID).Msg("journal insert failed")
	}
}

// RecentCount returns how many generations completed in the given window.
func (j *Journal) RecentCount(ctx context.Context, window time.Duration) (int64, error) {
	var n int64
	err := j.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM generations WHERE created_at >= ?`,
		time.Now().UTC().Add(-window),
	).Scan(&n)
	return n, err
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
