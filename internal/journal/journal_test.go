package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournal_RecordAndCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = j.Close() }()

	ctx := context.Background()
	j.Record(ctx, Entry{
		RequestID:    "req-1",
		SessionID:    "s1",
		Model:        "claude-sonnet-4-5",
		Outcome:      "success",
		Attempts:     1,
		InputTokens:  100,
		OutputTokens: 50,
		CostUSD:      0.001,
		Duration:     120 * time.Millisecond,
	})
	j.Record(ctx, Entry{
		RequestID: "req-2",
		Outcome:   "fallback",
		ErrorKind: "server_error",
		Attempts:  1,
	})

	n, err := j.RecentCount(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestJournal_RecordNeverPanicsAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Close())

	// Insert failures are swallowed; request handling must not be affected.
	j.Record(context.Background(), Entry{RequestID: "req-x", Outcome: "success"})
}
