package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		CallerLimit:  3,
		CallerWindow: time.Minute,
		GlobalLimit:  10,
		GlobalWindow: time.Minute,
	}
}

// newTestLimiter returns a limiter with a controllable clock and no sweep.
func newTestLimiter(cfg Config) (*Limiter, *time.Time) {
	l := New(cfg)
	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestLimiter_CallerLimitExactlyN(t *testing.T) {
	l, _ := newTestLimiter(testConfig())

	for i := 0; i < 3; i++ {
		d := l.CheckAndRecord("x")
		assert.True(t, d.Allowed, "call %d should be admitted", i+1)
	}

	d := l.CheckAndRecord("x")
	assert.False(t, d.Allowed, "call N+1 must be rejected")
	assert.Greater(t, d.RetryAfter, time.Duration(0))
}

func TestLimiter_SlidingWindowReadmits(t *testing.T) {
	l, now := newTestLimiter(testConfig())

	for i := 0; i < 3; i++ {
		require.True(t, l.CheckAndRecord("x").Allowed)
		*now = now.Add(10 * time.Second)
	}
	require.False(t, l.CheckAndRecord("x").Allowed)

	// The oldest entry was recorded 30s ago; once it ages past the window
	// the caller is admitted again. This is a sliding window: admission
	// returns as entries expire individually, not at a fixed boundary.
	*now = now.Add(31 * time.Second)
	assert.True(t, l.CheckAndRecord("x").Allowed)
}

func TestLimiter_RetryAfterMatchesOldestSurvivor(t *testing.T) {
	l, now := newTestLimiter(testConfig())

	require.True(t, l.CheckAndRecord("x").Allowed)
	*now = now.Add(20 * time.Second)
	require.True(t, l.CheckAndRecord("x").Allowed)
	require.True(t, l.CheckAndRecord("x").Allowed)

	d := l.CheckAndRecord("x")
	require.False(t, d.Allowed)
	// Oldest survivor is 20s old in a 60s window.
	assert.Equal(t, 40*time.Second, d.RetryAfter)
}

func TestLimiter_GlobalLimitIndependentOfCaller(t *testing.T) {
	cfg := testConfig()
	cfg.GlobalLimit = 4
	l, _ := newTestLimiter(cfg)

	// Four distinct callers each well under their own limit.
	for _, id := range []string{"a", "b", "c", "d"} {
		require.True(t, l.CheckAndRecord(id).Allowed)
	}

	// A fifth caller is rejected by the global policy alone.
	d := l.CheckAndRecord("e")
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
}

func TestLimiter_RejectionDoesNotConsumeGlobalSlot(t *testing.T) {
	cfg := testConfig()
	cfg.CallerLimit = 1
	cfg.GlobalLimit = 2
	l, _ := newTestLimiter(cfg)

	require.True(t, l.CheckAndRecord("x").Allowed)
	require.False(t, l.CheckAndRecord("x").Allowed, "caller limit hit")

	// The rejected call must not have consumed the remaining global slot.
	assert.True(t, l.CheckAndRecord("y").Allowed)
}

func TestLimiter_EmptyCallerSkipsCallerPolicy(t *testing.T) {
	cfg := testConfig()
	cfg.CallerLimit = 1
	cfg.GlobalLimit = 5
	l, _ := newTestLimiter(cfg)

	for i := 0; i < 5; i++ {
		assert.True(t, l.CheckAndRecord("").Allowed)
	}
	assert.False(t, l.CheckAndRecord("").Allowed, "global limit still applies")
}

func TestLimiter_Usage(t *testing.T) {
	l, _ := newTestLimiter(testConfig())

	l.CheckAndRecord("x")
	l.CheckAndRecord("x")

	u := l.Usage("x")
	assert.Equal(t, 2, u.Count)
	assert.Equal(t, 3, u.Limit)
	assert.Equal(t, 1, u.Remaining)
	assert.Equal(t, 60.0, u.WindowSeconds)

	g := l.UsageGlobal()
	assert.Equal(t, 2, g.Count)
	assert.Equal(t, 10, g.Limit)
	assert.Equal(t, 8, g.Remaining)
}

func TestLimiter_Reset(t *testing.T) {
	l, _ := newTestLimiter(testConfig())

	for i := 0; i < 3; i++ {
		l.CheckAndRecord("x")
	}
	require.False(t, l.CheckAndRecord("x").Allowed)

	l.Reset("x")
	assert.True(t, l.CheckAndRecord("x").Allowed)

	l.ResetAll()
	assert.Equal(t, 0, l.UsageGlobal().Count)
}

func TestLimiter_SweepRemovesIdleCallers(t *testing.T) {
	cfg := testConfig()
	cfg.CallerWindow = 10 * time.Millisecond
	cfg.SweepInterval = 5 * time.Millisecond
	l := New(cfg)
	defer l.Stop()

	l.CheckAndRecord("idle")
	require.Eventually(t, func() bool {
		l.mu.Lock()
		defer l.mu.Unlock()
		_, ok := l.callers["idle"]
		return !ok
	}, time.Second, 5*time.Millisecond, "idle caller entry should be swept")
}

func TestLimiter_ConcurrentAdmissionNeverOverAdmits(t *testing.T) {
	cfg := Config{
		CallerLimit:  50,
		CallerWindow: time.Minute,
		GlobalLimit:  50,
		GlobalWindow: time.Minute,
	}
	l := New(cfg)
	defer l.Stop()

	var admitted int64
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.CheckAndRecord("x").Allowed {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), admitted, "check-and-record must be atomic")
}

func TestConfig_Validate(t *testing.T) {
	cfg := testConfig()
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.CallerLimit = -1
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.CallerWindow = 0
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.GlobalWindow = 0
	assert.Error(t, bad.Validate())
}
