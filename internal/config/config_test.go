package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Validates(t *testing.T) {
	cfg := Default()
	cfg.Provider.Model = "claude-haiku-4-5"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, DefaultFailureThreshold, cfg.Breaker.FailureThreshold)
	assert.True(t, cfg.Retry.Jitter)
}

func TestLoadFromBytes_OverridesDefaults(t *testing.T) {
	data := []byte(`
server:
  port: 9000
breaker:
  failure_threshold: 2
  recovery_timeout: 10s
  half_open_trials: 1
cost:
  daily_limit: 3.5
retry:
  max_attempts: 5
  base_delay: 100ms
  multiplier: 3
  max_delay: 2s
`)
	cfg, err := LoadFromBytes(data)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 2, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 10*time.Second, cfg.Breaker.RecoveryTimeout)
	assert.Equal(t, 3.5, cfg.Cost.DailyLimit)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)

	// Untouched sections keep their defaults.
	assert.Equal(t, DefaultCallerLimit, cfg.RateLimit.CallerLimit)
}

func TestLoadFromBytes_ModelFromEnvironmentTag(t *testing.T) {
	cfg, err := LoadFromBytes([]byte("environment: production"))
	require.NoError(t, err)
	assert.Equal(t, DefaultProductionModel, cfg.Provider.Model)

	cfg, err = LoadFromBytes([]byte("environment: staging"))
	require.NoError(t, err)
	assert.Equal(t, DefaultDevelopmentModel, cfg.Provider.Model)
}

func TestLoadFromBytes_ExplicitModelWins(t *testing.T) {
	cfg, err := LoadFromBytes([]byte("provider:\n  model: claude-opus-4-6\nenvironment: production"))
	require.NoError(t, err)
	assert.Equal(t, "claude-opus-4-6", cfg.Provider.Model)
}

func TestLoadFromBytes_EnvOverrides(t *testing.T) {
	t.Setenv("GATEWAY_PORT", "7777")
	t.Setenv("GATEWAY_DAILY_COST_LIMIT", "1.25")
	t.Setenv("GATEWAY_MODEL", "claude-haiku-4-5")

	cfg, err := LoadFromBytes(nil)
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, 1.25, cfg.Cost.DailyLimit)
	assert.Equal(t, "claude-haiku-4-5", cfg.Provider.Model)
}

func TestLoadFromBytes_InvalidConfigRejected(t *testing.T) {
	_, err := LoadFromBytes([]byte("breaker:\n  failure_threshold: 0"))
	assert.Error(t, err)

	_, err = LoadFromBytes([]byte("server:\n  port: -1"))
	assert.Error(t, err)

	_, err = LoadFromBytes([]byte("retry:\n  max_attempts: 0"))
	assert.Error(t, err)
}

func TestLoadFromFile_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := LoadFromFile("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
}
