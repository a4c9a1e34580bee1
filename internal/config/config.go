package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tutorloop/resilience-gateway/internal/breaker"
	"github.com/tutorloop/resilience-gateway/internal/monitoring"
	"github.com/tutorloop/resilience-gateway/internal/ratelimit"
)

// Config is the gateway's full configuration.
type Config struct {
	Environment string           `yaml:"environment"` // "production" or anything else; affects default model only
	Server      ServerConfig     `yaml:"server"`
	Breaker     breaker.Config   `yaml:"breaker"`
	RateLimit   ratelimit.Config `yaml:"rate_limit"`
	Cost        CostConfig       `yaml:"cost"`
	Retry       RetryConfig      `yaml:"retry"`
	Provider    ProviderConfig   `yaml:"provider"`
	Journal     JournalConfig    `yaml:"journal"`
	Monitoring  MonitoringConfig `yaml:"monitoring"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// RetryConfig holds retry/backoff settings for retryable provider failures.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"` // Total attempts, including the first
	BaseDelay   time.Duration `yaml:"base_delay"`
	Multiplier  float64       `yaml:"multiplier"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	Jitter      bool          `yaml:"jitter"`
}

// Validate checks retry configuration.
func (c *RetryConfig) Validate() error {
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be > 0, got %d", c.MaxAttempts)
	}
	if c.BaseDelay <= 0 {
		return fmt.Errorf("retry.base_delay must be > 0, got %s", c.BaseDelay)
	}
	if c.Multiplier < 1 {
		return fmt.Errorf("retry.multiplier must be >= 1, got %f", c.Multiplier)
	}
	if c.MaxDelay < c.BaseDelay {
		return fmt.Errorf("retry.max_delay must be >= base_delay")
	}
	return nil
}

// ProviderConfig holds provider connection settings.
type ProviderConfig struct {
	Model         string        `yaml:"model"` // Empty: chosen from the environment tag
	APIKey        string        `yaml:"api_key"`
	BaseURL       string        `yaml:"base_url"`
	Timeout       time.Duration `yaml:"timeout"`
	BedrockRegion string        `yaml:"bedrock_region"` // Non-empty routes via SigV4 signing
}

// JournalConfig holds the sqlite audit journal settings.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// MonitoringConfig holds logging and telemetry settings.
type MonitoringConfig struct {
	LogLevel  string                     `yaml:"log_level"`
	Telemetry monitoring.TelemetryConfig `yaml:"telemetry"`
}

// Default returns a config populated with the defaults from defaults.go.
func Default() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port:         DefaultServerPort,
			ReadTimeout:  DefaultServerReadTimeout,
			WriteTimeout: DefaultServerWriteTimeout,
		},
		Breaker: breaker.Config{
			FailureThreshold: DefaultFailureThreshold,
			RecoveryTimeout:  DefaultRecoveryTimeout,
			HalfOpenTrials:   DefaultHalfOpenTrials,
		},
		RateLimit: ratelimit.Config{
			CallerLimit:   DefaultCallerLimit,
			CallerWindow:  DefaultCallerWindow,
			GlobalLimit:   DefaultGlobalLimit,
			GlobalWindow:  DefaultGlobalWindow,
			SweepInterval: DefaultSweepInterval,
		},
		Cost: CostConfig{
			WarningThreshold:  DefaultWarningThreshold,
			CriticalThreshold: DefaultCriticalThreshold,
			DailyLimit:        DefaultDailyLimit,
			SessionTTL:        DefaultCostSessionTTL,
		},
		Retry: RetryConfig{
			MaxAttempts: DefaultRetryAttempts,
			BaseDelay:   DefaultRetryBaseDelay,
			Multiplier:  DefaultRetryMultiplier,
			MaxDelay:    DefaultRetryMaxDelay,
			Jitter:      true,
		},
		Provider: ProviderConfig{
			Timeout: DefaultProviderTimeout,
		},
		Monitoring: MonitoringConfig{
			LogLevel: "info",
		},
	}
}

// LoadFromBytes parses yaml over the defaults and applies env overrides.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg := Default()
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}
	cfg.applyEnv()
	if cfg.Provider.Model == "" {
		cfg.Provider.Model = defaultModelFor(cfg.Environment)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile reads a yaml config file. A missing path yields defaults.
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromBytes(nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return LoadFromBytes(nil)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return LoadFromBytes(data)
}

// Validate checks all config sections.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	if err := c.Breaker.Validate(); err != nil {
		return err
	}
	if err := c.RateLimit.Validate(); err != nil {
		return err
	}
	if err := c.Cost.Validate(); err != nil {
		return err
	}
	if err := c.Retry.Validate(); err != nil {
		return err
	}
	return nil
}

// applyEnv overlays environment variables on the parsed config.
func (c *Config) applyEnv() {
	if v := os.Getenv("GATEWAY_ENV"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" && c.Provider.APIKey == "" {
		c.Provider.APIKey = v
	}
	if v := os.Getenv("ANTHROPIC_BASE_URL"); v != "" && c.Provider.BaseURL == "" {
		c.Provider.BaseURL = v
	}
	if v := os.Getenv("GATEWAY_MODEL"); v != "" {
		c.Provider.Model = v
	}
	if v := os.Getenv("GATEWAY_DAILY_COST_LIMIT"); v != "" {
		if limit, err := strconv.ParseFloat(v, 64); err == nil {
			c.Cost.DailyLimit = limit
		}
	}
	if v := os.Getenv("GATEWAY_LOG_LEVEL"); v != "" {
		c.Monitoring.LogLevel = v
	}
}

// defaultModelFor picks the model from the environment tag.
func defaultModelFor(environment string) string {
	if environment == "production" {
		return DefaultProductionModel
	}
	return DefaultDevelopmentModel
}
