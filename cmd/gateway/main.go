// Resilience gateway entry point.
//
// Loads configuration, wires the provider client and the gateway, and runs
// the HTTP server until SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"

	"github.com/tutorloop/resilience-gateway/internal/config"
	"github.com/tutorloop/resilience-gateway/internal/gateway"
	"github.com/tutorloop/resilience-gateway/internal/journal"
	"github.com/tutorloop/resilience-gateway/internal/monitoring"
	"github.com/tutorloop/resilience-gateway/internal/provider"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", "", "path to yaml config file")
	flag.Parse()

	// A missing .env is fine; explicit env vars win either way.
	_ = godotenv.Load()

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	setupLogging(cfg.Monitoring.LogLevel)

	client, err := buildClient(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("provider client setup failed")
	}

	opts := []gateway.Option{}
	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Journal.Path).Msg("journal open failed")
		}
		defer func() { _ = j.Close() }()
		opts = append(opts, gateway.WithJournal(j))
	}
	if cfg.Monitoring.Telemetry.Enabled {
		tracker, err := monitoring.NewTracker(cfg.Monitoring.Telemetry)
		if err != nil {
			log.Fatal().Err(err).Msg("telemetry setup failed")
		}
		opts = append(opts, gateway.WithTelemetry(tracker))
	}

	gw := gateway.New(cfg, client, opts...)

	errCh := make(chan error, 1)
	go func() {
		errCh <- gw.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatal().Err(err).Msg("gateway server failed")
		}
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := gw.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("shutdown incomplete")
		}
	}
}

// setupLogging configures the zerolog global logger: pretty console output on
// a terminal, JSON otherwise.
func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if term.IsTerminal(int(os.Stdout.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})
	}
}

// buildClient constructs the Anthropic-protocol client, routing through AWS
// SigV4 signing when a Bedrock region is configured.
func buildClient(cfg *config.Config) (provider.Client, error) {
	opts := []provider.ClientOption{
		provider.WithTimeout(cfg.Provider.Timeout),
	}
	if cfg.Provider.BedrockRegion != "" {
		signer, err := provider.NewBedrockSigner(context.Background(), cfg.Provider.BedrockRegion)
		if err != nil {
			return nil, err
		}
		opts = append(opts, provider.WithSigner(signer))
	}
	return provider.NewAnthropicClient(cfg.Provider.BaseURL, cfg.Provider.APIKey, opts...), nil
}
