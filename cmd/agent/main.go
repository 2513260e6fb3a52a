package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tjfontaine/chat-webhook-relay/internal/agent"
	"github.com/tjfontaine/chat-webhook-relay/internal/completion"
	"github.com/tjfontaine/chat-webhook-relay/internal/config"
	"github.com/tjfontaine/chat-webhook-relay/internal/logstore"
	"github.com/tjfontaine/chat-webhook-relay/internal/server"
	"github.com/tjfontaine/chat-webhook-relay/internal/telemetry"
)

const serviceName = "processing-agent"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg, err := config.Load(configPath())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := telemetry.NewLogger(os.Stdout, cfg.Log.Level)
	slog.SetDefault(logger)

	if err := cfg.ValidateAgent(); err != nil {
		logger.Error("invalid agent configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	shutdown, err := telemetry.InitTracer(serviceName, cfg.Telemetry.Enabled, os.Stdout, logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	provider, err := completion.New(cfg.Completion)
	if err != nil {
		logger.Error("create completion provider", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var opts []agent.Option
	if provider != nil {
		budget, err := completion.NewBudget(cfg.Completion.MaxContextTokens)
		if err != nil {
			logger.Error("create token budget", slog.String("error", err.Error()))
			os.Exit(1)
		}
		opts = append(opts, agent.WithBudget(budget))
	}

	store := logstore.New(cfg.Agent.LogDir, logstore.WithLogger(logger))
	a := agent.New(store, provider, logger, agent.Config{
		TailLines:       cfg.Agent.TailLines,
		HealthTailLines: cfg.Agent.HealthTailLines,
		SampleLines:     cfg.Agent.SampleLines,
		ProviderTimeout: cfg.Completion.Timeout,
		Services: map[string]bool{
			"completion": provider != nil,
			"telemetry":  cfg.Telemetry.Enabled,
		},
	}, opts...)

	srv := server.New(cfg.Agent.Port, logger, server.Options{
		Name:           serviceName,
		RequestTimeout: cfg.Server.RequestTimeout,
	})
	a.Register(srv.Router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	providerName := "fallback"
	if provider != nil {
		providerName = provider.Name()
	}
	ctx := context.Background()
	store.Record(ctx, logstore.TagServerStart,
		fmt.Sprintf("port=%d provider=%s log_dir=%s", cfg.Agent.Port, providerName, cfg.Agent.LogDir))
	logger.Info("agent started",
		slog.Int("port", cfg.Agent.Port),
		slog.String("provider", providerName),
		slog.String("log_dir", cfg.Agent.LogDir),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	case sig := <-sigChan:
		store.Record(ctx, logstore.TagServerShutdown, "signal="+sig.String())
		logger.Info("shutting down", slog.String("signal", sig.String()))
		if err := srv.Close(); err != nil {
			logger.Error("close server", slog.String("error", err.Error()))
		}
	}
}

func configPath() string {
	if p := os.Getenv("HOOKRELAY_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}
