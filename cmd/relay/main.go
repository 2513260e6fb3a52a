package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tjfontaine/chat-webhook-relay/internal/config"
	"github.com/tjfontaine/chat-webhook-relay/internal/relay"
	"github.com/tjfontaine/chat-webhook-relay/internal/server"
	"github.com/tjfontaine/chat-webhook-relay/internal/signature"
	"github.com/tjfontaine/chat-webhook-relay/internal/telemetry"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg, err := config.Load(configPath())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := telemetry.NewLogger(os.Stdout, cfg.Log.Level)
	slog.SetDefault(logger)

	if err := cfg.ValidateRelay(); err != nil {
		logger.Error("invalid relay configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	shutdown, err := telemetry.InitTracer(cfg.Relay.ServiceName, cfg.Telemetry.Enabled, os.Stdout, logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	agent := relay.NewAgentClient(cfg.Relay.AgentURL, relay.WithAgentTimeout(cfg.Relay.AgentTimeout))
	handler := relay.NewHandler(cfg.Relay.ServiceName, signature.New(cfg.Relay.SigningSecret), agent, logger)

	srv := server.New(cfg.Relay.Port, logger, server.Options{
		Name:           cfg.Relay.ServiceName,
		RequestTimeout: cfg.Server.RequestTimeout,
		PanicBody:      relay.PanicReply,
	})
	handler.Register(srv.Router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	logger.Info("relay started",
		slog.Int("port", cfg.Relay.Port),
		slog.String("agent_url", cfg.Relay.AgentURL),
		slog.Duration("agent_timeout", cfg.Relay.AgentTimeout),
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
		logger.Info("shutting down", slog.String("event", "SERVER_SHUTDOWN"), slog.String("signal", sig.String()))
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
