package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tjfontaine/convolens/internal/app"
	"github.com/tjfontaine/convolens/internal/config"
	"github.com/tjfontaine/convolens/internal/server"
	"github.com/tjfontaine/convolens/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	// Load .env file if it exists
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.Telemetry.LogLevel),
	}))
	slog.SetDefault(logger)

	shutdownTracer, err := telemetry.InitTracer(telemetry.Config{Enabled: cfg.Telemetry.Tracing}, logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	a, err := app.New(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("failed to close storage", slog.String("error", err.Error()))
		}
	}()

	if cfg.Provider.APIKey != "" && !cfg.Provider.ShareAPIKey {
		logger.Info("provider.api_key is not offered to HTTP callers; set provider.share_api_key to allow it")
	}

	sessions := a.Sessions()
	handlers := server.NewHandlers(server.HandlerConfig{
		Gateway:      a.Gateway,
		Registry:     a.Registry,
		Flagger:      a.Flagger,
		Scorer:       a.Scorer,
		Summarizer:   a.Summarizer,
		Sessions:     sessions,
		Interactions: a.Interactions,
		Defaults: server.Defaults{
			APIKey:  cfg.Provider.SharedAPIKey(),
			BaseURL: cfg.Provider.BaseURL,
			Model:   cfg.Provider.Model,
		},
		ContextWindow:  cfg.Analysis.ContextWindow,
		Batch:          a.BatchOptions(),
		RequestTimeout: cfg.Server.RequestTimeout,
		Logger:         logger,
	})

	srv := server.New(cfg.Server.Port, logger, server.Options{
		RateLimit: cfg.Server.RateLimit,
		RateBurst: cfg.Server.RateBurst,
	})
	handlers.Mount(srv.Router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Server.SessionIdleTTL > 0 {
		go sweepSessions(ctx, cfg.Server.SessionIdleTTL, sessions.Sweep)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		return
	case <-ctx.Done():
	}

	logger.Info("Shutdown signal received, stopping server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Server shutdown complete")
}

func sweepSessions(ctx context.Context, ttl time.Duration, sweep func() int) {
	interval := ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
