// Package main runs Bifrost as a standalone on-device decisioning sidecar.
//
// It acts as the composition root: it loads the configuration, initializes
// the engine (which keeps the artifact warm by polling), serves the
// observability endpoints and shuts everything down on SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rafaeljc/bifrost/internal/config"
	"github.com/rafaeljc/bifrost/internal/engine"
	"github.com/rafaeljc/bifrost/internal/events"
	"github.com/rafaeljc/bifrost/internal/logger"
	"github.com/rafaeljc/bifrost/internal/notification"
	"github.com/rafaeljc/bifrost/internal/observability"
)

// main is the application entrypoint.
func main() {
	if err := run(); err != nil {
		log.Printf("Fatal error: %v", err)
		os.Exit(1)
	}
}

// run executes the service lifecycle.
func run() error {
	// -------------------------------------------------------------------------
	// 1. Configuration
	// -------------------------------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	appLogger := logger.New(&cfg.App)
	slog.SetDefault(appLogger)
	cfg.LogConfig(appLogger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// -------------------------------------------------------------------------
	// 2. Engine
	// -------------------------------------------------------------------------
	opts, err := engine.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}
	opts.Logger = appLogger
	opts.EventHandler = logEvent(logger.Component(appLogger, "events"))
	opts.SendNotification = logNotifications(logger.Component(appLogger, "notifications"))

	eng, err := engine.Initialize(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to initialize decisioning engine: %w", err)
	}
	defer eng.Close()

	// -------------------------------------------------------------------------
	// 3. Observability
	// -------------------------------------------------------------------------
	var obsServer *observability.Server
	if cfg.Observability.Enabled {
		obsServer = observability.NewServer(appLogger, &cfg.Observability, eng, eng)
		obsServer.Start()
	}

	appLogger.Info("bifrost is running", slog.String("client", cfg.Decisioning.Client))

	// -------------------------------------------------------------------------
	// 4. Graceful Shutdown
	// -------------------------------------------------------------------------
	<-ctx.Done()
	appLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if obsServer != nil {
		if err := obsServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("observability server shutdown failed", slog.String("error", err.Error()))
		}
	}

	appLogger.Info("service exited successfully")
	return nil
}

// logEvent reports engine lifecycle events.
func logEvent(l *slog.Logger) func(events.Event) {
	return func(ev events.Event) {
		switch data := ev.Data.(type) {
		case events.ArtifactDownloadError:
			l.Warn("artifact download failed",
				slog.String("location", data.Location),
				slog.String("error", data.Err.Error()),
			)
		case events.ArtifactDownloaded:
			l.Debug("artifact downloaded",
				slog.String("location", data.Location),
				slog.Int("bytes", len(data.Payload)),
			)
		default:
			l.Debug("engine event", slog.String("type", string(ev.Type)))
		}
	}
}

// logNotifications is the sidecar's notification sink. The delivery API
// client belongs to the host application, so batches are only logged here.
func logNotifications(l *slog.Logger) notification.Sender {
	return func(ctx context.Context, p notification.Payload) error {
		telemetry := 0
		if p.Request.Telemetry != nil {
			telemetry = len(p.Request.Telemetry.Entries)
		}
		l.DebugContext(ctx, "notification batch ready",
			slog.String("request_id", p.Request.RequestID),
			slog.Int("notifications", len(p.Request.Notifications)),
			slog.Int("telemetry_entries", telemetry),
		)
		return nil
	}
}
