package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"transferdesk/internal/platform/config"
	"transferdesk/internal/platform/httpserver"
	"transferdesk/internal/platform/logger"
)

// main loads configuration, wires the workflow service onto the selected
// backend and serves until SIGINT/SIGTERM.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("transferdesk stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	app, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	if app.relay != nil {
		go func() {
			if err := app.relay.Run(ctx); err != nil {
				log.ErrorContext(ctx, "outbox relay stopped", "error", err)
			}
		}()
	}

	log.InfoContext(ctx, "starting transferdesk",
		"addr", cfg.Addr,
		"store_backend", cfg.StoreBackend,
		"audit_relay", app.relay != nil,
	)
	return httpserver.Run(ctx, httpserver.New(cfg.Addr, app.router), log)
}
