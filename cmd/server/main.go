// Command server runs the interpretation engine's HTTP API.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pgx-risk-engine/internal/api"
	"github.com/pgx-risk-engine/internal/config"
	"github.com/pgx-risk-engine/internal/setup"
)

func main() {
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}
	cfg := configManager.GetConfig()

	logger := setup.NewLogger(cfg.Logging)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := setup.Build(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to build application")
	}
	defer app.Close()

	server := api.NewServer(app.Dependencies())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.WithField("signal", sig.String()).Info("Shutdown signal received")
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("HTTP server failed")
	}
	logger.Info("Server stopped")
}
