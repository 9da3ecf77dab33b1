// Command mcp-server exposes the interpretation engine over the Model
// Context Protocol on stdio.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pgx-risk-engine/internal/config"
	"github.com/pgx-risk-engine/internal/mcp"
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

	// stdout carries the protocol; logging goes to stderr.
	logCfg := cfg.Logging
	if logCfg.Output == "" || logCfg.Output == "stdout" {
		logCfg.Output = "stderr"
	}
	logger := setup.NewLogger(logCfg)

	provider, err := setup.BuildKB(cfg.KB, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load knowledge base")
	}

	server := mcp.NewServer(cfg, provider, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received")
		cancel()
	}()

	if err := server.Run(ctx); err != nil && ctx.Err() == nil {
		logger.WithError(err).Fatal("MCP server failed")
	}
	logger.Info("MCP server stopped")
}
