// Package config provides configuration management for the engine.
// This file contains the lightweight configuration for standalone
// operation over stdio, where no config file is expected.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// LiteConfig is a simplified configuration for standalone operation.
// It requires no external databases and uses sensible defaults.
type LiteConfig struct {
	// Data storage
	DataDir string // Base directory for data files

	// Knowledge base
	KBDir        string // Optional: directory of knowledge base JSON documents
	KBSQLitePath string // Optional: knowledge base SQLite snapshot

	// Cache settings
	CacheMaxItems int           // Maximum items in memory cache
	CacheTTL      time.Duration // Default cache TTL

	// Logging
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: json, text
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".pgx-risk-engine")

	return &LiteConfig{
		DataDir:       dataDir,
		CacheMaxItems: 1000,
		CacheTTL:      time.Hour,
		LogLevel:      "info",
		LogFormat:     "json",
	}
}

// LoadLiteConfig loads configuration from environment variables.
// Falls back to defaults if not set.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	// Data directory
	if v := os.Getenv("PGX_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// Knowledge base overrides; the embedded dataset is used when unset.
	cfg.KBDir = os.Getenv("PGX_KB_DIR")
	cfg.KBSQLitePath = os.Getenv("PGX_KB_SQLITE")

	// Cache settings
	if v := os.Getenv("PGX_CACHE_MAX_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheMaxItems = n
		}
	}
	if v := os.Getenv("PGX_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CacheTTL = d
		}
	}

	// Logging
	if v := os.Getenv("PGX_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PGX_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// RunDBPath returns the path to the batch run audit SQLite database.
func (c *LiteConfig) RunDBPath() string {
	return filepath.Join(c.DataDir, "runs.db")
}

// ExportDir returns the directory for report exports.
func (c *LiteConfig) ExportDir() string {
	return filepath.Join(c.DataDir, "exports")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *LiteConfig) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(c.ExportDir(), 0755)
}
