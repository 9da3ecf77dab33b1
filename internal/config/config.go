package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/viper"

	"github.com/pgx-risk-engine/internal/domain"
)

// Manager loads and validates the engine configuration using Viper.
type Manager struct {
	config *domain.Config
}

// NewManager creates a new configuration manager
func NewManager() (*Manager, error) {
	m := &Manager{}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	// Set configuration file name and paths
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/pgx-risk-engine/")

	// Set environment variable prefix and enable automatic env binding
	viper.SetEnvPrefix("PGX")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set default values
	m.setDefaults()

	// Read configuration file (optional - will use defaults and env vars if not found)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	// Unmarshal configuration into struct
	config := &domain.Config{}
	if err := viper.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = config
	return nil
}

// setDefaults sets default configuration values
func (m *Manager) setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")

	// Knowledge base defaults: the embedded dataset unless a directory
	// or SQLite snapshot is pointed at.
	viper.SetDefault("kb.source", "json")
	viper.SetDefault("kb.path", "")
	viper.SetDefault("kb.sqlite_path", "")
	viper.SetDefault("kb.version", "")

	// Audit store defaults
	viper.SetDefault("store.driver", "sqlite")
	viper.SetDefault("store.sqlite_path", "pgx_runs.db")
	viper.SetDefault("store.migrations_path", "file://migrations")

	// Postgres defaults (audit store driver "postgres")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.database", "pgx_risk_engine")
	viper.SetDefault("database.username", "postgres")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")

	// Cache defaults: disabled until enabled; memory backend bounded.
	viper.SetDefault("cache.enabled", false)
	viper.SetDefault("cache.backend", "memory")
	viper.SetDefault("cache.redis_url", "redis://localhost:6379")
	viper.SetDefault("cache.default_ttl", "1h")
	viper.SetDefault("cache.max_entries", 2048)

	// Batch defaults
	viper.SetDefault("batch.workers", runtime.GOMAXPROCS(0))
	viper.SetDefault("batch.max_payload", 500)

	// Rate limit defaults
	viper.SetDefault("ratelimit.enabled", true)
	viper.SetDefault("ratelimit.requests_per_second", 25.0)
	viper.SetDefault("ratelimit.burst", 50)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")

	// MCP defaults
	viper.SetDefault("mcp.server_name", "pgx-risk-engine")
	viper.SetDefault("mcp.server_version", "1.0.0")
	viper.SetDefault("mcp.request_timeout", "30s")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetStoreConfig returns audit store configuration
func (m *Manager) GetStoreConfig() *domain.StoreConfig {
	return &m.config.Store
}

// GetKBConfig returns knowledge base configuration
func (m *Manager) GetKBConfig() *domain.KBConfig {
	return &m.config.KB
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	// Validate server configuration
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	// Validate knowledge base configuration
	switch config.KB.Source {
	case "json", "sqlite":
	default:
		return fmt.Errorf("invalid kb source: %s", config.KB.Source)
	}
	if config.KB.Source == "sqlite" && config.KB.SQLitePath == "" {
		return fmt.Errorf("kb sqlite_path is required for the sqlite source")
	}

	// Validate audit store configuration
	switch config.Store.Driver {
	case "sqlite", "postgres", "none":
	default:
		return fmt.Errorf("invalid store driver: %s", config.Store.Driver)
	}
	if config.Store.Driver == "sqlite" && config.Store.SQLitePath == "" {
		return fmt.Errorf("store sqlite_path is required for the sqlite driver")
	}
	if config.Store.Driver == "postgres" {
		if config.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if config.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if config.Database.Username == "" {
			return fmt.Errorf("database username is required")
		}
	}

	// Validate cache configuration
	if config.Cache.Enabled {
		switch config.Cache.Backend {
		case "memory":
			if config.Cache.MaxEntries <= 0 {
				return fmt.Errorf("cache max_entries must be positive")
			}
		case "redis":
			if config.Cache.RedisURL == "" {
				return fmt.Errorf("redis URL is required for the redis cache backend")
			}
		default:
			return fmt.Errorf("invalid cache backend: %s", config.Cache.Backend)
		}
	}

	// Validate batch configuration
	if config.Batch.MaxPayload <= 0 {
		return fmt.Errorf("batch max_payload must be positive")
	}

	// Validate rate limit configuration
	if config.RateLimit.Enabled && config.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("ratelimit requests_per_second must be positive")
	}

	// Validate logging configuration
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// DatabaseURL renders the postgres connection URL consumed by the
// migration runner, the audit store, and the health pool.
func DatabaseURL(db domain.DatabaseConfig) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		db.Username, db.Password, db.Host, db.Port, db.Database, db.SSLMode)
}
