package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	KB        KBConfig        `mapstructure:"kb"`
	Store     StoreConfig     `mapstructure:"store"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Batch     BatchConfig     `mapstructure:"batch"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	MCP       MCPConfig       `mapstructure:"mcp"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"` // "debug", "release", "test"
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// KBConfig selects the knowledge base source and location.
type KBConfig struct {
	Source     string `mapstructure:"source"` // "json", "sqlite"
	Path       string `mapstructure:"path"`   // directory of JSON documents
	SQLitePath string `mapstructure:"sqlite_path"`
	Version    string `mapstructure:"version"`
}

// StoreConfig selects the batch run audit store backend.
type StoreConfig struct {
	Driver     string `mapstructure:"driver"` // "sqlite", "postgres", "none"
	SQLitePath string `mapstructure:"sqlite_path"`
	// MigrationsPath holds the golang-migrate source directory for the
	// postgres backend.
	MigrationsPath string `mapstructure:"migrations_path"`
}

// DatabaseConfig represents the postgres connection configuration used
// when the audit store driver is "postgres".
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// CacheConfig represents the analysis response cache configuration.
// The cache is API-layer only and disabled by default; patient payloads
// are never durably persisted.
type CacheConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Backend    string        `mapstructure:"backend"` // "memory", "redis"
	RedisURL   string        `mapstructure:"redis_url"`
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
	MaxEntries int           `mapstructure:"max_entries"`
}

// BatchConfig represents batch analysis configuration.
type BatchConfig struct {
	Workers    int `mapstructure:"workers"`
	MaxPayload int `mapstructure:"max_payload"` // max patients per batch request
}

// RateLimitConfig represents API rate limiting configuration.
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json", "text"
	Output string `mapstructure:"output"`
}

// MCPConfig represents MCP server configuration
type MCPConfig struct {
	ServerName     string        `mapstructure:"server_name"`
	ServerVersion  string        `mapstructure:"server_version"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}
