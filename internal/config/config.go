// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Database DatabaseConfig
	Engine   EngineConfig
	Cascade  CascadeConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing a response (default: 60s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`

	// MaxUploadBytes caps JSON and CSV request bodies (default: 100MB)
	MaxUploadBytes int64 `env:"SERVER_MAX_UPLOAD_BYTES" default:"104857600"`
}

// Store backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// StoreConfig selects where tables, merges and settings are kept.
type StoreConfig struct {
	// Backend is memory, sqlite or postgres (default: memory)
	Backend string `env:"STORE_BACKEND" default:"memory"`

	// SQLitePath is the database file for the sqlite backend (default: sheetengine.db)
	SQLitePath string `env:"SQLITE_PATH" default:"sheetengine.db"`

	// SQLiteReadConns is the read pool size for the sqlite backend (default: 4)
	SQLiteReadConns int `env:"SQLITE_READ_CONNS" default:"4"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string, required for the postgres backend.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// EngineConfig tunes inference and calculated columns.
type EngineConfig struct {
	// SampleSize is how many non-blank values type inference reads (default: 10)
	SampleSize int `env:"INFERENCE_SAMPLE_SIZE" default:"10"`

	// ParallelRowThreshold is the row count at which calculated columns are
	// evaluated in parallel (default: 2048)
	ParallelRowThreshold int `env:"PARALLEL_ROW_THRESHOLD" default:"2048"`

	// MaxWorkers bounds parallel evaluation; 0 means GOMAXPROCS (default: 0)
	MaxWorkers int `env:"MAX_WORKERS" default:"0"`

	// PreviewRows is how many rows a formula preview evaluates (default: 5)
	PreviewRows int `env:"PREVIEW_ROWS" default:"5"`
}

// CascadeConfig bounds dependency cascades.
type CascadeConfig struct {
	// MaxParallel is dependents rebuilt at once within a tier (default: 4)
	MaxParallel int `env:"CASCADE_MAX_PARALLEL" default:"4"`

	// MaxActive is the number of cascades that may run at once (default: 2)
	MaxActive int `env:"CASCADE_MAX_ACTIVE" default:"2"`

	// MaxWait is how long a source update waits for a cascade slot (default: 30s)
	MaxWait time.Duration `env:"CASCADE_MAX_WAIT" default:"30s"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// WriteLimit is requests per minute for endpoints that trigger
	// cascades or uploads (default: 20)
	WriteLimit int `env:"RATE_LIMIT_WRITE" default:"20"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// APIKeys is a comma-separated list of editor:key pairs. The editor name
	// is stamped on saved settings.
	APIKeys []string `env:"API_KEYS"`

	// RequireAPIKey rejects /api requests without a valid key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`

	// SeqURL, when set, also ships logs to a Seq server
	SeqURL string `env:"LOG_SEQ_URL"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
