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
	Database DatabaseConfig
	Store    StoreConfig
	Redis    RedisConfig
	Staging  StagingConfig
	Upload   UploadConfig
	Parser   ParserConfig
	Recalc   RecalcConfig
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

	// ReadTimeout is the maximum duration for reading request body (default: 60s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"60s"`

	// WriteTimeout is the maximum duration for writing response (default: 60s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database connection settings. Only used by the
// postgres store driver.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string.
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

// StoreConfig selects the record store backend.
type StoreConfig struct {
	// Driver is memory or postgres (default: memory)
	Driver string `env:"STORE_DRIVER" default:"memory"`

	// MigrateOnStart applies pending schema migrations at boot (default: true)
	MigrateOnStart bool `env:"STORE_MIGRATE_ON_START" default:"true"`
}

// RedisConfig holds the Redis connection used by the redis staging driver.
type RedisConfig struct {
	URL string `env:"REDIS_URL"`
}

// StagingConfig holds upload session settings.
type StagingConfig struct {
	// Driver is memory or redis (default: memory)
	Driver string `env:"STAGING_DRIVER" default:"memory"`

	// TTL is the preview window (default: 15m)
	TTL time.Duration `env:"STAGING_TTL" default:"15m"`

	// Grace keeps expired sessions reportable as expired (default: 15m)
	Grace time.Duration `env:"STAGING_GRACE" default:"15m"`

	// SweepInterval is how often the memory driver drops stale sessions (default: 1m)
	SweepInterval time.Duration `env:"STAGING_SWEEP_INTERVAL" default:"1m"`
}

// UploadConfig holds file upload processing settings.
type UploadConfig struct {
	// MaxFileSize is the maximum allowed file size in bytes (default: 100MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"104857600"`

	// MaxRows caps data rows per file (default: 50000)
	MaxRows int `env:"UPLOAD_MAX_ROWS" default:"50000"`

	// MaxConcurrent is the maximum number of parallel parses (default: 5)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long to wait for an upload slot (default: 30s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`

	// Timeout is the maximum duration for a single upload operation (default: 10m)
	Timeout time.Duration `env:"UPLOAD_TIMEOUT" default:"10m"`
}

// ParserConfig holds file decoding settings.
type ParserConfig struct {
	// FallbackEncoding is tried when a CSV is not valid UTF-8: gb18030 or none (default: gb18030)
	FallbackEncoding string `env:"PARSER_FALLBACK_ENCODING" default:"gb18030"`
}

// RecalcConfig holds reconciliation engine settings.
type RecalcConfig struct {
	// Workers is the number of parallel recalculations (default: 4)
	Workers int `env:"RECALC_WORKERS" default:"4"`

	// QueueSize bounds orders waiting for background recalculation (default: 10000)
	QueueSize int `env:"RECALC_QUEUE_SIZE" default:"10000"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// UploadLimit is requests per minute for upload endpoints (default: 10)
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey enables X-API-Key checks on /api routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`

	// TenantHeader carries the tenant resolved by the upstream auth layer (default: X-Tenant-ID)
	TenantHeader string `env:"TENANT_HEADER" default:"X-Tenant-ID"`

	// PrincipalHeader carries the authenticated user (default: X-Principal)
	PrincipalHeader string `env:"PRINCIPAL_HEADER" default:"X-Principal"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
