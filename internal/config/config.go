package config

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config is the root configuration shared by the server and the CLI.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Quotes   QuotesConfig   `yaml:"quotes"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Stream   StreamConfig   `yaml:"stream"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigin      string        `yaml:"cors_origin"` // empty disables CORS headers
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverLevelDB  = "leveldb"
	DriverPostgres = "postgres"
)

// DatabaseConfig selects and configures the ledger backend.
type DatabaseConfig struct {
	Driver   string        `yaml:"driver"`
	LevelDB  LevelDBConfig `yaml:"leveldb"`
	Postgres DBConfig      `yaml:"postgres"`
}

// LevelDBConfig holds the embedded store location.
type LevelDBConfig struct {
	Path string `yaml:"path"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// Quote providers.
const (
	ProviderHTTP   = "http"
	ProviderStatic = "static"
)

// QuotesConfig holds quote provider settings.
type QuotesConfig struct {
	Provider     string            `yaml:"provider"`
	BaseURL      string            `yaml:"base_url"`
	APIKey       string            `yaml:"api_key"`
	Timeout      time.Duration     `yaml:"timeout"`
	MaxRetries   int               `yaml:"max_retries"`
	RetryBackoff time.Duration     `yaml:"retry_backoff"`
	CacheTTL     time.Duration     `yaml:"cache_ttl"` // negative disables caching
	CacheMaxCost int64             `yaml:"cache_max_cost"`
	Static       map[string]string `yaml:"static"` // symbol -> price, used by the static provider
	Redis        RedisConfig       `yaml:"redis"`
}

// RedisConfig holds the optional shared quote cache. Empty Addr disables it.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LedgerConfig holds trade engine settings.
type LedgerConfig struct {
	InitialCash      *decimal.Decimal `yaml:"initial_cash"` // nil means DefaultInitialCash; zero is kept
	QuoteConcurrency int              `yaml:"quote_concurrency"`
}

// StreamConfig holds trade stream settings.
type StreamConfig struct {
	BufferSize   int           `yaml:"buffer_size"`
	PingInterval time.Duration `yaml:"ping_interval"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}
