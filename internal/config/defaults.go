package config

import (
	"time"

	"github.com/shopspring/decimal"
)

// Default values for optional configuration fields.
const (
	DefaultPort             = 8080
	DefaultReadTimeout      = 10 * time.Second
	DefaultWriteTimeout     = 15 * time.Second
	DefaultShutdownTimeout  = 10 * time.Second
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
	DefaultDriver           = DriverMemory
	DefaultLevelDBPath      = "data/ledger"
	DefaultDBPort           = 5432
	DefaultDBSSLMode        = "prefer"
	DefaultMaxConns         = 10
	DefaultMinConns         = 2
	DefaultQuoteProvider    = ProviderHTTP
	DefaultQuoteBaseURL     = "https://cloud.iexapis.com/stable"
	DefaultQuoteTimeout     = 5 * time.Second
	DefaultMaxRetries       = 3
	DefaultRetryBackoff     = 200 * time.Millisecond
	DefaultCacheTTL         = 15 * time.Second
	DefaultCacheMaxCost     = 10000
	DefaultQuoteConcurrency = 8
	DefaultStreamBuffer     = 256
	DefaultPingInterval     = 30 * time.Second
	DefaultStreamWrite      = 10 * time.Second
)

// DefaultInitialCash is the balance of a newly opened account.
var DefaultInitialCash = decimal.NewFromInt(10000)

func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = DefaultReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}

	// Database defaults
	if c.Database.Driver == "" {
		c.Database.Driver = DefaultDriver
	}
	if c.Database.LevelDB.Path == "" {
		c.Database.LevelDB.Path = DefaultLevelDBPath
	}
	applyDBDefaults(&c.Database.Postgres)

	// Quote defaults
	if c.Quotes.Provider == "" {
		c.Quotes.Provider = DefaultQuoteProvider
	}
	if c.Quotes.BaseURL == "" {
		c.Quotes.BaseURL = DefaultQuoteBaseURL
	}
	if c.Quotes.Timeout == 0 {
		c.Quotes.Timeout = DefaultQuoteTimeout
	}
	if c.Quotes.MaxRetries == 0 {
		c.Quotes.MaxRetries = DefaultMaxRetries
	}
	if c.Quotes.RetryBackoff == 0 {
		c.Quotes.RetryBackoff = DefaultRetryBackoff
	}
	if c.Quotes.CacheTTL == 0 {
		c.Quotes.CacheTTL = DefaultCacheTTL
	}
	if c.Quotes.CacheMaxCost == 0 {
		c.Quotes.CacheMaxCost = DefaultCacheMaxCost
	}

	// Ledger defaults
	if c.Ledger.InitialCash == nil {
		v := DefaultInitialCash
		c.Ledger.InitialCash = &v
	}
	if c.Ledger.QuoteConcurrency == 0 {
		c.Ledger.QuoteConcurrency = DefaultQuoteConcurrency
	}

	// Stream defaults
	if c.Stream.BufferSize == 0 {
		c.Stream.BufferSize = DefaultStreamBuffer
	}
	if c.Stream.PingInterval == 0 {
		c.Stream.PingInterval = DefaultPingInterval
	}
	if c.Stream.WriteTimeout == 0 {
		c.Stream.WriteTimeout = DefaultStreamWrite
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
