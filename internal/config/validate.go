package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	switch c.Database.Driver {
	case DriverMemory:
	case DriverLevelDB:
		if c.Database.LevelDB.Path == "" {
			return errors.New("database.leveldb.path is required")
		}
	case DriverPostgres:
		if err := c.Database.Postgres.validate("database.postgres"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("database.driver must be one of memory, leveldb, postgres, got %q", c.Database.Driver)
	}

	switch c.Quotes.Provider {
	case ProviderHTTP:
		if c.Quotes.BaseURL == "" {
			return errors.New("quotes.base_url is required")
		}
	case ProviderStatic:
		if len(c.Quotes.Static) == 0 {
			return errors.New("quotes.static must list at least one symbol")
		}
		for sym, price := range c.Quotes.Static {
			p, err := decimal.NewFromString(price)
			if err != nil || !p.IsPositive() {
				return fmt.Errorf("quotes.static.%s must be a positive price, got %q", sym, price)
			}
		}
	default:
		return fmt.Errorf("quotes.provider must be http or static, got %q", c.Quotes.Provider)
	}
	if c.Quotes.MaxRetries < 0 {
		return errors.New("quotes.max_retries must be >= 0")
	}
	if c.Quotes.CacheMaxCost < 1 {
		return errors.New("quotes.cache_max_cost must be >= 1")
	}

	if c.Ledger.InitialCash != nil && c.Ledger.InitialCash.IsNegative() {
		return fmt.Errorf("ledger.initial_cash must be >= 0, got %s", c.Ledger.InitialCash)
	}
	if c.Ledger.QuoteConcurrency < 1 {
		return errors.New("ledger.quote_concurrency must be >= 1")
	}

	if c.Stream.BufferSize < 1 {
		return errors.New("stream.buffer_size must be >= 1")
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
