// Package bootstrap builds the application components from configuration.
// Both binaries share it so the server and the CLI see the same ledger.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/rickgao/papertrade/internal/config"
	"github.com/rickgao/papertrade/internal/database"
	"github.com/rickgao/papertrade/internal/engine"
	"github.com/rickgao/papertrade/internal/ledger"
	"github.com/rickgao/papertrade/internal/quote"
	"github.com/rickgao/papertrade/internal/stream"
)

// App is a fully wired trade engine.
type App struct {
	Config *config.Config
	Logger *slog.Logger
	Store  ledger.Store
	Quotes quote.Provider
	Hub    *stream.Hub
	Engine *engine.Engine

	closers []func()
}

// NewLogger creates the slog logger described by cfg.
func NewLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel maps a config level name to a slog level. Unknown names mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New wires every component. The caller must Close the App.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger}

	store, err := OpenStore(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	app.Store = store
	app.closers = append(app.closers, func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close ledger store", "error", err)
		}
	})

	quotes, closeQuotes, err := NewQuoteProvider(ctx, cfg.Quotes, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Quotes = quotes
	app.closers = append(app.closers, closeQuotes)

	app.Hub = stream.NewHub(stream.Config{
		BufferSize:   cfg.Stream.BufferSize,
		PingInterval: cfg.Stream.PingInterval,
		WriteTimeout: cfg.Stream.WriteTimeout,
	}, logger)
	app.closers = append(app.closers, app.Hub.Close)

	ecfg := engine.Config{
		InitialCash:      config.DefaultInitialCash,
		QuoteConcurrency: cfg.Ledger.QuoteConcurrency,
	}
	if cfg.Ledger.InitialCash != nil {
		ecfg.InitialCash = *cfg.Ledger.InitialCash
	}
	app.Engine = engine.New(store, quotes, ecfg,
		engine.WithLogger(logger),
		engine.WithPublisher(app.Hub),
	)
	return app, nil
}

// Close releases components in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// OpenStore opens the ledger backend selected by cfg.Driver. Postgres
// schemas are migrated on open.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (ledger.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		logger.Info("using in-memory ledger")
		return ledger.NewMemoryStore(), nil

	case config.DriverLevelDB:
		logger.Info("opening leveldb ledger", "path", cfg.LevelDB.Path)
		return ledger.OpenLevelStore(cfg.LevelDB.Path, logger)

	case config.DriverPostgres:
		logger.Info("connecting to database",
			"host", cfg.Postgres.Host,
			"port", cfg.Postgres.Port,
			"database", cfg.Postgres.Name,
		)
		pool, err := database.Connect(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("connect ledger database: %w", err)
		}
		if err := database.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return database.NewLedgerStore(pool, logger), nil

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// NewQuoteProvider builds the provider selected by cfg.Provider. HTTP lookups
// are cached unless CacheTTL is negative. The returned func releases caches
// and connections.
func NewQuoteProvider(ctx context.Context, cfg config.QuotesConfig, logger *slog.Logger) (quote.Provider, func(), error) {
	noop := func() {}

	switch cfg.Provider {
	case config.ProviderStatic:
		static, err := quote.ParseStatic(cfg.Static)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using static quotes", "symbols", len(cfg.Static))
		return static, noop, nil

	case config.ProviderHTTP:
		client := quote.NewClient(cfg.BaseURL, cfg.APIKey,
			quote.WithLogger(logger),
			quote.WithTimeout(cfg.Timeout),
			quote.WithRetries(cfg.MaxRetries, cfg.RetryBackoff),
		)
		if cfg.CacheTTL < 0 {
			return client, noop, nil
		}

		var rdb *redis.Client
		if cfg.Redis.Addr != "" {
			rdb = redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			if err := rdb.Ping(ctx).Err(); err != nil {
				rdb.Close()
				return nil, nil, fmt.Errorf("connect quote cache redis %s: %w", cfg.Redis.Addr, err)
			}
			logger.Info("shared quote cache enabled", "redis", cfg.Redis.Addr)
		}

		cached, err := quote.NewCached(client, quote.CacheOptions{
			TTL:     cfg.CacheTTL,
			MaxCost: cfg.CacheMaxCost,
			Redis:   rdb,
		}, logger)
		if err != nil {
			if rdb != nil {
				rdb.Close()
			}
			return nil, nil, err
		}
		return cached, func() {
			cached.Close()
			if rdb != nil {
				rdb.Close()
			}
		}, nil

	default:
		return nil, nil, fmt.Errorf("unknown quote provider %q", cfg.Provider)
	}
}
