package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/rickgao/papertrade/internal/model"
)

const (
	redisKeyPrefix = "papertrade:quote:"

	// DefaultFlightTimeout bounds a shared upstream lookup.
	DefaultFlightTimeout = 10 * time.Second
)

// CacheOptions configures a Cached provider.
type CacheOptions struct {
	TTL           time.Duration
	MaxCost       int64         // maximum number of cached symbols
	Redis         *redis.Client // optional shared cache
	FlightTimeout time.Duration // limit for a collapsed upstream lookup, DefaultFlightTimeout when zero
}

// Cached decorates a Provider with a TTL cache. Misses for the same symbol
// are collapsed into one upstream lookup that does not inherit any single
// caller's cancellation. Failures are never cached.
type Cached struct {
	next   Provider
	local  *ristretto.Cache
	redis  *redis.Client
	ttl    time.Duration
	flight time.Duration
	group  singleflight.Group
	logger *slog.Logger
}

// NewCached wraps next.
func NewCached(next Provider, opts CacheOptions, logger *slog.Logger) (*Cached, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxCost < 1 {
		opts.MaxCost = 1
	}
	if opts.FlightTimeout <= 0 {
		opts.FlightTimeout = DefaultFlightTimeout
	}

	local, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: opts.MaxCost * 10,
		MaxCost:     opts.MaxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create quote cache: %w", err)
	}

	return &Cached{
		next:   next,
		local:  local,
		redis:  opts.Redis,
		ttl:    opts.TTL,
		flight: opts.FlightTimeout,
		logger: logger,
	}, nil
}

// Lookup returns a cached quote or asks the wrapped provider.
func (c *Cached) Lookup(ctx context.Context, symbol string) (model.Quote, error) {
	sym := NormalizeSymbol(symbol)

	if v, ok := c.local.Get(sym); ok {
		return v.(model.Quote), nil
	}

	ch := c.group.DoChan(sym, func() (any, error) {
		// Other callers may join this flight; one of them leaving must not fail the rest.
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.flight)
		defer cancel()

		if q, ok := c.fromRedis(fctx, sym); ok {
			c.store(sym, q)
			return q, nil
		}

		q, err := c.next.Lookup(fctx, sym)
		if err != nil {
			return model.Quote{}, err
		}
		c.store(sym, q)
		c.toRedis(fctx, q)
		return q, nil
	})

	select {
	case <-ctx.Done():
		return model.Quote{}, fmt.Errorf("quote %s: %w: %w", sym, ErrUnavailable, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return model.Quote{}, res.Err
		}
		return res.Val.(model.Quote), nil
	}
}

// Wait blocks until pending cache writes are visible.
func (c *Cached) Wait() {
	c.local.Wait()
}

// Close releases the local cache.
func (c *Cached) Close() {
	c.local.Close()
}

func (c *Cached) store(sym string, q model.Quote) {
	c.local.SetWithTTL(sym, q, 1, c.ttl)
	if q.Symbol != sym {
		c.local.SetWithTTL(q.Symbol, q, 1, c.ttl)
	}
}

func (c *Cached) fromRedis(ctx context.Context, sym string) (model.Quote, bool) {
	if c.redis == nil {
		return model.Quote{}, false
	}

	data, err := c.redis.Get(ctx, redisKeyPrefix+sym).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Quote{}, false
	}
	if err != nil {
		c.logger.Warn("redis quote read failed", "symbol", sym, "error", err)
		return model.Quote{}, false
	}

	var q model.Quote
	if err := json.Unmarshal(data, &q); err != nil || !q.Price.IsPositive() {
		c.logger.Warn("discarding bad cached quote", "symbol", sym, "error", err)
		return model.Quote{}, false
	}
	return q, true
}

func (c *Cached) toRedis(ctx context.Context, q model.Quote) {
	if c.redis == nil {
		return
	}
	data, err := json.Marshal(q)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, redisKeyPrefix+q.Symbol, data, c.ttl).Err(); err != nil {
		c.logger.Warn("redis quote write failed", "symbol", q.Symbol, "error", err)
	}
}
