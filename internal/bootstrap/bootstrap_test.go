package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/rickgao/papertrade/internal/config"
	"github.com/rickgao/papertrade/internal/engine"
	"github.com/rickgao/papertrade/internal/ledger"
	"github.com/rickgao/papertrade/internal/quote"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown", "user_id", "alice")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line written at warn level: %s", out)
	}
	if !strings.Contains(out, `"user_id":"alice"`) {
		t.Errorf("json output missing attribute: %s", out)
	}
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		cfg     config.DatabaseConfig
		want    string
		wantErr bool
	}{
		{"memory", config.DatabaseConfig{Driver: config.DriverMemory}, "*ledger.MemoryStore", false},
		{"leveldb", config.DatabaseConfig{Driver: config.DriverLevelDB, LevelDB: config.LevelDBConfig{Path: filepath.Join(t.TempDir(), "ledger")}}, "*ledger.LevelStore", false},
		{"unknown", config.DatabaseConfig{Driver: "sqlite"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := OpenStore(ctx, tt.cfg, discard())
			if (err != nil) != tt.wantErr {
				t.Fatalf("OpenStore() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			defer store.Close()

			switch store.(type) {
			case *ledger.MemoryStore:
				if tt.want != "*ledger.MemoryStore" {
					t.Errorf("store = %T, want %s", store, tt.want)
				}
			case *ledger.LevelStore:
				if tt.want != "*ledger.LevelStore" {
					t.Errorf("store = %T, want %s", store, tt.want)
				}
			default:
				t.Errorf("store = %T, want %s", store, tt.want)
			}
			if err := store.Ping(ctx); err != nil {
				t.Errorf("Ping() error = %v", err)
			}
		})
	}
}

func TestNewQuoteProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("static", func(t *testing.T) {
		p, closeFn, err := NewQuoteProvider(ctx, config.QuotesConfig{
			Provider: config.ProviderStatic,
			Static:   map[string]string{"AAPL": "150.25"},
		}, discard())
		if err != nil {
			t.Fatalf("NewQuoteProvider() error = %v", err)
		}
		defer closeFn()

		q, err := p.Lookup(ctx, "aapl")
		if err != nil {
			t.Fatalf("Lookup() error = %v", err)
		}
		if !q.Price.Equal(decimal.RequireFromString("150.25")) {
			t.Errorf("Price = %s, want 150.25", q.Price)
		}
	})

	t.Run("static bad price", func(t *testing.T) {
		_, _, err := NewQuoteProvider(ctx, config.QuotesConfig{
			Provider: config.ProviderStatic,
			Static:   map[string]string{"AAPL": "abc"},
		}, discard())
		if err == nil {
			t.Error("NewQuoteProvider() succeeded with malformed price")
		}
	})

	t.Run("http cached", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"symbol":"MSFT","companyName":"Microsoft Corp.","latestPrice":410.5}`))
		}))
		defer srv.Close()

		cfg := config.Default().Quotes
		cfg.BaseURL = srv.URL
		p, closeFn, err := NewQuoteProvider(ctx, cfg, discard())
		if err != nil {
			t.Fatalf("NewQuoteProvider() error = %v", err)
		}
		defer closeFn()

		cached, ok := p.(*quote.Cached)
		if !ok {
			t.Fatalf("provider = %T, want *quote.Cached", p)
		}
		for i := 0; i < 3; i++ {
			if _, err := cached.Lookup(ctx, "MSFT"); err != nil {
				t.Fatalf("Lookup() error = %v", err)
			}
			cached.Wait()
		}
		if n := calls.Load(); n != 1 {
			t.Errorf("upstream calls = %d, want 1", n)
		}
	})

	t.Run("http uncached", func(t *testing.T) {
		cfg := config.Default().Quotes
		cfg.CacheTTL = -1
		p, closeFn, err := NewQuoteProvider(ctx, cfg, discard())
		if err != nil {
			t.Fatalf("NewQuoteProvider() error = %v", err)
		}
		defer closeFn()
		if _, ok := p.(*quote.Client); !ok {
			t.Errorf("provider = %T, want *quote.Client", p)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		if _, _, err := NewQuoteProvider(ctx, config.QuotesConfig{Provider: "carrier-pigeon"}, discard()); err == nil {
			t.Error("NewQuoteProvider() succeeded for unknown provider")
		}
	})
}

func TestNewApp(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Quotes.Provider = config.ProviderStatic
	cfg.Quotes.Static = map[string]string{"AAPL": "100"}
	cash := decimal.NewFromInt(500)
	cfg.Ledger.InitialCash = &cash

	app, err := New(ctx, cfg, discard())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	sub := app.Hub.Subscribe("alice")
	defer sub.Close()

	if _, err := app.Engine.OpenAccount(ctx, "alice", nil); err != nil {
		t.Fatalf("OpenAccount() error = %v", err)
	}
	res, err := app.Engine.Buy(ctx, "alice", "AAPL", 2)
	if err != nil {
		t.Fatalf("Buy() error = %v", err)
	}
	if !res.Cash.Equal(decimal.NewFromInt(300)) {
		t.Errorf("Cash = %s, want 300 from configured initial cash", res.Cash)
	}
	if got := sub.Pending(); len(got) != 1 || got[0].ID != res.Transaction.ID {
		t.Errorf("hub received %v, want the committed trade", got)
	}

	if _, err := app.Engine.Buy(ctx, "alice", "AAPL", 100); !errors.Is(err, engine.ErrInsufficientFunds) {
		t.Errorf("Buy(100) error = %v, want insufficient funds", err)
	}
}
