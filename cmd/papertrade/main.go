package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/rickgao/papertrade/internal/bootstrap"
	"github.com/rickgao/papertrade/internal/config"
	"github.com/rickgao/papertrade/internal/server"
	"github.com/rickgao/papertrade/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/papertrade.yaml", "path to config file (empty for defaults)")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Set up structured logging
	logger := bootstrap.NewLogger(cfg.Log, os.Stdout)
	logger.Info("starting papertrade",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)
	logger.Info("configuration loaded",
		"driver", cfg.Database.Driver,
		"quote_provider", cfg.Quotes.Provider,
		"port", cfg.Server.Port,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	gin.SetMode(gin.ReleaseMode)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.New(app.Engine, app.Hub, server.Config{CORSOrigin: cfg.Server.CORSOrigin}, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting http server", "port", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	logger.Info("papertrade running",
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port),
	)

	// Wait for shutdown
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		logger.Error("http server error", "error", err)
	}

	logger.Info("shutting down...")

	// Stream connections are hijacked and not tracked by Shutdown.
	app.Hub.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown incomplete", "error", err)
	}

	stats := app.Engine.Stats()
	logger.Info("papertrade stopped",
		"buys", stats.Buys,
		"sells", stats.Sells,
		"rejected", stats.Rejected,
		"store_failures", stats.StoreFailures,
	)
}
