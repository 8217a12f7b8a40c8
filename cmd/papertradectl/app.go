package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/rickgao/papertrade/internal/bootstrap"
	"github.com/rickgao/papertrade/internal/config"
	"github.com/rickgao/papertrade/internal/engine"
)

// globals are the flags shared by every subcommand.
type globals struct {
	configPath string
	offline    bool
}

// errUsage makes run report a usage error.
var errUsage = errors.New("usage")

// run loads the config, wires the engine and calls fn with it.
func run(ctx context.Context, args []any, fn func(ctx context.Context, app *bootstrap.App) error) subcommands.ExitStatus {
	g, ok := firstGlobals(args)
	if !ok {
		g = &globals{}
	}

	cfg, err := config.LoadAndValidate(g.configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	if g.offline {
		cfg.Quotes.Provider = config.ProviderStatic
	}

	logger := bootstrap.NewLogger(cfg.Log, os.Stderr)
	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer app.Close()

	err = fn(ctx, app)
	switch {
	case err == nil:
		return subcommands.ExitSuccess
	case errors.Is(err, errUsage):
		return subcommands.ExitUsageError
	}

	var declined *engine.Error
	if errors.As(err, &declined) {
		fmt.Fprintf(os.Stderr, "declined (%s): %v\n", declined.Kind, err)
	} else {
		fmt.Fprintln(os.Stderr, err)
	}
	return subcommands.ExitFailure
}

func firstGlobals(args []any) (*globals, bool) {
	if len(args) == 0 {
		return nil, false
	}
	g, ok := args[0].(*globals)
	return g, ok
}

// usagef prints a usage problem and returns errUsage.
func usagef(format string, args ...any) error {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	return errUsage
}
