package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	"github.com/rickgao/papertrade/internal/bootstrap"
	"github.com/rickgao/papertrade/internal/engine"
	"github.com/rickgao/papertrade/internal/model"
	"github.com/rickgao/papertrade/internal/money"
	"github.com/rickgao/papertrade/internal/version"
)

func table(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
}

type registerCmd struct {
	out  io.Writer
	user string
	cash string
}

func (*registerCmd) Name() string { return "register" }
func (*registerCmd) Synopsis() string { return "open a trading account" }
func (*registerCmd) Usage() string {
	return `register -user <id> [-cash <amount>]

  Opens an account. Without -cash the configured initial balance is used.
`
}

func (c *registerCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "account user ID")
	f.StringVar(&c.cash, "cash", "", "opening cash balance")
}

func (c *registerCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...any) subcommands.ExitStatus {
	return run(ctx, args, func(ctx context.Context, app *bootstrap.App) error {
		var cash *decimal.Decimal
		if c.cash != "" {
			d, err := decimal.NewFromString(c.cash)
			if err != nil {
				return usagef("invalid -cash %q: %v", c.cash, err)
			}
			cash = &d
		}

		acct, err := app.Engine.OpenAccount(ctx, c.user, cash)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "opened account %s with %s\n", acct.UserID, money.USD(acct.Cash))
		return nil
	})
}

// tradeCmd is both buy and sell.
type tradeCmd struct {
	out  io.Writer
	side model.Side
	user string
}

func (c *tradeCmd) Name() string { return string(c.side) }
func (c *tradeCmd) Synopsis() string {
	return fmt.Sprintf("%s shares at the current quote", c.side)
}
func (c *tradeCmd) Usage() string {
	return fmt.Sprintf("%s -user <id> <symbol> <shares>\n", c.side)
}

func (c *tradeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "account user ID")
}

func (c *tradeCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 2 {
		fmt.Fprint(c.out, c.Usage())
		return subcommands.ExitUsageError
	}
	symbol := f.Arg(0)

	return run(ctx, args, func(ctx context.Context, app *bootstrap.App) error {
		shares, err := engine.ParseShares(f.Arg(1))
		if err != nil {
			return err
		}
		res, err := app.Engine.Trade(ctx, c.side, c.user, symbol, shares)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.out, res.Message())
		fmt.Fprintf(c.out, "cash %s, holding %d shares of %s\n", money.USD(res.Cash), res.Shares, res.Transaction.Symbol)
		return nil
	})
}

type quoteCmd struct {
	out io.Writer
}

func (*quoteCmd) Name() string { return "quote" }
func (*quoteCmd) Synopsis() string { return "look up current prices" }
func (*quoteCmd) Usage() string { return "quote <symbol>...\n" }
func (*quoteCmd) SetFlags(*flag.FlagSet) {}

func (c *quoteCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprint(c.out, c.Usage())
		return subcommands.ExitUsageError
	}

	return run(ctx, args, func(ctx context.Context, app *bootstrap.App) error {
		w := table(c.out)
		fmt.Fprintln(w, "SYMBOL\tNAME\tPRICE")
		for _, sym := range f.Args() {
			q, err := app.Engine.Quote(ctx, sym)
			if err != nil {
				w.Flush()
				return err
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", q.Symbol, q.Name, money.USD(q.Price))
		}
		return w.Flush()
	})
}

type portfolioCmd struct {
	out     io.Writer
	user    string
	revalue bool
}

func (*portfolioCmd) Name() string { return "portfolio" }
func (*portfolioCmd) Synopsis() string { return "show cash and open positions" }
func (*portfolioCmd) Usage() string {
	return `portfolio -user <id> [-revalue]

  Positions are valued at their last trade price. -revalue also prices
  them at the current quote.
`
}

func (c *portfolioCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "account user ID")
	f.BoolVar(&c.revalue, "revalue", false, "price positions at current quotes")
}

func (c *portfolioCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...any) subcommands.ExitStatus {
	return run(ctx, args, func(ctx context.Context, app *bootstrap.App) error {
		p, err := app.Engine.Portfolio(ctx, c.user, c.revalue)
		if err != nil {
			return err
		}

		w := table(c.out)
		if c.revalue {
			fmt.Fprintln(w, "SYMBOL\tSHARES\tPRICE\tVALUE\tMARKET PRICE\tMARKET VALUE")
		} else {
			fmt.Fprintln(w, "SYMBOL\tSHARES\tPRICE\tVALUE")
		}
		for _, pos := range p.Positions {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s", pos.Symbol, pos.Shares, money.USD(pos.Price), money.USD(pos.Value))
			if c.revalue {
				fmt.Fprintf(w, "\t%s\t%s", nullUSD(pos.MarketPrice, pos.Stale), nullUSD(pos.MarketValue, pos.Stale))
			}
			fmt.Fprintln(w)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		fmt.Fprintf(c.out, "cash  %s\n", money.USD(p.Cash))
		fmt.Fprintf(c.out, "total %s\n", money.USD(p.Total))
		if p.MarketTotal.Valid {
			fmt.Fprintf(c.out, "market total %s\n", money.USD(p.MarketTotal.Decimal))
		}
		return nil
	})
}

func nullUSD(d decimal.NullDecimal, stale bool) string {
	if stale || !d.Valid {
		return "n/a"
	}
	return money.USD(d.Decimal)
}

type historyCmd struct {
	out   io.Writer
	user  string
	limit int
}

func (*historyCmd) Name() string { return "history" }
func (*historyCmd) Synopsis() string { return "list executed trades, newest first" }
func (*historyCmd) Usage() string { return "history -user <id> [-limit <n>]\n" }

func (c *historyCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "account user ID")
	f.IntVar(&c.limit, "limit", 0, "show at most n trades (0 for all)")
}

func (c *historyCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if c.limit < 0 {
		fmt.Fprint(c.out, c.Usage())
		return subcommands.ExitUsageError
	}

	return run(ctx, args, func(ctx context.Context, app *bootstrap.App) error {
		txs, err := app.Engine.History(ctx, c.user, c.limit)
		if err != nil {
			return err
		}
		if len(txs) == 0 {
			fmt.Fprintln(c.out, "no trades")
			return nil
		}

		w := table(c.out)
		fmt.Fprintln(w, "TIME\tSIDE\tSYMBOL\tSHARES\tPRICE\tTOTAL\tBALANCE")
		for _, t := range txs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
				t.ExecutedAt.Format(time.DateTime), t.Side, t.Symbol, t.Shares,
				money.USD(t.Price), money.USD(t.Total), money.USD(t.BalanceAfter))
		}
		return w.Flush()
	})
}

type versionCmd struct {
	out io.Writer
}

func (*versionCmd) Name() string { return "version" }
func (*versionCmd) Synopsis() string { return "print build information" }
func (*versionCmd) Usage() string { return "version\n" }
func (*versionCmd) SetFlags(*flag.FlagSet) {}

func (c *versionCmd) Execute(context.Context, *flag.FlagSet, ...any) subcommands.ExitStatus {
	info := version.Get()
	fmt.Fprintf(c.out, "papertradectl %s (%s) built %s, %s\n", info.Version, info.Commit, info.BuildTime, info.GoVersion)
	return subcommands.ExitSuccess
}
