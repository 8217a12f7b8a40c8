// Command papertradectl trades against the ledger directly, without the
// HTTP server. It reads the same config file as papertrade, so it is most
// useful with the leveldb or postgres driver.
package main

import (
	"context"
	"flag"
	"io"
	"os"
	"path"

	"github.com/google/subcommands"

	"github.com/rickgao/papertrade/internal/model"
)

func main() {
	g := &globals{}
	flag.StringVar(&g.configPath, "config", "", "path to config file (empty for defaults)")
	flag.BoolVar(&g.offline, "offline", false, "price trades from the config's static quote table")

	commander := newCommander(flag.CommandLine, path.Base(os.Args[0]), os.Stdout)

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background(), g)))
}

func newCommander(fs *flag.FlagSet, name string, out io.Writer) *subcommands.Commander {
	commander := subcommands.NewCommander(fs, name)
	commander.Output = out
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")

	commander.Register(&registerCmd{out: out}, "accounts")
	commander.Register(&portfolioCmd{out: out}, "accounts")
	commander.Register(&historyCmd{out: out}, "accounts")
	commander.Register(&tradeCmd{out: out, side: model.SideBuy}, "trading")
	commander.Register(&tradeCmd{out: out, side: model.SideSell}, "trading")
	commander.Register(&quoteCmd{out: out}, "trading")
	commander.Register(&versionCmd{out: out}, "")
	return commander
}
