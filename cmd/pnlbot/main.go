// Command pnlbot tracks a Solana wallet's cost basis and PnL and exits
// positions on take-profit / stop-loss rules.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli"
)

// Version is set at build time.
var Version = "dev"

func main() {
	app := cli.NewApp()
	app.Name = "pnlbot"
	app.Usage = "Solana wallet PnL ledger and auto-exit bot"
	app.Version = Version

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "env-file",
			Value: ".env",
			Usage: "optional dotenv file loaded before the PNLBOT_ environment",
		},
	}

	app.Commands = []cli.Command{
		initCMD,
		syncCMD,
		resyncCMD,
		pnlCMD,
		runCMD,
		statusCMD,
		rulesCMD,
		reconcileCMD,
		inspectCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	initCMD = cli.Command{
		Name:        "init",
		Usage:       "seed positions from current wallet balances",
		Action:      initAction,
		Description: `Prices every token the wallet holds at spot, books it as the opening cost basis and moves the sync cursor to the newest transaction.`,
	}
	syncCMD = cli.Command{
		Name:   "sync",
		Usage:  "apply wallet transactions newer than the cursor",
		Action: syncAction,
	}
	resyncCMD = cli.Command{
		Name:        "resync",
		Usage:       "rebuild positions from stored events, then sync",
		Action:      resyncAction,
		Description: `Recomputes every position from the stored ledger events and then pulls new transactions.`,
		Flags: []cli.Flag{
			cli.BoolFlag{Name: "from-genesis", Usage: "forget the cursor and replay the wallet's full history"},
		},
	}
	pnlCMD = cli.Command{
		Name:   "pnl",
		Usage:  "print the PnL report",
		Action: pnlAction,
		Flags: []cli.Flag{
			cli.StringFlag{Name: "format", Value: "markdown", Usage: "markdown or csv"},
			cli.BoolFlag{Name: "trades", Usage: "with --format csv, print trade history instead of positions"},
			cli.IntFlag{Name: "recent", Value: 10, Usage: "number of recent trades listed"},
			cli.StringFlag{Name: "out", Usage: "write to file instead of stdout"},
		},
	}
	runCMD = cli.Command{
		Name:   "run",
		Usage:  "run the trading loop",
		Action: runAction,
		Flags: []cli.Flag{
			cli.BoolFlag{Name: "dry-run", Usage: "quote and record exits without sending transactions"},
			cli.BoolFlag{Name: "no-watch", Usage: "do not subscribe to wallet activity over websocket"},
		},
	}
	statusCMD = cli.Command{
		Name:   "status",
		Usage:  "show sync cursor, positions and the trade cap",
		Action: statusAction,
	}
	rulesCMD = cli.Command{
		Name:  "rules",
		Usage: "manage exit rules",
		Subcommands: []cli.Command{
			{
				Name:   "list",
				Usage:  "list stored rules",
				Action: rulesListAction,
			},
			{
				Name:      "set",
				Usage:     "create or replace a rule",
				ArgsUsage: " ",
				Action:    rulesSetAction,
				Flags: []cli.Flag{
					cli.StringFlag{Name: "mint", Usage: "token mint; empty sets the global default"},
					cli.StringFlag{Name: "tp", Usage: "take-profit percent, e.g. 50"},
					cli.StringFlag{Name: "sl", Usage: "stop-loss percent, e.g. -20"},
					cli.StringFlag{Name: "sell", Value: "100", Usage: "percent of the position to sell"},
				},
			},
			{
				Name:      "disable",
				Usage:     "disable exits for a mint",
				ArgsUsage: "MINT",
				Action:    rulesDisableAction,
			},
			{
				Name:      "import",
				Usage:     "load rules from a YAML file",
				ArgsUsage: "FILE",
				Action:    rulesImportAction,
			},
		},
	}
	reconcileCMD = cli.Command{
		Name:   "reconcile",
		Usage:  "compare ledger quantities with wallet balances",
		Action: reconcileAction,
	}
	inspectCMD = cli.Command{
		Name:      "inspect",
		Usage:     "show one mint's events and valuation history",
		ArgsUsage: "MINT",
		Action:    inspectAction,
		Flags: []cli.Flag{
			cli.DurationFlag{Name: "since", Value: 24 * time.Hour, Usage: "snapshot window"},
		},
	}
)
