package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"solana-pnl-bot/internal/domain"
	"solana-pnl-bot/internal/execution"
	"solana-pnl-bot/internal/loop"
	"solana-pnl-bot/internal/reporting"
	"solana-pnl-bot/internal/server"
	"solana-pnl-bot/internal/solana"
	"solana-pnl-bot/internal/storage"
	"solana-pnl-bot/internal/strategy"
)

// withApp runs fn with a loaded app and a context canceled on SIGINT/SIGTERM.
func withApp(c *cli.Context, needWallet bool, fn func(ctx context.Context, a *app) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, c)
	if err != nil {
		return err
	}
	defer a.Close()

	if needWallet {
		if err := a.cfg.RequireWallet(); err != nil {
			return err
		}
	}
	return fn(ctx, a)
}

func initAction(c *cli.Context) error {
	return withApp(c, true, func(ctx context.Context, a *app) error {
		res, err := a.syncer.Bootstrap(ctx, a.oracle)
		if err != nil {
			return err
		}
		fmt.Printf("Seeded %d positions, cursor %s\n", res.Positions, orNone(res.Cursor))
		for _, mint := range res.Unpriced {
			fmt.Printf("  unpriced (zero cost basis): %s\n", mint)
		}
		return nil
	})
}

func syncAction(c *cli.Context) error {
	return withApp(c, true, func(ctx context.Context, a *app) error {
		res, err := a.syncer.Sync(ctx)
		if err != nil {
			return err
		}
		if err := a.syncer.RefreshBaseBalance(ctx); err != nil {
			return err
		}
		fmt.Printf("Signatures: %d  processed: %d  applied: %d  skipped: %d  failed: %d  cursor: %s\n",
			res.Signatures, res.Processed, res.Applied, res.Skipped, res.Failed, orNone(res.Cursor))
		return nil
	})
}

func resyncAction(c *cli.Context) error {
	return withApp(c, true, func(ctx context.Context, a *app) error {
		resync := a.syncer.Resync
		if c.Bool("from-genesis") {
			resync = a.syncer.ResyncFromGenesis
		}
		res, err := resync(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Rebuilt positions; applied %d new events, cursor %s\n", res.Applied, orNone(res.Cursor))
		return nil
	})
}

func pnlAction(c *cli.Context) error {
	return withApp(c, false, func(ctx context.Context, a *app) error {
		var out string
		switch format := c.String("format"); format {
		case "markdown", "md":
			r, err := reporting.NewGenerator(a.cfg.Wallet, a.ledger, a.valuer, a.history).
				WithRecentTrades(c.Int("recent")).
				Generate(ctx)
			if err != nil {
				return err
			}
			out = reporting.RenderMarkdown(r)
		case "csv":
			if c.Bool("trades") {
				trades, err := a.stores.Trades.ListTrades(ctx)
				if err != nil {
					return err
				}
				out = reporting.RenderTradesCSV(trades)
				break
			}
			r, err := reporting.NewGenerator(a.cfg.Wallet, a.ledger, a.valuer, nil).Generate(ctx)
			if err != nil {
				return err
			}
			out = reporting.RenderCSV(r.Positions)
		default:
			return fmt.Errorf("unknown format %q", format)
		}

		if path := c.String("out"); path != "" {
			return os.WriteFile(path, []byte(out), 0o644)
		}
		fmt.Print(out)
		return nil
	})
}

func runAction(c *cli.Context) error {
	return withApp(c, true, func(ctx context.Context, a *app) error {
		cfg := a.cfg
		dryRun := cfg.DryRun || c.Bool("dry-run")

		var (
			submitter execution.Submitter
			confirmer execution.Confirmer
		)
		if !dryRun {
			if err := cfg.RequireSigner(); err != nil {
				return err
			}
			signer, err := execution.LoadSigner(cfg.KeypairPath)
			if err != nil {
				return err
			}
			submitter = execution.NewSwapSubmitter(a.jupiter, execution.NewRPCSender(cfg.RPCURL), signer, cfg.SkipPreflight)
			confirmer = execution.NewStatusConfirmer(a.rpc, 0, a.logger)
		}

		engine := execution.NewEngine(execution.Options{
			Quoter:          a.jupiter,
			Submitter:       submitter,
			Confirmer:       confirmer,
			Trades:          a.stores.Trades,
			Ledger:          a.ledger,
			Holdings:        solana.NewWalletHoldings(a.rpc, cfg.Wallet),
			BaseSlippageBps: cfg.BaseSlippageBps,
			Multipliers:     cfg.SlippageMultipliers,
			RetryDelay:      cfg.RetryDelay,
			ConfirmTimeout:  cfg.ConfirmTimeout,
			DryRun:          dryRun,
			Logger:          a.logger,
		})

		activity := make(chan solana.WalletActivity, 16)
		runner := loop.NewRunner(loop.Options{
			Syncer:           a.syncer,
			Positions:        a.ledger,
			Valuer:           a.valuer,
			Rules:            a.rules,
			Evaluator:        strategy.NewRegistry(),
			Executor:         engine,
			Trades:           a.stores.Trades,
			Snapshots:        a.stores.Snapshots,
			Reconciler:       a.reconciler(),
			Activity:         activity,
			CheckInterval:    cfg.CheckInterval,
			ResyncInterval:   cfg.ResyncInterval,
			MinResyncGap:     cfg.MinResyncGap,
			MaxTradesPerHour: cfg.MaxTradesPerHour,
			Logger:           a.logger,
		})

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return ignoreCanceled(runner.Run(gctx))
		})
		if cfg.MetricsAddr != "" {
			srv := server.New(server.Options{
				Addr:   cfg.MetricsAddr,
				Wallet: cfg.Wallet,
				Status: runner,
				Logger: a.logger,
			})
			g.Go(func() error { return srv.Run(gctx) })
		}
		if cfg.WSURL != "" && !c.Bool("no-watch") {
			watcher := solana.NewWalletWatcher(cfg.WSURL, cfg.Wallet, nil, a.logger)
			g.Go(func() error {
				return ignoreCanceled(watcher.Run(gctx, activity))
			})
		}

		err := g.Wait()
		a.logger.Info("shutdown complete", zap.Error(err))
		return err
	})
}

func statusAction(c *cli.Context) error {
	return withApp(c, true, func(ctx context.Context, a *app) error {
		cfg := a.cfg
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

		fmt.Fprintf(w, "Wallet:\t%s\n", cfg.Wallet)
		fmt.Fprintf(w, "Store:\t%s\n", cfg.StoreDriver)
		cursor, err := a.stores.Cursors.GetCursor(ctx, cfg.Wallet)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			fmt.Fprintf(w, "Cursor:\tnot synced (run init or sync)\n")
		case err != nil:
			return err
		default:
			fmt.Fprintf(w, "Cursor:\t%s (slot %d, %s)\n", cursor.Signature, cursor.Slot, cursor.UpdatedAt.Format(time.RFC3339))
		}

		positions, err := a.ledger.OpenPositions(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Open positions:\t%d\n", len(positions))
		if base, err := a.ledger.Position(ctx, domain.BaseMint); err == nil {
			fmt.Fprintf(w, "%s balance:\t%s\n", domain.BaseSymbol, base.TotalQuantity.StringFixed(6))
		}

		recent, err := loop.NewGovernor(a.stores.Trades, cfg.MaxTradesPerHour, loop.DefaultGovernorWindow, nil).Recent(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Trades last hour:\t%d / %d\n", recent, cfg.MaxTradesPerHour)
		fmt.Fprintf(w, "Dry run:\t%t\n", cfg.DryRun)
		return w.Flush()
	})
}

func inspectAction(c *cli.Context) error {
	mint := strings.TrimSpace(c.Args().First())
	if mint == "" {
		return errors.New("usage: pnlbot inspect MINT")
	}
	return withApp(c, false, func(ctx context.Context, a *app) error {
		end := time.Now()
		start := end.Add(-c.Duration("since"))

		p, err := a.ledger.Position(ctx, mint)
		if err != nil {
			return err
		}
		events, err := a.ledger.Events(ctx, mint)
		if err != nil {
			return err
		}
		snaps, err := a.stores.Snapshots.GetSnapshots(ctx, mint, start, end)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Mint:\t%s\n", mint)
		fmt.Fprintf(w, "Quantity:\t%s\n", p.TotalQuantity)
		fmt.Fprintf(w, "Avg cost:\t%s\n", p.AvgCostBasis)
		fmt.Fprintf(w, "Realized:\t%s\n", p.RealizedPnL)
		fmt.Fprintln(w)

		fmt.Fprintln(w, "TIME\tKIND\tQTY\tCOUNTERPARTY\tFEE\tSIGNATURE")
		for _, e := range events {
			counterparty := "-"
			if e.CounterpartyMint != "" {
				counterparty = e.CounterpartyQuantity.String() + " " + e.CounterpartyMint
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				time.Unix(e.BlockTime, 0).UTC().Format(time.RFC3339), e.Kind, e.Quantity,
				counterparty, e.FeeInBaseUnits, e.Signature)
		}
		fmt.Fprintln(w)

		fmt.Fprintln(w, "SNAPSHOT\tPRICE\tVALUE\tUNREALIZED\tPCT")
		for _, s := range snaps {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				s.Timestamp.UTC().Format(time.RFC3339), s.SpotPrice, s.CurrentValue.StringFixed(6),
				s.UnrealizedPnL.StringFixed(6), s.UnrealizedPnLPct.StringFixed(2))
		}
		return w.Flush()
	})
}

func rulesListAction(c *cli.Context) error {
	return withApp(c, false, func(ctx context.Context, a *app) error {
		list, err := a.rules.List(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "MINT\tSTRATEGY\tTP%\tSL%\tSELL%\tENABLED")
		def, err := a.rules.Resolve(ctx, "")
		if err != nil {
			return err
		}
		printRule(w, def)
		for _, r := range list {
			if r.IsDefault() {
				continue
			}
			printRule(w, r)
		}
		return w.Flush()
	})
}

func printRule(w *tabwriter.Writer, r *domain.TradingRule) {
	mint := r.Mint
	if r.IsDefault() {
		mint = "(default)"
	}
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\n", mint, r.Strategy,
		r.TakeProfitPct, r.StopLossPct, r.SellPercentage, r.Enabled)
}

func rulesSetAction(c *cli.Context) error {
	tp, err := decimalFlag(c, "tp")
	if err != nil {
		return err
	}
	sl, err := decimalFlag(c, "sl")
	if err != nil {
		return err
	}
	sell, err := decimalFlag(c, "sell")
	if err != nil {
		return err
	}
	return withApp(c, false, func(ctx context.Context, a *app) error {
		rule := &domain.TradingRule{
			Mint:           strings.TrimSpace(c.String("mint")),
			Strategy:       domain.DefaultStrategy,
			TakeProfitPct:  tp,
			StopLossPct:    sl,
			SellPercentage: sell,
		}
		if err := a.rules.Set(ctx, rule); err != nil {
			return err
		}
		fmt.Println("Rule saved")
		return nil
	})
}

func rulesDisableAction(c *cli.Context) error {
	mint := strings.TrimSpace(c.Args().First())
	if mint == "" {
		return errors.New("usage: pnlbot rules disable MINT")
	}
	return withApp(c, false, func(ctx context.Context, a *app) error {
		if err := a.rules.Disable(ctx, mint); err != nil {
			return err
		}
		fmt.Printf("Exits disabled for %s\n", mint)
		return nil
	})
}

func rulesImportAction(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return errors.New("usage: pnlbot rules import FILE")
	}
	return withApp(c, false, func(ctx context.Context, a *app) error {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		n, err := a.rules.Import(ctx, f)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d rules\n", n)
		return nil
	})
}

func reconcileAction(c *cli.Context) error {
	return withApp(c, true, func(ctx context.Context, a *app) error {
		report, err := a.reconciler().Reconcile(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "MINT\tLEDGER\tWALLET\tDIFF\tSTATUS")
		for _, m := range report.Mints {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", m.Mint, m.LedgerQty, m.WalletQty, m.Difference, m.Status)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		if !report.OK() {
			return fmt.Errorf("%d drifted, %d untracked mints", report.Drifted, report.Untracked)
		}
		fmt.Println("Ledger matches wallet")
		return nil
	})
}

func decimalFlag(c *cli.Context, name string) (decimal.Decimal, error) {
	v := strings.TrimSpace(c.String(name))
	if v == "" {
		return decimal.Zero, fmt.Errorf("--%s is required", name)
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("--%s: %w", name, err)
	}
	return d, nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
