package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli"
	"go.uber.org/zap"

	"solana-pnl-bot/internal/classifier"
	"solana-pnl-bot/internal/config"
	"solana-pnl-bot/internal/history"
	"solana-pnl-bot/internal/jupiter"
	"solana-pnl-bot/internal/ledger"
	"solana-pnl-bot/internal/logging"
	"solana-pnl-bot/internal/observability"
	"solana-pnl-bot/internal/reconcile"
	"solana-pnl-bot/internal/rules"
	"solana-pnl-bot/internal/solana"
	"solana-pnl-bot/internal/storage"
	chstore "solana-pnl-bot/internal/storage/clickhouse"
	"solana-pnl-bot/internal/storage/memory"
	"solana-pnl-bot/internal/storage/migrations"
	pgstore "solana-pnl-bot/internal/storage/postgres"
	"solana-pnl-bot/internal/storage/sqlite"
	"solana-pnl-bot/internal/valuation"
)

// app holds the components shared by every command.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	stores *storage.Stores

	rpc     *solana.HTTPClient
	jupiter *jupiter.Client
	oracle  *valuation.JupiterOracle
	ledger  *ledger.Ledger
	syncer  *ledger.Syncer
	rules   *rules.Service
	valuer  *valuation.Engine
	history *history.Service
}

// newApp loads configuration and opens the stores.
func newApp(ctx context.Context, c *cli.Context) (*app, error) {
	cfg, err := config.Load(c.GlobalString("env-file"))
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	stores, err := openStores(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, stores: stores}

	a.rpc = solana.NewHTTPClient(cfg.RPCURL,
		solana.WithMaxRetries(cfg.RPCMaxRetries),
		solana.WithRateLimit(cfg.RPCRateLimit, 1),
		solana.WithObserver(observability.RecordRPCCall),
	)
	a.jupiter = jupiter.NewClient(cfg.JupiterURL,
		jupiter.WithAPIKey(cfg.JupiterAPIKey),
		jupiter.WithRateLimit(cfg.JupiterRateLimit),
	)
	a.oracle = valuation.NewJupiterOracle(a.jupiter)

	a.ledger = ledger.New(ledger.Options{
		Store:         stores.Ledger,
		DustThreshold: cfg.DustThreshold,
		Logger:        logger,
	})
	a.syncer = ledger.NewSyncer(ledger.SyncerOptions{
		Wallet: cfg.Wallet,
		RPC:    a.rpc,
		Classifier: classifier.New(classifier.Options{
			AccountRent: cfg.AccountRent,
			Logger:      logger,
		}),
		Ledger:                 a.ledger,
		Cursors:                stores.Cursors,
		PageSize:               cfg.SyncPageSize,
		MaxConsecutiveFailures: cfg.MaxConsecutiveFailures,
		RetryDelay:             cfg.SyncRetryDelay,
		Logger:                 logger,
	})
	a.rules = rules.NewService(rules.Options{
		Store: stores.Rules,
		Defaults: rules.Defaults{
			TakeProfitPct:  cfg.DefaultTakeProfitPct,
			StopLossPct:    cfg.DefaultStopLossPct,
			SellPercentage: cfg.DefaultSellPct,
		},
		Logger: logger,
	})
	a.valuer = valuation.NewEngine(valuation.Options{Oracle: a.oracle, Logger: logger})
	a.history = history.NewService(stores.Trades)
	return a, nil
}

func (a *app) reconciler() *reconcile.Reconciler {
	return reconcile.New(reconcile.Options{
		Wallet:    a.cfg.Wallet,
		RPC:       a.rpc,
		Positions: a.ledger,
		Tolerance: a.cfg.ReconcileTolerance,
		Logger:    a.logger,
	})
}

func (a *app) Close() {
	a.stores.Close()
	_ = a.logger.Sync()
}

// openStores connects the configured driver and runs its migrations.
// Valuation snapshots go to ClickHouse when a DSN is set, otherwise memory.
func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*storage.Stores, error) {
	var stores *storage.Stores

	switch cfg.StoreDriver {
	case config.DriverMemory:
		logger.Warn("using in-memory storage; state is lost on exit")
		stores = memory.NewStores()

	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := migrations.RunSQLiteMigrations(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite migrations: %w", err)
		}
		stores = sqlite.NewStores(db)

	case config.DriverPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		stores = pgstore.NewStores(pool)

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	if cfg.ClickHouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
		if err != nil {
			stores.Close()
			return nil, fmt.Errorf("clickhouse: %w", err)
		}
		stores.Snapshots = chstore.NewSnapshotStore(conn)
		closeSQL := stores.Close
		stores.Close = func() {
			conn.Close()
			closeSQL()
		}
	} else if stores.Snapshots == nil {
		stores.Snapshots = memory.NewSnapshotStore()
	}
	return stores, nil
}
