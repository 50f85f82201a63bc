// Package loop drives the sync, valuation, evaluation and execution cycle.
package loop

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"solana-pnl-bot/internal/domain"
	"solana-pnl-bot/internal/execution"
	"solana-pnl-bot/internal/ledger"
	"solana-pnl-bot/internal/observability"
	"solana-pnl-bot/internal/reconcile"
	"solana-pnl-bot/internal/solana"
	"solana-pnl-bot/internal/storage"
	"solana-pnl-bot/internal/valuation"
)

// Defaults.
const (
	DefaultCheckInterval    = 10 * time.Second
	DefaultResyncInterval   = 30 * time.Second
	DefaultMinResyncGap     = 15 * time.Second
	DefaultMaxTradesPerHour = 20
)

// Resync reasons.
const (
	ResyncStartup   = "startup"
	ResyncScheduled = "scheduled"
	ResyncTrade     = "trade"
	ResyncActivity  = "activity"
)

// Syncer pulls new wallet activity into the ledger.
type Syncer interface {
	Sync(ctx context.Context) (*ledger.SyncResult, error)
	RefreshBaseBalance(ctx context.Context) error
}

// PositionReader lists open positions.
type PositionReader interface {
	OpenPositions(ctx context.Context) ([]*domain.Position, error)
}

// Valuer marks positions to market.
type Valuer interface {
	ValuateAll(ctx context.Context, positions []*domain.Position) []*domain.Valuation
}

// RuleResolver returns the rule in force for a mint.
type RuleResolver interface {
	Resolve(ctx context.Context, mint string) (*domain.TradingRule, error)
}

// Evaluator turns a valued position into a signal.
type Evaluator interface {
	Evaluate(p *domain.Position, v *domain.Valuation, rule *domain.TradingRule) *domain.TradingSignal
}

// Executor executes sell signals.
type Executor interface {
	Execute(ctx context.Context, signal *domain.TradingSignal, p *domain.Position) (*domain.TradeRecord, error)
	Events() <-chan domain.TradeExecuted
	DryRun() bool
}

// Reconciler reports ledger/wallet drift.
type Reconciler interface {
	Reconcile(ctx context.Context) (*reconcile.Report, error)
}

// Options configures a Runner.
type Options struct {
	Syncer     Syncer
	Positions  PositionReader
	Valuer     Valuer
	Rules      RuleResolver
	Evaluator  Evaluator
	Executor   Executor
	Trades     storage.TradeRecordStore
	Snapshots  storage.SnapshotStore       // optional
	Reconciler Reconciler                  // optional, runs after each resync
	Activity   <-chan solana.WalletActivity // optional wallet notifications

	CheckInterval    time.Duration
	ResyncInterval   time.Duration
	MinResyncGap     time.Duration
	MaxTradesPerHour int

	Logger *zap.Logger
	Now    func() time.Time
}

// CycleResult summarizes one cycle.
type CycleResult struct {
	ID           string
	StartedAt    time.Time
	Duration     time.Duration
	ResyncReason string // empty when the cycle did not resync
	Sync         *ledger.SyncResult
	Drift        *reconcile.Report
	Positions    int
	Priced       int
	Signals      int
	Executed     int
	Failed       int
	Suppressed   int
	Trades       []*domain.TradeRecord
	Valuations   []*domain.Valuation
}

// Status is a point-in-time view of the loop.
type Status struct {
	Running        bool                `json:"running"`
	DryRun         bool                `json:"dry_run"`
	Cycles         int                 `json:"cycles"`
	LastCycleID    string              `json:"last_cycle_id,omitempty"`
	LastCycleAt    time.Time           `json:"last_cycle_at,omitempty"`
	LastResyncAt   time.Time           `json:"last_resync_at,omitempty"`
	LastResync     string              `json:"last_resync_reason,omitempty"`
	OpenPositions  int                 `json:"open_positions"`
	TradesExecuted int                 `json:"trades_executed"`
	Suppressed     int                 `json:"suppressed"`
	DriftedMints   int                 `json:"drifted_mints"`
	Valuations     []*domain.Valuation `json:"valuations,omitempty"`
}

// Runner is the single cooperative trading loop.
type Runner struct {
	opts     Options
	governor *Governor
	logger   *zap.Logger

	// loop-goroutine state
	lastResync    time.Time
	pendingResync string
	dryRunFired   map[string]domain.Trigger

	mu     sync.RWMutex
	status Status
}

// NewRunner creates a Runner.
func NewRunner(opts Options) *Runner {
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = DefaultCheckInterval
	}
	if opts.ResyncInterval <= 0 {
		opts.ResyncInterval = DefaultResyncInterval
	}
	if opts.MinResyncGap <= 0 {
		opts.MinResyncGap = DefaultMinResyncGap
	}
	if opts.MaxTradesPerHour <= 0 {
		opts.MaxTradesPerHour = DefaultMaxTradesPerHour
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Runner{
		opts:        opts,
		governor:    NewGovernor(opts.Trades, opts.MaxTradesPerHour, DefaultGovernorWindow, opts.Now),
		logger:      opts.Logger.With(zap.String("component", "loop")),
		dryRunFired: make(map[string]domain.Trigger),
		status:      Status{DryRun: opts.Executor.DryRun()},
	}
}

// Run cycles every check interval until ctx is canceled. A cycle in
// progress always completes; cancellation is observed between cycles.
func (r *Runner) Run(ctx context.Context) error {
	r.setRunning(true)
	defer r.setRunning(false)

	r.logger.Info("trading loop started",
		zap.Duration("check_interval", r.opts.CheckInterval),
		zap.Duration("resync_interval", r.opts.ResyncInterval),
		zap.Int("max_trades_per_hour", r.opts.MaxTradesPerHour),
		zap.Bool("dry_run", r.opts.Executor.DryRun()),
	)

	r.pendingResync = ResyncStartup
	r.Cycle(context.WithoutCancel(ctx))

	ticker := time.NewTicker(r.opts.CheckInterval)
	defer ticker.Stop()

	events := r.opts.Executor.Events()
	activity := r.opts.Activity

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("trading loop stopping")
			return ctx.Err()

		case ev := <-events:
			r.logger.Debug("trade executed, requesting resync", zap.String("trade_id", ev.Record.ID))
			r.RequestResync(context.WithoutCancel(ctx), ResyncTrade)

		case act, ok := <-activity:
			if !ok {
				activity = nil
				continue
			}
			r.logger.Debug("wallet activity", zap.String("signature", act.Signature), zap.Bool("failed", act.Failed))
			if !act.Failed {
				r.RequestResync(context.WithoutCancel(ctx), ResyncActivity)
			}

		case <-ticker.C:
			r.Cycle(context.WithoutCancel(ctx))
		}
	}
}

// RequestResync asks for an out-of-band resync. It runs immediately unless
// one ran within the minimum gap, in which case it is deferred to the first
// cycle after the gap. Returns whether a resync ran.
func (r *Runner) RequestResync(ctx context.Context, reason string) bool {
	if r.pendingResync == "" {
		r.pendingResync = reason
	}
	if r.opts.Now().Sub(r.lastResync) < r.opts.MinResyncGap {
		return false
	}
	r.resync(ctx, r.takePending(), uuid.NewString())
	return true
}

func (r *Runner) takePending() string {
	reason := r.pendingResync
	r.pendingResync = ""
	return reason
}

// resyncReason returns why this cycle should resync, or "".
func (r *Runner) resyncReason(now time.Time) string {
	since := now.Sub(r.lastResync)
	switch {
	case r.pendingResync != "" && since >= r.opts.MinResyncGap:
		return r.takePending()
	case r.pendingResync == ResyncStartup:
		return r.takePending()
	case since >= r.opts.ResyncInterval:
		return ResyncScheduled
	}
	return ""
}

func (r *Runner) resync(ctx context.Context, reason, cycleID string) (*ledger.SyncResult, *reconcile.Report) {
	logger := r.logger.With(zap.String("cycle_id", cycleID), zap.String("reason", reason))
	r.lastResync = r.opts.Now()
	observability.RecordResync(reason)

	res, err := r.opts.Syncer.Sync(ctx)
	if err != nil {
		logger.Warn("sync failed", zap.Error(err))
	} else if res.Signatures > 0 {
		logger.Info("ledger synced",
			zap.Int("signatures", res.Signatures),
			zap.Int("applied", res.Applied),
			zap.Int("skipped", res.Skipped),
			zap.Int("failed", res.Failed),
			zap.String("cursor", res.Cursor),
		)
	}

	var report *reconcile.Report
	if r.opts.Reconciler != nil {
		if report, err = r.opts.Reconciler.Reconcile(ctx); err != nil {
			logger.Warn("reconcile failed", zap.Error(err))
		} else if !report.OK() {
			logger.Warn("ledger drift detected", zap.Int("drifted", report.Drifted), zap.Int("untracked", report.Untracked))
		}
	}

	r.mu.Lock()
	r.status.LastResyncAt = r.lastResync
	r.status.LastResync = reason
	if report != nil {
		r.status.DriftedMints = report.Drifted + report.Untracked
	}
	r.mu.Unlock()
	return res, report
}

// Cycle runs one pass: resync when due, refresh the base balance, then
// valuate, evaluate and execute each open position.
func (r *Runner) Cycle(ctx context.Context) *CycleResult {
	start := r.opts.Now()
	res := &CycleResult{ID: uuid.NewString(), StartedAt: start}
	logger := r.logger.With(zap.String("cycle_id", res.ID))

	if reason := r.resyncReason(start); reason != "" {
		res.ResyncReason = reason
		res.Sync, res.Drift = r.resync(ctx, reason, res.ID)
	}

	// The base position always mirrors the wallet.
	if err := r.opts.Syncer.RefreshBaseBalance(ctx); err != nil {
		logger.Warn("refresh base balance failed", zap.Error(err))
	}

	positions, err := r.opts.Positions.OpenPositions(ctx)
	if err != nil {
		logger.Error("load positions failed", zap.Error(err))
		r.finish(res, "error", logger)
		return res
	}
	res.Positions = len(positions)
	res.Valuations = r.opts.Valuer.ValuateAll(ctx, positions)

	for i, p := range positions {
		v := res.Valuations[i]
		if v.Priced {
			res.Priced++
		}
		r.evaluate(ctx, p, v, res, logger)
	}

	if r.opts.Snapshots != nil {
		snaps := valuation.Snapshots(res.ID, start, res.Valuations)
		if len(snaps) > 0 {
			if err := r.opts.Snapshots.InsertSnapshots(ctx, snaps); err != nil {
				logger.Warn("write valuation snapshots failed", zap.Error(err))
			}
		}
	}

	status := "ok"
	if res.Failed > 0 {
		status = "partial"
	}
	r.finish(res, status, logger)
	return res
}

func (r *Runner) evaluate(ctx context.Context, p *domain.Position, v *domain.Valuation, res *CycleResult, logger *zap.Logger) {
	logger = logger.With(zap.String("mint", p.Mint))

	rule, err := r.opts.Rules.Resolve(ctx, p.Mint)
	if err != nil {
		logger.Warn("resolve rule failed", zap.Error(err))
		return
	}
	signal := r.opts.Evaluator.Evaluate(p, v, rule)
	if !signal.IsSell() {
		delete(r.dryRunFired, p.Mint)
		if v.Priced {
			logger.Debug("hold",
				zap.String("pnl_pct", v.UnrealizedPnLPct.StringFixed(2)),
				zap.String("reason", signal.Reason),
			)
		}
		return
	}

	res.Signals++
	observability.RecordSignal(signal.Trigger.String())
	logger = logger.With(
		zap.String("trigger", signal.Trigger.String()),
		zap.String("pnl_pct", signal.CurrentPnLPct.StringFixed(2)),
		zap.String("quantity", signal.QuantityToSell.String()),
	)

	dryRun := r.opts.Executor.DryRun()
	if dryRun {
		// A dry run leaves the position unchanged; record each signal once.
		if r.dryRunFired[p.Mint] == signal.Trigger {
			return
		}
	} else {
		allowed, recent, err := r.governor.Allow(ctx)
		if err != nil {
			logger.Warn("governor check failed, skipping", zap.Error(err))
			return
		}
		if !allowed {
			res.Suppressed++
			observability.RecordGovernorSuppression()
			logger.Warn("signal suppressed by trade cap", zap.Int("recent_trades", recent), zap.Int("max", r.opts.MaxTradesPerHour))
			return
		}
	}

	logger.Info("sell signal", zap.String("reason", signal.Reason))
	rec, err := r.opts.Executor.Execute(ctx, signal, p)
	if err != nil {
		res.Failed++
		logger.Error("execution failed", zap.String("reason_code", execution.ReasonCode(err)), zap.Error(err))
		return
	}
	if dryRun {
		r.dryRunFired[p.Mint] = signal.Trigger
	}
	res.Executed++
	res.Trades = append(res.Trades, rec)
	logger.Info("trade recorded",
		zap.String("trade_id", rec.ID),
		zap.String("signature", rec.TxSignature),
		zap.String("received", rec.QuantityReceived.String()),
		zap.Int("slippage_bps", rec.SlippageBps),
		zap.Bool("dry_run", rec.DryRun),
	)
}

func (r *Runner) finish(res *CycleResult, status string, logger *zap.Logger) {
	res.Duration = r.opts.Now().Sub(res.StartedAt)
	observability.RecordCycle(status, res.Duration, res.Positions)

	logger.Info("cycle complete",
		zap.String("status", status),
		zap.Duration("took", res.Duration),
		zap.String("resync", res.ResyncReason),
		zap.Int("positions", res.Positions),
		zap.Int("priced", res.Priced),
		zap.Int("signals", res.Signals),
		zap.Int("executed", res.Executed),
		zap.Int("failed", res.Failed),
		zap.Int("suppressed", res.Suppressed),
	)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.Cycles++
	r.status.LastCycleID = res.ID
	r.status.LastCycleAt = res.StartedAt
	r.status.OpenPositions = res.Positions
	r.status.TradesExecuted += res.Executed
	r.status.Suppressed += res.Suppressed
	r.status.Valuations = res.Valuations
}

func (r *Runner) setRunning(running bool) {
	r.mu.Lock()
	r.status.Running = running
	r.mu.Unlock()
}

// Status returns a copy of the loop state. Safe for concurrent use.
func (r *Runner) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.status
	s.Valuations = append([]*domain.Valuation(nil), r.status.Valuations...)
	return s
}
