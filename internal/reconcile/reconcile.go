// Package reconcile compares ledger quantities with live wallet balances.
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"solana-pnl-bot/internal/domain"
	"solana-pnl-bot/internal/observability"
	"solana-pnl-bot/internal/solana"
)

// DefaultTolerance is the relative difference tolerated per mint (0.001%).
var DefaultTolerance = decimal.RequireFromString("0.00001")

// Status classifies one mint of a report.
type Status string

const (
	StatusOK        Status = "OK"
	StatusDrift     Status = "DRIFT"
	StatusUntracked Status = "UNTRACKED" // held in the wallet, absent from the ledger
)

// MintReport compares one mint.
type MintReport struct {
	Mint         string
	LedgerQty    decimal.Decimal
	WalletQty    decimal.Decimal
	Difference   decimal.Decimal // ledger - wallet
	RelativeDiff decimal.Decimal
	Status       Status
}

// Report is the outcome of one reconciliation.
type Report struct {
	Wallet    string
	CheckedAt time.Time
	Mints     []MintReport // ordered by mint
	Drifted   int
	Untracked int
}

// OK reports whether every mint matched.
func (r *Report) OK() bool {
	return r.Drifted == 0 && r.Untracked == 0
}

// Issues returns the mints that did not match.
func (r *Report) Issues() []MintReport {
	var out []MintReport
	for _, m := range r.Mints {
		if m.Status != StatusOK {
			out = append(out, m)
		}
	}
	return out
}

// PositionSource lists ledger positions.
type PositionSource interface {
	Positions(ctx context.Context) ([]*domain.Position, error)
}

// Options configures a Reconciler.
type Options struct {
	Wallet    string
	RPC       solana.RPCClient
	Positions PositionSource
	Tolerance decimal.Decimal
	Logger    *zap.Logger
	Now       func() time.Time
}

// Reconciler reports ledger/wallet drift. It never writes to the ledger.
type Reconciler struct {
	opts   Options
	logger *zap.Logger
}

// New creates a Reconciler.
func New(opts Options) *Reconciler {
	if !opts.Tolerance.IsPositive() {
		opts.Tolerance = DefaultTolerance
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Reconciler{
		opts:   opts,
		logger: opts.Logger.With(zap.String("component", "reconciler")),
	}
}

// Reconcile compares every ledger position and every non-empty wallet
// token account, plus the native balance.
func (r *Reconciler) Reconcile(ctx context.Context) (*Report, error) {
	wallet, err := r.walletBalances(ctx)
	if err != nil {
		return nil, err
	}
	positions, err := r.opts.Positions.Positions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}

	ledger := make(map[string]decimal.Decimal, len(positions))
	for _, p := range positions {
		ledger[p.Mint] = p.TotalQuantity
	}

	mints := make(map[string]struct{}, len(wallet)+len(ledger))
	for m := range wallet {
		mints[m] = struct{}{}
	}
	for m := range ledger {
		mints[m] = struct{}{}
	}

	report := &Report{Wallet: r.opts.Wallet, CheckedAt: r.opts.Now().UTC()}
	for mint := range mints {
		walletQty := wallet[mint]
		ledgerQty, tracked := ledger[mint]

		m := MintReport{
			Mint:       mint,
			LedgerQty:  ledgerQty,
			WalletQty:  walletQty,
			Difference: ledgerQty.Sub(walletQty),
			Status:     StatusOK,
		}
		m.RelativeDiff = relativeDiff(ledgerQty, walletQty)

		switch {
		case !tracked && walletQty.IsPositive():
			m.Status = StatusUntracked
			report.Untracked++
		case m.RelativeDiff.GreaterThan(r.opts.Tolerance):
			m.Status = StatusDrift
			report.Drifted++
		}
		if m.Status == StatusOK && !ledgerQty.IsPositive() && !walletQty.IsPositive() {
			continue
		}
		report.Mints = append(report.Mints, m)
	}
	sort.Slice(report.Mints, func(i, j int) bool {
		return report.Mints[i].Mint < report.Mints[j].Mint
	})

	observability.UpdateDriftedMints(report.Drifted + report.Untracked)
	for _, m := range report.Issues() {
		r.logger.Warn("balance mismatch",
			zap.String("mint", m.Mint),
			zap.String("status", string(m.Status)),
			zap.String("ledger_qty", m.LedgerQty.String()),
			zap.String("wallet_qty", m.WalletQty.String()),
		)
	}
	return report, nil
}

// walletBalances sums token accounts per mint and adds the native balance
// under the base mint. Wrapped base accounts are left out, as in the ledger.
func (r *Reconciler) walletBalances(ctx context.Context) (map[string]decimal.Decimal, error) {
	accounts, err := r.opts.RPC.GetTokenAccountsByOwner(ctx, r.opts.Wallet)
	if err != nil {
		return nil, fmt.Errorf("get token accounts: %w", err)
	}
	lamports, err := r.opts.RPC.GetBalance(ctx, r.opts.Wallet)
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}

	out := make(map[string]decimal.Decimal, len(accounts)+1)
	for _, a := range accounts {
		v := a.Value()
		if !v.IsPositive() || a.Mint == domain.BaseMint {
			continue
		}
		out[a.Mint] = out[a.Mint].Add(v)
	}
	out[domain.BaseMint] = solana.LamportsToBase(lamports)
	return out, nil
}

// relativeDiff returns |a-b| / max(|a|, |b|), or zero when both are zero.
func relativeDiff(a, b decimal.Decimal) decimal.Decimal {
	denom := decimal.Max(a.Abs(), b.Abs())
	if denom.IsZero() {
		return decimal.Zero
	}
	return a.Sub(b).Abs().Div(denom)
}
