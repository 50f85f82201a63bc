// Package execution sells positions through the swap aggregator with an
// escalating slippage schedule.
package execution

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"solana-pnl-bot/internal/domain"
	"solana-pnl-bot/internal/idhash"
	"solana-pnl-bot/internal/jupiter"
	"solana-pnl-bot/internal/observability"
	"solana-pnl-bot/internal/storage"
)

// Defaults.
const (
	DefaultBaseSlippageBps = 50
	DefaultRetryDelay      = 2 * time.Second
	DefaultConfirmTimeout  = 90 * time.Second
	DefaultEventBuffer     = 16
)

// DefaultMultipliers scale the base slippage per attempt.
var DefaultMultipliers = []int{1, 3, 6, 10}

// Quoter returns a fresh route for an exact-in swap.
type Quoter interface {
	Quote(ctx context.Context, req jupiter.QuoteRequest) (*jupiter.Quote, error)
}

// Submitter signs and sends the swap for a quote and returns its signature.
type Submitter interface {
	Submit(ctx context.Context, quote *jupiter.Quote) (string, error)
}

// Confirmer blocks until signature is confirmed or has failed.
type Confirmer interface {
	Confirm(ctx context.Context, signature string) error
}

// TradeApplier books the sale leg of a confirmed trade.
type TradeApplier interface {
	ApplyTrade(ctx context.Context, r *domain.TradeRecord) (bool, error)
}

// HoldingsReader reports the wallet's on-chain raw balance of a mint.
// ok is false when the balance cannot be located.
type HoldingsReader interface {
	RawBalance(ctx context.Context, mint string) (amount uint64, ok bool, err error)
}

// Options configures an Engine.
type Options struct {
	Quoter    Quoter
	Submitter Submitter // unused in dry-run mode
	Confirmer Confirmer // unused in dry-run mode
	Trades    storage.TradeRecordStore
	Ledger    TradeApplier
	Holdings  HoldingsReader // optional cap on the sold amount

	BaseSlippageBps int
	Multipliers     []int
	RetryDelay      time.Duration
	ConfirmTimeout  time.Duration
	DryRun          bool
	EventBuffer     int

	Logger *zap.Logger
	Now    func() time.Time
}

// Engine executes sell signals.
type Engine struct {
	opts     Options
	schedule []int
	events   chan domain.TradeExecuted
	logger   *zap.Logger
}

// NewEngine creates an Engine.
func NewEngine(opts Options) *Engine {
	if opts.BaseSlippageBps <= 0 {
		opts.BaseSlippageBps = DefaultBaseSlippageBps
	}
	if len(opts.Multipliers) == 0 {
		opts.Multipliers = DefaultMultipliers
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = DefaultConfirmTimeout
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = DefaultEventBuffer
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		opts:     opts,
		schedule: Schedule(opts.BaseSlippageBps, opts.Multipliers),
		events:   make(chan domain.TradeExecuted, opts.EventBuffer),
		logger:   opts.Logger.With(zap.String("component", "execution"), zap.Bool("dry_run", opts.DryRun)),
	}
}

// Schedule returns the slippage tolerance in bps of each attempt.
func Schedule(baseBps int, multipliers []int) []int {
	out := make([]int, 0, len(multipliers))
	for _, m := range multipliers {
		if m > 0 {
			out = append(out, baseBps*m)
		}
	}
	return out
}

// Schedule returns the engine's slippage schedule.
func (e *Engine) Schedule() []int {
	return append([]int(nil), e.schedule...)
}

// DryRun reports whether the engine only quotes.
func (e *Engine) DryRun() bool {
	return e.opts.DryRun
}

// Events delivers a TradeExecuted for each recorded trade. Events are dropped
// when the buffer is full.
func (e *Engine) Events() <-chan domain.TradeExecuted {
	return e.events
}

// Execute sells signal.QuantityToSell of p for the base currency.
// A slippage failure moves to the next tier of the schedule after the retry
// delay; any other failure aborts. On success the trade is recorded, the
// sale is booked in the ledger and a TradeExecuted event is emitted.
func (e *Engine) Execute(ctx context.Context, signal *domain.TradingSignal, p *domain.Position) (*domain.TradeRecord, error) {
	amount, err := rawAmount(signal, p)
	if err != nil {
		observability.RecordTrade(ReasonInvalidSignal)
		return nil, err
	}
	signal, amount, err = e.capToHoldings(ctx, signal, p, amount)
	if err != nil {
		observability.RecordTrade(ReasonInvalidSignal)
		return nil, err
	}

	logger := e.logger.With(
		zap.String("mint", p.Mint),
		zap.String("trigger", signal.Trigger.String()),
		zap.String("quantity", signal.QuantityToSell.String()),
	)

	var lastErr error
	for i, bps := range e.schedule {
		if i > 0 {
			if err := sleep(ctx, e.opts.RetryDelay); err != nil {
				return nil, err
			}
		}
		observability.RecordExecutionAttempt(strconv.Itoa(bps))
		attempt := logger.With(zap.Int("attempt", i+1), zap.Int("slippage_bps", bps))

		quote, err := e.opts.Quoter.Quote(ctx, jupiter.QuoteRequest{
			InputMint:   p.Mint,
			OutputMint:  domain.BaseMint,
			Amount:      amount,
			SlippageBps: bps,
		})
		if err != nil {
			return nil, e.abort(attempt, "quote", err)
		}

		if e.opts.DryRun {
			attempt.Info("dry run quote", zap.Uint64("out_amount", quote.OutAmount))
			return e.record(ctx, signal, quote, "", bps, i+1)
		}

		txSig, err := e.submitAndConfirm(ctx, quote)
		if err != nil {
			err = classify(err)
			if errors.Is(err, ErrSlippageExceeded) {
				attempt.Warn("slippage exceeded, escalating", zap.Error(err))
				lastErr = err
				continue
			}
			return nil, e.abort(attempt, "swap", err)
		}

		attempt.Info("swap confirmed", zap.String("signature", txSig), zap.Uint64("out_amount", quote.OutAmount))
		return e.record(ctx, signal, quote, txSig, bps, i+1)
	}

	observability.RecordTrade(ReasonSlippage)
	logger.Error("slippage schedule exhausted", zap.Ints("schedule", e.schedule))
	if lastErr == nil {
		lastErr = ErrSlippageExceeded
	}
	return nil, fmt.Errorf("after %d attempts: %w", len(e.schedule), lastErr)
}

func (e *Engine) submitAndConfirm(ctx context.Context, quote *jupiter.Quote) (string, error) {
	txSig, err := e.opts.Submitter.Submit(ctx, quote)
	if err != nil {
		return "", err
	}
	confirmCtx, cancel := context.WithTimeout(ctx, e.opts.ConfirmTimeout)
	defer cancel()
	if err := e.opts.Confirmer.Confirm(confirmCtx, txSig); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			// The transaction may still land; never resubmit.
			return "", fmt.Errorf("%w: confirmation of %s timed out", ErrExecutionFailed, txSig)
		}
		return "", err
	}
	return txSig, nil
}

func (e *Engine) abort(logger *zap.Logger, stage string, err error) error {
	err = classify(err)
	code := ReasonCode(err)
	observability.RecordTrade(code)
	logger.Error("execution aborted", zap.String("stage", stage), zap.String("reason", code), zap.Error(err))
	return err
}

func (e *Engine) record(ctx context.Context, signal *domain.TradingSignal, quote *jupiter.Quote, txSig string, bps, attempts int) (*domain.TradeRecord, error) {
	now := e.opts.Now().UTC()
	r := &domain.TradeRecord{
		ID:               idhash.ComputeTradeID(signal.Mint, signal.Strategy, signal.Trigger.String(), txSig, now.UnixMilli()),
		Mint:             signal.Mint,
		Strategy:         signal.Strategy,
		Trigger:          signal.Trigger,
		PnLPct:           signal.CurrentPnLPct,
		PnLBase:          signal.CurrentPnLBase,
		QuantitySold:     signal.QuantityToSell,
		QuantityReceived: decimal.NewFromUint64(quote.OutAmount).Shift(-domain.BaseDecimals),
		TxSignature:      txSig,
		DryRun:           e.opts.DryRun,
		SlippageBps:      bps,
		Attempts:         attempts,
		ExecutedAt:       now,
	}

	if err := e.opts.Trades.AppendTrade(ctx, r); err != nil {
		observability.RecordTrade(ReasonFailed)
		if txSig != "" {
			// The swap landed; the next sync books it from chain.
			e.logger.Error("trade confirmed but not recorded", zap.String("signature", txSig), zap.Error(err))
		}
		return nil, fmt.Errorf("append trade: %w", err)
	}

	if !r.DryRun && e.opts.Ledger != nil {
		if _, err := e.opts.Ledger.ApplyTrade(ctx, r); err != nil {
			e.logger.Error("trade recorded but ledger not updated; reconcile will report drift",
				zap.String("trade_id", r.ID), zap.String("signature", txSig), zap.Error(err))
		}
	}

	outcome := "success"
	if r.DryRun {
		outcome = "dry_run"
	}
	observability.RecordTrade(outcome)

	select {
	case e.events <- domain.TradeExecuted{Record: r}:
	default:
		e.logger.Warn("trade event dropped, buffer full", zap.String("trade_id", r.ID))
	}
	return r, nil
}

// capToHoldings limits the sale to what the wallet's token account holds.
// A failed lookup leaves the amount unchanged.
func (e *Engine) capToHoldings(ctx context.Context, signal *domain.TradingSignal, p *domain.Position, amount uint64) (*domain.TradingSignal, uint64, error) {
	if e.opts.Holdings == nil {
		return signal, amount, nil
	}
	held, ok, err := e.opts.Holdings.RawBalance(ctx, p.Mint)
	if err != nil {
		e.logger.Warn("holdings lookup failed", zap.String("mint", p.Mint), zap.Error(err))
		return signal, amount, nil
	}
	if !ok || held >= amount {
		return signal, amount, nil
	}
	if held == 0 {
		return nil, 0, fmt.Errorf("%w: wallet holds no %s", ErrInvalidSignal, p.Mint)
	}

	capped := *signal
	capped.QuantityToSell = decimal.NewFromUint64(held).Shift(-p.Decimals)
	e.logger.Warn("sell capped to wallet balance",
		zap.String("mint", p.Mint),
		zap.String("ledger_quantity", signal.QuantityToSell.String()),
		zap.String("held", capped.QuantityToSell.String()))
	return &capped, held, nil
}

// rawAmount converts the signal quantity into raw token units.
func rawAmount(signal *domain.TradingSignal, p *domain.Position) (uint64, error) {
	if signal == nil || p == nil || !signal.IsSell() {
		return 0, fmt.Errorf("%w: not a sell", ErrInvalidSignal)
	}
	if signal.Mint != p.Mint || p.IsBase() {
		return 0, fmt.Errorf("%w: mint %s", ErrInvalidSignal, signal.Mint)
	}
	if signal.QuantityToSell.GreaterThan(p.TotalQuantity) {
		return 0, fmt.Errorf("%w: quantity %s exceeds held %s", ErrInvalidSignal, signal.QuantityToSell, p.TotalQuantity)
	}
	raw := signal.QuantityToSell.Shift(p.Decimals).Truncate(0)
	if !raw.IsPositive() || !raw.BigInt().IsUint64() {
		return 0, fmt.Errorf("%w: raw amount %s", ErrInvalidSignal, raw)
	}
	return raw.BigInt().Uint64(), nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
