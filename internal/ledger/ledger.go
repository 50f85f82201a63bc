// Package ledger maintains per-mint positions from classified wallet events.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"solana-pnl-bot/internal/domain"
	"solana-pnl-bot/internal/observability"
	"solana-pnl-bot/internal/storage"
)

// DefaultDustThreshold is the quantity at or below which a position is closed.
var DefaultDustThreshold = decimal.New(1, -9)

// Options configures a Ledger.
type Options struct {
	Store         storage.LedgerStore
	DustThreshold decimal.Decimal
	Logger        *zap.Logger
	Now           func() time.Time
}

// Ledger applies events to positions. Writes are serialized so each
// read-modify-write of a position is consistent.
type Ledger struct {
	store  storage.LedgerStore
	dust   decimal.Decimal
	logger *zap.Logger
	now    func() time.Time

	mu sync.Mutex
}

// New creates a Ledger.
func New(opts Options) *Ledger {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	dust := opts.DustThreshold
	if dust.IsNegative() {
		dust = decimal.Zero
	}
	return &Ledger{
		store:  opts.Store,
		dust:   dust,
		logger: opts.Logger.With(zap.String("component", "ledger")),
		now:    opts.Now,
	}
}

// Apply persists e and updates its position in one unit.
// Returns false without error if (signature, mint) was already applied.
func (l *Ledger) Apply(ctx context.Context, e *domain.LedgerEvent) (bool, error) {
	if e == nil || e.Signature == "" || e.Mint == "" || !e.Kind.IsValid() {
		return false, storage.ErrInvalidInput
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	seen, err := l.store.HasEvent(ctx, e.Signature, e.Mint)
	if err != nil {
		return false, fmt.Errorf("check event: %w", err)
	}
	if seen {
		return false, nil
	}

	p, err := l.position(ctx, e.Mint, e.Decimals)
	if err != nil {
		return false, err
	}

	realized := applyEvent(p, e, l.costOf(ctx), l.dust)
	p.UpdatedAt = l.now()

	if err := l.store.ApplyEvent(ctx, e, p); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return false, nil
		}
		return false, fmt.Errorf("apply event %s/%s: %w", e.Signature, e.Mint, err)
	}

	observability.RecordEventApplied(e.Kind.String())
	l.logger.Debug("event applied",
		zap.String("signature", e.Signature),
		zap.String("kind", e.Kind.String()),
		zap.String("mint", e.Mint),
		zap.String("quantity", e.Quantity.String()),
		zap.String("position_qty", p.TotalQuantity.String()),
		zap.String("avg_cost", p.AvgCostBasis.String()),
		zap.String("realized", realized.String()))
	return true, nil
}

// ApplyTrade books the sale leg of a confirmed live trade as a SELL event
// keyed by the trade signature. A later sync of the same transaction is a no-op.
func (l *Ledger) ApplyTrade(ctx context.Context, r *domain.TradeRecord) (bool, error) {
	if r == nil || r.DryRun || r.TxSignature == "" {
		return false, storage.ErrInvalidInput
	}

	decimals := int32(0)
	if p, err := l.store.GetPosition(ctx, r.Mint); err == nil {
		decimals = p.Decimals
	}

	return l.Apply(ctx, &domain.LedgerEvent{
		Signature:            r.TxSignature,
		BlockTime:            r.ExecutedAt.Unix(),
		Kind:                 domain.EventSell,
		Mint:                 r.Mint,
		Decimals:             decimals,
		CounterpartyMint:     domain.BaseMint,
		CounterpartyQuantity: r.QuantityReceived,
		Quantity:             r.QuantitySold,
		FeeInBaseUnits:       decimal.Zero,
	})
}

// SetBaseBalance overwrites the base-currency position with the wallet balance.
func (l *Ledger) SetBaseBalance(ctx context.Context, qty decimal.Decimal) error {
	if qty.IsNegative() {
		return storage.ErrInvalidInput
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	p, err := l.position(ctx, domain.BaseMint, domain.BaseDecimals)
	if err != nil {
		return err
	}
	setBase(p, qty)
	p.UpdatedAt = l.now()
	return l.store.UpsertPosition(ctx, p)
}

// SeedPrefix marks synthetic events written by Seed.
const SeedPrefix = "seed:"

// Seed brings a position to qty by booking a synthetic adjustment event,
// so a later Rebuild reproduces it. Increases are bought at spot; a nil spot
// books them at zero cost, which leaves the position unsynced for signals.
func (l *Ledger) Seed(ctx context.Context, mint string, decimals int32, qty decimal.Decimal, spot *decimal.Decimal) (*domain.Position, error) {
	if mint == "" || qty.IsNegative() {
		return nil, storage.ErrInvalidInput
	}
	if mint == domain.BaseMint {
		if err := l.SetBaseBalance(ctx, qty); err != nil {
			return nil, err
		}
		return l.Position(ctx, mint)
	}

	current, err := l.Position(ctx, mint)
	if err != nil {
		return nil, err
	}
	delta := qty.Sub(current.TotalQuantity)
	if delta.IsZero() {
		return current, nil
	}

	now := l.now()
	e := &domain.LedgerEvent{
		Signature:      fmt.Sprintf("%s%d", SeedPrefix, now.UnixNano()),
		BlockTime:      now.Unix(),
		Mint:           mint,
		Decimals:       decimals,
		Quantity:       delta.Abs(),
		FeeInBaseUnits: decimal.Zero,
	}
	switch {
	case delta.IsNegative():
		e.Kind = domain.EventTransferOut
	case spot != nil:
		e.Kind = domain.EventBuy
		e.CounterpartyMint = domain.BaseMint
		e.CounterpartyQuantity = delta.Mul(*spot)
	default:
		e.Kind = domain.EventTransferIn
	}

	if _, err := l.Apply(ctx, e); err != nil {
		return nil, err
	}
	return l.Position(ctx, mint)
}

// Rebuild recomputes every position by replaying stored events in chain
// order and swaps the result in atomically. The base position is kept since
// it always mirrors the wallet.
func (l *Ledger) Rebuild(ctx context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	events, err := l.store.ListEvents(ctx)
	if err != nil {
		return 0, fmt.Errorf("list events: %w", err)
	}
	chainOrder(events)

	var base *domain.Position
	if p, err := l.store.GetPosition(ctx, domain.BaseMint); err == nil {
		base = p
	} else if !errors.Is(err, storage.ErrNotFound) {
		return 0, err
	}

	positions := make(map[string]*domain.Position)
	order := make([]string, 0)
	get := func(mint string, decimals int32) *domain.Position {
		p, ok := positions[mint]
		if !ok {
			p = domain.NewPosition(mint, decimals)
			positions[mint] = p
			order = append(order, mint)
		}
		return p
	}
	costOf := func(mint string, qty decimal.Decimal) decimal.Decimal {
		if p, ok := positions[mint]; ok {
			return p.AvgCostBasis.Mul(qty)
		}
		return decimal.Zero
	}

	for _, e := range events {
		applyEvent(get(e.Mint, e.Decimals), e, costOf, l.dust)
	}

	now := l.now()
	rebuilt := make([]*domain.Position, 0, len(order)+1)
	for _, mint := range order {
		p := positions[mint]
		if mint == domain.BaseMint && base != nil {
			p = base
		}
		p.UpdatedAt = now
		rebuilt = append(rebuilt, p)
	}
	if base != nil && positions[domain.BaseMint] == nil {
		rebuilt = append(rebuilt, base)
	}
	if err := l.store.ReplacePositions(ctx, rebuilt); err != nil {
		return 0, fmt.Errorf("replace positions: %w", err)
	}

	l.logger.Info("ledger rebuilt",
		zap.Int("events", len(events)),
		zap.Int("positions", len(order)))
	return len(events), nil
}

// chainOrder sorts events by block time, then slot. Events of one
// transaction keep their stored order.
func chainOrder(events []*domain.LedgerEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].BlockTime != events[j].BlockTime {
			return events[i].BlockTime < events[j].BlockTime
		}
		return events[i].Slot < events[j].Slot
	})
}

// Events returns the stored events of mint in chain order.
func (l *Ledger) Events(ctx context.Context, mint string) ([]*domain.LedgerEvent, error) {
	events, err := l.store.ListEventsByMint(ctx, mint)
	if err != nil {
		return nil, fmt.Errorf("list events %s: %w", mint, err)
	}
	chainOrder(events)
	return events, nil
}

// Seeded reports whether any position was opened from a balance snapshot.
func (l *Ledger) Seeded(ctx context.Context) (bool, error) {
	events, err := l.store.ListEvents(ctx)
	if err != nil {
		return false, fmt.Errorf("list events: %w", err)
	}
	for _, e := range events {
		if strings.HasPrefix(e.Signature, SeedPrefix) {
			return true, nil
		}
	}
	return false, nil
}

// Position returns the position of mint, or an empty one if none is stored.
func (l *Ledger) Position(ctx context.Context, mint string) (*domain.Position, error) {
	p, err := l.store.GetPosition(ctx, mint)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.NewPosition(mint, 0), nil
	}
	return p, err
}

// Positions returns every stored position ordered by mint.
func (l *Ledger) Positions(ctx context.Context) ([]*domain.Position, error) {
	return l.store.ListPositions(ctx)
}

// OpenPositions returns non-base positions holding a positive quantity.
func (l *Ledger) OpenPositions(ctx context.Context) ([]*domain.Position, error) {
	all, err := l.store.ListPositions(ctx)
	if err != nil {
		return nil, err
	}
	open := make([]*domain.Position, 0, len(all))
	for _, p := range all {
		if !p.IsBase() && p.IsOpen() {
			open = append(open, p)
		}
	}
	return open, nil
}

// position loads the stored position or a fresh one. Caller holds mu.
func (l *Ledger) position(ctx context.Context, mint string, decimals int32) (*domain.Position, error) {
	p, err := l.store.GetPosition(ctx, mint)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.NewPosition(mint, decimals), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get position %s: %w", mint, err)
	}
	if p.Decimals == 0 && decimals != 0 {
		p.Decimals = decimals
	}
	return p, nil
}

// costOf values a counterparty leg at its stored average cost. Caller holds mu.
func (l *Ledger) costOf(ctx context.Context) costFunc {
	return func(mint string, qty decimal.Decimal) decimal.Decimal {
		p, err := l.store.GetPosition(ctx, mint)
		if err != nil {
			return decimal.Zero
		}
		return p.AvgCostBasis.Mul(qty)
	}
}
