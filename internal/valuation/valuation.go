// Package valuation marks positions to spot prices.
package valuation

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"solana-pnl-bot/internal/domain"
	"solana-pnl-bot/internal/observability"
)

var hundred = decimal.NewFromInt(100)

// Valuate marks p to spot. A nil spot yields an unpriced valuation with zero
// current value; callers must not act on it.
func Valuate(p *domain.Position, spot *decimal.Decimal) *domain.Valuation {
	v := &domain.Valuation{
		Mint:          p.Mint,
		Quantity:      p.TotalQuantity,
		TotalInvested: p.TotalInvested,
	}
	if spot == nil {
		return v
	}

	price := *spot
	v.SpotPrice = &price
	v.Priced = true
	v.CurrentValue = p.TotalQuantity.Mul(price)
	v.UnrealizedPnL = v.CurrentValue.Sub(p.TotalInvested)
	if p.TotalInvested.IsPositive() {
		v.UnrealizedPnLPct = v.UnrealizedPnL.Div(p.TotalInvested).Mul(hundred)
	}
	return v
}

// PriceOracle returns the spot price of a mint in base units.
// A nil price means the oracle has none.
type PriceOracle interface {
	SpotPrice(ctx context.Context, mint string) (*decimal.Decimal, error)
}

// BatchOracle prices several mints in one call. Mints without a price are
// absent from the result.
type BatchOracle interface {
	PriceOracle
	SpotPrices(ctx context.Context, mints []string) (map[string]decimal.Decimal, error)
}

// Options configures an Engine.
type Options struct {
	Oracle PriceOracle
	Logger *zap.Logger
}

// Engine values positions through an oracle.
type Engine struct {
	oracle PriceOracle
	logger *zap.Logger
}

// NewEngine creates an Engine.
func NewEngine(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Engine{
		oracle: opts.Oracle,
		logger: opts.Logger.With(zap.String("component", "valuation")),
	}
}

// ValuateAll values positions in order. The base currency is priced at 1.
// A failed lookup leaves that position unpriced and does not stop the rest.
func (e *Engine) ValuateAll(ctx context.Context, positions []*domain.Position) []*domain.Valuation {
	one := decimal.NewFromInt(1)
	prices := e.batchPrices(ctx, positions)

	out := make([]*domain.Valuation, 0, len(positions))
	for _, p := range positions {
		if p.IsBase() {
			out = append(out, Valuate(p, &one))
			continue
		}

		var spot *decimal.Decimal
		if prices != nil {
			if price, ok := prices[p.Mint]; ok {
				spot = &price
			}
		} else {
			var err error
			spot, err = e.oracle.SpotPrice(ctx, p.Mint)
			if err != nil {
				observability.RecordPriceLookupError()
				e.logger.Warn("spot price lookup failed", zap.String("mint", p.Mint), zap.Error(err))
				spot = nil
			}
		}

		v := Valuate(p, spot)
		if v.Priced {
			pct, _ := v.UnrealizedPnLPct.Float64()
			observability.UpdateUnrealizedPnL(p.Mint, pct)
		}
		out = append(out, v)
	}
	return out
}

// batchPrices returns nil when the oracle cannot batch or the batch failed,
// in which case mints are priced one by one.
func (e *Engine) batchPrices(ctx context.Context, positions []*domain.Position) map[string]decimal.Decimal {
	batch, ok := e.oracle.(BatchOracle)
	if !ok {
		return nil
	}
	mints := make([]string, 0, len(positions))
	for _, p := range positions {
		if !p.IsBase() {
			mints = append(mints, p.Mint)
		}
	}
	if len(mints) == 0 {
		return map[string]decimal.Decimal{}
	}
	prices, err := batch.SpotPrices(ctx, mints)
	if err != nil {
		observability.RecordPriceLookupError()
		e.logger.Warn("batch price lookup failed, falling back", zap.Int("mints", len(mints)), zap.Error(err))
		return nil
	}
	return prices
}

// Snapshots converts the priced valuations of one cycle into time-series rows.
func Snapshots(cycleID string, at time.Time, vals []*domain.Valuation) []*domain.ValuationSnapshot {
	out := make([]*domain.ValuationSnapshot, 0, len(vals))
	for _, v := range vals {
		if !v.Priced || v.Mint == domain.BaseMint {
			continue
		}
		out = append(out, &domain.ValuationSnapshot{
			CycleID:          cycleID,
			Timestamp:        at,
			Mint:             v.Mint,
			Quantity:         v.Quantity,
			SpotPrice:        *v.SpotPrice,
			CurrentValue:     v.CurrentValue,
			TotalInvested:    v.TotalInvested,
			UnrealizedPnL:    v.UnrealizedPnL,
			UnrealizedPnLPct: v.UnrealizedPnLPct,
		})
	}
	return out
}
