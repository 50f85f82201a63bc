package reporting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"solana-pnl-bot/internal/domain"
	"solana-pnl-bot/internal/history"
)

// DefaultRecentTrades is the number of trades listed in a report.
const DefaultRecentTrades = 10

// PositionSource lists every ledger position.
type PositionSource interface {
	Positions(ctx context.Context) ([]*domain.Position, error)
}

// Valuer marks positions to market.
type Valuer interface {
	ValuateAll(ctx context.Context, positions []*domain.Position) []*domain.Valuation
}

// Generator produces reports from the ledger and trade history.
type Generator struct {
	wallet    string
	positions PositionSource
	valuer    Valuer
	history   *history.Service
	recent    int
	now       func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(wallet string, positions PositionSource, valuer Valuer, hist *history.Service) *Generator {
	return &Generator{
		wallet:    wallet,
		positions: positions,
		valuer:    valuer,
		history:   hist,
		recent:    DefaultRecentTrades,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// WithRecentTrades sets how many trades the report lists.
func (g *Generator) WithRecentTrades(n int) *Generator {
	g.recent = n
	return g
}

// Generate produces a complete report.
func (g *Generator) Generate(ctx context.Context) (*Report, error) {
	all, err := g.positions.Positions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load positions: %w", err)
	}

	// Fully closed positions without realized PnL carry no information.
	positions := make([]*domain.Position, 0, len(all))
	for _, p := range all {
		if p.IsOpen() || !p.RealizedPnL.IsZero() || p.IsBase() {
			positions = append(positions, p)
		}
	}
	sort.Slice(positions, func(i, j int) bool {
		if positions[i].IsBase() != positions[j].IsBase() {
			return positions[i].IsBase()
		}
		return positions[i].Mint < positions[j].Mint
	})

	// Closed positions are valued without an oracle lookup.
	open := make([]*domain.Position, 0, len(positions))
	for _, p := range positions {
		if p.IsOpen() {
			open = append(open, p)
		}
	}
	vals := make(map[string]*domain.Valuation, len(open))
	for _, v := range g.valuer.ValuateAll(ctx, open) {
		vals[v.Mint] = v
	}

	r := &Report{GeneratedAt: g.now(), Wallet: g.wallet}
	for _, p := range positions {
		row := PositionRow{
			Mint:          p.Mint,
			Symbol:        p.Symbol,
			Quantity:      p.TotalQuantity,
			AvgCostBasis:  p.AvgCostBasis,
			TotalInvested: p.TotalInvested,
			RealizedPnL:   p.RealizedPnL,
			Open:          p.IsOpen(),
			Base:          p.IsBase(),
		}
		if p.IsBase() {
			r.Totals.BaseBalance = p.TotalQuantity
			r.Positions = append(r.Positions, row)
			continue
		}

		r.Totals.RealizedPnL = r.Totals.RealizedPnL.Add(p.RealizedPnL)
		if v, ok := vals[p.Mint]; ok {
			r.Totals.OpenPositions++
			r.Totals.Invested = r.Totals.Invested.Add(p.TotalInvested)
			if v.Priced {
				row.SpotPrice = v.SpotPrice
				row.CurrentValue = v.CurrentValue
				row.UnrealizedPnL = v.UnrealizedPnL
				row.PnLPct = v.UnrealizedPnLPct
				r.Totals.CurrentValue = r.Totals.CurrentValue.Add(v.CurrentValue)
				r.Totals.UnrealizedPnL = r.Totals.UnrealizedPnL.Add(v.UnrealizedPnL)
			} else {
				r.Totals.Unpriced++
			}
		}
		r.Positions = append(r.Positions, row)
	}

	if g.history != nil {
		if r.Trades, err = g.history.Summary(ctx, time.Time{}); err != nil {
			return nil, err
		}
		if r.RecentTrades, err = g.history.Recent(ctx, g.recent); err != nil {
			return nil, err
		}
	}
	return r, nil
}
