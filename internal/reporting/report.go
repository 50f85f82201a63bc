package reporting

import (
	"time"

	"github.com/shopspring/decimal"

	"solana-pnl-bot/internal/domain"
	"solana-pnl-bot/internal/history"
)

// Report is a point-in-time PnL report of the wallet.
type Report struct {
	GeneratedAt time.Time
	Wallet      string

	// Positions holds one row per mint with a quantity or realized PnL,
	// base currency first, then by mint.
	Positions []PositionRow
	Totals    Totals

	Trades       *history.Summary
	RecentTrades []*domain.TradeRecord // newest first
}

// PositionRow is one position marked to market.
type PositionRow struct {
	Mint          string
	Symbol        string
	Quantity      decimal.Decimal
	AvgCostBasis  decimal.Decimal
	TotalInvested decimal.Decimal
	SpotPrice     *decimal.Decimal // nil when unpriced
	CurrentValue  decimal.Decimal
	UnrealizedPnL decimal.Decimal
	PnLPct        decimal.Decimal
	RealizedPnL   decimal.Decimal
	Open          bool
	Base          bool
}

// Totals sums the priced token positions. The base balance is reported
// separately and excluded from PnL.
type Totals struct {
	BaseBalance   decimal.Decimal
	Invested      decimal.Decimal
	CurrentValue  decimal.Decimal
	UnrealizedPnL decimal.Decimal
	RealizedPnL   decimal.Decimal
	OpenPositions int
	Unpriced      int
}

// PortfolioValue is the base balance plus the value of priced positions.
func (t Totals) PortfolioValue() decimal.Decimal {
	return t.BaseBalance.Add(t.CurrentValue)
}
