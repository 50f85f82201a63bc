package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is the ledger state for one mint.
type Position struct {
	Mint          string
	Symbol        string // optional display symbol
	Decimals      int32
	TotalQuantity decimal.Decimal // never negative
	AvgCostBasis  decimal.Decimal // base units per token unit
	TotalInvested decimal.Decimal // base units still at risk
	RealizedPnL   decimal.Decimal // reporting only
	UpdatedAt     time.Time
}

// NewPosition returns an empty position for mint.
func NewPosition(mint string, decimals int32) *Position {
	return &Position{
		Mint:     mint,
		Decimals: decimals,
	}
}

// IsOpen reports whether the position holds a positive quantity.
func (p *Position) IsOpen() bool {
	return p.TotalQuantity.IsPositive()
}

// IsBase reports whether the position tracks the base currency.
func (p *Position) IsBase() bool {
	return p.Mint == BaseMint
}

// Close zeroes quantity and cost basis. Realized PnL is kept.
func (p *Position) Close() {
	p.TotalQuantity = decimal.Zero
	p.AvgCostBasis = decimal.Zero
	p.TotalInvested = decimal.Zero
}

// Clone returns a copy of the position.
func (p *Position) Clone() *Position {
	c := *p
	return &c
}
