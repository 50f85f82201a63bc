package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Valuation is a position marked to a spot price.
type Valuation struct {
	Mint             string
	Quantity         decimal.Decimal
	SpotPrice        *decimal.Decimal // nil when the oracle had no price
	CurrentValue     decimal.Decimal
	TotalInvested    decimal.Decimal
	UnrealizedPnL    decimal.Decimal
	UnrealizedPnLPct decimal.Decimal
	Priced           bool
}

// ValuationSnapshot is one point of the per-position PnL time series.
type ValuationSnapshot struct {
	CycleID          string
	Timestamp        time.Time
	Mint             string
	Quantity         decimal.Decimal
	SpotPrice        decimal.Decimal
	CurrentValue     decimal.Decimal
	TotalInvested    decimal.Decimal
	UnrealizedPnL    decimal.Decimal
	UnrealizedPnLPct decimal.Decimal
}

// SyncCursor marks the newest processed signature for a wallet.
type SyncCursor struct {
	Wallet    string
	Signature string
	Slot      int64
	UpdatedAt time.Time
}
