package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeRecord is an executed (or dry-run) exit. Append-only.
type TradeRecord struct {
	ID               string // deterministic hash
	Mint             string
	Strategy         string
	Trigger          Trigger
	PnLPct           decimal.Decimal // at signal time
	PnLBase          decimal.Decimal // at signal time
	QuantitySold     decimal.Decimal // token units
	QuantityReceived decimal.Decimal // base units
	TxSignature      string          // empty for dry runs
	DryRun           bool
	SlippageBps      int // tolerance of the successful attempt
	Attempts         int // quote/submit cycles used
	ExecutedAt       time.Time
}

// TradeExecuted is emitted after a trade has been recorded.
type TradeExecuted struct {
	Record *TradeRecord
}
