package domain

import "github.com/shopspring/decimal"

// Base currency identifiers. Wrapped SOL shares the native mint address.
const (
	BaseMint     = "So11111111111111111111111111111111111111112"
	BaseDecimals = 9
	BaseSymbol   = "SOL"
)

// LamportsPerBase is the number of lamports in one base-currency unit.
var LamportsPerBase = decimal.New(1, BaseDecimals)

// EventKind classifies a ledger event.
type EventKind string

const (
	EventBuy         EventKind = "BUY"
	EventSell        EventKind = "SELL"
	EventTransferIn  EventKind = "TRANSFER_IN"
	EventTransferOut EventKind = "TRANSFER_OUT"
)

// String returns the string representation of EventKind.
func (k EventKind) String() string {
	return string(k)
}

// IsValid checks if the kind is a known value.
func (k EventKind) IsValid() bool {
	switch k {
	case EventBuy, EventSell, EventTransferIn, EventTransferOut:
		return true
	}
	return false
}

// Inbound reports whether the event increases the held quantity.
func (k EventKind) Inbound() bool {
	return k == EventBuy || k == EventTransferIn
}

// LedgerEvent is one classified balance change of the tracked wallet.
// Unique on (Signature, Mint). Immutable once stored.
type LedgerEvent struct {
	Signature string    // transaction signature
	Slot      int64     // slot of the transaction
	BlockTime int64     // unix seconds
	Kind      EventKind // BUY | SELL | TRANSFER_IN | TRANSFER_OUT
	Mint      string    // token mint (BaseMint for the native currency)
	Decimals  int32     // mint decimals

	CounterpartyMint     string          // other leg of a swap (empty for transfers)
	CounterpartyQuantity decimal.Decimal // other leg quantity, UI units

	Quantity       decimal.Decimal // absolute quantity, UI units
	FeeInBaseUnits decimal.Decimal // network fee attributed to this event
}

// IsBase reports whether the event moves the base currency.
func (e *LedgerEvent) IsBase() bool {
	return e.Mint == BaseMint
}
