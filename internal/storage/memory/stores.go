package memory

import "solana-pnl-bot/internal/storage"

// NewStores returns a full set of empty in-memory stores.
func NewStores() *storage.Stores {
	return &storage.Stores{
		Ledger:    NewLedgerStore(),
		Rules:     NewRuleStore(),
		Trades:    NewTradeRecordStore(),
		Cursors:   NewSyncCursorStore(),
		Snapshots: NewSnapshotStore(),
		Close:     func() {},
	}
}
