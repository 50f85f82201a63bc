package sqlite

import "solana-pnl-bot/internal/storage"

// NewStores wires every SQLite store over one handle.
func NewStores(db *DB) *storage.Stores {
	return &storage.Stores{
		Ledger:  NewLedgerStore(db),
		Rules:   NewRuleStore(db),
		Trades:  NewTradeRecordStore(db),
		Cursors: NewSyncCursorStore(db),
		Close:   func() { db.Close() },
	}
}
