package postgres

import (
	"solana-pnl-bot/internal/storage"
)

// NewStores wires every PostgreSQL store over one pool.
// Snapshots are left nil; they live in ClickHouse.
func NewStores(pool *Pool) *storage.Stores {
	return &storage.Stores{
		Ledger:  NewLedgerStore(pool),
		Rules:   NewRuleStore(pool),
		Trades:  NewTradeRecordStore(pool),
		Cursors: NewSyncCursorStore(pool),
		Close:   pool.Close,
	}
}
