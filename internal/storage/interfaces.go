package storage

import (
	"context"
	"time"

	"solana-pnl-bot/internal/domain"
)

// LedgerEventStore provides access to ledger_events storage.
type LedgerEventStore interface {
	// InsertEvent adds a new event. Returns ErrDuplicateKey if (signature, mint) exists.
	InsertEvent(ctx context.Context, e *domain.LedgerEvent) error

	// HasEvent reports whether (signature, mint) has been stored.
	HasEvent(ctx context.Context, signature, mint string) (bool, error)

	// ListEvents returns all events in insertion order.
	ListEvents(ctx context.Context) ([]*domain.LedgerEvent, error)

	// ListEventsByMint returns events for one mint in insertion order.
	ListEventsByMint(ctx context.Context, mint string) ([]*domain.LedgerEvent, error)
}

// PositionStore provides access to positions storage. One row per mint.
type PositionStore interface {
	// GetPosition returns the position for mint. Returns ErrNotFound if not exists.
	GetPosition(ctx context.Context, mint string) (*domain.Position, error)

	// UpsertPosition inserts or replaces the position row for p.Mint.
	UpsertPosition(ctx context.Context, p *domain.Position) error

	// ListPositions returns all positions ordered by mint.
	ListPositions(ctx context.Context) ([]*domain.Position, error)

	// ReplacePositions atomically removes every position row and writes positions.
	ReplacePositions(ctx context.Context, positions []*domain.Position) error
}

// LedgerStore combines events and positions so both can be written as one unit.
type LedgerStore interface {
	LedgerEventStore
	PositionStore

	// ApplyEvent inserts e and upserts p atomically.
	// Returns ErrDuplicateKey, writing nothing, if (e.Signature, e.Mint) exists.
	ApplyEvent(ctx context.Context, e *domain.LedgerEvent, p *domain.Position) error
}

// RuleStore provides access to trading_rules storage. Rules are never deleted.
type RuleStore interface {
	// UpsertRule inserts or replaces the rule keyed by (mint, strategy).
	UpsertRule(ctx context.Context, r *domain.TradingRule) error

	// GetRule returns the rule for (mint, strategy). Empty mint is the default rule.
	// Returns ErrNotFound if not exists.
	GetRule(ctx context.Context, mint, strategy string) (*domain.TradingRule, error)

	// ListRules returns all rules, enabled or not, ordered by mint then strategy.
	ListRules(ctx context.Context) ([]*domain.TradingRule, error)

	// SetRuleEnabled toggles a rule. Returns ErrNotFound if not exists.
	SetRuleEnabled(ctx context.Context, mint, strategy string, enabled bool) error
}

// TradeRecordStore provides access to trade_history storage. Append-only.
type TradeRecordStore interface {
	// AppendTrade adds a new record. Returns ErrDuplicateKey if the id exists.
	AppendTrade(ctx context.Context, r *domain.TradeRecord) error

	// ListTrades returns all records ordered by executed_at ASC.
	ListTrades(ctx context.Context) ([]*domain.TradeRecord, error)

	// ListTradesByMint returns records for one mint ordered by executed_at ASC.
	ListTradesByMint(ctx context.Context, mint string) ([]*domain.TradeRecord, error)

	// ListTradesSince returns records with executed_at >= since, ordered ASC.
	ListTradesSince(ctx context.Context, since time.Time) ([]*domain.TradeRecord, error)

	// CountLiveTradesSince counts non-dry-run records with executed_at >= since.
	CountLiveTradesSince(ctx context.Context, since time.Time) (int, error)
}

// SyncCursorStore persists incremental sync progress per wallet.
type SyncCursorStore interface {
	// GetCursor returns the cursor for wallet. Returns ErrNotFound if none saved yet.
	GetCursor(ctx context.Context, wallet string) (*domain.SyncCursor, error)

	// SetCursor saves the cursor, replacing any previous one.
	SetCursor(ctx context.Context, c *domain.SyncCursor) error

	// DeleteCursor forgets the cursor so the next sync starts from the full history.
	DeleteCursor(ctx context.Context, wallet string) error
}

// SnapshotStore provides access to the valuation time series.
type SnapshotStore interface {
	// InsertSnapshots appends a batch of snapshots.
	InsertSnapshots(ctx context.Context, snaps []*domain.ValuationSnapshot) error

	// GetSnapshots returns snapshots for mint within [start, end], ordered by timestamp ASC.
	GetSnapshots(ctx context.Context, mint string, start, end time.Time) ([]*domain.ValuationSnapshot, error)
}

// Stores bundles every store the bot needs.
type Stores struct {
	Ledger    LedgerStore
	Rules     RuleStore
	Trades    TradeRecordStore
	Cursors   SyncCursorStore
	Snapshots SnapshotStore
	Close     func()
}
