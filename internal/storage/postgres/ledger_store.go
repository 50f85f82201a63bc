package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"solana-pnl-bot/internal/domain"
	"solana-pnl-bot/internal/storage"
)

// LedgerStore implements storage.LedgerStore using PostgreSQL.
// Events live in ledger_events (unique on signature, mint), positions in positions.
type LedgerStore struct {
	pool *Pool
}

// NewLedgerStore creates a new LedgerStore.
func NewLedgerStore(pool *Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Compile-time interface check.
var _ storage.LedgerStore = (*LedgerStore)(nil)

// execer is satisfied by both the pool and a transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const insertEventSQL = `
	INSERT INTO ledger_events (
		signature, mint, slot, block_time, kind, decimals,
		counterparty_mint, counterparty_quantity, quantity, fee_base
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`

func insertEvent(ctx context.Context, db execer, e *domain.LedgerEvent) error {
	_, err := db.Exec(ctx, insertEventSQL,
		e.Signature, e.Mint, e.Slot, e.BlockTime, string(e.Kind), e.Decimals,
		e.CounterpartyMint, num(e.CounterpartyQuantity), num(e.Quantity), num(e.FeeInBaseUnits),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert ledger event: %w", err)
	}
	return nil
}

const upsertPositionSQL = `
	INSERT INTO positions (
		mint, symbol, decimals, total_quantity, avg_cost_basis, total_invested, realized_pnl, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (mint) DO UPDATE
	SET symbol = EXCLUDED.symbol,
	    decimals = EXCLUDED.decimals,
	    total_quantity = EXCLUDED.total_quantity,
	    avg_cost_basis = EXCLUDED.avg_cost_basis,
	    total_invested = EXCLUDED.total_invested,
	    realized_pnl = EXCLUDED.realized_pnl,
	    updated_at = EXCLUDED.updated_at
`

func upsertPosition(ctx context.Context, db execer, p *domain.Position) error {
	updatedAt := p.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	_, err := db.Exec(ctx, upsertPositionSQL,
		p.Mint, p.Symbol, p.Decimals,
		num(p.TotalQuantity), num(p.AvgCostBasis), num(p.TotalInvested), num(p.RealizedPnL),
		updatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}
	return nil
}

// InsertEvent adds a new event. Returns ErrDuplicateKey if (signature, mint) exists.
func (s *LedgerStore) InsertEvent(ctx context.Context, e *domain.LedgerEvent) error {
	if e == nil || e.Signature == "" || e.Mint == "" {
		return storage.ErrInvalidInput
	}
	return insertEvent(ctx, s.pool, e)
}

// HasEvent reports whether (signature, mint) has been stored.
func (s *LedgerStore) HasEvent(ctx context.Context, signature, mint string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM ledger_events WHERE signature = $1 AND mint = $2)
	`, signature, mint).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check ledger event: %w", err)
	}
	return exists, nil
}

const selectEventSQL = `
	SELECT signature, mint, slot, block_time, kind, decimals, counterparty_mint,
	       counterparty_quantity::text, quantity::text, fee_base::text
	FROM ledger_events
`

// ListEvents returns all events in insertion order.
func (s *LedgerStore) ListEvents(ctx context.Context) ([]*domain.LedgerEvent, error) {
	rows, err := s.pool.Query(ctx, selectEventSQL+` ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query ledger events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListEventsByMint returns events for one mint in insertion order.
func (s *LedgerStore) ListEventsByMint(ctx context.Context, mint string) ([]*domain.LedgerEvent, error) {
	rows, err := s.pool.Query(ctx, selectEventSQL+` WHERE mint = $1 ORDER BY id ASC`, mint)
	if err != nil {
		return nil, fmt.Errorf("query ledger events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows pgx.Rows) ([]*domain.LedgerEvent, error) {
	var events []*domain.LedgerEvent
	for rows.Next() {
		var (
			e    domain.LedgerEvent
			kind string
		)
		nums := newDecimalScanner(&e.CounterpartyQuantity, &e.Quantity, &e.FeeInBaseUnits)
		dests := append([]any{
			&e.Signature, &e.Mint, &e.Slot, &e.BlockTime, &kind, &e.Decimals, &e.CounterpartyMint,
		}, nums.dests()...)
		if err := rows.Scan(dests...); err != nil {
			return nil, fmt.Errorf("scan ledger event: %w", err)
		}
		if err := nums.resolve(); err != nil {
			return nil, err
		}
		e.Kind = domain.EventKind(kind)
		events = append(events, &e)
	}
	return events, rows.Err()
}

const selectPositionSQL = `
	SELECT mint, symbol, decimals, total_quantity::text, avg_cost_basis::text,
	       total_invested::text, realized_pnl::text, updated_at
	FROM positions
`

// GetPosition returns the position for mint. Returns ErrNotFound if not exists.
func (s *LedgerStore) GetPosition(ctx context.Context, mint string) (*domain.Position, error) {
	p, err := scanPosition(s.pool.QueryRow(ctx, selectPositionSQL+` WHERE mint = $1`, mint))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get position: %w", err)
	}
	return p, nil
}

// UpsertPosition inserts or replaces the position row for p.Mint.
func (s *LedgerStore) UpsertPosition(ctx context.Context, p *domain.Position) error {
	if p == nil || p.Mint == "" {
		return storage.ErrInvalidInput
	}
	return upsertPosition(ctx, s.pool, p)
}

// ListPositions returns all positions ordered by mint.
func (s *LedgerStore) ListPositions(ctx context.Context) ([]*domain.Position, error) {
	rows, err := s.pool.Query(ctx, selectPositionSQL+` ORDER BY mint ASC`)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	var positions []*domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// ReplacePositions deletes every position row and writes positions in one transaction.
func (s *LedgerStore) ReplacePositions(ctx context.Context, positions []*domain.Position) error {
	for _, p := range positions {
		if p == nil || p.Mint == "" {
			return storage.ErrInvalidInput
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM positions`); err != nil {
		return fmt.Errorf("clear positions: %w", err)
	}
	for _, p := range positions {
		if err := upsertPosition(ctx, tx, p); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ApplyEvent inserts e and upserts p in one transaction.
func (s *LedgerStore) ApplyEvent(ctx context.Context, e *domain.LedgerEvent, p *domain.Position) error {
	if e == nil || p == nil || e.Signature == "" || e.Mint == "" || p.Mint == "" {
		return storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertEvent(ctx, tx, e); err != nil {
		return err
	}
	if err := upsertPosition(ctx, tx, p); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func scanPosition(row pgx.Row) (*domain.Position, error) {
	var p domain.Position
	nums := newDecimalScanner(&p.TotalQuantity, &p.AvgCostBasis, &p.TotalInvested, &p.RealizedPnL)
	dests := []any{&p.Mint, &p.Symbol, &p.Decimals}
	dests = append(dests, nums.dests()...)
	dests = append(dests, &p.UpdatedAt)
	if err := row.Scan(dests...); err != nil {
		return nil, err
	}
	if err := nums.resolve(); err != nil {
		return nil, err
	}
	return &p, nil
}
