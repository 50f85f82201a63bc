package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"solana-pnl-bot/internal/domain"
	"solana-pnl-bot/internal/storage"
)

// LedgerStore implements storage.LedgerStore using SQLite.
type LedgerStore struct {
	db *DB
}

// NewLedgerStore creates a new LedgerStore.
func NewLedgerStore(db *DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// Compile-time interface check.
var _ storage.LedgerStore = (*LedgerStore)(nil)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertEvent(ctx context.Context, db execer, e *domain.LedgerEvent) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO ledger_events (
			signature, mint, slot, block_time, kind, decimals,
			counterparty_mint, counterparty_quantity, quantity, fee_base, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Signature, e.Mint, e.Slot, e.BlockTime, string(e.Kind), e.Decimals,
		e.CounterpartyMint, e.CounterpartyQuantity.String(), e.Quantity.String(),
		e.FeeInBaseUnits.String(), time.Now().UnixMilli(),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert ledger event: %w", err)
	}
	return nil
}

func upsertPosition(ctx context.Context, db execer, p *domain.Position) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO positions (
			mint, symbol, decimals, total_quantity, avg_cost_basis, total_invested, realized_pnl, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(mint) DO UPDATE SET
			symbol = excluded.symbol,
			decimals = excluded.decimals,
			total_quantity = excluded.total_quantity,
			avg_cost_basis = excluded.avg_cost_basis,
			total_invested = excluded.total_invested,
			realized_pnl = excluded.realized_pnl,
			updated_at = excluded.updated_at`,
		p.Mint, p.Symbol, p.Decimals,
		p.TotalQuantity.String(), p.AvgCostBasis.String(), p.TotalInvested.String(), p.RealizedPnL.String(),
		toMillis(p.UpdatedAt),
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
	return insertEvent(ctx, s.db, e)
}

// HasEvent reports whether (signature, mint) has been stored.
func (s *LedgerStore) HasEvent(ctx context.Context, signature, mint string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM ledger_events WHERE signature = ? AND mint = ?)`,
		signature, mint,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check ledger event: %w", err)
	}
	return exists, nil
}

const selectEventSQL = `
	SELECT signature, mint, slot, block_time, kind, decimals, counterparty_mint,
	       counterparty_quantity, quantity, fee_base
	FROM ledger_events`

// ListEvents returns all events in insertion order.
func (s *LedgerStore) ListEvents(ctx context.Context) ([]*domain.LedgerEvent, error) {
	return s.queryEvents(ctx, selectEventSQL+` ORDER BY id ASC`)
}

// ListEventsByMint returns events for one mint in insertion order.
func (s *LedgerStore) ListEventsByMint(ctx context.Context, mint string) ([]*domain.LedgerEvent, error) {
	return s.queryEvents(ctx, selectEventSQL+` WHERE mint = ? ORDER BY id ASC`, mint)
}

func (s *LedgerStore) queryEvents(ctx context.Context, query string, args ...any) ([]*domain.LedgerEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ledger events: %w", err)
	}
	defer rows.Close()

	var events []*domain.LedgerEvent
	for rows.Next() {
		var (
			e    domain.LedgerEvent
			kind string
		)
		if err := rows.Scan(
			&e.Signature, &e.Mint, &e.Slot, &e.BlockTime, &kind, &e.Decimals, &e.CounterpartyMint,
			&e.CounterpartyQuantity, &e.Quantity, &e.FeeInBaseUnits,
		); err != nil {
			return nil, fmt.Errorf("scan ledger event: %w", err)
		}
		e.Kind = domain.EventKind(kind)
		events = append(events, &e)
	}
	return events, rows.Err()
}

const selectPositionSQL = `
	SELECT mint, symbol, decimals, total_quantity, avg_cost_basis, total_invested, realized_pnl, updated_at
	FROM positions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (*domain.Position, error) {
	var (
		p         domain.Position
		updatedAt int64
	)
	if err := row.Scan(
		&p.Mint, &p.Symbol, &p.Decimals,
		&p.TotalQuantity, &p.AvgCostBasis, &p.TotalInvested, &p.RealizedPnL, &updatedAt,
	); err != nil {
		return nil, err
	}
	p.UpdatedAt = fromMillis(updatedAt)
	return &p, nil
}

// GetPosition returns the position for mint. Returns ErrNotFound if not exists.
func (s *LedgerStore) GetPosition(ctx context.Context, mint string) (*domain.Position, error) {
	p, err := scanPosition(s.db.QueryRowContext(ctx, selectPositionSQL+` WHERE mint = ?`, mint))
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
	return upsertPosition(ctx, s.db, p)
}

// ListPositions returns all positions ordered by mint.
func (s *LedgerStore) ListPositions(ctx context.Context) ([]*domain.Position, error) {
	rows, err := s.db.QueryContext(ctx, selectPositionSQL+` ORDER BY mint ASC`)
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM positions`); err != nil {
		return fmt.Errorf("clear positions: %w", err)
	}
	for _, p := range positions {
		if err := upsertPosition(ctx, tx, p); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ApplyEvent inserts e and upserts p in one transaction.
func (s *LedgerStore) ApplyEvent(ctx context.Context, e *domain.LedgerEvent, p *domain.Position) error {
	if e == nil || p == nil || e.Signature == "" || e.Mint == "" || p.Mint == "" {
		return storage.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := insertEvent(ctx, tx, e); err != nil {
		return err
	}
	if err := upsertPosition(ctx, tx, p); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
