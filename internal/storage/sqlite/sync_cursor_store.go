package sqlite

import (
	"context"
	"fmt"

	"solana-pnl-bot/internal/domain"
	"solana-pnl-bot/internal/storage"
)

// SyncCursorStore implements storage.SyncCursorStore using SQLite.
type SyncCursorStore struct {
	db *DB
}

// NewSyncCursorStore creates a new SyncCursorStore.
func NewSyncCursorStore(db *DB) *SyncCursorStore {
	return &SyncCursorStore{db: db}
}

// Compile-time interface check.
var _ storage.SyncCursorStore = (*SyncCursorStore)(nil)

// GetCursor returns the cursor for wallet. Returns ErrNotFound if none saved yet.
func (s *SyncCursorStore) GetCursor(ctx context.Context, wallet string) (*domain.SyncCursor, error) {
	var (
		c         domain.SyncCursor
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT wallet, signature, slot, updated_at FROM sync_cursors WHERE wallet = ?`, wallet,
	).Scan(&c.Wallet, &c.Signature, &c.Slot, &updatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get cursor: %w", err)
	}
	c.UpdatedAt = fromMillis(updatedAt)
	return &c, nil
}

// SetCursor saves the cursor.
func (s *SyncCursorStore) SetCursor(ctx context.Context, c *domain.SyncCursor) error {
	if c == nil || c.Wallet == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_cursors (wallet, signature, slot, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(wallet) DO UPDATE SET
			signature = excluded.signature,
			slot = excluded.slot,
			updated_at = excluded.updated_at`,
		c.Wallet, c.Signature, c.Slot, toMillis(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("set cursor: %w", err)
	}
	return nil
}

// DeleteCursor forgets the cursor for wallet.
func (s *SyncCursorStore) DeleteCursor(ctx context.Context, wallet string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sync_cursors WHERE wallet = ?`, wallet); err != nil {
		return fmt.Errorf("delete cursor: %w", err)
	}
	return nil
}
