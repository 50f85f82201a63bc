package postgres

import (
	"context"
	"fmt"
	"time"

	"solana-pnl-bot/internal/domain"
	"solana-pnl-bot/internal/storage"
)

// SyncCursorStore implements storage.SyncCursorStore using PostgreSQL.
type SyncCursorStore struct {
	pool *Pool
}

// NewSyncCursorStore creates a new SyncCursorStore.
func NewSyncCursorStore(pool *Pool) *SyncCursorStore {
	return &SyncCursorStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SyncCursorStore = (*SyncCursorStore)(nil)

// GetCursor returns the cursor for wallet. Returns ErrNotFound if none saved yet.
func (s *SyncCursorStore) GetCursor(ctx context.Context, wallet string) (*domain.SyncCursor, error) {
	var c domain.SyncCursor
	err := s.pool.QueryRow(ctx, `
		SELECT wallet, signature, slot, updated_at FROM sync_cursors WHERE wallet = $1
	`, wallet).Scan(&c.Wallet, &c.Signature, &c.Slot, &c.UpdatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get cursor: %w", err)
	}
	return &c, nil
}

// SetCursor saves the cursor. Uses upsert to handle initial insert and subsequent updates.
func (s *SyncCursorStore) SetCursor(ctx context.Context, c *domain.SyncCursor) error {
	if c == nil || c.Wallet == "" {
		return storage.ErrInvalidInput
	}

	updatedAt := c.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO sync_cursors (wallet, signature, slot, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (wallet) DO UPDATE
		SET signature = EXCLUDED.signature,
		    slot = EXCLUDED.slot,
		    updated_at = EXCLUDED.updated_at
	`, c.Wallet, c.Signature, c.Slot, updatedAt)
	if err != nil {
		return fmt.Errorf("set cursor: %w", err)
	}
	return nil
}

// DeleteCursor forgets the cursor for wallet.
func (s *SyncCursorStore) DeleteCursor(ctx context.Context, wallet string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM sync_cursors WHERE wallet = $1`, wallet); err != nil {
		return fmt.Errorf("delete cursor: %w", err)
	}
	return nil
}
