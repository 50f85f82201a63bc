package memory

import (
	"context"
	"sync"

	"solana-pnl-bot/internal/domain"
	"solana-pnl-bot/internal/storage"
)

// SyncCursorStore is an in-memory implementation of storage.SyncCursorStore.
type SyncCursorStore struct {
	mu      sync.RWMutex
	cursors map[string]domain.SyncCursor
}

// NewSyncCursorStore creates a new in-memory sync cursor store.
func NewSyncCursorStore() *SyncCursorStore {
	return &SyncCursorStore{
		cursors: make(map[string]domain.SyncCursor),
	}
}

// GetCursor returns the cursor for wallet.
func (s *SyncCursorStore) GetCursor(_ context.Context, wallet string) (*domain.SyncCursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.cursors[wallet]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &c, nil
}

// SetCursor saves the cursor.
func (s *SyncCursorStore) SetCursor(_ context.Context, c *domain.SyncCursor) error {
	if c == nil || c.Wallet == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cursors[c.Wallet] = *c
	return nil
}

// DeleteCursor forgets the cursor for wallet.
func (s *SyncCursorStore) DeleteCursor(_ context.Context, wallet string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.cursors, wallet)
	return nil
}

var _ storage.SyncCursorStore = (*SyncCursorStore)(nil)
