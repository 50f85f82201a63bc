package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"solana-pnl-bot/internal/domain"
	"solana-pnl-bot/internal/storage"
)

// SnapshotStore is an in-memory implementation of storage.SnapshotStore.
type SnapshotStore struct {
	mu   sync.RWMutex
	data map[string][]*domain.ValuationSnapshot // keyed by mint
}

// NewSnapshotStore creates a new in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		data: make(map[string][]*domain.ValuationSnapshot),
	}
}

// InsertSnapshots appends a batch of snapshots.
func (s *SnapshotStore) InsertSnapshots(_ context.Context, snaps []*domain.ValuationSnapshot) error {
	for _, snap := range snaps {
		if snap == nil || snap.Mint == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, snap := range snaps {
		copy := *snap
		s.data[snap.Mint] = append(s.data[snap.Mint], &copy)
	}
	return nil
}

// GetSnapshots returns snapshots for mint within [start, end] ordered by timestamp ASC.
func (s *SnapshotStore) GetSnapshots(_ context.Context, mint string, start, end time.Time) ([]*domain.ValuationSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ValuationSnapshot
	for _, snap := range s.data[mint] {
		if snap.Timestamp.Before(start) || snap.Timestamp.After(end) {
			continue
		}
		copy := *snap
		result = append(result, &copy)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}

var _ storage.SnapshotStore = (*SnapshotStore)(nil)
