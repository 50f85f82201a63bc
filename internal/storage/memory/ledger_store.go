package memory

import (
	"context"
	"sort"
	"sync"

	"solana-pnl-bot/internal/domain"
	"solana-pnl-bot/internal/storage"
)

// ledgerEventKey is the composite key for ledger event deduplication.
type ledgerEventKey struct {
	Signature string
	Mint      string
}

// LedgerStore is an in-memory implementation of storage.LedgerStore.
type LedgerStore struct {
	mu        sync.RWMutex
	events    []*domain.LedgerEvent
	keys      map[ledgerEventKey]bool
	positions map[string]*domain.Position
}

// NewLedgerStore creates a new in-memory ledger store.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		events:    make([]*domain.LedgerEvent, 0),
		keys:      make(map[ledgerEventKey]bool),
		positions: make(map[string]*domain.Position),
	}
}

// InsertEvent adds a new event. Returns ErrDuplicateKey if (signature, mint) exists.
func (s *LedgerStore) InsertEvent(_ context.Context, e *domain.LedgerEvent) error {
	if e == nil || e.Signature == "" || e.Mint == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertLocked(e)
}

func (s *LedgerStore) insertLocked(e *domain.LedgerEvent) error {
	key := ledgerEventKey{Signature: e.Signature, Mint: e.Mint}
	if s.keys[key] {
		return storage.ErrDuplicateKey
	}

	copy := *e
	s.events = append(s.events, &copy)
	s.keys[key] = true
	return nil
}

// HasEvent reports whether (signature, mint) has been stored.
func (s *LedgerStore) HasEvent(_ context.Context, signature, mint string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.keys[ledgerEventKey{Signature: signature, Mint: mint}], nil
}

// ListEvents returns all events in insertion order.
func (s *LedgerStore) ListEvents(_ context.Context) ([]*domain.LedgerEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.LedgerEvent, 0, len(s.events))
	for _, e := range s.events {
		copy := *e
		result = append(result, &copy)
	}
	return result, nil
}

// ListEventsByMint returns events for one mint in insertion order.
func (s *LedgerStore) ListEventsByMint(_ context.Context, mint string) ([]*domain.LedgerEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.LedgerEvent
	for _, e := range s.events {
		if e.Mint == mint {
			copy := *e
			result = append(result, &copy)
		}
	}
	return result, nil
}

// GetPosition returns the position for mint. Returns ErrNotFound if not exists.
func (s *LedgerStore) GetPosition(_ context.Context, mint string) (*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[mint]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return p.Clone(), nil
}

// UpsertPosition inserts or replaces the position row for p.Mint.
func (s *LedgerStore) UpsertPosition(_ context.Context, p *domain.Position) error {
	if p == nil || p.Mint == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.positions[p.Mint] = p.Clone()
	return nil
}

// ListPositions returns all positions ordered by mint.
func (s *LedgerStore) ListPositions(_ context.Context) ([]*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Position, 0, len(s.positions))
	for _, p := range s.positions {
		result = append(result, p.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Mint < result[j].Mint
	})
	return result, nil
}

// ReplacePositions swaps in positions under one lock.
func (s *LedgerStore) ReplacePositions(_ context.Context, positions []*domain.Position) error {
	next := make(map[string]*domain.Position, len(positions))
	for _, p := range positions {
		if p == nil || p.Mint == "" {
			return storage.ErrInvalidInput
		}
		next[p.Mint] = p.Clone()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.positions = next
	return nil
}

// ApplyEvent inserts e and upserts p under one lock.
func (s *LedgerStore) ApplyEvent(_ context.Context, e *domain.LedgerEvent, p *domain.Position) error {
	if e == nil || p == nil || e.Signature == "" || e.Mint == "" || p.Mint == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.insertLocked(e); err != nil {
		return err
	}
	s.positions[p.Mint] = p.Clone()
	return nil
}

var _ storage.LedgerStore = (*LedgerStore)(nil)
