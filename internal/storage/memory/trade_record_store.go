package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"solana-pnl-bot/internal/domain"
	"solana-pnl-bot/internal/storage"
)

// TradeRecordStore is an in-memory implementation of storage.TradeRecordStore.
type TradeRecordStore struct {
	mu   sync.RWMutex
	data []*domain.TradeRecord
	ids  map[string]bool
}

// NewTradeRecordStore creates a new in-memory trade record store.
func NewTradeRecordStore() *TradeRecordStore {
	return &TradeRecordStore{
		data: make([]*domain.TradeRecord, 0),
		ids:  make(map[string]bool),
	}
}

// AppendTrade adds a new record. Returns ErrDuplicateKey if the id exists.
func (s *TradeRecordStore) AppendTrade(_ context.Context, r *domain.TradeRecord) error {
	if r == nil || r.ID == "" || r.Mint == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ids[r.ID] {
		return storage.ErrDuplicateKey
	}

	copy := *r
	s.data = append(s.data, &copy)
	s.ids[r.ID] = true
	return nil
}

// ListTrades returns all records ordered by executed_at ASC.
func (s *TradeRecordStore) ListTrades(_ context.Context) ([]*domain.TradeRecord, error) {
	return s.filter(func(*domain.TradeRecord) bool { return true }), nil
}

// ListTradesByMint returns records for one mint ordered by executed_at ASC.
func (s *TradeRecordStore) ListTradesByMint(_ context.Context, mint string) ([]*domain.TradeRecord, error) {
	return s.filter(func(r *domain.TradeRecord) bool { return r.Mint == mint }), nil
}

// ListTradesSince returns records with executed_at >= since.
func (s *TradeRecordStore) ListTradesSince(_ context.Context, since time.Time) ([]*domain.TradeRecord, error) {
	return s.filter(func(r *domain.TradeRecord) bool { return !r.ExecutedAt.Before(since) }), nil
}

// CountLiveTradesSince counts non-dry-run records with executed_at >= since.
func (s *TradeRecordStore) CountLiveTradesSince(_ context.Context, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, r := range s.data {
		if !r.DryRun && !r.ExecutedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *TradeRecordStore) filter(keep func(*domain.TradeRecord) bool) []*domain.TradeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TradeRecord
	for _, r := range s.data {
		if keep(r) {
			copy := *r
			result = append(result, &copy)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].ExecutedAt.Before(result[j].ExecutedAt)
	})
	return result
}

var _ storage.TradeRecordStore = (*TradeRecordStore)(nil)
