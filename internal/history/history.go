// Package history summarizes executed trades.
package history

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"solana-pnl-bot/internal/domain"
	"solana-pnl-bot/internal/storage"
)

var hundred = decimal.NewFromInt(100)

// TriggerStats aggregates trades of one trigger.
type TriggerStats struct {
	Trigger      domain.Trigger
	Count        int
	RealizedBase decimal.Decimal
}

// Summary aggregates a set of trade records. Win/loss and realized figures
// cover live trades only.
type Summary struct {
	Total        int
	Live         int
	DryRun       int
	Wins         int
	Losses       int
	WinRate      decimal.Decimal // percent of live trades with positive PnL
	SoldBase     decimal.Decimal // base received by live trades
	RealizedBase decimal.Decimal // estimated realized PnL of live trades
	AvgPnLPct    decimal.Decimal // mean signal-time PnL percent of live trades
	ByTrigger    []TriggerStats  // ordered by trigger
	First        time.Time
	Last         time.Time
}

// RealizedEstimate returns the realized PnL of r in base units. The cost of
// the sold quantity is recovered from the signal-time PnL percent, and the
// proceeds are what the swap actually returned.
func RealizedEstimate(r *domain.TradeRecord) decimal.Decimal {
	factor := hundred.Add(r.PnLPct)
	if !factor.IsPositive() {
		return r.QuantityReceived
	}
	cost := r.QuantityReceived.Mul(hundred).Div(factor)
	return r.QuantityReceived.Sub(cost)
}

// Summarize aggregates records.
func Summarize(records []*domain.TradeRecord) *Summary {
	s := &Summary{}
	byTrigger := make(map[domain.Trigger]*TriggerStats)
	pctSum := decimal.Zero

	for _, r := range records {
		s.Total++
		if s.First.IsZero() || r.ExecutedAt.Before(s.First) {
			s.First = r.ExecutedAt
		}
		if r.ExecutedAt.After(s.Last) {
			s.Last = r.ExecutedAt
		}
		if r.DryRun {
			s.DryRun++
			continue
		}

		s.Live++
		if r.PnLPct.IsPositive() {
			s.Wins++
		} else {
			s.Losses++
		}
		realized := RealizedEstimate(r)
		s.RealizedBase = s.RealizedBase.Add(realized)
		s.SoldBase = s.SoldBase.Add(r.QuantityReceived)
		pctSum = pctSum.Add(r.PnLPct)

		ts, ok := byTrigger[r.Trigger]
		if !ok {
			ts = &TriggerStats{Trigger: r.Trigger}
			byTrigger[r.Trigger] = ts
		}
		ts.Count++
		ts.RealizedBase = ts.RealizedBase.Add(realized)
	}

	if s.Live > 0 {
		live := decimal.NewFromInt(int64(s.Live))
		s.WinRate = decimal.NewFromInt(int64(s.Wins)).Mul(hundred).Div(live)
		s.AvgPnLPct = pctSum.Div(live)
	}
	for _, ts := range byTrigger {
		s.ByTrigger = append(s.ByTrigger, *ts)
	}
	sort.Slice(s.ByTrigger, func(i, j int) bool {
		return s.ByTrigger[i].Trigger < s.ByTrigger[j].Trigger
	})
	return s
}

// Service reads trade history.
type Service struct {
	trades storage.TradeRecordStore
}

// NewService creates a Service.
func NewService(trades storage.TradeRecordStore) *Service {
	return &Service{trades: trades}
}

// Summary aggregates trades executed at or after since. A zero since covers
// the whole history.
func (s *Service) Summary(ctx context.Context, since time.Time) (*Summary, error) {
	var (
		records []*domain.TradeRecord
		err     error
	)
	if since.IsZero() {
		records, err = s.trades.ListTrades(ctx)
	} else {
		records, err = s.trades.ListTradesSince(ctx, since)
	}
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	return Summarize(records), nil
}

// Recent returns the last n trades, newest first.
func (s *Service) Recent(ctx context.Context, n int) ([]*domain.TradeRecord, error) {
	records, err := s.trades.ListTrades(ctx)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	if n > 0 && len(records) > n {
		records = records[len(records)-n:]
	}
	out := make([]*domain.TradeRecord, len(records))
	for i, r := range records {
		out[len(records)-1-i] = r
	}
	return out, nil
}

// Mint returns every trade of mint, oldest first.
func (s *Service) Mint(ctx context.Context, mint string) ([]*domain.TradeRecord, error) {
	return s.trades.ListTradesByMint(ctx, mint)
}
