package loop

import (
	"context"
	"fmt"
	"time"

	"solana-pnl-bot/internal/storage"
)

// DefaultGovernorWindow is the rolling window of the trade cap.
const DefaultGovernorWindow = time.Hour

// Governor caps live trades per rolling window using trade history
// timestamps. Dry-run records do not count.
type Governor struct {
	trades storage.TradeRecordStore
	max    int
	window time.Duration
	now    func() time.Time
}

// NewGovernor allows at most max live trades per window.
func NewGovernor(trades storage.TradeRecordStore, max int, window time.Duration, now func() time.Time) *Governor {
	if window <= 0 {
		window = DefaultGovernorWindow
	}
	if now == nil {
		now = time.Now
	}
	return &Governor{trades: trades, max: max, window: window, now: now}
}

// Allow reports whether another live trade fits in the window, together
// with the number of live trades already in it.
func (g *Governor) Allow(ctx context.Context) (bool, int, error) {
	n, err := g.Recent(ctx)
	if err != nil {
		return false, 0, err
	}
	return n < g.max, n, nil
}

// Recent counts live trades inside the window.
func (g *Governor) Recent(ctx context.Context) (int, error) {
	n, err := g.trades.CountLiveTradesSince(ctx, g.now().Add(-g.window))
	if err != nil {
		return 0, fmt.Errorf("count recent trades: %w", err)
	}
	return n, nil
}
