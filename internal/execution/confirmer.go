package execution

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"solana-pnl-bot/internal/solana"
)

// DefaultPollInterval is the status polling period of StatusConfirmer.
const DefaultPollInterval = 700 * time.Millisecond

// StatusConfirmer polls getSignatureStatuses until a signature reaches
// confirmed commitment or fails.
type StatusConfirmer struct {
	rpc      solana.RPCClient
	interval time.Duration
	logger   *zap.Logger
}

// NewStatusConfirmer creates a StatusConfirmer.
func NewStatusConfirmer(rpc solana.RPCClient, interval time.Duration, logger *zap.Logger) *StatusConfirmer {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusConfirmer{rpc: rpc, interval: interval, logger: logger}
}

// Confirm implements Confirmer. Lookup errors are retried until ctx ends.
func (c *StatusConfirmer) Confirm(ctx context.Context, signature string) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			statuses, err := c.rpc.GetSignatureStatuses(ctx, []string{signature})
			if err != nil {
				c.logger.Debug("signature status lookup failed", zap.String("signature", signature), zap.Error(err))
				continue
			}
			if len(statuses) == 0 || statuses[0] == nil {
				continue
			}
			status := statuses[0]
			if status.Err != nil {
				return fmt.Errorf("%s: %w", signature, classifyStatusErr(status.Err))
			}
			if status.Confirmed() {
				return nil
			}
		}
	}
}
