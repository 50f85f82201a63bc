package solana

import (
	"context"
	"fmt"
	"strconv"
)

// WalletHoldings reads a wallet's balances from its associated token accounts.
type WalletHoldings struct {
	rpc    RPCClient
	wallet string
}

// NewWalletHoldings creates a WalletHoldings for wallet.
func NewWalletHoldings(rpc RPCClient, wallet string) *WalletHoldings {
	return &WalletHoldings{rpc: rpc, wallet: wallet}
}

// RawBalance returns the raw amount of mint in the wallet's associated token
// account. ok is false when that account does not exist or belongs to someone
// else; the tokens may then sit in a non-associated account.
func (h *WalletHoldings) RawBalance(ctx context.Context, mint string) (uint64, bool, error) {
	ata, err := AssociatedTokenAddress(h.wallet, mint)
	if err != nil {
		return 0, false, err
	}
	acc, err := h.rpc.GetTokenAccount(ctx, ata)
	if err != nil {
		return 0, false, fmt.Errorf("get token account %s: %w", ata, err)
	}
	if acc == nil || acc.Mint != mint || acc.Owner != h.wallet {
		return 0, false, nil
	}
	amount, err := strconv.ParseUint(acc.Amount, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("token account %s amount %q: %w", ata, acc.Amount, err)
	}
	return amount, true, nil
}
