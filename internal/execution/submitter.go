package execution

import (
	"context"
	"encoding/base64"
	"fmt"

	bin "github.com/gagliardetto/binary"
	solanago "github.com/gagliardetto/solana-go"
	solrpc "github.com/gagliardetto/solana-go/rpc"

	"solana-pnl-bot/internal/jupiter"
)

// SwapBuilder builds the unsigned swap transaction for a quote.
type SwapBuilder interface {
	BuildSwap(ctx context.Context, quote *jupiter.Quote, user string) (*jupiter.SwapTransaction, error)
}

// TransactionSender broadcasts a signed transaction.
type TransactionSender interface {
	SendTransactionWithOpts(ctx context.Context, tx *solanago.Transaction, opts solrpc.TransactionOpts) (solanago.Signature, error)
}

// SwapSubmitter builds swaps through the aggregator, signs them with the
// wallet key and sends them to the cluster.
type SwapSubmitter struct {
	builder       SwapBuilder
	sender        TransactionSender
	signer        solanago.PrivateKey
	skipPreflight bool
}

// NewSwapSubmitter creates a SwapSubmitter. With preflight enabled the node
// simulates the swap first, so slippage failures surface before broadcast.
func NewSwapSubmitter(builder SwapBuilder, sender TransactionSender, signer solanago.PrivateKey, skipPreflight bool) *SwapSubmitter {
	return &SwapSubmitter{
		builder:       builder,
		sender:        sender,
		signer:        signer,
		skipPreflight: skipPreflight,
	}
}

// NewRPCSender returns a solana-go client for endpoint.
func NewRPCSender(endpoint string) *solrpc.Client {
	return solrpc.New(endpoint)
}

// LoadSigner reads a solana-keygen JSON keypair file.
func LoadSigner(path string) (solanago.PrivateKey, error) {
	key, err := solanago.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("load keypair %s: %w", path, err)
	}
	return key, nil
}

// Wallet returns the signer's public key.
func (s *SwapSubmitter) Wallet() string {
	return s.signer.PublicKey().String()
}

// Submit implements Submitter.
func (s *SwapSubmitter) Submit(ctx context.Context, quote *jupiter.Quote) (string, error) {
	swap, err := s.builder.BuildSwap(ctx, quote, s.Wallet())
	if err != nil {
		return "", fmt.Errorf("build swap: %w", err)
	}

	raw, err := base64.StdEncoding.DecodeString(swap.Transaction)
	if err != nil {
		return "", fmt.Errorf("%w: decode swap transaction: %v", ErrExecutionFailed, err)
	}
	tx, err := solanago.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return "", fmt.Errorf("%w: parse swap transaction: %v", ErrExecutionFailed, err)
	}

	// The builder leaves placeholder signatures for the user.
	tx.Signatures = tx.Signatures[:0]
	pub := s.signer.PublicKey()
	if _, err := tx.Sign(func(key solanago.PublicKey) *solanago.PrivateKey {
		if pub.Equals(key) {
			return &s.signer
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("%w: sign swap transaction: %v", ErrExecutionFailed, err)
	}

	sig, err := s.sender.SendTransactionWithOpts(ctx, tx, solrpc.TransactionOpts{
		SkipPreflight:       s.skipPreflight,
		PreflightCommitment: solrpc.CommitmentConfirmed,
	})
	if err != nil {
		return "", classify(fmt.Errorf("send swap transaction: %w", err))
	}
	return sig.String(), nil
}
