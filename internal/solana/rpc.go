package solana

import "context"

// Well-known program ids.
const (
	SystemProgramID          = "11111111111111111111111111111111"
	TokenProgramID           = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	Token2022ProgramID       = "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb"
	AssociatedTokenProgramID = "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL"
)

// RPCClient defines the Solana JSON-RPC calls the bot depends on.
type RPCClient interface {
	// GetSignaturesForAddress retrieves signatures for an address, newest first.
	GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error)

	// GetParsedTransaction retrieves a jsonParsed transaction. Returns nil, nil if not found.
	GetParsedTransaction(ctx context.Context, signature string) (*ParsedTransaction, error)

	// GetBalance returns the lamport balance of an address.
	GetBalance(ctx context.Context, address string) (uint64, error)

	// GetTokenAccountsByOwner returns every SPL token account owned by owner.
	GetTokenAccountsByOwner(ctx context.Context, owner string) ([]TokenAccount, error)

	// GetTokenAccount reads one token account. Returns nil, nil if the account does not exist.
	GetTokenAccount(ctx context.Context, address string) (*TokenAccount, error)

	// GetSignatureStatuses returns one entry per signature; nil entries are unknown to the node.
	GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error)
}
