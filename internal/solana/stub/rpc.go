package stub

import (
	"context"
	"errors"
	"sync"

	"solana-pnl-bot/internal/solana"
)

// RPCClient implements solana.RPCClient for testing.
// Signatures are stored newest first, as the node returns them.
type RPCClient struct {
	mu sync.Mutex

	Transactions  map[string]*solana.ParsedTransaction
	Signatures    map[string][]solana.SignatureInfo
	Balances      map[string]uint64
	TokenAccounts map[string][]solana.TokenAccount
	Statuses      map[string]*solana.SignatureStatus

	// TxErrors fails GetParsedTransaction for a signature.
	TxErrors map[string]error
	// TxFailures fails the next n fetches of a signature, then lets them through.
	TxFailures map[string]int
	// Err, when set, fails every call.
	Err error

	Calls map[string]int
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Transactions:  make(map[string]*solana.ParsedTransaction),
		Signatures:    make(map[string][]solana.SignatureInfo),
		Balances:      make(map[string]uint64),
		TokenAccounts: make(map[string][]solana.TokenAccount),
		Statuses:      make(map[string]*solana.SignatureStatus),
		TxErrors:      make(map[string]error),
		TxFailures:    make(map[string]int),
		Calls:         make(map[string]int),
	}
}

var _ solana.RPCClient = (*RPCClient)(nil)

var errTransient = errors.New("429 Too Many Requests")

func (c *RPCClient) enter(method string) error {
	c.Calls[method]++
	return c.Err
}

// CallCount returns how many times method was invoked.
func (c *RPCClient) CallCount(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Calls[method]
}

// GetSignaturesForAddress pages through stored signatures honoring Before, Until and Limit.
func (c *RPCClient) GetSignaturesForAddress(_ context.Context, address string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("getSignaturesForAddress"); err != nil {
		return nil, err
	}

	sigs := c.Signatures[address]
	start := 0
	if opts != nil && opts.Before != "" {
		start = len(sigs)
		for i, s := range sigs {
			if s.Signature == opts.Before {
				start = i + 1
				break
			}
		}
	}

	var out []solana.SignatureInfo
	for _, s := range sigs[start:] {
		if opts != nil && opts.Until != "" && s.Signature == opts.Until {
			break
		}
		out = append(out, s)
		if opts != nil && opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

// GetParsedTransaction returns the stored transaction, or nil if unknown.
func (c *RPCClient) GetParsedTransaction(_ context.Context, signature string) (*solana.ParsedTransaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("getTransaction"); err != nil {
		return nil, err
	}
	if err := c.TxErrors[signature]; err != nil {
		return nil, err
	}
	if c.TxFailures[signature] > 0 {
		c.TxFailures[signature]--
		return nil, errTransient
	}
	return c.Transactions[signature], nil
}

// GetBalance returns the stored lamport balance.
func (c *RPCClient) GetBalance(_ context.Context, address string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("getBalance"); err != nil {
		return 0, err
	}
	return c.Balances[address], nil
}

// GetTokenAccountsByOwner returns the stored token accounts of owner.
func (c *RPCClient) GetTokenAccountsByOwner(_ context.Context, owner string) ([]solana.TokenAccount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("getTokenAccountsByOwner"); err != nil {
		return nil, err
	}
	return append([]solana.TokenAccount(nil), c.TokenAccounts[owner]...), nil
}

// GetTokenAccount finds a stored token account by address.
func (c *RPCClient) GetTokenAccount(_ context.Context, address string) (*solana.TokenAccount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("getAccountInfo"); err != nil {
		return nil, err
	}
	for _, accounts := range c.TokenAccounts {
		for _, a := range accounts {
			if a.Pubkey == address {
				acc := a
				return &acc, nil
			}
		}
	}
	return nil, nil
}

// GetSignatureStatuses returns stored statuses, nil for unknown signatures.
func (c *RPCClient) GetSignatureStatuses(_ context.Context, signatures []string) ([]*solana.SignatureStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("getSignatureStatuses"); err != nil {
		return nil, err
	}
	out := make([]*solana.SignatureStatus, len(signatures))
	for i, sig := range signatures {
		out[i] = c.Statuses[sig]
	}
	return out, nil
}

// AddTransaction stores tx and prepends its signature to the wallet history.
func (c *RPCClient) AddTransaction(wallet string, tx *solana.ParsedTransaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Transactions[tx.Signature] = tx
	info := solana.SignatureInfo{Signature: tx.Signature, Slot: tx.Slot}
	if tx.BlockTime != 0 {
		bt := tx.BlockTime
		info.BlockTime = &bt
	}
	c.Signatures[wallet] = append([]solana.SignatureInfo{info}, c.Signatures[wallet]...)
}

// SetBalance sets the lamport balance of address.
func (c *RPCClient) SetBalance(address string, lamports uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Balances[address] = lamports
}

// SetTokenAccounts replaces the token accounts of owner.
func (c *RPCClient) SetTokenAccounts(owner string, accounts []solana.TokenAccount) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.TokenAccounts[owner] = accounts
}

// SetStatus records a signature status.
func (c *RPCClient) SetStatus(signature string, status *solana.SignatureStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Statuses[signature] = status
}
