package solana

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// SignatureInfo from getSignaturesForAddress.
type SignatureInfo struct {
	Signature string
	Slot      int64
	BlockTime *int64
	Err       interface{}
}

// SignaturesOpts defines optional pagination parameters for getSignaturesForAddress.
type SignaturesOpts struct {
	Before string // Start searching backwards from this signature
	Until  string // Search until this signature
	Limit  int    // Maximum number of signatures to return
}

// ParsedTransaction is a getTransaction result in jsonParsed encoding.
type ParsedTransaction struct {
	Signature    string
	Slot         int64
	BlockTime    int64 // unix seconds
	AccountKeys  []AccountKey
	Instructions []ParsedInstruction
	Meta         *TransactionMeta
}

// AccountKey is one entry of the message account list.
type AccountKey struct {
	Pubkey   string `json:"pubkey"`
	Signer   bool   `json:"signer"`
	Writable bool   `json:"writable"`
}

// AccountIndex returns the index of pubkey in the account list, or -1.
func (tx *ParsedTransaction) AccountIndex(pubkey string) int {
	for i, k := range tx.AccountKeys {
		if k.Pubkey == pubkey {
			return i
		}
	}
	return -1
}

// AccountAt returns the pubkey at index i, or "".
func (tx *ParsedTransaction) AccountAt(i int) string {
	if i < 0 || i >= len(tx.AccountKeys) {
		return ""
	}
	return tx.AccountKeys[i].Pubkey
}

// Failed reports whether the transaction errored on chain.
func (tx *ParsedTransaction) Failed() bool {
	return tx.Meta != nil && tx.Meta.Err != nil
}

// TransactionMeta contains execution metadata.
type TransactionMeta struct {
	Err               interface{}           `json:"err"`
	Fee               uint64                `json:"fee"`
	PreBalances       []uint64              `json:"preBalances"`
	PostBalances      []uint64              `json:"postBalances"`
	PreTokenBalances  []TokenBalance        `json:"preTokenBalances"`
	PostTokenBalances []TokenBalance        `json:"postTokenBalances"`
	InnerInstructions []InnerInstructionSet `json:"innerInstructions"`
	LogMessages       []string              `json:"logMessages"`
}

// TokenBalance is a pre/post token balance entry.
type TokenBalance struct {
	AccountIndex  int           `json:"accountIndex"`
	Mint          string        `json:"mint"`
	Owner         string        `json:"owner"`
	ProgramID     string        `json:"programId"`
	UITokenAmount UITokenAmount `json:"uiTokenAmount"`
}

// UITokenAmount carries a raw amount with its decimals.
type UITokenAmount struct {
	Amount         string `json:"amount"`
	Decimals       int32  `json:"decimals"`
	UIAmountString string `json:"uiAmountString"`
}

// Value converts the raw amount into UI units. Malformed amounts read as zero.
func (a UITokenAmount) Value() decimal.Decimal {
	raw, err := decimal.NewFromString(a.Amount)
	if err != nil {
		return decimal.Zero
	}
	return raw.Shift(-a.Decimals)
}

// InnerInstructionSet groups CPI instructions under a top-level index.
type InnerInstructionSet struct {
	Index        int                 `json:"index"`
	Instructions []ParsedInstruction `json:"instructions"`
}

// ParsedInstruction is an instruction the node could decode.
// Type and Info are empty for programs without a parser.
type ParsedInstruction struct {
	Program   string
	ProgramID string
	Type      string
	Info      InstructionInfo
}

// InstructionInfo holds the fields of transfer-like parsed instructions.
type InstructionInfo struct {
	Source      string         `json:"source"`
	Destination string         `json:"destination"`
	Authority   string         `json:"authority"`
	Mint        string         `json:"mint"`
	NewAccount  string         `json:"newAccount"`
	Account     string         `json:"account"`
	Wallet      string         `json:"wallet"`
	Lamports    uint64         `json:"lamports"`
	Amount      string         `json:"amount"`
	TokenAmount *UITokenAmount `json:"tokenAmount"`
}

// UnmarshalJSON accepts both decoded instructions and raw (string) payloads.
func (ix *ParsedInstruction) UnmarshalJSON(data []byte) error {
	var raw struct {
		Program   string          `json:"program"`
		ProgramID string          `json:"programId"`
		Parsed    json.RawMessage `json:"parsed"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ix.Program = raw.Program
	ix.ProgramID = raw.ProgramID

	if !bytes.HasPrefix(bytes.TrimSpace(raw.Parsed), []byte("{")) {
		return nil
	}

	var parsed struct {
		Type string          `json:"type"`
		Info InstructionInfo `json:"info"`
	}
	if err := json.Unmarshal(raw.Parsed, &parsed); err != nil {
		// Unknown shapes are treated as opaque.
		return nil
	}
	ix.Type = parsed.Type
	ix.Info = parsed.Info
	return nil
}

// TokenAccount is a decoded SPL token account.
type TokenAccount struct {
	Pubkey   string
	Mint     string
	Owner    string
	Amount   string // raw base units
	Decimals int32  // zero when decoded from raw account data
}

// Value converts the raw amount into UI units.
func (a TokenAccount) Value() decimal.Decimal {
	return UITokenAmount{Amount: a.Amount, Decimals: a.Decimals}.Value()
}

// SignatureStatus from getSignatureStatuses.
type SignatureStatus struct {
	Slot               int64       `json:"slot"`
	Confirmations      *uint64     `json:"confirmations"`
	Err                interface{} `json:"err"`
	ConfirmationStatus string      `json:"confirmationStatus"`
}

// Confirmed reports whether the status reached confirmed or finalized commitment.
func (s *SignatureStatus) Confirmed() bool {
	return s.ConfirmationStatus == "confirmed" || s.ConfirmationStatus == "finalized"
}

// LamportsToBase converts lamports into base-currency units.
func LamportsToBase(lamports uint64) decimal.Decimal {
	return decimal.NewFromUint64(lamports).Shift(-9)
}
