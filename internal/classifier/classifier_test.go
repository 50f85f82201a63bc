package classifier

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-pnl-bot/internal/domain"
	"solana-pnl-bot/internal/solana"
)

const (
	wallet  = "Wallet111111111111111111111111111111111111"
	other   = "Other1111111111111111111111111111111111111"
	mintA   = "MintA111111111111111111111111111111111111"
	mintB   = "MintB111111111111111111111111111111111111"
	ataA    = "AtaA1111111111111111111111111111111111111"
	ataB    = "AtaB1111111111111111111111111111111111111"
	ataWSOL = "AtaWsol11111111111111111111111111111111111"
	poolA   = "PoolA111111111111111111111111111111111111"
	poolSOL = "PoolSol11111111111111111111111111111111111"
	tipAcct = "Tip111111111111111111111111111111111111111"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func keys(pubkeys ...string) []solana.AccountKey {
	out := make([]solana.AccountKey, len(pubkeys))
	for i, k := range pubkeys {
		out[i] = solana.AccountKey{Pubkey: k, Signer: i == 0, Writable: true}
	}
	return out
}

func tb(idx int, mint, owner, raw string, decimals int32) solana.TokenBalance {
	return solana.TokenBalance{
		AccountIndex:  idx,
		Mint:          mint,
		Owner:         owner,
		UITokenAmount: solana.UITokenAmount{Amount: raw, Decimals: decimals},
	}
}

func newClassifier() *Classifier {
	return New(Options{AccountRent: DefaultAccountRent})
}

func findEvent(t *testing.T, events []domain.LedgerEvent, mint string) domain.LedgerEvent {
	t.Helper()
	for _, e := range events {
		if e.Mint == mint {
			return e
		}
	}
	t.Fatalf("no event for mint %s in %+v", mint, events)
	return domain.LedgerEvent{}
}

func TestClassify_BuyFromBalanceDiffExcludesRent(t *testing.T) {
	// Wallet pays 1 SOL, the fee, and rent for a fresh token account.
	tx := &solana.ParsedTransaction{
		Signature:   "sigBuy",
		Slot:        10,
		BlockTime:   1700000000,
		AccountKeys: keys(wallet, ataA, poolA),
		Meta: &solana.TransactionMeta{
			Fee:               5000,
			PreBalances:       []uint64{2_000_000_000, 0, 0},
			PostBalances:      []uint64{2_000_000_000 - 1_000_000_000 - 5000 - 2_039_280, 2_039_280, 0},
			PostTokenBalances: []solana.TokenBalance{tb(1, mintA, wallet, "1000000000", 6)},
		},
	}

	events, err := newClassifier().Classify(tx, wallet)
	require.NoError(t, err)
	require.Len(t, events, 2)

	buy := events[0]
	assert.Equal(t, domain.EventBuy, buy.Kind)
	assert.Equal(t, mintA, buy.Mint)
	assert.Equal(t, int32(6), buy.Decimals)
	assert.True(t, buy.Quantity.Equal(dec("1000")), "qty %s", buy.Quantity)
	assert.Equal(t, domain.BaseMint, buy.CounterpartyMint)
	assert.True(t, buy.CounterpartyQuantity.Equal(dec("1")), "spent %s", buy.CounterpartyQuantity)
	assert.True(t, buy.FeeInBaseUnits.Equal(dec("0.000005")))
	assert.Equal(t, int64(10), buy.Slot)

	sell := events[1]
	assert.Equal(t, domain.EventSell, sell.Kind)
	assert.Equal(t, domain.BaseMint, sell.Mint)
	assert.True(t, sell.Quantity.Equal(dec("1")))
	assert.True(t, sell.FeeInBaseUnits.IsZero(), "fee attached exactly once")
}

func TestClassify_SellFromInnerInstructions(t *testing.T) {
	// Token balance diffs are deliberately inconsistent; the inner transfers must win.
	tx := &solana.ParsedTransaction{
		Signature:   "sigSell",
		AccountKeys: keys(wallet, ataA, ataWSOL, poolA, poolSOL),
		Meta: &solana.TransactionMeta{
			Fee:          5000,
			PreBalances:  []uint64{1_000_000_000, 2_039_280, 2_039_280, 0, 0},
			PostBalances: []uint64{1_000_000_000 - 5000, 2_039_280, 2_039_280, 0, 0},
			PreTokenBalances: []solana.TokenBalance{
				tb(1, mintA, wallet, "1000000000", 6),
				tb(2, domain.BaseMint, wallet, "0", 9),
			},
			PostTokenBalances: []solana.TokenBalance{
				tb(1, mintA, wallet, "400000000", 6),
				tb(2, domain.BaseMint, wallet, "600000000", 9),
			},
			InnerInstructions: []solana.InnerInstructionSet{{
				Index: 0,
				Instructions: []solana.ParsedInstruction{
					{
						ProgramID: solana.TokenProgramID, Type: "transferChecked",
						Info: solana.InstructionInfo{
							Source: ataA, Destination: poolA, Authority: wallet, Mint: mintA,
							TokenAmount: &solana.UITokenAmount{Amount: "500000000", Decimals: 6},
						},
					},
					{
						ProgramID: solana.TokenProgramID, Type: "transfer",
						Info: solana.InstructionInfo{Source: poolSOL, Destination: ataWSOL, Amount: "600000000"},
					},
				},
			}},
		},
	}
	// poolSOL carries no token balance entry; mint resolves through the destination.

	events, err := newClassifier().Classify(tx, wallet)
	require.NoError(t, err)
	require.Len(t, events, 2)

	sell := findEvent(t, events, mintA)
	assert.Equal(t, domain.EventSell, sell.Kind)
	assert.True(t, sell.Quantity.Equal(dec("500")), "qty %s", sell.Quantity)
	assert.True(t, sell.CounterpartyQuantity.Equal(dec("0.6")), "proceeds %s", sell.CounterpartyQuantity)
	assert.True(t, sell.FeeInBaseUnits.Equal(dec("0.000005")))

	base := findEvent(t, events, domain.BaseMint)
	assert.Equal(t, domain.EventBuy, base.Kind)
	assert.True(t, base.Quantity.Equal(dec("0.6")))
	assert.Equal(t, mintA, base.CounterpartyMint)
	assert.True(t, base.FeeInBaseUnits.IsZero())

	assert.Equal(t, domain.EventBuy, events[0].Kind, "buys are emitted first")
}

func TestClassify_TipDoesNotHideSaleProceeds(t *testing.T) {
	// The pool credits lamports directly, so the only base instruction is the tip.
	tx := &solana.ParsedTransaction{
		Signature:   "sigTipSell",
		AccountKeys: keys(wallet, ataA, poolA, tipAcct),
		Instructions: []solana.ParsedInstruction{{
			ProgramID: solana.SystemProgramID, Type: "transfer",
			Info: solana.InstructionInfo{Source: wallet, Destination: tipAcct, Lamports: 1_000_000},
		}},
		Meta: &solana.TransactionMeta{
			Fee:          5000,
			PreBalances:  []uint64{1_000_000_000, 2_039_280, 5_000_000_000, 0},
			PostBalances: []uint64{1_000_000_000 + 1_200_000_000 - 1_000_000 - 5000, 2_039_280, 3_800_000_000, 1_000_000},
			PreTokenBalances: []solana.TokenBalance{
				tb(1, mintA, wallet, "1000000000", 6),
			},
			PostTokenBalances: []solana.TokenBalance{
				tb(1, mintA, wallet, "0", 6),
			},
			InnerInstructions: []solana.InnerInstructionSet{{
				Index: 1,
				Instructions: []solana.ParsedInstruction{{
					ProgramID: solana.TokenProgramID, Type: "transferChecked",
					Info: solana.InstructionInfo{
						Source: ataA, Destination: poolA, Authority: wallet, Mint: mintA,
						TokenAmount: &solana.UITokenAmount{Amount: "1000000000", Decimals: 6},
					},
				}},
			}},
		},
	}

	events, err := newClassifier().Classify(tx, wallet)
	require.NoError(t, err)
	require.Len(t, events, 2)

	sell := findEvent(t, events, mintA)
	assert.Equal(t, domain.EventSell, sell.Kind)
	assert.True(t, sell.Quantity.Equal(dec("1000")), "qty %s", sell.Quantity)
	assert.Equal(t, domain.BaseMint, sell.CounterpartyMint)
	assert.True(t, sell.CounterpartyQuantity.Equal(dec("1.199")), "proceeds %s", sell.CounterpartyQuantity)
	assert.True(t, sell.FeeInBaseUnits.Equal(dec("0.000005")))

	base := findEvent(t, events, domain.BaseMint)
	assert.Equal(t, domain.EventBuy, base.Kind)
	assert.True(t, base.Quantity.Equal(dec("1.199")))
}

func TestClassify_TipAgreeingWithBalancesKeepsInstructionAmounts(t *testing.T) {
	tx := &solana.ParsedTransaction{
		Signature:   "sigTipOnly",
		AccountKeys: keys(wallet, tipAcct),
		Instructions: []solana.ParsedInstruction{{
			ProgramID: solana.SystemProgramID, Type: "transfer",
			Info: solana.InstructionInfo{Source: wallet, Destination: tipAcct, Lamports: 1_000_000},
		}},
		Meta: &solana.TransactionMeta{
			Fee:          5000,
			PreBalances:  []uint64{1_000_000_000, 0},
			PostBalances: []uint64{1_000_000_000 - 1_000_000 - 5000, 1_000_000},
		},
	}

	events, err := newClassifier().Classify(tx, wallet)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventTransferOut, events[0].Kind)
	assert.True(t, events[0].Quantity.Equal(dec("0.001")), "qty %s", events[0].Quantity)
}

func TestClassify_ClosedAccountRefundIsNotProceeds(t *testing.T) {
	// Selling the whole balance and closing the token account refunds its rent.
	tx := &solana.ParsedTransaction{
		Signature:   "sigSellClose",
		AccountKeys: keys(wallet, ataA, poolA),
		Meta: &solana.TransactionMeta{
			Fee:               5000,
			PreBalances:       []uint64{1_000_000_000, 2_039_280, 5_000_000_000},
			PostBalances:      []uint64{1_000_000_000 + 500_000_000 + 2_039_280 - 5000, 0, 4_500_000_000},
			PreTokenBalances:  []solana.TokenBalance{tb(1, mintA, wallet, "1000000000", 6)},
			PostTokenBalances: nil,
		},
	}

	events, err := newClassifier().Classify(tx, wallet)
	require.NoError(t, err)
	require.Len(t, events, 2)

	sell := findEvent(t, events, mintA)
	assert.Equal(t, domain.EventSell, sell.Kind)
	assert.True(t, sell.Quantity.Equal(dec("1000")), "qty %s", sell.Quantity)
	assert.True(t, sell.CounterpartyQuantity.Equal(dec("0.5")), "proceeds %s", sell.CounterpartyQuantity)

	base := findEvent(t, events, domain.BaseMint)
	assert.True(t, base.Quantity.Equal(dec("0.5")))
}

func TestClassify_CloseOnlyIsNotIncome(t *testing.T) {
	tx := &solana.ParsedTransaction{
		Signature:   "sigClose",
		AccountKeys: keys(wallet, ataA),
		Meta: &solana.TransactionMeta{
			Fee:              5000,
			PreBalances:      []uint64{1_000_000_000, 2_039_280},
			PostBalances:     []uint64{1_000_000_000 + 2_039_280 - 5000, 0},
			PreTokenBalances: []solana.TokenBalance{tb(1, mintA, wallet, "0", 6)},
		},
	}

	events, err := newClassifier().Classify(tx, wallet)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestClassify_TokenForTokenSwap(t *testing.T) {
	tx := &solana.ParsedTransaction{
		Signature:   "sigT2T",
		AccountKeys: keys(wallet, ataA, ataB),
		Meta: &solana.TransactionMeta{
			Fee:          5000,
			PreBalances:  []uint64{1_000_000_000, 2_039_280, 2_039_280},
			PostBalances: []uint64{1_000_000_000 - 5000, 2_039_280, 2_039_280},
			PreTokenBalances: []solana.TokenBalance{
				tb(1, mintA, wallet, "1000", 0),
				tb(2, mintB, wallet, "0", 0),
			},
			PostTokenBalances: []solana.TokenBalance{
				tb(1, mintA, wallet, "0", 0),
				tb(2, mintB, wallet, "50", 0),
			},
		},
	}

	events, err := newClassifier().Classify(tx, wallet)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, domain.EventBuy, events[0].Kind)
	assert.Equal(t, mintB, events[0].Mint)
	assert.Equal(t, mintA, events[0].CounterpartyMint)
	assert.True(t, events[0].CounterpartyQuantity.Equal(dec("1000")))
	assert.True(t, events[0].FeeInBaseUnits.Equal(dec("0.000005")))

	assert.Equal(t, domain.EventSell, events[1].Kind)
	assert.Equal(t, mintA, events[1].Mint)
	assert.True(t, events[1].FeeInBaseUnits.IsZero())
}

func TestClassify_TransferInNotPaidByWallet(t *testing.T) {
	tx := &solana.ParsedTransaction{
		Signature:   "sigIn",
		AccountKeys: keys(other, wallet, ataA),
		Meta: &solana.TransactionMeta{
			Fee:               5000,
			PreBalances:       []uint64{500_000_000, 100, 2_039_280},
			PostBalances:      []uint64{500_000_000 - 5000, 100, 2_039_280},
			PreTokenBalances:  []solana.TokenBalance{tb(2, mintA, wallet, "0", 6)},
			PostTokenBalances: []solana.TokenBalance{tb(2, mintA, wallet, "2500000", 6)},
		},
	}

	events, err := newClassifier().Classify(tx, wallet)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventTransferIn, events[0].Kind)
	assert.True(t, events[0].Quantity.Equal(dec("2.5")))
	assert.True(t, events[0].FeeInBaseUnits.IsZero())
	assert.Empty(t, events[0].CounterpartyMint)
}

func TestClassify_NativeTransferOut(t *testing.T) {
	tx := &solana.ParsedTransaction{
		Signature:   "sigOut",
		AccountKeys: keys(wallet, other),
		Instructions: []solana.ParsedInstruction{{
			ProgramID: solana.SystemProgramID, Type: "transfer",
			Info: solana.InstructionInfo{Source: wallet, Destination: other, Lamports: 250_000_000},
		}},
		Meta: &solana.TransactionMeta{
			Fee:          5000,
			PreBalances:  []uint64{1_000_000_000, 0},
			PostBalances: []uint64{1_000_000_000 - 250_000_000 - 5000, 250_000_000},
		},
	}

	events, err := newClassifier().Classify(tx, wallet)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventTransferOut, events[0].Kind)
	assert.True(t, events[0].IsBase())
	assert.True(t, events[0].Quantity.Equal(dec("0.25")))
	assert.True(t, events[0].FeeInBaseUnits.Equal(dec("0.000005")))
}

func TestClassify_WrapIsInternal(t *testing.T) {
	tx := &solana.ParsedTransaction{
		Signature:   "sigWrap",
		AccountKeys: keys(wallet, ataWSOL),
		Instructions: []solana.ParsedInstruction{{
			ProgramID: solana.SystemProgramID, Type: "transfer",
			Info: solana.InstructionInfo{Source: wallet, Destination: ataWSOL, Lamports: 1_000_000_000},
		}},
		Meta: &solana.TransactionMeta{
			Fee:               5000,
			PreBalances:       []uint64{3_000_000_000, 2_039_280},
			PostBalances:      []uint64{2_000_000_000 - 5000, 1_002_039_280},
			PreTokenBalances:  []solana.TokenBalance{tb(1, domain.BaseMint, wallet, "0", 9)},
			PostTokenBalances: []solana.TokenBalance{tb(1, domain.BaseMint, wallet, "1000000000", 9)},
		},
	}

	events, err := newClassifier().Classify(tx, wallet)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestClassify_FeeOnly(t *testing.T) {
	tx := &solana.ParsedTransaction{
		Signature:   "sigFee",
		AccountKeys: keys(wallet),
		Meta: &solana.TransactionMeta{
			Fee:          5000,
			PreBalances:  []uint64{1_000_000_000},
			PostBalances: []uint64{1_000_000_000 - 5000},
		},
	}

	events, err := newClassifier().Classify(tx, wallet)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestClassify_AccountCreationOnly(t *testing.T) {
	tx := &solana.ParsedTransaction{
		Signature:   "sigCreate",
		AccountKeys: keys(wallet, ataA),
		Meta: &solana.TransactionMeta{
			Fee:               5000,
			PreBalances:       []uint64{1_000_000_000, 0},
			PostBalances:      []uint64{1_000_000_000 - 5000 - 2_039_280, 2_039_280},
			PostTokenBalances: []solana.TokenBalance{tb(1, mintA, wallet, "0", 6)},
		},
	}

	events, err := newClassifier().Classify(tx, wallet)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestClassify_SkippedTransactions(t *testing.T) {
	c := newClassifier()

	_, err := c.Classify(nil, wallet)
	assert.ErrorIs(t, err, ErrUnparseable)

	_, err = c.Classify(&solana.ParsedTransaction{Signature: "noMeta"}, wallet)
	assert.ErrorIs(t, err, ErrUnparseable)

	failed := &solana.ParsedTransaction{
		Signature:   "sigFailed",
		AccountKeys: keys(wallet),
		Meta: &solana.TransactionMeta{
			Err:          map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}},
			Fee:          5000,
			PreBalances:  []uint64{1_000_000_000},
			PostBalances: []uint64{1_000_000_000 - 5000},
		},
	}
	events, err := c.Classify(failed, wallet)
	require.NoError(t, err)
	assert.Empty(t, events)

	missing := &solana.ParsedTransaction{
		Signature:   "sigElsewhere",
		AccountKeys: keys(other),
		Meta:        &solana.TransactionMeta{PreBalances: []uint64{1}, PostBalances: []uint64{2}},
	}
	events, err = c.Classify(missing, wallet)
	require.NoError(t, err)
	assert.Empty(t, events)
}
