// Package classifier turns parsed wallet transactions into ledger events.
package classifier

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"solana-pnl-bot/internal/domain"
	"solana-pnl-bot/internal/solana"
)

// DefaultAccountRent is the rent-exempt deposit of a 165-byte token account.
var DefaultAccountRent = decimal.RequireFromString("0.00203928")

var lamport = decimal.New(1, -domain.BaseDecimals)

// ErrUnparseable is returned for transactions without execution metadata.
var ErrUnparseable = errors.New("unparseable transaction")

// Options configures a Classifier.
type Options struct {
	// AccountRent is the deposit of one token account. It is removed from
	// base legs for every wallet token account created or closed.
	AccountRent decimal.Decimal
	Logger      *zap.Logger
}

// Classifier converts one transaction into zero or more ledger events.
type Classifier struct {
	rent   decimal.Decimal
	logger *zap.Logger
}

// New creates a Classifier.
func New(opts Options) *Classifier {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	rent := opts.AccountRent
	if rent.IsNegative() {
		rent = decimal.Zero
	}
	return &Classifier{rent: rent, logger: opts.Logger}
}

// leg is the net signed balance change of one mint.
type leg struct {
	mint     string
	decimals int32
	delta    decimal.Decimal
}

// tokenAccount is a token account seen in the pre/post balance snapshots.
type tokenAccount struct {
	mint     string
	decimals int32
	owned    bool
	pre      decimal.Decimal
	post     decimal.Decimal
	inPre    bool
	inPost   bool
}

// Classify returns the wallet's ledger events for tx.
// Failed transactions, fee-only transactions and transactions that do not
// reference the wallet produce no events.
func (c *Classifier) Classify(tx *solana.ParsedTransaction, wallet string) ([]domain.LedgerEvent, error) {
	if tx == nil || tx.Meta == nil {
		return nil, ErrUnparseable
	}
	if tx.Failed() {
		return nil, nil
	}

	walletIdx := tx.AccountIndex(wallet)
	if walletIdx < 0 {
		c.logger.Warn("wallet not in account keys, skipping",
			zap.String("signature", tx.Signature))
		return nil, nil
	}
	meta := tx.Meta
	if walletIdx >= len(meta.PreBalances) || walletIdx >= len(meta.PostBalances) {
		c.logger.Warn("balances missing for wallet, skipping",
			zap.String("signature", tx.Signature))
		return nil, nil
	}

	fee := solana.LamportsToBase(meta.Fee)
	walletPaid := walletIdx == 0

	accounts := collectTokenAccounts(tx, wallet)
	owned := map[string]bool{wallet: true}
	created, closed := 0, 0
	for pubkey, acc := range accounts {
		if !acc.owned {
			continue
		}
		owned[pubkey] = true
		switch {
		case acc.inPost && !acc.inPre:
			created++
		case acc.inPre && !acc.inPost:
			closed++
		}
	}

	legs, covered := c.instructionLegs(tx, accounts, owned)

	// Token balance diffs for every mint the instructions did not cover.
	for _, acc := range accounts {
		if !acc.owned || acc.mint == domain.BaseMint || covered[acc.mint] {
			continue
		}
		addLeg(legs, acc.mint, acc.decimals, acc.post.Sub(acc.pre))
	}

	// Programs can move lamports without a transfer instruction, so the
	// balance-derived base leg is authoritative. Instruction amounts are
	// kept only while they agree with it.
	fromBalances := c.withoutRent(baseDelta(meta, walletIdx, accounts, fee, walletPaid), created, closed)
	if covered[domain.BaseMint] {
		base := legs[domain.BaseMint]
		if base.delta.Sub(fromBalances).Abs().GreaterThan(c.tolerance()) {
			c.logger.Debug("instruction base leg disagrees with balances",
				zap.String("signature", tx.Signature),
				zap.String("instructions", base.delta.String()),
				zap.String("balances", fromBalances.String()))
			base.delta = fromBalances
		}
	} else {
		addLeg(legs, domain.BaseMint, domain.BaseDecimals, fromBalances)
	}

	events := buildEvents(tx, legs)
	if len(events) == 0 {
		return nil, nil
	}
	if walletPaid {
		attachFee(events, fee)
	}

	c.logger.Debug("classified transaction",
		zap.String("signature", tx.Signature),
		zap.Int("events", len(events)),
		zap.Int("created_accounts", created),
		zap.Int("closed_accounts", closed))
	return events, nil
}

// baseDelta is the wallet's net base-currency change excluding the fee it
// paid: native lamports plus wrapped base held in owned token accounts.
func baseDelta(meta *solana.TransactionMeta, walletIdx int, accounts map[string]*tokenAccount, fee decimal.Decimal, walletPaid bool) decimal.Decimal {
	delta := decimal.NewFromUint64(meta.PostBalances[walletIdx]).
		Sub(decimal.NewFromUint64(meta.PreBalances[walletIdx])).
		Shift(-domain.BaseDecimals)
	if walletPaid {
		delta = delta.Add(fee)
	}
	for _, acc := range accounts {
		if acc.owned && acc.mint == domain.BaseMint {
			delta = delta.Add(acc.post.Sub(acc.pre))
		}
	}
	return delta
}

// withoutRent removes the deposits of created token accounts and the refunds
// of closed ones from delta. Rent never flips the direction of a leg.
func (c *Classifier) withoutRent(delta decimal.Decimal, created, closed int) decimal.Decimal {
	if delta.IsZero() || created == closed {
		return delta
	}
	adjusted := delta.Add(c.rent.Mul(decimal.NewFromInt(int64(created - closed))))
	if adjusted.Sign() != delta.Sign() {
		return decimal.Zero
	}
	return adjusted
}

// tolerance is how far instruction and balance base legs may drift apart.
func (c *Classifier) tolerance() decimal.Decimal {
	return decimal.Max(c.rent, lamport)
}

// collectTokenAccounts indexes the pre/post token balances by account pubkey.
func collectTokenAccounts(tx *solana.ParsedTransaction, wallet string) map[string]*tokenAccount {
	accounts := make(map[string]*tokenAccount)
	get := func(b solana.TokenBalance) *tokenAccount {
		pubkey := tx.AccountAt(b.AccountIndex)
		acc, ok := accounts[pubkey]
		if !ok {
			acc = &tokenAccount{mint: b.Mint, decimals: b.UITokenAmount.Decimals}
			accounts[pubkey] = acc
		}
		if b.Owner == wallet {
			acc.owned = true
		}
		return acc
	}
	for _, b := range tx.Meta.PreTokenBalances {
		acc := get(b)
		acc.pre = b.UITokenAmount.Value()
		acc.inPre = true
	}
	for _, b := range tx.Meta.PostTokenBalances {
		acc := get(b)
		acc.post = b.UITokenAmount.Value()
		acc.inPost = true
	}
	delete(accounts, "")
	return accounts
}

// instructionLegs sums system and token transfers that cross the wallet boundary.
// The returned set names every mint with at least one such transfer.
func (c *Classifier) instructionLegs(tx *solana.ParsedTransaction, accounts map[string]*tokenAccount, owned map[string]bool) (map[string]*leg, map[string]bool) {
	legs := make(map[string]*leg)
	covered := make(map[string]bool)

	all := append([]solana.ParsedInstruction(nil), tx.Instructions...)
	for _, set := range tx.Meta.InnerInstructions {
		all = append(all, set.Instructions...)
	}

	for _, ix := range all {
		info := ix.Info
		var (
			mint     string
			decimals int32
			amount   decimal.Decimal
		)

		switch {
		case ix.ProgramID == solana.SystemProgramID && ix.Type == "transfer":
			mint = domain.BaseMint
			decimals = domain.BaseDecimals
			amount = solana.LamportsToBase(info.Lamports)

		case isTokenProgram(ix.ProgramID) && (ix.Type == "transfer" || ix.Type == "transferChecked"):
			raw := info.Amount
			if info.TokenAmount != nil {
				raw = info.TokenAmount.Amount
				decimals = info.TokenAmount.Decimals
			}
			mint = info.Mint
			if acc := tokenAccountFor(accounts, info.Source, info.Destination); acc != nil {
				if mint == "" {
					mint = acc.mint
				}
				if info.TokenAmount == nil {
					decimals = acc.decimals
				}
			}
			if mint == "" {
				c.logger.Debug("token transfer with unknown mint",
					zap.String("signature", tx.Signature))
				continue
			}
			value, err := decimal.NewFromString(raw)
			if err != nil {
				continue
			}
			amount = value.Shift(-decimals)

		default:
			continue
		}

		fromWallet := owned[info.Source]
		toWallet := owned[info.Destination]
		if fromWallet == toWallet {
			// Either unrelated or internal to the wallet.
			continue
		}

		covered[mint] = true
		if fromWallet {
			amount = amount.Neg()
		}
		addLeg(legs, mint, decimals, amount)
	}

	return legs, covered
}

func tokenAccountFor(accounts map[string]*tokenAccount, source, destination string) *tokenAccount {
	if acc, ok := accounts[source]; ok {
		return acc
	}
	if acc, ok := accounts[destination]; ok {
		return acc
	}
	return nil
}

func isTokenProgram(programID string) bool {
	return programID == solana.TokenProgramID || programID == solana.Token2022ProgramID
}

func addLeg(legs map[string]*leg, mint string, decimals int32, delta decimal.Decimal) {
	l, ok := legs[mint]
	if !ok {
		l = &leg{mint: mint, decimals: decimals}
		legs[mint] = l
	}
	l.delta = l.delta.Add(delta)
}

// buildEvents pairs inbound and outbound legs. BUY events come before SELL
// events so a token-for-token swap can price the bought side at the sold
// side's cost before that position is reduced.
func buildEvents(tx *solana.ParsedTransaction, legs map[string]*leg) []domain.LedgerEvent {
	var in, out []*leg
	for _, l := range legs {
		switch {
		case l.delta.IsPositive():
			in = append(in, l)
		case l.delta.IsNegative():
			out = append(out, l)
		}
	}
	sortLegs(in)
	sortLegs(out)

	swap := len(in) > 0 && len(out) > 0
	events := make([]domain.LedgerEvent, 0, len(in)+len(out))

	newEvent := func(l *leg, kind domain.EventKind) domain.LedgerEvent {
		return domain.LedgerEvent{
			Signature:      tx.Signature,
			Slot:           tx.Slot,
			BlockTime:      tx.BlockTime,
			Kind:           kind,
			Mint:           l.mint,
			Decimals:       l.decimals,
			Quantity:       l.delta.Abs(),
			FeeInBaseUnits: decimal.Zero,
		}
	}

	for _, l := range in {
		e := newEvent(l, domain.EventTransferIn)
		if swap {
			e.Kind = domain.EventBuy
			cp := counterparty(out)
			e.CounterpartyMint = cp.mint
			e.CounterpartyQuantity = cp.delta.Abs()
		}
		events = append(events, e)
	}
	for _, l := range out {
		e := newEvent(l, domain.EventTransferOut)
		if swap {
			e.Kind = domain.EventSell
			cp := counterparty(in)
			e.CounterpartyMint = cp.mint
			e.CounterpartyQuantity = cp.delta.Abs()
		}
		events = append(events, e)
	}
	return events
}

// counterparty picks the base leg when present, otherwise the largest one.
func counterparty(legs []*leg) *leg {
	best := legs[0]
	for _, l := range legs {
		if l.mint == domain.BaseMint {
			return l
		}
		if l.delta.Abs().GreaterThan(best.delta.Abs()) {
			best = l
		}
	}
	return best
}

// sortLegs orders the base leg first, then by mint.
func sortLegs(legs []*leg) {
	sort.Slice(legs, func(i, j int) bool {
		if (legs[i].mint == domain.BaseMint) != (legs[j].mint == domain.BaseMint) {
			return legs[i].mint == domain.BaseMint
		}
		return legs[i].mint < legs[j].mint
	})
}

// attachFee assigns the fee to exactly one event: a non-base BUY, then a
// non-base SELL, then the first event.
func attachFee(events []domain.LedgerEvent, fee decimal.Decimal) {
	target := 0
	found := false
	for _, kind := range []domain.EventKind{domain.EventBuy, domain.EventSell} {
		for i := range events {
			if events[i].Kind == kind && !events[i].IsBase() {
				target, found = i, true
				break
			}
		}
		if found {
			break
		}
	}
	events[target].FeeInBaseUnits = fee
}
