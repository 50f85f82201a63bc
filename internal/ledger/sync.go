package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"solana-pnl-bot/internal/classifier"
	"solana-pnl-bot/internal/domain"
	"solana-pnl-bot/internal/observability"
	"solana-pnl-bot/internal/solana"
	"solana-pnl-bot/internal/storage"
)

// Sync defaults.
const (
	DefaultPageSize               = 100
	DefaultMaxConsecutiveFailures = 5
	DefaultSyncRetryDelay         = 500 * time.Millisecond
)

// ErrTooManyFailures stops a sync at a transaction that kept failing to fetch or apply.
var ErrTooManyFailures = errors.New("too many consecutive sync failures")

// ErrSeededLedger refuses a full-history resync of a ledger opened from
// balances, whose seed events already account for that history.
var ErrSeededLedger = errors.New("ledger was seeded from wallet balances")

// SpotPricer prices a mint in base units. A nil price means unavailable.
type SpotPricer interface {
	SpotPrice(ctx context.Context, mint string) (*decimal.Decimal, error)
}

// SyncerOptions configures a Syncer.
type SyncerOptions struct {
	Wallet     string
	RPC        solana.RPCClient
	Classifier *classifier.Classifier
	Ledger     *Ledger
	Cursors    storage.SyncCursorStore

	PageSize               int
	MaxConsecutiveFailures int           // attempts per transaction before the pass stops
	RetryDelay             time.Duration // pause between attempts

	Logger *zap.Logger
	Now    func() time.Time
}

// SyncResult summarizes one sync pass.
type SyncResult struct {
	Signatures int    // signatures newer than the cursor
	Processed  int    // transactions fetched and classified
	Skipped    int    // failed on chain or unparseable
	Failed     int    // fetch or apply failures, counting retries
	Events     int    // classified events
	Applied    int    // events that changed the ledger
	Cursor     string // cursor after the pass
}

// Syncer pulls new wallet transactions into the ledger.
type Syncer struct {
	opts   SyncerOptions
	logger *zap.Logger
}

// NewSyncer creates a Syncer.
func NewSyncer(opts SyncerOptions) *Syncer {
	if opts.PageSize <= 0 || opts.PageSize > 1000 {
		opts.PageSize = DefaultPageSize
	}
	if opts.MaxConsecutiveFailures <= 0 {
		opts.MaxConsecutiveFailures = DefaultMaxConsecutiveFailures
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultSyncRetryDelay
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Classifier == nil {
		opts.Classifier = classifier.New(classifier.Options{AccountRent: classifier.DefaultAccountRent, Logger: opts.Logger})
	}
	return &Syncer{
		opts:   opts,
		logger: opts.Logger.With(zap.String("component", "syncer"), zap.String("wallet", opts.Wallet)),
	}
}

// Sync applies every transaction newer than the stored cursor, oldest first.
// A transaction that fails to fetch or apply is retried in place; once it has
// failed MaxConsecutiveFailures times the pass stops before any newer
// transaction, so events always reach the ledger in chain order. The cursor
// covers exactly the transactions that were processed.
func (s *Syncer) Sync(ctx context.Context) (*SyncResult, error) {
	cursor, err := s.opts.Cursors.GetCursor(ctx, s.opts.Wallet)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("get cursor: %w", err)
	}
	until := ""
	if cursor != nil {
		until = cursor.Signature
	}

	sigs, err := s.listSince(ctx, until)
	if err != nil {
		return nil, err
	}

	result := &SyncResult{Signatures: len(sigs), Cursor: until}
	if len(sigs) == 0 {
		return result, nil
	}

	var (
		advanced *solana.SignatureInfo
		abortErr error
	)

	// Signatures arrive newest first.
	for i := len(sigs) - 1; i >= 0; i-- {
		if !s.processWithRetry(ctx, sigs[i], result) {
			abortErr = fmt.Errorf("%w: stopped at %s", ErrTooManyFailures, sigs[i].Signature)
			if ctx.Err() != nil {
				abortErr = ctx.Err()
			}
			break
		}
		advanced = &sigs[i]
	}

	if advanced != nil {
		c := &domain.SyncCursor{
			Wallet:    s.opts.Wallet,
			Signature: advanced.Signature,
			Slot:      advanced.Slot,
			UpdatedAt: s.opts.Now(),
		}
		if err := s.opts.Cursors.SetCursor(ctx, c); err != nil {
			return result, fmt.Errorf("set cursor: %w", err)
		}
		result.Cursor = c.Signature
	}

	s.logger.Info("sync complete",
		zap.Int("signatures", result.Signatures),
		zap.Int("processed", result.Processed),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
		zap.Int("applied", result.Applied),
		zap.String("cursor", result.Cursor))

	return result, abortErr
}

// processWithRetry runs processOne until it succeeds or has failed
// MaxConsecutiveFailures times.
func (s *Syncer) processWithRetry(ctx context.Context, info solana.SignatureInfo, result *SyncResult) bool {
	for attempt := 1; ; attempt++ {
		ok := s.processOne(ctx, info, result)
		observability.RecordSyncTransaction(!ok)
		if ok {
			return true
		}
		if attempt >= s.opts.MaxConsecutiveFailures {
			return false
		}
		if err := sleep(ctx, s.opts.RetryDelay); err != nil {
			return false
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// processOne fetches, classifies and applies one transaction.
// Returns false when it must be retried later.
func (s *Syncer) processOne(ctx context.Context, info solana.SignatureInfo, result *SyncResult) bool {
	log := s.logger.With(zap.String("signature", info.Signature))

	if info.Err != nil {
		result.Skipped++
		return true
	}

	tx, err := s.opts.RPC.GetParsedTransaction(ctx, info.Signature)
	if err != nil {
		result.Failed++
		log.Warn("fetch transaction failed", zap.Error(err))
		return false
	}
	if tx == nil {
		result.Failed++
		log.Warn("transaction not yet available")
		return false
	}

	events, err := s.opts.Classifier.Classify(tx, s.opts.Wallet)
	if err != nil {
		result.Skipped++
		log.Warn("unparseable transaction skipped", zap.Error(err))
		return true
	}
	result.Processed++
	result.Events += len(events)

	for i := range events {
		applied, err := s.opts.Ledger.Apply(ctx, &events[i])
		if err != nil {
			result.Failed++
			log.Error("apply event failed", zap.String("mint", events[i].Mint), zap.Error(err))
			return false
		}
		if applied {
			result.Applied++
		}
	}
	return true
}

// listSince pages backwards from the newest signature down to until (exclusive).
func (s *Syncer) listSince(ctx context.Context, until string) ([]solana.SignatureInfo, error) {
	var (
		all    []solana.SignatureInfo
		before string
	)
	for {
		page, err := s.opts.RPC.GetSignaturesForAddress(ctx, s.opts.Wallet, &solana.SignaturesOpts{
			Before: before,
			Until:  until,
			Limit:  s.opts.PageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("list signatures: %w", err)
		}
		all = append(all, page...)
		if len(page) < s.opts.PageSize {
			return all, nil
		}
		before = page[len(page)-1].Signature
	}
}

// Resync rebuilds positions from stored events, then syncs new activity and
// refreshes the base balance.
func (s *Syncer) Resync(ctx context.Context) (*SyncResult, error) {
	if _, err := s.opts.Ledger.Rebuild(ctx); err != nil {
		return nil, fmt.Errorf("rebuild: %w", err)
	}
	result, err := s.Sync(ctx)
	if err != nil {
		return result, err
	}
	if err := s.RefreshBaseBalance(ctx); err != nil {
		return result, err
	}
	return result, nil
}

// ResyncFromGenesis forgets the cursor, pulls the wallet's whole history and
// rebuilds positions in chain order. Events already stored are skipped.
func (s *Syncer) ResyncFromGenesis(ctx context.Context) (*SyncResult, error) {
	seeded, err := s.opts.Ledger.Seeded(ctx)
	if err != nil {
		return nil, err
	}
	if seeded {
		return nil, ErrSeededLedger
	}
	if err := s.opts.Cursors.DeleteCursor(ctx, s.opts.Wallet); err != nil {
		return nil, fmt.Errorf("delete cursor: %w", err)
	}
	s.logger.Info("cursor cleared, replaying full history")

	result, err := s.Sync(ctx)
	if err != nil {
		return result, err
	}
	if _, err := s.opts.Ledger.Rebuild(ctx); err != nil {
		return result, fmt.Errorf("rebuild: %w", err)
	}
	if err := s.RefreshBaseBalance(ctx); err != nil {
		return result, err
	}
	return result, nil
}

// RefreshBaseBalance reads the wallet lamport balance into the base position.
func (s *Syncer) RefreshBaseBalance(ctx context.Context) error {
	lamports, err := s.opts.RPC.GetBalance(ctx, s.opts.Wallet)
	if err != nil {
		return fmt.Errorf("get balance: %w", err)
	}
	return s.opts.Ledger.SetBaseBalance(ctx, solana.LamportsToBase(lamports))
}

// BootstrapResult summarizes an initialization from wallet balances.
type BootstrapResult struct {
	Positions int
	Unpriced  []string
	Cursor    string
}

// Bootstrap initializes positions from the wallet's current balances priced
// at spot and moves the cursor to the newest signature, so history before
// now is never replayed.
func (s *Syncer) Bootstrap(ctx context.Context, prices SpotPricer) (*BootstrapResult, error) {
	accounts, err := s.opts.RPC.GetTokenAccountsByOwner(ctx, s.opts.Wallet)
	if err != nil {
		return nil, fmt.Errorf("list token accounts: %w", err)
	}

	type holding struct {
		decimals int32
		qty      decimal.Decimal
	}
	holdings := make(map[string]*holding)
	var mints []string
	for _, a := range accounts {
		if a.Mint == domain.BaseMint {
			continue
		}
		h, ok := holdings[a.Mint]
		if !ok {
			h = &holding{decimals: a.Decimals}
			holdings[a.Mint] = h
			mints = append(mints, a.Mint)
		}
		h.qty = h.qty.Add(a.Value())
	}

	result := &BootstrapResult{}
	for _, mint := range mints {
		h := holdings[mint]
		if !h.qty.IsPositive() {
			continue
		}
		var spot *decimal.Decimal
		if prices != nil {
			spot, err = prices.SpotPrice(ctx, mint)
			if err != nil {
				s.logger.Warn("spot price unavailable", zap.String("mint", mint), zap.Error(err))
				spot = nil
			}
		}
		if spot == nil {
			result.Unpriced = append(result.Unpriced, mint)
		}
		if _, err := s.opts.Ledger.Seed(ctx, mint, h.decimals, h.qty, spot); err != nil {
			return result, fmt.Errorf("seed %s: %w", mint, err)
		}
		result.Positions++
	}

	if err := s.RefreshBaseBalance(ctx); err != nil {
		return result, err
	}

	latest, err := s.opts.RPC.GetSignaturesForAddress(ctx, s.opts.Wallet, &solana.SignaturesOpts{Limit: 1})
	if err != nil {
		return result, fmt.Errorf("list signatures: %w", err)
	}
	if len(latest) > 0 {
		c := &domain.SyncCursor{
			Wallet:    s.opts.Wallet,
			Signature: latest[0].Signature,
			Slot:      latest[0].Slot,
			UpdatedAt: s.opts.Now(),
		}
		if err := s.opts.Cursors.SetCursor(ctx, c); err != nil {
			return result, fmt.Errorf("set cursor: %w", err)
		}
		result.Cursor = c.Signature
	}

	s.logger.Info("ledger bootstrapped",
		zap.Int("positions", result.Positions),
		zap.Strings("unpriced", result.Unpriced),
		zap.String("cursor", result.Cursor))
	return result, nil
}
