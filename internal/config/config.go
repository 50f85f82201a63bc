// Package config loads bot settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"solana-pnl-bot/internal/domain"
	"solana-pnl-bot/internal/solana"
)

// Prefix of every environment variable, e.g. PNLBOT_WALLET.
const Prefix = "PNLBOT"

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds every tunable of the bot.
type Config struct {
	// Chain access
	RPCURL        string  `envconfig:"RPC_URL" default:"https://api.mainnet-beta.solana.com"`
	WSURL         string  `envconfig:"WS_URL"`
	RPCRateLimit  float64 `envconfig:"RPC_RATE_LIMIT" default:"5"`
	RPCMaxRetries int     `envconfig:"RPC_MAX_RETRIES" default:"3"`
	Wallet        string  `envconfig:"WALLET"`
	KeypairPath   string  `envconfig:"KEYPAIR_PATH"`

	// Aggregator
	JupiterURL       string  `envconfig:"JUPITER_URL" default:"https://lite-api.jup.ag"`
	JupiterAPIKey    string  `envconfig:"JUPITER_API_KEY"`
	JupiterRateLimit float64 `envconfig:"JUPITER_RATE_LIMIT" default:"1"`

	// Storage
	StoreDriver   string `envconfig:"STORE_DRIVER" default:"sqlite"`
	SQLitePath    string `envconfig:"SQLITE_PATH" default:"pnlbot.db"`
	PostgresDSN   string `envconfig:"POSTGRES_DSN"`
	ClickHouseDSN string `envconfig:"CLICKHOUSE_DSN"`

	// Loop
	CheckInterval    time.Duration `envconfig:"CHECK_INTERVAL" default:"10s"`
	ResyncInterval   time.Duration `envconfig:"RESYNC_INTERVAL" default:"30s"`
	MinResyncGap     time.Duration `envconfig:"MIN_RESYNC_GAP" default:"15s"`
	MaxTradesPerHour int           `envconfig:"MAX_TRADES_PER_HOUR" default:"20"`
	DryRun           bool          `envconfig:"DRY_RUN" default:"false"`

	// Execution
	BaseSlippageBps     int           `envconfig:"BASE_SLIPPAGE_BPS" default:"50"`
	SlippageMultipliers []int         `envconfig:"SLIPPAGE_MULTIPLIERS" default:"1,3,6,10"`
	RetryDelay          time.Duration `envconfig:"RETRY_DELAY" default:"2s"`
	ConfirmTimeout      time.Duration `envconfig:"CONFIRM_TIMEOUT" default:"90s"`
	SkipPreflight       bool          `envconfig:"SKIP_PREFLIGHT" default:"false"`

	// Ledger
	DustThreshold          decimal.Decimal `envconfig:"DUST_THRESHOLD" default:"0.000000001"`
	AccountRent            decimal.Decimal `envconfig:"ACCOUNT_RENT" default:"0.00203928"`
	ReconcileTolerance     decimal.Decimal `envconfig:"RECONCILE_TOLERANCE" default:"0.00001"`
	MaxConsecutiveFailures int             `envconfig:"MAX_CONSECUTIVE_FAILURES" default:"5"`
	SyncPageSize           int             `envconfig:"SYNC_PAGE_SIZE" default:"100"`
	SyncRetryDelay         time.Duration   `envconfig:"SYNC_RETRY_DELAY" default:"500ms"`

	// Global default rule
	DefaultTakeProfitPct decimal.Decimal `envconfig:"DEFAULT_TAKE_PROFIT_PCT" default:"50"`
	DefaultStopLossPct   decimal.Decimal `envconfig:"DEFAULT_STOP_LOSS_PCT" default:"-20"`
	DefaultSellPct       decimal.Decimal `envconfig:"DEFAULT_SELL_PCT" default:"100"`

	// Operations
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`
}

// Load reads an optional .env file, then the PNLBOT_ environment.
// Variables already set in the environment win over the file.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("process env config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges. The wallet is checked separately by
// RequireWallet since read-only commands can run without it.
func (c *Config) Validate() error {
	var errs []error

	switch c.StoreDriver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}

	if c.CheckInterval <= 0 {
		errs = append(errs, errors.New("CHECK_INTERVAL must be positive"))
	}
	if c.ResyncInterval < c.CheckInterval {
		errs = append(errs, fmt.Errorf("RESYNC_INTERVAL %s must not be shorter than CHECK_INTERVAL %s", c.ResyncInterval, c.CheckInterval))
	}
	if c.MinResyncGap < 0 {
		errs = append(errs, errors.New("MIN_RESYNC_GAP must not be negative"))
	}
	if c.MaxTradesPerHour <= 0 {
		errs = append(errs, errors.New("MAX_TRADES_PER_HOUR must be positive"))
	}

	if c.BaseSlippageBps <= 0 || c.BaseSlippageBps > 10_000 {
		errs = append(errs, fmt.Errorf("BASE_SLIPPAGE_BPS must be in (0, 10000], got %d", c.BaseSlippageBps))
	}
	if len(c.SlippageMultipliers) == 0 {
		errs = append(errs, errors.New("SLIPPAGE_MULTIPLIERS must not be empty"))
	}
	prev := 0
	for _, m := range c.SlippageMultipliers {
		if m <= prev {
			errs = append(errs, fmt.Errorf("SLIPPAGE_MULTIPLIERS must be positive and increasing, got %v", c.SlippageMultipliers))
			break
		}
		prev = m
	}
	if c.BaseSlippageBps*prev > 10_000 {
		errs = append(errs, fmt.Errorf("largest slippage tier %d bps exceeds 10000", c.BaseSlippageBps*prev))
	}

	if c.DustThreshold.IsNegative() {
		errs = append(errs, errors.New("DUST_THRESHOLD must not be negative"))
	}
	if c.AccountRent.IsNegative() {
		errs = append(errs, errors.New("ACCOUNT_RENT must not be negative"))
	}
	if !c.ReconcileTolerance.IsPositive() {
		errs = append(errs, errors.New("RECONCILE_TOLERANCE must be positive"))
	}
	if c.RPCRateLimit < 0 || c.JupiterRateLimit < 0 {
		errs = append(errs, errors.New("rate limits must not be negative"))
	}

	if err := c.DefaultRule().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("default rule: %w", err))
	}

	switch strings.ToLower(c.LogFormat) {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.LogFormat))
	}

	return errors.Join(errs...)
}

// DefaultRule returns the configured global default rule.
func (c *Config) DefaultRule() *domain.TradingRule {
	return &domain.TradingRule{
		Strategy:       domain.DefaultStrategy,
		TakeProfitPct:  c.DefaultTakeProfitPct,
		StopLossPct:    c.DefaultStopLossPct,
		SellPercentage: c.DefaultSellPct,
		Enabled:        true,
	}
}

// RequireWallet checks that the wallet is a valid on-curve public key.
func (c *Config) RequireWallet() error {
	if c.Wallet == "" {
		return errors.New("PNLBOT_WALLET is required")
	}
	return ValidateWallet(c.Wallet)
}

// RequireSigner checks that a keypair is configured and belongs to the wallet.
func (c *Config) RequireSigner() error {
	if err := c.RequireWallet(); err != nil {
		return err
	}
	if c.KeypairPath == "" {
		return errors.New("PNLBOT_KEYPAIR_PATH is required for live trading")
	}
	key, err := solanago.PrivateKeyFromSolanaKeygenFile(c.KeypairPath)
	if err != nil {
		return fmt.Errorf("load keypair: %w", err)
	}
	if got := key.PublicKey().String(); got != c.Wallet {
		return fmt.Errorf("keypair %s does not match wallet %s", got, c.Wallet)
	}
	return nil
}

// ValidateWallet checks that addr is a base58 public key on the ed25519 curve.
// Program-derived addresses cannot sign and are rejected.
func ValidateWallet(addr string) error {
	if _, err := solanago.PublicKeyFromBase58(addr); err != nil {
		return fmt.Errorf("invalid wallet %q: %w", addr, err)
	}
	if !solana.IsOnCurve(addr) {
		return fmt.Errorf("wallet %s is not on the ed25519 curve", addr)
	}
	return nil
}
