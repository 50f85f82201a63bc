package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-pnl-bot/internal/solana"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PNLBOT_STORE_DRIVER", "memory")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.CheckInterval)
	assert.Equal(t, 30*time.Second, cfg.ResyncInterval)
	assert.Equal(t, 20, cfg.MaxTradesPerHour)
	assert.Equal(t, 50, cfg.BaseSlippageBps)
	assert.Equal(t, []int{1, 3, 6, 10}, cfg.SlippageMultipliers)
	assert.Equal(t, "0.00203928", cfg.AccountRent.String())
	assert.Equal(t, "0.00001", cfg.ReconcileTolerance.String())
	assert.Equal(t, "-20", cfg.DefaultStopLossPct.String())
	assert.False(t, cfg.DryRun)
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("PNLBOT_MAX_TRADES_PER_HOUR=7\nPNLBOT_STORE_DRIVER=memory\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("PNLBOT_MAX_TRADES_PER_HOUR")
		os.Unsetenv("PNLBOT_STORE_DRIVER")
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.MaxTradesPerHour)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PNLBOT_STORE_DRIVER", "memory")
	t.Setenv("PNLBOT_SLIPPAGE_MULTIPLIERS", "1,2,4")
	t.Setenv("PNLBOT_DEFAULT_TAKE_PROFIT_PCT", "15")
	t.Setenv("PNLBOT_CHECK_INTERVAL", "5s")
	t.Setenv("PNLBOT_DRY_RUN", "true")

	cfg, err := Load(filepath.Join(t.TempDir(), "none"))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 4}, cfg.SlippageMultipliers)
	assert.Equal(t, "15", cfg.DefaultRule().TakeProfitPct.String())
	assert.Equal(t, 5*time.Second, cfg.CheckInterval)
	assert.True(t, cfg.DryRun)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]map[string]string{
		"unknown driver":        {"PNLBOT_STORE_DRIVER": "mongo"},
		"postgres without dsn":  {"PNLBOT_STORE_DRIVER": "postgres"},
		"resync before check":   {"PNLBOT_STORE_DRIVER": "memory", "PNLBOT_RESYNC_INTERVAL": "5s"},
		"decreasing multiplier": {"PNLBOT_STORE_DRIVER": "memory", "PNLBOT_SLIPPAGE_MULTIPLIERS": "1,6,3"},
		"positive stop loss":    {"PNLBOT_STORE_DRIVER": "memory", "PNLBOT_DEFAULT_STOP_LOSS_PCT": "10"},
		"tier over 100%":        {"PNLBOT_STORE_DRIVER": "memory", "PNLBOT_BASE_SLIPPAGE_BPS": "2000"},
		"bad log format":        {"PNLBOT_STORE_DRIVER": "memory", "PNLBOT_LOG_FORMAT": "xml"},
		"bad decimal":           {"PNLBOT_STORE_DRIVER": "memory", "PNLBOT_DUST_THRESHOLD": "tiny"},
	}

	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load(filepath.Join(t.TempDir(), "none"))
			assert.Error(t, err)
		})
	}
}

func TestValidateWallet(t *testing.T) {
	key, err := solanago.NewRandomPrivateKey()
	require.NoError(t, err)
	assert.NoError(t, ValidateWallet(key.PublicKey().String()))

	pda, _, err := solana.FindProgramAddress([][]byte{[]byte("vault")}, solana.TokenProgramID)
	require.NoError(t, err)
	assert.Error(t, ValidateWallet(pda))

	assert.Error(t, ValidateWallet("not-base58-0OIl"))
}

func TestRequireSigner(t *testing.T) {
	key, err := solanago.NewRandomPrivateKey()
	require.NoError(t, err)

	cfg := &Config{Wallet: key.PublicKey().String()}
	assert.Error(t, cfg.RequireSigner())

	path := filepath.Join(t.TempDir(), "id.json")
	ints := make([]int, len(key))
	for i, b := range key {
		ints[i] = int(b)
	}
	raw, err := json.Marshal(ints)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	cfg.KeypairPath = path
	assert.NoError(t, cfg.RequireSigner())

	other, err := solanago.NewRandomPrivateKey()
	require.NoError(t, err)
	cfg.Wallet = other.PublicKey().String()
	assert.Error(t, cfg.RequireSigner())
}
