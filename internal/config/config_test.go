package config

import (
	"math/big"
	"testing"
	"time"

	"github.com/agentvault/sessiongate/internal/pkg/apperrors"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainURLsPreferExplicitValues(t *testing.T) {
	c := ChainConfig{APIKey: "abc"}
	assert.Equal(t, "https://eth-sepolia.g.alchemy.com/v2/abc", c.ChainRPCURL())
	assert.Equal(t, "https://api.g.alchemy.com/v2/abc", c.SmartAccountURL())

	c.RPCURL = "http://localhost:8545"
	assert.Equal(t, "http://localhost:8545", c.ChainRPCURL())
	assert.Equal(t, "https://api.g.alchemy.com/v2/abc", c.SmartAccountURL())

	c = ChainConfig{RPCURL: "http://localhost:8545"}
	assert.Equal(t, "http://localhost:8545", c.SmartAccountURL())
}

func TestRequireRPCIsConfigError(t *testing.T) {
	err := ChainConfig{}.RequireRPC()
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrConfig))
	assert.Contains(t, err.Error(), "SESSIONGATE_CHAIN_RPC_URL")
}

func TestRequireVaultAddress(t *testing.T) {
	assert.Error(t, VaultConfig{}.RequireAddress())
	assert.Error(t, VaultConfig{Address: "0x"}.RequireAddress())
	assert.Error(t, VaultConfig{Address: "not-an-address"}.RequireAddress())
	assert.NoError(t, VaultConfig{Address: "0x5FbDB2315678afecb367f032d93F642f64180aa3"}.RequireAddress())
}

func TestDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))

	assert.Equal(t, int64(SepoliaChainID), cfg.Chain.ChainID)
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL())
	assert.Equal(t, 0, cfg.Session.Allowance().Cmp(big.NewInt(5_000_000_000_000_000)))
	assert.Equal(t, 2*time.Second, cfg.Reconcile.PollInterval())
	assert.Equal(t, 60*time.Second, cfg.Reconcile.Timeout())
	assert.Equal(t, 0, cfg.Reconcile.DefaultDeposit().Cmp(big.NewInt(100_000_000_000_000)))
	assert.Equal(t, 5*time.Second, cfg.Bot.StatusInterval())
	assert.Equal(t, 1500*time.Millisecond, cfg.Bot.LogsInterval())
	assert.Equal(t, 300, cfg.Bot.LogBuffer)
}

func TestParseWeiFallsBackOnGarbage(t *testing.T) {
	s := SessionConfig{AllowanceWei: "-5"}
	assert.Equal(t, "5000000000000000", s.Allowance().String())
	s.AllowanceWei = "7"
	assert.Equal(t, "7", s.Allowance().String())
}
