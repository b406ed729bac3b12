package config

import (
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/agentvault/sessiongate/internal/pkg/apperrors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

const (
	SepoliaChainID  = 11155111
	alchemyChainURL = "https://eth-sepolia.g.alchemy.com/v2/"
	alchemyInfraURL = "https://api.g.alchemy.com/v2/"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Chain     ChainConfig     `mapstructure:"chain"`
	Vault     VaultConfig     `mapstructure:"vault"`
	Session   SessionConfig   `mapstructure:"session"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Bot       BotConfig       `mapstructure:"bot"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type AuthConfig struct {
	// When set, /v1 routes require X-Gateway-Key.
	APIKey string `mapstructure:"api_key"`
}

type ChainConfig struct {
	RPCURL         string `mapstructure:"rpc_url"`
	APIKey         string `mapstructure:"api_key"`
	ChainID        int64  `mapstructure:"chain_id"`
	InfraURL       string `mapstructure:"infra_url"`
	InfraHost      string `mapstructure:"infra_host"`
	SwitchSettleMs int    `mapstructure:"switch_settle_ms"`

	// Optional gas sponsorship policy attached to every prepare.
	PaymasterPolicyID string `mapstructure:"paymaster_policy_id"`
}

type VaultConfig struct {
	Address string `mapstructure:"address"`
	// Token is the vault token key; address(0) is native ETH.
	Token string `mapstructure:"token"`
}

type SessionConfig struct {
	TTLHours     int    `mapstructure:"ttl_hours"`
	AllowanceWei string `mapstructure:"allowance_wei"`
}

type ReconcileConfig struct {
	DepositPollIntervalMs int    `mapstructure:"deposit_poll_interval_ms"`
	DepositTimeoutSeconds int    `mapstructure:"deposit_timeout_seconds"`
	DefaultDepositWei     string `mapstructure:"default_deposit_wei"`
}

type BotConfig struct {
	BaseURL          string `mapstructure:"base_url"`
	StatusIntervalMs int    `mapstructure:"status_interval_ms"`
	LogsIntervalMs   int    `mapstructure:"logs_interval_ms"`
	LogBuffer        int    `mapstructure:"log_buffer"`
	TimeoutMs        int    `mapstructure:"timeout_ms"`
}

type WalletConfig struct {
	// Owner EOA key. Never accepted over HTTP.
	PrivateKey string `mapstructure:"private_key"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr          string `mapstructure:"addr"`
	Password      string `mapstructure:"password"`
	DB            int    `mapstructure:"db"`
	SessionKeyKey string `mapstructure:"session_key_key"`
}

type LedgerConfig struct {
	LogDir     string `mapstructure:"log_dir"`
	BufferSize int    `mapstructure:"buffer_size"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type RateLimitConfig struct {
	QPS   float64 `mapstructure:"qps"`
	Burst int     `mapstructure:"burst"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")

	// e.g. SESSIONGATE_CHAIN_API_KEY
	viper.SetEnvPrefix("sessiongate")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	SetDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// SetDefaults registers every default on v. Keys without a default are not
// picked up by AutomaticEnv during Unmarshal, so optional keys get "".
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("auth.api_key", "")

	v.SetDefault("chain.rpc_url", "")
	v.SetDefault("chain.api_key", "")
	v.SetDefault("chain.chain_id", SepoliaChainID)
	v.SetDefault("chain.infra_url", "")
	v.SetDefault("chain.infra_host", "api.g.alchemy.com")
	v.SetDefault("chain.switch_settle_ms", 600)
	v.SetDefault("chain.paymaster_policy_id", "")

	v.SetDefault("vault.address", "")
	v.SetDefault("vault.token", "0x0000000000000000000000000000000000000000")

	v.SetDefault("session.ttl_hours", 24)
	v.SetDefault("session.allowance_wei", "5000000000000000")

	v.SetDefault("reconcile.deposit_poll_interval_ms", 2000)
	v.SetDefault("reconcile.deposit_timeout_seconds", 60)
	v.SetDefault("reconcile.default_deposit_wei", "100000000000000")

	v.SetDefault("bot.base_url", "http://localhost:5001")
	v.SetDefault("bot.status_interval_ms", 5000)
	v.SetDefault("bot.logs_interval_ms", 1500)
	v.SetDefault("bot.log_buffer", 300)
	v.SetDefault("bot.timeout_ms", 10000)

	v.SetDefault("wallet.private_key", "")
	v.SetDefault("database.dsn", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.session_key_key", "sessiongate:session_key")
	v.SetDefault("ledger.log_dir", "./logs")
	v.SetDefault("ledger.buffer_size", 1000)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("rate_limit.qps", 10)
	v.SetDefault("rate_limit.burst", 20)
}

// ChainRPCURL is the node endpoint for contract reads. An explicit URL wins
// over one derived from the API key.
func (c ChainConfig) ChainRPCURL() string {
	if u := strings.TrimSpace(c.RPCURL); u != "" {
		return u
	}
	if k := strings.TrimSpace(c.APIKey); k != "" {
		return alchemyChainURL + k
	}
	return ""
}

// SmartAccountURL is the chain-agnostic wallet API endpoint.
func (c ChainConfig) SmartAccountURL() string {
	if u := strings.TrimSpace(c.InfraURL); u != "" {
		return u
	}
	if k := strings.TrimSpace(c.APIKey); k != "" {
		return alchemyInfraURL + k
	}
	return c.ChainRPCURL()
}

func (c ChainConfig) RequireRPC() error {
	if c.ChainRPCURL() == "" {
		return apperrors.NewConfig("Set SESSIONGATE_CHAIN_API_KEY or SESSIONGATE_CHAIN_RPC_URL and restart the service.")
	}
	return nil
}

func (v VaultConfig) RequireAddress() error {
	addr := strings.TrimSpace(v.Address)
	if addr == "" || addr == "0x" {
		return apperrors.NewConfig("Set SESSIONGATE_VAULT_ADDRESS to the deployed vault contract.")
	}
	if !common.IsHexAddress(addr) {
		return apperrors.NewConfig("SESSIONGATE_VAULT_ADDRESS is not a valid address.")
	}
	return nil
}

func (v VaultConfig) ContractAddress() common.Address {
	return common.HexToAddress(strings.TrimSpace(v.Address))
}

func (v VaultConfig) TokenAddress() common.Address {
	return common.HexToAddress(strings.TrimSpace(v.Token))
}

func (s SessionConfig) TTL() time.Duration {
	if s.TTLHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(s.TTLHours) * time.Hour
}

func (s SessionConfig) Allowance() *big.Int {
	return parseWei(s.AllowanceWei, "5000000000000000")
}

func (r ReconcileConfig) PollInterval() time.Duration {
	if r.DepositPollIntervalMs <= 0 {
		return 2 * time.Second
	}
	return time.Duration(r.DepositPollIntervalMs) * time.Millisecond
}

func (r ReconcileConfig) Timeout() time.Duration {
	if r.DepositTimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(r.DepositTimeoutSeconds) * time.Second
}

func (r ReconcileConfig) DefaultDeposit() *big.Int {
	return parseWei(r.DefaultDepositWei, "100000000000000")
}

func (b BotConfig) StatusInterval() time.Duration {
	return msOr(b.StatusIntervalMs, 5*time.Second)
}

func (b BotConfig) LogsInterval() time.Duration {
	return msOr(b.LogsIntervalMs, 1500*time.Millisecond)
}

func (b BotConfig) Timeout() time.Duration {
	return msOr(b.TimeoutMs, 10*time.Second)
}

func msOr(ms int, def time.Duration) time.Duration {
	if ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

func parseWei(raw, def string) *big.Int {
	if v, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10); ok && v.Sign() > 0 {
		return v
	}
	v, _ := new(big.Int).SetString(def, 10)
	return v
}
