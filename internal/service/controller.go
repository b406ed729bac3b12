package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/agentvault/sessiongate/internal/config"
	"github.com/agentvault/sessiongate/internal/model"
	"github.com/agentvault/sessiongate/internal/pkg/apperrors"
	"github.com/agentvault/sessiongate/internal/pkg/logger"
	"github.com/agentvault/sessiongate/internal/session"
	"github.com/agentvault/sessiongate/internal/signer"
	"github.com/agentvault/sessiongate/internal/smartaccount"
	"github.com/agentvault/sessiongate/internal/vault"
	"github.com/ethereum/go-ethereum/common"
)

// Wallet is the owner's signer plus chain switching.
type Wallet interface {
	smartaccount.Signer
	SwitchChain(ctx context.Context, chainID int64) error
}

// Infra is the smart-account wallet API.
type Infra interface {
	RequestAccount(ctx context.Context, owner common.Address) (*smartaccount.Account, error)
	CreateSession(ctx context.Context, req smartaccount.SessionRequest) (*smartaccount.SessionResult, error)
	PrepareCalls(ctx context.Context, from common.Address, calls []smartaccount.Call, caps *smartaccount.Capabilities) (*smartaccount.PreparedCalls, error)
	SendPreparedCalls(ctx context.Context, signed *smartaccount.SignedCalls) (string, error)
}

type VaultReader interface {
	Balance(ctx context.Context, token, account common.Address) (*big.Int, error)
	EffectiveLimits(ctx context.Context, token, account common.Address) (vault.Limits, error)
	TotalWithdrawn(ctx context.Context, token, account, key common.Address) (*big.Int, error)
	WithdrawalCount(ctx context.Context, token, account, key common.Address) (*big.Int, error)
	Owner(ctx context.Context) (common.Address, error)
}

// SessionKeyNotifier publishes the latest session key for external observers.
type SessionKeyNotifier interface {
	Put(ctx context.Context, rec *model.SessionKeyRecord) error
}

type OperationRecorder interface {
	Record(op *model.Operation)
}

type Settings struct {
	ChainID             int64
	SwitchSettle        time.Duration
	InfraHost           string
	Vault               common.Address
	Token               common.Address
	SessionTTL          time.Duration
	Allowance           *big.Int
	DepositPollInterval time.Duration
	DepositTimeout      time.Duration
	DefaultDeposit      *big.Int

	// Non-nil when the chain RPC or the vault address is missing. Actions
	// that need them fail with these errors before any network call.
	ChainConfigErr error
	VaultConfigErr error
}

func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		ChainID:             cfg.Chain.ChainID,
		SwitchSettle:        time.Duration(cfg.Chain.SwitchSettleMs) * time.Millisecond,
		InfraHost:           cfg.Chain.InfraHost,
		Vault:               cfg.Vault.ContractAddress(),
		Token:               cfg.Vault.TokenAddress(),
		SessionTTL:          cfg.Session.TTL(),
		Allowance:           cfg.Session.Allowance(),
		DepositPollInterval: cfg.Reconcile.PollInterval(),
		DepositTimeout:      cfg.Reconcile.Timeout(),
		DefaultDeposit:      cfg.Reconcile.DefaultDeposit(),
		ChainConfigErr:      cfg.Chain.RequireRPC(),
		VaultConfigErr:      cfg.Vault.RequireAddress(),
	}
}

type Deps struct {
	Infra    Infra
	Vault    VaultReader
	Code     smartaccount.CodeReader
	Notifier SessionKeyNotifier
	Ledger   OperationRecorder
	Store    *session.Store
	// NewKey mints session keys; defaults to signer.Generate.
	NewKey func(chainID int64) (*signer.Signer, error)
}

// Controller owns the session state and runs every dashboard action
// against it.
type Controller struct {
	settings Settings
	infra    Infra
	vault    VaultReader
	code     smartaccount.CodeReader
	notifier SessionKeyNotifier
	ledger   OperationRecorder
	store    *session.Store
	newKey   func(chainID int64) (*signer.Signer, error)
	log      *slog.Logger

	mu         sync.Mutex
	wallet     Wallet
	sessionKey *signer.Signer
}

func NewController(settings Settings, deps Deps) *Controller {
	if deps.Store == nil {
		deps.Store = session.NewStore(nil)
	}
	if deps.NewKey == nil {
		deps.NewKey = signer.Generate
	}
	if settings.Allowance == nil {
		settings.Allowance = big.NewInt(5_000_000_000_000_000)
	}
	if settings.DefaultDeposit == nil {
		settings.DefaultDeposit = big.NewInt(100_000_000_000_000)
	}
	if settings.SessionTTL <= 0 {
		settings.SessionTTL = 24 * time.Hour
	}
	if settings.DepositPollInterval <= 0 {
		settings.DepositPollInterval = 2 * time.Second
	}
	if settings.DepositTimeout <= 0 {
		settings.DepositTimeout = 60 * time.Second
	}
	return &Controller{
		settings: settings,
		infra:    deps.Infra,
		vault:    deps.Vault,
		code:     deps.Code,
		notifier: deps.Notifier,
		ledger:   deps.Ledger,
		store:    deps.Store,
		newKey:   deps.NewKey,
		log:      logger.Component("controller"),
	}
}

func (c *Controller) Snapshot() session.Snapshot {
	return c.store.Snapshot()
}

func (c *Controller) Subscribe() (<-chan session.Snapshot, func()) {
	return c.store.Subscribe()
}

// Connect makes w the connected identity. Owner identity is unchanged, so
// connecting a different wallet after account creation is allowed but
// cannot issue keys or set limits.
func (c *Controller) Connect(w Wallet) session.Snapshot {
	c.mu.Lock()
	c.wallet = w
	c.mu.Unlock()
	c.store.Update(func(s session.State) session.State { return s.Connect(w.Address()) })
	c.log.Info("wallet connected", "address", w.Address().Hex())
	return c.store.Snapshot()
}

// Disconnect drops the wallet, smart account, owner, session key and grant.
func (c *Controller) Disconnect() session.Snapshot {
	c.mu.Lock()
	c.wallet = nil
	c.sessionKey = nil
	c.mu.Unlock()
	c.store.Update(func(s session.State) session.State { return s.Disconnect() })
	c.log.Info("wallet disconnected")
	return c.store.Snapshot()
}

func (c *Controller) connectedWallet() Wallet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wallet
}

func (c *Controller) setStatus(a session.Action, msg string) {
	c.store.Update(func(s session.State) session.State { return s.WithStatus(a, msg) })
}

// fail records msg as the action's status and returns err unchanged.
func (c *Controller) fail(a session.Action, err *apperrors.AppError) error {
	c.setStatus(a, err.Message)
	return err
}

func (c *Controller) record(ctx context.Context, op *model.Operation) {
	if c.ledger == nil || op == nil {
		return
	}
	op.RequestID = RequestID(ctx)
	if op.CreatedAt.IsZero() {
		op.CreatedAt = c.store.Now()
	}
	c.ledger.Record(op)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func addrHex(a *common.Address) string {
	if a == nil {
		return ""
	}
	return a.Hex()
}

func weiString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}

func errorf(t apperrors.ErrorType, format string, args ...any) *apperrors.AppError {
	return apperrors.New(t, fmt.Sprintf(format, args...), nil)
}

type requestIDKey struct{}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
