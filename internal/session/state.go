// Package session holds the dashboard's session state as one value with pure
// transitions. Callers never mutate a State in place.
package session

import (
	"math"
	"math/big"
	"time"

	"github.com/agentvault/sessiongate/internal/pkg/apperrors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

type Action string

const (
	ActionCreateAccount Action = "create-account"
	ActionIssueKey      Action = "issue-key"
	ActionPing          Action = "ping"
	ActionWithdraw      Action = "withdraw"
	ActionDeposit       Action = "deposit"
	ActionSetLimits     Action = "set-limits"
)

type EventType string

const (
	EventDeposit  EventType = "deposit"
	EventWithdraw EventType = "withdraw"
	EventPing     EventType = "ping"
)

type Event struct {
	Type      EventType
	Timestamp time.Time
	AmountWei *big.Int
}

// DefaultMaxWithdrawals is assumed until the vault limits are first read.
const DefaultMaxWithdrawals = 2

// Key is the active session key and its grant. The private key itself lives
// with the controller, never in State.
type Key struct {
	Address   common.Address
	IssuedAt  time.Time
	ExpiresAt time.Time
	Grant     hexutil.Bytes
}

func (k *Key) Expired(now time.Time) bool {
	return k == nil || !now.Before(k.ExpiresAt)
}

// VaultCache is the last observed vault state plus optimistic deltas.
type VaultCache struct {
	Balance         *big.Int
	MaxWithdrawals  int64
	MaxTotal        *big.Int
	TotalWithdrawn  *big.Int
	WithdrawalCount int64
	Owner           *common.Address
	ReadAt          time.Time
	// Stale is set when the last re-read failed. Cached values are kept.
	Stale bool
}

// VaultRead is one full re-read of the vault. Counter fields are nil when no
// session key was active.
type VaultRead struct {
	Balance         *big.Int
	MaxWithdrawals  *big.Int
	MaxTotal        *big.Int
	Owner           *common.Address
	TotalWithdrawn  *big.Int
	WithdrawalCount *big.Int
}

type State struct {
	Connected    *common.Address
	Owner        *common.Address
	SmartAccount *common.Address
	Key          *Key
	Vault        VaultCache
	Events       []Event
	Status       map[Action]string
	Loading      Action
}

func New() State {
	return State{
		Vault:  VaultCache{MaxWithdrawals: DefaultMaxWithdrawals},
		Status: map[Action]string{},
	}
}

func (s State) clone() State {
	out := s
	out.Connected = cloneAddr(s.Connected)
	out.Owner = cloneAddr(s.Owner)
	out.SmartAccount = cloneAddr(s.SmartAccount)
	if s.Key != nil {
		k := *s.Key
		k.Grant = append(hexutil.Bytes(nil), s.Key.Grant...)
		out.Key = &k
	}
	out.Vault.Balance = cloneBig(s.Vault.Balance)
	out.Vault.MaxTotal = cloneBig(s.Vault.MaxTotal)
	out.Vault.TotalWithdrawn = cloneBig(s.Vault.TotalWithdrawn)
	out.Vault.Owner = cloneAddr(s.Vault.Owner)
	out.Events = make([]Event, len(s.Events))
	for i, e := range s.Events {
		e.AmountWei = cloneBig(e.AmountWei)
		out.Events[i] = e
	}
	out.Status = make(map[Action]string, len(s.Status))
	for k, v := range s.Status {
		out.Status[k] = v
	}
	return out
}

func (s State) Connect(addr common.Address) State {
	out := s.clone()
	out.Connected = &addr
	return out
}

// Disconnect drops the account, owner, key and grant.
func (s State) Disconnect() State {
	out := s.clone()
	out.Connected = nil
	out.Owner = nil
	out.SmartAccount = nil
	out.Key = nil
	out.Vault = VaultCache{MaxWithdrawals: DefaultMaxWithdrawals}
	return out
}

// AccountReady records the smart account and its owner. A key survives
// reacquisition of the same account only.
func (s State) AccountReady(account, owner common.Address) State {
	out := s.clone()
	if out.SmartAccount != nil && *out.SmartAccount != account {
		out.Key = nil
		out.Vault = VaultCache{MaxWithdrawals: s.Vault.MaxWithdrawals}
	}
	out.SmartAccount = &account
	out.Owner = &owner
	return out
}

// KeyIssued replaces any prior key and grant. Per-key counters start over.
func (s State) KeyIssued(k Key) State {
	out := s.clone()
	k.Grant = append(hexutil.Bytes(nil), k.Grant...)
	out.Key = &k
	out.Vault.WithdrawalCount = 0
	out.Vault.TotalWithdrawn = new(big.Int)
	return out
}

// WithdrawApplied is the optimistic delta after a successful withdrawal.
func (s State) WithdrawApplied(amount *big.Int, now time.Time) State {
	out := s.clone()
	if out.Vault.Balance != nil {
		out.Vault.Balance.Sub(out.Vault.Balance, amount)
	}
	if out.Vault.TotalWithdrawn != nil {
		out.Vault.TotalWithdrawn.Add(out.Vault.TotalWithdrawn, amount)
	}
	out.Vault.WithdrawalCount++
	out.Events = append(out.Events, Event{Type: EventWithdraw, Timestamp: now, AmountWei: cloneBig(amount)})
	return out
}

func (s State) PingApplied(now time.Time) State {
	out := s.clone()
	out.Events = append(out.Events, Event{Type: EventPing, Timestamp: now})
	return out
}

func (s State) DepositSubmitted(amount *big.Int, now time.Time) State {
	out := s.clone()
	out.Events = append(out.Events, Event{Type: EventDeposit, Timestamp: now, AmountWei: cloneBig(amount)})
	return out
}

func (s State) BalanceObserved(balance *big.Int, now time.Time) State {
	out := s.clone()
	out.Vault.Balance = cloneBig(balance)
	out.Vault.ReadAt = now
	return out
}

// VaultRefreshed replaces every cached vault value with a full re-read.
func (s State) VaultRefreshed(r VaultRead, now time.Time) State {
	out := s.clone()
	v := VaultCache{
		Balance:        cloneBig(r.Balance),
		MaxWithdrawals: s.Vault.MaxWithdrawals,
		Owner:          cloneAddr(r.Owner),
		ReadAt:         now,
	}
	if v.Owner == nil {
		v.Owner = cloneAddr(s.Vault.Owner)
	}
	if r.MaxWithdrawals != nil {
		v.MaxWithdrawals = countLimit(r.MaxWithdrawals)
	}
	if r.MaxTotal != nil && r.MaxTotal.Sign() > 0 {
		v.MaxTotal = cloneBig(r.MaxTotal)
	}
	if r.TotalWithdrawn != nil {
		v.TotalWithdrawn = cloneBig(r.TotalWithdrawn)
	}
	if r.WithdrawalCount != nil {
		v.WithdrawalCount = countValue(r.WithdrawalCount)
	}
	out.Vault = v
	return out
}

// VaultReadFailed marks the cache stale. Counters and limits are kept so the
// local withdraw gate stays closed once reached.
func (s State) VaultReadFailed() State {
	out := s.clone()
	out.Vault.Stale = true
	return out
}

// countLimit maps an on-chain uint256 count limit to int64. Values that do
// not fit, such as type(uint256).max, mean no limit.
func countLimit(v *big.Int) int64 {
	if v.Sign() < 0 || !v.IsInt64() {
		return 0
	}
	return v.Int64()
}

// countValue saturates an on-chain counter at MaxInt64.
func countValue(v *big.Int) int64 {
	if v.Sign() < 0 {
		return 0
	}
	if !v.IsInt64() {
		return math.MaxInt64
	}
	return v.Int64()
}

func (s State) WithStatus(a Action, msg string) State {
	out := s.clone()
	out.Status[a] = msg
	return out
}

func (s State) withLoading(a Action) State {
	out := s.clone()
	out.Loading = a
	return out
}

// CheckOwner rejects a connected identity that did not create the account.
func (s State) CheckOwner() error {
	if s.Owner != nil && (s.Connected == nil || *s.Connected != *s.Owner) {
		return apperrors.New(apperrors.ErrAuthFailed, "Only the wallet that created this smart account can change session keys. Connect with that wallet.", nil)
	}
	return nil
}

// WithdrawLimitReached reports whether the cached count has hit the cached
// max. A zero max means the vault enforces no count limit.
func (s State) WithdrawLimitReached() bool {
	return s.Vault.MaxWithdrawals > 0 && s.Vault.WithdrawalCount >= s.Vault.MaxWithdrawals
}

// Ready reports whether account, key and grant are all present.
func (s State) Ready() bool {
	return s.SmartAccount != nil && s.Key != nil && len(s.Key.Grant) > 0
}

func cloneAddr(a *common.Address) *common.Address {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

func cloneBig(b *big.Int) *big.Int {
	if b == nil {
		return nil
	}
	return new(big.Int).Set(b)
}
