package session

import (
	"time"
)

// Snapshot is the read-only view published over HTTP and the feed. Amounts
// are decimal wei strings.
type Snapshot struct {
	ConnectedAddress    string            `json:"connected_address,omitempty"`
	OwnerAddress        string            `json:"owner_address,omitempty"`
	IsOwner             bool              `json:"is_owner"`
	SmartAccountAddress string            `json:"smart_account_address,omitempty"`
	SessionKey          *KeyView          `json:"session_key,omitempty"`
	Vault               VaultView         `json:"vault"`
	Events              []EventView       `json:"events"`
	Status              map[Action]string `json:"status"`
	Loading             Action            `json:"loading,omitempty"`
	TakenAt             time.Time         `json:"taken_at"`
}

type KeyView struct {
	Address   string    `json:"address"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Expired   bool      `json:"expired"`
	HasGrant  bool      `json:"has_grant"`
}

type VaultView struct {
	BalanceWei           string `json:"balance_wei,omitempty"`
	MaxWithdrawals       int64  `json:"max_withdrawals"`
	MaxTotalWei          string `json:"max_total_wei,omitempty"`
	TotalWithdrawnWei    string `json:"total_withdrawn_wei,omitempty"`
	WithdrawalCount      int64  `json:"withdrawal_count"`
	RemainingWithdrawals *int64 `json:"remaining_withdrawals,omitempty"`
	CanWithdraw          bool   `json:"can_withdraw"`
	Owner                string `json:"owner,omitempty"`
	Stale                bool   `json:"stale,omitempty"`
}

type EventView struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	AmountWei string    `json:"amount_wei,omitempty"`
}

func (s State) Snapshot(now time.Time) Snapshot {
	snap := Snapshot{
		IsOwner: s.Connected != nil && s.Owner != nil && *s.Connected == *s.Owner,
		Events:  make([]EventView, 0, len(s.Events)),
		Status:  make(map[Action]string, len(s.Status)),
		Loading: s.Loading,
		TakenAt: now,
	}
	if s.Connected != nil {
		snap.ConnectedAddress = s.Connected.Hex()
	}
	if s.Owner != nil {
		snap.OwnerAddress = s.Owner.Hex()
	}
	if s.SmartAccount != nil {
		snap.SmartAccountAddress = s.SmartAccount.Hex()
	}
	if s.Key != nil {
		snap.SessionKey = &KeyView{
			Address:   s.Key.Address.Hex(),
			IssuedAt:  s.Key.IssuedAt,
			ExpiresAt: s.Key.ExpiresAt,
			Expired:   s.Key.Expired(now),
			HasGrant:  len(s.Key.Grant) > 0,
		}
	}

	v := s.Vault
	snap.Vault = VaultView{
		MaxWithdrawals:  v.MaxWithdrawals,
		WithdrawalCount: v.WithdrawalCount,
		CanWithdraw:     s.Ready() && !s.Key.Expired(now) && !s.WithdrawLimitReached(),
		Stale:           v.Stale,
	}
	if v.Balance != nil {
		snap.Vault.BalanceWei = v.Balance.String()
	}
	if v.MaxTotal != nil {
		snap.Vault.MaxTotalWei = v.MaxTotal.String()
	}
	if v.TotalWithdrawn != nil {
		snap.Vault.TotalWithdrawnWei = v.TotalWithdrawn.String()
	}
	if v.MaxWithdrawals > 0 {
		remaining := v.MaxWithdrawals - v.WithdrawalCount
		if remaining < 0 {
			remaining = 0
		}
		snap.Vault.RemainingWithdrawals = &remaining
	}
	if v.Owner != nil {
		snap.Vault.Owner = v.Owner.Hex()
	}

	for _, e := range s.Events {
		ev := EventView{Type: e.Type, Timestamp: e.Timestamp}
		if e.AmountWei != nil {
			ev.AmountWei = e.AmountWei.String()
		}
		snap.Events = append(snap.Events, ev)
	}
	for k, msg := range s.Status {
		snap.Status[k] = msg
	}
	return snap
}
