package session

import (
	"math/big"
	"testing"
	"time"

	"github.com/agentvault/sessiongate/internal/pkg/apperrors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	ownerX  = common.HexToAddress("0x000000000000000000000000000000000000000a")
	ownerY  = common.HexToAddress("0x000000000000000000000000000000000000000b")
	account = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	t0      = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
)

func readyState() State {
	return New().
		Connect(ownerX).
		AccountReady(account, ownerX).
		KeyIssued(Key{Address: common.Address{1}, IssuedAt: t0, ExpiresAt: t0.Add(24 * time.Hour), Grant: []byte{0, 1}}).
		VaultRefreshed(VaultRead{Balance: big.NewInt(100), MaxWithdrawals: big.NewInt(5), MaxTotal: big.NewInt(0), TotalWithdrawn: big.NewInt(0), WithdrawalCount: big.NewInt(0)}, t0)
}

func TestTransitionsDoNotMutateInput(t *testing.T) {
	before := readyState()
	after := before.WithdrawApplied(big.NewInt(10), t0)

	assert.Equal(t, int64(100), before.Vault.Balance.Int64())
	assert.Equal(t, int64(0), before.Vault.WithdrawalCount)
	assert.Empty(t, before.Events)

	assert.Equal(t, int64(90), after.Vault.Balance.Int64())
	assert.Equal(t, int64(10), after.Vault.TotalWithdrawn.Int64())
	assert.Equal(t, int64(1), after.Vault.WithdrawalCount)
	require.Len(t, after.Events, 1)
	assert.Equal(t, EventWithdraw, after.Events[0].Type)
}

func TestCountEqualsSuccessfulWithdrawals(t *testing.T) {
	s := readyState()
	for i := 0; i < 4; i++ {
		s = s.WithdrawApplied(big.NewInt(1), t0)
		s = s.PingApplied(t0)
	}
	assert.Equal(t, int64(4), s.Vault.WithdrawalCount)
	assert.Len(t, s.Events, 8)

	s = s.VaultRefreshed(VaultRead{Balance: big.NewInt(96), WithdrawalCount: big.NewInt(3)}, t0)
	assert.Equal(t, int64(3), s.Vault.WithdrawalCount)
}

func TestKeyIssuedReplacesKeyAndResetsCounters(t *testing.T) {
	s := readyState().WithdrawApplied(big.NewInt(5), t0)
	next := s.KeyIssued(Key{Address: common.Address{2}, ExpiresAt: t0.Add(time.Hour), Grant: []byte{9}})

	assert.Equal(t, common.Address{2}, next.Key.Address)
	assert.Equal(t, int64(0), next.Vault.WithdrawalCount)
	assert.Equal(t, 0, next.Vault.TotalWithdrawn.Sign())
	assert.Equal(t, common.Address{1}, s.Key.Address)
}

func TestAccountReadyKeepsKeyForSameAccount(t *testing.T) {
	s := readyState()
	assert.NotNil(t, s.AccountReady(account, ownerX).Key)
	assert.Nil(t, s.AccountReady(common.Address{0xdd}, ownerX).Key)
}

func TestDisconnectClearsIdentityAndKey(t *testing.T) {
	s := readyState().Disconnect()
	assert.Nil(t, s.Connected)
	assert.Nil(t, s.Owner)
	assert.Nil(t, s.SmartAccount)
	assert.Nil(t, s.Key)
	assert.False(t, s.Ready())
}

func TestCheckOwner(t *testing.T) {
	s := readyState()
	assert.NoError(t, s.CheckOwner())

	err := s.Connect(ownerY).CheckOwner()
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrAuthFailed))
}

func TestWithdrawLimitReached(t *testing.T) {
	s := readyState().VaultRefreshed(VaultRead{MaxWithdrawals: big.NewInt(2), WithdrawalCount: big.NewInt(2)}, t0)
	assert.True(t, s.WithdrawLimitReached())

	s = s.VaultRefreshed(VaultRead{MaxWithdrawals: big.NewInt(0), WithdrawalCount: big.NewInt(9)}, t0)
	assert.False(t, s.WithdrawLimitReached())
}

func TestReadFailureKeepsCountersAndGate(t *testing.T) {
	s := readyState().
		VaultRefreshed(VaultRead{Balance: big.NewInt(100), MaxWithdrawals: big.NewInt(2), MaxTotal: big.NewInt(0), TotalWithdrawn: big.NewInt(0), WithdrawalCount: big.NewInt(0)}, t0).
		WithdrawApplied(big.NewInt(1), t0).
		WithdrawApplied(big.NewInt(1), t0)
	require.True(t, s.WithdrawLimitReached())

	failed := s.VaultReadFailed()
	assert.Equal(t, int64(2), failed.Vault.WithdrawalCount)
	assert.Equal(t, int64(2), failed.Vault.TotalWithdrawn.Int64())
	assert.Equal(t, int64(2), failed.Vault.MaxWithdrawals)
	assert.True(t, failed.WithdrawLimitReached())

	snap := failed.Snapshot(t0)
	assert.True(t, snap.Vault.Stale)
	assert.False(t, snap.Vault.CanWithdraw)

	fresh := failed.VaultRefreshed(VaultRead{Balance: big.NewInt(98), MaxWithdrawals: big.NewInt(2), WithdrawalCount: big.NewInt(2)}, t0)
	assert.False(t, fresh.Vault.Stale)
}

func TestOutOfRangeCountsDoNotFlipTheGate(t *testing.T) {
	maxUint256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	s := readyState().VaultRefreshed(VaultRead{Balance: big.NewInt(1), MaxWithdrawals: maxUint256, WithdrawalCount: big.NewInt(7)}, t0)
	assert.Equal(t, int64(0), s.Vault.MaxWithdrawals)
	assert.False(t, s.WithdrawLimitReached())

	huge := new(big.Int).Lsh(big.NewInt(1), 70)
	s = readyState().VaultRefreshed(VaultRead{Balance: big.NewInt(1), MaxWithdrawals: big.NewInt(3), WithdrawalCount: huge}, t0)
	assert.True(t, s.WithdrawLimitReached())
}

func TestSnapshotIsDetached(t *testing.T) {
	s := readyState()
	snap := s.Snapshot(t0)
	assert.Equal(t, "100", snap.Vault.BalanceWei)
	assert.True(t, snap.IsOwner)
	assert.True(t, snap.Vault.CanWithdraw)
	require.NotNil(t, snap.Vault.RemainingWithdrawals)
	assert.Equal(t, int64(5), *snap.Vault.RemainingWithdrawals)

	snap.Status[ActionPing] = "tampered"
	assert.Empty(t, s.Status[ActionPing])

	expired := s.Snapshot(t0.Add(25 * time.Hour))
	assert.True(t, expired.SessionKey.Expired)
	assert.False(t, expired.Vault.CanWithdraw)
}

func TestStoreGateRejectsSecondAction(t *testing.T) {
	store := NewStore(func() time.Time { return t0 })

	release, err := store.Begin(ActionWithdraw)
	require.NoError(t, err)
	assert.Equal(t, ActionWithdraw, store.Snapshot().Loading)

	_, err = store.Begin(ActionPing)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrBusy))

	release()
	release()
	assert.Equal(t, Action(""), store.Snapshot().Loading)

	release2, err := store.Begin(ActionPing)
	require.NoError(t, err)
	release2()
}

func TestStorePublishesSnapshots(t *testing.T) {
	store := NewStore(func() time.Time { return t0 })
	ch, cancel := store.Subscribe()

	store.Update(func(s State) State { return s.Connect(ownerX) })
	snap := <-ch
	assert.Equal(t, ownerX.Hex(), snap.ConnectedAddress)

	cancel()
	cancel()
	store.Update(func(s State) State { return s.Disconnect() })
	_, open := <-ch
	assert.False(t, open)
}
