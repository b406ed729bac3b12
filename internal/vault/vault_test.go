package vault

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	calls    int
	failures int
	respond  func(method string, args []any) []any
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("connection reset")
	}
	m, err := parsedABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	args, err := m.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}
	return m.Outputs.Pack(f.respond(m.Name, args)...)
}

func TestKnownSelectors(t *testing.T) {
	sel, ok := Selector(FnPing)
	require.True(t, ok)
	assert.Equal(t, "0x5c36b186", sel)

	sel, _ = Selector(FnDeposit)
	assert.Equal(t, "0xd0e30db0", sel)

	sel, _ = Selector("owner")
	assert.Equal(t, "0x8da5cb5b", sel)

	assert.Len(t, Selectors(), 3)
	_, ok = Selector("nope")
	assert.False(t, ok)
}

func TestPackWithdrawCarriesKeyID(t *testing.T) {
	key := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	data, err := PackWithdraw(big.NewInt(7), key)
	require.NoError(t, err)

	m, err := parsedABI.MethodById(data[:4])
	require.NoError(t, err)
	assert.Equal(t, FnWithdraw, m.Name)
	args, err := m.Inputs.Unpack(data[4:])
	require.NoError(t, err)
	assert.Equal(t, int64(7), args[0].(*big.Int).Int64())
	assert.Equal(t, key, args[1].(common.Address))

	_, err = PackWithdraw(big.NewInt(0), key)
	assert.Error(t, err)
	_, err = PackWithdrawTo(nil, key, key)
	assert.Error(t, err)
}

func TestPackSetLimitsRejectsNegative(t *testing.T) {
	_, err := PackSetLimits(ETHToken, big.NewInt(-1), big.NewInt(0))
	assert.Error(t, err)
	_, err = PackSetLimits(ETHToken, big.NewInt(2), big.NewInt(0))
	assert.NoError(t, err)
}

func TestReaderDecodesViews(t *testing.T) {
	account := common.HexToAddress("0x1111111111111111111111111111111111111111")
	owner := common.HexToAddress("0x2222222222222222222222222222222222222222")
	backend := &fakeBackend{respond: func(method string, args []any) []any {
		switch method {
		case "balances":
			assert.Equal(t, ETHToken, args[0])
			assert.Equal(t, account, args[1])
			return []any{big.NewInt(1000)}
		case "getEffectiveLimits":
			return []any{big.NewInt(2), big.NewInt(0)}
		case "withdrawalCount":
			return []any{big.NewInt(1)}
		case "owner":
			return []any{owner}
		}
		return nil
	}}
	r := NewReader(common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"), backend, time.Second, 0)
	ctx := context.Background()

	bal, err := r.Balance(ctx, ETHToken, account)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), bal.Int64())

	limits, err := r.EffectiveLimits(ctx, ETHToken, account)
	require.NoError(t, err)
	assert.Equal(t, int64(2), limits.MaxCount.Int64())
	assert.Equal(t, 0, limits.MaxTotal.Sign())

	n, err := r.WithdrawalCount(ctx, ETHToken, account, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n.Int64())

	got, err := r.Owner(ctx)
	require.NoError(t, err)
	assert.Equal(t, owner, got)
}

func TestReaderRetriesTransientFailures(t *testing.T) {
	backend := &fakeBackend{failures: 1, respond: func(string, []any) []any { return []any{big.NewInt(5)} }}
	r := NewReader(common.Address{1}, backend, time.Second, 1)

	bal, err := r.Balance(context.Background(), ETHToken, common.Address{2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), bal.Int64())
	assert.Equal(t, 2, backend.calls)

	backend.failures = 5
	_, err = r.Balance(context.Background(), ETHToken, common.Address{2})
	assert.ErrorContains(t, err, "balances call failed")
}

func TestErrorName(t *testing.T) {
	id := parsedABI.Errors["WithdrawalCountLimitReached"].ID
	name, ok := ErrorName(id[:4])
	require.True(t, ok)
	assert.Equal(t, "WithdrawalCountLimitReached", name)

	_, ok = ErrorName([]byte{1, 2})
	assert.False(t, ok)
}
