package signer

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSignerAcceptsPrefixedKey(t *testing.T) {
	key, _ := crypto.GenerateKey()
	keyHex := hexutil.Encode(crypto.FromECDSA(key))

	s, err := NewSigner(keyHex, 11155111)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), s.Address())

	s2, err := NewSigner(keyHex[2:], 11155111)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), s2.Address())

	_, err = NewSigner("", 1)
	assert.Error(t, err)
	_, err = NewSigner("zz", 1)
	assert.Error(t, err)
}

func TestSignMessageRecovers(t *testing.T) {
	s, err := Generate(11155111)
	require.NoError(t, err)

	msg := crypto.Keccak256([]byte("userop"))
	sig, err := s.SignMessage(msg)
	require.NoError(t, err)
	assert.Len(t, sig, 65)
	assert.True(t, sig[64] == 27 || sig[64] == 28)
	assert.Equal(t, 132, len(Hex(sig)))

	got, err := RecoverAddress(accounts.TextHash(msg), sig)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), got)
}

func TestGenerateIsFresh(t *testing.T) {
	a, _ := Generate(1)
	b, _ := Generate(1)
	assert.NotEqual(t, a.Address(), b.Address())
}

func TestSwitchChain(t *testing.T) {
	s, _ := Generate(1)
	require.NoError(t, s.SwitchChain(context.Background(), 11155111))
	assert.Equal(t, int64(11155111), s.ChainID().Int64())
	assert.Error(t, s.SwitchChain(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, s.SwitchChain(ctx, 5))
}

func TestSignTypedDataRecovers(t *testing.T) {
	s, _ := Generate(11155111)
	td := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			"Session": {
				{Name: "key", Type: "address"},
				{Name: "expiry", Type: "uint256"},
			},
		},
		PrimaryType: "Session",
		Domain: apitypes.TypedDataDomain{
			Name:    "sessions",
			ChainId: (*math.HexOrDecimal256)(big.NewInt(11155111)),
		},
		Message: apitypes.TypedDataMessage{
			"key":    s.Address().Hex(),
			"expiry": (*math.HexOrDecimal256)(big.NewInt(1800000000)),
		},
	}

	sig, err := s.SignTypedData(td)
	require.NoError(t, err)

	hash, _, err := apitypes.TypedDataAndHash(td)
	require.NoError(t, err)
	got, err := RecoverAddress(hash, sig)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), got)
}

func TestRecoverRejectsShortSignature(t *testing.T) {
	_, err := RecoverAddress(make([]byte, 32), []byte{1, 2, 3})
	assert.Error(t, err)
}

func BenchmarkSignMessage(b *testing.B) {
	s, _ := Generate(11155111)
	msg := crypto.Keccak256([]byte("userop"))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = s.SignMessage(msg)
	}
}
