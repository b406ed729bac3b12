package signer

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Signer holds a secp256k1 key in memory. It backs both the owner wallet
// and ephemeral session keys.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address

	mu      sync.RWMutex
	chainID *big.Int
}

// NewSigner parses a hex private key, with or without 0x prefix.
func NewSigner(privateKeyHex string, chainID int64) (*Signer, error) {
	privateKeyHex = strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	if privateKeyHex == "" {
		return nil, fmt.Errorf("private key is required")
	}
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %v", err)
	}
	return fromKey(key, chainID), nil
}

// Generate creates a fresh random key. Session keys are never persisted.
func Generate(chainID int64) (*Signer, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return fromKey(key, chainID), nil
}

func fromKey(key *ecdsa.PrivateKey, chainID int64) *Signer {
	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: big.NewInt(chainID),
	}
}

func (s *Signer) Address() common.Address {
	return s.address
}

func (s *Signer) ChainID() *big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return new(big.Int).Set(s.chainID)
}

// SwitchChain points the signer at another chain. A local key can sign for
// any chain, so this only updates the chain id used in typed-data domains.
func (s *Signer) SwitchChain(ctx context.Context, chainID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if chainID <= 0 {
		return fmt.Errorf("invalid chain id %d", chainID)
	}
	s.mu.Lock()
	s.chainID = big.NewInt(chainID)
	s.mu.Unlock()
	return nil
}

// SignHash signs a 32-byte digest and returns [R || S || V] with V in {27, 28}.
func (s *Signer) SignHash(hash []byte) ([]byte, error) {
	if len(hash) != 32 {
		return nil, fmt.Errorf("invalid hash length %d", len(hash))
	}
	sig, err := crypto.Sign(hash, s.key)
	if err != nil {
		return nil, err
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return sig, nil
}

// SignMessage is personal_sign (EIP-191) over raw bytes.
func (s *Signer) SignMessage(msg []byte) ([]byte, error) {
	return s.SignHash(accounts.TextHash(msg))
}

// SignTypedData is eth_signTypedData_v4.
func (s *Signer) SignTypedData(td apitypes.TypedData) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return nil, fmt.Errorf("failed to hash typed data: %w", err)
	}
	return s.SignHash(hash)
}

// RecoverAddress returns the address that produced sig over hash.
func RecoverAddress(hash []byte, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("invalid signature length")
	}
	raw := make([]byte, 65)
	copy(raw, sig)
	// Normalize V to 0/1 for recovery.
	if raw[64] >= 27 {
		raw[64] -= 27
	}
	pub, err := crypto.SigToPub(hash, raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("signature recovery failed")
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Hex returns the 0x-encoded signature.
func Hex(sig []byte) string {
	return hexutil.Encode(sig)
}
