package vault

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

func PackPing() ([]byte, error) {
	return pack(FnPing)
}

// PackWithdraw encodes withdraw(amount, keyId). keyID is the session key
// address the vault attributes the withdrawal to.
func PackWithdraw(amount *big.Int, keyID common.Address) ([]byte, error) {
	if err := positive(amount); err != nil {
		return nil, err
	}
	return pack(FnWithdraw, amount, keyID)
}

func PackWithdrawTo(amount *big.Int, recipient, keyID common.Address) ([]byte, error) {
	if err := positive(amount); err != nil {
		return nil, err
	}
	return pack(FnWithdrawTo, amount, recipient, keyID)
}

func PackDeposit() ([]byte, error) {
	return pack(FnDeposit)
}

// PackSetLimits encodes setMyTokenLimits. A zero maxTotal means unlimited.
func PackSetLimits(token common.Address, maxCount, maxTotal *big.Int) ([]byte, error) {
	if maxCount == nil || maxCount.Sign() < 0 || maxTotal == nil || maxTotal.Sign() < 0 {
		return nil, fmt.Errorf("limits must be non-negative")
	}
	return pack(FnSetLimits, token, maxCount, maxTotal)
}

func pack(name string, args ...any) ([]byte, error) {
	data, err := parsedABI.Pack(name, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", name, err)
	}
	return data, nil
}

func positive(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("amount must be positive")
	}
	return nil
}
