package smartaccount

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// SessionPermissions builds the two descriptors every session key is
// granted: the listed vault functions and a native value allowance.
func SessionPermissions(contract common.Address, selectors []string, allowance *big.Int) []Permission {
	return []Permission{
		{
			Type: PermissionFunctionsOnContract,
			Data: FunctionsOnContract{Address: contract, Functions: selectors},
		},
		{
			Type: PermissionNativeTransfer,
			Data: NativeTransfer{Allowance: (*hexutil.Big)(new(big.Int).Set(allowance))},
		},
	}
}
