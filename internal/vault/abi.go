package vault

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ETHToken is the token key the vault uses for native ETH.
var ETHToken = common.Address{}

// Function names on the vault that a session key is allowed to call.
const (
	FnPing       = "ping"
	FnWithdraw   = "withdraw"
	FnWithdrawTo = "withdrawTo"
	FnDeposit    = "deposit"
	FnSetLimits  = "setMyTokenLimits"
)

// SessionFunctions is the fixed set granted to every session key.
var SessionFunctions = []string{FnPing, FnWithdraw, FnWithdrawTo}

const vaultABIJSON = `[
{"type":"function","name":"ping","inputs":[],"outputs":[],"stateMutability":"nonpayable"},
{"type":"function","name":"withdraw","inputs":[{"name":"amount","type":"uint256"},{"name":"keyId","type":"address"}],"outputs":[],"stateMutability":"nonpayable"},
{"type":"function","name":"withdrawTo","inputs":[{"name":"amount","type":"uint256"},{"name":"recipient","type":"address"},{"name":"keyId","type":"address"}],"outputs":[],"stateMutability":"nonpayable"},
{"type":"function","name":"deposit","inputs":[],"outputs":[],"stateMutability":"payable"},
{"type":"function","name":"balances","inputs":[{"name":"token","type":"address"},{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
{"type":"function","name":"getEffectiveLimits","inputs":[{"name":"token","type":"address"},{"name":"account","type":"address"}],"outputs":[{"name":"maxCount","type":"uint256"},{"name":"maxTotal","type":"uint256"}],"stateMutability":"view"},
{"type":"function","name":"totalWithdrawn","inputs":[{"name":"token","type":"address"},{"name":"account","type":"address"},{"name":"key","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
{"type":"function","name":"withdrawalCount","inputs":[{"name":"token","type":"address"},{"name":"account","type":"address"},{"name":"key","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
{"type":"function","name":"setMyTokenLimits","inputs":[{"name":"token","type":"address"},{"name":"maxCount","type":"uint256"},{"name":"maxTotal","type":"uint256"}],"outputs":[],"stateMutability":"nonpayable"},
{"type":"function","name":"owner","inputs":[],"outputs":[{"name":"","type":"address"}],"stateMutability":"view"},
{"type":"error","name":"InsufficientBalance","inputs":[]},
{"type":"error","name":"WithdrawalCountLimitReached","inputs":[]},
{"type":"error","name":"WithdrawalAmountLimitReached","inputs":[]},
{"type":"error","name":"TransferFailed","inputs":[]}
]`

var parsedABI abi.ABI

func init() {
	var err error
	parsedABI, err = abi.JSON(strings.NewReader(vaultABIJSON))
	if err != nil {
		panic("vault: invalid abi: " + err.Error())
	}
}

// ABI returns the parsed vault ABI.
func ABI() abi.ABI {
	return parsedABI
}

// Selector returns the 4-byte selector of a vault function as 0x-hex.
func Selector(name string) (string, bool) {
	m, ok := parsedABI.Methods[name]
	if !ok {
		return "", false
	}
	return hexutil.Encode(m.ID), true
}

// Selectors returns the selectors a session key is granted, in grant order.
func Selectors() []string {
	out := make([]string, 0, len(SessionFunctions))
	for _, fn := range SessionFunctions {
		if sel, ok := Selector(fn); ok {
			out = append(out, sel)
		}
	}
	return out
}

// ErrorName resolves a custom-error revert payload to its name.
func ErrorName(revertData []byte) (string, bool) {
	if len(revertData) < 4 {
		return "", false
	}
	for name, e := range parsedABI.Errors {
		if string(e.ID[:4]) == string(revertData[:4]) {
			return name, true
		}
	}
	return "", false
}
