package smartaccount

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	EntryPointV07 = common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")
	EntryPointV06 = common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")
)

var (
	tAddress, _ = abi.NewType("address", "", nil)
	tUint256, _ = abi.NewType("uint256", "", nil)
	tBytes32, _ = abi.NewType("bytes32", "", nil)

	packedV07 = abi.Arguments{
		{Type: tAddress}, {Type: tUint256}, {Type: tBytes32}, {Type: tBytes32},
		{Type: tBytes32}, {Type: tUint256}, {Type: tBytes32}, {Type: tBytes32},
	}
	packedV06 = abi.Arguments{
		{Type: tAddress}, {Type: tUint256}, {Type: tBytes32}, {Type: tBytes32},
		{Type: tUint256}, {Type: tUint256}, {Type: tUint256}, {Type: tUint256}, {Type: tUint256},
		{Type: tBytes32},
	}
	outerArgs = abi.Arguments{{Type: tBytes32}, {Type: tAddress}, {Type: tUint256}}
)

// UserOpHash computes the entry point hash of a user-operation bundle.
func UserOpHash(p *PreparedCalls) (common.Hash, error) {
	if p == nil {
		return common.Hash{}, fmt.Errorf("prepared calls is nil")
	}
	var op UserOperation
	if err := json.Unmarshal(p.Data, &op); err != nil {
		return common.Hash{}, fmt.Errorf("invalid user operation: %w", err)
	}
	chainID := bigOf(p.ChainID)

	var (
		inner      []byte
		entryPoint common.Address
		err        error
	)
	switch p.Type {
	case TypeUserOpV070:
		entryPoint = EntryPointV07
		inner, err = packedV07.Pack(
			op.Sender,
			bigOf(op.Nonce),
			crypto.Keccak256Hash(op.initCodeV07()),
			crypto.Keccak256Hash(op.CallData),
			concat128(op.VerificationGasLimit, op.CallGasLimit),
			bigOf(op.PreVerificationGas),
			concat128(op.MaxPriorityFeePerGas, op.MaxFeePerGas),
			crypto.Keccak256Hash(op.paymasterAndDataV07()),
		)
	case TypeUserOpV060:
		entryPoint = EntryPointV06
		inner, err = packedV06.Pack(
			op.Sender,
			bigOf(op.Nonce),
			crypto.Keccak256Hash(op.InitCode),
			crypto.Keccak256Hash(op.CallData),
			bigOf(op.CallGasLimit),
			bigOf(op.VerificationGasLimit),
			bigOf(op.PreVerificationGas),
			bigOf(op.MaxFeePerGas),
			bigOf(op.MaxPriorityFeePerGas),
			crypto.Keccak256Hash(op.PaymasterAndData),
		)
	default:
		return common.Hash{}, fmt.Errorf("unsupported prepared calls type %q", p.Type)
	}
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack user operation: %w", err)
	}

	outer, err := outerArgs.Pack(crypto.Keccak256Hash(inner), entryPoint, chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack user operation hash: %w", err)
	}
	return crypto.Keccak256Hash(outer), nil
}

// A zero factory means no deployment.
func (op *UserOperation) initCodeV07() []byte {
	if op.Factory == nil || *op.Factory == (common.Address{}) {
		return nil
	}
	return append(op.Factory.Bytes(), op.FactoryData...)
}

func (op *UserOperation) paymasterAndDataV07() []byte {
	if op.Paymaster == nil || *op.Paymaster == (common.Address{}) {
		return nil
	}
	out := op.Paymaster.Bytes()
	out = append(out, common.LeftPadBytes(bigOf(op.PaymasterVerificationGasLimit).Bytes(), 16)...)
	out = append(out, common.LeftPadBytes(bigOf(op.PaymasterPostOpGasLimit).Bytes(), 16)...)
	return append(out, op.PaymasterData...)
}

func concat128(hi, lo *hexutil.Big) [32]byte {
	var out [32]byte
	copy(out[:16], common.LeftPadBytes(bigOf(hi).Bytes(), 16))
	copy(out[16:], common.LeftPadBytes(bigOf(lo).Bytes(), 16))
	return out
}

func bigOf(h *hexutil.Big) *big.Int {
	if h == nil {
		return new(big.Int)
	}
	return h.ToInt()
}
