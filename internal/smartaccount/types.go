package smartaccount

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Prepared bundle types returned by wallet_prepareCalls.
const (
	TypeUserOpV070 = "user-operation-v070"
	TypeUserOpV060 = "user-operation-v060"
)

// Permission descriptor types.
const (
	PermissionFunctionsOnContract = "functions-on-contract"
	PermissionNativeTransfer      = "native-token-transfer"
)

// Signature request types.
const (
	SignPersonal  = "personal_sign"
	SignTypedData = "eth_signTypedData_v4"
)

const KeyTypeSecp256k1 = "secp256k1"

type Call struct {
	To    common.Address `json:"to"`
	Data  hexutil.Bytes  `json:"data,omitempty"`
	Value *hexutil.Big   `json:"value,omitempty"`
}

type FunctionsOnContract struct {
	Address   common.Address `json:"address"`
	Functions []string       `json:"functions"`
}

type NativeTransfer struct {
	Allowance *hexutil.Big `json:"allowance"`
}

type Permission struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type SessionKey struct {
	PublicKey common.Address `json:"publicKey"`
	Type      string         `json:"type"`
}

type SessionRequest struct {
	Account     common.Address `json:"account"`
	ChainID     *hexutil.Big   `json:"chainId"`
	ExpirySec   int64          `json:"expirySec"`
	Key         SessionKey     `json:"key"`
	Permissions []Permission   `json:"permissions"`
}

type SessionResult struct {
	SessionID        hexutil.Bytes     `json:"sessionId"`
	SignatureRequest *SignatureRequest `json:"signatureRequest"`
}

// PermissionsCapability carries the opaque grant token on every authorized
// call.
type PermissionsCapability struct {
	Context hexutil.Bytes `json:"context"`
}

type PaymasterService struct {
	PolicyID string `json:"policyId"`
}

type Capabilities struct {
	Permissions      *PermissionsCapability `json:"permissions,omitempty"`
	PaymasterService *PaymasterService      `json:"paymasterService,omitempty"`
}

type RequestAccountParams struct {
	SignerAddress common.Address `json:"signerAddress"`
}

type Account struct {
	AccountAddress common.Address `json:"accountAddress"`
	ID             string         `json:"id,omitempty"`
}

type PrepareParams struct {
	Calls        []Call         `json:"calls"`
	From         common.Address `json:"from"`
	ChainID      *hexutil.Big   `json:"chainId"`
	Capabilities *Capabilities  `json:"capabilities,omitempty"`
}

// SignatureRequest tells the signer what to sign. For personal_sign, Data is
// {"raw": "0x<32 bytes>"}; for typed data it is the EIP-712 payload.
type SignatureRequest struct {
	Type       string          `json:"type"`
	Data       json.RawMessage `json:"data"`
	RawPayload hexutil.Bytes   `json:"rawPayload,omitempty"`
}

// PreparedCalls is an unsigned bundle. Data is kept raw so fields this
// package does not model round-trip unchanged.
type PreparedCalls struct {
	Type             string            `json:"type"`
	Data             json.RawMessage   `json:"data"`
	ChainID          *hexutil.Big      `json:"chainId"`
	SignatureRequest *SignatureRequest `json:"signatureRequest,omitempty"`
}

type Signature struct {
	Type string        `json:"type"`
	Data hexutil.Bytes `json:"data"`
}

type SignedCalls struct {
	Type         string          `json:"type"`
	Data         json.RawMessage `json:"data"`
	ChainID      *hexutil.Big    `json:"chainId"`
	Signature    Signature       `json:"signature"`
	Capabilities *Capabilities   `json:"capabilities,omitempty"`
}

type SendResult struct {
	PreparedCallIDs []string `json:"preparedCallIds"`
}

// UserOperation is the decoded view of a v0.6 or v0.7 bundle used for
// hashing. Absent fields stay nil.
type UserOperation struct {
	Sender               common.Address  `json:"sender"`
	Nonce                *hexutil.Big    `json:"nonce"`
	Factory              *common.Address `json:"factory,omitempty"`
	FactoryData          hexutil.Bytes   `json:"factoryData,omitempty"`
	InitCode             hexutil.Bytes   `json:"initCode,omitempty"`
	CallData             hexutil.Bytes   `json:"callData"`
	CallGasLimit         *hexutil.Big    `json:"callGasLimit"`
	VerificationGasLimit *hexutil.Big    `json:"verificationGasLimit"`
	PreVerificationGas   *hexutil.Big    `json:"preVerificationGas"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas"`

	Paymaster                     *common.Address `json:"paymaster,omitempty"`
	PaymasterVerificationGasLimit *hexutil.Big    `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       *hexutil.Big    `json:"paymasterPostOpGasLimit,omitempty"`
	PaymasterData                 hexutil.Bytes   `json:"paymasterData,omitempty"`
	PaymasterAndData              hexutil.Bytes   `json:"paymasterAndData,omitempty"`
}

type rawPayload struct {
	Raw hexutil.Bytes `json:"raw"`
}
