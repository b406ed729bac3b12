package classify

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/agentvault/sessiongate/internal/pkg/apperrors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
)

var account = common.HexToAddress("0x1111111111111111111111111111111111111111")

// causeErr keeps its cause out of Error(), the way SDK errors with separate
// message and details fields do.
type causeErr struct {
	msg     string
	details string
	cause   error
}

func (e *causeErr) Error() string   { return e.msg }
func (e *causeErr) Details() string { return e.details }
func (e *causeErr) Unwrap() error   { return e.cause }

type dataErr struct {
	msg  string
	data any
}

func (e *dataErr) Error() string          { return e.msg }
func (e *dataErr) ErrorCode() int         { return 3 }
func (e *dataErr) ErrorData() interface{} { return e.data }

func TestDeepVaultBalanceBeatsGenericText(t *testing.T) {
	err := &causeErr{
		msg: "Missing or invalid parameters",
		cause: &causeErr{
			msg:     "execution reverted",
			details: "internal error was received",
			cause:   &causeErr{msg: "MockVault: insufficient balance"},
		},
	}
	r := Classify(err, Context{SmartAccount: account})
	assert.Equal(t, CauseInsufficientBalance, r.Cause)
	assert.Equal(t, apperrors.ErrChainRevert, r.ErrorType())
}

func TestGasFundingComesFirst(t *testing.T) {
	err := fmt.Errorf("wallet_prepareCalls: %w", errors.New("sender balance and deposit together is 0 but must be at least 1234 to pay for this operation"))
	r := Classify(err, Context{SmartAccount: account})
	assert.Equal(t, CauseGasFunding, r.Cause)
	assert.Contains(t, r.Message, account.Hex())
}

func TestSignatureValidation(t *testing.T) {
	r := Classify(errors.New("UserOperation reverted during simulation with reason: AA23 reverted"), Context{})
	assert.Equal(t, CauseSignature, r.Cause)
	assert.Equal(t, apperrors.ErrAuthFailed, r.ErrorType())
}

func TestInfraRPCFailureIsRedacted(t *testing.T) {
	err := errors.New(`RPC Request failed. URL: https://api.g.alchemy.com/v2/sEcReTkEy_123 Request body: {"method":"wallet_prepareCalls"}`)
	r := Classify(err, Context{})
	assert.Equal(t, CauseInfraRPC, r.Cause)
	assert.NotContains(t, r.Message, "sEcReTkEy_123")
	assert.Contains(t, r.Message, "/v2/***")

	other := Classify(errors.New("RPC Request failed. URL: https://rpc.example.org"), Context{})
	assert.NotEqual(t, CauseInfraRPC, other.Cause)
}

func TestInfraRPCDetailIsTruncated(t *testing.T) {
	err := errors.New("RPC Request failed at api.g.alchemy.com " + strings.Repeat("x", 400))
	r := Classify(err, Context{})
	assert.True(t, strings.HasSuffix(r.Message, "…"))
	assert.LessOrEqual(t, len([]rune(r.Message)), len("Smart account RPC failed: ")+151)
}

func TestVaultRevertOrdering(t *testing.T) {
	assert.Equal(t, CauseLimitReached, Classify(errors.New("execution reverted: WithdrawalCountLimitReached()"), Context{MaxWithdrawals: 2}).Cause)
	assert.Equal(t, CauseTransferFailed, Classify(errors.New("execution reverted: TransferFailed()"), Context{}).Cause)

	r := Classify(errors.New("execution reverted"), Context{WithdrawTo: true, MaxTotal: big.NewInt(10), TotalWithdrawn: big.NewInt(10)})
	assert.Equal(t, CauseReverted, r.Cause)
	assert.Contains(t, r.Message, "withdrawTo()")
	assert.Contains(t, r.Message, "10 wei")
}

func TestRevertDataIsNamed(t *testing.T) {
	err := &dataErr{msg: "execution reverted", data: "0x" + selectorHex("WithdrawalAmountLimitReached()")}
	r := Classify(fmt.Errorf("wallet_prepareCalls: %w", err), Context{MaxWithdrawals: 3})
	assert.Equal(t, CauseLimitReached, r.Cause)
	assert.Contains(t, r.Message, "3 per session key")
}

func selectorHex(sig string) string {
	return hex.EncodeToString(crypto.Keccak256([]byte(sig))[:4])
}

func TestUnrelatedLimitsAreNotAllowance(t *testing.T) {
	for _, text := range []string{"rate limit exceeded", "gas limit exceeded", "max fee per gas exceeded"} {
		r := Classify(errors.New(text), Context{LocalCount: 4})
		assert.NotEqual(t, CauseAllowanceExhausted, r.Cause, text)
	}
	r := Classify(errors.New("session spending limit hit"), Context{LocalCount: 2})
	assert.Equal(t, CauseAllowanceExhausted, r.Cause)
}

func TestAllowanceExhaustedQuotesLocalCount(t *testing.T) {
	r := Classify(errors.New("native token spend limit exceeded"), Context{LocalCount: 4})
	assert.Equal(t, CauseAllowanceExhausted, r.Cause)
	assert.Contains(t, r.Message, "after 4 operations")
}

func TestTransientAndFallback(t *testing.T) {
	assert.Equal(t, CauseTransient, Classify(errors.New("An internal error was received."), Context{}).Cause)

	r := Classify(errors.New(strings.Repeat("z", 500)), Context{})
	assert.Equal(t, CauseUnknown, r.Cause)
	assert.Equal(t, 281, len([]rune(r.Message)))

	assert.Equal(t, "Unknown error", Classify(nil, Context{}).Message)
}

func TestFlattenIsBounded(t *testing.T) {
	var err error = &causeErr{msg: "level-6"}
	for i := 5; i >= 0; i-- {
		err = &causeErr{msg: fmt.Sprintf("level-%d", i), cause: err}
	}
	text := Flatten(err)
	assert.Contains(t, text, "level-4")
	assert.NotContains(t, text, "level-5")
}

func TestFlattenFollowsJoinedErrors(t *testing.T) {
	err := errors.Join(errors.New("first"), &causeErr{msg: "second", details: "detail"})
	text := Flatten(err)
	assert.Contains(t, text, "first")
	assert.Contains(t, text, "detail")
}

func TestMessageRedacts(t *testing.T) {
	assert.Equal(t, "dial https://eth-sepolia.g.alchemy.com/v2/***: refused", Message(errors.New("dial https://eth-sepolia.g.alchemy.com/v2/abc123: refused")))
	assert.Equal(t, "", Message(nil))
}
