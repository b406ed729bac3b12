package classify

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/agentvault/sessiongate/internal/pkg/apperrors"
	"github.com/ethereum/go-ethereum/common"
)

type Cause string

const (
	CauseGasFunding          Cause = "gas_funding"
	CauseSignature           Cause = "signature_validation"
	CauseInfraRPC            Cause = "infra_rpc"
	CauseInsufficientBalance Cause = "vault_insufficient_balance"
	CauseLimitReached        Cause = "vault_limit_reached"
	CauseTransferFailed      Cause = "vault_transfer_failed"
	CauseReverted            Cause = "execution_reverted"
	CauseAllowanceExhausted  Cause = "allowance_exhausted"
	CauseTransient           Cause = "transient"
	CauseUnknown             Cause = "unknown"
)

const DefaultInfraHost = "api.g.alchemy.com"

// Context is the local state a few messages quote back to the user.
type Context struct {
	SmartAccount   common.Address
	InfraHost      string
	WithdrawTo     bool
	MaxWithdrawals int64
	LocalCount     int64
	MaxTotal       *big.Int
	TotalWithdrawn *big.Int
}

type Result struct {
	Cause   Cause  `json:"cause"`
	Message string `json:"message"`
}

// ErrorType maps a cause onto the service error taxonomy.
func (r Result) ErrorType() apperrors.ErrorType {
	switch r.Cause {
	case CauseGasFunding:
		return apperrors.ErrSetupRequired
	case CauseSignature, CauseAllowanceExhausted:
		return apperrors.ErrAuthFailed
	case CauseInfraRPC, CauseTransient:
		return apperrors.ErrUpstream
	case CauseInsufficientBalance, CauseLimitReached, CauseTransferFailed, CauseReverted:
		return apperrors.ErrChainRevert
	default:
		return apperrors.ErrInternal
	}
}

// Err wraps the result as an AppError carrying the original failure.
func (r Result) Err(cause error) *apperrors.AppError {
	return apperrors.New(r.ErrorType(), r.Message, cause)
}

var (
	reGasFunding   = regexp.MustCompile(`(?i)sender balance.*is 0|must be at least.*to pay|not enough.*eth|insufficient funds for gas|\bAA21\b`)
	reSignature    = regexp.MustCompile(`(?i)\bAA2[34]\b`)
	reRPCFailed    = regexp.MustCompile(`(?i)RPC Request failed`)
	reInsufficient = regexp.MustCompile(`(?i)InsufficientBalance|insufficient balance`)
	reLimit        = regexp.MustCompile(`(?i)withdrawal limit reached|WithdrawalCountLimitReached|WithdrawalAmountLimitReached`)
	reTransfer     = regexp.MustCompile(`(?i)TransferFailed|transfer failed`)
	reReverted     = regexp.MustCompile(`(?i)execution reverted`)
	reAllowance    = regexp.MustCompile(`(?i)allowance|spend(ing)? limit|insufficient.*spend|native.*limit`)
	reTransient    = regexp.MustCompile(`(?i)missing or invalid parameters|internal error was received`)
	reKeySegment   = regexp.MustCompile(`/v2/[A-Za-z0-9_-]+`)
)

// Classify checks the flattened error text against each bucket, most
// specific first.
func Classify(err error, c Context) Result {
	text := Flatten(err)
	host := c.InfraHost
	if host == "" {
		host = DefaultInfraHost
	}

	switch {
	case reGasFunding.MatchString(text):
		return Result{CauseGasFunding, fmt.Sprintf("Smart account has no ETH for gas. Send funds to %s, then try again.", c.SmartAccount.Hex())}
	case reSignature.MatchString(text):
		return Result{CauseSignature, "Signature validation failed (AA23/AA24). Disconnect, create the smart account, issue a new session key, then try again."}
	case reRPCFailed.MatchString(text) && strings.Contains(strings.ToLower(text), strings.ToLower(host)):
		return Result{CauseInfraRPC, "Smart account RPC failed: " + Truncate(Redact(text), 150)}
	case reInsufficient.MatchString(text):
		return Result{CauseInsufficientBalance, "Vault balance is insufficient. Deposit first, then try again."}
	case reLimit.MatchString(text):
		return Result{CauseLimitReached, fmt.Sprintf("Withdrawal limit reached (%d per session key). Raise it in the limits panel or issue a new session key.", c.MaxWithdrawals)}
	case reTransfer.MatchString(text):
		return Result{CauseTransferFailed, "Vault could not send ETH (transfer failed). Try a different recipient."}
	case reReverted.MatchString(text):
		return Result{CauseReverted, revertedMessage(c)}
	case reAllowance.MatchString(text):
		return Result{CauseAllowanceExhausted, fmt.Sprintf("Session allowance exhausted after %d operations. Issue a new session key.", c.LocalCount)}
	case reTransient.MatchString(text):
		return Result{CauseTransient, "Request failed. If you already funded the smart account, wait a minute and retry. Details: " + Truncate(Redact(text), 200)}
	}

	if text == "" {
		return Result{CauseUnknown, "Unknown error"}
	}
	return Result{CauseUnknown, Truncate(Redact(text), 280)}
}

func revertedMessage(c Context) string {
	msg := "Call reverted. Check the vault balance and withdrawal limits."
	if c.WithdrawTo {
		msg = "Withdraw reverted. The vault may not support withdrawTo()."
	}
	if c.MaxTotal != nil && c.MaxTotal.Sign() > 0 && c.TotalWithdrawn != nil {
		msg += fmt.Sprintf(" Or the max total withdrawal (%s wei) was reached; withdrawn %s wei.", c.MaxTotal, c.TotalWithdrawn)
	}
	return msg
}

// Message is the direct extraction used outside the call pipeline: the raw
// error text with secrets redacted.
func Message(err error) string {
	if err == nil {
		return ""
	}
	return Redact(err.Error())
}

// Redact hides API keys embedded in provider URL paths.
func Redact(s string) string {
	return reKeySegment.ReplaceAllString(s, "/v2/***")
}

func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
