package service

import (
	"context"
	"fmt"
	"math/big"
	"slices"
	"time"

	"github.com/agentvault/sessiongate/internal/classify"
	"github.com/agentvault/sessiongate/internal/model"
	"github.com/agentvault/sessiongate/internal/pkg/apperrors"
	"github.com/agentvault/sessiongate/internal/pkg/metrics"
	"github.com/agentvault/sessiongate/internal/session"
	"github.com/agentvault/sessiongate/internal/smartaccount"
	"github.com/agentvault/sessiongate/internal/vault"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const setupRequiredMsg = "Complete setup first: create the smart account and issue a session key."

// AuthorizedCall is one vault call made under the session grant.
type AuthorizedCall struct {
	Function string
	Args     []any
	Value    *big.Int
	// Classify carries the local state quoted back in failure messages.
	Classify classify.Context
}

// SubmitAuthorizedCall encodes, prepares, corrects, signs with the session
// key and submits one call. The owner key is never used here. Failures come
// back classified.
func (c *Controller) SubmitAuthorizedCall(ctx context.Context, call AuthorizedCall) (string, error) {
	if !slices.Contains(vault.SessionFunctions, call.Function) {
		return "", apperrors.NewInvalidRequest(fmt.Sprintf("%s is not covered by the session grant", call.Function))
	}
	st := c.store.State()
	key := c.sessionSigner()
	if !st.Ready() || key == nil || key.Address() != st.Key.Address {
		return "", apperrors.NewSetupRequired(setupRequiredMsg)
	}
	if st.Key.Expired(c.store.Now()) {
		return "", apperrors.New(apperrors.ErrAuthFailed, "Session key expired. Issue a new session key.", nil)
	}

	data, err := vault.ABI().Pack(call.Function, call.Args...)
	if err != nil {
		return "", apperrors.NewInvalidRequest("Could not encode " + call.Function + ": " + err.Error())
	}

	account := *st.SmartAccount
	caps := &smartaccount.Capabilities{
		Permissions: &smartaccount.PermissionsCapability{Context: st.Key.Grant},
	}
	calls := []smartaccount.Call{c.vaultCall(data, call.Value)}

	cc := call.Classify
	cc.SmartAccount = account
	cc.InfraHost = c.settings.InfraHost

	start := time.Now()
	callID, err := c.submit(ctx, account, calls, caps, key)
	if err != nil {
		return "", c.callFailed(call.Function, "session", err, cc, start)
	}
	metrics.AuthorizedCalls.WithLabelValues(call.Function, "session", model.OutcomeOK).Inc()
	c.log.Info("authorized call submitted", "function", call.Function, "smart_account", account.Hex(), "session_key", key.Address().Hex(), "call_id", callID)
	return callID, nil
}

// submitOwnerCall runs deposit and setMyTokenLimits, which sit outside the
// grant and are signed by the owner wallet.
func (c *Controller) submitOwnerCall(ctx context.Context, w Wallet, account common.Address, fn string, data []byte, value *big.Int, cc classify.Context) (string, error) {
	cc.SmartAccount = account
	cc.InfraHost = c.settings.InfraHost

	start := time.Now()
	callID, err := c.submit(ctx, account, []smartaccount.Call{c.vaultCall(data, value)}, nil, w)
	if err != nil {
		return "", c.callFailed(fn, "owner", err, cc, start)
	}
	metrics.AuthorizedCalls.WithLabelValues(fn, "owner", model.OutcomeOK).Inc()
	c.log.Info("owner call submitted", "function", fn, "smart_account", account.Hex(), "call_id", callID)
	return callID, nil
}

func (c *Controller) submit(ctx context.Context, account common.Address, calls []smartaccount.Call, caps *smartaccount.Capabilities, s smartaccount.Signer) (string, error) {
	prepared, err := c.infra.PrepareCalls(ctx, account, calls, caps)
	if err != nil {
		return "", err
	}
	prepared, corrected, err := smartaccount.StripInitCodeIfDeployed(ctx, c.code, account, prepared)
	if err != nil {
		return "", err
	}
	if corrected {
		c.log.Debug("dropped deployment data for an already deployed account", "smart_account", account.Hex())
	}
	signed, err := smartaccount.SignPreparedCalls(s, prepared, corrected)
	if err != nil {
		return "", err
	}
	signed.Capabilities = caps
	return c.infra.SendPreparedCalls(ctx, signed)
}

func (c *Controller) vaultCall(data []byte, value *big.Int) smartaccount.Call {
	call := smartaccount.Call{To: c.settings.Vault, Data: hexutil.Bytes(data)}
	if value != nil && value.Sign() > 0 {
		call.Value = (*hexutil.Big)(new(big.Int).Set(value))
	}
	return call
}

// CallError is a classified pipeline failure. It unwraps to the AppError
// the HTTP layer renders.
type CallError struct {
	Cause classify.Cause
	Err   *apperrors.AppError
}

func (e *CallError) Error() string { return e.Err.Error() }
func (e *CallError) Unwrap() error { return e.Err }

func (c *Controller) callFailed(fn, signerKind string, err error, cc classify.Context, start time.Time) error {
	res := classify.Classify(err, cc)
	metrics.AuthorizedCalls.WithLabelValues(fn, signerKind, model.OutcomeFailed).Inc()
	metrics.ClassifiedFailures.WithLabelValues(string(res.Cause)).Inc()
	c.log.Warn("call failed", "function", fn, "signer", signerKind, "cause", res.Cause, "latency_ms", time.Since(start).Milliseconds(), "error", classify.Redact(err.Error()))
	return &CallError{Cause: res.Cause, Err: res.Err(err)}
}

// classifyContext is the local view the classifier quotes back.
func classifyContext(st session.State) classify.Context {
	return classify.Context{
		MaxWithdrawals: st.Vault.MaxWithdrawals,
		LocalCount:     st.Vault.WithdrawalCount,
		MaxTotal:       st.Vault.MaxTotal,
		TotalWithdrawn: st.Vault.TotalWithdrawn,
	}
}
