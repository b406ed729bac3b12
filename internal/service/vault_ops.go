package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/agentvault/sessiongate/internal/model"
	"github.com/agentvault/sessiongate/internal/pkg/apperrors"
	"github.com/agentvault/sessiongate/internal/session"
	"github.com/agentvault/sessiongate/internal/vault"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var reAddress = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// IsAddress reports whether s is a 0x-prefixed 20-byte hex address.
func IsAddress(s string) bool {
	return reAddress.MatchString(s)
}

// Ping proves the grant works end to end.
func (c *Controller) Ping(ctx context.Context) (*model.ActionResult, error) {
	if err := c.sessionGate(session.ActionPing, c.store.State()); err != nil {
		return nil, err
	}
	release, err := c.store.Begin(session.ActionPing)
	if err != nil {
		return nil, err
	}
	defer release()
	st := c.store.State()
	if err := c.sessionGate(session.ActionPing, st); err != nil {
		return nil, err
	}

	start := time.Now()
	c.setStatus(session.ActionPing, "Sending ping...")
	callID, err := c.SubmitAuthorizedCall(ctx, AuthorizedCall{
		Function: vault.FnPing,
		Classify: classifyContext(st),
	})
	c.recordCall(ctx, st, session.ActionPing, vault.FnPing, "session", nil, "", callID, err, start)
	if err != nil {
		return nil, c.failWith(session.ActionPing, err)
	}

	msg := fmt.Sprintf("Success. Call id: %s.", callID)
	c.store.Update(func(s session.State) session.State {
		return s.PingApplied(c.store.Now()).WithStatus(session.ActionPing, msg)
	})
	return &model.ActionResult{Status: msg, CallID: callID, Function: vault.FnPing}, nil
}

// Withdraw pulls amountWei from the vault with the session key. A valid
// recipient sends the funds there via withdrawTo; anything else withdraws to
// the smart account.
func (c *Controller) Withdraw(ctx context.Context, amountWei, recipient string) (*model.ActionResult, error) {
	if err := c.withdrawGate(c.store.State()); err != nil {
		return nil, err
	}
	amount, ok := new(big.Int).SetString(strings.TrimSpace(amountWei), 10)
	if !ok || amount.Sign() <= 0 {
		return nil, c.fail(session.ActionWithdraw, apperrors.NewInvalidRequest("Enter a positive amount in wei."))
	}

	fn := vault.FnWithdraw
	var to common.Address
	recipient = strings.TrimSpace(recipient)
	if IsAddress(recipient) {
		fn = vault.FnWithdrawTo
		to = common.HexToAddress(recipient)
	}

	release, err := c.store.Begin(session.ActionWithdraw)
	if err != nil {
		return nil, err
	}
	defer release()
	// Another action may have landed between the first check and the gate.
	st := c.store.State()
	if err := c.withdrawGate(st); err != nil {
		return nil, err
	}

	start := time.Now()
	account := *st.SmartAccount
	if bal := c.freshBalance(ctx, account, st.Vault.Balance); bal != nil && bal.Cmp(amount) < 0 {
		msg := fmt.Sprintf("Insufficient vault balance (%s wei). You requested %s wei. Deposit first.", bal, amount)
		c.recordCall(ctx, st, session.ActionWithdraw, fn, "session", amount, addrOrEmpty(fn, to), "", errors.New(msg), start)
		return nil, c.fail(session.ActionWithdraw, apperrors.New(apperrors.ErrChainRevert, msg, nil))
	}

	keyID := st.Key.Address
	args := []any{amount, keyID}
	if fn == vault.FnWithdrawTo {
		args = []any{amount, to, keyID}
	}
	cc := classifyContext(st)
	cc.WithdrawTo = fn == vault.FnWithdrawTo

	c.setStatus(session.ActionWithdraw, "Submitting withdrawal...")
	callID, err := c.SubmitAuthorizedCall(ctx, AuthorizedCall{Function: fn, Args: args, Classify: cc})
	c.recordCall(ctx, st, session.ActionWithdraw, fn, "session", amount, addrOrEmpty(fn, to), callID, err, start)
	if err != nil {
		return nil, c.failWith(session.ActionWithdraw, err)
	}

	var msg string
	c.store.Update(func(s session.State) session.State {
		s = s.WithdrawApplied(amount, c.store.Now())
		msg = withdrawStatus(s, callID)
		return s.WithStatus(session.ActionWithdraw, msg)
	})
	return &model.ActionResult{Status: msg, CallID: callID, Function: fn, AmountWei: amount.String()}, nil
}

func withdrawStatus(s session.State, callID string) string {
	limit := s.Vault.MaxWithdrawals
	if limit <= 0 {
		return fmt.Sprintf("Withdrawal submitted. Call id: %s.", callID)
	}
	n := s.Vault.WithdrawalCount
	left := limit - n
	if left <= 0 {
		return fmt.Sprintf("Withdrawal %d/%d submitted. Call id: %s. Limit reached; issue a new session key for more.", n, limit, callID)
	}
	return fmt.Sprintf("Withdrawal %d/%d submitted. Call id: %s. %d left on this session key.", n, limit, callID, left)
}

// Deposit sends ETH from the smart account into the vault with the owner
// signer, then polls until the vault balance reflects it. amountEth is a
// decimal ETH string; empty uses the configured default.
func (c *Controller) Deposit(ctx context.Context, amountEth string) (*model.ActionResult, error) {
	if _, err := c.ownerGate(session.ActionDeposit, c.store.State()); err != nil {
		return nil, err
	}
	amount, err := parseEth(amountEth, c.settings.DefaultDeposit)
	if err != nil {
		return nil, c.fail(session.ActionDeposit, apperrors.NewInvalidRequest(err.Error()))
	}

	release, err := c.store.Begin(session.ActionDeposit)
	if err != nil {
		return nil, err
	}
	defer release()
	st := c.store.State()
	w, err := c.ownerGate(session.ActionDeposit, st)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	account := *st.SmartAccount
	baseline := c.freshBalance(ctx, account, st.Vault.Balance)
	if baseline == nil {
		baseline = new(big.Int)
	}

	data, err := vault.PackDeposit()
	if err != nil {
		return nil, c.fail(session.ActionDeposit, apperrors.Wrap(err))
	}
	c.setStatus(session.ActionDeposit, fmt.Sprintf("Depositing %s ETH...", FormatEth(amount)))
	callID, err := c.submitOwnerCall(ctx, w, account, vault.FnDeposit, data, amount, classifyContext(st))
	if err != nil {
		c.recordCall(ctx, st, session.ActionDeposit, vault.FnDeposit, "owner", amount, "", "", err, start)
		return nil, c.failWith(session.ActionDeposit, err)
	}
	c.store.Update(func(s session.State) session.State {
		return s.DepositSubmitted(amount, c.store.Now()).
			WithStatus(session.ActionDeposit, fmt.Sprintf("Deposit submitted. Call id: %s. Waiting for confirmation...", callID))
	})

	target := new(big.Int).Add(baseline, amount)
	confirmed := c.awaitBalance(ctx, account, target)

	op := &model.Operation{
		ID:           newOperationID(),
		Action:       string(session.ActionDeposit),
		Function:     vault.FnDeposit,
		Signer:       "owner",
		SmartAccount: account.Hex(),
		AmountWei:    amount.String(),
		CallID:       callID,
		Outcome:      model.OutcomeOK,
		LatencyMs:    time.Since(start).Milliseconds(),
	}
	var msg string
	if confirmed {
		msg = fmt.Sprintf("Deposit confirmed. Call id: %s.", callID)
		if bal := c.store.State().Vault.Balance; bal != nil {
			msg = fmt.Sprintf("Deposit confirmed. Vault balance: %s ETH. Call id: %s.", FormatEth(bal), callID)
		}
	} else {
		msg = "Deposit may still be pending. Wait and refresh."
		op.Outcome = model.OutcomePending
	}
	c.record(ctx, op)
	c.setStatus(session.ActionDeposit, msg)

	return &model.ActionResult{
		Status:    msg,
		CallID:    callID,
		Function:  vault.FnDeposit,
		AmountWei: amount.String(),
		Confirmed: &confirmed,
		Pending:   !confirmed,
	}, nil
}

// SetLimits updates the account's own withdrawal limits with the owner
// signer. A zero maxTotal means no total cap.
func (c *Controller) SetLimits(ctx context.Context, maxWithdrawals, maxTotalWei string) (*model.ActionResult, error) {
	if _, err := c.ownerGate(session.ActionSetLimits, c.store.State()); err != nil {
		return nil, err
	}
	maxCount, ok := parseNonNegative(maxWithdrawals)
	if !ok {
		return nil, c.fail(session.ActionSetLimits, apperrors.NewInvalidRequest("Max withdrawals must be a non-negative integer."))
	}
	maxTotal, ok := parseNonNegative(maxTotalWei)
	if !ok {
		return nil, c.fail(session.ActionSetLimits, apperrors.NewInvalidRequest("Max total must be a non-negative integer amount in wei."))
	}

	release, err := c.store.Begin(session.ActionSetLimits)
	if err != nil {
		return nil, err
	}
	defer release()
	st := c.store.State()
	w, err := c.ownerGate(session.ActionSetLimits, st)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	data, err := vault.PackSetLimits(c.settings.Token, maxCount, maxTotal)
	if err != nil {
		return nil, c.fail(session.ActionSetLimits, apperrors.NewInvalidRequest(err.Error()))
	}
	c.setStatus(session.ActionSetLimits, "Setting limits...")
	account := *st.SmartAccount
	callID, err := c.submitOwnerCall(ctx, w, account, vault.FnSetLimits, data, nil, classifyContext(st))
	c.recordCall(ctx, st, session.ActionSetLimits, vault.FnSetLimits, "owner", nil, "", callID, err, start)
	if err != nil {
		return nil, c.failWith(session.ActionSetLimits, err)
	}

	msg := fmt.Sprintf("Your limits set. Call id: %s", callID)
	c.setStatus(session.ActionSetLimits, msg)
	c.Refresh(ctx)
	return &model.ActionResult{Status: msg, CallID: callID, Function: vault.FnSetLimits}, nil
}

// sessionGate rejects session-key actions before setup is complete.
func (c *Controller) sessionGate(a session.Action, st session.State) error {
	if !st.Ready() {
		return c.fail(a, apperrors.NewSetupRequired(setupRequiredMsg))
	}
	return nil
}

// withdrawGate adds the local count limit to sessionGate. Actions run it
// once up front and again on the state read under the action gate.
func (c *Controller) withdrawGate(st session.State) error {
	if err := c.sessionGate(session.ActionWithdraw, st); err != nil {
		return err
	}
	if st.WithdrawLimitReached() {
		msg := fmt.Sprintf("Withdrawal limit reached (%d/%d). Issue a new session key or raise the limit.", st.Vault.WithdrawalCount, st.Vault.MaxWithdrawals)
		return c.fail(session.ActionWithdraw, apperrors.New(apperrors.ErrChainRevert, msg, nil))
	}
	return nil
}

// ownerGate checks the preconditions of owner-signed calls and returns the
// connected wallet.
func (c *Controller) ownerGate(a session.Action, st session.State) (Wallet, error) {
	w := c.connectedWallet()
	if w == nil || st.SmartAccount == nil {
		return nil, c.fail(a, apperrors.NewSetupRequired("Create the smart account first."))
	}
	if err := st.CheckOwner(); err != nil {
		return nil, c.fail(a, apperrors.Wrap(err))
	}
	if c.settings.VaultConfigErr != nil {
		return nil, c.fail(a, apperrors.Wrap(c.settings.VaultConfigErr))
	}
	return w, nil
}

// freshBalance reads the vault balance and caches it. On a read failure it
// falls back to the cached value, which may be nil.
func (c *Controller) freshBalance(ctx context.Context, account common.Address, cached *big.Int) *big.Int {
	if c.vault == nil {
		return cached
	}
	bal, err := c.vault.Balance(ctx, c.settings.Token, account)
	if err != nil {
		c.log.Warn("vault balance read failed, using cached value", "smart_account", account.Hex(), "error", err)
		return cached
	}
	c.store.Update(func(s session.State) session.State { return s.BalanceObserved(bal, c.store.Now()) })
	return bal
}

func (c *Controller) failWith(a session.Action, err error) error {
	appErr := apperrors.Wrap(err)
	c.setStatus(a, appErr.Message)
	return err
}

func (c *Controller) recordCall(ctx context.Context, st session.State, a session.Action, fn, signerKind string, amount *big.Int, recipient, callID string, err error, start time.Time) {
	op := &model.Operation{
		ID:           newOperationID(),
		Action:       string(a),
		Function:     fn,
		Signer:       signerKind,
		SmartAccount: addrHex(st.SmartAccount),
		AmountWei:    weiString(amount),
		Recipient:    recipient,
		CallID:       callID,
		Outcome:      model.OutcomeOK,
		LatencyMs:    time.Since(start).Milliseconds(),
	}
	if st.Key != nil && signerKind == "session" {
		op.SessionKey = st.Key.Address.Hex()
	}
	if err != nil {
		op.Outcome = model.OutcomeFailed
		op.Message = apperrors.Wrap(err).Message
		var ce *CallError
		if errors.As(err, &ce) {
			op.Cause = string(ce.Cause)
		} else {
			op.Outcome = model.OutcomeRejected
		}
	}
	c.record(ctx, op)
}

func addrOrEmpty(fn string, to common.Address) string {
	if fn != vault.FnWithdrawTo {
		return ""
	}
	return to.Hex()
}

var weiPerEth = decimal.New(1, 18)

// parseEth converts a decimal ETH string to wei. More than 18 decimals is
// rejected rather than rounded.
func parseEth(s string, def *big.Int) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(big.Int).Set(def), nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, errors.New("Enter the deposit amount in ETH, for example 0.001.")
	}
	wei := d.Mul(weiPerEth)
	if !wei.IsInteger() {
		return nil, errors.New("Deposit amount has more than 18 decimals.")
	}
	if wei.Sign() <= 0 {
		return nil, errors.New("Deposit amount must be positive.")
	}
	return wei.BigInt(), nil
}

// FormatEth renders wei as a decimal ETH string without trailing zeros.
func FormatEth(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -18).String()
}

func parseNonNegative(s string) (*big.Int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(big.Int), true
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, false
	}
	return v, true
}
