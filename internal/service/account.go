package service

import (
	"context"
	"time"

	"github.com/agentvault/sessiongate/internal/classify"
	"github.com/agentvault/sessiongate/internal/model"
	"github.com/agentvault/sessiongate/internal/pkg/apperrors"
	"github.com/agentvault/sessiongate/internal/session"
)

// CreateOrGetSmartAccount binds the connected wallet to its smart account.
// Requesting the account is idempotent on the infra side, so calling this
// again returns the same address. The session key is left alone.
func (c *Controller) CreateOrGetSmartAccount(ctx context.Context) (*model.AccountResult, error) {
	w := c.connectedWallet()
	if w == nil {
		return nil, c.fail(session.ActionCreateAccount, apperrors.NewSetupRequired("Connect your wallet first."))
	}
	if c.settings.ChainConfigErr != nil {
		return nil, c.fail(session.ActionCreateAccount, apperrors.Wrap(c.settings.ChainConfigErr))
	}
	if c.infra == nil {
		return nil, c.fail(session.ActionCreateAccount, apperrors.NewConfig("Smart account infrastructure is not configured."))
	}

	release, err := c.store.Begin(session.ActionCreateAccount)
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	c.setStatus(session.ActionCreateAccount, "Switching wallet to the target chain...")
	if err := w.SwitchChain(ctx, c.settings.ChainID); err != nil {
		return nil, c.accountFailed(ctx, err, start)
	}
	// Some wallets report the switch before they are usable on the new chain.
	if err := sleepCtx(ctx, c.settings.SwitchSettle); err != nil {
		c.log.Debug("chain switch settle interrupted", "error", err)
	}

	c.setStatus(session.ActionCreateAccount, "Requesting smart account...")
	owner := w.Address()
	acct, err := c.infra.RequestAccount(ctx, owner)
	if err != nil {
		return nil, c.accountFailed(ctx, err, start)
	}

	msg := "Smart account ready: " + acct.AccountAddress.Hex()
	c.store.Update(func(s session.State) session.State {
		return s.AccountReady(acct.AccountAddress, owner).WithStatus(session.ActionCreateAccount, msg)
	})
	c.log.Info("smart account ready", "smart_account", acct.AccountAddress.Hex(), "owner", owner.Hex())

	c.record(ctx, &model.Operation{
		ID:           newOperationID(),
		Action:       string(session.ActionCreateAccount),
		Signer:       "owner",
		SmartAccount: acct.AccountAddress.Hex(),
		Outcome:      model.OutcomeOK,
		LatencyMs:    time.Since(start).Milliseconds(),
	})

	c.Refresh(ctx)

	return &model.AccountResult{
		SmartAccountAddress: acct.AccountAddress.Hex(),
		OwnerAddress:        owner.Hex(),
		Status:              msg,
	}, nil
}

func (c *Controller) accountFailed(ctx context.Context, err error, start time.Time) error {
	msg := classify.Message(err)
	c.log.Warn("smart account request failed", "error", msg)
	c.record(ctx, &model.Operation{
		ID:        newOperationID(),
		Action:    string(session.ActionCreateAccount),
		Signer:    "owner",
		Outcome:   model.OutcomeFailed,
		Message:   msg,
		LatencyMs: time.Since(start).Milliseconds(),
	})
	return c.fail(session.ActionCreateAccount, apperrors.New(apperrors.ErrUpstream, "Smart account request failed: "+msg, err))
}
