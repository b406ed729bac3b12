package service

import (
	"context"
	"fmt"
	"time"

	"github.com/agentvault/sessiongate/internal/classify"
	"github.com/agentvault/sessiongate/internal/model"
	"github.com/agentvault/sessiongate/internal/pkg/apperrors"
	"github.com/agentvault/sessiongate/internal/session"
	"github.com/agentvault/sessiongate/internal/signer"
	"github.com/agentvault/sessiongate/internal/smartaccount"
	"github.com/agentvault/sessiongate/internal/vault"
)

// maxKeyAttempts bounds regeneration when a fresh key collides with the
// key it replaces.
const maxKeyAttempts = 3

const keyIssuedStatus = "Session key issued. Limits apply per session key; issue a new key to get fresh limits."

// IssueSessionKey mints a session key, has the owner sign its grant and
// replaces any prior key. Ownership is checked before anything leaves the
// process.
func (c *Controller) IssueSessionKey(ctx context.Context) (*model.SessionKeyResult, error) {
	st := c.store.State()
	w := c.connectedWallet()
	if w == nil || st.SmartAccount == nil {
		return nil, c.fail(session.ActionIssueKey, apperrors.NewSetupRequired("Create the smart account first."))
	}
	if err := st.CheckOwner(); err != nil {
		return nil, c.fail(session.ActionIssueKey, apperrors.Wrap(err))
	}
	if c.settings.VaultConfigErr != nil {
		return nil, c.fail(session.ActionIssueKey, apperrors.Wrap(c.settings.VaultConfigErr))
	}

	release, err := c.store.Begin(session.ActionIssueKey)
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	account := *st.SmartAccount

	key, err := c.mintKey(st)
	if err != nil {
		return nil, c.fail(session.ActionIssueKey, apperrors.New(apperrors.ErrInternal, "Could not generate a session key: "+err.Error(), err))
	}

	issuedAt := c.store.Now()
	expiresAt := issuedAt.Add(c.settings.SessionTTL)
	selectors := vault.Selectors()

	c.setStatus(session.ActionIssueKey, "Requesting permissions for the session key...")
	res, err := c.infra.CreateSession(ctx, smartaccount.SessionRequest{
		Account:     account,
		ExpirySec:   expiresAt.Unix(),
		Key:         smartaccount.SessionKey{PublicKey: key.Address(), Type: smartaccount.KeyTypeSecp256k1},
		Permissions: smartaccount.SessionPermissions(c.settings.Vault, selectors, c.settings.Allowance),
	})
	if err != nil {
		return nil, c.keyFailed(ctx, account.Hex(), err, start)
	}

	ownerSig, err := smartaccount.SignRequest(w, res.SignatureRequest)
	if err != nil {
		return nil, c.keyFailed(ctx, account.Hex(), err, start)
	}
	grant := smartaccount.GrantContext(res.SessionID, ownerSig)

	c.mu.Lock()
	c.sessionKey = key
	c.mu.Unlock()
	c.store.Update(func(s session.State) session.State {
		return s.KeyIssued(session.Key{
			Address:   key.Address(),
			IssuedAt:  issuedAt,
			ExpiresAt: expiresAt,
			Grant:     grant,
		}).WithStatus(session.ActionIssueKey, keyIssuedStatus)
	})
	c.log.Info("session key issued", "smart_account", account.Hex(), "session_key", key.Address().Hex(), "expires_at", expiresAt)

	c.notifyKey(ctx, key, account.Hex())
	c.record(ctx, &model.Operation{
		ID:           newOperationID(),
		Action:       string(session.ActionIssueKey),
		Signer:       "owner",
		SmartAccount: account.Hex(),
		SessionKey:   key.Address().Hex(),
		Outcome:      model.OutcomeOK,
		LatencyMs:    time.Since(start).Milliseconds(),
	})

	c.Refresh(ctx)

	return &model.SessionKeyResult{
		SessionKeyAddress: key.Address().Hex(),
		ExpiresAt:         expiresAt.Unix(),
		Functions:         append([]string(nil), vault.SessionFunctions...),
		AllowanceWei:      c.settings.Allowance.String(),
		Status:            keyIssuedStatus,
	}, nil
}

// mintKey draws a fresh key whose address differs from the current one, so
// per-key vault counters always start from zero.
func (c *Controller) mintKey(st session.State) (*signer.Signer, error) {
	for i := 0; i < maxKeyAttempts; i++ {
		key, err := c.newKey(c.settings.ChainID)
		if err != nil {
			return nil, err
		}
		if st.Key == nil || key.Address() != st.Key.Address {
			return key, nil
		}
		c.log.Warn("generated session key matches the previous one, regenerating")
	}
	return nil, fmt.Errorf("session key collided with the previous key %d times", maxKeyAttempts)
}

func (c *Controller) notifyKey(ctx context.Context, key *signer.Signer, account string) {
	if c.notifier == nil {
		return
	}
	rec := &model.SessionKeyRecord{
		SessionKeyAddress:   key.Address().Hex(),
		SmartAccountAddress: account,
		UpdatedAt:           c.store.Now(),
	}
	if err := c.notifier.Put(ctx, rec); err != nil {
		c.log.Warn("session key notification failed", "error", err)
	}
}

func (c *Controller) keyFailed(ctx context.Context, account string, err error, start time.Time) error {
	msg := classify.Message(err)
	c.log.Warn("session key issuance failed", "smart_account", account, "error", msg)
	c.record(ctx, &model.Operation{
		ID:           newOperationID(),
		Action:       string(session.ActionIssueKey),
		Signer:       "owner",
		SmartAccount: account,
		Outcome:      model.OutcomeFailed,
		Message:      msg,
		LatencyMs:    time.Since(start).Milliseconds(),
	})
	return c.fail(session.ActionIssueKey, apperrors.New(apperrors.ErrUpstream, "Session key issuance failed: "+msg, err))
}

// sessionSigner returns the active session key, if any.
func (c *Controller) sessionSigner() *signer.Signer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionKey
}
