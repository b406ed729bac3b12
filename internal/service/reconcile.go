package service

import (
	"context"
	"math/big"
	"time"

	"github.com/agentvault/sessiongate/internal/pkg/apperrors"
	"github.com/agentvault/sessiongate/internal/pkg/metrics"
	"github.com/agentvault/sessiongate/internal/session"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

// Refresh re-reads balance, limits, owner and the active key's counters
// concurrently and replaces the cache. Without a smart account it does
// nothing.
func (c *Controller) Refresh(ctx context.Context) error {
	st := c.store.State()
	if st.SmartAccount == nil {
		return nil
	}
	if c.settings.VaultConfigErr != nil {
		return c.settings.VaultConfigErr
	}
	if c.settings.ChainConfigErr != nil {
		return c.settings.ChainConfigErr
	}
	if c.vault == nil {
		return apperrors.NewConfig("Vault reader is not configured.")
	}

	account := *st.SmartAccount
	token := c.settings.Token
	var read session.VaultRead

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		bal, err := c.vault.Balance(gctx, token, account)
		read.Balance = bal
		return err
	})
	g.Go(func() error {
		limits, err := c.vault.EffectiveLimits(gctx, token, account)
		read.MaxWithdrawals, read.MaxTotal = limits.MaxCount, limits.MaxTotal
		return err
	})
	g.Go(func() error {
		// The owner is display only.
		owner, err := c.vault.Owner(gctx)
		if err != nil {
			c.log.Debug("vault owner read failed", "error", err)
			return nil
		}
		read.Owner = &owner
		return nil
	})
	if st.Key != nil {
		key := st.Key.Address
		g.Go(func() error {
			total, err := c.vault.TotalWithdrawn(gctx, token, account, key)
			read.TotalWithdrawn = total
			return err
		})
		g.Go(func() error {
			count, err := c.vault.WithdrawalCount(gctx, token, account, key)
			read.WithdrawalCount = count
			return err
		})
	}

	if err := g.Wait(); err != nil {
		c.log.Warn("vault refresh failed", "smart_account", account.Hex(), "error", err)
		c.store.Update(func(s session.State) session.State { return s.VaultReadFailed() })
		return apperrors.New(apperrors.ErrUpstream, "Could not read the vault. Check the chain RPC and try again.", err)
	}

	c.store.Update(func(s session.State) session.State {
		// A key issued while the reads were in flight makes the counters stale.
		if !sameKey(s.Key, st.Key) {
			read.TotalWithdrawn, read.WithdrawalCount = nil, nil
		}
		return s.VaultRefreshed(read, c.store.Now())
	})
	return nil
}

func sameKey(a, b *session.Key) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Address == b.Address
}

// awaitBalance polls the vault balance until it reaches target, the deposit
// timeout passes or ctx ends. It reports whether target was observed.
func (c *Controller) awaitBalance(ctx context.Context, account common.Address, target *big.Int) bool {
	if c.vault == nil {
		metrics.DepositConfirmations.WithLabelValues("pending").Inc()
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, c.settings.DepositTimeout)
	defer cancel()

	ticker := time.NewTicker(c.settings.DepositPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("deposit not yet observed", "smart_account", account.Hex(), "target_wei", target.String())
			metrics.DepositConfirmations.WithLabelValues("pending").Inc()
			return false
		case <-ticker.C:
			bal, err := c.vault.Balance(ctx, c.settings.Token, account)
			if err != nil {
				c.log.Debug("deposit poll read failed", "error", err)
				continue
			}
			c.store.Update(func(s session.State) session.State { return s.BalanceObserved(bal, c.store.Now()) })
			if bal.Cmp(target) >= 0 {
				metrics.DepositConfirmations.WithLabelValues("confirmed").Inc()
				return true
			}
		}
	}
}
