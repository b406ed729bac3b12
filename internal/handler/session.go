package handler

import (
	"context"
	"net/http"

	"github.com/agentvault/sessiongate/internal/model"
	"github.com/agentvault/sessiongate/internal/pkg/apperrors"
	"github.com/agentvault/sessiongate/internal/service"
	"github.com/agentvault/sessiongate/internal/session"
	"github.com/gin-gonic/gin"
)

// Controller is the session controller as the HTTP layer sees it.
// *service.Controller satisfies it.
type Controller interface {
	Snapshot() session.Snapshot
	Subscribe() (<-chan session.Snapshot, func())
	Connect(w service.Wallet) session.Snapshot
	Disconnect() session.Snapshot
	CreateOrGetSmartAccount(ctx context.Context) (*model.AccountResult, error)
	IssueSessionKey(ctx context.Context) (*model.SessionKeyResult, error)
	Refresh(ctx context.Context) error

	Ping(ctx context.Context) (*model.ActionResult, error)
	Withdraw(ctx context.Context, amountWei, recipient string) (*model.ActionResult, error)
	Deposit(ctx context.Context, amountEth string) (*model.ActionResult, error)
	SetLimits(ctx context.Context, maxWithdrawals, maxTotalWei string) (*model.ActionResult, error)
}

type SessionHandler struct {
	ctrl  Controller
	owner service.Wallet
}

// NewSessionHandler wires the controller to the owner wallet loaded from
// configuration. owner may be nil, in which case connect fails.
func NewSessionHandler(ctrl Controller, owner service.Wallet) *SessionHandler {
	return &SessionHandler{ctrl: ctrl, owner: owner}
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, h.ctrl.Snapshot())
}

func (h *SessionHandler) Connect(c *gin.Context) {
	if h.owner == nil {
		_ = c.Error(apperrors.NewConfig("Set SESSIONGATE_WALLET_PRIVATE_KEY to connect the owner wallet."))
		return
	}
	c.JSON(http.StatusOK, h.ctrl.Connect(h.owner))
}

func (h *SessionHandler) Disconnect(c *gin.Context) {
	c.JSON(http.StatusOK, h.ctrl.Disconnect())
}

func (h *SessionHandler) CreateAccount(c *gin.Context) {
	res, err := h.ctrl.CreateOrGetSmartAccount(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *SessionHandler) IssueSessionKey(c *gin.Context) {
	res, err := h.ctrl.IssueSessionKey(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// Refresh re-reads the vault and returns the resulting snapshot.
func (h *SessionHandler) Refresh(c *gin.Context) {
	if err := h.ctrl.Refresh(c.Request.Context()); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, h.ctrl.Snapshot())
}
