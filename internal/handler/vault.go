package handler

import (
	"net/http"

	"github.com/agentvault/sessiongate/internal/model"
	"github.com/gin-gonic/gin"
)

type VaultHandler struct {
	ctrl Controller
}

func NewVaultHandler(ctrl Controller) *VaultHandler {
	return &VaultHandler{ctrl: ctrl}
}

func (h *VaultHandler) Ping(c *gin.Context) {
	res, err := h.ctrl.Ping(c.Request.Context())
	respond(c, res, err)
}

func (h *VaultHandler) Withdraw(c *gin.Context) {
	var req model.WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.ctrl.Withdraw(c.Request.Context(), req.AmountWei, req.Recipient)
	respond(c, res, err)
}

func (h *VaultHandler) Deposit(c *gin.Context) {
	var req model.DepositRequest
	// An empty body deposits the default amount.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	res, err := h.ctrl.Deposit(c.Request.Context(), req.AmountEth)
	if err != nil {
		_ = c.Error(err)
		return
	}
	status := http.StatusOK
	if res.Pending {
		status = http.StatusAccepted
	}
	c.JSON(status, res)
}

func (h *VaultHandler) SetLimits(c *gin.Context) {
	var req model.SetLimitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.ctrl.SetLimits(c.Request.Context(), req.MaxWithdrawals, req.MaxTotalWei)
	respond(c, res, err)
}

func respond(c *gin.Context, res *model.ActionResult, err error) {
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}
