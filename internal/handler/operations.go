package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/agentvault/sessiongate/internal/model"
	"github.com/agentvault/sessiongate/internal/pkg/apperrors"
	"github.com/gin-gonic/gin"
)

const (
	defaultOperationLimit = 50
	maxOperationLimit     = 500
)

type OperationLister interface {
	List(ctx context.Context, limit int, action string) ([]*model.Operation, error)
}

type OperationHandler struct {
	ledger OperationLister
}

func NewOperationHandler(ledger OperationLister) *OperationHandler {
	return &OperationHandler{ledger: ledger}
}

// List returns ledger entries newest first. Query: limit, action.
func (h *OperationHandler) List(c *gin.Context) {
	limit := defaultOperationLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxOperationLimit)
	}

	ops, err := h.ledger.List(c.Request.Context(), limit, c.Query("action"))
	if err != nil {
		_ = c.Error(apperrors.New(apperrors.ErrUpstream, "Operation ledger unavailable.", err))
		return
	}
	if ops == nil {
		ops = []*model.Operation{}
	}
	c.JSON(http.StatusOK, gin.H{"operations": ops})
}
