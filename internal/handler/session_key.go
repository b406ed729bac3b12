package handler

import (
	"net/http"
	"time"

	"github.com/agentvault/sessiongate/internal/model"
	"github.com/agentvault/sessiongate/internal/pkg/apperrors"
	"github.com/agentvault/sessiongate/internal/repository"
	"github.com/agentvault/sessiongate/internal/service"
	"github.com/gin-gonic/gin"
)

// SessionKeyHandler serves the latest session-key notification to external
// observers such as the bot. It is informational only.
type SessionKeyHandler struct {
	store repository.SessionKeyStore
}

func NewSessionKeyHandler(store repository.SessionKeyStore) *SessionKeyHandler {
	return &SessionKeyHandler{store: store}
}

func (h *SessionKeyHandler) Get(c *gin.Context) {
	rec, err := h.store.Get(c.Request.Context())
	if err != nil {
		_ = c.Error(apperrors.New(apperrors.ErrUpstream, "Session key store unavailable.", err))
		return
	}
	if rec == nil {
		c.JSON(http.StatusOK, gin.H{"sessionKeyAddress": nil, "smartAccountAddress": nil})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *SessionKeyHandler) Post(c *gin.Context) {
	var req model.SessionKeyNotification
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sessionKeyAddress is required"})
		return
	}
	if !service.IsAddress(req.SessionKeyAddress) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid sessionKeyAddress format"})
		return
	}

	rec := &model.SessionKeyRecord{
		SessionKeyAddress:   req.SessionKeyAddress,
		SmartAccountAddress: req.SmartAccountAddress,
		UpdatedAt:           time.Now().UTC(),
	}
	if err := h.store.Put(c.Request.Context(), rec); err != nil {
		_ = c.Error(apperrors.New(apperrors.ErrUpstream, "Session key store unavailable.", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":                  true,
		"sessionKeyAddress":   rec.SessionKeyAddress,
		"smartAccountAddress": rec.SmartAccountAddress,
	})
}
