package handler

import (
	"context"
	"net/http"

	"github.com/agentvault/sessiongate/internal/bot"
	"github.com/gin-gonic/gin"
)

// Bridge is the bot bridge surface. *bot.Bridge satisfies it.
type Bridge interface {
	View() bot.View
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type BotHandler struct {
	bridge Bridge
}

func NewBotHandler(bridge Bridge) *BotHandler {
	return &BotHandler{bridge: bridge}
}

func (h *BotHandler) View(c *gin.Context) {
	c.JSON(http.StatusOK, h.bridge.View())
}

func (h *BotHandler) Start(c *gin.Context) {
	if err := h.bridge.Start(c.Request.Context()); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, h.bridge.View())
}

func (h *BotHandler) Stop(c *gin.Context) {
	if err := h.bridge.Stop(c.Request.Context()); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, h.bridge.View())
}
