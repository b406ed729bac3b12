package handler

import (
	"net/http"
	"time"

	"github.com/agentvault/sessiongate/internal/pkg/logger"
	"github.com/agentvault/sessiongate/internal/session"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// FeedHandler streams controller snapshots over a websocket. Each
// connection gets the current snapshot first and then every update.
// Slow readers skip intermediate snapshots.
type FeedHandler struct {
	subscribe func() (<-chan session.Snapshot, func())
	current   func() session.Snapshot
	upgrader  websocket.Upgrader
}

func NewFeedHandler(ctrl Controller) *FeedHandler {
	return &FeedHandler{
		subscribe: ctrl.Subscribe,
		current:   ctrl.Snapshot,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The dashboard is served from another origin during development;
			// /v1 auth still applies before the upgrade.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *FeedHandler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("feed upgrade failed", "error", err)
		return
	}
	updates, cancel := h.subscribe()
	defer cancel()

	closed := make(chan struct{})
	go readPump(conn, closed)
	writePump(conn, h.current(), updates, closed)
}

// readPump discards client frames and signals when the peer goes away.
func readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("feed read failed", "error", err)
			}
			return
		}
	}
}

func writePump(conn *websocket.Conn, first session.Snapshot, updates <-chan session.Snapshot, closed <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
		<-closed
	}()

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(first); err != nil {
		return
	}
	for {
		select {
		case snap, ok := <-updates:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(snap); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
