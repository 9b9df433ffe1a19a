package handler

import (
	"net/http"

	"civictrack/backend/internal/apperr"
	"civictrack/backend/internal/hub"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Дозволяє з'єднання з будь-якого домену. У продакшені налаштувати!
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket оновлює HTTP-з'єднання до WebSocket і підписує клієнта
// на сповіщення користувача
func (h *Handler) ServeWebSocket(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		token = c.Query("token")
	}
	if token == "" {
		h.abort(c, apperr.New(apperr.Unauthenticated, "authorization token missing"))
		return
	}
	who, err := h.Issuer.Parse(token)
	if err != nil {
		h.abort(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.Log.Warn("ws: upgrade failed", zap.String("user_id", who.UserID), zap.Error(err))
		return
	}

	client := hub.NewWebSocketClient(who.UserID, conn, h.Hub, h.Log)
	if !h.Hub.Register(client) {
		conn.Close()
		return
	}
	client.Run()
}
