package handlers

import (
	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"
	"github.com/rl-arena/doubles-rating/internal/websocket"
)

// WebSocketHandler WebSocket 연결 처리
type WebSocketHandler struct {
	hub      *websocket.Hub
	upgrader *gorilla.Upgrader
}

// NewWebSocketHandler WebSocketHandler 생성
func NewWebSocketHandler(hub *websocket.Hub, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		hub:      hub,
		upgrader: websocket.Upgrader(allowedOrigins),
	}
}

// HandleWebSocket streams match_recorded and standings_updated events.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	websocket.ServeWs(h.hub, h.upgrader, c.Writer, c.Request)
}
