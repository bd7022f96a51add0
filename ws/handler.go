package ws

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"mealio_backend/internal/logger"
	"mealio_backend/internal/middleware"
	"mealio_backend/internal/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin policy is enforced upstream by the gateway.
		return true
	},
}

type Handler struct {
	manager *Manager
	chat    *services.ChatService
}

func NewHandler(manager *Manager, chat *services.ChatService) *Handler {
	return &Handler{manager: manager, chat: chat}
}

// ServeWS upgrades an authenticated request to a websocket session.
func (h *Handler) ServeWS(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", "user_id", userID, "error", err)
		return
	}

	client := NewClient(userID, conn, h.manager, h.chat)
	h.manager.register <- client

	go client.WritePump()
	go client.ReadPump()
}
