package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mealio_backend/internal/services"
	"mealio_backend/internal/services/dto"
)

type ChatHandler struct {
	*BaseHandler
	chatService *services.ChatService
}

func NewChatHandler(base *BaseHandler, chatService *services.ChatService) *ChatHandler {
	return &ChatHandler{
		BaseHandler: base,
		chatService: chatService,
	}
}

// History returns the persisted timeline of a conversation, oldest first.
func (h *ChatHandler) History(c *gin.Context) {
	if _, ok := h.GetAndAuthorizeUserID(c); !ok {
		return
	}

	messages, err := h.chatService.History(c.Request.Context(), c.Param("conversationId"))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// Send persists a message over the REST surface. Live sessions use the
// websocket path instead; this covers clients without an open socket.
func (h *ChatHandler) Send(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	var req dto.SendMessageRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	message, err := h.chatService.SendDirect(c.Request.Context(), c.Param("conversationId"), userID, req.Content)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, message)
}
