package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mealio_backend/internal/realtime"
	"mealio_backend/internal/services"
	"mealio_backend/internal/services/dto"
)

type PresenceHandler struct {
	*BaseHandler
	tracker *realtime.Tracker
}

func NewPresenceHandler(base *BaseHandler, tracker *realtime.Tracker) *PresenceHandler {
	return &PresenceHandler{
		BaseHandler: base,
		tracker:     tracker,
	}
}

// Online lists who is currently present in a conversation. An optional
// group_id query param narrows the list to members of that group.
func (h *PresenceHandler) Online(c *gin.Context) {
	if _, ok := h.GetAndAuthorizeUserID(c); !ok {
		return
	}

	topic := services.ConversationTopic(c.Param("conversationId"))

	var online []string
	var err error
	if groupID := c.Query("group_id"); groupID != "" {
		online, err = h.tracker.ListOnlineInGroup(topic, groupID)
		if err != nil {
			h.HandleServiceError(c, err)
			return
		}
	} else {
		online = h.tracker.ListOnline(topic)
	}

	c.JSON(http.StatusOK, dto.PresenceResponse{
		Topic:  topic,
		Online: online,
	})
}
