package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mealio_backend/internal/models"
	"mealio_backend/internal/notify"
	"mealio_backend/internal/services"
	"mealio_backend/internal/services/dto"
)

type NotificationHandler struct {
	*BaseHandler
	notificationService services.NotificationService
	dispatcher          *notify.Dispatcher
}

func NewNotificationHandler(base *BaseHandler, notificationService services.NotificationService, dispatcher *notify.Dispatcher) *NotificationHandler {
	return &NotificationHandler{
		BaseHandler:         base,
		notificationService: notificationService,
		dispatcher:          dispatcher,
	}
}

// Dispatch persists a notification and fans it out over the recipient's
// enabled channels.
func (h *NotificationHandler) Dispatch(c *gin.Context) {
	if _, ok := h.GetAndAuthorizeUserID(c); !ok {
		return
	}

	var req dto.DispatchRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	id, err := h.dispatcher.Send(c.Request.Context(), notify.Draft{
		RecipientID: req.RecipientID,
		Type:        models.NotificationType(req.Type),
		Title:       req.Title,
		Message:     req.Message,
		ActionURL:   req.ActionURL,
		OrderID:     req.OrderID,
		MealID:      req.MealID,
		SenderID:    req.SenderID,
		SenderName:  req.SenderName,
		Data:        req.Data,
	})
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.DispatchResponse{ID: id})
}

func (h *NotificationHandler) List(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	list, err := h.notificationService.ListFor(userID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	// Newest-first, so capping the page is a plain prefix.
	if limit := ParseQueryInt(c, "limit", 0); limit > 0 && limit < len(list.Notifications) {
		list.Notifications = list.Notifications[:limit]
	}

	c.JSON(http.StatusOK, list)
}

func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	count, err := h.notificationService.UnreadCount(userID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"unread_count": count})
}

func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	if err := h.notificationService.MarkRead(userID, c.Param("notificationId")); err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Notification marked as read"})
}

func (h *NotificationHandler) MarkAllAsRead(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	if err := h.notificationService.MarkAllRead(userID); err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "All notifications marked as read"})
}

func (h *NotificationHandler) Delete(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	if err := h.notificationService.Delete(userID, c.Param("notificationId")); err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Notification deleted"})
}
