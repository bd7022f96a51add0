package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mealio_backend/internal/handlers"
	"mealio_backend/internal/logger"
	"mealio_backend/internal/middleware"
	"mealio_backend/internal/models"
	"mealio_backend/ws"
)

// AppHandlers holds every HTTP handler of the application.
type AppHandlers struct {
	NotificationHandler *handlers.NotificationHandler
	PreferenceHandler   *handlers.PreferenceHandler
	PresenceHandler     *handlers.PresenceHandler
	ChatHandler         *handlers.ChatHandler
}

// RegisterRoutes registers all HTTP and WebSocket routes.
func RegisterRoutes(
	ginRouter *gin.Engine,
	appHandlers *AppHandlers,
	wsHandler *ws.Handler,
) {
	ginRouter.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := ginRouter.Group("/api/v1")
	api.Use(middleware.AuthMiddleware())
	{
		notifications := api.Group("/notifications")
		{
			// Dispatch is a producer surface: staff and service roles only.
			notifications.POST("",
				middleware.RequireRoles(models.UserRoleAdmin, models.UserRoleSupport, models.UserRoleDriver, models.UserRoleVendor),
				appHandlers.NotificationHandler.Dispatch)
			notifications.GET("", appHandlers.NotificationHandler.List)
			notifications.GET("/unread-count", appHandlers.NotificationHandler.UnreadCount)
			notifications.PUT("/:notificationId/read", appHandlers.NotificationHandler.MarkAsRead)
			notifications.PUT("/read-all", appHandlers.NotificationHandler.MarkAllAsRead)
			notifications.DELETE("/:notificationId", appHandlers.NotificationHandler.Delete)
		}

		preferences := api.Group("/preferences")
		{
			preferences.GET("", appHandlers.PreferenceHandler.Get)
			preferences.PUT("", appHandlers.PreferenceHandler.Update)
		}

		conversations := api.Group("/conversations")
		{
			conversations.GET("/:conversationId/messages", appHandlers.ChatHandler.History)
			conversations.POST("/:conversationId/messages", appHandlers.ChatHandler.Send)
			conversations.GET("/:conversationId/presence", appHandlers.PresenceHandler.Online)
		}
	}

	wsGroup := ginRouter.Group("/ws")
	wsGroup.Use(middleware.AuthMiddleware())
	{
		wsGroup.GET("", wsHandler.ServeWS)
	}
	logger.Info("WebSocket route /ws registered")
}
