package dto

import (
	"time"

	"mealio_backend/internal/models"
)

// ---------------- Requests ----------------

// DispatchRequest asks the fan-out engine to send one notification.
type DispatchRequest struct {
	RecipientID string                 `json:"recipient_id" validate:"required,uuid"`
	Type        string                 `json:"type" validate:"required,is-notification-type"`
	Title       string                 `json:"title" validate:"required,max=100"`
	Message     string                 `json:"message" validate:"omitempty,max=1000"`
	ActionURL   *string                `json:"action_url,omitempty" validate:"omitempty,max=500"`
	OrderID     *string                `json:"order_id,omitempty"`
	MealID      *string                `json:"meal_id,omitempty"`
	SenderID    *string                `json:"sender_id,omitempty"`
	SenderName  *string                `json:"sender_name,omitempty" validate:"omitempty,max=100"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

// ---------------- Responses ----------------

type NotificationResponse struct {
	ID         string                  `json:"id"`
	Type       models.NotificationType `json:"type"`
	Title      string                  `json:"title"`
	Message    string                  `json:"message"`
	ActionURL  *string                 `json:"action_url,omitempty"`
	OrderID    *string                 `json:"order_id,omitempty"`
	MealID     *string                 `json:"meal_id,omitempty"`
	SenderID   *string                 `json:"sender_id,omitempty"`
	SenderName *string                 `json:"sender_name,omitempty"`
	Data       map[string]interface{}  `json:"data,omitempty"`
	IsRead     bool                    `json:"is_read"`
	ReadAt     *time.Time              `json:"read_at,omitempty"`
	CreatedAt  time.Time               `json:"created_at"`
}

type NotificationListResponse struct {
	Notifications []*NotificationResponse `json:"notifications"`
	UnreadCount   int64                   `json:"unread_count"`
}

type DispatchResponse struct {
	ID string `json:"id"`
}
