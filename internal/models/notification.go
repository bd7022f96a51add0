package models

import (
	"time"

	"gorm.io/datatypes"
)

// NotificationType is the fixed set of notification categories.
type NotificationType string

const (
	NotificationTypeOrderStatus    NotificationType = "order_status"
	NotificationTypeDeliveryUpdate NotificationType = "delivery_update"
	NotificationTypeMealExpiration NotificationType = "meal_expiration"
	NotificationTypeSupportMessage NotificationType = "support_message"
	NotificationTypeDriverMessage  NotificationType = "driver_message"
)

// NotificationTypes lists every valid type, in a stable order.
var NotificationTypes = []NotificationType{
	NotificationTypeOrderStatus,
	NotificationTypeDeliveryUpdate,
	NotificationTypeMealExpiration,
	NotificationTypeSupportMessage,
	NotificationTypeDriverMessage,
}

func (t NotificationType) Valid() bool {
	for _, known := range NotificationTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Channel is a delivery method for a notification.
type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelSMS   Channel = "sms"
	ChannelVoice Channel = "voice"
)

var Channels = []Channel{ChannelInApp, ChannelSMS, ChannelVoice}

func (c Channel) Valid() bool {
	for _, known := range Channels {
		if c == known {
			return true
		}
	}
	return false
}

// NotificationRecord is the wire form of a notification row on the
// persisted change feed.
type NotificationRecord struct {
	ID         string           `json:"id"`
	UserID     string           `json:"user_id"`
	Type       NotificationType `json:"type"`
	Title      string           `json:"title"`
	Message    string           `json:"message"`
	ActionURL  *string          `json:"action_url,omitempty"`
	OrderID    *string          `json:"order_id,omitempty"`
	MealID     *string          `json:"meal_id,omitempty"`
	SenderID   *string          `json:"sender_id,omitempty"`
	SenderName *string          `json:"sender_name,omitempty"`
	IsRead     bool             `json:"is_read"`
	ReadAt     *time.Time       `json:"read_at,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

// Notification is immutable after creation except for the read state.
type Notification struct {
	BaseModel
	UserID     string           `gorm:"not null;index"`
	Type       NotificationType `gorm:"not null"`
	Title      string           `gorm:"not null"`
	Message    string
	ActionURL  *string
	OrderID    *string `gorm:"index"`
	MealID     *string `gorm:"index"`
	SenderID   *string
	SenderName *string
	Data       datatypes.JSON `gorm:"type:jsonb"`
	IsRead     bool           `gorm:"default:false"`
	ReadAt     *time.Time
}

// Record converts to the change-feed wire form.
func (n *Notification) Record() NotificationRecord {
	return NotificationRecord{
		ID:         n.ID,
		UserID:     n.UserID,
		Type:       n.Type,
		Title:      n.Title,
		Message:    n.Message,
		ActionURL:  n.ActionURL,
		OrderID:    n.OrderID,
		MealID:     n.MealID,
		SenderID:   n.SenderID,
		SenderName: n.SenderName,
		IsRead:     n.IsRead,
		ReadAt:     n.ReadAt,
		CreatedAt:  n.CreatedAt,
	}
}

// Model converts a feed record back into the gorm model.
func (r NotificationRecord) Model() *Notification {
	n := &Notification{
		UserID:     r.UserID,
		Type:       r.Type,
		Title:      r.Title,
		Message:    r.Message,
		ActionURL:  r.ActionURL,
		OrderID:    r.OrderID,
		MealID:     r.MealID,
		SenderID:   r.SenderID,
		SenderName: r.SenderName,
		IsRead:     r.IsRead,
		ReadAt:     r.ReadAt,
	}
	n.ID = r.ID
	n.CreatedAt = r.CreatedAt
	return n
}
