package notify

import (
	"context"

	"mealio_backend/internal/models"
)

// Pusher delivers a payload to a connected user's live session. Implemented
// by the websocket manager; the bool reports whether the user was online.
type Pusher interface {
	PushToUser(userID string, payload any) bool
}

// InAppPush is the in-app notification payload surfaced to clients.
type InAppPush struct {
	Kind         string               `json:"kind"`
	Notification *models.Notification `json:"notification"`
}

// InAppChannel surfaces a transient acknowledgement in the recipient's open
// session. It is a pure local effect and never fails: an offline recipient
// simply sees the notification in the store later.
type InAppChannel struct {
	hub Pusher
}

func NewInAppChannel(hub Pusher) *InAppChannel {
	return &InAppChannel{hub: hub}
}

func (c *InAppChannel) Name() models.Channel {
	return models.ChannelInApp
}

func (c *InAppChannel) Deliver(_ context.Context, req *DeliveryRequest) error {
	c.hub.PushToUser(req.Notification.UserID, InAppPush{
		Kind:         "notification",
		Notification: req.Notification,
	})
	return nil
}
