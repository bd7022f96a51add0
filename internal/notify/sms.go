package notify

import (
	"context"
	"errors"
	"fmt"

	"mealio_backend/internal/gateways"
	"mealio_backend/internal/models"
)

// SMSChannel delivers through the external SMS gateway. Failures are
// logged by the dispatcher and never roll back the stored notification.
type SMSChannel struct {
	gateway gateways.SMSSender
}

func NewSMSChannel(gateway gateways.SMSSender) *SMSChannel {
	return &SMSChannel{gateway: gateway}
}

func (c *SMSChannel) Name() models.Channel {
	return models.ChannelSMS
}

func (c *SMSChannel) Deliver(ctx context.Context, req *DeliveryRequest) error {
	if req.Recipient == nil {
		return errors.New("recipient profile unavailable")
	}
	if req.Recipient.Phone == "" {
		return errors.New("recipient has no phone number")
	}

	delivered, err := c.gateway.Send(ctx, req.Recipient.Phone, renderText(req.Notification))
	if err != nil {
		return err
	}
	if !delivered {
		return errors.New("sms gateway reported non-delivery")
	}
	return nil
}

func renderText(n *models.Notification) string {
	if n.Message == "" {
		return n.Title
	}
	return fmt.Sprintf("%s: %s", n.Title, n.Message)
}
