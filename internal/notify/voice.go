package notify

import (
	"context"
	"fmt"

	"mealio_backend/internal/gateways"
	"mealio_backend/internal/logger"
	"mealio_backend/internal/models"
)

// VoiceChannel synthesizes an audio rendition of the notification and a QR
// image pointing at it. Getting the asset onto the recipient's device is an
// extension point: today the references are only logged and kept alongside
// the notification for later retrieval.
type VoiceChannel struct {
	speech gateways.SpeechClient
}

func NewVoiceChannel(speech gateways.SpeechClient) *VoiceChannel {
	return &VoiceChannel{speech: speech}
}

func (c *VoiceChannel) Name() models.Channel {
	return models.ChannelVoice
}

func (c *VoiceChannel) Deliver(ctx context.Context, req *DeliveryRequest) error {
	n := req.Notification

	assetURL, err := c.speech.Synthesize(ctx, fmt.Sprintf("%s. %s", n.Title, n.Message))
	if err != nil {
		return fmt.Errorf("voice synthesis failed: %w", err)
	}

	imageURL, err := c.speech.EncodeAsQR(ctx, assetURL)
	if err != nil {
		// The audio asset exists; the QR is a convenience.
		logger.Warn("qr encoding failed", "notification_id", n.ID, "asset_url", assetURL, "error", err)
		imageURL = ""
	}

	logger.Info("voice asset synthesized",
		"notification_id", n.ID,
		"user_id", n.UserID,
		"asset_url", assetURL,
		"qr_url", imageURL,
	)
	return nil
}
