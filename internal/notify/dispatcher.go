// Package notify is the dispatch fan-out engine: one notification request
// becomes one durable store record plus concurrent, independently-failing
// deliveries across the recipient's enabled channels.
package notify

import (
	"context"
	"encoding/json"
	"sync"

	"gorm.io/datatypes"

	"mealio_backend/internal/logger"
	"mealio_backend/internal/models"
	"mealio_backend/internal/repositories"
	"mealio_backend/internal/services"
)

// Draft is a notification request from a domain event producer (order
// pipeline, chat, meal expiry scanner).
type Draft struct {
	RecipientID string
	Type        models.NotificationType
	Title       string
	Message     string
	ActionURL   *string
	OrderID     *string
	MealID      *string
	SenderID    *string
	SenderName  *string
	Data        map[string]interface{}
}

// DeliveryRequest is what each channel receives. Recipient may be nil when
// the profile lookup failed; channels that need it report an error.
type DeliveryRequest struct {
	Notification *models.Notification
	Recipient    *models.User
}

// Channel is one delivery method. Deliver runs on its own goroutine per
// dispatch; an error is logged and isolated, never propagated to Send's
// caller.
type Channel interface {
	Name() models.Channel
	Deliver(ctx context.Context, req *DeliveryRequest) error
}

// Dispatcher fans one notification out across channels.
type Dispatcher struct {
	notifications services.NotificationService
	preferences   services.PreferenceService
	users         repositories.UserRepository
	channels      []Channel
	wg            sync.WaitGroup
}

func NewDispatcher(
	notifications services.NotificationService,
	preferences services.PreferenceService,
	users repositories.UserRepository,
	channels ...Channel,
) *Dispatcher {
	return &Dispatcher{
		notifications: notifications,
		preferences:   preferences,
		users:         users,
		channels:      channels,
	}
}

// Send persists the notification, then triggers every enabled channel
// concurrently. The returned id is valid regardless of individual channel
// outcomes; only a persistence failure aborts.
func (d *Dispatcher) Send(ctx context.Context, draft Draft) (string, error) {
	notification, err := draft.toModel()
	if err != nil {
		return "", err
	}

	// Durable record first: no fan-out without it.
	id, err := d.notifications.Create(notification)
	if err != nil {
		return "", err
	}

	setting := d.resolveSetting(draft.RecipientID, draft.Type)
	if !setting.Enabled {
		// The notification exists for later retrieval; nothing goes live.
		return id, nil
	}

	recipient := d.lookupRecipient(ctx, draft.RecipientID)
	req := &DeliveryRequest{Notification: notification, Recipient: recipient}

	// Deliveries outlive the caller: Send returns as soon as the goroutines
	// are spawned, and an HTTP request context is cancelled the moment the
	// handler writes its response. Channels keep the caller's values (log
	// fields) but not its cancellation.
	deliveryCtx := context.WithoutCancel(ctx)

	for _, ch := range d.channels {
		name := ch.Name()
		if !setting.HasChannel(name) {
			continue
		}
		// Current policy: voice rides along only on delivery updates.
		if name == models.ChannelVoice && draft.Type != models.NotificationTypeDeliveryUpdate {
			continue
		}

		d.wg.Add(1)
		go func(ch Channel, name models.Channel) {
			defer d.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					logger.Error("notification channel panicked", "channel", name, "notification_id", id, "panic", r)
				}
			}()

			if err := ch.Deliver(deliveryCtx, req); err != nil {
				logger.Error("notification channel delivery failed", "channel", name, "notification_id", id, "error", err)
			}
		}(ch, name)
	}

	return id, nil
}

// Wait blocks until pending deliveries finish or ctx is cancelled.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) resolveSetting(recipientID string, t models.NotificationType) models.PreferenceSetting {
	prefs, err := d.preferences.Get(recipientID)
	if err != nil {
		logger.Error("preference lookup failed, using defaults", "user_id", recipientID, "error", err)
		return services.DefaultSetting(t)
	}
	return prefs[t]
}

func (d *Dispatcher) lookupRecipient(ctx context.Context, recipientID string) *models.User {
	user, err := d.users.FindByID(recipientID)
	if err != nil {
		logger.CtxWithError(ctx, "recipient profile lookup failed", err, "user_id", recipientID)
		return nil
	}
	return user
}

func (draft Draft) toModel() (*models.Notification, error) {
	notification := &models.Notification{
		UserID:     draft.RecipientID,
		Type:       draft.Type,
		Title:      draft.Title,
		Message:    draft.Message,
		ActionURL:  draft.ActionURL,
		OrderID:    draft.OrderID,
		MealID:     draft.MealID,
		SenderID:   draft.SenderID,
		SenderName: draft.SenderName,
	}

	if draft.Data != nil {
		raw, err := json.Marshal(draft.Data)
		if err != nil {
			return nil, err
		}
		notification.Data = datatypes.JSON(raw)
	}
	return notification, nil
}
