package notify

import (
	"encoding/json"

	"mealio_backend/internal/logger"
	"mealio_backend/internal/models"
	"mealio_backend/internal/realtime/feed"
	"mealio_backend/internal/repositories"
	"mealio_backend/internal/services"
)

// FeedBridge syncs notifications arriving on the persisted change feed
// from other nodes or devices into the local store, and surfaces them to
// connected clients. Records whose id already exists locally are echoes of
// our own writes and are dropped.
type FeedBridge struct {
	feed          feed.Feed
	notifications services.NotificationService
	hub           Pusher
	unsub         func()
}

func NewFeedBridge(changeFeed feed.Feed, notifications services.NotificationService, hub Pusher) *FeedBridge {
	return &FeedBridge{
		feed:          changeFeed,
		notifications: notifications,
		hub:           hub,
	}
}

func (b *FeedBridge) Start() {
	b.unsub = b.feed.Subscribe(repositories.NotificationsTable, feed.OpInsert, nil, b.handle)
}

func (b *FeedBridge) Stop() {
	if b.unsub != nil {
		b.unsub()
	}
}

func (b *FeedBridge) handle(ev feed.Event) {
	var record models.NotificationRecord
	if err := json.Unmarshal(ev.Record, &record); err != nil {
		logger.Error("failed to parse notification record from feed", "error", err)
		return
	}

	created, err := b.notifications.SyncFromFeed(record)
	if err != nil {
		logger.Error("notification feed sync failed", "id", record.ID, "error", err)
		return
	}
	if !created {
		return
	}

	b.hub.PushToUser(record.UserID, InAppPush{
		Kind:         "notification",
		Notification: record.Model(),
	})
}
