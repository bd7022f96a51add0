package workers

import (
	"context"
	"time"

	"mealio_backend/internal/logger"
	"mealio_backend/internal/repositories"
)

type NotificationWorker struct {
	notifications repositories.NotificationRepository
	retention     time.Duration
	interval      time.Duration
}

func NewNotificationWorker(notifications repositories.NotificationRepository, retentionDays int, interval time.Duration) *NotificationWorker {
	return &NotificationWorker{
		notifications: notifications,
		retention:     time.Duration(retentionDays) * 24 * time.Hour,
		interval:      interval,
	}
}

// Start launches the background cleanup tasks.
func (w *NotificationWorker) Start(ctx context.Context) {
	go w.cleanupReadNotifications(ctx)
}

// cleanupReadNotifications drops read notifications past the retention
// window. Unread ones are never touched.
func (w *NotificationWorker) cleanupReadNotifications(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Notification worker stopped")
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-w.retention)
			deleted, err := w.notifications.DeleteReadOlderThan(cutoff)
			if err != nil {
				logger.Error("Error cleaning read notifications", "error", err)
			} else if deleted > 0 {
				logger.Info("Cleaned read notifications", "deleted", deleted, "cutoff", cutoff)
			}
		}
	}
}
