package repositories

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"mealio_backend/internal/models"
	"mealio_backend/internal/realtime/feed"
)

var (
	ErrNotificationNotFound = errors.New("notification not found")
)

// NotificationsTable is the change-feed table name for notifications.
const NotificationsTable = "notifications"

type NotificationRepository interface {
	Create(notification *models.Notification) error
	// Insert writes a row without republishing it on the change feed.
	// Used by feed-sync so echoed records do not loop between nodes.
	Insert(notification *models.Notification) error
	FindByID(id string) (*models.Notification, error)
	FindByUser(userID string) ([]models.Notification, error)
	ExistsByID(id string) (bool, error)
	UnreadCount(userID string) (int64, error)
	MarkAsRead(id string) error
	MarkAllAsRead(userID string) error
	Delete(id string) error
	DeleteReadOlderThan(olderThan time.Time) (int64, error)
}

type notificationRepository struct {
	db   *gorm.DB
	feed feed.Publisher
}

func NewNotificationRepository(db *gorm.DB, publisher feed.Publisher) NotificationRepository {
	return &notificationRepository{db: db, feed: publisher}
}

// Create inserts exactly one record and publishes it on the change feed
// within the same transaction, so other devices of the recipient sync.
func (r *notificationRepository) Create(notification *models.Notification) error {
	if notification.ID == "" {
		notification.ID = uuid.New().String()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(notification).Error; err != nil {
			return err
		}
		return r.feed.Notify(tx, NotificationsTable, feed.OpInsert, notification.Record())
	})
}

func (r *notificationRepository) Insert(notification *models.Notification) error {
	if notification.ID == "" {
		notification.ID = uuid.New().String()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}
	return r.db.Create(notification).Error
}

func (r *notificationRepository) FindByID(id string) (*models.Notification, error) {
	var notification models.Notification
	err := r.db.First(&notification, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotificationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &notification, nil
}

// FindByUser returns the recipient's notifications, newest first.
func (r *notificationRepository) FindByUser(userID string) ([]models.Notification, error) {
	var notifications []models.Notification
	err := r.db.
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&notifications).Error
	return notifications, err
}

func (r *notificationRepository) ExistsByID(id string) (bool, error) {
	var count int64
	err := r.db.Model(&models.Notification{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

func (r *notificationRepository) UnreadCount(userID string) (int64, error) {
	var count int64
	err := r.db.Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, err
}

// MarkAsRead is idempotent: read_at keeps its first value.
func (r *notificationRepository) MarkAsRead(id string) error {
	result := r.db.Model(&models.Notification{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_read": true,
			"read_at": gorm.Expr("COALESCE(read_at, now())"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// MarkAllAsRead applies as a single batch.
func (r *notificationRepository) MarkAllAsRead(userID string) error {
	return r.db.Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]interface{}{
			"is_read": true,
			"read_at": gorm.Expr("now()"),
		}).Error
}

func (r *notificationRepository) Delete(id string) error {
	result := r.db.Delete(&models.Notification{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// DeleteReadOlderThan removes read notifications past the retention window.
func (r *notificationRepository) DeleteReadOlderThan(olderThan time.Time) (int64, error) {
	result := r.db.
		Where("is_read = ? AND created_at < ?", true, olderThan).
		Delete(&models.Notification{})
	return result.RowsAffected, result.Error
}
