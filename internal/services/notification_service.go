package services

import (
	"encoding/json"
	"fmt"

	"mealio_backend/internal/logger"
	"mealio_backend/internal/models"
	"mealio_backend/internal/repositories"
	"mealio_backend/internal/services/dto"
	"mealio_backend/pkg/apperrors"
)

// NotificationService is the per-recipient notification store: append-only
// except for read-state mutations and explicit deletion, always scoped to
// the owning recipient.
type NotificationService interface {
	Create(notification *models.Notification) (string, error)
	ListFor(recipientID string) (*dto.NotificationListResponse, error)
	UnreadCount(recipientID string) (int64, error)
	MarkRead(recipientID, notificationID string) error
	MarkAllRead(recipientID string) error
	Delete(recipientID, notificationID string) error

	// SyncFromFeed applies an externally-originated record (another device
	// or node) with dedupe by id. Reports whether a new row was created.
	SyncFromFeed(record models.NotificationRecord) (bool, error)
}

type notificationService struct {
	notificationRepo repositories.NotificationRepository
}

func NewNotificationService(notificationRepo repositories.NotificationRepository) NotificationService {
	return &notificationService{notificationRepo: notificationRepo}
}

// ---------------- Store operations ----------------

func (s *notificationService) Create(notification *models.Notification) (string, error) {
	if !notification.Type.Valid() {
		return "", apperrors.ErrInvalidOperation("notifications", fmt.Sprintf("unknown notification type %q", notification.Type))
	}
	if notification.UserID == "" {
		return "", apperrors.ErrInvalidOperation("notifications", "recipient is required")
	}

	if err := s.notificationRepo.Create(notification); err != nil {
		return "", err
	}
	return notification.ID, nil
}

func (s *notificationService) ListFor(recipientID string) (*dto.NotificationListResponse, error) {
	notifications, err := s.notificationRepo.FindByUser(recipientID)
	if err != nil {
		return nil, err
	}

	unread, err := s.notificationRepo.UnreadCount(recipientID)
	if err != nil {
		return nil, err
	}

	responses := make([]*dto.NotificationResponse, 0, len(notifications))
	for i := range notifications {
		responses = append(responses, buildNotificationResponse(&notifications[i]))
	}

	return &dto.NotificationListResponse{
		Notifications: responses,
		UnreadCount:   unread,
	}, nil
}

func (s *notificationService) UnreadCount(recipientID string) (int64, error) {
	return s.notificationRepo.UnreadCount(recipientID)
}

func (s *notificationService) MarkRead(recipientID, notificationID string) error {
	if err := s.authorize(recipientID, notificationID); err != nil {
		return err
	}
	return s.notificationRepo.MarkAsRead(notificationID)
}

func (s *notificationService) MarkAllRead(recipientID string) error {
	return s.notificationRepo.MarkAllAsRead(recipientID)
}

func (s *notificationService) Delete(recipientID, notificationID string) error {
	if err := s.authorize(recipientID, notificationID); err != nil {
		return err
	}
	return s.notificationRepo.Delete(notificationID)
}

// ---------------- Feed sync ----------------

func (s *notificationService) SyncFromFeed(record models.NotificationRecord) (bool, error) {
	if record.ID == "" {
		return false, nil
	}

	exists, err := s.notificationRepo.ExistsByID(record.ID)
	if err != nil {
		return false, err
	}
	if exists {
		// Locally-created original; the feed echo is a duplicate.
		return false, nil
	}

	logger.Debug("syncing notification from change feed", "id", record.ID, "user_id", record.UserID)
	if err := s.notificationRepo.Insert(record.Model()); err != nil {
		return false, err
	}
	return true, nil
}

// ---------------- Helpers ----------------

// authorize rejects mutations against another recipient's notification.
func (s *notificationService) authorize(recipientID, notificationID string) error {
	notification, err := s.notificationRepo.FindByID(notificationID)
	if err != nil {
		if err == repositories.ErrNotificationNotFound {
			return apperrors.ErrNotFound(err)
		}
		return err
	}
	if notification.UserID != recipientID {
		return apperrors.ErrNotOwner("notifications")
	}
	return nil
}

func buildNotificationResponse(notification *models.Notification) *dto.NotificationResponse {
	response := &dto.NotificationResponse{
		ID:         notification.ID,
		Type:       notification.Type,
		Title:      notification.Title,
		Message:    notification.Message,
		ActionURL:  notification.ActionURL,
		OrderID:    notification.OrderID,
		MealID:     notification.MealID,
		SenderID:   notification.SenderID,
		SenderName: notification.SenderName,
		IsRead:     notification.IsRead,
		ReadAt:     notification.ReadAt,
		CreatedAt:  notification.CreatedAt,
	}

	if len(notification.Data) > 0 {
		var data map[string]interface{}
		if err := json.Unmarshal(notification.Data, &data); err == nil {
			response.Data = data
		}
	}

	return response
}
