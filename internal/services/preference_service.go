package services

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"mealio_backend/internal/logger"
	"mealio_backend/internal/models"
	"mealio_backend/internal/repositories"
	"mealio_backend/pkg/apperrors"
)

// defaultSettings is the fixed default table. Every notification type is
// enabled out of the box; SMS is reserved for the order pipeline and voice
// for delivery updates.
var defaultSettings = models.NotificationPreferences{
	models.NotificationTypeOrderStatus: {
		Enabled:  true,
		Channels: []models.Channel{models.ChannelInApp, models.ChannelSMS},
	},
	models.NotificationTypeDeliveryUpdate: {
		Enabled:  true,
		Channels: []models.Channel{models.ChannelInApp, models.ChannelSMS, models.ChannelVoice},
	},
	models.NotificationTypeMealExpiration: {
		Enabled:  true,
		Channels: []models.Channel{models.ChannelInApp},
	},
	models.NotificationTypeSupportMessage: {
		Enabled:  true,
		Channels: []models.Channel{models.ChannelInApp},
	},
	models.NotificationTypeDriverMessage: {
		Enabled:  true,
		Channels: []models.Channel{models.ChannelInApp},
	},
}

// DefaultSetting returns a copy of the default for one type.
func DefaultSetting(t models.NotificationType) models.PreferenceSetting {
	setting := defaultSettings[t]
	channels := make([]models.Channel, len(setting.Channels))
	copy(channels, setting.Channels)
	setting.Channels = channels
	return setting
}

// PreferenceService is the per-recipient preference registry. Get is
// always total; Set replaces the whole mapping with no merge semantics.
type PreferenceService interface {
	Get(recipientID string) (models.NotificationPreferences, error)
	Set(recipientID string, prefs models.NotificationPreferences) error
}

type preferenceService struct {
	preferenceRepo repositories.PreferenceRepository
}

func NewPreferenceService(preferenceRepo repositories.PreferenceRepository) PreferenceService {
	return &preferenceService{preferenceRepo: preferenceRepo}
}

func (s *preferenceService) Get(recipientID string) (models.NotificationPreferences, error) {
	rows, err := s.preferenceRepo.FindByUser(recipientID)
	if err != nil {
		return nil, err
	}

	prefs := make(models.NotificationPreferences, len(models.NotificationTypes))
	for _, row := range rows {
		if !row.Type.Valid() {
			continue
		}
		setting := models.PreferenceSetting{Enabled: row.Enabled}
		if len(row.Channels) > 0 {
			if err := json.Unmarshal(row.Channels, &setting.Channels); err != nil {
				logger.Warn("unreadable stored channel set, using defaults", "user_id", recipientID, "type", row.Type, "error", err)
				setting.Channels = DefaultSetting(row.Type).Channels
			}
		}
		prefs[row.Type] = setting
	}

	// The mapping is never partial at read time.
	for _, t := range models.NotificationTypes {
		if _, ok := prefs[t]; !ok {
			prefs[t] = DefaultSetting(t)
		}
	}
	return prefs, nil
}

func (s *preferenceService) Set(recipientID string, prefs models.NotificationPreferences) error {
	rows := make([]models.NotificationPreference, 0, len(prefs))
	for t, setting := range prefs {
		if !t.Valid() {
			return apperrors.ErrInvalidOperation("preferences", fmt.Sprintf("unknown notification type %q", t))
		}
		for _, c := range setting.Channels {
			if !c.Valid() {
				return apperrors.ErrInvalidOperation("preferences", fmt.Sprintf("unknown channel %q", c))
			}
		}

		channels, err := json.Marshal(setting.Channels)
		if err != nil {
			return err
		}
		rows = append(rows, models.NotificationPreference{
			UserID:   recipientID,
			Type:     t,
			Enabled:  setting.Enabled,
			Channels: datatypes.JSON(channels),
		})
	}

	return s.preferenceRepo.ReplaceAll(recipientID, rows)
}
