package models

import (
	"gorm.io/datatypes"
)

// NotificationPreference is one (user, type) row of the preference registry.
// Channels is a jsonb array of Channel values.
type NotificationPreference struct {
	BaseModel
	UserID   string           `gorm:"not null;uniqueIndex:idx_pref_user_type"`
	Type     NotificationType `gorm:"not null;uniqueIndex:idx_pref_user_type"`
	Enabled  bool             `gorm:"default:true"`
	Channels datatypes.JSON   `gorm:"type:jsonb"`
}

// PreferenceSetting is the in-memory form of a single type's configuration.
type PreferenceSetting struct {
	Enabled  bool      `json:"enabled"`
	Channels []Channel `json:"channels"`
}

// HasChannel reports whether the setting includes the given channel.
func (s PreferenceSetting) HasChannel(c Channel) bool {
	for _, ch := range s.Channels {
		if ch == c {
			return true
		}
	}
	return false
}

// NotificationPreferences maps every NotificationType to its setting.
// The registry guarantees the map is total at read time.
type NotificationPreferences map[NotificationType]PreferenceSetting
