package dto

// PreferenceSetting mirrors one notification type's configuration.
type PreferenceSetting struct {
	Enabled  bool     `json:"enabled"`
	Channels []string `json:"channels" validate:"dive,oneof=in_app sms voice"`
}

// UpdatePreferencesRequest replaces the recipient's whole mapping.
// Callers wanting a partial update must read-modify-write.
type UpdatePreferencesRequest struct {
	Preferences map[string]PreferenceSetting `json:"preferences" validate:"required,min=1"`
}

// PreferencesResponse is always total: every notification type has an entry.
type PreferencesResponse struct {
	Preferences map[string]PreferenceSetting `json:"preferences"`
}
