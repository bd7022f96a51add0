package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mealio_backend/internal/models"
	"mealio_backend/internal/services"
	"mealio_backend/internal/services/dto"
)

type PreferenceHandler struct {
	*BaseHandler
	preferenceService services.PreferenceService
}

func NewPreferenceHandler(base *BaseHandler, preferenceService services.PreferenceService) *PreferenceHandler {
	return &PreferenceHandler{
		BaseHandler:       base,
		preferenceService: preferenceService,
	}
}

// Get returns the caller's full preference mapping, defaults included.
func (h *PreferenceHandler) Get(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	prefs, err := h.preferenceService.Get(userID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, toPreferencesResponse(prefs))
}

// Update replaces the caller's preference mapping.
func (h *PreferenceHandler) Update(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	var req dto.UpdatePreferencesRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	prefs := make(models.NotificationPreferences, len(req.Preferences))
	for typ, setting := range req.Preferences {
		channels := make([]models.Channel, 0, len(setting.Channels))
		for _, ch := range setting.Channels {
			channels = append(channels, models.Channel(ch))
		}
		prefs[models.NotificationType(typ)] = models.PreferenceSetting{
			Enabled:  setting.Enabled,
			Channels: channels,
		}
	}

	if err := h.preferenceService.Set(userID, prefs); err != nil {
		h.HandleServiceError(c, err)
		return
	}

	updated, err := h.preferenceService.Get(userID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, toPreferencesResponse(updated))
}

func toPreferencesResponse(prefs models.NotificationPreferences) dto.PreferencesResponse {
	out := make(map[string]dto.PreferenceSetting, len(prefs))
	for typ, setting := range prefs {
		channels := make([]string, 0, len(setting.Channels))
		for _, ch := range setting.Channels {
			channels = append(channels, string(ch))
		}
		out[string(typ)] = dto.PreferenceSetting{
			Enabled:  setting.Enabled,
			Channels: channels,
		}
	}
	return dto.PreferencesResponse{Preferences: out}
}
