package repositories

import (
	"gorm.io/gorm"

	"mealio_backend/internal/models"
)

type PreferenceRepository interface {
	FindByUser(userID string) ([]models.NotificationPreference, error)
	// ReplaceAll swaps the user's whole preference set atomically.
	ReplaceAll(userID string, prefs []models.NotificationPreference) error
}

type preferenceRepository struct {
	db *gorm.DB
}

func NewPreferenceRepository(db *gorm.DB) PreferenceRepository {
	return &preferenceRepository{db: db}
}

func (r *preferenceRepository) FindByUser(userID string) ([]models.NotificationPreference, error) {
	var prefs []models.NotificationPreference
	err := r.db.Where("user_id = ?", userID).Find(&prefs).Error
	return prefs, err
}

func (r *preferenceRepository) ReplaceAll(userID string, prefs []models.NotificationPreference) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&models.NotificationPreference{}).Error; err != nil {
			return err
		}
		if len(prefs) == 0 {
			return nil
		}
		return tx.Create(&prefs).Error
	})
}
