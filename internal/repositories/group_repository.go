package repositories

import (
	"gorm.io/gorm"

	"mealio_backend/internal/models"
)

type GroupRepository interface {
	// MemberIDs returns the ids of every member of the group.
	MemberIDs(groupID string) ([]string, error)
	IsMember(groupID, userID string) (bool, error)
}

type groupRepository struct {
	db *gorm.DB
}

func NewGroupRepository(db *gorm.DB) GroupRepository {
	return &groupRepository{db: db}
}

func (r *groupRepository) MemberIDs(groupID string) ([]string, error) {
	var ids []string
	err := r.db.Model(&models.GroupMember{}).
		Where("group_id = ?", groupID).
		Pluck("user_id", &ids).Error
	return ids, err
}

func (r *groupRepository) IsMember(groupID, userID string) (bool, error) {
	var count int64
	err := r.db.Model(&models.GroupMember{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Count(&count).Error
	return count > 0, err
}
