package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/edulab/quiz-engine/internal/models"
	"github.com/edulab/quiz-engine/internal/repositories"
)

type groupRepository struct {
	db *gorm.DB
}

func NewGroupPostgreSQL(db *gorm.DB) repositories.GroupRepository {
	return &groupRepository{db: db}
}

func (r *groupRepository) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *groupRepository) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Group, error) {
	db := r.getDB(tx)
	var group models.Group

	if err := db.WithContext(ctx).First(&group, id).Error; err != nil {
		return nil, handleDBError(err, "get group by id")
	}

	return &group, nil
}

func (r *groupRepository) GetActiveStudentIDs(ctx context.Context, tx *gorm.DB, groupID uint) ([]string, error) {
	db := r.getDB(tx)

	var group models.Group
	if err := db.WithContext(ctx).Select("id").First(&group, groupID).Error; err != nil {
		return nil, handleDBError(err, "get group for roster")
	}

	var ids []string
	if err := db.WithContext(ctx).
		Model(&models.GroupMembership{}).
		Where("group_id = ? AND role = ? AND active = true", groupID, models.MemberStudent).
		Order("user_id ASC").
		Pluck("user_id", &ids).Error; err != nil {
		return nil, handleDBError(err, "get active student ids")
	}

	return ids, nil
}

func (r *groupRepository) IsInstructor(ctx context.Context, tx *gorm.DB, groupID uint, userID string) (bool, error) {
	db := r.getDB(tx)
	var count int64

	if err := db.WithContext(ctx).
		Model(&models.GroupMembership{}).
		Where("group_id = ? AND user_id = ? AND role = ?", groupID, userID, models.MemberInstructor).
		Count(&count).Error; err != nil {
		return false, handleDBError(err, "check instructor membership")
	}

	return count > 0, nil
}
