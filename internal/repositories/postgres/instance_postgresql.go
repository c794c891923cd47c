package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/edulab/quiz-engine/internal/models"
	"github.com/edulab/quiz-engine/internal/repositories"
)

type instanceRepository struct {
	db *gorm.DB
}

func NewInstancePostgreSQL(db *gorm.DB) repositories.InstanceRepository {
	return &instanceRepository{db: db}
}

func (r *instanceRepository) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

var instanceSortColumns = map[string]string{
	"created_at":  "created_at",
	"user_id":     "user_id",
	"score":       "score",
	"finish_time": "finish_time",
	"id":          "id",
}

// ===== INSTANCES =====

func (r *instanceRepository) Create(ctx context.Context, tx *gorm.DB, instance *models.TestInstance) error {
	db := r.getDB(tx)
	if err := db.WithContext(ctx).Create(instance).Error; err != nil {
		return handleDBError(err, "create test instance")
	}
	return nil
}

func (r *instanceRepository) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.TestInstance, error) {
	db := r.getDB(tx)
	var instance models.TestInstance

	if err := db.WithContext(ctx).First(&instance, id).Error; err != nil {
		return nil, handleDBError(err, "get test instance by id")
	}

	return &instance, nil
}

func (r *instanceRepository) GetByTestAndUser(ctx context.Context, tx *gorm.DB, testID uint, userID string) (*models.TestInstance, error) {
	db := r.getDB(tx)
	var instance models.TestInstance

	if err := db.WithContext(ctx).
		Where("test_id = ? AND user_id = ?", testID, userID).
		First(&instance).Error; err != nil {
		return nil, handleDBError(err, "get test instance by test and user")
	}

	return &instance, nil
}

func (r *instanceRepository) CountByTest(ctx context.Context, tx *gorm.DB, testID uint) (int64, error) {
	db := r.getDB(tx)
	var count int64

	if err := db.WithContext(ctx).
		Model(&models.TestInstance{}).
		Where("test_id = ?", testID).
		Count(&count).Error; err != nil {
		return 0, handleDBError(err, "count test instances")
	}

	return count, nil
}

func (r *instanceRepository) ListByTest(ctx context.Context, tx *gorm.DB, testID uint, filters repositories.InstanceFilters) ([]*models.TestInstance, int64, error) {
	db := r.getDB(tx)
	var instances []*models.TestInstance
	var total int64

	query := db.WithContext(ctx).
		Model(&models.TestInstance{}).
		Where("test_id = ?", testID)

	if filters.Submitted != nil {
		query = query.Where("submitted = ?", *filters.Submitted)
	}
	if filters.UserID != nil {
		query = query.Where("user_id = ?", *filters.UserID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, handleDBError(err, "count test instances")
	}

	query = applyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset, instanceSortColumns)

	if err := query.Find(&instances).Error; err != nil {
		return nil, 0, handleDBError(err, "list test instances")
	}

	return instances, total, nil
}

// ===== ASSIGNMENTS =====

func (r *instanceRepository) CreateAssignments(ctx context.Context, tx *gorm.DB, assignments []*models.TestInstanceQuestion) error {
	if len(assignments) == 0 {
		return nil
	}
	db := r.getDB(tx)
	if err := db.WithContext(ctx).Create(assignments).Error; err != nil {
		return handleDBError(err, "create question assignments")
	}
	return nil
}

func (r *instanceRepository) GetAssignedQuestions(ctx context.Context, tx *gorm.DB, instanceID uint) ([]*models.Question, error) {
	db := r.getDB(tx)
	var questions []*models.Question

	if err := db.WithContext(ctx).
		Table("questions").
		Joins("INNER JOIN test_instance_questions tiq ON questions.id = tiq.question_id").
		Where("tiq.test_instance_id = ?", instanceID).
		Preload("Answers").
		Find(&questions).Error; err != nil {
		return nil, handleDBError(err, "get assigned questions")
	}

	return questions, nil
}

// ===== WRITE SESSION STATE =====

// SetStartTime records the start time only when none exists yet. The WHERE
// clause makes concurrent first calls race safely: exactly one wins.
func (r *instanceRepository) SetStartTime(ctx context.Context, tx *gorm.DB, instanceID uint, start time.Time) (bool, error) {
	db := r.getDB(tx)

	result := db.WithContext(ctx).
		Model(&models.TestInstance{}).
		Where("id = ? AND start_time IS NULL", instanceID).
		Update("start_time", start)
	if result.Error != nil {
		return false, handleDBError(result.Error, "set start time")
	}

	return result.RowsAffected > 0, nil
}

// MarkSubmitted flips submitted from false to true. The guarded UPDATE is the
// point where concurrent finish calls are decided: the loser sees zero rows
// affected.
func (r *instanceRepository) MarkSubmitted(ctx context.Context, tx *gorm.DB, instanceID uint, finish time.Time, score int) (bool, error) {
	db := r.getDB(tx)

	result := db.WithContext(ctx).
		Model(&models.TestInstance{}).
		Where("id = ? AND submitted = false", instanceID).
		Updates(map[string]interface{}{
			"submitted":   true,
			"finish_time": finish,
			"score":       score,
		})
	if result.Error != nil {
		return false, handleDBError(result.Error, "mark instance submitted")
	}

	return result.RowsAffected > 0, nil
}

func (r *instanceRepository) UpdateSessionData(ctx context.Context, tx *gorm.DB, instanceID uint, data []byte) error {
	db := r.getDB(tx)

	if err := db.WithContext(ctx).
		Model(&models.TestInstance{}).
		Where("id = ?", instanceID).
		Update("session_data", data).Error; err != nil {
		return handleDBError(err, "update session data")
	}

	return nil
}

// ===== SUBMITTED ANSWERS =====

func (r *instanceRepository) CreateSubmittedAnswers(ctx context.Context, tx *gorm.DB, answers []*models.SubmittedAnswer) error {
	if len(answers) == 0 {
		return nil
	}
	db := r.getDB(tx)
	if err := db.WithContext(ctx).Create(answers).Error; err != nil {
		return handleDBError(err, "create submitted answers")
	}
	return nil
}

func (r *instanceRepository) GetSubmittedAnswers(ctx context.Context, tx *gorm.DB, instanceID uint) ([]*models.SubmittedAnswer, error) {
	db := r.getDB(tx)
	var answers []*models.SubmittedAnswer

	if err := db.WithContext(ctx).
		Where("test_instance_id = ?", instanceID).
		Preload("Answer").
		Find(&answers).Error; err != nil {
		return nil, handleDBError(err, "get submitted answers")
	}

	return answers, nil
}
