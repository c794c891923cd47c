package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/edulab/quiz-engine/internal/models"
	"github.com/edulab/quiz-engine/internal/repositories"
)

type testRepository struct {
	db *gorm.DB
}

func NewTestPostgreSQL(db *gorm.DB) repositories.TestRepository {
	return &testRepository{db: db}
}

func (r *testRepository) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

var testSortColumns = map[string]string{
	"created_at":     "created_at",
	"name":           "name",
	"available_from": "available_from",
	"id":             "id",
}

func (r *testRepository) Create(ctx context.Context, tx *gorm.DB, test *models.Test) error {
	db := r.getDB(tx)
	if err := db.WithContext(ctx).Create(test).Error; err != nil {
		return handleDBError(err, "create test")
	}
	return nil
}

// GetByID deliberately skips the cache: Password is excluded from JSON, so a
// cached copy would come back without it and defeat the password check.
func (r *testRepository) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Test, error) {
	db := r.getDB(tx)
	var test models.Test

	if err := db.WithContext(ctx).First(&test, id).Error; err != nil {
		return nil, handleDBError(err, "get test by id")
	}

	return &test, nil
}

func (r *testRepository) Update(ctx context.Context, tx *gorm.DB, test *models.Test) error {
	db := r.getDB(tx)
	if err := db.WithContext(ctx).Save(test).Error; err != nil {
		return handleDBError(err, "update test")
	}
	return nil
}

func (r *testRepository) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	db := r.getDB(tx)
	if err := db.WithContext(ctx).Delete(&models.Test{}, id).Error; err != nil {
		return handleDBError(err, "delete test")
	}
	return nil
}

func (r *testRepository) List(ctx context.Context, tx *gorm.DB, filters repositories.TestFilters) ([]*models.Test, int64, error) {
	db := r.getDB(tx)
	var tests []*models.Test
	var total int64

	query := db.WithContext(ctx).Model(&models.Test{})

	if filters.GroupID != nil {
		query = query.Where("group_id = ?", *filters.GroupID)
	}
	if filters.QuestionSetID != nil {
		query = query.Where("question_set_id = ?", *filters.QuestionSetID)
	}
	if filters.CreatedBy != nil {
		query = query.Where("created_by = ?", *filters.CreatedBy)
	}
	if filters.AvailableAt != nil {
		query = query.Where("available_from <= ? AND available_until >= ?", *filters.AvailableAt, *filters.AvailableAt)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, handleDBError(err, "count tests")
	}

	query = applyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset, testSortColumns)

	if err := query.Find(&tests).Error; err != nil {
		return nil, 0, handleDBError(err, "list tests")
	}

	return tests, total, nil
}

func (r *testRepository) GetStats(ctx context.Context, tx *gorm.DB, testID uint) (*repositories.TestStats, error) {
	db := r.getDB(tx)

	var test models.Test
	if err := db.WithContext(ctx).Select("id, question_amount").First(&test, testID).Error; err != nil {
		return nil, handleDBError(err, "get test for stats")
	}

	stats := &repositories.TestStats{MaxScore: test.QuestionAmount}

	type row struct {
		InstanceCount  int
		SubmittedCount int
		AverageScore   *float64
	}
	var res row
	if err := db.WithContext(ctx).
		Model(&models.TestInstance{}).
		Select(`COUNT(*) as instance_count,
			COUNT(*) FILTER (WHERE submitted) as submitted_count,
			AVG(score) FILTER (WHERE submitted) as average_score`).
		Where("test_id = ?", testID).
		Scan(&res).Error; err != nil {
		return nil, handleDBError(err, "aggregate test stats")
	}

	stats.InstanceCount = res.InstanceCount
	stats.SubmittedCount = res.SubmittedCount
	if res.AverageScore != nil {
		stats.AverageScore = *res.AverageScore
	}

	return stats, nil
}
