package postgres

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/edulab/quiz-engine/internal/cache"
	"github.com/edulab/quiz-engine/internal/models"
	"github.com/edulab/quiz-engine/internal/repositories"
)

type questionSetRepository struct {
	db    *gorm.DB
	cache *cache.CacheHelper
}

func NewQuestionSetPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.QuestionSetRepository {
	return &questionSetRepository{
		db:    db,
		cache: cache.NewCacheHelper(redisClient, cache.QuestionCacheConfig.Prefix),
	}
}

func (r *questionSetRepository) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

// ===== SETS =====

func (r *questionSetRepository) Create(ctx context.Context, tx *gorm.DB, set *models.QuestionSet) error {
	db := r.getDB(tx)
	if err := db.WithContext(ctx).Create(set).Error; err != nil {
		return handleDBError(err, "create question set")
	}
	return nil
}

func (r *questionSetRepository) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.QuestionSet, error) {
	db := r.getDB(tx)
	var set models.QuestionSet

	if err := db.WithContext(ctx).First(&set, id).Error; err != nil {
		return nil, handleDBError(err, "get question set by id")
	}

	return &set, nil
}

func (r *questionSetRepository) Update(ctx context.Context, tx *gorm.DB, set *models.QuestionSet) error {
	db := r.getDB(tx)
	if err := db.WithContext(ctx).Save(set).Error; err != nil {
		return handleDBError(err, "update question set")
	}
	return nil
}

func (r *questionSetRepository) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	db := r.getDB(tx)
	if err := db.WithContext(ctx).Delete(&models.QuestionSet{}, id).Error; err != nil {
		return handleDBError(err, "delete question set")
	}
	return nil
}

// ===== POOL ACCESS =====

func (r *questionSetRepository) GetQuestions(ctx context.Context, tx *gorm.DB, setID uint) ([]*models.Question, error) {
	// Reads inside a transaction bypass the cache.
	if tx == nil {
		var cached []*models.Question
		key := fmt.Sprintf("set:%d:pool", setID)
		if err := r.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}
		questions, err := r.fetchQuestions(ctx, r.db, setID)
		if err != nil {
			return nil, err
		}
		_ = r.cache.Set(ctx, key, questions, cache.QuestionCacheConfig.TTL)
		return questions, nil
	}

	return r.fetchQuestions(ctx, tx, setID)
}

func (r *questionSetRepository) fetchQuestions(ctx context.Context, db *gorm.DB, setID uint) ([]*models.Question, error) {
	// The set must exist; an empty pool and a missing set are different
	// answers.
	var set models.QuestionSet
	if err := db.WithContext(ctx).Select("id").First(&set, setID).Error; err != nil {
		return nil, handleDBError(err, "get question set for pool")
	}

	var questions []*models.Question
	if err := db.WithContext(ctx).
		Where("question_set_id = ?", setID).
		Preload("Answers").
		Order("question_number ASC, id ASC").
		Find(&questions).Error; err != nil {
		return nil, handleDBError(err, "get questions of set")
	}

	return questions, nil
}

func (r *questionSetRepository) CountQuestions(ctx context.Context, tx *gorm.DB, setID uint) (int64, error) {
	db := r.getDB(tx)
	var count int64

	if err := db.WithContext(ctx).
		Model(&models.Question{}).
		Where("question_set_id = ?", setID).
		Count(&count).Error; err != nil {
		return 0, handleDBError(err, "count questions of set")
	}

	return count, nil
}

// ===== QUESTIONS =====

func (r *questionSetRepository) GetQuestionByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error) {
	db := r.getDB(tx)
	var question models.Question

	if err := db.WithContext(ctx).
		Preload("Answers").
		First(&question, id).Error; err != nil {
		return nil, handleDBError(err, "get question by id")
	}

	return &question, nil
}

func (r *questionSetRepository) CreateQuestion(ctx context.Context, tx *gorm.DB, question *models.Question) error {
	db := r.getDB(tx)
	if err := db.WithContext(ctx).Create(question).Error; err != nil {
		return handleDBError(err, "create question")
	}
	return nil
}

func (r *questionSetRepository) UpdateQuestion(ctx context.Context, tx *gorm.DB, question *models.Question) error {
	db := r.getDB(tx)
	if err := db.WithContext(ctx).
		Omit("Answers").
		Save(question).Error; err != nil {
		return handleDBError(err, "update question")
	}
	return nil
}

func (r *questionSetRepository) DeleteQuestion(ctx context.Context, tx *gorm.DB, id uint) error {
	db := r.getDB(tx)
	return db.WithContext(ctx).Transaction(func(inner *gorm.DB) error {
		if err := inner.Where("question_id = ?", id).Delete(&models.Answer{}).Error; err != nil {
			return handleDBError(err, "delete answers of question")
		}
		if err := inner.Delete(&models.Question{}, id).Error; err != nil {
			return handleDBError(err, "delete question")
		}
		return nil
	})
}

// ===== ANSWERS =====

func (r *questionSetRepository) GetAnswerByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Answer, error) {
	db := r.getDB(tx)
	var answer models.Answer

	if err := db.WithContext(ctx).First(&answer, id).Error; err != nil {
		return nil, handleDBError(err, "get answer by id")
	}

	return &answer, nil
}

func (r *questionSetRepository) CreateAnswer(ctx context.Context, tx *gorm.DB, answer *models.Answer) error {
	db := r.getDB(tx)
	if err := db.WithContext(ctx).Create(answer).Error; err != nil {
		return handleDBError(err, "create answer")
	}
	return nil
}

func (r *questionSetRepository) UpdateAnswer(ctx context.Context, tx *gorm.DB, answer *models.Answer) error {
	db := r.getDB(tx)
	if err := db.WithContext(ctx).Save(answer).Error; err != nil {
		return handleDBError(err, "update answer")
	}
	return nil
}

func (r *questionSetRepository) DeleteAnswer(ctx context.Context, tx *gorm.DB, id uint) error {
	db := r.getDB(tx)
	if err := db.WithContext(ctx).Delete(&models.Answer{}, id).Error; err != nil {
		return handleDBError(err, "delete answer")
	}
	return nil
}

// ===== REFERENTIAL INTEGRITY =====

func (r *questionSetRepository) IsReferenced(ctx context.Context, tx *gorm.DB, setID uint) (bool, error) {
	db := r.getDB(tx)
	var count int64

	if err := db.WithContext(ctx).
		Model(&models.Test{}).
		Where("question_set_id = ?", setID).
		Count(&count).Error; err != nil {
		return false, handleDBError(err, "check question set references")
	}

	return count > 0, nil
}
