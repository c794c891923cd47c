package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/edulab/quiz-engine/internal/cache"
	"github.com/edulab/quiz-engine/internal/models"
	"github.com/edulab/quiz-engine/internal/repositories"
	"github.com/edulab/quiz-engine/internal/validator"
)

type questionSetService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	authz     AuthorizationPort
	cache     *cache.CacheManager
}

func NewQuestionSetService(
	repo repositories.Repository,
	logger *slog.Logger,
	validator *validator.Validator,
	authz AuthorizationPort,
	cacheManager *cache.CacheManager,
) QuestionSetService {
	if cacheManager == nil {
		cacheManager = cache.NewCacheManager(nil)
	}
	return &questionSetService{
		repo:      repo,
		logger:    logger,
		validator: validator,
		authz:     authz,
		cache:     cacheManager,
	}
}

// ===== SETS =====

func (s *questionSetService) Create(ctx context.Context, req *QuestionSetCreateRequest, creatorID string) (*QuestionSetResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	if err := s.checkCourseAccess(ctx, creatorID, req.CourseID, "create_question_set"); err != nil {
		return nil, err
	}

	set := &models.QuestionSet{
		Name:      req.Name,
		CourseID:  req.CourseID,
		CreatedBy: creatorID,
	}
	if err := s.repo.QuestionSet().Create(ctx, nil, set); err != nil {
		return nil, fmt.Errorf("failed to create question set: %w", err)
	}

	s.logger.Info("Question set created",
		"question_set_id", set.ID,
		"course_id", set.CourseID,
		"created_by", creatorID)

	return &QuestionSetResponse{QuestionSet: set}, nil
}

func (s *questionSetService) GetByID(ctx context.Context, id uint, userID string) (*QuestionSetResponse, error) {
	set, err := s.getSet(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.checkCourseAccess(ctx, userID, set.CourseID, "view_question_set"); err != nil {
		return nil, err
	}

	count, err := s.repo.QuestionSet().CountQuestions(ctx, nil, id)
	if err != nil {
		return nil, fmt.Errorf("failed to count questions: %w", err)
	}
	set.QuestionCount = int(count)

	referenced, err := s.repo.QuestionSet().IsReferenced(ctx, nil, id)
	if err != nil {
		return nil, fmt.Errorf("failed to check references: %w", err)
	}

	return &QuestionSetResponse{QuestionSet: set, Referenced: referenced}, nil
}

func (s *questionSetService) Delete(ctx context.Context, id uint, userID string) error {
	set, err := s.getSet(ctx, id)
	if err != nil {
		return err
	}

	if err := s.checkCourseAccess(ctx, userID, set.CourseID, "delete_question_set"); err != nil {
		return err
	}

	// A set referenced by any test stays; deleting it would orphan the tests
	// drawing from it.
	if err := s.checkSetNotReferenced(ctx, id); err != nil {
		return err
	}

	if err := s.repo.QuestionSet().Delete(ctx, nil, id); err != nil {
		return fmt.Errorf("failed to delete question set: %w", err)
	}

	s.logger.Info("Question set deleted", "question_set_id", id, "deleted_by", userID)
	cache.InvalidateQuestionSetCache(ctx, s.cache, id)

	return nil
}

// ===== QUESTIONS =====

func (s *questionSetService) AddQuestion(ctx context.Context, setID uint, req *QuestionCreateRequest, userID string) (*models.Question, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	set, err := s.getSet(ctx, setID)
	if err != nil {
		return nil, err
	}
	if err := s.checkCourseAccess(ctx, userID, set.CourseID, "edit_question_set"); err != nil {
		return nil, err
	}

	question := &models.Question{
		Text:           req.Text,
		QuestionSetID:  setID,
		QuestionNumber: req.QuestionNumber,
	}
	if req.QuestionNumber == 0 {
		count, err := s.repo.QuestionSet().CountQuestions(ctx, nil, setID)
		if err != nil {
			return nil, fmt.Errorf("failed to count questions: %w", err)
		}
		question.QuestionNumber = int(count) + 1
	}

	if err := s.repo.QuestionSet().CreateQuestion(ctx, nil, question); err != nil {
		return nil, fmt.Errorf("failed to create question: %w", err)
	}

	cache.InvalidateQuestionSetCache(ctx, s.cache, setID)
	return question, nil
}

func (s *questionSetService) UpdateQuestion(ctx context.Context, questionID uint, req *QuestionCreateRequest, userID string) (*models.Question, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	question, set, err := s.getQuestionWithSet(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if err := s.checkCourseAccess(ctx, userID, set.CourseID, "edit_question_set"); err != nil {
		return nil, err
	}

	question.Text = req.Text
	if req.QuestionNumber > 0 {
		question.QuestionNumber = req.QuestionNumber
	}

	if err := s.repo.QuestionSet().UpdateQuestion(ctx, nil, question); err != nil {
		return nil, fmt.Errorf("failed to update question: %w", err)
	}

	cache.InvalidateQuestionSetCache(ctx, s.cache, set.ID)
	return question, nil
}

func (s *questionSetService) DeleteQuestion(ctx context.Context, questionID uint, userID string) error {
	_, set, err := s.getQuestionWithSet(ctx, questionID)
	if err != nil {
		return err
	}
	if err := s.checkCourseAccess(ctx, userID, set.CourseID, "edit_question_set"); err != nil {
		return err
	}

	// Finalized instances snapshot question IDs, not copies. Removing a
	// question from a referenced set would shrink those frozen assignments.
	if err := s.checkSetNotReferenced(ctx, set.ID); err != nil {
		return err
	}

	if err := s.repo.QuestionSet().DeleteQuestion(ctx, nil, questionID); err != nil {
		return fmt.Errorf("failed to delete question: %w", err)
	}

	cache.InvalidateQuestionSetCache(ctx, s.cache, set.ID)
	return nil
}

// ===== ANSWERS =====

func (s *questionSetService) AddAnswer(ctx context.Context, questionID uint, req *AnswerCreateRequest, userID string) (*models.Answer, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	_, set, err := s.getQuestionWithSet(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if err := s.checkCourseAccess(ctx, userID, set.CourseID, "edit_question_set"); err != nil {
		return nil, err
	}

	answer := &models.Answer{
		Text:       req.Text,
		Correct:    req.Correct,
		QuestionID: questionID,
	}
	if err := s.repo.QuestionSet().CreateAnswer(ctx, nil, answer); err != nil {
		return nil, fmt.Errorf("failed to create answer: %w", err)
	}

	cache.InvalidateQuestionSetCache(ctx, s.cache, set.ID)
	return answer, nil
}

func (s *questionSetService) UpdateAnswer(ctx context.Context, answerID uint, req *AnswerCreateRequest, userID string) (*models.Answer, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	answer, err := s.repo.QuestionSet().GetAnswerByID(ctx, nil, answerID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAnswerNotFound
		}
		return nil, fmt.Errorf("failed to get answer: %w", err)
	}

	_, set, err := s.getQuestionWithSet(ctx, answer.QuestionID)
	if err != nil {
		return nil, err
	}
	if err := s.checkCourseAccess(ctx, userID, set.CourseID, "edit_question_set"); err != nil {
		return nil, err
	}

	answer.Text = req.Text
	answer.Correct = req.Correct
	if err := s.repo.QuestionSet().UpdateAnswer(ctx, nil, answer); err != nil {
		return nil, fmt.Errorf("failed to update answer: %w", err)
	}

	cache.InvalidateQuestionSetCache(ctx, s.cache, set.ID)
	return answer, nil
}

func (s *questionSetService) DeleteAnswer(ctx context.Context, answerID uint, userID string) error {
	answer, err := s.repo.QuestionSet().GetAnswerByID(ctx, nil, answerID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrAnswerNotFound
		}
		return fmt.Errorf("failed to get answer: %w", err)
	}

	_, set, err := s.getQuestionWithSet(ctx, answer.QuestionID)
	if err != nil {
		return err
	}
	if err := s.checkCourseAccess(ctx, userID, set.CourseID, "edit_question_set"); err != nil {
		return err
	}

	// Submitted answers reference answer rows; results need them intact.
	if err := s.checkSetNotReferenced(ctx, set.ID); err != nil {
		return err
	}

	if err := s.repo.QuestionSet().DeleteAnswer(ctx, nil, answerID); err != nil {
		return fmt.Errorf("failed to delete answer: %w", err)
	}

	cache.InvalidateQuestionSetCache(ctx, s.cache, set.ID)
	return nil
}

// ===== HELPERS =====

func (s *questionSetService) getSet(ctx context.Context, id uint) (*models.QuestionSet, error) {
	set, err := s.repo.QuestionSet().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuestionSetNotFound
		}
		return nil, fmt.Errorf("failed to get question set: %w", err)
	}
	return set, nil
}

func (s *questionSetService) getQuestionWithSet(ctx context.Context, questionID uint) (*models.Question, *models.QuestionSet, error) {
	question, err := s.repo.QuestionSet().GetQuestionByID(ctx, nil, questionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, nil, ErrQuestionNotFound
		}
		return nil, nil, fmt.Errorf("failed to get question: %w", err)
	}

	set, err := s.getSet(ctx, question.QuestionSetID)
	if err != nil {
		return nil, nil, err
	}
	return question, set, nil
}

func (s *questionSetService) checkSetNotReferenced(ctx context.Context, setID uint) error {
	referenced, err := s.repo.QuestionSet().IsReferenced(ctx, nil, setID)
	if err != nil {
		return fmt.Errorf("failed to check references: %w", err)
	}
	if referenced {
		return ErrQuestionSetInUse
	}
	return nil
}

func (s *questionSetService) checkCourseAccess(ctx context.Context, userID string, courseID uint, action string) error {
	canManage, err := s.authz.CanManageCourse(ctx, userID, courseID)
	if err != nil {
		return err
	}
	if !canManage {
		return NewPermissionError(userID, courseID, "course", action, "no management rights over course")
	}
	return nil
}
