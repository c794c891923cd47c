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

type testService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	authz     AuthorizationPort
	cache     *cache.CacheManager
}

func NewTestService(
	repo repositories.Repository,
	logger *slog.Logger,
	validator *validator.Validator,
	authz AuthorizationPort,
	cacheManager *cache.CacheManager,
) TestService {
	if cacheManager == nil {
		cacheManager = cache.NewCacheManager(nil)
	}
	return &testService{
		repo:      repo,
		logger:    logger,
		validator: validator,
		authz:     authz,
		cache:     cacheManager,
	}
}

func (s *testService) Create(ctx context.Context, req *TestCreateRequest, creatorID string) (*TestResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	canManage, err := s.authz.CanManageGroup(ctx, creatorID, req.GroupID)
	if err != nil {
		return nil, err
	}
	if !canManage {
		return nil, NewPermissionError(creatorID, req.GroupID, "group", "create_test", "no management rights over group")
	}

	if _, err := s.repo.Group().GetByID(ctx, nil, req.GroupID); err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	if _, err := s.repo.QuestionSet().GetByID(ctx, nil, req.QuestionSetID); err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuestionSetNotFound
		}
		return nil, fmt.Errorf("failed to get question set: %w", err)
	}

	test := &models.Test{
		Name:            req.Name,
		QuestionAmount:  req.QuestionAmount,
		DurationSeconds: req.DurationSeconds,
		Shuffled:        req.Shuffled,
		Unique:          req.Unique,
		AvailableFrom:   req.AvailableFrom,
		AvailableUntil:  req.AvailableUntil,
		GroupID:         req.GroupID,
		QuestionSetID:   req.QuestionSetID,
		Password:        req.Password,
		CreatedBy:       creatorID,
	}
	if err := s.repo.Test().Create(ctx, nil, test); err != nil {
		return nil, fmt.Errorf("failed to create test: %w", err)
	}

	s.logger.Info("Test created",
		"test_id", test.ID,
		"group_id", test.GroupID,
		"question_set_id", test.QuestionSetID,
		"created_by", creatorID)

	cache.SafeInvalidatePattern(ctx, s.cache.Test, "list:*")

	return &TestResponse{Test: test}, nil
}

func (s *testService) GetByID(ctx context.Context, id uint, userID string) (*TestResponse, error) {
	test, err := s.repo.Test().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("failed to get test: %w", err)
	}

	if err := s.checkViewAccess(ctx, test, userID); err != nil {
		return nil, err
	}

	count, err := s.repo.Instance().CountByTest(ctx, nil, id)
	if err != nil {
		return nil, fmt.Errorf("failed to count instances: %w", err)
	}

	return &TestResponse{
		Test:          test,
		Finalized:     count > 0,
		InstanceCount: int(count),
	}, nil
}

// checkViewAccess allows group managers and students who hold an instance of
// the test.
func (s *testService) checkViewAccess(ctx context.Context, test *models.Test, userID string) error {
	canManage, err := s.authz.CanManageGroup(ctx, userID, test.GroupID)
	if err != nil {
		return err
	}
	if canManage {
		return nil
	}

	if _, err := s.repo.Instance().GetByTestAndUser(ctx, nil, test.ID, userID); err == nil {
		return nil
	} else if !repositories.IsNotFoundError(err) {
		return fmt.Errorf("failed to check instance: %w", err)
	}

	return NewPermissionError(userID, test.ID, "test", "view", "neither group manager nor assigned student")
}

func (s *testService) List(ctx context.Context, filters repositories.TestFilters, userID string) ([]*TestResponse, int64, error) {
	// Admins see everything; everyone else only their own definitions.
	isAdmin, err := s.repo.User().HasRole(ctx, userID, models.RoleAdmin)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to check role: %w", err)
	}
	if !isAdmin {
		filters.CreatedBy = &userID
	}

	tests, total, err := s.repo.Test().List(ctx, nil, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list tests: %w", err)
	}

	responses := make([]*TestResponse, len(tests))
	for i, t := range tests {
		responses[i] = &TestResponse{Test: t}
	}
	return responses, total, nil
}

func (s *testService) Delete(ctx context.Context, id uint, userID string) error {
	test, err := s.repo.Test().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrTestNotFound
		}
		return fmt.Errorf("failed to get test: %w", err)
	}

	canManage, err := s.authz.CanManageGroup(ctx, userID, test.GroupID)
	if err != nil {
		return err
	}
	if !canManage {
		return NewPermissionError(userID, id, "test", "delete", "no management rights over owning group")
	}

	// Finalized tests carry student work and stay.
	count, err := s.repo.Instance().CountByTest(ctx, nil, id)
	if err != nil {
		return fmt.Errorf("failed to count instances: %w", err)
	}
	if count > 0 {
		return ErrTestAlreadyFinalized
	}

	if err := s.repo.Test().Delete(ctx, nil, id); err != nil {
		return fmt.Errorf("failed to delete test: %w", err)
	}

	s.logger.Info("Test deleted", "test_id", id, "deleted_by", userID)
	cache.InvalidateTestCache(ctx, s.cache, id)

	return nil
}

func (s *testService) GetStats(ctx context.Context, id uint, userID string) (*repositories.TestStats, error) {
	test, err := s.repo.Test().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("failed to get test: %w", err)
	}

	canManage, err := s.authz.CanManageGroup(ctx, userID, test.GroupID)
	if err != nil {
		return nil, err
	}
	if !canManage {
		return nil, NewPermissionError(userID, id, "test", "stats", "no management rights over owning group")
	}

	var stats repositories.TestStats
	cacheKey := fmt.Sprintf("test:%d:stats", id)
	err = s.cache.Stats.CacheOrExecute(ctx, cacheKey, &stats, cache.StatsCacheConfig.TTL, func() (interface{}, error) {
		return s.repo.Test().GetStats(ctx, nil, id)
	})
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
