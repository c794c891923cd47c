package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/edulab/quiz-engine/internal/cache"
	"github.com/edulab/quiz-engine/internal/models"
	"github.com/edulab/quiz-engine/internal/repositories"
)

type scoringService struct {
	repo   repositories.Repository
	logger *slog.Logger
	guard  *AccessGuard
	cache  *cache.CacheManager
}

func NewScoringService(
	repo repositories.Repository,
	logger *slog.Logger,
	guard *AccessGuard,
	cacheManager *cache.CacheManager,
) ScoringService {
	if cacheManager == nil {
		cacheManager = cache.NewCacheManager(nil)
	}
	return &scoringService{
		repo:   repo,
		logger: logger,
		guard:  guard,
		cache:  cacheManager,
	}
}

// scoreSubmission counts assigned questions whose selected answer is correct.
// One point per question, no partial credit, no penalty for wrong answers.
func scoreSubmission(assigned []*models.Question, selections map[uint]*uint) int {
	score := 0
	for _, q := range assigned {
		selected := selections[q.ID]
		if selected == nil {
			continue
		}
		for _, a := range q.Answers {
			if a.ID == *selected && a.Correct {
				score++
				break
			}
		}
	}
	return score
}

func (s *scoringService) Score(ctx context.Context, instanceID uint) (int, error) {
	instance, err := s.repo.Instance().GetByID(ctx, nil, instanceID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return 0, ErrInstanceNotFound
		}
		return 0, fmt.Errorf("failed to get instance: %w", err)
	}
	if !instance.Submitted {
		return 0, ErrNotSubmitted
	}
	return instance.Score, nil
}

func (s *scoringService) MaxScore(ctx context.Context, instanceID uint) (int, error) {
	instance, err := s.repo.Instance().GetByID(ctx, nil, instanceID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return 0, ErrInstanceNotFound
		}
		return 0, fmt.Errorf("failed to get instance: %w", err)
	}

	test, err := s.repo.Test().GetByID(ctx, nil, instance.TestID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return 0, ErrTestNotFound
		}
		return 0, fmt.Errorf("failed to get test: %w", err)
	}
	return test.QuestionAmount, nil
}

// Results assembles the full per-question breakdown of a submitted instance.
// Submitted results never change, so they are served cache-aside.
func (s *scoringService) Results(ctx context.Context, instanceID uint, callerID string) (*ResultsResponse, error) {
	instance, err := s.repo.Instance().GetByID(ctx, nil, instanceID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrInstanceNotFound
		}
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}

	test, err := s.repo.Test().GetByID(ctx, nil, instance.TestID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("failed to get test: %w", err)
	}

	if err := s.guard.CheckOwnership(ctx, instance, test, callerID); err != nil {
		return nil, err
	}
	if !instance.Submitted {
		return nil, ErrNotSubmitted
	}

	var results ResultsResponse
	cacheKey := fmt.Sprintf("results:%d", instanceID)
	err = s.cache.Stats.CacheOrExecute(ctx, cacheKey, &results, cache.StatsCacheConfig.TTL, func() (interface{}, error) {
		return s.buildResults(ctx, instance, test)
	})
	if err != nil {
		return nil, err
	}
	return &results, nil
}

func (s *scoringService) buildResults(ctx context.Context, instance *models.TestInstance, test *models.Test) (*ResultsResponse, error) {
	assigned, err := s.repo.Instance().GetAssignedQuestions(ctx, nil, instance.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load assigned questions: %w", err)
	}

	submitted, err := s.repo.Instance().GetSubmittedAnswers(ctx, nil, instance.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load submitted answers: %w", err)
	}

	byQuestion := make(map[uint]*models.SubmittedAnswer, len(submitted))
	for _, sa := range submitted {
		byQuestion[sa.QuestionID] = sa
	}

	ordered := sortByQuestionNumber(assigned)
	rows := make([]QuestionResult, len(ordered))
	for i, q := range ordered {
		row := QuestionResult{
			QuestionID: q.ID,
			Text:       q.Text,
		}
		if sa := byQuestion[q.ID]; sa != nil && sa.AnswerID != nil {
			for _, a := range q.Answers {
				if a.ID == *sa.AnswerID {
					text := a.Text
					row.AnswerText = &text
					row.Correct = a.Correct
					break
				}
			}
		}
		rows[i] = row
	}

	return &ResultsResponse{
		InstanceID: instance.ID,
		Score:      instance.Score,
		MaxScore:   test.QuestionAmount,
		Questions:  rows,
	}, nil
}
