package services

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/edulab/quiz-engine/internal/events"
	"github.com/edulab/quiz-engine/internal/models"
	"github.com/edulab/quiz-engine/internal/repositories"
	"github.com/edulab/quiz-engine/internal/utils"
	"github.com/edulab/quiz-engine/internal/validator"
)

type allocatorService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	authz     AuthorizationPort
	publisher events.EventPublisher
	clock     utils.Clock

	// rng drives subset draws and presentation shuffles. rand.Rand is not
	// safe for concurrent use, hence the mutex.
	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewAllocatorService(
	repo repositories.Repository,
	logger *slog.Logger,
	validator *validator.Validator,
	authz AuthorizationPort,
	publisher events.EventPublisher,
	clock utils.Clock,
	rng *rand.Rand,
) AllocatorService {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if clock == nil {
		clock = utils.RealClock()
	}
	return &allocatorService{
		repo:      repo,
		logger:    logger,
		validator: validator,
		authz:     authz,
		publisher: publisher,
		clock:     clock,
		rng:       rng,
	}
}

// ===== FINALIZE =====

func (s *allocatorService) Finalize(ctx context.Context, testID uint, callerID string) error {
	s.logger.Info("Finalizing test",
		"test_id", testID,
		"caller_id", callerID)

	test, err := s.repo.Test().GetByID(ctx, nil, testID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrTestNotFound
		}
		return fmt.Errorf("failed to get test: %w", err)
	}

	canManage, err := s.authz.CanManageGroup(ctx, callerID, test.GroupID)
	if err != nil {
		return err
	}
	if !canManage {
		return NewPermissionError(callerID, testID, "test", "finalize", "no management rights over owning group")
	}

	// A finalized test has instances; finalize is one-shot.
	existing, err := s.repo.Instance().CountByTest(ctx, nil, testID)
	if err != nil {
		return fmt.Errorf("failed to count instances: %w", err)
	}
	if existing > 0 {
		return ErrTestAlreadyFinalized
	}

	pool, err := s.repo.QuestionSet().GetQuestions(ctx, nil, test.QuestionSetID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrQuestionSetNotFound
		}
		return fmt.Errorf("failed to load question pool: %w", err)
	}
	if len(pool) < test.QuestionAmount {
		return ErrInsufficientQuestions
	}

	roster, err := s.repo.Group().GetActiveStudentIDs(ctx, nil, test.GroupID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrGroupNotFound
		}
		return fmt.Errorf("failed to load group roster: %w", err)
	}
	if len(roster) == 0 {
		return ErrEmptyGroup
	}

	// For shared tests every instance gets the same one-time draw. For
	// unique tests each instance gets an independent draw; overlap across
	// students is allowed, repeats within one instance are not (draws are
	// without replacement).
	var shared []*models.Question
	if !test.Unique {
		shared = s.drawSubset(pool, test.QuestionAmount)
	}

	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		for _, studentID := range roster {
			token := uuid.NewString()
			instance := &models.TestInstance{
				TestID:      testID,
				UserID:      studentID,
				AccessToken: &token,
			}
			if err := txRepo.Instance().Create(ctx, nil, instance); err != nil {
				return fmt.Errorf("failed to create instance for user %s: %w", studentID, err)
			}

			subset := shared
			if test.Unique {
				subset = s.drawSubset(pool, test.QuestionAmount)
			}

			assignments := make([]*models.TestInstanceQuestion, len(subset))
			for i, q := range subset {
				assignments[i] = &models.TestInstanceQuestion{
					TestInstanceID: instance.ID,
					QuestionID:     q.ID,
				}
			}
			if err := txRepo.Instance().CreateAssignments(ctx, nil, assignments); err != nil {
				return fmt.Errorf("failed to create assignments for user %s: %w", studentID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("finalize transaction failed: %w", err)
	}

	s.logger.Info("Test finalized",
		"test_id", testID,
		"instance_count", len(roster),
		"unique", test.Unique)

	event := events.TestFinalizedEvent{
		TestID:        testID,
		GroupID:       test.GroupID,
		InstanceCount: len(roster),
		Unique:        test.Unique,
		FinalizedBy:   callerID,
		OccurredAt:    s.clock.Now(),
	}
	if err := s.publisher.Publish(ctx, events.TopicTestFinalized, event); err != nil {
		s.logger.Error("Failed to publish finalize event", "test_id", testID, "error", err)
	}

	return nil
}

// drawSubset draws n questions without replacement.
func (s *allocatorService) drawSubset(pool []*models.Question, n int) []*models.Question {
	s.rngMu.Lock()
	perm := s.rng.Perm(len(pool))
	s.rngMu.Unlock()

	subset := make([]*models.Question, n)
	for i := 0; i < n; i++ {
		subset[i] = pool[perm[i]]
	}
	return subset
}

// shufflePresentation returns a per-read random ordering of the questions.
func (s *allocatorService) shufflePresentation(questions []*models.Question) []*models.Question {
	out := make([]*models.Question, len(questions))
	copy(out, questions)

	s.rngMu.Lock()
	s.rng.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	s.rngMu.Unlock()

	return out
}

func (s *allocatorService) presentQuestions(test *models.Test, questions []*models.Question) []QuestionForWrite {
	if test.Shuffled {
		questions = s.shufflePresentation(questions)
	} else {
		questions = sortByQuestionNumber(questions)
	}
	return sanitizeQuestions(questions)
}

// ===== QUESTION LIST =====

func (s *allocatorService) QuestionsForTest(ctx context.Context, testID uint, userID *string) ([]QuestionForWrite, error) {
	test, err := s.repo.Test().GetByID(ctx, nil, testID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("failed to get test: %w", err)
	}

	var instance *models.TestInstance
	if test.Unique {
		// Assignments differ per student, so the caller must say whose list
		// is wanted.
		if userID == nil || *userID == "" {
			return nil, ErrUserIDRequired
		}
		instance, err = s.repo.Instance().GetByTestAndUser(ctx, nil, testID, *userID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return nil, ErrInstanceNotFound
			}
			return nil, fmt.Errorf("failed to get instance: %w", err)
		}
	} else {
		// Every instance shares one subset; any instance works as the source.
		instances, _, err := s.repo.Instance().ListByTest(ctx, nil, testID, repositories.InstanceFilters{Limit: 1})
		if err != nil {
			return nil, fmt.Errorf("failed to list instances: %w", err)
		}
		if len(instances) == 0 {
			return nil, ErrTestNotFinalized
		}
		instance = instances[0]
	}

	questions, err := s.repo.Instance().GetAssignedQuestions(ctx, nil, instance.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get assigned questions: %w", err)
	}

	return s.presentQuestions(test, questions), nil
}

// ===== INSTANCE LISTING =====

func (s *allocatorService) ListInstances(ctx context.Context, testID uint, filters repositories.InstanceFilters, callerID string) ([]*InstanceResponse, int64, error) {
	test, err := s.repo.Test().GetByID(ctx, nil, testID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, 0, ErrTestNotFound
		}
		return nil, 0, fmt.Errorf("failed to get test: %w", err)
	}

	canManage, err := s.authz.CanManageGroup(ctx, callerID, test.GroupID)
	if err != nil {
		return nil, 0, err
	}
	if !canManage {
		return nil, 0, NewPermissionError(callerID, testID, "test", "list_instances", "no management rights over owning group")
	}

	instances, total, err := s.repo.Instance().ListByTest(ctx, nil, testID, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list instances: %w", err)
	}

	responses := make([]*InstanceResponse, len(instances))
	for i, instance := range instances {
		responses[i] = &InstanceResponse{
			TestInstance: instance,
			MaxScore:     test.QuestionAmount,
			State:        instance.State(),
		}
	}
	return responses, total, nil
}
