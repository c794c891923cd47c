package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/edulab/quiz-engine/internal/events"
	"github.com/edulab/quiz-engine/internal/models"
	"github.com/edulab/quiz-engine/internal/repositories"
	"github.com/edulab/quiz-engine/internal/utils"
	"github.com/edulab/quiz-engine/internal/validator"
)

type sessionService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	guard     *AccessGuard
	allocator AllocatorService
	publisher events.EventPublisher
	clock     utils.Clock
}

func NewSessionService(
	repo repositories.Repository,
	logger *slog.Logger,
	validator *validator.Validator,
	guard *AccessGuard,
	allocator AllocatorService,
	publisher events.EventPublisher,
	clock utils.Clock,
) SessionService {
	if clock == nil {
		clock = utils.RealClock()
	}
	return &sessionService{
		repo:      repo,
		logger:    logger,
		validator: validator,
		guard:     guard,
		allocator: allocator,
		publisher: publisher,
		clock:     clock,
	}
}

// ===== START WRITE =====

func (s *sessionService) StartWrite(ctx context.Context, instanceID uint, req *StartWriteRequest, callerID string) (*StartWriteResponse, error) {
	instance, test, err := s.loadInstanceAndTest(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	if err := s.guard.CheckOwnership(ctx, instance, test, callerID); err != nil {
		return nil, err
	}
	if err := s.guard.CheckNotSubmitted(instance); err != nil {
		return nil, err
	}
	if err := s.guard.CheckPassword(test, req.Password); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if err := s.guard.CheckWindowOpen(test, now); err != nil {
		return nil, err
	}

	// The first call records the start time; repeats reuse it, so reconnecting
	// mid-write never restarts the countdown.
	started, err := s.repo.Instance().SetStartTime(ctx, nil, instanceID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to record start time: %w", err)
	}
	if started {
		instance.StartTime = &now
		if len(req.SessionData) > 0 {
			if err := s.repo.Instance().UpdateSessionData(ctx, nil, instanceID, req.SessionData); err != nil {
				s.logger.Warn("Failed to record session metadata", "instance_id", instanceID, "error", err)
			}
		}
		s.logger.Info("Write session started",
			"instance_id", instanceID,
			"test_id", test.ID,
			"user_id", callerID)
	} else if instance.StartTime == nil {
		// Lost the race to another start call; reload for the recorded time.
		instance, err = s.repo.Instance().GetByID(ctx, nil, instanceID)
		if err != nil {
			return nil, fmt.Errorf("failed to reload instance: %w", err)
		}
	}

	questions, err := s.allocator.QuestionsForTest(ctx, test.ID, &instance.UserID)
	if err != nil {
		return nil, err
	}

	return &StartWriteResponse{
		InstanceID:      instance.ID,
		TestName:        test.Name,
		DurationSeconds: test.DurationSeconds,
		StartTime:       *instance.StartTime,
		State:           instance.State(),
		Questions:       questions,
	}, nil
}

// ===== FINISH WRITE =====

func (s *sessionService) FinishWrite(ctx context.Context, instanceID uint, req *FinishWriteRequest, callerID string) (*InstanceResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	instance, test, err := s.loadInstanceAndTest(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	if err := s.guard.CheckOwnership(ctx, instance, test, callerID); err != nil {
		return nil, err
	}
	if err := s.guard.CheckNotSubmitted(instance); err != nil {
		return nil, err
	}

	assigned, err := s.repo.Instance().GetAssignedQuestions(ctx, nil, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load assigned questions: %w", err)
	}

	selections, err := resolveSelections(req.Answers, assigned)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	expired := s.guard.IsExpired(test, instance, now)
	if expired {
		// Past the cutoff the submission still closes the session, but no
		// selection counts.
		selections = map[uint]*uint{}
	}

	score := scoreSubmission(assigned, selections)

	rows := make([]*models.SubmittedAnswer, len(assigned))
	for i, q := range assigned {
		rows[i] = &models.SubmittedAnswer{
			TestInstanceID: instanceID,
			QuestionID:     q.ID,
			AnswerID:       selections[q.ID],
		}
	}

	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		ok, err := txRepo.Instance().MarkSubmitted(ctx, nil, instanceID, now, score)
		if err != nil {
			return fmt.Errorf("failed to mark submitted: %w", err)
		}
		if !ok {
			return ErrAlreadySubmitted
		}
		if err := txRepo.Instance().CreateSubmittedAnswers(ctx, nil, rows); err != nil {
			return fmt.Errorf("failed to persist answers: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	instance.Submitted = true
	instance.FinishTime = &now
	instance.Score = score

	s.logger.Info("Write session finished",
		"instance_id", instanceID,
		"test_id", test.ID,
		"user_id", callerID,
		"score", score,
		"expired", expired)

	event := events.InstanceSubmittedEvent{
		InstanceID: instanceID,
		TestID:     test.ID,
		UserID:     instance.UserID,
		Score:      score,
		MaxScore:   test.QuestionAmount,
		Expired:    expired,
		OccurredAt: now,
	}
	if err := s.publisher.Publish(ctx, events.TopicInstanceSubmitted, event); err != nil {
		s.logger.Error("Failed to publish submit event", "instance_id", instanceID, "error", err)
	}

	return &InstanceResponse{
		TestInstance: instance,
		MaxScore:     test.QuestionAmount,
		State:        instance.State(),
	}, nil
}

func (s *sessionService) loadInstanceAndTest(ctx context.Context, instanceID uint) (*models.TestInstance, *models.Test, error) {
	instance, err := s.repo.Instance().GetByID(ctx, nil, instanceID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, nil, ErrInstanceNotFound
		}
		return nil, nil, fmt.Errorf("failed to get instance: %w", err)
	}

	test, err := s.repo.Test().GetByID(ctx, nil, instance.TestID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, nil, ErrTestNotFound
		}
		return nil, nil, fmt.Errorf("failed to get test: %w", err)
	}
	return instance, test, nil
}

// resolveSelections maps the submitted answer ids onto the assigned questions.
// Every id must belong to an answer of an assigned question, appear at most
// once, and no question may receive two answers. Nil ids are deliberate skips
// and carry no information. On any violation nothing is persisted.
func resolveSelections(submissions []AnswerSubmission, assigned []*models.Question) (map[uint]*uint, error) {
	answerToQuestion := make(map[uint]uint)
	for _, q := range assigned {
		for _, a := range q.Answers {
			answerToQuestion[a.ID] = q.ID
		}
	}

	selections := make(map[uint]*uint)
	seen := make(map[uint]bool)
	var verrs validator.ValidationErrors

	for i, sub := range submissions {
		if sub.AnswerID == nil {
			continue
		}
		answerID := *sub.AnswerID

		if seen[answerID] {
			verrs = append(verrs, validator.ValidationError{
				Field:   fmt.Sprintf("answers[%d].answer_id", i),
				Message: fmt.Sprintf("answer %d submitted more than once", answerID),
				Value:   answerID,
				Rule:    "unique_answer",
			})
			continue
		}
		seen[answerID] = true

		questionID, ok := answerToQuestion[answerID]
		if !ok {
			verrs = append(verrs, validator.ValidationError{
				Field:   fmt.Sprintf("answers[%d].answer_id", i),
				Message: fmt.Sprintf("answer %d does not belong to any assigned question", answerID),
				Value:   answerID,
				Rule:    "assigned_answer",
			})
			continue
		}

		if _, taken := selections[questionID]; taken {
			verrs = append(verrs, validator.ValidationError{
				Field:   fmt.Sprintf("answers[%d].answer_id", i),
				Message: fmt.Sprintf("question %d answered more than once", questionID),
				Value:   answerID,
				Rule:    "single_answer_per_question",
			})
			continue
		}

		id := answerID
		selections[questionID] = &id
	}

	if len(verrs) > 0 {
		return nil, verrs
	}
	return selections, nil
}
