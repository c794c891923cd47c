package services

import (
	"context"
	"errors"
	"testing"

	"github.com/edulab/quiz-engine/internal/models"
	"github.com/edulab/quiz-engine/internal/validator"
)

func newQuestionSetService(repo *fakeRepo) QuestionSetService {
	return NewQuestionSetService(repo, testLogger(), validator.New(), newFakeAuthz("instructor-1"), nil)
}

func TestQuestionSetAuthoring(t *testing.T) {
	repo := newFakeRepo()
	service := newQuestionSetService(repo)
	ctx := context.Background()

	set, err := service.Create(ctx, &QuestionSetCreateRequest{Name: "algebra", CourseID: 1}, "instructor-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	question, err := service.AddQuestion(ctx, set.ID, &QuestionCreateRequest{Text: "2+2?"}, "instructor-1")
	if err != nil {
		t.Fatalf("AddQuestion: %v", err)
	}
	if question.QuestionNumber != 1 {
		t.Fatalf("question number = %d, want auto-assigned 1", question.QuestionNumber)
	}

	right, err := service.AddAnswer(ctx, question.ID, &AnswerCreateRequest{Text: "4", Correct: true}, "instructor-1")
	if err != nil {
		t.Fatalf("AddAnswer: %v", err)
	}
	if _, err := service.AddAnswer(ctx, question.ID, &AnswerCreateRequest{Text: "5"}, "instructor-1"); err != nil {
		t.Fatalf("AddAnswer: %v", err)
	}

	got, err := service.GetByID(ctx, set.ID, "instructor-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.QuestionCount != 1 {
		t.Fatalf("question count = %d, want 1", got.QuestionCount)
	}

	updated, err := service.UpdateAnswer(ctx, right.ID, &AnswerCreateRequest{Text: "four", Correct: true}, "instructor-1")
	if err != nil {
		t.Fatalf("UpdateAnswer: %v", err)
	}
	if updated.Text != "four" {
		t.Fatalf("answer text = %q", updated.Text)
	}
}

func TestQuestionSetDelete_RefusedWhileReferenced(t *testing.T) {
	repo := newFakeRepo()
	service := newQuestionSetService(repo)
	ctx := context.Background()

	set := repo.addQuestionSet("pool", 1)
	repo.addTest(&models.Test{Name: "quiz", QuestionAmount: 1, DurationSeconds: 60, QuestionSetID: set.ID, GroupID: 1})

	if err := service.Delete(ctx, set.ID, "instructor-1"); !errors.Is(err, ErrQuestionSetInUse) {
		t.Fatalf("Delete = %v, want ErrQuestionSetInUse", err)
	}
}

func TestQuestionSetDeleteQuestion_RefusedWhileReferenced(t *testing.T) {
	repo := newFakeRepo()
	service := newQuestionSetService(repo)
	ctx := context.Background()

	set := repo.addQuestionSet("pool", 1)
	q1 := repo.addQuestion(set.ID, "q1", 1, 2)
	q2 := repo.addQuestion(set.ID, "q2", 2, 2)
	test := repo.addTest(&models.Test{Name: "quiz", QuestionAmount: 2, DurationSeconds: 60, QuestionSetID: set.ID, GroupID: 1})
	instance := repo.addInstance(test.ID, "alice")
	repo.assign(instance.ID, q1.ID, q2.ID)

	if err := service.DeleteQuestion(ctx, q1.ID, "instructor-1"); !errors.Is(err, ErrQuestionSetInUse) {
		t.Fatalf("DeleteQuestion = %v, want ErrQuestionSetInUse", err)
	}

	assigned, err := repo.Instance().GetAssignedQuestions(ctx, nil, instance.ID)
	if err != nil {
		t.Fatalf("GetAssignedQuestions: %v", err)
	}
	if len(assigned) != 2 {
		t.Fatalf("assigned questions = %d, want 2 after refused delete", len(assigned))
	}
}

func TestQuestionSetDeleteAnswer_RefusedWhileReferenced(t *testing.T) {
	repo := newFakeRepo()
	service := newQuestionSetService(repo)
	ctx := context.Background()

	set := repo.addQuestionSet("pool", 1)
	q := repo.addQuestion(set.ID, "q", 1, 2)
	repo.addTest(&models.Test{Name: "quiz", QuestionAmount: 1, DurationSeconds: 60, QuestionSetID: set.ID, GroupID: 1})

	if err := service.DeleteAnswer(ctx, q.Answers[0].ID, "instructor-1"); !errors.Is(err, ErrQuestionSetInUse) {
		t.Fatalf("DeleteAnswer = %v, want ErrQuestionSetInUse", err)
	}
}

func TestQuestionSetDeleteQuestion(t *testing.T) {
	repo := newFakeRepo()
	service := newQuestionSetService(repo)
	ctx := context.Background()

	set := repo.addQuestionSet("pool", 1)
	q := repo.addQuestion(set.ID, "q", 1, 2)

	if err := service.DeleteQuestion(ctx, q.ID, "instructor-1"); err != nil {
		t.Fatalf("DeleteQuestion: %v", err)
	}
}

func TestQuestionSetDelete(t *testing.T) {
	repo := newFakeRepo()
	service := newQuestionSetService(repo)
	ctx := context.Background()

	set := repo.addQuestionSet("pool", 1)
	if err := service.Delete(ctx, set.ID, "instructor-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := service.GetByID(ctx, set.ID, "instructor-1"); !errors.Is(err, ErrQuestionSetNotFound) {
		t.Fatalf("GetByID after delete = %v, want ErrQuestionSetNotFound", err)
	}
}

func TestQuestionSetAuthoring_PermissionDenied(t *testing.T) {
	repo := newFakeRepo()
	service := newQuestionSetService(repo)
	ctx := context.Background()

	set := repo.addQuestionSet("pool", 1)
	q := repo.addQuestion(set.ID, "q", 1, 1)

	if _, err := service.Create(ctx, &QuestionSetCreateRequest{Name: "x", CourseID: 1}, "mallory"); !IsPermissionError(err) {
		t.Fatalf("Create = %v, want permission error", err)
	}
	if _, err := service.AddQuestion(ctx, set.ID, &QuestionCreateRequest{Text: "?"}, "mallory"); !IsPermissionError(err) {
		t.Fatalf("AddQuestion = %v, want permission error", err)
	}
	if err := service.DeleteQuestion(ctx, q.ID, "mallory"); !IsPermissionError(err) {
		t.Fatalf("DeleteQuestion = %v, want permission error", err)
	}
}
