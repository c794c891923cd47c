package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/edulab/quiz-engine/internal/models"
	"github.com/edulab/quiz-engine/internal/repositories"
	"github.com/edulab/quiz-engine/internal/validator"
)

type testServiceFixture struct {
	repo    *fakeRepo
	service TestService
	group   *models.Group
	set     *models.QuestionSet
}

func newTestServiceFixture(t *testing.T) *testServiceFixture {
	t.Helper()
	repo := newFakeRepo()
	repo.addUser("admin-1", "Root", models.RoleAdmin)
	repo.addUser("instructor-1", "Teacher", models.RoleInstructor)
	group := repo.addGroup(1, "alice")
	set := repo.addQuestionSet("pool", 1)
	service := NewTestService(repo, testLogger(), validator.New(), newFakeAuthz("instructor-1"), nil)
	return &testServiceFixture{repo: repo, service: service, group: group, set: set}
}

func (fx *testServiceFixture) createRequest() *TestCreateRequest {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	return &TestCreateRequest{
		Name:            "midterm",
		QuestionAmount:  5,
		DurationSeconds: 600,
		AvailableFrom:   now,
		AvailableUntil:  now.Add(time.Hour),
		GroupID:         fx.group.ID,
		QuestionSetID:   fx.set.ID,
	}
}

func TestTestCreate(t *testing.T) {
	fx := newTestServiceFixture(t)

	resp, err := fx.service.Create(context.Background(), fx.createRequest(), "instructor-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if resp.ID == 0 {
		t.Fatal("created test has no id")
	}
	if resp.CreatedBy != "instructor-1" {
		t.Fatalf("created_by = %q", resp.CreatedBy)
	}
	if resp.Finalized {
		t.Fatal("new test reported finalized")
	}
}

func TestTestCreate_ValidationFailures(t *testing.T) {
	fx := newTestServiceFixture(t)

	tests := []struct {
		name   string
		mutate func(*TestCreateRequest)
	}{
		{"duration too short", func(r *TestCreateRequest) { r.DurationSeconds = 10 }},
		{"duration too long", func(r *TestCreateRequest) { r.DurationSeconds = 30000 }},
		{"zero questions", func(r *TestCreateRequest) { r.QuestionAmount = 0 }},
		{"too many questions", func(r *TestCreateRequest) { r.QuestionAmount = 500 }},
		{"window inverted", func(r *TestCreateRequest) { r.AvailableUntil = r.AvailableFrom.Add(-time.Hour) }},
		{"empty name", func(r *TestCreateRequest) { r.Name = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := fx.createRequest()
			tt.mutate(req)
			_, err := fx.service.Create(context.Background(), req, "instructor-1")
			var verrs validator.ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("Create = %v, want ValidationErrors", err)
			}
		})
	}
}

func TestTestCreate_PermissionDenied(t *testing.T) {
	fx := newTestServiceFixture(t)

	if _, err := fx.service.Create(context.Background(), fx.createRequest(), "mallory"); !IsPermissionError(err) {
		t.Fatalf("Create = %v, want permission error", err)
	}
}

func TestTestCreate_MissingReferences(t *testing.T) {
	fx := newTestServiceFixture(t)

	req := fx.createRequest()
	req.QuestionSetID = 999
	if _, err := fx.service.Create(context.Background(), req, "instructor-1"); !errors.Is(err, ErrQuestionSetNotFound) {
		t.Fatalf("Create = %v, want ErrQuestionSetNotFound", err)
	}
}

func TestTestDelete_RefusesFinalized(t *testing.T) {
	fx := newTestServiceFixture(t)

	resp, err := fx.service.Create(context.Background(), fx.createRequest(), "instructor-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	fx.repo.addInstance(resp.ID, "alice")

	if err := fx.service.Delete(context.Background(), resp.ID, "instructor-1"); !errors.Is(err, ErrTestAlreadyFinalized) {
		t.Fatalf("Delete = %v, want ErrTestAlreadyFinalized", err)
	}
}

func TestTestDelete(t *testing.T) {
	fx := newTestServiceFixture(t)

	resp, err := fx.service.Create(context.Background(), fx.createRequest(), "instructor-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := fx.service.Delete(context.Background(), resp.ID, "instructor-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := fx.service.GetByID(context.Background(), resp.ID, "instructor-1"); !errors.Is(err, ErrTestNotFound) {
		t.Fatalf("GetByID after delete = %v, want ErrTestNotFound", err)
	}
}

func TestTestList_ScopedByCreator(t *testing.T) {
	fx := newTestServiceFixture(t)

	if _, err := fx.service.Create(context.Background(), fx.createRequest(), "instructor-1"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	fx.repo.addTest(&models.Test{
		Name: "someone elses", QuestionAmount: 3, DurationSeconds: 600,
		GroupID: fx.group.ID, QuestionSetID: fx.set.ID, CreatedBy: "other",
	})

	own, total, err := fx.service.List(context.Background(), repositories.TestFilters{}, "instructor-1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 || len(own) != 1 {
		t.Fatalf("instructor sees %d tests, want own 1", total)
	}

	all, total, err := fx.service.List(context.Background(), repositories.TestFilters{}, "admin-1")
	if err != nil {
		t.Fatalf("List as admin: %v", err)
	}
	if total != 2 || len(all) != 2 {
		t.Fatalf("admin sees %d tests, want 2", total)
	}
}

func TestTestGetByID_StudentWithInstance(t *testing.T) {
	fx := newTestServiceFixture(t)

	resp, err := fx.service.Create(context.Background(), fx.createRequest(), "instructor-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := fx.service.GetByID(context.Background(), resp.ID, "alice"); !IsPermissionError(err) {
		t.Fatalf("GetByID without instance = %v, want permission error", err)
	}

	fx.repo.addInstance(resp.ID, "alice")
	got, err := fx.service.GetByID(context.Background(), resp.ID, "alice")
	if err != nil {
		t.Fatalf("GetByID with instance: %v", err)
	}
	if !got.Finalized || got.InstanceCount != 1 {
		t.Fatalf("finalized=%v count=%d, want true/1", got.Finalized, got.InstanceCount)
	}
}
