package services

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/edulab/quiz-engine/internal/events"
	"github.com/edulab/quiz-engine/internal/models"
	"github.com/edulab/quiz-engine/internal/utils"
	"github.com/edulab/quiz-engine/internal/validator"
)

type sessionFixture struct {
	repo    *fakeRepo
	pub     *events.MockEventPublisher
	clock   *utils.FixedClock
	service SessionService

	test     *models.Test
	instance *models.TestInstance
}

// newSessionFixture builds a finalized shared test with one instance for
// alice: 4 assigned questions, each with 1 correct and 2 wrong answers.
func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	repo := newFakeRepo()
	authz := newFakeAuthz("instructor-1")
	pub := events.NewMockEventPublisher(testLogger())
	clock := &utils.FixedClock{T: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	v := validator.New()

	set := repo.addQuestionSet("pool", 1)
	var questionIDs []uint
	for i := 0; i < 4; i++ {
		q := repo.addQuestion(set.ID, "q", i+1, 2)
		questionIDs = append(questionIDs, q.ID)
	}
	group := repo.addGroup(1, "alice")
	test := repo.addTest(&models.Test{
		Name:            "midterm",
		QuestionAmount:  4,
		DurationSeconds: 600,
		AvailableFrom:   clock.T.Add(-time.Hour),
		AvailableUntil:  clock.T.Add(time.Hour),
		GroupID:         group.ID,
		QuestionSetID:   set.ID,
		CreatedBy:       "instructor-1",
	})
	instance := repo.addInstance(test.ID, "alice")
	repo.assign(instance.ID, questionIDs...)

	guard := NewAccessGuard(authz)
	allocator := NewAllocatorService(repo, testLogger(), v, authz, pub, clock, rand.New(rand.NewSource(1)))
	service := NewSessionService(repo, testLogger(), v, guard, allocator, pub, clock)

	return &sessionFixture{repo: repo, pub: pub, clock: clock, service: service, test: test, instance: instance}
}

// correctAnswerID returns the id of the correct answer of a question.
func (fx *sessionFixture) correctAnswerID(t *testing.T, questionID uint) uint {
	t.Helper()
	for _, a := range fx.repo.questions[questionID].Answers {
		if a.Correct {
			return a.ID
		}
	}
	t.Fatalf("question %d has no correct answer", questionID)
	return 0
}

func (fx *sessionFixture) wrongAnswerID(t *testing.T, questionID uint) uint {
	t.Helper()
	for _, a := range fx.repo.questions[questionID].Answers {
		if !a.Correct {
			return a.ID
		}
	}
	t.Fatalf("question %d has no wrong answer", questionID)
	return 0
}

func (fx *sessionFixture) assignedQuestionIDs() []uint {
	var ids []uint
	for _, a := range fx.repo.assignments[fx.instance.ID] {
		ids = append(ids, a.QuestionID)
	}
	return ids
}

func ptr[T any](v T) *T { return &v }

// ===== START WRITE =====

func TestStartWrite_RecordsStartOnce(t *testing.T) {
	fx := newSessionFixture(t)

	first, err := fx.service.StartWrite(context.Background(), fx.instance.ID, &StartWriteRequest{}, "alice")
	if err != nil {
		t.Fatalf("StartWrite: %v", err)
	}
	if first.State != models.SessionInProgress {
		t.Fatalf("state = %q, want in_progress", first.State)
	}
	if len(first.Questions) != 4 {
		t.Fatalf("got %d questions, want 4", len(first.Questions))
	}

	fx.clock.Advance(2 * time.Minute)

	second, err := fx.service.StartWrite(context.Background(), fx.instance.ID, &StartWriteRequest{}, "alice")
	if err != nil {
		t.Fatalf("repeat StartWrite: %v", err)
	}
	if !second.StartTime.Equal(first.StartTime) {
		t.Fatalf("repeat call moved start time: %v -> %v", first.StartTime, second.StartTime)
	}
}

func TestStartWrite_SanitizesAnswers(t *testing.T) {
	fx := newSessionFixture(t)

	resp, err := fx.service.StartWrite(context.Background(), fx.instance.ID, &StartWriteRequest{}, "alice")
	if err != nil {
		t.Fatalf("StartWrite: %v", err)
	}
	for _, q := range resp.Questions {
		if len(q.Answers) != 3 {
			t.Fatalf("question %d has %d answers, want 3", q.QuestionID, len(q.Answers))
		}
	}
}

func TestStartWrite_WrongPassword(t *testing.T) {
	fx := newSessionFixture(t)
	fx.test.Password = ptr("secret")

	if _, err := fx.service.StartWrite(context.Background(), fx.instance.ID, &StartWriteRequest{Password: ptr("nope")}, "alice"); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("StartWrite = %v, want ErrWrongPassword", err)
	}
	if _, err := fx.service.StartWrite(context.Background(), fx.instance.ID, &StartWriteRequest{}, "alice"); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("StartWrite without password = %v, want ErrWrongPassword", err)
	}
	if _, err := fx.service.StartWrite(context.Background(), fx.instance.ID, &StartWriteRequest{Password: ptr("secret")}, "alice"); err != nil {
		t.Fatalf("StartWrite with password: %v", err)
	}
}

func TestStartWrite_BeforeWindowOpens(t *testing.T) {
	fx := newSessionFixture(t)
	fx.test.AvailableFrom = fx.clock.T.Add(time.Hour)

	if _, err := fx.service.StartWrite(context.Background(), fx.instance.ID, &StartWriteRequest{}, "alice"); !errors.Is(err, ErrTestNotYetOpen) {
		t.Fatalf("StartWrite = %v, want ErrTestNotYetOpen", err)
	}
}

func TestStartWrite_NotOwner(t *testing.T) {
	fx := newSessionFixture(t)

	if _, err := fx.service.StartWrite(context.Background(), fx.instance.ID, &StartWriteRequest{}, "mallory"); !IsPermissionError(err) {
		t.Fatalf("StartWrite = %v, want permission error", err)
	}
}

func TestStartWrite_RecordsSessionData(t *testing.T) {
	fx := newSessionFixture(t)

	req := &StartWriteRequest{SessionData: []byte(`{"browser":"firefox"}`)}
	if _, err := fx.service.StartWrite(context.Background(), fx.instance.ID, req, "alice"); err != nil {
		t.Fatalf("StartWrite: %v", err)
	}
	if string(fx.instance.SessionData) != `{"browser":"firefox"}` {
		t.Fatalf("session data = %s", fx.instance.SessionData)
	}
}

// ===== FINISH WRITE =====

func TestFinishWrite_ScoresAndPersists(t *testing.T) {
	fx := newSessionFixture(t)
	if _, err := fx.service.StartWrite(context.Background(), fx.instance.ID, &StartWriteRequest{}, "alice"); err != nil {
		t.Fatalf("StartWrite: %v", err)
	}

	qids := fx.assignedQuestionIDs()
	// 2 correct, 1 wrong, 1 skipped
	req := &FinishWriteRequest{Answers: []AnswerSubmission{
		{AnswerID: ptr(fx.correctAnswerID(t, qids[0]))},
		{AnswerID: ptr(fx.correctAnswerID(t, qids[1]))},
		{AnswerID: ptr(fx.wrongAnswerID(t, qids[2]))},
		{AnswerID: nil},
	}}

	resp, err := fx.service.FinishWrite(context.Background(), fx.instance.ID, req, "alice")
	if err != nil {
		t.Fatalf("FinishWrite: %v", err)
	}
	if resp.Score != 2 {
		t.Fatalf("score = %d, want 2", resp.Score)
	}
	if resp.State != models.SessionSubmitted {
		t.Fatalf("state = %q, want submitted", resp.State)
	}
	if resp.FinishTime == nil {
		t.Fatal("finish time not recorded")
	}

	rows, _ := fx.repo.Instance().GetSubmittedAnswers(context.Background(), nil, fx.instance.ID)
	if len(rows) != 4 {
		t.Fatalf("persisted %d answer rows, want one per assigned question", len(rows))
	}
	var null int
	for _, row := range rows {
		if row.AnswerID == nil {
			null++
		}
	}
	if null != 1 {
		t.Fatalf("%d null answers, want 1", null)
	}
}

func TestFinishWrite_RejectsForeignAnswer(t *testing.T) {
	fx := newSessionFixture(t)

	// An answer from a question outside the assignment.
	other := fx.repo.addQuestion(fx.test.QuestionSetID, "other", 99, 1)

	req := &FinishWriteRequest{Answers: []AnswerSubmission{
		{AnswerID: ptr(other.Answers[0].ID)},
	}}
	_, err := fx.service.FinishWrite(context.Background(), fx.instance.ID, req, "alice")

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("FinishWrite = %v, want ValidationErrors", err)
	}
	if fx.instance.Submitted {
		t.Fatal("instance submitted despite invalid payload")
	}
	if rows, _ := fx.repo.Instance().GetSubmittedAnswers(context.Background(), nil, fx.instance.ID); len(rows) != 0 {
		t.Fatalf("persisted %d rows despite invalid payload", len(rows))
	}
}

func TestFinishWrite_RejectsTwoAnswersSameQuestion(t *testing.T) {
	fx := newSessionFixture(t)
	qids := fx.assignedQuestionIDs()

	req := &FinishWriteRequest{Answers: []AnswerSubmission{
		{AnswerID: ptr(fx.correctAnswerID(t, qids[0]))},
		{AnswerID: ptr(fx.wrongAnswerID(t, qids[0]))},
	}}
	_, err := fx.service.FinishWrite(context.Background(), fx.instance.ID, req, "alice")

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("FinishWrite = %v, want ValidationErrors", err)
	}
}

func TestFinishWrite_RejectsDuplicateAnswer(t *testing.T) {
	fx := newSessionFixture(t)
	qids := fx.assignedQuestionIDs()
	answer := fx.correctAnswerID(t, qids[0])

	req := &FinishWriteRequest{Answers: []AnswerSubmission{
		{AnswerID: &answer},
		{AnswerID: &answer},
	}}
	_, err := fx.service.FinishWrite(context.Background(), fx.instance.ID, req, "alice")

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("FinishWrite = %v, want ValidationErrors", err)
	}
}

func TestFinishWrite_SecondCallFails(t *testing.T) {
	fx := newSessionFixture(t)

	req := &FinishWriteRequest{Answers: []AnswerSubmission{}}
	if _, err := fx.service.FinishWrite(context.Background(), fx.instance.ID, req, "alice"); err != nil {
		t.Fatalf("first FinishWrite: %v", err)
	}
	if _, err := fx.service.FinishWrite(context.Background(), fx.instance.ID, req, "alice"); !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("second FinishWrite = %v, want ErrAlreadySubmitted", err)
	}
}

// A student may hand in without ever opening the session; the submit
// preconditions are ownership and not-already-submitted only.
func TestFinishWrite_WithoutStartSucceeds(t *testing.T) {
	fx := newSessionFixture(t)

	qids := fx.assignedQuestionIDs()
	req := &FinishWriteRequest{Answers: []AnswerSubmission{
		{AnswerID: ptr(fx.correctAnswerID(t, qids[0]))},
	}}

	resp, err := fx.service.FinishWrite(context.Background(), fx.instance.ID, req, "alice")
	if err != nil {
		t.Fatalf("FinishWrite without StartWrite: %v", err)
	}
	if resp.Score != 1 {
		t.Fatalf("score = %d, want 1", resp.Score)
	}
	if resp.State != models.SessionSubmitted {
		t.Fatalf("state = %q, want %q", resp.State, models.SessionSubmitted)
	}
}

func TestFinishWrite_ExpiredNullsAnswers(t *testing.T) {
	fx := newSessionFixture(t)
	if _, err := fx.service.StartWrite(context.Background(), fx.instance.ID, &StartWriteRequest{}, "alice"); err != nil {
		t.Fatalf("StartWrite: %v", err)
	}

	// Past start+duration but still inside the availability window.
	fx.clock.Advance(time.Duration(fx.test.DurationSeconds)*time.Second + time.Minute)

	qids := fx.assignedQuestionIDs()
	req := &FinishWriteRequest{Answers: []AnswerSubmission{
		{AnswerID: ptr(fx.correctAnswerID(t, qids[0]))},
		{AnswerID: ptr(fx.correctAnswerID(t, qids[1]))},
	}}

	resp, err := fx.service.FinishWrite(context.Background(), fx.instance.ID, req, "alice")
	if err != nil {
		t.Fatalf("expired FinishWrite: %v", err)
	}
	if resp.Score != 0 {
		t.Fatalf("expired score = %d, want 0", resp.Score)
	}
	if !resp.Submitted {
		t.Fatal("expired submission did not close the session")
	}

	rows, _ := fx.repo.Instance().GetSubmittedAnswers(context.Background(), nil, fx.instance.ID)
	if len(rows) != 4 {
		t.Fatalf("persisted %d rows, want 4", len(rows))
	}
	for _, row := range rows {
		if row.AnswerID != nil {
			t.Fatalf("expired submission kept answer %d", *row.AnswerID)
		}
	}

	published := fx.pub.GetPublishedEvents()
	if len(published) != 1 {
		t.Fatalf("published %d events, want 1", len(published))
	}
	event := published[0].Event.(events.InstanceSubmittedEvent)
	if !event.Expired {
		t.Fatal("event not flagged expired")
	}
}

func TestFinishWrite_CutoffUsesWindowEnd(t *testing.T) {
	fx := newSessionFixture(t)
	// Window closes 5 minutes from now, duration is 10 minutes: window wins.
	fx.test.AvailableUntil = fx.clock.T.Add(5 * time.Minute)

	if _, err := fx.service.StartWrite(context.Background(), fx.instance.ID, &StartWriteRequest{}, "alice"); err != nil {
		t.Fatalf("StartWrite: %v", err)
	}
	fx.clock.Advance(6 * time.Minute)

	qids := fx.assignedQuestionIDs()
	req := &FinishWriteRequest{Answers: []AnswerSubmission{
		{AnswerID: ptr(fx.correctAnswerID(t, qids[0]))},
	}}
	resp, err := fx.service.FinishWrite(context.Background(), fx.instance.ID, req, "alice")
	if err != nil {
		t.Fatalf("FinishWrite: %v", err)
	}
	if resp.Score != 0 {
		t.Fatalf("score = %d, want 0 past window end", resp.Score)
	}
}

func TestFinishWrite_PublishesEvent(t *testing.T) {
	fx := newSessionFixture(t)
	qids := fx.assignedQuestionIDs()

	req := &FinishWriteRequest{Answers: []AnswerSubmission{
		{AnswerID: ptr(fx.correctAnswerID(t, qids[0]))},
	}}
	if _, err := fx.service.FinishWrite(context.Background(), fx.instance.ID, req, "alice"); err != nil {
		t.Fatalf("FinishWrite: %v", err)
	}

	published := fx.pub.GetPublishedEvents()
	if len(published) != 1 {
		t.Fatalf("published %d events, want 1", len(published))
	}
	if published[0].Topic != events.TopicInstanceSubmitted {
		t.Fatalf("topic = %q", published[0].Topic)
	}
	event := published[0].Event.(events.InstanceSubmittedEvent)
	if event.Score != 1 || event.MaxScore != 4 || event.UserID != "alice" {
		t.Fatalf("unexpected event payload: %+v", event)
	}
}
