package validator

import (
	"encoding/json"
	"time"
)

// TestCreateRequest is the instructor-facing payload for authoring a test
// definition. questionAmount against the pool size is checked at finalize
// time, not here; the set may still change.
type TestCreateRequest struct {
	Name            string    `json:"name" validate:"required,min=1,max=200"`
	QuestionAmount  int       `json:"question_amount" validate:"required,question_amount"`
	DurationSeconds int       `json:"duration_seconds" validate:"required,test_duration"`
	Shuffled        bool      `json:"shuffled"`
	Unique          bool      `json:"unique"`
	AvailableFrom   time.Time `json:"available_from" validate:"required"`
	AvailableUntil  time.Time `json:"available_until" validate:"required"`
	GroupID         uint      `json:"group_id" validate:"required"`
	QuestionSetID   uint      `json:"question_set_id" validate:"required"`
	Password        *string   `json:"password" validate:"omitempty,min=4,max=64"`
}

type QuestionSetCreateRequest struct {
	Name     string `json:"name" validate:"required,min=1,max=200"`
	CourseID uint   `json:"course_id" validate:"required"`
}

type QuestionCreateRequest struct {
	Text           string `json:"text" validate:"required,min=1,max=4000"`
	QuestionNumber int    `json:"question_number" validate:"min=0"`
}

type AnswerCreateRequest struct {
	Text    string `json:"text" validate:"required,min=1,max=2000"`
	Correct bool   `json:"correct"`
}

// StartWriteRequest carries the optional test password and opaque client
// metadata recorded on the instance.
type StartWriteRequest struct {
	Password    *string         `json:"password"`
	SessionData json.RawMessage `json:"session_data"`
}

// AnswerSubmission is one intended answer; a nil AnswerID means the question
// was deliberately skipped.
type AnswerSubmission struct {
	AnswerID *uint `json:"answer_id"`
}

// An empty or missing answers list is a valid submission: every assigned
// question counts as unanswered.
type FinishWriteRequest struct {
	Answers []AnswerSubmission `json:"answers" validate:"omitempty,dive"`
}
