package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SessionState is the write-session state of a TestInstance. It is derived
// from the persisted columns rather than stored, so the two can never
// disagree.
type SessionState string

const (
	SessionNotStarted SessionState = "not_started"
	SessionInProgress SessionState = "in_progress"
	SessionSubmitted  SessionState = "submitted"
)

// Test is an instructor-authored quiz definition. Finalizing it materializes
// one TestInstance per enrolled student; until then the referenced question
// set may still grow or shrink.
type Test struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	Name            string    `json:"name" gorm:"not null;size:200;index" validate:"required,min=1,max=200"`
	QuestionAmount  int       `json:"question_amount" gorm:"not null" validate:"required,min=1"`
	DurationSeconds int       `json:"duration_seconds" gorm:"not null" validate:"required,min=30"`
	Shuffled        bool      `json:"shuffled" gorm:"not null;default:false"`
	Unique          bool      `json:"unique" gorm:"not null;default:false"`
	AvailableFrom   time.Time `json:"available_from" gorm:"not null"`
	AvailableUntil  time.Time `json:"available_until" gorm:"not null"`
	GroupID         uint      `json:"group_id" gorm:"not null;index"`
	QuestionSetID   uint      `json:"question_set_id" gorm:"not null;index"`
	Password        *string   `json:"-" gorm:"size:255"`

	CreatedBy string         `json:"created_by" gorm:"not null;index;size:255"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Group       Group          `json:"-" gorm:"foreignKey:GroupID"`
	QuestionSet QuestionSet    `json:"-" gorm:"foreignKey:QuestionSetID"`
	Instances   []TestInstance `json:"-" gorm:"foreignKey:TestID"`
}

// HasPassword reports whether the definition is password protected.
func (t *Test) HasPassword() bool {
	return t.Password != nil && *t.Password != ""
}

// TestInstance is one student's attempt at a Test. It is created by the
// Allocator, mutated by start-write (StartTime) and finish-write (FinishTime,
// Submitted, Score), and never reused.
type TestInstance struct {
	ID          uint       `json:"id" gorm:"primaryKey"`
	TestID      uint       `json:"test_id" gorm:"not null;index;uniqueIndex:idx_test_user"`
	UserID      string     `json:"user_id" gorm:"not null;index;size:255;uniqueIndex:idx_test_user"`
	StartTime   *time.Time `json:"start_time"`
	FinishTime  *time.Time `json:"finish_time"`
	Submitted   bool       `json:"submitted" gorm:"not null;default:false;index"`
	Score       int        `json:"score" gorm:"not null;default:0"`
	AccessToken *string    `json:"access_token,omitempty" gorm:"size:64;index"`

	// Client metadata captured at start-write (browser, address). Opaque to
	// the engine.
	SessionData datatypes.JSON `json:"session_data,omitempty" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Test             Test                  `json:"-" gorm:"foreignKey:TestID"`
	Questions        []TestInstanceQuestion `json:"-" gorm:"foreignKey:TestInstanceID"`
	SubmittedAnswers []SubmittedAnswer      `json:"-" gorm:"foreignKey:TestInstanceID"`
}

// State derives the write-session state from the persisted columns.
func (ti *TestInstance) State() SessionState {
	switch {
	case ti.Submitted:
		return SessionSubmitted
	case ti.StartTime != nil:
		return SessionInProgress
	default:
		return SessionNotStarted
	}
}

// TestInstanceQuestion snapshots one question assigned to one instance.
// Rows are created atomically with the instance and never mutated.
type TestInstanceQuestion struct {
	ID             uint `json:"id" gorm:"primaryKey"`
	TestInstanceID uint `json:"test_instance_id" gorm:"not null;index;uniqueIndex:idx_instance_question"`
	QuestionID     uint `json:"question_id" gorm:"not null;index;uniqueIndex:idx_instance_question"`

	CreatedAt time.Time `json:"created_at"`

	// Relations
	Question Question `json:"-" gorm:"foreignKey:QuestionID"`
}

// SubmittedAnswer holds the final answer for one assigned question of one
// instance. A null AnswerID records "no answer given"; the question id keeps
// the null attributable.
type SubmittedAnswer struct {
	ID             uint  `json:"id" gorm:"primaryKey"`
	TestInstanceID uint  `json:"test_instance_id" gorm:"not null;index;uniqueIndex:idx_instance_answer_question"`
	QuestionID     uint  `json:"question_id" gorm:"not null;index;uniqueIndex:idx_instance_answer_question"`
	AnswerID       *uint `json:"answer_id"`

	CreatedAt time.Time `json:"created_at"`

	// Relations
	Answer   *Answer  `json:"-" gorm:"foreignKey:AnswerID"`
	Question Question `json:"-" gorm:"foreignKey:QuestionID"`
}

func (Test) TableName() string {
	return "tests"
}

func (TestInstance) TableName() string {
	return "test_instances"
}

func (TestInstanceQuestion) TableName() string {
	return "test_instance_questions"
}

func (SubmittedAnswer) TableName() string {
	return "submitted_answers"
}
