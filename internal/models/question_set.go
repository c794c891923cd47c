package models

import (
	"time"

	"gorm.io/gorm"
)

// QuestionSet is the authored pool a test draws its questions from. Sets stay
// editable until a referencing test is finalized; after that the per-instance
// assignment is snapshotted (TestInstanceQuestion) so later edits cannot
// change what a student was given.
type QuestionSet struct {
	ID       uint   `json:"id" gorm:"primaryKey"`
	Name     string `json:"name" gorm:"not null;size:200;index" validate:"required,min=1,max=200"`
	CourseID uint   `json:"course_id" gorm:"not null;index"`

	CreatedBy string         `json:"created_by" gorm:"not null;index;size:255"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Questions []Question `json:"questions,omitempty" gorm:"foreignKey:QuestionSetID"`

	// Computed fields (not stored)
	QuestionCount int `json:"question_count" gorm:"-"`
}

type Question struct {
	ID            uint   `json:"id" gorm:"primaryKey"`
	Text          string `json:"text" gorm:"type:text;not null" validate:"required"`
	QuestionSetID uint   `json:"question_set_id" gorm:"not null;index"`

	// QuestionNumber is a stable ordinal inside the set, used for
	// deterministic ordering when a test is not shuffled.
	QuestionNumber int `json:"question_number" gorm:"not null"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Answers []Answer `json:"answers,omitempty" gorm:"foreignKey:QuestionID"`
}

type Answer struct {
	ID         uint   `json:"id" gorm:"primaryKey"`
	Text       string `json:"text" gorm:"type:text;not null" validate:"required"`
	Correct    bool   `json:"correct" gorm:"not null;default:false"`
	QuestionID uint   `json:"question_id" gorm:"not null;index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (QuestionSet) TableName() string {
	return "question_sets"
}

func (Question) TableName() string {
	return "questions"
}

func (Answer) TableName() string {
	return "answers"
}
