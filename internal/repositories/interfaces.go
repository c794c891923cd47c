package repositories

import (
	"context"
	"time"

	"github.com/edulab/quiz-engine/internal/models"
	"gorm.io/gorm"
)

// ===== SHARED FILTER STRUCTS =====

type TestFilters struct {
	GroupID       *uint      `json:"group_id"`
	QuestionSetID *uint      `json:"question_set_id"`
	CreatedBy     *string    `json:"created_by"`
	AvailableAt   *time.Time `json:"available_at"`
	Limit         int        `json:"limit"`
	Offset        int        `json:"offset"`
	SortBy        string     `json:"sort_by"`    // "created_at", "name", "available_from"
	SortOrder     string     `json:"sort_order"` // "asc", "desc"
}

type InstanceFilters struct {
	Submitted *bool   `json:"submitted"`
	UserID    *string `json:"user_id"`
	Limit     int     `json:"limit"`
	Offset    int     `json:"offset"`
	SortBy    string  `json:"sort_by"`
	SortOrder string  `json:"sort_order"`
}

// ===== SHARED STATISTICS STRUCTS =====

type TestStats struct {
	InstanceCount  int     `json:"instance_count"`
	SubmittedCount int     `json:"submitted_count"`
	AverageScore   float64 `json:"average_score"`
	MaxScore       int     `json:"max_score"`
}

// ===== ENTITY REPOSITORIES =====

/// QuestionSetRepository covers question bank storage: sets, questions and
// answers. All repositories take an optional tx; a nil tx means the default
// connection.
type QuestionSetRepository interface {
	Create(ctx context.Context, tx *gorm.DB, set *models.QuestionSet) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.QuestionSet, error)
	Update(ctx context.Context, tx *gorm.DB, set *models.QuestionSet) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error

	// Pool access
	GetQuestions(ctx context.Context, tx *gorm.DB, setID uint) ([]*models.Question, error) // answers preloaded
	CountQuestions(ctx context.Context, tx *gorm.DB, setID uint) (int64, error)

	// Question/answer authoring
	GetQuestionByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error) // answers preloaded
	GetAnswerByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Answer, error)
	CreateQuestion(ctx context.Context, tx *gorm.DB, question *models.Question) error
	UpdateQuestion(ctx context.Context, tx *gorm.DB, question *models.Question) error
	DeleteQuestion(ctx context.Context, tx *gorm.DB, id uint) error
	CreateAnswer(ctx context.Context, tx *gorm.DB, answer *models.Answer) error
	UpdateAnswer(ctx context.Context, tx *gorm.DB, answer *models.Answer) error
	DeleteAnswer(ctx context.Context, tx *gorm.DB, id uint) error

	// Referential integrity: a set referenced by any test must not be deleted.
	IsReferenced(ctx context.Context, tx *gorm.DB, setID uint) (bool, error)
}

type TestRepository interface {
	Create(ctx context.Context, tx *gorm.DB, test *models.Test) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Test, error)
	Update(ctx context.Context, tx *gorm.DB, test *models.Test) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error
	List(ctx context.Context, tx *gorm.DB, filters TestFilters) ([]*models.Test, int64, error)

	GetStats(ctx context.Context, tx *gorm.DB, testID uint) (*TestStats, error)
}

// InstanceRepository covers TestInstance plus its assignment and answer rows.
type InstanceRepository interface {
	Create(ctx context.Context, tx *gorm.DB, instance *models.TestInstance) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.TestInstance, error)
	GetByTestAndUser(ctx context.Context, tx *gorm.DB, testID uint, userID string) (*models.TestInstance, error)
	CountByTest(ctx context.Context, tx *gorm.DB, testID uint) (int64, error)
	ListByTest(ctx context.Context, tx *gorm.DB, testID uint, filters InstanceFilters) ([]*models.TestInstance, int64, error)

	// Assignment snapshot, created atomically with the instance.
	CreateAssignments(ctx context.Context, tx *gorm.DB, assignments []*models.TestInstanceQuestion) error
	GetAssignedQuestions(ctx context.Context, tx *gorm.DB, instanceID uint) ([]*models.Question, error) // answers preloaded

	// SetStartTime sets the start time only when none is recorded yet and
	// reports whether this call was the one that set it.
	SetStartTime(ctx context.Context, tx *gorm.DB, instanceID uint, start time.Time) (bool, error)

	// MarkSubmitted atomically flips submitted from false to true, recording
	// finish time and score. Returns false when the instance was already
	// submitted (second writer loses).
	MarkSubmitted(ctx context.Context, tx *gorm.DB, instanceID uint, finish time.Time, score int) (bool, error)

	UpdateSessionData(ctx context.Context, tx *gorm.DB, instanceID uint, data []byte) error

	CreateSubmittedAnswers(ctx context.Context, tx *gorm.DB, answers []*models.SubmittedAnswer) error
	GetSubmittedAnswers(ctx context.Context, tx *gorm.DB, instanceID uint) ([]*models.SubmittedAnswer, error) // answer rows preloaded
}

type GroupRepository interface {
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Group, error)

	// GetActiveStudentIDs returns the ids of currently subscribed students,
	// the roster Finalize allocates instances for.
	GetActiveStudentIDs(ctx context.Context, tx *gorm.DB, groupID uint) ([]string, error)

	// IsInstructor reports whether the user holds an instructor membership in
	// the group.
	IsInstructor(ctx context.Context, tx *gorm.DB, groupID uint, userID string) (bool, error)
}

// UserRepository is read-only; user data is owned by the identity provider.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByIDs(ctx context.Context, ids []string) ([]*models.User, error)
	ExistsByID(ctx context.Context, id string) (bool, error)
	HasRole(ctx context.Context, id string, role models.UserRole) (bool, error)
}
