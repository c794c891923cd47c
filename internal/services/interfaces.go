package services

import (
	"context"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/edulab/quiz-engine/internal/models"
	"github.com/edulab/quiz-engine/internal/repositories"
	"github.com/edulab/quiz-engine/internal/validator"
)

// ===== REQUEST/RESPONSE DTOs =====

// Request payloads live with their validation rules.
type TestCreateRequest = validator.TestCreateRequest
type QuestionSetCreateRequest = validator.QuestionSetCreateRequest
type QuestionCreateRequest = validator.QuestionCreateRequest
type AnswerCreateRequest = validator.AnswerCreateRequest
type StartWriteRequest = validator.StartWriteRequest
type FinishWriteRequest = validator.FinishWriteRequest
type AnswerSubmission = validator.AnswerSubmission

// AnswerOption is an answer as shown to a writing student: never carries the
// correct flag.
type AnswerOption struct {
	ID   uint   `json:"id"`
	Text string `json:"text"`
}

type QuestionForWrite struct {
	QuestionID uint           `json:"question_id"`
	Text       string         `json:"text"`
	Answers    []AnswerOption `json:"answers"`
}

type StartWriteResponse struct {
	InstanceID      uint                `json:"instance_id"`
	TestName        string              `json:"test_name"`
	DurationSeconds int                 `json:"duration_seconds"`
	StartTime       time.Time           `json:"start_time"`
	State           models.SessionState `json:"state"`
	Questions       []QuestionForWrite  `json:"questions"`
}

type InstanceResponse struct {
	*models.TestInstance
	MaxScore int                 `json:"max_score"`
	State    models.SessionState `json:"state"`
}

// QuestionResult is one row of the per-question results breakdown.
// AnswerText is nil when no answer was given.
type QuestionResult struct {
	QuestionID uint    `json:"question_id"`
	Text       string  `json:"text"`
	Correct    bool    `json:"correct"`
	AnswerText *string `json:"answer_text"`
}

type ResultsResponse struct {
	InstanceID uint             `json:"instance_id"`
	Score      int              `json:"score"`
	MaxScore   int              `json:"max_score"`
	Questions  []QuestionResult `json:"questions"`
}

type TestResponse struct {
	*models.Test
	Finalized     bool `json:"finalized"`
	InstanceCount int  `json:"instance_count"`
}

type QuestionSetResponse struct {
	*models.QuestionSet
	Referenced bool `json:"referenced"`
}

// ===== PORTS =====

// AuthorizationPort is the narrow interface the quiz engine needs from the
// surrounding permission subsystem. Everything else about RBAC stays outside.
type AuthorizationPort interface {
	CanManageGroup(ctx context.Context, userID string, groupID uint) (bool, error)
	CanManageCourse(ctx context.Context, userID string, courseID uint) (bool, error)
}

// ===== SERVICE INTERFACES =====

type TestService interface {
	Create(ctx context.Context, req *TestCreateRequest, creatorID string) (*TestResponse, error)
	GetByID(ctx context.Context, id uint, userID string) (*TestResponse, error)
	List(ctx context.Context, filters repositories.TestFilters, userID string) ([]*TestResponse, int64, error)
	Delete(ctx context.Context, id uint, userID string) error
	GetStats(ctx context.Context, id uint, userID string) (*repositories.TestStats, error)
}

type AllocatorService interface {
	// Finalize materializes one instance per enrolled student, atomically.
	Finalize(ctx context.Context, testID uint, callerID string) error

	// QuestionsForTest returns the (sanitized) question list. userID is
	// required for unique tests and ignored for shared ones.
	QuestionsForTest(ctx context.Context, testID uint, userID *string) ([]QuestionForWrite, error)

	ListInstances(ctx context.Context, testID uint, filters repositories.InstanceFilters, callerID string) ([]*InstanceResponse, int64, error)
}

type SessionService interface {
	// StartWrite is idempotent while the session is in progress; the first
	// call records the start time.
	StartWrite(ctx context.Context, instanceID uint, req *StartWriteRequest, callerID string) (*StartWriteResponse, error)

	// FinishWrite is one-shot; a second call fails with already-submitted.
	FinishWrite(ctx context.Context, instanceID uint, req *FinishWriteRequest, callerID string) (*InstanceResponse, error)
}

type ScoringService interface {
	Score(ctx context.Context, instanceID uint) (int, error)
	MaxScore(ctx context.Context, instanceID uint) (int, error)
	Results(ctx context.Context, instanceID uint, callerID string) (*ResultsResponse, error)
}

type QuestionSetService interface {
	Create(ctx context.Context, req *QuestionSetCreateRequest, creatorID string) (*QuestionSetResponse, error)
	GetByID(ctx context.Context, id uint, userID string) (*QuestionSetResponse, error)
	Delete(ctx context.Context, id uint, userID string) error

	AddQuestion(ctx context.Context, setID uint, req *QuestionCreateRequest, userID string) (*models.Question, error)
	UpdateQuestion(ctx context.Context, questionID uint, req *QuestionCreateRequest, userID string) (*models.Question, error)
	DeleteQuestion(ctx context.Context, questionID uint, userID string) error

	AddAnswer(ctx context.Context, questionID uint, req *AnswerCreateRequest, userID string) (*models.Answer, error)
	UpdateAnswer(ctx context.Context, answerID uint, req *AnswerCreateRequest, userID string) (*models.Answer, error)
	DeleteAnswer(ctx context.Context, answerID uint, userID string) error
}

type ExportService interface {
	// ExportTestScores renders the per-student score sheet of a test.
	ExportTestScores(ctx context.Context, testID uint, callerID string) (*excelize.File, error)
}

// ===== SERVICE MANAGER =====

type ServiceManager interface {
	Test() TestService
	Allocator() AllocatorService
	Session() SessionService
	Scoring() ScoringService
	QuestionSet() QuestionSetService
	Export() ExportService

	Initialize(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
