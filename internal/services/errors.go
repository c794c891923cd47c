package services

import (
	"errors"
	"fmt"
)

// Not-found class: the referenced row does not exist.
var (
	ErrTestNotFound        = errors.New("test not found")
	ErrInstanceNotFound    = errors.New("test instance not found")
	ErrQuestionSetNotFound = errors.New("question set not found")
	ErrQuestionNotFound    = errors.New("question not found")
	ErrAnswerNotFound      = errors.New("answer not found")
	ErrGroupNotFound       = errors.New("group not found")
)

// Forbidden class: the caller may not perform the operation in the current
// state. Already-submitted belongs here because instances are write-once.
var (
	ErrAlreadySubmitted = errors.New("test instance already submitted")
	ErrTestNotYetOpen   = errors.New("test is not yet available")
	ErrWrongPassword    = errors.New("wrong test password")
)

// Conflict/BadRequest class: preconditions unmet.
var (
	ErrTestAlreadyFinalized  = errors.New("test already finalized")
	ErrTestNotFinalized      = errors.New("test not finalized")
	ErrInsufficientQuestions = errors.New("question set has fewer questions than the test requires")
	ErrEmptyGroup            = errors.New("group has no active student enrollments")
	ErrNotSubmitted          = errors.New("test instance not yet submitted")
	ErrUserIDRequired        = errors.New("user_id is required for unique tests")
	ErrQuestionSetInUse      = errors.New("question set is referenced by a test")
)

// PermissionError carries context about a refused operation.
type PermissionError struct {
	UserID     string
	ResourceID uint
	Resource   string
	Action     string
	Reason     string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("user %s may not %s %s %d: %s",
		e.UserID, e.Action, e.Resource, e.ResourceID, e.Reason)
}

func NewPermissionError(userID string, resourceID uint, resource, action, reason string) error {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}

// IsPermissionError reports whether err is any Forbidden-class failure.
func IsPermissionError(err error) bool {
	var pe *PermissionError
	if errors.As(err, &pe) {
		return true
	}
	return errors.Is(err, ErrAlreadySubmitted) ||
		errors.Is(err, ErrTestNotYetOpen) ||
		errors.Is(err, ErrWrongPassword)
}

// IsNotFoundError reports whether err is any NotFound-class failure.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrTestNotFound) ||
		errors.Is(err, ErrInstanceNotFound) ||
		errors.Is(err, ErrQuestionSetNotFound) ||
		errors.Is(err, ErrQuestionNotFound) ||
		errors.Is(err, ErrAnswerNotFound) ||
		errors.Is(err, ErrGroupNotFound)
}

// IsPreconditionError reports whether err is a Conflict/BadRequest-class
// failure.
func IsPreconditionError(err error) bool {
	return errors.Is(err, ErrTestAlreadyFinalized) ||
		errors.Is(err, ErrTestNotFinalized) ||
		errors.Is(err, ErrInsufficientQuestions) ||
		errors.Is(err, ErrEmptyGroup) ||
		errors.Is(err, ErrNotSubmitted) ||
		errors.Is(err, ErrUserIDRequired) ||
		errors.Is(err, ErrQuestionSetInUse)
}
