package services

import (
	"context"
	"fmt"

	"github.com/edulab/quiz-engine/internal/models"
	"github.com/edulab/quiz-engine/internal/repositories"
)

// repositoryAuthorization answers management questions from identity roles
// and group memberships: admins manage everything, instructors manage the
// groups they hold an instructor membership in.
type repositoryAuthorization struct {
	repo repositories.Repository
}

func NewRepositoryAuthorization(repo repositories.Repository) AuthorizationPort {
	return &repositoryAuthorization{repo: repo}
}

func (a *repositoryAuthorization) CanManageGroup(ctx context.Context, userID string, groupID uint) (bool, error) {
	isAdmin, err := a.repo.User().HasRole(ctx, userID, models.RoleAdmin)
	if err != nil {
		return false, fmt.Errorf("failed to check admin role: %w", err)
	}
	if isAdmin {
		return true, nil
	}

	isInstructor, err := a.repo.Group().IsInstructor(ctx, nil, groupID, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check instructor membership: %w", err)
	}
	return isInstructor, nil
}

// CanManageCourse gates authoring of course-scoped content (question sets).
// Course membership is not modeled here, so any instructor may author; the
// surrounding platform narrows this further.
func (a *repositoryAuthorization) CanManageCourse(ctx context.Context, userID string, courseID uint) (bool, error) {
	isAdmin, err := a.repo.User().HasRole(ctx, userID, models.RoleAdmin)
	if err != nil {
		return false, fmt.Errorf("failed to check admin role: %w", err)
	}
	if isAdmin {
		return true, nil
	}

	isInstructor, err := a.repo.User().HasRole(ctx, userID, models.RoleInstructor)
	if err != nil {
		return false, fmt.Errorf("failed to check instructor role: %w", err)
	}
	return isInstructor, nil
}
