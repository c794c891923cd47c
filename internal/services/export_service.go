package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xuri/excelize/v2"

	"github.com/edulab/quiz-engine/internal/models"
	"github.com/edulab/quiz-engine/internal/repositories"
)

type exportService struct {
	repo   repositories.Repository
	logger *slog.Logger
	authz  AuthorizationPort
}

func NewExportService(repo repositories.Repository, logger *slog.Logger, authz AuthorizationPort) ExportService {
	return &exportService{
		repo:   repo,
		logger: logger,
		authz:  authz,
	}
}

const scoresSheet = "Scores"

// ExportTestScores renders one row per instance of the test, with student
// name, session state and score.
func (s *exportService) ExportTestScores(ctx context.Context, testID uint, callerID string) (*excelize.File, error) {
	test, err := s.repo.Test().GetByID(ctx, nil, testID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("failed to get test: %w", err)
	}

	canManage, err := s.authz.CanManageGroup(ctx, callerID, test.GroupID)
	if err != nil {
		return nil, err
	}
	if !canManage {
		return nil, NewPermissionError(callerID, testID, "test", "export", "no management rights over owning group")
	}

	instances, _, err := s.repo.Instance().ListByTest(ctx, nil, testID, repositories.InstanceFilters{
		SortBy:    "user_id",
		SortOrder: "asc",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}

	users, err := s.loadUsers(ctx, instances)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	f.SetSheetName(f.GetSheetName(0), scoresSheet)

	headers := []string{"Student ID", "Name", "Email", "State", "Score", "Max Score", "Started", "Finished"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(scoresSheet, cell, h)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	if err == nil {
		endCell, _ := excelize.CoordinatesToCellName(len(headers), 1)
		f.SetCellStyle(scoresSheet, "A1", endCell, headerStyle)
	}

	const timeLayout = "2006-01-02 15:04:05"
	for row, instance := range instances {
		values := []interface{}{
			instance.UserID,
			"",
			"",
			string(instance.State()),
			instance.Score,
			test.QuestionAmount,
			"",
			"",
		}
		if u := users[instance.UserID]; u != nil {
			values[1] = u.FullName
			values[2] = u.Email
		}
		if instance.StartTime != nil {
			values[6] = instance.StartTime.Format(timeLayout)
		}
		if instance.FinishTime != nil {
			values[7] = instance.FinishTime.Format(timeLayout)
		}

		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(scoresSheet, cell, v)
		}
	}

	s.logger.Info("Exported test scores",
		"test_id", testID,
		"instance_count", len(instances),
		"exported_by", callerID)

	return f, nil
}

func (s *exportService) loadUsers(ctx context.Context, instances []*models.TestInstance) (map[string]*models.User, error) {
	ids := make([]string, len(instances))
	for i, instance := range instances {
		ids[i] = instance.UserID
	}

	users, err := s.repo.User().GetByIDs(ctx, ids)
	if err != nil {
		// Missing identity data degrades the sheet, it does not block the
		// export.
		s.logger.Warn("Failed to resolve user details for export", "error", err)
		return map[string]*models.User{}, nil
	}

	byID := make(map[string]*models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	return byID, nil
}
