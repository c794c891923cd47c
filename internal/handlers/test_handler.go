package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edulab/quiz-engine/internal/repositories"
	"github.com/edulab/quiz-engine/internal/services"
	"github.com/edulab/quiz-engine/internal/utils"
	"github.com/edulab/quiz-engine/internal/validator"
)

type TestHandler struct {
	BaseHandler
	testService      services.TestService
	allocatorService services.AllocatorService
	exportService    services.ExportService
	validator        *validator.Validator
}

func NewTestHandler(
	testService services.TestService,
	allocatorService services.AllocatorService,
	exportService services.ExportService,
	validator *validator.Validator,
	logger utils.Logger,
) *TestHandler {
	return &TestHandler{
		BaseHandler:      NewBaseHandler(logger),
		testService:      testService,
		allocatorService: allocatorService,
		exportService:    exportService,
		validator:        validator,
	}
}

// CreateTest creates a new test definition
// @Summary Create test
// @Description Creates a new test definition over a question set and group
// @Tags tests
// @Accept json
// @Produce json
// @Param test body services.TestCreateRequest true "Test definition"
// @Success 201 {object} services.TestResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /tests [post]
func (h *TestHandler) CreateTest(c *gin.Context) {
	h.LogRequest(c, "Creating test")

	var req services.TestCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	test, err := h.testService.Create(c.Request.Context(), &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, test)
}

// GetTest retrieves a test by ID
// @Summary Get test
// @Description Retrieves a test definition by its ID
// @Tags tests
// @Produce json
// @Param id path uint true "Test ID"
// @Success 200 {object} services.TestResponse
// @Failure 404 {object} ErrorResponse
// @Router /tests/{id} [get]
func (h *TestHandler) GetTest(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	test, err := h.testService.GetByID(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, test)
}

// ListTests lists tests with filters
// @Summary List tests
// @Description Lists tests visible to the caller, with optional filtering
// @Tags tests
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param size query int false "Page size" default(10)
// @Param group_id query uint false "Group ID"
// @Param question_set_id query uint false "Question set ID"
// @Success 200 {object} map[string]interface{}
// @Router /tests [get]
func (h *TestHandler) ListTests(c *gin.Context) {
	h.LogRequest(c, "Listing tests")

	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	filters := h.parseTestFilters(c)
	tests, total, err := h.testService.List(c.Request.Context(), filters, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, paginatedResponse(tests, total, filters.Limit, filters.Offset))
}

// DeleteTest deletes a test definition
// @Summary Delete test
// @Description Deletes a test that has not been finalized yet
// @Tags tests
// @Produce json
// @Param id path uint true "Test ID"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /tests/{id} [delete]
func (h *TestHandler) DeleteTest(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Deleting test", "test_id", id)

	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	if err := h.testService.Delete(c.Request.Context(), id, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Test deleted successfully",
	})
}

// FinalizeTest snapshots the test for its group
// @Summary Finalize test
// @Description Creates one instance per enrolled student with drawn questions
// @Tags tests
// @Produce json
// @Param id path uint true "Test ID"
// @Success 204
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /tests/{id}/finalize [post]
func (h *TestHandler) FinalizeTest(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Finalizing test", "test_id", id)

	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	if err := h.allocatorService.Finalize(c.Request.Context(), id, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// GetTestQuestions returns the sanitized question list for a finalized test
// @Summary Get test questions
// @Description Returns the drawn questions without correctness information
// @Tags tests
// @Produce json
// @Param id path uint true "Test ID"
// @Param user_id query string false "Student, required for unique tests"
// @Success 200 {object} []services.QuestionForWrite
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /tests/{id}/questions [get]
func (h *TestHandler) GetTestQuestions(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var userID *string
	if v := strings.TrimSpace(c.Query("user_id")); v != "" {
		userID = &v
	}

	questions, err := h.allocatorService.QuestionsForTest(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, questions)
}

// ListTestInstances lists the instances of a test
// @Summary List test instances
// @Description Lists instances of a test with their session state and score
// @Tags tests
// @Produce json
// @Param id path uint true "Test ID"
// @Param submitted query bool false "Filter by submission state"
// @Success 200 {object} map[string]interface{}
// @Failure 403 {object} ErrorResponse
// @Router /tests/{id}/instances [get]
func (h *TestHandler) ListTestInstances(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	filters := h.parseInstanceFilters(c)
	instances, total, err := h.allocatorService.ListInstances(c.Request.Context(), id, filters, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, paginatedResponse(instances, total, filters.Limit, filters.Offset))
}

// GetTestStats retrieves aggregate statistics for a test
// @Summary Get test statistics
// @Description Retrieves instance counts and the average submitted score
// @Tags tests
// @Produce json
// @Param id path uint true "Test ID"
// @Success 200 {object} repositories.TestStats
// @Failure 403 {object} ErrorResponse
// @Router /tests/{id}/stats [get]
func (h *TestHandler) GetTestStats(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	stats, err := h.testService.GetStats(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// ExportTestScores streams the per-student score sheet as an xlsx file
// @Summary Export test scores
// @Description Renders the per-student score sheet of a test as a spreadsheet
// @Tags tests
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path uint true "Test ID"
// @Success 200 {file} binary
// @Failure 403 {object} ErrorResponse
// @Router /tests/{id}/export [get]
func (h *TestHandler) ExportTestScores(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Exporting test scores", "test_id", id)

	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	file, err := h.exportService.ExportTestScores(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	filename := fmt.Sprintf("test-%d-scores.xlsx", id)
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if err := file.Write(c.Writer); err != nil {
		h.LogError(c, err, "Failed to stream score export", "test_id", id)
	}
}

// ===== HELPERS =====

func (h *TestHandler) parseTestFilters(c *gin.Context) repositories.TestFilters {
	page := h.parseIntQuery(c, "page", 1)
	size := h.parseIntQuery(c, "size", 10)

	filters := repositories.TestFilters{
		Limit:     size,
		Offset:    (page - 1) * size,
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}

	if groupID := h.parseIntQuery(c, "group_id", 0); groupID > 0 {
		id := uint(groupID)
		filters.GroupID = &id
	}
	if setID := h.parseIntQuery(c, "question_set_id", 0); setID > 0 {
		id := uint(setID)
		filters.QuestionSetID = &id
	}
	if at := c.Query("available_at"); at != "" {
		if t, err := time.Parse(time.RFC3339, at); err == nil {
			filters.AvailableAt = &t
		}
	}

	return filters
}

func (h *TestHandler) parseInstanceFilters(c *gin.Context) repositories.InstanceFilters {
	page := h.parseIntQuery(c, "page", 1)
	size := h.parseIntQuery(c, "size", 10)

	filters := repositories.InstanceFilters{
		Limit:     size,
		Offset:    (page - 1) * size,
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}

	if submitted := c.Query("submitted"); submitted != "" {
		v := submitted == "true"
		filters.Submitted = &v
	}
	if studentID := strings.TrimSpace(c.Query("user_id")); studentID != "" {
		filters.UserID = &studentID
	}

	return filters
}

func paginatedResponse(data any, total int64, limit, offset int) map[string]any {
	if limit < 1 {
		limit = 1
	}
	page := (offset / limit) + 1
	totalPages := (int(total) + limit - 1) / limit

	return map[string]any{
		"data":        data,
		"total":       total,
		"page":        page,
		"size":        limit,
		"total_pages": totalPages,
	}
}
