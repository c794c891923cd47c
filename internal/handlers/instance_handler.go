package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edulab/quiz-engine/internal/services"
	"github.com/edulab/quiz-engine/internal/utils"
	"github.com/edulab/quiz-engine/internal/validator"
)

type InstanceHandler struct {
	BaseHandler
	sessionService services.SessionService
	scoringService services.ScoringService
	validator      *validator.Validator
}

func NewInstanceHandler(
	sessionService services.SessionService,
	scoringService services.ScoringService,
	validator *validator.Validator,
	logger utils.Logger,
) *InstanceHandler {
	return &InstanceHandler{
		BaseHandler:    NewBaseHandler(logger),
		sessionService: sessionService,
		scoringService: scoringService,
		validator:      validator,
	}
}

// StartWrite opens (or resumes) a write session
// @Summary Start write session
// @Description Opens the write session for a test instance; idempotent while
// @Description the session is in progress
// @Tags test-instances
// @Accept json
// @Produce json
// @Param id path uint true "Test instance ID"
// @Param session body services.StartWriteRequest true "Password and client metadata"
// @Success 200 {object} services.StartWriteResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /test-instances/{id}/start-write [post]
func (h *InstanceHandler) StartWrite(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Starting write session", "instance_id", id)

	var req services.StartWriteRequest
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

	session, err := h.sessionService.StartWrite(c.Request.Context(), id, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// FinishWrite submits the write session
// @Summary Finish write session
// @Description Submits the answers and closes the session; one-shot
// @Tags test-instances
// @Accept json
// @Produce json
// @Param id path uint true "Test instance ID"
// @Param answers body services.FinishWriteRequest true "Selected answers"
// @Success 200 {object} services.InstanceResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /test-instances/{id}/finish-write [post]
func (h *InstanceHandler) FinishWrite(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Finishing write session", "instance_id", id)

	var req services.FinishWriteRequest
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

	instance, err := h.sessionService.FinishWrite(c.Request.Context(), id, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, instance)
}

// GetResults returns the per-question results breakdown
// @Summary Get instance results
// @Description Returns the score and per-question breakdown of a submitted instance
// @Tags test-instances
// @Produce json
// @Param id path uint true "Test instance ID"
// @Success 200 {object} services.ResultsResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /test-instances/{id}/results [get]
func (h *InstanceHandler) GetResults(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	results, err := h.scoringService.Results(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, results)
}
