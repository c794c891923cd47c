package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/edulab/quiz-engine/internal/services"
	"github.com/edulab/quiz-engine/internal/utils"
	"github.com/edulab/quiz-engine/internal/validator"
)

// SuccessResponse is the envelope for operations that return a message
// instead of (or alongside) a payload.
type SuccessResponse struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type ErrorResponse struct {
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// BaseHandler carries the pieces every handler shares: the logger and the
// common parsing / error translation helpers.
type BaseHandler struct {
	logger utils.Logger
}

func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{logger: logger}
}

func (h *BaseHandler) LogRequest(c *gin.Context, msg string, args ...any) {
	utils.LoggerFromContext(c, h.logger).Info(msg, args...)
}

func (h *BaseHandler) LogError(c *gin.Context, err error, msg string, args ...any) {
	utils.LoggerFromContext(c, h.logger).Error(msg, append(args, "error", err)...)
}

// parseIDParam parses a numeric path parameter. A zero return means the
// response has already been written.
func (h *BaseHandler) parseIDParam(c *gin.Context, param string) uint {
	idStr := c.Param(param)
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + param,
		})
		return 0
	}
	return uint(id)
}

func (h *BaseHandler) parseIntQuery(c *gin.Context, param string, defaultValue int) int {
	valueStr := c.Query(param)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getUserID returns the authenticated user, writing a 401 when the auth
// middleware did not run.
func (h *BaseHandler) getUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return "", false
	}
	id, ok := userID.(string)
	if !ok || strings.TrimSpace(id) == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return "", false
	}
	return id, true
}

// handleServiceError translates service errors into HTTP responses. The
// ordering matters: typed errors first, then the sentinel classes.
func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: "Validation failed",
			Details: validationErrors,
		})
		return
	}

	var permissionError *services.PermissionError
	if errors.As(err, &permissionError) {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Access denied",
			Details: map[string]any{
				"resource": permissionError.Resource,
				"action":   permissionError.Action,
				"reason":   permissionError.Reason,
			},
		})
		return
	}

	switch {
	// Instances are write-once, so a repeated submit is a Forbidden-class
	// violation like ownership or password, not a retryable conflict.
	case errors.Is(err, services.ErrAlreadySubmitted):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Test instance already submitted",
		})
	case errors.Is(err, services.ErrWrongPassword):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Wrong test password",
		})
	case errors.Is(err, services.ErrTestNotYetOpen):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Test is not yet available",
		})
	case errors.Is(err, services.ErrTestAlreadyFinalized):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Test already finalized",
		})
	case errors.Is(err, services.ErrTestNotFinalized):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Test not finalized",
		})
	case errors.Is(err, services.ErrQuestionSetInUse):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Question set is referenced by a test",
		})
	case errors.Is(err, services.ErrInsufficientQuestions):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Question set has fewer questions than the test requires",
		})
	case errors.Is(err, services.ErrEmptyGroup):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Group has no active student enrollments",
		})
	case errors.Is(err, services.ErrNotSubmitted):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Test instance not yet submitted",
		})
	case errors.Is(err, services.ErrUserIDRequired):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "user_id is required for unique tests",
		})
	case services.IsNotFoundError(err):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: err.Error(),
		})
	default:
		h.LogError(c, err, "Unexpected service error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal server error",
		})
	}
}
