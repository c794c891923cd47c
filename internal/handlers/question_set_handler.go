package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edulab/quiz-engine/internal/services"
	"github.com/edulab/quiz-engine/internal/utils"
	"github.com/edulab/quiz-engine/internal/validator"
)

type QuestionSetHandler struct {
	BaseHandler
	questionSetService services.QuestionSetService
	validator          *validator.Validator
}

func NewQuestionSetHandler(
	questionSetService services.QuestionSetService,
	validator *validator.Validator,
	logger utils.Logger,
) *QuestionSetHandler {
	return &QuestionSetHandler{
		BaseHandler:        NewBaseHandler(logger),
		questionSetService: questionSetService,
		validator:          validator,
	}
}

// ===== QUESTION SETS =====

// CreateQuestionSet creates a new question set
// @Summary Create question set
// @Description Creates an empty question set within a course
// @Tags question-sets
// @Accept json
// @Produce json
// @Param set body services.QuestionSetCreateRequest true "Question set data"
// @Success 201 {object} services.QuestionSetResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /question-sets [post]
func (h *QuestionSetHandler) CreateQuestionSet(c *gin.Context) {
	h.LogRequest(c, "Creating question set")

	var req services.QuestionSetCreateRequest
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

	set, err := h.questionSetService.Create(c.Request.Context(), &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, set)
}

// GetQuestionSet retrieves a question set by ID
// @Summary Get question set
// @Description Retrieves a question set with its question count
// @Tags question-sets
// @Produce json
// @Param id path uint true "Question set ID"
// @Success 200 {object} services.QuestionSetResponse
// @Failure 404 {object} ErrorResponse
// @Router /question-sets/{id} [get]
func (h *QuestionSetHandler) GetQuestionSet(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	set, err := h.questionSetService.GetByID(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, set)
}

// DeleteQuestionSet deletes an unreferenced question set
// @Summary Delete question set
// @Description Deletes a question set that no test references
// @Tags question-sets
// @Produce json
// @Param id path uint true "Question set ID"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /question-sets/{id} [delete]
func (h *QuestionSetHandler) DeleteQuestionSet(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Deleting question set", "question_set_id", id)

	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	if err := h.questionSetService.Delete(c.Request.Context(), id, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Question set deleted successfully",
	})
}

// ===== QUESTIONS =====

// AddQuestion adds a question to a set
// @Summary Add question
// @Description Adds a question to a question set
// @Tags question-sets
// @Accept json
// @Produce json
// @Param id path uint true "Question set ID"
// @Param question body services.QuestionCreateRequest true "Question data"
// @Success 201 {object} models.Question
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /question-sets/{id}/questions [post]
func (h *QuestionSetHandler) AddQuestion(c *gin.Context) {
	setID := h.parseIDParam(c, "id")
	if setID == 0 {
		return
	}

	var req services.QuestionCreateRequest
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

	question, err := h.questionSetService.AddQuestion(c.Request.Context(), setID, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, question)
}

// UpdateQuestion updates a question
// @Summary Update question
// @Description Updates the text or position of a question
// @Tags question-sets
// @Accept json
// @Produce json
// @Param question_id path uint true "Question ID"
// @Param question body services.QuestionCreateRequest true "Question data"
// @Success 200 {object} models.Question
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /questions/{question_id} [put]
func (h *QuestionSetHandler) UpdateQuestion(c *gin.Context) {
	questionID := h.parseIDParam(c, "question_id")
	if questionID == 0 {
		return
	}

	var req services.QuestionCreateRequest
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

	question, err := h.questionSetService.UpdateQuestion(c.Request.Context(), questionID, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, question)
}

// DeleteQuestion deletes a question and its answers
// @Summary Delete question
// @Description Deletes a question together with its answers
// @Tags question-sets
// @Produce json
// @Param question_id path uint true "Question ID"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse
// @Router /questions/{question_id} [delete]
func (h *QuestionSetHandler) DeleteQuestion(c *gin.Context) {
	questionID := h.parseIDParam(c, "question_id")
	if questionID == 0 {
		return
	}

	h.LogRequest(c, "Deleting question", "question_id", questionID)

	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	if err := h.questionSetService.DeleteQuestion(c.Request.Context(), questionID, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Question deleted successfully",
	})
}

// ===== ANSWERS =====

// AddAnswer adds an answer option to a question
// @Summary Add answer
// @Description Adds an answer option to a question
// @Tags question-sets
// @Accept json
// @Produce json
// @Param question_id path uint true "Question ID"
// @Param answer body services.AnswerCreateRequest true "Answer data"
// @Success 201 {object} models.Answer
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /questions/{question_id}/answers [post]
func (h *QuestionSetHandler) AddAnswer(c *gin.Context) {
	questionID := h.parseIDParam(c, "question_id")
	if questionID == 0 {
		return
	}

	var req services.AnswerCreateRequest
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

	answer, err := h.questionSetService.AddAnswer(c.Request.Context(), questionID, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, answer)
}

// UpdateAnswer updates an answer option
// @Summary Update answer
// @Description Updates the text or correctness of an answer option
// @Tags question-sets
// @Accept json
// @Produce json
// @Param answer_id path uint true "Answer ID"
// @Param answer body services.AnswerCreateRequest true "Answer data"
// @Success 200 {object} models.Answer
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /answers/{answer_id} [put]
func (h *QuestionSetHandler) UpdateAnswer(c *gin.Context) {
	answerID := h.parseIDParam(c, "answer_id")
	if answerID == 0 {
		return
	}

	var req services.AnswerCreateRequest
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

	answer, err := h.questionSetService.UpdateAnswer(c.Request.Context(), answerID, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, answer)
}

// DeleteAnswer deletes an answer option
// @Summary Delete answer
// @Description Deletes an answer option from a question
// @Tags question-sets
// @Produce json
// @Param answer_id path uint true "Answer ID"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse
// @Router /answers/{answer_id} [delete]
func (h *QuestionSetHandler) DeleteAnswer(c *gin.Context) {
	answerID := h.parseIDParam(c, "answer_id")
	if answerID == 0 {
		return
	}

	h.LogRequest(c, "Deleting answer", "answer_id", answerID)

	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	if err := h.questionSetService.DeleteAnswer(c.Request.Context(), answerID, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Answer deleted successfully",
	})
}
