package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/edulab/quiz-engine/internal/config"
	"github.com/edulab/quiz-engine/internal/models"
	"github.com/edulab/quiz-engine/internal/repositories"
	"github.com/edulab/quiz-engine/internal/services"
	"github.com/edulab/quiz-engine/internal/utils"
	"github.com/edulab/quiz-engine/internal/validator"
)

type HandlerManager struct {
	testHandler        *TestHandler
	instanceHandler    *InstanceHandler
	questionSetHandler *QuestionSetHandler
	authMiddleware     *CasdoorAuthMiddleware
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	validator *validator.Validator,
	logger utils.Logger,
	casdoorConfig config.CasdoorConfig,
	userRepo repositories.UserRepository,
) *HandlerManager {
	return &HandlerManager{
		testHandler:        NewTestHandler(serviceManager.Test(), serviceManager.Allocator(), serviceManager.Export(), validator, logger),
		instanceHandler:    NewInstanceHandler(serviceManager.Session(), serviceManager.Scoring(), validator, logger),
		questionSetHandler: NewQuestionSetHandler(serviceManager.QuestionSet(), validator, logger),
		authMiddleware:     NewCasdoorAuthMiddleware(casdoorConfig, userRepo),
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	requireAuthoring := hm.authMiddleware.RequireRoleMiddleware(models.RoleInstructor, models.RoleAdmin)

	v1 := router.Group("/api/v1")
	v1.Use(hm.authMiddleware.AuthMiddleware())
	{
		// Test definition routes
		tests := v1.Group("/tests")
		{
			// Authoring - Instructors and Admins only
			tests.POST("", requireAuthoring, hm.testHandler.CreateTest)
			tests.DELETE("/:id", requireAuthoring, hm.testHandler.DeleteTest)
			tests.POST("/:id/finalize", requireAuthoring, hm.testHandler.FinalizeTest)
			tests.GET("/:id/instances", requireAuthoring, hm.testHandler.ListTestInstances)
			tests.GET("/:id/stats", requireAuthoring, hm.testHandler.GetTestStats)
			tests.GET("/:id/export", requireAuthoring, hm.testHandler.ExportTestScores)

			// View - All authenticated users; the service narrows per resource
			tests.GET("", hm.testHandler.ListTests)
			tests.GET("/:id", hm.testHandler.GetTest)
			tests.GET("/:id/questions", hm.testHandler.GetTestQuestions)
		}

		// Write session routes
		instances := v1.Group("/test-instances")
		{
			instances.POST("/:id/start-write", hm.instanceHandler.StartWrite)
			instances.POST("/:id/finish-write", hm.instanceHandler.FinishWrite)
			instances.GET("/:id/results", hm.instanceHandler.GetResults)
		}

		// Question bank routes - Instructors and Admins only
		questionSets := v1.Group("/question-sets")
		questionSets.Use(requireAuthoring)
		{
			questionSets.POST("", hm.questionSetHandler.CreateQuestionSet)
			questionSets.GET("/:id", hm.questionSetHandler.GetQuestionSet)
			questionSets.DELETE("/:id", hm.questionSetHandler.DeleteQuestionSet)
			questionSets.POST("/:id/questions", hm.questionSetHandler.AddQuestion)
		}

		questions := v1.Group("/questions")
		questions.Use(requireAuthoring)
		{
			questions.PUT("/:question_id", hm.questionSetHandler.UpdateQuestion)
			questions.DELETE("/:question_id", hm.questionSetHandler.DeleteQuestion)
			questions.POST("/:question_id/answers", hm.questionSetHandler.AddAnswer)
		}

		answers := v1.Group("/answers")
		answers.Use(requireAuthoring)
		{
			answers.PUT("/:answer_id", hm.questionSetHandler.UpdateAnswer)
			answers.DELETE("/:answer_id", hm.questionSetHandler.DeleteAnswer)
		}
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "quiz-engine",
		})
	})
}
