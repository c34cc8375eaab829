package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/umadex/umadex-backend/internal/config"
	"github.com/umadex/umadex-backend/internal/handler"
	"github.com/umadex/umadex-backend/internal/metrics"
	"github.com/umadex/umadex-backend/internal/middleware"
	"github.com/umadex/umadex-backend/internal/response"
	"github.com/umadex/umadex-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Reading     *handler.ReadingHandler
	Test        *handler.TestHandler
	TeacherTest *handler.TeacherTestHandler
	Debate      *handler.DebateHandler
	Bypass      *handler.BypassHandler
	WS          *handler.WSHandler
	Monitor     *handler.MonitorHandler
	Pipeline    *handler.PipelineHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// bypassLimiter throttles every endpoint that accepts a bypass code.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	bypassLimiter *middleware.RateLimiter,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Request ID first so the request logger can tag every line with it.
	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.RequestLogger(log))
	router.Use(metrics.MetricsMiddleware())
	router.Use(middleware.Brotli())

	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", metrics.PrometheusHandler())

	limitBypass := bypassLimiter.Middleware()

	// ─── 1. Student Group ──────────────────────────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(middleware.RequireStudentJWT(authService))
	{
		// Reading
		reading := studentAPI.Group("/reading/:assignment_id")
		reading.GET("/progress", handlers.Reading.GetProgress)
		reading.POST("/chunks/:chunk/start", handlers.Reading.StartUnit)
		reading.GET("/chunks/:chunk/question", handlers.Reading.GetCurrentQuestion)
		reading.POST("/chunks/:chunk/simpler", handlers.Reading.RequestSimplerQuestion)
		reading.POST("/chunks/:chunk/answer", limitBypass, handlers.Reading.SubmitAnswer)

		// Tests
		studentAPI.GET("/tests/:test_id/availability", handlers.Test.GetAvailability)
		studentAPI.POST("/tests/:test_id/schedule-override", limitBypass, handlers.Test.UseScheduleOverride)
		studentAPI.POST("/tests/:test_id/attempts", limitBypass, handlers.Test.StartAttempt)

		attempts := studentAPI.Group("/attempts/:attempt_id")
		attempts.GET("", handlers.Test.GetAttempt)
		attempts.GET("/questions", handlers.Test.GetQuestions)
		attempts.PUT("/answers", handlers.Test.SaveAnswer)
		attempts.POST("/violations", handlers.Test.RecordViolation)
		attempts.POST("/unlock", limitBypass, handlers.Test.Unlock)
		attempts.POST("/submit", handlers.Test.Submit)
		attempts.GET("/result", handlers.Test.GetResult)

		// Debates
		debates := studentAPI.Group("/debates/:assignment_id")
		debates.POST("", handlers.Debate.CreateDebate)
		debates.GET("", handlers.Debate.GetDebate)
		debates.POST("/position", handlers.Debate.SelectPosition)
		debates.POST("/posts", handlers.Debate.SubmitPost)
		debates.POST("/ai-response", handlers.Debate.RequestAIResponse)
		debates.POST("/challenges", handlers.Debate.SubmitChallenge)

		studentAPI.POST("/bypass/validate", limitBypass, handlers.Bypass.Validate)
	}

	// ─── 2. WebSocket Group ────────────────────────────────────────────
	// Browsers cannot set headers on the upgrade request; the token may
	// come from ?token=.
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentJWT(authService))
	{
		ws.GET("/student/attempts/:attempt_id/stream", handlers.WS.AttemptStream)
	}

	// ─── 3. Teacher Group ──────────────────────────────────────────────
	teacherAPI := router.Group("/api/v1/teacher")
	teacherAPI.Use(middleware.RequireTeacherJWT(authService))
	{
		teacherAPI.PUT("/tests/:test_id/schedule", handlers.TeacherTest.SetSchedule)
		teacherAPI.POST("/tests/:test_id/generate-questions", handlers.TeacherTest.TriggerGeneration)
		teacherAPI.GET("/tests/:test_id/monitor", handlers.Monitor.MonitorTestSSE)
		teacherAPI.GET("/generations/:log_id", handlers.TeacherTest.GetGeneration)

		teacherAPI.GET("/attempts/:attempt_id/result", handlers.TeacherTest.GetResult)
		teacherAPI.POST("/attempts/:attempt_id/regenerate", handlers.TeacherTest.RegenerateEvaluation)
		teacherAPI.POST("/attempts/:attempt_id/overrides", handlers.TeacherTest.OverrideScore)

		teacherAPI.PUT("/bypass-code", handlers.Bypass.SetPermanentCode)
		teacherAPI.POST("/override-codes", handlers.Bypass.GenerateOverrideCode)

		teacherAPI.GET("/pipeline", handlers.Pipeline.PipelineStatusSSE)
	}

	return router
}
