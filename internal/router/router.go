package router

import (
	"context"
	"strings"
	"time"

	"github.com/dcict/exam-backend/internal/config"
	"github.com/dcict/exam-backend/internal/handler"
	"github.com/dcict/exam-backend/internal/middleware"
	"github.com/dcict/exam-backend/internal/model"
	"github.com/dcict/exam-backend/internal/response"
	"github.com/dcict/exam-backend/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth          *handler.AuthHandler
	StudentPortal *handler.StudentPortalHandler
	StudentMgmt   *handler.StudentManagementHandler
	WS            *handler.WSHandler
	Schedule      *handler.ScheduleHandler
	Question      *handler.QuestionHandler
	Submission    *handler.SubmissionHandler
	Monitor       *handler.MonitorHandler
	System        *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// ctx bounds background work owned by the router, such as the rate limiter sweep.
func SetupRouter(
	ctx context.Context,
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Content-Disposition", "Location"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())

	// Workbooks are already zip-compressed.
	router.Use(middleware.BrotliWithConfig(middleware.BrotliConfig{
		Quality: middleware.DefaultBrotliConfig.Quality,
		Skipper: func(c *gin.Context) bool {
			return strings.HasSuffix(c.Request.URL.Path, "/export")
		},
	}))

	router.GET("/health", handlers.System.Health)

	requireStudent := []gin.HandlerFunc{
		middleware.RequireJWT(authService),
		middleware.RequireRole(model.RoleStudent),
		middleware.CheckSingleDeviceSession(authService),
	}
	requireTeacher := []gin.HandlerFunc{
		middleware.RequireJWT(authService),
		middleware.RequireRole(model.RoleTeacher),
	}

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	authLimiter := middleware.NewRateLimiter(ctx, 30, time.Minute)
	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/login", authLimiter.Middleware(), handlers.Auth.Login)
		auth.POST("/logout", middleware.RequireJWT(authService), handlers.Auth.Logout)
		auth.GET("/me", middleware.RequireJWT(authService), handlers.Auth.Me)
	}

	// ─── 2. Student Group (JWT + Single Device) ────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(requireStudent...)
	studentAPI.Use(middleware.NoStore())
	{
		studentAPI.GET("/dashboard", handlers.StudentPortal.GetDashboard)
		studentAPI.GET("/exam", handlers.StudentPortal.EnterExam)
	}

	// ─── 3. WebSocket Group (token query) ──────────────────────────────
	ws := router.Group("/ws/v1/student")
	ws.Use(requireStudent...)
	{
		ws.GET("/exam/stream", handlers.WS.ExamStream)
	}

	// ─── 4. Teacher Group ──────────────────────────────────────────────
	teacherAPI := router.Group("/api/v1/teacher")
	teacherAPI.Use(requireTeacher...)
	{
		teacherAPI.GET("/schedule", handlers.Schedule.GetSchedule)
		teacherAPI.PUT("/schedule", handlers.Schedule.UpdateSchedule)
		teacherAPI.DELETE("/schedule", handlers.Schedule.ClearSchedule)

		teacherAPI.GET("/questions", handlers.Question.ListQuestions)
		teacherAPI.POST("/questions/reload", handlers.Question.ReloadQuestions)

		teacherAPI.GET("/students", handlers.StudentMgmt.ListStudents)
		teacherAPI.POST("/students/:id/reset-login", handlers.StudentMgmt.ResetStudentLogin)

		teacherAPI.GET("/submissions", handlers.Submission.ListSubmissions)
		teacherAPI.GET("/submissions/export", handlers.Submission.ExportSubmissions)
		teacherAPI.GET("/submissions/:student_id", handlers.Submission.GetSubmission)
		teacherAPI.DELETE("/submissions/:student_id", handlers.Submission.DeleteSubmission)

		teacherAPI.GET("/monitor", handlers.Monitor.MonitorSSE)
		teacherAPI.GET("/monitor/snapshot", handlers.Monitor.GetSnapshot)
		teacherAPI.GET("/system/metrics", handlers.System.SystemMetricsSSE)
	}

	return router
}
