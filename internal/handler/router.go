package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fieldops-api/internal/middleware"
	"github.com/noah-isme/fieldops-api/internal/models"
)

// Handlers groups every HTTP handler mounted under the API prefix.
type Handlers struct {
	Auth         *AuthHandler
	Users        *UserHandler
	Tasks        *TaskHandler
	Answers      *AnswerHandler
	Surveys      *SurveyHandler
	Statistics   *StatisticsHandler
	PhotoReports *PhotoReportHandler
	Photos       *PhotoHandler
	Clients      *ClientHandler
}

// RouteDeps carries the middleware collaborators of the API routes.
type RouteDeps struct {
	Tokens middleware.TokenValidator
	Audit  middleware.AuditWriter
}

// RegisterRoutes mounts the API. Login, refresh and signed photo downloads are public; everything else
// requires a bearer token, and role checks sit on the individual routes.
func RegisterRoutes(api *gin.RouterGroup, h Handlers, deps RouteDeps) {
	moderator := middleware.RequireRoles(models.RoleModerator)
	employee := middleware.RequireRoles(models.RoleEmployee)

	api.POST("/auth/login", h.Auth.Login)
	api.POST("/auth/refresh", h.Auth.Refresh)
	api.GET("/photos/:id/file", h.Photos.File)

	secured := api.Group("")
	secured.Use(middleware.JWT(deps.Tokens))

	secured.GET("/auth/me", h.Auth.Me)
	secured.POST("/auth/logout", h.Auth.Logout)

	secured.GET("/users", moderator, h.Users.List)
	secured.POST("/users", moderator, h.Users.Create)

	tasks := secured.Group("/tasks")
	tasks.GET("", h.Tasks.List)
	tasks.POST("", moderator, h.Tasks.Create)
	tasks.GET("/:id", h.Tasks.Get)
	tasks.POST("/:id/publish", moderator, h.Tasks.Publish)
	tasks.POST("/:id/rework", moderator, h.Tasks.Rework)
	tasks.POST("/:id/complete", moderator, h.Tasks.Complete)
	tasks.POST("/:id/questions", moderator, h.Tasks.AddQuestion)
	tasks.GET("/:id/questions", h.Tasks.Questions)
	tasks.POST("/:id/responses", employee, h.Answers.Submit)
	tasks.GET("/:id/statistics", moderator, h.Statistics.Task)
	tasks.GET("/:id/statistics/export", moderator,
		middleware.Audit(deps.Audit, models.AuditActionStatsExport, "task_statistics"), h.Statistics.Export)

	secured.POST("/answers/:id/photos", employee, h.Answers.AddPhotos)

	surveys := secured.Group("/surveys")
	surveys.GET("", h.Surveys.List)
	surveys.POST("", moderator, h.Surveys.Create)
	surveys.GET("/:id", h.Surveys.Get)
	surveys.GET("/:id/results", moderator, h.Statistics.SurveyResults)

	reports := secured.Group("/photo-reports")
	reports.GET("", h.PhotoReports.List)
	reports.POST("", employee, h.PhotoReports.Create)
	reports.GET("/:id", h.PhotoReports.Get)
	reports.POST("/:id/submit", employee, h.PhotoReports.Submit)
	reports.POST("/:id/review", moderator, h.PhotoReports.Review)
	reports.POST("/:id/evaluations", moderator, h.PhotoReports.Evaluate)
	reports.GET("/:id/evaluations", h.PhotoReports.Evaluations)

	secured.GET("/statistics/photo-reports", moderator, h.Statistics.PhotoReports)

	clients := secured.Group("/clients")
	clients.GET("", h.Clients.List)
	clients.POST("/import/preview", moderator, h.Clients.Preview)
	clients.POST("/import/confirm", moderator, h.Clients.Confirm)
	clients.GET("/:id", h.Clients.Get)
}
