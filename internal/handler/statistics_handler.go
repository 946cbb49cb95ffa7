package handler

import (
	"bytes"
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fieldops-api/internal/dto"
	"github.com/noah-isme/fieldops-api/internal/models"
	"github.com/noah-isme/fieldops-api/internal/service"
	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
	"github.com/noah-isme/fieldops-api/pkg/response"
)

type statisticsService interface {
	TaskStatistics(ctx context.Context, taskID string, principal *models.JWTClaims) (*models.TaskStatisticsReport, error)
	ExportTaskStatistics(ctx context.Context, taskID string, format service.ExportFormat, principal *models.JWTClaims) (*dto.ExportFile, error)
	SurveyResults(ctx context.Context, surveyID string, query dto.SurveyResultsQuery, principal *models.JWTClaims) (*models.SurveyResults, error)
	PhotoStats(ctx context.Context, filter dto.PhotoStatsFilter, principal *models.JWTClaims) (*models.PhotoStatsResult, error)
}

// StatisticsHandler serves aggregated answers and photo report statistics.
type StatisticsHandler struct {
	service statisticsService
}

// NewStatisticsHandler constructs the handler.
func NewStatisticsHandler(service statisticsService) *StatisticsHandler {
	return &StatisticsHandler{service: service}
}

// Task godoc
// @Summary Per-question statistics of a task
// @Tags Statistics
// @Produce json
// @Param id path string true "Task ID"
// @Success 200 {object} response.Envelope
// @Router /tasks/{id}/statistics [get]
func (h *StatisticsHandler) Task(c *gin.Context) {
	claims := requirePrincipal(c)
	if claims == nil {
		return
	}
	report, err := h.service.TaskStatistics(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SetMeta(c, "from_snapshot", report.FromSnapshot)
	response.JSON(c, http.StatusOK, report, nil)
}

// Export godoc
// @Summary Download task statistics
// @Tags Statistics
// @Produce octet-stream
// @Param id path string true "Task ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} binary
// @Router /tasks/{id}/statistics/export [get]
func (h *StatisticsHandler) Export(c *gin.Context) {
	claims := requirePrincipal(c)
	if claims == nil {
		return
	}
	format := service.ExportFormat(c.DefaultQuery("format", string(service.ExportFormatCSV)))
	file, err := h.service.ExportTaskStatistics(c.Request.Context(), c.Param("id"), format, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	response.Download(c, file.Filename, file.ContentType, int64(len(file.Content)), bytes.NewReader(file.Content), false)
}

// SurveyResults godoc
// @Summary Aggregated survey results
// @Description Merges every task of the survey; by_employee adds a per-employee breakdown
// @Tags Statistics
// @Produce json
// @Param id path string true "Survey ID"
// @Param by_employee query bool false "Include per-employee breakdown"
// @Success 200 {object} response.Envelope
// @Router /surveys/{id}/results [get]
func (h *StatisticsHandler) SurveyResults(c *gin.Context) {
	claims := requirePrincipal(c)
	if claims == nil {
		return
	}
	var query dto.SurveyResultsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query parameters"))
		return
	}
	results, err := h.service.SurveyResults(c.Request.Context(), c.Param("id"), query, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, results, nil)
}

// PhotoReports godoc
// @Summary Photo report statistics
// @Description Daily counts and quality for a single date or range, with a stand-count breakdown
// @Tags Statistics
// @Produce json
// @Param date query string false "Single date (YYYY-MM-DD)"
// @Param range_start query string false "Range start (YYYY-MM-DD)"
// @Param range_end query string false "Range end (YYYY-MM-DD)"
// @Param client_id query string false "Client ID"
// @Param employee_id query string false "Employee ID"
// @Success 200 {object} response.Envelope
// @Router /statistics/photo-reports [get]
func (h *StatisticsHandler) PhotoReports(c *gin.Context) {
	claims := requirePrincipal(c)
	if claims == nil {
		return
	}
	var filter dto.PhotoStatsFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query parameters"))
		return
	}
	result, err := h.service.PhotoStats(c.Request.Context(), filter, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
