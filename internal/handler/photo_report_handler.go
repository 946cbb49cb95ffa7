package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fieldops-api/internal/dto"
	"github.com/noah-isme/fieldops-api/internal/models"
	"github.com/noah-isme/fieldops-api/internal/service"
	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
	"github.com/noah-isme/fieldops-api/pkg/response"
)

type photoReportService interface {
	Create(ctx context.Context, req dto.CreatePhotoReportRequest, uploads []service.PhotoUpload, principal *models.JWTClaims) (*models.PhotoReport, error)
	SubmitDraft(ctx context.Context, id string, principal *models.JWTClaims) (*models.PhotoReport, error)
	Review(ctx context.Context, id string, req dto.ReviewPhotoReportRequest, principal *models.JWTClaims) (*models.PhotoReport, error)
	Get(ctx context.Context, id string, principal *models.JWTClaims) (*models.PhotoReport, error)
	List(ctx context.Context, query dto.PhotoReportFilter, principal *models.JWTClaims) ([]models.PhotoReport, *models.Pagination, error)
}

type evaluationService interface {
	Create(ctx context.Context, reportID string, req dto.CreateEvaluationRequest, principal *models.JWTClaims) (*dto.EvaluationResult, error)
	ListByReport(ctx context.Context, reportID string, principal *models.JWTClaims) ([]models.Evaluation, error)
}

// PhotoReportHandler exposes photo reports, their review and evaluations.
type PhotoReportHandler struct {
	reports     photoReportService
	evaluations evaluationService
}

// NewPhotoReportHandler constructs the handler.
func NewPhotoReportHandler(reports photoReportService, evaluations evaluationService) *PhotoReportHandler {
	return &PhotoReportHandler{reports: reports, evaluations: evaluations}
}

// Create godoc
// @Summary Create photo report
// @Tags PhotoReports
// @Accept multipart/form-data
// @Produce json
// @Param client_id formData string true "Client ID"
// @Param task_id formData string false "Task ID"
// @Param address formData string false "Address, defaults to photo location"
// @Param stand_count formData int false "Number of stands"
// @Param comment formData string false "Comment"
// @Param draft formData bool false "Keep as draft"
// @Param photos formData file true "Photos (repeatable)"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 415 {object} response.Envelope
// @Router /photo-reports [post]
func (h *PhotoReportHandler) Create(c *gin.Context) {
	claims := requirePrincipal(c)
	if claims == nil {
		return
	}
	var req dto.CreatePhotoReportRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid photo report payload"))
		return
	}
	uploads, closeAll, err := photoUploads(c)
	defer closeAll()
	if err != nil {
		response.Error(c, err)
		return
	}
	report, err := h.reports.Create(c.Request.Context(), req, uploads, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, report)
}

// List godoc
// @Summary List photo reports
// @Tags PhotoReports
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param client_id query string false "Client ID"
// @Param employee_id query string false "Employee ID (moderators only)"
// @Param task_id query string false "Task ID"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /photo-reports [get]
func (h *PhotoReportHandler) List(c *gin.Context) {
	claims := requirePrincipal(c)
	if claims == nil {
		return
	}
	var query dto.PhotoReportFilter
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query parameters"))
		return
	}
	items, pagination, err := h.reports.List(c.Request.Context(), query, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get photo report
// @Tags PhotoReports
// @Produce json
// @Param id path string true "Report ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /photo-reports/{id} [get]
func (h *PhotoReportHandler) Get(c *gin.Context) {
	claims := requirePrincipal(c)
	if claims == nil {
		return
	}
	report, err := h.reports.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Submit godoc
// @Summary Submit a draft report for review
// @Tags PhotoReports
// @Produce json
// @Param id path string true "Report ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /photo-reports/{id}/submit [post]
func (h *PhotoReportHandler) Submit(c *gin.Context) {
	claims := requirePrincipal(c)
	if claims == nil {
		return
	}
	report, err := h.reports.SubmitDraft(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Review godoc
// @Summary Approve or reject a photo report
// @Description Rejection requires a reason and returns the bound task for rework
// @Tags PhotoReports
// @Accept json
// @Produce json
// @Param id path string true "Report ID"
// @Param payload body dto.ReviewPhotoReportRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /photo-reports/{id}/review [post]
func (h *PhotoReportHandler) Review(c *gin.Context) {
	claims := requirePrincipal(c)
	if claims == nil {
		return
	}
	var req dto.ReviewPhotoReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid review payload"))
		return
	}
	report, err := h.reports.Review(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Evaluate godoc
// @Summary Evaluate a photo report
// @Tags PhotoReports
// @Accept json
// @Produce json
// @Param id path string true "Report ID"
// @Param payload body dto.CreateEvaluationRequest true "Remarks per criterion"
// @Success 201 {object} response.Envelope
// @Router /photo-reports/{id}/evaluations [post]
func (h *PhotoReportHandler) Evaluate(c *gin.Context) {
	if h.evaluations == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "evaluation service not configured"))
		return
	}
	claims := requirePrincipal(c)
	if claims == nil {
		return
	}
	var req dto.CreateEvaluationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid evaluation payload"))
		return
	}
	result, err := h.evaluations.Create(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Evaluations godoc
// @Summary List evaluations of a photo report
// @Tags PhotoReports
// @Produce json
// @Param id path string true "Report ID"
// @Success 200 {object} response.Envelope
// @Router /photo-reports/{id}/evaluations [get]
func (h *PhotoReportHandler) Evaluations(c *gin.Context) {
	if h.evaluations == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "evaluation service not configured"))
		return
	}
	claims := requirePrincipal(c)
	if claims == nil {
		return
	}
	items, err := h.evaluations.ListByReport(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}
