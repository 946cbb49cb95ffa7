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

type surveySubmissionService interface {
	Submit(ctx context.Context, taskID string, req dto.SubmitSurveyRequest, principal *models.JWTClaims) (*dto.SubmitSurveyResult, error)
	AddPhotos(ctx context.Context, answerID string, uploads []service.PhotoUpload, principal *models.JWTClaims) (*dto.AddPhotosResult, error)
}

// AnswerHandler accepts survey submissions and answer photos from employees.
type AnswerHandler struct {
	service surveySubmissionService
}

// NewAnswerHandler constructs the handler.
func NewAnswerHandler(service surveySubmissionService) *AnswerHandler {
	return &AnswerHandler{service: service}
}

// Submit godoc
// @Summary Submit survey responses for a task
// @Description Stores every answer, bumps the task counter and moves it to ON_CHECK in one transaction
// @Tags Answers
// @Accept json
// @Produce json
// @Param id path string true "Task ID"
// @Param payload body dto.SubmitSurveyRequest true "Answers"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /tasks/{id}/responses [post]
func (h *AnswerHandler) Submit(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "survey service not configured"))
		return
	}
	claims := requirePrincipal(c)
	if claims == nil {
		return
	}
	var req dto.SubmitSurveyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid submission payload"))
		return
	}
	result, err := h.service.Submit(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// AddPhotos godoc
// @Summary Attach photos to an answer
// @Description Photos beyond the per-answer cap are dropped; limit_reached reports the cap
// @Tags Answers
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Answer ID"
// @Param photos formData file true "Photos (repeatable)"
// @Success 200 {object} response.Envelope
// @Failure 415 {object} response.Envelope
// @Router /answers/{id}/photos [post]
func (h *AnswerHandler) AddPhotos(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "survey service not configured"))
		return
	}
	claims := requirePrincipal(c)
	if claims == nil {
		return
	}
	uploads, closeAll, err := photoUploads(c)
	defer closeAll()
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.service.AddPhotos(c.Request.Context(), c.Param("id"), uploads, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
