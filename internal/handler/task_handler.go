package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fieldops-api/internal/dto"
	"github.com/noah-isme/fieldops-api/internal/models"
	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
	"github.com/noah-isme/fieldops-api/pkg/response"
)

type taskService interface {
	Create(ctx context.Context, req dto.CreateTaskRequest, principal *models.JWTClaims) (*dto.TaskDetail, error)
	Get(ctx context.Context, id string, principal *models.JWTClaims) (*dto.TaskDetail, error)
	List(ctx context.Context, query dto.TaskFilter, principal *models.JWTClaims) ([]dto.TaskDetail, *models.Pagination, error)
	Publish(ctx context.Context, id string, principal *models.JWTClaims) (*dto.TaskDetail, error)
	Rework(ctx context.Context, id string, req dto.ReworkTaskRequest, principal *models.JWTClaims) (*dto.TaskDetail, error)
	Complete(ctx context.Context, id string, principal *models.JWTClaims) (*dto.TaskDetail, error)
	AddQuestion(ctx context.Context, taskID string, req dto.CreateQuestionRequest, principal *models.JWTClaims) (*models.Question, error)
	Questions(ctx context.Context, taskID string, principal *models.JWTClaims) ([]models.Question, error)
}

// TaskHandler exposes the task lifecycle.
type TaskHandler struct {
	service taskService
}

// NewTaskHandler constructs the handler.
func NewTaskHandler(service taskService) *TaskHandler {
	return &TaskHandler{service: service}
}

// List godoc
// @Summary List tasks
// @Description Moderators see every task; employees only see tasks they may act on
// @Tags Tasks
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param type query string false "Task type"
// @Param assigned_to query string false "Assignee ID"
// @Param client_id query string false "Client ID"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /tasks [get]
func (h *TaskHandler) List(c *gin.Context) {
	claims := requirePrincipal(c)
	if claims == nil {
		return
	}
	var query dto.TaskFilter
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query parameters"))
		return
	}
	items, pagination, err := h.service.List(c.Request.Context(), query, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Create godoc
// @Summary Create task
// @Tags Tasks
// @Accept json
// @Produce json
// @Param payload body dto.CreateTaskRequest true "Task payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /tasks [post]
func (h *TaskHandler) Create(c *gin.Context) {
	claims := requirePrincipal(c)
	if claims == nil {
		return
	}
	var req dto.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid task payload"))
		return
	}
	task, err := h.service.Create(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, task)
}

// Get godoc
// @Summary Get task
// @Tags Tasks
// @Produce json
// @Param id path string true "Task ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /tasks/{id} [get]
func (h *TaskHandler) Get(c *gin.Context) {
	claims := requirePrincipal(c)
	if claims == nil {
		return
	}
	task, err := h.service.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, task, nil)
}

// Publish godoc
// @Summary Publish a draft task
// @Tags Tasks
// @Produce json
// @Param id path string true "Task ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /tasks/{id}/publish [post]
func (h *TaskHandler) Publish(c *gin.Context) {
	h.transition(c, h.service.Publish)
}

// Complete godoc
// @Summary Complete a task
// @Tags Tasks
// @Produce json
// @Param id path string true "Task ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /tasks/{id}/complete [post]
func (h *TaskHandler) Complete(c *gin.Context) {
	h.transition(c, h.service.Complete)
}

// Rework godoc
// @Summary Return a task for rework
// @Tags Tasks
// @Accept json
// @Produce json
// @Param id path string true "Task ID"
// @Param payload body dto.ReworkTaskRequest true "Moderator comment"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /tasks/{id}/rework [post]
func (h *TaskHandler) Rework(c *gin.Context) {
	claims := requirePrincipal(c)
	if claims == nil {
		return
	}
	var req dto.ReworkTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "comment is required"))
		return
	}
	task, err := h.service.Rework(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, task, nil)
}

// AddQuestion godoc
// @Summary Add a question to a task
// @Tags Tasks
// @Accept json
// @Produce json
// @Param id path string true "Task ID"
// @Param payload body dto.CreateQuestionRequest true "Question"
// @Success 201 {object} response.Envelope
// @Router /tasks/{id}/questions [post]
func (h *TaskHandler) AddQuestion(c *gin.Context) {
	claims := requirePrincipal(c)
	if claims == nil {
		return
	}
	var req dto.CreateQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid question payload"))
		return
	}
	question, err := h.service.AddQuestion(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, question)
}

// Questions godoc
// @Summary List task questions
// @Tags Tasks
// @Produce json
// @Param id path string true "Task ID"
// @Success 200 {object} response.Envelope
// @Router /tasks/{id}/questions [get]
func (h *TaskHandler) Questions(c *gin.Context) {
	claims := requirePrincipal(c)
	if claims == nil {
		return
	}
	questions, err := h.service.Questions(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, questions, nil)
}

func (h *TaskHandler) transition(c *gin.Context, apply func(context.Context, string, *models.JWTClaims) (*dto.TaskDetail, error)) {
	claims := requirePrincipal(c)
	if claims == nil {
		return
	}
	task, err := apply(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, task, nil)
}
