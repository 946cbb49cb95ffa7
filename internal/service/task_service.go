package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/fieldops-api/internal/dto"
	"github.com/noah-isme/fieldops-api/internal/models"
	"github.com/noah-isme/fieldops-api/internal/repository"
	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
)

const taskResource = "tasks"

type taskStore interface {
	Create(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, id string) (*models.Task, error)
	List(ctx context.Context, filter models.TaskFilter) ([]models.Task, int, error)
	UpdateStatus(ctx context.Context, change repository.TaskStatusChange) error
}

type questionStore interface {
	Create(ctx context.Context, question *models.Question) error
	ListForTask(ctx context.Context, taskID string, surveyID *string) ([]models.Question, error)
	ListForSurvey(ctx context.Context, surveyID string) ([]models.Question, error)
}

type userLookup interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// snapshotScheduler queues regeneration of a completed task's statistics.
type snapshotScheduler interface {
	ScheduleSnapshot(taskID string)
}

// TaskService manages task creation and moderator-driven workflow transitions.
type TaskService struct {
	tasks     taskStore
	questions questionStore
	users     userLookup
	snapshots snapshotScheduler
	audit     auditLogger
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTaskService constructs the service.
func NewTaskService(tasks taskStore, questions questionStore, users userLookup, snapshots snapshotScheduler, audit auditLogger, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *TaskService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &TaskService{tasks: tasks, questions: questions, users: users, snapshots: snapshots, audit: audit, metrics: metrics, validator: validate, logger: logger}
}

// Create stores a new task in DRAFT, or SENT when the request asks to publish.
func (s *TaskService) Create(ctx context.Context, req dto.CreateTaskRequest, principal *models.JWTClaims) (*dto.TaskDetail, error) {
	if !principal.IsModerator() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only moderators can create tasks")
	}
	req.Title = strings.TrimSpace(req.Title)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid task payload")
	}
	if req.AssignedTo != nil {
		if err := s.ensureEmployee(ctx, *req.AssignedTo); err != nil {
			return nil, err
		}
	}

	status := InitialTaskStatus(req.Publish)
	task := &models.Task{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Description: req.Description,
		Type:        req.Type,
		Status:      status,
		IsActive:    true,
		AssignedTo:  req.AssignedTo,
		ClientID:    req.ClientID,
		SurveyID:    req.SurveyID,
		CreatedBy:   principal.UserID,
		TargetCount: req.TargetCount,
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create task")
	}

	emitAudit(ctx, s.audit, s.logger, principal, models.AuditActionTaskCreate, taskResource, task.ID, map[string]interface{}{
		"type": task.Type, "status": task.Status, "assigned_to": task.AssignedTo,
	})
	return taskDetail(task), nil
}

// Get returns a task the principal can see.
func (s *TaskService) Get(ctx context.Context, id string, principal *models.JWTClaims) (*dto.TaskDetail, error) {
	task, err := s.visibleTask(ctx, id, principal)
	if err != nil {
		return nil, err
	}
	return taskDetail(task), nil
}

// List returns tasks; employees only receive the tasks they may act on.
func (s *TaskService) List(ctx context.Context, query dto.TaskFilter, principal *models.JWTClaims) ([]dto.TaskDetail, *models.Pagination, error) {
	if principal == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing principal")
	}
	filter := models.TaskFilter{
		Type:       models.TaskType(strings.ToUpper(query.Type)),
		AssignedTo: query.AssignedTo,
		ClientID:   query.ClientID,
		Page:       query.Page,
		PageSize:   query.PageSize,
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown task type %q", query.Type))
	}
	for _, raw := range splitCSV(query.Status) {
		status := models.TaskStatus(strings.ToUpper(raw))
		if !status.Valid() {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown task status %q", raw))
		}
		filter.Status = append(filter.Status, status)
	}
	if !principal.IsModerator() {
		filter.VisibleTo = principal.UserID
	}

	tasks, total, err := s.tasks.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list tasks")
	}
	details := make([]dto.TaskDetail, 0, len(tasks))
	for i := range tasks {
		details = append(details, *taskDetail(&tasks[i]))
	}
	page, size, _ := models.NormalizePage(filter.Page, filter.PageSize, 100)
	return details, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Publish moves a draft task to SENT.
func (s *TaskService) Publish(ctx context.Context, id string, principal *models.JWTClaims) (*dto.TaskDetail, error) {
	return s.transition(ctx, id, models.TaskStatusSent, nil, principal)
}

// Rework returns a task under review to the employee with a comment.
func (s *TaskService) Rework(ctx context.Context, id string, req dto.ReworkTaskRequest, principal *models.JWTClaims) (*dto.TaskDetail, error) {
	comment := strings.TrimSpace(req.Comment)
	if comment == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "rework requires a comment")
	}
	return s.transition(ctx, id, models.TaskStatusRework, &comment, principal)
}

// Complete closes the task and schedules its statistics snapshot.
func (s *TaskService) Complete(ctx context.Context, id string, principal *models.JWTClaims) (*dto.TaskDetail, error) {
	detail, err := s.transition(ctx, id, models.TaskStatusCompleted, nil, principal)
	if err != nil {
		return nil, err
	}
	if s.snapshots != nil {
		s.snapshots.ScheduleSnapshot(detail.ID)
	}
	return detail, nil
}

// AddQuestion attaches a question with its choices to the task.
func (s *TaskService) AddQuestion(ctx context.Context, taskID string, req dto.CreateQuestionRequest, principal *models.JWTClaims) (*models.Question, error) {
	if !principal.IsModerator() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only moderators can edit questions")
	}
	task, err := s.loadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status == models.TaskStatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "completed tasks cannot be edited")
	}
	question, err := buildQuestion(s.validator, req)
	if err != nil {
		return nil, err
	}
	question.TaskID = &task.ID
	if err := s.questions.Create(ctx, question); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create question")
	}
	return question, nil
}

// Questions lists the task's own questions followed by those of its survey.
func (s *TaskService) Questions(ctx context.Context, taskID string, principal *models.JWTClaims) ([]models.Question, error) {
	task, err := s.visibleTask(ctx, taskID, principal)
	if err != nil {
		return nil, err
	}
	questions, err := s.questions.ListForTask(ctx, task.ID, task.SurveyID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load questions")
	}
	return questions, nil
}

func (s *TaskService) transition(ctx context.Context, id string, to models.TaskStatus, comment *string, principal *models.JWTClaims) (*dto.TaskDetail, error) {
	if !principal.IsModerator() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only moderators can change task status")
	}
	task, err := s.loadTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ValidateTaskTransition(task, to, principal); err != nil {
		return nil, err
	}

	change := repository.TaskStatusChange{
		ID:       task.ID,
		From:     task.Status,
		To:       to,
		Comment:  comment,
		IsActive: to != models.TaskStatusCompleted,
		At:       time.Now().UTC(),
	}
	if err := s.tasks.UpdateStatus(ctx, change); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "task status changed concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update task status")
	}
	s.metrics.RecordTaskTransition(string(change.From), string(change.To))

	task.Status = to
	task.IsActive = change.IsActive
	task.UpdatedAt = change.At
	if comment != nil {
		task.ModeratorComment = comment
	}
	if to == models.TaskStatusCompleted {
		task.CompletedAt = &change.At
	}

	emitAudit(ctx, s.audit, s.logger, principal, models.AuditActionTaskTransition, taskResource, task.ID, map[string]interface{}{
		"from": change.From, "to": change.To, "comment": comment,
	})
	return taskDetail(task), nil
}

func (s *TaskService) loadTask(ctx context.Context, id string) (*models.Task, error) {
	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "task not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load task")
	}
	return task, nil
}

func (s *TaskService) visibleTask(ctx context.Context, id string, principal *models.JWTClaims) (*models.Task, error) {
	if principal == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing principal")
	}
	task, err := s.loadTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if !TaskVisibleTo(task, principal) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "task not found")
	}
	return task, nil
}

func (s *TaskService) ensureEmployee(ctx context.Context, userID string) error {
	if s.users == nil {
		return nil
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "assignee not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignee")
	}
	if user.Role != models.RoleEmployee || !user.Active {
		return appErrors.Clone(appErrors.ErrValidation, "assignee must be an active employee")
	}
	return nil
}

func taskDetail(task *models.Task) *dto.TaskDetail {
	return &dto.TaskDetail{Task: *task, CompletionPercent: task.CompletionPercent()}
}

// buildQuestion validates a question payload. Choice questions without choices use the default yes/no pair.
func buildQuestion(validate *validator.Validate, req dto.CreateQuestionRequest) (*models.Question, error) {
	req.Text = strings.TrimSpace(req.Text)
	if err := validate.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid question payload")
	}
	if !req.Type.IsChoice() && len(req.Choices) > 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s questions do not take choices", req.Type))
	}
	question := &models.Question{
		ID:       uuid.NewString(),
		Text:     req.Text,
		Type:     req.Type,
		Order:    req.Order,
		Required: req.Required,
	}
	for i, choice := range req.Choices {
		order := choice.Order
		if order == 0 {
			order = i + 1
		}
		question.Choices = append(question.Choices, models.Choice{
			ID:         uuid.NewString(),
			QuestionID: question.ID,
			Text:       strings.TrimSpace(choice.Text),
			Order:      order,
			IsCorrect:  choice.IsCorrect,
		})
	}
	return question, nil
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
