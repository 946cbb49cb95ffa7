package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/fieldops-api/internal/models"
)

const taskColumns = `id, title, description, type, status, is_active, assigned_to, client_id, survey_id, created_by,
       moderator_comment, target_count, current_count, completed_at, created_at, updated_at`

// employeeVisibleStatuses are the statuses an employee may see and act on.
var employeeVisibleStatuses = []string{
	string(models.TaskStatusSent),
	string(models.TaskStatusRework),
	string(models.TaskStatusOnCheck),
}

// TaskRepository persists tasks.
type TaskRepository struct {
	db *sqlx.DB
}

// NewTaskRepository constructs the repository.
func NewTaskRepository(db *sqlx.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Create inserts a new task.
func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	return insertTask(ctx, r.db, task)
}

// GetByID fetches a task by identifier.
func (r *TaskRepository) GetByID(ctx context.Context, id string) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	var task models.Task
	if err := r.db.GetContext(ctx, &task, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return &task, nil
}

// List returns tasks matching the filter (latest first) with the total count.
func (r *TaskRepository) List(ctx context.Context, filter models.TaskFilter) ([]models.Task, int, error) {
	var p predicates
	if len(filter.Status) > 0 {
		p.add("status = ANY(?)", stringArray(filter.Status))
	}
	p.addIf(string(filter.Type), "type = ?")
	p.addIf(filter.AssignedTo, "assigned_to = ?")
	p.addIf(filter.ClientID, "client_id = ?")
	if filter.VisibleTo != "" {
		p.add("is_active AND (assigned_to IS NULL OR assigned_to = ?) AND status = ANY(?)", filter.VisibleTo, pq.Array(employeeVisibleStatuses))
	}
	where, args := p.where(), p.args

	_, pageSize, offset := models.NormalizePage(filter.Page, filter.PageSize, 100)
	query := fmt.Sprintf("SELECT %s FROM tasks%s ORDER BY created_at DESC LIMIT %d OFFSET %d", taskColumns, where, pageSize, offset)

	var tasks []models.Task
	if err := r.db.SelectContext(ctx, &tasks, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM tasks"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}
	return tasks, total, nil
}

// TaskStatusChange describes a guarded status update.
type TaskStatusChange struct {
	ID       string
	From     models.TaskStatus
	To       models.TaskStatus
	Comment  *string
	IsActive bool
	At       time.Time
}

// UpdateStatus applies the change only while the task is still in From. It returns sql.ErrNoRows when
// the task moved on concurrently or does not exist.
func (r *TaskRepository) UpdateStatus(ctx context.Context, change TaskStatusChange) error {
	return updateTaskStatus(ctx, r.db, change)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type namedExecer interface {
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
}

func insertTask(ctx context.Context, db namedExecer, task *models.Task) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	const query = `INSERT INTO tasks
	(id, title, description, type, status, is_active, assigned_to, client_id, survey_id, created_by, moderator_comment, target_count, current_count, created_at, updated_at)
	VALUES (:id, :title, :description, :type, :status, :is_active, :assigned_to, :client_id, :survey_id, :created_by, :moderator_comment, :target_count, :current_count, :created_at, :updated_at)`
	if _, err := db.NamedExecContext(ctx, query, task); err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func updateTaskStatus(ctx context.Context, db execer, change TaskStatusChange) error {
	if change.At.IsZero() {
		change.At = time.Now().UTC()
	}
	var completedAt *time.Time
	if change.To == models.TaskStatusCompleted {
		completedAt = &change.At
	}
	const query = `UPDATE tasks SET status = $3, is_active = $4, moderator_comment = COALESCE($5, moderator_comment),
	completed_at = COALESCE($6, completed_at), updated_at = $7
	WHERE id = $1 AND status = $2`
	result, err := db.ExecContext(ctx, query, change.ID, change.From, change.To, change.IsActive, change.Comment, completedAt, change.At)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check task update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// lockTask loads the task row under FOR UPDATE inside tx.
func lockTask(ctx context.Context, tx *sqlx.Tx, id string) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 FOR UPDATE`
	var task models.Task
	if err := tx.GetContext(ctx, &task, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("lock task: %w", err)
	}
	return &task, nil
}

// recordSubmission moves a locked task to ON_CHECK and bumps current_count atomically.
func recordSubmission(ctx context.Context, tx *sqlx.Tx, task *models.Task) error {
	const query = `UPDATE tasks SET status = $2, current_count = current_count + 1, updated_at = $3
	WHERE id = $1 RETURNING current_count`
	now := time.Now().UTC()
	var count int
	if err := tx.GetContext(ctx, &count, query, task.ID, models.TaskStatusOnCheck, now); err != nil {
		return fmt.Errorf("record task submission: %w", err)
	}
	task.Status = models.TaskStatusOnCheck
	task.CurrentCount = count
	task.UpdatedAt = now
	return nil
}
