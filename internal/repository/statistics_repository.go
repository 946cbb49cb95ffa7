package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/fieldops-api/internal/models"
)

// StatisticsRepository stores aggregation snapshots of completed tasks.
type StatisticsRepository struct {
	db *sqlx.DB
}

// NewStatisticsRepository constructs the repository.
func NewStatisticsRepository(db *sqlx.DB) *StatisticsRepository {
	return &StatisticsRepository{db: db}
}

// Upsert replaces the snapshot for the task.
func (r *StatisticsRepository) Upsert(ctx context.Context, stats *models.TaskStatistics) error {
	if stats.ID == "" {
		stats.ID = uuid.NewString()
	}
	stats.LastUpdated = time.Now().UTC()
	const query = `INSERT INTO task_statistics (id, task_id, total_responses, survey_stats, last_updated)
	VALUES (:id, :task_id, :total_responses, :survey_stats, :last_updated)
	ON CONFLICT (task_id) DO UPDATE SET total_responses = EXCLUDED.total_responses,
	survey_stats = EXCLUDED.survey_stats, last_updated = EXCLUDED.last_updated`
	if _, err := r.db.NamedExecContext(ctx, query, stats); err != nil {
		return fmt.Errorf("upsert task statistics: %w", err)
	}
	return nil
}

// GetByTaskID returns the stored snapshot.
func (r *StatisticsRepository) GetByTaskID(ctx context.Context, taskID string) (*models.TaskStatistics, error) {
	const query = `SELECT id, task_id, total_responses, survey_stats, last_updated FROM task_statistics WHERE task_id = $1`
	var stats models.TaskStatistics
	if err := r.db.GetContext(ctx, &stats, query, taskID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get task statistics: %w", err)
	}
	return &stats, nil
}

// CompletedTaskIDs lists completed tasks, used to regenerate every snapshot.
func (r *StatisticsRepository) CompletedTaskIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, `SELECT id FROM tasks WHERE status = $1 ORDER BY completed_at`, models.TaskStatusCompleted); err != nil {
		return nil, fmt.Errorf("list completed tasks: %w", err)
	}
	return ids, nil
}
