package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/fieldops-api/internal/models"
	"github.com/noah-isme/fieldops-api/pkg/database"
)

const evaluationColumns = `id, report_id, moderator_id, fullness_comment, no_foreign_goods_comment, presentation_comment,
       improvement_task_id, created_at, updated_at`

// EvaluationRepository persists moderator evaluations of photo reports.
type EvaluationRepository struct {
	db *sqlx.DB
}

// NewEvaluationRepository constructs the repository.
func NewEvaluationRepository(db *sqlx.DB) *EvaluationRepository {
	return &EvaluationRepository{db: db}
}

// Create stores the evaluation and, when given, the improvement task it spawns, in one transaction.
func (r *EvaluationRepository) Create(ctx context.Context, evaluation *models.Evaluation, improvement *models.Task) error {
	if evaluation.ID == "" {
		evaluation.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	evaluation.CreatedAt, evaluation.UpdatedAt = now, now

	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if improvement != nil {
			if err := insertTask(ctx, tx, improvement); err != nil {
				return err
			}
			evaluation.ImprovementTaskID = &improvement.ID
		}
		const query = `INSERT INTO evaluations
		(id, report_id, moderator_id, fullness_comment, no_foreign_goods_comment, presentation_comment, improvement_task_id, created_at, updated_at)
		VALUES (:id, :report_id, :moderator_id, :fullness_comment, :no_foreign_goods_comment, :presentation_comment, :improvement_task_id, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, query, evaluation); err != nil {
			return fmt.Errorf("create evaluation: %w", err)
		}
		return nil
	})
}

// ListByReport returns a report's evaluations, latest first.
func (r *EvaluationRepository) ListByReport(ctx context.Context, reportID string) ([]models.Evaluation, error) {
	query := `SELECT ` + evaluationColumns + ` FROM evaluations WHERE report_id = $1 ORDER BY created_at DESC`
	var items []models.Evaluation
	if err := r.db.SelectContext(ctx, &items, query, reportID); err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	return items, nil
}

// LatestByClients returns, per client, the most recent evaluation of a report created in [from, to).
func (r *EvaluationRepository) LatestByClients(ctx context.Context, clientIDs []string, from, to time.Time) (map[string]*models.Evaluation, error) {
	result := make(map[string]*models.Evaluation, len(clientIDs))
	if len(clientIDs) == 0 {
		return result, nil
	}
	const query = `SELECT DISTINCT ON (p.client_id) p.client_id,
	e.id, e.report_id, e.moderator_id, e.fullness_comment, e.no_foreign_goods_comment, e.presentation_comment,
	e.improvement_task_id, e.created_at, e.updated_at
	FROM evaluations e JOIN photo_reports p ON p.id = e.report_id
	WHERE p.client_id = ANY($1) AND p.created_at >= $2 AND p.created_at < $3
	ORDER BY p.client_id, e.created_at DESC`
	var rows []struct {
		ClientID string `db:"client_id"`
		models.Evaluation
	}
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(clientIDs), from, to); err != nil {
		return nil, fmt.Errorf("latest evaluations: %w", err)
	}
	for i := range rows {
		eval := rows[i].Evaluation
		result[rows[i].ClientID] = &eval
	}
	return result, nil
}
