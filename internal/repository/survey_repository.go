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
	"github.com/noah-isme/fieldops-api/pkg/database"
)

const surveyColumns = `s.id, s.title, s.description, s.is_active, s.target_count, s.created_by, s.created_at, s.updated_at`

// SurveyRepository persists surveys.
type SurveyRepository struct {
	db *sqlx.DB
}

// NewSurveyRepository constructs the repository.
func NewSurveyRepository(db *sqlx.DB) *SurveyRepository {
	return &SurveyRepository{db: db}
}

// Create inserts a survey together with its questions in one transaction.
func (r *SurveyRepository) Create(ctx context.Context, survey *models.Survey, questions []*models.Question) error {
	if survey.ID == "" {
		survey.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	survey.CreatedAt, survey.UpdatedAt = now, now
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const query = `INSERT INTO surveys (id, title, description, is_active, target_count, created_by, created_at, updated_at)
		VALUES (:id, :title, :description, :is_active, :target_count, :created_by, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, query, survey); err != nil {
			return fmt.Errorf("create survey: %w", err)
		}
		for _, question := range questions {
			question.SurveyID = &survey.ID
			question.TaskID = nil
			question.CreatedAt = now
			if err := insertQuestion(ctx, tx, question); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetByID fetches a survey.
func (r *SurveyRepository) GetByID(ctx context.Context, id string) (*models.Survey, error) {
	query := `SELECT ` + surveyColumns + ` FROM surveys s WHERE s.id = $1`
	var survey models.Survey
	if err := r.db.GetContext(ctx, &survey, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get survey: %w", err)
	}
	return &survey, nil
}

// ListWithProgress returns surveys with the number of distinct submissions collected so far.
// A submission is one (task, user, client) combination.
func (r *SurveyRepository) ListWithProgress(ctx context.Context, activeOnly bool) ([]models.SurveyProgress, error) {
	query := `SELECT ` + surveyColumns + `,
	COALESCE((SELECT COUNT(DISTINCT (a.task_id, a.user_id, a.client_id))
		FROM survey_answers a JOIN tasks t ON t.id = a.task_id WHERE t.survey_id = s.id), 0) AS completed
	FROM surveys s`
	if activeOnly {
		query += ` WHERE s.is_active`
	}
	query += ` ORDER BY s.created_at DESC`
	var items []models.SurveyProgress
	if err := r.db.SelectContext(ctx, &items, query); err != nil {
		return nil, fmt.Errorf("list surveys: %w", err)
	}
	return items, nil
}
