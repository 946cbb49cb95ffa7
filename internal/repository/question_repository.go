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

const questionColumns = `id, survey_id, task_id, text, type, sort_order, required, created_at`

// QuestionRepository persists questions and their choices.
type QuestionRepository struct {
	db *sqlx.DB
}

// NewQuestionRepository constructs the repository.
func NewQuestionRepository(db *sqlx.DB) *QuestionRepository {
	return &QuestionRepository{db: db}
}

// Create inserts the question and its choices in one transaction.
func (r *QuestionRepository) Create(ctx context.Context, question *models.Question) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		return insertQuestion(ctx, tx, question)
	})
}

func insertQuestion(ctx context.Context, tx *sqlx.Tx, question *models.Question) error {
	if question.ID == "" {
		question.ID = uuid.NewString()
	}
	if question.CreatedAt.IsZero() {
		question.CreatedAt = time.Now().UTC()
	}
	const insert = `INSERT INTO survey_questions (id, survey_id, task_id, text, type, sort_order, required, created_at)
	VALUES (:id, :survey_id, :task_id, :text, :type, :sort_order, :required, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insert, question); err != nil {
		return fmt.Errorf("create question: %w", err)
	}
	const insertChoice = `INSERT INTO survey_question_choices (id, question_id, text, sort_order, is_correct)
	VALUES (:id, :question_id, :text, :sort_order, :is_correct)`
	for i := range question.Choices {
		choice := &question.Choices[i]
		if choice.ID == "" {
			choice.ID = uuid.NewString()
		}
		choice.QuestionID = question.ID
		if _, err := tx.NamedExecContext(ctx, insertChoice, choice); err != nil {
			return fmt.Errorf("create choice: %w", err)
		}
	}
	return nil
}

// ListForTask returns the task's own questions followed by those of its survey, each ordered, with choices.
func (r *QuestionRepository) ListForTask(ctx context.Context, taskID string, surveyID *string) ([]models.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM survey_questions
	WHERE task_id = $1 OR ($2::uuid IS NOT NULL AND survey_id = $2::uuid)
	ORDER BY CASE WHEN task_id IS NULL THEN 1 ELSE 0 END, sort_order, id`
	var questions []models.Question
	if err := r.db.SelectContext(ctx, &questions, query, taskID, surveyID); err != nil {
		return nil, fmt.Errorf("list task questions: %w", err)
	}
	return r.attachChoices(ctx, questions)
}

// ListForSurvey returns the survey's questions ordered, with choices.
func (r *QuestionRepository) ListForSurvey(ctx context.Context, surveyID string) ([]models.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM survey_questions WHERE survey_id = $1 ORDER BY sort_order, id`
	var questions []models.Question
	if err := r.db.SelectContext(ctx, &questions, query, surveyID); err != nil {
		return nil, fmt.Errorf("list survey questions: %w", err)
	}
	return r.attachChoices(ctx, questions)
}

func (r *QuestionRepository) attachChoices(ctx context.Context, questions []models.Question) ([]models.Question, error) {
	if len(questions) == 0 {
		return questions, nil
	}
	ids := make([]string, len(questions))
	index := make(map[string]int, len(questions))
	for i := range questions {
		ids[i] = questions[i].ID
		index[questions[i].ID] = i
	}
	const query = `SELECT id, question_id, text, sort_order, is_correct FROM survey_question_choices
	WHERE question_id = ANY($1) ORDER BY sort_order, id`
	var choices []models.Choice
	if err := r.db.SelectContext(ctx, &choices, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list choices: %w", err)
	}
	for _, choice := range choices {
		if i, ok := index[choice.QuestionID]; ok {
			questions[i].Choices = append(questions[i].Choices, choice)
		}
	}
	return questions, nil
}
