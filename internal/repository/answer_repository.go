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
	"github.com/noah-isme/fieldops-api/pkg/database"
)

const answerColumns = `a.id, a.task_id, a.question_id, a.user_id, a.client_id, a.text_answer, a.created_at`

// TaskGuard inspects a locked task before a write proceeds. Returning an error aborts the transaction.
type TaskGuard func(task *models.Task) error

// AnswerGuard inspects a locked answer and its task before photos are appended.
type AnswerGuard func(answer *models.Answer, task *models.Task) error

// AnswerRepository persists survey answers, their selected choices and photos.
type AnswerRepository struct {
	db *sqlx.DB
}

// NewAnswerRepository constructs the repository.
func NewAnswerRepository(db *sqlx.DB) *AnswerRepository {
	return &AnswerRepository{db: db}
}

// Submit locks the task, lets guard validate it, inserts all answers and records the submission on the
// task, all in one transaction. The returned task reflects the new status and count.
func (r *AnswerRepository) Submit(ctx context.Context, taskID string, answers []*models.Answer, guard TaskGuard) (*models.Task, error) {
	var result *models.Task
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		task, err := lockTask(ctx, tx, taskID)
		if err != nil {
			return err
		}
		if guard != nil {
			if err := guard(task); err != nil {
				return err
			}
		}
		now := time.Now().UTC()
		for _, answer := range answers {
			answer.TaskID = task.ID
			if answer.ID == "" {
				answer.ID = uuid.NewString()
			}
			answer.CreatedAt = now
			if err := insertAnswer(ctx, tx, answer); err != nil {
				return err
			}
		}
		if err := recordSubmission(ctx, tx, task); err != nil {
			return err
		}
		result = task
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func insertAnswer(ctx context.Context, tx *sqlx.Tx, answer *models.Answer) error {
	const insert = `INSERT INTO survey_answers (id, task_id, question_id, user_id, client_id, text_answer, created_at)
	VALUES (:id, :task_id, :question_id, :user_id, :client_id, :text_answer, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insert, answer); err != nil {
		return fmt.Errorf("insert answer: %w", err)
	}
	const insertChoice = `INSERT INTO survey_answer_choices (answer_id, choice_id) VALUES ($1, $2)`
	for _, choiceID := range answer.ChoiceIDs {
		if _, err := tx.ExecContext(ctx, insertChoice, answer.ID, choiceID); err != nil {
			return fmt.Errorf("insert answer choice: %w", err)
		}
	}
	for i := range answer.Photos {
		photo := &answer.Photos[i]
		photo.AnswerID = answer.ID
		if err := insertAnswerPhoto(ctx, tx, photo); err != nil {
			return err
		}
	}
	return nil
}

func insertAnswerPhoto(ctx context.Context, tx *sqlx.Tx, photo *models.AnswerPhoto) error {
	if photo.ID == "" {
		photo.ID = uuid.NewString()
	}
	if photo.CreatedAt.IsZero() {
		photo.CreatedAt = time.Now().UTC()
	}
	const insert = `INSERT INTO survey_answer_photos (id, answer_id, file_path, width, height, detected_address, created_at)
	VALUES (:id, :answer_id, :file_path, :width, :height, :detected_address, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insert, photo); err != nil {
		return fmt.Errorf("insert answer photo: %w", err)
	}
	return nil
}

// GetByID fetches an answer with its choices and photos.
func (r *AnswerRepository) GetByID(ctx context.Context, id string) (*models.Answer, error) {
	query := `SELECT ` + answerColumns + ` FROM survey_answers a WHERE a.id = $1`
	var answer models.Answer
	if err := r.db.GetContext(ctx, &answer, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get answer: %w", err)
	}
	answers := []models.Answer{answer}
	if err := r.attach(ctx, answers); err != nil {
		return nil, err
	}
	return &answers[0], nil
}

// AppendPhotos locks the answer, counts its photos and inserts as many of the given photos as fit under
// limit. Photos beyond the limit are dropped silently; the accepted ones are returned.
func (r *AnswerRepository) AppendPhotos(ctx context.Context, answerID string, limit int, photos []models.AnswerPhoto, guard AnswerGuard) ([]models.AnswerPhoto, error) {
	var accepted []models.AnswerPhoto
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		query := `SELECT ` + answerColumns + ` FROM survey_answers a WHERE a.id = $1 FOR UPDATE`
		var answer models.Answer
		if err := tx.GetContext(ctx, &answer, query, answerID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return err
			}
			return fmt.Errorf("lock answer: %w", err)
		}
		if guard != nil {
			taskQuery := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
			var task models.Task
			if err := tx.GetContext(ctx, &task, taskQuery, answer.TaskID); err != nil {
				return fmt.Errorf("load answer task: %w", err)
			}
			if err := guard(&answer, &task); err != nil {
				return err
			}
		}

		var existing int
		if err := tx.GetContext(ctx, &existing, `SELECT COUNT(*) FROM survey_answer_photos WHERE answer_id = $1`, answerID); err != nil {
			return fmt.Errorf("count answer photos: %w", err)
		}
		room := limit - existing
		if room <= 0 {
			accepted = []models.AnswerPhoto{}
			return nil
		}
		if len(photos) > room {
			photos = photos[:room]
		}
		for i := range photos {
			photos[i].AnswerID = answerID
			if err := insertAnswerPhoto(ctx, tx, &photos[i]); err != nil {
				return err
			}
		}
		accepted = photos
		return nil
	})
	if err != nil {
		return nil, err
	}
	return accepted, nil
}

// List returns answers matching the filter, oldest first, with choices and photos attached.
func (r *AnswerRepository) List(ctx context.Context, filter models.AnswerFilter) ([]models.Answer, error) {
	var p predicates
	join := ""
	p.addIf(filter.TaskID, "a.task_id = ?")
	if filter.SurveyID != "" {
		join = " JOIN tasks t ON t.id = a.task_id"
		p.add("t.survey_id = ?", filter.SurveyID)
	}
	p.addIf(filter.UserID, "a.user_id = ?")
	p.addIf(filter.ClientID, "a.client_id = ?")
	query := `SELECT ` + answerColumns + ` FROM survey_answers a` + join + p.where() + " ORDER BY a.created_at, a.id"

	var answers []models.Answer
	if err := r.db.SelectContext(ctx, &answers, query, p.args...); err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	if err := r.attach(ctx, answers); err != nil {
		return nil, err
	}
	return answers, nil
}

// ListSubmissionGroups groups a survey's answers by task, employee, client and day.
func (r *AnswerRepository) ListSubmissionGroups(ctx context.Context, surveyID string) ([]models.SubmissionGroup, error) {
	const query = `SELECT a.task_id, a.client_id, c.name AS client_name, a.user_id, u.full_name AS user_full_name,
	date_trunc('day', a.created_at) AS day, COUNT(*) AS answer_count
	FROM survey_answers a
	JOIN tasks t ON t.id = a.task_id
	JOIN users u ON u.id = a.user_id
	LEFT JOIN clients c ON c.id = a.client_id
	WHERE t.survey_id = $1
	GROUP BY a.task_id, a.client_id, c.name, a.user_id, u.full_name, date_trunc('day', a.created_at)
	ORDER BY day DESC, user_full_name`
	var groups []models.SubmissionGroup
	if err := r.db.SelectContext(ctx, &groups, query, surveyID); err != nil {
		return nil, fmt.Errorf("list submission groups: %w", err)
	}
	return groups, nil
}

func (r *AnswerRepository) attach(ctx context.Context, answers []models.Answer) error {
	if len(answers) == 0 {
		return nil
	}
	ids := make([]string, len(answers))
	index := make(map[string]int, len(answers))
	for i := range answers {
		ids[i] = answers[i].ID
		index[answers[i].ID] = i
	}

	var choices []struct {
		AnswerID string `db:"answer_id"`
		ChoiceID string `db:"choice_id"`
	}
	if err := r.db.SelectContext(ctx, &choices, `SELECT answer_id, choice_id FROM survey_answer_choices WHERE answer_id = ANY($1)`, pq.Array(ids)); err != nil {
		return fmt.Errorf("list answer choices: %w", err)
	}
	for _, c := range choices {
		i := index[c.AnswerID]
		answers[i].ChoiceIDs = append(answers[i].ChoiceIDs, c.ChoiceID)
	}

	var photos []models.AnswerPhoto
	const photoQuery = `SELECT id, answer_id, file_path, width, height, detected_address, created_at
	FROM survey_answer_photos WHERE answer_id = ANY($1) ORDER BY created_at, id`
	if err := r.db.SelectContext(ctx, &photos, photoQuery, pq.Array(ids)); err != nil {
		return fmt.Errorf("list answer photos: %w", err)
	}
	for _, p := range photos {
		i := index[p.AnswerID]
		answers[i].Photos = append(answers[i].Photos, p)
	}
	return nil
}
