package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fieldops-api/internal/models"
)

func TestSurveyCreateWithQuestions(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSurveyRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO surveys")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO survey_questions")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO survey_question_choices")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO survey_question_choices")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	survey := &models.Survey{Title: "Retail", IsActive: true, CreatedBy: "mod-1"}
	question := &models.Question{Text: "Brand", Type: models.QuestionRadio, Choices: []models.Choice{{Text: "A"}, {Text: "B"}}}
	require.NoError(t, repo.Create(context.Background(), survey, []*models.Question{question}))

	assert.NotEmpty(t, survey.ID)
	require.NotNil(t, question.SurveyID)
	assert.Equal(t, survey.ID, *question.SurveyID)
	assert.Equal(t, question.ID, question.Choices[1].QuestionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSurveyCreateRollsBackOnQuestionFailure(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSurveyRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO surveys")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO survey_questions")).WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.Survey{Title: "Retail"}, []*models.Question{{Text: "Brand", Type: models.QuestionText}})
	require.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSurveyListWithProgress(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSurveyRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM surveys s WHERE s.is_active ORDER BY s.created_at DESC")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "description", "is_active", "target_count", "created_by", "created_at", "updated_at", "completed"}).
			AddRow("s1", "Retail", "", true, 10, "mod-1", now, now, 4))

	items, err := repo.ListWithProgress(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 4, items[0].Completed)
	assert.Equal(t, 10, *items[0].TargetCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}
