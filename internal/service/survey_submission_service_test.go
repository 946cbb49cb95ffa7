package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/fieldops-api/internal/dto"
	"github.com/noah-isme/fieldops-api/internal/models"
	"github.com/noah-isme/fieldops-api/internal/repository"
	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
)

type answerStoreStub struct {
	tasks     *taskStoreStub
	submitted []*models.Answer
	answers   map[string]*models.Answer
}

func (s *answerStoreStub) Submit(ctx context.Context, taskID string, answers []*models.Answer, guard repository.TaskGuard) (*models.Task, error) {
	task, ok := s.tasks.tasks[taskID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if err := guard(task); err != nil {
		return nil, err
	}
	for _, answer := range answers {
		answer.TaskID = taskID
	}
	s.submitted = append(s.submitted, answers...)
	task.Status = models.TaskStatusOnCheck
	task.CurrentCount++
	copy := *task
	return &copy, nil
}

func (s *answerStoreStub) GetByID(ctx context.Context, id string) (*models.Answer, error) {
	answer, ok := s.answers[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *answer
	return &copy, nil
}

func (s *answerStoreStub) AppendPhotos(ctx context.Context, answerID string, limit int, photos []models.AnswerPhoto, guard repository.AnswerGuard) ([]models.AnswerPhoto, error) {
	answer, ok := s.answers[answerID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if err := guard(answer, s.tasks.tasks[answer.TaskID]); err != nil {
		return nil, err
	}
	room := limit - len(answer.Photos)
	if len(photos) > room {
		photos = photos[:room]
	}
	answer.Photos = append(answer.Photos, photos...)
	return photos, nil
}

func surveyFixture() (*taskStoreStub, *questionStoreStub) {
	tasks := newTaskStoreStub(
		&models.Task{ID: "t1", Status: models.TaskStatusSent, IsActive: true, ClientID: strPtr("client-1"), TargetCount: 2},
		&models.Task{ID: "t2", Status: models.TaskStatusSent, IsActive: true},
	)
	questions := []models.Question{
		{ID: "brand", Text: "Brand", Type: models.QuestionRadio, Required: true, Choices: []models.Choice{{ID: "alpha"}, {ID: "beta"}}},
		{ID: "stock", Text: "In stock", Type: models.QuestionCheckbox},
		{ID: "note", Text: "Note", Type: models.QuestionTextarea},
		{ID: "shelf", Text: "Shelf photo", Type: models.QuestionPhoto},
	}
	return tasks, &questionStoreStub{byTask: map[string][]models.Question{"t1": questions, "t2": questions}}
}

func TestSurveySubmissionSubmit(t *testing.T) {
	tasks, questions := surveyFixture()
	answers := &answerStoreStub{tasks: tasks}
	audit := &auditRecorderStub{}
	svc := NewSurveySubmissionService(tasks, questions, answers, nil, audit, nil, nil, zap.NewNop(), 0)

	result, err := svc.Submit(context.Background(), "t1", dto.SubmitSurveyRequest{Answers: []dto.AnswerInput{
		{QuestionID: "brand", ChoiceIDs: []string{"beta"}},
		{QuestionID: "stock", Text: "Нет, да"},
		{QuestionID: "note", Text: "  "},
		{QuestionID: "shelf"},
	}}, employee)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusOnCheck, result.Task.Status)
	assert.Equal(t, 1, result.Task.CurrentCount)
	assert.Equal(t, 50.0, result.Task.CompletionPercent)
	require.Len(t, result.Answers, 3)
	assert.Equal(t, []string{"beta"}, result.Answers[0].ChoiceIDs)
	assert.Equal(t, "да,нет", result.Answers[1].TextAnswer)
	for _, answer := range answers.submitted {
		assert.Equal(t, "emp-1", answer.UserID)
		assert.Equal(t, "client-1", *answer.ClientID)
	}
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionSurveySubmit, audit.logs[0].Action)
}

func TestSurveySubmissionValidation(t *testing.T) {
	tasks, questions := surveyFixture()
	svc := NewSurveySubmissionService(tasks, questions, &answerStoreStub{tasks: tasks}, nil, nil, nil, nil, nil, 0)
	ctx := context.Background()

	cases := []struct {
		name    string
		taskID  string
		req     dto.SubmitSurveyRequest
		claims  *models.JWTClaims
		errCode string
	}{
		{"moderator", "t1", dto.SubmitSurveyRequest{Answers: []dto.AnswerInput{{QuestionID: "brand", ChoiceIDs: []string{"alpha"}}}}, moderator, appErrors.ErrForbidden.Code},
		{"missing required", "t1", dto.SubmitSurveyRequest{Answers: []dto.AnswerInput{{QuestionID: "note", Text: "x"}}}, employee, appErrors.ErrValidation.Code},
		{"two single choices", "t1", dto.SubmitSurveyRequest{Answers: []dto.AnswerInput{{QuestionID: "brand", ChoiceIDs: []string{"alpha", "beta"}}}}, employee, appErrors.ErrValidation.Code},
		{"foreign choice", "t1", dto.SubmitSurveyRequest{Answers: []dto.AnswerInput{{QuestionID: "brand", ChoiceIDs: []string{"gamma"}}}}, employee, appErrors.ErrValidation.Code},
		{"bad default value", "t1", dto.SubmitSurveyRequest{Answers: []dto.AnswerInput{{QuestionID: "brand", ChoiceIDs: []string{"alpha"}}, {QuestionID: "stock", Text: "maybe"}}}, employee, appErrors.ErrValidation.Code},
		{"unknown question", "t1", dto.SubmitSurveyRequest{Answers: []dto.AnswerInput{{QuestionID: "brand", ChoiceIDs: []string{"alpha"}}, {QuestionID: "zzz", Text: "x"}}}, employee, appErrors.ErrValidation.Code},
		{"client mismatch", "t1", dto.SubmitSurveyRequest{ClientID: strPtr("6f1c2b3a-0000-4000-8000-000000000009"), Answers: []dto.AnswerInput{{QuestionID: "brand", ChoiceIDs: []string{"alpha"}}}}, employee, appErrors.ErrValidation.Code},
		{"missing task", "nope", dto.SubmitSurveyRequest{Answers: []dto.AnswerInput{{QuestionID: "brand", ChoiceIDs: []string{"alpha"}}}}, employee, appErrors.ErrNotFound.Code},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Submit(ctx, tc.taskID, tc.req, tc.claims)
			assert.Equal(t, tc.errCode, errCode(err))
		})
	}
	assert.Equal(t, models.TaskStatusSent, tasks.tasks["t1"].Status)
}

func TestSurveySubmissionRespectsTarget(t *testing.T) {
	tasks, questions := surveyFixture()
	tasks.tasks["t1"].Status = models.TaskStatusOnCheck
	tasks.tasks["t1"].CurrentCount = 2
	svc := NewSurveySubmissionService(tasks, questions, &answerStoreStub{tasks: tasks}, nil, nil, nil, nil, nil, 0)

	_, err := svc.Submit(context.Background(), "t1", dto.SubmitSurveyRequest{Answers: []dto.AnswerInput{{QuestionID: "brand", ChoiceIDs: []string{"alpha"}}}}, employee)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, errCode(err))
}

func TestSurveySubmissionFreeClient(t *testing.T) {
	tasks, questions := surveyFixture()
	answers := &answerStoreStub{tasks: tasks}
	svc := NewSurveySubmissionService(tasks, questions, answers, nil, nil, nil, nil, nil, 0)

	clientID := "6f1c2b3a-0000-4000-8000-000000000009"
	_, err := svc.Submit(context.Background(), "t2", dto.SubmitSurveyRequest{ClientID: &clientID, Answers: []dto.AnswerInput{{QuestionID: "brand", ChoiceIDs: []string{"alpha"}}}}, employee)
	require.NoError(t, err)
	require.Len(t, answers.submitted, 1)
	assert.Equal(t, clientID, *answers.submitted[0].ClientID)
}

func TestSurveySubmissionAddPhotosCapsAtLimit(t *testing.T) {
	tasks, questions := surveyFixture()
	tasks.tasks["t1"].Status = models.TaskStatusOnCheck
	existing := make([]models.AnswerPhoto, 8)
	answers := &answerStoreStub{tasks: tasks, answers: map[string]*models.Answer{
		"a1": {ID: "a1", TaskID: "t1", UserID: "emp-1", Photos: existing},
	}}
	intake, _ := newTestPhotoIntake(t)
	svc := NewSurveySubmissionService(tasks, questions, answers, intake, nil, nil, nil, nil, 0)

	uploads := []PhotoUpload{pngUpload(t, "1.png", 2, 2), pngUpload(t, "2.png", 2, 2), pngUpload(t, "3.png", 2, 2)}
	result, err := svc.AddPhotos(context.Background(), "a1", uploads, employee)
	require.NoError(t, err)
	assert.Len(t, result.Accepted, 2)
	assert.Equal(t, 1, result.Dropped)
	assert.True(t, result.LimitReached)
	assert.Len(t, answers.answers["a1"].Photos, 10)

	result, err = svc.AddPhotos(context.Background(), "a1", uploads[:1], employee)
	require.NoError(t, err)
	assert.Empty(t, result.Accepted)
	assert.Equal(t, 1, result.Dropped)
	assert.True(t, result.LimitReached)
}

func TestSurveySubmissionAddPhotosOwnership(t *testing.T) {
	tasks, questions := surveyFixture()
	answers := &answerStoreStub{tasks: tasks, answers: map[string]*models.Answer{
		"a1": {ID: "a1", TaskID: "t1", UserID: "emp-1"},
	}}
	intake, _ := newTestPhotoIntake(t)
	svc := NewSurveySubmissionService(tasks, questions, answers, intake, nil, nil, nil, nil, 0)
	uploads := []PhotoUpload{pngUpload(t, "1.png", 2, 2)}

	_, err := svc.AddPhotos(context.Background(), "a1", uploads, colleague)
	assert.Equal(t, appErrors.ErrNotFound.Code, errCode(err))

	_, err = svc.AddPhotos(context.Background(), "a1", uploads, moderator)
	assert.Equal(t, appErrors.ErrForbidden.Code, errCode(err))

	tasks.tasks["t1"].Status = models.TaskStatusCompleted
	tasks.tasks["t1"].IsActive = false
	_, err = svc.AddPhotos(context.Background(), "a1", uploads, employee)
	assert.Equal(t, appErrors.ErrNotFound.Code, errCode(err))
	assert.Empty(t, answers.answers["a1"].Photos)
}
