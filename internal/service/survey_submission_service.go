package service

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/fieldops-api/internal/dto"
	"github.com/noah-isme/fieldops-api/internal/models"
	"github.com/noah-isme/fieldops-api/internal/repository"
	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
)

const (
	answerResource = "survey_answers"
	// DefaultMaxPhotosPerAnswer caps the photos kept for one answer.
	DefaultMaxPhotosPerAnswer = 10
)

type taskReader interface {
	GetByID(ctx context.Context, id string) (*models.Task, error)
}

type questionLister interface {
	ListForTask(ctx context.Context, taskID string, surveyID *string) ([]models.Question, error)
}

type answerStore interface {
	Submit(ctx context.Context, taskID string, answers []*models.Answer, guard repository.TaskGuard) (*models.Task, error)
	GetByID(ctx context.Context, id string) (*models.Answer, error)
	AppendPhotos(ctx context.Context, answerID string, limit int, photos []models.AnswerPhoto, guard repository.AnswerGuard) ([]models.AnswerPhoto, error)
}

// SurveySubmissionService records employee survey responses and the photos attached to them.
type SurveySubmissionService struct {
	tasks     taskReader
	questions questionLister
	answers   answerStore
	photos    *PhotoIntake
	audit     auditLogger
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	maxPhotos int
}

// NewSurveySubmissionService constructs the service. maxPhotos <= 0 selects DefaultMaxPhotosPerAnswer.
func NewSurveySubmissionService(tasks taskReader, questions questionLister, answers answerStore, photos *PhotoIntake, audit auditLogger, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, maxPhotos int) *SurveySubmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if maxPhotos <= 0 {
		maxPhotos = DefaultMaxPhotosPerAnswer
	}
	return &SurveySubmissionService{
		tasks:     tasks,
		questions: questions,
		answers:   answers,
		photos:    photos,
		audit:     audit,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		maxPhotos: maxPhotos,
	}
}

// Submit stores one answer per question and moves the task to ON_CHECK, incrementing its counter, in a
// single transaction.
func (s *SurveySubmissionService) Submit(ctx context.Context, taskID string, req dto.SubmitSurveyRequest, principal *models.JWTClaims) (*dto.SubmitSurveyResult, error) {
	if principal == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing principal")
	}
	if principal.Role != models.RoleEmployee {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only employees can submit surveys")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid survey payload")
	}

	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, storeError(err, "task not found", "failed to load task")
	}
	if err := ValidateTaskTransition(task, models.TaskStatusOnCheck, principal); err != nil {
		return nil, err
	}
	clientID, err := submissionClient(task, req.ClientID)
	if err != nil {
		return nil, err
	}

	questions, err := s.questions.ListForTask(ctx, task.ID, task.SurveyID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load questions")
	}
	if len(questions) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "task has no questions")
	}
	answers, err := buildAnswers(questions, req.Answers)
	if err != nil {
		return nil, err
	}
	for _, answer := range answers {
		answer.UserID = principal.UserID
		answer.ClientID = clientID
	}

	from := task.Status
	updated, err := s.answers.Submit(ctx, task.ID, answers, func(locked *models.Task) error {
		from = locked.Status
		return ValidateTaskTransition(locked, models.TaskStatusOnCheck, principal)
	})
	if err != nil {
		return nil, storeError(err, "task not found", "failed to store answers")
	}
	s.metrics.RecordSurveySubmission()
	s.metrics.RecordTaskTransition(string(from), string(updated.Status))

	stored := make([]models.Answer, 0, len(answers))
	for _, answer := range answers {
		stored = append(stored, *answer)
	}
	emitAudit(ctx, s.audit, s.logger, principal, models.AuditActionSurveySubmit, taskResource, updated.ID, map[string]interface{}{
		"answers": len(stored), "client_id": clientID, "current_count": updated.CurrentCount,
	})
	return &dto.SubmitSurveyResult{Task: *taskDetail(updated), Answers: stored}, nil
}

// AddPhotos appends photos to the principal's answer. Uploads beyond the per-answer cap are dropped
// without error; the result reports how many were kept.
func (s *SurveySubmissionService) AddPhotos(ctx context.Context, answerID string, uploads []PhotoUpload, principal *models.JWTClaims) (*dto.AddPhotosResult, error) {
	if principal == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing principal")
	}
	if principal.Role != models.RoleEmployee {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only employees can attach photos")
	}
	if len(uploads) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one photo is required")
	}
	if s.photos == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "photo storage unavailable")
	}

	answer, err := s.answers.GetByID(ctx, answerID)
	if err != nil {
		return nil, storeError(err, "answer not found", "failed to load answer")
	}
	if answer.UserID != principal.UserID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "answer not found")
	}

	room := s.maxPhotos - len(answer.Photos)
	if room <= 0 {
		return &dto.AddPhotosResult{Accepted: []models.AnswerPhoto{}, Dropped: len(uploads), LimitReached: true}, nil
	}
	kept := uploads
	if len(kept) > room {
		kept = kept[:room]
	}

	infos, err := s.photos.Inspect(kept)
	if err != nil {
		return nil, err
	}
	stored, err := s.photos.Store(path.Join("answers", answer.ID), kept, infos)
	if err != nil {
		return nil, err
	}
	photos := make([]models.AnswerPhoto, len(stored))
	for i, photo := range stored {
		photos[i] = models.AnswerPhoto{
			FilePath: photo.Path,
			Width:    photo.Info.Width,
			Height:   photo.Info.Height,
			Address:  photo.Info.Address,
		}
	}

	accepted, err := s.answers.AppendPhotos(ctx, answer.ID, s.maxPhotos, photos, func(locked *models.Answer, task *models.Task) error {
		if locked.UserID != principal.UserID || !TaskVisibleTo(task, principal) {
			return appErrors.Clone(appErrors.ErrNotFound, "answer not found")
		}
		return nil
	})
	if err != nil {
		s.photos.Discard(storedPaths(stored))
		return nil, storeError(err, "answer not found", "failed to attach photos")
	}
	if len(accepted) < len(stored) {
		// a concurrent upload took the remaining room
		s.photos.Discard(storedPaths(stored[len(accepted):]))
	}
	for i := range accepted {
		s.metrics.RecordPhotoStored("answer", stored[i].Info.HighQuality)
	}

	total := len(answer.Photos) + len(accepted)
	return &dto.AddPhotosResult{
		Accepted:     accepted,
		Dropped:      len(uploads) - len(accepted),
		LimitReached: total >= s.maxPhotos,
	}, nil
}

// submissionClient resolves the client an answer is recorded against. A task bound to a client fixes it.
func submissionClient(task *models.Task, requested *string) (*string, error) {
	if task.ClientID == nil {
		if requested != nil && strings.TrimSpace(*requested) == "" {
			return nil, nil
		}
		return requested, nil
	}
	if requested != nil && *requested != *task.ClientID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "client does not match the task")
	}
	clientID := *task.ClientID
	return &clientID, nil
}

// buildAnswers validates inputs against the question set and converts them into answers.
func buildAnswers(questions []models.Question, inputs []dto.AnswerInput) ([]*models.Answer, error) {
	byID := make(map[string]*models.Question, len(questions))
	for i := range questions {
		byID[questions[i].ID] = &questions[i]
	}

	answers := make([]*models.Answer, 0, len(inputs))
	seen := make(map[string]bool, len(inputs))
	for _, input := range inputs {
		question, ok := byID[input.QuestionID]
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("question %s does not belong to the task", input.QuestionID))
		}
		if seen[question.ID] {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("question %s answered twice", question.ID))
		}
		seen[question.ID] = true

		answer, err := answerFor(question, input)
		if err != nil {
			return nil, err
		}
		if answer != nil {
			answers = append(answers, answer)
		}
	}

	for _, question := range questions {
		if question.Required && !seen[question.ID] {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("question %q is required", question.Text))
		}
	}
	if len(answers) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "submission contains no answers")
	}
	return answers, nil
}

// answerFor returns nil for a blank optional answer.
func answerFor(question *models.Question, input dto.AnswerInput) (*models.Answer, error) {
	answer := &models.Answer{QuestionID: question.ID}
	text := strings.TrimSpace(input.Text)
	kind := question.Type.Kind()

	switch kind {
	case models.KindText:
		if text == "" {
			return blankAnswer(question)
		}
		answer.TextAnswer = text
	case models.KindSingleChoice, models.KindMultiChoice:
		if len(question.Choices) == 0 {
			value, err := defaultAnswer(question, text, kind == models.KindMultiChoice)
			if err != nil {
				return nil, err
			}
			if value == "" {
				return blankAnswer(question)
			}
			answer.TextAnswer = value
			break
		}
		ids, err := choiceAnswer(question, input.ChoiceIDs, kind == models.KindMultiChoice)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return blankAnswer(question)
		}
		answer.ChoiceIDs = ids
	case models.KindPhoto:
		// photos are appended afterwards; the row anchors them
		answer.TextAnswer = text
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported question type %s", question.Type))
	}
	return answer, nil
}

func blankAnswer(question *models.Question) (*models.Answer, error) {
	if question.Required {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("question %q is required", question.Text))
	}
	return nil, nil
}

func choiceAnswer(question *models.Question, ids []string, multi bool) ([]string, error) {
	valid := make(map[string]bool, len(question.Choices))
	for _, choice := range question.Choices {
		valid[choice.ID] = true
	}
	selected := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !valid[id] {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("choice %s does not belong to question %q", id, question.Text))
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		selected = append(selected, id)
	}
	if !multi && len(selected) > 1 {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("question %q accepts a single choice", question.Text))
	}
	return selected, nil
}

// defaultAnswer normalises a Да/Нет answer; multi-select questions may carry both.
func defaultAnswer(question *models.Question, text string, multi bool) (string, error) {
	if text == "" {
		return "", nil
	}
	parts := splitCSV(strings.ToLower(text))
	values := defaultValues(text)
	if len(values) == 0 || len(values) != len(uniqueStrings(parts)) {
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("question %q accepts %s or %s", question.Text, defaultYes, defaultNo))
	}
	if !multi && len(values) > 1 {
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("question %q accepts a single choice", question.Text))
	}
	ordered := make([]string, 0, 2)
	for _, value := range []string{defaultYes, defaultNo} {
		if values[value] {
			ordered = append(ordered, value)
		}
	}
	return strings.Join(ordered, ","), nil
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		if !seen[value] {
			seen[value] = true
			out = append(out, value)
		}
	}
	return out
}
