package service

import (
	"context"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/fieldops-api/internal/dto"
	"github.com/noah-isme/fieldops-api/internal/models"
	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
)

type surveyStore interface {
	Create(ctx context.Context, survey *models.Survey, questions []*models.Question) error
	GetByID(ctx context.Context, id string) (*models.Survey, error)
	ListWithProgress(ctx context.Context, activeOnly bool) ([]models.SurveyProgress, error)
}

// SurveyService manages reusable surveys.
type SurveyService struct {
	surveys   surveyStore
	questions questionReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSurveyService constructs the service.
func NewSurveyService(surveys surveyStore, questions questionReader, validate *validator.Validate, logger *zap.Logger) *SurveyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &SurveyService{surveys: surveys, questions: questions, validator: validate, logger: logger}
}

// List returns surveys with collection progress. Employees only see active surveys.
func (s *SurveyService) List(ctx context.Context, principal *models.JWTClaims) ([]models.SurveyProgress, error) {
	if principal == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing principal")
	}
	items, err := s.surveys.ListWithProgress(ctx, !principal.IsModerator())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list surveys")
	}
	for i := range items {
		items[i].Percent = surveyPercent(items[i].Completed, items[i].TargetCount)
	}
	return items, nil
}

// Get returns a survey with its questions.
func (s *SurveyService) Get(ctx context.Context, id string, principal *models.JWTClaims) (*models.Survey, []models.Question, error) {
	if principal == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing principal")
	}
	survey, err := s.surveys.GetByID(ctx, id)
	if err != nil {
		return nil, nil, storeError(err, "survey not found", "failed to load survey")
	}
	if !survey.IsActive && !principal.IsModerator() {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "survey not found")
	}
	questions, err := s.questions.ListForSurvey(ctx, survey.ID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load questions")
	}
	return survey, questions, nil
}

// Create stores a survey and its questions atomically.
func (s *SurveyService) Create(ctx context.Context, req dto.CreateSurveyRequest, principal *models.JWTClaims) (*models.Survey, error) {
	if !principal.IsModerator() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only moderators can create surveys")
	}
	req.Title = strings.TrimSpace(req.Title)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid survey payload")
	}

	questions := make([]*models.Question, 0, len(req.Questions))
	for i, item := range req.Questions {
		question, err := buildQuestion(s.validator, item)
		if err != nil {
			return nil, err
		}
		if question.Order == 0 {
			question.Order = i + 1
		}
		questions = append(questions, question)
	}

	survey := &models.Survey{
		Title:       req.Title,
		Description: req.Description,
		IsActive:    !req.Inactive,
		TargetCount: req.TargetCount,
		CreatedBy:   principal.UserID,
	}
	if err := s.surveys.Create(ctx, survey, questions); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create survey")
	}
	s.logger.Info("survey created", zap.String("survey_id", survey.ID), zap.Int("questions", len(questions)))
	return survey, nil
}

// surveyPercent mirrors task completion: min(100, completed*100/target), 0 without a target.
func surveyPercent(completed int, target *int) float64 {
	if target == nil || *target <= 0 {
		return 0
	}
	p := float64(completed) * 100 / float64(*target)
	return math.Min(100, math.Round(p*10)/10)
}
