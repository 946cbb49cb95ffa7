package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/fieldops-api/internal/dto"
	"github.com/noah-isme/fieldops-api/internal/models"
	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
)

const evaluationResource = "evaluations"

type evaluationStore interface {
	Create(ctx context.Context, evaluation *models.Evaluation, improvement *models.Task) error
	ListByReport(ctx context.Context, reportID string) ([]models.Evaluation, error)
}

type reportReader interface {
	GetByID(ctx context.Context, id string) (*models.PhotoReport, error)
}

// EvaluationService records moderator remarks on photo reports and spawns follow-up work.
type EvaluationService struct {
	evaluations evaluationStore
	reports     reportReader
	cache       *CacheService
	audit       auditLogger
	logger      *zap.Logger
}

// NewEvaluationService constructs the service.
func NewEvaluationService(evaluations evaluationStore, reports reportReader, cache *CacheService, audit auditLogger, logger *zap.Logger) *EvaluationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EvaluationService{evaluations: evaluations, reports: reports, cache: cache, audit: audit, logger: logger}
}

// Create stores an evaluation. When any criterion carries a remark an EQUIPMENT_PHOTO task is sent to
// the report's author in the same transaction.
func (s *EvaluationService) Create(ctx context.Context, reportID string, req dto.CreateEvaluationRequest, principal *models.JWTClaims) (*dto.EvaluationResult, error) {
	if !principal.IsModerator() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only moderators can evaluate photo reports")
	}
	report, err := s.reports.GetByID(ctx, reportID)
	if err != nil {
		return nil, storeError(err, "photo report not found", "failed to load photo report")
	}
	if report.Status == models.PhotoReportDraft {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "draft reports cannot be evaluated")
	}

	evaluation := &models.Evaluation{
		ID:                    uuid.NewString(),
		ReportID:              report.ID,
		ModeratorID:           principal.UserID,
		FullnessComment:       strings.TrimSpace(req.FullnessComment),
		NoForeignGoodsComment: strings.TrimSpace(req.NoForeignGoodsComment),
		PresentationComment:   strings.TrimSpace(req.PresentationComment),
	}
	var improvement *models.Task
	if evaluation.NeedsImprovement() {
		improvement = improvementTask(report, evaluation, principal)
	}
	if err := s.evaluations.Create(ctx, evaluation, improvement); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store evaluation")
	}

	s.cache.InvalidatePhotoStats(ctx)
	emitAudit(ctx, s.audit, s.logger, principal, models.AuditActionEvaluation, evaluationResource, evaluation.ID, map[string]interface{}{
		"report_id": report.ID, "improvement_task_id": evaluation.ImprovementTaskID,
	})
	return &dto.EvaluationResult{Evaluation: *evaluation, ImprovementTask: improvement}, nil
}

// ListByReport returns a report's evaluations. Employees only see evaluations of their own reports.
func (s *EvaluationService) ListByReport(ctx context.Context, reportID string, principal *models.JWTClaims) ([]models.Evaluation, error) {
	if principal == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing principal")
	}
	report, err := s.reports.GetByID(ctx, reportID)
	if err != nil {
		return nil, storeError(err, "photo report not found", "failed to load photo report")
	}
	if !principal.IsModerator() && report.EmployeeID != principal.UserID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "photo report not found")
	}
	items, err := s.evaluations.ListByReport(ctx, report.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list evaluations")
	}
	return items, nil
}

func improvementTask(report *models.PhotoReport, evaluation *models.Evaluation, principal *models.JWTClaims) *models.Task {
	var remarks []string
	for _, remark := range []struct{ label, text string }{
		{"Fullness", evaluation.FullnessComment},
		{"No foreign goods", evaluation.NoForeignGoodsComment},
		{"Presentation", evaluation.PresentationComment},
	} {
		if remark.text != "" {
			remarks = append(remarks, remark.label+": "+remark.text)
		}
	}
	employeeID, clientID := report.EmployeeID, report.ClientID
	title := "Improve equipment photo"
	if report.Address != "" {
		title += " at " + report.Address
	}
	return &models.Task{
		ID:          uuid.NewString(),
		Title:       title,
		Description: strings.Join(remarks, "\n"),
		Type:        models.TaskTypeEquipmentPhoto,
		Status:      models.TaskStatusSent,
		IsActive:    true,
		AssignedTo:  &employeeID,
		ClientID:    &clientID,
		CreatedBy:   principal.UserID,
		TargetCount: 1,
	}
}
