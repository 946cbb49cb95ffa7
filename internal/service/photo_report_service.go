package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/fieldops-api/internal/dto"
	"github.com/noah-isme/fieldops-api/internal/models"
	"github.com/noah-isme/fieldops-api/internal/repository"
	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
)

const photoReportResource = "photo_reports"

// DefaultMaxPhotosPerReport bounds a single report upload.
const DefaultMaxPhotosPerReport = 30

type photoReportStore interface {
	Create(ctx context.Context, report *models.PhotoReport, items []models.PhotoReportItem, guard repository.TaskGuard) error
	SubmitDraft(ctx context.Context, reportID string, guard repository.TaskGuard) (*models.PhotoReport, error)
	GetByID(ctx context.Context, id string) (*models.PhotoReport, error)
	List(ctx context.Context, filter models.PhotoReportFilter) ([]models.PhotoReport, int, error)
	Review(ctx context.Context, reportID string, decide repository.ReviewDecider) (*models.PhotoReport, error)
}

type clientLookup interface {
	GetByID(ctx context.Context, id string) (*models.Client, error)
}

// PhotoReportService handles photo report submission and moderation.
type PhotoReportService struct {
	reports   photoReportStore
	tasks     taskReader
	clients   clientLookup
	photos    *PhotoIntake
	snapshots snapshotScheduler
	cache     *CacheService
	audit     auditLogger
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	maxPhotos int
}

// PhotoReportDeps bundles collaborators of the photo report service.
type PhotoReportDeps struct {
	Reports   photoReportStore
	Tasks     taskReader
	Clients   clientLookup
	Photos    *PhotoIntake
	Snapshots snapshotScheduler
	Cache     *CacheService
	Audit     auditLogger
	Metrics   *MetricsService
	Validator *validator.Validate
	Logger    *zap.Logger
	MaxPhotos int
}

// NewPhotoReportService constructs the service.
func NewPhotoReportService(deps PhotoReportDeps) *PhotoReportService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.MaxPhotos <= 0 {
		deps.MaxPhotos = DefaultMaxPhotosPerReport
	}
	return &PhotoReportService{
		reports:   deps.Reports,
		tasks:     deps.Tasks,
		clients:   deps.Clients,
		photos:    deps.Photos,
		snapshots: deps.Snapshots,
		cache:     deps.Cache,
		audit:     deps.Audit,
		metrics:   deps.Metrics,
		validator: deps.Validator,
		logger:    deps.Logger,
		maxPhotos: deps.MaxPhotos,
	}
}

// Create inspects every photo, stores them and inserts the report with its items in one transaction.
// Stored files are removed when the transaction fails.
func (s *PhotoReportService) Create(ctx context.Context, req dto.CreatePhotoReportRequest, uploads []PhotoUpload, principal *models.JWTClaims) (*models.PhotoReport, error) {
	if principal == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing principal")
	}
	if principal.Role != models.RoleEmployee {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only employees can submit photo reports")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid photo report payload")
	}
	if len(uploads) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one photo is required")
	}
	if len(uploads) > s.maxPhotos {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("a report takes at most %d photos", s.maxPhotos))
	}
	if s.photos == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "photo storage unavailable")
	}

	client, err := s.clients.GetByID(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "client not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load client")
	}

	status := models.PhotoReportSubmitted
	if req.Draft {
		status = models.PhotoReportDraft
	}
	guard := reportTaskGuard(status, client.ID, principal)
	var from models.TaskStatus
	if req.TaskID != nil {
		task, err := s.tasks.GetByID(ctx, *req.TaskID)
		if err != nil {
			return nil, storeError(err, "task not found", "failed to load task")
		}
		if err := guard(task); err != nil {
			return nil, err
		}
	}

	infos, err := s.photos.Inspect(uploads)
	if err != nil {
		return nil, err
	}
	reportID := uuid.NewString()
	stored, err := s.photos.Store(path.Join("reports", reportID), uploads, infos)
	if err != nil {
		return nil, err
	}

	items := make([]models.PhotoReportItem, len(stored))
	for i, photo := range stored {
		items[i] = models.PhotoReportItem{
			ID:              uuid.NewString(),
			FilePath:        photo.Path,
			MimeType:        photo.Info.MimeType,
			SizeBytes:       photo.Size,
			Width:           photo.Info.Width,
			Height:          photo.Info.Height,
			IsHighQuality:   photo.Info.HighQuality,
			Latitude:        photo.Info.Latitude,
			Longitude:       photo.Info.Longitude,
			DetectedAddress: photo.Info.Address,
		}
	}
	report := &models.PhotoReport{
		ID:         reportID,
		TaskID:     req.TaskID,
		ClientID:   client.ID,
		EmployeeID: principal.UserID,
		Address:    reportAddress(req.Address, items, client),
		StandCount: req.StandCount,
		Comment:    strings.TrimSpace(req.Comment),
		Status:     status,
	}

	err = s.reports.Create(ctx, report, items, func(task *models.Task) error {
		from = task.Status
		return guard(task)
	})
	if err != nil {
		s.photos.Discard(storedPaths(stored))
		return nil, storeError(err, "task not found", "failed to store photo report")
	}

	for _, item := range items {
		s.metrics.RecordPhotoStored("report", item.IsHighQuality)
	}
	if report.TaskID != nil && status == models.PhotoReportSubmitted {
		s.metrics.RecordTaskTransition(string(from), string(models.TaskStatusOnCheck))
	}
	s.cache.InvalidatePhotoStats(ctx)
	emitAudit(ctx, s.audit, s.logger, principal, models.AuditActionReportCreate, photoReportResource, report.ID, map[string]interface{}{
		"status": report.Status, "client_id": report.ClientID, "task_id": report.TaskID, "photos": len(items),
	})
	s.signItems(report)
	return report, nil
}

// SubmitDraft hands the author's draft to moderation.
func (s *PhotoReportService) SubmitDraft(ctx context.Context, id string, principal *models.JWTClaims) (*models.PhotoReport, error) {
	report, err := s.reports.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "photo report not found", "failed to load photo report")
	}
	if err := ValidateReportSubmit(report, principal); err != nil {
		return nil, err
	}

	var from models.TaskStatus
	submitted, err := s.reports.SubmitDraft(ctx, report.ID, func(task *models.Task) error {
		from = task.Status
		return reportTaskGuard(models.PhotoReportSubmitted, report.ClientID, principal)(task)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "photo report is no longer a draft")
		}
		return nil, storeError(err, "photo report not found", "failed to submit photo report")
	}
	if submitted.TaskID != nil {
		s.metrics.RecordTaskTransition(string(from), string(models.TaskStatusOnCheck))
	}
	s.cache.InvalidatePhotoStats(ctx)
	emitAudit(ctx, s.audit, s.logger, principal, models.AuditActionReportCreate, photoReportResource, submitted.ID, map[string]interface{}{
		"status": submitted.Status,
	})
	submitted.Items = report.Items
	s.signItems(submitted)
	return submitted, nil
}

// Review applies a moderator decision. Rejecting sends a task under review back for rework; approving
// completes the task once its target is reached.
func (s *PhotoReportService) Review(ctx context.Context, id string, req dto.ReviewPhotoReportRequest, principal *models.JWTClaims) (*models.PhotoReport, error) {
	if !principal.IsModerator() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only moderators can review photo reports")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid review payload")
	}

	var taskChange *repository.TaskStatusChange
	reviewed, err := s.reports.Review(ctx, id, func(report *models.PhotoReport, task *models.Task) (*repository.ReportReviewChange, error) {
		next, err := DecideReview(report, req.Action, req.Reason, principal)
		if err != nil {
			return nil, err
		}
		change := &repository.ReportReviewChange{Status: next, ModeratorID: principal.UserID}
		if next == models.PhotoReportRejected {
			reason := strings.TrimSpace(req.Reason)
			change.Reason = &reason
		}
		change.Task = reviewTaskChange(next, change.Reason, task)
		taskChange = change.Task
		return change, nil
	})
	if err != nil {
		return nil, storeError(err, "photo report not found", "failed to review photo report")
	}

	if taskChange != nil {
		s.metrics.RecordTaskTransition(string(taskChange.From), string(taskChange.To))
		if taskChange.To == models.TaskStatusCompleted && s.snapshots != nil {
			s.snapshots.ScheduleSnapshot(taskChange.ID)
		}
	}
	s.cache.InvalidatePhotoStats(ctx)
	emitAudit(ctx, s.audit, s.logger, principal, models.AuditActionReportReview, photoReportResource, reviewed.ID, map[string]interface{}{
		"status": reviewed.Status, "reason": reviewed.RejectedReason, "task_change": taskChange,
	})
	return reviewed, nil
}

// Get returns a report with signed photo URLs. Employees only see their own reports.
func (s *PhotoReportService) Get(ctx context.Context, id string, principal *models.JWTClaims) (*models.PhotoReport, error) {
	if principal == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing principal")
	}
	report, err := s.reports.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "photo report not found", "failed to load photo report")
	}
	if !principal.IsModerator() && report.EmployeeID != principal.UserID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "photo report not found")
	}
	s.signItems(report)
	return report, nil
}

// List returns reports; employees are limited to their own.
func (s *PhotoReportService) List(ctx context.Context, query dto.PhotoReportFilter, principal *models.JWTClaims) ([]models.PhotoReport, *models.Pagination, error) {
	if principal == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing principal")
	}
	filter := models.PhotoReportFilter{
		ClientID:   query.ClientID,
		EmployeeID: query.EmployeeID,
		TaskID:     query.TaskID,
		Page:       query.Page,
		PageSize:   query.PageSize,
	}
	for _, raw := range splitCSV(query.Status) {
		status := models.PhotoReportStatus(strings.ToLower(raw))
		if !status.Valid() {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown report status %q", raw))
		}
		filter.Status = append(filter.Status, status)
	}
	from, err := parseStatsDate("from", query.From)
	if err != nil {
		return nil, nil, err
	}
	to, err := parseStatsDate("to", query.To)
	if err != nil {
		return nil, nil, err
	}
	if to != nil {
		end := to.AddDate(0, 0, 1)
		to = &end
	}
	filter.From, filter.To = from, to
	if !principal.IsModerator() {
		filter.EmployeeID = principal.UserID
	}

	reports, total, err := s.reports.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list photo reports")
	}
	page, size, _ := models.NormalizePage(filter.Page, filter.PageSize, 100)
	return reports, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

func (s *PhotoReportService) signItems(report *models.PhotoReport) {
	if s.photos == nil {
		return
	}
	for i := range report.Items {
		report.Items[i].DownloadURL = s.photos.DownloadURL(report.Items[i].ID, report.Items[i].FilePath)
	}
}

// reportTaskGuard checks a task a report is bound to. Drafts only need the task to be visible; submitted
// reports perform the ON_CHECK transition.
func reportTaskGuard(status models.PhotoReportStatus, clientID string, principal *models.JWTClaims) repository.TaskGuard {
	return func(task *models.Task) error {
		if task.ClientID != nil && *task.ClientID != clientID {
			return appErrors.Clone(appErrors.ErrValidation, "client does not match the task")
		}
		if status == models.PhotoReportDraft {
			if !TaskVisibleTo(task, principal) {
				return appErrors.Clone(appErrors.ErrNotFound, "task not found")
			}
			return nil
		}
		return ValidateTaskTransition(task, models.TaskStatusOnCheck, principal)
	}
}

// reviewTaskChange derives the task transition caused by a review, or nil.
func reviewTaskChange(next models.PhotoReportStatus, reason *string, task *models.Task) *repository.TaskStatusChange {
	if task == nil {
		return nil
	}
	switch next {
	case models.PhotoReportRejected:
		if task.Status != models.TaskStatusOnCheck {
			return nil
		}
		return &repository.TaskStatusChange{ID: task.ID, From: task.Status, To: models.TaskStatusRework, Comment: reason, IsActive: true}
	case models.PhotoReportApproved:
		if task.Status == models.TaskStatusCompleted || task.CurrentCount < task.TargetCount {
			return nil
		}
		return &repository.TaskStatusChange{ID: task.ID, From: task.Status, To: models.TaskStatusCompleted, IsActive: false}
	default:
		return nil
	}
}

// reportAddress prefers the typed address, then the first EXIF location, then the client's address.
func reportAddress(typed string, items []models.PhotoReportItem, client *models.Client) string {
	if trimmed := strings.TrimSpace(typed); trimmed != "" {
		return trimmed
	}
	for _, item := range items {
		if item.DetectedAddress != nil && *item.DetectedAddress != "" {
			return *item.DetectedAddress
		}
	}
	return client.Address
}
