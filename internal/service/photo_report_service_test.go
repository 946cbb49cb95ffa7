package service

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fieldops-api/internal/dto"
	"github.com/noah-isme/fieldops-api/internal/models"
	"github.com/noah-isme/fieldops-api/internal/repository"
	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
)

const (
	reportClientID = "6f1c2b3a-0000-4000-8000-0000000000c1"
	equipmentTask  = "6f1c2b3a-0000-4000-8000-0000000000a1"
	simpleTask     = "6f1c2b3a-0000-4000-8000-0000000000a2"
)

type photoReportStoreStub struct {
	tasks     *taskStoreStub
	reports   map[string]*models.PhotoReport
	createErr error
	lastList  models.PhotoReportFilter
}

func (s *photoReportStoreStub) Create(ctx context.Context, report *models.PhotoReport, items []models.PhotoReportItem, guard repository.TaskGuard) error {
	if report.TaskID != nil {
		task, ok := s.tasks.tasks[*report.TaskID]
		if !ok {
			return sql.ErrNoRows
		}
		if err := guard(task); err != nil {
			return err
		}
		if report.Status == models.PhotoReportSubmitted {
			task.Status = models.TaskStatusOnCheck
			task.CurrentCount++
		}
	}
	if s.createErr != nil {
		return s.createErr
	}
	report.Items = items
	s.reports[report.ID] = report
	return nil
}

func (s *photoReportStoreStub) SubmitDraft(ctx context.Context, reportID string, guard repository.TaskGuard) (*models.PhotoReport, error) {
	report, ok := s.reports[reportID]
	if !ok || report.Status != models.PhotoReportDraft {
		return nil, sql.ErrNoRows
	}
	if report.TaskID != nil {
		task := s.tasks.tasks[*report.TaskID]
		if err := guard(task); err != nil {
			return nil, err
		}
		task.Status = models.TaskStatusOnCheck
		task.CurrentCount++
	}
	report.Status = models.PhotoReportSubmitted
	copy := *report
	copy.Items = nil
	return &copy, nil
}

func (s *photoReportStoreStub) GetByID(ctx context.Context, id string) (*models.PhotoReport, error) {
	report, ok := s.reports[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *report
	copy.Items = append([]models.PhotoReportItem(nil), report.Items...)
	return &copy, nil
}

func (s *photoReportStoreStub) List(ctx context.Context, filter models.PhotoReportFilter) ([]models.PhotoReport, int, error) {
	s.lastList = filter
	var out []models.PhotoReport
	for _, report := range s.reports {
		out = append(out, *report)
	}
	return out, len(out), nil
}

func (s *photoReportStoreStub) Review(ctx context.Context, reportID string, decide repository.ReviewDecider) (*models.PhotoReport, error) {
	report, ok := s.reports[reportID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	var task *models.Task
	if report.TaskID != nil {
		task = s.tasks.tasks[*report.TaskID]
	}
	change, err := decide(report, task)
	if err != nil {
		return nil, err
	}
	report.Status = change.Status
	report.ModeratorID = &change.ModeratorID
	report.RejectedReason = change.Reason
	if change.Task != nil {
		task.Status = change.Task.To
		task.IsActive = change.Task.IsActive
		task.ModeratorComment = change.Task.Comment
	}
	copy := *report
	return &copy, nil
}

type clientLookupStub map[string]*models.Client

func (s clientLookupStub) GetByID(ctx context.Context, id string) (*models.Client, error) {
	if client, ok := s[id]; ok {
		return client, nil
	}
	return nil, sql.ErrNoRows
}

type reportFixture struct {
	svc       *PhotoReportService
	store     *photoReportStoreStub
	tasks     *taskStoreStub
	snapshots *snapshotStub
	audit     *auditRecorderStub
	dir       string
}

func newReportFixture(t *testing.T) *reportFixture {
	t.Helper()
	client := reportClientID
	tasks := newTaskStoreStub(
		&models.Task{ID: equipmentTask, Type: models.TaskTypeEquipmentPhoto, Status: models.TaskStatusSent, IsActive: true, ClientID: &client, TargetCount: 1},
		&models.Task{ID: simpleTask, Type: models.TaskTypeSimplePhoto, Status: models.TaskStatusSent, IsActive: true, TargetCount: 3},
	)
	store := &photoReportStoreStub{tasks: tasks, reports: map[string]*models.PhotoReport{}}
	intake, dir := newTestPhotoIntake(t)
	snapshots := &snapshotStub{}
	audit := &auditRecorderStub{}
	svc := NewPhotoReportService(PhotoReportDeps{
		Reports:   store,
		Tasks:     tasks,
		Clients:   clientLookupStub{reportClientID: {ID: reportClientID, Name: "Shop", Address: "Main st 1"}},
		Photos:    intake,
		Snapshots: snapshots,
		Audit:     audit,
		MaxPhotos: 3,
	})
	return &reportFixture{svc: svc, store: store, tasks: tasks, snapshots: snapshots, audit: audit, dir: dir}
}

func (f *reportFixture) countFiles(t *testing.T) int {
	t.Helper()
	n := 0
	require.NoError(t, filepath.Walk(f.dir, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			n++
		}
		return err
	}))
	return n
}

func TestPhotoReportCreateSubmitsTask(t *testing.T) {
	f := newReportFixture(t)
	taskID := equipmentTask

	report, err := f.svc.Create(context.Background(), dto.CreatePhotoReportRequest{TaskID: &taskID, ClientID: reportClientID, StandCount: 2},
		[]PhotoUpload{pngUpload(t, "a.png", 16, 16), pngUpload(t, "b.png", 4, 4)}, employee)
	require.NoError(t, err)

	assert.Equal(t, models.PhotoReportSubmitted, report.Status)
	assert.Equal(t, "Main st 1", report.Address)
	require.Len(t, report.Items, 2)
	assert.True(t, report.Items[0].IsHighQuality)
	assert.False(t, report.Items[1].IsHighQuality)
	assert.Contains(t, report.Items[0].DownloadURL, "/api/v1/photos/"+report.Items[0].ID+"/file?token=")
	assert.Equal(t, models.TaskStatusOnCheck, f.tasks.tasks[equipmentTask].Status)
	assert.Equal(t, 2, f.countFiles(t))
	require.Len(t, f.audit.logs, 1)
	assert.Equal(t, models.AuditActionReportCreate, f.audit.logs[0].Action)
}

func TestPhotoReportCreateValidation(t *testing.T) {
	f := newReportFixture(t)
	other := "6f1c2b3a-0000-4000-8000-0000000000c2"
	taskID := equipmentTask
	one := func() []PhotoUpload { return []PhotoUpload{pngUpload(t, "a.png", 16, 16)} }

	cases := []struct {
		name      string
		req       dto.CreatePhotoReportRequest
		uploads   []PhotoUpload
		principal *models.JWTClaims
		code      string
	}{
		{"moderator", dto.CreatePhotoReportRequest{ClientID: reportClientID}, one(), moderator, appErrors.ErrForbidden.Code},
		{"no photos", dto.CreatePhotoReportRequest{ClientID: reportClientID}, nil, employee, appErrors.ErrValidation.Code},
		{"too many photos", dto.CreatePhotoReportRequest{ClientID: reportClientID}, append(one(), append(one(), append(one(), one()...)...)...), employee, appErrors.ErrValidation.Code},
		{"unknown client", dto.CreatePhotoReportRequest{ClientID: other}, one(), employee, appErrors.ErrValidation.Code},
		{"bad client id", dto.CreatePhotoReportRequest{ClientID: "nope"}, one(), employee, appErrors.ErrValidation.Code},
		{"bad task id", dto.CreatePhotoReportRequest{ClientID: reportClientID, TaskID: strPtr("t2")}, one(), employee, appErrors.ErrValidation.Code},
		{"unknown task", dto.CreatePhotoReportRequest{ClientID: reportClientID, TaskID: strPtr(reportClientID)}, one(), employee, appErrors.ErrNotFound.Code},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), tc.req, tc.uploads, tc.principal)
			assert.Equal(t, tc.code, errCode(err))
		})
	}

	f.tasks.tasks[equipmentTask].ClientID = &other
	f.svc.clients = clientLookupStub{reportClientID: {ID: reportClientID}, other: {ID: other}}
	_, err := f.svc.Create(context.Background(), dto.CreatePhotoReportRequest{TaskID: &taskID, ClientID: reportClientID}, one(), employee)
	assert.Equal(t, appErrors.ErrValidation.Code, errCode(err))
	assert.Zero(t, f.countFiles(t))
}

func TestPhotoReportCreateDiscardsFilesOnFailure(t *testing.T) {
	f := newReportFixture(t)
	f.store.createErr = assert.AnError

	_, err := f.svc.Create(context.Background(), dto.CreatePhotoReportRequest{ClientID: reportClientID},
		[]PhotoUpload{pngUpload(t, "a.png", 16, 16)}, employee)
	assert.Equal(t, appErrors.ErrInternal.Code, errCode(err))
	assert.Zero(t, f.countFiles(t))
}

func TestPhotoReportDraftThenSubmit(t *testing.T) {
	f := newReportFixture(t)
	taskID := simpleTask

	draft, err := f.svc.Create(context.Background(), dto.CreatePhotoReportRequest{TaskID: &taskID, ClientID: reportClientID, Draft: true},
		[]PhotoUpload{pngUpload(t, "a.png", 16, 16)}, employee)
	require.NoError(t, err)
	assert.Equal(t, models.PhotoReportDraft, draft.Status)
	assert.Equal(t, models.TaskStatusSent, f.tasks.tasks[simpleTask].Status)

	_, err = f.svc.SubmitDraft(context.Background(), draft.ID, colleague)
	assert.Equal(t, appErrors.ErrNotFound.Code, errCode(err))

	submitted, err := f.svc.SubmitDraft(context.Background(), draft.ID, employee)
	require.NoError(t, err)
	assert.Equal(t, models.PhotoReportSubmitted, submitted.Status)
	assert.Len(t, submitted.Items, 1)
	assert.Equal(t, models.TaskStatusOnCheck, f.tasks.tasks[simpleTask].Status)

	_, err = f.svc.SubmitDraft(context.Background(), draft.ID, employee)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, errCode(err))
}

func TestPhotoReportReviewRejectSendsTaskToRework(t *testing.T) {
	f := newReportFixture(t)
	taskID := simpleTask
	report, err := f.svc.Create(context.Background(), dto.CreatePhotoReportRequest{TaskID: &taskID, ClientID: reportClientID},
		[]PhotoUpload{pngUpload(t, "a.png", 16, 16)}, employee)
	require.NoError(t, err)

	_, err = f.svc.Review(context.Background(), report.ID, dto.ReviewPhotoReportRequest{Action: models.ReviewReject}, moderator)
	assert.Equal(t, appErrors.ErrValidation.Code, errCode(err))

	_, err = f.svc.Review(context.Background(), report.ID, dto.ReviewPhotoReportRequest{Action: models.ReviewApprove}, employee)
	assert.Equal(t, appErrors.ErrForbidden.Code, errCode(err))

	reviewed, err := f.svc.Review(context.Background(), report.ID, dto.ReviewPhotoReportRequest{Action: models.ReviewReject, Reason: " blurry "}, moderator)
	require.NoError(t, err)
	assert.Equal(t, models.PhotoReportRejected, reviewed.Status)
	require.NotNil(t, reviewed.RejectedReason)
	assert.Equal(t, "blurry", *reviewed.RejectedReason)
	task := f.tasks.tasks[simpleTask]
	assert.Equal(t, models.TaskStatusRework, task.Status)
	require.NotNil(t, task.ModeratorComment)
	assert.Equal(t, "blurry", *task.ModeratorComment)

	_, err = f.svc.Review(context.Background(), report.ID, dto.ReviewPhotoReportRequest{Action: models.ReviewApprove}, moderator)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, errCode(err))
}

func TestPhotoReportReviewApproveCompletesTaskAtTarget(t *testing.T) {
	f := newReportFixture(t)
	partial, err := f.svc.Create(context.Background(), dto.CreatePhotoReportRequest{TaskID: strPtr(simpleTask), ClientID: reportClientID},
		[]PhotoUpload{pngUpload(t, "a.png", 16, 16)}, employee)
	require.NoError(t, err)
	_, err = f.svc.Review(context.Background(), partial.ID, dto.ReviewPhotoReportRequest{Action: models.ReviewApprove}, moderator)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusOnCheck, f.tasks.tasks[simpleTask].Status)
	assert.Empty(t, f.snapshots.scheduled)

	full, err := f.svc.Create(context.Background(), dto.CreatePhotoReportRequest{TaskID: strPtr(equipmentTask), ClientID: reportClientID},
		[]PhotoUpload{pngUpload(t, "a.png", 16, 16)}, employee)
	require.NoError(t, err)
	approved, err := f.svc.Review(context.Background(), full.ID, dto.ReviewPhotoReportRequest{Action: models.ReviewApprove}, moderator)
	require.NoError(t, err)
	assert.Equal(t, models.PhotoReportApproved, approved.Status)
	assert.Equal(t, models.TaskStatusCompleted, f.tasks.tasks[equipmentTask].Status)
	assert.False(t, f.tasks.tasks[equipmentTask].IsActive)
	assert.Equal(t, []string{equipmentTask}, f.snapshots.scheduled)
}

func TestPhotoReportGetAndListScopeEmployees(t *testing.T) {
	f := newReportFixture(t)
	report, err := f.svc.Create(context.Background(), dto.CreatePhotoReportRequest{ClientID: reportClientID, Address: "Dock 4"},
		[]PhotoUpload{pngUpload(t, "a.png", 16, 16)}, employee)
	require.NoError(t, err)
	assert.Equal(t, "Dock 4", report.Address)

	_, err = f.svc.Get(context.Background(), report.ID, colleague)
	assert.Equal(t, appErrors.ErrNotFound.Code, errCode(err))

	loaded, err := f.svc.Get(context.Background(), report.ID, moderator)
	require.NoError(t, err)
	assert.NotEmpty(t, loaded.Items[0].DownloadURL)

	_, _, err = f.svc.List(context.Background(), dto.PhotoReportFilter{EmployeeID: "someone", Status: "submitted,approved", From: "2026-05-01", To: "2026-05-02"}, employee)
	require.NoError(t, err)
	assert.Equal(t, employee.UserID, f.store.lastList.EmployeeID)
	assert.Equal(t, []models.PhotoReportStatus{models.PhotoReportSubmitted, models.PhotoReportApproved}, f.store.lastList.Status)
	require.NotNil(t, f.store.lastList.To)
	assert.Equal(t, "2026-05-03", f.store.lastList.To.Format("2006-01-02"))

	_, _, err = f.svc.List(context.Background(), dto.PhotoReportFilter{Status: "lost"}, moderator)
	assert.Equal(t, appErrors.ErrValidation.Code, errCode(err))
}
