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

var photoReportRowColumns = []string{"id", "task_id", "client_id", "employee_id", "address", "stand_count", "comment", "status", "moderator_id",
	"rejected_reason", "reviewed_at", "created_at", "updated_at"}

func TestPhotoReportCreateWithTask(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPhotoReportRepository(db)

	taskID := "task-1"
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM tasks WHERE id = $1 FOR UPDATE")).
		WithArgs(taskID).
		WillReturnRows(taskRow(taskID, models.TaskStatusSent, 0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("current_count = current_count + 1")).
		WillReturnRows(sqlmock.NewRows([]string{"current_count"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO photo_reports")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO photo_report_items")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO photo_report_items")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	report := &models.PhotoReport{TaskID: &taskID, ClientID: "client-1", EmployeeID: "emp-1", Status: models.PhotoReportSubmitted}
	items := []models.PhotoReportItem{{FilePath: "a.jpg", IsHighQuality: true}, {FilePath: "b.jpg"}}
	require.NoError(t, repo.Create(context.Background(), report, items, nil))
	require.Len(t, report.Items, 2)
	assert.Equal(t, report.ID, report.Items[1].ReportID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPhotoReportCreateRollsBackOnItemFailure(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPhotoReportRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO photo_reports")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO photo_report_items")).WillReturnError(assert.AnError)
	mock.ExpectRollback()

	report := &models.PhotoReport{ClientID: "client-1", EmployeeID: "emp-1", Status: models.PhotoReportSubmitted}
	err := repo.Create(context.Background(), report, []models.PhotoReportItem{{FilePath: "a.jpg"}}, nil)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPhotoReportReviewAppliesDecision(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPhotoReportRepository(db)

	now := time.Now()
	taskID := "task-1"
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM photo_reports WHERE id = $1 FOR UPDATE")).
		WithArgs("report-1").
		WillReturnRows(sqlmock.NewRows(photoReportRowColumns).
			AddRow("report-1", taskID, "client-1", "emp-1", "", 2, "", "submitted", nil, nil, nil, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM tasks WHERE id = $1 FOR UPDATE")).
		WithArgs(taskID).
		WillReturnRows(taskRow(taskID, models.TaskStatusOnCheck, 0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE photo_reports SET status = $2")).
		WithArgs("report-1", models.PhotoReportRejected, "mod-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE tasks SET status = $3")).
		WithArgs(taskID, models.TaskStatusOnCheck, models.TaskStatusRework, true, sqlmock.AnyArg(), nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	reason := "blurry"
	report, err := repo.Review(context.Background(), "report-1", func(r *models.PhotoReport, task *models.Task) (*ReportReviewChange, error) {
		require.NotNil(t, task)
		return &ReportReviewChange{
			Status:      models.PhotoReportRejected,
			ModeratorID: "mod-1",
			Reason:      &reason,
			Task:        &TaskStatusChange{ID: task.ID, From: task.Status, To: models.TaskStatusRework, Comment: &reason, IsActive: true},
		}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, models.PhotoReportRejected, report.Status)
	assert.Equal(t, "blurry", *report.RejectedReason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPhotoReportSubmitDraftRecordsTaskSubmission(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPhotoReportRepository(db)

	now := time.Now()
	taskID := "task-1"
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM photo_reports WHERE id = $1 AND status = $2 FOR UPDATE")).
		WithArgs("report-1", models.PhotoReportDraft).
		WillReturnRows(sqlmock.NewRows(photoReportRowColumns).
			AddRow("report-1", taskID, "client-1", "emp-1", "", 1, "", "draft", nil, nil, nil, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM tasks WHERE id = $1 FOR UPDATE")).
		WithArgs(taskID).
		WillReturnRows(taskRow(taskID, models.TaskStatusSent, 0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("current_count = current_count + 1")).
		WillReturnRows(sqlmock.NewRows([]string{"current_count"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE photo_reports SET status = $2, updated_at = $3")).
		WithArgs("report-1", models.PhotoReportSubmitted, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	report, err := repo.SubmitDraft(context.Background(), "report-1", nil)
	require.NoError(t, err)
	assert.Equal(t, models.PhotoReportSubmitted, report.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPhotoReportStatsByClient(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPhotoReportRepository(db)

	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)
	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY r.client_id, c.name")).
		WithArgs(from, to, "emp-1").
		WillReturnRows(sqlmock.NewRows([]string{"client_id", "client_name", "reports", "photos", "high_quality", "submitted", "approved", "rejected"}).
			AddRow("client-1", "ООО Ромашка", 2, 7, 5, 1, 1, 0))

	stats, err := repo.StatsByClient(context.Background(), from, to, "", "emp-1")
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 7, stats[0].Photos)
	assert.Equal(t, 5, stats[0].HighQuality)
	assert.NoError(t, mock.ExpectationsWereMet())
}
