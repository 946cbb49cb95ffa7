package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/fieldops-api/internal/models"
	"github.com/noah-isme/fieldops-api/pkg/database"
)

const photoReportColumns = `id, task_id, client_id, employee_id, address, stand_count, comment, status, moderator_id,
       rejected_reason, reviewed_at, created_at, updated_at`

const photoItemColumns = `id, report_id, file_path, mime_type, size_bytes, width, height, is_high_quality,
       latitude, longitude, detected_address, created_at`

// ReportReviewChange is the outcome a reviewer decided on for a locked report.
type ReportReviewChange struct {
	Status      models.PhotoReportStatus
	ModeratorID string
	Reason      *string
	Task        *TaskStatusChange
}

// ReviewDecider inspects the locked report (and its task, if bound) and returns the change to apply.
type ReviewDecider func(report *models.PhotoReport, task *models.Task) (*ReportReviewChange, error)

// PhotoReportRepository persists photo reports and their items.
type PhotoReportRepository struct {
	db *sqlx.DB
}

// NewPhotoReportRepository constructs the repository.
func NewPhotoReportRepository(db *sqlx.DB) *PhotoReportRepository {
	return &PhotoReportRepository{db: db}
}

// Create inserts the report and all items in one transaction. When the report is bound to a task the task
// row is locked and checked by guard; a submitted report also moves it to ON_CHECK with its counter incremented.
func (r *PhotoReportRepository) Create(ctx context.Context, report *models.PhotoReport, items []models.PhotoReportItem, guard TaskGuard) error {
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	report.CreatedAt, report.UpdatedAt = now, now

	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if report.TaskID != nil {
			task, err := lockTask(ctx, tx, *report.TaskID)
			if err != nil {
				return err
			}
			if guard != nil {
				if err := guard(task); err != nil {
					return err
				}
			}
			if report.Status == models.PhotoReportSubmitted {
				if err := recordSubmission(ctx, tx, task); err != nil {
					return err
				}
			}
		}

		const insertReport = `INSERT INTO photo_reports
		(id, task_id, client_id, employee_id, address, stand_count, comment, status, created_at, updated_at)
		VALUES (:id, :task_id, :client_id, :employee_id, :address, :stand_count, :comment, :status, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, insertReport, report); err != nil {
			return fmt.Errorf("create photo report: %w", err)
		}

		const insertItem = `INSERT INTO photo_report_items
		(id, report_id, file_path, mime_type, size_bytes, width, height, is_high_quality, latitude, longitude, detected_address, created_at)
		VALUES (:id, :report_id, :file_path, :mime_type, :size_bytes, :width, :height, :is_high_quality, :latitude, :longitude, :detected_address, :created_at)`
		for i := range items {
			item := &items[i]
			if item.ID == "" {
				item.ID = uuid.NewString()
			}
			item.ReportID = report.ID
			item.CreatedAt = now
			if _, err := tx.NamedExecContext(ctx, insertItem, item); err != nil {
				return fmt.Errorf("create photo report item: %w", err)
			}
		}
		report.Items = items
		return nil
	})
}

// SubmitDraft moves a draft report to submitted. A bound task is locked, checked by guard and records the
// submission in the same transaction. It returns sql.ErrNoRows when the report is missing or no longer a draft.
func (r *PhotoReportRepository) SubmitDraft(ctx context.Context, reportID string, guard TaskGuard) (*models.PhotoReport, error) {
	var submitted *models.PhotoReport
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		query := `SELECT ` + photoReportColumns + ` FROM photo_reports WHERE id = $1 AND status = $2 FOR UPDATE`
		var report models.PhotoReport
		if err := tx.GetContext(ctx, &report, query, reportID, models.PhotoReportDraft); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return err
			}
			return fmt.Errorf("lock photo report: %w", err)
		}
		if report.TaskID != nil {
			task, err := lockTask(ctx, tx, *report.TaskID)
			if err != nil {
				return err
			}
			if guard != nil {
				if err := guard(task); err != nil {
					return err
				}
			}
			if err := recordSubmission(ctx, tx, task); err != nil {
				return err
			}
		}
		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx, `UPDATE photo_reports SET status = $2, updated_at = $3 WHERE id = $1`,
			report.ID, models.PhotoReportSubmitted, now); err != nil {
			return fmt.Errorf("submit photo report: %w", err)
		}
		report.Status = models.PhotoReportSubmitted
		report.UpdatedAt = now
		submitted = &report
		return nil
	})
	if err != nil {
		return nil, err
	}
	return submitted, nil
}

// GetByID fetches a report with its items.
func (r *PhotoReportRepository) GetByID(ctx context.Context, id string) (*models.PhotoReport, error) {
	query := `SELECT ` + photoReportColumns + ` FROM photo_reports WHERE id = $1`
	var report models.PhotoReport
	if err := r.db.GetContext(ctx, &report, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get photo report: %w", err)
	}
	itemQuery := `SELECT ` + photoItemColumns + ` FROM photo_report_items WHERE report_id = $1 ORDER BY created_at, id`
	if err := r.db.SelectContext(ctx, &report.Items, itemQuery, id); err != nil {
		return nil, fmt.Errorf("list photo report items: %w", err)
	}
	return &report, nil
}

// GetItem fetches one stored photo.
func (r *PhotoReportRepository) GetItem(ctx context.Context, id string) (*models.PhotoReportItem, error) {
	query := `SELECT ` + photoItemColumns + ` FROM photo_report_items WHERE id = $1`
	var item models.PhotoReportItem
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get photo report item: %w", err)
	}
	return &item, nil
}

// List returns reports matching the filter (latest first) with the total count. Items are not loaded.
func (r *PhotoReportRepository) List(ctx context.Context, filter models.PhotoReportFilter) ([]models.PhotoReport, int, error) {
	var p predicates
	if len(filter.Status) > 0 {
		p.add("status = ANY(?)", stringArray(filter.Status))
	}
	p.addIf(filter.ClientID, "client_id = ?")
	p.addIf(filter.EmployeeID, "employee_id = ?")
	p.addIf(filter.TaskID, "task_id = ?")
	if filter.From != nil {
		p.add("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		p.add("created_at < ?", *filter.To)
	}
	where, args := p.where(), p.args

	_, pageSize, offset := models.NormalizePage(filter.Page, filter.PageSize, 100)
	query := fmt.Sprintf("SELECT %s FROM photo_reports%s ORDER BY created_at DESC LIMIT %d OFFSET %d", photoReportColumns, where, pageSize, offset)
	var reports []models.PhotoReport
	if err := r.db.SelectContext(ctx, &reports, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list photo reports: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM photo_reports"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count photo reports: %w", err)
	}
	return reports, total, nil
}

// Review locks the report (and its task), asks decide for the outcome and applies it atomically.
func (r *PhotoReportRepository) Review(ctx context.Context, reportID string, decide ReviewDecider) (*models.PhotoReport, error) {
	var reviewed *models.PhotoReport
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		query := `SELECT ` + photoReportColumns + ` FROM photo_reports WHERE id = $1 FOR UPDATE`
		var report models.PhotoReport
		if err := tx.GetContext(ctx, &report, query, reportID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return err
			}
			return fmt.Errorf("lock photo report: %w", err)
		}
		var task *models.Task
		if report.TaskID != nil {
			locked, err := lockTask(ctx, tx, *report.TaskID)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return err
			}
			task = locked
		}

		change, err := decide(&report, task)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		const update = `UPDATE photo_reports SET status = $2, moderator_id = $3, rejected_reason = $4, reviewed_at = $5, updated_at = $5
		WHERE id = $1`
		if _, err := tx.ExecContext(ctx, update, report.ID, change.Status, change.ModeratorID, change.Reason, now); err != nil {
			return fmt.Errorf("update photo report: %w", err)
		}
		if change.Task != nil {
			change.Task.At = now
			if err := updateTaskStatus(ctx, tx, *change.Task); err != nil {
				return err
			}
		}

		report.Status = change.Status
		report.ModeratorID = &change.ModeratorID
		report.RejectedReason = change.Reason
		report.ReviewedAt = &now
		report.UpdatedAt = now
		reviewed = &report
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reviewed, nil
}

// StatsByClient aggregates reports created in [from, to) per client.
func (r *PhotoReportRepository) StatsByClient(ctx context.Context, from, to time.Time, clientID, employeeID string) ([]models.ClientPhotoStats, error) {
	var p predicates
	p.add("r.created_at >= ? AND r.created_at < ?", from, to)
	p.addIf(clientID, "r.client_id = ?")
	p.addIf(employeeID, "r.employee_id = ?")
	args := p.args
	query := `SELECT r.client_id, c.name AS client_name,
	COUNT(DISTINCT r.id) AS reports,
	COUNT(i.id) AS photos,
	COUNT(i.id) FILTER (WHERE i.is_high_quality) AS high_quality,
	COUNT(DISTINCT r.id) FILTER (WHERE r.status = 'submitted') AS submitted,
	COUNT(DISTINCT r.id) FILTER (WHERE r.status = 'approved') AS approved,
	COUNT(DISTINCT r.id) FILTER (WHERE r.status = 'rejected') AS rejected
	FROM photo_reports r
	JOIN clients c ON c.id = r.client_id
	LEFT JOIN photo_report_items i ON i.report_id = r.id` + p.where() + `
	GROUP BY r.client_id, c.name
	ORDER BY c.name`
	var stats []models.ClientPhotoStats
	if err := r.db.SelectContext(ctx, &stats, query, args...); err != nil {
		return nil, fmt.Errorf("photo report stats: %w", err)
	}
	return stats, nil
}
