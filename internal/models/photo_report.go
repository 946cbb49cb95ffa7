package models

import "time"

// PhotoReportStatus is the review state of a photo report.
type PhotoReportStatus string

const (
	PhotoReportDraft     PhotoReportStatus = "draft"
	PhotoReportSubmitted PhotoReportStatus = "submitted"
	PhotoReportRejected  PhotoReportStatus = "rejected"
	PhotoReportApproved  PhotoReportStatus = "approved"
)

// Valid reports whether s is a known report status.
func (s PhotoReportStatus) Valid() bool {
	switch s {
	case PhotoReportDraft, PhotoReportSubmitted, PhotoReportRejected, PhotoReportApproved:
		return true
	default:
		return false
	}
}

// ReviewAction is a moderator decision on a submitted report.
type ReviewAction string

const (
	ReviewApprove ReviewAction = "approve"
	ReviewReject  ReviewAction = "reject"
)

// PhotoReport is a batch of photos submitted for a client location.
type PhotoReport struct {
	ID             string            `db:"id" json:"id"`
	TaskID         *string           `db:"task_id" json:"task_id,omitempty"`
	ClientID       string            `db:"client_id" json:"client_id"`
	EmployeeID     string            `db:"employee_id" json:"employee_id"`
	Address        string            `db:"address" json:"address"`
	StandCount     int               `db:"stand_count" json:"stand_count"`
	Comment        string            `db:"comment" json:"comment"`
	Status         PhotoReportStatus `db:"status" json:"status"`
	ModeratorID    *string           `db:"moderator_id" json:"moderator_id,omitempty"`
	RejectedReason *string           `db:"rejected_reason" json:"rejected_reason,omitempty"`
	ReviewedAt     *time.Time        `db:"reviewed_at" json:"reviewed_at,omitempty"`
	CreatedAt      time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time         `db:"updated_at" json:"updated_at"`
	Items          []PhotoReportItem `db:"-" json:"items,omitempty"`
}

// PhotoReportItem is one stored photo with server-computed quality and location.
type PhotoReportItem struct {
	ID              string    `db:"id" json:"id"`
	ReportID        string    `db:"report_id" json:"report_id"`
	FilePath        string    `db:"file_path" json:"file_path"`
	MimeType        string    `db:"mime_type" json:"mime_type"`
	SizeBytes       int64     `db:"size_bytes" json:"size_bytes"`
	Width           int       `db:"width" json:"width"`
	Height          int       `db:"height" json:"height"`
	IsHighQuality   bool      `db:"is_high_quality" json:"is_high_quality"`
	Latitude        *float64  `db:"latitude" json:"latitude,omitempty"`
	Longitude       *float64  `db:"longitude" json:"longitude,omitempty"`
	DetectedAddress *string   `db:"detected_address" json:"detected_address,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	DownloadURL     string    `db:"-" json:"download_url,omitempty"`
}

// PhotoReportFilter constrains report listing.
type PhotoReportFilter struct {
	Status     []PhotoReportStatus
	ClientID   string
	EmployeeID string
	TaskID     string
	From       *time.Time
	To         *time.Time
	Page       int
	PageSize   int
}

// Evaluation is a moderator's per-criterion review of a photo report.
type Evaluation struct {
	ID                    string    `db:"id" json:"id"`
	ReportID              string    `db:"report_id" json:"report_id"`
	ModeratorID           string    `db:"moderator_id" json:"moderator_id"`
	FullnessComment       string    `db:"fullness_comment" json:"fullness_comment"`
	NoForeignGoodsComment string    `db:"no_foreign_goods_comment" json:"no_foreign_goods_comment"`
	PresentationComment   string    `db:"presentation_comment" json:"presentation_comment"`
	ImprovementTaskID     *string   `db:"improvement_task_id" json:"improvement_task_id,omitempty"`
	CreatedAt             time.Time `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time `db:"updated_at" json:"updated_at"`
}

// NeedsImprovement reports whether any criterion carries a remark.
func (e *Evaluation) NeedsImprovement() bool {
	return e.FullnessComment != "" || e.NoForeignGoodsComment != "" || e.PresentationComment != ""
}
