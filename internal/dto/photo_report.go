package dto

import "github.com/noah-isme/fieldops-api/internal/models"

// CreatePhotoReportRequest carries the report header sent alongside the photos.
type CreatePhotoReportRequest struct {
	TaskID     *string `form:"task_id" json:"task_id" validate:"omitempty,uuid"`
	ClientID   string  `form:"client_id" json:"client_id" validate:"required,uuid"`
	Address    string  `form:"address" json:"address"`
	StandCount int     `form:"stand_count" json:"stand_count" validate:"gte=0"`
	Comment    string  `form:"comment" json:"comment"`
	// Draft keeps the report editable by its author until it is submitted.
	Draft bool `form:"draft" json:"draft"`
}

// ReviewPhotoReportRequest is a moderator's decision.
type ReviewPhotoReportRequest struct {
	Action models.ReviewAction `json:"action" validate:"required,oneof=approve reject"`
	Reason string              `json:"reason"`
}

// PhotoReportFilter captures report list query parameters.
type PhotoReportFilter struct {
	Status     string `form:"status"`
	ClientID   string `form:"client_id"`
	EmployeeID string `form:"employee_id"`
	TaskID     string `form:"task_id"`
	From       string `form:"from"`
	To         string `form:"to"`
	Page       int    `form:"page"`
	PageSize   int    `form:"page_size"`
}

// CreateEvaluationRequest holds the per-criterion remarks. Any non-empty remark spawns an improvement task.
type CreateEvaluationRequest struct {
	FullnessComment       string `json:"fullness_comment"`
	NoForeignGoodsComment string `json:"no_foreign_goods_comment"`
	PresentationComment   string `json:"presentation_comment"`
}

// EvaluationResult returns the stored evaluation and the spawned task, if any.
type EvaluationResult struct {
	Evaluation      models.Evaluation `json:"evaluation"`
	ImprovementTask *models.Task      `json:"improvement_task,omitempty"`
}

// PhotoStatsFilter captures the statistics query. Dates use YYYY-MM-DD.
type PhotoStatsFilter struct {
	ClientID   string `form:"client_id"`
	EmployeeID string `form:"employee_id"`
	Date       string `form:"date"`
	RangeStart string `form:"range_start"`
	RangeEnd   string `form:"range_end"`
}
