package models

import (
	"math"
	"time"
)

// TaskType enumerates the kinds of assigned work.
type TaskType string

const (
	TaskTypeSurvey         TaskType = "SURVEY"
	TaskTypeEquipmentPhoto TaskType = "EQUIPMENT_PHOTO"
	TaskTypeSimplePhoto    TaskType = "SIMPLE_PHOTO"
)

// Valid reports whether t is a known task type.
func (t TaskType) Valid() bool {
	switch t {
	case TaskTypeSurvey, TaskTypeEquipmentPhoto, TaskTypeSimplePhoto:
		return true
	default:
		return false
	}
}

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusDraft     TaskStatus = "DRAFT"
	TaskStatusSent      TaskStatus = "SENT"
	TaskStatusRework    TaskStatus = "REWORK"
	TaskStatusOnCheck   TaskStatus = "ON_CHECK"
	TaskStatusCompleted TaskStatus = "COMPLETED"
)

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusDraft, TaskStatusSent, TaskStatusRework, TaskStatusOnCheck, TaskStatusCompleted:
		return true
	default:
		return false
	}
}

// Task is a unit of assigned work tracked through its status lifecycle.
type Task struct {
	ID               string     `db:"id" json:"id"`
	Title            string     `db:"title" json:"title"`
	Description      string     `db:"description" json:"description"`
	Type             TaskType   `db:"type" json:"type"`
	Status           TaskStatus `db:"status" json:"status"`
	IsActive         bool       `db:"is_active" json:"is_active"`
	AssignedTo       *string    `db:"assigned_to" json:"assigned_to,omitempty"`
	ClientID         *string    `db:"client_id" json:"client_id,omitempty"`
	SurveyID         *string    `db:"survey_id" json:"survey_id,omitempty"`
	CreatedBy        string     `db:"created_by" json:"created_by"`
	ModeratorComment *string    `db:"moderator_comment" json:"moderator_comment,omitempty"`
	TargetCount      int        `db:"target_count" json:"target_count"`
	CurrentCount     int        `db:"current_count" json:"current_count"`
	CompletedAt      *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// AcceptsSubmission reports whether another submission fits under the target.
func (t *Task) AcceptsSubmission() bool {
	return t.TargetCount <= 0 || t.CurrentCount < t.TargetCount
}

// CompletionPercent returns min(100, current*100/target), or 0 without a target.
func (t *Task) CompletionPercent() float64 {
	if t.TargetCount <= 0 {
		return 0
	}
	p := float64(t.CurrentCount) * 100 / float64(t.TargetCount)
	return math.Min(100, math.Round(p*10)/10)
}

// TaskFilter constrains task listing.
type TaskFilter struct {
	Status     []TaskStatus
	Type       TaskType
	AssignedTo string
	ClientID   string
	// VisibleTo limits results to tasks an employee may act on.
	VisibleTo string
	Page      int
	PageSize  int
}
