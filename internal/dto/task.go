package dto

import "github.com/noah-isme/fieldops-api/internal/models"

// CreateTaskRequest is the payload moderators send to create a task.
type CreateTaskRequest struct {
	Title       string          `json:"title" validate:"required,max=255"`
	Description string          `json:"description"`
	Type        models.TaskType `json:"type" validate:"required,oneof=SURVEY EQUIPMENT_PHOTO SIMPLE_PHOTO"`
	AssignedTo  *string         `json:"assigned_to" validate:"omitempty,uuid"`
	ClientID    *string         `json:"client_id" validate:"omitempty,uuid"`
	SurveyID    *string         `json:"survey_id" validate:"omitempty,uuid"`
	TargetCount int             `json:"target_count" validate:"gte=0"`
	// Publish creates the task directly in SENT instead of DRAFT.
	Publish bool `json:"publish"`
}

// ReworkTaskRequest returns a task to the employee with a comment.
type ReworkTaskRequest struct {
	Comment string `json:"comment" validate:"required"`
}

// TaskFilter captures task list query parameters.
type TaskFilter struct {
	Status     string `form:"status"`
	Type       string `form:"type"`
	AssignedTo string `form:"assigned_to"`
	ClientID   string `form:"client_id"`
	Page       int    `form:"page"`
	PageSize   int    `form:"page_size"`
}

// TaskDetail enriches a task with its completion percentage.
type TaskDetail struct {
	models.Task
	CompletionPercent float64 `json:"completion_percent"`
}

// CreateChoiceRequest describes one option of a choice question.
type CreateChoiceRequest struct {
	Text      string `json:"text" validate:"required"`
	Order     int    `json:"order"`
	IsCorrect bool   `json:"is_correct"`
}

// CreateQuestionRequest adds a question to a task or survey.
type CreateQuestionRequest struct {
	Text     string                `json:"text" validate:"required"`
	Type     models.QuestionType   `json:"type" validate:"required,oneof=TEXT TEXTAREA RADIO CHECKBOX SELECT_SINGLE SELECT_MULTIPLE PHOTO"`
	Order    int                   `json:"order"`
	Required bool                  `json:"required"`
	Choices  []CreateChoiceRequest `json:"choices" validate:"dive"`
}
