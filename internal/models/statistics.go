package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// OptionStat is one tallied bucket of a question.
type OptionStat struct {
	ChoiceID string  `json:"choice_id,omitempty"`
	Label    string  `json:"label"`
	Count    int     `json:"count"`
	Percent  float64 `json:"percent"`
	Color    string  `json:"color"`
}

// QuestionStats is the aggregation output for one question.
type QuestionStats struct {
	QuestionID   string       `json:"question_id"`
	QuestionText string       `json:"question_text"`
	Type         QuestionType `json:"type"`
	TotalAnswers int          `json:"total_answers"`
	TotalPhotos  int          `json:"total_photos,omitempty"`
	Options      []OptionStat `json:"options"`
}

// TaskStatisticsReport aggregates every question of a task.
type TaskStatisticsReport struct {
	TaskID          string          `json:"task_id"`
	TaskTitle       string          `json:"task_title"`
	TotalResponses  int             `json:"total_responses"`
	TotalRespondent int             `json:"total_respondents"`
	Questions       []QuestionStats `json:"questions"`
	GeneratedAt     time.Time       `json:"generated_at"`
	FromSnapshot    bool            `json:"-"`
}

// TaskStatistics is the persisted snapshot of a completed task's aggregation.
type TaskStatistics struct {
	ID             string         `db:"id" json:"id"`
	TaskID         string         `db:"task_id" json:"task_id"`
	TotalResponses int            `db:"total_responses" json:"total_responses"`
	SurveyStats    types.JSONText `db:"survey_stats" json:"survey_stats"`
	LastUpdated    time.Time      `db:"last_updated" json:"last_updated"`
}

// SurveyResults combines company-wide and per-employee aggregation for a survey.
type SurveyResults struct {
	SurveyID    string                     `json:"survey_id"`
	Title       string                     `json:"title"`
	Overall     []QuestionStats            `json:"overall"`
	ByEmployee  map[string][]QuestionStats `json:"by_employee,omitempty"`
	Submissions []SubmissionGroup          `json:"submissions"`
}

// SubmissionGroup describes one employee's submission for one client on one day.
type SubmissionGroup struct {
	TaskID       string    `db:"task_id" json:"task_id"`
	ClientID     *string   `db:"client_id" json:"client_id,omitempty"`
	ClientName   *string   `db:"client_name" json:"client_name,omitempty"`
	UserID       string    `db:"user_id" json:"user_id"`
	UserFullName string    `db:"user_full_name" json:"user_full_name"`
	Day          time.Time `db:"day" json:"day"`
	AnswerCount  int       `db:"answer_count" json:"answer_count"`
}

// PhotoStatsQuery filters the photo report statistics endpoint.
type PhotoStatsQuery struct {
	ClientID   string
	EmployeeID string
	Date       *time.Time
	RangeStart *time.Time
	RangeEnd   *time.Time
}

// ClientPhotoStats is one client's row in a statistics panel.
type ClientPhotoStats struct {
	ClientID         string      `db:"client_id" json:"client_id"`
	ClientName       string      `db:"client_name" json:"client_name"`
	Reports          int         `db:"reports" json:"reports"`
	Photos           int         `db:"photos" json:"photos"`
	HighQuality      int         `db:"high_quality" json:"high_quality"`
	Submitted        int         `db:"submitted" json:"submitted"`
	Approved         int         `db:"approved" json:"approved"`
	Rejected         int         `db:"rejected" json:"rejected"`
	LatestEvaluation *Evaluation `db:"-" json:"latest_evaluation,omitempty"`
}

// PhotoStatsPanel is the result for one date window.
type PhotoStatsPanel struct {
	From    time.Time          `json:"from"`
	To      time.Time          `json:"to"`
	Totals  ClientPhotoStats   `json:"totals"`
	Clients []ClientPhotoStats `json:"clients"`
}

// PhotoStatsResult holds the single-date and range panels.
type PhotoStatsResult struct {
	Date  *PhotoStatsPanel `json:"date,omitempty"`
	Range *PhotoStatsPanel `json:"range,omitempty"`
}
