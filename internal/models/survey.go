package models

import "time"

// QuestionType enumerates supported question kinds.
type QuestionType string

const (
	QuestionText           QuestionType = "TEXT"
	QuestionTextarea       QuestionType = "TEXTAREA"
	QuestionRadio          QuestionType = "RADIO"
	QuestionCheckbox       QuestionType = "CHECKBOX"
	QuestionSelectSingle   QuestionType = "SELECT_SINGLE"
	QuestionSelectMultiple QuestionType = "SELECT_MULTIPLE"
	QuestionPhoto          QuestionType = "PHOTO"
)

// QuestionKind groups question types by how their answers are stored and tallied.
type QuestionKind int

const (
	KindUnknown QuestionKind = iota
	KindText
	KindSingleChoice
	KindMultiChoice
	KindPhoto
)

// Kind classifies the question type.
func (t QuestionType) Kind() QuestionKind {
	switch t {
	case QuestionText, QuestionTextarea:
		return KindText
	case QuestionRadio, QuestionSelectSingle:
		return KindSingleChoice
	case QuestionCheckbox, QuestionSelectMultiple:
		return KindMultiChoice
	case QuestionPhoto:
		return KindPhoto
	default:
		return KindUnknown
	}
}

// IsChoice reports whether answers reference choices.
func (t QuestionType) IsChoice() bool {
	k := t.Kind()
	return k == KindSingleChoice || k == KindMultiChoice
}

// Survey groups questions and tracks a response target.
type Survey struct {
	ID          string    `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	TargetCount *int      `db:"target_count" json:"target_count,omitempty"`
	CreatedBy   string    `db:"created_by" json:"created_by"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// SurveyProgress pairs a survey with its collected responses.
type SurveyProgress struct {
	Survey
	Completed int     `db:"completed" json:"completed"`
	Percent   float64 `db:"-" json:"percent"`
}

// Question belongs to exactly one of a survey or a task.
type Question struct {
	ID        string       `db:"id" json:"id"`
	SurveyID  *string      `db:"survey_id" json:"survey_id,omitempty"`
	TaskID    *string      `db:"task_id" json:"task_id,omitempty"`
	Text      string       `db:"text" json:"text"`
	Type      QuestionType `db:"type" json:"type"`
	Order     int          `db:"sort_order" json:"order"`
	Required  bool         `db:"required" json:"required"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
	Choices   []Choice     `db:"-" json:"choices,omitempty"`
}

// Choice is a selectable option of a choice-type question.
type Choice struct {
	ID         string `db:"id" json:"id"`
	QuestionID string `db:"question_id" json:"question_id"`
	Text       string `db:"text" json:"text"`
	Order      int    `db:"sort_order" json:"order"`
	IsCorrect  bool   `db:"is_correct" json:"is_correct"`
}
