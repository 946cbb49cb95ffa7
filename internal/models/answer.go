package models

import "time"

// Answer is one question's submitted value for a task and client. Immutable except for appended photos.
type Answer struct {
	ID         string        `db:"id" json:"id"`
	TaskID     string        `db:"task_id" json:"task_id"`
	QuestionID string        `db:"question_id" json:"question_id"`
	UserID     string        `db:"user_id" json:"user_id"`
	ClientID   *string       `db:"client_id" json:"client_id,omitempty"`
	TextAnswer string        `db:"text_answer" json:"text_answer,omitempty"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at"`
	ChoiceIDs  []string      `db:"-" json:"choice_ids,omitempty"`
	Photos     []AnswerPhoto `db:"-" json:"photos,omitempty"`
}

// AnswerPhoto is a photo attached to an answer.
type AnswerPhoto struct {
	ID        string    `db:"id" json:"id"`
	AnswerID  string    `db:"answer_id" json:"answer_id"`
	FilePath  string    `db:"file_path" json:"file_path"`
	Width     int       `db:"width" json:"width"`
	Height    int       `db:"height" json:"height"`
	Address   *string   `db:"detected_address" json:"detected_address,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// AnswerFilter selects answers for aggregation.
type AnswerFilter struct {
	TaskID   string
	SurveyID string
	UserID   string
	ClientID string
}
