package dto

import "github.com/noah-isme/fieldops-api/internal/models"

// CreateSurveyRequest creates a survey together with its questions.
type CreateSurveyRequest struct {
	Title       string                  `json:"title" validate:"required,max=255"`
	Description string                  `json:"description"`
	TargetCount *int                    `json:"target_count" validate:"omitempty,gte=1"`
	Inactive    bool                    `json:"inactive"`
	Questions   []CreateQuestionRequest `json:"questions" validate:"dive"`
}

// AnswerInput is one question's answer in a submission. Default yes/no questions take "да" or "нет" in
// Text; multi-select default questions accept both separated by a comma.
type AnswerInput struct {
	QuestionID string   `json:"question_id" validate:"required"`
	Text       string   `json:"text"`
	ChoiceIDs  []string `json:"choice_ids"`
}

// SubmitSurveyRequest is an employee's complete response to a task's questions.
type SubmitSurveyRequest struct {
	ClientID *string       `json:"client_id" validate:"omitempty,uuid"`
	Answers  []AnswerInput `json:"answers" validate:"required,min=1,dive"`
}

// SubmitSurveyResult returns the stored answers and the task after the submission.
type SubmitSurveyResult struct {
	Task    TaskDetail      `json:"task"`
	Answers []models.Answer `json:"answers"`
}

// AddPhotosResult reports which photos were appended to an answer.
type AddPhotosResult struct {
	Accepted     []models.AnswerPhoto `json:"accepted"`
	Dropped      int                  `json:"dropped"`
	LimitReached bool                 `json:"limit_reached"`
}

// SurveyResultsQuery toggles the optional sections of survey results.
type SurveyResultsQuery struct {
	ByEmployee bool `form:"by_employee"`
}
