package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fieldops-api/internal/models"
)

func TestAggregateSingleChoice(t *testing.T) {
	question := models.Question{ID: "q1", Text: "Shelf brand", Type: models.QuestionRadio, Choices: []models.Choice{
		{ID: "c1", Text: "Alpha", Order: 1},
		{ID: "c2", Text: "Beta", Order: 2},
		{ID: "c3", Text: "Gamma", Order: 3},
	}}
	answers := []models.Answer{
		{QuestionID: "q1", ChoiceIDs: []string{"c2"}},
		{QuestionID: "q1", ChoiceIDs: []string{"c2"}},
		{QuestionID: "q1", ChoiceIDs: []string{"c1"}},
		{QuestionID: "other", ChoiceIDs: []string{"c1"}},
	}

	stats := AggregateQuestion(question, answers)
	assert.Equal(t, 3, stats.TotalAnswers)
	require.Len(t, stats.Options, 3)
	assert.Equal(t, "Beta", stats.Options[0].Label)
	assert.Equal(t, 66.5, stats.Options[0].Percent)
	assert.Equal(t, "Alpha", stats.Options[1].Label)
	assert.Equal(t, 33.5, stats.Options[1].Percent)
	assert.Equal(t, "Gamma", stats.Options[2].Label)
	assert.Equal(t, 0.0, stats.Options[2].Percent)
	assert.Equal(t, chartPalette[0], stats.Options[0].Color)
	assert.Equal(t, chartPalette[2], stats.Options[2].Color)
}

func TestAggregateMultiChoiceCountsEverySelection(t *testing.T) {
	question := models.Question{ID: "q1", Type: models.QuestionCheckbox, Choices: []models.Choice{
		{ID: "a", Text: "A", Order: 2},
		{ID: "b", Text: "B", Order: 1},
	}}
	answers := []models.Answer{
		{QuestionID: "q1", ChoiceIDs: []string{"a", "b"}},
		{QuestionID: "q1", ChoiceIDs: []string{"a", "b", "b"}},
	}

	stats := AggregateQuestion(question, answers)
	require.Len(t, stats.Options, 2)
	// equal counts fall back to choice order
	assert.Equal(t, "B", stats.Options[0].Label)
	assert.Equal(t, 2, stats.Options[0].Count)
	assert.Equal(t, 100.0, stats.Options[0].Percent)
	assert.Equal(t, 100.0, stats.Options[1].Percent)
}

func TestAggregateDefaultChoices(t *testing.T) {
	question := models.Question{ID: "q1", Type: models.QuestionRadio}
	answers := []models.Answer{
		{QuestionID: "q1", TextAnswer: "нет"},
		{QuestionID: "q1", TextAnswer: "Нет"},
		{QuestionID: "q1", TextAnswer: "да"},
	}

	stats := AggregateQuestion(question, answers)
	require.Len(t, stats.Options, 2)
	assert.Equal(t, "Нет", stats.Options[0].Label)
	assert.Equal(t, 2, stats.Options[0].Count)
	assert.Equal(t, "Да", stats.Options[1].Label)
	assert.Equal(t, 33.5, stats.Options[1].Percent)
}

func TestAggregateTextAndPhoto(t *testing.T) {
	text := models.Question{ID: "t", Type: models.QuestionTextarea}
	photo := models.Question{ID: "p", Type: models.QuestionPhoto}
	answers := []models.Answer{
		{QuestionID: "t", TextAnswer: "clean"},
		{QuestionID: "t", TextAnswer: "  "},
		{QuestionID: "p", Photos: []models.AnswerPhoto{{ID: "1"}, {ID: "2"}}},
		{QuestionID: "p"},
	}

	stats := AggregateQuestions([]models.Question{text, photo}, answers)
	require.Len(t, stats, 2)
	assert.Equal(t, "t", stats[0].QuestionID)
	assert.Equal(t, 1, stats[0].Options[0].Count)
	assert.Equal(t, 50.0, stats[0].Options[0].Percent)
	assert.Equal(t, 2, stats[1].TotalPhotos)
	assert.Equal(t, 1, stats[1].Options[0].Count)
}

func TestAggregateWithoutAnswers(t *testing.T) {
	question := models.Question{ID: "q1", Type: models.QuestionSelectSingle, Choices: []models.Choice{{ID: "c1", Text: "A"}}}
	stats := AggregateQuestion(question, nil)
	assert.Zero(t, stats.TotalAnswers)
	assert.Equal(t, 0.0, stats.Options[0].Percent)
}

func TestPercentOf(t *testing.T) {
	assert.Equal(t, 0.0, percentOf(1, 0))
	assert.Equal(t, 12.5, percentOf(1, 8))
	assert.Equal(t, 14.5, percentOf(1, 7))
	assert.Equal(t, 100.0, percentOf(3, 3))
}
