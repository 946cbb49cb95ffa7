package service

import (
	"math"
	"sort"
	"strings"

	"github.com/noah-isme/fieldops-api/internal/models"
)

// chartPalette colours option buckets by display position.
var chartPalette = []string{
	"#FF6384", "#36A2EB", "#FFCE56", "#4BC0C0", "#9966FF",
	"#FF9F40", "#7B68EE", "#00CED1", "#FFD700", "#8B4513",
}

// Default options offered by choice questions that define none. Answers store the lower-case value.
const (
	defaultYes = "да"
	defaultNo  = "нет"
)

var defaultChoiceLabels = map[string]string{defaultYes: "Да", defaultNo: "Нет"}

const textResponsesLabel = "Text responses"

// percentOf returns count/total*100 rounded to the nearest half percent, or 0 without answers.
func percentOf(count, total int) float64 {
	if total <= 0 {
		return 0
	}
	p := float64(count) * 100 / float64(total)
	return math.Round(p*2) / 2
}

// AggregateQuestion tallies answers of a single question. Answers for other questions are ignored.
func AggregateQuestion(question models.Question, answers []models.Answer) models.QuestionStats {
	own := make([]models.Answer, 0, len(answers))
	for _, answer := range answers {
		if answer.QuestionID == question.ID {
			own = append(own, answer)
		}
	}

	stats := models.QuestionStats{
		QuestionID:   question.ID,
		QuestionText: question.Text,
		Type:         question.Type,
		TotalAnswers: len(own),
		Options:      []models.OptionStat{},
	}

	switch question.Type.Kind() {
	case models.KindSingleChoice, models.KindMultiChoice:
		if len(question.Choices) > 0 {
			stats.Options = tallyChoices(question.Choices, own)
		} else {
			stats.Options = tallyDefaultChoices(own)
		}
	case models.KindText:
		filled := 0
		for _, answer := range own {
			if strings.TrimSpace(answer.TextAnswer) != "" {
				filled++
			}
		}
		stats.Options = []models.OptionStat{{Label: textResponsesLabel, Count: filled}}
	case models.KindPhoto:
		withPhotos := 0
		for _, answer := range own {
			if len(answer.Photos) > 0 {
				withPhotos++
			}
			stats.TotalPhotos += len(answer.Photos)
		}
		stats.Options = []models.OptionStat{{Label: "Photos", Count: withPhotos}}
	case models.KindUnknown:
	}

	for i := range stats.Options {
		stats.Options[i].Percent = percentOf(stats.Options[i].Count, stats.TotalAnswers)
		stats.Options[i].Color = chartPalette[i%len(chartPalette)]
	}
	return stats
}

// AggregateQuestions runs AggregateQuestion for each question in the given order.
func AggregateQuestions(questions []models.Question, answers []models.Answer) []models.QuestionStats {
	byQuestion := make(map[string][]models.Answer, len(questions))
	for _, answer := range answers {
		byQuestion[answer.QuestionID] = append(byQuestion[answer.QuestionID], answer)
	}
	result := make([]models.QuestionStats, 0, len(questions))
	for _, question := range questions {
		result = append(result, AggregateQuestion(question, byQuestion[question.ID]))
	}
	return result
}

type choiceTally struct {
	choice models.Choice
	count  int
}

func tallyChoices(choices []models.Choice, answers []models.Answer) []models.OptionStat {
	tallies := make([]choiceTally, len(choices))
	index := make(map[string]int, len(choices))
	for i, choice := range choices {
		tallies[i] = choiceTally{choice: choice}
		index[choice.ID] = i
	}
	for _, answer := range answers {
		seen := make(map[string]bool, len(answer.ChoiceIDs))
		for _, id := range answer.ChoiceIDs {
			if i, ok := index[id]; ok && !seen[id] {
				tallies[i].count++
				seen[id] = true
			}
		}
	}

	sort.SliceStable(tallies, func(i, j int) bool {
		a, b := tallies[i], tallies[j]
		if a.count != b.count {
			return a.count > b.count
		}
		if a.choice.Order != b.choice.Order {
			return a.choice.Order < b.choice.Order
		}
		return a.choice.ID < b.choice.ID
	})

	options := make([]models.OptionStat, 0, len(tallies))
	for _, tally := range tallies {
		options = append(options, models.OptionStat{ChoiceID: tally.choice.ID, Label: tally.choice.Text, Count: tally.count})
	}
	return options
}

func tallyDefaultChoices(answers []models.Answer) []models.OptionStat {
	counts := map[string]int{}
	for _, answer := range answers {
		for value := range defaultValues(answer.TextAnswer) {
			counts[value]++
		}
	}
	options := []models.OptionStat{
		{Label: defaultChoiceLabels[defaultYes], Count: counts[defaultYes]},
		{Label: defaultChoiceLabels[defaultNo], Count: counts[defaultNo]},
	}
	if options[1].Count > options[0].Count {
		options[0], options[1] = options[1], options[0]
	}
	return options
}

// defaultValues parses a stored default-choice answer ("да", "нет" or "да,нет").
func defaultValues(raw string) map[string]bool {
	values := map[string]bool{}
	for _, part := range strings.Split(raw, ",") {
		value := strings.ToLower(strings.TrimSpace(part))
		if _, ok := defaultChoiceLabels[value]; ok {
			values[value] = true
		}
	}
	return values
}
