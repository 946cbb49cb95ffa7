package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/fieldops-api/internal/dto"
	"github.com/noah-isme/fieldops-api/internal/models"
	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
	"github.com/noah-isme/fieldops-api/pkg/export"
)

// ExportFormat enumerates the download formats of task statistics.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string, summary ...string) ([]byte, error)
}

var statisticsColumns = []export.Column{
	{Key: "question", Title: "Question", Weight: 3},
	{Key: "type", Title: "Type", Weight: 1.2},
	{Key: "option", Title: "Option", Weight: 2.5},
	{Key: "count", Title: "Count", Weight: 0.8, Align: "R"},
	{Key: "percent", Title: "Percent", Weight: 0.8, Align: "R"},
	{Key: "answers", Title: "Answers", Weight: 0.8, Align: "R"},
}

// ExportService renders task statistics reports into downloadable files.
type ExportService struct {
	csv csvRenderer
	pdf pdfRenderer
}

// NewExportService constructs an ExportService; nil renderers fall back to the package defaults.
func NewExportService(csv csvRenderer, pdf pdfRenderer) *ExportService {
	if csv == nil {
		csv = export.NewCSVExporter(export.WithSemicolon(), export.WithBOM())
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{csv: csv, pdf: pdf}
}

// RenderTaskStatistics flattens the report to one row per option and renders it.
func (s *ExportService) RenderTaskStatistics(report *models.TaskStatisticsReport, format ExportFormat) (*dto.ExportFile, error) {
	if report == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "statistics not found")
	}
	dataset := statisticsDataset(report)
	name := exportFilename(report.TaskTitle, report.GeneratedAt)

	var (
		payload     []byte
		contentType string
		err         error
	)
	switch ExportFormat(strings.ToLower(string(format))) {
	case ExportFormatCSV, "":
		payload, err = s.csv.Render(dataset)
		contentType = "text/csv; charset=utf-8"
		name += ".csv"
	case ExportFormatPDF:
		summary := []string{
			fmt.Sprintf("Responses: %d", report.TotalResponses),
			fmt.Sprintf("Respondents: %d", report.TotalRespondent),
			"Generated: " + report.GeneratedAt.Format(time.RFC3339),
		}
		payload, err = s.pdf.Render(dataset, report.TaskTitle, summary...)
		contentType = "application/pdf"
		name += ".pdf"
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render statistics")
	}
	return &dto.ExportFile{Filename: name, ContentType: contentType, Content: payload}, nil
}

func statisticsDataset(report *models.TaskStatisticsReport) export.Dataset {
	dataset := export.Dataset{Columns: statisticsColumns}
	for _, question := range report.Questions {
		for _, option := range question.Options {
			dataset.Rows = append(dataset.Rows, map[string]string{
				"question": question.QuestionText,
				"type":     string(question.Type),
				"option":   option.Label,
				"count":    strconv.Itoa(option.Count),
				"percent":  strconv.FormatFloat(option.Percent, 'f', 1, 64),
				"answers":  strconv.Itoa(question.TotalAnswers),
			})
		}
	}
	return dataset
}

func exportFilename(title string, at time.Time) string {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return fmt.Sprintf("statistics_%s_%s", sanitizeFilename(title), at.Format("20060102_150405"))
}

func sanitizeFilename(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "task"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "\"", "")
	result := replacer.Replace(strings.TrimSpace(raw))
	if runes := []rune(result); len(runes) > 100 {
		return string(runes[:100])
	}
	return result
}
