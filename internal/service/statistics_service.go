package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/fieldops-api/internal/dto"
	"github.com/noah-isme/fieldops-api/internal/models"
	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
	"github.com/noah-isme/fieldops-api/pkg/jobs"
)

const statsDateLayout = "2006-01-02"

type questionReader interface {
	ListForTask(ctx context.Context, taskID string, surveyID *string) ([]models.Question, error)
	ListForSurvey(ctx context.Context, surveyID string) ([]models.Question, error)
}

type answerReader interface {
	List(ctx context.Context, filter models.AnswerFilter) ([]models.Answer, error)
	ListSubmissionGroups(ctx context.Context, surveyID string) ([]models.SubmissionGroup, error)
}

type surveyReader interface {
	GetByID(ctx context.Context, id string) (*models.Survey, error)
}

type photoStatsReader interface {
	StatsByClient(ctx context.Context, from, to time.Time, clientID, employeeID string) ([]models.ClientPhotoStats, error)
}

type evaluationLookup interface {
	LatestByClients(ctx context.Context, clientIDs []string, from, to time.Time) (map[string]*models.Evaluation, error)
}

type snapshotStore interface {
	Upsert(ctx context.Context, stats *models.TaskStatistics) error
	GetByTaskID(ctx context.Context, taskID string) (*models.TaskStatistics, error)
	CompletedTaskIDs(ctx context.Context) ([]string, error)
}

type snapshotQueue interface {
	Submit(taskID string) (string, error)
}

// StatisticsStores groups the read models the statistics service aggregates over.
type StatisticsStores struct {
	Tasks       taskReader
	Questions   questionReader
	Answers     answerReader
	Surveys     surveyReader
	Reports     photoStatsReader
	Evaluations evaluationLookup
	Snapshots   snapshotStore
}

// StatisticsService serves task, survey and photo report statistics and maintains task snapshots.
type StatisticsService struct {
	stores   StatisticsStores
	exporter *ExportService
	cache    *CacheService
	metrics  *MetricsService
	logger   *zap.Logger
	queue    snapshotQueue
	now      func() time.Time
}

// NewStatisticsService wires the aggregation read paths. exporter, cache and metrics may be nil; a nil
// exporter falls back to the default CSV and PDF renderers.
func NewStatisticsService(stores StatisticsStores, exporter *ExportService, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *StatisticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if exporter == nil {
		exporter = NewExportService(nil, nil)
	}
	return &StatisticsService{
		stores:   stores,
		exporter: exporter,
		cache:    cache,
		metrics:  metrics,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// AttachQueue routes ScheduleSnapshot through the background queue.
func (s *StatisticsService) AttachQueue(queue snapshotQueue) {
	s.queue = queue
}

// TaskStatistics aggregates every question of the task. Completed tasks are served from their snapshot.
func (s *StatisticsService) TaskStatistics(ctx context.Context, taskID string, principal *models.JWTClaims) (*models.TaskStatisticsReport, error) {
	if !principal.IsModerator() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only moderators can view statistics")
	}
	task, err := s.stores.Tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, storeError(err, "task not found", "failed to load task")
	}
	if task.Status == models.TaskStatusCompleted {
		if report, ok := s.loadSnapshot(ctx, task.ID); ok {
			return report, nil
		}
	}
	return s.buildTaskReport(ctx, task)
}

// ExportTaskStatistics renders the task statistics as CSV or PDF.
func (s *StatisticsService) ExportTaskStatistics(ctx context.Context, taskID string, format ExportFormat, principal *models.JWTClaims) (*dto.ExportFile, error) {
	report, err := s.TaskStatistics(ctx, taskID, principal)
	if err != nil {
		return nil, err
	}
	return s.exporter.RenderTaskStatistics(report, format)
}

// SurveyResults aggregates a survey across all tasks using it, optionally split per employee.
func (s *StatisticsService) SurveyResults(ctx context.Context, surveyID string, query dto.SurveyResultsQuery, principal *models.JWTClaims) (*models.SurveyResults, error) {
	if !principal.IsModerator() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only moderators can view survey results")
	}
	survey, err := s.stores.Surveys.GetByID(ctx, surveyID)
	if err != nil {
		return nil, storeError(err, "survey not found", "failed to load survey")
	}
	questions, err := s.stores.Questions.ListForSurvey(ctx, survey.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load questions")
	}
	answers, err := s.stores.Answers.List(ctx, models.AnswerFilter{SurveyID: survey.ID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load answers")
	}
	submissions, err := s.stores.Answers.ListSubmissionGroups(ctx, survey.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submissions")
	}

	results := &models.SurveyResults{
		SurveyID:    survey.ID,
		Title:       survey.Title,
		Overall:     AggregateQuestions(questions, answers),
		Submissions: submissions,
	}
	if query.ByEmployee {
		byUser := make(map[string][]models.Answer)
		for _, answer := range answers {
			byUser[answer.UserID] = append(byUser[answer.UserID], answer)
		}
		results.ByEmployee = make(map[string][]models.QuestionStats, len(byUser))
		for userID, userAnswers := range byUser {
			results.ByEmployee[userID] = AggregateQuestions(questions, userAnswers)
		}
	}
	return results, nil
}

// PhotoStats returns the single-date panel and, when a range is given, the range panel. Without any date
// the single-date panel covers today.
func (s *StatisticsService) PhotoStats(ctx context.Context, filter dto.PhotoStatsFilter, principal *models.JWTClaims) (*models.PhotoStatsResult, error) {
	if !principal.IsModerator() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only moderators can view photo statistics")
	}
	query, err := parsePhotoStatsFilter(filter, s.now())
	if err != nil {
		return nil, err
	}

	result := &models.PhotoStatsResult{}
	if query.Date != nil {
		panel, err := s.photoPanel(ctx, *query.Date, query.Date.AddDate(0, 0, 1), query.ClientID, query.EmployeeID)
		if err != nil {
			return nil, err
		}
		result.Date = panel
	}
	if query.RangeStart != nil {
		panel, err := s.photoPanel(ctx, *query.RangeStart, query.RangeEnd.AddDate(0, 0, 1), query.ClientID, query.EmployeeID)
		if err != nil {
			return nil, err
		}
		result.Range = panel
	}
	return result, nil
}

// ScheduleSnapshot queues regeneration of a task's snapshot. Failures are logged; the snapshot can be
// rebuilt later with RegenerateAll.
func (s *StatisticsService) ScheduleSnapshot(taskID string) {
	if s.queue == nil {
		s.logger.Warn("statistics queue not attached, snapshot skipped", zap.String("task_id", taskID))
		return
	}
	if _, err := s.queue.Submit(taskID); err != nil {
		s.logger.Warn("failed to queue statistics snapshot", zap.String("task_id", taskID), zap.Error(err))
	}
}

// HandleSnapshotJob is the queue handler for snapshot jobs.
func (s *StatisticsService) HandleSnapshotJob(ctx context.Context, job jobs.Job[string]) error {
	return s.RegenerateSnapshot(ctx, job.Payload)
}

// RegenerateSnapshot recomputes and stores the statistics snapshot of one task.
func (s *StatisticsService) RegenerateSnapshot(ctx context.Context, taskID string) error {
	start := time.Now()
	task, err := s.stores.Tasks.GetByID(ctx, taskID)
	if err != nil {
		return storeError(err, "task not found", "failed to load task")
	}
	report, err := s.buildTaskReport(ctx, task)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode statistics snapshot: %w", err)
	}
	snapshot := &models.TaskStatistics{
		TaskID:         task.ID,
		TotalResponses: report.TotalResponses,
		SurveyStats:    types.JSONText(payload),
	}
	if err := s.stores.Snapshots.Upsert(ctx, snapshot); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store statistics snapshot")
	}
	s.metrics.ObserveSnapshot(time.Since(start))
	s.logger.Info("statistics snapshot stored", zap.String("task_id", task.ID), zap.Int("responses", report.TotalResponses))
	return nil
}

// RegenerateAll rebuilds the snapshot of every completed task and returns how many succeeded.
func (s *StatisticsService) RegenerateAll(ctx context.Context) (int, error) {
	ids, err := s.stores.Snapshots.CompletedTaskIDs(ctx)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list completed tasks")
	}
	var (
		done int
		errs []error
	)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := s.RegenerateSnapshot(ctx, id); err != nil {
			s.logger.Warn("snapshot regeneration failed", zap.String("task_id", id), zap.Error(err))
			errs = append(errs, fmt.Errorf("task %s: %w", id, err))
			continue
		}
		done++
	}
	return done, errors.Join(errs...)
}

func (s *StatisticsService) loadSnapshot(ctx context.Context, taskID string) (*models.TaskStatisticsReport, bool) {
	if s.stores.Snapshots == nil {
		return nil, false
	}
	snapshot, err := s.stores.Snapshots.GetByTaskID(ctx, taskID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("failed to load statistics snapshot", zap.String("task_id", taskID), zap.Error(err))
		}
		return nil, false
	}
	var report models.TaskStatisticsReport
	if err := snapshot.SurveyStats.Unmarshal(&report); err != nil {
		s.logger.Warn("corrupt statistics snapshot", zap.String("task_id", taskID), zap.Error(err))
		return nil, false
	}
	report.FromSnapshot = true
	return &report, true
}

func (s *StatisticsService) buildTaskReport(ctx context.Context, task *models.Task) (*models.TaskStatisticsReport, error) {
	questions, err := s.stores.Questions.ListForTask(ctx, task.ID, task.SurveyID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load questions")
	}
	answers, err := s.stores.Answers.List(ctx, models.AnswerFilter{TaskID: task.ID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load answers")
	}

	// answers of one submission share user, client and timestamp
	submissions := make(map[string]struct{})
	respondents := make(map[string]struct{})
	for _, answer := range answers {
		client := ""
		if answer.ClientID != nil {
			client = *answer.ClientID
		}
		submissions[fmt.Sprintf("%s|%s|%d", answer.UserID, client, answer.CreatedAt.UnixNano())] = struct{}{}
		respondents[answer.UserID] = struct{}{}
	}
	return &models.TaskStatisticsReport{
		TaskID:          task.ID,
		TaskTitle:       task.Title,
		TotalResponses:  len(submissions),
		TotalRespondent: len(respondents),
		Questions:       AggregateQuestions(questions, answers),
		GeneratedAt:     s.now(),
	}, nil
}

func (s *StatisticsService) photoPanel(ctx context.Context, from, to time.Time, clientID, employeeID string) (*models.PhotoStatsPanel, error) {
	cached, key := s.cache.LookupPhotoPanel(ctx, from, to, clientID, employeeID)
	if cached != nil {
		return cached, nil
	}

	rows, err := s.stores.Reports.StatsByClient(ctx, from, to, clientID, employeeID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate photo reports")
	}
	if len(rows) > 0 && s.stores.Evaluations != nil {
		ids := make([]string, len(rows))
		for i, row := range rows {
			ids[i] = row.ClientID
		}
		latest, err := s.stores.Evaluations.LatestByClients(ctx, ids, from, to)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load evaluations")
		}
		for i := range rows {
			rows[i].LatestEvaluation = latest[rows[i].ClientID]
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Reports != rows[j].Reports {
			return rows[i].Reports > rows[j].Reports
		}
		return rows[i].ClientName < rows[j].ClientName
	})

	panel := &models.PhotoStatsPanel{From: from, To: to, Clients: rows, Totals: models.ClientPhotoStats{ClientName: "Total"}}
	if panel.Clients == nil {
		panel.Clients = []models.ClientPhotoStats{}
	}
	for _, row := range rows {
		panel.Totals.Reports += row.Reports
		panel.Totals.Photos += row.Photos
		panel.Totals.HighQuality += row.HighQuality
		panel.Totals.Submitted += row.Submitted
		panel.Totals.Approved += row.Approved
		panel.Totals.Rejected += row.Rejected
	}
	s.cache.StorePhotoPanel(ctx, key, panel)
	return panel, nil
}

// parsePhotoStatsFilter validates the YYYY-MM-DD parameters. No date may lie after today and a range
// needs both ends with start <= end.
func parsePhotoStatsFilter(filter dto.PhotoStatsFilter, now time.Time) (*models.PhotoStatsQuery, error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	query := &models.PhotoStatsQuery{
		ClientID:   strings.TrimSpace(filter.ClientID),
		EmployeeID: strings.TrimSpace(filter.EmployeeID),
	}
	var err error
	if query.Date, err = parseStatsDate("date", filter.Date); err != nil {
		return nil, err
	}
	if query.RangeStart, err = parseStatsDate("range_start", filter.RangeStart); err != nil {
		return nil, err
	}
	if query.RangeEnd, err = parseStatsDate("range_end", filter.RangeEnd); err != nil {
		return nil, err
	}
	for _, bound := range []struct {
		field string
		value *time.Time
	}{{"date", query.Date}, {"range_start", query.RangeStart}, {"range_end", query.RangeEnd}} {
		if bound.value != nil && bound.value.After(today) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s must not be in the future", bound.field))
		}
	}
	if (query.RangeStart == nil) != (query.RangeEnd == nil) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "range_start and range_end must be given together")
	}
	if query.RangeStart != nil && query.RangeStart.After(*query.RangeEnd) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "range_start must not be after range_end")
	}
	if query.Date == nil && query.RangeStart == nil {
		query.Date = &today
	}
	return query, nil
}

func parseStatsDate(field, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(statsDateLayout, raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s must use YYYY-MM-DD", field))
	}
	return &parsed, nil
}
