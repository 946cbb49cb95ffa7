// Package app assembles repositories and services from configuration. Both the HTTP server and the
// fieldctl CLI build on it.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/fieldops-api/internal/repository"
	"github.com/noah-isme/fieldops-api/internal/service"
	"github.com/noah-isme/fieldops-api/pkg/cache"
	"github.com/noah-isme/fieldops-api/pkg/config"
	"github.com/noah-isme/fieldops-api/pkg/database"
	"github.com/noah-isme/fieldops-api/pkg/imaging"
	"github.com/noah-isme/fieldops-api/pkg/jobs"
	"github.com/noah-isme/fieldops-api/pkg/storage"
)

const snapshotQueueName = "statistics-snapshots"

// App holds the wired service graph.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *sqlx.DB
	Redis  *redis.Client

	Users        *repository.UserRepository
	AuditLog     *repository.AuditRepository
	CacheRepo    *repository.CacheRepository
	Metrics      *service.MetricsService
	Auth         *service.AuthService
	UserService  *service.UserService
	Tasks        *service.TaskService
	Surveys      *service.SurveyService
	Submissions  *service.SurveySubmissionService
	Statistics   *service.StatisticsService
	PhotoIntake  *service.PhotoIntake
	PhotoReports *service.PhotoReportService
	Evaluations  *service.EvaluationService
	Clients      *service.ClientService
	ClientImport *service.ClientImportService

	snapshots *jobs.Queue[string]
}

// New connects to PostgreSQL and Redis and builds every service. Redis is optional: a failed connection
// disables the statistics cache instead of aborting.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	db, err := database.Open(context.Background(), cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	redisClient, err := cache.Open(context.Background(), cfg.Redis)
	if err != nil {
		logger.Warn("redis unavailable, statistics cache disabled", zap.Error(err))
		redisClient = nil
	}

	photoFiles, err := storage.NewLocalStorage(cfg.Photos.StorageDir)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("photo storage: %w", err)
	}
	importFiles, err := storage.NewLocalStorage(cfg.Imports.StorageDir)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("import storage: %w", err)
	}

	a := &App{Config: cfg, Logger: logger, DB: db, Redis: redisClient}
	a.wire(photoFiles, importFiles)
	return a, nil
}

func (a *App) wire(photoFiles, importFiles *storage.LocalStorage) {
	cfg, logger := a.Config, a.Logger
	validate := validator.New()

	a.Users = repository.NewUserRepository(a.DB)
	a.AuditLog = repository.NewAuditRepository(a.DB)
	sessions := repository.NewSessionRepository(a.DB)
	tasks := repository.NewTaskRepository(a.DB)
	questions := repository.NewQuestionRepository(a.DB)
	surveys := repository.NewSurveyRepository(a.DB)
	answers := repository.NewAnswerRepository(a.DB)
	reports := repository.NewPhotoReportRepository(a.DB)
	evaluations := repository.NewEvaluationRepository(a.DB)
	clients := repository.NewClientRepository(a.DB)
	snapshots := repository.NewStatisticsRepository(a.DB)

	a.Metrics = service.NewMetricsService()
	a.CacheRepo = repository.NewCacheRepository(a.Redis, cfg.Redis.KeyPrefix, logger)
	cacheSvc := service.NewCacheService(a.CacheRepo, a.Metrics, cfg.Statistics.CacheTTL, logger,
		cfg.Statistics.CacheEnabled && a.Redis != nil)

	a.PhotoIntake = service.NewPhotoIntake(photoFiles,
		imaging.NewInspector(cfg.Photos.MinWidth, cfg.Photos.MinHeight),
		storage.NewSignedURLSigner(cfg.Photos.SignedURLSecret, storage.AudiencePhotoDownload, cfg.Photos.SignedURLTTL),
		logger, service.PhotoIntakeConfig{
			MaxFileSize:  cfg.Photos.MaxFileSizeBytes,
			AllowedMIMEs: cfg.Photos.AllowedMIMEs,
			APIPrefix:    cfg.APIPrefix,
		})

	a.Statistics = service.NewStatisticsService(service.StatisticsStores{
		Tasks:       tasks,
		Questions:   questions,
		Answers:     answers,
		Surveys:     surveys,
		Reports:     reports,
		Evaluations: evaluations,
		Snapshots:   snapshots,
	}, service.NewExportService(nil, nil), cacheSvc, a.Metrics, logger)
	a.snapshots = jobs.NewQueue[string](snapshotQueueName, a.Statistics.HandleSnapshotJob, jobs.QueueConfig{
		Workers:    cfg.Jobs.Workers,
		MaxRetries: cfg.Jobs.MaxRetries,
		RetryDelay: cfg.Jobs.RetryDelay,
		Logger:     logger,
	})
	a.Statistics.AttachQueue(a.snapshots)
	a.Metrics.WatchQueue(snapshotQueueName, a.snapshots.Pending)

	a.Auth = service.NewAuthService(a.Users, sessions, a.AuditLog, validate, logger, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	a.UserService = service.NewUserService(a.Users, sessions, a.AuditLog, validate, logger)
	a.Tasks = service.NewTaskService(tasks, questions, a.Users, a.Statistics, a.AuditLog, a.Metrics, validate, logger)
	a.Surveys = service.NewSurveyService(surveys, questions, validate, logger)
	a.Submissions = service.NewSurveySubmissionService(tasks, questions, answers, a.PhotoIntake, a.AuditLog, a.Metrics,
		validate, logger, cfg.Photos.MaxPerAnswer)
	a.PhotoReports = service.NewPhotoReportService(service.PhotoReportDeps{
		Reports:   reports,
		Tasks:     tasks,
		Clients:   clients,
		Photos:    a.PhotoIntake,
		Snapshots: a.Statistics,
		Cache:     cacheSvc,
		Audit:     a.AuditLog,
		Metrics:   a.Metrics,
		Validator: validate,
		Logger:    logger,
		MaxPhotos: cfg.Photos.MaxPerReport,
	})
	a.Evaluations = service.NewEvaluationService(evaluations, reports, cacheSvc, a.AuditLog, logger)
	a.Clients = service.NewClientService(clients, logger)
	a.ClientImport = service.NewClientImportService(clients, a.Users, importFiles,
		storage.NewSignedURLSigner(cfg.Imports.TokenSecret, storage.AudienceClientImport, cfg.Imports.PreviewTTL),
		a.AuditLog, a.Metrics, logger, service.ClientImportConfig{MaxFileSize: cfg.Imports.MaxFileSizeBytes})
}

// Start launches the snapshot workers and the periodic removal of abandoned import previews.
func (a *App) Start(ctx context.Context) {
	a.snapshots.Start(ctx)

	interval := a.Config.Imports.PreviewTTL / 2
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := a.ClientImport.CleanupExpired(); err != nil {
					a.Logger.Warn("import cleanup failed", zap.Error(err))
				}
			}
		}
	}()
}

// Close stops the snapshot workers and releases connections.
func (a *App) Close() {
	a.snapshots.Stop()
	if err := a.CacheRepo.Close(); err != nil {
		a.Logger.Warn("failed to close redis", zap.Error(err))
	}
	if err := a.DB.Close(); err != nil {
		a.Logger.Warn("failed to close database", zap.Error(err))
	}
}
