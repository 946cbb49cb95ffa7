package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/fieldops-api/api/swagger"
	"github.com/noah-isme/fieldops-api/internal/app"
	"github.com/noah-isme/fieldops-api/internal/handler"
	"github.com/noah-isme/fieldops-api/internal/middleware"
	"github.com/noah-isme/fieldops-api/pkg/config"
	"github.com/noah-isme/fieldops-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/fieldops-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/fieldops-api/pkg/middleware/requestid"
)

// @title FieldOps API
// @version 1.0.0
// @description Field tasks, surveys, photo reports and client rosters for merchandising teams
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	application, err := app.New(cfg, logr)
	if err != nil {
		logr.Fatal("failed to build application", zap.Error(err))
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	application.Start(ctx)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, time.Second))
	r.Use(middleware.ClientInfo())
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(application.Metrics))

	ops := handler.NewMetricsHandler(application.Metrics, map[string]handler.Probe{
		"database": application.DB.PingContext,
		"redis":    application.CacheRepo.Ping,
	})
	r.GET("/health", ops.Health)
	r.GET("/ready", ops.Ready)
	r.GET("/metrics", ops.Prometheus)

	if !cfg.IsProduction() {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r.Group(cfg.APIPrefix), handler.Handlers{
		Auth:         handler.NewAuthHandler(application.Auth),
		Users:        handler.NewUserHandler(application.UserService),
		Tasks:        handler.NewTaskHandler(application.Tasks),
		Answers:      handler.NewAnswerHandler(application.Submissions),
		Surveys:      handler.NewSurveyHandler(application.Surveys),
		Statistics:   handler.NewStatisticsHandler(application.Statistics),
		PhotoReports: handler.NewPhotoReportHandler(application.PhotoReports, application.Evaluations),
		Photos:       handler.NewPhotoHandler(application.PhotoIntake),
		Clients:      handler.NewClientHandler(application.Clients, application.ClientImport),
	}, handler.RouteDeps{Tokens: application.Auth, Audit: application.AuditLog})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Errorw("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}
