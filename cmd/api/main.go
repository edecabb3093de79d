package main

import (
	"fmt"
	"log"

	"github.com/go-playground/validator/v10"

	_ "github.com/noah-isme/libratrack-api/api/swagger"
	"github.com/noah-isme/libratrack-api/internal/handler"
	"github.com/noah-isme/libratrack-api/internal/repository"
	"github.com/noah-isme/libratrack-api/internal/router"
	"github.com/noah-isme/libratrack-api/internal/service"
	"github.com/noah-isme/libratrack-api/pkg/cache"
	"github.com/noah-isme/libratrack-api/pkg/config"
	"github.com/noah-isme/libratrack-api/pkg/database"
	"github.com/noah-isme/libratrack-api/pkg/logger"
	"github.com/noah-isme/libratrack-api/pkg/mailer"
	"github.com/noah-isme/libratrack-api/pkg/storage"
)

// @title LibraTrack API
// @version 1.0.0
// @description Library circulation management API
// @BasePath /api/v1
// @schemes http

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, dashboard caching disabled", "error", err)
		redisClient = nil
	}

	reportStorage, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init report storage", "error", err)
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	schoolRepo := repository.NewSchoolRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	bookRepo := repository.NewBookRepository(db)
	requestRepo := repository.NewBorrowRequestRepository(db)
	loanRepo := repository.NewLoanRepository(db)
	favoriteRepo := repository.NewFavoriteRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient)

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Dashboard.CacheTTL, logr, cfg.Dashboard.Enabled && redisClient != nil)

	settingsSvc := service.NewSettingsService(settingsRepo, auditRepo, logr)
	notificationSvc := service.NewNotificationService(notificationRepo, userRepo, settingsSvc, mailer.New(), metricsSvc, logr)
	dashboardSvc := service.NewDashboardService(bookRepo, loanRepo, requestRepo, cacheSvc, cfg.Dashboard.CacheTTL, metricsSvc, logr)

	authSvc := service.NewAuthService(userRepo, auditRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "libratrack-api",
		Audience:           []string{"libratrack"},
	})
	userSvc := service.NewUserService(userRepo, auditRepo, validate, logr)
	bookSvc := service.NewBookService(bookRepo, categoryRepo, auditRepo, validate, logr)
	categorySvc := service.NewCategoryService(categoryRepo, validate, logr)
	schoolSvc := service.NewSchoolService(schoolRepo, validate, logr)
	requestSvc := service.NewBorrowRequestService(requestRepo, loanRepo, bookRepo, userRepo, settingsSvc, notificationSvc, auditRepo, dashboardSvc, validate, logr)
	loanSvc := service.NewLoanService(loanRepo, userRepo, bookRepo, settingsSvc, notificationSvc, auditRepo, dashboardSvc, logr)
	favoriteSvc := service.NewFavoriteService(favoriteRepo, bookRepo, logr)
	reportSvc := service.NewReportService(loanRepo, userRepo, bookRepo, reportStorage, logr)
	logSvc := service.NewLogService(auditRepo, logr)

	handlers := router.Handlers{
		Auth:          handler.NewAuthHandler(authSvc),
		Users:         handler.NewUserHandler(userSvc),
		Books:         handler.NewBookHandler(bookSvc),
		Categories:    handler.NewCategoryHandler(categorySvc),
		Schools:       handler.NewSchoolHandler(schoolSvc),
		BorrowReqs:    handler.NewBorrowRequestHandler(requestSvc),
		Loans:         handler.NewLoanHandler(loanSvc),
		Favorites:     handler.NewFavoriteHandler(favoriteSvc),
		Notifications: handler.NewNotificationHandler(notificationSvc),
		Settings:      handler.NewSettingsHandler(settingsSvc),
		Logs:          handler.NewLogHandler(logSvc),
		Reports:       handler.NewReportHandler(reportSvc),
		Dashboard:     handler.NewDashboardHandler(dashboardSvc),
	}

	r := router.New(cfg, logr, authSvc, metricsSvc, auditRepo, handlers)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
