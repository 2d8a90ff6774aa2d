// Package app assembles repositories, services and the HTTP router from
// configuration. The API server and clubctl share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/gliding-club-api/internal/repository"
	"github.com/noah-isme/gliding-club-api/internal/service"
	"github.com/noah-isme/gliding-club-api/migrations"
	"github.com/noah-isme/gliding-club-api/pkg/cache"
	"github.com/noah-isme/gliding-club-api/pkg/config"
	"github.com/noah-isme/gliding-club-api/pkg/database"
	"github.com/noah-isme/gliding-club-api/pkg/export"
	"github.com/noah-isme/gliding-club-api/pkg/jobs"
	"github.com/noah-isme/gliding-club-api/pkg/mailer"
	"github.com/noah-isme/gliding-club-api/pkg/storage"
)

const emailQueueName = "email"

// Repositories groups the sqlx and Redis repositories.
type Repositories struct {
	Users         *repository.UserRepository
	Records       *repository.TrainingRecordRepository
	Briefings     *repository.GroundBriefingRepository
	Catalog       *repository.CatalogRepository
	Audit         *repository.AuditRepository
	Notifications *repository.NotificationRepository
	Cache         *repository.CacheRepository
}

// Services groups the domain services.
type Services struct {
	Metrics       *service.MetricsService
	Cache         *service.CacheService
	Lockout       *service.LockoutService
	Auth          *service.AuthService
	Social        *service.SocialLoginService
	Users         *service.UserService
	Profiles      *service.ProfileService
	Catalog       *service.CatalogService
	Records       *service.TrainingRecordService
	Briefings     *service.GroundBriefingService
	Exports       *service.ExportService
	Dashboards    *service.DashboardService
	Notifications *service.NotificationService
	Audit         *service.AuditService
	Health        *service.HealthService
}

// App owns every long-lived resource of a process.
type App struct {
	Config       *config.Config
	Logger       *zap.Logger
	DB           *sqlx.DB
	Redis        *redis.Client
	Repositories Repositories
	Services     Services
	Queue        *jobs.Queue
}

// New connects to the database and Redis and builds the service graph.
// Redis is optional: without it lockout and dashboard caching are disabled.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	a := &App{Config: cfg, Logger: logger, DB: db}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logger.Warn("redis unavailable, caching and login lockout disabled", zap.Error(err))
	} else {
		a.Redis = redisClient
	}

	a.Repositories = Repositories{
		Users:         repository.NewUserRepository(db),
		Records:       repository.NewTrainingRecordRepository(db),
		Briefings:     repository.NewGroundBriefingRepository(db),
		Catalog:       repository.NewCatalogRepository(db),
		Audit:         repository.NewAuditRepository(db),
		Notifications: repository.NewNotificationRepository(db),
		Cache:         repository.NewCacheRepository(a.Redis, logger),
	}

	if err := a.buildServices(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) buildServices(ctx context.Context) error {
	cfg := a.Config
	repos := a.Repositories
	logger := a.Logger
	validate := service.NewValidator()

	metrics := service.NewMetricsService()
	var cacheRepo service.CacheRepository
	if a.Redis != nil {
		cacheRepo = repos.Cache
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Dashboard.CacheTTL, logger)

	var throttle *service.LockoutService
	if a.Redis != nil {
		throttle = service.NewLockoutService(repos.Cache, cfg.Lockout.FailureLimit, cfg.Lockout.CoolOff, logger)
	}

	authSvc := service.NewAuthService(repos.Users, throttle, metrics, validate, logger, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "gliding-club-api",
	})

	stateSigner := storage.NewSignedURLSigner(cfg.OAuth.StateSecret, cfg.OAuth.StateTTL)
	var social *service.SocialLoginService
	if providers := service.ConfiguredProviders(cfg.OAuth); len(providers) > 0 {
		social = service.NewSocialLoginService(repos.Users, authSvc, stateSigner, metrics, logger, providers...)
	}

	store, err := newObjectStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	fileSigner := storage.NewSignedURLSigner(cfg.Storage.SignedURLSecret, cfg.Storage.SignedURLTTL)

	m, err := mailer.New(cfg.Email, logger)
	if err != nil {
		return fmt.Errorf("configure mailer: %w", err)
	}
	notifications := service.NewNotificationService(repos.Notifications, repos.Records, repos.Users, m, metrics, logger, cfg.Email.SiteURL)
	a.Queue = jobs.NewQueue(emailQueueName, notifications.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Jobs.Workers,
		MaxRetries: cfg.Jobs.MaxRetries,
		RetryDelay: cfg.Jobs.RetryDelay,
		Logger:     logger.Named("jobs"),
	})
	notifications.UseQueue(a.Queue)

	a.Services = Services{
		Metrics:       metrics,
		Cache:         cacheSvc,
		Lockout:       throttle,
		Auth:          authSvc,
		Social:        social,
		Notifications: notifications,
		Users: service.NewUserService(service.UserServiceParams{
			Users:     repos.Users,
			Records:   repos.Records,
			Briefings: repos.Briefings,
			Topics:    repos.Catalog,
			Validator: validate,
			Logger:    logger,
		}),
		Profiles: service.NewProfileService(repos.Users, store, fileSigner, validate, logger, service.ProfileConfig{
			APIPrefix:        cfg.APIPrefix,
			MaxUploadBytes:   cfg.Storage.MaxUploadBytes,
			AllowedMIMETypes: cfg.Storage.AllowedMIMETypes,
			URLTTL:           cfg.Storage.SignedURLTTL,
		}),
		Catalog: service.NewCatalogService(repos.Catalog, validate, logger),
		Records: service.NewTrainingRecordService(repos.Records, repos.Catalog, repos.Users, notifications, cacheSvc, metrics, validate, logger, service.TrainingRecordConfig{
			SignOffGraceDays: cfg.Training.SignOffGraceDays,
			PageSize:         cfg.Training.RecordsPageSize,
		}),
		Briefings: service.NewGroundBriefingService(repos.Briefings, repos.Catalog, cacheSvc, validate, logger),
		Exports: service.NewExportService(repos.Records, repos.Briefings, repos.Catalog, repos.Users, service.ExportConfig{
			MatrixRowsPerPage: cfg.Training.MatrixRowsPerPage,
			HistoryPageSize:   cfg.Training.HistoryPageSize,
			HistoryRangeDays:  cfg.Training.HistoryRangeDays,
		}, metrics, logger, export.NewCSVExporter(), export.NewPDFExporter(), export.NewMatrixRenderer(cfg.Training.MatrixFontPath)),
		Dashboards: service.NewDashboardService(service.DashboardServiceParams{
			Records:   repos.Records,
			Briefings: repos.Briefings,
			Users:     repos.Users,
			Cache:     cacheSvc,
			Logger:    logger,
			Config:    service.DashboardServiceConfig{CacheTTL: cfg.Dashboard.CacheTTL},
		}),
		Audit: service.NewAuditService(repos.Audit, metrics, logger),
		Health: service.NewHealthService(service.HealthServiceParams{
			DB:      a.DB,
			Users:   repos.Users,
			Records: repos.Records,
			Catalog: repos.Catalog,
			Cache:   repos.Cache,
			Config:  cfg,
			Logger:  logger,
		}),
	}
	return nil
}

// Migrate applies the embedded goose migrations.
func (a *App) Migrate(ctx context.Context) error {
	return database.Migrate(ctx, a.DB, migrations.FS, a.Config.Database.MigrationsDir)
}

// Close releases the queue, Redis and database. Safe to call on a partially
// built App.
func (a *App) Close() error {
	if a.Queue != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		a.Queue.Stop(stopCtx)
		cancel()
	}
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}

func newObjectStore(ctx context.Context, cfg config.StorageConfig) (storage.ObjectStore, error) {
	switch cfg.Driver {
	case "s3":
		store, err := storage.NewS3Storage(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("configure s3 storage: %w", err)
		}
		return store, nil
	case "local", "":
		store, err := storage.NewLocalStorage(cfg.LocalDir)
		if err != nil {
			return nil, fmt.Errorf("configure local storage: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
