// Package bootstrap wires configuration, storage backends, guards, and
// services into a runnable application.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"docstore-backend/internal/documents"
	"docstore-backend/internal/metrics"
	"docstore-backend/internal/quota"
	"docstore-backend/internal/reconcile"
	"docstore-backend/internal/resilience"
	"docstore-backend/internal/services/health"
	"docstore-backend/internal/shared/config"
	"docstore-backend/internal/shared/server"
	"docstore-backend/internal/shared/storage/db"
	"docstore-backend/internal/shared/storage/object"
	localstore "docstore-backend/internal/shared/storage/object/local"
	miniostore "docstore-backend/internal/shared/storage/object/minio"
	s3store "docstore-backend/internal/shared/storage/object/s3"
	"docstore-backend/internal/shared/telemetry"
	"docstore-backend/internal/usage"
)

// App holds the shared dependencies of one running process.
type App struct {
	Config config.Config
	Router *gin.Engine

	DB      *sql.DB
	Objects object.Store

	Collector     *metrics.Collector
	MetricsServer *metrics.Server

	StoreGuard *resilience.Guard
	DBGuard    *resilience.Guard

	DocumentsRepo    documents.Repo
	UsageStore       usage.Store
	Quota            *quota.Manager
	DocumentsService *documents.Service
	UsageService     *usage.Service
	Reconciler       *reconcile.Reconciler
	Health           *health.Service
}

// Build prepares all dependencies and the HTTP router.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	objects, err := buildObjects(ctx, cfg)
	if err != nil {
		return nil, err
	}

	storeGuard := newGuard("object-store", cfg, cfg.StoreBreakerThreshold, cfg.StoreBreakerCooldown)
	dbGuard := newGuard("database", cfg, cfg.DBBreakerThreshold, cfg.DBBreakerCooldown)

	var repo documents.Repo
	var usageStore usage.Store
	if sqlDB != nil {
		repo = documents.NewPGRepo(sqlDB)
		usageStore = usage.NewPGStore(sqlDB)
	} else {
		memUsage := usage.NewMemoryStore()
		repo = documents.NewMemoryRepo(memUsage)
		usageStore = memUsage
	}

	collector := metrics.NewCollector()
	qm := quota.NewManager(usageStore, dbGuard, cfg.DefaultUserQuota)

	docSvc := documents.NewService(repo, objects, storeGuard, dbGuard, qm, collector, documents.Limits{
		MaxFileSizeBytes:  cfg.MaxFileSizeBytes,
		AllowedMimeTypes:  cfg.AllowedMimeTypes,
		URLExpiryDefault:  cfg.URLExpiryDefault,
		URLExpiryMax:      cfg.URLExpiryMax,
		DownloadChunkSize: cfg.DownloadChunkSize,
	})
	usageSvc := usage.NewService(usageStore, dbGuard, cfg.DefaultUserQuota)

	healthSvc := health.NewService(sqlDB, storeGuard, dbGuard, cfg.Env)

	app := &App{
		Config:           cfg,
		DB:               sqlDB,
		Objects:          objects,
		Collector:        collector,
		MetricsServer:    metrics.NewServer(collector, cfg.MetricsPort),
		StoreGuard:       storeGuard,
		DBGuard:          dbGuard,
		DocumentsRepo:    repo,
		UsageStore:       usageStore,
		Quota:            qm,
		DocumentsService: docSvc,
		UsageService:     usageSvc,
		Reconciler: reconcile.New(repo, objects, storeGuard, dbGuard, collector,
			cfg.ReconcileInterval, cfg.PendingStaleness),
		Health: healthSvc,
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:    cfg,
		Documents: documents.NewHandler(docSvc),
		Usage:     usage.NewHandler(usageSvc),
		Health:    healthSvc,
	})

	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.memory_repos", map[string]any{
				"reason": "DATABASE_URL empty",
			})
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.memory_repos", map[string]any{
				"reason": "database connect failed",
				"err":    err.Error(),
			})
			return nil, nil
		}
		return nil, err
	}

	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return sqlDB, nil
}

func buildObjects(ctx context.Context, cfg config.Config) (object.Store, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix)
	case "minio":
		return miniostore.New(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func newGuard(name string, cfg config.Config, threshold int, cooldown time.Duration) *resilience.Guard {
	return resilience.NewGuard(name, resilience.Policy{
		MaxAttempts:      cfg.RetryMaxAttempts,
		BaseDelay:        cfg.RetryBaseDelay,
		MaxDelay:         cfg.RetryMaxDelay,
		CallTimeout:      cfg.CallTimeout,
		FailureThreshold: threshold,
		Cooldown:         cooldown,
	})
}

func isDevLike(env string) bool {
	switch env {
	case "dev", "local":
		return true
	default:
		return false
	}
}
