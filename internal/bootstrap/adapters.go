package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lexia/casedesk/config"
	"github.com/lexia/casedesk/internal/adapters/feedsync"
	"github.com/lexia/casedesk/internal/adapters/worker"
	"github.com/lexia/casedesk/internal/blob"
	"github.com/lexia/casedesk/internal/data"
	"github.com/lexia/casedesk/internal/domain/model"
	"github.com/lexia/casedesk/internal/feed"
	"github.com/lexia/casedesk/internal/service"
)

// WorkerRuntimeConfig contains configuration for the job worker.
type WorkerRuntimeConfig struct {
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Storage     *blob.S3Store
	Logger      *slog.Logger
	Worker      config.WorkerConfig
	SignTTL     time.Duration
	CacheTTL    time.Duration
}

// RunWorker starts the job worker service.
func RunWorker(ctx context.Context, cfg WorkerRuntimeConfig) error {
	jobRepo := data.NewJobRepo(cfg.DB, data.RepoConfig{Logger: cfg.Logger})

	notifOpts := service.NotificationServiceOptions{
		Repo:           data.NewNotificationRepo(cfg.DB, data.RepoConfig{Logger: cfg.Logger}),
		Logger:         cfg.Logger,
		UnreadCountTTL: cfg.CacheTTL,
	}
	if cfg.RedisClient != nil {
		notifOpts.Cache = data.NewRedisCacheRepo(cfg.RedisClient)
	}
	notifications, err := service.NewNotificationService(notifOpts)
	if err != nil {
		return fmt.Errorf("create notification service: %w", err)
	}

	zipExport, err := worker.NewZipExport(worker.ZipExportOptions{
		Files:            data.NewCaseFileRepo(cfg.DB),
		Blobs:            cfg.Storage,
		Logger:           cfg.Logger,
		FetchConcurrency: cfg.Worker.FetchConcurrency,
		SignTTL:          cfg.SignTTL,
	})
	if err != nil {
		return fmt.Errorf("create zip export handler: %w", err)
	}

	runner, err := worker.NewRunner(worker.RunnerOptions{
		Jobs:           jobRepo,
		Notifications:  notifications,
		Logger:         cfg.Logger,
		Concurrency:    cfg.Worker.Concurrency,
		SweepInterval:  cfg.Worker.SweepInterval,
		SweepBatchSize: cfg.Worker.SweepBatchSize,
	})
	if err != nil {
		return fmt.Errorf("create worker runner: %w", err)
	}
	runner.Register(model.JobTypeZipExport, zipExport.Handle)

	return runner.Run(ctx)
}

// FeedSyncRuntimeConfig contains configuration for the change feed sync.
type FeedSyncRuntimeConfig struct {
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
	FeedSync    config.FeedSyncConfig
}

// RunFeedSync starts the change feed cache sync service.
func RunFeedSync(ctx context.Context, cfg FeedSyncRuntimeConfig) error {
	listener, err := feed.NewPGListener(feed.PGListenerOptions{
		DB:      cfg.DB,
		Logger:  cfg.Logger,
		Backoff: cfg.FeedSync.ListenBackoff,
	})
	if err != nil {
		return fmt.Errorf("create change feed listener: %w", err)
	}

	bridge, err := feed.NewBridge(feed.BridgeOptions{
		Source: listener,
		Logger: cfg.Logger,
	})
	if err != nil {
		return fmt.Errorf("create change feed bridge: %w", err)
	}
	defer bridge.StopAll()

	runner, err := feedsync.NewRunner(feedsync.RunnerOptions{
		Bridge:   bridge,
		Cache:    data.NewRedisCacheRepo(cfg.RedisClient),
		Logger:   cfg.Logger,
		Debounce: cfg.FeedSync.Debounce,
	})
	if err != nil {
		return fmt.Errorf("create feed sync runner: %w", err)
	}

	return runner.Run(ctx)
}

// ReaperRuntimeConfig contains configuration for the reaper.
type ReaperRuntimeConfig struct {
	DB     *sql.DB
	Logger *slog.Logger
	Config config.ReaperConfig
}

// RunReaper starts the reaper service.
func RunReaper(ctx context.Context, cfg ReaperRuntimeConfig) error {
	reaper, err := service.NewReaperService(service.ReaperServiceOptions{
		Repo:   data.NewJobRepo(cfg.DB, data.RepoConfig{Logger: cfg.Logger}),
		Config: cfg.Config,
		Logger: cfg.Logger,
	})
	if err != nil {
		return fmt.Errorf("create reaper service: %w", err)
	}

	return reaper.Run(ctx)
}
