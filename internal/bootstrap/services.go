package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lexia/casedesk/config"
	"github.com/lexia/casedesk/internal/blob"
)

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Storage     *blob.S3Store
	Logger      *slog.Logger
}

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	name string
	done <-chan struct{}
}

func launchBackground(deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(deps.ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-deps.ctx.Done():
			default:
				deps.logger.WarnContext(deps.ctx, "dropping background service error",
					"service", descriptor.name,
					"error", errMsg,
				)
			}
		}
	}()

	deps.logger.InfoContext(deps.ctx, "background service started",
		"service", descriptor.name,
		"mode", descriptor.mode,
	)

	return done
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil || deps.cfg == nil || deps.cfg.Config == nil {
		return nil
	}
	appCfg := deps.cfg.Config

	return []backgroundService{
		{
			mode: config.ServiceModeWorker,
			name: "job worker",
			start: func(ctx context.Context) error {
				return RunWorker(ctx, WorkerRuntimeConfig{
					DB:          deps.cfg.DB,
					RedisClient: deps.cfg.RedisClient,
					Storage:     deps.cfg.Storage,
					Logger:      deps.logger,
					Worker:      appCfg.Worker,
					SignTTL:     appCfg.Storage.SignTTL,
					CacheTTL:    appCfg.Cache.UnreadCountTTL,
				})
			},
		},
		{
			mode: config.ServiceModeFeedSync,
			name: "feed sync",
			start: func(ctx context.Context) error {
				return RunFeedSync(ctx, FeedSyncRuntimeConfig{
					DB:          deps.cfg.DB,
					RedisClient: deps.cfg.RedisClient,
					Logger:      deps.logger,
					FeedSync:    appCfg.FeedSync,
				})
			},
		},
		{
			mode: config.ServiceModeReaper,
			name: "reaper",
			start: func(ctx context.Context) error {
				return RunReaper(ctx, ReaperRuntimeConfig{
					DB:     deps.cfg.DB,
					Logger: deps.logger,
					Config: appCfg.Reaper,
				})
			},
		},
	}
}

func startBackgroundServices(deps *serviceStartupDeps) []backgroundServiceHandle {
	services := buildBackgroundServices(deps)
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps, svc)
		if done == nil {
			continue
		}
		handles = append(handles, backgroundServiceHandle{name: svc.name, done: done})
	}

	return handles
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Determine which services are enabled
	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, len(enabledServices)+1)

	handles := startBackgroundServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	})

	return waitForShutdown(shutdownConfig{
		cancel:      cancel,
		errCh:       errCh,
		logger:      logger,
		backgrounds: handles,
	})
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	cancel      context.CancelFunc
	errCh       <-chan error
	logger      *slog.Logger
	backgrounds []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel() // Cancel service context before waiting
		gracefulStop(cfg)
		return nil
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel() // Cancel service context before waiting
		gracefulStop(cfg)
		return err
	}
}

// gracefulStop waits for background services to finish.
func gracefulStop(cfg shutdownConfig) {
	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
