package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeWorker runs the job worker.
	ServiceModeWorker ServiceMode = "worker"
	// ServiceModeFeedSync runs the change feed cache sync.
	ServiceModeFeedSync ServiceMode = "feed-sync"
	// ServiceModeReaper runs the job reaper for cleanup.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeWorker,
		ServiceModeFeedSync,
		ServiceModeReaper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeWorker, ServiceModeFeedSync, ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: worker, feed-sync, reaper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// WorkerConfig contains job worker service configuration.
type WorkerConfig struct {
	// Concurrency is the maximum number of jobs processed at once.
	Concurrency int `env:"WORKER_CONCURRENCY" envDefault:"2"`

	// SweepInterval is how often the worker re-scans for pending jobs
	// whose insert notification was missed.
	SweepInterval time.Duration `env:"WORKER_SWEEP_INTERVAL" envDefault:"1m"`

	// SweepBatchSize is the maximum number of pending jobs picked up per sweep.
	SweepBatchSize int `env:"WORKER_SWEEP_BATCH_SIZE" envDefault:"100"`

	// FetchConcurrency is the maximum number of case files downloaded at once
	// while assembling an export archive.
	FetchConcurrency int `env:"WORKER_FETCH_CONCURRENCY" envDefault:"4"`
}

// Sanitize applies guardrails to worker configuration values.
func (w *WorkerConfig) Sanitize() {
	if w.Concurrency < 1 {
		w.Concurrency = 1
	}
	if w.SweepInterval < 5*time.Second {
		w.SweepInterval = 5 * time.Second
	}
	if w.SweepBatchSize < 1 {
		w.SweepBatchSize = 1
	}
	if w.FetchConcurrency < 1 {
		w.FetchConcurrency = 1
	}
}

// FeedSyncConfig contains change feed sync service configuration.
type FeedSyncConfig struct {
	// Debounce is the quiet window applied to burst-prone cache invalidations.
	Debounce time.Duration `env:"FEED_SYNC_DEBOUNCE" envDefault:"500ms"`

	// ListenBackoff is the delay before re-establishing a lost listen connection.
	ListenBackoff time.Duration `env:"FEED_SYNC_LISTEN_BACKOFF" envDefault:"1s"`
}

// Sanitize applies guardrails to feed sync configuration values.
func (f *FeedSyncConfig) Sanitize() {
	if f.Debounce < 10*time.Millisecond {
		f.Debounce = 10 * time.Millisecond
	}
	if f.ListenBackoff < 100*time.Millisecond {
		f.ListenBackoff = 100 * time.Millisecond
	}
}

// ReaperConfig contains job reaper service configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"5m"`

	// ProcessingMaxAge is the maximum age for processing jobs before they are
	// marked as failed. Jobs stuck in processing longer than this are assumed
	// to belong to a crashed worker.
	ProcessingMaxAge time.Duration `env:"REAPER_PROCESSING_MAX_AGE" envDefault:"30m"`

	// CompletedMaxAge is the maximum age for completed jobs before deletion.
	CompletedMaxAge time.Duration `env:"REAPER_COMPLETED_MAX_AGE" envDefault:"168h"` // 7 days

	// FailedMaxAge is the maximum age for failed jobs before deletion.
	FailedMaxAge time.Duration `env:"REAPER_FAILED_MAX_AGE" envDefault:"168h"` // 7 days

	// BatchSize is the maximum number of rows to process per operation.
	// Batching prevents long locks and I/O spikes on large tables.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	// Enforce minimum intervals to prevent excessive database load
	if r.Interval < 1*time.Minute {
		r.Interval = 1 * time.Minute
	}
	if r.ProcessingMaxAge < 5*time.Minute {
		r.ProcessingMaxAge = 5 * time.Minute
	}
	if r.CompletedMaxAge < 1*time.Hour {
		r.CompletedMaxAge = 1 * time.Hour
	}
	if r.FailedMaxAge < 1*time.Hour {
		r.FailedMaxAge = 1 * time.Hour
	}

	// Enforce batch size bounds to prevent excessive locks or inefficiency
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}
