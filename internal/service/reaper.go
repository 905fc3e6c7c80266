package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lexia/casedesk/config"
	"github.com/lexia/casedesk/internal/core"
	"github.com/lexia/casedesk/internal/domain/model"
)

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Repo   core.ReaperRepository // Required: reaper repository
	Config config.ReaperConfig   // Required: reaper configuration
	Logger *slog.Logger          // Optional: structured logger
}

// ReaperService provides job cleanup operations.
//
// This service manages:
// - Failing processing jobs abandoned by crashed workers.
// - Deleting old completed jobs to prevent database bloat.
// - Deleting old failed jobs to prevent database bloat.
type ReaperService struct {
	repo   core.ReaperRepository
	config config.ReaperConfig
	logger *slog.Logger
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Repo == nil {
		return nil, errors.New("ReaperRepository is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "reaper_service")
		logger.Debug("ReaperService initialized",
			"interval", opts.Config.Interval,
			"processing_max_age", opts.Config.ProcessingMaxAge,
			"completed_max_age", opts.Config.CompletedMaxAge,
			"failed_max_age", opts.Config.FailedMaxAge,
		)
	}

	return &ReaperService{
		repo:   opts.Repo,
		config: opts.Config,
		logger: logger,
	}, nil
}

// Run starts the reaper loop and runs until the context is cancelled.
// It performs cleanup operations at the configured interval.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *ReaperService) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting reaper service", "interval", s.config.Interval)
	}

	// Add jitter to prevent thundering herd if multiple instances start together
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	// Run cleanup immediately after jitter
	if err := s.RunCleanup(ctx); err != nil {
		s.logCleanupError(err, "initial cleanup")
	}

	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			}
			// Return nil on graceful shutdown to avoid treating it as a failure
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if err := s.RunCleanup(ctx); err != nil {
				s.logCleanupError(err, "cleanup")
				// Continue running despite errors
			}
		}
	}
}

// waitWithJitter adds a random delay up to 10% of the interval to prevent thundering herd.
func (s *ReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// If crypto/rand fails, skip jitter rather than failing startup
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		}
		return
	}

	// Use modulo on uint64 before converting to avoid overflow
	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
		// Graceful shutdown during jitter
	}
}

// RunCleanup performs all cleanup operations once.
func (s *ReaperService) RunCleanup(ctx context.Context) error {
	var errs []error

	if _, err := s.failStaleProcessingJobs(ctx); err != nil {
		errs = append(errs, fmt.Errorf("fail stale processing jobs: %w", err))
	}
	if _, err := s.deleteOldJobs(ctx, model.JobStatusCompleted, s.config.CompletedMaxAge); err != nil {
		errs = append(errs, fmt.Errorf("delete old completed jobs: %w", err))
	}
	if _, err := s.deleteOldJobs(ctx, model.JobStatusFailed, s.config.FailedMaxAge); err != nil {
		errs = append(errs, fmt.Errorf("delete old failed jobs: %w", err))
	}

	if len(errs) > 0 {
		joined := errors.Join(errs...)
		if isContextCancellation(joined) {
			return context.Canceled
		}
		return fmt.Errorf("cleanup failed: %w", joined)
	}

	return nil
}

// failStaleProcessingJobs marks processing jobs older than the configured max age as failed.
// Loops until no more rows are affected to handle large datasets in batches.
func (s *ReaperService) failStaleProcessingJobs(ctx context.Context) (int64, error) {
	var totalCount int64
	for {
		count, err := s.repo.FailStaleProcessingJobs(ctx, s.config.ProcessingMaxAge, s.config.BatchSize)
		if err != nil {
			return totalCount, err
		}
		totalCount += count
		if count == 0 {
			break
		}
		// Check context between batches
		if ctx.Err() != nil {
			return totalCount, ctx.Err()
		}
	}

	if totalCount > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "failed stale processing jobs",
			"count", totalCount,
			"max_age", s.config.ProcessingMaxAge,
		)
	}

	return totalCount, nil
}

// deleteOldJobs deletes jobs in a terminal status older than the given max age.
// Loops until no more rows are affected to handle large datasets in batches.
func (s *ReaperService) deleteOldJobs(ctx context.Context, status model.JobStatus, maxAge time.Duration) (int64, error) {
	var totalCount int64
	for {
		count, err := s.repo.DeleteOldJobs(ctx, core.DeleteOldJobsParams{
			Status:    status,
			MaxAge:    maxAge,
			BatchSize: s.config.BatchSize,
		})
		if err != nil {
			return totalCount, err
		}
		totalCount += count
		if count == 0 {
			break
		}
		// Check context between batches
		if ctx.Err() != nil {
			return totalCount, ctx.Err()
		}
	}

	if totalCount > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "deleted old jobs",
			"status", status,
			"count", totalCount,
			"max_age", maxAge,
		)
	}

	return totalCount, nil
}

func (s *ReaperService) logCleanupError(err error, label string) {
	if err == nil || s.logger == nil {
		return
	}

	if isContextCancellation(err) {
		s.logger.Debug(label+" cancelled by context", "error", err)
		return
	}

	s.logger.Error(label+" failed", "error", err)
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
