package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexia/casedesk/config"
	"github.com/lexia/casedesk/internal/core"
	"github.com/lexia/casedesk/internal/domain/model"
)

// mockReaperRepo is a simple mock implementation for testing.
type mockReaperRepo struct {
	failStaleCalled int
	failStaleCount  int64
	failStaleError  error

	deleteOldJobsCalled int
	deleteOldJobsCount  int64
	deleteOldJobsError  error

	deletedStatuses []model.JobStatus
}

func (m *mockReaperRepo) FailStaleProcessingJobs(
	_ context.Context,
	_ time.Duration,
	_ int,
) (int64, error) {
	m.failStaleCalled++
	if m.failStaleError != nil {
		return 0, m.failStaleError
	}
	// Return count on first call, then 0 to simulate batch exhaustion
	if m.failStaleCalled == 1 {
		return m.failStaleCount, nil
	}
	return 0, nil
}

func (m *mockReaperRepo) DeleteOldJobs(
	_ context.Context,
	params core.DeleteOldJobsParams,
) (int64, error) {
	m.deleteOldJobsCalled++
	m.deletedStatuses = append(m.deletedStatuses, params.Status)
	if m.deleteOldJobsError != nil {
		return 0, m.deleteOldJobsError
	}
	// Return count on odd calls (1st, 3rd, 5th...), then 0 on even calls to simulate batch exhaustion
	// This allows multiple cleanup operations (completed, failed) to each get their batch
	if m.deleteOldJobsCalled%2 == 1 {
		return m.deleteOldJobsCount, nil
	}
	return 0, nil
}

func testReaperConfig() config.ReaperConfig {
	return config.ReaperConfig{
		Interval:         5 * time.Minute,
		ProcessingMaxAge: 30 * time.Minute,
		CompletedMaxAge:  7 * 24 * time.Hour,
		FailedMaxAge:     7 * 24 * time.Hour,
		BatchSize:        1000,
	}
}

func TestNewReaperService(t *testing.T) {
	t.Run("creates service with valid options", func(t *testing.T) {
		svc, err := NewReaperService(ReaperServiceOptions{
			Repo:   &mockReaperRepo{},
			Config: testReaperConfig(),
			Logger: slog.Default(),
		})

		require.NoError(t, err)
		assert.NotNil(t, svc)
	})

	t.Run("returns error when repo is nil", func(t *testing.T) {
		_, err := NewReaperService(ReaperServiceOptions{
			Repo:   nil,
			Config: testReaperConfig(),
		})

		assert.ErrorContains(t, err, "ReaperRepository is required")
	})
}

func TestReaperService_RunCleanup(t *testing.T) {
	t.Run("runs all cleanup operations", func(t *testing.T) {
		repo := &mockReaperRepo{
			failStaleCount:     5,
			deleteOldJobsCount: 10,
		}
		svc, err := NewReaperService(ReaperServiceOptions{
			Repo:   repo,
			Config: testReaperConfig(),
			Logger: slog.Default(),
		})
		require.NoError(t, err)

		err = svc.RunCleanup(context.Background())
		require.NoError(t, err)

		// Batch loops call once more than needed to see exhaustion
		assert.Equal(t, 2, repo.failStaleCalled)
		assert.Contains(t, repo.deletedStatuses, model.JobStatusCompleted)
		assert.Contains(t, repo.deletedStatuses, model.JobStatusFailed)
	})

	t.Run("aggregates errors from all operations", func(t *testing.T) {
		repo := &mockReaperRepo{
			failStaleError:     errors.New("fail stale error"),
			deleteOldJobsError: errors.New("delete error"),
		}
		svc, err := NewReaperService(ReaperServiceOptions{
			Repo:   repo,
			Config: testReaperConfig(),
		})
		require.NoError(t, err)

		err = svc.RunCleanup(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "fail stale error")
		assert.Contains(t, err.Error(), "delete error")
	})

	t.Run("collapses cancellation into context.Canceled", func(t *testing.T) {
		repo := &mockReaperRepo{
			failStaleError:     context.Canceled,
			deleteOldJobsError: context.Canceled,
		}
		svc, err := NewReaperService(ReaperServiceOptions{
			Repo:   repo,
			Config: testReaperConfig(),
		})
		require.NoError(t, err)

		err = svc.RunCleanup(context.Background())
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestReaperService_Run(t *testing.T) {
	t.Run("returns nil on graceful shutdown", func(t *testing.T) {
		repo := &mockReaperRepo{}
		cfg := testReaperConfig()
		cfg.Interval = 50 * time.Millisecond

		svc, err := NewReaperService(ReaperServiceOptions{
			Repo:   repo,
			Config: cfg,
			Logger: slog.Default(),
		})
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan error, 1)
		go func() { done <- svc.Run(ctx) }()

		// Let at least the initial cleanup run
		time.Sleep(100 * time.Millisecond)
		cancel()

		select {
		case runErr := <-done:
			assert.NoError(t, runErr)
		case <-time.After(2 * time.Second):
			t.Fatal("reaper did not stop after cancellation")
		}

		assert.GreaterOrEqual(t, repo.failStaleCalled, 1)
	})
}
