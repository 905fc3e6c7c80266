// Package worker executes queued jobs. It wakes on insert notifications,
// sweeps for pending jobs whose notification was missed, and drives each
// job through the exclusive-claim state machine.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lexia/casedesk/internal/core"
	"github.com/lexia/casedesk/internal/domain/model"
	"github.com/lexia/casedesk/internal/service"
)

// HandlerResult carries a handler's outcome back to the runner. ResultURL
// becomes the job's result; Notification, when set, is delivered after the
// job reaches completed.
type HandlerResult struct {
	ResultURL    string
	Notification *model.CreateNotificationRequest
}

// HandlerFunc processes one claimed job. A returned error fails the job
// with the error's message as its recorded reason.
type HandlerFunc func(ctx context.Context, delivery *model.JobDelivery) (*HandlerResult, error)

// RunnerOptions configures the job worker adapter.
type RunnerOptions struct {
	Jobs          core.JobRepository            // Required: job repository
	Notifications *service.NotificationService // Optional: completion notification delivery
	Logger        *slog.Logger                 // Optional: structured logger

	// Job processing settings
	Concurrency    int           // number of jobs processed at once; defaults to 1
	SweepInterval  time.Duration // pending sweep interval; defaults to 1m
	SweepBatchSize int           // max pending jobs per sweep; defaults to 100
}

// Runner pulls job deliveries and executes them using registered handlers.
//
// Delivery is at-least-once: the same job can arrive from the insert
// notification and again from a sweep. The claim step makes duplicates
// harmless; a delivery whose claim returns false is dropped silently.
type Runner struct {
	jobs          core.JobRepository
	notifications *service.NotificationService
	logger        *slog.Logger

	concurrency    int
	sweepInterval  time.Duration
	sweepBatchSize int

	handlers map[model.JobType]HandlerFunc
}

// NewRunner constructs a job worker. Handlers for concrete job types are
// attached with Register before Run is called.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobRepository is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	sweepInterval := opts.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	sweepBatchSize := opts.SweepBatchSize
	if sweepBatchSize <= 0 {
		sweepBatchSize = 100
	}

	return &Runner{
		jobs:           opts.Jobs,
		notifications:  opts.Notifications,
		logger:         logger,
		concurrency:    concurrency,
		sweepInterval:  sweepInterval,
		sweepBatchSize: sweepBatchSize,
		handlers:       make(map[model.JobType]HandlerFunc),
	}, nil
}

// Register attaches a handler for one job type. Not safe to call after Run.
func (r *Runner) Register(jobType model.JobType, handler HandlerFunc) {
	r.handlers[jobType] = handler
}

// Run processes jobs until the context is cancelled. It sweeps for pending
// jobs immediately on startup so work enqueued while the worker was down is
// picked up without waiting for a fresh insert.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting job worker",
		"concurrency", r.concurrency,
		"sweep_interval", r.sweepInterval,
	)

	// Bounded dispatch: each in-flight job holds one slot
	slots := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup

	r.sweep(ctx, slots, &wg)

	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	deliveries := make(chan *model.JobDelivery)
	go r.listenLoop(ctx, deliveries)

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			r.sweep(ctx, slots, &wg)

		case delivery := <-deliveries:
			r.dispatch(ctx, delivery, slots, &wg)
		}
	}
}

// listenLoop blocks on insert notifications and forwards them for dispatch.
func (r *Runner) listenLoop(ctx context.Context, deliveries chan<- *model.JobDelivery) {
	for ctx.Err() == nil {
		delivery, err := r.jobs.WaitForInsert(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, model.ErrUnidentifiableDelivery) {
				// Cannot be recorded on any job row; surface loudly instead
				r.logger.ErrorContext(ctx, "unidentifiable job delivery", "error", err)
			} else {
				r.logger.WarnContext(ctx, "job notification wait failed", "error", err)
			}
			continue
		}

		select {
		case deliveries <- delivery:
		case <-ctx.Done():
			return
		}
	}
}

// sweep re-delivers pending jobs the insert notification may have missed.
func (r *Runner) sweep(ctx context.Context, slots chan struct{}, wg *sync.WaitGroup) {
	pending, err := r.jobs.PendingDeliveries(ctx, r.sweepBatchSize)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.WarnContext(ctx, "pending job sweep failed", "error", err)
		}
		return
	}

	for _, delivery := range pending {
		r.dispatch(ctx, delivery, slots, wg)
	}
}

func (r *Runner) dispatch(ctx context.Context, delivery *model.JobDelivery, slots chan struct{}, wg *sync.WaitGroup) {
	select {
	case slots <- struct{}{}:
	case <-ctx.Done():
		return
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() { <-slots }()
		r.processDelivery(ctx, delivery)
	}()
}

// processDelivery drives one delivery through claim, handler execution,
// and terminal transition.
func (r *Runner) processDelivery(ctx context.Context, delivery *model.JobDelivery) {
	if delivery == nil || delivery.ID == "" {
		r.logger.WarnContext(ctx, "discarding delivery without job id")
		return
	}

	if delivery.Malformed != "" {
		// The payload yielded an id but nothing else trustworthy; record
		// the failure so the job does not sit pending forever
		r.logger.WarnContext(ctx, "malformed job delivery",
			"job_id", delivery.ID,
			"error", delivery.Malformed,
		)
		r.fail(ctx, delivery.ID, "malformed delivery payload: "+delivery.Malformed)
		return
	}

	if delivery.Status != "" && delivery.Status != model.JobStatusPending {
		r.logger.DebugContext(ctx, "skipping non-pending delivery",
			"job_id", delivery.ID,
			"status", delivery.Status,
		)
		return
	}

	handler, ok := r.handlers[delivery.Type]
	if !ok {
		r.logger.WarnContext(ctx, "no handler for job type, ignoring",
			"job_id", delivery.ID,
			"type", delivery.Type,
		)
		return
	}

	claimed, err := r.jobs.Claim(ctx, delivery.ID)
	if err != nil {
		r.logger.ErrorContext(ctx, "claim job error", "job_id", delivery.ID, "error", err)
		return
	}
	if !claimed {
		// Duplicate delivery or already-terminal job; drop it
		r.logger.DebugContext(ctx, "job already claimed, skipping", "job_id", delivery.ID)
		return
	}

	result, err := r.runHandler(ctx, handler, delivery)
	if err != nil {
		r.logger.WarnContext(ctx, "job failed",
			"job_id", delivery.ID,
			"type", delivery.Type,
			"error", err,
		)
		r.fail(ctx, delivery.ID, err.Error())
		return
	}

	resultURL := ""
	if result != nil {
		resultURL = result.ResultURL
	}
	completed, err := r.jobs.Complete(ctx, delivery.ID, resultURL)
	if err != nil {
		r.logger.ErrorContext(ctx, "complete job error", "job_id", delivery.ID, "error", err)
		return
	}
	if !completed {
		r.logger.WarnContext(ctx, "job not in processing at completion", "job_id", delivery.ID)
		return
	}

	r.logger.InfoContext(ctx, "job completed", "job_id", delivery.ID, "type", delivery.Type)

	if result != nil && result.Notification != nil && r.notifications != nil {
		r.notifications.Notify(ctx, result.Notification)
	}
}

// runHandler executes the handler for a claimed job. A panic is converted
// into an ordinary handler error so the job reaches failed instead of
// sitting in processing until the reaper finds it.
func (r *Runner) runHandler(
	ctx context.Context,
	handler HandlerFunc,
	delivery *model.JobDelivery,
) (result *HandlerResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.ErrorContext(ctx, "job handler panicked",
				"job_id", delivery.ID,
				"type", delivery.Type,
				"panic", rec,
			)
			result = nil
			err = fmt.Errorf("job handler panic: %v", rec)
		}
	}()

	return handler(ctx, delivery)
}

func (r *Runner) fail(ctx context.Context, id, msg string) {
	if _, err := r.jobs.Fail(ctx, id, msg); err != nil {
		r.logger.ErrorContext(ctx, "fail job error", "job_id", id, "error", err)
	}
}
