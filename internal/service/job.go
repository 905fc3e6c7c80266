// Package service contains the business logic layered over the repository
// ports: job submission, notification delivery, and background cleanup.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lexia/casedesk/internal/core"
	"github.com/lexia/casedesk/internal/domain/auth"
	"github.com/lexia/casedesk/internal/domain/model"
)

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Repo   core.JobRepository // Required: job repository
	Logger *slog.Logger       // Optional: structured logger
	Quota  core.QuotaChecker  // Optional: pre-submit quota collaborator
	Audit  core.AuditRecorder // Optional: post-submit audit collaborator
}

// JobService provides business logic for job submission and inspection.
//
// Submission is the only write path into the queue. The quota and audit
// collaborators are side calls: quota denial rejects the submission before
// any row exists, while audit failures are logged and never undo an
// already-inserted job.
type JobService struct {
	repo   core.JobRepository
	logger *slog.Logger
	quota  core.QuotaChecker
	audit  core.AuditRecorder
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "job_service")
	}

	return &JobService{
		repo:   opts.Repo,
		logger: logger,
		quota:  opts.Quota,
		audit:  opts.Audit,
	}, nil
}

// MustNewJobService constructs a new JobService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewJobService(opts JobServiceOptions) *JobService {
	svc, err := NewJobService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create JobService: %v", err))
	}
	return svc
}

// Submit validates and enqueues a new job. The returned job is in pending
// status; its insert trigger wakes the worker. Insert failures propagate
// to the caller unchanged so the submitter can surface them synchronously.
//
// When the request carries no requester, the caller identity from the
// context fills it in so the export notification and audit trail still
// reach the submitting user.
func (s *JobService) Submit(ctx context.Context, req *model.SubmitJobRequest) (*model.Job, error) {
	if req == nil {
		return nil, errors.New("submit job request is required")
	}

	if req.RequesterID == nil {
		if ident, ok := auth.IdentityFrom(ctx); ok && ident.UserID != "" {
			scoped := *req
			scoped.RequesterID = &ident.UserID
			req = &scoped
		}
	}

	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("validate job request: %w", err)
	}

	if s.quota != nil && req.Type == model.JobTypeZipExport {
		if err := s.quota.CheckExportQuota(ctx, req.OrgID); err != nil {
			return nil, fmt.Errorf("export quota check: %w", err)
		}
	}

	job, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "job submitted",
			"id", job.ID,
			"type", job.Type,
			"org_id", job.OrgID,
		)
	}

	s.recordAudit(ctx, job)

	return job, nil
}

// GetByID returns a job by its ID.
func (s *JobService) GetByID(ctx context.Context, id string) (*model.Job, error) {
	return s.repo.GetByID(ctx, id)
}

// Stats returns queue depth counts for one job type.
func (s *JobService) Stats(ctx context.Context, jobType model.JobType) (*model.JobStats, error) {
	return s.repo.Stats(ctx, jobType)
}

// recordAudit records the submission with the audit collaborator. The job is
// already durable at this point, so audit failures are logged and dropped.
func (s *JobService) recordAudit(ctx context.Context, job *model.Job) {
	if s.audit == nil {
		return
	}

	actorID := ""
	if job.RequesterID != nil {
		actorID = *job.RequesterID
	}

	err := s.audit.Record(ctx, core.AuditEntry{
		OrgID:   job.OrgID,
		ActorID: actorID,
		Action:  "job.submit",
		Subject: job.ID,
	})
	if err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "audit record failed",
			"job_id", job.ID,
			"error", err,
		)
	}
}
