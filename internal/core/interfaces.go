// Package core defines the ports between the service layer and the data,
// storage, and collaborator layers of the casedesk job system.
package core

import (
	"context"
	"time"

	"github.com/lexia/casedesk/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// Service implementations should depend on these interfaces, not concrete implementations.

// JobRepository defines the interface for job data operations.
//
// Claim is the sole entry into the processing state: a conditional update
// matching on id AND status='pending'. Callers must inspect the returned
// bool; false means the job was already claimed or is not pending, which
// is a no-op under at-least-once delivery, never an error.
type JobRepository interface {
	Create(ctx context.Context, req *model.SubmitJobRequest) (*model.Job, error)
	GetByID(ctx context.Context, id string) (*model.Job, error)
	Claim(ctx context.Context, id string) (bool, error)
	Complete(ctx context.Context, id, resultURL string) (bool, error)
	Fail(ctx context.Context, id, errMsg string) (bool, error)
	Stats(ctx context.Context, jobType model.JobType) (*model.JobStats, error)
	PendingDeliveries(ctx context.Context, limit int) ([]*model.JobDelivery, error)
	WaitForInsert(ctx context.Context) (*model.JobDelivery, error)
}

// ReaperRepository defines the cleanup operations used by the reaper.
type ReaperRepository interface {
	FailStaleProcessingJobs(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)
	DeleteOldJobs(ctx context.Context, params DeleteOldJobsParams) (int64, error)
}

// DeleteOldJobsParams groups parameters for DeleteOldJobs to keep param count ≤3.
type DeleteOldJobsParams struct {
	Status    model.JobStatus
	MaxAge    time.Duration
	BatchSize int
}

// NotificationRepository defines the interface for notification data operations.
// Read mutations are user-scoped and idempotent.
type NotificationRepository interface {
	Create(ctx context.Context, req *model.CreateNotificationRequest) (*model.Notification, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]*model.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, userID, id string) (bool, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

// CaseFileRepository defines read access to a case's document references.
type CaseFileRepository interface {
	ListByCase(ctx context.Context, caseID string) ([]*model.CaseFile, error)
}

// BlobStore defines the object storage operations used by the job worker.
type BlobStore interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
	Upload(ctx context.Context, params UploadParams) error
	Sign(ctx context.Context, path string, ttl time.Duration) (string, error)
}

// UploadParams groups parameters for BlobStore.Upload to keep param count ≤3.
type UploadParams struct {
	Path        string
	Body        []byte
	ContentType string
}

// CacheRepository defines the interface for cache operations.
type CacheRepository interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) (bool, error)
	Health(ctx context.Context) error
}

// QuotaChecker is the quota collaborator consulted before enqueueing work.
// Calls are best-effort side calls with no feedback into the job state machine.
type QuotaChecker interface {
	CheckExportQuota(ctx context.Context, orgID string) error
}

// AuditEntry describes one recorded mutation for the audit collaborator.
type AuditEntry struct {
	OrgID   string
	ActorID string
	Action  string
	Subject string
}

// AuditRecorder is the audit collaborator invoked after mutations.
// Calls are best-effort side calls with no feedback into the job state machine.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry) error
}
