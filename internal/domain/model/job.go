// Package model defines the core data types and structures used throughout the casedesk job system.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JobType represents the type of deferred work a job carries.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobType string

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobTypeZipExport packages a case's documents into a downloadable archive.
	JobTypeZipExport JobType = "zip_export"
	// JobTypeReportGen generates a case report document.
	JobTypeReportGen JobType = "report_gen"

	// JobStatusPending indicates a job is waiting to be claimed.
	JobStatusPending JobStatus = "pending"
	// JobStatusProcessing indicates a job has been claimed by exactly one worker.
	JobStatusProcessing JobStatus = "processing"
	// JobStatusCompleted indicates a job has finished successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates a job has failed to complete.
	JobStatusFailed JobStatus = "failed"
)

// UnmarshalText implements encoding.TextUnmarshaler for JobType to allow env parsing.
func (t *JobType) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	jt := JobType(v)
	if jt.Valid() {
		*t = jt
		return nil
	}
	return fmt.Errorf("invalid JobType: %q", v)
}

// Valid returns true if the JobType is valid.
func (t JobType) Valid() bool {
	return t == JobTypeZipExport || t == JobTypeReportGen
}

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	return s == JobStatusPending || s == JobStatusProcessing ||
		s == JobStatusCompleted || s == JobStatusFailed
}

// Terminal returns true once a job can no longer transition.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job represents a durable record of deferred work with an exclusive-claim state machine.
// ResultURL and ErrorMessage are mutually exclusive and both nil until a terminal state.
type Job struct {
	ID           string          `json:"id"                      db:"id"`
	OrgID        string          `json:"org_id"                  db:"org_id"`
	RequesterID  *string         `json:"requester_id,omitempty"  db:"requester_id"`
	Type         JobType         `json:"type"                    db:"type"`
	Status       JobStatus       `json:"status"                  db:"status"`
	Metadata     json.RawMessage `json:"metadata"                db:"metadata"`
	ResultURL    *string         `json:"result_url,omitempty"    db:"result_url"`
	ErrorMessage *string         `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time       `json:"created_at"              db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"              db:"updated_at"`
}

// SubmitJobRequest represents a request to enqueue a new job.
type SubmitJobRequest struct {
	OrgID       string          `json:"org_id"`
	RequesterID *string         `json:"requester_id,omitempty"`
	Type        JobType         `json:"type"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

// Validate validates the SubmitJobRequest fields.
func (r *SubmitJobRequest) Validate() error {
	if _, err := uuid.Parse(r.OrgID); err != nil {
		return errors.New("org id must be a valid UUID")
	}
	if !r.Type.Valid() {
		return errors.New("invalid job type")
	}
	if r.RequesterID != nil && *r.RequesterID != "" {
		if _, err := uuid.Parse(*r.RequesterID); err != nil {
			return errors.New("requester id must be a valid UUID")
		}
	}
	if len(r.Metadata) > 0 && !json.Valid(r.Metadata) {
		return errors.New("metadata must be valid JSON")
	}
	return nil
}

// ErrUnidentifiableDelivery indicates a delivery payload so broken that no
// job id could be recovered from it. Such failures cannot be recorded on
// any job row and must surface to the invoking infrastructure.
var ErrUnidentifiableDelivery = errors.New("job delivery payload has no identifiable job id")

// JobDelivery is the trigger payload handed to the worker for a newly
// inserted job. Delivery is at-least-once; duplicates must be tolerated.
//
// Malformed carries the decode error message when the payload could not be
// fully parsed but still yielded a job id; the worker records it as the
// job's failure reason.
type JobDelivery struct {
	ID          string          `json:"id"`
	OrgID       string          `json:"org_id"`
	RequesterID *string         `json:"requester_id"`
	Type        JobType         `json:"type"`
	Status      JobStatus       `json:"status"`
	Metadata    json.RawMessage `json:"metadata"`
	Malformed   string          `json:"-"`
}

// JobStats represents statistics about jobs in different states.
type JobStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}
