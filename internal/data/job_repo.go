package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/lexia/casedesk/internal/data/pgxutil"
	"github.com/lexia/casedesk/internal/domain/model"
	apperrors "github.com/lexia/casedesk/internal/errors"
)

var (
	// ErrJobNotFound is returned when a job is not found.
	ErrJobNotFound = errors.New("job not found")
)

// jobInsertChannel is the LISTEN/NOTIFY channel the insert trigger posts
// new-job deliveries to. The payload is the JSON of the inserted row.
const jobInsertChannel = "job_inserted"

// RepoConfig holds configuration options for the data repositories.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// JobRepo provides database operations for the durable job queue.
type JobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}

	return &JobRepo{
		DB:           db,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const jobColumns = `
  id,
  org_id,
  requester_id,
  type,
  status,
  metadata,
  result_url,
  error_message,
  created_at,
  updated_at
`

type jobRowScanner interface {
	Scan(dest ...any) error
}

type jobRowData struct {
	metadata                         []byte
	requesterID, resultURL, errorMsg sql.NullString
}

func (d *jobRowData) scanInto(scanner jobRowScanner, job *model.Job) error {
	return scanner.Scan(
		&job.ID,
		&job.OrgID,
		&d.requesterID,
		&job.Type,
		&job.Status,
		&d.metadata,
		&d.resultURL,
		&d.errorMsg,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
}

func (d *jobRowData) apply(job *model.Job) {
	job.Metadata = cloneJSON(d.metadata)
	job.RequesterID = cloneNullableString(d.requesterID)
	job.ResultURL = cloneNullableString(d.resultURL)
	job.ErrorMessage = cloneNullableString(d.errorMsg)
}

func scanJobFromRow(scanner jobRowScanner) (*model.Job, error) {
	job := &model.Job{}
	var data jobRowData
	if err := data.scanInto(scanner, job); err != nil {
		return nil, err
	}

	data.apply(job)
	return job, nil
}

func cloneJSON(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return append(json.RawMessage(nil), raw...)
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// Create inserts a new job in pending status. The insert trigger delivers
// the new row to the worker via pg_notify.
func (r *JobRepo) Create(ctx context.Context, req *model.SubmitJobRequest) (*model.Job, error) {
	if req == nil {
		return nil, errors.New("submit job request is required")
	}
	if validateErr := req.Validate(); validateErr != nil {
		return nil, validateErr
	}

	meta := []byte(`{}`)
	if len(req.Metadata) > 0 {
		meta = req.Metadata
	}

	row := r.DB.QueryRowContext(ctx, `
      INSERT INTO jobs(org_id, requester_id, type, status, metadata)
      VALUES ($1, $2, $3, 'pending', $4)
      RETURNING `+jobColumns,
		req.OrgID, req.RequesterID, req.Type, meta)

	job, err := scanJobFromRow(row)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", apperrors.MapDBError(err))
	}
	return job, nil
}

// Claim attempts the atomic pending → processing transition for the given
// job. It is the only legal entry into processing: a single conditional
// UPDATE matching on id AND status='pending'. Returns true when this
// caller now owns the job exclusively, false when the job was already
// claimed (duplicate delivery) or does not exist in pending.
func (r *JobRepo) Claim(ctx context.Context, id string) (bool, error) {
	currentTime := r.timeProvider.Now().UTC()

	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'processing',
		    updated_at = $2
		WHERE id = $1 AND status = 'pending'
	`, id, currentTime)
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// Complete marks a claimed job as completed and records the signed
// download reference. error_message is cleared so terminal exclusivity
// holds. Returns false when the job was not in processing.
func (r *JobRepo) Complete(ctx context.Context, id, resultURL string) (bool, error) {
	currentTime := r.timeProvider.Now().UTC()

	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'completed',
		    result_url = $2,
		    error_message = NULL,
		    updated_at = $3
		WHERE id = $1 AND status = 'processing'
	`, id, resultURL, currentTime)
	if err != nil {
		return false, fmt.Errorf("complete job: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// Fail marks a job as failed with the given error message. Pending is
// allowed as a source state so that a malformed delivery whose job was
// never claimed can still be recorded as failed. Terminal states are
// never overwritten.
func (r *JobRepo) Fail(ctx context.Context, id, errMsg string) (bool, error) {
	currentTime := r.timeProvider.Now().UTC()

	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'failed',
		    error_message = $2,
		    result_url = NULL,
		    updated_at = $3
		WHERE id = $1 AND status IN ('pending', 'processing')
	`, id, errMsg, currentTime)
	if err != nil {
		return false, fmt.Errorf("fail job: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("fail rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// GetByID retrieves a job by its ID.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE id = $1
	`, id)

	job, err := scanJobFromRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Stats returns statistics about jobs of the given type in different states.
func (r *JobRepo) Stats(ctx context.Context, jobType model.JobType) (*model.JobStats, error) {
	var s model.JobStats
	err := r.DB.QueryRowContext(ctx, `
  SELECT
    count(*) FILTER (WHERE status = 'pending')    AS pending,
    count(*) FILTER (WHERE status = 'processing') AS processing,
    count(*) FILTER (WHERE status = 'completed')  AS completed,
    count(*) FILTER (WHERE status = 'failed')     AS failed
  FROM jobs
  WHERE type = $1
  `, jobType).Scan(
		&s.Pending,
		&s.Processing,
		&s.Completed,
		&s.Failed,
	)
	if err != nil {
		return nil, fmt.Errorf("get job stats: %w", err)
	}
	return &s, nil
}

// PendingDeliveries returns delivery payloads for jobs still in pending,
// oldest first. The worker sweeps these on startup and on an interval to
// cover notifications lost while it was down.
func (r *JobRepo) PendingDeliveries(ctx context.Context, limit int) ([]*model.JobDelivery, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, org_id, requester_id, type, status, metadata
		FROM jobs
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending jobs: %w", err)
	}
	defer rows.Close()

	var deliveries []*model.JobDelivery
	for rows.Next() {
		var (
			d           model.JobDelivery
			requesterID sql.NullString
			meta        []byte
		)
		if scanErr := rows.Scan(&d.ID, &d.OrgID, &requesterID, &d.Type, &d.Status, &meta); scanErr != nil {
			return nil, fmt.Errorf("scan pending job: %w", scanErr)
		}
		d.RequesterID = cloneNullableString(requesterID)
		d.Metadata = cloneJSON(meta)
		deliveries = append(deliveries, &d)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate pending jobs: %w", rowsErr)
	}

	return deliveries, nil
}

// WaitForInsert blocks until a new job is inserted and returns its
// delivery payload. The payload is whatever the insert trigger posted;
// callers must treat it as at-least-once and possibly duplicated.
func (r *JobRepo) WaitForInsert(ctx context.Context) (*model.JobDelivery, error) {
	var delivery *model.JobDelivery

	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		quoted := pgx.Identifier{jobInsertChannel}.Sanitize()

		if _, execErr := conn.Exec(ctx, "LISTEN "+quoted); execErr != nil {
			return fmt.Errorf("listen %s: %w", jobInsertChannel, execErr)
		}
		defer func() {
			if _, execErr := conn.Exec(context.Background(), "UNLISTEN "+quoted); execErr != nil {
				_ = execErr
			}
		}()

		notification, waitErr := conn.WaitForNotification(ctx)
		if waitErr != nil {
			return waitErr
		}

		delivery = decodeDelivery([]byte(notification.Payload))
		if delivery == nil {
			return model.ErrUnidentifiableDelivery
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return delivery, nil
}

// decodeDelivery parses a trigger payload. On a decode failure it falls
// back to recovering just the job id so the worker can still record the
// failure on the job row; nil means not even an id was recoverable.
func decodeDelivery(payload []byte) *model.JobDelivery {
	var delivery model.JobDelivery
	err := json.Unmarshal(payload, &delivery)
	if err == nil {
		if delivery.ID == "" {
			return nil
		}
		return &delivery
	}

	var partial struct {
		ID string `json:"id"`
	}
	if json.Unmarshal(payload, &partial) != nil || partial.ID == "" {
		return nil
	}
	return &model.JobDelivery{ID: partial.ID, Malformed: err.Error()}
}
