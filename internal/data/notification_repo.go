package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lexia/casedesk/internal/domain/model"
	apperrors "github.com/lexia/casedesk/internal/errors"
)

// ErrNotificationNotFound is returned when a notification is not found for the given user.
var ErrNotificationNotFound = errors.New("notification not found")

// NotificationRepo provides database operations for the per-user inbox.
// Rows are created once and only ever mutated to flip read; there is no
// delete path.
type NotificationRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewNotificationRepo creates a new NotificationRepo instance.
func NewNotificationRepo(db *sql.DB, cfg RepoConfig) *NotificationRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &NotificationRepo{DB: db, timeProvider: tp}
}

const notificationColumns = `
  id,
  user_id,
  org_id,
  title,
  message,
  type,
  read,
  metadata,
  created_at
`

func scanNotification(scanner interface{ Scan(dest ...any) error }) (*model.Notification, error) {
	var (
		n    model.Notification
		meta []byte
	)
	if err := scanner.Scan(
		&n.ID,
		&n.UserID,
		&n.OrgID,
		&n.Title,
		&n.Message,
		&n.Type,
		&n.Read,
		&meta,
		&n.CreatedAt,
	); err != nil {
		return nil, err
	}
	n.Metadata = cloneJSON(meta)
	return &n, nil
}

// Create inserts a notification addressed to a single user.
func (r *NotificationRepo) Create(
	ctx context.Context,
	req *model.CreateNotificationRequest,
) (*model.Notification, error) {
	if req == nil {
		return nil, errors.New("create notification request is required")
	}
	if validateErr := req.Validate(); validateErr != nil {
		return nil, validateErr
	}

	meta := []byte(`{}`)
	if len(req.Metadata) > 0 {
		meta = req.Metadata
	}

	row := r.DB.QueryRowContext(ctx, `
      INSERT INTO notifications(user_id, org_id, title, message, type, metadata)
      VALUES ($1, $2, $3, $4, $5, $6)
      RETURNING `+notificationColumns,
		req.UserID, req.OrgID, req.Title, req.Message, req.Type, meta)

	notification, err := scanNotification(row)
	if err != nil {
		return nil, fmt.Errorf("insert notification: %w", apperrors.MapDBError(err))
	}
	return notification, nil
}

// ListForUser returns the user's most recent notifications, newest first.
func (r *NotificationRepo) ListForUser(
	ctx context.Context,
	userID string,
	limit int,
) ([]*model.Notification, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*model.Notification
	for rows.Next() {
		n, scanErr := scanNotification(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan notification: %w", scanErr)
		}
		notifications = append(notifications, n)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate notifications: %w", rowsErr)
	}

	return notifications, nil
}

// CountUnread returns the number of unread notifications for the user.
func (r *NotificationRepo) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.DB.QueryRowContext(ctx, `
		SELECT count(*) FROM notifications
		WHERE user_id = $1 AND read = FALSE
	`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead flips a single notification to read. The update is scoped to
// the owning user and idempotent: re-marking an already-read row reports
// true without changing anything.
func (r *NotificationRepo) MarkRead(ctx context.Context, userID, id string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE notifications
		SET read = TRUE
		WHERE id = $1 AND user_id = $2 AND read = FALSE
	`, id, userID)
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark read rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return true, nil
	}

	// Distinguish an already-read row (no-op) from a missing or foreign row.
	var exists bool
	if err := r.DB.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM notifications WHERE id = $1 AND user_id = $2)
	`, id, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check notification: %w", err)
	}
	if !exists {
		return false, ErrNotificationNotFound
	}
	return true, nil
}

// MarkAllRead flips every unread notification for the user and returns
// how many rows changed. Idempotent: a second call affects zero rows.
func (r *NotificationRepo) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE notifications
		SET read = TRUE
		WHERE user_id = $1 AND read = FALSE
	`, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark all read rows affected: %w", err)
	}
	return rowsAffected, nil
}
