package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/lexia/casedesk/internal/core"
	"github.com/lexia/casedesk/internal/domain/model"
)

// UnreadCountKey returns the cache key holding a user's unread
// notification count.
func UnreadCountKey(userID string) string {
	return "casedesk:notifications:unread:" + userID
}

// NotificationServiceOptions groups dependencies for NotificationService.
type NotificationServiceOptions struct {
	Repo           core.NotificationRepository // Required: notification repository
	Cache          core.CacheRepository        // Optional: unread count cache
	Logger         *slog.Logger                // Optional: structured logger
	UnreadCountTTL time.Duration               // Optional: cache TTL for unread counts
}

// NotificationService provides business logic for the per-user inbox.
//
// Notify is the delivery path used by background workers and is
// best-effort: a failed insert is logged, never retried, and never
// affects the outcome of the work it reports on.
type NotificationService struct {
	repo           core.NotificationRepository
	cache          core.CacheRepository
	logger         *slog.Logger
	unreadCountTTL time.Duration
}

// NewNotificationService constructs a new NotificationService.
func NewNotificationService(opts NotificationServiceOptions) (*NotificationService, error) {
	if opts.Repo == nil {
		return nil, errors.New("NotificationRepository is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "notification_service")
	}

	ttl := opts.UnreadCountTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &NotificationService{
		repo:           opts.Repo,
		cache:          opts.Cache,
		logger:         logger,
		unreadCountTTL: ttl,
	}, nil
}

// Create validates and inserts a notification, returning the stored row.
func (s *NotificationService) Create(ctx context.Context, req *model.CreateNotificationRequest) (*model.Notification, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("validate notification request: %w", err)
	}

	notification, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, err
	}

	s.invalidateUnreadCount(ctx, req.UserID)

	return notification, nil
}

// Notify inserts a notification on behalf of a background worker. It never
// returns an error; failures are logged and dropped so delivery problems
// cannot disturb the work they report on.
func (s *NotificationService) Notify(ctx context.Context, req *model.CreateNotificationRequest) {
	if _, err := s.Create(ctx, req); err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "notification delivery failed",
				"user_id", req.UserID,
				"title", req.Title,
				"error", err,
			)
		}
	}
}

// ListForUser returns the user's most recent notifications, newest first.
func (s *NotificationService) ListForUser(ctx context.Context, userID string, limit int) ([]*model.Notification, error) {
	return s.repo.ListForUser(ctx, userID, limit)
}

// UnreadCount returns the user's unread notification count, serving from
// cache when possible. Cache failures fall through to the database.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	key := UnreadCountKey(userID)

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, key)
		if err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "unread count cache read failed",
				"user_id", userID,
				"error", err,
			)
		}
		if len(cached) > 0 {
			if count, parseErr := strconv.Atoi(string(cached)); parseErr == nil {
				return count, nil
			}
		}
	}

	count, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, err
	}

	if s.cache != nil {
		value := []byte(strconv.Itoa(count))
		if err := s.cache.Set(ctx, key, value, s.unreadCountTTL); err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "unread count cache write failed",
				"user_id", userID,
				"error", err,
			)
		}
	}

	return count, nil
}

// MarkRead marks one of the user's notifications as read. Marking an
// already-read notification is a no-op returning true; a notification
// that does not exist or belongs to another user is a not found error.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id string) (bool, error) {
	updated, err := s.repo.MarkRead(ctx, userID, id)
	if err != nil {
		return false, err
	}
	if updated {
		s.invalidateUnreadCount(ctx, userID)
	}
	return updated, nil
}

// MarkAllRead marks all of the user's unread notifications as read and
// returns how many rows changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	count, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.invalidateUnreadCount(ctx, userID)
	}
	return count, nil
}

// invalidateUnreadCount drops the cached unread count after a write. The
// change feed invalidates it for other processes; this local invalidation
// just keeps the writing process read-your-writes consistent.
func (s *NotificationService) invalidateUnreadCount(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.Delete(ctx, UnreadCountKey(userID)); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "unread count cache invalidation failed",
			"user_id", userID,
			"error", err,
		)
	}
}
