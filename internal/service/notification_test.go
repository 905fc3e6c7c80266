package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexia/casedesk/internal/domain/model"
)

// mockNotificationRepo is a simple mock implementation for testing.
type mockNotificationRepo struct {
	createCalled int
	createErr    error

	countUnreadCalled int
	unread            int
	countErr          error

	markReadResult   bool
	markReadErr      error
	markAllReadCount int64
}

func (m *mockNotificationRepo) Create(_ context.Context, req *model.CreateNotificationRequest) (*model.Notification, error) {
	m.createCalled++
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &model.Notification{
		ID:      "notif-1",
		UserID:  req.UserID,
		OrgID:   req.OrgID,
		Title:   req.Title,
		Message: req.Message,
		Type:    req.Type,
	}, nil
}

func (m *mockNotificationRepo) ListForUser(context.Context, string, int) ([]*model.Notification, error) {
	return nil, nil
}

func (m *mockNotificationRepo) CountUnread(context.Context, string) (int, error) {
	m.countUnreadCalled++
	return m.unread, m.countErr
}

func (m *mockNotificationRepo) MarkRead(context.Context, string, string) (bool, error) {
	return m.markReadResult, m.markReadErr
}

func (m *mockNotificationRepo) MarkAllRead(context.Context, string) (int64, error) {
	return m.markAllReadCount, nil
}

// mockCache is an in-memory CacheRepository for testing.
type mockCache struct {
	values  map[string][]byte
	getErr  error
	setErr  error
	deletes []string
}

func newMockCache() *mockCache {
	return &mockCache{values: make(map[string][]byte)}
}

func (m *mockCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.values[key] = value
	return nil
}

func (m *mockCache) Get(_ context.Context, key string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.values[key], nil
}

func (m *mockCache) Delete(_ context.Context, key string) (bool, error) {
	m.deletes = append(m.deletes, key)
	_, ok := m.values[key]
	delete(m.values, key)
	return ok, nil
}

func (m *mockCache) Health(context.Context) error { return nil }

const testUserID = "550e8400-e29b-41d4-a716-446655440000"

func validNotificationRequest() *model.CreateNotificationRequest {
	return &model.CreateNotificationRequest{
		UserID: testUserID,
		OrgID:  "123e4567-e89b-12d3-a456-426614174000",
		Title:  "Exportación Lista",
		Type:   model.NotificationSuccess,
	}
}

func TestUnreadCountKey(t *testing.T) {
	assert.Equal(t, "casedesk:notifications:unread:u1", UnreadCountKey("u1"))
}

func TestNewNotificationService(t *testing.T) {
	t.Run("requires a repository", func(t *testing.T) {
		_, err := NewNotificationService(NotificationServiceOptions{})
		assert.ErrorContains(t, err, "NotificationRepository is required")
	})
}

func TestNotificationService_Create(t *testing.T) {
	t.Run("creates and invalidates the unread count", func(t *testing.T) {
		repo := &mockNotificationRepo{}
		cache := newMockCache()
		cache.values[UnreadCountKey(testUserID)] = []byte("3")

		svc, err := NewNotificationService(NotificationServiceOptions{Repo: repo, Cache: cache})
		require.NoError(t, err)

		n, err := svc.Create(context.Background(), validNotificationRequest())
		require.NoError(t, err)
		assert.NotNil(t, n)
		assert.Contains(t, cache.deletes, UnreadCountKey(testUserID))
	})

	t.Run("rejects an invalid request", func(t *testing.T) {
		repo := &mockNotificationRepo{}
		svc, err := NewNotificationService(NotificationServiceOptions{Repo: repo})
		require.NoError(t, err)

		req := validNotificationRequest()
		req.Title = ""

		_, err = svc.Create(context.Background(), req)
		require.Error(t, err)
		assert.Zero(t, repo.createCalled)
	})
}

func TestNotificationService_Notify(t *testing.T) {
	t.Run("delivers without reporting errors", func(t *testing.T) {
		repo := &mockNotificationRepo{}
		svc, err := NewNotificationService(NotificationServiceOptions{Repo: repo})
		require.NoError(t, err)

		svc.Notify(context.Background(), validNotificationRequest())
		assert.Equal(t, 1, repo.createCalled)
	})

	t.Run("swallows delivery failures", func(t *testing.T) {
		repo := &mockNotificationRepo{createErr: errors.New("insert failed")}
		svc, err := NewNotificationService(NotificationServiceOptions{
			Repo:   repo,
			Logger: slog.Default(),
		})
		require.NoError(t, err)

		// Must not panic or surface the error
		svc.Notify(context.Background(), validNotificationRequest())
		assert.Equal(t, 1, repo.createCalled)
	})
}

func TestNotificationService_UnreadCount(t *testing.T) {
	t.Run("serves from cache without touching the repository", func(t *testing.T) {
		repo := &mockNotificationRepo{unread: 99}
		cache := newMockCache()
		cache.values[UnreadCountKey(testUserID)] = []byte("5")

		svc, err := NewNotificationService(NotificationServiceOptions{Repo: repo, Cache: cache})
		require.NoError(t, err)

		count, err := svc.UnreadCount(context.Background(), testUserID)
		require.NoError(t, err)
		assert.Equal(t, 5, count)
		assert.Zero(t, repo.countUnreadCalled)
	})

	t.Run("cache miss falls through and repopulates", func(t *testing.T) {
		repo := &mockNotificationRepo{unread: 7}
		cache := newMockCache()

		svc, err := NewNotificationService(NotificationServiceOptions{Repo: repo, Cache: cache})
		require.NoError(t, err)

		count, err := svc.UnreadCount(context.Background(), testUserID)
		require.NoError(t, err)
		assert.Equal(t, 7, count)
		assert.Equal(t, 1, repo.countUnreadCalled)
		assert.Equal(t, []byte("7"), cache.values[UnreadCountKey(testUserID)])
	})

	t.Run("cache read failure falls through to the database", func(t *testing.T) {
		repo := &mockNotificationRepo{unread: 4}
		cache := newMockCache()
		cache.getErr = errors.New("redis down")

		svc, err := NewNotificationService(NotificationServiceOptions{
			Repo:   repo,
			Cache:  cache,
			Logger: slog.Default(),
		})
		require.NoError(t, err)

		count, err := svc.UnreadCount(context.Background(), testUserID)
		require.NoError(t, err)
		assert.Equal(t, 4, count)
	})

	t.Run("works without a cache", func(t *testing.T) {
		repo := &mockNotificationRepo{unread: 2}
		svc, err := NewNotificationService(NotificationServiceOptions{Repo: repo})
		require.NoError(t, err)

		count, err := svc.UnreadCount(context.Background(), testUserID)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})
}

func TestNotificationService_MarkRead(t *testing.T) {
	t.Run("invalidates the unread count on change", func(t *testing.T) {
		repo := &mockNotificationRepo{markReadResult: true}
		cache := newMockCache()

		svc, err := NewNotificationService(NotificationServiceOptions{Repo: repo, Cache: cache})
		require.NoError(t, err)

		updated, err := svc.MarkRead(context.Background(), testUserID, "notif-1")
		require.NoError(t, err)
		assert.True(t, updated)
		assert.Contains(t, cache.deletes, UnreadCountKey(testUserID))
	})

	t.Run("propagates repository errors", func(t *testing.T) {
		repo := &mockNotificationRepo{markReadErr: errors.New("not found")}
		svc, err := NewNotificationService(NotificationServiceOptions{Repo: repo})
		require.NoError(t, err)

		_, err = svc.MarkRead(context.Background(), testUserID, "missing")
		assert.Error(t, err)
	})
}

func TestNotificationService_MarkAllRead(t *testing.T) {
	t.Run("invalidates when rows changed", func(t *testing.T) {
		repo := &mockNotificationRepo{markAllReadCount: 3}
		cache := newMockCache()

		svc, err := NewNotificationService(NotificationServiceOptions{Repo: repo, Cache: cache})
		require.NoError(t, err)

		count, err := svc.MarkAllRead(context.Background(), testUserID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)
		assert.Contains(t, cache.deletes, UnreadCountKey(testUserID))
	})

	t.Run("skips invalidation when nothing changed", func(t *testing.T) {
		repo := &mockNotificationRepo{markAllReadCount: 0}
		cache := newMockCache()

		svc, err := NewNotificationService(NotificationServiceOptions{Repo: repo, Cache: cache})
		require.NoError(t, err)

		count, err := svc.MarkAllRead(context.Background(), testUserID)
		require.NoError(t, err)
		assert.Zero(t, count)
		assert.Empty(t, cache.deletes)
	})
}
