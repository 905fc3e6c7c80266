package data

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexia/casedesk/internal/testutil"
)

func TestRedisCacheRepo(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	repo := NewRedisCacheRepo(client)
	ctx := context.Background()

	t.Run("set and get round trip", func(t *testing.T) {
		err := repo.Set(ctx, "casedesk:test:count", []byte("7"), time.Minute)
		require.NoError(t, err)

		value, err := repo.Get(ctx, "casedesk:test:count")
		require.NoError(t, err)
		assert.Equal(t, []byte("7"), value)
	})

	t.Run("missing key returns nil without error", func(t *testing.T) {
		value, err := repo.Get(ctx, "casedesk:test:missing")
		require.NoError(t, err)
		assert.Nil(t, value)
	})

	t.Run("delete reports whether a key existed", func(t *testing.T) {
		require.NoError(t, repo.Set(ctx, "casedesk:test:todelete", []byte("x"), time.Minute))

		deleted, err := repo.Delete(ctx, "casedesk:test:todelete")
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = repo.Delete(ctx, "casedesk:test:todelete")
		require.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run("empty keys are rejected", func(t *testing.T) {
		assert.Error(t, repo.Set(ctx, "", []byte("x"), time.Minute))

		_, err := repo.Get(ctx, "")
		assert.Error(t, err)

		_, err = repo.Delete(ctx, "")
		assert.Error(t, err)
	})

	t.Run("health pings the server", func(t *testing.T) {
		assert.NoError(t, repo.Health(ctx))
	})
}
