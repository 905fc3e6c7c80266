package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/lexia/casedesk/internal/core"
)

// invalidateTimeout bounds one cache deletion so a slow cache cannot stall
// the debounce timer goroutine.
const invalidateTimeout = 5 * time.Second

// KeyInvalidator returns an Invalidate callback that deletes one cache key.
// Deletion is best-effort; a stale cached value expires on its own TTL, so
// failures are logged and dropped.
func KeyInvalidator(cache core.CacheRepository, key string, logger *slog.Logger) func() {
	if logger == nil {
		logger = slog.Default()
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), invalidateTimeout)
		defer cancel()

		if _, err := cache.Delete(ctx, key); err != nil {
			logger.Warn("cache invalidation failed", "key", key, "error", err)
		}
	}
}
