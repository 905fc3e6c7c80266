// Package feedsync keeps Redis-cached read models consistent with the
// database by consuming the row change feed. Notification changes drop the
// affected user's unread count immediately; job and case file churn drops
// per-org dashboard aggregates behind a debounce window.
package feedsync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/lexia/casedesk/internal/core"
	"github.com/lexia/casedesk/internal/feed"
	"github.com/lexia/casedesk/internal/service"
)

// DashboardCountsKey returns the cache key holding an org's dashboard
// aggregates.
func DashboardCountsKey(orgID string) string {
	return "casedesk:dashboard:counts:" + orgID
}

// RunnerOptions configures the feed sync adapter.
type RunnerOptions struct {
	Bridge   *feed.Bridge         // Required: change feed bridge
	Cache    core.CacheRepository // Required: cache to invalidate
	Logger   *slog.Logger         // Optional: structured logger
	Debounce time.Duration        // Optional: debounce for aggregate invalidations
}

// Runner wires the standing cache invalidation subscriptions.
//
// Dashboard invalidations are debounced per org: the org only becomes
// known per event, so the runner keeps its own timer per cache key rather
// than using the bridge's per-subscription debounce.
type Runner struct {
	bridge   *feed.Bridge
	cache    core.CacheRepository
	logger   *slog.Logger
	debounce time.Duration

	subs []*feed.Subscription

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

// NewRunner constructs the feed sync adapter.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Bridge == nil {
		return nil, errors.New("feed bridge is required")
	}
	if opts.Cache == nil {
		return nil, errors.New("CacheRepository is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = feed.DefaultDebounce
	}

	return &Runner{
		bridge:   opts.Bridge,
		cache:    opts.Cache,
		logger:   logger,
		debounce: debounce,
		timers:   make(map[string]*time.Timer),
	}, nil
}

// Run subscribes and blocks until the context is cancelled, then tears the
// subscriptions down.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.subscribe(); err != nil {
		r.shutdown()
		return err
	}

	r.logger.InfoContext(ctx, "feed sync running", "subscriptions", len(r.subs))

	<-ctx.Done()
	r.shutdown()

	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}

func (r *Runner) subscribe() error {
	// Notification changes carry the affected user in the row, so the
	// unread count key is dropped per event with no debounce.
	notifSub, err := r.bridge.Subscribe(feed.SubscriptionConfig{
		Channel: "feed-sync",
		Table:   "notifications",
		OnEvent: r.onNotificationChange,
	})
	if err != nil {
		return err
	}
	r.subs = append(r.subs, notifSub)

	// Jobs and case files churn in bursts during imports and bulk
	// exports; their dashboard aggregates are invalidated debounced.
	for _, table := range []string{"jobs", "case_files"} {
		sub, err := r.bridge.Subscribe(feed.SubscriptionConfig{
			Channel: "feed-sync",
			Table:   table,
			OnEvent: r.onOrgScopedChange,
		})
		if err != nil {
			return err
		}
		r.subs = append(r.subs, sub)
	}

	return nil
}

func (r *Runner) onNotificationChange(event feed.Event) {
	userID, ok := event.Column("user_id")
	if !ok {
		return
	}
	r.invalidate(service.UnreadCountKey(userID))
}

func (r *Runner) onOrgScopedChange(event feed.Event) {
	orgID, ok := event.Column("org_id")
	if !ok {
		return
	}
	r.invalidateDebounced(DashboardCountsKey(orgID))
}

// invalidateDebounced schedules a deletion of key after the quiet window,
// resetting the window when the key is hit again.
func (r *Runner) invalidateDebounced(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	if timer, ok := r.timers[key]; ok {
		timer.Stop()
	}
	r.timers[key] = time.AfterFunc(r.debounce, func() {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return
		}
		delete(r.timers, key)
		r.mu.Unlock()

		r.invalidate(key)
	})
}

func (r *Runner) invalidate(key string) {
	feed.KeyInvalidator(r.cache, key, r.logger)()
}

// shutdown unsubscribes everything and cancels pending debounce timers.
func (r *Runner) shutdown() {
	for _, sub := range r.subs {
		sub.Unsubscribe()
	}
	r.subs = nil

	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for key, timer := range r.timers {
		timer.Stop()
		delete(r.timers, key)
	}
}
