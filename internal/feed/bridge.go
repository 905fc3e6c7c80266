package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultDebounce is the debounce window applied to Invalidate callbacks
// when a subscription does not set its own.
const DefaultDebounce = 500 * time.Millisecond

// ErrSourceRequired indicates a bridge cannot be constructed without a source.
var ErrSourceRequired = errors.New("bridge source is required")

// ErrBridgeClosed indicates the bridge has been stopped and accepts no new
// subscriptions.
var ErrBridgeClosed = errors.New("bridge is closed")

// SubscriptionConfig describes one consumer of the change feed.
type SubscriptionConfig struct {
	// Channel names the consumer for stream sharing; subscriptions with
	// the same channel, table, and filter share one source stream.
	Channel string
	// Table is the table whose changes are observed.
	Table string
	// Filter optionally narrows events to rows matching a column equality.
	Filter *Filter
	// Event restricts delivery to one event type. Defaults to EventAny.
	Event EventType
	// OnEvent, if set, is invoked synchronously for every matching event.
	OnEvent func(Event)
	// Invalidate, if set, is invoked once per burst of matching events,
	// after Debounce of quiet.
	Invalidate func()
	// Debounce is the quiet window for Invalidate. Defaults to DefaultDebounce.
	Debounce time.Duration
}

func (c SubscriptionConfig) streamKey() string {
	filterKey := "all"
	if c.Filter != nil {
		filterKey = c.Filter.String()
	}
	return fmt.Sprintf("%s-%s-%s", c.Channel, c.Table, filterKey)
}

// BridgeOptions configure the behaviour of a Bridge.
type BridgeOptions struct {
	Source Source
	Logger *slog.Logger
}

// Bridge multiplexes change feed subscriptions over shared source streams.
// Identical subscriptions reuse one stream; the last unsubscriber closes it.
type Bridge struct {
	source Source
	logger *slog.Logger

	mu      sync.Mutex
	streams map[string]*stream
	closed  bool
}

// NewBridge constructs a Bridge over the given source.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Source == nil {
		return nil, ErrSourceRequired
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Bridge{
		source:  opts.Source,
		logger:  logger,
		streams: make(map[string]*stream),
	}, nil
}

// Subscribe registers a consumer and returns its subscription handle. The
// underlying source stream is opened on first use and shared with any later
// subscription carrying the same channel, table, and filter.
func (b *Bridge) Subscribe(cfg SubscriptionConfig) (*Subscription, error) {
	if cfg.Table == "" {
		return nil, errors.New("subscription table is required")
	}
	if cfg.OnEvent == nil && cfg.Invalidate == nil {
		return nil, errors.New("subscription needs OnEvent or Invalidate")
	}

	event := cfg.Event
	if event == "" {
		event = EventAny
	}
	if !event.Valid() {
		return nil, fmt.Errorf("invalid event type %q", cfg.Event)
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBridgeClosed
	}

	key := cfg.streamKey()
	st, ok := b.streams[key]
	if !ok {
		opened, err := b.openStream(key, cfg.Table, cfg.Filter)
		if err != nil {
			return nil, err
		}
		st = opened
		b.streams[key] = st
	}

	sub := &Subscription{
		bridge:     b,
		stream:     st,
		event:      event,
		onEvent:    cfg.OnEvent,
		invalidate: cfg.Invalidate,
		debounce:   debounce,
	}

	st.mu.Lock()
	st.subs[sub] = struct{}{}
	st.mu.Unlock()

	return sub, nil
}

// StopAll closes every source stream and tears down every subscription.
// Pending debounce timers are cancelled.
func (b *Bridge) StopAll() {
	b.mu.Lock()
	b.closed = true
	streams := make([]*stream, 0, len(b.streams))
	for key, st := range b.streams {
		streams = append(streams, st)
		delete(b.streams, key)
	}
	b.mu.Unlock()

	for _, st := range streams {
		st.close()
		for _, sub := range st.snapshot() {
			sub.teardown()
		}
	}
}

func (b *Bridge) openStream(key, table string, filter *Filter) (*stream, error) {
	ctx, cancel := context.WithCancel(context.Background())
	events, closeSource, err := b.source.Open(ctx, table, filter)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open change stream %s: %w", key, err)
	}

	st := &stream{
		key:         key,
		cancel:      cancel,
		closeSource: closeSource,
		subs:        make(map[*Subscription]struct{}),
	}
	go b.fanOut(st, events)
	return st, nil
}

func (b *Bridge) fanOut(st *stream, events <-chan Event) {
	for event := range events {
		for _, sub := range st.snapshot() {
			sub.dispatch(event)
		}
	}
	b.logger.Debug("change stream ended", "stream", st.key)
}

// releaseStream drops a subscription from its stream and closes the stream
// when it was the last one.
func (b *Bridge) releaseStream(st *stream, sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st.mu.Lock()
	delete(st.subs, sub)
	remaining := len(st.subs)
	st.mu.Unlock()

	if remaining == 0 {
		if current, ok := b.streams[st.key]; ok && current == st {
			delete(b.streams, st.key)
		}
		st.close()
	}
}

type stream struct {
	key         string
	cancel      context.CancelFunc
	closeSource func()

	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

func (s *stream) snapshot() []*Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs := make([]*Subscription, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	return subs
}

func (s *stream) close() {
	s.cancel()
	if s.closeSource != nil {
		s.closeSource()
	}
}

// Subscription is one consumer's handle on the change feed.
type Subscription struct {
	bridge     *Bridge
	stream     *stream
	event      EventType
	onEvent    func(Event)
	invalidate func()
	debounce   time.Duration

	mu     sync.Mutex
	timer  *time.Timer
	closed bool
}

// Unsubscribe tears the subscription down. Any pending debounce timer is
// stopped so the Invalidate callback never fires after teardown, and the
// shared source stream is closed when this was its last subscriber.
func (s *Subscription) Unsubscribe() {
	if !s.teardown() {
		return
	}
	s.bridge.releaseStream(s.stream, s)
}

// teardown marks the subscription closed and cancels its timer. It returns
// false when the subscription was already closed.
func (s *Subscription) teardown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	return true
}

func (s *Subscription) dispatch(event Event) {
	if s.event != EventAny && event.Type != s.event {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.invalidate != nil {
		if s.timer != nil {
			s.timer.Stop()
		}
		s.timer = time.AfterFunc(s.debounce, s.fire)
	}
	onEvent := s.onEvent
	s.mu.Unlock()

	if onEvent != nil {
		onEvent(event)
	}
}

// fire runs the debounced Invalidate callback. The callback is invoked under
// the subscription mutex so a concurrent Unsubscribe either cancels it or
// waits for it; Invalidate must not call back into the subscription.
func (s *Subscription) fire() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.timer = nil
	s.invalidate()
}
