package feed

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lexia/casedesk/internal/data/pgxutil"
)

// changeChannelPrefix is the NOTIFY channel prefix used by the row change
// triggers; the full channel name is the prefix plus the table name.
const changeChannelPrefix = "row_change_"

// PGListenerOptions configure the behaviour of a PGListener.
type PGListenerOptions struct {
	DB      *sql.DB
	Logger  *slog.Logger
	Backoff time.Duration
}

// PGListener implements Source over Postgres LISTEN/NOTIFY. Each open
// stream holds one dedicated connection; on connection loss it reconnects
// after a backoff and resumes listening. Notifications raised while the
// connection is down are lost, which is acceptable for the cache
// invalidation and delta delivery this feed serves.
type PGListener struct {
	db      *sql.DB
	logger  *slog.Logger
	backoff time.Duration
}

// NewPGListener constructs a PGListener over the given pool.
func NewPGListener(opts PGListenerOptions) (*PGListener, error) {
	if opts.DB == nil {
		return nil, errors.New("listener db is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = time.Second
	}

	return &PGListener{db: opts.DB, logger: logger, backoff: backoff}, nil
}

// Open starts listening for changes on one table. Events are filtered at
// this boundary when a filter is given, so subscribers sharing the stream
// only ever see matching rows.
func (l *PGListener) Open(ctx context.Context, table string, filter *Filter) (<-chan Event, func(), error) {
	if table == "" {
		return nil, nil, errors.New("listener table is required")
	}

	streamCtx, cancel := context.WithCancel(ctx)
	events := make(chan Event, 16)
	go l.run(streamCtx, table, filter, events)
	return events, cancel, nil
}

func (l *PGListener) run(ctx context.Context, table string, filter *Filter, events chan<- Event) {
	defer close(events)

	for ctx.Err() == nil {
		err := l.listenOnce(ctx, table, filter, events)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			l.logger.Warn("change feed connection lost, reconnecting",
				"table", table, "error", err)
		}

		timer := time.NewTimer(l.backoff)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return
		case <-timer.C:
		}
	}
}

func (l *PGListener) listenOnce(ctx context.Context, table string, filter *Filter, events chan<- Event) error {
	return pgxutil.WithPgxConn(ctx, l.db, func(conn *pgx.Conn) error {
		channel := pgx.Identifier{changeChannelPrefix + table}.Sanitize()
		if _, err := conn.Exec(ctx, "LISTEN "+channel); err != nil {
			return fmt.Errorf("listen %s: %w", channel, err)
		}

		for {
			notification, err := conn.WaitForNotification(ctx)
			if err != nil {
				return err
			}

			var event Event
			if err := json.Unmarshal([]byte(notification.Payload), &event); err != nil {
				l.logger.Warn("discarding malformed change payload",
					"table", table, "error", err)
				continue
			}
			if filter != nil && !filter.Matches(event) {
				continue
			}

			select {
			case events <- event:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
}

var _ Source = (*PGListener)(nil)
