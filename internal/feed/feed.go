// Package feed bridges a stream of row-level change events into immediate
// delta callbacks and debounced cache invalidations. It is the one generic
// live-update mechanism; every consumer differs only in configuration.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
)

// EventType identifies the kind of row mutation an event describes.
type EventType string

const (
	// EventInsert is a row insertion.
	EventInsert EventType = "INSERT"
	// EventUpdate is a row update.
	EventUpdate EventType = "UPDATE"
	// EventDelete is a row deletion.
	EventDelete EventType = "DELETE"
	// EventAny matches every event type.
	EventAny EventType = "*"
)

// Valid returns true if the EventType is valid.
func (t EventType) Valid() bool {
	return t == EventInsert || t == EventUpdate || t == EventDelete || t == EventAny
}

// Event is one committed row mutation as emitted by the change feed
// source. Old is set for UPDATE/DELETE, New for INSERT/UPDATE. Delivery
// order relative to commit order is not guaranteed; consumers needing
// authoritative order must re-fetch state instead.
type Event struct {
	Type   EventType       `json:"event_type"`
	Schema string          `json:"schema"`
	Table  string          `json:"table"`
	Old    json.RawMessage `json:"old,omitempty"`
	New    json.RawMessage `json:"new,omitempty"`
}

// Column extracts a column value from the event row as a string,
// preferring the new row image over the old one.
func (e Event) Column(name string) (string, bool) {
	for _, raw := range [][]byte{e.New, e.Old} {
		if len(raw) == 0 {
			continue
		}
		var row map[string]any
		if err := json.Unmarshal(raw, &row); err != nil {
			continue
		}
		if v, ok := row[name]; ok && v != nil {
			return fmt.Sprint(v), true
		}
	}
	return "", false
}

// Filter narrows a subscription to rows where one column equals a value.
// It is applied at the source boundary, before fan-out.
type Filter struct {
	Column string
	Value  string
}

// String renders the filter in column=eq.value form, which doubles as the
// filter's part of the subscription composite key.
func (f Filter) String() string {
	return f.Column + "=eq." + f.Value
}

// Matches reports whether the event's row satisfies the filter.
func (f Filter) Matches(e Event) bool {
	v, ok := e.Column(f.Column)
	return ok && v == f.Value
}

// Source emits change events for one table, optionally narrowed by an
// equality filter. The returned close function releases the underlying
// stream; after close the channel is eventually closed.
type Source interface {
	Open(ctx context.Context, table string, filter *Filter) (<-chan Event, func(), error)
}
