package feed

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventType_Valid(t *testing.T) {
	assert.True(t, EventInsert.Valid())
	assert.True(t, EventUpdate.Valid())
	assert.True(t, EventDelete.Valid())
	assert.True(t, EventAny.Valid())
	assert.False(t, EventType("TRUNCATE").Valid())
	assert.False(t, EventType("").Valid())
}

func TestEvent_Column(t *testing.T) {
	t.Run("prefers the new row image", func(t *testing.T) {
		event := Event{
			Type: EventUpdate,
			Old:  json.RawMessage(`{"user_id": "old-user"}`),
			New:  json.RawMessage(`{"user_id": "new-user"}`),
		}

		value, ok := event.Column("user_id")
		assert.True(t, ok)
		assert.Equal(t, "new-user", value)
	})

	t.Run("falls back to the old row image on delete", func(t *testing.T) {
		event := Event{
			Type: EventDelete,
			Old:  json.RawMessage(`{"org_id": "org-1"}`),
		}

		value, ok := event.Column("org_id")
		assert.True(t, ok)
		assert.Equal(t, "org-1", value)
	})

	t.Run("missing column", func(t *testing.T) {
		event := Event{
			Type: EventInsert,
			New:  json.RawMessage(`{"id": "1"}`),
		}

		_, ok := event.Column("user_id")
		assert.False(t, ok)
	})

	t.Run("null column value is treated as missing", func(t *testing.T) {
		event := Event{
			Type: EventInsert,
			New:  json.RawMessage(`{"user_id": null}`),
		}

		_, ok := event.Column("user_id")
		assert.False(t, ok)
	})
}

func TestFilter_String(t *testing.T) {
	f := Filter{Column: "org_id", Value: "org-1"}
	assert.Equal(t, "org_id=eq.org-1", f.String())
}

func TestFilter_Matches(t *testing.T) {
	f := Filter{Column: "org_id", Value: "org-1"}

	assert.True(t, f.Matches(Event{New: json.RawMessage(`{"org_id": "org-1"}`)}))
	assert.False(t, f.Matches(Event{New: json.RawMessage(`{"org_id": "org-2"}`)}))
	assert.False(t, f.Matches(Event{New: json.RawMessage(`{"id": "1"}`)}))
	assert.False(t, f.Matches(Event{}))
}
