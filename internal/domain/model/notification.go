package model

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// NotificationType drives presentation of a notification, not behavior.
type NotificationType string

const (
	// NotificationInfo is a neutral informational notification.
	NotificationInfo NotificationType = "info"
	// NotificationSuccess reports successful completion of asynchronous work.
	NotificationSuccess NotificationType = "success"
	// NotificationWarning reports a condition that may need attention.
	NotificationWarning NotificationType = "warning"
	// NotificationError reports a failure.
	NotificationError NotificationType = "error"
)

// Valid returns true if the NotificationType is valid.
func (t NotificationType) Valid() bool {
	return t == NotificationInfo || t == NotificationSuccess ||
		t == NotificationWarning || t == NotificationError
}

// Notification is a per-user inbox record used as the observable side
// effect of asynchronous work. Created once, mutated only to flip Read.
type Notification struct {
	ID        string           `json:"id"         db:"id"`
	UserID    string           `json:"user_id"    db:"user_id"`
	OrgID     string           `json:"org_id"     db:"org_id"`
	Title     string           `json:"title"      db:"title"`
	Message   string           `json:"message"    db:"message"`
	Type      NotificationType `json:"type"       db:"type"`
	Read      bool             `json:"read"       db:"read"`
	Metadata  json.RawMessage  `json:"metadata"   db:"metadata"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
}

// NotificationMetadata is the conventional shape of Notification.Metadata.
// Link carries a click-through target; External marks it as an external
// resource rather than an internal route.
type NotificationMetadata struct {
	Link     string `json:"link,omitempty"`
	External bool   `json:"external,omitempty"`
}

// CreateNotificationRequest represents a request to insert a notification.
type CreateNotificationRequest struct {
	UserID   string           `json:"user_id"`
	OrgID    string           `json:"org_id"`
	Title    string           `json:"title"`
	Message  string           `json:"message"`
	Type     NotificationType `json:"type"`
	Metadata json.RawMessage  `json:"metadata,omitempty"`
}

// Validate validates the CreateNotificationRequest fields.
func (r *CreateNotificationRequest) Validate() error {
	if _, err := uuid.Parse(r.UserID); err != nil {
		return errors.New("user id must be a valid UUID")
	}
	if _, err := uuid.Parse(r.OrgID); err != nil {
		return errors.New("org id must be a valid UUID")
	}
	if r.Title == "" {
		return errors.New("title is required")
	}
	if !r.Type.Valid() {
		return errors.New("invalid notification type")
	}
	if len(r.Metadata) > 0 && !json.Valid(r.Metadata) {
		return errors.New("metadata must be valid JSON")
	}
	return nil
}
