package domain

import (
	"time"

	"github.com/google/uuid"
)

// Login lifecycle event types.
const (
	EventLoginStarted          = "login_started"
	EventLoginPasswordRequired = "login_password_required"
	EventLoginSucceeded        = "login_succeeded"
	EventLoginFailed           = "login_failed"
	EventLoginAbandoned        = "login_abandoned"
	EventLogout                = "logout"
)

// Event is a user-scoped lifecycle event. It is the JSON payload written to
// Kafka and the row stored in login_events.
type Event struct {
	ID        string            `json:"id"`
	UserID    int64             `json:"userId"`
	EventType string            `json:"eventType"`
	Source    string            `json:"source"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// NewEvent returns an event with a fresh id stamped at the current time.
func NewEvent(userID int64, eventType, source string, metadata map[string]string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		UserID:    userID,
		EventType: eventType,
		Source:    source,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
}
