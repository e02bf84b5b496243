package models

import "time"

// NotificationKind classifies feed entries.
const (
	NotificationRescheduleRequested = "RESCHEDULE_REQUESTED"
	NotificationRescheduleApproved  = "RESCHEDULE_APPROVED"
	NotificationRescheduleRejected  = "RESCHEDULE_REJECTED"
)

// Notification is an in-app feed entry. The feed is session-scoped state kept
// in Redis, not a durable delivery channel.
type Notification struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Kind       string    `json:"kind"`
	Message    string    `json:"message"`
	ReminderID string    `json:"reminder_id,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"created_at"`
}
