package models

import "time"

// RescheduleStatus is the request lifecycle state. PENDING is the only
// non-terminal state: a request is reviewed exactly once.
type RescheduleStatus string

const (
	ReschedulePending  RescheduleStatus = "PENDING"
	RescheduleApproved RescheduleStatus = "APPROVED"
	RescheduleRejected RescheduleStatus = "REJECTED"
)

// Terminal reports whether the status admits no further transition.
func (s RescheduleStatus) Terminal() bool {
	return s == RescheduleApproved || s == RescheduleRejected
}

// RescheduleRequest is a student's petition to move a locked admin reminder.
// At most one PENDING request may exist per (reminder, requester) pair.
type RescheduleRequest struct {
	ID           string           `db:"id" json:"id"`
	ReminderID   string           `db:"reminder_id" json:"reminder_id"`
	RequestedBy  string           `db:"requested_by" json:"requested_by"`
	ProposedDate string           `db:"proposed_date" json:"proposed_date"`
	ProposedTime string           `db:"proposed_time" json:"proposed_time"`
	Reason       string           `db:"reason" json:"reason"`
	Status       RescheduleStatus `db:"status" json:"status"`
	ReviewedBy   *string          `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt   *time.Time       `db:"reviewed_at" json:"reviewed_at,omitempty"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
}
