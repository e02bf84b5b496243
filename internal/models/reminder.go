package models

import (
	"time"

	"github.com/lib/pq"
)

// ReminderPriority orders reminders for display.
type ReminderPriority string

const (
	PriorityLow    ReminderPriority = "LOW"
	PriorityMedium ReminderPriority = "MEDIUM"
	PriorityHigh   ReminderPriority = "HIGH"
)

// ReminderStatus tracks completion. OVERDUE is only ever asserted by data
// imports or admin edits, never derived from a clock.
type ReminderStatus string

const (
	StatusPending   ReminderStatus = "PENDING"
	StatusCompleted ReminderStatus = "COMPLETED"
	StatusOverdue   ReminderStatus = "OVERDUE"
)

// NotificationType selects the delivery channel recorded on a reminder.
type NotificationType string

const (
	NotifyEmail NotificationType = "EMAIL"
	NotifyApp   NotificationType = "APP"
	NotifyBoth  NotificationType = "BOTH"
)

// Reminder categories. Category is stored as free text, these are the values
// the UI offers.
const (
	CategoryWork     = "work"
	CategoryPersonal = "personal"
	CategoryHealth   = "health"
	CategoryFinance  = "finance"
	CategoryAcademic = "academic"
	CategoryOther    = "other"
)

// DefaultDurationMinutes is assumed whenever a reminder carries no explicit
// duration; it only matters for overlap detection.
const DefaultDurationMinutes = 60

// Reminder represents a scheduled task or personal reminder. Date is a naive
// ISO calendar date (YYYY-MM-DD) and Time a naive HH:MM; no timezone math is
// applied anywhere. An admin-created reminder with an empty AssignedTo set is
// a broadcast visible to every student.
type Reminder struct {
	ID               string           `db:"id" json:"id"`
	Title            string           `db:"title" json:"title"`
	Description      string           `db:"description" json:"description"`
	Date             string           `db:"date" json:"date"`
	Time             string           `db:"time" json:"time"`
	Priority         ReminderPriority `db:"priority" json:"priority"`
	Category         string           `db:"category" json:"category"`
	Status           ReminderStatus   `db:"status" json:"status"`
	Recurring        bool             `db:"recurring" json:"recurring"`
	NotificationType NotificationType `db:"notification_type" json:"notification_type"`
	CreatedBy        string           `db:"created_by" json:"created_by"`
	CreatedByRole    UserRole         `db:"created_by_role" json:"created_by_role"`
	AssignedTo       pq.StringArray   `db:"assigned_to" json:"assigned_to"`
	TargetFilter     string           `db:"target_filter" json:"target_filter"`
	IsLocked         bool             `db:"is_locked" json:"is_locked"`
	DurationMinutes  int              `db:"duration_minutes" json:"duration_minutes"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updated_at"`
}

// IsBroadcast reports whether the reminder targets every student.
func (r *Reminder) IsBroadcast() bool {
	return r.CreatedByRole == RoleAdmin && len(r.AssignedTo) == 0
}

// IsAssignedTo reports whether the given user is an explicit assignee.
func (r *Reminder) IsAssignedTo(userID string) bool {
	for _, id := range r.AssignedTo {
		if id == userID {
			return true
		}
	}
	return false
}

// Duration returns the effective duration used for overlap math.
func (r *Reminder) Duration() int {
	if r.DurationMinutes <= 0 {
		return DefaultDurationMinutes
	}
	return r.DurationMinutes
}

// ReminderFilter narrows reminder listings.
type ReminderFilter struct {
	Date     string
	Status   *ReminderStatus
	Priority *ReminderPriority
	Category string
}

// ReminderConflict describes one admin reminder that blocks a student slot.
// Creation conflicts enumerate every blocking reminder, not just the first.
type ReminderConflict struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	DurationMinutes int    `json:"duration_minutes"`
}
