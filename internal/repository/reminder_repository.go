package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/remindly-app/remindly-api/internal/models"
)

const reminderColumns = `id, title, description, date, time, priority, category, status, recurring, notification_type, created_by, created_by_role, assigned_to, target_filter, is_locked, duration_minutes, created_at, updated_at`

// studentVisibility keeps listing and same-day snapshots on one definition of
// "visible to this student": own reminders, explicit assignments, broadcasts.
const studentVisibility = `(created_by = $%d OR $%d = ANY(assigned_to) OR (created_by_role = 'ADMIN' AND cardinality(assigned_to) = 0))`

// ReminderRepository provides persistence for reminders.
type ReminderRepository struct {
	db *sqlx.DB
}

// NewReminderRepository creates the repository.
func NewReminderRepository(db *sqlx.DB) *ReminderRepository {
	return &ReminderRepository{db: db}
}

// ListAll returns every reminder, for admin listings.
func (r *ReminderRepository) ListAll(ctx context.Context, filter models.ReminderFilter) ([]models.Reminder, error) {
	base := "FROM reminders WHERE 1=1"
	where, args := filterConditions(filter, 0)
	if len(where) > 0 {
		base += " AND " + strings.Join(where, " AND ")
	}
	query := fmt.Sprintf("SELECT %s %s ORDER BY date ASC, time ASC", reminderColumns, base)
	var reminders []models.Reminder
	if err := r.db.SelectContext(ctx, &reminders, query, args...); err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	return reminders, nil
}

// ListVisibleToStudent returns the union of a student's own reminders, the
// admin reminders assigned to them, and admin broadcasts.
func (r *ReminderRepository) ListVisibleToStudent(ctx context.Context, studentID string, filter models.ReminderFilter) ([]models.Reminder, error) {
	args := []interface{}{studentID}
	base := "FROM reminders WHERE " + fmt.Sprintf(studentVisibility, 1, 1)
	where, filterArgs := filterConditions(filter, len(args))
	if len(where) > 0 {
		base += " AND " + strings.Join(where, " AND ")
		args = append(args, filterArgs...)
	}
	query := fmt.Sprintf("SELECT %s %s ORDER BY date ASC, time ASC", reminderColumns, base)
	var reminders []models.Reminder
	if err := r.db.SelectContext(ctx, &reminders, query, args...); err != nil {
		return nil, fmt.Errorf("list student reminders: %w", err)
	}
	return reminders, nil
}

// FindByID returns a reminder by identifier.
func (r *ReminderRepository) FindByID(ctx context.Context, id string) (*models.Reminder, error) {
	query := fmt.Sprintf(`SELECT %s FROM reminders WHERE id = $1 LIMIT 1`, reminderColumns)
	var reminder models.Reminder
	if err := r.db.GetContext(ctx, &reminder, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find reminder by id: %w", err)
	}
	return &reminder, nil
}

// Create inserts a reminder without any scheduling guard. Admin creations use
// this path: admin tasks define the conflict surface and are not checked
// against each other.
func (r *ReminderRepository) Create(ctx context.Context, reminder *models.Reminder) error {
	prepareInsert(reminder)
	if _, err := r.db.NamedExecContext(ctx, insertReminderQuery, reminder); err != nil {
		return fmt.Errorf("create reminder: %w", err)
	}
	return nil
}

// CreateWithDayGuard inserts a student reminder inside a serialized critical
// section: an advisory transaction lock keyed on (creator, date) makes the
// same-day snapshot consistent relative to the insert, so two concurrent
// creations by one student on one date cannot both pass the guard. The guard
// receives every admin reminder visible to the creator on that date and
// aborts the insert by returning an error.
func (r *ReminderRepository) CreateWithDayGuard(ctx context.Context, reminder *models.Reminder, guard func(sameDay []models.Reminder) error) error {
	prepareInsert(reminder)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin guarded create: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	lockKey := fmt.Sprintf("remindly:day:%s:%s", reminder.CreatedBy, reminder.Date)
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey); err != nil {
		return fmt.Errorf("acquire day lock: %w", err)
	}

	snapshotQuery := fmt.Sprintf(`SELECT %s FROM reminders
WHERE date = $1 AND created_by_role = 'ADMIN' AND (cardinality(assigned_to) = 0 OR $2 = ANY(assigned_to))`, reminderColumns)
	var sameDay []models.Reminder
	if err := tx.SelectContext(ctx, &sameDay, snapshotQuery, reminder.Date, reminder.CreatedBy); err != nil {
		return fmt.Errorf("load same-day reminders: %w", err)
	}

	if err := guard(sameDay); err != nil {
		return err
	}

	if _, err := tx.NamedExecContext(ctx, insertReminderQuery, reminder); err != nil {
		return fmt.Errorf("create reminder: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit guarded create: %w", err)
	}
	return nil
}

// Update rewrites the mutable fields of a reminder.
func (r *ReminderRepository) Update(ctx context.Context, reminder *models.Reminder) error {
	reminder.UpdatedAt = time.Now().UTC()
	const query = `UPDATE reminders SET title = :title, description = :description, date = :date, time = :time,
priority = :priority, category = :category, status = :status, recurring = :recurring,
notification_type = :notification_type, assigned_to = :assigned_to, target_filter = :target_filter,
duration_minutes = :duration_minutes, updated_at = :updated_at
WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, reminder); err != nil {
		return fmt.Errorf("update reminder: %w", err)
	}
	return nil
}

// UpdateStatus flips only the completion status.
func (r *ReminderRepository) UpdateStatus(ctx context.Context, id string, status models.ReminderStatus) error {
	const query = `UPDATE reminders SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update reminder status: %w", err)
	}
	return nil
}

// UpdateSchedule moves a reminder to a new slot. Used by approved reschedule
// requests; duration and every other field stay untouched.
func (r *ReminderRepository) UpdateSchedule(ctx context.Context, id, date, timeOfDay string) error {
	const query = `UPDATE reminders SET date = $2, time = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, date, timeOfDay, time.Now().UTC()); err != nil {
		return fmt.Errorf("update reminder schedule: %w", err)
	}
	return nil
}

// Delete removes a reminder.
func (r *ReminderRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete reminder: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

const insertReminderQuery = `INSERT INTO reminders (id, title, description, date, time, priority, category, status, recurring, notification_type, created_by, created_by_role, assigned_to, target_filter, is_locked, duration_minutes, created_at, updated_at)
VALUES (:id, :title, :description, :date, :time, :priority, :category, :status, :recurring, :notification_type, :created_by, :created_by_role, :assigned_to, :target_filter, :is_locked, :duration_minutes, :created_at, :updated_at)`

func prepareInsert(reminder *models.Reminder) {
	if reminder.ID == "" {
		reminder.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if reminder.CreatedAt.IsZero() {
		reminder.CreatedAt = now
	}
	reminder.UpdatedAt = now
	if reminder.AssignedTo == nil {
		reminder.AssignedTo = []string{}
	}
}

func filterConditions(filter models.ReminderFilter, offset int) ([]string, []interface{}) {
	var conditions []string
	var args []interface{}
	if filter.Date != "" {
		conditions = append(conditions, fmt.Sprintf("date = $%d", offset+len(args)+1))
		args = append(args, filter.Date)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", offset+len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.Priority != nil {
		conditions = append(conditions, fmt.Sprintf("priority = $%d", offset+len(args)+1))
		args = append(args, *filter.Priority)
	}
	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("category = $%d", offset+len(args)+1))
		args = append(args, filter.Category)
	}
	return conditions, args
}
