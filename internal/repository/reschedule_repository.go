package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/remindly-app/remindly-api/internal/models"
)

// ErrDuplicatePending signals that the requester already has a pending
// request against the same reminder.
var ErrDuplicatePending = errors.New("pending reschedule request already exists")

const rescheduleColumns = `id, reminder_id, requested_by, proposed_date, proposed_time, reason, status, reviewed_by, reviewed_at, created_at, updated_at`

// RescheduleRepository provides persistence for reschedule requests.
type RescheduleRepository struct {
	db *sqlx.DB
}

// NewRescheduleRepository creates the repository.
func NewRescheduleRepository(db *sqlx.DB) *RescheduleRepository {
	return &RescheduleRepository{db: db}
}

// CreatePending inserts a new pending request, enforcing the at-most-one-
// pending-per-(reminder, requester) invariant inside a serialized critical
// section. Returns ErrDuplicatePending when the invariant would be violated.
func (r *RescheduleRepository) CreatePending(ctx context.Context, req *models.RescheduleRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	req.Status = models.ReschedulePending
	req.CreatedAt = now
	req.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create request: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	lockKey := fmt.Sprintf("remindly:resched:%s:%s", req.ReminderID, req.RequestedBy)
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey); err != nil {
		return fmt.Errorf("acquire request lock: %w", err)
	}

	var exists bool
	const existsQuery = `SELECT EXISTS (SELECT 1 FROM reschedule_requests WHERE reminder_id = $1 AND requested_by = $2 AND status = 'PENDING')`
	if err := tx.GetContext(ctx, &exists, existsQuery, req.ReminderID, req.RequestedBy); err != nil {
		return fmt.Errorf("check pending request: %w", err)
	}
	if exists {
		return ErrDuplicatePending
	}

	const insertQuery = `INSERT INTO reschedule_requests (id, reminder_id, requested_by, proposed_date, proposed_time, reason, status, created_at, updated_at)
VALUES (:id, :reminder_id, :requested_by, :proposed_date, :proposed_time, :reason, :status, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insertQuery, req); err != nil {
		return fmt.Errorf("create reschedule request: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create request: %w", err)
	}
	return nil
}

// FindByID returns a request by identifier.
func (r *RescheduleRepository) FindByID(ctx context.Context, id string) (*models.RescheduleRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM reschedule_requests WHERE id = $1 LIMIT 1`, rescheduleColumns)
	var req models.RescheduleRequest
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find reschedule request: %w", err)
	}
	return &req, nil
}

// ListByRequester returns all requests a student has submitted.
func (r *RescheduleRepository) ListByRequester(ctx context.Context, userID string) ([]models.RescheduleRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM reschedule_requests WHERE requested_by = $1 ORDER BY created_at DESC`, rescheduleColumns)
	var requests []models.RescheduleRequest
	if err := r.db.SelectContext(ctx, &requests, query, userID); err != nil {
		return nil, fmt.Errorf("list requests by requester: %w", err)
	}
	return requests, nil
}

// ListAll returns every request, pending first, for the admin review queue.
func (r *RescheduleRepository) ListAll(ctx context.Context) ([]models.RescheduleRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM reschedule_requests ORDER BY (status = 'PENDING') DESC, created_at DESC`, rescheduleColumns)
	var requests []models.RescheduleRequest
	if err := r.db.SelectContext(ctx, &requests, query); err != nil {
		return nil, fmt.Errorf("list all requests: %w", err)
	}
	return requests, nil
}

// MarkReviewed finalizes a pending request. The status predicate makes the
// review terminal even under concurrent admins: only one update can win.
func (r *RescheduleRepository) MarkReviewed(ctx context.Context, id string, status models.RescheduleStatus, reviewedBy string, reviewedAt time.Time) error {
	const query = `UPDATE reschedule_requests SET status = $2, reviewed_by = $3, reviewed_at = $4, updated_at = $4
WHERE id = $1 AND status = 'PENDING'`
	res, err := r.db.ExecContext(ctx, query, id, status, reviewedBy, reviewedAt)
	if err != nil {
		return fmt.Errorf("mark request reviewed: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
