package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/remindly-app/remindly-api/internal/models"
)

func newRescheduleRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestRescheduleRepositoryCreatePending(t *testing.T) {
	db, mock, cleanup := newRescheduleRepoMock(t)
	defer cleanup()

	repo := NewRescheduleRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("rem-1", "stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO reschedule_requests")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	req := &models.RescheduleRequest{
		ReminderID:   "rem-1",
		RequestedBy:  "stu-1",
		ProposedDate: "2026-09-12",
		ProposedTime: "09:30",
		Reason:       "doctor appointment",
	}
	require.NoError(t, repo.CreatePending(context.Background(), req))
	require.NotEmpty(t, req.ID)
	require.Equal(t, models.ReschedulePending, req.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRescheduleRepositoryCreatePendingDuplicate(t *testing.T) {
	db, mock, cleanup := newRescheduleRepoMock(t)
	defer cleanup()

	repo := NewRescheduleRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("rem-1", "stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	req := &models.RescheduleRequest{ReminderID: "rem-1", RequestedBy: "stu-1", ProposedDate: "2026-09-12", ProposedTime: "09:30"}
	require.ErrorIs(t, repo.CreatePending(context.Background(), req), ErrDuplicatePending)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRescheduleRepositoryMarkReviewed(t *testing.T) {
	db, mock, cleanup := newRescheduleRepoMock(t)
	defer cleanup()

	repo := NewRescheduleRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE reschedule_requests SET status")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MarkReviewed(context.Background(), "req-1", models.RescheduleApproved, "admin-1", time.Now()))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE reschedule_requests SET status")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorIs(t, repo.MarkReviewed(context.Background(), "req-1", models.RescheduleRejected, "admin-2", time.Now()), sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRescheduleRepositoryListAll(t *testing.T) {
	db, mock, cleanup := newRescheduleRepoMock(t)
	defer cleanup()

	repo := NewRescheduleRepository(db)
	rows := sqlmock.NewRows([]string{"id", "reminder_id", "requested_by", "proposed_date", "proposed_time", "reason", "status", "reviewed_by", "reviewed_at", "created_at", "updated_at"}).
		AddRow("req-1", "rem-1", "stu-1", "2026-09-12", "09:30", "clash with practice", models.ReschedulePending, nil, nil, time.Now(), time.Now()).
		AddRow("req-2", "rem-2", "stu-2", "2026-09-13", "11:00", "", models.RescheduleApproved, "admin-1", time.Now(), time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, reminder_id, requested_by")).
		WillReturnRows(rows)

	requests, err := repo.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, requests, 2)
	require.Equal(t, models.ReschedulePending, requests[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}
