package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/remindly-app/remindly-api/internal/models"
	"github.com/remindly-app/remindly-api/internal/repository"
	appErrors "github.com/remindly-app/remindly-api/pkg/errors"
)

type mockRescheduleRepo struct {
	requests map[string]*models.RescheduleRequest
	seq      int
}

func (m *mockRescheduleRepo) store(r *models.RescheduleRequest) {
	if m.requests == nil {
		m.requests = make(map[string]*models.RescheduleRequest)
	}
	cp := *r
	m.requests[r.ID] = &cp
}

func (m *mockRescheduleRepo) CreatePending(ctx context.Context, req *models.RescheduleRequest) error {
	for _, existing := range m.requests {
		if existing.ReminderID == req.ReminderID && existing.RequestedBy == req.RequestedBy && existing.Status == models.ReschedulePending {
			return repository.ErrDuplicatePending
		}
	}
	m.seq++
	req.ID = "req-" + string(rune('0'+m.seq))
	req.Status = models.ReschedulePending
	req.CreatedAt = time.Now().UTC()
	req.UpdatedAt = req.CreatedAt
	m.store(req)
	return nil
}

func (m *mockRescheduleRepo) FindByID(ctx context.Context, id string) (*models.RescheduleRequest, error) {
	if r, ok := m.requests[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockRescheduleRepo) ListByRequester(ctx context.Context, userID string) ([]models.RescheduleRequest, error) {
	var out []models.RescheduleRequest
	for _, r := range m.requests {
		if r.RequestedBy == userID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *mockRescheduleRepo) ListAll(ctx context.Context) ([]models.RescheduleRequest, error) {
	var out []models.RescheduleRequest
	for _, r := range m.requests {
		out = append(out, *r)
	}
	return out, nil
}

func (m *mockRescheduleRepo) MarkReviewed(ctx context.Context, id string, status models.RescheduleStatus, reviewedBy string, reviewedAt time.Time) error {
	r, ok := m.requests[id]
	if !ok || r.Status != models.ReschedulePending {
		return sql.ErrNoRows
	}
	r.Status = status
	r.ReviewedBy = &reviewedBy
	r.ReviewedAt = &reviewedAt
	r.UpdatedAt = reviewedAt
	return nil
}

type captureListener struct {
	events []RescheduleEvent
}

func (c *captureListener) OnRescheduleEvent(event RescheduleEvent) {
	c.events = append(c.events, event)
}

func newRescheduleFixture() (*RescheduleService, *mockRescheduleRepo, *mockReminderRepo, *captureListener) {
	reqRepo := &mockRescheduleRepo{}
	remRepo := &mockReminderRepo{}
	remRepo.store(&models.Reminder{
		ID: "exam", Title: "Exam", Date: "2026-09-10", Time: "10:00",
		DurationMinutes: 120, CreatedBy: "admin-1", CreatedByRole: models.RoleAdmin,
		AssignedTo: pq.StringArray{"stu-1"}, IsLocked: true,
	})
	svc := NewRescheduleService(reqRepo, remRepo, NewAccessPolicy(), validator.New(), zap.NewNop())
	listener := &captureListener{}
	svc.Subscribe(listener)
	return svc, reqRepo, remRepo, listener
}

func TestSubmitCreatesPendingAndNotifies(t *testing.T) {
	svc, _, _, listener := newRescheduleFixture()
	student := Actor{ID: "stu-1", Role: models.RoleStudent}

	request, err := svc.Submit(context.Background(), student, SubmitRescheduleRequest{
		ReminderID:   "exam",
		ProposedDate: "2026-09-11",
		ProposedTime: "10:00",
		Reason:       "doctor appointment",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ReschedulePending, request.Status)
	assert.Equal(t, "stu-1", request.RequestedBy)

	require.Len(t, listener.events, 1)
	assert.Equal(t, EventRescheduleSubmitted, listener.events[0].Kind)
	assert.Equal(t, "exam", listener.events[0].Reminder.ID)
}

func TestSubmitAgainstUnlockedIsValidation(t *testing.T) {
	svc, _, remRepo, _ := newRescheduleFixture()
	remRepo.store(&models.Reminder{
		ID: "gym", Title: "Gym", Date: "2026-09-10", Time: "18:00",
		CreatedBy: "stu-1", CreatedByRole: models.RoleStudent, AssignedTo: pq.StringArray{"stu-1"},
	})

	_, err := svc.Submit(context.Background(), Actor{ID: "stu-1", Role: models.RoleStudent}, SubmitRescheduleRequest{
		ReminderID: "gym", ProposedDate: "2026-09-11", ProposedTime: "18:00",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSubmitUnrelatedStudentForbidden(t *testing.T) {
	svc, _, _, _ := newRescheduleFixture()

	_, err := svc.Submit(context.Background(), Actor{ID: "stu-2", Role: models.RoleStudent}, SubmitRescheduleRequest{
		ReminderID: "exam", ProposedDate: "2026-09-11", ProposedTime: "10:00",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestSubmitNoOpSlotRejected(t *testing.T) {
	svc, _, _, _ := newRescheduleFixture()

	_, err := svc.Submit(context.Background(), Actor{ID: "stu-1", Role: models.RoleStudent}, SubmitRescheduleRequest{
		ReminderID: "exam", ProposedDate: "2026-09-10", ProposedTime: "10:00",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSubmitDuplicatePendingConflicts(t *testing.T) {
	svc, _, _, _ := newRescheduleFixture()
	student := Actor{ID: "stu-1", Role: models.RoleStudent}

	_, err := svc.Submit(context.Background(), student, SubmitRescheduleRequest{
		ReminderID: "exam", ProposedDate: "2026-09-11", ProposedTime: "10:00",
	})
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), student, SubmitRescheduleRequest{
		ReminderID: "exam", ProposedDate: "2026-09-12", ProposedTime: "09:00",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestApproveMovesReminderOnly(t *testing.T) {
	svc, _, remRepo, listener := newRescheduleFixture()
	student := Actor{ID: "stu-1", Role: models.RoleStudent}
	admin := Actor{ID: "admin-1", Role: models.RoleAdmin}

	request, err := svc.Submit(context.Background(), student, SubmitRescheduleRequest{
		ReminderID: "exam", ProposedDate: "2026-09-11", ProposedTime: "14:00",
	})
	require.NoError(t, err)

	reviewed, err := svc.Review(context.Background(), admin, request.ID, ReviewRescheduleRequest{Status: "approved"})
	require.NoError(t, err)
	assert.Equal(t, models.RescheduleApproved, reviewed.Status)
	require.NotNil(t, reviewed.ReviewedBy)
	assert.Equal(t, "admin-1", *reviewed.ReviewedBy)

	moved, err := remRepo.FindByID(context.Background(), "exam")
	require.NoError(t, err)
	assert.Equal(t, "2026-09-11", moved.Date)
	assert.Equal(t, "14:00", moved.Time)
	assert.True(t, moved.IsLocked)
	assert.Equal(t, 120, moved.DurationMinutes)

	require.Len(t, listener.events, 2)
	assert.Equal(t, EventRescheduleApproved, listener.events[1].Kind)
}

func TestRejectLeavesReminderUnchanged(t *testing.T) {
	svc, _, remRepo, _ := newRescheduleFixture()
	student := Actor{ID: "stu-1", Role: models.RoleStudent}
	admin := Actor{ID: "admin-1", Role: models.RoleAdmin}

	request, err := svc.Submit(context.Background(), student, SubmitRescheduleRequest{
		ReminderID: "exam", ProposedDate: "2026-09-11", ProposedTime: "14:00",
	})
	require.NoError(t, err)

	reviewed, err := svc.Review(context.Background(), admin, request.ID, ReviewRescheduleRequest{Status: "rejected"})
	require.NoError(t, err)
	assert.Equal(t, models.RescheduleRejected, reviewed.Status)

	unchanged, err := remRepo.FindByID(context.Background(), "exam")
	require.NoError(t, err)
	assert.Equal(t, "2026-09-10", unchanged.Date)
	assert.Equal(t, "10:00", unchanged.Time)
}

func TestReviewIsTerminal(t *testing.T) {
	svc, _, _, _ := newRescheduleFixture()
	student := Actor{ID: "stu-1", Role: models.RoleStudent}
	admin := Actor{ID: "admin-1", Role: models.RoleAdmin}

	request, err := svc.Submit(context.Background(), student, SubmitRescheduleRequest{
		ReminderID: "exam", ProposedDate: "2026-09-11", ProposedTime: "14:00",
	})
	require.NoError(t, err)

	_, err = svc.Review(context.Background(), admin, request.ID, ReviewRescheduleRequest{Status: "rejected"})
	require.NoError(t, err)

	_, err = svc.Review(context.Background(), admin, request.ID, ReviewRescheduleRequest{Status: "approved"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestResubmitAfterReviewAllowed(t *testing.T) {
	svc, _, _, _ := newRescheduleFixture()
	student := Actor{ID: "stu-1", Role: models.RoleStudent}
	admin := Actor{ID: "admin-1", Role: models.RoleAdmin}

	first, err := svc.Submit(context.Background(), student, SubmitRescheduleRequest{
		ReminderID: "exam", ProposedDate: "2026-09-11", ProposedTime: "14:00",
	})
	require.NoError(t, err)

	_, err = svc.Review(context.Background(), admin, first.ID, ReviewRescheduleRequest{Status: "rejected"})
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), student, SubmitRescheduleRequest{
		ReminderID: "exam", ProposedDate: "2026-09-12", ProposedTime: "09:00",
	})
	require.NoError(t, err)
}

func TestReviewRequiresAdmin(t *testing.T) {
	svc, _, _, _ := newRescheduleFixture()

	_, err := svc.Review(context.Background(), Actor{ID: "stu-1", Role: models.RoleStudent}, "req-1", ReviewRescheduleRequest{Status: "approved"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.ListAll(context.Background(), Actor{ID: "stu-1", Role: models.RoleStudent})
	require.Error(t, err)
}

func TestReviewRejectsMissingOrUnknownDecision(t *testing.T) {
	svc, reqRepo, _, listener := newRescheduleFixture()
	student := Actor{ID: "stu-1", Role: models.RoleStudent}
	admin := Actor{ID: "admin-1", Role: models.RoleAdmin}

	request, err := svc.Submit(context.Background(), student, SubmitRescheduleRequest{
		ReminderID: "exam", ProposedDate: "2026-09-11", ProposedTime: "14:00",
	})
	require.NoError(t, err)

	for _, status := range []string{"", "maybe", "APPROVE"} {
		_, err = svc.Review(context.Background(), admin, request.ID, ReviewRescheduleRequest{Status: status})
		require.Error(t, err, "status %q", status)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	}

	stored, err := reqRepo.FindByID(context.Background(), request.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReschedulePending, stored.Status)
	require.Len(t, listener.events, 1)
	assert.Equal(t, EventRescheduleSubmitted, listener.events[0].Kind)
}

func TestReviewDecisionIsCaseInsensitive(t *testing.T) {
	svc, _, _, _ := newRescheduleFixture()
	student := Actor{ID: "stu-1", Role: models.RoleStudent}
	admin := Actor{ID: "admin-1", Role: models.RoleAdmin}

	request, err := svc.Submit(context.Background(), student, SubmitRescheduleRequest{
		ReminderID: "exam", ProposedDate: "2026-09-11", ProposedTime: "14:00",
	})
	require.NoError(t, err)

	reviewed, err := svc.Review(context.Background(), admin, request.ID, ReviewRescheduleRequest{Status: "Approved"})
	require.NoError(t, err)
	assert.Equal(t, models.RescheduleApproved, reviewed.Status)
}
