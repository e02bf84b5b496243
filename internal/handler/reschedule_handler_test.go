package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/remindly-app/remindly-api/internal/middleware"
	"github.com/remindly-app/remindly-api/internal/models"
	"github.com/remindly-app/remindly-api/internal/repository"
	"github.com/remindly-app/remindly-api/internal/service"
)

type rescheduleRepoStub struct {
	requests map[string]*models.RescheduleRequest
	seq      int
	reviewed int
}

func (m *rescheduleRepoStub) store(r *models.RescheduleRequest) {
	if m.requests == nil {
		m.requests = make(map[string]*models.RescheduleRequest)
	}
	cp := *r
	m.requests[r.ID] = &cp
}

func (m *rescheduleRepoStub) CreatePending(ctx context.Context, req *models.RescheduleRequest) error {
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

func (m *rescheduleRepoStub) FindByID(ctx context.Context, id string) (*models.RescheduleRequest, error) {
	if r, ok := m.requests[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *rescheduleRepoStub) ListByRequester(ctx context.Context, userID string) ([]models.RescheduleRequest, error) {
	var out []models.RescheduleRequest
	for _, r := range m.requests {
		if r.RequestedBy == userID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *rescheduleRepoStub) ListAll(ctx context.Context) ([]models.RescheduleRequest, error) {
	var out []models.RescheduleRequest
	for _, r := range m.requests {
		out = append(out, *r)
	}
	return out, nil
}

func (m *rescheduleRepoStub) MarkReviewed(ctx context.Context, id string, status models.RescheduleStatus, reviewedBy string, reviewedAt time.Time) error {
	r, ok := m.requests[id]
	if !ok || r.Status != models.ReschedulePending {
		return sql.ErrNoRows
	}
	m.reviewed++
	r.Status = status
	r.ReviewedBy = &reviewedBy
	r.ReviewedAt = &reviewedAt
	return nil
}

func newRescheduleHandlerForTest() (*RescheduleHandler, *rescheduleRepoStub, *reminderRepoStub) {
	reminders := &reminderRepoStub{}
	reminders.store(&models.Reminder{
		ID: "exam", Title: "exam", Date: "2026-09-10", Time: "10:00", DurationMinutes: 120,
		CreatedBy: "admin-1", CreatedByRole: models.RoleAdmin, IsLocked: true,
		AssignedTo: pq.StringArray{"stu-1"},
	})
	repo := &rescheduleRepoStub{}
	svc := service.NewRescheduleService(repo, reminders, nil, nil, nil)
	return NewRescheduleHandler(svc), repo, reminders
}

func submitPendingRequest(t *testing.T, handler *RescheduleHandler) string {
	t.Helper()
	payload, _ := json.Marshal(service.SubmitRescheduleRequest{
		ReminderID: "exam", ProposedDate: "2026-09-11", ProposedTime: "14:00", Reason: "clinic visit",
	})
	c, w := newGinContext(http.MethodPost, "/reschedule-requests", payload)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "stu-1", Role: models.RoleStudent})

	handler.Submit(c)
	require.Equal(t, http.StatusCreated, w.Code)

	var created models.RescheduleRequest
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &created))
	require.Equal(t, models.ReschedulePending, created.Status)
	return created.ID
}

func TestRescheduleHandlerSubmit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, repo, _ := newRescheduleHandlerForTest()

	id := submitPendingRequest(t, handler)

	stored, err := repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "stu-1", stored.RequestedBy)
}

func TestRescheduleHandlerSubmitDuplicateConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _, _ := newRescheduleHandlerForTest()

	submitPendingRequest(t, handler)

	payload, _ := json.Marshal(service.SubmitRescheduleRequest{
		ReminderID: "exam", ProposedDate: "2026-09-12", ProposedTime: "09:00",
	})
	c, w := newGinContext(http.MethodPost, "/reschedule-requests", payload)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "stu-1", Role: models.RoleStudent})

	handler.Submit(c)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "CONFLICT", decodeEnvelope(t, w).Error.Code)
}

func TestRescheduleHandlerReviewApprove(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _, reminders := newRescheduleHandlerForTest()

	id := submitPendingRequest(t, handler)

	c, w := newGinContext(http.MethodPatch, "/reschedule-requests/"+id+"/review", []byte(`{"status":"approved"}`))
	c.Params = gin.Params{{Key: "id", Value: id}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})

	handler.Review(c)
	require.Equal(t, http.StatusOK, w.Code)

	var reviewed models.RescheduleRequest
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &reviewed))
	require.Equal(t, models.RescheduleApproved, reviewed.Status)

	moved, err := reminders.FindByID(context.Background(), "exam")
	require.NoError(t, err)
	require.Equal(t, "2026-09-11", moved.Date)
	require.Equal(t, "14:00", moved.Time)
}

func TestRescheduleHandlerReviewWithoutDecision(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, repo, _ := newRescheduleHandlerForTest()

	id := submitPendingRequest(t, handler)

	c, w := newGinContext(http.MethodPatch, "/reschedule-requests/"+id+"/review", []byte(`{}`))
	c.Params = gin.Params{{Key: "id", Value: id}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})

	handler.Review(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "VALIDATION_ERROR", decodeEnvelope(t, w).Error.Code)

	require.Zero(t, repo.reviewed)
	stored, err := repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, models.ReschedulePending, stored.Status)
}

func TestRescheduleHandlerReviewAsStudentForbidden(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _, _ := newRescheduleHandlerForTest()

	id := submitPendingRequest(t, handler)

	c, w := newGinContext(http.MethodPatch, "/reschedule-requests/"+id+"/review", []byte(`{"status":"approved"}`))
	c.Params = gin.Params{{Key: "id", Value: id}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "stu-1", Role: models.RoleStudent})

	handler.Review(c)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "FORBIDDEN", decodeEnvelope(t, w).Error.Code)
}
