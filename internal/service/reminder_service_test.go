package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/remindly-app/remindly-api/internal/models"
	appErrors "github.com/remindly-app/remindly-api/pkg/errors"
)

type mockReminderRepo struct {
	reminders map[string]*models.Reminder
	sameDay   []models.Reminder
	seq       int
}

func (m *mockReminderRepo) store(r *models.Reminder) {
	if m.reminders == nil {
		m.reminders = make(map[string]*models.Reminder)
	}
	cp := *r
	m.reminders[r.ID] = &cp
}

func (m *mockReminderRepo) ListAll(ctx context.Context, filter models.ReminderFilter) ([]models.Reminder, error) {
	var out []models.Reminder
	for _, r := range m.reminders {
		out = append(out, *r)
	}
	return out, nil
}

func (m *mockReminderRepo) ListVisibleToStudent(ctx context.Context, studentID string, filter models.ReminderFilter) ([]models.Reminder, error) {
	var out []models.Reminder
	for _, r := range m.reminders {
		if r.CreatedBy == studentID || r.IsAssignedTo(studentID) || r.IsBroadcast() {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *mockReminderRepo) FindByID(ctx context.Context, id string) (*models.Reminder, error) {
	if r, ok := m.reminders[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockReminderRepo) Create(ctx context.Context, reminder *models.Reminder) error {
	m.seq++
	if reminder.ID == "" {
		reminder.ID = "rem-" + string(rune('0'+m.seq))
	}
	m.store(reminder)
	return nil
}

func (m *mockReminderRepo) CreateWithDayGuard(ctx context.Context, reminder *models.Reminder, guard func([]models.Reminder) error) error {
	if err := guard(m.sameDay); err != nil {
		return err
	}
	return m.Create(ctx, reminder)
}

func (m *mockReminderRepo) Update(ctx context.Context, reminder *models.Reminder) error {
	if _, ok := m.reminders[reminder.ID]; !ok {
		return sql.ErrNoRows
	}
	m.store(reminder)
	return nil
}

func (m *mockReminderRepo) UpdateStatus(ctx context.Context, id string, status models.ReminderStatus) error {
	r, ok := m.reminders[id]
	if !ok {
		return sql.ErrNoRows
	}
	r.Status = status
	return nil
}

func (m *mockReminderRepo) UpdateSchedule(ctx context.Context, id, date, timeOfDay string) error {
	r, ok := m.reminders[id]
	if !ok {
		return sql.ErrNoRows
	}
	r.Date = date
	r.Time = timeOfDay
	return nil
}

func (m *mockReminderRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.reminders[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.reminders, id)
	return nil
}

func newReminderService(repo *mockReminderRepo) *ReminderService {
	return NewReminderService(repo, NewAccessPolicy(), validator.New(), zap.NewNop())
}

func TestCreateAsAdminDefaults(t *testing.T) {
	repo := &mockReminderRepo{}
	svc := newReminderService(repo)
	admin := Actor{ID: "admin-1", Role: models.RoleAdmin}

	reminder, err := svc.CreateAsAdmin(context.Background(), admin, CreateReminderRequest{
		Title: "Exam",
		Date:  "2026-09-10",
		Time:  "10:00",
	})
	require.NoError(t, err)

	assert.True(t, reminder.IsLocked)
	assert.Equal(t, models.RoleAdmin, reminder.CreatedByRole)
	assert.Equal(t, "admin-1", reminder.CreatedBy)
	assert.Equal(t, models.PriorityMedium, reminder.Priority)
	assert.Equal(t, models.StatusPending, reminder.Status)
	assert.Equal(t, models.CategoryOther, reminder.Category)
	assert.Equal(t, "all", reminder.TargetFilter)
	assert.Equal(t, models.DefaultDurationMinutes, reminder.DurationMinutes)
	assert.True(t, reminder.IsBroadcast())
}

func TestCreateAsAdminSpecificAssignees(t *testing.T) {
	repo := &mockReminderRepo{}
	svc := newReminderService(repo)
	admin := Actor{ID: "admin-1", Role: models.RoleAdmin}

	reminder, err := svc.CreateAsAdmin(context.Background(), admin, CreateReminderRequest{
		Title:      "Lab session",
		Date:       "2026-09-10",
		Time:       "14:00",
		AssignedTo: []string{"stu-1", "stu-2"},
	})
	require.NoError(t, err)
	assert.Equal(t, "specific", reminder.TargetFilter)
	assert.False(t, reminder.IsBroadcast())
	assert.True(t, reminder.IsAssignedTo("stu-2"))
}

func TestCreateAsAdminRejectsStudents(t *testing.T) {
	svc := newReminderService(&mockReminderRepo{})
	_, err := svc.CreateAsAdmin(context.Background(), Actor{ID: "stu-1", Role: models.RoleStudent}, CreateReminderRequest{
		Title: "x", Date: "2026-09-10", Time: "10:00",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestCreateAsAdminValidation(t *testing.T) {
	svc := newReminderService(&mockReminderRepo{})
	admin := Actor{ID: "admin-1", Role: models.RoleAdmin}

	_, err := svc.CreateAsAdmin(context.Background(), admin, CreateReminderRequest{Date: "2026-09-10", Time: "10:00"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.CreateAsAdmin(context.Background(), admin, CreateReminderRequest{Title: "x", Date: "10/09/2026", Time: "10:00"})
	require.Error(t, err)

	_, err = svc.CreateAsAdmin(context.Background(), admin, CreateReminderRequest{Title: "x", Date: "2026-09-10", Time: "25:00"})
	require.Error(t, err)
}

func TestCreateAsStudentNoConflict(t *testing.T) {
	repo := &mockReminderRepo{
		sameDay: []models.Reminder{{
			ID: "exam", Title: "Exam", Date: "2026-09-10", Time: "10:00",
			DurationMinutes: 120, CreatedByRole: models.RoleAdmin, IsLocked: true,
		}},
	}
	svc := newReminderService(repo)
	student := Actor{ID: "stu-1", Role: models.RoleStudent}

	// Starts exactly when the exam ends.
	reminder, err := svc.CreateAsStudent(context.Background(), student, CreateReminderRequest{
		Title: "Gym", Date: "2026-09-10", Time: "12:00",
	})
	require.NoError(t, err)
	assert.False(t, reminder.IsLocked)
	assert.Equal(t, models.RoleStudent, reminder.CreatedByRole)
	assert.Equal(t, models.CategoryPersonal, reminder.Category)
	assert.Equal(t, pq.StringArray{"stu-1"}, reminder.AssignedTo)
}

func TestCreateAsStudentConflictEnumeratesAll(t *testing.T) {
	repo := &mockReminderRepo{
		sameDay: []models.Reminder{
			{ID: "exam", Title: "Exam", Date: "2026-09-10", Time: "10:00", DurationMinutes: 120, CreatedByRole: models.RoleAdmin},
			{ID: "review", Title: "Review", Date: "2026-09-10", Time: "11:30", DurationMinutes: 60, CreatedByRole: models.RoleAdmin},
			{ID: "club", Title: "Club", Date: "2026-09-10", Time: "16:00", DurationMinutes: 60, CreatedByRole: models.RoleAdmin},
		},
	}
	svc := newReminderService(repo)
	student := Actor{ID: "stu-1", Role: models.RoleStudent}

	_, err := svc.CreateAsStudent(context.Background(), student, CreateReminderRequest{
		Title: "Study", Date: "2026-09-10", Time: "11:00", DurationMinutes: 60,
	})
	require.Error(t, err)

	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)

	conflicts, ok := appErr.Details.([]models.ReminderConflict)
	require.True(t, ok)
	require.Len(t, conflicts, 2)
	assert.Equal(t, "exam", conflicts[0].ID)
	assert.Equal(t, "review", conflicts[1].ID)
}

func TestCreateAsStudentRejectsAdmins(t *testing.T) {
	svc := newReminderService(&mockReminderRepo{})
	_, err := svc.CreateAsStudent(context.Background(), Actor{ID: "admin-1", Role: models.RoleAdmin}, CreateReminderRequest{
		Title: "x", Date: "2026-09-10", Time: "10:00",
	})
	require.Error(t, err)
}

func TestUpdatePatchesFields(t *testing.T) {
	repo := &mockReminderRepo{}
	repo.store(&models.Reminder{
		ID: "rem-1", Title: "Gym", Date: "2026-09-10", Time: "18:00",
		Priority: models.PriorityLow, Status: models.StatusPending,
		CreatedBy: "stu-1", CreatedByRole: models.RoleStudent,
	})
	svc := newReminderService(repo)
	student := Actor{ID: "stu-1", Role: models.RoleStudent}

	newTitle := "Swim"
	newPriority := "high"
	updated, err := svc.Update(context.Background(), student, "rem-1", UpdateReminderRequest{
		Title:    &newTitle,
		Priority: &newPriority,
	})
	require.NoError(t, err)
	assert.Equal(t, "Swim", updated.Title)
	assert.Equal(t, models.PriorityHigh, updated.Priority)
	assert.Equal(t, "18:00", updated.Time)
}

func TestUpdateLockedByStudentForbidden(t *testing.T) {
	repo := &mockReminderRepo{}
	repo.store(&models.Reminder{
		ID: "rem-1", Title: "Exam", CreatedBy: "admin-1", CreatedByRole: models.RoleAdmin,
		AssignedTo: pq.StringArray{"stu-1"}, IsLocked: true,
	})
	svc := newReminderService(repo)

	newTitle := "Nope"
	_, err := svc.Update(context.Background(), Actor{ID: "stu-1", Role: models.RoleStudent}, "rem-1", UpdateReminderRequest{Title: &newTitle})
	require.Error(t, err)
	assert.Contains(t, appErrors.FromError(err).Message, "reschedule request")
}

func TestUpdateInvalidStatus(t *testing.T) {
	repo := &mockReminderRepo{}
	repo.store(&models.Reminder{ID: "rem-1", CreatedBy: "stu-1", CreatedByRole: models.RoleStudent})
	svc := newReminderService(repo)

	bad := "done"
	_, err := svc.Update(context.Background(), Actor{ID: "stu-1", Role: models.RoleStudent}, "rem-1", UpdateReminderRequest{Status: &bad})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUpdateStudentCannotRetarget(t *testing.T) {
	repo := &mockReminderRepo{}
	repo.store(&models.Reminder{ID: "rem-1", CreatedBy: "stu-1", CreatedByRole: models.RoleStudent, AssignedTo: pq.StringArray{"stu-1"}})
	svc := newReminderService(repo)

	updated, err := svc.Update(context.Background(), Actor{ID: "stu-1", Role: models.RoleStudent}, "rem-1", UpdateReminderRequest{
		AssignedTo: []string{"stu-1", "stu-2"},
	})
	require.NoError(t, err)
	assert.Equal(t, pq.StringArray{"stu-1"}, updated.AssignedTo)
}

func TestToggleComplete(t *testing.T) {
	repo := &mockReminderRepo{}
	repo.store(&models.Reminder{ID: "rem-1", CreatedBy: "stu-1", CreatedByRole: models.RoleStudent, Status: models.StatusPending})
	svc := newReminderService(repo)
	student := Actor{ID: "stu-1", Role: models.RoleStudent}

	r, err := svc.ToggleComplete(context.Background(), student, "rem-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, r.Status)

	r, err = svc.ToggleComplete(context.Background(), student, "rem-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, r.Status)
}

func TestToggleOverdueLandsOnCompleted(t *testing.T) {
	repo := &mockReminderRepo{}
	repo.store(&models.Reminder{ID: "rem-1", CreatedBy: "stu-1", CreatedByRole: models.RoleStudent, Status: models.StatusOverdue})
	svc := newReminderService(repo)

	r, err := svc.ToggleComplete(context.Background(), Actor{ID: "stu-1", Role: models.RoleStudent}, "rem-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, r.Status)
}

func TestDeleteNotFound(t *testing.T) {
	svc := newReminderService(&mockReminderRepo{})
	err := svc.Delete(context.Background(), Actor{ID: "admin-1", Role: models.RoleAdmin}, "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestGetEnforcesVisibility(t *testing.T) {
	repo := &mockReminderRepo{}
	repo.store(&models.Reminder{ID: "rem-1", CreatedBy: "stu-1", CreatedByRole: models.RoleStudent})
	svc := newReminderService(repo)

	_, err := svc.Get(context.Background(), Actor{ID: "stu-2", Role: models.RoleStudent}, "rem-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	r, err := svc.Get(context.Background(), Actor{ID: "admin-1", Role: models.RoleAdmin}, "rem-1")
	require.NoError(t, err)
	assert.Equal(t, "rem-1", r.ID)
}
