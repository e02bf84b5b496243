package service

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/remindly-app/remindly-api/internal/models"
	appErrors "github.com/remindly-app/remindly-api/pkg/errors"
)

type reminderRepository interface {
	ListAll(ctx context.Context, filter models.ReminderFilter) ([]models.Reminder, error)
	ListVisibleToStudent(ctx context.Context, studentID string, filter models.ReminderFilter) ([]models.Reminder, error)
	FindByID(ctx context.Context, id string) (*models.Reminder, error)
	Create(ctx context.Context, reminder *models.Reminder) error
	CreateWithDayGuard(ctx context.Context, reminder *models.Reminder, guard func(sameDay []models.Reminder) error) error
	Update(ctx context.Context, reminder *models.Reminder) error
	UpdateStatus(ctx context.Context, id string, status models.ReminderStatus) error
	UpdateSchedule(ctx context.Context, id, date, timeOfDay string) error
	Delete(ctx context.Context, id string) error
}

var (
	isoDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	hhmmPattern    = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
)

// registerScheduleValidations installs the shared date/time format rules.
// Safe to call on the same validator more than once.
func registerScheduleValidations(validate *validator.Validate) {
	_ = validate.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
		return isoDatePattern.MatchString(fl.Field().String())
	})
	_ = validate.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		return hhmmPattern.MatchString(fl.Field().String())
	})
}

// ReminderService is the validated entry point for reminder creation and
// mutation. Every operation loads, authorizes through the access policy,
// then mutates; authorization never happens in handlers.
type ReminderService struct {
	repo      reminderRepository
	policy    *AccessPolicy
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
}

// NewReminderService constructs the service.
func NewReminderService(repo reminderRepository, policy *AccessPolicy, validate *validator.Validate, logger *zap.Logger) *ReminderService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy == nil {
		policy = NewAccessPolicy()
	}
	registerScheduleValidations(validate)
	return &ReminderService{repo: repo, policy: policy, validator: validate, logger: logger}
}

// WithMetrics attaches query timing collection. Optional.
func (s *ReminderService) WithMetrics(metrics *MetricsService) *ReminderService {
	s.metrics = metrics
	return s
}

// CreateReminderRequest is the creation payload for both roles. AssignedTo
// and TargetFilter only apply to admin creations.
type CreateReminderRequest struct {
	Title            string   `json:"title" validate:"required"`
	Description      string   `json:"description"`
	Date             string   `json:"date" validate:"required,isodate"`
	Time             string   `json:"time" validate:"required,hhmm"`
	Priority         string   `json:"priority"`
	Category         string   `json:"category"`
	Recurring        bool     `json:"recurring"`
	NotificationType string   `json:"notification_type"`
	DurationMinutes  int      `json:"duration_minutes"`
	AssignedTo       []string `json:"assigned_to"`
	TargetFilter     string   `json:"target_filter"`
}

// UpdateReminderRequest carries a partial patch; nil fields are untouched.
type UpdateReminderRequest struct {
	Title            *string  `json:"title"`
	Description      *string  `json:"description"`
	Date             *string  `json:"date"`
	Time             *string  `json:"time"`
	Priority         *string  `json:"priority"`
	Category         *string  `json:"category"`
	Status           *string  `json:"status"`
	Recurring        *bool    `json:"recurring"`
	NotificationType *string  `json:"notification_type"`
	DurationMinutes  *int     `json:"duration_minutes"`
	AssignedTo       []string `json:"assigned_to"`
	TargetFilter     *string  `json:"target_filter"`
}

// List returns the reminders visible to the actor: everything for admins,
// the own/assigned/broadcast union for students.
func (s *ReminderService) List(ctx context.Context, actor Actor, filter models.ReminderFilter) ([]models.Reminder, error) {
	var (
		reminders []models.Reminder
		err       error
	)
	start := time.Now()
	if actor.Role == models.RoleAdmin {
		reminders, err = s.repo.ListAll(ctx, filter)
		s.metrics.ObserveDBQuery("reminders_list_all", time.Since(start))
	} else {
		reminders, err = s.repo.ListVisibleToStudent(ctx, actor.ID, filter)
		s.metrics.ObserveDBQuery("reminders_list_student", time.Since(start))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reminders")
	}
	return reminders, nil
}

// Get returns a single reminder if the actor may see it.
func (s *ReminderService) Get(ctx context.Context, actor Actor, id string) (*models.Reminder, error) {
	reminder, err := s.loadReminder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.policy.CanView(actor, reminder) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you do not have access to this reminder")
	}
	return reminder, nil
}

// CreateAsAdmin creates a locked reminder pushed to students. An empty
// assignee list is a broadcast to every student. Admin reminders are not
// checked against each other for overlap: admin tasks define the conflict
// surface, and that asymmetry is a known scope limit rather than an
// accident.
func (s *ReminderService) CreateAsAdmin(ctx context.Context, actor Actor, req CreateReminderRequest) (*models.Reminder, error) {
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins can assign tasks")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reminder payload")
	}

	reminder, err := s.buildReminder(actor, req)
	if err != nil {
		return nil, err
	}
	reminder.CreatedByRole = models.RoleAdmin
	reminder.IsLocked = true
	reminder.Category = defaultString(req.Category, models.CategoryOther)
	reminder.AssignedTo = pq.StringArray(req.AssignedTo)
	reminder.TargetFilter = defaultString(req.TargetFilter, "all")
	if len(req.AssignedTo) > 0 && req.TargetFilter == "" {
		reminder.TargetFilter = "specific"
	}

	if err := s.repo.Create(ctx, reminder); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create reminder")
	}
	s.logger.Info("admin reminder created",
		zap.String("reminder_id", reminder.ID),
		zap.String("created_by", actor.ID),
		zap.Int("assignees", len(reminder.AssignedTo)))
	return reminder, nil
}

// CreateAsStudent creates a personal reminder, refusing any slot that
// overlaps an admin reminder visible to the student on the same date. A
// refusal enumerates every conflicting reminder so the caller can render
// them all at once.
func (s *ReminderService) CreateAsStudent(ctx context.Context, actor Actor, req CreateReminderRequest) (*models.Reminder, error) {
	if actor.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "personal reminders are created by students")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reminder payload")
	}

	reminder, err := s.buildReminder(actor, req)
	if err != nil {
		return nil, err
	}
	reminder.CreatedByRole = models.RoleStudent
	reminder.IsLocked = false
	reminder.Category = defaultString(req.Category, models.CategoryPersonal)
	reminder.AssignedTo = pq.StringArray{actor.ID}
	reminder.TargetFilter = ""

	guard := func(sameDay []models.Reminder) error {
		var conflicts []models.ReminderConflict
		for i := range sameDay {
			other := &sameDay[i]
			if Overlaps(reminder.Date, reminder.Time, reminder.DurationMinutes, other.Date, other.Time, other.Duration()) {
				conflicts = append(conflicts, models.ReminderConflict{
					ID:              other.ID,
					Title:           other.Title,
					Date:            other.Date,
					Time:            other.Time,
					DurationMinutes: other.Duration(),
				})
			}
		}
		if len(conflicts) > 0 {
			return appErrors.WithDetails(appErrors.ErrConflict, "the proposed slot overlaps assigned tasks", conflicts)
		}
		return nil
	}

	if err := s.repo.CreateWithDayGuard(ctx, reminder, guard); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create reminder")
	}
	return reminder, nil
}

// Update applies a partial patch after the access policy clears it. Updates
// deliberately skip overlap re-validation: moving an existing reminder into
// a conflicting slot is tolerated, matching the creation-only conflict
// surface.
func (s *ReminderService) Update(ctx context.Context, actor Actor, id string, req UpdateReminderRequest) (*models.Reminder, error) {
	reminder, err := s.loadReminder(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(actor, OpUpdate, reminder); err != nil {
		return nil, err
	}
	if err := s.applyPatch(reminder, actor, req); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, reminder); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update reminder")
	}
	return reminder, nil
}

// Delete removes a reminder after authorization.
func (s *ReminderService) Delete(ctx context.Context, actor Actor, id string) error {
	reminder, err := s.loadReminder(ctx, id)
	if err != nil {
		return err
	}
	if err := s.policy.Authorize(actor, OpDelete, reminder); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "reminder not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete reminder")
	}
	s.logger.Info("reminder deleted", zap.String("reminder_id", id), zap.String("actor", actor.ID))
	return nil
}

// ToggleComplete flips completion: PENDING becomes COMPLETED and vice versa.
// An OVERDUE reminder toggles to COMPLETED; toggling back lands on PENDING,
// never on OVERDUE, because overdue is asserted by data rather than derived.
func (s *ReminderService) ToggleComplete(ctx context.Context, actor Actor, id string) (*models.Reminder, error) {
	reminder, err := s.loadReminder(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(actor, OpToggle, reminder); err != nil {
		return nil, err
	}

	if reminder.Status == models.StatusCompleted {
		reminder.Status = models.StatusPending
	} else {
		reminder.Status = models.StatusCompleted
	}

	if err := s.repo.UpdateStatus(ctx, id, reminder.Status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to toggle reminder")
	}
	return reminder, nil
}

func (s *ReminderService) loadReminder(ctx context.Context, id string) (*models.Reminder, error) {
	reminder, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "reminder not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reminder")
	}
	return reminder, nil
}

func (s *ReminderService) buildReminder(actor Actor, req CreateReminderRequest) (*models.Reminder, error) {
	priority, err := parsePriority(req.Priority, models.PriorityMedium)
	if err != nil {
		return nil, err
	}
	notify, err := parseNotificationType(req.NotificationType, models.NotifyApp)
	if err != nil {
		return nil, err
	}
	duration := req.DurationMinutes
	if duration <= 0 {
		duration = models.DefaultDurationMinutes
	}
	return &models.Reminder{
		Title:            req.Title,
		Description:      req.Description,
		Date:             req.Date,
		Time:             req.Time,
		Priority:         priority,
		Status:           models.StatusPending,
		Recurring:        req.Recurring,
		NotificationType: notify,
		CreatedBy:        actor.ID,
		DurationMinutes:  duration,
	}, nil
}

func (s *ReminderService) applyPatch(reminder *models.Reminder, actor Actor, req UpdateReminderRequest) error {
	if req.Title != nil {
		if *req.Title == "" {
			return appErrors.Clone(appErrors.ErrValidation, "title cannot be empty")
		}
		reminder.Title = *req.Title
	}
	if req.Description != nil {
		reminder.Description = *req.Description
	}
	if req.Date != nil {
		if !isoDatePattern.MatchString(*req.Date) {
			return appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD")
		}
		reminder.Date = *req.Date
	}
	if req.Time != nil {
		if !hhmmPattern.MatchString(*req.Time) {
			return appErrors.Clone(appErrors.ErrValidation, "time must be HH:MM")
		}
		reminder.Time = *req.Time
	}
	if req.Priority != nil {
		priority, err := parsePriority(*req.Priority, "")
		if err != nil {
			return err
		}
		reminder.Priority = priority
	}
	if req.Category != nil {
		reminder.Category = *req.Category
	}
	if req.Status != nil {
		status := models.ReminderStatus(strings.ToUpper(*req.Status))
		switch status {
		case models.StatusPending, models.StatusCompleted, models.StatusOverdue:
			reminder.Status = status
		default:
			return appErrors.Clone(appErrors.ErrValidation, "status must be pending, completed or overdue")
		}
	}
	if req.Recurring != nil {
		reminder.Recurring = *req.Recurring
	}
	if req.NotificationType != nil {
		notify, err := parseNotificationType(*req.NotificationType, "")
		if err != nil {
			return err
		}
		reminder.NotificationType = notify
	}
	if req.DurationMinutes != nil {
		if *req.DurationMinutes <= 0 {
			return appErrors.Clone(appErrors.ErrValidation, "duration_minutes must be positive")
		}
		reminder.DurationMinutes = *req.DurationMinutes
	}

	// Targeting is an admin concern; student patches never touch it.
	if actor.Role == models.RoleAdmin {
		if req.AssignedTo != nil {
			reminder.AssignedTo = pq.StringArray(req.AssignedTo)
		}
		if req.TargetFilter != nil {
			reminder.TargetFilter = *req.TargetFilter
		}
	}
	return nil
}

func parsePriority(raw string, fallback models.ReminderPriority) (models.ReminderPriority, error) {
	if raw == "" {
		if fallback != "" {
			return fallback, nil
		}
		return "", appErrors.Clone(appErrors.ErrValidation, "priority cannot be empty")
	}
	priority := models.ReminderPriority(strings.ToUpper(raw))
	switch priority {
	case models.PriorityLow, models.PriorityMedium, models.PriorityHigh:
		return priority, nil
	default:
		return "", appErrors.Clone(appErrors.ErrValidation, "priority must be low, medium or high")
	}
}

func parseNotificationType(raw string, fallback models.NotificationType) (models.NotificationType, error) {
	if raw == "" {
		if fallback != "" {
			return fallback, nil
		}
		return "", appErrors.Clone(appErrors.ErrValidation, "notification_type cannot be empty")
	}
	notify := models.NotificationType(strings.ToUpper(raw))
	switch notify {
	case models.NotifyEmail, models.NotifyApp, models.NotifyBoth:
		return notify, nil
	default:
		return "", appErrors.Clone(appErrors.ErrValidation, "notification_type must be email, app or both")
	}
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
