package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/remindly-app/remindly-api/internal/models"
	"github.com/remindly-app/remindly-api/internal/repository"
	appErrors "github.com/remindly-app/remindly-api/pkg/errors"
)

type rescheduleRepository interface {
	CreatePending(ctx context.Context, req *models.RescheduleRequest) error
	FindByID(ctx context.Context, id string) (*models.RescheduleRequest, error)
	ListByRequester(ctx context.Context, userID string) ([]models.RescheduleRequest, error)
	ListAll(ctx context.Context) ([]models.RescheduleRequest, error)
	MarkReviewed(ctx context.Context, id string, status models.RescheduleStatus, reviewedBy string, reviewedAt time.Time) error
}

// RescheduleEvent describes a workflow transition other components may react
// to, such as the notification fan-out.
type RescheduleEvent struct {
	Kind     string
	Request  models.RescheduleRequest
	Reminder models.Reminder
}

// Event kinds emitted by the reschedule workflow.
const (
	EventRescheduleSubmitted = "RESCHEDULE_SUBMITTED"
	EventRescheduleApproved  = "RESCHEDULE_APPROVED"
	EventRescheduleRejected  = "RESCHEDULE_REJECTED"
)

// RescheduleListener receives workflow events after the transition has been
// persisted. Listeners must not block.
type RescheduleListener interface {
	OnRescheduleEvent(event RescheduleEvent)
}

// RescheduleService runs the escalation path for locked admin reminders:
// students submit a proposed slot, admins approve or reject it, and approval
// moves the reminder.
type RescheduleService struct {
	repo      rescheduleRepository
	reminders reminderRepository
	policy    *AccessPolicy
	validator *validator.Validate
	logger    *zap.Logger
	listeners []RescheduleListener
}

// NewRescheduleService constructs the service.
func NewRescheduleService(repo rescheduleRepository, reminders reminderRepository, policy *AccessPolicy, validate *validator.Validate, logger *zap.Logger) *RescheduleService {
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
	return &RescheduleService{repo: repo, reminders: reminders, policy: policy, validator: validate, logger: logger}
}

// Subscribe registers a listener for workflow events. Not safe to call after
// the service starts handling requests.
func (s *RescheduleService) Subscribe(listener RescheduleListener) {
	s.listeners = append(s.listeners, listener)
}

// SubmitRescheduleRequest is the payload for opening a request.
type SubmitRescheduleRequest struct {
	ReminderID   string `json:"reminder_id" validate:"required"`
	ProposedDate string `json:"proposed_date" validate:"required,isodate"`
	ProposedTime string `json:"proposed_time" validate:"required,hhmm"`
	Reason       string `json:"reason"`
}

// ReviewRescheduleRequest carries the admin's decision as it arrives on the
// wire: "approved" or "rejected", nothing else.
type ReviewRescheduleRequest struct {
	Status string `json:"status"`
}

// Decision normalizes the wire value. ok is false for anything outside the
// two terminal decisions, including an absent status.
func (r ReviewRescheduleRequest) Decision() (approved, ok bool) {
	switch strings.ToLower(strings.TrimSpace(r.Status)) {
	case "approved":
		return true, true
	case "rejected":
		return false, true
	default:
		return false, false
	}
}

// Submit opens a pending request against a locked admin reminder. At most one
// pending request may exist per (reminder, requester); once a request is
// reviewed the student may submit again. Proposing the slot the reminder
// already occupies is rejected outright.
func (s *RescheduleService) Submit(ctx context.Context, actor Actor, req SubmitRescheduleRequest) (*models.RescheduleRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reschedule payload")
	}

	reminder, err := s.reminders.FindByID(ctx, req.ReminderID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "reminder not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reminder")
	}
	if err := s.policy.Authorize(actor, OpReschedule, reminder); err != nil {
		return nil, err
	}
	if reminder.Date == req.ProposedDate && reminder.Time == req.ProposedTime {
		return nil, appErrors.Clone(appErrors.ErrValidation, "proposed slot matches the current schedule")
	}

	request := &models.RescheduleRequest{
		ReminderID:   reminder.ID,
		RequestedBy:  actor.ID,
		ProposedDate: req.ProposedDate,
		ProposedTime: req.ProposedTime,
		Reason:       req.Reason,
	}
	if err := s.repo.CreatePending(ctx, request); err != nil {
		if errors.Is(err, repository.ErrDuplicatePending) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "a pending reschedule request already exists for this reminder")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create reschedule request")
	}

	s.logger.Info("reschedule request submitted",
		zap.String("request_id", request.ID),
		zap.String("reminder_id", reminder.ID),
		zap.String("requested_by", actor.ID))
	s.emit(RescheduleEvent{Kind: EventRescheduleSubmitted, Request: *request, Reminder: *reminder})
	return request, nil
}

// ListMine returns the actor's own requests, newest first.
func (s *RescheduleService) ListMine(ctx context.Context, actor Actor) ([]models.RescheduleRequest, error) {
	requests, err := s.repo.ListByRequester(ctx, actor.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reschedule requests")
	}
	return requests, nil
}

// ListAll returns every request, pending ones first. Admin only.
func (s *RescheduleService) ListAll(ctx context.Context, actor Actor) ([]models.RescheduleRequest, error) {
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins can review reschedule requests")
	}
	requests, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reschedule requests")
	}
	return requests, nil
}

// Review settles a pending request. Approval moves the reminder to the
// proposed date and time and nothing else; every other reminder field,
// including lock state and assignees, stays as it was. The approved slot is
// not checked against other reminders; the admin's decision is taken at face
// value. Review is terminal: a settled request can never change status again.
func (s *RescheduleService) Review(ctx context.Context, actor Actor, requestID string, decision ReviewRescheduleRequest) (*models.RescheduleRequest, error) {
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins can review reschedule requests")
	}
	approved, ok := decision.Decision()
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "decision must be approved or rejected")
	}

	request, err := s.repo.FindByID(ctx, requestID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "reschedule request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reschedule request")
	}
	if request.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrConflict, "reschedule request has already been reviewed")
	}

	status := models.RescheduleRejected
	eventKind := EventRescheduleRejected
	if approved {
		status = models.RescheduleApproved
		eventKind = EventRescheduleApproved
	}

	now := time.Now().UTC()
	if err := s.repo.MarkReviewed(ctx, request.ID, status, actor.ID, now); err != nil {
		if err == sql.ErrNoRows {
			// Lost the race against a concurrent reviewer.
			return nil, appErrors.Clone(appErrors.ErrConflict, "reschedule request has already been reviewed")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to review reschedule request")
	}
	request.Status = status
	request.ReviewedBy = &actor.ID
	request.ReviewedAt = &now
	request.UpdatedAt = now

	reminder, err := s.reminders.FindByID(ctx, request.ReminderID)
	if err != nil && err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reminder")
	}

	if approved && reminder != nil {
		if err := s.reminders.UpdateSchedule(ctx, reminder.ID, request.ProposedDate, request.ProposedTime); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply approved schedule")
		}
		reminder.Date = request.ProposedDate
		reminder.Time = request.ProposedTime
	}

	s.logger.Info("reschedule request reviewed",
		zap.String("request_id", request.ID),
		zap.String("status", string(status)),
		zap.String("reviewed_by", actor.ID))
	if reminder != nil {
		s.emit(RescheduleEvent{Kind: eventKind, Request: *request, Reminder: *reminder})
	}
	return request, nil
}

func (s *RescheduleService) emit(event RescheduleEvent) {
	for _, l := range s.listeners {
		l.OnRescheduleEvent(event)
	}
}
