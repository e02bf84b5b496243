package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/remindly-app/remindly-api/internal/models"
	appErrors "github.com/remindly-app/remindly-api/pkg/errors"
	"github.com/remindly-app/remindly-api/pkg/jobs"
)

type notificationRepository interface {
	Add(ctx context.Context, n *models.Notification) error
	ListByUser(ctx context.Context, userID string) ([]models.Notification, error)
	MarkAllRead(ctx context.Context, userID string) error
}

// NotificationService maintains the in-app feed. Reschedule workflow events
// are delivered through the job queue so request handling never waits on
// Redis writes.
type NotificationService struct {
	repo    notificationRepository
	queue   *jobs.Queue
	metrics *MetricsService
	logger  *zap.Logger
}

// NewNotificationService constructs the service and its dispatch queue. The
// returned service implements RescheduleListener; call Start before wiring it
// into the reschedule workflow and Stop on shutdown. Metrics may be nil.
func NewNotificationService(repo notificationRepository, metrics *MetricsService, cfg jobs.QueueConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{repo: repo, metrics: metrics, logger: logger}
	cfg.Logger = logger
	s.queue = jobs.NewQueue("notifications", s.handleJob, cfg)
	return s
}

// Start launches the dispatch workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the dispatch workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// List returns the actor's feed, newest first.
func (s *NotificationService) List(ctx context.Context, actor Actor) ([]models.Notification, error) {
	notifications, err := s.repo.ListByUser(ctx, actor.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return notifications, nil
}

// MarkAllRead flags every feed entry for the actor as read.
func (s *NotificationService) MarkAllRead(ctx context.Context, actor Actor) error {
	if err := s.repo.MarkAllRead(ctx, actor.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notifications read")
	}
	return nil
}

// OnRescheduleEvent fans a workflow event out to the affected user: the
// reminder owner hears about new requests, the requester hears about the
// decision. Dispatch failures are retried by the queue and otherwise dropped;
// the feed is best-effort.
func (s *NotificationService) OnRescheduleEvent(event RescheduleEvent) {
	n, ok := s.buildNotification(event)
	if !ok {
		return
	}
	if err := s.queue.Enqueue(jobs.Job{Kind: event.Kind, Payload: n}); err != nil {
		s.logger.Warn("dropping notification, queue unavailable",
			zap.String("kind", event.Kind),
			zap.String("user_id", n.UserID),
			zap.Error(err))
	}
}

func (s *NotificationService) buildNotification(event RescheduleEvent) (*models.Notification, bool) {
	n := &models.Notification{
		ID:         uuid.NewString(),
		ReminderID: event.Reminder.ID,
		RequestID:  event.Request.ID,
		CreatedAt:  time.Now().UTC(),
	}
	slot := fmt.Sprintf("%s %s", event.Request.ProposedDate, event.Request.ProposedTime)

	switch event.Kind {
	case EventRescheduleSubmitted:
		n.UserID = event.Reminder.CreatedBy
		n.Kind = models.NotificationRescheduleRequested
		n.Message = fmt.Sprintf("A reschedule of %q to %s was requested", event.Reminder.Title, slot)
	case EventRescheduleApproved:
		n.UserID = event.Request.RequestedBy
		n.Kind = models.NotificationRescheduleApproved
		n.Message = fmt.Sprintf("Your request to move %q to %s was approved", event.Reminder.Title, slot)
	case EventRescheduleRejected:
		n.UserID = event.Request.RequestedBy
		n.Kind = models.NotificationRescheduleRejected
		n.Message = fmt.Sprintf("Your request to move %q to %s was rejected", event.Reminder.Title, slot)
	default:
		return nil, false
	}
	return n, true
}

func (s *NotificationService) handleJob(ctx context.Context, job jobs.Job) error {
	n, ok := job.Payload.(*models.Notification)
	if !ok {
		s.logger.Error("unexpected notification payload", zap.String("kind", job.Kind))
		return nil
	}
	if err := s.repo.Add(ctx, n); err != nil {
		return err
	}
	s.metrics.ObserveNotification(n.Kind)
	return nil
}
