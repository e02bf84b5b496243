package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/remindly-app/remindly-api/internal/models"
)

// NotificationRepository keeps the in-app notification feed in Redis, one
// hash per user keyed by notification ID. The feed is session-scoped state:
// it is bounded per user and carries no delivery guarantees.
type NotificationRepository struct {
	client  *redis.Client
	maxSize int
}

// NewNotificationRepository creates the repository.
func NewNotificationRepository(client *redis.Client, maxSize int) *NotificationRepository {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &NotificationRepository{client: client, maxSize: maxSize}
}

func notificationKey(userID string) string {
	return fmt.Sprintf("remindly:notifications:%s", userID)
}

// Add appends a notification to the user's feed, evicting the oldest entries
// beyond the configured bound.
func (r *NotificationRepository) Add(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	key := notificationKey(n.UserID)
	if err := r.client.HSet(ctx, key, n.ID, payload).Err(); err != nil {
		return fmt.Errorf("store notification: %w", err)
	}

	size, err := r.client.HLen(ctx, key).Result()
	if err != nil || size <= int64(r.maxSize) {
		return nil
	}

	entries, err := r.listRaw(ctx, n.UserID)
	if err != nil {
		return nil
	}
	for i := r.maxSize; i < len(entries); i++ {
		_ = r.client.HDel(ctx, key, entries[i].ID).Err()
	}
	return nil
}

// ListByUser returns the user's feed, newest first.
func (r *NotificationRepository) ListByUser(ctx context.Context, userID string) ([]models.Notification, error) {
	return r.listRaw(ctx, userID)
}

// MarkAllRead flags every entry in the user's feed as read.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string) error {
	entries, err := r.listRaw(ctx, userID)
	if err != nil {
		return err
	}
	key := notificationKey(userID)
	for i := range entries {
		if entries[i].Read {
			continue
		}
		entries[i].Read = true
		payload, err := json.Marshal(&entries[i])
		if err != nil {
			continue
		}
		if err := r.client.HSet(ctx, key, entries[i].ID, payload).Err(); err != nil {
			return fmt.Errorf("mark notification read: %w", err)
		}
	}
	return nil
}

func (r *NotificationRepository) listRaw(ctx context.Context, userID string) ([]models.Notification, error) {
	values, err := r.client.HVals(ctx, notificationKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load notifications: %w", err)
	}
	notifications := make([]models.Notification, 0, len(values))
	for _, raw := range values {
		var n models.Notification
		if err := json.Unmarshal([]byte(raw), &n); err != nil {
			continue
		}
		notifications = append(notifications, n)
	}
	sort.Slice(notifications, func(i, j int) bool {
		return notifications[i].CreatedAt.After(notifications[j].CreatedAt)
	})
	return notifications, nil
}
