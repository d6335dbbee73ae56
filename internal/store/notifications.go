package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/profile-desk/backend/internal/models"
)

// notificationQueue keeps the most recent non-empty messages, oldest first.
type notificationQueue struct {
	limit int
	items []models.Notification
}

func newNotificationQueue(limit int) *notificationQueue {
	return &notificationQueue{limit: limit, items: make([]models.Notification, 0, limit)}
}

func (q *notificationQueue) push(message string, now time.Time) bool {
	if message == "" {
		return false
	}
	q.items = append(q.items, models.Notification{
		ID:        uuid.New().String(),
		Message:   message,
		CreatedAt: now,
	})
	if over := len(q.items) - q.limit; over > 0 {
		q.items = append(q.items[:0], q.items[over:]...)
	}
	return true
}

func (q *notificationQueue) remove(id string) bool {
	for i, n := range q.items {
		if n.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

func (q *notificationQueue) list() []models.Notification {
	out := make([]models.Notification, len(q.items))
	copy(out, q.items)
	return out
}
