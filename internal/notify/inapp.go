package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sclint/support-desk/internal/clock"
	"github.com/sclint/support-desk/internal/domain"
	"github.com/sclint/support-desk/internal/repository"
)

// ChannelFor names the Redis channel carrying live notifications for userID.
func ChannelFor(userID string) string {
	return "notifications:" + userID
}

// InAppNotifier stores a notification row and pushes it to the user's live
// channel. A push nobody listens to is simply lost.
type InAppNotifier struct {
	repo   repository.NotificationRepository
	redis  *redis.Client
	clock  clock.Clock
	logger *zap.Logger
}

// NewInAppNotifier builds a notifier. rdb may be nil to disable live pushes.
func NewInAppNotifier(repo repository.NotificationRepository, rdb *redis.Client, clk clock.Clock, logger *zap.Logger) *InAppNotifier {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InAppNotifier{repo: repo, redis: rdb, clock: clk, logger: logger}
}

// Notify persists and publishes a ticket notification.
func (n *InAppNotifier) Notify(ctx context.Context, userID, title, message string) error {
	notification := &domain.Notification{
		UserID:    userID,
		Title:     title,
		Message:   message,
		Type:      domain.NotificationTypeTicket,
		CreatedAt: n.clock.Now(),
	}
	if err := n.repo.Create(ctx, notification); err != nil {
		return fmt.Errorf("store notification: %w", err)
	}
	n.publish(ctx, notification)
	return nil
}

func (n *InAppNotifier) publish(ctx context.Context, notification *domain.Notification) {
	if n.redis == nil {
		return
	}
	payload, err := json.Marshal(liveNotification{
		ID:        notification.ID,
		Title:     notification.Title,
		Message:   notification.Message,
		Type:      string(notification.Type),
		CreatedAt: notification.CreatedAt.Format(time.RFC3339),
	})
	if err != nil {
		n.logger.Warn("encode live notification", zap.Error(err))
		return
	}
	if err := n.redis.Publish(ctx, ChannelFor(notification.UserID), payload).Err(); err != nil {
		n.logger.Warn("publish live notification",
			zap.String("user_id", notification.UserID),
			zap.Error(err))
	}
}

type liveNotification struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Type      string `json:"type"`
	CreatedAt string `json:"created_at"`
}
