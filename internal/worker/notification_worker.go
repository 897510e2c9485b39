package worker

import (
	"context"

	"github.com/sclint/support-desk/internal/events"
	"github.com/sclint/support-desk/internal/service"
)

// StartNotificationWorker registers notification handlers.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}

// RunNotificationWorker registers handlers and drains the dispatcher until ctx ends.
func RunNotificationWorker(ctx context.Context, dispatcher *events.AsyncDispatcher, notificationService *service.NotificationService) error {
	StartNotificationWorker(notificationService)
	return dispatcher.Run(ctx)
}
