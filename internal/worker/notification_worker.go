package worker

import (
	"github.com/spec-kit/visit-service/internal/events"
	"github.com/spec-kit/visit-service/internal/realtime"
	"github.com/spec-kit/visit-service/internal/service"
)

// StartNotificationWorker registers the post-commit consumers: the webhook
// forwarder and the realtime signal publisher.
func StartNotificationWorker(dispatcher events.Dispatcher, notificationService *service.NotificationService, sync *realtime.Sync) {
	if notificationService != nil {
		notificationService.RegisterHandlers()
	}
	if sync != nil {
		sync.RegisterHandlers(dispatcher)
	}
}
