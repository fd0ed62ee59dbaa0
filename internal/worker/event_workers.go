package worker

import (
	"go.uber.org/zap"

	"github.com/spec-kit/civic-requests/internal/events"
	"github.com/spec-kit/civic-requests/internal/service"
)

// StartEventWorkers subscribes the in-process consumers of request events:
// notifications always, and the NATS bridge when one is configured.
func StartEventWorkers(dispatcher events.Dispatcher, notifications *service.NotificationService, bridge *events.Bridge, logger *zap.Logger) {
	if dispatcher == nil {
		return
	}
	if notifications != nil {
		notifications.RegisterHandlers()
	}
	if bridge != nil {
		bridge.Attach(dispatcher)
		if logger != nil {
			logger.Info("forwarding request events to nats")
		}
	}
}
