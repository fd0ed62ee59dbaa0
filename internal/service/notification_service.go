package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/civic-requests/internal/config"
	"github.com/spec-kit/civic-requests/internal/domain"
	"github.com/spec-kit/civic-requests/internal/events"
)

// NotificationService turns request events into outbound notifications.
// Delivery is stubbed: messages are logged against the configured channels.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     loggerOrNop(logger),
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventRequestCreated, n.handleRequestCreated)
	n.dispatcher.Subscribe(events.EventRequestStatusChanged, n.handleStatusChanged)
	n.dispatcher.Subscribe(events.EventRequestAssigned, n.handleAssigned)
	n.dispatcher.Subscribe(events.EventRequestEscalated, n.handleEscalated)
	n.dispatcher.Subscribe(events.EventSLABreached, n.handleBreached)
}

func (n *NotificationService) handleRequestCreated(ctx context.Context, event events.Event) error {
	n.logger.Info("request created", zap.String("request_id", event.RequestID), zap.Any("payload", event.Payload))
	if event.Actor.Type == domain.SubjectTypeCitizen {
		n.sendEmail(ctx, event, "citizen")
	}
	return nil
}

func (n *NotificationService) handleStatusChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.StatusChangedPayload)
	if !ok {
		return nil
	}
	n.logger.Info("request status changed",
		zap.String("request_id", event.RequestID),
		zap.String("from", string(payload.OldStatus)),
		zap.String("to", string(payload.NewStatus)))
	switch payload.NewStatus {
	case domain.StatusResolved, domain.StatusClosed:
		n.sendEmail(ctx, event, "citizen")
	}
	n.sendWebhook(ctx, event)
	return nil
}

func (n *NotificationService) handleAssigned(ctx context.Context, event events.Event) error {
	n.logger.Info("request assigned", zap.String("request_id", event.RequestID), zap.Any("payload", event.Payload))
	n.sendWebhook(ctx, event)
	return nil
}

func (n *NotificationService) handleEscalated(ctx context.Context, event events.Event) error {
	n.logger.Warn("request escalated", zap.String("request_id", event.RequestID), zap.Any("payload", event.Payload))
	n.sendEmail(ctx, event, "supervisor")
	n.sendWebhook(ctx, event)
	return nil
}

func (n *NotificationService) handleBreached(ctx context.Context, event events.Event) error {
	n.logger.Warn("sla breached", zap.String("request_id", event.RequestID), zap.Any("payload", event.Payload))
	n.sendEmail(ctx, event, "supervisor")
	n.sendWebhook(ctx, event)
	return nil
}

func (n *NotificationService) sendEmail(_ context.Context, event events.Event, audience string) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("email notification",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("audience", audience),
		zap.String("request_id", event.RequestID),
		zap.String("event_type", string(event.Type)))
}

func (n *NotificationService) sendWebhook(_ context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("webhook notification",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("request_id", event.RequestID),
		zap.String("event_type", string(event.Type)))
}
