package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultSubjectPrefix is prepended to event types when publishing to NATS.
const DefaultSubjectPrefix = "civic.requests"

// Publisher is the subset of *nats.Conn used by the bridge.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSConfig holds connection settings for the event bridge.
type NATSConfig struct {
	URL            string
	Name           string
	SubjectPrefix  string
	ReconnectWait  time.Duration
	MaxReconnects  int
	ConnectTimeout time.Duration
}

// ConnectNATS dials the NATS server.
func ConnectNATS(cfg NATSConfig, logger *zap.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}

// Bridge forwards dispatcher events to NATS subjects as JSON.
type Bridge struct {
	publisher Publisher
	prefix    string
	logger    *zap.Logger
}

// NewBridge builds a bridge. An empty prefix uses DefaultSubjectPrefix.
func NewBridge(publisher Publisher, prefix string, logger *zap.Logger) *Bridge {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{publisher: publisher, prefix: prefix, logger: logger}
}

// Subject returns the subject an event type is published on.
func (b *Bridge) Subject(eventType EventType) string {
	return b.prefix + "." + string(eventType)
}

// Attach subscribes the bridge to the given event types, or all of them.
func (b *Bridge) Attach(dispatcher Dispatcher, types ...EventType) {
	if len(types) == 0 {
		types = AllEventTypes
	}
	for _, eventType := range types {
		dispatcher.Subscribe(eventType, b.Forward)
	}
}

// Forward publishes a single event. Publish failures are logged and
// returned so the dispatcher can surface them.
func (b *Bridge) Forward(_ context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	subject := b.Subject(event.Type)
	if err := b.publisher.Publish(subject, payload); err != nil {
		b.logger.Warn("nats publish failed",
			zap.String("subject", subject),
			zap.String("request_id", event.RequestID),
			zap.Error(err))
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}
