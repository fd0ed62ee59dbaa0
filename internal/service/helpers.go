package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/civic-requests/internal/domain"
	"github.com/spec-kit/civic-requests/internal/events"
	"github.com/spec-kit/civic-requests/internal/observability"
	"github.com/spec-kit/civic-requests/internal/repository"
	apperrors "github.com/spec-kit/civic-requests/pkg/util/errorutil"
)

// RetryPolicy bounds retries of optimistic version conflicts.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

// DefaultRetryPolicy is used when a service is built without one.
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 3, Backoff: 10 * time.Millisecond}

// withRetry runs fn, re-running it on ConcurrentModification up to
// MaxRetries more times with linear backoff. Business errors are returned
// immediately.
func withRetry(ctx context.Context, policy RetryPolicy, metrics *observability.Metrics, op string, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, apperrors.ErrConcurrentModification) {
			return err
		}
		if attempt >= policy.MaxRetries {
			return err
		}
		metrics.RecordRetry(op)
		if policy.Backoff > 0 {
			timer := time.NewTimer(policy.Backoff * time.Duration(attempt+1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
}

func notFound(err error, resource, key, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewNotFound(resource, map[string]any{key: id})
	}
	return err
}

// recorder persists audit entries and fans events out to the dispatcher.
// It runs after the request write has committed, so failures are logged and
// never undo or fail the mutation.
type recorder struct {
	history    repository.RequestEventRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

func (r recorder) record(ctx context.Context, requestID string, eventType events.EventType, historyType domain.RequestEventType, actor domain.Actor, at time.Time, meta map[string]any, payload any) {
	if r.history != nil {
		entry := &domain.RequestEvent{
			ID:        uuid.NewString(),
			RequestID: requestID,
			Type:      historyType,
			Actor:     actor,
			Meta:      meta,
			CreatedAt: at,
		}
		if err := r.history.Append(ctx, entry); err != nil && r.logger != nil {
			r.logger.Error("audit append failed",
				zap.String("request_id", requestID),
				zap.String("event_type", string(historyType)),
				zap.Error(err))
		}
	}
	r.publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		RequestID: requestID,
		Actor:     actor,
		Timestamp: at,
		Payload:   payload,
	})
}

func (r recorder) publish(ctx context.Context, event events.Event) {
	if r.dispatcher == nil {
		return
	}
	if err := r.dispatcher.Publish(ctx, event); err != nil && r.logger != nil {
		r.logger.Warn("event handlers failed",
			zap.String("event_type", string(event.Type)),
			zap.String("request_id", event.RequestID),
			zap.Error(err))
	}
}

func clockOrNow(clock func() time.Time) func() time.Time {
	if clock != nil {
		return clock
	}
	return func() time.Time { return time.Now().UTC() }
}

func loggerOrNop(logger *zap.Logger) *zap.Logger {
	if logger != nil {
		return logger
	}
	return zap.NewNop()
}

func ptrBool(v bool) *bool {
	return &v
}
