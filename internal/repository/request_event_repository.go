package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/civic-requests/internal/domain"
)

// RequestEventRepository stores the request audit trail.
type RequestEventRepository interface {
	Append(ctx context.Context, event *domain.RequestEvent) error
	ListByRequest(ctx context.Context, requestID string) ([]domain.RequestEvent, error)
}

type requestEventRepository struct {
	pool *pgxpool.Pool
}

// NewRequestEventRepository builds repository.
func NewRequestEventRepository(pool *pgxpool.Pool) RequestEventRepository {
	return &requestEventRepository{pool: pool}
}

func (r *requestEventRepository) Append(ctx context.Context, event *domain.RequestEvent) error {
	const query = `
        INSERT INTO request_events (id, request_id, event_type, actor_type, actor_id, meta, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`
	meta := event.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	_, err := r.pool.Exec(ctx, query,
		event.ID,
		event.RequestID,
		event.Type,
		event.Actor.Type,
		event.Actor.ID,
		meta,
		event.CreatedAt,
	)
	return err
}

func (r *requestEventRepository) ListByRequest(ctx context.Context, requestID string) ([]domain.RequestEvent, error) {
	const query = `
        SELECT id, request_id, event_type, actor_type, actor_id, meta, created_at
        FROM request_events WHERE request_id=$1 ORDER BY created_at ASC, seq ASC`
	rows, err := r.pool.Query(ctx, query, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.RequestEvent
	for rows.Next() {
		var event domain.RequestEvent
		if err := rows.Scan(
			&event.ID,
			&event.RequestID,
			&event.Type,
			&event.Actor.Type,
			&event.Actor.ID,
			&event.Meta,
			&event.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, event)
	}
	return result, rows.Err()
}
