package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/civic-requests/internal/domain"
)

// RequestCommentRepository manages request comment threads.
type RequestCommentRepository interface {
	Create(ctx context.Context, comment *domain.RequestComment) error
	ListByRequest(ctx context.Context, requestID string) ([]domain.RequestComment, error)
}

type requestCommentRepository struct {
	pool *pgxpool.Pool
}

// NewRequestCommentRepository builds repository.
func NewRequestCommentRepository(pool *pgxpool.Pool) RequestCommentRepository {
	return &requestCommentRepository{pool: pool}
}

func (r *requestCommentRepository) Create(ctx context.Context, comment *domain.RequestComment) error {
	const query = `
        INSERT INTO request_comments (id, request_id, author_type, author_id, body, created_at)
        VALUES ($1,$2,$3,$4,$5,$6)`
	_, err := r.pool.Exec(ctx, query,
		comment.ID,
		comment.RequestID,
		comment.Author.Type,
		comment.Author.ID,
		comment.Text,
		comment.CreatedAt,
	)
	return err
}

func (r *requestCommentRepository) ListByRequest(ctx context.Context, requestID string) ([]domain.RequestComment, error) {
	const query = `
        SELECT id, request_id, author_type, author_id, body, created_at
        FROM request_comments WHERE request_id=$1 ORDER BY created_at ASC, seq ASC`
	rows, err := r.pool.Query(ctx, query, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.RequestComment
	for rows.Next() {
		var comment domain.RequestComment
		if err := rows.Scan(
			&comment.ID,
			&comment.RequestID,
			&comment.Author.Type,
			&comment.Author.ID,
			&comment.Text,
			&comment.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, comment)
	}
	return result, rows.Err()
}
