package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/civic-requests/internal/domain"
)

// ZoneRepository stores coverage zones.
type ZoneRepository interface {
	Get(ctx context.Context, zoneID string) (*domain.Zone, error)
	List(ctx context.Context) ([]*domain.Zone, error)
	Put(ctx context.Context, zone *domain.Zone) error
	Delete(ctx context.Context, zoneID string) error
}

type zoneRepository struct {
	pool *pgxpool.Pool
}

// NewZoneRepository builds repository.
func NewZoneRepository(pool *pgxpool.Pool) ZoneRepository {
	return &zoneRepository{pool: pool}
}

func (r *zoneRepository) Get(ctx context.Context, zoneID string) (*domain.Zone, error) {
	const query = `SELECT zone_id, name, boundary, created_at, updated_at FROM zones WHERE zone_id=$1`
	var zone domain.Zone
	if err := r.pool.QueryRow(ctx, query, zoneID).Scan(
		&zone.ZoneID,
		&zone.Name,
		&zone.Boundary,
		&zone.CreatedAt,
		&zone.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &zone, nil
}

func (r *zoneRepository) List(ctx context.Context) ([]*domain.Zone, error) {
	const query = `SELECT zone_id, name, boundary, created_at, updated_at FROM zones ORDER BY zone_id ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.Zone
	for rows.Next() {
		var zone domain.Zone
		if err := rows.Scan(
			&zone.ZoneID,
			&zone.Name,
			&zone.Boundary,
			&zone.CreatedAt,
			&zone.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, &zone)
	}
	return result, rows.Err()
}

func (r *zoneRepository) Put(ctx context.Context, zone *domain.Zone) error {
	const query = `
        INSERT INTO zones (zone_id, name, boundary, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (zone_id) DO UPDATE SET name=EXCLUDED.name, boundary=EXCLUDED.boundary, updated_at=EXCLUDED.updated_at
        RETURNING created_at`
	return r.pool.QueryRow(ctx, query,
		zone.ZoneID,
		zone.Name,
		zone.Boundary,
		zone.CreatedAt,
		zone.UpdatedAt,
	).Scan(&zone.CreatedAt)
}

func (r *zoneRepository) Delete(ctx context.Context, zoneID string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM zones WHERE zone_id=$1`, zoneID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
