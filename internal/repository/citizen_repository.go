package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/civic-requests/internal/domain"
)

// CitizenRepository defines persistence access for residents.
type CitizenRepository interface {
	Create(ctx context.Context, citizen *domain.Citizen) error
	Update(ctx context.Context, citizen *domain.Citizen) error
	GetByID(ctx context.Context, id string) (*domain.Citizen, error)
	GetByEmail(ctx context.Context, email string) (*domain.Citizen, error)
	List(ctx context.Context, limit, offset int) ([]*domain.Citizen, int, error)
}

type citizenRepository struct {
	pool *pgxpool.Pool
}

// NewCitizenRepository returns a Postgres-backed implementation.
func NewCitizenRepository(pool *pgxpool.Pool) CitizenRepository {
	return &citizenRepository{pool: pool}
}

const citizenColumns = `id, full_name, email, phone, preferred_contact, address_zone_id, password_hash,
               verification_state, verified_at, created_at, updated_at`

func (r *citizenRepository) Create(ctx context.Context, citizen *domain.Citizen) error {
	const query = `
        INSERT INTO citizens (id, full_name, email, phone, preferred_contact, address_zone_id, password_hash, verification_state)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		citizen.ID,
		citizen.FullName,
		citizen.Email,
		citizen.Phone,
		citizen.PreferredContact,
		citizen.AddressZoneID,
		citizen.PasswordHash,
		citizen.VerificationState,
	).Scan(&citizen.CreatedAt, &citizen.UpdatedAt)
	return mapUniqueViolation(err, "citizen", map[string]any{"email": citizen.Email})
}

func (r *citizenRepository) Update(ctx context.Context, citizen *domain.Citizen) error {
	const query = `
        UPDATE citizens SET full_name=$1, email=$2, phone=$3, preferred_contact=$4, address_zone_id=$5,
            password_hash=$6, verification_state=$7, verified_at=$8, updated_at=NOW()
        WHERE id=$9`

	cmd, err := r.pool.Exec(ctx, query,
		citizen.FullName,
		citizen.Email,
		citizen.Phone,
		citizen.PreferredContact,
		citizen.AddressZoneID,
		citizen.PasswordHash,
		citizen.VerificationState,
		citizen.VerifiedAt,
		citizen.ID,
	)
	if err != nil {
		return mapUniqueViolation(err, "citizen", map[string]any{"email": citizen.Email})
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *citizenRepository) GetByID(ctx context.Context, id string) (*domain.Citizen, error) {
	return scanCitizen(r.pool.QueryRow(ctx, `SELECT `+citizenColumns+` FROM citizens WHERE id=$1`, id))
}

func (r *citizenRepository) GetByEmail(ctx context.Context, email string) (*domain.Citizen, error) {
	return scanCitizen(r.pool.QueryRow(ctx, `SELECT `+citizenColumns+` FROM citizens WHERE LOWER(email)=LOWER($1)`, email))
}

func (r *citizenRepository) List(ctx context.Context, limit, offset int) ([]*domain.Citizen, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM citizens`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+citizenColumns+` FROM citizens ORDER BY created_at ASC, id ASC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []*domain.Citizen
	for rows.Next() {
		citizen, err := scanCitizen(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, citizen)
	}
	return result, total, rows.Err()
}

func scanCitizen(row pgx.Row) (*domain.Citizen, error) {
	var citizen domain.Citizen
	if err := row.Scan(
		&citizen.ID,
		&citizen.FullName,
		&citizen.Email,
		&citizen.Phone,
		&citizen.PreferredContact,
		&citizen.AddressZoneID,
		&citizen.PasswordHash,
		&citizen.VerificationState,
		&citizen.VerifiedAt,
		&citizen.CreatedAt,
		&citizen.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &citizen, nil
}
