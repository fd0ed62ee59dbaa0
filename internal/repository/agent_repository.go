package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/civic-requests/internal/domain"
	apperrors "github.com/spec-kit/civic-requests/pkg/util/errorutil"
)

// AgentFilter defines query params for agent listing.
type AgentFilter struct {
	Active     *bool
	ZoneID     *string
	Skill      *string
	Department *string
	Limit      int
	Offset     int
}

// Matches reports whether agent satisfies the filter.
func (f AgentFilter) Matches(agent *domain.Agent) bool {
	if f.Active != nil && agent.Active != *f.Active {
		return false
	}
	if f.ZoneID != nil && !agent.CoversZone(*f.ZoneID) {
		return false
	}
	if f.Skill != nil && !agent.HasSkill(*f.Skill) {
		return false
	}
	if f.Department != nil && agent.Department != *f.Department {
		return false
	}
	return true
}

// AgentRepository handles persistence for field agents.
type AgentRepository interface {
	Get(ctx context.Context, id string) (*domain.Agent, error)
	GetByCode(ctx context.Context, code string) (*domain.Agent, error)
	// Put writes agent when the stored version equals expectedVersion (0 inserts).
	Put(ctx context.Context, agent *domain.Agent, expectedVersion int64) error
	Query(ctx context.Context, filter AgentFilter) ([]*domain.Agent, error)
	Delete(ctx context.Context, id string, expectedVersion int64) error
}

type agentRepository struct {
	pool *pgxpool.Pool
}

// NewAgentRepository instantiates the repository.
func NewAgentRepository(pool *pgxpool.Pool) AgentRepository {
	return &agentRepository{pool: pool}
}

const agentColumns = `id, code, name, department, skills, coverage, schedule, current_workload,
               active_flag, version, created_at, updated_at`

func (r *agentRepository) Get(ctx context.Context, id string) (*domain.Agent, error) {
	return scanAgent(r.pool.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE id=$1`, id))
}

func (r *agentRepository) GetByCode(ctx context.Context, code string) (*domain.Agent, error) {
	return scanAgent(r.pool.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE code=$1`, code))
}

func (r *agentRepository) Put(ctx context.Context, agent *domain.Agent, expectedVersion int64) error {
	next := expectedVersion + 1
	skills := nonNilStrings(agent.Skills)
	if expectedVersion == 0 {
		const query = `
        INSERT INTO agents (id, code, name, department, skills, coverage, schedule, current_workload,
            active_flag, version, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
		_, err := r.pool.Exec(ctx, query,
			agent.ID,
			agent.Code,
			agent.Name,
			agent.Department,
			skills,
			agent.Coverage,
			agent.Schedule,
			agent.CurrentWorkload,
			agent.Active,
			next,
			agent.CreatedAt,
			agent.UpdatedAt,
		)
		if err != nil {
			return mapUniqueViolation(err, "agent", map[string]any{"code": agent.Code})
		}
		agent.Version = next
		return nil
	}

	const query = `
        UPDATE agents SET code=$1, name=$2, department=$3, skills=$4, coverage=$5, schedule=$6,
            current_workload=$7, active_flag=$8, version=$9, updated_at=$10
        WHERE id=$11 AND version=$12`
	cmd, err := r.pool.Exec(ctx, query,
		agent.Code,
		agent.Name,
		agent.Department,
		skills,
		agent.Coverage,
		agent.Schedule,
		agent.CurrentWorkload,
		agent.Active,
		next,
		agent.UpdatedAt,
		agent.ID,
		expectedVersion,
	)
	if err != nil {
		return mapUniqueViolation(err, "agent", map[string]any{"code": agent.Code})
	}
	if cmd.RowsAffected() == 0 {
		if _, err := r.Get(ctx, agent.ID); err != nil {
			return err
		}
		return apperrors.NewConcurrentModification("agent", agent.ID)
	}
	agent.Version = next
	return nil
}

func (r *agentRepository) Query(ctx context.Context, filter AgentFilter) ([]*domain.Agent, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.Active != nil {
		args = append(args, *filter.Active)
		clauses = append(clauses, fmt.Sprintf("active_flag=$%d", len(args)))
	}
	if filter.ZoneID != nil {
		args = append(args, *filter.ZoneID)
		clauses = append(clauses, fmt.Sprintf("coverage->'zone_ids' ? $%d", len(args)))
	}
	if filter.Skill != nil {
		args = append(args, *filter.Skill)
		clauses = append(clauses, fmt.Sprintf("$%d = ANY(skills)", len(args)))
	}
	if filter.Department != nil {
		args = append(args, *filter.Department)
		clauses = append(clauses, fmt.Sprintf("department=$%d", len(args)))
	}

	query := fmt.Sprintf(`SELECT %s FROM agents WHERE %s ORDER BY code ASC`, agentColumns, strings.Join(clauses, " AND "))
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, agent)
	}
	return result, rows.Err()
}

func (r *agentRepository) Delete(ctx context.Context, id string, expectedVersion int64) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM agents WHERE id=$1 AND version=$2`, id, expectedVersion)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return apperrors.NewConcurrentModification("agent", id)
	}
	return nil
}

func scanAgent(row pgx.Row) (*domain.Agent, error) {
	var agent domain.Agent
	if err := row.Scan(
		&agent.ID,
		&agent.Code,
		&agent.Name,
		&agent.Department,
		&agent.Skills,
		&agent.Coverage,
		&agent.Schedule,
		&agent.CurrentWorkload,
		&agent.Active,
		&agent.Version,
		&agent.CreatedAt,
		&agent.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &agent, nil
}

// mapUniqueViolation turns a Postgres unique violation into a conflict error.
func mapUniqueViolation(err error, resource string, details map[string]any) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return apperrors.NewConflict(resource+" already exists", details)
	}
	return err
}
