package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/civic-requests/internal/domain"
	apperrors "github.com/spec-kit/civic-requests/pkg/util/errorutil"
)

// RequestCursor marks a position in (created_at, id) order for keyset paging.
type RequestCursor struct {
	CreatedAt time.Time
	ID        string
}

// RequestFilter captures request search parameters.
type RequestFilter struct {
	Statuses    []domain.RequestStatus
	Categories  []domain.Category
	Priorities  []domain.Priority
	ZoneID      *string
	AgentID     *string
	CitizenID   *string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	// Ascending orders by (created_at, id) ascending; After then skips up to and including the cursor.
	Ascending bool
	After     *RequestCursor
	Limit     int
	Offset    int
}

// Matches reports whether req satisfies every filter clause except paging.
func (f RequestFilter) Matches(req *domain.ServiceRequest) bool {
	if len(f.Statuses) > 0 && !containsValue(f.Statuses, req.Status) {
		return false
	}
	if len(f.Categories) > 0 && !containsValue(f.Categories, req.Category) {
		return false
	}
	if len(f.Priorities) > 0 && !containsValue(f.Priorities, req.Priority) {
		return false
	}
	if f.ZoneID != nil && req.ZoneID != *f.ZoneID {
		return false
	}
	if f.AgentID != nil && (req.AssignedAgentID == nil || *req.AssignedAgentID != *f.AgentID) {
		return false
	}
	if f.CitizenID != nil && req.CitizenID != *f.CitizenID {
		return false
	}
	created, _ := req.Timestamp(domain.TimestampCreated)
	if f.CreatedFrom != nil && created.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && created.After(*f.CreatedTo) {
		return false
	}
	if f.After != nil {
		if created.Before(f.After.CreatedAt) || (created.Equal(f.After.CreatedAt) && req.ID <= f.After.ID) {
			return false
		}
	}
	return true
}

func containsValue[T comparable](values []T, v T) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// RequestRepository is the durable store for service requests.
type RequestRepository interface {
	Get(ctx context.Context, id string) (*domain.ServiceRequest, error)
	// Put writes req when the stored version equals expectedVersion (0 inserts)
	// and sets req.Version to the new version.
	Put(ctx context.Context, req *domain.ServiceRequest, expectedVersion int64) error
	Query(ctx context.Context, filter RequestFilter) ([]*domain.ServiceRequest, error)
	Count(ctx context.Context, filter RequestFilter) (int, error)
	NextSequence(ctx context.Context, year int) (int, error)
}

type requestRepository struct {
	pool *pgxpool.Pool
}

// NewRequestRepository returns a Postgres-backed implementation.
func NewRequestRepository(pool *pgxpool.Pool) RequestRepository {
	return &requestRepository{pool: pool}
}

const requestColumns = `id, citizen_id, category, sub_category, description, priority, status,
               lon, lat, address_hint, zone_id, evidence, assigned_agent_id, timestamps,
               milestones, triage, sla, rating, version, updated_at`

func (r *requestRepository) Get(ctx context.Context, id string) (*domain.ServiceRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM service_requests WHERE id=$1`
	return scanRequest(r.pool.QueryRow(ctx, query, id))
}

func (r *requestRepository) Put(ctx context.Context, req *domain.ServiceRequest, expectedVersion int64) error {
	created, _ := req.Timestamp(domain.TimestampCreated)
	next := expectedVersion + 1
	args := []any{
		req.ID,
		req.CitizenID,
		req.Category,
		req.SubCategory,
		req.Description,
		req.Priority,
		req.Status,
		req.Location.Lon,
		req.Location.Lat,
		req.Location.AddressHint,
		req.ZoneID,
		nonNilStrings(req.Evidence),
		req.AssignedAgentID,
		req.Timestamps,
		nonNilMilestones(req.Milestones),
		req.Triage,
		req.SLA,
		req.Rating,
		next,
		created,
		req.UpdatedAt,
	}

	if expectedVersion == 0 {
		const query = `
        INSERT INTO service_requests (id, citizen_id, category, sub_category, description, priority, status,
            lon, lat, address_hint, zone_id, evidence, assigned_agent_id, timestamps, milestones, triage, sla,
            rating, version, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
        ON CONFLICT (id) DO NOTHING`
		cmd, err := r.pool.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return apperrors.NewConcurrentModification("request", req.ID)
		}
		req.Version = next
		return nil
	}

	const query = `
        UPDATE service_requests SET citizen_id=$2, category=$3, sub_category=$4, description=$5, priority=$6,
            status=$7, lon=$8, lat=$9, address_hint=$10, zone_id=$11, evidence=$12, assigned_agent_id=$13,
            timestamps=$14, milestones=$15, triage=$16, sla=$17, rating=$18, version=$19, created_at=$20,
            updated_at=$21
        WHERE id=$1 AND version=$22`
	cmd, err := r.pool.Exec(ctx, query, append(args, expectedVersion)...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		if _, err := r.Get(ctx, req.ID); err != nil {
			return err
		}
		return apperrors.NewConcurrentModification("request", req.ID)
	}
	req.Version = next
	return nil
}

func (r *requestRepository) Query(ctx context.Context, filter RequestFilter) ([]*domain.ServiceRequest, error) {
	where, args := requestWhere(filter)
	order := "created_at DESC, id DESC"
	if filter.Ascending {
		order = "created_at ASC, id ASC"
	}
	query := fmt.Sprintf(`SELECT %s FROM service_requests WHERE %s ORDER BY %s`, requestColumns, where, order)
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

	var result []*domain.ServiceRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, req)
	}
	return result, rows.Err()
}

func (r *requestRepository) Count(ctx context.Context, filter RequestFilter) (int, error) {
	where, args := requestWhere(filter)
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM service_requests WHERE `+where, args...).Scan(&count)
	return count, err
}

func (r *requestRepository) NextSequence(ctx context.Context, year int) (int, error) {
	const query = `
        INSERT INTO request_sequences (year, last_value) VALUES ($1, 1)
        ON CONFLICT (year) DO UPDATE SET last_value = request_sequences.last_value + 1
        RETURNING last_value`
	var seq int
	if err := r.pool.QueryRow(ctx, query, year).Scan(&seq); err != nil {
		return 0, err
	}
	return seq, nil
}

func requestWhere(filter RequestFilter) (string, []any) {
	clauses := []string{"1=1"}
	args := []any{}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Categories) > 0 {
		placeholders := make([]string, len(filter.Categories))
		for i, category := range filter.Categories {
			args = append(args, category)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("category IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.ZoneID != nil {
		args = append(args, *filter.ZoneID)
		clauses = append(clauses, fmt.Sprintf("zone_id=$%d", len(args)))
	}
	if filter.AgentID != nil {
		args = append(args, *filter.AgentID)
		clauses = append(clauses, fmt.Sprintf("assigned_agent_id=$%d", len(args)))
	}
	if filter.CitizenID != nil {
		args = append(args, *filter.CitizenID)
		clauses = append(clauses, fmt.Sprintf("citizen_id=$%d", len(args)))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if filter.After != nil {
		args = append(args, filter.After.CreatedAt, filter.After.ID)
		clauses = append(clauses, fmt.Sprintf("(created_at, id) > ($%d, $%d)", len(args)-1, len(args)))
	}
	return strings.Join(clauses, " AND "), args
}

func scanRequest(row pgx.Row) (*domain.ServiceRequest, error) {
	var req domain.ServiceRequest
	if err := row.Scan(
		&req.ID,
		&req.CitizenID,
		&req.Category,
		&req.SubCategory,
		&req.Description,
		&req.Priority,
		&req.Status,
		&req.Location.Lon,
		&req.Location.Lat,
		&req.Location.AddressHint,
		&req.ZoneID,
		&req.Evidence,
		&req.AssignedAgentID,
		&req.Timestamps,
		&req.Milestones,
		&req.Triage,
		&req.SLA,
		&req.Rating,
		&req.Version,
		&req.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &req, nil
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func nonNilMilestones(values []domain.Milestone) []domain.Milestone {
	if values == nil {
		return []domain.Milestone{}
	}
	return values
}
