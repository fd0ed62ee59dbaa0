package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/civic-requests/internal/assignment"
	"github.com/spec-kit/civic-requests/internal/domain"
	"github.com/spec-kit/civic-requests/internal/geo"
	"github.com/spec-kit/civic-requests/internal/keylock"
	"github.com/spec-kit/civic-requests/internal/repository"
	apperrors "github.com/spec-kit/civic-requests/pkg/util/errorutil"
)

// AgentService manages the field agent roster.
type AgentService struct {
	agents   repository.AgentRepository
	zones    repository.ZoneRepository
	requests repository.RequestRepository
	locks    *keylock.Locker
	logger   *zap.Logger
	now      func() time.Time
}

// AgentDependencies bundles collaborators for the agent service.
type AgentDependencies struct {
	AgentRepo   repository.AgentRepository
	ZoneRepo    repository.ZoneRepository
	RequestRepo repository.RequestRepository
	Locks       *keylock.Locker
	Logger      *zap.Logger
	Clock       func() time.Time
}

// AgentInput describes a new agent.
type AgentInput struct {
	Code       string
	Name       string
	Department string
	Skills     []string
	Coverage   domain.Coverage
	Schedule   domain.Schedule
	Active     *bool
}

// AgentPatch carries partial updates; nil fields are left unchanged.
type AgentPatch struct {
	Name       *string
	Department *string
	Skills     *[]string
	Coverage   *domain.Coverage
	Schedule   *domain.Schedule
	Active     *bool
}

// AgentListFilter narrows roster listings.
type AgentListFilter struct {
	Active     *bool
	ZoneID     *string
	Skill      *string
	Department *string
	Limit      int
	Offset     int
}

// NewAgentService constructs the service.
func NewAgentService(deps AgentDependencies) *AgentService {
	locks := deps.Locks
	if locks == nil {
		locks = keylock.New()
	}
	return &AgentService{
		agents:   deps.AgentRepo,
		zones:    deps.ZoneRepo,
		requests: deps.RequestRepo,
		locks:    locks,
		logger:   loggerOrNop(deps.Logger),
		now:      clockOrNow(deps.Clock),
	}
}

// Create registers a new agent with zero workload.
func (s *AgentService) Create(ctx context.Context, input AgentInput) (*domain.Agent, error) {
	code := strings.TrimSpace(input.Code)
	name := strings.TrimSpace(input.Name)
	if code == "" || name == "" {
		return nil, apperrors.NewValidationError("code and name are required", nil)
	}
	if err := s.validateCoverage(ctx, input.Coverage); err != nil {
		return nil, err
	}
	if err := assignment.ValidateSchedule(input.Schedule); err != nil {
		return nil, apperrors.NewValidationError(err.Error(), nil)
	}
	active := true
	if input.Active != nil {
		active = *input.Active
	}
	now := s.now()
	agent := &domain.Agent{
		ID:         uuid.NewString(),
		Code:       code,
		Name:       name,
		Department: strings.TrimSpace(input.Department),
		Skills:     normalizeSkills(input.Skills),
		Coverage:   normalizeCoverage(input.Coverage),
		Schedule:   input.Schedule,
		Active:     active,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.agents.Put(ctx, agent, 0); err != nil {
		return nil, err
	}
	s.logger.Info("agent created", zap.String("agent_id", agent.ID), zap.String("code", agent.Code))
	return agent, nil
}

// Get returns an agent by id.
func (s *AgentService) Get(ctx context.Context, id string) (*domain.Agent, error) {
	agent, err := s.agents.Get(ctx, id)
	if err != nil {
		return nil, notFound(err, "agent", "agent_id", id)
	}
	return agent, nil
}

// List returns agents ordered by code.
func (s *AgentService) List(ctx context.Context, filter AgentListFilter) ([]*domain.Agent, error) {
	return s.agents.Query(ctx, repository.AgentFilter{
		Active:     filter.Active,
		ZoneID:     filter.ZoneID,
		Skill:      filter.Skill,
		Department: filter.Department,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	})
}

// Update applies a patch. A non-zero expectedVersion must match the stored
// version; zero accepts whatever is current.
func (s *AgentService) Update(ctx context.Context, id string, patch AgentPatch, expectedVersion int64) (*domain.Agent, error) {
	if patch.Coverage != nil {
		if err := s.validateCoverage(ctx, *patch.Coverage); err != nil {
			return nil, err
		}
	}
	if patch.Schedule != nil {
		if err := assignment.ValidateSchedule(*patch.Schedule); err != nil {
			return nil, apperrors.NewValidationError(err.Error(), nil)
		}
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return nil, apperrors.NewValidationError("name cannot be empty", nil)
	}

	unlock := s.locks.Lock(keylock.AgentKey(id))
	defer unlock()

	agent, err := s.agents.Get(ctx, id)
	if err != nil {
		return nil, notFound(err, "agent", "agent_id", id)
	}
	if expectedVersion != 0 && agent.Version != expectedVersion {
		return nil, apperrors.NewConcurrentModification("agent", id)
	}
	if patch.Name != nil {
		agent.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Department != nil {
		agent.Department = strings.TrimSpace(*patch.Department)
	}
	if patch.Skills != nil {
		agent.Skills = normalizeSkills(*patch.Skills)
	}
	if patch.Coverage != nil {
		agent.Coverage = normalizeCoverage(*patch.Coverage)
	}
	if patch.Schedule != nil {
		agent.Schedule = *patch.Schedule
	}
	if patch.Active != nil {
		agent.Active = *patch.Active
	}
	agent.UpdatedAt = s.now()
	if err := s.agents.Put(ctx, agent, agent.Version); err != nil {
		return nil, err
	}
	return agent, nil
}

// Delete removes an agent with no open work.
func (s *AgentService) Delete(ctx context.Context, id string) error {
	unlock := s.locks.Lock(keylock.AgentKey(id))
	defer unlock()

	agent, err := s.agents.Get(ctx, id)
	if err != nil {
		return notFound(err, "agent", "agent_id", id)
	}
	if agent.CurrentWorkload > 0 {
		return apperrors.NewReferentialIntegrity("agent still has assigned work",
			map[string]any{"agent_id": id, "workload": agent.CurrentWorkload})
	}
	if err := s.agents.Delete(ctx, id, agent.Version); err != nil {
		return notFound(err, "agent", "agent_id", id)
	}
	s.logger.Info("agent deleted", zap.String("agent_id", id))
	return nil
}

// Tasks lists requests assigned to the agent. Unless includeDone is set only
// assigned and in-progress requests are returned.
func (s *AgentService) Tasks(ctx context.Context, agentID string, includeDone bool) ([]*domain.ServiceRequest, error) {
	if _, err := s.Get(ctx, agentID); err != nil {
		return nil, err
	}
	filter := repository.RequestFilter{AgentID: &agentID, Ascending: true}
	if !includeDone {
		filter.Statuses = []domain.RequestStatus{domain.StatusAssigned, domain.StatusInProgress}
	}
	return s.requests.Query(ctx, filter)
}

func (s *AgentService) validateCoverage(ctx context.Context, coverage domain.Coverage) error {
	if !coverage.GeoFence.Empty() {
		if err := geo.ValidatePolygon(coverage.GeoFence); err != nil {
			return apperrors.NewValidationError("invalid geo fence: "+err.Error(), nil)
		}
	}
	if len(coverage.ZoneIDs) == 0 && coverage.GeoFence.Empty() {
		return apperrors.NewValidationError("coverage needs a zone or a geo fence", nil)
	}
	for _, zoneID := range coverage.ZoneIDs {
		if _, err := s.zones.Get(ctx, zoneID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.NewValidationError("unknown zone", map[string]any{"zone_id": zoneID})
			}
			return err
		}
	}
	return nil
}

func normalizeSkills(skills []string) []string {
	seen := make(map[string]struct{}, len(skills))
	out := make([]string, 0, len(skills))
	for _, skill := range skills {
		skill = strings.ToLower(strings.TrimSpace(skill))
		if skill == "" {
			continue
		}
		if _, ok := seen[skill]; ok {
			continue
		}
		seen[skill] = struct{}{}
		out = append(out, skill)
	}
	sort.Strings(out)
	return out
}

func normalizeCoverage(coverage domain.Coverage) domain.Coverage {
	out := domain.Coverage{GeoFence: coverage.GeoFence.Clone()}
	seen := make(map[string]struct{}, len(coverage.ZoneIDs))
	for _, zoneID := range coverage.ZoneIDs {
		zoneID = strings.TrimSpace(zoneID)
		if _, ok := seen[zoneID]; ok || zoneID == "" {
			continue
		}
		seen[zoneID] = struct{}{}
		out.ZoneIDs = append(out.ZoneIDs, zoneID)
	}
	sort.Strings(out.ZoneIDs)
	return out
}
