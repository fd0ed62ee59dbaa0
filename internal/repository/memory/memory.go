// Package memory implements the repository contracts in process memory. It is
// used by tests and when no Postgres DSN is configured.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/civic-requests/internal/domain"
	"github.com/spec-kit/civic-requests/internal/repository"
	apperrors "github.com/spec-kit/civic-requests/pkg/util/errorutil"
)

// RequestStore is an in-memory RequestRepository.
type RequestStore struct {
	mu        sync.RWMutex
	requests  map[string]*domain.ServiceRequest
	sequences map[int]int
}

// NewRequestStore creates an empty store.
func NewRequestStore() *RequestStore {
	return &RequestStore{
		requests:  make(map[string]*domain.ServiceRequest),
		sequences: make(map[int]int),
	}
}

var _ repository.RequestRepository = (*RequestStore)(nil)

func (s *RequestStore) Get(_ context.Context, id string) (*domain.ServiceRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return req.Clone(), nil
}

func (s *RequestStore) Put(_ context.Context, req *domain.ServiceRequest, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, exists := s.requests[req.ID]
	switch {
	case expectedVersion == 0 && exists:
		return apperrors.NewConcurrentModification("request", req.ID)
	case expectedVersion != 0 && !exists:
		return pgx.ErrNoRows
	case exists && current.Version != expectedVersion:
		return apperrors.NewConcurrentModification("request", req.ID)
	}
	stored := req.Clone()
	stored.Version = expectedVersion + 1
	s.requests[req.ID] = stored
	req.Version = stored.Version
	return nil
}

func (s *RequestStore) Query(_ context.Context, filter repository.RequestFilter) ([]*domain.ServiceRequest, error) {
	s.mu.RLock()
	matched := make([]*domain.ServiceRequest, 0)
	for _, req := range s.requests {
		if filter.Matches(req) {
			matched = append(matched, req.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		ci, _ := matched[i].Timestamp(domain.TimestampCreated)
		cj, _ := matched[j].Timestamp(domain.TimestampCreated)
		if !ci.Equal(cj) {
			if filter.Ascending {
				return ci.Before(cj)
			}
			return ci.After(cj)
		}
		if filter.Ascending {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].ID > matched[j].ID
	})
	return page(matched, filter.Limit, filter.Offset), nil
}

func (s *RequestStore) Count(_ context.Context, filter repository.RequestFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, req := range s.requests {
		if filter.Matches(req) {
			count++
		}
	}
	return count, nil
}

func (s *RequestStore) NextSequence(_ context.Context, year int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequences[year]++
	return s.sequences[year], nil
}

// AgentStore is an in-memory AgentRepository.
type AgentStore struct {
	mu     sync.RWMutex
	agents map[string]*domain.Agent
}

// NewAgentStore creates an empty store.
func NewAgentStore() *AgentStore {
	return &AgentStore{agents: make(map[string]*domain.Agent)}
}

var _ repository.AgentRepository = (*AgentStore)(nil)

func (s *AgentStore) Get(_ context.Context, id string) (*domain.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agent, ok := s.agents[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return agent.Clone(), nil
}

func (s *AgentStore) GetByCode(_ context.Context, code string) (*domain.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, agent := range s.agents {
		if agent.Code == code {
			return agent.Clone(), nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *AgentStore) Put(_ context.Context, agent *domain.Agent, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, exists := s.agents[agent.ID]
	switch {
	case expectedVersion == 0 && exists:
		return apperrors.NewConcurrentModification("agent", agent.ID)
	case expectedVersion != 0 && !exists:
		return pgx.ErrNoRows
	case exists && current.Version != expectedVersion:
		return apperrors.NewConcurrentModification("agent", agent.ID)
	}
	for id, other := range s.agents {
		if id != agent.ID && other.Code == agent.Code {
			return apperrors.NewConflict("agent already exists", map[string]any{"code": agent.Code})
		}
	}
	stored := agent.Clone()
	stored.Version = expectedVersion + 1
	s.agents[agent.ID] = stored
	agent.Version = stored.Version
	return nil
}

func (s *AgentStore) Query(_ context.Context, filter repository.AgentFilter) ([]*domain.Agent, error) {
	s.mu.RLock()
	matched := make([]*domain.Agent, 0)
	for _, agent := range s.agents {
		if filter.Matches(agent) {
			matched = append(matched, agent.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].Code < matched[j].Code })
	return page(matched, filter.Limit, filter.Offset), nil
}

func (s *AgentStore) Delete(_ context.Context, id string, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.agents[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if current.Version != expectedVersion {
		return apperrors.NewConcurrentModification("agent", id)
	}
	delete(s.agents, id)
	return nil
}

// ZoneStore is an in-memory ZoneRepository.
type ZoneStore struct {
	mu    sync.RWMutex
	zones map[string]*domain.Zone
}

// NewZoneStore creates an empty store.
func NewZoneStore() *ZoneStore {
	return &ZoneStore{zones: make(map[string]*domain.Zone)}
}

var _ repository.ZoneRepository = (*ZoneStore)(nil)

func (s *ZoneStore) Get(_ context.Context, zoneID string) (*domain.Zone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	zone, ok := s.zones[zoneID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return zone.Clone(), nil
}

func (s *ZoneStore) List(_ context.Context) ([]*domain.Zone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Zone, 0, len(s.zones))
	for _, zone := range s.zones {
		out = append(out, zone.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ZoneID < out[j].ZoneID })
	return out, nil
}

func (s *ZoneStore) Put(_ context.Context, zone *domain.Zone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.zones[zone.ZoneID]; ok {
		zone.CreatedAt = existing.CreatedAt
	}
	s.zones[zone.ZoneID] = zone.Clone()
	return nil
}

func (s *ZoneStore) Delete(_ context.Context, zoneID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.zones[zoneID]; !ok {
		return pgx.ErrNoRows
	}
	delete(s.zones, zoneID)
	return nil
}

// CitizenStore is an in-memory CitizenRepository.
type CitizenStore struct {
	mu       sync.RWMutex
	citizens map[string]*domain.Citizen
}

// NewCitizenStore creates an empty store.
func NewCitizenStore() *CitizenStore {
	return &CitizenStore{citizens: make(map[string]*domain.Citizen)}
}

var _ repository.CitizenRepository = (*CitizenStore)(nil)

func (s *CitizenStore) Create(_ context.Context, citizen *domain.Citizen) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.emailTaken(citizen.Email, citizen.ID) {
		return apperrors.NewConflict("citizen already exists", map[string]any{"email": citizen.Email})
	}
	now := time.Now().UTC()
	citizen.CreatedAt = now
	citizen.UpdatedAt = now
	stored := *citizen
	s.citizens[citizen.ID] = &stored
	return nil
}

func (s *CitizenStore) Update(_ context.Context, citizen *domain.Citizen) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.citizens[citizen.ID]; !ok {
		return pgx.ErrNoRows
	}
	if s.emailTaken(citizen.Email, citizen.ID) {
		return apperrors.NewConflict("citizen already exists", map[string]any{"email": citizen.Email})
	}
	citizen.UpdatedAt = time.Now().UTC()
	stored := *citizen
	s.citizens[citizen.ID] = &stored
	return nil
}

func (s *CitizenStore) emailTaken(email, exceptID string) bool {
	for id, other := range s.citizens {
		if id != exceptID && strings.EqualFold(other.Email, email) {
			return true
		}
	}
	return false
}

func (s *CitizenStore) GetByID(_ context.Context, id string) (*domain.Citizen, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	citizen, ok := s.citizens[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := *citizen
	return &out, nil
}

func (s *CitizenStore) GetByEmail(_ context.Context, email string) (*domain.Citizen, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, citizen := range s.citizens {
		if strings.EqualFold(citizen.Email, email) {
			out := *citizen
			return &out, nil
		}
	}
	return nil, pgx.ErrNoRows
}

// List returns citizens by registration time, then id.
func (s *CitizenStore) List(_ context.Context, limit, offset int) ([]*domain.Citizen, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]*domain.Citizen, 0, len(s.citizens))
	for _, citizen := range s.citizens {
		out := *citizen
		all = append(all, &out)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})
	return page(all, limit, offset), len(all), nil
}

// EventStore is an in-memory RequestEventRepository.
type EventStore struct {
	mu     sync.RWMutex
	events map[string][]domain.RequestEvent
}

// NewEventStore creates an empty store.
func NewEventStore() *EventStore {
	return &EventStore{events: make(map[string][]domain.RequestEvent)}
}

var _ repository.RequestEventRepository = (*EventStore)(nil)

func (s *EventStore) Append(_ context.Context, event *domain.RequestEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.RequestID] = append(s.events[event.RequestID], *event)
	return nil
}

func (s *EventStore) ListByRequest(_ context.Context, requestID string) ([]domain.RequestEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.RequestEvent(nil), s.events[requestID]...), nil
}

// CommentStore is an in-memory RequestCommentRepository.
type CommentStore struct {
	mu       sync.RWMutex
	comments map[string][]domain.RequestComment
}

// NewCommentStore creates an empty store.
func NewCommentStore() *CommentStore {
	return &CommentStore{comments: make(map[string][]domain.RequestComment)}
}

var _ repository.RequestCommentRepository = (*CommentStore)(nil)

func (s *CommentStore) Create(_ context.Context, comment *domain.RequestComment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments[comment.RequestID] = append(s.comments[comment.RequestID], *comment)
	return nil
}

func (s *CommentStore) ListByRequest(_ context.Context, requestID string) ([]domain.RequestComment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.RequestComment(nil), s.comments[requestID]...), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return items[:0]
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
