package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/civic-requests/internal/domain"
	"github.com/spec-kit/civic-requests/internal/geo"
	"github.com/spec-kit/civic-requests/internal/keylock"
	"github.com/spec-kit/civic-requests/internal/repository"
	apperrors "github.com/spec-kit/civic-requests/pkg/util/errorutil"
)

// ZoneService manages coverage zones and keeps the geo index in step with
// the store.
type ZoneService struct {
	zones    repository.ZoneRepository
	agents   repository.AgentRepository
	requests repository.RequestRepository
	index    *geo.Index
	locks    *keylock.Locker
	logger   *zap.Logger
	now      func() time.Time
}

// ZoneDependencies bundles collaborators for the zone service.
type ZoneDependencies struct {
	ZoneRepo    repository.ZoneRepository
	AgentRepo   repository.AgentRepository
	RequestRepo repository.RequestRepository
	Index       *geo.Index
	Locks       *keylock.Locker
	Logger      *zap.Logger
	Clock       func() time.Time
}

// ZoneInput describes a zone to create or replace.
type ZoneInput struct {
	ZoneID   string
	Name     string
	Boundary domain.Polygon
}

// NewZoneService constructs the service.
func NewZoneService(deps ZoneDependencies) *ZoneService {
	locks := deps.Locks
	if locks == nil {
		locks = keylock.New()
	}
	return &ZoneService{
		zones:    deps.ZoneRepo,
		agents:   deps.AgentRepo,
		requests: deps.RequestRepo,
		index:    deps.Index,
		locks:    locks,
		logger:   loggerOrNop(deps.Logger),
		now:      clockOrNow(deps.Clock),
	}
}

// LoadIndex replaces the index contents with every stored zone.
func (s *ZoneService) LoadIndex(ctx context.Context) error {
	zones, err := s.zones.List(ctx)
	if err != nil {
		return err
	}
	values := make([]domain.Zone, 0, len(zones))
	for _, zone := range zones {
		values = append(values, *zone)
	}
	s.index.ReplaceZones(values)
	s.logger.Info("zone index loaded", zap.Int("zones", len(values)))
	return nil
}

// List returns every zone ordered by id.
func (s *ZoneService) List(ctx context.Context) ([]*domain.Zone, error) {
	return s.zones.List(ctx)
}

// Get returns one zone.
func (s *ZoneService) Get(ctx context.Context, zoneID string) (*domain.Zone, error) {
	zone, err := s.zones.Get(ctx, zoneID)
	if err != nil {
		return nil, notFound(err, "zone", "zone_id", zoneID)
	}
	return zone, nil
}

// Create stores a new zone.
func (s *ZoneService) Create(ctx context.Context, input ZoneInput) (*domain.Zone, error) {
	if err := validateZoneInput(input); err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(keylock.ZoneKey(input.ZoneID))
	defer unlock()

	if _, err := s.zones.Get(ctx, input.ZoneID); err == nil {
		return nil, apperrors.NewConflict("zone already exists", map[string]any{"zone_id": input.ZoneID})
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	now := s.now()
	zone := &domain.Zone{
		ZoneID:    strings.TrimSpace(input.ZoneID),
		Name:      strings.TrimSpace(input.Name),
		Boundary:  input.Boundary.Clone(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.zones.Put(ctx, zone); err != nil {
		return nil, err
	}
	s.index.UpsertZone(*zone)
	return zone, nil
}

// Update replaces name and boundary. Boundary changes are refused while the
// zone is referenced by an active agent or an open request.
func (s *ZoneService) Update(ctx context.Context, zoneID string, input ZoneInput) (*domain.Zone, error) {
	input.ZoneID = zoneID
	if err := validateZoneInput(input); err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(keylock.ZoneKey(zoneID))
	defer unlock()

	zone, err := s.zones.Get(ctx, zoneID)
	if err != nil {
		return nil, notFound(err, "zone", "zone_id", zoneID)
	}
	if !polygonsEqual(zone.Boundary, input.Boundary) {
		if err := s.ensureUnreferenced(ctx, zoneID, "boundary"); err != nil {
			return nil, err
		}
	}
	zone.Name = strings.TrimSpace(input.Name)
	zone.Boundary = input.Boundary.Clone()
	zone.UpdatedAt = s.now()
	if err := s.zones.Put(ctx, zone); err != nil {
		return nil, err
	}
	s.index.UpsertZone(*zone)
	return zone, nil
}

// Delete removes an unreferenced zone.
func (s *ZoneService) Delete(ctx context.Context, zoneID string) error {
	unlock := s.locks.Lock(keylock.ZoneKey(zoneID))
	defer unlock()

	if _, err := s.zones.Get(ctx, zoneID); err != nil {
		return notFound(err, "zone", "zone_id", zoneID)
	}
	if err := s.ensureUnreferenced(ctx, zoneID, "delete"); err != nil {
		return err
	}
	if err := s.zones.Delete(ctx, zoneID); err != nil {
		return notFound(err, "zone", "zone_id", zoneID)
	}
	s.index.RemoveZone(zoneID)
	s.logger.Info("zone deleted", zap.String("zone_id", zoneID))
	return nil
}

func (s *ZoneService) ensureUnreferenced(ctx context.Context, zoneID, operation string) error {
	agents, err := s.agents.Query(ctx, repository.AgentFilter{ZoneID: &zoneID, Active: ptrBool(true), Limit: 1})
	if err != nil {
		return err
	}
	open, err := s.requests.Count(ctx, repository.RequestFilter{ZoneID: &zoneID, Statuses: domain.OpenStatuses})
	if err != nil {
		return err
	}
	if len(agents) == 0 && open == 0 {
		return nil
	}
	return apperrors.NewReferentialIntegrity("zone is still referenced", map[string]any{
		"zone_id":       zoneID,
		"operation":     operation,
		"active_agents": len(agents) > 0,
		"open_requests": open,
	})
}

func validateZoneInput(input ZoneInput) error {
	if strings.TrimSpace(input.ZoneID) == "" || strings.TrimSpace(input.Name) == "" {
		return apperrors.NewValidationError("zone_id and name are required", nil)
	}
	if err := geo.ValidatePolygon(input.Boundary); err != nil {
		return apperrors.NewValidationError("invalid boundary: "+err.Error(), map[string]any{"zone_id": input.ZoneID})
	}
	return nil
}

func polygonsEqual(a, b domain.Polygon) bool {
	if len(a.Coordinates) != len(b.Coordinates) {
		return false
	}
	for i := range a.Coordinates {
		if len(a.Coordinates[i]) != len(b.Coordinates[i]) {
			return false
		}
		for j := range a.Coordinates[i] {
			pa, pb := a.Coordinates[i][j], b.Coordinates[i][j]
			if len(pa) != len(pb) {
				return false
			}
			for k := range pa {
				if pa[k] != pb[k] {
					return false
				}
			}
		}
	}
	return true
}
