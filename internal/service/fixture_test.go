package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/civic-requests/internal/domain"
	"github.com/spec-kit/civic-requests/internal/events"
	"github.com/spec-kit/civic-requests/internal/geo"
	"github.com/spec-kit/civic-requests/internal/keylock"
	"github.com/spec-kit/civic-requests/internal/observability"
	"github.com/spec-kit/civic-requests/internal/policy"
	"github.com/spec-kit/civic-requests/internal/repository/memory"
)

// Monday 2026-03-02 10:00 UTC.
var monday10 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

var (
	hadassah = domain.Location{Lon: 35.2137, Lat: 31.7683}
	center   = domain.Location{Lon: 35.2100, Lat: 31.7800}
	outskirt = domain.Location{Lon: 35.1000, Lat: 31.6000}
	staff    = domain.Actor{Type: domain.SubjectTypeStaff, ID: "dispatcher-1"}
	agentAct = domain.Actor{Type: domain.SubjectTypeAgent, ID: "field"}
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func (c *memoryCache) GetJSON(_ context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, dst)
}

func (c *memoryCache) SetJSON(_ context.Context, key string, value any, _ time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = map[string][]byte{}
	}
	c.entries[key] = data
	return nil
}

type fixture struct {
	clock      *testClock
	requests   *memory.RequestStore
	agentStore *memory.AgentStore
	zoneStore  *memory.ZoneStore
	citizens   *memory.CitizenStore
	history    *memory.EventStore
	comments   *memory.CommentStore
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	cache      *memoryCache

	requestSvc    *RequestService
	assignmentSvc *AssignmentService
	slaSvc        *SLAService
	agentSvc      *AgentService
	zoneSvc       *ZoneService
	analyticsSvc  *AnalyticsService
}

func box(minLon, minLat, maxLon, maxLat float64) domain.Polygon {
	return domain.Polygon{Type: "Polygon", Coordinates: [][][]float64{{
		{minLon, minLat}, {maxLon, minLat}, {maxLon, maxLat}, {minLon, maxLat}, {minLon, minLat},
	}}}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	registry := policy.Default()
	index := geo.NewIndex(registry.Sensitive)
	locks := keylock.New()
	clock := &testClock{now: monday10}
	retry := &RetryPolicy{MaxRetries: 3, Backoff: time.Millisecond}

	f := &fixture{
		clock:      clock,
		requests:   memory.NewRequestStore(),
		agentStore: memory.NewAgentStore(),
		zoneStore:  memory.NewZoneStore(),
		citizens:   memory.NewCitizenStore(),
		history:    memory.NewEventStore(),
		comments:   memory.NewCommentStore(),
		dispatcher: events.NewInMemoryDispatcher(),
		metrics:    observability.NewMetrics(),
		cache:      &memoryCache{},
	}
	f.requestSvc = NewRequestService(RequestDependencies{
		RequestRepo: f.requests,
		AgentRepo:   f.agentStore,
		CitizenRepo: f.citizens,
		HistoryRepo: f.history,
		CommentRepo: f.comments,
		Registry:    registry,
		Index:       index,
		Locks:       locks,
		Dispatcher:  f.dispatcher,
		Metrics:     f.metrics,
		Retry:       retry,
		Clock:       clock.Now,
	})
	f.assignmentSvc = NewAssignmentService(AssignmentDependencies{
		RequestRepo: f.requests,
		AgentRepo:   f.agentStore,
		HistoryRepo: f.history,
		Registry:    registry,
		Index:       index,
		Locks:       locks,
		Location:    time.UTC,
		Dispatcher:  f.dispatcher,
		Metrics:     f.metrics,
		Retry:       retry,
		Clock:       clock.Now,
	})
	f.slaSvc = NewSLAService(SLADependencies{
		RequestRepo: f.requests,
		Cache:       f.cache,
		CacheTTL:    time.Minute,
		PageSize:    2,
		Dispatcher:  f.dispatcher,
		Metrics:     f.metrics,
		Clock:       clock.Now,
	})
	f.agentSvc = NewAgentService(AgentDependencies{
		AgentRepo:   f.agentStore,
		ZoneRepo:    f.zoneStore,
		RequestRepo: f.requests,
		Locks:       locks,
		Clock:       clock.Now,
	})
	f.zoneSvc = NewZoneService(ZoneDependencies{
		ZoneRepo:    f.zoneStore,
		AgentRepo:   f.agentStore,
		RequestRepo: f.requests,
		Index:       index,
		Locks:       locks,
		Clock:       clock.Now,
	})
	f.analyticsSvc = NewAnalyticsService(AnalyticsDependencies{
		RequestRepo: f.requests,
		AgentRepo:   f.agentStore,
		Clock:       clock.Now,
	})

	ctx := context.Background()
	_, err := f.zoneSvc.Create(ctx, ZoneInput{ZoneID: "ZONE-CENTER", Name: "Center", Boundary: box(35.20, 31.76, 35.23, 31.79)})
	require.NoError(t, err)
	_, err = f.zoneSvc.Create(ctx, ZoneInput{ZoneID: "ZONE-NORTH", Name: "North", Boundary: box(35.20, 31.80, 35.23, 31.83)})
	require.NoError(t, err)
	return f
}

func (f *fixture) addAgent(t *testing.T, code string, skills ...string) *domain.Agent {
	t.Helper()
	agent, err := f.agentSvc.Create(context.Background(), AgentInput{
		Code:     code,
		Name:     "Agent " + code,
		Skills:   skills,
		Coverage: domain.Coverage{ZoneIDs: []string{"ZONE-CENTER"}},
		Schedule: domain.Schedule{Shifts: []domain.Shift{{Day: "mon", Start: "08:00", End: "16:00"}}},
	})
	require.NoError(t, err)
	return agent
}

func (f *fixture) submit(t *testing.T, category domain.Category, priority domain.Priority, loc domain.Location) *domain.ServiceRequest {
	t.Helper()
	req, err := f.requestSvc.Create(context.Background(), CreateRequestInput{
		Category:    category,
		Priority:    priority,
		Location:    &loc,
		Description: "reported by resident",
	})
	require.NoError(t, err)
	return req
}

// triaged submits a request and moves it to triaged.
func (f *fixture) triaged(t *testing.T, category domain.Category, loc domain.Location) *domain.ServiceRequest {
	t.Helper()
	req := f.submit(t, category, domain.PriorityMedium, loc)
	req, err := f.requestSvc.Transition(context.Background(), req.ID, domain.StatusTriaged, staff)
	require.NoError(t, err)
	return req
}

func (f *fixture) workload(t *testing.T, agentID string) int {
	t.Helper()
	agent, err := f.agentStore.Get(context.Background(), agentID)
	require.NoError(t, err)
	return agent.CurrentWorkload
}

func (f *fixture) historyTypes(t *testing.T, requestID string) []domain.RequestEventType {
	t.Helper()
	trail, err := f.requestSvc.History(context.Background(), requestID)
	require.NoError(t, err)
	out := make([]domain.RequestEventType, 0, len(trail))
	for _, event := range trail {
		out = append(out, event.Type)
	}
	return out
}
