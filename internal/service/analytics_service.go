package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/spec-kit/civic-requests/internal/domain"
	"github.com/spec-kit/civic-requests/internal/repository"
	"github.com/spec-kit/civic-requests/internal/slaclock"
	apperrors "github.com/spec-kit/civic-requests/pkg/util/errorutil"
)

// AnalyticsService computes reporting views over the request store.
type AnalyticsService struct {
	requests repository.RequestRepository
	agents   repository.AgentRepository
	now      func() time.Time
}

// AnalyticsDependencies bundles collaborators for analytics.
type AnalyticsDependencies struct {
	RequestRepo repository.RequestRepository
	AgentRepo   repository.AgentRepository
	Clock       func() time.Time
}

// NewAnalyticsService constructs the service.
func NewAnalyticsService(deps AnalyticsDependencies) *AnalyticsService {
	return &AnalyticsService{requests: deps.RequestRepo, agents: deps.AgentRepo, now: clockOrNow(deps.Clock)}
}

// Stats is the status/category/priority breakdown.
type Stats struct {
	TotalRequests    int            `json:"total_requests"`
	OpenRequests     int            `json:"open_requests"`
	ResolvedRequests int            `json:"resolved_requests"`
	ByStatus         map[string]int `json:"by_status"`
	ByCategory       map[string]int `json:"by_category"`
	ByPriority       map[string]int `json:"by_priority"`
}

// KPIs are the headline performance indicators.
type KPIs struct {
	TotalRequests       int            `json:"total_requests"`
	OpenRequests        int            `json:"open_requests"`
	AtRiskCount         int            `json:"at_risk_count"`
	BreachedCount       int            `json:"breached_count"`
	SLABreachPercentage float64        `json:"sla_breach_percentage"`
	AvgResolutionHours  float64        `json:"avg_resolution_hours"`
	P90ResolutionHours  float64        `json:"p90_resolution_hours"`
	AvgRating           float64        `json:"avg_rating"`
	RatingDistribution  map[string]int `json:"rating_distribution"`
	DisputedCount       int            `json:"disputed_count"`
	EscalatedCount      int            `json:"escalated_count"`
	BacklogByCategory   map[string]int `json:"backlog_by_category"`
	BacklogByZone       map[string]int `json:"backlog_by_zone"`
	ActiveAgents        int            `json:"total_agents"`
	GeneratedAt         time.Time      `json:"generated_at"`
}

// HeatmapFilter narrows the heatmap feed.
type HeatmapFilter struct {
	Category *domain.Category
	Priority *domain.Priority
}

// Feature is a GeoJSON point feature.
type Feature struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Geometry   PointGeometry  `json:"geometry"`
}

// PointGeometry is a GeoJSON point.
type PointGeometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// Hotspot aggregates open requests on a ~100 m grid cell.
type Hotspot struct {
	Lon   float64 `json:"lon"`
	Lat   float64 `json:"lat"`
	Count int     `json:"count"`
}

// Heatmap is a FeatureCollection of open requests plus grid hotspots.
type Heatmap struct {
	Type        string    `json:"type"`
	Features    []Feature `json:"features"`
	Hotspots    []Hotspot `json:"hotspots"`
	GeneratedAt time.Time `json:"generated_at"`
}

// AgentStats summarises one agent's work.
type AgentStats struct {
	AgentID         string   `json:"agent_id"`
	Code            string   `json:"code"`
	AgentName       string   `json:"agent_name"`
	Department      string   `json:"department"`
	CurrentWorkload int      `json:"current_workload"`
	ActiveTasks     int      `json:"active_tasks"`
	CompletedTasks  int      `json:"completed_tasks"`
	TotalTasks      int      `json:"total_tasks"`
	AvgRating       float64  `json:"avg_rating"`
	Skills          []string `json:"skills"`
}

// TimelinePoint counts requests created and resolved on one day.
type TimelinePoint struct {
	Date     string `json:"date"`
	Count    int    `json:"count"`
	Resolved int    `json:"resolved"`
}

// ZoneStats aggregates requests per zone.
type ZoneStats struct {
	ZoneID   string `json:"zone_id"`
	Total    int    `json:"total"`
	Open     int    `json:"open"`
	Resolved int    `json:"resolved"`
}

// Cohort groups requests by ISO week of submission.
type Cohort struct {
	Week               string  `json:"week"`
	Created            int     `json:"created"`
	Resolved           int     `json:"resolved"`
	WithinSLA          int     `json:"within_sla"`
	AvgResolutionHours float64 `json:"avg_resolution_hours"`
	AvgRating          float64 `json:"avg_rating"`
}

var heatWeights = map[domain.Priority]float64{
	domain.PriorityCritical: 1.0,
	domain.PriorityHigh:     0.8,
	domain.PriorityMedium:   0.5,
	domain.PriorityLow:      0.3,
}

func (s *AnalyticsService) all(ctx context.Context, filter repository.RequestFilter) ([]*domain.ServiceRequest, error) {
	return s.requests.Query(ctx, filter)
}

// Stats returns the breakdown of every request.
func (s *AnalyticsService) Stats(ctx context.Context) (*Stats, error) {
	reqs, err := s.all(ctx, repository.RequestFilter{})
	if err != nil {
		return nil, err
	}
	out := &Stats{
		TotalRequests: len(reqs),
		ByStatus:      map[string]int{},
		ByCategory:    map[string]int{},
		ByPriority:    map[string]int{},
	}
	for _, req := range reqs {
		out.ByStatus[string(req.Status)]++
		out.ByCategory[string(req.Category)]++
		out.ByPriority[string(req.Priority)]++
		if req.Status.Terminal() {
			out.ResolvedRequests++
		} else {
			out.OpenRequests++
		}
	}
	return out, nil
}

// KPIs computes the headline indicators at the current instant.
func (s *AnalyticsService) KPIs(ctx context.Context) (*KPIs, error) {
	reqs, err := s.all(ctx, repository.RequestFilter{})
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := &KPIs{
		TotalRequests:      len(reqs),
		RatingDistribution: map[string]int{"1": 0, "2": 0, "3": 0, "4": 0, "5": 0},
		BacklogByCategory:  map[string]int{},
		BacklogByZone:      map[string]int{},
		GeneratedAt:        now,
	}
	var resolutions, stars []float64
	for _, req := range reqs {
		if req.Triage.PriorityEscalated {
			out.EscalatedCount++
		}
		if req.Rating != nil {
			stars = append(stars, float64(req.Rating.Stars))
			out.RatingDistribution[fmt.Sprint(req.Rating.Stars)]++
			if req.Rating.Dispute {
				out.DisputedCount++
			}
		}
		if req.Status.Terminal() {
			if hours, ok := resolutionHours(req); ok {
				resolutions = append(resolutions, hours)
			}
			continue
		}
		out.OpenRequests++
		out.BacklogByCategory[string(req.Category)]++
		out.BacklogByZone[zoneLabel(req.ZoneID)]++
		switch slaclock.Evaluate(req, req.SLA, now).State {
		case slaclock.StateAtRisk:
			out.AtRiskCount++
		case slaclock.StateBreached:
			out.BreachedCount++
		}
	}
	if out.OpenRequests > 0 {
		out.SLABreachPercentage = round(float64(out.BreachedCount)/float64(out.OpenRequests)*100, 1)
	}
	if len(resolutions) > 0 {
		sort.Float64s(resolutions)
		out.AvgResolutionHours = round(stat.Mean(resolutions, nil), 1)
		out.P90ResolutionHours = round(stat.Quantile(0.9, stat.Empirical, resolutions, nil), 1)
	}
	if len(stars) > 0 {
		out.AvgRating = round(stat.Mean(stars, nil), 1)
	}

	if s.agents != nil {
		agents, err := s.agents.Query(ctx, repository.AgentFilter{Active: ptrBool(true)})
		if err != nil {
			return nil, err
		}
		out.ActiveAgents = len(agents)
	}
	return out, nil
}

// Heatmap returns open requests as weighted GeoJSON points. Weight grows with
// priority and age.
func (s *AnalyticsService) Heatmap(ctx context.Context, filter HeatmapFilter) (*Heatmap, error) {
	repoFilter := repository.RequestFilter{Statuses: domain.OpenStatuses, Ascending: true}
	if filter.Category != nil {
		if !filter.Category.Valid() {
			return nil, apperrors.NewValidationError("unknown category", map[string]any{"category": *filter.Category})
		}
		repoFilter.Categories = []domain.Category{*filter.Category}
	}
	if filter.Priority != nil {
		if !filter.Priority.Valid() {
			return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": *filter.Priority})
		}
		repoFilter.Priorities = []domain.Priority{*filter.Priority}
	}
	reqs, err := s.all(ctx, repoFilter)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := &Heatmap{Type: "FeatureCollection", Features: make([]Feature, 0, len(reqs)), Hotspots: []Hotspot{}, GeneratedAt: now}
	cells := map[[2]float64]int{}
	for _, req := range reqs {
		created, ok := req.Timestamp(domain.TimestampCreated)
		if !ok {
			created = now
		}
		age := now.Sub(created).Hours()
		weight, ok := heatWeights[req.Priority]
		if !ok {
			weight = 0.5
		}
		weight *= 1 + age/24
		out.Features = append(out.Features, Feature{
			Type: "Feature",
			Properties: map[string]any{
				"request_id": req.ID,
				"category":   req.Category,
				"priority":   req.Priority,
				"status":     req.Status,
				"weight":     round(weight, 2),
				"age_hours":  round(age, 1),
			},
			Geometry: PointGeometry{Type: "Point", Coordinates: []float64{req.Location.Lon, req.Location.Lat}},
		})
		cells[[2]float64{round(req.Location.Lon, 3), round(req.Location.Lat, 3)}]++
	}
	for cell, count := range cells {
		out.Hotspots = append(out.Hotspots, Hotspot{Lon: cell[0], Lat: cell[1], Count: count})
	}
	sort.Slice(out.Hotspots, func(i, j int) bool {
		a, b := out.Hotspots[i], out.Hotspots[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if a.Lon != b.Lon {
			return a.Lon < b.Lon
		}
		return a.Lat < b.Lat
	})
	return out, nil
}

// Agents summarises workload and completion for every active agent.
func (s *AnalyticsService) Agents(ctx context.Context) ([]AgentStats, error) {
	agents, err := s.agents.Query(ctx, repository.AgentFilter{Active: ptrBool(true)})
	if err != nil {
		return nil, err
	}
	out := make([]AgentStats, 0, len(agents))
	for _, agent := range agents {
		agentID := agent.ID
		reqs, err := s.all(ctx, repository.RequestFilter{AgentID: &agentID})
		if err != nil {
			return nil, err
		}
		row := AgentStats{
			AgentID:         agent.ID,
			Code:            agent.Code,
			AgentName:       agent.Name,
			Department:      agent.Department,
			CurrentWorkload: agent.CurrentWorkload,
			TotalTasks:      len(reqs),
			Skills:          append([]string{}, agent.Skills...),
		}
		var stars []float64
		for _, req := range reqs {
			switch {
			case req.Status.Active():
				row.ActiveTasks++
			case req.Status.Terminal():
				row.CompletedTasks++
			}
			if req.Rating != nil {
				stars = append(stars, float64(req.Rating.Stars))
			}
		}
		if len(stars) > 0 {
			row.AvgRating = round(stat.Mean(stars, nil), 1)
		}
		out = append(out, row)
	}
	return out, nil
}

// Timeline counts requests per day over the last days (1..90).
func (s *AnalyticsService) Timeline(ctx context.Context, days int) ([]TimelinePoint, error) {
	if days < 1 || days > 90 {
		return nil, apperrors.NewValidationError("days must be between 1 and 90", map[string]any{"days": days})
	}
	now := s.now()
	start := now.AddDate(0, 0, -days)
	reqs, err := s.all(ctx, repository.RequestFilter{CreatedFrom: &start, Ascending: true})
	if err != nil {
		return nil, err
	}
	byDay := map[string]*TimelinePoint{}
	var order []string
	point := func(day string) *TimelinePoint {
		p, ok := byDay[day]
		if !ok {
			p = &TimelinePoint{Date: day}
			byDay[day] = p
			order = append(order, day)
		}
		return p
	}
	for _, req := range reqs {
		created, _ := req.Timestamp(domain.TimestampCreated)
		point(created.UTC().Format(time.DateOnly)).Count++
		if resolved, ok := req.Timestamp(domain.TimestampResolved); ok {
			point(resolved.UTC().Format(time.DateOnly)).Resolved++
		}
	}
	sort.Strings(order)
	out := make([]TimelinePoint, 0, len(order))
	for _, day := range order {
		out = append(out, *byDay[day])
	}
	return out, nil
}

// Zones aggregates requests per zone, busiest first.
func (s *AnalyticsService) Zones(ctx context.Context) ([]ZoneStats, error) {
	reqs, err := s.all(ctx, repository.RequestFilter{})
	if err != nil {
		return nil, err
	}
	byZone := map[string]*ZoneStats{}
	for _, req := range reqs {
		label := zoneLabel(req.ZoneID)
		row, ok := byZone[label]
		if !ok {
			row = &ZoneStats{ZoneID: label}
			byZone[label] = row
		}
		row.Total++
		if req.Status.Terminal() {
			row.Resolved++
		} else {
			row.Open++
		}
	}
	out := make([]ZoneStats, 0, len(byZone))
	for _, row := range byZone {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].ZoneID < out[j].ZoneID
	})
	return out, nil
}

// Cohorts groups requests of the last weeks by ISO week of submission.
func (s *AnalyticsService) Cohorts(ctx context.Context, weeks int) ([]Cohort, error) {
	if weeks < 1 || weeks > 52 {
		return nil, apperrors.NewValidationError("weeks must be between 1 and 52", map[string]any{"weeks": weeks})
	}
	start := s.now().AddDate(0, 0, -7*weeks)
	reqs, err := s.all(ctx, repository.RequestFilter{CreatedFrom: &start, Ascending: true})
	if err != nil {
		return nil, err
	}
	type acc struct {
		row         Cohort
		resolutions []float64
		stars       []float64
	}
	byWeek := map[string]*acc{}
	for _, req := range reqs {
		created, _ := req.Timestamp(domain.TimestampCreated)
		year, week := created.UTC().ISOWeek()
		key := fmt.Sprintf("%d-W%02d", year, week)
		a, ok := byWeek[key]
		if !ok {
			a = &acc{row: Cohort{Week: key}}
			byWeek[key] = a
		}
		a.row.Created++
		if hours, ok := resolutionHours(req); ok {
			a.row.Resolved++
			a.resolutions = append(a.resolutions, hours)
			if hours <= req.SLA.BreachHours {
				a.row.WithinSLA++
			}
		}
		if req.Rating != nil {
			a.stars = append(a.stars, float64(req.Rating.Stars))
		}
	}
	out := make([]Cohort, 0, len(byWeek))
	for _, a := range byWeek {
		if len(a.resolutions) > 0 {
			a.row.AvgResolutionHours = round(stat.Mean(a.resolutions, nil), 1)
		}
		if len(a.stars) > 0 {
			a.row.AvgRating = round(stat.Mean(a.stars, nil), 1)
		}
		out = append(out, a.row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Week < out[j].Week })
	return out, nil
}

func resolutionHours(req *domain.ServiceRequest) (float64, bool) {
	created, ok := req.Timestamp(domain.TimestampCreated)
	if !ok {
		return 0, false
	}
	resolved, ok := req.Timestamp(domain.TimestampResolved)
	if !ok {
		return 0, false
	}
	return resolved.Sub(created).Hours(), true
}

func zoneLabel(zoneID string) string {
	if zoneID == "" {
		return "Unknown"
	}
	return zoneID
}

func round(value float64, places int32) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0
	}
	out, _ := decimal.NewFromFloat(value).Round(places).Float64()
	return out
}
