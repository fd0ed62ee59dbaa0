package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/civic-requests/internal/domain"
	"github.com/spec-kit/civic-requests/internal/events"
	"github.com/spec-kit/civic-requests/internal/observability"
	"github.com/spec-kit/civic-requests/internal/repository"
	"github.com/spec-kit/civic-requests/internal/slaclock"
)

// ReportCacheKey is where the last sweep report is cached.
const ReportCacheKey = "civic:sla:report"

// ReportCache stores the last sweep report. persistence.Redis implements it.
type ReportCache interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// SLAService evaluates requests against their SLA snapshots.
type SLAService struct {
	requests   repository.RequestRepository
	cache      ReportCache
	cacheTTL   time.Duration
	pageSize   int
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time

	mu       sync.Mutex
	breached map[string]struct{}
}

// SLADependencies bundles collaborators for the SLA service.
type SLADependencies struct {
	RequestRepo repository.RequestRepository
	Cache       ReportCache
	CacheTTL    time.Duration
	PageSize    int
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
	Logger      *zap.Logger
	Clock       func() time.Time
}

// NewSLAService constructs the service.
func NewSLAService(deps SLADependencies) *SLAService {
	pageSize := deps.PageSize
	if pageSize <= 0 {
		pageSize = 200
	}
	return &SLAService{
		requests:   deps.RequestRepo,
		cache:      deps.Cache,
		cacheTTL:   deps.CacheTTL,
		pageSize:   pageSize,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     loggerOrNop(deps.Logger),
		now:        clockOrNow(deps.Clock),
		breached:   make(map[string]struct{}),
	}
}

// Evaluate returns the SLA state of one request now.
func (s *SLAService) Evaluate(ctx context.Context, id string) (slaclock.Evaluation, error) {
	req, err := s.requests.Get(ctx, id)
	if err != nil {
		return slaclock.Evaluation{}, notFound(err, "request", "request_id", id)
	}
	return slaclock.Evaluate(req, req.SLA, s.now()), nil
}

// ScanOpenRequests evaluates every open request page by page. On
// cancellation it returns the context error and no report.
func (s *SLAService) ScanOpenRequests(ctx context.Context) (*slaclock.Report, error) {
	report := slaclock.NewReport(s.now())
	filter := repository.RequestFilter{
		Statuses:  domain.OpenStatuses,
		Ascending: true,
		Limit:     s.pageSize,
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := s.requests.Query(ctx, filter)
		if err != nil {
			return nil, err
		}
		if err := report.Sweep(ctx, page); err != nil {
			return nil, err
		}
		if len(page) < s.pageSize {
			break
		}
		last := page[len(page)-1]
		created, _ := last.Timestamp(domain.TimestampCreated)
		filter.After = &repository.RequestCursor{CreatedAt: created, ID: last.ID}
	}
	report.Finalize()
	return report, nil
}

// AtRisk returns the cached report when one exists, otherwise scans.
func (s *SLAService) AtRisk(ctx context.Context, fresh bool) (*slaclock.Report, error) {
	if !fresh && s.cache != nil {
		var cached slaclock.Report
		found, err := s.cache.GetJSON(ctx, ReportCacheKey, &cached)
		if err != nil {
			s.logger.Warn("sla report cache read failed", zap.Error(err))
		} else if found {
			return &cached, nil
		}
	}
	return s.ScanOpenRequests(ctx)
}

// RunSweep performs one periodic sweep: scan, cache, update gauges and
// announce requests that breached since the previous sweep.
func (s *SLAService) RunSweep(ctx context.Context, timeout time.Duration) (*slaclock.Report, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	start := time.Now()
	report, err := s.ScanOpenRequests(ctx)
	if err != nil {
		s.metrics.RecordSweep(0, 0, 0, time.Since(start), err)
		return nil, err
	}
	s.metrics.RecordSweep(len(report.AtRisk), len(report.Breached), report.Scanned, time.Since(start), nil)

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, ReportCacheKey, report, s.cacheTTL); err != nil {
			s.logger.Warn("sla report cache write failed", zap.Error(err))
		}
	}
	s.announceBreaches(ctx, report)
	s.logger.Info("sla sweep completed",
		zap.Int("scanned", report.Scanned),
		zap.Int("at_risk", len(report.AtRisk)),
		zap.Int("breached", len(report.Breached)))
	return report, nil
}

func (s *SLAService) announceBreaches(ctx context.Context, report *slaclock.Report) {
	s.mu.Lock()
	current := make(map[string]struct{}, len(report.Breached))
	var fresh []slaclock.Evaluation
	for _, eval := range report.Breached {
		current[eval.RequestID] = struct{}{}
		if _, seen := s.breached[eval.RequestID]; !seen {
			fresh = append(fresh, eval)
		}
	}
	s.breached = current
	s.mu.Unlock()

	if s.dispatcher == nil {
		return
	}
	rec := recorder{dispatcher: s.dispatcher, logger: s.logger}
	for _, eval := range fresh {
		rec.publish(ctx, events.Event{
			ID:        eval.RequestID + ":" + report.GeneratedAt.Format(time.RFC3339),
			Type:      events.EventSLABreached,
			RequestID: eval.RequestID,
			Actor:     domain.SystemActor("sla-sweeper"),
			Timestamp: report.GeneratedAt,
			Payload: events.SLABreachedPayload{
				PolicyID:    eval.PolicyID,
				AgeHours:    eval.AgeHours,
				BreachHours: eval.BreachHours,
			},
		})
	}
}
