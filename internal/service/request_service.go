package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/civic-requests/internal/domain"
	"github.com/spec-kit/civic-requests/internal/events"
	"github.com/spec-kit/civic-requests/internal/geo"
	"github.com/spec-kit/civic-requests/internal/keylock"
	"github.com/spec-kit/civic-requests/internal/observability"
	"github.com/spec-kit/civic-requests/internal/policy"
	"github.com/spec-kit/civic-requests/internal/repository"
	"github.com/spec-kit/civic-requests/internal/triage"
	"github.com/spec-kit/civic-requests/internal/workflow"
	apperrors "github.com/spec-kit/civic-requests/pkg/util/errorutil"
)

// RequestService coordinates the request lifecycle.
type RequestService struct {
	requests  repository.RequestRepository
	citizens  repository.CitizenRepository
	comments  repository.RequestCommentRepository
	registry  *policy.Registry
	index     *geo.Index
	triage    *triage.Engine
	locks     *keylock.Locker
	workloads *workloadLedger
	recorder  recorder
	metrics   *observability.Metrics
	logger    *zap.Logger
	retry     RetryPolicy
	now       func() time.Time
}

// RequestDependencies bundles collaborators for the request service.
type RequestDependencies struct {
	RequestRepo repository.RequestRepository
	AgentRepo   repository.AgentRepository
	CitizenRepo repository.CitizenRepository
	HistoryRepo repository.RequestEventRepository
	CommentRepo repository.RequestCommentRepository
	Registry    *policy.Registry
	Index       *geo.Index
	Locks       *keylock.Locker
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
	Logger      *zap.Logger
	Retry       *RetryPolicy
	Clock       func() time.Time
}

// CreateRequestInput is a citizen submission. A nil Location means the
// submission omitted it.
type CreateRequestInput struct {
	CitizenID   string
	Category    domain.Category
	SubCategory string
	Description string
	Priority    domain.Priority
	Location    *domain.Location
	Evidence    []string
}

// RequestListFilter narrows request listings.
type RequestListFilter struct {
	Statuses    []domain.RequestStatus
	Categories  []domain.Category
	Priorities  []domain.Priority
	ZoneID      *string
	AgentID     *string
	CitizenID   *string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// NewRequestService constructs the service.
func NewRequestService(deps RequestDependencies) *RequestService {
	retry := DefaultRetryPolicy
	if deps.Retry != nil {
		retry = *deps.Retry
	}
	locks := deps.Locks
	if locks == nil {
		locks = keylock.New()
	}
	logger := loggerOrNop(deps.Logger)
	now := clockOrNow(deps.Clock)
	return &RequestService{
		requests: deps.RequestRepo,
		citizens: deps.CitizenRepo,
		comments: deps.CommentRepo,
		registry: deps.Registry,
		index:    deps.Index,
		triage:   triage.NewEngine(deps.Index, deps.Registry),
		locks:    locks,
		workloads: &workloadLedger{
			agents:  deps.AgentRepo,
			locks:   locks,
			metrics: deps.Metrics,
			logger:  logger,
			retry:   retry,
			now:     now,
		},
		recorder: recorder{history: deps.HistoryRepo, dispatcher: deps.Dispatcher, logger: logger},
		metrics:  deps.Metrics,
		logger:   logger,
		retry:    retry,
		now:      now,
	}
}

// Create validates a submission, triages it and stores it with status new.
func (s *RequestService) Create(ctx context.Context, input CreateRequestInput) (*domain.ServiceRequest, error) {
	if !input.Category.Valid() {
		return nil, apperrors.NewValidationError("unknown category", map[string]any{"category": input.Category})
	}
	if input.Priority == "" {
		input.Priority = domain.PriorityMedium
	}
	if !input.Priority.Valid() {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": input.Priority})
	}
	if input.Location == nil {
		return nil, apperrors.NewValidationError("location required", nil)
	}
	location := *input.Location
	point := geo.PointOf(location)
	if err := geo.ValidatePoint(point); err != nil {
		return nil, apperrors.NewValidationError(err.Error(), map[string]any{"location": location})
	}
	citizenID := strings.TrimSpace(input.CitizenID)
	if citizenID == "" {
		citizenID = domain.AnonymousCitizen
	}
	if citizenID != domain.AnonymousCitizen && s.citizens != nil {
		if _, err := s.citizens.GetByID(ctx, citizenID); err != nil {
			return nil, notFound(err, "citizen", "citizen_id", citizenID)
		}
	}

	result, err := s.triage.Triage(input.Category, input.Priority, location)
	if err != nil {
		return nil, err
	}
	snapshot, err := s.registry.Lookup(input.Category, result.FinalPriority)
	if err != nil {
		return nil, err
	}

	now := s.now()
	seq, err := s.requests.NextSequence(ctx, now.Year())
	if err != nil {
		return nil, err
	}
	req := &domain.ServiceRequest{
		ID:          fmt.Sprintf("CST-%d-%04d", now.Year(), seq),
		CitizenID:   citizenID,
		Category:    input.Category,
		SubCategory: strings.TrimSpace(input.SubCategory),
		Description: strings.TrimSpace(input.Description),
		Priority:    result.FinalPriority,
		Status:      domain.StatusNew,
		Location:    location,
		ZoneID:      s.index.PrimaryZone(point),
		Evidence:    append([]string(nil), input.Evidence...),
		Timestamps:  map[string]time.Time{domain.TimestampCreated: now},
		Triage:      result.Metadata(input.Priority),
		SLA:         snapshot,
		UpdatedAt:   now,
	}
	if err := s.requests.Put(ctx, req, 0); err != nil {
		return nil, err
	}

	actor := citizenActor(citizenID)
	s.recorder.record(ctx, req.ID, events.EventRequestCreated, domain.EventTypeCreated, actor, now,
		map[string]any{
			"category":          req.Category,
			"priority":          req.Priority,
			"original_priority": input.Priority,
			"zone_id":           req.ZoneID,
			"policy_id":         req.SLA.PolicyID,
		},
		events.RequestCreatedPayload{
			Category:   req.Category,
			Priority:   req.Priority,
			ZoneID:     req.ZoneID,
			Escalated:  result.Escalated,
			HighImpact: result.HighImpact,
		})
	if result.Escalated {
		s.recorder.record(ctx, req.ID, events.EventRequestEscalated, domain.EventTypeEscalated,
			domain.SystemActor("triage"), now,
			map[string]any{"reason": result.Reason, "from": input.Priority, "to": result.FinalPriority},
			events.EscalatedPayload{Reason: result.Reason})
	}
	s.logger.Info("request created",
		zap.String("request_id", req.ID),
		zap.String("category", string(req.Category)),
		zap.String("priority", string(req.Priority)),
		zap.Bool("escalated", result.Escalated))
	return req, nil
}

// Get returns a request by id.
func (s *RequestService) Get(ctx context.Context, id string) (*domain.ServiceRequest, error) {
	req, err := s.requests.Get(ctx, id)
	if err != nil {
		return nil, notFound(err, "request", "request_id", id)
	}
	return req, nil
}

// List returns a page of requests, newest first, and the total match count.
func (s *RequestService) List(ctx context.Context, filter RequestListFilter) ([]*domain.ServiceRequest, int, error) {
	for _, status := range filter.Statuses {
		if !status.Valid() {
			return nil, 0, apperrors.NewValidationError("unknown status", map[string]any{"status": status})
		}
	}
	for _, category := range filter.Categories {
		if !category.Valid() {
			return nil, 0, apperrors.NewValidationError("unknown category", map[string]any{"category": category})
		}
	}
	for _, priority := range filter.Priorities {
		if !priority.Valid() {
			return nil, 0, apperrors.NewValidationError("unknown priority", map[string]any{"priority": priority})
		}
	}
	repoFilter := repository.RequestFilter{
		Statuses:    filter.Statuses,
		Categories:  filter.Categories,
		Priorities:  filter.Priorities,
		ZoneID:      filter.ZoneID,
		AgentID:     filter.AgentID,
		CitizenID:   filter.CitizenID,
		CreatedFrom: filter.CreatedFrom,
		CreatedTo:   filter.CreatedTo,
		Limit:       filter.Limit,
		Offset:      filter.Offset,
	}
	items, err := s.requests.Query(ctx, repoFilter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.requests.Count(ctx, repoFilter)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// History returns the audit trail of a request in order.
func (s *RequestService) History(ctx context.Context, id string) ([]domain.RequestEvent, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if s.recorder.history == nil {
		return []domain.RequestEvent{}, nil
	}
	return s.recorder.history.ListByRequest(ctx, id)
}

// errUnchanged lets a mutation skip the write.
var errUnchanged = errors.New("request unchanged")

// AddComment appends a comment to the request thread. Comments do not change
// the request itself, so any status accepts them.
func (s *RequestService) AddComment(ctx context.Context, id, text string, actor domain.Actor) (*domain.RequestComment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.NewValidationError("comment text required", nil)
	}
	if n := utf8.RuneCountInString(text); n > domain.MaxCommentLength {
		return nil, apperrors.NewValidationError("comment too long",
			map[string]any{"length": n, "max": domain.MaxCommentLength})
	}
	if s.comments == nil {
		return nil, apperrors.NewInternalError(errors.New("comment store not configured"))
	}

	unlock := s.locks.Lock(keylock.RequestKey(id))
	defer unlock()

	if _, err := s.requests.Get(ctx, id); err != nil {
		return nil, notFound(err, "request", "request_id", id)
	}
	comment := &domain.RequestComment{
		ID:        uuid.NewString(),
		RequestID: id,
		Author:    actor,
		Text:      text,
		CreatedAt: s.now(),
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, err
	}
	s.recorder.record(ctx, id, events.EventRequestCommented, domain.EventTypeCommented, actor, comment.CreatedAt,
		map[string]any{"comment_id": comment.ID},
		events.CommentedPayload{CommentID: comment.ID})
	return comment, nil
}

// Comments returns the request's comment thread, oldest first.
func (s *RequestService) Comments(ctx context.Context, id string) ([]domain.RequestComment, error) {
	if _, err := s.requests.Get(ctx, id); err != nil {
		return nil, notFound(err, "request", "request_id", id)
	}
	if s.comments == nil {
		return []domain.RequestComment{}, nil
	}
	return s.comments.ListByRequest(ctx, id)
}

// mutate loads the request, applies fn and stores the result with the loaded
// version, retrying on version conflicts. Callers hold the request lock so
// that post-commit work (audit, workload release) stays in the same scope.
func (s *RequestService) mutate(ctx context.Context, op, id string, fn func(req *domain.ServiceRequest) error) (*domain.ServiceRequest, error) {
	var out *domain.ServiceRequest
	err := withRetry(ctx, s.retry, s.metrics, op, func() error {
		req, err := s.requests.Get(ctx, id)
		if err != nil {
			return notFound(err, "request", "request_id", id)
		}
		version := req.Version
		if err := fn(req); err != nil {
			if errors.Is(err, errUnchanged) {
				out = req
				return nil
			}
			return err
		}
		if err := s.requests.Put(ctx, req, version); err != nil {
			return err
		}
		out = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Transition moves a request along the lifecycle table.
func (s *RequestService) Transition(ctx context.Context, id string, target domain.RequestStatus, actor domain.Actor) (*domain.ServiceRequest, error) {
	unlock := s.locks.Lock(keylock.RequestKey(id))
	defer unlock()

	var change workflow.StatusChange
	req, err := s.mutate(ctx, "transition", id, func(req *domain.ServiceRequest) error {
		var err error
		change, err = workflow.ApplyTransition(req, target, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	s.afterStatusChanges(ctx, req, []workflow.StatusChange{change}, actor)
	return req, nil
}

// RecordMilestone appends a field-work milestone and applies the status
// changes it implies.
func (s *RequestService) RecordMilestone(ctx context.Context, id string, input workflow.MilestoneInput, actor domain.Actor) (*domain.ServiceRequest, error) {
	unlock := s.locks.Lock(keylock.RequestKey(id))
	defer unlock()

	var (
		milestone domain.Milestone
		changes   []workflow.StatusChange
	)
	req, err := s.mutate(ctx, "milestone", id, func(req *domain.ServiceRequest) error {
		var err error
		milestone, changes, err = workflow.AppendMilestone(req, input, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	s.recorder.record(ctx, req.ID, events.EventRequestMilestone, domain.EventTypeMilestone, actor, milestone.Timestamp,
		map[string]any{"milestone_id": milestone.ID, "type": milestone.Type, "notes": milestone.Notes},
		events.MilestonePayload{MilestoneID: milestone.ID, Type: milestone.Type})
	s.afterStatusChanges(ctx, req, changes, actor)
	return req, nil
}

// Resolve records the resolved milestone on an assigned or in-progress request.
func (s *RequestService) Resolve(ctx context.Context, id, notes string, evidence []string, actor domain.Actor) (*domain.ServiceRequest, error) {
	return s.RecordMilestone(ctx, id, workflow.MilestoneInput{
		Type:     domain.MilestoneResolved,
		Notes:    notes,
		Evidence: evidence,
	}, actor)
}

// SubmitRating stores citizen feedback once on a resolved or closed request.
func (s *RequestService) SubmitRating(ctx context.Context, id string, input workflow.RatingInput, actor domain.Actor) (*domain.ServiceRequest, error) {
	unlock := s.locks.Lock(keylock.RequestKey(id))
	defer unlock()

	req, err := s.mutate(ctx, "rating", id, func(req *domain.ServiceRequest) error {
		return workflow.ApplyRating(req, input, s.now())
	})
	if err != nil {
		return nil, err
	}
	s.recorder.record(ctx, req.ID, events.EventRequestRated, domain.EventTypeRated, actor, req.Rating.CreatedAt,
		map[string]any{"stars": req.Rating.Stars, "dispute": req.Rating.Dispute},
		events.RatedPayload{Stars: req.Rating.Stars, Dispute: req.Rating.Dispute})
	return req, nil
}

// OverridePriority changes the priority of an open request and recaptures
// its SLA snapshot.
func (s *RequestService) OverridePriority(ctx context.Context, id string, priority domain.Priority, reason string, actor domain.Actor) (*domain.ServiceRequest, error) {
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": priority})
	}
	unlock := s.locks.Lock(keylock.RequestKey(id))
	defer unlock()

	var old domain.Priority
	changed := false
	req, err := s.mutate(ctx, "priority", id, func(req *domain.ServiceRequest) error {
		if req.Status.Terminal() {
			return apperrors.NewConflict("priority can only change on open requests",
				map[string]any{"request_id": req.ID, "status": req.Status})
		}
		old = req.Priority
		if old == priority {
			return errUnchanged
		}
		snapshot, err := s.registry.Lookup(req.Category, priority)
		if err != nil {
			return err
		}
		req.Priority = priority
		req.SLA = snapshot
		req.UpdatedAt = s.now()
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return req, nil
	}
	s.recorder.record(ctx, req.ID, events.EventRequestPriorityChanged, domain.EventTypePriorityChanged, actor, req.UpdatedAt,
		map[string]any{"from": old, "to": priority, "reason": strings.TrimSpace(reason), "policy_id": req.SLA.PolicyID},
		events.PriorityChangedPayload{OldPriority: old, NewPriority: priority})
	return req, nil
}

// Escalate records a manual escalation. The request itself is not changed.
func (s *RequestService) Escalate(ctx context.Context, id, reason string, actor domain.Actor) (*domain.ServiceRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.NewValidationError("escalation reason is required", nil)
	}
	unlock := s.locks.Lock(keylock.RequestKey(id))
	defer unlock()

	req, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status == domain.StatusClosed {
		return nil, apperrors.NewConflict("closed requests cannot be escalated", map[string]any{"request_id": id})
	}
	s.recorder.record(ctx, req.ID, events.EventRequestEscalated, domain.EventTypeEscalated, actor, s.now(),
		map[string]any{"reason": reason, "priority": req.Priority},
		events.EscalatedPayload{Reason: reason})
	s.logger.Info("request escalated", zap.String("request_id", req.ID), zap.String("reason", reason))
	return req, nil
}

// afterStatusChanges records status events and releases the agent once the
// request leaves the active set. The request write has already committed, so
// a failed release is logged and left for reconciliation.
func (s *RequestService) afterStatusChanges(ctx context.Context, req *domain.ServiceRequest, changes []workflow.StatusChange, actor domain.Actor) {
	for _, change := range changes {
		s.metrics.RecordTransition(string(change.To))
		s.recorder.record(ctx, req.ID, events.EventRequestStatusChanged, domain.EventTypeStatusChanged, actor, change.At,
			map[string]any{"from": change.From, "to": change.To},
			events.StatusChangedPayload{OldStatus: change.From, NewStatus: change.To})
		if change.From.Active() && !change.To.Active() && req.AssignedAgentID != nil {
			if err := s.workloads.adjust(ctx, *req.AssignedAgentID, -1); err != nil {
				s.logger.Error("workload release failed",
					zap.String("request_id", req.ID),
					zap.String("agent_id", *req.AssignedAgentID),
					zap.Error(err))
				continue
			}
			s.metrics.RecordAssignment("released")
		}
	}
}

func citizenActor(citizenID string) domain.Actor {
	return domain.Actor{Type: domain.SubjectTypeCitizen, ID: citizenID}
}
