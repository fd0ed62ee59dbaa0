package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/civic-requests/internal/assignment"
	"github.com/spec-kit/civic-requests/internal/domain"
	"github.com/spec-kit/civic-requests/internal/events"
	"github.com/spec-kit/civic-requests/internal/geo"
	"github.com/spec-kit/civic-requests/internal/keylock"
	"github.com/spec-kit/civic-requests/internal/observability"
	"github.com/spec-kit/civic-requests/internal/policy"
	"github.com/spec-kit/civic-requests/internal/repository"
	"github.com/spec-kit/civic-requests/internal/workflow"
	apperrors "github.com/spec-kit/civic-requests/pkg/util/errorutil"
)

// AssignmentService routes requests to field agents.
type AssignmentService struct {
	requests  repository.RequestRepository
	agents    repository.AgentRepository
	selector  *assignment.Selector
	locks     *keylock.Locker
	workloads *workloadLedger
	recorder  recorder
	metrics   *observability.Metrics
	logger    *zap.Logger
	retry     RetryPolicy
	now       func() time.Time
}

// AssignmentDependencies bundles collaborators for the assignment service.
type AssignmentDependencies struct {
	RequestRepo repository.RequestRepository
	AgentRepo   repository.AgentRepository
	HistoryRepo repository.RequestEventRepository
	Registry    *policy.Registry
	Index       *geo.Index
	Locks       *keylock.Locker
	Location    *time.Location
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
	Logger      *zap.Logger
	Retry       *RetryPolicy
	Clock       func() time.Time
}

// NewAssignmentService creates the service. Locks must be shared with the
// request service so both serialise on the same request keys.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
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
	return &AssignmentService{
		requests: deps.RequestRepo,
		agents:   deps.AgentRepo,
		selector: assignment.NewSelector(deps.Index, deps.Registry, deps.Location),
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

// Candidates returns the eligible agents for a request in ranking order.
func (s *AssignmentService) Candidates(ctx context.Context, requestID string) ([]*domain.Agent, error) {
	req, err := s.requests.Get(ctx, requestID)
	if err != nil {
		return nil, notFound(err, "request", "request_id", requestID)
	}
	roster, err := s.agents.Query(ctx, repository.AgentFilter{Active: ptrBool(true)})
	if err != nil {
		return nil, err
	}
	ranked, _ := s.selector.Rank(req, roster, s.now())
	return ranked, nil
}

// AutoAssign picks the best eligible agent and assigns the request.
func (s *AssignmentService) AutoAssign(ctx context.Context, requestID string, actor domain.Actor) (*domain.ServiceRequest, error) {
	return s.assign(ctx, requestID, actor, false, func(req *domain.ServiceRequest, now time.Time) (*domain.Agent, error) {
		roster, err := s.agents.Query(ctx, repository.AgentFilter{Active: ptrBool(true)})
		if err != nil {
			return nil, err
		}
		agent, err := s.selector.Select(req, roster, now)
		if err != nil {
			s.metrics.RecordAssignment("no_match")
			return nil, err
		}
		return agent, nil
	})
}

// AssignTo assigns the request to a staff-chosen agent. Only activity and
// coverage are enforced.
func (s *AssignmentService) AssignTo(ctx context.Context, requestID, agentID string, actor domain.Actor) (*domain.ServiceRequest, error) {
	return s.assign(ctx, requestID, actor, true, func(req *domain.ServiceRequest, _ time.Time) (*domain.Agent, error) {
		agent, err := s.agents.Get(ctx, agentID)
		if err != nil {
			return nil, notFound(err, "agent", "agent_id", agentID)
		}
		if err := s.selector.CheckManual(agent, req); err != nil {
			return nil, err
		}
		return agent, nil
	})
}

type agentPicker func(req *domain.ServiceRequest, now time.Time) (*domain.Agent, error)

// assign runs the whole assignment under the request lock: pick an agent,
// take a workload slot, store the request and release the previous agent.
func (s *AssignmentService) assign(ctx context.Context, requestID string, actor domain.Actor, manual bool, pick agentPicker) (*domain.ServiceRequest, error) {
	unlock := s.locks.Lock(keylock.RequestKey(requestID))
	defer unlock()

	req, err := s.requests.Get(ctx, requestID)
	if err != nil {
		return nil, notFound(err, "request", "request_id", requestID)
	}
	if req.Status != domain.StatusTriaged && !req.Status.Active() {
		return nil, apperrors.NewInvalidTransition(string(req.Status), string(domain.StatusAssigned),
			[]string{string(domain.StatusTriaged), string(domain.StatusAssigned), string(domain.StatusInProgress)})
	}

	now := s.now()
	agent, err := pick(req, now)
	if err != nil {
		return nil, err
	}
	var previous *string
	if req.AssignedAgentID != nil {
		if *req.AssignedAgentID == agent.ID {
			return req, nil
		}
		prev := *req.AssignedAgentID
		previous = &prev
	}

	if err := s.workloads.adjust(ctx, agent.ID, 1); err != nil {
		return nil, err
	}

	var change *workflow.StatusChange
	err = withRetry(ctx, s.retry, s.metrics, "assign", func() error {
		current, err := s.requests.Get(ctx, requestID)
		if err != nil {
			return err
		}
		version := current.Version
		id := agent.ID
		current.AssignedAgentID = &id
		current.UpdatedAt = now
		change = nil
		if current.Status == domain.StatusTriaged {
			applied, err := workflow.ApplyTransition(current, domain.StatusAssigned, now)
			if err != nil {
				return err
			}
			change = &applied
		}
		if err := s.requests.Put(ctx, current, version); err != nil {
			return err
		}
		req = current
		return nil
	})
	if err != nil {
		if releaseErr := s.workloads.adjust(ctx, agent.ID, -1); releaseErr != nil {
			s.logger.Error("failed to roll back workload", zap.String("agent_id", agent.ID), zap.Error(releaseErr))
		}
		return nil, err
	}

	if previous != nil {
		if err := s.workloads.adjust(ctx, *previous, -1); err != nil {
			s.logger.Error("workload release failed",
				zap.String("request_id", req.ID),
				zap.String("agent_id", *previous),
				zap.Error(err))
		}
		s.recorder.record(ctx, req.ID, events.EventRequestUnassigned, domain.EventTypeUnassigned, actor, now,
			map[string]any{"agent_id": *previous},
			events.AssignedPayload{AgentID: *previous})
	}

	outcome := "auto"
	if manual {
		outcome = "manual"
	}
	s.metrics.RecordAssignment(outcome)
	s.recorder.record(ctx, req.ID, events.EventRequestAssigned, domain.EventTypeAssigned, actor, now,
		map[string]any{"agent_id": agent.ID, "agent_code": agent.Code, "manual": manual, "previous_agent_id": previous},
		events.AssignedPayload{AgentID: agent.ID, PreviousAgentID: previous, Manual: manual})
	if change != nil {
		s.metrics.RecordTransition(string(change.To))
		s.recorder.record(ctx, req.ID, events.EventRequestStatusChanged, domain.EventTypeStatusChanged, actor, change.At,
			map[string]any{"from": change.From, "to": change.To},
			events.StatusChangedPayload{OldStatus: change.From, NewStatus: change.To})
	}
	s.logger.Info("request assigned",
		zap.String("request_id", req.ID),
		zap.String("agent_id", agent.ID),
		zap.Bool("manual", manual))
	return req, nil
}

// Unassign returns an assigned request to triage and frees the agent's slot.
// Requests with recorded field work must be reassigned instead.
func (s *AssignmentService) Unassign(ctx context.Context, requestID, reason string, actor domain.Actor) (*domain.ServiceRequest, error) {
	unlock := s.locks.Lock(keylock.RequestKey(requestID))
	defer unlock()

	now := s.now()
	var (
		req     *domain.ServiceRequest
		agentID string
		change  workflow.StatusChange
	)
	err := withRetry(ctx, s.retry, s.metrics, "unassign", func() error {
		current, err := s.requests.Get(ctx, requestID)
		if err != nil {
			return notFound(err, "request", "request_id", requestID)
		}
		version := current.Version
		if current.AssignedAgentID != nil {
			agentID = *current.AssignedAgentID
		}
		change, err = workflow.Retriage(current, now)
		if err != nil {
			return err
		}
		if err := s.requests.Put(ctx, current, version); err != nil {
			return err
		}
		req = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.workloads.adjust(ctx, agentID, -1); err != nil {
		s.logger.Error("workload release failed",
			zap.String("request_id", req.ID),
			zap.String("agent_id", agentID),
			zap.Error(err))
	} else {
		s.metrics.RecordAssignment("released")
	}
	reason = strings.TrimSpace(reason)
	s.recorder.record(ctx, req.ID, events.EventRequestUnassigned, domain.EventTypeUnassigned, actor, now,
		map[string]any{"agent_id": agentID, "reason": reason},
		events.AssignedPayload{AgentID: agentID})
	s.metrics.RecordTransition(string(change.To))
	s.recorder.record(ctx, req.ID, events.EventRequestStatusChanged, domain.EventTypeStatusChanged, actor, change.At,
		map[string]any{"from": change.From, "to": change.To},
		events.StatusChangedPayload{OldStatus: change.From, NewStatus: change.To})
	s.logger.Info("request unassigned",
		zap.String("request_id", req.ID),
		zap.String("agent_id", agentID),
		zap.String("reason", reason))
	return req, nil
}

// workloadLedger adjusts agent workload counters under the agent lock.
type workloadLedger struct {
	agents  repository.AgentRepository
	locks   *keylock.Locker
	metrics *observability.Metrics
	logger  *zap.Logger
	retry   RetryPolicy
	now     func() time.Time
}

// adjust adds delta to the agent workload. A release below zero is clamped
// and logged as an invariant violation.
func (w *workloadLedger) adjust(ctx context.Context, agentID string, delta int) error {
	unlock := w.locks.Lock(keylock.AgentKey(agentID))
	defer unlock()

	return withRetry(ctx, w.retry, w.metrics, "workload", func() error {
		agent, err := w.agents.Get(ctx, agentID)
		if err != nil {
			return notFound(err, "agent", "agent_id", agentID)
		}
		version := agent.Version
		next := agent.CurrentWorkload + delta
		if next < 0 {
			w.logger.Error("workload would go negative; clamping at zero",
				zap.String("agent_id", agentID),
				zap.Int("workload", agent.CurrentWorkload),
				zap.Int("delta", delta))
			next = 0
		}
		agent.CurrentWorkload = next
		agent.UpdatedAt = w.now()
		return w.agents.Put(ctx, agent, version)
	})
}
