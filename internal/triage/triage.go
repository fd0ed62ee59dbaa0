// Package triage finalizes a new request's priority from its category and the
// sensitive locations around it.
package triage

import (
	"fmt"
	"strings"

	"github.com/spec-kit/civic-requests/internal/domain"
	"github.com/spec-kit/civic-requests/internal/geo"
	"github.com/spec-kit/civic-requests/internal/policy"
	apperrors "github.com/spec-kit/civic-requests/pkg/util/errorutil"
)

// Result is the outcome of triaging one request.
type Result struct {
	FinalPriority domain.Priority
	Escalated     bool
	Reason        string
	HighImpact    bool
	Nearby        []domain.SensitiveHit
}

// Metadata converts the result into the record stored on the request.
func (r Result) Metadata(declared domain.Priority) domain.TriageMetadata {
	return domain.TriageMetadata{
		OriginalPriority:  declared,
		PriorityEscalated: r.Escalated,
		EscalationReason:  r.Reason,
		HighImpactFlag:    r.HighImpact,
		NearbySensitive:   r.Nearby,
	}
}

// Engine applies the configured escalation rules. It has no side effects.
type Engine struct {
	index    *geo.Index
	registry *policy.Registry
}

// NewEngine wires the engine to a geo index and policy registry.
func NewEngine(index *geo.Index, registry *policy.Registry) *Engine {
	return &Engine{index: index, registry: registry}
}

// Triage computes the final priority for a request.
func (e *Engine) Triage(category domain.Category, declared domain.Priority, loc domain.Location) (Result, error) {
	if !category.Valid() {
		return Result{}, apperrors.NewValidationError("unknown category", map[string]any{"category": category})
	}
	if !declared.Valid() {
		return Result{}, apperrors.NewValidationError("unknown priority", map[string]any{"priority": declared})
	}
	point := geo.PointOf(loc)
	if err := geo.ValidatePoint(point); err != nil {
		return Result{}, apperrors.NewValidationError(err.Error(), map[string]any{"location": loc})
	}

	nearby := e.index.Nearby(point, e.registry.Triage.RadiusKm)
	result := Result{
		FinalPriority: declared,
		HighImpact:    len(nearby) > 0,
		Nearby:        nearby,
	}
	if !result.HighImpact {
		return result, nil
	}

	var reasons []string
	for _, rule := range e.registry.Triage.Rules {
		if !rule.AppliesTo(category) {
			continue
		}
		hit, ok := firstMatch(rule, nearby)
		if !ok {
			continue
		}
		before := result.FinalPriority
		after := before
		switch rule.Kind {
		case policy.RuleStep:
			after = before.Raise(rule.Steps)
		case policy.RuleFloor:
			after = before.AtLeast(rule.Floor)
		}
		if after == before {
			continue
		}
		result.FinalPriority = after
		reasons = append(reasons, fmt.Sprintf("%s: %s within %.2f km (%s -> %s)",
			rule.Reason, hit.Name, hit.DistanceKm, before, after))
	}

	result.Escalated = result.FinalPriority != declared
	result.Reason = strings.Join(reasons, "; ")
	return result, nil
}

// firstMatch returns the nearest hit whose type the rule accepts.
func firstMatch(rule policy.Rule, hits []domain.SensitiveHit) (domain.SensitiveHit, bool) {
	for _, hit := range hits {
		if rule.MatchesLocation(hit.Type) {
			return hit, true
		}
	}
	return domain.SensitiveHit{}, false
}
