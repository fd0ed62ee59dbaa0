// Package slaclock classifies requests against their SLA snapshot.
package slaclock

import (
	"context"
	"sort"
	"time"

	"github.com/spec-kit/civic-requests/internal/domain"
)

// DefaultAtRiskRatio applies when a snapshot carries no ratio.
const DefaultAtRiskRatio = 0.8

// State is the SLA classification of a request.
type State string

const (
	StateOnTime   State = "on_time"
	StateAtRisk   State = "at_risk"
	StateBreached State = "breached"
)

// Evaluation is the SLA view of one request at an instant.
type Evaluation struct {
	RequestID         string               `json:"request_id"`
	Status            domain.RequestStatus `json:"status"`
	Priority          domain.Priority      `json:"priority"`
	Category          domain.Category      `json:"category"`
	ZoneID            string               `json:"zone_id,omitempty"`
	PolicyID          string               `json:"policy_id"`
	AgeHours          float64              `json:"age_hours"`
	TargetHours       float64              `json:"target_hours"`
	BreachHours       float64              `json:"breach_hours"`
	TimeToBreachHours float64              `json:"time_to_breach_hours"`
	ResolutionHours   *float64             `json:"resolution_hours,omitempty"`
	State             State                `json:"sla_state"`
}

// Evaluate computes the SLA state of req under snap at now. It does not
// mutate its inputs.
func Evaluate(req *domain.ServiceRequest, snap domain.SLASnapshot, now time.Time) Evaluation {
	eval := Evaluation{
		RequestID:   req.ID,
		Status:      req.Status,
		Priority:    req.Priority,
		Category:    req.Category,
		ZoneID:      req.ZoneID,
		PolicyID:    snap.PolicyID,
		TargetHours: snap.TargetHours,
		BreachHours: snap.BreachHours,
	}
	created, ok := req.Timestamp(domain.TimestampCreated)
	if !ok {
		created = now
	}

	if req.Status.Terminal() {
		resolvedAt, ok := req.Timestamp(domain.TimestampResolved)
		if !ok {
			resolvedAt, ok = req.Timestamp(domain.TimestampClosed)
		}
		if !ok {
			resolvedAt = now
		}
		resolution := hoursBetween(created, resolvedAt)
		eval.AgeHours = resolution
		eval.ResolutionHours = &resolution
		eval.TimeToBreachHours = snap.BreachHours - resolution
		eval.State = StateOnTime
		if resolution > snap.BreachHours {
			eval.State = StateBreached
		}
		return eval
	}

	age := hoursBetween(created, now)
	ratio := snap.AtRiskRatio
	if ratio <= 0 {
		ratio = DefaultAtRiskRatio
	}
	eval.AgeHours = age
	eval.TimeToBreachHours = snap.BreachHours - age
	switch {
	case age >= snap.BreachHours:
		eval.State = StateBreached
	case age >= ratio*snap.TargetHours:
		eval.State = StateAtRisk
	default:
		eval.State = StateOnTime
	}
	return eval
}

func hoursBetween(from, to time.Time) float64 {
	return to.Sub(from).Hours()
}

// Report is the outcome of a sweep over open requests.
type Report struct {
	AtRisk      []Evaluation `json:"at_risk"`
	Breached    []Evaluation `json:"breached"`
	Scanned     int          `json:"scanned"`
	GeneratedAt time.Time    `json:"generated_at"`
}

// NewReport starts an empty report stamped at now.
func NewReport(now time.Time) *Report {
	return &Report{AtRisk: []Evaluation{}, Breached: []Evaluation{}, GeneratedAt: now}
}

// Sweep evaluates every non-terminal request in reqs into r. The context is
// checked between evaluations; on cancellation r is left untouched.
func (r *Report) Sweep(ctx context.Context, reqs []*domain.ServiceRequest) error {
	var atRisk, breached []Evaluation
	scanned := 0
	for _, req := range reqs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if req.Status.Terminal() {
			continue
		}
		scanned++
		eval := Evaluate(req, req.SLA, r.GeneratedAt)
		switch eval.State {
		case StateBreached:
			breached = append(breached, eval)
		case StateAtRisk:
			atRisk = append(atRisk, eval)
		}
	}
	r.AtRisk = append(r.AtRisk, atRisk...)
	r.Breached = append(r.Breached, breached...)
	r.Scanned += scanned
	return nil
}

// Finalize orders both lists by time to breach, most urgent first, then by id.
func (r *Report) Finalize() {
	order := func(list []Evaluation) {
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].TimeToBreachHours != list[j].TimeToBreachHours {
				return list[i].TimeToBreachHours < list[j].TimeToBreachHours
			}
			return list[i].RequestID < list[j].RequestID
		})
	}
	order(r.AtRisk)
	order(r.Breached)
}

// Sweep classifies reqs at now and returns a finalized report.
func Sweep(ctx context.Context, reqs []*domain.ServiceRequest, now time.Time) (*Report, error) {
	report := NewReport(now)
	if err := report.Sweep(ctx, reqs); err != nil {
		return nil, err
	}
	report.Finalize()
	return report, nil
}
