// Package policy holds the registry loaded at process start: SLA targets per
// category and priority, the skill taxonomy, sensitive locations and triage
// rules.
//
// Defaults cover every priority. A YAML file, when given, is decoded on top of
// the defaults so it only needs to list what it changes.
package policy

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/civic-requests/internal/domain"
	"github.com/spec-kit/civic-requests/internal/geo"
)

// DefaultAtRiskRatio is the fraction of the target after which a request is at risk.
const DefaultAtRiskRatio = 0.8

// Entry is one SLA row.
type Entry struct {
	TargetHours float64 `yaml:"target_hours"`
	BreachHours float64 `yaml:"breach_hours"`
	AtRiskRatio float64 `yaml:"at_risk_ratio,omitempty"`
}

// RuleKind selects how a triage rule changes priority.
type RuleKind string

const (
	// RuleStep raises the priority by Steps severity levels.
	RuleStep RuleKind = "step"
	// RuleFloor raises the priority to at least Floor.
	RuleFloor RuleKind = "floor"
)

// Rule is an escalation rule applied to high-impact requests.
type Rule struct {
	Name          string            `yaml:"name"`
	Kind          RuleKind          `yaml:"kind"`
	Steps         int               `yaml:"steps,omitempty"`
	Floor         domain.Priority   `yaml:"floor,omitempty"`
	Categories    []domain.Category `yaml:"categories,omitempty"`
	LocationTypes []string          `yaml:"location_types,omitempty"`
	Reason        string            `yaml:"reason"`
}

// AppliesTo reports whether the rule is restricted to categories that include c.
func (r Rule) AppliesTo(c domain.Category) bool {
	if len(r.Categories) == 0 {
		return true
	}
	for _, candidate := range r.Categories {
		if candidate == c {
			return true
		}
	}
	return false
}

// MatchesLocation reports whether a sensitive location type triggers the rule.
func (r Rule) MatchesLocation(locationType string) bool {
	if len(r.LocationTypes) == 0 {
		return true
	}
	for _, candidate := range r.LocationTypes {
		if strings.EqualFold(candidate, locationType) {
			return true
		}
	}
	return false
}

// TriageConfig configures the triage engine.
type TriageConfig struct {
	RadiusKm float64 `yaml:"radius_km"`
	Rules    []Rule  `yaml:"rules"`
}

// Registry is the read-only policy set used at request time.
type Registry struct {
	AtRiskRatio float64                                       `yaml:"at_risk_ratio"`
	Priorities  map[domain.Priority]Entry                     `yaml:"priorities"`
	Categories  map[domain.Category]map[domain.Priority]Entry `yaml:"categories"`
	Skills      map[domain.Category][]string                  `yaml:"skills"`
	Sensitive   []geo.SensitiveLocation                       `yaml:"sensitive_locations"`
	Triage      TriageConfig                                  `yaml:"triage"`
}

// Default returns the built-in registry.
func Default() *Registry {
	return &Registry{
		AtRiskRatio: DefaultAtRiskRatio,
		Priorities: map[domain.Priority]Entry{
			domain.PriorityCritical: {TargetHours: 24, BreachHours: 36},
			domain.PriorityHigh:     {TargetHours: 48, BreachHours: 72},
			domain.PriorityMedium:   {TargetHours: 96, BreachHours: 120},
			domain.PriorityLow:      {TargetHours: 168, BreachHours: 240},
		},
		Categories: map[domain.Category]map[domain.Priority]Entry{},
		Skills: map[domain.Category][]string{
			domain.CategoryPothole:   {"roads", "pothole"},
			domain.CategoryWaterLeak: {"water", "plumbing"},
			domain.CategoryTrash:     {"sanitation"},
			domain.CategoryLighting:  {"electrical", "lighting"},
			domain.CategorySewage:    {"sewage", "plumbing"},
			domain.CategorySignage:   {"signage", "roads"},
			domain.CategoryOther:     {"general"},
		},
		Sensitive: []geo.SensitiveLocation{
			{Name: "Hadassah Hospital", Type: "hospital", Lon: 35.2137, Lat: 31.7683},
			{Name: "Shaare Zedek Medical Center", Type: "hospital", Lon: 35.1936, Lat: 31.7872},
			{Name: "Hebrew University", Type: "school", Lon: 35.2433, Lat: 31.7890},
		},
		Triage: TriageConfig{
			RadiusKm: 0.5,
			Rules: []Rule{
				{
					Name:       "utility-near-sensitive",
					Kind:       RuleStep,
					Steps:      1,
					Categories: []domain.Category{domain.CategoryWaterLeak, domain.CategorySewage},
					Reason:     "utility failure near sensitive location",
				},
				{
					Name:          "hospital-floor",
					Kind:          RuleFloor,
					Floor:         domain.PriorityMedium,
					LocationTypes: []string{"hospital"},
					Reason:        "request near hospital",
				},
			},
		},
	}
}

// LoadFile decodes path on top of Default and validates the result.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of Default and validates the result.
func Parse(data []byte) (*Registry, error) {
	reg := Default()
	if err := yaml.Unmarshal(data, reg); err != nil {
		return nil, fmt.Errorf("decode policy: %w", err)
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return reg, nil
}

// Validate checks the registry for errors.
func (r *Registry) Validate() error {
	var errs []error

	if r.AtRiskRatio <= 0 || r.AtRiskRatio > 1 {
		errs = append(errs, fmt.Errorf("at_risk_ratio must be in (0, 1], got %v", r.AtRiskRatio))
	}
	for _, p := range domain.AllPriorities {
		entry, ok := r.Priorities[p]
		if !ok {
			errs = append(errs, fmt.Errorf("priorities.%s is required", p))
			continue
		}
		if err := validateEntry(entry); err != nil {
			errs = append(errs, fmt.Errorf("priorities.%s: %w", p, err))
		}
	}
	for p := range r.Priorities {
		if !p.Valid() {
			errs = append(errs, fmt.Errorf("unknown priority %q", p))
		}
	}
	for c, rows := range r.Categories {
		if !c.Valid() {
			errs = append(errs, fmt.Errorf("unknown category %q", c))
		}
		for p, entry := range rows {
			if !p.Valid() {
				errs = append(errs, fmt.Errorf("categories.%s: unknown priority %q", c, p))
				continue
			}
			if err := validateEntry(entry); err != nil {
				errs = append(errs, fmt.Errorf("categories.%s.%s: %w", c, p, err))
			}
		}
	}
	for c := range r.Skills {
		if !c.Valid() {
			errs = append(errs, fmt.Errorf("skills: unknown category %q", c))
		}
	}
	for i, loc := range r.Sensitive {
		if strings.TrimSpace(loc.Name) == "" {
			errs = append(errs, fmt.Errorf("sensitive_locations[%d].name is required", i))
		}
		if err := geo.ValidatePoint(geo.Point{Lon: loc.Lon, Lat: loc.Lat}); err != nil {
			errs = append(errs, fmt.Errorf("sensitive_locations[%d]: %w", i, err))
		}
	}
	if r.Triage.RadiusKm <= 0 {
		errs = append(errs, errors.New("triage.radius_km must be positive"))
	}
	for i, rule := range r.Triage.Rules {
		switch rule.Kind {
		case RuleStep:
			if rule.Steps <= 0 {
				errs = append(errs, fmt.Errorf("triage.rules[%d]: steps must be positive", i))
			}
		case RuleFloor:
			if !rule.Floor.Valid() {
				errs = append(errs, fmt.Errorf("triage.rules[%d]: invalid floor %q", i, rule.Floor))
			}
		default:
			errs = append(errs, fmt.Errorf("triage.rules[%d]: unknown kind %q", i, rule.Kind))
		}
		for _, c := range rule.Categories {
			if !c.Valid() {
				errs = append(errs, fmt.Errorf("triage.rules[%d]: unknown category %q", i, c))
			}
		}
	}

	return errors.Join(errs...)
}

func validateEntry(e Entry) error {
	if e.TargetHours <= 0 {
		return errors.New("target_hours must be positive")
	}
	if e.BreachHours < e.TargetHours {
		return errors.New("breach_hours must not be below target_hours")
	}
	if e.AtRiskRatio < 0 || e.AtRiskRatio > 1 {
		return errors.New("at_risk_ratio must be in [0, 1]")
	}
	return nil
}

// Lookup returns the SLA snapshot for a category and priority. Category rows
// override the priority defaults.
func (r *Registry) Lookup(category domain.Category, priority domain.Priority) (domain.SLASnapshot, error) {
	if !priority.Valid() {
		return domain.SLASnapshot{}, fmt.Errorf("unknown priority %q", priority)
	}
	id := "SLA-" + strings.ToUpper(string(priority))
	entry, ok := r.Categories[category][priority]
	if ok {
		id = "SLA-" + strings.ToUpper(string(category)) + "-" + strings.ToUpper(string(priority))
	} else if entry, ok = r.Priorities[priority]; !ok {
		return domain.SLASnapshot{}, fmt.Errorf("no SLA policy for %s/%s", category, priority)
	}
	ratio := entry.AtRiskRatio
	if ratio == 0 {
		ratio = r.AtRiskRatio
	}
	return domain.SLASnapshot{
		PolicyID:    id,
		TargetHours: entry.TargetHours,
		BreachHours: entry.BreachHours,
		AtRiskRatio: ratio,
	}, nil
}

// SkillsFor returns the skill tags that can serve category. Nil means any agent qualifies.
func (r *Registry) SkillsFor(category domain.Category) []string {
	return r.Skills[category]
}
