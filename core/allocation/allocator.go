package allocation

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
)

// ErrInvalidArgument is returned for malformed budget, cap, divisor or entity
// input. No actions are allocated when it is returned.
var ErrInvalidArgument = errors.New("invalid argument")

// Entity is a ranked record competing for actions.
type Entity struct {
	ID            string  `json:"id"`
	PriorityScore float64 `json:"priority_score"`
}

// Assignment is the outcome for one entity, in processing order.
type Assignment struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
	Rank  int     `json:"rank"`
	Units int     `json:"units"`
}

// Plan is the result of an allocation pass.
type Plan struct {
	// Assignments are sorted by descending score, ties in input order.
	Assignments []Assignment `json:"assignments"`
	Allocated   int          `json:"allocated"`
	Remaining   int          `json:"remaining"`
	Recipients  int          `json:"recipients"`
}

// Map returns the id to allocation mapping, zeros included.
func (p Plan) Map() map[string]int {
	out := make(map[string]int, len(p.Assignments))
	for _, a := range p.Assignments {
		out[a.ID] = a.Units
	}
	return out
}

// Allocator applies a Config to ranked entities.
type Allocator struct {
	cfg Config
}

// New returns an Allocator after validating cfg.
func New(cfg Config) (*Allocator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Allocator{cfg: cfg}, nil
}

// Config returns the policy in use.
func (a *Allocator) Config() Config { return a.cfg }

// Allocate runs the greedy pass over entities. The input slice is not
// modified.
func (a *Allocator) Allocate(entities []Entity) (Plan, error) {
	if err := a.cfg.Validate(); err != nil {
		return Plan{}, err
	}
	if err := checkEntities(entities); err != nil {
		return Plan{}, err
	}

	order := slices.Clone(entities)
	slices.SortStableFunc(order, func(x, y Entity) int {
		return cmp.Compare(y.PriorityScore, x.PriorityScore)
	})

	plan := Plan{Assignments: make([]Assignment, len(order))}
	remaining := a.cfg.TotalBudget
	for i, e := range order {
		units := 0
		if remaining > 0 {
			units = min(a.request(e.PriorityScore), a.cfg.PerEntityCap, remaining)
			remaining -= units
		}
		if units > 0 {
			plan.Recipients++
		}
		plan.Allocated += units
		plan.Assignments[i] = Assignment{ID: e.ID, Score: e.PriorityScore, Rank: i + 1, Units: units}
	}
	plan.Remaining = remaining
	return plan, nil
}

// request is the raw number of actions a score asks for, never negative.
func (a *Allocator) request(score float64) int {
	r := math.Ceil(score / a.cfg.RequestDivisor)
	if r <= 0 {
		return 0
	}
	if r > float64(a.cfg.PerEntityCap) {
		return a.cfg.PerEntityCap
	}
	return int(r)
}

func checkEntities(entities []Entity) error {
	seen := make(map[string]struct{}, len(entities))
	for i, e := range entities {
		if math.IsNaN(e.PriorityScore) || math.IsInf(e.PriorityScore, 0) {
			return fmt.Errorf("%w: entity %q at index %d has non-finite score", ErrInvalidArgument, e.ID, i)
		}
		if _, dup := seen[e.ID]; dup {
			return fmt.Errorf("%w: duplicate entity id %q", ErrInvalidArgument, e.ID)
		}
		seen[e.ID] = struct{}{}
	}
	return nil
}

// Allocate distributes totalBudget actions across entities with the default
// request divisor and returns the id to allocation mapping.
func Allocate(entities []Entity, totalBudget, perEntityCap int) (map[string]int, error) {
	alloc, err := New(Config{TotalBudget: totalBudget, PerEntityCap: perEntityCap, RequestDivisor: DefaultRequestDivisor})
	if err != nil {
		return nil, err
	}
	plan, err := alloc.Allocate(entities)
	if err != nil {
		return nil, err
	}
	return plan.Map(), nil
}
