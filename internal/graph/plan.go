package graph

import (
	"encoding/json"
	"fmt"

	"github.com/fruitflybrain/neuroarch/internal/errors"
)

// Direction of a relationship hop.
type Direction string

const (
	DirOut Direction = "out"
	DirIn  Direction = "in"
)

// Reverse flips the direction.
func (d Direction) Reverse() Direction {
	if d == DirOut {
		return DirIn
	}
	return DirOut
}

// PlanKind selects how a Plan is evaluated.
type PlanKind string

const (
	// PlanSelect returns the Start nodes that pass Filter.
	PlanSelect PlanKind = "select"
	// PlanMatch returns every node that passes Filter.
	PlanMatch PlanKind = "match"
	// PlanHops follows Stages from Start and returns the union of the
	// per-depth result sets in [MinDepth, MaxDepth).
	PlanHops PlanKind = "hops"
	// PlanWalk follows Relation in Direction from Start up to MaxLevels deep,
	// including Start itself, then applies Filter.
	PlanWalk PlanKind = "walk"
	// PlanInducedEdges returns the edges whose endpoints are both in Start.
	PlanInducedEdges PlanKind = "induced_edges"
)

// DefaultWalkLevels bounds PlanWalk when MaxLevels is zero.
const DefaultWalkLevels = 10

// TypeFilter restricts node classes. Classes and InstanceOf are mutually exclusive.
type TypeFilter struct {
	// Classes requires the node's class to be exactly one of these.
	Classes []string `json:"classes,omitempty"`
	// InstanceOf requires the node's class to be this class or a subclass of it.
	InstanceOf string `json:"instance_of,omitempty"`
}

// Validate enforces the mutual exclusion.
func (t *TypeFilter) Validate() error {
	if t == nil {
		return nil
	}
	if len(t.Classes) > 0 && t.InstanceOf != "" {
		return errors.PreconditionErrorf("type filter cannot combine classes %v with instance_of %q", t.Classes, t.InstanceOf)
	}
	return nil
}

// Empty reports whether the filter restricts nothing.
func (t *TypeFilter) Empty() bool {
	return t == nil || (len(t.Classes) == 0 && t.InstanceOf == "")
}

// Filter combines a type restriction with attribute predicates.
type Filter struct {
	Types *TypeFilter `json:"types,omitempty"`
	Where Predicates  `json:"where,omitempty"`
}

// Empty reports whether the filter lets everything through.
func (f Filter) Empty() bool {
	return f.Types.Empty() && len(f.Where) == 0
}

// Validate checks the type filter and predicates.
func (f Filter) Validate() error {
	if err := f.Types.Validate(); err != nil {
		return err
	}
	return f.Where.Validate()
}

// Classes is shorthand for a filter on exact classes.
func Classes(classes ...string) Filter {
	if len(classes) == 0 {
		return Filter{}
	}
	return Filter{Types: &TypeFilter{Classes: classes}}
}

// InstanceOf is shorthand for a filter on a class hierarchy.
func InstanceOf(class string) Filter {
	return Filter{Types: &TypeFilter{InstanceOf: class}}
}

// Stage is one hop of a staged traversal.
type Stage struct {
	Relation  string    `json:"relation"`
	Direction Direction `json:"direction"`
	Filter    Filter    `json:"filter,omitempty"`
}

// Plan is the dialect-neutral description of a read query.
type Plan struct {
	Kind      PlanKind   `json:"kind"`
	Start     []EntityID `json:"start,omitempty"`
	Stages    []Stage    `json:"stages,omitempty"`
	MinDepth  int        `json:"min_depth,omitempty"`
	MaxDepth  int        `json:"max_depth,omitempty"`
	Relation  string     `json:"relation,omitempty"`
	Direction Direction  `json:"direction,omitempty"`
	MaxLevels int        `json:"max_levels,omitempty"`
	EdgeTypes []string   `json:"edge_types,omitempty"`
	Filter    Filter     `json:"filter,omitempty"`
}

// Validate checks that the plan is internally consistent.
func (p Plan) Validate() error {
	if err := p.Filter.Validate(); err != nil {
		return err
	}
	switch p.Kind {
	case PlanSelect, PlanMatch, PlanInducedEdges:
		return nil
	case PlanHops:
		if len(p.Stages) == 0 {
			return errors.PreconditionErrorf("hops plan needs at least one stage")
		}
		for i, s := range p.Stages {
			if s.Relation == "" {
				return errors.PreconditionErrorf("stage %d has no relation", i)
			}
			if s.Direction != DirOut && s.Direction != DirIn {
				return errors.PreconditionErrorf("stage %d has invalid direction %q", i, s.Direction)
			}
			if err := s.Filter.Validate(); err != nil {
				return fmt.Errorf("stage %d: %w", i, err)
			}
		}
		if p.MinDepth < 0 || p.MaxDepth > len(p.Stages)+1 || p.MinDepth > p.MaxDepth {
			return errors.PreconditionErrorf("depth range [%d, %d) outside 0..%d", p.MinDepth, p.MaxDepth, len(p.Stages)+1)
		}
		return nil
	case PlanWalk:
		if p.Relation == "" {
			return errors.PreconditionErrorf("walk plan needs a relation")
		}
		if p.Direction != DirOut && p.Direction != DirIn {
			return errors.PreconditionErrorf("walk plan has invalid direction %q", p.Direction)
		}
		if p.MaxLevels < 0 {
			return errors.PreconditionErrorf("walk plan max levels must be >= 0, got %d", p.MaxLevels)
		}
		return nil
	default:
		return errors.PreconditionErrorf("unknown plan kind %q", p.Kind)
	}
}

// Levels returns MaxLevels with the default applied.
func (p Plan) Levels() int {
	if p.MaxLevels == 0 {
		return DefaultWalkLevels
	}
	return p.MaxLevels
}

// ReturnsEdges reports whether the plan yields edge records.
func (p Plan) ReturnsEdges() bool {
	return p.Kind == PlanInducedEdges
}

// EncodePlan serialises a plan for the plan dialect.
func EncodePlan(p Plan) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", errors.InternalErrorf("encode plan: %v", err)
	}
	return string(data), nil
}

// DecodePlan parses plan-dialect text.
func DecodePlan(text string) (Plan, error) {
	var p Plan
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return Plan{}, errors.ValidationErrorf("decode plan: %v", err)
	}
	return p, p.Validate()
}
