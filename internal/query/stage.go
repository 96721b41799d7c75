package query

import (
	"fmt"
	"strings"

	"github.com/fruitflybrain/neuroarch/internal/errors"
	"github.com/fruitflybrain/neuroarch/internal/graph"
)

// Stage is one hop of a generic traversal: a relation to follow plus an
// optional class restriction and attribute predicates on the nodes reached.
// Build stages with Follow; each method returns a modified copy.
type Stage struct {
	relation   string
	classes    []string
	instanceOf string
	where      graph.Predicates
}

// Follow starts a stage along relation.
func Follow(relation string) Stage {
	return Stage{relation: relation}
}

// Classes keeps nodes whose class is exactly one of classes.
func (s Stage) Classes(classes ...string) Stage {
	s.classes = append([]string(nil), classes...)
	return s
}

// InstanceOf keeps nodes of class or any of its subclasses.
func (s Stage) InstanceOf(class string) Stage {
	s.instanceOf = class
	return s
}

// Where adds an attribute predicate.
func (s Stage) Where(attr string, p graph.Predicate) Stage {
	where := make(graph.Predicates, len(s.where)+1)
	for k, v := range s.where {
		where[k] = v
	}
	where[attr] = p
	s.where = where
	return s
}

// WhereAll adds every predicate in ps.
func (s Stage) WhereAll(ps graph.Predicates) Stage {
	for _, k := range ps.Keys() {
		s = s.Where(k, ps[k])
	}
	return s
}

// Relation is the relation the stage follows.
func (s Stage) Relation() string { return s.relation }

func (s Stage) String() string {
	var b strings.Builder
	b.WriteString(s.relation)
	if len(s.classes) > 0 {
		fmt.Fprintf(&b, " %v", s.classes)
	}
	if s.instanceOf != "" {
		fmt.Fprintf(&b, " instanceof %s", s.instanceOf)
	}
	for _, k := range s.where.Keys() {
		fmt.Fprintf(&b, " %s %s", k, s.where[k])
	}
	return b.String()
}

func (s Stage) filter() graph.Filter {
	f := graph.Filter{Where: s.where}
	if len(s.classes) > 0 || s.instanceOf != "" {
		f.Types = &graph.TypeFilter{Classes: s.classes, InstanceOf: s.instanceOf}
	}
	return f
}

func (s Stage) plan(dir graph.Direction) graph.Stage {
	return graph.Stage{Relation: s.relation, Direction: dir, Filter: s.filter()}
}

// ParseStage reads the compact form used on the command line:
//
//	SendsTo
//	SendsTo:Synapse,InferredSynapse
//	SendsTo:instanceof=Neuron
//
// Predicates are attached separately with Where.
func ParseStage(s string) (Stage, error) {
	rel, rest, found := strings.Cut(strings.TrimSpace(s), ":")
	if rel == "" {
		return Stage{}, errors.ValidationErrorf("stage %q has no relation", s)
	}
	st := Follow(rel)
	if !found || rest == "" {
		return st, nil
	}
	if class, ok := strings.CutPrefix(rest, "instanceof="); ok {
		return st.InstanceOf(class), nil
	}
	return st.Classes(strings.Split(rest, ",")...), nil
}

// checkStage verifies the relation and classes are registered.
func checkStage(schema graph.Schema, s Stage) error {
	if !schema.HasEdgeClass(s.relation) {
		return errors.PreconditionErrorf("relation %q is not registered", s.relation)
	}
	return checkFilter(schema, s.filter())
}

func checkFilter(schema graph.Schema, f graph.Filter) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if f.Types == nil {
		return nil
	}
	for _, c := range f.Types.Classes {
		if !schema.HasNodeClass(c) {
			return errors.PreconditionErrorf("node class %q is not registered", c)
		}
	}
	if c := f.Types.InstanceOf; c != "" && !schema.HasNodeClass(c) {
		return errors.PreconditionErrorf("node class %q is not registered", c)
	}
	return nil
}
