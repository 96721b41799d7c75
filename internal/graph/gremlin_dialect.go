package graph

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/fruitflybrain/neuroarch/internal/errors"
)

// GremlinDialect renders plans as Gremlin path-pattern traversals.
// It is read-only: writes are expressed through Script and a StatementRenderer.
type GremlinDialect struct {
	schema Schema
}

// NewGremlinDialect creates the Gremlin adapter.
func NewGremlinDialect(schema Schema) *GremlinDialect {
	return &GremlinDialect{schema: schema}
}

// Language implements Dialect.
func (d *GremlinDialect) Language() Language { return LangGremlin }

// RenderPlan implements Dialect.
func (d *GremlinDialect) RenderPlan(p Plan) (QueryString, error) {
	if err := p.Validate(); err != nil {
		return QueryString{}, err
	}

	var sb strings.Builder
	switch p.Kind {
	case PlanSelect:
		sb.WriteString(d.start(p.Start))
		sb.WriteString(d.filter(p.Filter))
		sb.WriteString(".dedup()")

	case PlanMatch:
		sb.WriteString("g.V()")
		sb.WriteString(d.filter(p.Filter))

	case PlanHops:
		var branches []string
		for depth := p.MinDepth; depth < p.MaxDepth; depth++ {
			if depth == 0 {
				branches = append(branches, "__.identity()")
				continue
			}
			var branch strings.Builder
			branch.WriteString("__")
			for _, st := range p.Stages[:depth] {
				branch.WriteString(d.step(st.Relation, st.Direction))
				branch.WriteString(d.filter(st.Filter))
			}
			branches = append(branches, branch.String())
		}
		sb.WriteString(d.start(p.Start))
		if len(branches) == 0 {
			sb.WriteString(".limit(0)")
		} else {
			sb.WriteString(".union(" + strings.Join(branches, ", ") + ").dedup()")
		}

	case PlanWalk:
		sb.WriteString(d.start(p.Start))
		sb.WriteString(fmt.Sprintf(".emit().repeat(__%s).times(%d).dedup()", d.step(p.Relation, p.Direction), p.Levels()))
		sb.WriteString(d.filter(p.Filter))

	case PlanInducedEdges:
		sb.WriteString(d.start(p.Start))
		sb.WriteString(".outE(" + quoteAll(p.EdgeTypes) + ")")
		sb.WriteString(".where(__.inV().hasId(" + quoteAll(IDStrings(p.Start)) + "))")
		sb.WriteString(".dedup()")

	default:
		return QueryString{}, errors.PreconditionErrorf("gremlin cannot render plan kind %q", p.Kind)
	}
	return QueryString{Lang: LangGremlin, Text: sb.String()}, nil
}

func (d *GremlinDialect) start(ids []EntityID) string {
	if len(ids) == 0 {
		return "g.V().limit(0)"
	}
	return "g.V(" + quoteAll(IDStrings(ids)) + ")"
}

func (d *GremlinDialect) step(relation string, dir Direction) string {
	if dir == DirIn {
		return ".in(" + quote(relation) + ")"
	}
	return ".out(" + quote(relation) + ")"
}

func (d *GremlinDialect) filter(f Filter) string {
	var sb strings.Builder
	if f.Types != nil {
		if len(f.Types.Classes) > 0 {
			sb.WriteString(".hasLabel(" + quoteAll(f.Types.Classes) + ")")
		}
		if f.Types.InstanceOf != "" {
			sb.WriteString(".hasLabel(" + quoteAll(d.subclasses(f.Types.InstanceOf)) + ")")
		}
	}
	for _, k := range f.Where.Keys() {
		sb.WriteString(".has(" + quote(k) + ", " + gremlinPredicate(f.Where[k]) + ")")
	}
	return sb.String()
}

// subclasses expands an instance-of test into explicit labels, since
// Gremlin vertices carry a single label.
func (d *GremlinDialect) subclasses(super string) []string {
	if s, ok := d.schema.(interface{ Subclasses(string) []string }); ok {
		if subs := s.Subclasses(super); len(subs) > 0 {
			return subs
		}
	}
	return []string{super}
}

func gremlinPredicate(p Predicate) string {
	switch p.Op {
	case OpEq:
		return literal(p.Value)
	case OpIn:
		parts := make([]string, len(p.Values))
		for i, v := range p.Values {
			parts[i] = literal(v)
		}
		return "within(" + strings.Join(parts, ", ") + ")"
	case OpCmp:
		names := map[string]string{"<": "lt", ">": "gt", "=": "eq", "<=": "lte", ">=": "gte"}
		return names[p.Comparator] + "(" + literal(p.Bound) + ")"
	case OpRegex:
		return "regex(" + quote(p.Pattern) + ")"
	}
	return "null"
}

func literal(v any) string {
	if IsNull(v) {
		return "null"
	}
	switch x := v.(type) {
	case string:
		return quote(x)
	case bool:
		return strconv.FormatBool(x)
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = quote(k) + ": " + literal(x[k])
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	if f, ok := ToFloat(v); ok {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	if list, ok := asList(v); ok {
		parts := make([]string, len(list))
		for i, e := range list {
			parts[i] = literal(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return quote(fmt.Sprint(v))
}

func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(s) + "'"
}

func quoteAll(ss []string) string {
	parts := make([]string, len(ss))
	for i, s := range ss {
		parts[i] = quote(s)
	}
	return strings.Join(parts, ", ")
}
