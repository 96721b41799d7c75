package graph

import (
	"fmt"
	"strings"

	"github.com/fruitflybrain/neuroarch/internal/errors"
)

// ClassProperty holds a node's exact class. Labels carry the class and all
// of its ancestors, so instance-of tests use labels and exact tests use this.
const ClassProperty = "_class"

// CypherDialect renders plans and write statements as parameterised Cypher.
type CypherDialect struct {
	schema Schema
}

// NewCypherDialect creates the Cypher adapter.
func NewCypherDialect(schema Schema) *CypherDialect {
	return &CypherDialect{schema: schema}
}

// Language implements Dialect.
func (d *CypherDialect) Language() Language { return LangCypher }

// RenderPlan implements Dialect.
func (d *CypherDialect) RenderPlan(p Plan) (QueryString, error) {
	if err := p.Validate(); err != nil {
		return QueryString{}, err
	}

	b := NewCypherBuilder()
	var err error
	switch p.Kind {
	case PlanSelect:
		err = d.renderSelect(b, p)
	case PlanMatch:
		err = d.renderMatch(b, p)
	case PlanHops:
		err = d.renderHops(b, p)
	case PlanWalk:
		err = d.renderWalk(b, p)
	case PlanInducedEdges:
		err = d.renderInducedEdges(b, p)
	}
	if err != nil {
		return QueryString{}, errors.PreconditionErrorf("render %s plan: %v", p.Kind, err)
	}
	return QueryString{Lang: LangCypher, Text: b.String(), Params: b.Params()}, nil
}

func (d *CypherDialect) renderSelect(b *CypherBuilder, p Plan) error {
	ids := b.AddParam(IDStrings(p.Start))
	conds, err := b.FilterConditions("n", p.Filter)
	if err != nil {
		return err
	}
	conds = append([]string{"elementId(n) IN " + ids}, conds...)
	b.Line("MATCH (n) %s", Where(conds...))
	b.Line("RETURN n")
	return nil
}

func (d *CypherDialect) renderMatch(b *CypherBuilder, p Plan) error {
	conds, err := b.FilterConditions("n", p.Filter)
	if err != nil {
		return err
	}
	b.Line(strings.TrimSpace("MATCH (n) " + Where(conds...)))
	b.Line("RETURN n")
	return nil
}

// renderHops collects one list per depth, q0 being the start set, then
// unwinds the requested slice of them.
func (d *CypherDialect) renderHops(b *CypherBuilder, p Plan) error {
	b.Line("MATCH (s) WHERE elementId(s) IN %s", b.AddParam(IDStrings(p.Start)))
	b.Line("WITH collect(DISTINCT s) AS q0")

	for i, st := range p.Stages {
		rel, err := b.Label(st.Relation)
		if err != nil {
			return err
		}
		conds, err := b.FilterConditions("b", st.Filter)
		if err != nil {
			return err
		}
		b.Line("CALL {")
		b.Line("  WITH q%d", i)
		b.Line("  UNWIND q%d AS a", i)
		b.Line("  MATCH %s", hopPattern("a", rel, st.Direction, "b"))
		if len(conds) > 0 {
			b.Line("  %s", Where(conds...))
		}
		b.Line("  RETURN collect(DISTINCT b) AS q%d", i+1)
		b.Line("}")
	}

	parts := make([]string, 0, p.MaxDepth-p.MinDepth)
	for depth := p.MinDepth; depth < p.MaxDepth; depth++ {
		parts = append(parts, fmt.Sprintf("q%d", depth))
	}
	if len(parts) == 0 {
		parts = []string{"[]"}
	}
	b.Line("UNWIND %s AS n", strings.Join(parts, " + "))
	b.Line("RETURN DISTINCT n")
	return nil
}

func (d *CypherDialect) renderWalk(b *CypherBuilder, p Plan) error {
	rel, err := b.Label(p.Relation)
	if err != nil {
		return err
	}
	ids := b.AddParam(IDStrings(p.Start))
	conds, err := b.FilterConditions("n", p.Filter)
	if err != nil {
		return err
	}
	b.Line("MATCH (s) WHERE elementId(s) IN %s", ids)
	b.Line("MATCH %s", hopPattern("s", fmt.Sprintf("%s*0..%d", rel, p.Levels()), p.Direction, "n"))
	b.Line(strings.TrimSpace("WITH DISTINCT n " + Where(conds...)))
	b.Line("RETURN n")
	return nil
}

func (d *CypherDialect) renderInducedEdges(b *CypherBuilder, p Plan) error {
	ids := b.AddParam(IDStrings(p.Start))
	conds := []string{"elementId(b) IN " + ids}
	if len(p.EdgeTypes) > 0 {
		for _, t := range p.EdgeTypes {
			if _, err := b.Label(t); err != nil {
				return err
			}
		}
		conds = append(conds, "type(r) IN "+b.AddParam(p.EdgeTypes))
	}
	b.Line("MATCH (a) WHERE elementId(a) IN %s", ids)
	b.Line("MATCH (a)-[r]->(b) %s", Where(conds...))
	b.Line("RETURN r")
	return nil
}

func hopPattern(from, rel string, dir Direction, to string) string {
	if dir == DirIn {
		return fmt.Sprintf("(%s)<-[:%s]-(%s)", from, rel, to)
	}
	return fmt.Sprintf("(%s)-[:%s]->(%s)", from, rel, to)
}

// RenderUniqueConstraint renders the schema command that backs
// CreateVertex.Unique. The constraint is named after the class collection.
func (d *CypherDialect) RenderUniqueConstraint(class, attr string) (string, error) {
	if !isValidIdentifier(class) || !isValidIdentifier(attr) {
		return "", errors.PreconditionErrorf("invalid unique constraint %s.%s", class, attr)
	}
	if !d.schema.HasNodeClass(class) {
		return "", errors.PreconditionErrorf("node class %q is not registered", class)
	}
	return fmt.Sprintf("CREATE CONSTRAINT %s_%s_unique IF NOT EXISTS FOR (n:%s) REQUIRE n.%s IS UNIQUE",
		d.schema.Plural(class), attr, class, attr), nil
}

// RenderStatement implements StatementRenderer. vars maps script variables
// bound so far to the identifiers the store assigned them.
func (d *CypherDialect) RenderStatement(stmt Statement, vars map[string]EntityID) (QueryWithParams, error) {
	b := NewCypherBuilder()
	resolve := func(r Ref) (string, error) {
		if r.Var == "" {
			return b.AddParam(string(r.ID)), nil
		}
		id, ok := vars[r.Var]
		if !ok {
			return "", errors.PreconditionErrorf("variable %q is not bound", r.Var)
		}
		return b.AddParam(string(id)), nil
	}

	switch st := stmt.(type) {
	case CreateVertex:
		labels, err := b.Labels(append([]string{st.Class}, d.schema.Ancestors(st.Class)...)...)
		if err != nil {
			return QueryWithParams{}, errors.PreconditionErrorf("create vertex: %v", err)
		}
		props := make(map[string]any, len(st.Props)+1)
		for k, v := range st.Props {
			if !IsNull(v) {
				props[k] = v
			}
		}
		props[ClassProperty] = st.Class
		b.Line("CREATE (v%s)", labels)
		b.Line("SET v = %s", b.AddParam(props))
		b.Line("RETURN v")

	case UpdateVertex:
		b.Line("MATCH (v) WHERE elementId(v) = %s", b.AddParam(string(st.ID)))
		if len(st.Set) > 0 {
			b.Line("SET %s", b.SetClause("v", st.Set))
		}
		b.Line("RETURN v")

	case DeleteVertex:
		b.Line("MATCH (v) WHERE elementId(v) = %s", b.AddParam(string(st.ID)))
		b.Line("DETACH DELETE v")
		b.Line("RETURN count(*) AS deleted")

	case CreateEdge:
		rel, err := b.Label(st.Class)
		if err != nil {
			return QueryWithParams{}, errors.PreconditionErrorf("create edge: %v", err)
		}
		out, err := resolve(st.Out)
		if err != nil {
			return QueryWithParams{}, err
		}
		in, err := resolve(st.In)
		if err != nil {
			return QueryWithParams{}, err
		}
		props := make(map[string]any, len(st.Props))
		for k, v := range st.Props {
			if !IsNull(v) {
				props[k] = v
			}
		}
		b.Line("MATCH (a) WHERE elementId(a) = %s", out)
		b.Line("MATCH (b) WHERE elementId(b) = %s", in)
		b.Line("CREATE (a)-[r:%s]->(b)", rel)
		b.Line("SET r = %s", b.AddParam(props))
		b.Line("RETURN r")

	case UpdateEdge:
		rel, err := b.Label(st.Class)
		if err != nil {
			return QueryWithParams{}, errors.PreconditionErrorf("update edge: %v", err)
		}
		b.Line("MATCH (a)-[r:%s]->(b) WHERE elementId(a) = %s AND elementId(b) = %s",
			rel, b.AddParam(string(st.Out)), b.AddParam(string(st.In)))
		if len(st.Set) > 0 {
			b.Line("SET %s", b.SetClause("r", st.Set))
		}
		b.Line("RETURN r")

	case DeleteEdge:
		rel, err := b.Label(st.Class)
		if err != nil {
			return QueryWithParams{}, errors.PreconditionErrorf("delete edge: %v", err)
		}
		b.Line("MATCH (a)-[r:%s]->(b) WHERE elementId(a) = %s AND elementId(b) = %s",
			rel, b.AddParam(string(st.Out)), b.AddParam(string(st.In)))
		b.Line("DELETE r")
		b.Line("RETURN count(*) AS deleted")

	default:
		return QueryWithParams{}, errors.InternalErrorf("unknown statement %T", stmt)
	}
	return b.Query(), nil
}
