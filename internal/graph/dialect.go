package graph

import (
	"github.com/fruitflybrain/neuroarch/internal/errors"
)

// Dialect renders dialect-neutral plans into query strings. Query and
// traversal code only ever talks to this interface, so it runs unchanged
// against any store.
type Dialect interface {
	Language() Language
	RenderPlan(p Plan) (QueryString, error)
}

// StatementRenderer is implemented by dialects that can also express writes.
type StatementRenderer interface {
	RenderStatement(stmt Statement, vars map[string]EntityID) (QueryWithParams, error)
}

// QueryWithParams holds one query and its parameters.
type QueryWithParams struct {
	Query  string
	Params map[string]any
}

// DialectFor returns the adapter for lang. Schema is needed for class
// hierarchies; nil falls back to DefaultSchema.
func DialectFor(lang Language, schema Schema) (Dialect, error) {
	if schema == nil {
		schema = DefaultSchema()
	}
	switch lang {
	case LangPlan:
		return PlanDialect{}, nil
	case LangCypher:
		return NewCypherDialect(schema), nil
	case LangGremlin:
		return NewGremlinDialect(schema), nil
	default:
		return nil, errors.UnsupportedQueryLanguage(string(lang))
	}
}

// PlanDialect renders plans as JSON for stores that evaluate the IR directly.
type PlanDialect struct{}

// Language implements Dialect.
func (PlanDialect) Language() Language { return LangPlan }

// RenderPlan implements Dialect.
func (PlanDialect) RenderPlan(p Plan) (QueryString, error) {
	if err := p.Validate(); err != nil {
		return QueryString{}, err
	}
	text, err := EncodePlan(p)
	if err != nil {
		return QueryString{}, err
	}
	return QueryString{Lang: LangPlan, Text: text}, nil
}
