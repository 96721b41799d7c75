package graph

import (
	"context"

	"github.com/fruitflybrain/neuroarch/internal/errors"
)

// Language tags a query string with the dialect it is written in.
type Language string

const (
	// LangCypher is parameterised Cypher, spoken by Neo4jStore.
	LangCypher Language = "cypher"
	// LangGremlin is a path-pattern traversal dialect. Rendered, never executed here.
	LangGremlin Language = "gremlin"
	// LangPlan is the JSON-encoded Plan IR, spoken by the in-memory store.
	LangPlan Language = "plan"
)

// KnownLanguages lists every dialect an adapter exists for.
var KnownLanguages = []Language{LangCypher, LangGremlin, LangPlan}

// ParseLanguage validates a dialect tag.
func ParseLanguage(s string) (Language, error) {
	for _, l := range KnownLanguages {
		if string(l) == s {
			return l, nil
		}
	}
	return "", errors.UnsupportedQueryLanguage(s)
}

// QueryString is a dialect-tagged read query.
type QueryString struct {
	Lang   Language       `json:"lang"`
	Text   string         `json:"text"`
	Params map[string]any `json:"params,omitempty"`
}

// Store is the remote property-graph store. It runs read queries and atomic
// write scripts; everything else in this module is built on those two calls.
type Store interface {
	// Dialect is the query language RunRead accepts.
	Dialect() Language

	// RunRead executes a read query and returns the node and edge records it yields.
	// A query in any other language fails with errors.ErrUnsupportedQueryLanguage.
	RunRead(ctx context.Context, q QueryString) ([]Record, error)

	// RunTransaction executes the script as one atomic unit, retrying transient
	// conflicts up to maxRetries times. It returns one record per Script.Return var, in order.
	RunTransaction(ctx context.Context, script Script, maxRetries int) ([]Record, error)

	// IsEntityID reports whether s is shaped like an identifier this store assigns.
	IsEntityID(s string) bool
}
