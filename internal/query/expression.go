// Package query builds, composes and evaluates node queries against a
// graph.Store. A Wrapper owns one Expression plus the node and edge records
// it last evaluated to; set algebra works on those cached results, not on
// query text.
package query

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fruitflybrain/neuroarch/internal/errors"
	"github.com/fruitflybrain/neuroarch/internal/graph"
	"github.com/fruitflybrain/neuroarch/internal/metrics"
)

// Op is a set operator joining two expressions.
type Op string

const (
	OpUnion               Op = "union"
	OpIntersect           Op = "intersect"
	OpDifference          Op = "difference"
	OpSymmetricDifference Op = "symmetric_difference"
)

var opSymbols = map[Op]string{
	OpUnion:               "+",
	OpIntersect:           "&",
	OpDifference:          "-",
	OpSymmetricDifference: "^",
}

// Valid reports whether o is one of the four set operators.
func (o Op) Valid() bool {
	_, ok := opSymbols[o]
	return ok
}

// Expression is a Leaf or an OpNode. Expressions are immutable.
type Expression interface {
	String() string
	expression()
}

// Leaf is a single dialect-tagged query.
type Leaf struct {
	Query graph.QueryString
}

// OpNode combines the results of two expressions.
type OpNode struct {
	Op    Op
	Left  Expression
	Right Expression
}

func (Leaf) expression()   {}
func (OpNode) expression() {}

func (l Leaf) String() string {
	return fmt.Sprintf("%s{%s}", l.Query.Lang, l.Query.Text)
}

func (n OpNode) String() string {
	return fmt.Sprintf("(%s %s %s)", n.Left, opSymbols[n.Op], n.Right)
}

// Combine merges two result sets. Union lets right win on collisions.
func Combine(op Op, left, right graph.RecordSet) graph.RecordSet {
	out := graph.RecordSet{}
	switch op {
	case OpUnion:
		for id, r := range left {
			out[id] = r
		}
		for id, r := range right {
			out[id] = r
		}
	case OpIntersect:
		for id, r := range left {
			if _, ok := right[id]; ok {
				out[id] = r
			}
		}
	case OpDifference:
		for id, r := range left {
			if _, ok := right[id]; !ok {
				out[id] = r
			}
		}
	case OpSymmetricDifference:
		for id, r := range left {
			if _, ok := right[id]; !ok {
				out[id] = r
			}
		}
		for id, r := range right {
			if _, ok := left[id]; !ok {
				out[id] = r
			}
		}
	}
	return out
}

// Evaluate runs expr against store, post-order: every Leaf is one read and
// every OpNode combines its children's results with Combine.
func Evaluate(ctx context.Context, store graph.Store, expr Expression) (graph.RecordSet, error) {
	return evaluator{store: store}.eval(ctx, expr)
}

type evaluator struct {
	store   graph.Store
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func (e evaluator) eval(ctx context.Context, expr Expression) (graph.RecordSet, error) {
	switch x := expr.(type) {
	case nil:
		return graph.RecordSet{}, nil
	case Leaf:
		recs, err := e.store.RunRead(ctx, x.Query)
		if err != nil {
			return nil, err
		}
		e.metrics.ObserveRead(string(x.Query.Lang), len(recs))
		if e.logger != nil {
			e.logger.Debug("leaf evaluated", "lang", x.Query.Lang, "records", len(recs))
		}
		return graph.NewRecordSet(recs), nil
	case OpNode:
		if !x.Op.Valid() {
			return nil, errors.PreconditionErrorf("unknown set operator %q", x.Op)
		}
		left, err := e.eval(ctx, x.Left)
		if err != nil {
			return nil, err
		}
		right, err := e.eval(ctx, x.Right)
		if err != nil {
			return nil, err
		}
		return Combine(x.Op, left, right), nil
	default:
		return nil, errors.InternalErrorf("unknown expression type %T", expr)
	}
}
