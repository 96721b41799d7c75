package query

import (
	"context"

	"github.com/fruitflybrain/neuroarch/internal/graph"
)

// Has narrows the current nodes to those passing filter: a class
// restriction, attribute predicates, or both. The result is unexecuted.
// An empty filter returns a wrapper over the same nodes.
func (w *Wrapper) Has(ctx context.Context, filter graph.Filter) (*Wrapper, error) {
	if err := checkFilter(w.env.schema, filter); err != nil {
		return nil, err
	}
	ids, err := w.NodeIDs(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return w.empty()
	}
	return w.derivePlan(graph.Plan{Kind: graph.PlanSelect, Start: ids, Filter: filter})
}
