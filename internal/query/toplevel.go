package query

import (
	"context"
	"fmt"

	"github.com/fruitflybrain/neuroarch/internal/graph"
)

// TopLevelClasses are the container classes TopLevelOwners groups by.
var TopLevelClasses = []string{ClassLPU, ClassPattern}

// TopLevelOwners groups the current nodes by the LPU or Pattern that owns
// them, directly or through up to graph.DefaultWalkLevels Owns-hops. The
// result maps class to owner name to an unexecuted wrapper over the current
// nodes inside that owner. Owners sharing a name are merged.
func (w *Wrapper) TopLevelOwners(ctx context.Context) (map[string]map[string]*Wrapper, error) {
	ids, err := w.NodeIDs(ctx)
	if err != nil {
		return nil, err
	}
	current, err := w.env.leaf(graph.Plan{Kind: graph.PlanSelect, Start: ids})
	if err != nil {
		return nil, err
	}

	out := make(map[string]map[string]*Wrapper, len(TopLevelClasses))
	for _, class := range TopLevelClasses {
		owners, err := w.TraverseOwnedBy(ctx, graph.DefaultWalkLevels, graph.Classes(class))
		if err != nil {
			return nil, err
		}
		recs, err := owners.Nodes(ctx)
		if err != nil {
			return nil, err
		}

		group := make(map[string]*Wrapper, len(recs))
		for _, owner := range recs {
			below, err := w.env.leaf(graph.Plan{
				Kind:      graph.PlanWalk,
				Start:     []graph.EntityID{owner.ID},
				Relation:  RelOwns,
				Direction: graph.DirOut,
				MaxLevels: graph.DefaultWalkLevels,
			})
			if err != nil {
				return nil, err
			}
			var expr Expression = OpNode{Op: OpIntersect, Left: below, Right: current}
			name := ownerName(owner)
			if prev, ok := group[name]; ok {
				expr = OpNode{Op: OpUnion, Left: prev.expr, Right: expr}
			}
			group[name] = w.derive(expr)
		}
		out[class] = group
	}
	return out, nil
}

func ownerName(r graph.Record) string {
	if v, ok := r.Attrs["name"]; ok && !graph.IsNull(v) {
		return fmt.Sprint(v)
	}
	return string(r.ID)
}
