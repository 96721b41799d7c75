package apply

import (
	"context"
	"fmt"

	"github.com/fruitflybrain/neuroarch/internal/diff"
	"github.com/fruitflybrain/neuroarch/internal/errors"
	"github.com/fruitflybrain/neuroarch/internal/table"
)

// LoadResult holds the node and edge reports of one Load.
type LoadResult struct {
	Nodes *Report `json:"nodes"`
	Edges *Report `json:"edges"`
}

// Load pushes a whole node and edge table pair into the store as new
// entities. Each node keeps its row key in the "id" attribute, so later
// renderings are keyed the same way. Edge endpoints name node row keys and
// are resolved through the identifiers assigned by the node pass.
func (e *Engine) Load(ctx context.Context, nodes, edges *table.Table) (*LoadResult, error) {
	nodeDiff, err := diff.Nodes(nil, nodes, false)
	if err != nil {
		return nil, err
	}
	for key, values := range nodeDiff.Add {
		if v, ok := values[table.ColumnID]; ok && fmt.Sprint(v) != key {
			return nil, errors.ValidationErrorf("node row %q carries a conflicting id attribute %v", key, v)
		}
		values[table.ColumnID] = key
	}
	edgeDiff, err := diff.Edges(nil, edges, false)
	if err != nil {
		return nil, err
	}
	return e.ApplyGraph(ctx, &diff.Result{Nodes: nodeDiff, Edges: edgeDiff})
}

// ApplyGraph applies a node change-set and then the matching edge
// change-set, resolving new edge endpoints through the node IDs.
// The edge pass is skipped when the node pass fails.
func (e *Engine) ApplyGraph(ctx context.Context, d *diff.Result) (*LoadResult, error) {
	res := &LoadResult{}
	var err error
	res.Nodes, err = e.ApplyNodeDiff(ctx, d.Nodes)
	if err != nil {
		return res, err
	}
	res.Edges, err = e.ApplyEdgeDiff(ctx, d.Edges, res.Nodes.IDs)
	return res, err
}
