package query

import (
	"context"

	"github.com/fruitflybrain/neuroarch/internal/apply"
	"github.com/fruitflybrain/neuroarch/internal/diff"
	"github.com/fruitflybrain/neuroarch/internal/graph"
	"github.com/fruitflybrain/neuroarch/internal/logging"
	"github.com/fruitflybrain/neuroarch/internal/table"
)

// DiffSave makes the store match newNodes and newEdges for the part of the
// graph this wrapper covers. The cache is rendered with entity-id row keys,
// so rows of newNodes that keep an entity id are updated in place and any
// other key is a new node. Edge rows may name new nodes by row key.
//
// The returned wrapper holds the modified and added nodes. On failure it
// is nil and the result tells which chunks committed.
func (w *Wrapper) DiffSave(ctx context.Context, engine *apply.Engine, newNodes, newEdges *table.Table, fullReplace bool) (*Wrapper, *apply.LoadResult, error) {
	oldNodes, oldEdges, err := w.Tables(ctx, TableOptions{ForceID: true})
	if err != nil {
		return nil, nil, err
	}
	d, err := diff.Graph(oldNodes, oldEdges, newNodes, newEdges, fullReplace)
	if err != nil {
		return nil, nil, err
	}
	nc, ec := d.Nodes.Counts(), d.Edges.Counts()
	defer logging.Timed(w.env.logger, "diff save",
		"node_add", nc.Add, "node_mod", nc.Mod, "node_del", nc.Del,
		"edge_add", ec.Add, "edge_mod", ec.Mod, "edge_del", ec.Del)()

	res, err := engine.ApplyGraph(ctx, d)
	if err != nil {
		return nil, res, err
	}
	out, err := w.env.fromIdentifiers(ctx, Affected(res.Nodes))
	return out, res, err
}

// Affected lists the modified and added node identifiers of a node report.
func Affected(r *apply.Report) []graph.EntityID {
	if r == nil {
		return nil
	}
	ids := make([]graph.EntityID, 0, len(r.Modified)+len(r.IDs))
	for _, key := range r.Modified {
		ids = append(ids, graph.EntityID(key))
	}
	for _, id := range r.IDs {
		ids = append(ids, id)
	}
	graph.SortIDs(ids)
	return ids
}
