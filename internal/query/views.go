package query

import (
	"context"

	"github.com/fruitflybrain/neuroarch/internal/errors"
	"github.com/fruitflybrain/neuroarch/internal/graph"
	"github.com/fruitflybrain/neuroarch/internal/snapshot"
	"github.com/fruitflybrain/neuroarch/internal/table"
)

// View names accepted by GetAs. "df" and "nx" are aliases kept for
// callers coming from the Python tooling.
const (
	ViewTables  = "tables"
	ViewDF      = "df"
	ViewGraph   = "graph"
	ViewNX      = "nx"
	ViewRecords = "records"
)

// TableOptions controls how rows are keyed.
type TableOptions struct {
	// ForceID keys node rows by entity identifier instead of the "id" attribute.
	ForceID bool
}

// TablesView is the tables projection returned by GetAs.
type TablesView struct {
	Nodes *table.Table `json:"nodes"`
	Edges *table.Table `json:"edges"`
}

// RecordsView is the raw records projection returned by GetAs.
type RecordsView struct {
	Nodes []graph.Record `json:"nodes"`
	Edges []graph.Record `json:"edges"`
}

// Tables renders the cached nodes and induced edges as tables, executing
// first if the caches are empty.
func (w *Wrapper) Tables(ctx context.Context, opts TableOptions) (*table.Table, *table.Table, error) {
	if err := w.Execute(ctx, ExecOptions{Edges: true}); err != nil {
		return nil, nil, err
	}
	nodes, edges := snapshot.Tables(w.nodes, w.edges, snapshot.Options{ForceID: opts.ForceID})
	return nodes, edges, nil
}

// Graph renders the cached nodes and edges as a directed multigraph.
func (w *Wrapper) Graph(ctx context.Context) (*snapshot.MultiDiGraph, error) {
	if err := w.Execute(ctx, ExecOptions{Edges: true}); err != nil {
		return nil, err
	}
	return snapshot.Graph(w.nodes, w.edges, snapshot.Options{}), nil
}

// GetAs returns one of the projections: *TablesView, *snapshot.MultiDiGraph
// or *RecordsView. Unknown views fail with errors.ErrUnsupportedView
// before anything executes.
func (w *Wrapper) GetAs(ctx context.Context, view string) (any, error) {
	switch view {
	case ViewTables, ViewDF:
		nodes, edges, err := w.Tables(ctx, TableOptions{})
		if err != nil {
			return nil, err
		}
		return &TablesView{Nodes: nodes, Edges: edges}, nil
	case ViewGraph, ViewNX:
		return w.Graph(ctx)
	case ViewRecords:
		if err := w.Execute(ctx, ExecOptions{Edges: true}); err != nil {
			return nil, err
		}
		return &RecordsView{Nodes: w.nodes.Records(), Edges: w.edges.Records()}, nil
	default:
		return nil, errors.UnsupportedView(view)
	}
}
