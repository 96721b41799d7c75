// Package snapshot projects cached node and edge records into tables and
// directed multigraphs. Projections are pure: they never touch a store.
package snapshot

import (
	"fmt"

	"github.com/fruitflybrain/neuroarch/internal/graph"
	"github.com/fruitflybrain/neuroarch/internal/table"
)

// Options controls how rows are keyed.
type Options struct {
	// ForceID keys node rows by entity identifier even when the record has
	// an "id" attribute.
	ForceID bool
}

// RowKey returns the row key for a node record and whether it came from the
// "id" attribute.
func RowKey(r graph.Record, opts Options) (string, bool) {
	if !opts.ForceID {
		if v, ok := r.Attrs[table.ColumnID]; ok && !graph.IsNull(v) {
			return fmt.Sprint(v), true
		}
	}
	return string(r.ID), false
}

// nodeValues drops reserved attributes, adds the class column and removes
// the id attribute when it was used as key.
func nodeValues(r graph.Record, keyedByAttr bool) map[string]any {
	values := make(map[string]any, len(r.Attrs)+1)
	for k, v := range r.Attrs {
		if graph.IsReservedKey(k) || (keyedByAttr && k == table.ColumnID) {
			continue
		}
		values[k] = v
	}
	values[table.ColumnClass] = r.Class
	return values
}

// KeyMap maps entity identifiers of nodes to their row keys.
type KeyMap map[graph.EntityID]string

// Keys computes row keys for every node.
func Keys(nodes graph.RecordSet, opts Options) KeyMap {
	km := make(KeyMap, len(nodes))
	for id, r := range nodes {
		km[id], _ = RowKey(r, opts)
	}
	return km
}

// Tables renders node and edge tables. Rows are in entity identifier order.
// Edge rows are keyed by edge identifier and carry in/out columns holding
// endpoint row keys; edges with an endpoint outside nodes are skipped.
func Tables(nodes, edges graph.RecordSet, opts Options) (*table.Table, *table.Table) {
	nt := table.New(table.ColumnClass)
	for _, id := range nodes.IDs() {
		r := nodes[id]
		key, byAttr := RowKey(r, opts)
		nt.Append(key, nodeValues(r, byAttr))
	}

	km := Keys(nodes, opts)
	et := table.New(table.ColumnClass, table.ColumnOut, table.ColumnIn)
	for _, id := range edges.IDs() {
		e := edges[id]
		out, okOut := km[e.Out]
		in, okIn := km[e.In]
		if !okOut || !okIn {
			continue
		}
		values := make(map[string]any, len(e.Attrs)+3)
		for k, v := range e.Attrs {
			if !graph.IsReservedKey(k) {
				values[k] = v
			}
		}
		values[table.ColumnClass] = e.Class
		values[table.ColumnOut] = out
		values[table.ColumnIn] = in
		et.Append(string(id), values)
	}
	return nt, et
}
