// Package diff compares two tabular snapshots of a graph and produces the
// change-set that turns the old one into the new one.
package diff

import (
	"fmt"
	"strings"

	"github.com/fruitflybrain/neuroarch/internal/errors"
	"github.com/fruitflybrain/neuroarch/internal/graph"
	"github.com/fruitflybrain/neuroarch/internal/table"
)

// Nodes diffs two node tables keyed by row id.
func Nodes(old, new *table.Table, fullReplace bool) (*ChangeSet, error) {
	old, new = orEmpty(old), orEmpty(new)
	if err := old.Validate(); err != nil {
		return nil, fmt.Errorf("old node table: %w", err)
	}
	if err := new.Validate(); err != nil {
		return nil, fmt.Errorf("new node table: %w", err)
	}
	return compare(old, new, fullReplace), nil
}

// Edges diffs two edge tables. Rows are re-keyed by EdgeKey so that parallel
// edges of different classes stay distinct; exact duplicate rows collapse.
func Edges(old, new *table.Table, fullReplace bool) (*ChangeSet, error) {
	o, err := RekeyEdges(orEmpty(old))
	if err != nil {
		return nil, fmt.Errorf("old edge table: %w", err)
	}
	n, err := RekeyEdges(orEmpty(new))
	if err != nil {
		return nil, fmt.Errorf("new edge table: %w", err)
	}
	return compare(o, n, fullReplace), nil
}

// Result holds the node and edge change-sets of one snapshot diff.
type Result struct {
	Nodes *ChangeSet `yaml:"nodes" json:"nodes"`
	Edges *ChangeSet `yaml:"edges" json:"edges"`
}

// Graph diffs nodes, then drops edges touching deleted nodes from both edge
// tables before diffing edges. Deleting a node already removes its edges.
func Graph(oldNodes, oldEdges, newNodes, newEdges *table.Table, fullReplace bool) (*Result, error) {
	nodes, err := Nodes(oldNodes, newNodes, fullReplace)
	if err != nil {
		return nil, err
	}
	edges, err := Edges(
		FilterEdges(orEmpty(oldEdges), nodes.Del),
		FilterEdges(orEmpty(newEdges), nodes.Del),
		fullReplace)
	if err != nil {
		return nil, err
	}
	return &Result{Nodes: nodes, Edges: edges}, nil
}

// EdgeKey identifies an edge row by endpoints and class.
type EdgeKey struct {
	Out   string
	Class string
	In    string
}

func (k EdgeKey) String() string {
	return k.Out + " " + k.Class + " " + k.In
}

// ParseEdgeKey splits "out class in".
func ParseEdgeKey(s string) (EdgeKey, error) {
	parts := strings.Split(s, " ")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return EdgeKey{}, errors.ValidationErrorf("malformed edge key %q", s)
	}
	return EdgeKey{Out: parts[0], Class: parts[1], In: parts[2]}, nil
}

// EdgeKeyOf reads the key columns of an edge row.
func EdgeKeyOf(r table.Row) (EdgeKey, error) {
	var k EdgeKey
	for _, f := range []struct {
		col string
		dst *string
	}{{table.ColumnOut, &k.Out}, {table.ColumnClass, &k.Class}, {table.ColumnIn, &k.In}} {
		v, ok := r.Get(f.col)
		if !ok {
			return EdgeKey{}, errors.ValidationErrorf("edge row %q has no %q", r.Key, f.col)
		}
		s := fmt.Sprint(v)
		if s == "" || strings.ContainsAny(s, " \t\n") {
			return EdgeKey{}, errors.ValidationErrorf("edge row %q has invalid %q value %q", r.Key, f.col, s)
		}
		*f.dst = s
	}
	return k, nil
}

// RekeyEdges returns a copy of t keyed by EdgeKey. Exact duplicates are
// dropped; duplicates with different attributes are an error.
func RekeyEdges(t *table.Table) (*table.Table, error) {
	out := table.New(t.Columns...)
	seen := map[string]table.Row{}
	for _, r := range t.Rows {
		k, err := EdgeKeyOf(r)
		if err != nil {
			return nil, err
		}
		key := k.String()
		if prev, dup := seen[key]; dup {
			if sameCells(prev, r, t.Columns) {
				continue
			}
			return nil, errors.ValidationErrorf("conflicting duplicate edge %q", key)
		}
		row := table.Row{Key: key, Values: r.Values}
		seen[key] = row
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

// FilterEdges drops edge rows with an endpoint in deleted.
func FilterEdges(t *table.Table, deleted KeySet) *table.Table {
	if len(deleted) == 0 {
		return t
	}
	out := table.New(t.Columns...)
	for _, r := range t.Rows {
		o, _ := r.Get(table.ColumnOut)
		i, _ := r.Get(table.ColumnIn)
		if deleted.Has(fmt.Sprint(o)) || deleted.Has(fmt.Sprint(i)) {
			continue
		}
		out.Rows = append(out.Rows, r)
	}
	return out
}

func compare(old, new *table.Table, fullReplace bool) *ChangeSet {
	cs := New()
	common, added, removed := columns(old.Columns, new.Columns)
	oldKeys, newKeys := old.Keys(), new.Keys()

	modify := func(key string) {
		o, _ := old.Lookup(key)
		n, _ := new.Lookup(key)
		if entry := rowEntry(o, n, common, added, removed, fullReplace); len(entry) > 0 {
			cs.Mod[key] = entry
		}
	}
	addRow := func(key string) {
		n, _ := new.Lookup(key)
		cs.Add[key] = fullRow(n, new.Columns)
	}

	pairs := align(oldKeys, newKeys)
	for _, p := range pairs {
		modify(newKeys[p.new])
	}

	// Keys present on both sides but outside the alignment were reordered.
	inOld := make(map[string]bool, len(oldKeys))
	for _, k := range oldKeys {
		inOld[k] = true
	}
	inNew := make(map[string]bool, len(newKeys))
	for _, k := range newKeys {
		inNew[k] = true
	}
	aligned := make(map[string]bool, len(pairs))
	for _, p := range pairs {
		aligned[newKeys[p.new]] = true
	}
	for _, k := range newKeys {
		if inOld[k] && !aligned[k] {
			modify(k)
		}
	}

	// Walk the gaps between anchors; unmatched rows in the same gap are
	// paired positionally as rename candidates.
	po, pn := -1, -1
	anchors := append(pairs, pair{len(oldKeys), len(newKeys)})
	for _, a := range anchors {
		var gapOld, gapNew []string
		for _, k := range oldKeys[po+1 : a.old] {
			if !inNew[k] {
				gapOld = append(gapOld, k)
			}
		}
		for _, k := range newKeys[pn+1 : a.new] {
			if !inOld[k] {
				gapNew = append(gapNew, k)
			}
		}
		for i := 0; i < len(gapOld) && i < len(gapNew); i++ {
			o, _ := old.Lookup(gapOld[i])
			n, _ := new.Lookup(gapNew[i])
			if sameCells(o, n, common) {
				if cs.Renames == nil {
					cs.Renames = map[string]string{}
				}
				cs.Renames[gapOld[i]] = gapNew[i]
			}
		}
		for _, k := range gapOld {
			cs.Del.Add(k)
		}
		for _, k := range gapNew {
			addRow(k)
		}
		po, pn = a.old, a.new
	}
	return cs
}

// rowEntry computes the mod entry for a row present in both tables.
func rowEntry(o, n table.Row, common, added, removed []string, fullReplace bool) map[string]any {
	entry := map[string]any{}
	for _, c := range common {
		ov, _ := o.Get(c)
		nv, _ := n.Get(c)
		if !graph.ValuesEqual(ov, nv) {
			entry[c] = nv
		}
	}
	for _, c := range added {
		if nv, ok := n.Get(c); ok {
			entry[c] = nv
		}
	}
	if len(removed) > 0 {
		for _, c := range removed {
			if _, ok := o.Get(c); ok {
				entry[c] = nil
			}
		}
		for _, c := range common {
			if nv, ok := n.Get(c); ok {
				entry[c] = nv
			}
		}
	}
	if fullReplace && len(entry) > 0 {
		for _, c := range append(append([]string(nil), common...), added...) {
			nv, _ := n.Get(c)
			entry[c] = nv
		}
	}
	return entry
}

// fullRow returns the non-null cells of r.
func fullRow(r table.Row, cols []string) map[string]any {
	out := make(map[string]any, len(cols))
	for _, c := range cols {
		if v, ok := r.Get(c); ok {
			out[c] = v
		}
	}
	return out
}

func sameCells(a, b table.Row, cols []string) bool {
	for _, c := range cols {
		av, _ := a.Get(c)
		bv, _ := b.Get(c)
		if !graph.ValuesEqual(av, bv) {
			return false
		}
	}
	return true
}

func orEmpty(t *table.Table) *table.Table {
	if t == nil {
		return table.New()
	}
	return t
}
