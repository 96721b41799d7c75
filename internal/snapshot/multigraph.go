package snapshot

import (
	"sort"

	"github.com/fruitflybrain/neuroarch/internal/graph"
	"github.com/fruitflybrain/neuroarch/internal/table"
)

// Edge is one directed edge of a MultiDiGraph. Parallel edges are kept.
type Edge struct {
	Key   string         `json:"key"`
	Out   string         `json:"out"`
	In    string         `json:"in"`
	Attrs map[string]any `json:"attrs"`
}

// MultiDiGraph is a directed multigraph keyed by node row keys. Node and
// edge attributes include the class under "class".
type MultiDiGraph struct {
	Nodes map[string]map[string]any `json:"nodes"`
	Edges []Edge                    `json:"edges"`

	out map[string][]int
	in  map[string][]int
}

// NewMultiDiGraph creates an empty graph.
func NewMultiDiGraph() *MultiDiGraph {
	return &MultiDiGraph{
		Nodes: map[string]map[string]any{},
		out:   map[string][]int{},
		in:    map[string][]int{},
	}
}

// AddNode inserts or replaces a node.
func (g *MultiDiGraph) AddNode(key string, attrs map[string]any) {
	g.Nodes[key] = attrs
}

// AddEdge appends an edge. Missing endpoints are added with no attributes.
func (g *MultiDiGraph) AddEdge(key, out, in string, attrs map[string]any) {
	for _, n := range []string{out, in} {
		if _, ok := g.Nodes[n]; !ok {
			g.Nodes[n] = map[string]any{}
		}
	}
	g.Edges = append(g.Edges, Edge{Key: key, Out: out, In: in, Attrs: attrs})
	g.out[out] = append(g.out[out], len(g.Edges)-1)
	g.in[in] = append(g.in[in], len(g.Edges)-1)
}

// NodeKeys returns the node keys sorted.
func (g *MultiDiGraph) NodeKeys() []string {
	keys := make([]string, 0, len(g.Nodes))
	for k := range g.Nodes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// OutEdges lists edges leaving key.
func (g *MultiDiGraph) OutEdges(key string) []Edge {
	return g.pick(g.out[key])
}

// InEdges lists edges entering key.
func (g *MultiDiGraph) InEdges(key string) []Edge {
	return g.pick(g.in[key])
}

// NumEdgesBetween counts parallel edges from out to in.
func (g *MultiDiGraph) NumEdgesBetween(out, in string) int {
	n := 0
	for _, i := range g.out[out] {
		if g.Edges[i].In == in {
			n++
		}
	}
	return n
}

func (g *MultiDiGraph) pick(idx []int) []Edge {
	out := make([]Edge, len(idx))
	for i, j := range idx {
		out[i] = g.Edges[j]
	}
	return out
}

// Graph renders records as a MultiDiGraph using the same keys as Tables.
func Graph(nodes, edges graph.RecordSet, opts Options) *MultiDiGraph {
	g := NewMultiDiGraph()
	km := make(KeyMap, len(nodes))
	for _, id := range nodes.IDs() {
		r := nodes[id]
		key, byAttr := RowKey(r, opts)
		km[id] = key
		g.AddNode(key, nodeValues(r, byAttr))
	}
	for _, id := range edges.IDs() {
		e := edges[id]
		out, okOut := km[e.Out]
		in, okIn := km[e.In]
		if !okOut || !okIn {
			continue
		}
		attrs := map[string]any{table.ColumnClass: e.Class}
		for k, v := range e.Attrs {
			if !graph.IsReservedKey(k) {
				attrs[k] = v
			}
		}
		g.AddEdge(string(id), out, in, attrs)
	}
	return g
}
