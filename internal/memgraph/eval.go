package memgraph

import (
	"github.com/fruitflybrain/neuroarch/internal/graph"
)

type evaluator struct {
	d      *data
	schema graph.Schema
}

func (e evaluator) eval(p graph.Plan) []graph.Record {
	var recs []graph.Record
	switch p.Kind {
	case graph.PlanSelect:
		for _, id := range uniq(p.Start) {
			if r, ok := e.d.nodes[id]; ok && e.passes(r, p.Filter) {
				recs = append(recs, copyRecord(r))
			} else if r, ok := e.d.edges[id]; ok && e.passes(r, p.Filter) {
				recs = append(recs, copyRecord(r))
			}
		}

	case graph.PlanMatch:
		for _, r := range e.d.nodes {
			if e.passes(r, p.Filter) {
				recs = append(recs, copyRecord(r))
			}
		}

	case graph.PlanHops:
		levels := [][]graph.EntityID{e.existing(p.Start)}
		for _, st := range p.Stages {
			prev := levels[len(levels)-1]
			next := e.step(prev, st.Relation, st.Direction)
			kept := next[:0]
			for _, id := range next {
				if e.passes(e.d.nodes[id], st.Filter) {
					kept = append(kept, id)
				}
			}
			levels = append(levels, kept)
		}
		seen := map[graph.EntityID]bool{}
		for depth := p.MinDepth; depth < p.MaxDepth; depth++ {
			for _, id := range levels[depth] {
				if !seen[id] {
					seen[id] = true
					recs = append(recs, copyRecord(e.d.nodes[id]))
				}
			}
		}

	case graph.PlanWalk:
		frontier := e.existing(p.Start)
		seen := map[graph.EntityID]bool{}
		for _, id := range frontier {
			seen[id] = true
		}
		for level := 0; level < p.Levels() && len(frontier) > 0; level++ {
			var next []graph.EntityID
			for _, id := range e.step(frontier, p.Relation, p.Direction) {
				if !seen[id] {
					seen[id] = true
					next = append(next, id)
				}
			}
			frontier = next
		}
		for id := range seen {
			if r := e.d.nodes[id]; e.passes(r, p.Filter) {
				recs = append(recs, copyRecord(r))
			}
		}

	case graph.PlanInducedEdges:
		members := map[graph.EntityID]bool{}
		for _, id := range p.Start {
			members[id] = true
		}
		types := map[string]bool{}
		for _, t := range p.EdgeTypes {
			types[t] = true
		}
		for id := range members {
			for _, eid := range e.d.out[id] {
				edge := e.d.edges[eid]
				if !members[edge.In] {
					continue
				}
				if len(types) > 0 && !types[edge.Class] {
					continue
				}
				recs = append(recs, copyRecord(edge))
			}
		}
	}

	sortRecords(recs)
	return recs
}

// existing drops identifiers that are not nodes and removes duplicates.
func (e evaluator) existing(ids []graph.EntityID) []graph.EntityID {
	var out []graph.EntityID
	for _, id := range uniq(ids) {
		if _, ok := e.d.nodes[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// step returns the distinct neighbours of ids across relation.
func (e evaluator) step(ids []graph.EntityID, relation string, dir graph.Direction) []graph.EntityID {
	seen := map[graph.EntityID]bool{}
	var out []graph.EntityID
	for _, id := range ids {
		adj := e.d.out[id]
		if dir == graph.DirIn {
			adj = e.d.in[id]
		}
		for _, eid := range adj {
			edge := e.d.edges[eid]
			if edge.Class != relation {
				continue
			}
			other := edge.In
			if dir == graph.DirIn {
				other = edge.Out
			}
			if !seen[other] {
				seen[other] = true
				out = append(out, other)
			}
		}
	}
	graph.SortIDs(out)
	return out
}

func (e evaluator) passes(r graph.Record, f graph.Filter) bool {
	if t := f.Types; t != nil {
		if len(t.Classes) > 0 {
			found := false
			for _, c := range t.Classes {
				if r.Class == c {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		if t.InstanceOf != "" && !e.schema.IsA(r.Class, t.InstanceOf) {
			return false
		}
	}
	return f.Where.Match(r.Attrs)
}

func uniq(ids []graph.EntityID) []graph.EntityID {
	seen := make(map[graph.EntityID]bool, len(ids))
	out := make([]graph.EntityID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
