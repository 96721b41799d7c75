package apply

import (
	"context"
	"fmt"
	"time"

	"github.com/fruitflybrain/neuroarch/internal/diff"
	"github.com/fruitflybrain/neuroarch/internal/errors"
	"github.com/fruitflybrain/neuroarch/internal/graph"
	"github.com/fruitflybrain/neuroarch/internal/logging"
	"github.com/fruitflybrain/neuroarch/internal/table"
)

var edgeKeyColumns = []string{table.ColumnClass, table.ColumnOut, table.ColumnIn}

// ApplyEdgeDiff commits an edge change-set keyed by diff.EdgeKey. Endpoints
// are resolved through ids first (typically the IDs of a preceding node
// apply), otherwise they must already be store identifiers.
// Report.Edges describes every created edge.
func (e *Engine) ApplyEdgeDiff(ctx context.Context, cs *diff.ChangeSet, ids map[string]graph.EntityID) (*Report, error) {
	report := newReport(KindEdge)
	if cs.Empty() {
		report.Elapsed = time.Since(report.Started)
		return report, nil
	}
	plans, err := e.planEdges(cs, ids)
	if err != nil {
		return report, err
	}

	counts := cs.Counts()
	defer logging.Timed(e.logger, "apply edge diff", "add", counts.Add, "mod", counts.Mod, "del", counts.Del)()

	err = e.run(ctx, report, plans, func(_ entry, rec graph.Record) {
		report.Edges = append(report.Edges, EdgeDescriptor{ID: rec.ID, Class: rec.Class, Out: rec.Out, In: rec.In})
	})
	return e.finish(ctx, report, err)
}

func (e *Engine) planEdges(cs *diff.ChangeSet, ids map[string]graph.EntityID) ([]phasePlan, error) {
	resolve := func(key, what, ref string) (graph.EntityID, error) {
		if id, ok := ids[ref]; ok {
			return id, nil
		}
		if e.store.IsEntityID(ref) {
			return graph.EntityID(ref), nil
		}
		return "", errors.PreconditionErrorf("edge %s %q: endpoint %q is not a store identifier", what, key, ref)
	}
	endpoints := func(key, what string, k diff.EdgeKey) (out, in graph.EntityID, err error) {
		if out, err = resolve(key, what, k.Out); err != nil {
			return "", "", err
		}
		if in, err = resolve(key, what, k.In); err != nil {
			return "", "", err
		}
		return out, in, nil
	}

	mods := phasePlan{phase: PhaseMod}
	for _, key := range diff.SortedKeys(cs.Mod) {
		if _, added := cs.Add[key]; added || cs.Del.Has(key) {
			continue
		}
		k, err := diff.ParseEdgeKey(key)
		if err != nil {
			return nil, err
		}
		out, in, err := endpoints(key, "mod", k)
		if err != nil {
			return nil, err
		}
		set := cleanSet(cs.Mod[key], edgeKeyColumns...)
		if len(set) == 0 {
			continue
		}
		mods.entries = append(mods.entries, entry{
			key:  key,
			stmt: graph.UpdateEdge{Class: k.Class, Out: out, In: in, Set: set},
		})
	}

	adds := phasePlan{phase: PhaseAdd}
	for i, key := range diff.SortedKeys(cs.Add) {
		if cs.Del.Has(key) {
			continue
		}
		values := cs.Add[key]
		k, err := addKey(key, values)
		if err != nil {
			return nil, err
		}
		if !e.schema.HasEdgeClass(k.Class) {
			return nil, errors.PreconditionErrorf("edge add %q: class %q is not registered", key, k.Class)
		}
		out, in, err := endpoints(key, "add", k)
		if err != nil {
			return nil, err
		}
		v := fmt.Sprintf("e%d", i)
		adds.entries = append(adds.entries, entry{
			key: key,
			stmt: graph.CreateEdge{
				Var:   v,
				Class: k.Class,
				Out:   graph.IDRef(out),
				In:    graph.IDRef(in),
				Props: cleanProps(values, edgeKeyColumns...),
			},
			ret: v,
		})
	}

	dels := phasePlan{phase: PhaseDel}
	for _, key := range cs.Del.Sorted() {
		k, err := diff.ParseEdgeKey(key)
		if err != nil {
			return nil, err
		}
		out, in, err := endpoints(key, "del", k)
		if err != nil {
			return nil, err
		}
		dels.entries = append(dels.entries, entry{key: key, stmt: graph.DeleteEdge{Class: k.Class, Out: out, In: in}})
	}

	return []phasePlan{mods, adds, dels}, nil
}

// addKey reads class and endpoints from the entry's cells, falling back to
// the key itself for hand-written change-sets that omit them.
func addKey(key string, values map[string]any) (diff.EdgeKey, error) {
	cell := func(col string) string {
		if v, ok := values[col]; ok && !graph.IsNull(v) {
			return fmt.Sprint(v)
		}
		return ""
	}
	k := diff.EdgeKey{Out: cell(table.ColumnOut), Class: cell(table.ColumnClass), In: cell(table.ColumnIn)}
	if k.Out != "" && k.Class != "" && k.In != "" {
		return k, nil
	}
	parsed, err := diff.ParseEdgeKey(key)
	if err != nil {
		return diff.EdgeKey{}, errors.PreconditionErrorf("edge add %q names no class and endpoints", key)
	}
	return parsed, nil
}
