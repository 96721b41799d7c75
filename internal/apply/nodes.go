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

// ApplyNodeDiff commits a node change-set. Mod and del keys must be store
// identifiers; add entries must name a registered class. Report.IDs maps
// each added row key to the identifier the store assigned.
//
// Every entry is checked before the first chunk is sent, so a precondition
// failure commits nothing.
func (e *Engine) ApplyNodeDiff(ctx context.Context, cs *diff.ChangeSet) (*Report, error) {
	report := newReport(KindNode)
	if cs.Empty() {
		report.Elapsed = time.Since(report.Started)
		return report, nil
	}
	plans, err := e.planNodes(ctx, cs)
	if err != nil {
		return report, err
	}

	counts := cs.Counts()
	defer logging.Timed(e.logger, "apply node diff", "add", counts.Add, "mod", counts.Mod, "del", counts.Del)()

	err = e.run(ctx, report, plans, func(en entry, rec graph.Record) {
		report.IDs[en.key] = rec.ID
	})
	return e.finish(ctx, report, err)
}

func (e *Engine) planNodes(ctx context.Context, cs *diff.ChangeSet) ([]phasePlan, error) {
	mods := phasePlan{phase: PhaseMod}
	classes := map[graph.EntityID]string{}
	for _, key := range diff.SortedKeys(cs.Mod) {
		if _, added := cs.Add[key]; added || cs.Del.Has(key) {
			continue
		}
		if !e.store.IsEntityID(key) {
			return nil, errors.PreconditionErrorf("node mod key %q is not a store identifier", key)
		}
		values := cs.Mod[key]
		if c, ok := values[table.ColumnClass]; ok {
			if graph.IsNull(c) {
				return nil, errors.PreconditionErrorf("node mod %q clears its class", key)
			}
			classes[graph.EntityID(key)] = fmt.Sprint(c)
		}
		set := cleanSet(values, table.ColumnClass)
		if len(set) == 0 {
			continue
		}
		mods.entries = append(mods.entries, entry{
			key:  key,
			stmt: graph.UpdateVertex{ID: graph.EntityID(key), Set: set},
		})
	}
	if err := e.checkClasses(ctx, classes); err != nil {
		return nil, err
	}

	adds := phasePlan{phase: PhaseAdd}
	for i, key := range diff.SortedKeys(cs.Add) {
		if cs.Del.Has(key) {
			continue
		}
		values := cs.Add[key]
		class, _ := values[table.ColumnClass].(string)
		if class == "" {
			return nil, errors.PreconditionErrorf("node add %q has no class", key)
		}
		if !e.schema.HasNodeClass(class) {
			return nil, errors.PreconditionErrorf("node add %q: class %q is not registered", key, class)
		}
		v := fmt.Sprintf("v%d", i)
		adds.entries = append(adds.entries, entry{
			key:  key,
			stmt: graph.CreateVertex{Var: v, Class: class, Props: cleanProps(values, table.ColumnClass)},
			ret:  v,
		})
	}

	dels := phasePlan{phase: PhaseDel}
	for _, key := range cs.Del.Sorted() {
		if !e.store.IsEntityID(key) {
			return nil, errors.PreconditionErrorf("node del key %q is not a store identifier", key)
		}
		dels.entries = append(dels.entries, entry{key: key, stmt: graph.DeleteVertex{ID: graph.EntityID(key)}})
	}

	return []phasePlan{mods, adds, dels}, nil
}

// checkClasses reads the current class of every node whose mod entry names
// one, and rejects entries that would change it.
func (e *Engine) checkClasses(ctx context.Context, classes map[graph.EntityID]string) error {
	if len(classes) == 0 {
		return nil
	}
	dialect, err := graph.DialectFor(e.store.Dialect(), e.schema)
	if err != nil {
		return err
	}
	ids := make([]graph.EntityID, 0, len(classes))
	for id := range classes {
		ids = append(ids, id)
	}
	graph.SortIDs(ids)

	q, err := dialect.RenderPlan(graph.Plan{Kind: graph.PlanSelect, Start: ids})
	if err != nil {
		return err
	}
	records, err := e.store.RunRead(ctx, q)
	if err != nil {
		return fmt.Errorf("read classes of modified nodes: %w", err)
	}
	for _, r := range records {
		if want := classes[r.ID]; want != r.Class {
			return errors.PreconditionErrorf("node %s is %s; changing its class to %s is not supported", r.ID, r.Class, want)
		}
	}
	return nil
}
