package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruitflybrain/neuroarch/internal/errors"
	"github.com/fruitflybrain/neuroarch/internal/graph"
	"github.com/fruitflybrain/neuroarch/internal/memgraph"
)

// fixture builds:
//
//	EB(LPU) -Owns-> n1 n2 n3 syn12 syn23 inf13 sub(Circuit)
//	sub -Owns-> n4
//	P(Pattern) -Owns-> port
//	n1 -SendsTo-> syn12 -SendsTo-> n2 -SendsTo-> syn23 -SendsTo-> n3
//	n1 -SendsTo-> inf13 -SendsTo-> n3
type fixture struct {
	store *memgraph.Store
	ids   map[string]graph.EntityID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := memgraph.New(nil)
	ids := map[string]graph.EntityID{}
	node := func(name, class string, attrs map[string]any) {
		if attrs == nil {
			attrs = map[string]any{}
		}
		attrs["name"] = name
		ids[name] = s.AddNode(class, attrs)
	}
	node("EB", "LPU", nil)
	node("n1", "Neuron", nil)
	node("n2", "Neuron", nil)
	node("n3", "Neuron", nil)
	node("syn12", "Synapse", map[string]any{"N": 5})
	node("syn23", "Synapse", map[string]any{"N": 20})
	node("inf13", "InferredSynapse", map[string]any{"N": 3})
	node("sub", "Circuit", nil)
	node("n4", "Neuron", nil)
	node("P", "Pattern", nil)
	node("port", "Port", nil)

	edges := [][3]string{
		{"Owns", "EB", "n1"}, {"Owns", "EB", "n2"}, {"Owns", "EB", "n3"},
		{"Owns", "EB", "syn12"}, {"Owns", "EB", "syn23"}, {"Owns", "EB", "inf13"},
		{"Owns", "EB", "sub"}, {"Owns", "sub", "n4"}, {"Owns", "P", "port"},
		{"SendsTo", "n1", "syn12"}, {"SendsTo", "syn12", "n2"},
		{"SendsTo", "n2", "syn23"}, {"SendsTo", "syn23", "n3"},
		{"SendsTo", "n1", "inf13"}, {"SendsTo", "inf13", "n3"},
	}
	for _, e := range edges {
		_, err := s.AddEdge(e[0], ids[e[1]], ids[e[2]], nil)
		require.NoError(t, err)
	}
	return &fixture{store: s, ids: ids}
}

func (f *fixture) wrap(t *testing.T, names ...string) *Wrapper {
	t.Helper()
	ids := make([]graph.EntityID, len(names))
	for i, n := range names {
		ids[i] = f.ids[n]
	}
	w, err := FromIdentifiers(context.Background(), f.store, ids)
	require.NoError(t, err)
	return w
}

func (f *fixture) class(t *testing.T, class string) *Wrapper {
	t.Helper()
	w, err := FromClass(f.store, class, nil)
	require.NoError(t, err)
	return w
}

// names executes w and returns the "name" attributes of its nodes.
func names(t *testing.T, w *Wrapper) []string {
	t.Helper()
	recs, err := w.Nodes(context.Background())
	require.NoError(t, err)
	out := []string{}
	for _, r := range recs {
		out = append(out, r.Attrs["name"].(string))
	}
	return out
}

func executed(t *testing.T, w *Wrapper) *Wrapper {
	t.Helper()
	require.NoError(t, w.Execute(context.Background(), ExecOptions{}))
	return w
}

func TestFromQuery_RejectsUnknownLanguage(t *testing.T) {
	_, err := FromQuery(memgraph.New(nil), graph.QueryString{Lang: "sql", Text: "select from Neuron"})
	assert.ErrorIs(t, err, errors.ErrUnsupportedQueryLanguage)
}

func TestFromQuery_StoreRejectsOtherDialect(t *testing.T) {
	w, err := FromQuery(memgraph.New(nil), graph.QueryString{Lang: graph.LangCypher, Text: "MATCH (n) RETURN n"})
	require.NoError(t, err)
	err = w.Execute(context.Background(), ExecOptions{})
	assert.ErrorIs(t, err, errors.ErrUnsupportedQueryLanguage)
	assert.False(t, w.Executed())
}

func TestFromIdentifiers_RejectsLogicalIDs(t *testing.T) {
	f := newFixture(t)
	_, err := FromIdentifiers(context.Background(), f.store, []graph.EntityID{f.ids["n1"], "v3"})
	assert.ErrorIs(t, err, errors.ErrPrecondition)
}

func TestFromClass_RejectsUnknownClass(t *testing.T) {
	_, err := FromClass(memgraph.New(nil), "Gadget", nil)
	assert.ErrorIs(t, err, errors.ErrPrecondition)
}

func TestExecute_IsMemoized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.class(t, "Neuron")

	assert.False(t, w.Executed())
	assert.Equal(t, 0, w.Len())
	assert.Equal(t, int64(0), f.store.Reads())

	ids, err := w.NodeIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 4)
	assert.True(t, w.Executed())
	assert.Equal(t, int64(1), f.store.Reads())

	_, err = w.Nodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.store.Reads())

	require.NoError(t, w.Execute(ctx, ExecOptions{Force: true}))
	assert.Equal(t, int64(2), f.store.Reads())

	w.Clear()
	assert.False(t, w.Executed())
	assert.Equal(t, 0, w.Len())
}

func TestExecute_EdgesAreIndependent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := executed(t, f.class(t, "Neuron"))
	reads := f.store.Reads()

	require.NoError(t, w.Execute(ctx, ExecOptions{Edges: true}))
	assert.True(t, w.EdgesExecuted())
	assert.Equal(t, reads+1, f.store.Reads(), "only the edge query runs")

	require.NoError(t, w.Execute(ctx, ExecOptions{Edges: true}))
	assert.Equal(t, reads+1, f.store.Reads())
}

func TestEdges_AreInduced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.wrap(t, "n1", "syn12", "n2")

	edges, err := w.Edges(ctx)
	require.NoError(t, err)
	require.Len(t, edges, 2)
	members := map[graph.EntityID]bool{f.ids["n1"]: true, f.ids["syn12"]: true, f.ids["n2"]: true}
	for _, e := range edges {
		assert.Equal(t, "SendsTo", e.Class)
		assert.True(t, members[e.Out] && members[e.In], "edge %s leaves the node set", e.ID)
	}

	withOwner := f.wrap(t, "EB", "n1", "syn12")
	require.NoError(t, withOwner.Execute(ctx, ExecOptions{Edges: true, EdgeTypes: []string{"Owns"}}))
	ids, err := withOwner.EdgeIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestSetAlgebraLaws(t *testing.T) {
	f := newFixture(t)
	a := executed(t, f.class(t, "Neuron"))
	b := f.wrap(t, "n1", "syn12")
	c := executed(t, f.class(t, "Synapse"))

	must := func(w *Wrapper, err error) *Wrapper {
		t.Helper()
		require.NoError(t, err)
		return w
	}

	assert.True(t, must(a.Union(b)).Equal(must(b.Union(a))), "union commutes")

	ab := must(a.Union(b))
	bc := must(b.Union(c))
	assert.True(t, must(ab.Union(c)).Equal(must(a.Union(bc))), "union associates")

	assert.True(t, must(a.Intersect(a)).Equal(a), "intersect is idempotent")
	assert.Equal(t, 0, must(a.Difference(a)).Len())
	assert.Equal(t, 0, must(a.SymmetricDifference(a)).Len())

	inter := must(a.Intersect(b))
	assert.Equal(t, []string{"n1"}, names(t, inter))
	for _, id := range inter.nodes.IDs() {
		assert.Contains(t, a.nodes, id)
		assert.Contains(t, b.nodes, id)
	}

	assert.ElementsMatch(t, []string{"n2", "n3", "n4"}, names(t, must(a.Difference(b))))
	assert.ElementsMatch(t, []string{"n2", "n3", "n4", "syn12"}, names(t, must(a.SymmetricDifference(b))))
}

func TestCombine_DoesNotMutateOperands(t *testing.T) {
	f := newFixture(t)
	a := executed(t, f.class(t, "Neuron"))
	b := f.wrap(t, "syn12")
	exprA := a.Expression()

	u, err := a.Union(b)
	require.NoError(t, err)
	assert.Equal(t, 5, u.Len())
	assert.Equal(t, 4, a.Len())
	assert.Equal(t, exprA, a.Expression())

	node, ok := u.Expression().(OpNode)
	require.True(t, ok)
	assert.Equal(t, OpUnion, node.Op)
	assert.False(t, u.EdgesExecuted())
}

func TestOperators_RequireExecutedOperands(t *testing.T) {
	f := newFixture(t)
	a := f.class(t, "Neuron")
	b := f.wrap(t, "n1")

	_, err := a.Union(b)
	assert.ErrorIs(t, err, errors.ErrPrecondition)
	_, err = b.Intersect(a)
	assert.ErrorIs(t, err, errors.ErrPrecondition)
	assert.ErrorIs(t, b.Update(OpDifference, a), errors.ErrPrecondition)
	assert.ErrorIs(t, b.Update("merge", b), errors.ErrPrecondition)
	assert.Equal(t, int64(1), f.store.Reads(), "operators never execute operands")
}

func TestEqual_NeedsExecution(t *testing.T) {
	f := newFixture(t)
	a := f.class(t, "Neuron")
	b := f.class(t, "Neuron")
	assert.False(t, a.Equal(b))

	executed(t, a)
	executed(t, b)
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(f.wrap(t, "n1")))
}

func TestUpdate_InPlace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.wrap(t, "n1", "syn12")
	require.NoError(t, w.Execute(ctx, ExecOptions{Edges: true}))

	require.NoError(t, w.Update(OpUnion, f.wrap(t, "n2")))
	assert.ElementsMatch(t, []string{"n1", "n2", "syn12"}, names(t, w))
	assert.False(t, w.EdgesExecuted())

	require.NoError(t, w.Update(OpSymmetricDifference, f.wrap(t, "n2", "n3")))
	assert.ElementsMatch(t, []string{"n1", "n3", "syn12"}, names(t, w))
}

func TestEvaluate_OpNode(t *testing.T) {
	f := newFixture(t)
	neurons := f.class(t, "Neuron")
	one := f.wrap(t, "n1")

	set, err := Evaluate(context.Background(), f.store, OpNode{Op: OpDifference, Left: neurons.Expression(), Right: one.Expression()})
	require.NoError(t, err)
	assert.Len(t, set, 3)
	assert.NotContains(t, set, f.ids["n1"])

	_, err = Evaluate(context.Background(), f.store, OpNode{Op: "merge", Left: neurons.Expression(), Right: one.Expression()})
	assert.ErrorIs(t, err, errors.ErrPrecondition)
}

func TestCombine_UnionRightWins(t *testing.T) {
	left := graph.RecordSet{"#1:0": {ID: "#1:0", Attrs: map[string]any{"v": 1}}}
	right := graph.RecordSet{"#1:0": {ID: "#1:0", Attrs: map[string]any{"v": 2}}}
	assert.Equal(t, 2, Combine(OpUnion, left, right)["#1:0"].Attrs["v"])
}

func TestEmpty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w, err := Empty(f.store)
	require.NoError(t, err)
	assert.True(t, w.Executed())
	assert.Equal(t, 0, w.Len())

	owned, err := w.Owns(ctx, 1, graph.Filter{})
	require.NoError(t, err)
	assert.True(t, owned.Executed())
	assert.Equal(t, 0, owned.Len())
	assert.Equal(t, int64(0), f.store.Reads())
}
