package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruitflybrain/neuroarch/internal/errors"
	"github.com/fruitflybrain/neuroarch/internal/graph"
)

func TestOwns_ExactLevels(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	eb := f.wrap(t, "EB")

	tests := []struct {
		name   string
		levels int
		filter graph.Filter
		want   []string
	}{
		{"one level", 1, graph.Filter{}, []string{"n1", "n2", "n3", "syn12", "syn23", "inf13", "sub"}},
		{"two levels", 2, graph.Filter{}, []string{"n4"}},
		{"filtered", 1, graph.Classes("Neuron"), []string{"n1", "n2", "n3"}},
		{"instance of", 1, graph.InstanceOf("SynapseModel"), []string{"syn12", "syn23", "inf13"}},
		{"attribute", 1, graph.Filter{Where: graph.Predicates{"N": graph.Cmp(">", 4)}}, []string{"syn12", "syn23"}},
		{"too deep", 3, graph.Filter{}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := eb.Owns(ctx, tt.levels, tt.filter)
			require.NoError(t, err)
			assert.False(t, w.Executed())
			assert.ElementsMatch(t, tt.want, names(t, w))
		})
	}
}

func TestOwnedBy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	up, err := f.wrap(t, "n4").OwnedBy(ctx, 1, graph.Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"sub"}, names(t, up))

	up, err = f.wrap(t, "n4").OwnedBy(ctx, 2, graph.Classes("LPU"))
	require.NoError(t, err)
	assert.Equal(t, []string{"EB"}, names(t, up))
}

func TestOwns_Preconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	eb := f.wrap(t, "EB")

	_, err := eb.Owns(ctx, 0, graph.Filter{})
	assert.ErrorIs(t, err, errors.ErrPrecondition)
	_, err = eb.Owns(ctx, 1, graph.Classes("Gadget"))
	assert.ErrorIs(t, err, errors.ErrPrecondition)
	_, err = eb.OwnedBy(ctx, 1, graph.Filter{Types: &graph.TypeFilter{Classes: []string{"LPU"}, InstanceOf: "Circuit"}})
	assert.ErrorIs(t, err, errors.ErrPrecondition)
}

func TestTraverseOwns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	eb := f.wrap(t, "EB")

	all, err := eb.TraverseOwns(ctx, 0, graph.Classes("Neuron"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"n1", "n2", "n3", "n4"}, names(t, all))

	shallow, err := eb.TraverseOwns(ctx, 1, graph.Classes("Neuron"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"n1", "n2", "n3"}, names(t, shallow))

	withStart, err := eb.TraverseOwns(ctx, 1, graph.InstanceOf("Circuit"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"EB", "sub"}, names(t, withStart), "the start set is depth 0")

	top, err := f.wrap(t, "n4").TraverseOwnedBy(ctx, 0, graph.Classes("LPU"))
	require.NoError(t, err)
	assert.Equal(t, []string{"EB"}, names(t, top))

	_, err = eb.TraverseOwns(ctx, -1, graph.Filter{})
	assert.ErrorIs(t, err, errors.ErrPrecondition)
}

func TestGenTraversal_Depths(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	n1 := f.wrap(t, "n1")
	hop := Follow("SendsTo")

	tests := []struct {
		name   string
		stages []Stage
		opts   []DepthOption
		want   []string
	}{
		{"one stage", []Stage{hop}, nil, []string{"syn12", "inf13"}},
		{"two stages", []Stage{hop, hop}, nil, []string{"syn12", "inf13", "n2", "n3"}},
		{"exactly two", []Stage{hop, hop}, []DepthOption{MinDepth(2)}, []string{"n2", "n3"}},
		{"identity", []Stage{hop}, []DepthOption{MinDepth(0), MaxDepth(1)}, []string{"n1"}},
		{"empty range", []Stage{hop}, []DepthOption{MinDepth(1), MaxDepth(1)}, []string{}},
		{"classes", []Stage{hop.Classes("Synapse"), hop}, nil, []string{"syn12", "n2"}},
		{"instance of", []Stage{hop.InstanceOf("SynapseModel"), hop.InstanceOf("Neuron")}, []DepthOption{MinDepth(2)}, []string{"n2", "n3"}},
		{"predicate", []Stage{hop.Where("N", graph.Cmp("<", 4))}, nil, []string{"inf13"}},
		{"regex", []Stage{hop.Where("name", graph.Regex("syn.*"))}, nil, []string{"syn12"}},
		{"four stages", []Stage{hop, hop, hop, hop}, []DepthOption{MinDepth(4)}, []string{"n3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := n1.GenTraversalOut(ctx, tt.stages, tt.opts...)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, names(t, w))
		})
	}
}

func TestGenTraversalIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	w, err := f.wrap(t, "n3").GenTraversalIn(ctx, []Stage{Follow("SendsTo"), Follow("SendsTo")}, MinDepth(2))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"n1", "n2"}, names(t, w))
}

func TestGenTraversal_Preconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	n1 := f.wrap(t, "n1")

	tests := []struct {
		name   string
		stages []Stage
		opts   []DepthOption
	}{
		{"no stages", nil, nil},
		{"unknown relation", []Stage{Follow("Likes")}, nil},
		{"unknown class", []Stage{Follow("SendsTo").Classes("Gadget")}, nil},
		{"unknown supertype", []Stage{Follow("SendsTo").InstanceOf("Gadget")}, nil},
		{"classes and instanceof", []Stage{Follow("SendsTo").Classes("Synapse").InstanceOf("SynapseModel")}, nil},
		{"bad comparator", []Stage{Follow("SendsTo").Where("N", graph.Cmp("!=", 1))}, nil},
		{"max too deep", []Stage{Follow("SendsTo")}, []DepthOption{MaxDepth(3)}},
		{"min above max", []Stage{Follow("SendsTo")}, []DepthOption{MinDepth(2), MaxDepth(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n1.GenTraversalOut(ctx, tt.stages, tt.opts...)
			assert.ErrorIs(t, err, errors.ErrPrecondition)
		})
	}
}

func TestStage_BuilderCopies(t *testing.T) {
	base := Follow("SendsTo").Where("N", graph.Cmp(">", 1))
	narrowed := base.Where("NHP", graph.Cmp(">", 0)).Classes("Synapse")

	assert.Len(t, base.where, 1)
	assert.Len(t, narrowed.where, 2)
	assert.Empty(t, base.classes)
	assert.Equal(t, "SendsTo", narrowed.Relation())
	assert.Contains(t, narrowed.String(), "[Synapse]")
}

func TestParseStage(t *testing.T) {
	st, err := ParseStage("SendsTo")
	require.NoError(t, err)
	assert.Equal(t, Follow("SendsTo"), st)

	st, err = ParseStage("SendsTo:Synapse,InferredSynapse")
	require.NoError(t, err)
	assert.Equal(t, []string{"Synapse", "InferredSynapse"}, st.classes)

	st, err = ParseStage("SendsTo:instanceof=Neuron")
	require.NoError(t, err)
	assert.Equal(t, "Neuron", st.instanceOf)

	_, err = ParseStage(":Neuron")
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestTopLevelOwners(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.wrap(t, "n1", "n4", "port")

	groups, err := w.TopLevelOwners(ctx)
	require.NoError(t, err)
	require.Contains(t, groups, "LPU")
	require.Contains(t, groups, "Pattern")

	eb := groups["LPU"]["EB"]
	require.NotNil(t, eb)
	assert.False(t, eb.Executed())
	assert.ElementsMatch(t, []string{"n1", "n4"}, names(t, eb))

	p := groups["Pattern"]["P"]
	require.NotNil(t, p)
	assert.Equal(t, []string{"port"}, names(t, p))

	assert.Len(t, groups["LPU"], 1)
}

func TestHas(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	set := f.wrap(t, "EB", "n1", "n2", "syn12")

	neurons, err := set.Has(ctx, graph.Classes("Neuron"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"n1", "n2"}, names(t, neurons))

	one, err := set.Has(ctx, graph.Filter{Where: graph.Predicates{"name": graph.Eq("n2")}})
	require.NoError(t, err)
	assert.Equal(t, []string{"n2"}, names(t, one))

	syn, err := set.Has(ctx, graph.Filter{
		Types: &graph.TypeFilter{InstanceOf: "Synapse"},
		Where: graph.Predicates{"N": graph.Eq(5)},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"syn12"}, names(t, syn))

	none, err := neurons.Has(ctx, graph.Classes("LPU"))
	require.NoError(t, err)
	assert.Empty(t, names(t, none))

	_, err = set.Has(ctx, graph.Classes("Gadget"))
	assert.ErrorIs(t, err, errors.ErrPrecondition)
}
