package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGremlinRenderPlans(t *testing.T) {
	d := NewGremlinDialect(DefaultSchema())

	tests := []struct {
		name string
		plan Plan
		want string
	}{
		{
			name: "select with predicates",
			plan: Plan{Kind: PlanSelect, Start: []EntityID{"#1:0"}, Filter: Filter{Where: Predicates{"name": Eq("EB"), "w": Cmp(">", 2)}}},
			want: "g.V('#1:0').has('name', 'EB').has('w', gt(2)).dedup()",
		},
		{
			name: "match instance of expands subclasses",
			plan: Plan{Kind: PlanMatch, Filter: InstanceOf("SynapseModel")},
			want: "g.V().hasLabel('InferredSynapse', 'Synapse', 'SynapseModel')",
		},
		{
			name: "hops union per depth",
			plan: Plan{
				Kind:     PlanHops,
				Start:    []EntityID{"#1:0"},
				Stages:   []Stage{{Relation: "Owns", Direction: DirOut}, {Relation: "Owns", Direction: DirOut, Filter: Classes("Neuron")}},
				MinDepth: 2,
				MaxDepth: 3,
			},
			want: "g.V('#1:0').union(__.out('Owns').out('Owns').hasLabel('Neuron')).dedup()",
		},
		{
			name: "walk emits start",
			plan: Plan{Kind: PlanWalk, Start: []EntityID{"#1:0"}, Relation: "Owns", Direction: DirIn, MaxLevels: 3},
			want: "g.V('#1:0').emit().repeat(__.in('Owns')).times(3).dedup()",
		},
		{
			name: "empty start",
			plan: Plan{Kind: PlanSelect},
			want: "g.V().limit(0).dedup()",
		},
		{
			name: "membership and regex",
			plan: Plan{Kind: PlanMatch, Filter: Filter{Where: Predicates{"a": In("x", 1), "b": Regex("it's.*")}}},
			want: `g.V().has('a', within('x', 1)).has('b', regex('it\'s.*'))`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := d.RenderPlan(tt.plan)
			require.NoError(t, err)
			assert.Equal(t, LangGremlin, q.Lang)
			assert.Equal(t, tt.want, q.Text)
		})
	}
}

func TestDialectFor(t *testing.T) {
	for _, lang := range KnownLanguages {
		d, err := DialectFor(lang, nil)
		require.NoError(t, err)
		assert.Equal(t, lang, d.Language())
	}

	_, err := DialectFor("sparql", nil)
	require.Error(t, err)

	_, err = ParseLanguage("sql")
	require.Error(t, err)
}

func TestPlanDialectRoundTrip(t *testing.T) {
	p := Plan{
		Kind:      PlanWalk,
		Start:     []EntityID{"#1:0"},
		Relation:  "Owns",
		Direction: DirOut,
		Filter:    Filter{Where: Predicates{"name": Regex("EB.*")}},
	}
	q, err := PlanDialect{}.RenderPlan(p)
	require.NoError(t, err)
	assert.Equal(t, LangPlan, q.Lang)

	decoded, err := DecodePlan(q.Text)
	require.NoError(t, err)
	assert.Equal(t, p, decoded)
}
