package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptValidate(t *testing.T) {
	var ok Script
	ok.Add(CreateVertex{Var: "a", Class: "Neuron"})
	ok.Add(CreateVertex{Var: "b", Class: "Neuron"})
	ok.Add(CreateEdge{Var: "e", Class: "SendsTo", Out: VarRef("a"), In: VarRef("b")})
	ok.Return = []string{"a", "b", "e"}
	require.NoError(t, ok.Validate())
	assert.Equal(t, 3, ok.Len())

	tests := []struct {
		name   string
		script Script
	}{
		{"use before bind", Script{Statements: []Statement{CreateEdge{Class: "Owns", Out: VarRef("x"), In: IDRef("#1:0")}}}},
		{"double bind", Script{Statements: []Statement{CreateVertex{Var: "a", Class: "Node"}, CreateVertex{Var: "a", Class: "Node"}}}},
		{"missing class", Script{Statements: []Statement{CreateVertex{Var: "a"}}}},
		{"empty reference", Script{Statements: []Statement{CreateEdge{Class: "Owns", Out: Ref{}, In: IDRef("#1:0")}}}},
		{"unbound return", Script{Statements: []Statement{DeleteVertex{ID: "#1:0"}}, Return: []string{"a"}}},
		{"unset unique attribute", Script{Statements: []Statement{CreateVertex{Class: "QueryResult", Props: map[string]any{"tag": nil}, Unique: []string{"tag"}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.script.Validate())
		})
	}
}

func TestRecordHelpers(t *testing.T) {
	r := Record{ID: "#1:0", Class: "Neuron", Attrs: map[string]any{"name": "a", "_class": "Neuron"}}
	assert.False(t, r.IsEdge())
	assert.Equal(t, map[string]any{"name": "a"}, r.PublicAttrs())

	e := Record{ID: "#9:0", Class: "Owns", Out: "#1:0", In: "#1:1"}
	assert.True(t, e.IsEdge())

	rs := NewRecordSet([]Record{e, r})
	assert.Equal(t, []EntityID{"#1:0", "#9:0"}, rs.IDs())
}
