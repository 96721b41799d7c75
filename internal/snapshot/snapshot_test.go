package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruitflybrain/neuroarch/internal/graph"
)

func records() (graph.RecordSet, graph.RecordSet) {
	nodes := graph.NewRecordSet([]graph.Record{
		{ID: "#1:0", Class: "Neuron", Attrs: map[string]any{"id": "n1", "name": "EB-1", "_class": "Neuron"}},
		{ID: "#1:1", Class: "Neuron", Attrs: map[string]any{"name": "EB-2"}},
	})
	edges := graph.NewRecordSet([]graph.Record{
		{ID: "#5:0", Class: "SendsTo", Out: "#1:0", In: "#1:1", Attrs: map[string]any{"N": 3}},
		{ID: "#5:1", Class: "SendsTo", Out: "#1:0", In: "#1:1", Attrs: map[string]any{"N": 4}},
		{ID: "#5:2", Class: "SendsTo", Out: "#1:0", In: "#9:9"},
	})
	return nodes, edges
}

func TestTables(t *testing.T) {
	nodes, edges := records()
	nt, et := Tables(nodes, edges, Options{})

	assert.Equal(t, []string{"n1", "#1:1"}, nt.Keys())
	row, ok := nt.Lookup("n1")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"name": "EB-1", "class": "Neuron"}, row.Values)
	assert.False(t, nt.HasColumn("id"))

	require.Equal(t, 2, et.Len())
	e, ok := et.Lookup("#5:0")
	require.True(t, ok)
	assert.Equal(t, "n1", e.Values["out"])
	assert.Equal(t, "#1:1", e.Values["in"])
	assert.Equal(t, "SendsTo", e.Values["class"])
}

func TestTablesForceID(t *testing.T) {
	nodes, edges := records()
	nt, et := Tables(nodes, edges, Options{ForceID: true})

	assert.Equal(t, []string{"#1:0", "#1:1"}, nt.Keys())
	row, _ := nt.Lookup("#1:0")
	assert.Equal(t, "n1", row.Values["id"])

	e, _ := et.Lookup("#5:1")
	assert.Equal(t, "#1:0", e.Values["out"])
}

func TestGraphKeepsParallelEdges(t *testing.T) {
	nodes, edges := records()
	g := Graph(nodes, edges, Options{})

	assert.Equal(t, []string{"#1:1", "n1"}, g.NodeKeys())
	assert.Equal(t, 2, g.NumEdgesBetween("n1", "#1:1"))
	assert.Len(t, g.OutEdges("n1"), 2)
	assert.Len(t, g.InEdges("#1:1"), 2)
	assert.Equal(t, "Neuron", g.Nodes["n1"]["class"])
	assert.Equal(t, 4, g.OutEdges("n1")[1].Attrs["N"])
}
