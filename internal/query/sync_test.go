package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruitflybrain/neuroarch/internal/apply"
	"github.com/fruitflybrain/neuroarch/internal/errors"
	"github.com/fruitflybrain/neuroarch/internal/graph"
	"github.com/fruitflybrain/neuroarch/internal/table"
)

// editedNeurons renames n1, drops n4 and adds "fresh" with an edge to n2.
func editedNeurons(t *testing.T, f *fixture, w *Wrapper) (*table.Table, *table.Table) {
	t.Helper()
	old, _, err := w.Tables(context.Background(), TableOptions{ForceID: true})
	require.NoError(t, err)

	nodes := table.New(old.Columns...)
	for _, r := range old.Rows {
		switch graph.EntityID(r.Key) {
		case f.ids["n4"]:
			continue
		case f.ids["n1"]:
			values := map[string]any{}
			for k, v := range r.Values {
				values[k] = v
			}
			values["name"] = "n1-renamed"
			nodes.Append(r.Key, values)
		default:
			nodes.Append(r.Key, r.Values)
		}
	}
	nodes.Append("fresh", map[string]any{table.ColumnClass: "Neuron", "name": "fresh"})

	edges := table.New(table.ColumnClass, table.ColumnOut, table.ColumnIn)
	edges.Append("e0", map[string]any{
		table.ColumnClass: "SendsTo",
		table.ColumnOut:   "fresh",
		table.ColumnIn:    string(f.ids["n2"]),
	})
	return nodes, edges
}

func TestDiffSave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.class(t, "Neuron")
	engine, err := apply.NewEngine(f.store, nil)
	require.NoError(t, err)

	newNodes, newEdges := editedNeurons(t, f, w)
	out, res, err := w.DiffSave(ctx, engine, newNodes, newEdges, false)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Nodes.Complete())
	assert.True(t, res.Edges.Complete())

	assert.True(t, out.Executed())
	assert.ElementsMatch(t, []string{"n1-renamed", "fresh"}, names(t, out))

	freshID, ok := res.Nodes.IDs["fresh"]
	require.True(t, ok)
	nodes, edges := f.store.Snapshot()
	_, n4 := nodes[f.ids["n4"]]
	assert.False(t, n4)
	assert.Equal(t, "n1-renamed", nodes[f.ids["n1"]].Attrs["name"])

	found := false
	for _, e := range edges {
		if e.Class == "SendsTo" && e.Out == freshID && e.In == f.ids["n2"] {
			found = true
		}
	}
	assert.True(t, found, "edge from the new node was created")
	require.Len(t, res.Edges.Edges, 1)
	assert.Equal(t, freshID, res.Edges.Edges[0].Out)
}

func TestDiffSave_NoChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.class(t, "Neuron")
	engine, err := apply.NewEngine(f.store, nil)
	require.NoError(t, err)

	nodes, edges, err := w.Tables(ctx, TableOptions{ForceID: true})
	require.NoError(t, err)
	out, res, err := w.DiffSave(ctx, engine, nodes, edges, false)
	require.NoError(t, err)
	assert.Equal(t, 0, out.Len())
	assert.Empty(t, res.Nodes.Chunks)
	assert.Equal(t, int64(0), f.store.Transactions())
}

func TestDiffSave_ReportsPartialProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.class(t, "Neuron")
	engine, err := apply.NewEngine(f.store, nil)
	require.NoError(t, err)
	newNodes, newEdges := editedNeurons(t, f, w)

	calls := 0
	f.store.SetFailureHook(func(graph.Script, int) error {
		calls++
		if calls == 2 {
			return errors.NotFoundErrorf("node vanished")
		}
		return nil
	})

	out, res, err := w.DiffSave(ctx, engine, newNodes, newEdges, false)
	assert.ErrorIs(t, err, errors.ErrNotFound)
	assert.Nil(t, out)
	require.NotNil(t, res)
	require.Len(t, res.Nodes.Chunks, 1)
	assert.Equal(t, apply.PhaseMod, res.Nodes.Chunks[0].Phase)
	require.NotNil(t, res.Nodes.Failed)
	assert.Equal(t, apply.PhaseAdd, res.Nodes.Failed.Phase)
	assert.Nil(t, res.Edges)
}

func TestAffected(t *testing.T) {
	assert.Nil(t, Affected(nil))
	r := &apply.Report{
		Modified: []string{"#2:1"},
		IDs:      map[string]graph.EntityID{"fresh": "#2:9", "other": "#2:5"},
	}
	assert.Equal(t, []graph.EntityID{"#2:1", "#2:5", "#2:9"}, Affected(r))
}
