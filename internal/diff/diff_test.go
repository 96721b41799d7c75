package diff

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruitflybrain/neuroarch/internal/errors"
	"github.com/fruitflybrain/neuroarch/internal/table"
)

type row struct {
	key    string
	values map[string]any
}

func build(cols []string, rows ...row) *table.Table {
	t := table.New(cols...)
	for _, r := range rows {
		t.Append(r.key, r.values)
	}
	return t
}

func ab(key string, a, b int64) row {
	return row{key, map[string]any{"a": a, "b": b}}
}

type entries = map[string]map[string]any

func keys(ks ...string) KeySet {
	s := KeySet{}
	s.Add(ks...)
	return s
}

func base() *table.Table {
	return build([]string{"a", "b"}, ab("w", 1, 4), ab("x", 2, 5), ab("y", 3, 6))
}

func TestNodesFullReplace(t *testing.T) {
	tests := []struct {
		name string
		old  *table.Table
		new  *table.Table
		add  entries
		mod  entries
		del  KeySet
	}{
		{
			name: "mod row",
			old:  base(),
			new:  build([]string{"a", "b"}, ab("w", 1, 4), ab("x", 2, 5), ab("y", 9, 6)),
			mod:  entries{"y": {"a": int64(9), "b": int64(6)}},
		},
		{
			name: "add row",
			old:  base(),
			new:  build([]string{"a", "b"}, ab("w", 1, 4), ab("x", 2, 5), ab("y", 3, 6), ab("z", 4, 7)),
			add:  entries{"z": {"a": int64(4), "b": int64(7)}},
		},
		{
			name: "del row",
			old:  base(),
			new:  build([]string{"a", "b"}, ab("w", 1, 4), ab("y", 3, 6)),
			del:  keys("x"),
		},
		{
			name: "ren row",
			old:  base(),
			new:  build([]string{"a", "b"}, ab("w", 1, 4), ab("x", 2, 5), ab("z", 3, 6)),
			add:  entries{"z": {"a": int64(3), "b": int64(6)}},
			del:  keys("y"),
		},
		{
			name: "add col",
			old:  base(),
			new: build([]string{"a", "b", "c"},
				row{"w", map[string]any{"a": int64(1), "b": int64(4), "c": "p"}},
				row{"x", map[string]any{"a": int64(2), "b": int64(5), "c": "q"}},
				row{"y", map[string]any{"a": int64(3), "b": int64(6), "c": "r"}}),
			mod: entries{
				"w": {"a": int64(1), "b": int64(4), "c": "p"},
				"x": {"a": int64(2), "b": int64(5), "c": "q"},
				"y": {"a": int64(3), "b": int64(6), "c": "r"},
			},
		},
		{
			name: "del col",
			old:  base(),
			new: build([]string{"a"},
				row{"w", map[string]any{"a": int64(1)}},
				row{"x", map[string]any{"a": int64(2)}},
				row{"y", map[string]any{"a": int64(3)}}),
			mod: entries{
				"w": {"a": int64(1), "b": nil},
				"x": {"a": int64(2), "b": nil},
				"y": {"a": int64(3), "b": nil},
			},
		},
		{
			name: "ren col",
			old:  base(),
			new: build([]string{"a", "c"},
				row{"w", map[string]any{"a": int64(1), "c": int64(4)}},
				row{"x", map[string]any{"a": int64(2), "c": int64(5)}},
				row{"y", map[string]any{"a": int64(3), "c": int64(6)}}),
			mod: entries{
				"w": {"a": int64(1), "b": nil, "c": int64(4)},
				"x": {"a": int64(2), "b": nil, "c": int64(5)},
				"y": {"a": int64(3), "b": nil, "c": int64(6)},
			},
		},
		{
			name: "mod row del row",
			old:  base(),
			new:  build([]string{"a", "b"}, ab("w", 1, 4), ab("y", 9, 6)),
			mod:  entries{"y": {"a": int64(9), "b": int64(6)}},
			del:  keys("x"),
		},
		{
			name: "mod row ren row",
			old:  base(),
			new:  build([]string{"a", "b"}, ab("w", 1, 4), ab("x", 9, 5), ab("z", 3, 6)),
			add:  entries{"z": {"a": int64(3), "b": int64(6)}},
			mod:  entries{"x": {"a": int64(9), "b": int64(5)}},
			del:  keys("y"),
		},
		{
			name: "del row del col",
			old: build([]string{"a", "b", "c"},
				row{"w", map[string]any{"a": int64(1), "b": int64(4), "c": int64(7)}},
				row{"x", map[string]any{"a": int64(2), "b": int64(5), "c": int64(8)}},
				row{"y", map[string]any{"a": int64(3), "b": int64(6), "c": int64(9)}}),
			new: build([]string{"a", "b"}, ab("w", 1, 4), ab("y", 3, 6)),
			mod: entries{
				"w": {"a": int64(1), "b": int64(4), "c": nil},
				"y": {"a": int64(3), "b": int64(6), "c": nil},
			},
			del: keys("x"),
		},
		{
			name: "ren row add col",
			old:  base(),
			new: build([]string{"a", "b", "c"},
				row{"w", map[string]any{"a": int64(1), "b": int64(4), "c": int64(7)}},
				row{"x", map[string]any{"a": int64(2), "b": int64(5), "c": int64(8)}},
				row{"z", map[string]any{"a": int64(3), "b": int64(6), "c": int64(9)}}),
			add: entries{"z": {"a": int64(3), "b": int64(6), "c": int64(9)}},
			mod: entries{
				"w": {"a": int64(1), "b": int64(4), "c": int64(7)},
				"x": {"a": int64(2), "b": int64(5), "c": int64(8)},
			},
			del: keys("y"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs, err := Nodes(tt.old, tt.new, true)
			require.NoError(t, err)

			want := New()
			if tt.add != nil {
				want.Add = tt.add
			}
			if tt.mod != nil {
				want.Mod = tt.mod
			}
			if tt.del != nil {
				want.Del = tt.del
			}
			assert.Equal(t, want.Add, cs.Add)
			assert.Equal(t, want.Mod, cs.Mod)
			assert.Equal(t, want.Del, cs.Del)
			assert.NoError(t, cs.Validate())
		})
	}
}

func TestNodesChangedCellsOnly(t *testing.T) {
	t.Run("mod row", func(t *testing.T) {
		cs, err := Nodes(base(), build([]string{"a", "b"}, ab("w", 1, 4), ab("x", 2, 5), ab("y", 9, 6)), false)
		require.NoError(t, err)
		assert.Equal(t, entries{"y": {"a": int64(9)}}, cs.Mod)
	})

	t.Run("add col", func(t *testing.T) {
		n := base().Clone()
		n.Columns = append(n.Columns, "c")
		n.Rows[0].Values["c"] = "p"
		n.Rows[1].Values["c"] = "q"
		cs, err := Nodes(base(), n, false)
		require.NoError(t, err)
		assert.Equal(t, entries{"w": {"c": "p"}, "x": {"c": "q"}}, cs.Mod)
	})

	t.Run("del col keeps remaining columns", func(t *testing.T) {
		n := build([]string{"a"}, row{"w", map[string]any{"a": int64(1)}}, row{"x", map[string]any{"a": int64(2)}})
		cs, err := Nodes(base(), n, false)
		require.NoError(t, err)
		assert.Equal(t, entries{
			"w": {"a": int64(1), "b": nil},
			"x": {"a": int64(2), "b": nil},
		}, cs.Mod)
		assert.Equal(t, keys("y"), cs.Del)
	})

	t.Run("cleared cell", func(t *testing.T) {
		n := base().Clone()
		delete(n.Rows[1].Values, "b")
		cs, err := Nodes(base(), n, false)
		require.NoError(t, err)
		assert.Equal(t, entries{"x": {"b": nil}}, cs.Mod)
	})

	t.Run("numeric equality", func(t *testing.T) {
		n := base().Clone()
		n.Rows[0].Values["a"] = 1.0
		cs, err := Nodes(base(), n, false)
		require.NoError(t, err)
		assert.True(t, cs.Empty())
	})
}

func TestNodesIdentical(t *testing.T) {
	for _, full := range []bool{false, true} {
		cs, err := Nodes(base(), base(), full)
		require.NoError(t, err)
		assert.True(t, cs.Empty())
	}
}

func TestNodesReorderedRowsAreCompared(t *testing.T) {
	n := build([]string{"a", "b"}, ab("y", 7, 6), ab("w", 1, 4), ab("x", 2, 5))
	cs, err := Nodes(base(), n, false)
	require.NoError(t, err)
	assert.Empty(t, cs.Add)
	assert.Empty(t, cs.Del)
	assert.Equal(t, entries{"y": {"a": int64(7)}}, cs.Mod)
}

func TestNodesRenames(t *testing.T) {
	t.Run("equal content is recorded", func(t *testing.T) {
		n := build([]string{"a", "b"}, ab("w", 1, 4), ab("x", 2, 5), ab("z", 3, 6))
		cs, err := Nodes(base(), n, false)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"y": "z"}, cs.Renames)
		assert.Contains(t, cs.Add, "z")
		assert.True(t, cs.Del.Has("y"))
	})

	t.Run("different content is plain del and add", func(t *testing.T) {
		n := build([]string{"a", "b"}, ab("w", 1, 4), ab("x", 2, 5), ab("z", 8, 8))
		cs, err := Nodes(base(), n, false)
		require.NoError(t, err)
		assert.Nil(t, cs.Renames)
		assert.Equal(t, entries{"z": {"a": int64(8), "b": int64(8)}}, cs.Add)
		assert.True(t, cs.Del.Has("y"))
	})
}

func TestNodesEmptyTables(t *testing.T) {
	cs, err := Nodes(nil, base(), false)
	require.NoError(t, err)
	assert.Len(t, cs.Add, 3)

	cs, err = Nodes(base(), nil, false)
	require.NoError(t, err)
	assert.Equal(t, keys("w", "x", "y"), cs.Del)
}

func TestNodesRejectsDuplicateKeys(t *testing.T) {
	bad := base()
	bad.Append("w", map[string]any{"a": int64(0)})
	_, err := Nodes(bad, base(), false)
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func edgeRow(key, out, class, in string, n int64) row {
	return row{key, map[string]any{"out": out, "class": class, "in": in, "N": n}}
}

var edgeCols = []string{"class", "out", "in", "N"}

func TestEdges(t *testing.T) {
	old := build(edgeCols,
		edgeRow("#5:0", "#1:0", "SendsTo", "#1:1", 3),
		edgeRow("#5:1", "#1:1", "SendsTo", "#1:2", 1),
	)
	new := build(edgeCols,
		edgeRow("e0", "#1:0", "SendsTo", "#1:1", 4),
		edgeRow("e1", "#1:0", "Owns", "#1:1", 1),
		edgeRow("e2", "#1:0", "Owns", "#1:1", 1),
	)

	cs, err := Edges(old, new, false)
	require.NoError(t, err)
	assert.Equal(t, entries{"#1:0 SendsTo #1:1": {"N": int64(4)}}, cs.Mod)
	assert.Equal(t, entries{"#1:0 Owns #1:1": {"out": "#1:0", "class": "Owns", "in": "#1:1", "N": int64(1)}}, cs.Add)
	assert.Equal(t, keys("#1:1 SendsTo #1:2"), cs.Del)
}

func TestEdgesRejectsBadRows(t *testing.T) {
	t.Run("conflicting duplicate", func(t *testing.T) {
		bad := build(edgeCols, edgeRow("e0", "a", "SendsTo", "b", 1), edgeRow("e1", "a", "SendsTo", "b", 2))
		_, err := Edges(nil, bad, false)
		assert.ErrorIs(t, err, errors.ErrValidation)
	})

	t.Run("whitespace in endpoint", func(t *testing.T) {
		bad := build(edgeCols, edgeRow("e0", "a b", "SendsTo", "c", 1))
		_, err := Edges(bad, nil, false)
		assert.ErrorIs(t, err, errors.ErrValidation)
	})

	t.Run("missing class", func(t *testing.T) {
		bad := build([]string{"out", "in"}, row{"e0", map[string]any{"out": "a", "in": "b"}})
		_, err := Edges(nil, bad, false)
		assert.ErrorIs(t, err, errors.ErrValidation)
	})
}

func TestParseEdgeKey(t *testing.T) {
	k, err := ParseEdgeKey("#1:0 SendsTo #1:1")
	require.NoError(t, err)
	assert.Equal(t, EdgeKey{Out: "#1:0", Class: "SendsTo", In: "#1:1"}, k)
	assert.Equal(t, "#1:0 SendsTo #1:1", k.String())

	_, err = ParseEdgeKey("#1:0 SendsTo")
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestGraphFiltersEdgesOfDeletedNodes(t *testing.T) {
	oldNodes := build([]string{"class"},
		row{"#1:0", map[string]any{"class": "Neuron"}},
		row{"#1:1", map[string]any{"class": "Neuron"}},
		row{"#1:2", map[string]any{"class": "Neuron"}},
	)
	newNodes := build([]string{"class"},
		row{"#1:0", map[string]any{"class": "Neuron"}},
		row{"#1:1", map[string]any{"class": "Neuron"}},
	)
	oldEdges := build(edgeCols,
		edgeRow("#5:0", "#1:0", "SendsTo", "#1:1", 3),
		edgeRow("#5:1", "#1:1", "SendsTo", "#1:2", 1),
	)
	newEdges := build(edgeCols,
		edgeRow("#5:0", "#1:0", "SendsTo", "#1:1", 3),
	)

	res, err := Graph(oldNodes, oldEdges, newNodes, newEdges, false)
	require.NoError(t, err)
	assert.Equal(t, keys("#1:2"), res.Nodes.Del)
	assert.True(t, res.Edges.Empty(), "edge of deleted node must not be diffed: %+v", res.Edges)
}

func TestChangeSetYAML(t *testing.T) {
	cs := New()
	cs.Add["z"] = map[string]any{"a": int64(1), "tags": []any{"x"}}
	cs.Mod["#1:0"] = map[string]any{"b": nil, "c": 2.5}
	cs.Del.Add("#1:2", "#1:1")

	var buf bytes.Buffer
	require.NoError(t, cs.WriteYAML(&buf))
	out := buf.String()
	assert.Less(t, strings.Index(out, "#1:1"), strings.Index(out, "#1:2"), "del keys are sorted")

	back, err := ReadYAML(&buf)
	require.NoError(t, err)
	assert.Equal(t, cs.Add, back.Add)
	assert.Equal(t, cs.Mod, back.Mod)
	assert.Equal(t, cs.Del, back.Del)
	assert.Equal(t, Counts{Add: 1, Mod: 1, Del: 2}, back.Counts())
}

func TestChangeSetValidate(t *testing.T) {
	cs := New()
	cs.Add["k"] = map[string]any{}
	cs.Del.Add("k")
	assert.ErrorIs(t, cs.Validate(), errors.ErrValidation)
}

func TestAlign(t *testing.T) {
	got := align([]string{"a", "b", "c", "d"}, []string{"b", "a", "c", "e", "d"})
	require.Len(t, got, 3)
	assert.Equal(t, pair{2, 2}, got[1])
	assert.Equal(t, pair{3, 4}, got[2])
	assert.Nil(t, align([]string{"a"}, []string{"b"}))
}

func TestGraphUnchangedAfterCSVRoundTrip(t *testing.T) {
	nodes := build([]string{table.ColumnClass, "name", "version", "scale", "label"},
		row{"#1:0", map[string]any{table.ColumnClass: "Neuron", "name": "NaN", "version": "007", "scale": "1e3", "label": "true"}},
		row{"#1:1", map[string]any{table.ColumnClass: "Neuron", "name": "inf", "version": int64(7), "scale": 1000.0, "label": ""}},
		row{"#1:2", map[string]any{table.ColumnClass: "Neuron", "name": `"quoted"`, "version": "[1]", "scale": 3.0}},
	)
	edges := build([]string{table.ColumnClass, table.ColumnOut, table.ColumnIn},
		row{"#9:0", map[string]any{table.ColumnClass: "SendsTo", table.ColumnOut: "#1:0", table.ColumnIn: "#1:1"}},
	)

	roundTrip := func(src *table.Table) *table.Table {
		var buf bytes.Buffer
		require.NoError(t, table.Encode(&buf, src, table.FormatCSV))
		out, err := table.Decode(&buf, table.FormatCSV)
		require.NoError(t, err)
		return out
	}

	res, err := Graph(nodes, edges, roundTrip(nodes), roundTrip(edges), false)
	require.NoError(t, err)
	assert.True(t, res.Nodes.Empty(), "nodes: %+v", res.Nodes)
	assert.True(t, res.Edges.Empty(), "edges: %+v", res.Edges)
}
