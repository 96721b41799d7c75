package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/fruitflybrain/neuroarch/internal/apply"
	"github.com/fruitflybrain/neuroarch/internal/diff"
	"github.com/fruitflybrain/neuroarch/internal/graph"
)

const (
	nodesCSV = `id,class,name,N
lpu,LPU,EB,
n1,Neuron,EB-1,4
n2,Neuron,EB-2,9
`
	edgesCSV = `id,class,out,in
0,Owns,lpu,n1
1,Owns,lpu,n2
`
)

// setup isolates config lookup and writes seed tables into a temp dir.
func setup(t *testing.T) string {
	t.Helper()
	keyring.MockInit()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	t.Setenv("HOME", dir)
	t.Setenv("SNAPSHOT_PATH", filepath.Join(dir, "snapshots.db"))
	for _, key := range []string{"NEO4J_URI", "NEO4J_PASSWORD", "REDIS_ADDR", "POSTGRES_DSN", "NATS_URL", "NEUROARCH_MODE"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	require.NoError(t, os.WriteFile(filepath.Join(dir, "nodes.csv"), []byte(nodesCSV), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "edges.csv"), []byte(edgesCSV), 0644))
	return dir
}

// run executes the root command against a seeded memory store.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--store", "memory", "--seed-nodes", "nodes.csv", "--seed-edges", "edges.csv"}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

// resetFlags restores every flag default; cobra keeps values between runs.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

type tablesJSON struct {
	Nodes struct {
		Rows []struct {
			ID     string         `json:"id"`
			Values map[string]any `json:"values"`
		} `json:"rows"`
	} `json:"nodes"`
	Edges struct {
		Rows []json.RawMessage `json:"rows"`
	} `json:"edges"`
}

func decodeTables(t *testing.T, out string) tablesJSON {
	t.Helper()
	var v tablesJSON
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)
	return v
}

func TestParseWhere(t *testing.T) {
	tests := []struct {
		name    string
		raw     []string
		want    graph.Predicates
		wantErr bool
	}{
		{"string", []string{"name=EB-1"}, graph.Predicates{"name": graph.Eq("EB-1")}, false},
		{"number", []string{"N=4"}, graph.Predicates{"N": graph.Eq(int64(4))}, false},
		{"comparison", []string{`N=[">", 4]`}, graph.Predicates{"N": graph.Cmp(">", 4)}, false},
		{"regex", []string{`name=["/rEB-.*"]`}, graph.Predicates{"name": graph.Regex("EB-.*")}, false},
		{"membership", []string{`name=["EB-1", "EB-2"]`}, graph.Predicates{"name": graph.In("EB-1", "EB-2")}, false},
		{"several", []string{"name=EB", " class = LPU"}, graph.Predicates{"name": graph.Eq("EB"), "class": graph.Eq(" LPU")}, false},
		{"missing equals", []string{"name"}, nil, true},
		{"empty attribute", []string{"=x"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseWhere(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	got, err := parseWhere(nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestParseValue(t *testing.T) {
	assert.Equal(t, "EB-1", parseValue("EB-1"))
	assert.Equal(t, int64(4), parseValue("4"))
	assert.Equal(t, 0.5, parseValue("0.5"))
	assert.Equal(t, true, parseValue("true"))
	assert.Equal(t, "4 5", parseValue("4 5"))
	assert.Equal(t, []any{"a", int64(1)}, parseValue(`["a", 1]`))
}

func TestParseMeta(t *testing.T) {
	meta, err := parseMeta([]string{"owner=lab", "version=2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"owner": "lab", "version": int64(2)}, meta)

	_, err = parseMeta([]string{"novalue"})
	assert.Error(t, err)
}

func TestChunkConfigFor(t *testing.T) {
	base := apply.UniformChunkConfig(7)
	base.MaxRetries = 3

	got, err := chunkConfigFor("", base)
	require.NoError(t, err)
	assert.Equal(t, base, got)

	got, err = chunkConfigFor("small", base)
	require.NoError(t, err)
	want := apply.SmallChunkConfig()
	want.MaxRetries = 3
	assert.Equal(t, want, got)

	got, err = chunkConfigFor("large", apply.ChunkConfig{})
	require.NoError(t, err)
	assert.Equal(t, apply.LargeChunkConfig(), got)

	_, err = chunkConfigFor("huge", base)
	assert.Error(t, err)
}

func TestQueryCommand(t *testing.T) {
	setup(t)

	out, err := run(t, "query", "--class", "Neuron", "-o", "json")
	require.NoError(t, err)
	v := decodeTables(t, out)
	assert.Len(t, v.Nodes.Rows, 2)

	out, err = run(t, "query", "--class", "Neuron", "--where", "name=EB-1", "-o", "json")
	require.NoError(t, err)
	v = decodeTables(t, out)
	require.Len(t, v.Nodes.Rows, 1)
	assert.Equal(t, "EB-1", v.Nodes.Rows[0].Values["name"])

	out, err = run(t, "query", "--class", "Neuron", "--where", `N=[">", 5]`, "-o", "json")
	require.NoError(t, err)
	v = decodeTables(t, out)
	require.Len(t, v.Nodes.Rows, 1)
	assert.Equal(t, "EB-2", v.Nodes.Rows[0].Values["name"])

	_, err = run(t, "query")
	assert.Error(t, err)

	_, err = run(t, "query", "--class", "Neuron", "--view", "bogus")
	assert.Error(t, err)
}

func TestQueryCommand_WhereNarrowsText(t *testing.T) {
	setup(t)
	match := `{"kind":"match","filter":{"types":{"classes":["Neuron"]}}}`

	out, err := run(t, "query", "--text", match, "-o", "json")
	require.NoError(t, err)
	assert.Len(t, decodeTables(t, out).Nodes.Rows, 2)

	out, err = run(t, "query", "--text", match, "--where", "name=EB-2", "-o", "json")
	require.NoError(t, err)
	v := decodeTables(t, out)
	require.Len(t, v.Nodes.Rows, 1)
	assert.Equal(t, "EB-2", v.Nodes.Rows[0].Values["name"])

	_, err = run(t, "query", "--text", match, "--where", "name")
	assert.Error(t, err)
}

func TestQueryCommand_WritesTables(t *testing.T) {
	dir := setup(t)

	_, err := run(t, "query", "--class", "LPU", "--out-nodes", "lpus.json")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "lpus.json"))
}

func TestTraverseCommand(t *testing.T) {
	setup(t)

	out, err := run(t, "traverse", "--class", "LPU", "--owns", "1", "-o", "json")
	require.NoError(t, err)
	v := decodeTables(t, out)
	assert.Len(t, v.Nodes.Rows, 2)

	out, err = run(t, "traverse", "--class", "Neuron", "--where", "name=EB-1", "--owned-by", "1", "-o", "json")
	require.NoError(t, err)
	v = decodeTables(t, out)
	require.Len(t, v.Nodes.Rows, 1)
	assert.Equal(t, "EB", v.Nodes.Rows[0].Values["name"])

	_, err = run(t, "traverse", "--class", "LPU")
	assert.Error(t, err)
}

func TestDiffCommand(t *testing.T) {
	dir := setup(t)
	edited := `id,class,name,N
lpu,LPU,EB,
n1,Neuron,EB-1,5
n3,Neuron,EB-3,1
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "edited.csv"), []byte(edited), 0644))

	out, err := run(t, "diff",
		"--old-nodes", "nodes.csv", "--old-edges", "edges.csv",
		"--new-nodes", "edited.csv", "--new-edges", "edges.csv",
		"--out", "changes")
	require.NoError(t, err)
	assert.Contains(t, out, "nodes: 1 modified, 1 added, 1 deleted")
	assert.Contains(t, out, "edges: 0 modified, 0 added, 0 deleted")

	cs, err := diff.ReadFile(filepath.Join(dir, "changes", "nodes.yaml"))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"N": int64(5)}, cs.Mod["n1"])
	assert.True(t, cs.Del.Has("n2"))
	assert.Contains(t, cs.Add, "n3")

	// n2's Owns edge goes with the node.
	edges, err := diff.ReadFile(filepath.Join(dir, "changes", "edges.yaml"))
	require.NoError(t, err)
	assert.True(t, edges.Empty())
}

func TestLoadCommand(t *testing.T) {
	setup(t)

	out, err := run(t, "load", "--nodes", "nodes.csv", "--edges", "edges.csv", "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"added": 3`)
	assert.Contains(t, out, `"added": 2`)
}

func TestSnapshotCommands(t *testing.T) {
	dir := setup(t)

	_, err := run(t, "snapshot", "save", "baseline", "--class", "Neuron")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "snapshots.db"))

	out, err := run(t, "snapshot", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "baseline")

	out, err = run(t, "snapshot", "diff", "baseline", "baseline")
	require.NoError(t, err)
	assert.Contains(t, out, "nodes: 0 modified, 0 added, 0 deleted")

	_, err = run(t, "snapshot", "delete", "baseline")
	require.NoError(t, err)
	_, err = run(t, "snapshot", "show", "baseline")
	assert.Error(t, err)
}

func TestSyncCommand_DryRun(t *testing.T) {
	dir := setup(t)

	// A snapshot is keyed by store identifier; export it, edit one row and
	// diff the edit against the saved baseline.
	_, err := run(t, "snapshot", "save", "baseline", "--class", "Neuron")
	require.NoError(t, err)
	_, err = run(t, "snapshot", "show", "baseline", "--out-nodes", "base.json")
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(dir, "base.json"))

	out, err := run(t, "sync", "--baseline", "baseline", "--new-nodes", "base.json", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "nodes: 0 modified, 0 added, 0 deleted")
}

func TestVersionCommand(t *testing.T) {
	setup(t)
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "neuroarch dev")
}

func TestStatusCommand(t *testing.T) {
	setup(t)
	out, err := run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Backend: memory")
	assert.Contains(t, out, "Saved: 0")
	assert.Contains(t, out, "disabled")
}
