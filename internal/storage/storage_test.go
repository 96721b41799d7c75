package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruitflybrain/neuroarch/internal/errors"
	"github.com/fruitflybrain/neuroarch/internal/table"
)

func sampleTables() (*table.Table, *table.Table) {
	nodes := table.New(table.ColumnClass, "name", "N")
	nodes.Append("#1:0", map[string]any{table.ColumnClass: "Neuron", "name": "EB-1", "N": int64(4)})
	nodes.Append("#1:1", map[string]any{table.ColumnClass: "Neuron", "name": "EB-2", "weight": 0.5})
	nodes.Append("#1:2", map[string]any{table.ColumnClass: "LPU", "name": "EB", "tags": []any{"a", "b"}})

	edges := table.New(table.ColumnClass, table.ColumnOut, table.ColumnIn)
	edges.Append("#9:0", map[string]any{table.ColumnClass: "Owns", table.ColumnOut: "#1:2", table.ColumnIn: "#1:0"})
	return nodes, edges
}

// exerciseStore runs the behaviour every backend shares.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	nodes, edges := sampleTables()

	_, err := s.Load(ctx, "baseline")
	assert.ErrorIs(t, err, errors.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "baseline"), errors.ErrNotFound)

	info, err := s.Save(ctx, "baseline", nodes, edges)
	require.NoError(t, err)
	assert.NotEmpty(t, info.ID)
	assert.Equal(t, 3, info.NodeRows)
	assert.Equal(t, 1, info.EdgeRows)

	snap, err := s.Load(ctx, "baseline")
	require.NoError(t, err)
	assert.Equal(t, info.ID, snap.ID)
	assert.True(t, info.CreatedAt.Equal(snap.CreatedAt))
	assert.True(t, table.Equal(nodes, snap.Nodes), "nodes round trip: %v", snap.Nodes)
	assert.True(t, table.Equal(edges, snap.Edges), "edges round trip: %v", snap.Edges)
	assert.Equal(t, []string{"#1:0", "#1:1", "#1:2"}, snap.Nodes.Keys())

	// Saving under the same name replaces the snapshot.
	smaller := table.New(table.ColumnClass, "name")
	smaller.Append("#1:0", map[string]any{table.ColumnClass: "Neuron", "name": "EB-1"})
	replaced, err := s.Save(ctx, "baseline", smaller, nil)
	require.NoError(t, err)
	assert.NotEqual(t, info.ID, replaced.ID)

	snap, err = s.Load(ctx, "baseline")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Nodes.Len())
	assert.Equal(t, 0, snap.Edges.Len())

	_, err = s.Save(ctx, "after", nodes, edges)
	require.NoError(t, err)
	infos, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "after", infos[0].Name)
	assert.Equal(t, "baseline", infos[1].Name)

	require.NoError(t, s.Delete(ctx, "after"))
	infos, err = s.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)

	_, err = s.Save(ctx, " ", nodes, edges)
	assert.ErrorIs(t, err, errors.ErrValidation)

	dup := table.New("name")
	dup.Append("k", map[string]any{"name": "a"})
	dup.Append("k", map[string]any{"name": "b"})
	_, err = s.Save(ctx, "dup", dup, nil)
	assert.ErrorIs(t, err, errors.ErrValidation)
	_, err = s.Load(ctx, "dup")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "nested", "snapshots.db"))
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestBoltStore(t *testing.T) {
	s, err := NewBoltStore(filepath.Join(t.TempDir(), "snapshots.bolt"))
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" || testing.Short() {
		t.Skip("POSTGRES_DSN not set")
	}
	ctx := context.Background()
	s, err := NewPostgresStore(ctx, dsn)
	require.NoError(t, err)
	defer s.Close()
	for _, name := range []string{"baseline", "after", "dup"} {
		_ = s.Delete(ctx, name)
	}
	exerciseStore(t, s)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(ctx, Config{Path: filepath.Join(dir, "default.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	s, err = Open(ctx, Config{Backend: BackendBolt, Path: filepath.Join(dir, "b.bolt")})
	require.NoError(t, err)
	assert.IsType(t, &BoltStore{}, s)
	require.NoError(t, s.Close())

	tests := []struct {
		name string
		cfg  Config
	}{
		{"sqlite without path", Config{Backend: BackendSQLite}},
		{"bolt without path", Config{Backend: BackendBolt}},
		{"postgres without dsn", Config{Backend: BackendPostgres}},
		{"unknown backend", Config{Backend: "mongo", Path: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(ctx, tt.cfg)
			assert.ErrorIs(t, err, errors.ErrConfig)
		})
	}
}
