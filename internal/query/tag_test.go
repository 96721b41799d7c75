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

// racingStore commits a competing tag right before the first transaction.
type racingStore struct {
	*memgraph.Store
	tag  string
	done bool
}

func (r *racingStore) RunTransaction(ctx context.Context, script graph.Script, maxRetries int) ([]graph.Record, error) {
	if !r.done {
		r.done = true
		r.AddNode(ClassQueryResult, map[string]any{tagAttr: r.tag})
	}
	return r.Store.RunTransaction(ctx, script, maxRetries)
}

func TestTag_RoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	neurons := executed(t, f.class(t, "Neuron"))

	res, err := neurons.Tag(ctx, "eb-neurons", map[string]any{"note": "first pass"}, false)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.NotEmpty(t, res.ID)

	again, err := neurons.Tag(ctx, "eb-neurons", nil, false)
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Empty(t, again.ID)

	info, err := FindTag(ctx, f.store, "eb-neurons")
	require.NoError(t, err)
	assert.Equal(t, res.ID, info.ID)
	assert.Equal(t, "first pass", info.Metadata["note"])
	assert.Equal(t, "eb-neurons", info.Metadata["tag"])
	assert.NotEmpty(t, info.Metadata["uuid"])
	assert.False(t, info.Nodes.Executed())
	require.NoError(t, info.Nodes.Execute(ctx, ExecOptions{}))
	assert.True(t, info.Nodes.Equal(neurons))
}

func TestTag_ConcurrentWriterWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	racer := &racingStore{Store: f.store, tag: "t1"}

	neurons, err := FromClass(racer, "Neuron", nil)
	require.NoError(t, err)
	require.NoError(t, neurons.Execute(ctx, ExecOptions{}))

	res, err := neurons.Tag(ctx, "t1", nil, false)
	require.NoError(t, err)
	assert.False(t, res.Created)

	info, err := FindTag(ctx, f.store, "t1")
	require.NoError(t, err)
	require.NoError(t, info.Nodes.Execute(ctx, ExecOptions{}))
	assert.Equal(t, 0, info.Nodes.Len())
}

func TestTag_Overwrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.wrap(t, "n1").Tag(ctx, "picked", nil, false)
	require.NoError(t, err)
	second, err := f.wrap(t, "n2", "n3").Tag(ctx, "picked", map[string]any{"round": 2}, true)
	require.NoError(t, err)
	assert.True(t, second.Created)
	assert.NotEqual(t, first.ID, second.ID)

	info, err := FindTag(ctx, f.store, "picked")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"n2", "n3"}, names(t, info.Nodes))
}

func TestFindTag_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := FindTag(ctx, f.store, "missing")
	assert.ErrorIs(t, err, errors.ErrNotFound)

	f.store.AddNode("QueryResult", map[string]any{"tag": "twice"})
	f.store.AddNode("QueryResult", map[string]any{"tag": "twice"})
	_, err = FindTag(ctx, f.store, "twice")
	assert.ErrorIs(t, err, errors.ErrDuplicate)
}

func TestDropTag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.wrap(t, "n1").Tag(ctx, "tmp", nil, false)
	require.NoError(t, err)
	require.NoError(t, DropTag(ctx, f.store, "tmp"))

	_, err = FindTag(ctx, f.store, "tmp")
	assert.ErrorIs(t, err, errors.ErrNotFound)
	assert.ErrorIs(t, DropTag(ctx, f.store, "tmp"), errors.ErrNotFound)

	nodes, edges := f.store.Snapshot()
	_, stillThere := nodes[f.ids["n1"]]
	assert.True(t, stillThere)
	for _, e := range edges {
		assert.NotEqual(t, RelHasQueryResults, e.Class)
	}
}

func TestTag_RejectsEmptyTag(t *testing.T) {
	f := newFixture(t)
	_, err := f.wrap(t, "n1").Tag(context.Background(), "  ", nil, false)
	assert.ErrorIs(t, err, errors.ErrPrecondition)
}
