package query

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fruitflybrain/neuroarch/internal/errors"
	"github.com/fruitflybrain/neuroarch/internal/graph"
)

// TagMaxRetries is the retry budget of tag transactions.
const TagMaxRetries = 10

// Reserved attributes of a QueryResult node.
const (
	tagAttr     = "tag"
	uuidAttr    = "uuid"
	createdAttr = "created_timestamp"
)

// TagResult reports the outcome of Tag. Created is false when the tag
// already existed and overwrite was not requested.
type TagResult struct {
	Created bool           `json:"created"`
	ID      graph.EntityID `json:"id,omitempty"`
}

// TagInfo is a stored tag: its annotation node and the nodes it points to.
type TagInfo struct {
	ID       graph.EntityID
	Metadata map[string]any
	Nodes    *Wrapper
}

// Tag stores the current node set under tag: one QueryResult node holding
// metadata and one HasQueryResults edge per cached node, in one
// transaction. An existing tag is left alone unless overwrite is set, in
// which case it is replaced. The store enforces tag uniqueness, so a
// concurrent writer that commits first also yields Created == false.
func (w *Wrapper) Tag(ctx context.Context, tag string, metadata map[string]any, overwrite bool) (TagResult, error) {
	if strings.TrimSpace(tag) == "" {
		return TagResult{}, errors.PreconditionErrorf("tag is empty")
	}
	existing, err := w.env.tagNodes(ctx, tag)
	if err != nil {
		return TagResult{}, err
	}
	if len(existing) > 0 && !overwrite {
		w.env.logger.Info("tag already exists", "tag", tag)
		return TagResult{}, nil
	}
	ids, err := w.NodeIDs(ctx)
	if err != nil {
		return TagResult{}, err
	}

	var script graph.Script
	for _, r := range existing {
		script.Add(graph.DeleteVertex{ID: r.ID})
	}
	props := make(map[string]any, len(metadata)+3)
	for k, v := range metadata {
		props[k] = v
	}
	props[tagAttr] = tag
	props[uuidAttr] = uuid.NewString()
	props[createdAttr] = time.Now().UTC().Format(time.RFC3339)
	script.Add(graph.CreateVertex{Var: "qr", Class: ClassQueryResult, Props: props, Unique: []string{tagAttr}})
	for _, id := range ids {
		script.Add(graph.CreateEdge{Class: RelHasQueryResults, Out: graph.VarRef("qr"), In: graph.IDRef(id)})
	}
	script.Return = []string{"qr"}

	recs, err := w.env.store.RunTransaction(ctx, script, TagMaxRetries)
	if errors.Is(err, errors.ErrDuplicate) {
		// another writer stored the tag between the lookup and the commit
		w.env.logger.Info("tag already exists", "tag", tag, "error", err)
		return TagResult{}, nil
	}
	if err != nil {
		return TagResult{}, err
	}
	if len(recs) != 1 {
		return TagResult{}, errors.InternalErrorf("tag transaction returned %d records", len(recs))
	}
	w.env.logger.Info("tag stored", "tag", tag, "nodes", len(ids), "id", recs[0].ID)
	return TagResult{Created: true, ID: recs[0].ID}, nil
}

// FindTag loads a tag. Zero matches fail with errors.ErrNotFound and more
// than one with errors.ErrDuplicate. TagInfo.Nodes is not executed.
func FindTag(ctx context.Context, store graph.Store, tag string, opts ...Option) (*TagInfo, error) {
	e, err := newEnv(store, opts)
	if err != nil {
		return nil, err
	}
	rec, err := e.tagNode(ctx, tag)
	if err != nil {
		return nil, err
	}
	owner, err := e.seeded([]graph.Record{rec})
	if err != nil {
		return nil, err
	}
	nodes, err := owner.GenTraversalOut(ctx, []Stage{Follow(RelHasQueryResults)})
	if err != nil {
		return nil, err
	}
	return &TagInfo{ID: rec.ID, Metadata: rec.PublicAttrs(), Nodes: nodes}, nil
}

// DropTag deletes the annotation node of tag together with its edges.
func DropTag(ctx context.Context, store graph.Store, tag string, opts ...Option) error {
	e, err := newEnv(store, opts)
	if err != nil {
		return err
	}
	rec, err := e.tagNode(ctx, tag)
	if err != nil {
		return err
	}
	script := graph.Script{Statements: []graph.Statement{graph.DeleteVertex{ID: rec.ID}}}
	if _, err := store.RunTransaction(ctx, script, TagMaxRetries); err != nil {
		return err
	}
	e.logger.Info("tag dropped", "tag", tag, "id", rec.ID)
	return nil
}

func (e *env) tagNodes(ctx context.Context, tag string) ([]graph.Record, error) {
	return e.read(ctx, graph.Plan{
		Kind: graph.PlanMatch,
		Filter: graph.Filter{
			Types: &graph.TypeFilter{Classes: []string{ClassQueryResult}},
			Where: graph.Predicates{tagAttr: graph.Eq(tag)},
		},
	})
}

func (e *env) tagNode(ctx context.Context, tag string) (graph.Record, error) {
	recs, err := e.tagNodes(ctx, tag)
	if err != nil {
		return graph.Record{}, err
	}
	switch len(recs) {
	case 0:
		return graph.Record{}, errors.NotFoundErrorf("tag %q not found", tag)
	case 1:
		return recs[0], nil
	default:
		return graph.Record{}, errors.DuplicateErrorf("tag %q matches %d results", tag, len(recs))
	}
}
