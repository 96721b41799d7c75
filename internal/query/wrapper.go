package query

import (
	"context"
	"log/slog"

	"github.com/fruitflybrain/neuroarch/internal/errors"
	"github.com/fruitflybrain/neuroarch/internal/graph"
	"github.com/fruitflybrain/neuroarch/internal/logging"
	"github.com/fruitflybrain/neuroarch/internal/metrics"
)

// Option configures the wrappers built by a constructor. Derived wrappers
// inherit the settings of their source.
type Option func(*options)

type options struct {
	schema  graph.Schema
	metrics *metrics.Metrics
}

// WithSchema sets the class registry used for traversal checks and plan
// rendering. The default is graph.DefaultSchema.
func WithSchema(s graph.Schema) Option {
	return func(o *options) { o.schema = s }
}

// WithMetrics counts reads and fetched records.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// env is shared by a wrapper and everything derived from it.
type env struct {
	store   graph.Store
	schema  graph.Schema
	dialect graph.Dialect
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func newEnv(store graph.Store, opts []Option) (*env, error) {
	if store == nil {
		return nil, errors.PreconditionErrorf("query needs a store")
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.schema == nil {
		o.schema = graph.DefaultSchema()
	}
	d, err := graph.DialectFor(store.Dialect(), o.schema)
	if err != nil {
		return nil, err
	}
	return &env{
		store:   store,
		schema:  o.schema,
		dialect: d,
		metrics: o.metrics,
		logger:  logging.Component("query"),
	}, nil
}

func (e *env) evaluator() evaluator {
	return evaluator{store: e.store, metrics: e.metrics, logger: e.logger}
}

func (e *env) leaf(p graph.Plan) (Leaf, error) {
	q, err := e.dialect.RenderPlan(p)
	if err != nil {
		return Leaf{}, err
	}
	return Leaf{Query: q}, nil
}

func (e *env) read(ctx context.Context, p graph.Plan) ([]graph.Record, error) {
	l, err := e.leaf(p)
	if err != nil {
		return nil, err
	}
	recs, err := e.store.RunRead(ctx, l.Query)
	if err != nil {
		return nil, err
	}
	e.metrics.ObserveRead(string(l.Query.Lang), len(recs))
	return recs, nil
}

// Wrapper owns an Expression and the records it evaluated to. Node and edge
// caches fill at most once each unless execution is forced. A Wrapper is
// not safe for concurrent use.
type Wrapper struct {
	env  *env
	expr Expression

	nodes         graph.RecordSet
	edges         graph.RecordSet
	nodesExecuted bool
	edgesExecuted bool
}

// ExecOptions controls Execute.
type ExecOptions struct {
	// Edges also fetches the edges induced by the node set.
	Edges bool
	// EdgeTypes restricts induced edges to these classes.
	EdgeTypes []string
	// Force re-evaluates even when results are cached.
	Force bool
}

// FromQuery wraps a single query. It is not executed.
func FromQuery(store graph.Store, q graph.QueryString, opts ...Option) (*Wrapper, error) {
	if _, err := graph.ParseLanguage(string(q.Lang)); err != nil {
		return nil, err
	}
	e, err := newEnv(store, opts)
	if err != nil {
		return nil, err
	}
	return e.wrap(Leaf{Query: q}), nil
}

// FromPlan renders p in the store's dialect and wraps it.
func FromPlan(store graph.Store, p graph.Plan, opts ...Option) (*Wrapper, error) {
	e, err := newEnv(store, opts)
	if err != nil {
		return nil, err
	}
	l, err := e.leaf(p)
	if err != nil {
		return nil, err
	}
	return e.wrap(l), nil
}

// FromClass wraps a query for every node of class that satisfies where.
func FromClass(store graph.Store, class string, where graph.Predicates, opts ...Option) (*Wrapper, error) {
	e, err := newEnv(store, opts)
	if err != nil {
		return nil, err
	}
	if !e.schema.HasNodeClass(class) {
		return nil, errors.PreconditionErrorf("node class %q is not registered", class)
	}
	l, err := e.leaf(graph.Plan{
		Kind:   graph.PlanMatch,
		Filter: graph.Filter{Types: &graph.TypeFilter{Classes: []string{class}}, Where: where},
	})
	if err != nil {
		return nil, err
	}
	return e.wrap(l), nil
}

// FromRecords builds an executed wrapper over known records. Node records
// fill the node cache; edge records, when given, fill the edge cache.
func FromRecords(store graph.Store, records []graph.Record, opts ...Option) (*Wrapper, error) {
	e, err := newEnv(store, opts)
	if err != nil {
		return nil, err
	}
	return e.seeded(records)
}

// FromIdentifiers fetches the given entities and returns an executed
// wrapper over them. Every id must be a store identifier.
func FromIdentifiers(ctx context.Context, store graph.Store, ids []graph.EntityID, opts ...Option) (*Wrapper, error) {
	e, err := newEnv(store, opts)
	if err != nil {
		return nil, err
	}
	return e.fromIdentifiers(ctx, ids)
}

// Empty returns an executed wrapper with no records.
func Empty(store graph.Store, opts ...Option) (*Wrapper, error) {
	e, err := newEnv(store, opts)
	if err != nil {
		return nil, err
	}
	return e.seeded(nil)
}

func (e *env) wrap(expr Expression) *Wrapper {
	return &Wrapper{env: e, expr: expr}
}

func (e *env) seeded(records []graph.Record) (*Wrapper, error) {
	nodes, edges := graph.RecordSet{}, graph.RecordSet{}
	ids := make([]graph.EntityID, 0, len(records))
	for _, r := range records {
		if r.IsEdge() {
			edges[r.ID] = r
		} else {
			nodes[r.ID] = r
			ids = append(ids, r.ID)
		}
	}
	graph.SortIDs(ids)
	l, err := e.leaf(graph.Plan{Kind: graph.PlanSelect, Start: ids})
	if err != nil {
		return nil, err
	}
	w := e.wrap(l)
	w.nodes = nodes
	w.nodesExecuted = true
	if len(edges) > 0 {
		w.edges = edges
		w.edgesExecuted = true
	}
	return w, nil
}

func (e *env) fromIdentifiers(ctx context.Context, ids []graph.EntityID) (*Wrapper, error) {
	for _, id := range ids {
		if !e.store.IsEntityID(string(id)) {
			return nil, errors.PreconditionErrorf("%q is not a store identifier", id)
		}
	}
	if len(ids) == 0 {
		return e.seeded(nil)
	}
	recs, err := e.read(ctx, graph.Plan{Kind: graph.PlanSelect, Start: ids})
	if err != nil {
		return nil, err
	}
	return e.seeded(recs)
}

func (w *Wrapper) derive(expr Expression) *Wrapper {
	return w.env.wrap(expr)
}

func (w *Wrapper) derivePlan(p graph.Plan) (*Wrapper, error) {
	l, err := w.env.leaf(p)
	if err != nil {
		return nil, err
	}
	return w.derive(l), nil
}

func (w *Wrapper) empty() (*Wrapper, error) {
	return w.env.seeded(nil)
}

// Store returns the store the wrapper reads from.
func (w *Wrapper) Store() graph.Store { return w.env.store }

// Schema returns the class registry in use.
func (w *Wrapper) Schema() graph.Schema { return w.env.schema }

// Expression returns the wrapped expression.
func (w *Wrapper) Expression() Expression { return w.expr }

// Executed reports whether the node cache is populated.
func (w *Wrapper) Executed() bool { return w.nodesExecuted }

// EdgesExecuted reports whether the edge cache is populated.
func (w *Wrapper) EdgesExecuted() bool { return w.edgesExecuted }

// Len is the number of cached nodes. It does not execute.
func (w *Wrapper) Len() int { return len(w.nodes) }

// Clear drops both caches.
func (w *Wrapper) Clear() {
	w.nodes, w.edges = nil, nil
	w.nodesExecuted, w.edgesExecuted = false, false
}

// Execute evaluates the expression if the node cache is empty or Force is
// set, and fetches induced edges when Edges is set. Edge records returned
// by the node expression are discarded. Caches are replaced only on success.
func (w *Wrapper) Execute(ctx context.Context, opts ExecOptions) error {
	if !w.nodesExecuted || opts.Force {
		done := logging.Timed(w.env.logger, "execute nodes")
		set, err := w.env.evaluator().eval(ctx, w.expr)
		done()
		if err != nil {
			return err
		}
		nodes := graph.RecordSet{}
		for id, r := range set {
			if !r.IsEdge() {
				nodes[id] = r
			}
		}
		w.nodes = nodes
		w.nodesExecuted = true
		w.edges, w.edgesExecuted = nil, false
		w.env.logger.Debug("nodes fetched", "records", len(nodes))
	}

	if opts.Edges && (!w.edgesExecuted || opts.Force) {
		edges, err := w.induceEdges(ctx, opts.EdgeTypes)
		if err != nil {
			return err
		}
		w.edges = edges
		w.edgesExecuted = true
		w.env.logger.Debug("edges fetched", "records", len(edges))
	}
	return nil
}

// induceEdges fetches the edges with both endpoints in the node cache.
func (w *Wrapper) induceEdges(ctx context.Context, types []string) (graph.RecordSet, error) {
	if len(w.nodes) == 0 {
		return graph.RecordSet{}, nil
	}
	recs, err := w.env.read(ctx, graph.Plan{
		Kind:      graph.PlanInducedEdges,
		Start:     w.nodes.IDs(),
		EdgeTypes: types,
	})
	if err != nil {
		return nil, err
	}
	edges := graph.RecordSet{}
	for _, r := range recs {
		if r.IsEdge() {
			edges[r.ID] = r
		}
	}
	return edges, nil
}

// NodeIDs executes if needed and returns the sorted node identifiers.
func (w *Wrapper) NodeIDs(ctx context.Context) ([]graph.EntityID, error) {
	if err := w.Execute(ctx, ExecOptions{}); err != nil {
		return nil, err
	}
	return w.nodes.IDs(), nil
}

// Nodes executes if needed and returns node records sorted by identifier.
func (w *Wrapper) Nodes(ctx context.Context) ([]graph.Record, error) {
	if err := w.Execute(ctx, ExecOptions{}); err != nil {
		return nil, err
	}
	return w.nodes.Records(), nil
}

// Edges executes nodes and induced edges if needed and returns the edge
// records sorted by identifier.
func (w *Wrapper) Edges(ctx context.Context) ([]graph.Record, error) {
	if err := w.Execute(ctx, ExecOptions{Edges: true}); err != nil {
		return nil, err
	}
	return w.edges.Records(), nil
}

// EdgeIDs is Edges reduced to identifiers.
func (w *Wrapper) EdgeIDs(ctx context.Context) ([]graph.EntityID, error) {
	if err := w.Execute(ctx, ExecOptions{Edges: true}); err != nil {
		return nil, err
	}
	return w.edges.IDs(), nil
}
