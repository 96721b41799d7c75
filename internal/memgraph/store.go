// Package memgraph is an in-process graph.Store. It evaluates the plan
// dialect directly and commits scripts atomically by applying them to a
// copy of the graph and swapping it in on success.
package memgraph

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/fruitflybrain/neuroarch/internal/errors"
	"github.com/fruitflybrain/neuroarch/internal/graph"
	"github.com/fruitflybrain/neuroarch/internal/logging"
)

var entityID = regexp.MustCompile(`^#\d+:\d+$`)

// FailureHook is consulted before every transaction attempt. A non-nil
// error aborts the attempt; retryable errors are retried.
type FailureHook func(script graph.Script, attempt int) error

// Store is an in-memory property graph.
type Store struct {
	mu     sync.RWMutex
	schema graph.Schema
	data   *data
	logger *slog.Logger

	hook FailureHook

	reads        atomic.Int64
	transactions atomic.Int64
}

type data struct {
	nodes    graph.RecordSet
	edges    graph.RecordSet
	out      map[graph.EntityID][]graph.EntityID
	in       map[graph.EntityID][]graph.EntityID
	clusters map[string]int
	nextPos  map[int]int
}

// New creates an empty store. A nil schema uses graph.DefaultSchema.
func New(schema graph.Schema) *Store {
	if schema == nil {
		schema = graph.DefaultSchema()
	}
	return &Store{
		schema: schema,
		data: &data{
			nodes:    graph.RecordSet{},
			edges:    graph.RecordSet{},
			out:      map[graph.EntityID][]graph.EntityID{},
			in:       map[graph.EntityID][]graph.EntityID{},
			clusters: map[string]int{},
			nextPos:  map[int]int{},
		},
		logger: logging.Component("memgraph"),
	}
}

// Dialect implements graph.Store.
func (s *Store) Dialect() graph.Language { return graph.LangPlan }

// IsEntityID implements graph.Store. Identifiers look like "#cluster:position".
func (s *Store) IsEntityID(id string) bool { return entityID.MatchString(id) }

// Reads is the number of RunRead calls served.
func (s *Store) Reads() int64 { return s.reads.Load() }

// Transactions is the number of RunTransaction calls received.
func (s *Store) Transactions() int64 { return s.transactions.Load() }

// SetFailureHook installs hook, or clears it when nil.
func (s *Store) SetFailureHook(hook FailureHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = hook
}

// AddNode inserts a node directly, bypassing transactions.
func (s *Store) AddNode(class string, attrs map[string]any) graph.EntityID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.createNode(class, attrs)
}

// AddEdge inserts an edge directly. Both endpoints must exist.
func (s *Store) AddEdge(class string, out, in graph.EntityID, attrs map[string]any) (graph.EntityID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.nodes[out]; !ok {
		return "", errors.NotFoundErrorf("node %s not found", out)
	}
	if _, ok := s.data.nodes[in]; !ok {
		return "", errors.NotFoundErrorf("node %s not found", in)
	}
	return s.data.createEdge(class, out, in, attrs), nil
}

// Snapshot returns copies of every node and edge.
func (s *Store) Snapshot() (nodes, edges graph.RecordSet) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	nodes = make(graph.RecordSet, len(s.data.nodes))
	for id, r := range s.data.nodes {
		nodes[id] = copyRecord(r)
	}
	edges = make(graph.RecordSet, len(s.data.edges))
	for id, r := range s.data.edges {
		edges[id] = copyRecord(r)
	}
	return nodes, edges
}

// RunRead implements graph.Store.
func (s *Store) RunRead(ctx context.Context, q graph.QueryString) ([]graph.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.StoreError(err, "read cancelled")
	}
	if q.Lang != graph.LangPlan {
		return nil, errors.UnsupportedQueryLanguage(string(q.Lang))
	}
	plan, err := graph.DecodePlan(q.Text)
	if err != nil {
		return nil, err
	}
	s.reads.Add(1)

	s.mu.RLock()
	defer s.mu.RUnlock()
	ev := evaluator{d: s.data, schema: s.schema}
	recs := ev.eval(plan)
	s.logger.Debug("plan evaluated", "kind", plan.Kind, "records", len(recs))
	return recs, nil
}

// RunTransaction implements graph.Store.
func (s *Store) RunTransaction(ctx context.Context, script graph.Script, maxRetries int) ([]graph.Record, error) {
	s.transactions.Add(1)
	if err := script.Validate(); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.StoreError(err, "transaction cancelled")
		}
		recs, err := s.attempt(script, attempt)
		if err == nil {
			return recs, nil
		}
		lastErr = err
		if !errors.IsRetryable(err) {
			return nil, err
		}
		s.logger.Debug("retrying transaction", "attempt", attempt+1, "error", err)
	}
	return nil, lastErr
}

func (s *Store) attempt(script graph.Script, attempt int) ([]graph.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hook != nil {
		if err := s.hook(script, attempt); err != nil {
			return nil, err
		}
	}

	work := s.data.clone()
	bound := make(map[string]graph.Record)
	for i, stmt := range script.Statements {
		if err := work.exec(s.schema, stmt, bound); err != nil {
			return nil, fmt.Errorf("statement %d: %w", i, err)
		}
	}
	s.data = work

	out := make([]graph.Record, 0, len(script.Return))
	for _, v := range script.Return {
		out = append(out, copyRecord(bound[v]))
	}
	return out, nil
}

func (d *data) clone() *data {
	c := &data{
		nodes:    make(graph.RecordSet, len(d.nodes)),
		edges:    make(graph.RecordSet, len(d.edges)),
		out:      make(map[graph.EntityID][]graph.EntityID, len(d.out)),
		in:       make(map[graph.EntityID][]graph.EntityID, len(d.in)),
		clusters: make(map[string]int, len(d.clusters)),
		nextPos:  make(map[int]int, len(d.nextPos)),
	}
	for id, r := range d.nodes {
		c.nodes[id] = copyRecord(r)
	}
	for id, r := range d.edges {
		c.edges[id] = copyRecord(r)
	}
	for id, es := range d.out {
		c.out[id] = append([]graph.EntityID(nil), es...)
	}
	for id, es := range d.in {
		c.in[id] = append([]graph.EntityID(nil), es...)
	}
	for k, v := range d.clusters {
		c.clusters[k] = v
	}
	for k, v := range d.nextPos {
		c.nextPos[k] = v
	}
	return c
}

func (d *data) newID(class string) graph.EntityID {
	cluster, ok := d.clusters[class]
	if !ok {
		cluster = len(d.clusters) + 1
		d.clusters[class] = cluster
	}
	pos := d.nextPos[cluster]
	d.nextPos[cluster] = pos + 1
	return graph.EntityID(fmt.Sprintf("#%d:%d", cluster, pos))
}

func (d *data) createNode(class string, attrs map[string]any) graph.EntityID {
	id := d.newID(class)
	d.nodes[id] = graph.Record{ID: id, Class: class, Attrs: cleanAttrs(attrs)}
	return id
}

func (d *data) createEdge(class string, out, in graph.EntityID, attrs map[string]any) graph.EntityID {
	id := d.newID(class)
	d.edges[id] = graph.Record{ID: id, Class: class, Attrs: cleanAttrs(attrs), Out: out, In: in}
	d.out[out] = append(d.out[out], id)
	d.in[in] = append(d.in[in], id)
	return id
}

func (d *data) deleteEdge(id graph.EntityID) {
	e := d.edges[id]
	delete(d.edges, id)
	d.out[e.Out] = without(d.out[e.Out], id)
	d.in[e.In] = without(d.in[e.In], id)
}

// edgesBetween lists class edges from out to in, sorted.
func (d *data) edgesBetween(class string, out, in graph.EntityID) []graph.EntityID {
	var ids []graph.EntityID
	for _, eid := range d.out[out] {
		e := d.edges[eid]
		if e.Class == class && e.In == in {
			ids = append(ids, eid)
		}
	}
	graph.SortIDs(ids)
	return ids
}

func (d *data) exec(schema graph.Schema, stmt graph.Statement, bound map[string]graph.Record) error {
	resolve := func(r graph.Ref) (graph.EntityID, error) {
		id := r.ID
		if r.Var != "" {
			id = bound[r.Var].ID
		}
		if _, ok := d.nodes[id]; !ok {
			return "", errors.NotFoundErrorf("node %s not found", r)
		}
		return id, nil
	}

	switch st := stmt.(type) {
	case graph.CreateVertex:
		if !schema.HasNodeClass(st.Class) {
			return errors.PreconditionErrorf("node class %q is not registered", st.Class)
		}
		if err := d.checkUnique(schema, st); err != nil {
			return err
		}
		id := d.createNode(st.Class, st.Props)
		if st.Var != "" {
			bound[st.Var] = d.nodes[id]
		}

	case graph.UpdateVertex:
		r, ok := d.nodes[st.ID]
		if !ok {
			return errors.NotFoundErrorf("node %s not found", st.ID)
		}
		setAttrs(&r, st.Set)
		d.nodes[st.ID] = r

	case graph.DeleteVertex:
		if _, ok := d.nodes[st.ID]; !ok {
			return errors.NotFoundErrorf("node %s not found", st.ID)
		}
		for _, eid := range append(append([]graph.EntityID(nil), d.out[st.ID]...), d.in[st.ID]...) {
			if _, ok := d.edges[eid]; ok {
				d.deleteEdge(eid)
			}
		}
		delete(d.out, st.ID)
		delete(d.in, st.ID)
		delete(d.nodes, st.ID)

	case graph.CreateEdge:
		if !schema.HasEdgeClass(st.Class) {
			return errors.PreconditionErrorf("edge class %q is not registered", st.Class)
		}
		out, err := resolve(st.Out)
		if err != nil {
			return err
		}
		in, err := resolve(st.In)
		if err != nil {
			return err
		}
		id := d.createEdge(st.Class, out, in, st.Props)
		if st.Var != "" {
			bound[st.Var] = d.edges[id]
		}

	case graph.UpdateEdge:
		ids := d.edgesBetween(st.Class, st.Out, st.In)
		if len(ids) == 0 {
			return errors.NotFoundErrorf("no %s edge from %s to %s", st.Class, st.Out, st.In)
		}
		for _, id := range ids {
			r := d.edges[id]
			setAttrs(&r, st.Set)
			d.edges[id] = r
		}

	case graph.DeleteEdge:
		ids := d.edgesBetween(st.Class, st.Out, st.In)
		if len(ids) == 0 {
			return errors.NotFoundErrorf("no %s edge from %s to %s", st.Class, st.Out, st.In)
		}
		for _, id := range ids {
			d.deleteEdge(id)
		}

	default:
		return errors.InternalErrorf("unknown statement %T", stmt)
	}
	return nil
}

// checkUnique rejects a vertex whose unique attributes repeat on an existing
// node of the same class or a subclass.
func (d *data) checkUnique(schema graph.Schema, st graph.CreateVertex) error {
	for _, attr := range st.Unique {
		for _, r := range d.nodes {
			if !schema.IsA(r.Class, st.Class) {
				continue
			}
			if v, ok := r.Attrs[attr]; ok && graph.ValuesEqual(v, st.Props[attr]) {
				return errors.DuplicateErrorf("%s with %s=%v already exists (%s)", st.Class, attr, v, r.ID)
			}
		}
	}
	return nil
}

func setAttrs(r *graph.Record, set map[string]any) {
	if r.Attrs == nil {
		r.Attrs = map[string]any{}
	}
	for k, v := range set {
		if graph.IsNull(v) {
			delete(r.Attrs, k)
			continue
		}
		r.Attrs[k] = v
	}
}

func cleanAttrs(attrs map[string]any) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		if !graph.IsNull(v) {
			out[k] = v
		}
	}
	return out
}

func copyRecord(r graph.Record) graph.Record {
	c := r
	c.Attrs = make(map[string]any, len(r.Attrs))
	for k, v := range r.Attrs {
		c.Attrs[k] = v
	}
	return c
}

func without(ids []graph.EntityID, id graph.EntityID) []graph.EntityID {
	out := ids[:0]
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}

func sortRecords(recs []graph.Record) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
}
