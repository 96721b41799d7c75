package query

import (
	"context"

	"github.com/fruitflybrain/neuroarch/internal/errors"
	"github.com/fruitflybrain/neuroarch/internal/graph"
)

// Relation and class names the traversal helpers rely on.
const (
	RelOwns            = "Owns"
	RelSendsTo         = "SendsTo"
	RelHasQueryResults = "HasQueryResults"

	ClassLPU               = "LPU"
	ClassPattern           = "Pattern"
	ClassNeuron            = "Neuron"
	ClassNeuronAndFragment = "NeuronAndFragment"
	ClassSynapse           = "Synapse"
	ClassInferredSynapse   = "InferredSynapse"
	ClassQueryResult       = "QueryResult"
)

// Owns returns the nodes exactly levels Owns-hops below the current nodes
// that pass filter.
func (w *Wrapper) Owns(ctx context.Context, levels int, filter graph.Filter) (*Wrapper, error) {
	return w.own(ctx, graph.DirOut, levels, filter)
}

// OwnedBy returns the nodes exactly levels Owns-hops above the current nodes.
func (w *Wrapper) OwnedBy(ctx context.Context, levels int, filter graph.Filter) (*Wrapper, error) {
	return w.own(ctx, graph.DirIn, levels, filter)
}

func (w *Wrapper) own(ctx context.Context, dir graph.Direction, levels int, filter graph.Filter) (*Wrapper, error) {
	if levels < 1 {
		return nil, errors.PreconditionErrorf("levels must be >= 1, got %d", levels)
	}
	if err := checkFilter(w.env.schema, filter); err != nil {
		return nil, err
	}
	stages := make([]graph.Stage, levels)
	for i := range stages {
		stages[i] = graph.Stage{Relation: RelOwns, Direction: dir}
	}
	stages[levels-1].Filter = filter
	return w.hops(ctx, stages, levels, levels+1)
}

// TraverseOwns returns every node reachable downward through at most
// maxLevels Owns-hops, the current nodes included, that passes filter.
// Zero maxLevels means graph.DefaultWalkLevels.
func (w *Wrapper) TraverseOwns(ctx context.Context, maxLevels int, filter graph.Filter) (*Wrapper, error) {
	return w.walk(ctx, graph.DirOut, maxLevels, filter)
}

// TraverseOwnedBy is TraverseOwns upward.
func (w *Wrapper) TraverseOwnedBy(ctx context.Context, maxLevels int, filter graph.Filter) (*Wrapper, error) {
	return w.walk(ctx, graph.DirIn, maxLevels, filter)
}

func (w *Wrapper) walk(ctx context.Context, dir graph.Direction, maxLevels int, filter graph.Filter) (*Wrapper, error) {
	if maxLevels < 0 {
		return nil, errors.PreconditionErrorf("max levels must be >= 0, got %d", maxLevels)
	}
	if err := checkFilter(w.env.schema, filter); err != nil {
		return nil, err
	}
	ids, err := w.NodeIDs(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return w.empty()
	}
	return w.derivePlan(graph.Plan{
		Kind:      graph.PlanWalk,
		Start:     ids,
		Relation:  RelOwns,
		Direction: dir,
		MaxLevels: maxLevels,
		Filter:    filter,
	})
}

// DepthOption bounds the depths GenTraversalOut and GenTraversalIn return.
type DepthOption func(*depthRange)

type depthRange struct {
	min, max int
}

// MinDepth is the smallest depth included. Depth 0 is the start set; the
// default is 1.
func MinDepth(n int) DepthOption {
	return func(d *depthRange) { d.min = n }
}

// MaxDepth is the first depth excluded. The default is len(stages)+1.
func MaxDepth(n int) DepthOption {
	return func(d *depthRange) { d.max = n }
}

// GenTraversalOut follows stages outward from the current nodes. Depth t
// holds the nodes reached after stages 1..t; the result is the union of
// depths [min, max).
func (w *Wrapper) GenTraversalOut(ctx context.Context, stages []Stage, opts ...DepthOption) (*Wrapper, error) {
	return w.genTraversal(ctx, graph.DirOut, stages, opts)
}

// GenTraversalIn follows stages inward.
func (w *Wrapper) GenTraversalIn(ctx context.Context, stages []Stage, opts ...DepthOption) (*Wrapper, error) {
	return w.genTraversal(ctx, graph.DirIn, stages, opts)
}

func (w *Wrapper) genTraversal(ctx context.Context, dir graph.Direction, stages []Stage, opts []DepthOption) (*Wrapper, error) {
	if len(stages) == 0 {
		return nil, errors.PreconditionErrorf("traversal needs at least one stage")
	}
	d := depthRange{min: 1, max: len(stages) + 1}
	for _, opt := range opts {
		opt(&d)
	}
	if d.min < 0 || d.max > len(stages)+1 || d.min > d.max {
		return nil, errors.PreconditionErrorf("depth range [%d, %d) outside 0..%d", d.min, d.max, len(stages)+1)
	}
	planned := make([]graph.Stage, len(stages))
	for i, s := range stages {
		if err := checkStage(w.env.schema, s); err != nil {
			return nil, err
		}
		planned[i] = s.plan(dir)
	}
	return w.hops(ctx, planned, d.min, d.max)
}

func (w *Wrapper) hops(ctx context.Context, stages []graph.Stage, minDepth, maxDepth int) (*Wrapper, error) {
	ids, err := w.NodeIDs(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return w.empty()
	}
	return w.derivePlan(graph.Plan{
		Kind:     graph.PlanHops,
		Start:    ids,
		Stages:   stages,
		MinDepth: minDepth,
		MaxDepth: maxDepth,
	})
}
