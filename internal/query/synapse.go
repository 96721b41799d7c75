package query

import (
	"context"

	"github.com/fruitflybrain/neuroarch/internal/graph"
)

// Synapse count fields.
const (
	FieldN   = "N"
	FieldNHP = "NHP"
)

// SynapseOptions filters the synapse nodes a connectivity query passes through.
type SynapseOptions struct {
	// Threshold bounds Field. Zero means no bound, except for FieldNHP
	// which then requires a positive count.
	Threshold float64
	// Comparator applied to Threshold. Defaults to ">=" for SynapsesTo
	// and ">" elsewhere.
	Comparator string
	// Field is the count attribute, FieldN by default.
	Field string
	// Inferred also follows InferredSynapse nodes.
	Inferred bool
	// Fragments matches NeuronAndFragment instead of Neuron endpoints.
	Fragments bool
}

func (o SynapseOptions) synapseStage(defaultCmp string) Stage {
	classes := []string{ClassSynapse}
	if o.Inferred {
		classes = append(classes, ClassInferredSynapse)
	}
	st := Follow(RelSendsTo).Classes(classes...)

	field := o.Field
	if field == "" {
		field = FieldN
	}
	cmp := o.Comparator
	if cmp == "" {
		cmp = defaultCmp
	}
	if o.Threshold != 0 || field == FieldNHP {
		st = st.Where(field, graph.Cmp(cmp, o.Threshold))
	}
	return st
}

func (o SynapseOptions) neuronStage() Stage {
	if o.Fragments {
		return Follow(RelSendsTo).InstanceOf(ClassNeuronAndFragment)
	}
	return Follow(RelSendsTo).InstanceOf(ClassNeuron)
}

// SynapsesTo returns the synapses carrying a connection from the current
// nodes to the nodes of other.
func (w *Wrapper) SynapsesTo(ctx context.Context, other *Wrapper, opts SynapseOptions) (*Wrapper, error) {
	return w.synapsesBetween(ctx, other, opts.synapseStage(">="))
}

// ConnectingSynapses returns the synapses between nodes of the current set.
func (w *Wrapper) ConnectingSynapses(ctx context.Context, opts SynapseOptions) (*Wrapper, error) {
	return w.synapsesBetween(ctx, w, opts.synapseStage(">"))
}

// WithConnectingSynapses returns the current nodes plus ConnectingSynapses.
func (w *Wrapper) WithConnectingSynapses(ctx context.Context, opts SynapseOptions) (*Wrapper, error) {
	syn, err := w.ConnectingSynapses(ctx, opts)
	if err != nil {
		return nil, err
	}
	return w.Union(syn)
}

func (w *Wrapper) synapsesBetween(ctx context.Context, other *Wrapper, stage Stage) (*Wrapper, error) {
	from, err := w.GenTraversalOut(ctx, []Stage{stage})
	if err != nil {
		return nil, err
	}
	to, err := other.GenTraversalIn(ctx, []Stage{stage})
	if err != nil {
		return nil, err
	}
	if err := from.Execute(ctx, ExecOptions{}); err != nil {
		return nil, err
	}
	if err := to.Execute(ctx, ExecOptions{}); err != nil {
		return nil, err
	}
	return from.Intersect(to)
}

// PostSynapticNeurons returns the neurons the current nodes send synapses to.
func (w *Wrapper) PostSynapticNeurons(ctx context.Context, opts SynapseOptions) (*Wrapper, error) {
	return w.GenTraversalOut(ctx, []Stage{opts.synapseStage(">"), opts.neuronStage()}, MinDepth(2))
}

// PreSynapticNeurons returns the neurons sending synapses to the current nodes.
func (w *Wrapper) PreSynapticNeurons(ctx context.Context, opts SynapseOptions) (*Wrapper, error) {
	return w.GenTraversalIn(ctx, []Stage{opts.synapseStage(">"), opts.neuronStage()}, MinDepth(2))
}
