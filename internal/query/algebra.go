package query

import (
	"github.com/fruitflybrain/neuroarch/internal/errors"
)

// Union returns w + other. Both operands must be executed; the result is
// executed and holds no edges.
func (w *Wrapper) Union(other *Wrapper) (*Wrapper, error) {
	return w.combine(OpUnion, other)
}

// Intersect returns w & other.
func (w *Wrapper) Intersect(other *Wrapper) (*Wrapper, error) {
	return w.combine(OpIntersect, other)
}

// Difference returns w - other.
func (w *Wrapper) Difference(other *Wrapper) (*Wrapper, error) {
	return w.combine(OpDifference, other)
}

// SymmetricDifference returns w ^ other.
func (w *Wrapper) SymmetricDifference(other *Wrapper) (*Wrapper, error) {
	return w.combine(OpSymmetricDifference, other)
}

func (w *Wrapper) combine(op Op, other *Wrapper) (*Wrapper, error) {
	if err := checkOperands(op, w, other); err != nil {
		return nil, err
	}
	out := w.derive(OpNode{Op: op, Left: w.expr, Right: other.expr})
	out.nodes = Combine(op, w.nodes, other.nodes)
	out.nodesExecuted = true
	return out, nil
}

// Update is the in-place form: w = w op other. The edge cache is dropped
// since the node set changed.
func (w *Wrapper) Update(op Op, other *Wrapper) error {
	if err := checkOperands(op, w, other); err != nil {
		return err
	}
	w.expr = OpNode{Op: op, Left: w.expr, Right: other.expr}
	w.nodes = Combine(op, w.nodes, other.nodes)
	w.edges, w.edgesExecuted = nil, false
	return nil
}

func checkOperands(op Op, w, other *Wrapper) error {
	if !op.Valid() {
		return errors.PreconditionErrorf("unknown set operator %q", op)
	}
	if w == nil || other == nil {
		return errors.PreconditionErrorf("%s needs two operands", op)
	}
	if !w.nodesExecuted || !other.nodesExecuted {
		return errors.PreconditionErrorf("%s needs executed operands", op)
	}
	return nil
}

// Equal reports whether both wrappers are executed and hold the same node
// identifiers. Unexecuted wrappers are never equal.
func (w *Wrapper) Equal(other *Wrapper) bool {
	if w == nil || other == nil || !w.nodesExecuted || !other.nodesExecuted {
		return false
	}
	if len(w.nodes) != len(other.nodes) {
		return false
	}
	for id := range w.nodes {
		if _, ok := other.nodes[id]; !ok {
			return false
		}
	}
	return true
}
