package graph

import (
	"fmt"

	"github.com/fruitflybrain/neuroarch/internal/errors"
)

// Ref points at a node either by store identifier or by a variable bound
// earlier in the same script.
type Ref struct {
	ID  EntityID `json:"id,omitempty"`
	Var string   `json:"var,omitempty"`
}

// IDRef references an existing entity.
func IDRef(id EntityID) Ref { return Ref{ID: id} }

// VarRef references a vertex created earlier in the same script.
func VarRef(name string) Ref { return Ref{Var: name} }

func (r Ref) String() string {
	if r.Var != "" {
		return "$" + r.Var
	}
	return string(r.ID)
}

// Statement is one mutation inside a Script.
type Statement interface {
	statement()
}

// CreateVertex creates a node of Class with Props and binds it to Var.
// Unique names attributes no other Class node may share; a clash aborts
// the transaction with errors.ErrDuplicate.
type CreateVertex struct {
	Var    string
	Class  string
	Props  map[string]any
	Unique []string
}

// UpdateVertex assigns Set on node ID. A nil value clears the attribute.
type UpdateVertex struct {
	ID  EntityID
	Set map[string]any
}

// DeleteVertex removes node ID and every edge touching it.
type DeleteVertex struct {
	ID EntityID
}

// CreateEdge creates an edge of Class from Out to In and binds it to Var.
type CreateEdge struct {
	Var   string
	Class string
	Out   Ref
	In    Ref
	Props map[string]any
}

// UpdateEdge assigns Set on every Class edge from Out to In.
type UpdateEdge struct {
	Class string
	Out   EntityID
	In    EntityID
	Set   map[string]any
}

// DeleteEdge removes every Class edge from Out to In.
type DeleteEdge struct {
	Class string
	Out   EntityID
	In    EntityID
}

func (CreateVertex) statement() {}
func (UpdateVertex) statement() {}
func (DeleteVertex) statement() {}
func (CreateEdge) statement()   {}
func (UpdateEdge) statement()   {}
func (DeleteEdge) statement()   {}

// Script is a write transaction: statements run in order as one atomic unit
// and the records bound to Return are handed back in order.
type Script struct {
	Statements []Statement
	Return     []string
}

// Add appends a statement.
func (s *Script) Add(stmt Statement) {
	s.Statements = append(s.Statements, stmt)
}

// Len is the number of statements.
func (s Script) Len() int {
	return len(s.Statements)
}

// Validate checks variables are bound before use and that returned
// variables exist.
func (s Script) Validate() error {
	bound := make(map[string]bool)
	bind := func(v string) error {
		if v == "" {
			return nil
		}
		if bound[v] {
			return errors.PreconditionErrorf("variable %q bound twice", v)
		}
		bound[v] = true
		return nil
	}
	use := func(r Ref) error {
		if r.Var != "" && !bound[r.Var] {
			return errors.PreconditionErrorf("variable %q used before it is bound", r.Var)
		}
		if r.Var == "" && r.ID == "" {
			return errors.PreconditionErrorf("empty reference")
		}
		return nil
	}

	for i, stmt := range s.Statements {
		var err error
		switch st := stmt.(type) {
		case CreateVertex:
			if st.Class == "" {
				err = errors.PreconditionErrorf("create vertex without class")
				break
			}
			for _, attr := range st.Unique {
				if IsNull(st.Props[attr]) {
					err = errors.PreconditionErrorf("unique attribute %q of %s is not set", attr, st.Class)
					break
				}
			}
			if err == nil {
				err = bind(st.Var)
			}
		case CreateEdge:
			if err = use(st.Out); err == nil {
				if err = use(st.In); err == nil {
					err = bind(st.Var)
				}
			}
		case UpdateVertex, DeleteVertex, UpdateEdge, DeleteEdge:
		default:
			err = errors.InternalErrorf("unknown statement %T", stmt)
		}
		if err != nil {
			return fmt.Errorf("statement %d: %w", i, err)
		}
	}

	for _, v := range s.Return {
		if !bound[v] {
			return errors.PreconditionErrorf("returned variable %q is never bound", v)
		}
	}
	return nil
}
