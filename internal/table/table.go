// Package table holds the tabular snapshot of a node or edge set.
package table

import (
	"fmt"
	"sort"

	"github.com/fruitflybrain/neuroarch/internal/errors"
	"github.com/fruitflybrain/neuroarch/internal/graph"
)

// Reserved column names.
const (
	ColumnID    = "id"
	ColumnClass = "class"
	ColumnIn    = "in"
	ColumnOut   = "out"
)

// Row is one keyed record. Values missing from the map are null.
type Row struct {
	Key    string         `json:"id" yaml:"id"`
	Values map[string]any `json:"values" yaml:"values"`
}

// Get returns the cell in column col.
func (r Row) Get(col string) (any, bool) {
	v, ok := r.Values[col]
	if !ok || graph.IsNull(v) {
		return nil, false
	}
	return v, true
}

// Table is an ordered set of rows over an ordered header.
type Table struct {
	Columns []string `json:"columns" yaml:"columns"`
	Rows    []Row    `json:"rows" yaml:"rows"`

	index map[string]int
}

// New creates an empty table with the given header.
func New(columns ...string) *Table {
	return &Table{Columns: append([]string(nil), columns...)}
}

// Len is the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Append adds a row. Columns not yet in the header are appended to it.
func (t *Table) Append(key string, values map[string]any) {
	for _, c := range sortedKeys(values) {
		if !t.HasColumn(c) {
			t.Columns = append(t.Columns, c)
		}
	}
	t.Rows = append(t.Rows, Row{Key: key, Values: values})
	t.index = nil
}

// HasColumn reports whether col is in the header.
func (t *Table) HasColumn(col string) bool {
	for _, c := range t.Columns {
		if c == col {
			return true
		}
	}
	return false
}

// Keys returns the row keys in row order.
func (t *Table) Keys() []string {
	if t == nil {
		return nil
	}
	keys := make([]string, len(t.Rows))
	for i, r := range t.Rows {
		keys[i] = r.Key
	}
	return keys
}

// Lookup finds the row with key.
func (t *Table) Lookup(key string) (Row, bool) {
	if t == nil {
		return Row{}, false
	}
	if t.index == nil || len(t.index) != len(t.Rows) {
		t.index = make(map[string]int, len(t.Rows))
		for i, r := range t.Rows {
			t.index[r.Key] = i
		}
	}
	i, ok := t.index[key]
	if !ok {
		return Row{}, false
	}
	return t.Rows[i], true
}

// Validate checks for empty or duplicate keys and duplicate columns.
func (t *Table) Validate() error {
	if t == nil {
		return nil
	}
	cols := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		if cols[c] {
			return errors.ValidationErrorf("duplicate column %q", c)
		}
		cols[c] = true
	}
	seen := make(map[string]bool, len(t.Rows))
	for i, r := range t.Rows {
		if r.Key == "" {
			return errors.ValidationErrorf("row %d has an empty key", i)
		}
		if seen[r.Key] {
			return errors.ValidationErrorf("duplicate row key %q", r.Key)
		}
		seen[r.Key] = true
	}
	return nil
}

// Clone returns a deep copy of the header and rows.
func (t *Table) Clone() *Table {
	c := New(t.Columns...)
	c.Rows = make([]Row, len(t.Rows))
	for i, r := range t.Rows {
		vals := make(map[string]any, len(r.Values))
		for k, v := range r.Values {
			vals[k] = v
		}
		c.Rows[i] = Row{Key: r.Key, Values: vals}
	}
	return c
}

// SortRows orders rows by key.
func (t *Table) SortRows() {
	sort.SliceStable(t.Rows, func(i, j int) bool { return t.Rows[i].Key < t.Rows[j].Key })
	t.index = nil
}

// Equal reports whether two tables have the same column set and the same
// keyed rows, ignoring row and column order.
func Equal(a, b *Table) bool {
	if a.Len() != b.Len() {
		return false
	}
	ac, bc := a.columnSet(), b.columnSet()
	if len(ac) != len(bc) {
		return false
	}
	for c := range ac {
		if !bc[c] {
			return false
		}
	}
	for _, ra := range a.Rows {
		rb, ok := b.Lookup(ra.Key)
		if !ok {
			return false
		}
		for c := range ac {
			va, _ := ra.Get(c)
			vb, _ := rb.Get(c)
			if !graph.ValuesEqual(va, vb) {
				return false
			}
		}
	}
	return true
}

func (t *Table) columnSet() map[string]bool {
	out := map[string]bool{}
	if t == nil {
		return out
	}
	for _, c := range t.Columns {
		out[c] = true
	}
	return out
}

// String summarises the table for logs.
func (t *Table) String() string {
	return fmt.Sprintf("table(%d rows x %d columns)", t.Len(), len(t.Columns))
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
