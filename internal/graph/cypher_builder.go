package graph

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// CypherBuilder builds parameterised Cypher. Every value goes through a
// parameter; only validated identifiers are spliced into the text.
type CypherBuilder struct {
	params  map[string]any
	counter int
	clauses []string
}

// NewCypherBuilder creates a query builder
func NewCypherBuilder() *CypherBuilder {
	return &CypherBuilder{
		params:  make(map[string]any),
		counter: 0,
	}
}

// AddParam adds a parameter and returns its placeholder
func (b *CypherBuilder) AddParam(value any) string {
	paramName := fmt.Sprintf("p%d", b.counter)
	b.counter++
	b.params[paramName] = value
	return "$" + paramName
}

// Params returns all parameters for the query
func (b *CypherBuilder) Params() map[string]any {
	return b.params
}

// Line appends one clause line.
func (b *CypherBuilder) Line(format string, args ...any) {
	b.clauses = append(b.clauses, fmt.Sprintf(format, args...))
}

// String joins the clauses.
func (b *CypherBuilder) String() string {
	return strings.Join(b.clauses, "\n")
}

// Query packages text and params.
func (b *CypherBuilder) Query() QueryWithParams {
	return QueryWithParams{Query: b.String(), Params: b.Params()}
}

// Label validates a node label or relationship type for splicing.
func (b *CypherBuilder) Label(name string) (string, error) {
	if !isValidIdentifier(name) {
		return "", fmt.Errorf("invalid label: %s (must be alphanumeric + underscore)", name)
	}
	return name, nil
}

// Labels renders ":A:B:C" for a class and its ancestors.
func (b *CypherBuilder) Labels(names ...string) (string, error) {
	var sb strings.Builder
	for _, n := range names {
		l, err := b.Label(n)
		if err != nil {
			return "", err
		}
		sb.WriteString(":" + l)
	}
	return sb.String(), nil
}

// Prop renders v.`key`, escaping backticks inside the key.
func (b *CypherBuilder) Prop(variable, key string) string {
	return fmt.Sprintf("%s.`%s`", variable, strings.ReplaceAll(key, "`", "``"))
}

// SetClause renders "v.`a` = $p1, v.`b` = $p2" in sorted key order.
// Nil values clear the property.
func (b *CypherBuilder) SetClause(variable string, set map[string]any) string {
	keys := sortedKeys(set)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := set[k]
		if IsNull(v) {
			parts = append(parts, fmt.Sprintf("%s = null", b.Prop(variable, k)))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s = %s", b.Prop(variable, k), b.AddParam(v)))
	}
	return strings.Join(parts, ", ")
}

// FilterConditions renders a Filter as a list of boolean expressions on variable.
func (b *CypherBuilder) FilterConditions(variable string, f Filter) ([]string, error) {
	var conds []string
	if f.Types != nil {
		if len(f.Types.Classes) > 0 {
			conds = append(conds, fmt.Sprintf("%s IN %s", b.Prop(variable, ClassProperty), b.AddParam(f.Types.Classes)))
		}
		if f.Types.InstanceOf != "" {
			l, err := b.Label(f.Types.InstanceOf)
			if err != nil {
				return nil, err
			}
			conds = append(conds, fmt.Sprintf("%s:%s", variable, l))
		}
	}
	for _, k := range f.Where.Keys() {
		c, err := b.predicate(b.Prop(variable, k), f.Where[k])
		if err != nil {
			return nil, err
		}
		conds = append(conds, c)
	}
	return conds, nil
}

func (b *CypherBuilder) predicate(prop string, p Predicate) (string, error) {
	switch p.Op {
	case OpEq:
		return fmt.Sprintf("%s = %s", prop, b.AddParam(p.Value)), nil
	case OpIn:
		param := b.AddParam(p.Values)
		return fmt.Sprintf("(CASE WHEN valueType(%s) STARTS WITH 'LIST' THEN any(x IN %s WHERE x IN %s) ELSE %s IN %s END)",
			prop, prop, param, prop, param), nil
	case OpCmp:
		if !isComparator(p.Comparator) {
			return "", fmt.Errorf("unknown comparator %q", p.Comparator)
		}
		return fmt.Sprintf("%s %s %s", prop, p.Comparator, b.AddParam(p.Bound)), nil
	case OpRegex:
		return fmt.Sprintf("%s =~ %s", prop, b.AddParam(p.Pattern)), nil
	}
	return "", fmt.Errorf("unknown predicate op %q", p.Op)
}

// Where joins conditions into a WHERE clause, or returns "" when there are none.
func Where(conds ...string) string {
	if len(conds) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(conds, " AND ")
}

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// isValidIdentifier validates that a string can be safely used as a Cypher identifier
// Only allows alphanumeric characters and underscores (prevents injection)
func isValidIdentifier(s string) bool {
	return s != "" && identifierPattern.MatchString(s)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
