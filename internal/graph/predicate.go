package graph

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/fruitflybrain/neuroarch/internal/errors"
)

// PredicateOp tags the variant held by a Predicate.
type PredicateOp string

const (
	OpEq    PredicateOp = "eq"
	OpIn    PredicateOp = "in"
	OpCmp   PredicateOp = "cmp"
	OpRegex PredicateOp = "regex"
)

// RegexMarker prefixes a string value that ParsePredicate reads as a regex.
const RegexMarker = "/r"

// Comparators accepted by Cmp.
var Comparators = []string{"<", ">", "=", "<=", ">="}

// Predicate is an attribute test. Build one with Eq, In, Cmp or Regex.
type Predicate struct {
	Op         PredicateOp `json:"op"`
	Value      any         `json:"value,omitempty"`
	Values     []any       `json:"values,omitempty"`
	Comparator string      `json:"comparator,omitempty"`
	Bound      float64     `json:"bound,omitempty"`
	Pattern    string      `json:"pattern,omitempty"`
}

// Eq matches attributes equal to v.
func Eq(v any) Predicate {
	return Predicate{Op: OpEq, Value: v}
}

// In matches attributes equal to one of vs. A list-valued attribute
// matches when any of its elements is in vs.
func In(vs ...any) Predicate {
	return Predicate{Op: OpIn, Values: vs}
}

// Cmp matches numeric attributes against bound with op (<, >, =, <=, >=).
func Cmp(op string, bound float64) Predicate {
	return Predicate{Op: OpCmp, Comparator: op, Bound: bound}
}

// Regex matches string attributes whose whole value matches pattern.
func Regex(pattern string) Predicate {
	return Predicate{Op: OpRegex, Pattern: pattern}
}

// Validate checks the variant is well formed.
func (p Predicate) Validate() error {
	switch p.Op {
	case OpEq, OpIn:
		return nil
	case OpCmp:
		if !isComparator(p.Comparator) {
			return errors.PreconditionErrorf("unknown comparator %q", p.Comparator)
		}
		return nil
	case OpRegex:
		if _, err := compileAnchored(p.Pattern); err != nil {
			return errors.PreconditionErrorf("invalid regex %q: %v", p.Pattern, err)
		}
		return nil
	default:
		return errors.PreconditionErrorf("unknown predicate op %q", p.Op)
	}
}

// Match evaluates the predicate against an attribute value.
func (p Predicate) Match(v any, present bool) bool {
	if !present {
		return false
	}
	switch p.Op {
	case OpEq:
		return ValuesEqual(v, p.Value)
	case OpIn:
		if list, ok := asList(v); ok {
			for _, elem := range list {
				if p.contains(elem) {
					return true
				}
			}
			return false
		}
		return p.contains(v)
	case OpCmp:
		f, ok := ToFloat(v)
		if !ok {
			return false
		}
		switch p.Comparator {
		case "<":
			return f < p.Bound
		case ">":
			return f > p.Bound
		case "=":
			return f == p.Bound
		case "<=":
			return f <= p.Bound
		case ">=":
			return f >= p.Bound
		}
		return false
	case OpRegex:
		s, ok := v.(string)
		if !ok {
			return false
		}
		re, err := compileAnchored(p.Pattern)
		return err == nil && re.MatchString(s)
	}
	return false
}

func (p Predicate) contains(v any) bool {
	for _, candidate := range p.Values {
		if ValuesEqual(v, candidate) {
			return true
		}
	}
	return false
}

// String renders the predicate for logs.
func (p Predicate) String() string {
	switch p.Op {
	case OpEq:
		return fmt.Sprintf("= %v", p.Value)
	case OpIn:
		return fmt.Sprintf("in %v", p.Values)
	case OpCmp:
		return fmt.Sprintf("%s %v", p.Comparator, p.Bound)
	case OpRegex:
		return fmt.Sprintf("matches /%s/", p.Pattern)
	}
	return string(p.Op)
}

// Predicates maps attribute names to tests. All must hold.
type Predicates map[string]Predicate

// Keys returns the attribute names in sorted order.
func (ps Predicates) Keys() []string {
	keys := make([]string, 0, len(ps))
	for k := range ps {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Match reports whether attrs satisfy every predicate.
func (ps Predicates) Match(attrs map[string]any) bool {
	for _, k := range ps.Keys() {
		v, ok := attrs[k]
		if !ps[k].Match(v, ok) {
			return false
		}
	}
	return true
}

// Validate validates every predicate.
func (ps Predicates) Validate() error {
	for _, k := range ps.Keys() {
		if err := ps[k].Validate(); err != nil {
			return fmt.Errorf("predicate on %q: %w", k, err)
		}
	}
	return nil
}

// ParsePredicate decodes the value-shape encoding used by YAML/JSON inputs:
//
//	[">", 5]        -> Cmp(">", 5)
//	["/rfoo.*"]     -> Regex("foo.*")
//	["a", "b"]      -> In("a", "b")
//	"a"             -> Eq("a")
//
// A literal one-element list whose string starts with "/r" is always read as a regex.
func ParsePredicate(v any) (Predicate, error) {
	list, ok := asList(v)
	if !ok {
		return Eq(v), nil
	}

	if len(list) == 2 {
		if op, ok := list[0].(string); ok && isComparator(op) {
			bound, ok := ToFloat(list[1])
			if !ok {
				return Predicate{}, errors.PreconditionErrorf("comparator %q needs a numeric bound, got %T", op, list[1])
			}
			return Cmp(op, bound), nil
		}
	}

	if len(list) == 1 {
		if s, ok := list[0].(string); ok && strings.HasPrefix(s, RegexMarker) {
			p := Regex(strings.TrimPrefix(s, RegexMarker))
			if err := p.Validate(); err != nil {
				return Predicate{}, err
			}
			return p, nil
		}
	}

	return In(list...), nil
}

// ParsePredicates decodes a whole attribute map with ParsePredicate.
func ParsePredicates(raw map[string]any) (Predicates, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(Predicates, len(raw))
	for k, v := range raw {
		p, err := ParsePredicate(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		out[k] = p
	}
	return out, nil
}

func isComparator(s string) bool {
	for _, c := range Comparators {
		if s == c {
			return true
		}
	}
	return false
}

var regexCache sync.Map

func compileAnchored(pattern string) (*regexp.Regexp, error) {
	if re, ok := regexCache.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, err
	}
	regexCache.Store(pattern, re)
	return re, nil
}
