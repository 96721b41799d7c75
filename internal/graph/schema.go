package graph

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fruitflybrain/neuroarch/internal/errors"
)

// Schema is the registry of node and edge classes.
type Schema interface {
	HasNodeClass(class string) bool
	HasEdgeClass(class string) bool
	// Plural is the collection name used for a node class, e.g. "neurons".
	Plural(class string) string
	// Ancestors lists the superclasses of class, nearest first.
	Ancestors(class string) []string
	// IsA reports whether class equals super or inherits from it.
	IsA(class, super string) bool
}

// NodeClass describes one registered node class.
type NodeClass struct {
	Name   string `yaml:"name"`
	Plural string `yaml:"plural,omitempty"`
	Parent string `yaml:"parent,omitempty"`
}

// EdgeClass describes one registered edge class.
type EdgeClass struct {
	Name string `yaml:"name"`
}

// StaticSchema is a Schema loaded once from YAML or built in code.
type StaticSchema struct {
	Nodes []NodeClass `yaml:"nodes"`
	Edges []EdgeClass `yaml:"edges"`

	nodes map[string]NodeClass
	edges map[string]bool
}

// NewStaticSchema indexes the classes and checks parents exist and do not cycle.
func NewStaticSchema(nodes []NodeClass, edges []EdgeClass) (*StaticSchema, error) {
	s := &StaticSchema{Nodes: nodes, Edges: edges}
	if err := s.index(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *StaticSchema) index() error {
	s.nodes = make(map[string]NodeClass, len(s.Nodes))
	s.edges = make(map[string]bool, len(s.Edges))
	for _, n := range s.Nodes {
		if !isValidIdentifier(n.Name) {
			return errors.ValidationErrorf("invalid node class name %q", n.Name)
		}
		if _, dup := s.nodes[n.Name]; dup {
			return errors.ValidationErrorf("node class %q registered twice", n.Name)
		}
		s.nodes[n.Name] = n
	}
	for _, e := range s.Edges {
		if !isValidIdentifier(e.Name) {
			return errors.ValidationErrorf("invalid edge class name %q", e.Name)
		}
		s.edges[e.Name] = true
	}
	collections := make(map[string]string, len(s.Nodes))
	for _, n := range s.Nodes {
		plural := s.Plural(n.Name)
		if !isValidIdentifier(plural) {
			return errors.ValidationErrorf("node class %q has invalid plural %q", n.Name, plural)
		}
		if other, dup := collections[plural]; dup {
			return errors.ValidationErrorf("node classes %q and %q share the plural %q", other, n.Name, plural)
		}
		collections[plural] = n.Name
	}
	for _, n := range s.Nodes {
		seen := map[string]bool{n.Name: true}
		for p := n.Parent; p != ""; p = s.nodes[p].Parent {
			if _, ok := s.nodes[p]; !ok {
				return errors.ValidationErrorf("node class %q has unknown parent %q", n.Name, p)
			}
			if seen[p] {
				return errors.ValidationErrorf("node class %q has a cyclic parent chain", n.Name)
			}
			seen[p] = true
		}
	}
	return nil
}

// LoadSchema reads a YAML schema file:
//
//	nodes:
//	  - {name: Neuron, plural: neurons, parent: Node}
//	edges:
//	  - {name: Owns}
func LoadSchema(path string) (*StaticSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.FileSystemErrorf(err, "read schema %s", path)
	}
	var s StaticSchema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, errors.ValidationErrorf("parse schema %s: %v", path, err)
	}
	if err := s.index(); err != nil {
		return nil, fmt.Errorf("schema %s: %w", path, err)
	}
	return &s, nil
}

// HasNodeClass reports whether class is a registered node class.
func (s *StaticSchema) HasNodeClass(class string) bool {
	_, ok := s.nodes[class]
	return ok
}

// HasEdgeClass reports whether class is a registered edge class.
func (s *StaticSchema) HasEdgeClass(class string) bool {
	return s.edges[class]
}

// Plural returns the declared plural, or a lower-cased "+s" fallback.
func (s *StaticSchema) Plural(class string) string {
	if n, ok := s.nodes[class]; ok && n.Plural != "" {
		return n.Plural
	}
	return strings.ToLower(class) + "s"
}

// Ancestors lists the superclasses of class, nearest first.
func (s *StaticSchema) Ancestors(class string) []string {
	var out []string
	for p := s.nodes[class].Parent; p != ""; p = s.nodes[p].Parent {
		out = append(out, p)
	}
	return out
}

// IsA reports whether class is super or one of its subclasses.
func (s *StaticSchema) IsA(class, super string) bool {
	if class == super {
		return true
	}
	for _, a := range s.Ancestors(class) {
		if a == super {
			return true
		}
	}
	return false
}

// Subclasses returns super and every registered class inheriting from it, sorted.
func (s *StaticSchema) Subclasses(super string) []string {
	var out []string
	for name := range s.nodes {
		if s.IsA(name, super) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// DefaultSchema registers the core neuroarch classes.
func DefaultSchema() *StaticSchema {
	s, err := NewStaticSchema(
		[]NodeClass{
			{Name: "Node", Plural: "nodes"},
			{Name: "Circuit", Plural: "circuits", Parent: "Node"},
			{Name: "LPU", Plural: "lpus", Parent: "Circuit"},
			{Name: "Pattern", Plural: "patterns", Parent: "Circuit"},
			{Name: "Interface", Plural: "interfaces", Parent: "Node"},
			{Name: "Port", Plural: "ports", Parent: "Node"},
			{Name: "NeuronAndFragment", Plural: "neuronandfragments", Parent: "Node"},
			{Name: "Neuron", Plural: "neurons", Parent: "NeuronAndFragment"},
			{Name: "NeuronFragment", Plural: "neuronfragments", Parent: "NeuronAndFragment"},
			{Name: "SynapseModel", Plural: "synapsemodels", Parent: "Node"},
			{Name: "Synapse", Plural: "synapses", Parent: "SynapseModel"},
			{Name: "InferredSynapse", Plural: "inferredsynapses", Parent: "SynapseModel"},
			{Name: "DataSource", Plural: "datasources", Parent: "Node"},
			{Name: "QueryResult", Plural: "queryresults", Parent: "Node"},
		},
		[]EdgeClass{
			{Name: "Owns"},
			{Name: "SendsTo"},
			{Name: "HasQueryResults"},
			{Name: "HasData"},
		},
	)
	if err != nil {
		panic(err)
	}
	return s
}
