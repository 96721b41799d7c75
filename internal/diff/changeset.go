package diff

import (
	"encoding/json"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/fruitflybrain/neuroarch/internal/errors"
	"github.com/fruitflybrain/neuroarch/internal/table"
)

// KeySet is a set of row keys. It encodes as a sorted list.
type KeySet map[string]struct{}

// Add inserts keys.
func (s KeySet) Add(keys ...string) {
	for _, k := range keys {
		s[k] = struct{}{}
	}
}

// Has reports membership.
func (s KeySet) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Sorted returns the keys in order.
func (s KeySet) Sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// MarshalYAML implements yaml.Marshaler.
func (s KeySet) MarshalYAML() (any, error) {
	return s.Sorted(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *KeySet) UnmarshalYAML(node *yaml.Node) error {
	var keys []string
	if err := node.Decode(&keys); err != nil {
		return err
	}
	*s = KeySet{}
	s.Add(keys...)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (s KeySet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *KeySet) UnmarshalJSON(data []byte) error {
	var keys []string
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}
	*s = KeySet{}
	s.Add(keys...)
	return nil
}

// ChangeSet is the result of a diff: rows to add keyed by row key, rows to
// modify keyed by row key with the attributes to assign (nil clears), and
// rows to delete.
type ChangeSet struct {
	Add map[string]map[string]any `yaml:"add" json:"add"`
	Mod map[string]map[string]any `yaml:"mod" json:"mod"`
	Del KeySet                    `yaml:"del" json:"del"`

	// Renames maps old to new keys for rows paired as renames. Informational:
	// each rename is already present as a Del plus an Add.
	Renames map[string]string `yaml:"renames,omitempty" json:"renames,omitempty"`
}

// New returns an empty change-set.
func New() *ChangeSet {
	return &ChangeSet{
		Add: map[string]map[string]any{},
		Mod: map[string]map[string]any{},
		Del: KeySet{},
	}
}

// Empty reports whether the change-set changes nothing.
func (c *ChangeSet) Empty() bool {
	return c == nil || (len(c.Add) == 0 && len(c.Mod) == 0 && len(c.Del) == 0)
}

// Counts summarises the change-set.
type Counts struct {
	Add int `json:"add"`
	Mod int `json:"mod"`
	Del int `json:"del"`
}

// Counts returns the number of entries per map.
func (c *ChangeSet) Counts() Counts {
	if c == nil {
		return Counts{}
	}
	return Counts{Add: len(c.Add), Mod: len(c.Mod), Del: len(c.Del)}
}

// Validate checks that no key appears in more than one map.
func (c *ChangeSet) Validate() error {
	for k := range c.Add {
		if _, ok := c.Mod[k]; ok {
			return errors.ValidationErrorf("key %q is both added and modified", k)
		}
		if c.Del.Has(k) {
			return errors.ValidationErrorf("key %q is both added and deleted", k)
		}
	}
	for k := range c.Mod {
		if c.Del.Has(k) {
			return errors.ValidationErrorf("key %q is both modified and deleted", k)
		}
	}
	return nil
}

// SortedKeys returns sorted keys of an entry map.
func SortedKeys(m map[string]map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// WriteYAML encodes the change-set.
func (c *ChangeSet) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}

// ReadYAML decodes a change-set and validates it.
func ReadYAML(r io.Reader) (*ChangeSet, error) {
	c := New()
	if err := yaml.NewDecoder(r).Decode(c); err != nil && err != io.EOF {
		return nil, errors.ValidationErrorf("parse change-set: %v", err)
	}
	if c.Add == nil {
		c.Add = map[string]map[string]any{}
	}
	if c.Mod == nil {
		c.Mod = map[string]map[string]any{}
	}
	if c.Del == nil {
		c.Del = KeySet{}
	}
	for _, m := range []map[string]map[string]any{c.Add, c.Mod} {
		for _, entry := range m {
			for k, v := range entry {
				entry[k] = table.Normalize(v)
			}
		}
	}
	return c, c.Validate()
}

// ReadFile loads a YAML change-set file.
func ReadFile(path string) (*ChangeSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.FileSystemErrorf(err, "open change-set %s", path)
	}
	defer f.Close()
	return ReadYAML(f)
}
