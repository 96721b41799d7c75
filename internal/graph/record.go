package graph

import (
	"sort"
	"strings"
)

// EntityID is an opaque, store-assigned handle for a node or edge.
type EntityID string

// Record is one entity as last fetched from the store.
// Edges carry their endpoints in Out and In; nodes leave both empty.
type Record struct {
	ID    EntityID       `json:"id"`
	Class string         `json:"class"`
	Attrs map[string]any `json:"attrs,omitempty"`
	Out   EntityID       `json:"out,omitempty"`
	In    EntityID       `json:"in,omitempty"`
}

// IsEdge reports whether the record describes an edge.
func (r Record) IsEdge() bool {
	return r.Out != "" || r.In != ""
}

// Attr returns an attribute value and whether it was present.
func (r Record) Attr(key string) (any, bool) {
	v, ok := r.Attrs[key]
	return v, ok
}

// PublicAttrs returns the attributes without store-reserved keys
// (those starting with an underscore).
func (r Record) PublicAttrs() map[string]any {
	out := make(map[string]any, len(r.Attrs))
	for k, v := range r.Attrs {
		if IsReservedKey(k) {
			continue
		}
		out[k] = v
	}
	return out
}

// IsReservedKey reports whether an attribute key is store-internal.
func IsReservedKey(key string) bool {
	return strings.HasPrefix(key, "_")
}

// RecordSet is the cache shape used throughout: identifier to record.
type RecordSet map[EntityID]Record

// NewRecordSet indexes records by identifier. Later duplicates win.
func NewRecordSet(records []Record) RecordSet {
	set := make(RecordSet, len(records))
	for _, r := range records {
		set[r.ID] = r
	}
	return set
}

// IDs returns the identifiers in sorted order.
func (s RecordSet) IDs() []EntityID {
	ids := make([]EntityID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	SortIDs(ids)
	return ids
}

// Records returns the records sorted by identifier.
func (s RecordSet) Records() []Record {
	out := make([]Record, 0, len(s))
	for _, id := range s.IDs() {
		out = append(out, s[id])
	}
	return out
}

// Clone returns a shallow copy of the map. Records themselves are immutable.
func (s RecordSet) Clone() RecordSet {
	out := make(RecordSet, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// SortIDs sorts identifiers in place.
func SortIDs(ids []EntityID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

// IDStrings converts identifiers to plain strings, preserving order.
func IDStrings(ids []EntityID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
