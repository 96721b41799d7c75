package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fruitflybrain/neuroarch/internal/graph"
	"github.com/fruitflybrain/neuroarch/internal/query"
	"github.com/fruitflybrain/neuroarch/internal/table"
)

// selection describes the starting node set of a command.
type selection struct {
	lang  string
	text  string
	class string
	where []string
	ids   []string
	minus []string
}

func (sel *selection) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&sel.lang, "lang", "", "dialect of --text (cypher, gremlin or plan; default: the store's)")
	cmd.Flags().StringVar(&sel.text, "text", "", "raw read query")
	cmd.Flags().StringVar(&sel.class, "class", "", "select nodes of this class")
	cmd.Flags().StringArrayVar(&sel.where, "where", nil, "attribute filter as attr=value (repeatable)")
	cmd.Flags().StringSliceVar(&sel.ids, "id", nil, "select nodes by store identifier")
	cmd.Flags().StringSliceVar(&sel.minus, "minus-class", nil, "remove nodes of these classes from the selection")
}

// wrapper builds the (unexecuted) wrapper the flags describe.
func (sel *selection) wrapper(ctx context.Context, s *session) (*query.Wrapper, error) {
	opts := s.queryOptions()
	preds, err := parseWhere(sel.where)
	if err != nil {
		return nil, err
	}
	var w *query.Wrapper
	switch {
	case sel.text != "":
		lang := s.store.Dialect()
		if sel.lang != "" {
			if lang, err = graph.ParseLanguage(sel.lang); err != nil {
				return nil, err
			}
		}
		w, err = query.FromQuery(s.store, graph.QueryString{Lang: lang, Text: sel.text}, opts...)
	case sel.class != "":
		w, err = query.FromClass(s.store, sel.class, preds, opts...)
	case len(sel.ids) > 0:
		ids := make([]graph.EntityID, len(sel.ids))
		for i, id := range sel.ids {
			ids[i] = graph.EntityID(id)
		}
		w, err = query.FromIdentifiers(ctx, s.store, ids, opts...)
	default:
		return nil, fmt.Errorf("select nodes with --text, --class or --id")
	}
	if err != nil {
		return nil, err
	}
	if sel.class == "" && len(preds) > 0 {
		if w, err = w.Has(ctx, graph.Filter{Where: preds}); err != nil {
			return nil, err
		}
	}

	for _, class := range sel.minus {
		other, err := query.FromClass(s.store, class, nil, opts...)
		if err != nil {
			return nil, err
		}
		if w, err = w.Difference(other); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// parseWhere turns attr=value flags into predicates. Values are read as
// JSON when they parse, so name=EB matches a string, N=4 a number and
// 'N=[">", 4]' a comparison.
func parseWhere(raw []string) (graph.Predicates, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	values := make(map[string]any, len(raw))
	for _, kv := range raw {
		k, v, ok := strings.Cut(kv, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("filter %q is not attr=value", kv)
		}
		values[k] = parseValue(v)
	}
	return graph.ParsePredicates(values)
}

// parseValue decodes a JSON scalar or list, falling back to the raw string.
func parseValue(s string) any {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return s
	}
	return table.Normalize(v)
}

// parseMeta turns key=value flags into a metadata map.
func parseMeta(raw []string) (map[string]any, error) {
	meta := make(map[string]any, len(raw))
	for _, kv := range raw {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("metadata %q is not key=value", kv)
		}
		meta[strings.TrimSpace(k)] = parseValue(v)
	}
	return meta, nil
}
