package main

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/fruitflybrain/neuroarch/internal/apply"
	"github.com/fruitflybrain/neuroarch/internal/snapshot"
	"github.com/fruitflybrain/neuroarch/internal/table"
)

// Output formats for structured results.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

var outputFormat string

// emit writes v in the selected structured format.
func emit(w io.Writer, v any) error {
	switch outputFormat {
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}

func printGraph(w io.Writer, g *snapshot.MultiDiGraph) {
	keys := g.NodeKeys()
	fmt.Fprintf(w, "%d nodes\n", len(keys))
	for _, k := range keys {
		for _, e := range g.OutEdges(k) {
			fmt.Fprintf(w, "  %s -[%v]-> %s\n", e.Out, e.Attrs[table.ColumnClass], e.In)
		}
	}
}

func printReport(w io.Writer, label string, r *apply.Report) {
	if r == nil {
		return
	}
	sum := r.Summarize()
	if outputFormat != formatText {
		_ = emit(w, map[string]any{label: sum})
		return
	}
	fmt.Fprintf(w, "%s: %+v\n", label, sum)
}
