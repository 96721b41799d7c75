package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fruitflybrain/neuroarch/internal/query"
	"github.com/fruitflybrain/neuroarch/internal/snapshot"
	"github.com/fruitflybrain/neuroarch/internal/table"
)

var (
	querySel      selection
	queryView     string
	queryForceID  bool
	queryOutNodes string
	queryOutEdges string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run a query and print its nodes and induced edges",
	Long: `Select a node set with --text, --class or --id and print it.

Examples:
  neuroarch query --class Neuron --where name=EB-1
  neuroarch query --class Neuron --where 'N=[">", 4]' --view records -o json
  neuroarch query --lang cypher --text 'MATCH (n:LPU) RETURN n' --out-nodes lpus.csv`,
	RunE: runQuery,
}

func init() {
	querySel.register(queryCmd)
	queryCmd.Flags().StringVar(&queryView, "view", query.ViewTables, "projection: tables, graph or records")
	queryCmd.Flags().BoolVar(&queryForceID, "force-id", false, "key node rows by store identifier instead of the id attribute")
	queryCmd.Flags().StringVar(&queryOutNodes, "out-nodes", "", "write the node table to this file (.csv, .json or .yaml)")
	queryCmd.Flags().StringVar(&queryOutEdges, "out-edges", "", "write the edge table to this file")
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	w, err := querySel.wrapper(ctx, s)
	if err != nil {
		return err
	}

	if queryOutNodes != "" || queryOutEdges != "" {
		nodes, edges, err := w.Tables(ctx, query.TableOptions{ForceID: queryForceID})
		if err != nil {
			return err
		}
		if err := writeTables(queryOutNodes, nodes, queryOutEdges, edges); err != nil {
			return err
		}
		logger.WithField("nodes", nodes.Len()).WithField("edges", edges.Len()).Info("tables written")
		return nil
	}

	if queryForceID && (queryView == query.ViewTables || queryView == query.ViewDF) {
		nodes, edges, err := w.Tables(ctx, query.TableOptions{ForceID: true})
		if err != nil {
			return err
		}
		return printView(cmd, &query.TablesView{Nodes: nodes, Edges: edges})
	}
	view, err := w.GetAs(ctx, queryView)
	if err != nil {
		return err
	}
	return printView(cmd, view)
}

func printView(cmd *cobra.Command, view any) error {
	out := cmd.OutOrStdout()
	if outputFormat != formatText {
		return emit(out, view)
	}
	switch v := view.(type) {
	case *query.TablesView:
		fmt.Fprintf(out, "# nodes (%d)\n", v.Nodes.Len())
		if err := table.Encode(out, v.Nodes, table.FormatCSV); err != nil {
			return err
		}
		fmt.Fprintf(out, "# edges (%d)\n", v.Edges.Len())
		return table.Encode(out, v.Edges, table.FormatCSV)
	case *snapshot.MultiDiGraph:
		printGraph(out, v)
		return nil
	default:
		return emit(out, v)
	}
}

func writeTables(nodesPath string, nodes *table.Table, edgesPath string, edges *table.Table) error {
	if nodesPath != "" {
		if err := table.WriteFile(nodesPath, nodes); err != nil {
			return err
		}
	}
	if edgesPath != "" {
		if err := table.WriteFile(edgesPath, edges); err != nil {
			return err
		}
	}
	return nil
}
