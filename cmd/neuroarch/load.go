package main

import (
	"github.com/spf13/cobra"
)

var (
	loadNodes string
	loadEdges string
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Insert a node and edge table into the graph store",
	Long: `Insert every row of a node table as a new node and every row of an edge
table as a new edge. Edge rows name their endpoints by node row key.

Example:
  neuroarch load --nodes nodes.csv --edges edges.csv`,
	RunE: runLoad,
}

func init() {
	loadCmd.Flags().StringVar(&loadNodes, "nodes", "", "node table (.csv, .json or .yaml)")
	loadCmd.Flags().StringVar(&loadEdges, "edges", "", "edge table")
	_ = loadCmd.MarkFlagRequired("nodes")
}

func runLoad(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	nodes, edges, err := readTables(ctx, loadNodes, loadEdges)
	if err != nil {
		return err
	}

	s, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	res, err := s.engine.Load(ctx, nodes, edges)
	printLoad(cmd, res)
	return err
}
