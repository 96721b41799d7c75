package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fruitflybrain/neuroarch/internal/apply"
	"github.com/fruitflybrain/neuroarch/internal/diff"
	"github.com/fruitflybrain/neuroarch/internal/graph"
)

var (
	applyNodes string
	applyEdges string
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply node and edge change-sets to the graph store",
	Long: `Apply change-sets written by "neuroarch diff" in chunked transactions.
Node changes go first; edge entries may name nodes added in the same run
by their row key.

Chunks that committed before a failure stay committed. The report printed
on failure lists them.`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringVar(&applyNodes, "nodes", "", "node change-set (YAML)")
	applyCmd.Flags().StringVar(&applyEdges, "edges", "", "edge change-set (YAML)")
}

func runApply(cmd *cobra.Command, args []string) error {
	if applyNodes == "" && applyEdges == "" {
		return fmt.Errorf("nothing to apply: pass --nodes and/or --edges")
	}
	ctx := cmd.Context()

	var nodes, edges *diff.ChangeSet
	var err error
	if applyNodes != "" {
		if nodes, err = diff.ReadFile(applyNodes); err != nil {
			return err
		}
	}
	if applyEdges != "" {
		if edges, err = diff.ReadFile(applyEdges); err != nil {
			return err
		}
	}

	s, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	out := cmd.OutOrStdout()
	ids := map[string]graph.EntityID{}
	if nodes != nil {
		report, err := s.engine.ApplyNodeDiff(ctx, nodes)
		printReport(out, "nodes", report)
		if err != nil {
			return fmt.Errorf("apply node changes: %w", err)
		}
		ids = report.IDs
	}
	if edges != nil {
		report, err := s.engine.ApplyEdgeDiff(ctx, edges, ids)
		printReport(out, "edges", report)
		if err != nil {
			return fmt.Errorf("apply edge changes: %w", err)
		}
	}
	return nil
}

// printLoad prints both reports of a load or graph apply.
func printLoad(cmd *cobra.Command, res *apply.LoadResult) {
	if res == nil {
		return
	}
	printReport(cmd.OutOrStdout(), "nodes", res.Nodes)
	printReport(cmd.OutOrStdout(), "edges", res.Edges)
}
