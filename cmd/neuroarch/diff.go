package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fruitflybrain/neuroarch/internal/diff"
	"github.com/fruitflybrain/neuroarch/internal/errors"
	"github.com/fruitflybrain/neuroarch/internal/table"
)

var (
	diffOldNodes    string
	diffOldEdges    string
	diffNewNodes    string
	diffNewEdges    string
	diffOutDir      string
	diffFullReplace bool
)

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Compute node and edge change-sets between two table pairs",
	Long: `Compare an old and a new node/edge table pair and write the change-sets
as nodes.yaml and edges.yaml. Nothing is written to the graph store; feed
the files to "neuroarch apply".

Examples:
  neuroarch diff --old-nodes before/nodes.csv --old-edges before/edges.csv \
                 --new-nodes after/nodes.csv --new-edges after/edges.csv --out changes/`,
	RunE: runDiff,
}

func init() {
	f := diffCmd.Flags()
	f.StringVar(&diffOldNodes, "old-nodes", "", "baseline node table")
	f.StringVar(&diffOldEdges, "old-edges", "", "baseline edge table")
	f.StringVar(&diffNewNodes, "new-nodes", "", "edited node table")
	f.StringVar(&diffNewEdges, "new-edges", "", "edited edge table")
	f.StringVar(&diffOutDir, "out", "", "directory for nodes.yaml and edges.yaml (default: print counts only)")
	f.BoolVar(&diffFullReplace, "full-replace", false, "mods carry every column of the new row")
	_ = diffCmd.MarkFlagRequired("old-nodes")
	_ = diffCmd.MarkFlagRequired("new-nodes")
}

func runDiff(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var oldNodes, oldEdges, newNodes, newEdges *table.Table
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		oldNodes, oldEdges, err = readTables(gctx, diffOldNodes, diffOldEdges)
		return err
	})
	g.Go(func() error {
		var err error
		newNodes, newEdges, err = readTables(gctx, diffNewNodes, diffNewEdges)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	res, err := diff.Graph(oldNodes, oldEdges, newNodes, newEdges, diffFullReplace)
	if err != nil {
		return err
	}
	if err := writeChangeSets(diffOutDir, res); err != nil {
		return err
	}
	return printCounts(cmd, res)
}

func writeChangeSets(dir string, res *diff.Result) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.FileSystemErrorf(err, "create %s", dir)
	}
	for name, cs := range map[string]*diff.ChangeSet{"nodes.yaml": res.Nodes, "edges.yaml": res.Edges} {
		var buf bytes.Buffer
		if err := cs.WriteYAML(&buf); err != nil {
			return err
		}
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
			return errors.FileSystemErrorf(err, "write %s", path)
		}
	}
	logger.WithField("dir", dir).Info("change-sets written")
	return nil
}

func printCounts(cmd *cobra.Command, res *diff.Result) error {
	out := cmd.OutOrStdout()
	counts := map[string]diff.Counts{"nodes": res.Nodes.Counts(), "edges": res.Edges.Counts()}
	if outputFormat != formatText {
		return emit(out, counts)
	}
	for _, k := range []string{"nodes", "edges"} {
		c := counts[k]
		fmt.Fprintf(out, "%s: %d modified, %d added, %d deleted\n", k, c.Mod, c.Add, c.Del)
	}
	return nil
}
