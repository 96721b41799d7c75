package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fruitflybrain/neuroarch/internal/diff"
	"github.com/fruitflybrain/neuroarch/internal/query"
)

var (
	syncSel         selection
	syncBaseline    string
	syncNewNodes    string
	syncNewEdges    string
	syncFullReplace bool
	syncDryRun      bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Diff edited tables against the graph and apply the changes",
	Long: `Synchronize the graph with an edited copy of a node/edge table pair.

The baseline is either a live selection (--text, --class or --id), read
from the store keyed by identifier, or a saved snapshot (--baseline). The
difference is applied node changes first, in chunked transactions.

Examples:
  neuroarch query --class Neuron --force-id --out-nodes n.csv --out-edges e.csv
  # edit n.csv / e.csv
  neuroarch sync --class Neuron --new-nodes n.csv --new-edges e.csv
  neuroarch sync --baseline before-edit --new-nodes n.csv --new-edges e.csv --dry-run`,
	RunE: runSync,
}

func init() {
	syncSel.register(syncCmd)
	f := syncCmd.Flags()
	f.StringVar(&syncBaseline, "baseline", "", "diff against this saved snapshot instead of a live selection")
	f.StringVar(&syncNewNodes, "new-nodes", "", "edited node table")
	f.StringVar(&syncNewEdges, "new-edges", "", "edited edge table")
	f.BoolVar(&syncFullReplace, "full-replace", false, "mods carry every column of the new row")
	f.BoolVar(&syncDryRun, "dry-run", false, "print the change counts without applying")
	_ = syncCmd.MarkFlagRequired("new-nodes")
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	newNodes, newEdges, err := readTables(ctx, syncNewNodes, syncNewEdges)
	if err != nil {
		return err
	}

	s, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	if syncBaseline == "" && !syncDryRun {
		w, err := syncSel.wrapper(ctx, s)
		if err != nil {
			return err
		}
		_, res, err := w.DiffSave(ctx, s.engine, newNodes, newEdges, syncFullReplace)
		printLoad(cmd, res)
		if err != nil {
			return err
		}
		logger.WithField("affected", len(query.Affected(res.Nodes))).Info("sync complete")
		return nil
	}

	var d *diff.Result
	if syncBaseline != "" {
		snaps, err := openSnapshots(ctx, cfg)
		if err != nil {
			return err
		}
		defer snaps.Close()
		snap, err := snaps.Load(ctx, syncBaseline)
		if err != nil {
			return err
		}
		d, err = diff.Graph(snap.Nodes, snap.Edges, newNodes, newEdges, syncFullReplace)
		if err != nil {
			return err
		}
	} else {
		w, err := syncSel.wrapper(ctx, s)
		if err != nil {
			return err
		}
		oldNodes, oldEdges, err := w.Tables(ctx, query.TableOptions{ForceID: true})
		if err != nil {
			return err
		}
		if d, err = diff.Graph(oldNodes, oldEdges, newNodes, newEdges, syncFullReplace); err != nil {
			return err
		}
	}

	if syncDryRun {
		return printCounts(cmd, d)
	}
	if d.Nodes.Empty() && d.Edges.Empty() {
		fmt.Fprintln(cmd.OutOrStdout(), "already in sync")
		return nil
	}
	res, err := s.engine.ApplyGraph(ctx, d)
	printLoad(cmd, res)
	return err
}
