package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fruitflybrain/neuroarch/internal/diff"
	"github.com/fruitflybrain/neuroarch/internal/query"
)

var (
	snapSel         selection
	snapOutNodes    string
	snapOutEdges    string
	snapDiffOut     string
	snapFullReplace bool
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Save, inspect and compare named table snapshots",
	Long: `Snapshots are node/edge table pairs stored under a name in the
configured snapshot backend (sqlite, bolt or postgres). Saved snapshots
serve as baselines for "neuroarch sync --baseline".`,
}

var snapshotSaveCmd = &cobra.Command{
	Use:   "save NAME",
	Short: "Save the current tables of a selection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx, cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		w, err := snapSel.wrapper(ctx, s)
		if err != nil {
			return err
		}
		nodes, edges, err := w.Tables(ctx, query.TableOptions{ForceID: true})
		if err != nil {
			return err
		}

		snaps, err := openSnapshots(ctx, cfg)
		if err != nil {
			return err
		}
		defer snaps.Close()
		info, err := snaps.Save(ctx, args[0], nodes, edges)
		if err != nil {
			return err
		}
		if outputFormat != formatText {
			return emit(cmd.OutOrStdout(), info)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%d nodes, %d edges)\n", info.Name, info.NodeRows, info.EdgeRows)
		return nil
	},
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved snapshots",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		snaps, err := openSnapshots(ctx, cfg)
		if err != nil {
			return err
		}
		defer snaps.Close()
		infos, err := snaps.List(ctx)
		if err != nil {
			return err
		}
		if outputFormat != formatText {
			return emit(cmd.OutOrStdout(), infos)
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tNODES\tEDGES\tCREATED")
		for _, info := range infos {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", info.Name, info.NodeRows, info.EdgeRows, info.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return tw.Flush()
	},
}

var snapshotShowCmd = &cobra.Command{
	Use:   "show NAME",
	Short: "Print or export a saved snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		snaps, err := openSnapshots(ctx, cfg)
		if err != nil {
			return err
		}
		defer snaps.Close()
		snap, err := snaps.Load(ctx, args[0])
		if err != nil {
			return err
		}
		if snapOutNodes != "" || snapOutEdges != "" {
			return writeTables(snapOutNodes, snap.Nodes, snapOutEdges, snap.Edges)
		}
		return printView(cmd, &query.TablesView{Nodes: snap.Nodes, Edges: snap.Edges})
	},
}

var snapshotDiffCmd = &cobra.Command{
	Use:   "diff OLD NEW",
	Short: "Compute change-sets between two saved snapshots",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		snaps, err := openSnapshots(ctx, cfg)
		if err != nil {
			return err
		}
		defer snaps.Close()
		old, err := snaps.Load(ctx, args[0])
		if err != nil {
			return err
		}
		cur, err := snaps.Load(ctx, args[1])
		if err != nil {
			return err
		}
		res, err := diff.Graph(old.Nodes, old.Edges, cur.Nodes, cur.Edges, snapFullReplace)
		if err != nil {
			return err
		}
		if err := writeChangeSets(snapDiffOut, res); err != nil {
			return err
		}
		return printCounts(cmd, res)
	},
}

var snapshotDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a saved snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		snaps, err := openSnapshots(ctx, cfg)
		if err != nil {
			return err
		}
		defer snaps.Close()
		if err := snaps.Delete(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
		return nil
	},
}

func init() {
	snapSel.register(snapshotSaveCmd)
	snapshotShowCmd.Flags().StringVar(&snapOutNodes, "out-nodes", "", "write the node table to this file")
	snapshotShowCmd.Flags().StringVar(&snapOutEdges, "out-edges", "", "write the edge table to this file")
	snapshotDiffCmd.Flags().StringVar(&snapDiffOut, "out", "", "directory for nodes.yaml and edges.yaml")
	snapshotDiffCmd.Flags().BoolVar(&snapFullReplace, "full-replace", false, "mods carry every column of the new row")

	snapshotCmd.AddCommand(snapshotSaveCmd)
	snapshotCmd.AddCommand(snapshotListCmd)
	snapshotCmd.AddCommand(snapshotShowCmd)
	snapshotCmd.AddCommand(snapshotDiffCmd)
	snapshotCmd.AddCommand(snapshotDeleteCmd)
}
