package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fruitflybrain/neuroarch/internal/query"
)

var (
	tagSel       selection
	tagMeta      []string
	tagOverwrite bool
	tagView      string
)

var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Store, load and drop named node sets",
	Long: `A tag records a node set in the graph itself: one QueryResult node with
the metadata, linked to every tagged node.`,
}

var tagCreateCmd = &cobra.Command{
	Use:   "create TAG",
	Short: "Tag the nodes of a selection",
	Example: `  neuroarch tag create eb-neurons --class Neuron --where 'name=["/rEB-.*"]' --meta owner=lab`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		meta, err := parseMeta(tagMeta)
		if err != nil {
			return err
		}
		s, err := openSession(ctx, cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		w, err := tagSel.wrapper(ctx, s)
		if err != nil {
			return err
		}
		res, err := w.Tag(ctx, args[0], meta, tagOverwrite)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if outputFormat != formatText {
			return emit(out, res)
		}
		if !res.Created {
			fmt.Fprintf(out, "tag %q already exists; pass --overwrite to replace it\n", args[0])
			return nil
		}
		fmt.Fprintf(out, "tagged %d nodes as %q (%s)\n", w.Len(), args[0], res.ID)
		return nil
	},
}

var tagShowCmd = &cobra.Command{
	Use:   "show TAG",
	Short: "Print the metadata and nodes of a tag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx, cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		info, err := query.FindTag(ctx, s.store, args[0], s.queryOptions()...)
		if err != nil {
			return err
		}
		view, err := info.Nodes.GetAs(ctx, tagView)
		if err != nil {
			return err
		}
		if outputFormat != formatText {
			return emit(cmd.OutOrStdout(), map[string]any{"id": info.ID, "metadata": info.Metadata, "nodes": view})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "tag %s (%s)\n", args[0], info.ID)
		for k, v := range info.Metadata {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s: %v\n", k, v)
		}
		return printView(cmd, view)
	},
}

var tagDropCmd = &cobra.Command{
	Use:   "drop TAG",
	Short: "Delete a tag; the tagged nodes are kept",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx, cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := query.DropTag(ctx, s.store, args[0], s.queryOptions()...); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "dropped %s\n", args[0])
		return nil
	},
}

func init() {
	tagSel.register(tagCreateCmd)
	tagCreateCmd.Flags().StringArrayVar(&tagMeta, "meta", nil, "metadata as key=value (repeatable)")
	tagCreateCmd.Flags().BoolVar(&tagOverwrite, "overwrite", false, "replace an existing tag")
	tagShowCmd.Flags().StringVar(&tagView, "view", query.ViewTables, "projection: tables, graph or records")

	tagCmd.AddCommand(tagCreateCmd)
	tagCmd.AddCommand(tagShowCmd)
	tagCmd.AddCommand(tagDropCmd)
}
