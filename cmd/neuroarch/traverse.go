package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/fruitflybrain/neuroarch/internal/graph"
	"github.com/fruitflybrain/neuroarch/internal/query"
)

var (
	travSel       selection
	travOwns      int
	travOwnedBy   int
	travWalk      string
	travLevels    int
	travClasses   []string
	travStages    []string
	travDirection string
	travMinDepth  int
	travMaxDepth  int
	travTopLevel  bool
	travSynapse   string
	travSynOpts   query.SynapseOptions
	travView      string
)

var traverseCmd = &cobra.Command{
	Use:   "traverse",
	Short: "Traverse from a node selection",
	Long: `Start from a node selection and follow edges from it. Pick one mode:

  --owns N / --owned-by N   nodes exactly N Owns-hops below / above
  --walk down|up            every node within --levels Owns-hops
  --stage REL[:CLASSES]     generic multi-stage traversal (repeatable)
  --synapses post|pre       post- or presynaptic partner neurons
  --top-level               group the selection by owning LPU / Subsystem / Tract

Examples:
  neuroarch traverse --class LPU --where name=EB --owns 1 --class-filter Neuron
  neuroarch traverse --class Neuron --where name=EB-1 --synapses post --threshold 5
  neuroarch traverse --id '#1:0' --stage SendsTo:Synapse --stage SendsTo:instanceof=Neuron --max-depth 4`,
	RunE: runTraverse,
}

func init() {
	travSel.register(traverseCmd)
	f := traverseCmd.Flags()
	f.IntVar(&travOwns, "owns", 0, "follow Owns exactly this many hops down")
	f.IntVar(&travOwnedBy, "owned-by", 0, "follow Owns exactly this many hops up")
	f.StringVar(&travWalk, "walk", "", "walk Owns down or up, keeping every visited node")
	f.IntVar(&travLevels, "levels", 0, "max Owns-hops for --walk (0: default)")
	f.StringSliceVar(&travClasses, "class-filter", nil, "keep only result nodes of these classes")
	f.StringArrayVar(&travStages, "stage", nil, "traversal stage REL, REL:Class1,Class2 or REL:instanceof=Class")
	f.StringVar(&travDirection, "direction", "out", "direction of --stage traversals: out or in")
	f.IntVar(&travMinDepth, "min-depth", 0, "first depth to collect in a --stage traversal")
	f.IntVar(&travMaxDepth, "max-depth", 0, "first depth excluded from a --stage traversal (default: stages+1)")
	f.BoolVar(&travTopLevel, "top-level", false, "group the selection by top-level owner")
	f.StringVar(&travSynapse, "synapses", "", "synaptic partners: post or pre")
	f.Float64Var(&travSynOpts.Threshold, "threshold", 0, "synapse count bound")
	f.StringVar(&travSynOpts.Comparator, "comparator", "", "comparator for --threshold")
	f.StringVar(&travSynOpts.Field, "field", "", "synapse count attribute (default N)")
	f.BoolVar(&travSynOpts.Inferred, "inferred", false, "also follow inferred synapses")
	f.BoolVar(&travSynOpts.Fragments, "fragments", false, "match neuron fragments as endpoints")
	f.StringVar(&travView, "view", query.ViewTables, "projection: tables, graph or records")
}

func runTraverse(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	w, err := travSel.wrapper(ctx, s)
	if err != nil {
		return err
	}
	filter := graph.Classes(travClasses...)

	var res *query.Wrapper
	switch {
	case travTopLevel:
		return printTopLevel(cmd, w)
	case travOwns > 0:
		res, err = w.Owns(ctx, travOwns, filter)
	case travOwnedBy > 0:
		res, err = w.OwnedBy(ctx, travOwnedBy, filter)
	case travWalk == "down":
		res, err = w.TraverseOwns(ctx, travLevels, filter)
	case travWalk == "up":
		res, err = w.TraverseOwnedBy(ctx, travLevels, filter)
	case travWalk != "":
		return fmt.Errorf("--walk must be down or up, got %q", travWalk)
	case travSynapse == "post":
		res, err = w.PostSynapticNeurons(ctx, travSynOpts)
	case travSynapse == "pre":
		res, err = w.PreSynapticNeurons(ctx, travSynOpts)
	case travSynapse != "":
		return fmt.Errorf("--synapses must be post or pre, got %q", travSynapse)
	case len(travStages) > 0:
		res, err = stageTraversal(cmd, w)
	default:
		return fmt.Errorf("pick a traversal: --owns, --owned-by, --walk, --stage, --synapses or --top-level")
	}
	if err != nil {
		return err
	}

	view, err := res.GetAs(ctx, travView)
	if err != nil {
		return err
	}
	return printView(cmd, view)
}

func stageTraversal(cmd *cobra.Command, w *query.Wrapper) (*query.Wrapper, error) {
	stages := make([]query.Stage, len(travStages))
	for i, raw := range travStages {
		st, err := query.ParseStage(raw)
		if err != nil {
			return nil, err
		}
		stages[i] = st
	}
	var opts []query.DepthOption
	if cmd.Flags().Changed("min-depth") {
		opts = append(opts, query.MinDepth(travMinDepth))
	}
	if cmd.Flags().Changed("max-depth") {
		opts = append(opts, query.MaxDepth(travMaxDepth))
	}
	switch travDirection {
	case "out":
		return w.GenTraversalOut(cmd.Context(), stages, opts...)
	case "in":
		return w.GenTraversalIn(cmd.Context(), stages, opts...)
	default:
		return nil, fmt.Errorf("--direction must be out or in, got %q", travDirection)
	}
}

func printTopLevel(cmd *cobra.Command, w *query.Wrapper) error {
	ctx := cmd.Context()
	groups, err := w.TopLevelOwners(ctx)
	if err != nil {
		return err
	}
	counts := make(map[string]map[string]int, len(groups))
	for class, byName := range groups {
		counts[class] = make(map[string]int, len(byName))
		for name, sub := range byName {
			ids, err := sub.NodeIDs(ctx)
			if err != nil {
				return err
			}
			counts[class][name] = len(ids)
		}
	}
	out := cmd.OutOrStdout()
	if outputFormat != formatText {
		return emit(out, counts)
	}
	classes := make([]string, 0, len(counts))
	for c := range counts {
		classes = append(classes, c)
	}
	sort.Strings(classes)
	for _, class := range classes {
		fmt.Fprintf(out, "%s:\n", class)
		names := make([]string, 0, len(counts[class]))
		for n := range counts[class] {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			fmt.Fprintf(out, "  %-30s %d nodes\n", n, counts[class][n])
		}
	}
	return nil
}
