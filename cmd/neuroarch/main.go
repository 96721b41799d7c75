package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fruitflybrain/neuroarch/internal/config"
	"github.com/fruitflybrain/neuroarch/internal/logging"
	"github.com/fruitflybrain/neuroarch/internal/metrics"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	cfgFile     string
	verbose     bool
	storeFlag   string
	metricsAddr string
	seedNodes   string
	seedEdges   string

	logger   *logrus.Logger
	cfg      *config.Config
	registry *metrics.Registry
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "neuroarch",
	Short: "Query, diff and synchronize a neuroarch property graph",
	Long: `neuroarch runs set-algebra queries and multi-hop traversals against a
property-graph store, diffs tabular snapshots of the graph, and applies the
resulting change-sets in chunked transactions.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = logrus.New()
		if verbose {
			logger.SetLevel(logrus.DebugLevel)
		} else {
			logger.SetLevel(logrus.InfoLevel)
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			logger.WithError(err).Warn("Failed to load config, using defaults")
			cfg = config.Default()
		}
		if storeFlag != "" {
			cfg.Store.Backend = storeFlag
		}
		if metricsAddr != "" {
			cfg.Metrics.ListenAddr = metricsAddr
		}

		// Library packages log through slog; keep them at the same verbosity
		logCfg := logging.DefaultConfig(verbose)
		if !verbose && cfg.Log.Level != "" {
			logCfg.Level = logging.ParseLevel(cfg.Log.Level)
		}
		logCfg.JSONFormat = cfg.Log.JSON
		logCfg.OutputFile = cfg.Log.File
		if err := logging.Initialize(logCfg); err != nil {
			return err
		}

		registry = metrics.NewRegistry()
		if addr := cfg.Metrics.ListenAddr; addr != "" {
			go func() {
				logger.WithField("addr", addr).Debug("serving metrics")
				if err := registry.Serve(cmd.Context(), addr); err != nil {
					logger.WithError(err).Warn("metrics server stopped")
				}
			}()
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .neuroarch/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&storeFlag, "store", "", "store backend: neo4j or memory (overrides config)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while the command runs")
	rootCmd.PersistentFlags().StringVar(&seedNodes, "seed-nodes", "", "node table loaded into the memory store before the command runs")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", formatText, "output format: text, json or yaml")
	rootCmd.PersistentFlags().StringVar(&chunkProfile, "chunk-profile", "", "chunk sizes for writes: default, small or large (default: from config)")
	rootCmd.PersistentFlags().StringVar(&seedEdges, "seed-edges", "", "edge table loaded with --seed-nodes")

	rootCmd.SetVersionTemplate(`neuroarch {{.Version}}
Build time: ` + BuildTime + `
Git commit: ` + GitCommit + `
`)

	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(traverseCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(tagCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configureCmd)
	rootCmd.AddCommand(versionCmd)
}
