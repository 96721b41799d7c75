package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the read cache",
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Drop every cached read result",
	Long: `Remove all cached read results. Writes made through neuroarch already
invalidate the cache; purge is for writes made by other clients.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.Cache.Enabled {
			return fmt.Errorf("cache is disabled (set cache.enabled or NEUROARCH_CACHE_ENABLED)")
		}
		ctx := cmd.Context()
		s, err := openSession(ctx, cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		n, err := s.cached.Purge(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "purged %d cached reads\n", n)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cachePurgeCmd)
}
