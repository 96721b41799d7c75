package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store, snapshot and cache status",
	Long:  `Check connectivity to the graph store and list what the configured snapshot store holds.`,
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "🔍 neuroarch status\n")
	fmt.Fprintf(out, "%s\n", strings.Repeat("═", 50))

	fmt.Fprintf(out, "\n🗄  Graph store:\n")
	fmt.Fprintf(out, "  Backend: %s\n", cfg.Store.Backend)
	s, err := openSession(ctx, cfg)
	if err != nil {
		fmt.Fprintf(out, "  Status: ❌ %v\n", err)
		return err
	}
	defer s.Close()
	if s.neo != nil {
		fmt.Fprintf(out, "  URI: %s (database %s)\n", cfg.Store.URI, cfg.Store.Database)
		if err := s.neo.HealthCheck(ctx); err != nil {
			fmt.Fprintf(out, "  Status: ❌ %v\n", err)
			return err
		}
	}
	fmt.Fprintf(out, "  Status: ✅ Connected (%s dialect)\n", s.store.Dialect())

	fmt.Fprintf(out, "\n💾 Read cache:\n")
	switch {
	case s.cached == nil:
		fmt.Fprintf(out, "  Status: disabled\n")
	case cfg.Cache.RedisAddr != "":
		fmt.Fprintf(out, "  Status: ✅ redis %s (ttl %s)\n", cfg.Cache.RedisAddr, cfg.Cache.TTL)
	default:
		fmt.Fprintf(out, "  Status: ✅ in-process (ttl %s)\n", cfg.Cache.TTL)
	}

	fmt.Fprintf(out, "\n📸 Snapshots (%s):\n", cfg.Snapshot.Backend)
	snaps, err := openSnapshots(ctx, cfg)
	if err != nil {
		fmt.Fprintf(out, "  Status: ❌ %v\n", err)
		return nil
	}
	defer snaps.Close()
	infos, err := snaps.List(ctx)
	if err != nil {
		fmt.Fprintf(out, "  Status: ❌ %v\n", err)
		return nil
	}
	fmt.Fprintf(out, "  Saved: %d\n", len(infos))
	if n := len(infos); n > 0 {
		latest := infos[0]
		for _, info := range infos[1:] {
			if info.CreatedAt.After(latest.CreatedAt) {
				latest = info
			}
		}
		fmt.Fprintf(out, "  Latest: %s (%s)\n", latest.Name, latest.CreatedAt.Format("2006-01-02 15:04:05"))
	}

	fmt.Fprintf(out, "\n🔔 Notifications: ")
	if cfg.Notify.Enabled {
		fmt.Fprintf(out, "%s on %s.*\n", cfg.Notify.NATSURL, cfg.Notify.Subject)
	} else {
		fmt.Fprintf(out, "disabled\n")
	}
	return nil
}
