package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "neuroarch %s\n", Version)
		fmt.Fprintf(cmd.OutOrStdout(), "  build time: %s\n", BuildTime)
		fmt.Fprintf(cmd.OutOrStdout(), "  git commit: %s\n", GitCommit)
		fmt.Fprintf(cmd.OutOrStdout(), "  go:         %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}
