// Package cmd provides the nql CLI's cobra command tree.
package cmd

import (
	"github.com/spf13/cobra"
)

// Version is overridden at build time via -ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:     "nql",
	Short:   "nql — streaming correlation and aggregation query engine",
	Version: Version,
	Long: `nql ingests structured application logs and parsed network
packets and produces a unified stream of filtered, aggregated, and
correlated derived events.`,
}

// Execute runs the root command and returns a process exit code: 0 on
// success, 1 on invalid arguments or initialization failure, per
// SPEC_FULL.md §6.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
}
