// Package cli implements the driftwatch command-line interface.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/driftlab/driftwatch/pkg/version"
)

var rootCmd = &cobra.Command{
	Use:   "driftwatch",
	Short: "Driftwatch - statistical heap profiling and leak detection",
	Long: `Analyze heap profiles for memory leaks using bounded-memory statistics.

Driftwatch keeps constant-space running statistics and uniform random
samples per allocation site, and flags sites whose growth is anomalously
concentrated relative to a uniform null (a Monte-Carlo multinomial test
with Benjamini-Yekutieli correction).

Examples:
  driftwatch analyze heap1.pb.gz heap2.pb.gz heap3.pb.gz
  driftwatch watch --pid 1234 --interval 10s
  driftwatch watch --addr localhost:6060 --db driftwatch.db`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(newAnalyzeCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version.String())
		},
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
