// Package cmd implements the reflow CLI: a demo host for the frame
// pipeline plus tooling that talks to a running engine's debug server.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	Version   = "0.1.0-dev"
	BuildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "reflow",
	Short: "reflow - declarative tree reconciliation and frame pipeline",
	Long: `reflow hosts a configuration tree and renders it through the
build/layout/paint pipeline. The serve command runs a demo engine with
the debug server enabled; inspect and watch talk to any running engine.`,
	SilenceUsage:  true,
	SilenceErrors: false,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the reflow version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("reflow %s (built %s)\n", Version, BuildTime)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}
