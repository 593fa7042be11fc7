// Command edged resolves component recipes into a dependency graph and
// drives every component through install, startup, run, and shutdown,
// the way a Greengrass-style edge-device orchestrator does.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/edgecore/edged/cmd/edged/subcommands"
)

var rootCmd = &cobra.Command{
	Use:   "edged",
	Short: "Edge component orchestrator",
	Long: "edged resolves component recipes into a dependency graph and drives " +
		"every component through its install/startup/run/shutdown lifecycle, " +
		"reacting to dependency transitions instead of polling.",
}

func init() {
	subcommands.RegisterFlags(rootCmd)
	rootCmd.AddCommand(subcommands.DaemonCmd)
	rootCmd.AddCommand(subcommands.ComponentCmd)
	rootCmd.AddCommand(subcommands.GraphCmd)
}

func main() {
	rootCmd.SilenceErrors = true
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
