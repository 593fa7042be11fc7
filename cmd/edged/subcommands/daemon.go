package subcommands

import (
	"github.com/spf13/cobra"
)

// DaemonCmd is the parent command for daemon lifecycle management.
var DaemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the edged component orchestrator daemon",
	Long: "Manage the edged component orchestrator daemon.\n\n" +
		"The daemon resolves component recipes into a dependency graph and " +
		"drives every component through install, startup, run, and shutdown.",
}

func init() {
	DaemonCmd.AddCommand(startCmd)
	DaemonCmd.AddCommand(stopCmd)
	DaemonCmd.AddCommand(statusCmd)
}
