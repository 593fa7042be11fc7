package subcommands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgecore/edged/ipc"
)

var statusWatch bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the daemon's component states",
	Long: "Show the daemon's component states, read from its status socket.\n\n" +
		"With --watch, renders a live table that updates on every component " +
		"transition instead of printing once and exiting.",
	Example: `  # One-shot status
  edged daemon status

  # Live table, refreshed on every transition
  edged daemon status --watch`,
	PreRunE: validateStatus,
	RunE:    runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusWatch, "watch", false, "live-refresh the table on every component transition")
}

func validateStatus(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if statusWatch {
		return runStatusWatch(ctx)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	snap, err := ipc.FetchOnce(fetchCtx, SocketPath)
	if err != nil {
		return fmt.Errorf("connect to %s: %w (is the daemon running?)", SocketPath, err)
	}
	printSnapshot(snap)
	return nil
}

func printSnapshot(snap ipc.Snapshot) {
	fmt.Printf("generation: %s   overall: %s\n", snap.Generation, snap.Overall)
	for _, c := range snap.Components {
		if c.StatusMessage != "" {
			fmt.Printf("  %-24s %-18s %s\n", c.Name, c.State, c.StatusMessage)
			continue
		}
		fmt.Printf("  %-24s %-18s\n", c.Name, c.State)
	}
}
