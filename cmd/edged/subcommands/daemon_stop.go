package subcommands

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	stopTimeout time.Duration
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon gracefully",
	Long: "Stop the running daemon gracefully.\n\n" +
		"Sends SIGTERM to the process recorded in --pid-file and waits for " +
		"it to exit.",
	PreRunE: validateStop,
	RunE:    runStop,
}

var errNoDaemonRunning = errors.New("no daemon running")

func init() {
	stopCmd.Flags().DurationVar(&stopTimeout, "timeout", 30*time.Second, "maximum time to wait for the daemon to stop")
	stopCmd.Flags().StringVar(&pidFile, "pid-file", "/run/edged.pid", "where the daemon recorded its process id")
}

func validateStop(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	return nil
}

func runStop(cmd *cobra.Command, args []string) error {
	if err := stopDaemon(pidFile); err != nil {
		if errors.Is(err, errNoDaemonRunning) {
			fmt.Println("No daemon is running")
			return nil
		}
		return fmt.Errorf("stop daemon: %w", err)
	}
	fmt.Println("Daemon stopped")
	return nil
}

func stopDaemon(pidPath string) error {
	pid, err := readPIDFile(pidPath)
	if err != nil {
		if os.IsNotExist(err) {
			return errNoDaemonRunning
		}
		return err
	}
	if !isProcessRunning(pid) {
		os.Remove(pidPath)
		return errNoDaemonRunning
	}

	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("send SIGTERM to %d: %w", pid, err)
	}

	deadline := time.Now().Add(stopTimeout)
	for time.Now().Before(deadline) {
		if !isProcessRunning(pid) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon (pid %d) did not stop within %s", pid, stopTimeout)
}
