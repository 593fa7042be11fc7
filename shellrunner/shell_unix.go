//go:build !windows

package shellrunner

import (
	"context"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// buildShellCommand runs cmdline through /bin/sh -c, in its own process
// group so a shutdown signal can reach the whole subtree (§6 Shell
// contract: POSIX -- sh -c).
func buildShellCommand(ctx context.Context, cmdline string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", cmdline)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	return cmd
}

func terminateProcess(p *os.Process) {
	_ = unix.Kill(-p.Pid, unix.SIGTERM)
}

func killProcess(p *os.Process) {
	_ = unix.Kill(-p.Pid, unix.SIGKILL)
}
