package subcommands

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"syscall"
)

// pidFile is shared between "daemon start" (which writes it) and
// "daemon stop" (which reads it), each registering it as their own
// --pid-file flag with the same default.
var pidFile string

// writePIDFile records the current process id at path.
func writePIDFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// readPIDFile reads and parses the pid recorded at path.
func readPIDFile(path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(string(content))
	if err != nil {
		return 0, fmt.Errorf("invalid pid in %s: %w", path, err)
	}
	return pid, nil
}

// isProcessRunning reports whether pid is alive, using the null-signal
// probe: ESRCH means gone, EPERM means alive but owned by someone else.
func isProcessRunning(pid int) bool {
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}
