// Package platform ranks host-descriptor tags once at process start and
// uses that immutable table to pick the most specific variant of a
// platform-tagged lifecycle block (§4.A).
package platform

import (
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
)

// Tags is the immutable tag-rank table populated once by Detect. Per §9's
// "Mutable global OS tag table" note, the table is computed once into an
// immutable map and passed by reference from then on — Tags never mutates
// after construction.
type Tags struct {
	ranks map[string]int
}

// Rank returns tag's specificity rank, or -1 for an unknown tag (§3).
func (t *Tags) Rank(tag string) int {
	if t == nil {
		return -1
	}
	if r, ok := t.ranks[strings.ToLower(tag)]; ok {
		return r
	}
	return -1
}

var (
	detectOnce sync.Once
	detected   *Tags
)

// Detect probes the host once and returns the process-wide tag table.
// Repeated calls return the same instance (the detection side effect runs
// exactly once, matching §4.A: "Tag population is a one-time side effect
// at initialisation... Selector is pure thereafter").
func Detect() *Tags {
	detectOnce.Do(func() {
		detected = detectTags()
	})
	return detected
}

func detectTags() *Tags {
	ranks := map[string]int{
		"all": 0,
		"any": 0,
	}

	if runtime.GOOS == "windows" || os.Getenv("OS") == "Windows_NT" {
		ranks["windows"] = 15
	} else {
		if pathExists("/bin/bash") || pathExists("/proc") {
			ranks["posix"] = 3
		}
		if pathExists("/proc") {
			ranks["linux"] = 10
		}
		if pathExists("/usr/bin/apt-get") {
			ranks["debian"] = 15
		}
	}

	if out, err := exec.Command("uname", "-a").CombinedOutput(); err == nil {
		uname := strings.ToLower(string(out))
		for _, marker := range []string{"ubuntu", "darwin", "raspbian", "qnx", "cygwin", "freebsd", "solaris", "sunos"} {
			if strings.Contains(uname, marker) {
				ranks[marker] = 20
			}
		}
	}

	if host, err := os.Hostname(); err == nil && host != "" {
		ranks[strings.ToLower(host)] = 99
	}

	return &Tags{ranks: ranks}
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
