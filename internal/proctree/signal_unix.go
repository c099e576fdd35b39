//go:build !windows

package proctree

import (
	"errors"

	"golang.org/x/sys/unix"
)

// signalUnix sends SIGTERM and SIGHUP, or SIGKILL when forced. Interactive
// shells ignore SIGTERM but exit on hangup. A vanished pid is not an error.
func signalUnix(pid int, force bool) error {
	sigs := []unix.Signal{unix.SIGTERM, unix.SIGHUP}
	if force {
		sigs = []unix.Signal{unix.SIGKILL}
	}
	for _, sig := range sigs {
		if err := unix.Kill(pid, sig); err != nil {
			if errors.Is(err, unix.ESRCH) {
				return nil
			}
			return err
		}
	}
	return nil
}

// exists reports whether pid names a process, zombie or not
func exists(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
