//go:build !windows

package supervisor

import (
	"os"
	"syscall"
)

// terminateGroup asks the child's process group to stop.
func terminateGroup(pid int) {
	_ = syscall.Kill(-pid, syscall.SIGTERM)
}

// killGroup forcefully kills the child's process group.
func killGroup(pid int) {
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}

// exitStatus maps a reaped child to the shell-convention exit code: the
// child's own code, or 128+signal when it died on one.
func exitStatus(ps *os.ProcessState) int {
	if ps == nil {
		return -1
	}
	if code := ps.ExitCode(); code >= 0 {
		return code
	}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return -1
}
