//go:build windows

package supervisor

import (
	"os"
	"syscall"
)

var (
	kernel32             = syscall.NewLazyDLL("kernel32.dll")
	procOpenProcess      = kernel32.NewProc("OpenProcess")
	procTerminateProcess = kernel32.NewProc("TerminateProcess")
	procCloseHandle      = kernel32.NewProc("CloseHandle")
)

const processTerminate = 0x0001

// terminateGroup has no SIGTERM equivalent on Windows; terminate directly.
func terminateGroup(pid int) { killGroup(pid) }

// killGroup terminates the child process. Grandchildren in the group are
// not reachable here; the agent is expected not to fork on Windows.
func killGroup(pid int) {
	if pid <= 0 {
		return
	}
	handle, _, _ := procOpenProcess.Call(uintptr(processTerminate), 0, uintptr(uint32(pid)))
	if handle == 0 {
		return
	}
	_, _, _ = procTerminateProcess.Call(handle, uintptr(1))
	_, _, _ = procCloseHandle.Call(handle)
}

func exitStatus(ps *os.ProcessState) int {
	if ps == nil {
		return -1
	}
	return ps.ExitCode()
}
