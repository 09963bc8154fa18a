//go:build windows

package main

import (
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// createTaskArgs renders the schtasks invocation registering the supervisor
// at user logon. Windows has no Restart= equivalent, so the task runs the
// supervisor in continuous mode and relaunching stays our job.
func createTaskArgs(execPath string) []string {
	return []string{
		"/Create", "/F",
		"/TN", autostartName,
		"/SC", "ONLOGON",
		"/RL", "HIGHEST",
		"/TR", fmt.Sprintf(`"%s" run --heartbeat-only`, execPath),
	}
}

func deleteTaskArgs() []string {
	return []string{"/Delete", "/F", "/TN", autostartName}
}

func queryTaskArgs() []string {
	return []string{"/Query", "/TN", autostartName}
}

func installAutostart(execPath string) error {
	// /Query before /Create /F so a replacement is visible in the log
	replaced := exec.Command("schtasks", queryTaskArgs()...).Run() == nil
	// #nosec G204 -- fixed schtasks arguments
	if out, err := exec.Command("schtasks", createTaskArgs(execPath)...).CombinedOutput(); err != nil {
		return fmt.Errorf("schtasks create: %w (%s)", err, strings.TrimSpace(string(out)))
	}
	if replaced {
		slog.Warn("Replaced existing auto-start registration", "name", autostartName)
	}
	fmt.Printf("auto-start registered as %s\n", autostartName)
	return nil
}

func removeAutostart() error {
	if exec.Command("schtasks", queryTaskArgs()...).Run() != nil {
		fmt.Println("no auto-start registration found")
		return nil
	}
	// #nosec G204 -- fixed schtasks arguments
	if out, err := exec.Command("schtasks", deleteTaskArgs()...).CombinedOutput(); err != nil {
		return fmt.Errorf("schtasks delete: %w (%s)", err, strings.TrimSpace(string(out)))
	}
	fmt.Printf("auto-start registration %s removed\n", autostartName)
	return nil
}
