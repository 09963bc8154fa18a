//go:build !windows

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const systemdUnitDir = "/etc/systemd/system"

// renderSystemdUnit produces the unit file contents. The unit runs the
// supervisor single-shot and lets systemd do the relaunching, with the same
// 3 second cadence the supervisor would use on its own.
func renderSystemdUnit(execPath string) string {
	return `[Unit]
Description=DALE Vision edge agent supervisor
After=network-online.target

[Service]
Type=simple
WorkingDirectory=` + filepath.Dir(execPath) + `
ExecStart=` + execPath + ` run --once --heartbeat-only
Restart=always
RestartSec=3

[Install]
WantedBy=multi-user.target
`
}

func unitFilePath() string {
	return filepath.Join(systemdUnitDir, autostartName+".service")
}

func installAutostart(execPath string) error {
	unitPath := unitFilePath()
	replaced := false
	if _, err := os.Stat(unitPath); err == nil {
		replaced = true
		if err := os.Remove(unitPath); err != nil {
			return fmt.Errorf("remove existing unit: %w", err)
		}
	}
	if err := os.WriteFile(unitPath, []byte(renderSystemdUnit(execPath)), 0o644); err != nil {
		return fmt.Errorf("write unit file: %w", err)
	}
	if replaced {
		slog.Warn("Replaced existing auto-start registration", "name", autostartName)
	}
	for _, args := range [][]string{
		{"systemctl", "daemon-reload"},
		{"systemctl", "enable", autostartName + ".service"},
	} {
		// #nosec G204 -- fixed systemctl arguments
		if out, err := exec.Command(args[0], args[1:]...).CombinedOutput(); err != nil {
			return fmt.Errorf("%s: %w (%s)", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
		}
	}
	fmt.Printf("auto-start registered as %s\n", autostartName)
	return nil
}

func removeAutostart() error {
	unitPath := unitFilePath()
	if _, err := os.Stat(unitPath); errors.Is(err, fs.ErrNotExist) {
		fmt.Println("no auto-start registration found")
		return nil
	}
	// best effort; the unit may never have been enabled
	_ = exec.Command("systemctl", "disable", autostartName+".service").Run()
	if err := os.Remove(unitPath); err != nil {
		return fmt.Errorf("remove unit file: %w", err)
	}
	_ = exec.Command("systemctl", "daemon-reload").Run()
	fmt.Printf("auto-start registration %s removed\n", autostartName)
	return nil
}
