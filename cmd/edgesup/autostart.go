package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// autostartName is the fixed registration name on every platform. Install is
// delete-then-recreate under this name, so repeated installs never pile up.
const autostartName = "dalevision-edge-agent"

// createAutostartCommand creates the autostart command with subcommands.
func createAutostartCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "autostart",
		Short: "Manage OS auto-start registration",
		Long: `Register or remove the supervisor's auto-start entry: a systemd unit
on Linux, a Scheduled Task on Windows. Registration is idempotent; an
existing entry with the same name is replaced and a warning is logged.

Examples:
  edgesup autostart install
  edgesup autostart remove`,
	}

	cmd.AddCommand(
		createAutostartInstallCommand(),
		createAutostartRemoveCommand(),
	)

	return cmd
}

func createAutostartInstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Register the supervisor to start with the OS",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAutostartInstall()
		},
	}
}

func createAutostartRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove",
		Short: "Remove the auto-start registration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAutostartRemove()
		},
	}
}

func runAutostartInstall() error {
	closer := setupLogging("")
	defer func() { _ = closer.Close() }()

	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve own executable: %w", err)
	}
	return installAutostart(execPath)
}

func runAutostartRemove() error {
	closer := setupLogging("")
	defer func() { _ = closer.Close() }()

	return removeAutostart()
}
