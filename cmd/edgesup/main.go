package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dalevision/edgesup/internal/envfile"
	"github.com/dalevision/edgesup/internal/supervisor"
)

// Process exit codes of the supervision layer. Codes 3 and 4 are never
// produced here: they surface verbatim from the agent itself.
const (
	exitOK           = 0
	exitGeneric      = 1 // also: env file missing
	exitInvalidField = 2
	exitMalformedID  = 10 // reserved range 10-19 for identifier problems
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

// buildRoot creates the root command and wires every subcommand.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	validateFlags := &ValidateFlags{}
	runFlags := &RunFlags{}
	rotateFlags := &RotateFlags{}
	packageFlags := &PackageFlags{}
	verifyFlags := &VerifyFlags{}
	historyFlags := &HistoryFlags{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createValidateCommand(globalFlags, validateFlags),
		createRunCommand(globalFlags, runFlags),
		createRotateCommand(globalFlags, rotateFlags),
		createPackageCommand(packageFlags),
		createVerifyCommand(verifyFlags),
		createAutostartCommand(),
		createHistoryCommand(globalFlags, historyFlags),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags.
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "edgesup",
		Short: "Deployment and supervision layer for the DALE Vision edge agent",
		Long: `Edgesup validates the agent's .env, supervises the agent binary with
automatic relaunch, rotates its log files and packages release bundles.

Examples:
  edgesup validate                  # Check .env before going live
  edgesup run                       # Supervise with automatic relaunch
  edgesup run --once                # Single launch, agent exit code passes through
  edgesup package --output bundle.zip --variant template
  edgesup history --limit 20        # Recent launches and exits`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "edgesup.toml", "path to TOML config file (optional)")

	return root
}

// childExitError carries the agent's verbatim exit code through cobra's
// error path so main can exit with it.
type childExitError struct {
	code int
}

func (e *childExitError) Error() string {
	return fmt.Sprintf("agent exited with code %d", e.code)
}

// exitCode maps an error from a subcommand onto the documented process exit
// codes: 1 missing env file, 2 invalid field, 10 malformed identifier,
// 127 spawn failure, the agent's own code when it ran and failed, 1 for
// everything else.
func exitCode(err error) int {
	var child *childExitError
	if errors.As(err, &child) {
		return child.code
	}
	var launch *supervisor.LaunchError
	if errors.As(err, &launch) {
		return supervisor.LaunchFailureCode
	}
	var malformed *envfile.MalformedIdentifierError
	if errors.As(err, &malformed) {
		return exitMalformedID
	}
	var invalid *envfile.InvalidFieldError
	if errors.As(err, &invalid) {
		return exitInvalidField
	}
	if errors.Is(err, envfile.ErrNotFound) {
		return exitGeneric
	}
	return exitGeneric
}
