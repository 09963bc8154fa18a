package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dalevision/edgesup/internal/config"
	"github.com/dalevision/edgesup/internal/env"
	"github.com/dalevision/edgesup/internal/envfile"
	"github.com/dalevision/edgesup/internal/history"
	"github.com/dalevision/edgesup/internal/history/sqlite"
	"github.com/dalevision/edgesup/internal/logger"
	"github.com/dalevision/edgesup/internal/logrot"
	"github.com/dalevision/edgesup/internal/metrics"
	"github.com/dalevision/edgesup/internal/supervisor"
)

// agentLogName is the agent's own log file under the log directory. The
// capture segment name comes from logger.Config.CapturePath.
const agentLogName = "agent.log"

// createValidateCommand creates the validate subcommand.
func createValidateCommand(globalFlags *GlobalFlags, flags *ValidateFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the agent .env file",
		Long: `Check the agent's .env for the required fields and print one masked
diagnostic line per field. The file is only read, never changed.

Exit codes:
  0   valid
  1   env file missing
  2   required field missing, empty, placeholder or token too short
  10  STORE_ID is not a valid UUID

Examples:
  edgesup validate
  edgesup validate --env /opt/dalevision/.env`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(globalFlags.ConfigPath, *flags)
		},
	}

	cmd.Flags().StringVar(&flags.EnvFile, "env", "", "path to the .env file (default from config)")

	return cmd
}

func runValidate(configPath string, flags ValidateFlags) error {
	settings, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}
	closer := setupLogging("")
	defer func() { _ = closer.Close() }()

	envPath := settings.EnvFile
	if flags.EnvFile != "" {
		envPath = flags.EnvFile
	}
	rec, err := envfile.Validate(envPath)
	if err != nil {
		return err
	}
	fmt.Printf("%s is valid (%d keys)\n", envPath, rec.Len())
	return nil
}

// createRunCommand creates the run subcommand.
func createRunCommand(globalFlags *GlobalFlags, flags *RunFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [flags] [-- agent-args...]",
		Short: "Supervise the agent binary",
		Long: `Validate the .env, rotate the log segments and launch the agent.
By default the agent is relaunched after every exit with a fixed delay and
supervision only ends on SIGINT/SIGTERM. With --once the agent runs a single
time and its exit code passes through verbatim (127 when the binary could
not be spawned). Validation is repeated before every launch attempt.

Examples:
  edgesup run
  edgesup run --once
  edgesup run --heartbeat-only
  edgesup run --agent ./dalevision-edge-agent -- --verbose`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(globalFlags.ConfigPath, *flags, args)
		},
	}

	cmd.Flags().BoolVar(&flags.Once, "once", false, "launch once and propagate the agent's exit code")
	cmd.Flags().BoolVar(&flags.HeartbeatOnly, "heartbeat-only", false, "pass --heartbeat-only to the agent")
	cmd.Flags().StringVar(&flags.Agent, "agent", "", "agent binary (overrides config)")
	cmd.Flags().StringVar(&flags.EnvFile, "env", "", "path to the .env file (overrides config)")

	return cmd
}

func runRun(configPath string, flags RunFlags, agentArgs []string) error {
	settings, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}
	if flags.Agent != "" {
		settings.Agent = flags.Agent
	}
	if flags.EnvFile != "" {
		settings.EnvFile = flags.EnvFile
	}
	args := append([]string(nil), settings.Args...)
	if flags.HeartbeatOnly {
		args = append(args, "--heartbeat-only")
	}
	args = append(args, agentArgs...)

	closer := setupLogging(settings.Log.Dir)
	defer func() { _ = closer.Close() }()

	if settings.Metrics.Enabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			slog.Warn("Metrics registration failed", "error", err)
		} else if settings.Metrics.Listen != "" {
			go serveMetrics(settings.Metrics.Listen)
		}
	}

	var sink history.Sink
	if settings.History.Enabled && settings.History.DSN != "" {
		s, err := sqlite.New(settings.History.DSN)
		if err != nil {
			slog.Warn("History sink unavailable, continuing without it", "dsn", settings.History.DSN, "error", err)
		} else {
			sink = s
			defer func() { _ = s.Close() }()
		}
	}

	base := env.New()
	base.FromOS()

	sup := supervisor.New(supervisor.Config{
		Agent:           settings.Agent,
		Args:            args,
		WorkDir:         settings.WorkDir,
		EnvFile:         settings.EnvFile,
		LogDir:          settings.Log.Dir,
		MaxLogBytes:     settings.Log.MaxBytes(),
		MaxArchives:     settings.Log.MaxArchives,
		RestartInterval: settings.RestartInterval,
		Env:             base,
		History:         sink,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mode := supervisor.ModeContinuous
	if flags.Once {
		mode = supervisor.ModeOnce
	}
	code, err := sup.Run(ctx, mode)
	if err != nil {
		if flags.Once {
			holdConsole()
		}
		return err
	}
	if code != 0 {
		if flags.Once {
			holdConsole()
		}
		return &childExitError{code: code}
	}
	return nil
}

// createRotateCommand creates the rotate subcommand.
func createRotateCommand(globalFlags *GlobalFlags, flags *RotateFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Rotate log segments that reached the size limit",
		Long: `Run the size check once for the standard log segments (or the files
given with --file) and rotate the ones over the limit. Rotation copies
the file to a timestamped archive and truncates it in place, so an agent
holding the file open keeps writing to the same handle.

Examples:
  edgesup rotate
  edgesup rotate --file /var/log/edge/agent.log`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRotate(globalFlags.ConfigPath, *flags)
		},
	}

	cmd.Flags().StringArrayVar(&flags.Files, "file", nil, "log file to check (repeatable; default: standard segments)")

	return cmd
}

func runRotate(configPath string, flags RotateFlags) error {
	settings, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}
	closer := setupLogging("")
	defer func() { _ = closer.Close() }()

	files := flags.Files
	if len(files) == 0 {
		logCfg := logger.Config{Dir: settings.Log.Dir}
		files = []string{
			filepath.Join(settings.Log.Dir, agentLogName),
			logCfg.CapturePath("agent"),
		}
	}
	failed := false
	for _, f := range files {
		rotated, err := logrot.RotateIfNeeded(f, settings.Log.MaxBytes(), settings.Log.MaxArchives)
		if err != nil {
			slog.Error("Rotation failed", "file", f, "error", err)
			failed = true
			continue
		}
		if rotated {
			fmt.Printf("rotated %s\n", f)
		} else {
			fmt.Printf("%s under the limit, left alone\n", f)
		}
	}
	if failed {
		return errors.New("rotation failed for at least one file")
	}
	return nil
}

// createHistoryCommand creates the history subcommand.
func createHistoryCommand(globalFlags *GlobalFlags, flags *HistoryFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent launch and exit events",
		Long: `List the most recent supervision events (launches, exits with their
classification, launch failures) from the local history database, newest
first.

Examples:
  edgesup history
  edgesup history --limit 50
  edgesup history --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(globalFlags.ConfigPath, *flags)
		},
	}

	cmd.Flags().IntVar(&flags.Limit, "limit", 20, "maximum number of events")
	cmd.Flags().BoolVar(&flags.JSON, "json", false, "print events as JSON")

	return cmd
}

func runHistory(configPath string, flags HistoryFlags) error {
	settings, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}
	if settings.History.DSN == "" {
		return errors.New("history has no dsn configured")
	}
	sink, err := sqlite.New(settings.History.DSN)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer func() { _ = sink.Close() }()

	events, err := sink.Recent(context.Background(), flags.Limit)
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}
	if flags.JSON {
		printJSON(events)
		return nil
	}
	return renderHistory(os.Stdout, events)
}

// setupLogging installs the process-wide logger: colored console output when
// stderr is a terminal, plus a rotated file sink when dir is set.
func setupLogging(dir string) io.Closer {
	cfg := logger.Config{
		Dir:   dir,
		Color: term.IsTerminal(int(os.Stderr.Fd())),
	}
	log, closer := cfg.Setup(os.Stderr)
	slog.SetDefault(log)
	return closer
}

// holdConsole waits for Enter when stdin is an interactive terminal, so a
// console window opened by double-click does not vanish before the operator
// can read the failure.
func holdConsole() {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return
	}
	_, _ = fmt.Fprint(os.Stderr, "Press Enter to close...")
	_, _ = bufio.NewReader(os.Stdin).ReadString('\n')
}

// serveMetrics exposes /metrics on the configured listen address. Off by
// default; the supervisor itself never opens a socket.
func serveMetrics(listen string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	slog.Info("Metrics listener starting", "listen", listen)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Metrics listener failed", "listen", listen, "error", err)
	}
}
