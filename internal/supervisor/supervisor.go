// Package supervisor owns the agent process for its whole lifetime: it
// validates the env file before every launch, rotates the log segments,
// starts the binary in its own process group, waits for it, classifies the
// exit and decides whether to relaunch. All observable side effects go
// through the log directory and the process exit code; the supervisor never
// talks to the network.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/dalevision/edgesup/internal/env"
	"github.com/dalevision/edgesup/internal/envfile"
	"github.com/dalevision/edgesup/internal/history"
	"github.com/dalevision/edgesup/internal/logger"
	"github.com/dalevision/edgesup/internal/logrot"
	"github.com/dalevision/edgesup/internal/metrics"
)

// Mode selects the relaunch policy.
type Mode int

const (
	// ModeContinuous relaunches the agent after every exit until the
	// context is cancelled. It never gives up on its own.
	ModeContinuous Mode = iota
	// ModeOnce performs exactly one launch and propagates the child's
	// exit code verbatim.
	ModeOnce
)

const (
	DefaultRestartInterval = 3 * time.Second
	DefaultStopGrace       = 5 * time.Second

	// LaunchFailureCode is reported when the agent binary could not even
	// be spawned (shell convention for "command not found").
	LaunchFailureCode = 127

	agentName    = "agent"
	agentPIDName = "agent.pid"
	ownPIDName   = "edgesup.pid"
)

// LaunchError wraps a spawn failure of the agent binary.
type LaunchError struct {
	Path string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s: %s", e.Path, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// Config describes one supervised agent.
type Config struct {
	Agent           string        // path or name of the agent binary
	Args            []string      // arguments passed on every launch
	WorkDir         string        // child working directory; empty inherits ours
	EnvFile         string        // validated before every launch when set
	LogDir          string        // segment directory (agent.log, agent.out.log)
	MaxLogBytes     int64         // rotation threshold per segment
	MaxArchives     int           // archives kept per segment
	RestartInterval time.Duration // fixed delay between exit and relaunch
	StopGrace       time.Duration // SIGTERM to SIGKILL escalation window
	Env             *env.Env      // supervisor-level variables, may be nil
	History         history.Sink  // launch/exit sink, may be nil
	Logger          *slog.Logger  // defaults to slog.Default()
}

// Supervisor drives one agent binary through the Idle/Starting/Running/
// Exited state machine. All mutable run state is owned by the instance, so
// independent supervisors (e.g. under test) never share anything.
type Supervisor struct {
	cfg    Config
	logCfg logger.Config
	log    *slog.Logger

	mu        sync.Mutex
	state     State
	cmd       *exec.Cmd
	argv      []string
	startedAt time.Time
	stoppedAt time.Time
	exitCode  int
	restarts  int
	runs      int
}

func New(cfg Config) *Supervisor {
	if cfg.RestartInterval <= 0 {
		cfg.RestartInterval = DefaultRestartInterval
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = DefaultStopGrace
	}
	if cfg.MaxLogBytes <= 0 {
		cfg.MaxLogBytes = logrot.DefaultMaxBytes
	}
	if cfg.MaxArchives <= 0 {
		cfg.MaxArchives = logrot.DefaultMaxArchives
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Supervisor{
		cfg:    cfg,
		logCfg: logger.Config{Dir: cfg.LogDir},
		log:    log,
		state:  StateIdle,
	}
}

// State returns the current state machine state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns a snapshot of the current or most recent run.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		State:     s.state,
		Running:   s.state == StateRunning,
		Argv:      append([]string(nil), s.argv...),
		StartedAt: s.startedAt,
		StoppedAt: s.stoppedAt,
		ExitCode:  s.exitCode,
		Restarts:  s.restarts,
	}
	if s.cmd != nil && s.cmd.Process != nil {
		st.PID = s.cmd.Process.Pid
	}
	return st
}

// Run drives the supervision loop until it terminates.
//
// Continuous mode returns (0, nil) only after ctx is cancelled; the child
// group is stopped gracefully first. Launch and validation failures abort
// the current attempt, wait the restart interval and try again; continuous
// mode never gives up on its own.
//
// Single-shot mode returns the child's exit code verbatim with a nil error,
// or (0, err) when the pre-launch validation or the spawn itself failed;
// callers map the error to an exit code (LaunchError means LaunchFailureCode).
func (s *Supervisor) Run(ctx context.Context, mode Mode) (int, error) {
	if s.cfg.Agent == "" {
		return 0, errors.New("no agent binary configured")
	}
	if s.cfg.LogDir != "" {
		if err := os.MkdirAll(s.cfg.LogDir, 0o750); err != nil {
			return 0, fmt.Errorf("create log dir: %w", err)
		}
		writePIDFile(filepath.Join(s.cfg.LogDir, ownPIDName), os.Getpid())
		defer removePIDFile(filepath.Join(s.cfg.LogDir, ownPIDName))
		defer removePIDFile(filepath.Join(s.cfg.LogDir, agentPIDName))
	}
	defer s.setState(StateTerminal)

	for {
		if ctx.Err() != nil {
			return 0, nil
		}

		// Config gate: every launch attempt revalidates, so an operator
		// fixing .env on a crash-looping kiosk needs no restart of us.
		var rec *envfile.Record
		if s.cfg.EnvFile != "" {
			r, err := envfile.Validate(s.cfg.EnvFile)
			if err != nil {
				metrics.IncValidationFailure(validationKey(err))
				s.log.Error("Config validation failed, launch skipped", "env", s.cfg.EnvFile, "error", err)
				if mode == ModeOnce {
					return 0, err
				}
				if !s.sleepRestart(ctx) {
					return 0, nil
				}
				continue
			}
			rec = r
		}

		s.rotateSegments()
		s.setState(StateStarting)

		cmd, capture, err := s.startChild(rec)
		if err != nil {
			lerr := &LaunchError{Path: s.cfg.Agent, Err: err}
			s.markExited(LaunchFailureCode)
			metrics.IncLaunchFailure()
			s.record(history.Event{
				Type:       history.EventLaunchFailure,
				OccurredAt: time.Now().UTC(),
				ExitCode:   LaunchFailureCode,
				Class:      "launch",
				Detail:     err.Error(),
			})
			s.log.Error("Agent could not be spawned", "agent", s.cfg.Agent, "error", err, "hint", hint("launch"))
			if mode == ModeOnce {
				return 0, lerr
			}
			s.setState(StateRestarting)
			if !s.sleepRestart(ctx) {
				return 0, nil
			}
			continue
		}

		pid := cmd.Process.Pid
		s.setState(StateRunning)
		metrics.IncStart()
		metrics.SetRunning(true)
		if s.bumpRuns() > 1 {
			metrics.IncRestart()
		}
		s.record(history.Event{Type: history.EventStart, OccurredAt: time.Now().UTC(), PID: pid})
		s.log.Info("Agent started", "pid", pid, "argv", cmd.Args)

		code, external := s.waitChild(ctx, cmd)
		_ = capture.Close()
		metrics.SetRunning(false)
		s.markExited(code)

		class := classify(code, external)
		metrics.IncExit(class)
		s.record(history.Event{Type: history.EventExit, OccurredAt: time.Now().UTC(), PID: pid, ExitCode: code, Class: class})
		s.logExit(code, class)

		if external {
			return 0, nil
		}
		if mode == ModeOnce {
			return code, nil
		}
		s.setState(StateRestarting)
		if !s.sleepRestart(ctx) {
			return 0, nil
		}
	}
}

// startChild builds, wires and starts one agent run. The child gets its own
// process group so external stop can take the whole tree down, and both its
// stdout and stderr append to the capture segment.
func (s *Supervisor) startChild(rec *envfile.Record) (*exec.Cmd, io.WriteCloser, error) {
	argv := append([]string{s.cfg.Agent}, s.cfg.Args...)
	// #nosec G204 -- argv comes from the operator's own config
	cmd := exec.Command(argv[0], argv[1:]...)
	if s.cfg.WorkDir != "" {
		cmd.Dir = s.cfg.WorkDir
	}
	base := s.cfg.Env
	if base == nil {
		base = env.New()
	}
	var layers [][]string
	if rec != nil {
		layers = append(layers, rec.Environ())
	}
	cmd.Env = base.Merge(layers...)
	configureSysProcAttr(cmd)

	capture, err := s.logCfg.CaptureWriter(agentName)
	if err != nil {
		return nil, nil, err
	}
	cmd.Stdout = capture
	cmd.Stderr = capture

	if err := cmd.Start(); err != nil {
		_ = capture.Close()
		return nil, nil, err
	}
	s.markStarted(cmd, argv)
	writePIDFile(filepath.Join(s.cfg.LogDir, agentPIDName), cmd.Process.Pid)
	return cmd, capture, nil
}

// waitChild blocks until the child exits. This is the supervisor's only
// suspension point. When ctx fires first, the child group is terminated
// (SIGTERM, grace, SIGKILL) and external=true is returned.
func (s *Supervisor) waitChild(ctx context.Context, cmd *exec.Cmd) (code int, external bool) {
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case <-done:
		return exitStatus(cmd.ProcessState), false
	case <-ctx.Done():
	}

	pid := cmd.Process.Pid
	s.log.Info("Stopping agent", "pid", pid, "grace", s.cfg.StopGrace)
	terminateGroup(pid)
	select {
	case <-done:
	case <-time.After(s.cfg.StopGrace):
		killGroup(pid)
		select {
		case <-done:
		case <-time.After(200 * time.Millisecond):
			// best-effort; the group kill has been sent
		}
	}
	return exitStatus(cmd.ProcessState), true
}

// rotateSegments runs copy-truncate rotation over both agent segments.
// Rotation trouble is logged and never blocks the launch.
func (s *Supervisor) rotateSegments() {
	if s.cfg.LogDir == "" {
		return
	}
	segments := []string{
		filepath.Join(s.cfg.LogDir, agentName+".log"),
		s.logCfg.CapturePath(agentName),
	}
	for _, p := range segments {
		rotated, err := logrot.RotateIfNeeded(p, s.cfg.MaxLogBytes, s.cfg.MaxArchives)
		if err != nil {
			s.log.Warn("Log rotation failed", "file", p, "error", err)
			continue
		}
		if rotated {
			metrics.IncRotation(filepath.Base(p))
			s.log.Info("Rotated log segment", "file", p)
		}
	}
}

// sleepRestart waits the fixed restart interval. The cancellable wait is the
// escape hatch out of the infinite relaunch policy; it returns false when
// ctx fired first.
func (s *Supervisor) sleepRestart(ctx context.Context) bool {
	t := time.NewTimer(s.cfg.RestartInterval)
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		if !t.Stop() {
			<-t.C
		}
		return false
	}
}

func (s *Supervisor) setState(next State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()
	if prev == next {
		return
	}
	metrics.RecordStateTransition(prev.String(), next.String())
	metrics.SetCurrentState(prev.String(), false)
	metrics.SetCurrentState(next.String(), true)
}

func (s *Supervisor) markStarted(cmd *exec.Cmd, argv []string) {
	s.mu.Lock()
	s.cmd = cmd
	s.argv = argv
	s.startedAt = time.Now()
	s.stoppedAt = time.Time{}
	s.exitCode = 0
	s.mu.Unlock()
}

func (s *Supervisor) markExited(code int) {
	s.mu.Lock()
	s.exitCode = code
	s.stoppedAt = time.Now()
	s.mu.Unlock()
	s.setState(StateExited)
}

func (s *Supervisor) bumpRuns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs++
	if s.runs > 1 {
		s.restarts++
	}
	return s.runs
}

func (s *Supervisor) record(e history.Event) {
	if s.cfg.History == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.cfg.History.Send(ctx, e); err != nil {
		s.log.Warn("History sink rejected event", "type", e.Type, "error", err)
	}
}

func (s *Supervisor) logExit(code int, class string) {
	attrs := []any{"code", code, "class", class}
	if h := hint(class); h != "" {
		attrs = append(attrs, "hint", h)
	}
	if code == 0 {
		s.log.Info("Agent exited", attrs...)
		return
	}
	s.log.Warn("Agent exited", attrs...)
}

// classify buckets an exit for metrics and history. Only the codes the
// agent contract promises to keep stable get their own class: 0 ok,
// 3 auth, 4 network.
func classify(code int, external bool) string {
	if external {
		return "stopped"
	}
	switch code {
	case 0:
		return "clean"
	case 3:
		return "auth"
	case 4:
		return "network"
	default:
		return "crash"
	}
}

// hint is the operator-facing remediation shown next to a classified exit.
func hint(class string) string {
	switch class {
	case "auth":
		return "token rejected; reissue EDGE_TOKEN in the cloud console and update .env"
	case "network":
		return "cannot reach the cloud; check connectivity and CLOUD_BASE_URL"
	case "launch":
		return "agent binary missing or not executable; reinstall the release package"
	default:
		return ""
	}
}

func validationKey(err error) string {
	var inv *envfile.InvalidFieldError
	if errors.As(err, &inv) {
		return inv.Key
	}
	var mal *envfile.MalformedIdentifierError
	if errors.As(err, &mal) {
		return mal.Key
	}
	if errors.Is(err, envfile.ErrNotFound) {
		return "missing_file"
	}
	return "unknown"
}
