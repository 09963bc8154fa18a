package main

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/dalevision/edgesup/internal/envfile"
	"github.com/dalevision/edgesup/internal/history"
)

const validEnv = "CLOUD_BASE_URL=https://api.dalevision.io\n" +
	"STORE_ID=0b7f4a52-8df1-4c1e-9a3b-02f7d1c4e9aa\n" +
	"EDGE_TOKEN=edge-token-0123456789abcdef\n"

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix shell")
	}
}

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// missingConfig returns a config path that does not exist, so commands fall
// back to the built-in defaults.
func missingConfig(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "absent.toml")
}

func TestRunValidateAcceptsGoodEnv(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), ".env")
	writeTestFile(t, envPath, validEnv)
	if err := runValidate(missingConfig(t), ValidateFlags{EnvFile: envPath}); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestRunValidateMissingFile(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), ".env")
	err := runValidate(missingConfig(t), ValidateFlags{EnvFile: envPath})
	if !errors.Is(err, envfile.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if got := exitCode(err); got != 1 {
		t.Fatalf("exit code = %d, want 1", got)
	}
}

func TestRunValidatePlaceholderToken(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), ".env")
	writeTestFile(t, envPath, strings.Replace(validEnv, "edge-token-0123456789abcdef", "<your-edge-token>", 1))
	err := runValidate(missingConfig(t), ValidateFlags{EnvFile: envPath})
	var invalid *envfile.InvalidFieldError
	if !errors.As(err, &invalid) {
		t.Fatalf("err = %v, want InvalidFieldError", err)
	}
	if invalid.Key != envfile.KeyEdgeToken {
		t.Fatalf("failing key = %s, want %s", invalid.Key, envfile.KeyEdgeToken)
	}
	if got := exitCode(err); got != 2 {
		t.Fatalf("exit code = %d, want 2", got)
	}
}

func TestRunValidateMalformedStoreID(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), ".env")
	writeTestFile(t, envPath, strings.Replace(validEnv, "0b7f4a52-8df1-4c1e-9a3b-02f7d1c4e9aa", "loja-01", 1))
	err := runValidate(missingConfig(t), ValidateFlags{EnvFile: envPath})
	var malformed *envfile.MalformedIdentifierError
	if !errors.As(err, &malformed) {
		t.Fatalf("err = %v, want MalformedIdentifierError", err)
	}
	if got := exitCode(err); got != 10 {
		t.Fatalf("exit code = %d, want 10", got)
	}
}

func TestRunRotateExplicitFiles(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "edgesup.toml")
	writeTestFile(t, cfgPath, "[log]\nmax_size_mb = 1\nmax_archives = 2\n")

	big := filepath.Join(dir, "big.log")
	if err := os.WriteFile(big, make([]byte, 1<<20+1), 0o644); err != nil {
		t.Fatalf("seed big log: %v", err)
	}
	small := filepath.Join(dir, "small.log")
	writeTestFile(t, small, "tiny\n")
	absent := filepath.Join(dir, "absent.log")

	if err := runRotate(cfgPath, RotateFlags{Files: []string{big, small, absent}}); err != nil {
		t.Fatalf("rotate: %v", err)
	}

	info, err := os.Stat(big)
	if err != nil {
		t.Fatalf("stat rotated file: %v", err)
	}
	if info.Size() != 0 {
		t.Fatalf("big.log not truncated, size %d", info.Size())
	}
	archives, err := filepath.Glob(filepath.Join(dir, "big.*.log"))
	if err != nil || len(archives) != 1 {
		t.Fatalf("archives = %v (err %v), want exactly one", archives, err)
	}
	if info, err := os.Stat(small); err != nil || info.Size() == 0 {
		t.Fatalf("small.log should be untouched: %v size %d", err, info.Size())
	}
}

func TestRunOnceHappyPathWritesLogsAndHistory(t *testing.T) {
	requireUnix(t)
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "edgesup.toml")
	writeTestFile(t, cfgPath, `env_file = ".env"
agent = "/bin/sh"
args = ["-c", "echo hello; exit 0"]
restart_interval = "50ms"

[log]
dir = "logs"
`)
	writeTestFile(t, filepath.Join(dir, ".env"), validEnv)

	if err := runRun(cfgPath, RunFlags{Once: true}, nil); err != nil {
		t.Fatalf("run --once: %v", err)
	}

	capture, err := os.ReadFile(filepath.Join(dir, "logs", "agent.out.log"))
	if err != nil {
		t.Fatalf("read capture: %v", err)
	}
	if !strings.Contains(string(capture), "hello") {
		t.Fatalf("capture missing child output: %q", capture)
	}
	if _, err := os.Stat(filepath.Join(dir, "logs", "edgesup.log")); err != nil {
		t.Fatalf("supervisor log missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "logs", "edgesup-history.db")); err != nil {
		t.Fatalf("history db missing: %v", err)
	}
}

func TestRunOncePropagatesAgentCode(t *testing.T) {
	requireUnix(t)
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "edgesup.toml")
	writeTestFile(t, cfgPath, `env_file = ".env"
agent = "/bin/sh"
args = ["-c", "exit 4"]

[log]
dir = "logs"
`)
	writeTestFile(t, filepath.Join(dir, ".env"), validEnv)

	err := runRun(cfgPath, RunFlags{Once: true}, nil)
	var child *childExitError
	if !errors.As(err, &child) {
		t.Fatalf("err = %v, want childExitError", err)
	}
	if got := exitCode(err); got != 4 {
		t.Fatalf("exit code = %d, want 4", got)
	}
}

func TestRunOnceValidationFailure(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "edgesup.toml")
	writeTestFile(t, cfgPath, `env_file = ".env"
agent = "/bin/sh"

[log]
dir = "logs"
`)
	// no .env written

	err := runRun(cfgPath, RunFlags{Once: true}, nil)
	if !errors.Is(err, envfile.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if got := exitCode(err); got != 1 {
		t.Fatalf("exit code = %d, want 1", got)
	}
}

func TestRenderHistory(t *testing.T) {
	events := []history.Event{
		{Type: history.EventExit, OccurredAt: time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC), PID: 222, ExitCode: 3, Class: "auth"},
		{Type: history.EventStart, OccurredAt: time.Date(2026, 3, 4, 9, 59, 57, 0, time.UTC), PID: 222},
	}
	var buf strings.Builder
	if err := renderHistory(&buf, events); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header plus two rows, got %d lines:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "TIME") {
		t.Fatalf("missing header: %q", lines[0])
	}
	if !strings.Contains(lines[1], "exit") || !strings.Contains(lines[1], "auth") {
		t.Fatalf("first row should be the exit event: %q", lines[1])
	}
	if !strings.Contains(lines[2], "start") {
		t.Fatalf("second row should be the start event: %q", lines[2])
	}
}
