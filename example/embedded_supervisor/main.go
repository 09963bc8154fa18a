package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dalevision/edgesup"
)

// embedded_supervisor: validate an agent .env, supervise a stand-in agent
// for a few runs, then print the recorded history. Demonstrates the
// embeddable API without the edgesup CLI.
func main() {
	dir, err := os.MkdirTemp("", "edgesup-example-")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	envPath := filepath.Join(dir, ".env")
	envContent := "CLOUD_BASE_URL=https://api.dalevision.io\n" +
		"STORE_ID=4f9c2a1e-7b2f-4f6e-9f2a-3d8c1b5e7a90\n" +
		"EDGE_TOKEN=example-token-0123456789abcdef\n"
	if err := os.WriteFile(envPath, []byte(envContent), 0o600); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	rec, err := edgesup.ValidateEnv(envPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "env invalid:", err)
		os.Exit(1)
	}
	fmt.Printf("env valid, %d keys\n", rec.Len())

	logDir := filepath.Join(dir, "logs")
	sink, err := edgesup.NewSQLiteHistory(filepath.Join(dir, "history.db"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = sink.Close() }()

	sup := edgesup.NewSupervisor(edgesup.SupervisorConfig{
		Agent:   "/bin/sh",
		Args:    []string{"-c", "echo agent run; sleep 0.1"},
		EnvFile: envPath,
		LogDir:  logDir,
		History: sink,
	})

	// single-shot run; Ctrl-C still interrupts it
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code, err := sup.Run(ctx, edgesup.ModeOnce)
	if err != nil {
		fmt.Fprintln(os.Stderr, "run failed:", err)
		os.Exit(1)
	}
	fmt.Printf("agent exited with code %d\n", code)

	events, err := sink.Recent(context.Background(), 10)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	for _, e := range events {
		fmt.Printf("%s  %-14s pid=%d code=%d class=%s\n",
			e.OccurredAt.Format("15:04:05"), e.Type, e.PID, e.ExitCode, e.Class)
	}
}
