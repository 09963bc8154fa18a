//go:build windows

package main

import (
	"strings"
	"testing"
)

func TestCreateTaskArgs(t *testing.T) {
	args := strings.Join(createTaskArgs(`C:\dalevision\edgesup.exe`), " ")
	for _, want := range []string{
		"/Create", "/F",
		"/TN dalevision-edge-agent",
		"/SC ONLOGON",
		`"C:\dalevision\edgesup.exe" run --heartbeat-only`,
	} {
		if !strings.Contains(args, want) {
			t.Errorf("task args missing %q: %s", want, args)
		}
	}
}

func TestDeleteTaskArgs(t *testing.T) {
	args := strings.Join(deleteTaskArgs(), " ")
	if !strings.Contains(args, "/TN dalevision-edge-agent") || !strings.Contains(args, "/Delete") {
		t.Fatalf("unexpected delete args: %s", args)
	}
}
