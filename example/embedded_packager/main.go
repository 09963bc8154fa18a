package main

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dalevision/edgesup"
)

// embedded_packager: stage a deployment bundle from a source directory,
// build the zip artifact and verify it against the manifest afterwards.
// Demonstrates the packaging API without the edgesup CLI.
func main() {
	dir, err := os.MkdirTemp("", "edgesup-packager-")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	// Lay out a minimal release source: both binaries, the env template
	// with placeholder values and an empty logs directory.
	src := filepath.Join(dir, "source")
	if err := os.MkdirAll(src, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	for _, name := range []string{"dalevision-edge-agent", "edgesup"} {
		if err := os.WriteFile(filepath.Join(src, name), []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	template := "CLOUD_BASE_URL=https://api.dalevision.io\n" +
		"STORE_ID=<your-store-id>\n" +
		"EDGE_TOKEN=<your-edge-token>\n"
	if err := os.WriteFile(filepath.Join(src, ".env.example"), []byte(template), 0o644); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := os.MkdirAll(filepath.Join(src, "logs"), 0o755); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	m, err := edgesup.DefaultManifest(edgesup.VariantTemplate)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	out := filepath.Join(dir, "edge-bundle.zip")
	if err := edgesup.BuildArtifact(src, m, out); err != nil {
		fmt.Fprintln(os.Stderr, "build failed:", err)
		os.Exit(1)
	}
	fmt.Println("artifact written:", out)

	// BuildArtifact already verified the zip; running the check again
	// shows how a received artifact is validated on its own.
	if err := edgesup.VerifyArchive(out, m); err != nil {
		fmt.Fprintln(os.Stderr, "verify failed:", err)
		os.Exit(1)
	}

	zr, err := zip.OpenReader(out)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = zr.Close() }()
	for _, f := range zr.File {
		fmt.Printf("  %8d  %s\n", f.UncompressedSize64, f.Name)
	}
}
