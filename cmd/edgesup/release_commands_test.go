package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dalevision/edgesup/internal/release"
)

const templateEnvExample = "CLOUD_BASE_URL=https://api.dalevision.io\n" +
	"STORE_ID=<your-store-id>\n" +
	"EDGE_TOKEN=<your-edge-token>\n"

func templateSource(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "dalevision-edge-agent"), "#!/bin/sh\nexit 0\n")
	writeTestFile(t, filepath.Join(dir, "edgesup"), "#!/bin/sh\nexit 0\n")
	writeTestFile(t, filepath.Join(dir, ".env.example"), templateEnvExample)
	return dir
}

func TestRunPackageAndVerify(t *testing.T) {
	src := templateSource(t)
	out := filepath.Join(t.TempDir(), "bundle.zip")

	if err := runPackage(PackageFlags{Source: src, Output: out, Variant: "template"}); err != nil {
		t.Fatalf("package: %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
	if err := runVerify(VerifyFlags{Artifact: out, Variant: "template"}); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestRunPackageRejectsUnknownVariant(t *testing.T) {
	err := runPackage(PackageFlags{Source: t.TempDir(), Output: "x.zip", Variant: "full"})
	if err == nil || !strings.Contains(err.Error(), "unknown variant") {
		t.Fatalf("err = %v, want unknown variant", err)
	}
}

func TestRunPackageLeavesNothingOnFailure(t *testing.T) {
	src := t.TempDir() // empty: required files missing
	out := filepath.Join(t.TempDir(), "bundle.zip")
	if err := runPackage(PackageFlags{Source: src, Output: out, Variant: "template"}); err == nil {
		t.Fatal("expected failure for empty source")
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatalf("failed package left an artifact: %v", err)
	}
}

func TestRunVerifyFailsOnTamperedArchive(t *testing.T) {
	src := templateSource(t)
	out := filepath.Join(t.TempDir(), "bundle.zip")
	if err := runPackage(PackageFlags{Source: src, Output: out, Variant: "template"}); err != nil {
		t.Fatalf("package: %v", err)
	}
	// verifying against the other variant's manifest must fail:
	// .env.example is forbidden there
	err := runVerify(VerifyFlags{Artifact: out, Variant: "placeholder"})
	var mismatch *release.ArtifactMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("err = %v, want ArtifactMismatchError", err)
	}
}
