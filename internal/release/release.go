// Package release builds and verifies distributable bundles. A bundle is a
// zip whose member list is pinned by a Manifest: packaging stages the
// required files into a clean directory, checks the manifest twice (once on
// the staging tree, once on the finished archive) and only then moves the
// archive to its final path. Anything less than an exact match fails the
// build, so a published artifact can be trusted by name alone.
package release

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/dalevision/edgesup/internal/envfile"
)

// MissingFilesError lists every required name absent from the staging tree.
// All absences are collected before failing so one build attempt reports
// the whole gap, not the first file alphabetically.
type MissingFilesError struct {
	Names []string
}

func (e *MissingFilesError) Error() string {
	return "missing required files: " + strings.Join(e.Names, ", ")
}

// ForbiddenFilePresentError reports forbidden names found next to the
// source tree or inside staging. Packaging stops before the archive is
// written; a bundle with a live .env or log file must never exist.
type ForbiddenFilePresentError struct {
	Names []string
}

func (e *ForbiddenFilePresentError) Error() string {
	return "forbidden files present: " + strings.Join(e.Names, ", ")
}

// SecretLeakError reports a staged env file that carries a real identity
// value where a placeholder is expected.
type SecretLeakError struct {
	Name string
	Key  string
}

func (e *SecretLeakError) Error() string {
	return fmt.Sprintf("%s carries a real value for %s where a placeholder is expected", e.Name, e.Key)
}

// ArtifactMismatchError reports an archive whose member list diverges from
// the manifest: entries the archiver dropped, forbidden or stray members,
// or the same name written twice.
type ArtifactMismatchError struct {
	Missing   []string
	Forbidden []string
	Extra     []string
	Duplicate []string
}

func (e *ArtifactMismatchError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Forbidden) > 0 {
		parts = append(parts, "forbidden "+strings.Join(e.Forbidden, ", "))
	}
	if len(e.Extra) > 0 {
		parts = append(parts, "stray "+strings.Join(e.Extra, ", "))
	}
	if len(e.Duplicate) > 0 {
		parts = append(parts, "duplicated "+strings.Join(e.Duplicate, ", "))
	}
	return "archive does not match manifest: " + strings.Join(parts, "; ")
}

func (e *ArtifactMismatchError) empty() bool {
	return len(e.Missing) == 0 && len(e.Forbidden) == 0 && len(e.Extra) == 0 && len(e.Duplicate) == 0
}

// BuildArtifact packages sourceDir into a zip at outputPath according to the
// manifest. Any prior file at outputPath is removed up front, so a failed
// build leaves nothing there. The sequence is: forbidden check on the
// source, stage required files into a clean directory, pre-archive
// checkpoint on the staging tree, zip to a temporary path, post-archive
// verification of the zip itself, rename into place.
func BuildArtifact(sourceDir string, m Manifest, outputPath string) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if err := os.Remove(outputPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove prior artifact: %w", err)
	}
	if present := presentNames(sourceDir, m.Forbidden); len(present) > 0 {
		return &ForbiddenFilePresentError{Names: present}
	}

	stage := outputPath + ".staging"
	if err := os.RemoveAll(stage); err != nil {
		return fmt.Errorf("clean staging dir: %w", err)
	}
	if err := os.MkdirAll(stage, 0o755); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(stage) }()

	for _, name := range m.Required {
		dst := filepath.Join(stage, filepath.FromSlash(name))
		if isDirName(name) {
			if err := os.MkdirAll(dst, 0o755); err != nil {
				return fmt.Errorf("stage %s: %w", name, err)
			}
			continue
		}
		err := copyFile(filepath.Join(sourceDir, filepath.FromSlash(name)), dst)
		if errors.Is(err, fs.ErrNotExist) {
			// reported below together with every other absence
			continue
		}
		if err != nil {
			return fmt.Errorf("stage %s: %w", name, err)
		}
	}

	if missing := absentNames(stage, m.Required); len(missing) > 0 {
		return &MissingFilesError{Names: missing}
	}
	if present := presentNames(stage, m.Forbidden); len(present) > 0 {
		return &ForbiddenFilePresentError{Names: present}
	}
	if err := checkPlaceholders(stage, m.PlaceholderCheck); err != nil {
		return err
	}

	tmp := outputPath + ".partial"
	if err := writeArchive(stage, tmp); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	// trust the archive's actual member list, not what we think we wrote
	if err := VerifyArchive(tmp, m); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, outputPath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("publish artifact: %w", err)
	}
	return nil
}

// VerifyArchive re-opens the zip at path and asserts its member list against
// the manifest: every required entry present, no forbidden entry, no strays
// beyond the required set, no duplicated names.
func VerifyArchive(path string, m Manifest) error {
	if err := m.Validate(); err != nil {
		return err
	}
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer func() { _ = zr.Close() }()

	counts := make(map[string]int, len(zr.File))
	for _, f := range zr.File {
		counts[f.Name]++
	}

	var mismatch ArtifactMismatchError
	required := make(map[string]bool, len(m.Required))
	for _, name := range m.Required {
		required[name] = true
		if counts[name] == 0 {
			mismatch.Missing = append(mismatch.Missing, name)
		}
	}
	for _, name := range m.Forbidden {
		if counts[name] > 0 {
			mismatch.Forbidden = append(mismatch.Forbidden, name)
		}
	}
	for name, n := range counts {
		if !required[name] {
			mismatch.Extra = append(mismatch.Extra, name)
		}
		if n > 1 {
			mismatch.Duplicate = append(mismatch.Duplicate, name)
		}
	}
	if mismatch.empty() {
		return nil
	}
	sort.Strings(mismatch.Missing)
	sort.Strings(mismatch.Forbidden)
	sort.Strings(mismatch.Extra)
	sort.Strings(mismatch.Duplicate)
	return &mismatch
}

// presentNames returns the manifest names that exist under dir.
func presentNames(dir string, names []string) []string {
	var present []string
	for _, name := range names {
		if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(name))); err == nil {
			present = append(present, name)
		}
	}
	return present
}

// absentNames returns the manifest names not satisfied under dir. Directory
// entries must be directories, everything else a regular file.
func absentNames(dir string, names []string) []string {
	var absent []string
	for _, name := range names {
		info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(name)))
		switch {
		case err != nil:
			absent = append(absent, name)
		case isDirName(name) != info.IsDir():
			absent = append(absent, name)
		}
	}
	return absent
}

// checkPlaceholders parses each staged env file and rejects real identity
// values: a parseable STORE_ID UUID or a full-length EDGE_TOKEN has no
// business inside a distributable bundle.
func checkPlaceholders(stage string, names []string) error {
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(stage, filepath.FromSlash(name)))
		if err != nil {
			return fmt.Errorf("inspect %s: %w", name, err)
		}
		rec := envfile.Parse(data)
		if id, ok := rec.Lookup(envfile.KeyStoreID); ok && !envfile.IsPlaceholder(id) {
			if _, err := uuid.Parse(strings.TrimSpace(id)); err == nil {
				return &SecretLeakError{Name: name, Key: envfile.KeyStoreID}
			}
		}
		if tok, ok := rec.Lookup(envfile.KeyEdgeToken); ok && !envfile.IsPlaceholder(tok) {
			if len(envfile.NormalizeToken(tok)) >= envfile.MinTokenLength {
				return &SecretLeakError{Name: name, Key: envfile.KeyEdgeToken}
			}
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// writeArchive zips the staging tree as-is. Members use forward slashes and
// directories get explicit trailing-slash entries, so verification sees the
// same names on every platform.
func writeArchive(stage, dst string) error {
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	zw := zip.NewWriter(f)
	walkErr := filepath.WalkDir(stage, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == stage {
			return nil
		}
		rel, err := filepath.Rel(stage, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if d.IsDir() {
			_, err := zw.Create(name + "/")
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		hdr.Name = name
		hdr.Method = zip.Deflate
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		in, err := os.Open(p)
		if err != nil {
			return err
		}
		_, cerr := io.Copy(w, in)
		if closeErr := in.Close(); cerr == nil {
			cerr = closeErr
		}
		return cerr
	})
	if walkErr != nil {
		_ = zw.Close()
		_ = f.Close()
		return fmt.Errorf("write archive: %w", walkErr)
	}
	if err := zw.Close(); err != nil {
		_ = f.Close()
		return fmt.Errorf("finish archive: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("flush archive: %w", err)
	}
	return nil
}
