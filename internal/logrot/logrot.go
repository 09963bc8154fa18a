// Package logrot bounds append-only log files. An oversized segment is
// copied to a timestamped archive and the active file is truncated in
// place, so a process that keeps the file descriptor open never loses it.
package logrot

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	// DefaultMaxBytes is the segment ceiling before rotation.
	DefaultMaxBytes = 5 * 1024 * 1024
	// DefaultMaxArchives is how many rotated segments are kept per base name.
	DefaultMaxArchives = 10

	stampLayout = "20060102-150405"
	logExt      = ".log"
)

// RotateIfNeeded rotates the segment at path when its size exceeds maxBytes:
// the current content is copied to <base>.<timestamp>.log next to it and the
// active file is truncated to zero length. Afterwards archives beyond
// maxArchives are deleted, oldest by modification time first. Two rotations
// within the same second reuse the same archive name; the later one wins.
// It reports whether a rotation happened.
func RotateIfNeeded(path string, maxBytes int64, maxArchives int) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat segment %s: %w", path, err)
	}
	if info.Size() <= maxBytes {
		return false, nil
	}

	archive := archivePath(path, time.Now())
	if err := copyFile(path, archive); err != nil {
		return false, err
	}
	if err := os.Truncate(path, 0); err != nil {
		return false, fmt.Errorf("truncate segment %s: %w", path, err)
	}
	prune(path, maxArchives)
	return true, nil
}

// archivePath builds the archive name for the active segment at path.
// "edge-agent.log" rotates to "edge-agent.20060102-150405.log".
func archivePath(path string, now time.Time) string {
	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), logExt)
	return filepath.Join(dir, base+"."+now.Format(stampLayout)+logExt)
}

// isArchiveOf reports whether name is an archive of the segment named
// active, i.e. <base>.<stamp>.log with a parseable stamp. The active
// file itself never matches.
func isArchiveOf(active, name string) bool {
	base := strings.TrimSuffix(active, logExt)
	rest, ok := strings.CutPrefix(name, base+".")
	if !ok {
		return false
	}
	stamp, ok := strings.CutSuffix(rest, logExt)
	if !ok {
		return false
	}
	_, err := time.Parse(stampLayout, stamp)
	return err == nil
}

// prune deletes the oldest archives of the segment at path until at most
// max remain. Removal is best effort; a segment that cannot be deleted
// now will be retried on the next rotation.
func prune(path string, max int) {
	dir := filepath.Dir(path)
	active := filepath.Base(path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	type archive struct {
		name string
		mod  time.Time
	}
	var archives []archive
	for _, e := range entries {
		if e.IsDir() || !isArchiveOf(active, e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		archives = append(archives, archive{name: e.Name(), mod: info.ModTime()})
	}
	if len(archives) <= max {
		return
	}
	sort.Slice(archives, func(i, j int) bool { return archives[i].mod.Before(archives[j].mod) })
	for _, a := range archives[:len(archives)-max] {
		_ = os.Remove(filepath.Join(dir, a.name))
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open segment %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create archive %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("archive %s: %w", dst, err)
	}
	return out.Close()
}
