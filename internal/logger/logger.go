// Package logger sets up the supervisor's own structured logging: an
// ANSI-colored console handler plus a size-rotated file sink under the
// log directory. The supervised agent's capture file is opened here too,
// but as a plain append handle: its rotation is copy-truncate (logrot),
// never lumberjack's rename, so the handle survives rotation.
package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Defaults for the supervisor's own log file rotation (lumberjack semantics).
const (
	DefaultMaxSizeMB  = 5
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 30
)

// FileName is the supervisor's own log file under Config.Dir.
const FileName = "edgesup.log"

// Config describes where and how the supervisor writes its own log.
type Config struct {
	Dir        string // base directory for logs; empty disables the file sink
	Level      string // debug|info|warn|error (default info)
	Color      bool   // ANSI colors on the console handler
	MaxSizeMB  int    // megabytes before rotation (default 5)
	MaxBackups int    // rotated files to keep (default 3)
	MaxAgeDays int    // days to keep rotated files (default 30)
	Compress   bool   // gzip rotated files
}

// Setup builds the supervisor logger writing to console and, when Dir is
// set, to a rotated Dir/edgesup.log. The returned closer owns the file
// sink; Close it on shutdown.
func (c Config) Setup(console io.Writer) (*slog.Logger, io.Closer) {
	level := c.slogLevel()
	handlers := make([]slog.Handler, 0, 2)
	if console != nil {
		opts := &slog.HandlerOptions{Level: level}
		if c.Color {
			handlers = append(handlers, NewColorTextHandler(console, opts, false))
		} else {
			handlers = append(handlers, slog.NewTextHandler(console, opts))
		}
	}
	var closer io.Closer = nopCloser{}
	if c.Dir != "" {
		_ = os.MkdirAll(c.Dir, 0o750)
		sink := &lj.Logger{
			Filename:   filepath.Join(c.Dir, FileName),
			MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
			MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
			MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
			Compress:   c.Compress,
		}
		handlers = append(handlers, slog.NewTextHandler(sink, &slog.HandlerOptions{Level: level}))
		closer = sink
	}
	switch len(handlers) {
	case 0:
		return slog.New(slog.NewTextHandler(io.Discard, nil)), closer
	case 1:
		return slog.New(handlers[0]), closer
	default:
		return slog.New(multiHandler(handlers)), closer
	}
}

// CaptureWriter opens the append-only file that receives the supervised
// process's raw stdout and stderr, Dir/<name>.out.log. The caller rotates
// it with logrot before each launch; the handle stays valid because
// rotation truncates in place.
func (c Config) CaptureWriter(name string) (io.WriteCloser, error) {
	dir := c.Dir
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, name+".out.log")
	// #nosec G302 G304 -- log file under the configured log dir
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// CapturePath returns the path CaptureWriter writes to.
func (c Config) CapturePath(name string) string {
	dir := c.Dir
	if dir == "" {
		dir = "logs"
	}
	return filepath.Join(dir, name+".out.log")
}

func (c Config) slogLevel() slog.Level {
	switch c.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
