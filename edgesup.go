// Package edgesup is the embeddable API of the deployment-and-supervision
// layer for the DALE Vision edge agent: env validation, log rotation, the
// supervision loop and release packaging. The edgesup binary under
// cmd/edgesup is a thin CLI over this surface.
package edgesup

import (
	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/dalevision/edgesup/internal/config"
	"github.com/dalevision/edgesup/internal/envfile"
	"github.com/dalevision/edgesup/internal/history"
	"github.com/dalevision/edgesup/internal/history/sqlite"
	"github.com/dalevision/edgesup/internal/logrot"
	"github.com/dalevision/edgesup/internal/metrics"
	"github.com/dalevision/edgesup/internal/release"
	"github.com/dalevision/edgesup/internal/supervisor"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Record = envfile.Record

type Settings = cfg.Settings

type Supervisor = supervisor.Supervisor

type SupervisorConfig = supervisor.Config

type Mode = supervisor.Mode

type Status = supervisor.Status

type State = supervisor.State

type Manifest = release.Manifest

type Variant = release.Variant

type HistoryEvent = history.Event

type HistorySink = history.Sink

type SQLiteHistory = sqlite.Sink

const (
	ModeContinuous = supervisor.ModeContinuous
	ModeOnce       = supervisor.ModeOnce

	VariantTemplate    = release.VariantTemplate
	VariantPlaceholder = release.VariantPlaceholder
)

// Error types surfaced to embedders for exit-code mapping.

var ErrEnvNotFound = envfile.ErrNotFound

type InvalidFieldError = envfile.InvalidFieldError

type MalformedIdentifierError = envfile.MalformedIdentifierError

type LaunchError = supervisor.LaunchError

// ValidateEnv reads and validates the agent's .env file, returning the
// normalized record. One masked diagnostic line is logged per required key.
func ValidateEnv(path string) (*Record, error) { return envfile.Validate(path) }

// RotateIfNeeded archives path and truncates it in place once it reaches
// maxBytes, keeping at most maxArchives archives. Missing files are a no-op.
func RotateIfNeeded(path string, maxBytes int64, maxArchives int) (bool, error) {
	return logrot.RotateIfNeeded(path, maxBytes, maxArchives)
}

// NewSupervisor creates a supervisor for one agent binary.
func NewSupervisor(c SupervisorConfig) *Supervisor { return supervisor.New(c) }

// LoadSettings parses an edgesup.toml file.
func LoadSettings(path string) (Settings, error) { return cfg.Load(path) }

// LoadSettingsOrDefault behaves like LoadSettings but substitutes the
// built-in defaults when the file does not exist.
func LoadSettingsOrDefault(path string) (Settings, error) { return cfg.LoadOrDefault(path) }

// DefaultManifest returns the bundle manifest for a variant.
func DefaultManifest(v Variant) (Manifest, error) { return release.DefaultManifest(v) }

// BuildArtifact packages sourceDir into a verified zip at outputPath.
func BuildArtifact(sourceDir string, m Manifest, outputPath string) error {
	return release.BuildArtifact(sourceDir, m, outputPath)
}

// VerifyArchive re-checks an existing zip against the manifest.
func VerifyArchive(path string, m Manifest) error { return release.VerifyArchive(path, m) }

// NewSQLiteHistory opens (or creates) a local history database.
func NewSQLiteHistory(dsn string) (*SQLiteHistory, error) { return sqlite.New(dsn) }

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
