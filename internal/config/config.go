package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultEnvFile         = ".env"
	DefaultAgent           = "./dalevision-edge-agent"
	DefaultLogDir          = "logs"
	DefaultMaxSizeMB       = 5
	DefaultMaxArchives     = 10
	DefaultRestartInterval = 3 * time.Second
	DefaultHistoryDSN      = "sqlite://logs/edgesup-history.db"
)

// Settings represents the top-level TOML structure of edgesup.toml.
type Settings struct {
	EnvFile         string        `toml:"env_file" mapstructure:"env_file"`
	Agent           string        `toml:"agent" mapstructure:"agent"`
	WorkDir         string        `toml:"work_dir" mapstructure:"work_dir"`
	Args            []string      `toml:"args" mapstructure:"args"`
	RestartInterval time.Duration `toml:"restart_interval" mapstructure:"restart_interval"`
	Log             LogConfig     `toml:"log" mapstructure:"log"`
	History         HistoryConfig `toml:"history" mapstructure:"history"`
	Metrics         MetricsConfig `toml:"metrics" mapstructure:"metrics"`
}

type LogConfig struct {
	Dir         string `toml:"dir" mapstructure:"dir"`
	MaxSizeMB   int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxArchives int    `toml:"max_archives" mapstructure:"max_archives"`
}

// MaxBytes is the rotation threshold derived from MaxSizeMB.
func (l LogConfig) MaxBytes() int64 { return int64(l.MaxSizeMB) << 20 }

type HistoryConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	DSN     string `toml:"dsn" mapstructure:"dsn"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
}

// Default returns the settings used when no config file is present.
// Relative paths in the default set resolve against the working directory.
func Default() Settings {
	return Settings{
		EnvFile:         DefaultEnvFile,
		Agent:           DefaultAgent,
		RestartInterval: DefaultRestartInterval,
		Log:             LogConfig{Dir: DefaultLogDir, MaxSizeMB: DefaultMaxSizeMB, MaxArchives: DefaultMaxArchives},
		History:         HistoryConfig{Enabled: true, DSN: DefaultHistoryDSN},
	}
}

// Load parses a TOML settings file. Missing keys fall back to the defaults,
// and relative paths are resolved against the file's directory so the
// supervisor behaves the same regardless of where it was launched from.
func Load(path string) (Settings, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	setDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		return Settings{}, err
	}
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, err
	}
	if err := s.validate(); err != nil {
		return Settings{}, err
	}
	base := filepath.Dir(path)
	if abs, err := filepath.Abs(base); err == nil {
		base = abs
	}
	s.resolve(base)
	return s, nil
}

// LoadOrDefault behaves like Load but substitutes Default when path does not
// exist. Used for the implicit ./edgesup.toml lookup.
func LoadOrDefault(path string) (Settings, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Settings{}, err
	}
	return Load(path)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env_file", DefaultEnvFile)
	v.SetDefault("agent", DefaultAgent)
	v.SetDefault("restart_interval", DefaultRestartInterval)
	v.SetDefault("log.dir", DefaultLogDir)
	v.SetDefault("log.max_size_mb", DefaultMaxSizeMB)
	v.SetDefault("log.max_archives", DefaultMaxArchives)
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.dsn", DefaultHistoryDSN)
}

func (s Settings) validate() error {
	if s.Agent == "" {
		return fmt.Errorf("agent must not be empty")
	}
	if s.RestartInterval < 0 {
		return fmt.Errorf("restart_interval must not be negative: %s", s.RestartInterval)
	}
	if s.Log.MaxSizeMB <= 0 {
		return fmt.Errorf("log.max_size_mb must be positive: %d", s.Log.MaxSizeMB)
	}
	if s.Log.MaxArchives < 0 {
		return fmt.Errorf("log.max_archives must not be negative: %d", s.Log.MaxArchives)
	}
	return nil
}

// resolve anchors relative paths at base. A bare agent name without a path
// separator is left alone so PATH lookup still applies.
func (s *Settings) resolve(base string) {
	s.EnvFile = resolvePath(base, s.EnvFile)
	s.WorkDir = resolvePath(base, s.WorkDir)
	s.Log.Dir = resolvePath(base, s.Log.Dir)
	if strings.ContainsAny(s.Agent, `/\`) {
		s.Agent = resolvePath(base, s.Agent)
	}
	s.History.DSN = resolveDSN(base, s.History.DSN)
}

func resolvePath(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

func resolveDSN(base, dsn string) string {
	const prefix = "sqlite://"
	rest, ok := strings.CutPrefix(dsn, prefix)
	if !ok || rest == ":memory:" || filepath.IsAbs(rest) {
		return dsn
	}
	return prefix + filepath.Join(base, rest)
}
