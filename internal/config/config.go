// Package config provides configuration management for snapkeep using Viper.
package config

import (
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"

	"github.com/thoreinstein/snapkeep/internal/paths"
)

// EnvPrefix is prepended to every environment variable, e.g. SNAPKEEP_SOURCE.
const EnvPrefix = "SNAPKEEP"

// Configuration keys shared by viper, flags, the config file and the
// environment.
const (
	KeySource        = "source"
	KeyDestination   = "destination"
	KeyMethod        = "method"
	KeyRetentionDays = "retention_days"
	KeyExcludeFile   = "exclude_file"
	KeyCompress      = "compress"
	KeyDryRun        = "dry_run"
	KeyMirrorEngine  = "mirror_engine"
	KeyMetricsFile   = "metrics_file"
	KeySchedule      = "schedule"
)

// Mirror engine names.
const (
	EngineNative = "native"
	EngineRsync  = "rsync"
)

// Defaults.
const (
	DefaultMethod        = "archive"
	DefaultRetentionDays = 7
	DefaultMirrorEngine  = EngineNative
)

// Raw holds user-supplied fields exactly as resolved from flags, environment
// and config file. Nothing in Raw has been checked; see Validate.
type Raw struct {
	Source        string `mapstructure:"source" yaml:"source" toml:"source" json:"source"`
	Destination   string `mapstructure:"destination" yaml:"destination" toml:"destination" json:"destination"`
	Method        string `mapstructure:"method" yaml:"method" toml:"method" json:"method"`
	RetentionDays string `mapstructure:"retention_days" yaml:"retention_days" toml:"retention_days" json:"retention_days"`
	ExcludeFile   string `mapstructure:"exclude_file" yaml:"exclude_file,omitempty" toml:"exclude_file,omitempty" json:"exclude_file,omitempty"`
	Compress      bool   `mapstructure:"compress" yaml:"compress" toml:"compress" json:"compress"`
	DryRun        bool   `mapstructure:"dry_run" yaml:"dry_run" toml:"dry_run" json:"dry_run"`
	MirrorEngine  string `mapstructure:"mirror_engine" yaml:"mirror_engine" toml:"mirror_engine" json:"mirror_engine"`
	MetricsFile   string `mapstructure:"metrics_file" yaml:"metrics_file,omitempty" toml:"metrics_file,omitempty" json:"metrics_file,omitempty"`
	Schedule      string `mapstructure:"schedule" yaml:"schedule,omitempty" toml:"schedule,omitempty" json:"schedule,omitempty"`
}

// Default returns the values used when nothing else is supplied.
func Default() Raw {
	return Raw{
		Method:        DefaultMethod,
		RetentionDays: strconv.Itoa(DefaultRetentionDays),
		Compress:      true,
		MirrorEngine:  DefaultMirrorEngine,
	}
}

// Init initializes the global Viper instance with search paths, environment
// binding and defaults. Call this once at application startup.
func Init() {
	Configure(viper.GetViper())
}

// Configure applies snapkeep's settings to v.
func Configure(v *viper.Viper) {
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	v.AddConfigPath(paths.ConfigDir())

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	d := Default()
	v.SetDefault(KeySource, d.Source)
	v.SetDefault(KeyDestination, d.Destination)
	v.SetDefault(KeyMethod, d.Method)
	v.SetDefault(KeyRetentionDays, d.RetentionDays)
	v.SetDefault(KeyExcludeFile, d.ExcludeFile)
	v.SetDefault(KeyCompress, d.Compress)
	v.SetDefault(KeyDryRun, d.DryRun)
	v.SetDefault(KeyMirrorEngine, d.MirrorEngine)
	v.SetDefault(KeyMetricsFile, d.MetricsFile)
	v.SetDefault(KeySchedule, d.Schedule)
}

// Load reads the configuration through the global Viper instance.
func Load(path string) (*Raw, error) {
	return LoadFrom(viper.GetViper(), path)
}

// LoadFrom reads the configuration file into v and unmarshals the merged
// result. If path is empty the search paths are used and a missing file is
// not an error; an explicit path that does not exist is.
func LoadFrom(v *viper.Viper, path string) (*Raw, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, errors.Wrapf(err, "config file not found at %s", path)
		}
		v.SetConfigFile(path)
		if ext := strings.TrimPrefix(filepath.Ext(path), "."); slices.Contains(viper.SupportedExts, ext) {
			v.SetConfigType(ext)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "reading config file")
		}
		// implicit search found nothing; defaults apply
	}

	var raw Raw
	if err := v.Unmarshal(&raw); err != nil {
		return nil, errors.Wrap(err, "unmarshaling config")
	}

	return &raw, nil
}

// Used returns the config file viper read, or "" when none was found.
func Used() string {
	return viper.ConfigFileUsed()
}
