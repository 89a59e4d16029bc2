// Package commands implements the CLI commands for snapkeep.
package commands

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	buildinfo "github.com/thoreinstein/snapkeep/cmd"
	"github.com/thoreinstein/snapkeep/internal/config"
	"github.com/thoreinstein/snapkeep/internal/errors"
	"github.com/thoreinstein/snapkeep/internal/logging"
)

// configFile holds the value of the --config flag.
var configFile string

// verbosity holds the count of -v flags.
var verbosity int

// quiet holds the value of the -q/--quiet flag.
var quiet bool

// logFormat holds the value of the --log-format flag.
var logFormat string

// logFile holds the path to the log file.
var logFile string

// logCloser releases the --log-file handle once the command finishes.
var logCloser io.Closer

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"config file (default: ./config.yaml, then $XDG_CONFIG_HOME/snapkeep/config.yaml)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v",
		"increase verbosity level (e.g., -v, -vv)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false,
		"suppress non-error output")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text",
		"log format: text, json")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "",
		"append logs to file in JSON format")

	rootCmd.Version = buildinfo.Version
	rootCmd.SetVersionTemplate("snapkeep version {{.Version}}\n")

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
}

func initConfig() {
	config.Init()
}

var rootCmd = &cobra.Command{
	Use:   "snapkeep",
	Short: "Timestamped directory snapshots with age-based retention",
	Long: `snapkeep takes a point-in-time copy of a source directory into a
destination directory, either as a tar archive or as a mirror directory,
and then removes snapshots older than the retention period.

Every snapshot is named backup_YYYYMMDD_HHMMSS. Entries in the destination
without the backup_ prefix are never touched.

Settings come from flags, SNAPKEEP_* environment variables and a YAML config
file, in that order of precedence.`,
	Example: `  # Archive ~/docs into /backups, keeping a week of snapshots
  snapkeep run -s ~/docs -d /backups

  # Mirror instead of archiving, previewing what would change
  snapkeep run -s ~/docs -d /backups -m mirror --dry-run

  # Check the configuration
  snapkeep doctor

  See Also: snapkeep config init, snapkeep schedule`,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return setupLogging(cmd)
	},
	PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
		return closeLogFile()
	},
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

// setupLogging configures the default logger based on verbosity flags.
func setupLogging(cmd *cobra.Command) error {
	if quiet && verbosity > 0 {
		return errors.NewUserError(errors.New("--quiet and --verbose are mutually exclusive"),
			"Use one of -q or -v")
	}

	var level slog.Level
	if quiet {
		level = slog.LevelError
	} else {
		v := verbosity

		// CLI flags take precedence, but if not set, check env var
		if v == 0 {
			if val, ok := os.LookupEnv("SNAPKEEP_DEBUG"); ok {
				switch val {
				case "1", "true":
					v = 1
				case "2":
					v = 2
				}
			}
		}
		level = logging.LevelFromVerbosity(v)
	}

	format := logging.Format(logFormat)
	if format != logging.FormatText && format != logging.FormatJSON {
		return errors.NewUserError(errors.Newf("unknown log format %q", logFormat),
			"Use --log-format text or --log-format json")
	}

	logger, closer, err := logging.Open(logging.Config{
		Level:  level,
		Format: format,
		Output: cmd.ErrOrStderr(),
		File:   logFile,
	})
	if err != nil {
		return errors.NewUserError(err, "Check that the --log-file directory exists and is writable")
	}
	logCloser = closer

	slog.SetDefault(logger)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(logging.NewContext(ctx, logger))

	return nil
}

func closeLogFile() error {
	if logCloser == nil {
		return nil
	}
	err := logCloser.Close()
	logCloser = nil
	return errors.Wrap(err, "closing log file")
}

// bindFlags points viper keys at the flags of the command being executed.
// Binding happens at run time so commands sharing a key do not overwrite
// each other's bindings.
func bindFlags(cmd *cobra.Command, keys map[string]string) error {
	for key, name := range keys {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			return errors.Newf("flag --%s not defined on %s", name, cmd.Name())
		}
		if err := viper.BindPFlag(key, f); err != nil {
			return errors.Wrapf(err, "binding --%s", name)
		}
	}
	return nil
}

// loadConfig binds keys to cmd's flags and resolves the merged configuration.
func loadConfig(cmd *cobra.Command, keys map[string]string) (*config.Raw, error) {
	if err := bindFlags(cmd, keys); err != nil {
		return nil, err
	}
	raw, err := config.Load(configFile)
	if err != nil {
		return nil, errors.NewConfigError(err)
	}
	return raw, nil
}

// Execute runs the root command.
func Execute() error {
	defer func() { _ = closeLogFile() }()
	return rootCmd.Execute()
}
