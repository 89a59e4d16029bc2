package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/thoreinstein/snapkeep/internal/config"
	"github.com/thoreinstein/snapkeep/internal/errors"
	"github.com/thoreinstein/snapkeep/internal/paths"
	"github.com/thoreinstein/snapkeep/pkg/fileutil"
)

// configFilePerm matches what doctor --fix sets on a config file.
const configFilePerm os.FileMode = 0o644

var (
	configShowFormat string
	configInitForce  bool
	configInitSource string
	configInitDest   string
	configInitFormat string
)

var configFormatNames = func() string {
	names := make([]string, 0, len(fileutil.Formats()))
	for _, f := range fileutil.Formats() {
		names = append(names, string(f))
	}
	return strings.Join(names, ", ")
}()

func init() {
	configShowCmd.Flags().StringVar(&configShowFormat, "format", "yaml",
		"output format: "+configFormatNames)

	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing file")
	configInitCmd.Flags().StringVar(&configInitSource, "source", "", "source directory to write into the file")
	configInitCmd.Flags().StringVar(&configInitDest, "destination", "", "destination directory to write into the file")
	configInitCmd.Flags().StringVar(&configInitFormat, "format", "",
		"file format: "+configFormatNames+" (default: from the file extension)")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and create snapkeep configuration",
	Long: `Inspect the effective configuration or write a starter config file.

Without a subcommand, shows the effective configuration.`,
	Example: `  snapkeep config
  snapkeep config show --format toml
  snapkeep config init --source ~/docs --destination /backups

See Also: snapkeep doctor`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show the configuration snapkeep would use, after merging defaults, the
config file and SNAPKEEP_* environment variables.`,
	Example: `  snapkeep config show
  SNAPKEEP_METHOD=mirror snapkeep config show --format json`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a starter config file",
	Long: `Write a config file holding the default settings.

The file goes to $XDG_CONFIG_HOME/snapkeep/config.yaml unless a path is
given. An existing file is left alone unless --force is passed. The write is
atomic, so an interrupted init never leaves a truncated file.`,
	Example: `  snapkeep config init
  snapkeep config init ./snapkeep.toml --source ~/docs --destination /backups`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigInit,
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	raw, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	return runConfigShowWithWriter(*raw, configShowFormat, cmd.OutOrStdout())
}

// runConfigShowWithWriter allows injecting a writer for testing.
func runConfigShowWithWriter(raw config.Raw, format string, w io.Writer) error {
	f, err := fileutil.ParseFormat(format)
	if err != nil {
		return errors.NewUserError(err, "Use --format "+configFormatNames)
	}
	data, err := fileutil.Marshal(f, raw)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return errors.Wrap(err, "writing config")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := paths.ConfigFile()
	if len(args) == 1 {
		path = args[0]
	}
	return runConfigInitWithWriter(path, cmd.OutOrStdout())
}

// runConfigInitWithWriter allows injecting a writer for testing.
func runConfigInitWithWriter(path string, w io.Writer) error {
	path, err := paths.Absolute(path)
	if err != nil {
		return errors.NewUserError(err, "Check the config path")
	}

	if _, err := os.Stat(path); err == nil && !configInitForce {
		return errors.NewUserError(errors.Newf("%s already exists", path),
			"Pass --force to overwrite it")
	}

	format := fileutil.FormatFromPath(path)
	if configInitFormat != "" {
		if format, err = fileutil.ParseFormat(configInitFormat); err != nil {
			return errors.NewUserError(err, "Use --format "+configFormatNames)
		}
	}

	raw := config.Default()
	raw.Source = configInitSource
	raw.Destination = configInitDest

	if err := paths.EnsureDir(filepath.Dir(path), paths.DefaultDirPerm); err != nil {
		return errors.NewSystemError(err, "Check permissions on the config directory")
	}
	if err := fileutil.AtomicWrite(path, format, raw, configFilePerm); err != nil {
		return errors.NewSystemError(errors.Wrapf(err, "writing %s", path), "")
	}

	fmt.Fprintf(w, "Wrote %s\n", path)
	if raw.Source == "" || raw.Destination == "" {
		fmt.Fprintln(w, "Set source and destination in it before running snapkeep.")
	}
	fmt.Fprintf(w, "To keep a log of scheduled runs, add --log-file %s\n", paths.DefaultLogFile())
	return nil
}
