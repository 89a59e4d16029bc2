package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/thoreinstein/snapkeep/internal/config"
	"github.com/thoreinstein/snapkeep/internal/doctor"
	"github.com/thoreinstein/snapkeep/internal/errors"
	"github.com/thoreinstein/snapkeep/internal/logging"
)

var (
	doctorJSON bool
	doctorAll  bool
	doctorFix  bool
)

var doctorBindings = map[string]string{
	config.KeySource:       "source",
	config.KeyDestination:  "destination",
	config.KeyExcludeFile:  "exclude-file",
	config.KeyMethod:       "method",
	config.KeyMirrorEngine: "mirror-engine",
}

func init() {
	f := doctorCmd.Flags()
	f.StringP("source", "s", "", "source directory to check")
	f.StringP("destination", "d", "", "destination directory to check")
	f.StringP("exclude-file", "e", "", "exclude file to check")
	f.StringP("method", "m", "", "snapshot method to check for")
	f.String("mirror-engine", "", "mirror engine to check for")
	f.BoolVar(&doctorJSON, "json", false, "output results as JSON")
	f.BoolVar(&doctorAll, "all", false, "show passed checks too")
	f.BoolVar(&doctorFix, "fix", false, "create a missing destination and tighten config permissions")
	rootCmd.AddCommand(doctorCmd)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose configuration issues",
	Long: `Run diagnostic checks on the snapkeep configuration before a backup
depends on it.

Checks that the config file parses, the source is a readable directory, the
destination is (or can be created as) a writable directory, the exclude
file is valid, and the mirror engine is installed.

Exit codes:
  0 - All checks passed (no errors or warnings)
  1 - Warnings present, no errors
  2 - Errors present`,
	Example: `  snapkeep doctor
  snapkeep doctor --json
  snapkeep doctor --fix

  See Also: snapkeep config show`,
	Args:    cobra.NoArgs,
	PreRunE: validateDoctorFlags,
	RunE:    runDoctor,
}

// validateDoctorFlags ensures output flags are mutually exclusive.
func validateDoctorFlags(_ *cobra.Command, _ []string) error {
	if doctorJSON && doctorAll {
		return errors.NewUserError(errors.New("flags --json and --all are mutually exclusive"),
			"JSON output always includes every check")
	}
	return nil
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	log := logging.FromContext(cmd.Context())

	if err := bindFlags(cmd, doctorBindings); err != nil {
		return err
	}
	raw, err := config.Load(configFile)
	if err != nil {
		// the config-file check reports the details
		log.Debug("config did not load, diagnosing defaults", "error", err)
		d := config.Default()
		raw = &d
	}

	t := doctor.TargetFromRaw(*raw, config.Used())
	return runDoctorWithWriter(doctor.DefaultChecks(t, config.OSEnvironment{}), cmd.OutOrStdout(), log)
}

// runDoctorWithWriter allows injecting checks and a writer for testing.
func runDoctorWithWriter(checks []doctor.Check, w io.Writer, log *slog.Logger) error {
	runner := doctor.NewRunner()
	for _, c := range checks {
		runner.AddCheck(c)
	}

	report := runner.Run()

	if doctorFix {
		if applyFixes(runner, w, log) > 0 {
			report = runner.Run()
		}
	}

	if err := outputDoctorReport(w, report); err != nil {
		return err
	}

	if report.HasErrors() {
		return errors.NewExitError(errDoctorErrors, errors.ExitSystem)
	}
	if report.HasWarnings() {
		return errors.NewExitError(errDoctorWarnings, errors.ExitUser)
	}
	return nil
}

// applyFixes runs every fixable check's Fix and returns how many fixes
// were attempted.
func applyFixes(r *doctor.Runner, w io.Writer, log *slog.Logger) int {
	attempted := 0
	for _, c := range r.Checks() {
		f, ok := c.(doctor.Fixer)
		if !ok || !f.CanFix() {
			continue
		}
		for _, res := range f.Fix() {
			attempted++
			if res.Error != nil {
				log.Warn("fix failed", "check", c.Name(), "path", res.Path, "error", res.Error)
				if !doctorJSON {
					fmt.Fprintf(w, "✗ fix failed: %s: %v\n", res.Description, res.Error)
				}
				continue
			}
			log.Info("fixed", "check", c.Name(), "path", res.Path)
			if !doctorJSON {
				fmt.Fprintf(w, "✓ fixed: %s\n", res.Description)
			}
		}
	}
	return attempted
}

func outputDoctorReport(w io.Writer, report *doctor.Report) error {
	if doctorJSON {
		return outputDoctorJSON(w, report)
	}
	return outputDoctorText(w, report)
}

func outputDoctorJSON(w io.Writer, report *doctor.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return errors.Wrap(err, "encoding JSON")
	}
	return nil
}

func outputDoctorText(w io.Writer, report *doctor.Report) error {
	hasOutput := false
	for _, result := range report.Results {
		problem := result.Status == doctor.SeverityError || result.Status == doctor.SeverityWarning
		if !doctorAll && !problem {
			continue
		}

		hasOutput = true
		fmt.Fprintf(w, "%s [%s] %s: %s\n", statusIcon(result.Status), result.Category, result.Name, result.Message)

		if result.FixHint != "" && problem {
			fmt.Fprintf(w, "  hint: %s\n", result.FixHint)
		}
	}

	if hasOutput {
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Summary: %d passed, %d info, %d warnings, %d errors\n",
		report.Summary.Passed, report.Summary.Info, report.Summary.Warnings, report.Summary.Errors)

	return nil
}

func statusIcon(s doctor.Severity) string {
	switch s {
	case doctor.SeverityPass:
		return "✓"
	case doctor.SeverityInfo:
		return "ℹ"
	case doctor.SeverityWarning:
		return "⚠"
	case doctor.SeverityError:
		return "✗"
	default:
		return "?"
	}
}

// errDoctorWarnings is a sentinel error for exit code 1.
var errDoctorWarnings = errors.New("doctor found warnings")

// errDoctorErrors is a sentinel error for exit code 2.
var errDoctorErrors = errors.New("doctor found errors")
