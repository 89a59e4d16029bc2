// Package config resolves and validates snapkeep's settings.
//
// Values come from, in increasing precedence: built-in defaults, the config
// file, SNAPKEEP_* environment variables and command-line flags. Viper merges
// them into a [Raw] value that has not been checked in any way.
//
// # Configuration File
//
// The default location is $XDG_CONFIG_HOME/snapkeep/config.yaml; a
// config.yaml in the working directory is also picked up:
//
//	source: /srv/data
//	destination: /var/backups/data
//	method: archive        # or mirror
//	retention_days: 7
//	exclude_file: /etc/snapkeep/excludes
//	compress: true
//	mirror_engine: native  # or rsync
//
// # Validation
//
// [Validate] turns a Raw into immutable [Settings]. It reports every problem
// at once rather than stopping at the first:
//
//	settings, errs := config.Validate(*raw, config.OSEnvironment{})
//	if len(errs) > 0 {
//	    return errors.NewValidationError(errs)
//	}
//
// Each problem is a [*FieldError] naming the offending key and unwrapping to
// one of the Err* sentinels in this package.
package config
