// Package errors provides error handling conventions for the snapkeep CLI.
//
// This package defines sentinel errors for common failure conditions,
// an ExitError type for CLI exit code handling, an aggregated
// ValidationError for configuration problems, and exit code constants
// following standard Unix conventions. Construction and wrapping helpers
// forward to github.com/cockroachdb/errors.
//
// # Sentinel Errors
//
// Sentinel errors allow callers to check for specific error conditions
// using [errors.Is]:
//
//	if errors.Is(err, snaperrors.ErrInvalidConfig) {
//	    // one or more configuration problems
//	}
//
// # Exit Codes
//
//   - ExitSuccess (0): Command completed successfully
//   - ExitUser (1): User-related error (invalid input, configuration, etc.)
//   - ExitSystem (2): System-related error (snapshot failure, I/O, permissions)
//
// # ExitError
//
// [ExitError] wraps an underlying error with an exit code and optional suggestion:
//
//	err := snaperrors.NewUserError(snaperrors.ErrInvalidConfig, "Check your flags")
//	os.Exit(snaperrors.ExitCode(err))
package errors
