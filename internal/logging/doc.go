// Package logging provides structured logging for the snapkeep CLI using slog.
//
// Every phase of a backup run and every action a producer or the retention
// sweeper takes is reported through a *slog.Logger. Console output uses a
// compact, optionally colored text handler (or JSON); a persistent log file
// always receives JSON lines so scheduled runs leave an audit trail.
//
// # Basic Usage
//
//	logger, closer, err := logging.Open(logging.Config{
//		Level:  logging.LevelFromVerbosity(verbosity),
//		Format: logging.FormatText,
//		File:   "/var/log/snapkeep.jsonl",
//	})
//	defer closer.Close()
//	logger.Info("snapshot created", "path", path)
//
// # Context
//
// Commands store the logger on their context with [NewContext]; library
// code retrieves it with [FromContext].
//
// # Testing
//
// For tests, use [ForTest] to capture log output via the testing framework.
package logging
