// Package runner drives one snapshot run through its fixed phases:
//
//	Start -> Validate -> PrepareDestination -> Produce -> Sweep -> Done
//
// Validate, PrepareDestination and Produce may end the run in Failed. The
// retention sweep only runs after a snapshot was produced, and its problems
// are reported as warnings that never change the exit status.
//
// A Runner holds no state between runs. Running two snapshots against the
// same destination at the same time is not supported; schedule runs so they
// do not overlap.
package runner
