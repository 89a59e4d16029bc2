package snapshot

import "time"

// RunContext is created once when a run starts and handed to every stage.
// All stages see the same identifier and the same notion of "now".
type RunContext struct {
	// ID is the snapshot identifier, possibly disambiguated by Reserve.
	ID string

	// Now is the run start time. The sweeper's cutoff derives from it.
	Now time.Time

	// DryRun forbids filesystem mutation in every stage.
	DryRun bool
}

// NewRunContext builds the context for a run starting at now.
func NewRunContext(now time.Time, dryRun bool) *RunContext {
	return &RunContext{
		ID:     NewID(now),
		Now:    now,
		DryRun: dryRun,
	}
}

// WithID returns a copy carrying a different identifier.
func (rc *RunContext) WithID(id string) *RunContext {
	c := *rc
	c.ID = id
	return &c
}
