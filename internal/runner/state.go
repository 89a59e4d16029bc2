package runner

// State is a phase of a run.
type State string

const (
	StateStart              State = "start"
	StateValidate           State = "validate"
	StatePrepareDestination State = "prepare_destination"
	StateProduce            State = "produce"
	StateSweep              State = "sweep"
	StateDone               State = "done"
	StateFailed             State = "failed"
)

func (s State) String() string { return string(s) }

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}
