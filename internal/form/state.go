// Package form implements the daily form lifecycle: a layered fact store and
// the state machine that drives capabilities through prepare, analyze, format
// and render.
package form

// State is the lifecycle position of a Form. States are ordered; a higher
// value means more of the pipeline has completed.
type State int

const (
	StateNew         State = 10
	StatePartialPrep State = 20
	StatePrepared    State = 30
	StateAnalyzed    State = 40
	StateFormatted   State = 50
	StateRendered    State = 60
	// StateCorrupt is a sink. It compares greater than every other state but
	// never satisfies a stage predicate.
	StateCorrupt State = 70
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StatePartialPrep:
		return "partial_prep"
	case StatePrepared:
		return "prepared"
	case StateAnalyzed:
		return "analyzed"
	case StateFormatted:
		return "formatted"
	case StateRendered:
		return "rendered"
	case StateCorrupt:
		return "corrupt"
	default:
		return "unknown"
	}
}

// IsValid reports whether s is one of the defined states.
func (s State) IsValid() bool {
	switch s {
	case StateNew, StatePartialPrep, StatePrepared, StateAnalyzed,
		StateFormatted, StateRendered, StateCorrupt:
		return true
	default:
		return false
	}
}
