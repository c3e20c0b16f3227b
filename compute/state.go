package compute

// State is the evaluation progress of one key.
type State int32

const (
	// StateUnstarted means nobody requested the key yet.
	StateUnstarted State = iota
	// StateAwaitingPreliminaryDeps means the preliminary dependencies are
	// being discovered or resolved.
	StateAwaitingPreliminaryDeps
	// StateAwaitingDiscoveredDeps means DiscoverDeps is being re-queried and
	// its keys resolved.
	StateAwaitingDiscoveredDeps
	// StateEvaluating means Transform is running.
	StateEvaluating
	// StateFinalized means the result (value or error) is recorded.
	StateFinalized
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateAwaitingPreliminaryDeps:
		return "awaiting-preliminary-deps"
	case StateAwaitingDiscoveredDeps:
		return "awaiting-discovered-deps"
	case StateEvaluating:
		return "evaluating"
	case StateFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}
