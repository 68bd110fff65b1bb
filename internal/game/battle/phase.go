// Package battle defines the partitioned battle record (meta, public state,
// per-player private state, turn records), its validation errors, the
// public projection of private rosters, and the typed repository that maps
// the record onto storage keys.
package battle

// Phase is the stage of a battle's turn cycle.
type Phase string

const (
	PhaseChoosing    Phase = "choosing"
	PhaseResolving   Phase = "resolving"
	PhaseReplacement Phase = "replacement"
	PhaseEnded       Phase = "ended"
)

// EndedReason records why a battle reached PhaseEnded.
type EndedReason string

const (
	EndedKnockout EndedReason = "knockout"
	EndedDoubleKO EndedReason = "doubleKO"
	EndedTimeout  EndedReason = "timeout"
)

// transitions lists the legal phase moves. Replacement completion goes
// through resolving like a normal turn.
var transitions = map[Phase][]Phase{
	PhaseChoosing:    {PhaseResolving, PhaseEnded},
	PhaseReplacement: {PhaseResolving, PhaseEnded},
	PhaseResolving:   {PhaseChoosing, PhaseReplacement, PhaseEnded},
}

// CanTransition reports whether from -> to is a legal phase change.
// choosing/replacement -> ended is only taken by the timeout sweeper.
func CanTransition(from, to Phase) bool {
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}
