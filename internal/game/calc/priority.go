package calc

// Switches run in a fixed bracket above every ordinary move priority.
// A switch-punishing move aimed at a switching foe runs just ahead of it.
const (
	SwitchPriority  = 12
	PursuitPriority = 13
)

// PriorityBoost is the priority an ability adds to qualifying moves.
type PriorityBoost struct {
	Status       int `yaml:"status"`
	FullHPFlying int `yaml:"full_hp_flying"`
	Drain        int `yaml:"drain"`
}

// PriorityInput describes one queued action for priority purposes.
type PriorityInput struct {
	Switch     bool
	Base       int
	StatusMove bool
	MoveType   string
	Drain      bool
	FullHP     bool
	Boost      PriorityBoost
}

// Priority returns the bracket an action sorts in before speed.
func Priority(in PriorityInput) int {
	if in.Switch {
		return SwitchPriority
	}
	p := in.Base
	if in.StatusMove {
		p += in.Boost.Status
	}
	if in.MoveType == Flying && in.FullHP {
		p += in.Boost.FullHPFlying
	}
	if in.Drain {
		p += in.Boost.Drain
	}
	return p
}

// InterceptPriority lifts a switch-punishing move above the switch it targets.
func InterceptPriority(p int) int {
	return max(p, PursuitPriority)
}
