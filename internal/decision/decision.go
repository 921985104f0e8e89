// Package decision is the failover decision engine: a pure function of
// the two aggregated health verdicts and the static enablement flags.
package decision

import (
	"github.com/Trigsy1/ha-nva-fo-danat/internal/probe"
)

// Action is the single outcome of one decision.
type Action int

const (
	// ActionNone leaves routes untouched.
	ActionNone Action = iota
	// ActionFailover steers traffic to the secondary appliance.
	ActionFailover
	// ActionFailback steers traffic to the primary appliance.
	ActionFailback
	// ActionAlertOnly performs no route change and requests manual
	// recovery. Terminal until an operator intervenes.
	ActionAlertOnly
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionFailover:
		return "failover"
	case ActionFailback:
		return "failback"
	case ActionAlertOnly:
		return "alert-only"
	default:
		return "unknown"
	}
}

// Policy is the static configuration the engine combines with the
// verdicts.
type Policy struct {
	FailoverEnabled bool
	FailbackEnabled bool
}

// Decide maps the four (primaryDown, secondaryDown) combinations to
// exactly one action. The both-healthy branch steers to primary
// unconditionally: the controller is stateless across runs and the
// primary is authoritative whenever it is healthy.
func Decide(v probe.Verdicts, p Policy) Action {
	switch {
	case v.PrimaryDown && v.SecondaryDown:
		return ActionAlertOnly
	case v.PrimaryDown:
		if p.FailoverEnabled {
			return ActionFailover
		}
		return ActionNone
	case v.SecondaryDown:
		if p.FailbackEnabled {
			return ActionFailback
		}
		return ActionNone
	default:
		return ActionFailback
	}
}
