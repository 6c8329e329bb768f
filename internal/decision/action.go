// Package decision implements the Decision Engine (C4): the expected-loss
// and CVaR risk-adjusted action rules, dependency-weighted and load-aware
// loss scaling, the optional mixture-SPRT and multiclass log-Bayes-factor
// sequential-testing layer (sprt.go), and e-BH/e-BY FDR control with an
// alpha-investing wealth budget (fdr.go, alpha_investing.go) over a batch
// of kill candidates.
package decision

// Action is the closed enumeration of executable actions. Enum order
// matters: ties in the expected-loss rule break by cost tier first,
// then by this declaration order.
type Action int

const (
	ActionKeep Action = iota
	ActionRenice
	ActionPause
	ActionResume
	ActionThrottle
	ActionFreeze
	ActionUnfreeze
	ActionQuarantine
	ActionUnquarantine
	ActionRestart
	ActionKill
)

func (a Action) String() string {
	switch a {
	case ActionKeep:
		return "keep"
	case ActionRenice:
		return "renice"
	case ActionPause:
		return "pause"
	case ActionResume:
		return "resume"
	case ActionThrottle:
		return "throttle"
	case ActionFreeze:
		return "freeze"
	case ActionUnfreeze:
		return "unfreeze"
	case ActionQuarantine:
		return "quarantine"
	case ActionUnquarantine:
		return "unquarantine"
	case ActionRestart:
		return "restart"
	case ActionKill:
		return "kill"
	default:
		return "unknown"
	}
}

// Reversible reports whether the action can be undone by a corresponding
// reverse action. Kill and Restart are not reversible.
func (a Action) Reversible() bool {
	switch a {
	case ActionKill, ActionRestart:
		return false
	default:
		return true
	}
}

// CostTier returns the action's cost tier: keep=0, reversible=1, risky=2.
func (a Action) CostTier() int {
	switch a {
	case ActionKeep:
		return 0
	case ActionKill, ActionRestart:
		return 2
	default:
		return 1
	}
}

// DecidableActions are the forward actions the expected-loss rule
// chooses among. Resume/Unfreeze/Unquarantine are reverse operations
// invoked by the executor, never selected by argmin.
var DecidableActions = []Action{
	ActionKeep, ActionRenice, ActionPause, ActionThrottle,
	ActionFreeze, ActionQuarantine, ActionRestart, ActionKill,
}
