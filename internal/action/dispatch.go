package action

import (
	"fmt"

	"github.com/process-triage/pt-core/internal/decision"
)

// Runner executes and verifies one action against a Target.
type Runner interface {
	Execute(t Target) ExecutionResult
}

// CompositeRunner dispatches to the specialized runner for each action,
// matching the same routing the teacher's original dispatcher used:
// Pause/Resume/Kill to signals, Renice to priority adjustment,
// Freeze/Unfreeze/Throttle/Quarantine/Unquarantine to cgroup v2, and
// Restart to a hard error — this core never restarts a process itself.
type CompositeRunner struct {
	Signal SignalRunner
	Renice ReniceRunner
	Cgroup CgroupRunner
}

// Execute routes t to the appropriate specialized runner.
func (c CompositeRunner) Execute(t Target) ExecutionResult {
	switch t.Action {
	case decision.ActionKeep:
		return ExecutionResult{Status: StatusOK}
	case decision.ActionPause, decision.ActionResume, decision.ActionKill:
		return c.Signal.Execute(t)
	case decision.ActionRenice:
		return c.Renice.Execute(t)
	case decision.ActionFreeze, decision.ActionUnfreeze, decision.ActionThrottle,
		decision.ActionQuarantine, decision.ActionUnquarantine:
		return c.Cgroup.Execute(t)
	case decision.ActionRestart:
		return ExecutionResult{Status: StatusFailed, Err: ErrRestartRequiresSupervisor}
	default:
		return ExecutionResult{Status: StatusFailed, Err: fmt.Errorf("action: unhandled action %v", t.Action)}
	}
}
