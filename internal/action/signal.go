package action

import (
	"fmt"
	"time"

	"github.com/process-triage/pt-core/internal/decision"
	"github.com/process-triage/pt-core/internal/identity"
)

// Signaler sends OS signals and checks process liveness. The real
// implementation wraps golang.org/x/sys/unix.Kill; tests use a fake.
type Signaler interface {
	Signal(pid identity.PID, sig int) error
	SignalGroup(pgid identity.PID, sig int) error
	Alive(pid identity.PID) (bool, error)
}

// ProcessStateReader reports whether a PID is currently a zombie, so the
// signal runner can re-route before sending anything.
type ProcessStateReader interface {
	IsZombie(pid identity.PID) (bool, error)
}

// SignalRunner executes Pause, Resume, and the three-stage Kill.
// PollInterval governs how often awaitExit re-checks liveness during the
// grace period; it defaults to 50ms.
type SignalRunner struct {
	Signaler     Signaler
	Identity     IdentityReader
	State        ProcessStateReader
	PollInterval time.Duration
}

const (
	sigStop = 19 // SIGSTOP
	sigCont = 18 // SIGCONT
	sigTerm = 15 // SIGTERM
	sigKill = 9  // SIGKILL
)

func (r SignalRunner) pollInterval() time.Duration {
	if r.PollInterval <= 0 {
		return 50 * time.Millisecond
	}
	return r.PollInterval
}

// Execute dispatches Pause/Resume/Kill to their respective sequences.
func (r SignalRunner) Execute(t Target) ExecutionResult {
	switch t.Action {
	case decision.ActionPause:
		return r.runSingleSignal(t, sigStop, "pause")
	case decision.ActionResume:
		return r.runSingleSignal(t, sigCont, "resume")
	case decision.ActionKill:
		return r.runStagedKill(t)
	default:
		return ExecutionResult{Status: StatusFailed, Err: fmt.Errorf("action: signal runner cannot handle %v", t.Action)}
	}
}

func (r SignalRunner) runSingleSignal(t Target, sig int, name string) ExecutionResult {
	target := t.Identity.PID
	if err := r.deliverSignal(t, target, sig); err != nil {
		return ExecutionResult{Status: StatusFailed, Err: err, Stages: []StageResult{{Name: name, Err: err}}}
	}
	return ExecutionResult{Status: StatusOK, Stages: []StageResult{{Name: name}}}
}

// runStagedKill implements the three-stage kill: stage 0 observes
// (confirms the target is still alive and re-routes zombies to their
// parent), stage 1 sends SIGTERM and waits up to GraceMillis for exit,
// stage 2 sends SIGKILL. Identity is revalidated before every stage
// that sends a signal; a mismatch aborts with StatusIdentityMismatch
// without advancing further. A target still alive when the SIGTERM
// grace period ends proceeds to SIGKILL; a target still alive after
// SIGKILL ends with StatusVerificationFailed.
func (r SignalRunner) runStagedKill(t Target) ExecutionResult {
	result := ExecutionResult{}
	target := t.Identity.PID

	// Zombie targets are re-routed to their parent — computed on
	// demand, never cached — before any signal is sent.
	if r.State != nil {
		isZombie, err := r.State.IsZombie(target)
		if err == nil && isZombie {
			original := target
			result.OriginalZombieTarget = &original
			target = t.PPID
			result.RedirectedTo = &t.PPID
		}
	}
	alive, err := r.Signaler.Alive(target)
	result.Stages = append(result.Stages, StageResult{Name: "observe", Err: err})
	if err != nil {
		result.Status = StatusFailed
		result.Err = err
		return result
	}
	if !alive {
		result.Status = StatusOK
		return result
	}

	if mismatch := r.revalidate(t); mismatch != nil {
		result.Status = StatusIdentityMismatch
		result.Err = mismatch
		return result
	}

	// Stage 1: SIGTERM, wait for grace period, verify exit.
	if err := r.deliverSignal(t, target, sigTerm); err != nil {
		result.Stages = append(result.Stages, StageResult{Name: "sigterm", Err: err})
		result.Status = StatusFailed
		result.Err = err
		return result
	}
	result.Stages = append(result.Stages, StageResult{Name: "sigterm"})

	if r.awaitExit(target, t.graceDuration()) {
		result.Status = StatusOK
		return result
	}

	if mismatch := r.revalidate(t); mismatch != nil {
		result.Status = StatusIdentityMismatch
		result.Err = mismatch
		return result
	}

	// Stage 2: SIGKILL, verify.
	if err := r.deliverSignal(t, target, sigKill); err != nil {
		result.Stages = append(result.Stages, StageResult{Name: "sigkill", Err: err})
		result.Status = StatusFailed
		result.Err = err
		return result
	}
	result.Stages = append(result.Stages, StageResult{Name: "sigkill"})

	stillAlive, err := r.Signaler.Alive(target)
	if err != nil || stillAlive {
		result.Status = StatusVerificationFailed
		result.Err = fmt.Errorf("action: process %d still alive after sigkill", target)
		return result
	}
	result.Status = StatusOK
	return result
}

func (r SignalRunner) revalidate(t Target) error {
	if r.Identity == nil {
		return nil
	}
	live, err := r.Identity.Read(t.Identity.PID)
	if err != nil {
		return err
	}
	if !live.Equal(t.Identity) {
		return fmt.Errorf("action: identity drifted for pid %d between stages", t.Identity.PID)
	}
	return nil
}

// awaitExit polls Alive until the target exits or grace elapses.
// Returns true if the process exited within the grace period.
func (r SignalRunner) awaitExit(pid identity.PID, grace time.Duration) bool {
	deadline := time.Now().Add(grace)
	interval := r.pollInterval()
	for {
		alive, err := r.Signaler.Alive(pid)
		if err == nil && !alive {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(interval)
	}
}

func (r SignalRunner) deliverSignal(t Target, target identity.PID, sig int) error {
	if t.UseProcessGroups && t.PGID != nil {
		return r.Signaler.SignalGroup(*t.PGID, sig)
	}
	return r.Signaler.Signal(target, sig)
}
