package action

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/process-triage/pt-core/internal/identity"
)

// PriorityAdjuster sets and reads a process's nice value. The real
// implementation wraps unix.Setpriority/unix.Getpriority.
type PriorityAdjuster interface {
	SetPriority(pid identity.PID, nice int) error
	GetPriority(pid identity.PID) (int, error)
}

// UnixPriorityAdjuster is the real PriorityAdjuster.
type UnixPriorityAdjuster struct{}

func (UnixPriorityAdjuster) SetPriority(pid identity.PID, nice int) error {
	return unix.Setpriority(unix.PRIO_PROCESS, int(pid), nice)
}

func (UnixPriorityAdjuster) GetPriority(pid identity.PID) (int, error) {
	// unix.Getpriority returns (20 - nice); undo the kernel's offset so
	// callers see the conventional -20..19 nice scale.
	raw, err := unix.Getpriority(unix.PRIO_PROCESS, int(pid))
	if err != nil {
		return 0, err
	}
	return 20 - raw, nil
}

// ReniceRunner adjusts a process's scheduling priority and verifies the
// change stuck.
type ReniceRunner struct {
	Adjuster PriorityAdjuster
}

// Execute sets the target's nice value to NiceDelta.
func (r ReniceRunner) Execute(t Target) ExecutionResult {
	if err := r.Adjuster.SetPriority(t.Identity.PID, t.NiceDelta); err != nil {
		return ExecutionResult{Status: StatusFailed, Err: err, Stages: []StageResult{{Name: "renice", Err: err}}}
	}
	return ExecutionResult{Status: StatusOK, Stages: []StageResult{{Name: "renice"}}}
}

// Verify confirms the live nice value matches what was requested.
func (r ReniceRunner) Verify(t Target) error {
	current, err := r.Adjuster.GetPriority(t.Identity.PID)
	if err != nil {
		return err
	}
	if current != t.NiceDelta {
		return fmt.Errorf("action: nice value is %d, expected %d", current, t.NiceDelta)
	}
	return nil
}
