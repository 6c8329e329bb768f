package action

import (
	"fmt"
	"strings"

	"github.com/process-triage/pt-core/internal/decision"
)

// CgroupFS abstracts the cgroup v2 filesystem operations the cgroup
// runners need, so tests never touch a real cgroup hierarchy.
type CgroupFS interface {
	WriteFile(path, content string) error
	ReadFile(path string) (string, error)
}

// CgroupRunner implements Freeze/Unfreeze, Throttle, and
// Quarantine/Unquarantine — all single-stage, Linux cgroup v2 only,
// verified by reading the relevant state file back.
type CgroupRunner struct {
	FS CgroupFS

	// ThrottleCPUMax is the value written to cpu.max when throttling,
	// e.g. "50000 100000" for a 50% cap.
	ThrottleCPUMax string
	// QuarantineCgroupPath is the dedicated cgroup a quarantined
	// process's PID is moved into.
	QuarantineCgroupPath string
}

func (r CgroupRunner) Execute(t Target) ExecutionResult {
	switch t.Action {
	case decision.ActionFreeze:
		return r.setFreeze(t, "1", "freeze")
	case decision.ActionUnfreeze:
		return r.setFreeze(t, "0", "unfreeze")
	case decision.ActionThrottle:
		return r.setCPUMax(t)
	case decision.ActionQuarantine:
		return r.moveToCgroup(t, r.QuarantineCgroupPath, "quarantine")
	case decision.ActionUnquarantine:
		return r.moveToCgroup(t, t.CgroupPath, "unquarantine")
	default:
		return ExecutionResult{Status: StatusFailed, Err: fmt.Errorf("action: cgroup runner cannot handle %v", t.Action)}
	}
}

func (r CgroupRunner) setFreeze(t Target, value, name string) ExecutionResult {
	path := t.CgroupPath + "/cgroup.freeze"
	if err := r.FS.WriteFile(path, value); err != nil {
		return ExecutionResult{Status: StatusFailed, Err: err, Stages: []StageResult{{Name: name, Err: err}}}
	}
	result := ExecutionResult{Stages: []StageResult{{Name: name}}}
	if err := r.verifyFile(path, value); err != nil {
		result.Status = StatusVerificationFailed
		result.Err = err
		return result
	}
	result.Status = StatusOK
	return result
}

func (r CgroupRunner) setCPUMax(t Target) ExecutionResult {
	value := r.ThrottleCPUMax
	if value == "" {
		value = "50000 100000"
	}
	path := t.CgroupPath + "/cpu.max"
	if err := r.FS.WriteFile(path, value); err != nil {
		return ExecutionResult{Status: StatusFailed, Err: err, Stages: []StageResult{{Name: "throttle", Err: err}}}
	}
	result := ExecutionResult{Stages: []StageResult{{Name: "throttle"}}}
	if err := r.verifyFile(path, value); err != nil {
		result.Status = StatusVerificationFailed
		result.Err = err
		return result
	}
	result.Status = StatusOK
	return result
}

func (r CgroupRunner) moveToCgroup(t Target, destCgroup, name string) ExecutionResult {
	path := destCgroup + "/cgroup.procs"
	pidStr := fmt.Sprintf("%d", t.Identity.PID)
	if err := r.FS.WriteFile(path, pidStr); err != nil {
		return ExecutionResult{Status: StatusFailed, Err: err, Stages: []StageResult{{Name: name, Err: err}}}
	}
	result := ExecutionResult{Stages: []StageResult{{Name: name}}}
	members, err := r.FS.ReadFile(path)
	if err != nil || !strings.Contains(members, pidStr) {
		result.Status = StatusVerificationFailed
		result.Err = fmt.Errorf("action: pid %d not present in %s after move", t.Identity.PID, destCgroup)
		return result
	}
	result.Status = StatusOK
	return result
}

func (r CgroupRunner) verifyFile(path, want string) error {
	got, err := r.FS.ReadFile(path)
	if err != nil {
		return err
	}
	if strings.TrimSpace(got) != strings.TrimSpace(want) {
		return fmt.Errorf("action: %s reads %q, expected %q", path, got, want)
	}
	return nil
}
