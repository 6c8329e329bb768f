// Package action implements the staged Action Executor (C5): per-action
// runners dispatched over the decision.Action enum, staged Kill with
// identity revalidation between stages, zombie-to-parent re-routing
// computed on demand, and process-group signal delivery.
package action

import (
	"errors"
	"time"

	"github.com/process-triage/pt-core/internal/decision"
	"github.com/process-triage/pt-core/internal/identity"
)

// Status is the terminal outcome of one action execution attempt.
type Status int

const (
	StatusOK Status = iota
	StatusBlockedByPrecheck
	StatusIdentityMismatch
	StatusVerificationFailed
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusBlockedByPrecheck:
		return "blocked_by_precheck"
	case StatusIdentityMismatch:
		return "identity_mismatch"
	case StatusVerificationFailed:
		return "verification_failed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrRestartRequiresSupervisor matches the dispatch contract: this core
// never restarts a process itself, it only classifies and recommends.
var ErrRestartRequiresSupervisor = errors.New("action: restart requires supervisor support")

// ErrNotSupportedOnPlatform is the error value for an action the host
// platform cannot perform. No runner in this package currently returns it.
var ErrNotSupportedOnPlatform = errors.New("action: not supported on this platform")

// Target is one action to execute against a specific process.
type Target struct {
	Identity         identity.ProcessIdentity
	PPID             identity.PID
	Action           decision.Action
	NiceDelta        int
	UseProcessGroups bool
	PGID             *identity.PID
	GraceMillis      int
	CgroupPath       string
}

func (t Target) graceDuration() time.Duration {
	if t.GraceMillis <= 0 {
		return 5 * time.Second
	}
	return time.Duration(t.GraceMillis) * time.Millisecond
}

// StageResult is the outcome of one stage of a (possibly multi-stage)
// execution.
type StageResult struct {
	Name   string
	Err    error
}

// ExecutionResult is the full outcome of executing one Target,
// including any zombie re-routing that occurred.
type ExecutionResult struct {
	Status               Status
	Stages               []StageResult
	OriginalZombieTarget *identity.PID
	RedirectedTo         *identity.PID
	Err                  error
}

// IdentityReader re-reads a process's live identity from the OS. The
// executor calls it between every stage of a staged action to detect
// PID reuse or identity drift mid-execution.
type IdentityReader interface {
	Read(pid identity.PID) (identity.ProcessIdentity, error)
}

// ErrProcessGone is returned by an IdentityReader when the PID no
// longer exists.
var ErrProcessGone = errors.New("action: process no longer exists")
