// Package safety implements the pre-check gates of the Safety Gate +
// Action Executor (C5): protected-pattern matching, data-loss gates,
// the identity gate, and robot-mode gates. Every gate is bounds-checked
// and abort-on-ambiguity, in the spirit of the teacher's constitutional
// kernel, but scoped to per-action pre-checks rather than a kernel-wide
// invariant system.
package safety

import "fmt"

// PreCheckStatus is the outcome of one pre-check.
type PreCheckStatus int

const (
	PreCheckPass PreCheckStatus = iota
	PreCheckSkip
	PreCheckFail
)

func (s PreCheckStatus) String() string {
	switch s {
	case PreCheckPass:
		return "pass"
	case PreCheckSkip:
		return "skip"
	case PreCheckFail:
		return "fail"
	default:
		return "unknown"
	}
}

// PreCheckResult is the outcome of a single named pre-check.
type PreCheckResult struct {
	Name   string
	Status PreCheckStatus
	Reason string
	Fields map[string]string
}

func pass(name string) PreCheckResult { return PreCheckResult{Name: name, Status: PreCheckPass} }

func skip(name, reason string) PreCheckResult {
	return PreCheckResult{Name: name, Status: PreCheckSkip, Reason: reason}
}

func fail(name, reason string) PreCheckResult {
	return PreCheckResult{Name: name, Status: PreCheckFail, Reason: reason}
}

// PreCheckReport is the aggregate of every gate run against one candidate
// action. Blocked is true iff any individual result is PreCheckFail.
type PreCheckReport struct {
	Results []PreCheckResult
	Blocked bool
}

// Add appends a result and updates Blocked.
func (r *PreCheckReport) Add(res PreCheckResult) {
	r.Results = append(r.Results, res)
	if res.Status == PreCheckFail {
		r.Blocked = true
	}
}

// FirstFailure returns the first PreCheckFail result, if any.
func (r *PreCheckReport) FirstFailure() (PreCheckResult, bool) {
	for _, res := range r.Results {
		if res.Status == PreCheckFail {
			return res, true
		}
	}
	return PreCheckResult{}, false
}

// String renders a compact human summary, e.g. for CLI hints.
func (r PreCheckReport) String() string {
	if !r.Blocked {
		return "all pre-checks passed"
	}
	f, _ := r.FirstFailure()
	return fmt.Sprintf("blocked by %s: %s", f.Name, f.Reason)
}
