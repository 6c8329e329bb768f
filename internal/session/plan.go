package session

import (
	"github.com/process-triage/pt-core/internal/decision"
	"github.com/process-triage/pt-core/internal/identity"
	"github.com/process-triage/pt-core/internal/safety"
)

// PlanStage names where in the staged executor a PlanAction currently
// sits: 0 observes, 1 mitigates (e.g. SIGTERM/grace), 2 terminates
// (e.g. SIGKILL).
type PlanStage int

const (
	PlanStageObserve   PlanStage = 0
	PlanStageMitigate  PlanStage = 1
	PlanStageTerminate PlanStage = 2
)

// StageTimeouts gives the per-stage deadline, in milliseconds, for a
// staged action. Zero means "no explicit timeout for this stage".
type StageTimeouts struct {
	ObserveMillis   int `json:"observe_ms"`
	MitigateMillis  int `json:"mitigate_ms"`
	TerminateMillis int `json:"terminate_ms"`
}

// PlanRationale is the human- and audit-facing explanation recorded
// alongside a PlanAction: the posterior that drove it, the expected
// loss under the chosen action, the process's estimated recovery
// probability if left alone, its memory footprint, whether it matched a
// known bad-actor signature, and its inferred evidence category.
type PlanRationale struct {
	Decision          decision.DecisionRationale `json:"decision"`
	RecoveryProb      float64                    `json:"recovery_prob"`
	MemoryMB          float64                    `json:"memory_mb"`
	KnownSignatureHit bool                       `json:"known_signature_hit"`
	Category          string                     `json:"category,omitempty"`
}

// PlanAction is the per-candidate resolved action produced by the
// Decision Engine and consumed by the Safety Gate and Action Executor.
// It is the one entity spanning C4, C5, and C6.
type PlanAction struct {
	Target               identity.ProcessIdentity `json:"target"`
	Action               decision.Action          `json:"action"`
	Stage                PlanStage                `json:"stage"`
	Timeouts             StageTimeouts            `json:"timeouts"`
	PreChecks            []safety.PreCheckResult  `json:"pre_checks,omitempty"`
	Rationale            PlanRationale            `json:"rationale"`
	Blocked              bool                     `json:"blocked"`
	OriginalZombieTarget *identity.PID            `json:"original_zombie_target,omitempty"`
}

// ApplyPreCheckReport copies a completed PreCheckReport's results and
// blocked verdict onto the plan.
func (p *PlanAction) ApplyPreCheckReport(report safety.PreCheckReport) {
	p.PreChecks = report.Results
	p.Blocked = report.Blocked
}
