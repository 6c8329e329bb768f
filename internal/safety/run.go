package safety

import (
	"github.com/process-triage/pt-core/internal/decision"
	"github.com/process-triage/pt-core/internal/identity"
	"github.com/process-triage/pt-core/internal/inference"
)

// PreCheckInput bundles everything the four gate categories need for one
// candidate action.
type PreCheckInput struct {
	Action            decision.Action
	Candidate         Candidate
	RecordedIdentity  identity.ProcessIdentity
	LiveIdentity      identity.ProcessIdentity
	Extended          inference.ExtendedEvidence
	PosteriorConfidence float64
	BlastRadiusMB     float64
	KnownSignature    bool
}

// RunPreChecks runs the protected-pattern, data-loss, identity, and
// robot-mode gates in that order and returns the aggregate report. Data
// loss gates only apply to Kill (and Restart, which also terminates the
// process); other actions skip that category.
func RunPreChecks(input PreCheckInput, protectedRules ProtectedRuleSet, dataLossCfg DataLossGateConfig, robotCfg RobotModeConfig, robotState RobotModeState) PreCheckReport {
	var report PreCheckReport

	report.Add(CheckProtectedPatterns(protectedRules, input.Candidate))

	if input.Action == decision.ActionKill || input.Action == decision.ActionRestart {
		report.Add(CheckDataLossGates(dataLossCfg, input.Extended))
	} else {
		report.Add(skip("data_loss", "action is not destructive"))
	}

	report.Add(CheckIdentityGate(input.RecordedIdentity, input.LiveIdentity))

	if input.Action == decision.ActionKill {
		report.Add(CheckRobotModeGates(robotCfg, robotState, input.PosteriorConfidence, input.BlastRadiusMB, input.KnownSignature))
	} else {
		report.Add(skip("robot_mode", "robot-mode gates apply to Kill only"))
	}

	return report
}
