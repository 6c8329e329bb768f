package safety

import (
	"regexp"
	"testing"

	"github.com/process-triage/pt-core/internal/decision"
	"github.com/process-triage/pt-core/internal/identity"
	"github.com/process-triage/pt-core/internal/inference"
	"github.com/stretchr/testify/assert"
)

func TestProtectedPatternBlocksLiteralMatch(t *testing.T) {
	set := ProtectedRuleSet{Rules: []ProtectedRule{{Field: FieldBasename, Literal: "systemd"}}}
	res := CheckProtectedPatterns(set, Candidate{Basename: "systemd"})
	assert.Equal(t, PreCheckFail, res.Status)
}

func TestProtectedPatternRegexMatch(t *testing.T) {
	set := ProtectedRuleSet{Rules: []ProtectedRule{{Field: FieldCommand, Pattern: regexp.MustCompile(`^sshd(:|$)`)}}}
	res := CheckProtectedPatterns(set, Candidate{Command: "sshd: user@pts/0"})
	assert.Equal(t, PreCheckFail, res.Status)
}

func TestProtectedPatternPassesWhenNoMatch(t *testing.T) {
	set := ProtectedRuleSet{Rules: []ProtectedRule{{Field: FieldBasename, Literal: "systemd"}}}
	res := CheckProtectedPatterns(set, Candidate{Basename: "my-dev-server"})
	assert.Equal(t, PreCheckPass, res.Status)
}

func TestDataLossGateBlocksOnWritableHandles(t *testing.T) {
	res := CheckDataLossGates(DefaultDataLossGateConfig(), inference.ExtendedEvidence{OpenWritableHandles: 2})
	assert.Equal(t, PreCheckFail, res.Status)
}

func TestDataLossGateBlocksOnRecentIO(t *testing.T) {
	age := 2.0
	res := CheckDataLossGates(DefaultDataLossGateConfig(), inference.ExtendedEvidence{LastIOAgeSeconds: &age})
	assert.Equal(t, PreCheckFail, res.Status)
}

func TestDataLossGatePassesWhenQuiet(t *testing.T) {
	age := 3600.0
	res := CheckDataLossGates(DefaultDataLossGateConfig(), inference.ExtendedEvidence{LastIOAgeSeconds: &age})
	assert.Equal(t, PreCheckPass, res.Status)
}

func TestIdentityGateMismatchFails(t *testing.T) {
	recorded := identity.ProcessIdentity{PID: 100, StartID: "boot:1000:100", UID: 1000}
	live := identity.ProcessIdentity{PID: 100, StartID: "boot:2000:100", UID: 1000}
	res := CheckIdentityGate(recorded, live)
	assert.Equal(t, PreCheckFail, res.Status)
}

func TestIdentityGateMatchPasses(t *testing.T) {
	id := identity.ProcessIdentity{PID: 100, StartID: "boot:1000:100", UID: 1000}
	res := CheckIdentityGate(id, id)
	assert.Equal(t, PreCheckPass, res.Status)
}

func TestRobotModeSkippedWhenDisabled(t *testing.T) {
	res := CheckRobotModeGates(RobotModeConfig{}, RobotModeState{}, 0, 1e9, false)
	assert.Equal(t, PreCheckSkip, res.Status)
}

func TestRobotModeBlocksBelowPosteriorFloor(t *testing.T) {
	cfg := RobotModeConfig{Enabled: true, PosteriorFloor: 0.9, BlastRadiusCapMB: 1000, KillCountCap: 10}
	res := CheckRobotModeGates(cfg, RobotModeState{}, 0.5, 10, true)
	assert.Equal(t, PreCheckFail, res.Status)
}

func TestRobotModeBlocksAtKillCountCap(t *testing.T) {
	cfg := RobotModeConfig{Enabled: true, PosteriorFloor: 0, BlastRadiusCapMB: 1000, KillCountCap: 3}
	res := CheckRobotModeGates(cfg, RobotModeState{KillsThisRun: 3}, 0.99, 10, true)
	assert.Equal(t, PreCheckFail, res.Status)
}

func TestRunPreChecksBlocksOnFirstFailure(t *testing.T) {
	id := identity.ProcessIdentity{PID: 42, StartID: "boot:1:42", UID: 0}
	input := PreCheckInput{
		Action:           decision.ActionKill,
		Candidate:        Candidate{Basename: "systemd"},
		RecordedIdentity: id,
		LiveIdentity:     id,
	}
	protectedRules := ProtectedRuleSet{Rules: []ProtectedRule{{Field: FieldBasename, Literal: "systemd"}}}
	report := RunPreChecks(input, protectedRules, DefaultDataLossGateConfig(), RobotModeConfig{}, RobotModeState{})
	assert.True(t, report.Blocked)
	f, ok := report.FirstFailure()
	assert.True(t, ok)
	assert.Equal(t, "protected_pattern", f.Name)
}

func TestRunPreChecksSkipsDataLossForNonDestructiveActions(t *testing.T) {
	id := identity.ProcessIdentity{PID: 42, StartID: "boot:1:42", UID: 0}
	input := PreCheckInput{
		Action:           decision.ActionPause,
		Candidate:        Candidate{Basename: "worker"},
		RecordedIdentity: id,
		LiveIdentity:     id,
		Extended:         inference.ExtendedEvidence{OpenWritableHandles: 5},
	}
	report := RunPreChecks(input, ProtectedRuleSet{}, DefaultDataLossGateConfig(), RobotModeConfig{}, RobotModeState{})
	assert.False(t, report.Blocked)
}
