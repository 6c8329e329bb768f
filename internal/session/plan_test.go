package session

import (
	"testing"
	"time"

	"github.com/process-triage/pt-core/internal/decision"
	"github.com/process-triage/pt-core/internal/identity"
	"github.com/process-triage/pt-core/internal/inference"
	"github.com/process-triage/pt-core/internal/safety"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyPreCheckReportCopiesBlockedVerdict(t *testing.T) {
	plan := PlanAction{
		Target: identity.ProcessIdentity{PID: 42},
		Action: decision.ActionKill,
		Stage:  PlanStageMitigate,
	}
	report := safety.PreCheckReport{}
	report.Add(safety.PreCheckResult{Name: "identity", Status: safety.PreCheckFail, Reason: "identity_mismatch"})

	plan.ApplyPreCheckReport(report)

	assert.True(t, plan.Blocked)
	assert.Len(t, plan.PreChecks, 1)
	assert.Equal(t, "identity", plan.PreChecks[0].Name)
}

func TestZombieRedirectRecordsOriginalTarget(t *testing.T) {
	original := identity.PID(500)
	plan := PlanAction{
		Target:               identity.ProcessIdentity{PID: 1},
		Action:               decision.ActionKill,
		OriginalZombieTarget: &original,
	}
	assert.NotNil(t, plan.OriginalZombieTarget)
	assert.Equal(t, identity.PID(500), *plan.OriginalZombieTarget)
}

func TestWriteReadPlanRoundTrips(t *testing.T) {
	root := t.TempDir()
	l := NewLayout(root, testSessionID)
	require.NoError(t, l.Create())

	zombiePID := identity.PID(4242)
	plan := Plan{
		SchemaVersion: PlanSchemaVersion,
		SessionID:     testSessionID,
		CreatedAt:     time.Unix(5000, 0).UTC(),
		Actions: []PlanAction{
			{
				Target: identity.ProcessIdentity{PID: 4242, StartID: "boot:1:4242", UID: 1000},
				Action: decision.ActionKill,
				Stage:  PlanStageObserve,
				Timeouts: StageTimeouts{MitigateMillis: 5000, TerminateMillis: 2000},
				PreChecks: []safety.PreCheckResult{
					{Name: "protected_patterns", Status: safety.PreCheckPass},
				},
				Rationale: PlanRationale{
					Decision: decision.DecisionRationale{
						Posterior:    inference.Posterior{PZombie: 1, LogPZombie: 0},
						ChosenAction: decision.ActionKill,
						ExpectedLosses: []decision.ExpectedLoss{
							{Action: decision.ActionKeep, Loss: 10},
							{Action: decision.ActionKill, Loss: 0.1},
						},
					},
					MemoryMB: 12.5,
				},
				OriginalZombieTarget: &zombiePID,
			},
			{
				Target:  identity.ProcessIdentity{PID: 7, StartID: "boot:2:7", UID: 0},
				Action:  decision.ActionKeep,
				Blocked: false,
			},
		},
	}
	require.NoError(t, WritePlan(l, plan))

	got, err := ReadPlan(l)
	require.NoError(t, err)
	assert.Equal(t, plan.SchemaVersion, got.SchemaVersion)
	assert.Equal(t, plan.SessionID, got.SessionID)
	assert.True(t, plan.CreatedAt.Equal(got.CreatedAt))
	require.Len(t, got.Actions, 2)
	assert.Equal(t, plan.Actions[0].Target, got.Actions[0].Target)
	assert.Equal(t, plan.Actions[0].Rationale.Decision.ExpectedLosses, got.Actions[0].Rationale.Decision.ExpectedLosses)
	require.NotNil(t, got.Actions[0].OriginalZombieTarget)
	assert.Equal(t, zombiePID, *got.Actions[0].OriginalZombieTarget)
	assert.Equal(t, plan.Actions[1], got.Actions[1])
}

func TestReadPlanRejectsUnknownSchemaVersion(t *testing.T) {
	root := t.TempDir()
	l := NewLayout(root, testSessionID)
	require.NoError(t, l.Create())

	bad := Plan{SchemaVersion: "999", SessionID: testSessionID}
	require.NoError(t, WritePlan(l, bad))
	_, err := ReadPlan(l)
	assert.Error(t, err)
}
