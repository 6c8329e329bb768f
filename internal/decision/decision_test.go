package decision

import (
	"testing"

	"github.com/process-triage/pt-core/internal/inference"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

func testLossMatrix() LossMatrix {
	row := func(keep, pause, kill float64) LossRow {
		return LossRow{Keep: keep, Pause: f(pause), Renice: f(pause / 2), Kill: kill}
	}
	return LossMatrix{
		Useful:    row(0, 4, 100),
		UsefulBad: row(2, 3, 40),
		Abandoned: row(5, 2, 5),
		Zombie:    row(5, 1, 0.1),
	}
}

func allFeasible() Feasibility {
	return Feasibility{
		ActionKeep: true, ActionRenice: true, ActionPause: true, ActionThrottle: true,
		ActionFreeze: true, ActionQuarantine: true, ActionRestart: true, ActionKill: true,
	}
}

func TestExpectedLossPicksKillForZombie(t *testing.T) {
	loss := LossMatrix{
		Useful:    LossRow{Keep: 0, Pause: f(4), Kill: 100},
		UsefulBad: LossRow{Keep: 2, Pause: f(3), Kill: 40},
		Abandoned: LossRow{Keep: 5, Pause: f(2), Kill: 5},
		Zombie:    LossRow{Keep: 5, Pause: f(1), Kill: 0.1},
	}
	post := inference.Posterior{PZombie: 0.9, PAbandoned: 0.1}
	feasible := Feasibility{ActionKeep: true, ActionPause: true, ActionKill: true}
	r, err := ExpectedLossRule(post, loss, feasible)
	require.NoError(t, err)
	assert.Equal(t, ActionKill, r.ChosenAction)
}

func TestExpectedLossPicksKeepForUseful(t *testing.T) {
	post := inference.Posterior{PUseful: 0.9, PUsefulBad: 0.1}
	r, err := ExpectedLossRule(post, testLossMatrix(), allFeasible())
	require.NoError(t, err)
	assert.Equal(t, ActionKeep, r.ChosenAction)
}

func TestExpectedLossNoFeasibleAction(t *testing.T) {
	post := inference.Posterior{PUseful: 1}
	_, err := ExpectedLossRule(post, testLossMatrix(), Feasibility{})
	assert.ErrorIs(t, err, ErrNoFeasibleAction)
}

func TestCVaRPrefersRiskAdjustedUnderTailRisk(t *testing.T) {
	// Construct a matrix where the expected loss favors kill but the
	// tail loss (dominated by the useful row) favors keep at high alpha.
	loss := LossMatrix{
		Useful:    LossRow{Keep: 0, Kill: 1000},
		UsefulBad: LossRow{Keep: 3, Kill: 20},
		Abandoned: LossRow{Keep: 5, Kill: 1},
		Zombie:    LossRow{Keep: 12, Kill: 0.1},
	}
	post := inference.Posterior{PUseful: 0.01, PUsefulBad: 0.01, PAbandoned: 0.08, PZombie: 0.90}
	feasible := Feasibility{ActionKeep: true, ActionKill: true}
	res, err := CVaRRule(post, loss, feasible, 0.90)
	require.NoError(t, err)
	assert.Equal(t, ActionKill, res.RiskNeutral.ChosenAction)
	assert.Equal(t, ActionKeep, res.RiskAdjusted)
}

func TestDependencyWeightedLossNeverReduces(t *testing.T) {
	loss := testLossMatrix()
	scaled := ApplyDependencyWeightedLoss(loss, 0)
	assert.Equal(t, loss.Useful.Kill, scaled.Useful.Kill)

	scaled2 := ApplyDependencyWeightedLoss(loss, 2.0)
	assert.InDelta(t, loss.Useful.Kill*3, scaled2.Useful.Kill, 1e-9)
	assert.InDelta(t, *loss.Useful.Pause, *scaled2.Useful.Pause, 1e-9)
}

func TestLoadAdjustmentZeroLoad(t *testing.T) {
	cfg := DefaultLoadAwareConfig()
	cfg.Enabled = true
	cores := uint32(8)
	adj := ComputeLoadAdjustment(cfg, LoadSignals{Load1: f(0), Cores: &cores, MemoryUsedFraction: f(0), PSIAvg10: f(0)})
	require.NotNil(t, adj)
	assert.InDelta(t, 0.0, adj.LoadScore, 1e-6)
	assert.InDelta(t, 1.0, adj.KeepMultiplier, 1e-6)
	assert.InDelta(t, 1.0, adj.ReversibleMultiplier, 1e-6)
	assert.InDelta(t, 1.0, adj.RiskyMultiplier, 1e-6)
}

func TestLoadAdjustmentSaturates(t *testing.T) {
	cfg := DefaultLoadAwareConfig()
	cfg.Enabled = true
	cores := uint32(1)
	adj := ComputeLoadAdjustment(cfg, LoadSignals{
		QueueLen: 10_000, Load1: f(10_000), Cores: &cores, MemoryUsedFraction: f(1.0), PSIAvg10: f(100),
	})
	require.NotNil(t, adj)
	assert.InDelta(t, 1.0, adj.LoadScore, 1e-6)
	assert.InDelta(t, cfg.Multipliers.KeepMax, adj.KeepMultiplier, 1e-6)
	assert.InDelta(t, cfg.Multipliers.ReversibleMin, adj.ReversibleMultiplier, 1e-6)
	assert.InDelta(t, cfg.Multipliers.RiskyMax, adj.RiskyMultiplier, 1e-6)
}

func TestLoadAwareDisabledReturnsNil(t *testing.T) {
	cfg := DefaultLoadAwareConfig()
	assert.Nil(t, ComputeLoadAdjustment(cfg, LoadSignals{}))
}

func TestApplyLoadToLossMatrix(t *testing.T) {
	loss := LossMatrix{Useful: LossRow{Keep: 10, Pause: f(4), Renice: f(3), Kill: 100, Restart: f(50)}}
	adj := LoadAdjustment{LoadScore: 0.5, KeepMultiplier: 1.2, ReversibleMultiplier: 0.8, RiskyMultiplier: 1.5}
	adjusted := ApplyLoadToLossMatrix(loss, adj)
	assert.InDelta(t, 12.0, adjusted.Useful.Keep, 1e-9)
	assert.InDelta(t, 3.2, *adjusted.Useful.Pause, 1e-9)
	assert.InDelta(t, 2.4, *adjusted.Useful.Renice, 1e-9)
	assert.InDelta(t, 150.0, adjusted.Useful.Kill, 1e-9)
	assert.InDelta(t, 75.0, *adjusted.Useful.Restart, 1e-9)
}
