package decision

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSPRTCrossesUpperBoundaryOnConsistentSuccesses(t *testing.T) {
	cfg := DefaultSPRTConfig(0.1)
	var state SPRTState
	for i := 0; i < 40; i++ {
		state = UpdateSPRT(state, cfg, true)
		if state.Boundary != SPRTContinue {
			break
		}
	}
	assert.Equal(t, SPRTUpper, state.Boundary)
}

func TestSPRTCrossesLowerBoundaryWhenNullHolds(t *testing.T) {
	cfg := DefaultSPRTConfig(0.5)
	var state SPRTState
	for i := 0; i < 60; i++ {
		state = UpdateSPRT(state, cfg, i%2 == 0)
		if state.Boundary != SPRTContinue {
			break
		}
	}
	assert.Equal(t, SPRTLower, state.Boundary)
}

func TestMulticlassLogBayesFactorPicksLeadingClass(t *testing.T) {
	res := EvaluateMulticlassLogBayesFactor([]float64{-0.1, -5.0, -3.0, -4.0}, 2.0)
	assert.Equal(t, 0, res.LeadingClass)
	assert.Equal(t, 2, res.RunnerUpClass)
	assert.True(t, res.Crossed)
}

func TestApplyEBHRejectsOnlyStrongEvidence(t *testing.T) {
	candidates := []KillCandidate{
		{ID: "a", EValue: 50},
		{ID: "b", EValue: 3},
		{ID: "c", EValue: 1},
	}
	res := ApplyEBH(candidates, 0.1)
	assert.Contains(t, res.Rejected, "a")
	assert.NotContains(t, res.Rejected, "c")
}

func TestApplyEBYIsMoreConservativeThanEBH(t *testing.T) {
	candidates := []KillCandidate{
		{ID: "a", EValue: 50},
		{ID: "b", EValue: 8},
		{ID: "c", EValue: 3},
	}
	bh := ApplyEBH(candidates, 0.1)
	by := ApplyEBY(candidates, 0.1)
	assert.GreaterOrEqual(t, len(bh.Rejected), len(by.Rejected))
}

func TestEffectiveAlphaTakesMinimum(t *testing.T) {
	assert.InDelta(t, 0.02, EffectiveAlpha(0.05, 0.1, 0.2), 1e-9)
	assert.InDelta(t, 0.05, EffectiveAlpha(0.05, 0.5, 1.0), 1e-9)
}

func TestAlphaWealthFileSpendThenEarnRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wealth.json")
	w := OpenAlphaWealthFile(path)
	cfg := DefaultAlphaInvestingConfig()
	cfg.InitialWealth = 1.0
	cfg.AlphaSpend = 0.5
	cfg.AlphaEarn = 0.3

	spent, err := w.Spend(cfg)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, spent.Wealth, 1e-9)

	earned, err := w.Earn(cfg)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, earned.Wealth, 1e-9)
}
