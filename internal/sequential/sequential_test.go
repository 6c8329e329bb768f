package sequential

import (
	"math/rand"
	"testing"

	"github.com/process-triage/pt-core/internal/decision"
	"github.com/process-triage/pt-core/internal/inference"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

func testLoss() decision.LossMatrix {
	return decision.LossMatrix{
		Useful:    decision.LossRow{Keep: 0, Kill: 100},
		UsefulBad: decision.LossRow{Keep: 2, Kill: 40},
		Abandoned: decision.LossRow{Keep: 5, Kill: 5},
		Zombie:    decision.LossRow{Keep: 5, Kill: 0.1},
	}
}

func testFeasible() decision.Feasibility {
	return decision.Feasibility{decision.ActionKeep: true, decision.ActionKill: true}
}

func TestActNowWhenConfident(t *testing.T) {
	post := inference.Posterior{PUseful: 0.95, PUsefulBad: 0.03, PAbandoned: 0.01, PZombie: 0.01}
	// A single cheap probe that can't change the outcome (outcome
	// posterior equals prior posterior): VOI should be ~0 (non-negative).
	probes := []Probe{{
		Name: "cheap_probe", Cost: 1,
		Outcomes: []ProbeOutcome{{Probability: 1.0, Posterior: post}},
	}}
	d, err := DecideSequential(post, testLoss(), testFeasible(), probes)
	require.NoError(t, err)
	assert.True(t, d.ActNow)
}

func TestProbeRecommendedWhenInformative(t *testing.T) {
	post := inference.Posterior{PUseful: 0.5, PZombie: 0.5}
	// A probe that, with even odds, resolves the ambiguity cleanly to
	// either useful or zombie, crossing the keep/kill decision boundary
	// in one outcome: its expected loss after should be substantially
	// lower than loss-now.
	probes := []Probe{{
		Name: "resolving_probe", Cost: 1,
		Outcomes: []ProbeOutcome{
			{Probability: 0.5, Posterior: inference.Posterior{PUseful: 0.99, PZombie: 0.01}},
			{Probability: 0.5, Posterior: inference.Posterior{PUseful: 0.01, PZombie: 0.99}},
		},
	}}
	d, err := DecideSequential(post, testLoss(), testFeasible(), probes)
	require.NoError(t, err)
	assert.False(t, d.ActNow)
	require.NotNil(t, d.BestProbe)
	assert.Equal(t, "resolving_probe", d.BestProbe.Probe.Name)
	require.NotNil(t, d.ESN)
	assert.GreaterOrEqual(t, *d.ESN, 1.0)
}

func TestPopulationAllocatorRespectsBudget(t *testing.T) {
	candidates := []CandidateProbe{
		{CandidateID: "a", ProbeName: "p1", VOI: -5, WallTimeCost: 2, OverheadCost: 0.1},
		{CandidateID: "b", ProbeName: "p1", VOI: -3, WallTimeCost: 2, OverheadCost: 0.1},
		{CandidateID: "c", ProbeName: "p1", VOI: -1, WallTimeCost: 2, OverheadCost: 0.1},
	}
	opts := PopulationAllocationOptions{Budget: Budget{WallTimeSeconds: 3, OverheadFraction: 1}}
	selected := AllocatePopulationProbes(candidates, opts)

	var totalWall float64
	for _, s := range selected {
		totalWall += s.WallTimeCost
	}
	assert.LessOrEqual(t, totalWall, 3.0)
	// Highest |VOI| (most negative) should be selected first: candidate a.
	require.NotEmpty(t, selected)
	assert.Equal(t, "a", selected[0].CandidateID)
}

func TestPopulationAllocatorDeterministicTieBreak(t *testing.T) {
	candidates := []CandidateProbe{
		{CandidateID: "z", ProbeName: "p", VOI: -1, WallTimeCost: 1, OverheadCost: 0.1},
		{CandidateID: "a", ProbeName: "p", VOI: -1, WallTimeCost: 1, OverheadCost: 0.1},
	}
	opts := PopulationAllocationOptions{Budget: Budget{WallTimeSeconds: 10, OverheadFraction: 10}}
	selected := AllocatePopulationProbes(candidates, opts)
	require.Len(t, selected, 2)
	assert.Equal(t, "a", selected[0].CandidateID)
	assert.Equal(t, "z", selected[1].CandidateID)
}

func TestSubmodularGreedyAchievesNearOptimalBound(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 20; trial++ {
		features := []FeatureKey{"f0", "f1", "f2", "f3", "f4"}
		weights := map[FeatureKey]float64{}
		for _, f := range features {
			weights[f] = rng.Float64()*9 + 1
		}
		var candidates []ProbeProfile
		for i := 0; i < 5; i++ {
			var fs []FeatureKey
			for _, f := range features {
				if rng.Float64() < 0.5 {
					fs = append(fs, f)
				}
			}
			candidates = append(candidates, ProbeProfile{
				Name: string(rune('A' + i)), Cost: rng.Float64()*4 + 1, Features: fs,
			})
		}
		budget := 6.0
		greedy := GreedySelectWithBudget(candidates, weights, budget)
		optimal := bruteForceBestUnderBudget(candidates, weights, budget)
		if optimal == 0 {
			continue
		}
		assert.GreaterOrEqual(t, greedy.Utility, 0.9*optimal, "trial %d: greedy=%v optimal=%v", trial, greedy.Utility, optimal)
	}
}
