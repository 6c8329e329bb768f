package inference

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPriors() Priors {
	mk := func(pi float64) ClassPriors {
		return ClassPriors{
			ClassPrior: pi,
			CPUActive:  BetaParams{Alpha: 2, Beta: 5},
			Runtime:    GammaParams{Shape: 2, Rate: 0.01},
			Orphan:     BetaParams{Alpha: 1, Beta: 4},
			TTY:        BetaParams{Alpha: 1, Beta: 4},
			Network:    BetaParams{Alpha: 1, Beta: 4},
			IOActive:   BetaParams{Alpha: 1, Beta: 4},
		}
	}
	return Priors{ByClass: [numClasses]ClassPriors{
		ClassUseful:    mk(0.4),
		ClassUsefulBad: mk(0.1),
		ClassAbandoned: mk(0.3),
		ClassZombie:    mk(0.2),
	}}
}

func TestEmptyEvidenceYieldsPriors(t *testing.T) {
	priors := testPriors()
	eng := NewEngine()
	post, ledger, err := eng.Compute(priors, Evidence{})
	require.NoError(t, err)
	assert.Empty(t, ledger)
	assert.InDelta(t, 0.4, post.PUseful, 1e-9)
	assert.InDelta(t, 0.1, post.PUsefulBad, 1e-9)
	assert.InDelta(t, 0.3, post.PAbandoned, 1e-9)
	assert.InDelta(t, 0.2, post.PZombie, 1e-9)
}

func TestPosteriorSumsToOne(t *testing.T) {
	priors := testPriors()
	eng := NewEngine()
	frac := 0.3
	runtime := 120.0
	orphan := true
	post, _, err := eng.Compute(priors, Evidence{CPU: &CPUOccupancy{Fraction: &frac}, RuntimeSeconds: &runtime, Orphan: &orphan})
	require.NoError(t, err)
	sum := post.PUseful + post.PUsefulBad + post.PAbandoned + post.PZombie
	assert.InDelta(t, 1.0, sum, 1e-9)
	for _, v := range []float64{post.PUseful, post.PUsefulBad, post.PAbandoned, post.PZombie} {
		assert.False(t, math.IsNaN(v))
		assert.False(t, math.IsInf(v, 0))
	}
}

func TestDeterministic(t *testing.T) {
	priors := testPriors()
	eng := NewEngine()
	frac := 0.3
	ev := Evidence{CPU: &CPUOccupancy{Fraction: &frac}}
	p1, _, err1 := eng.Compute(priors, ev)
	p2, _, err2 := eng.Compute(priors, ev)
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, p1, p2)
}

func TestBoundaryCPUValuesIgnored(t *testing.T) {
	priors := testPriors()
	eng := NewEngine()
	zero := 0.0
	post, ledger, err := eng.Compute(priors, Evidence{CPU: &CPUOccupancy{Fraction: &zero}})
	require.NoError(t, err)
	assert.Empty(t, ledger)
	assert.InDelta(t, 0.4, post.PUseful, 1e-9)
}

func TestNegativeRuntimeIgnored(t *testing.T) {
	priors := testPriors()
	eng := NewEngine()
	neg := -5.0
	_, ledger, err := eng.Compute(priors, Evidence{RuntimeSeconds: &neg})
	require.NoError(t, err)
	assert.Empty(t, ledger)
}

func TestLedgerSumsToLogPosteriorMinusLogPrior(t *testing.T) {
	priors := testPriors()
	eng := NewEngine()
	frac := 0.3
	orphan := true
	post, ledger, err := eng.Compute(priors, Evidence{CPU: &CPUOccupancy{Fraction: &frac}, Orphan: &orphan})
	require.NoError(t, err)

	for _, c := range AllClasses {
		logPrior := math.Log(priors.ByClass[c].ClassPrior)
		var ledgerSum float64
		for _, entry := range ledger {
			ledgerSum += entry.LogLikPerClass[c]
		}
		// log_posterior (unnormalized) = log_prior + ledger sum; after
		// normalization post.LogByClass(c) = unnormalized - logZ. We can't
		// recover logZ here without recomputing, so check the *relative*
		// identity across two classes instead, which is normalization-
		// invariant: (logPost_c - logPost_useful) == (logPrior_c - logPrior_useful) + (ledgerSum_c - ledgerSum_useful).
		_ = logPrior
		_ = ledgerSum
	}

	// Direct relative-identity check between abandoned and useful.
	var ledgerSumAbandoned, ledgerSumUseful float64
	for _, entry := range ledger {
		ledgerSumAbandoned += entry.LogLikPerClass[ClassAbandoned]
		ledgerSumUseful += entry.LogLikPerClass[ClassUseful]
	}
	logPriorAbandoned := math.Log(priors.ByClass[ClassAbandoned].ClassPrior)
	logPriorUseful := math.Log(priors.ByClass[ClassUseful].ClassPrior)

	lhs := post.LogPAbandoned - post.LogPUseful
	rhs := (logPriorAbandoned - logPriorUseful) + (ledgerSumAbandoned - ledgerSumUseful)
	assert.InDelta(t, rhs, lhs, 1e-9)
}

func TestBMASingleModelUnchanged(t *testing.T) {
	p := Posterior{PUseful: 0.5, PUsefulBad: 0.2, PAbandoned: 0.2, PZombie: 0.1,
		LogPUseful: math.Log(0.5), LogPUsefulBad: math.Log(0.2), LogPAbandoned: math.Log(0.2), LogPZombie: math.Log(0.1)}
	mix, err := BayesianModelAverage([]WeightedPosterior{{Name: "m", Weight: 3.0, Posterior: p}})
	require.NoError(t, err)
	assert.Equal(t, p, mix)
}

func TestBMAInvalidWeights(t *testing.T) {
	p := Posterior{PUseful: 1}
	_, err := BayesianModelAverage([]WeightedPosterior{{Name: "m", Weight: -1, Posterior: p}})
	assert.ErrorIs(t, err, ErrInvalidWeights)
}
