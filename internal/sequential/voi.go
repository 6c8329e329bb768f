// Package sequential implements the Sequential/VOI Layer (C3): the
// per-candidate act-now-vs-probe rule, the population probe allocator,
// and submodular probe bundling.
package sequential

import (
	"errors"
	"math"
	"sort"

	"github.com/process-triage/pt-core/internal/decision"
	"github.com/process-triage/pt-core/internal/inference"
)

// ErrNoProbes is returned when a candidate has no probes to evaluate.
var ErrNoProbes = errors.New("sequential: no probes available")

// ProbeOutcome is one possible result of running a probe, with the
// probability of that outcome and the posterior it would produce.
type ProbeOutcome struct {
	Probability float64
	Posterior   inference.Posterior
}

// Probe is a candidate probe with a predicted outcome distribution and a
// cost (e.g. wall-clock seconds, or an abstract unit the caller defines).
type Probe struct {
	Name     string
	Cost     float64
	Outcomes []ProbeOutcome
}

// VOIResult is the per-probe value-of-information evaluation.
type VOIResult struct {
	Probe      Probe
	ExpectedLossAfter float64
	VOI        float64
}

// Decision is the outcome of the per-candidate act-now-vs-probe rule.
type Decision struct {
	ActNow       bool
	LossNow      float64
	BestProbe    *VOIResult
	AllProbes    []VOIResult
	ESN          *float64
}

// DecideSequential computes, for each candidate probe, the expected
// posterior loss via one-step lookahead (marginalize over the probe's
// predicted outcome distribution, update the posterior, take the
// minimum-loss action), and returns act_now=true when every probe's VOI
// is non-negative.
func DecideSequential(posterior inference.Posterior, loss decision.LossMatrix, feasible decision.Feasibility, probes []Probe) (Decision, error) {
	now, err := decision.ExpectedLossRule(posterior, loss, feasible)
	if err != nil {
		return Decision{}, err
	}
	lossNow := minLoss(now.ExpectedLosses)

	var results []VOIResult
	for _, p := range probes {
		elAfter, err := expectedLossAfterProbe(p, loss, feasible)
		if err != nil {
			continue
		}
		results = append(results, VOIResult{Probe: p, ExpectedLossAfter: elAfter, VOI: elAfter - lossNow})
	}
	if len(probes) > 0 && len(results) == 0 {
		return Decision{}, ErrNoProbes
	}

	d := Decision{LossNow: lossNow, AllProbes: results}
	if len(results) == 0 {
		d.ActNow = true
		return d, nil
	}

	best := results[0]
	for _, r := range results[1:] {
		if r.VOI < best.VOI {
			best = r
		}
	}

	if best.VOI >= 0 {
		d.ActNow = true
		return d, nil
	}
	d.ActNow = false
	d.BestProbe = &best

	if esn := estimateESN(now.ExpectedLosses, &best); esn != nil {
		d.ESN = esn
	}
	return d, nil
}

// expectedLossAfterProbe marginalizes expected loss over a probe's
// predicted outcome distribution.
func expectedLossAfterProbe(p Probe, loss decision.LossMatrix, feasible decision.Feasibility) (float64, error) {
	if len(p.Outcomes) == 0 {
		return 0, ErrNoProbes
	}
	var sum, probMass float64
	for _, outcome := range p.Outcomes {
		r, err := decision.ExpectedLossRule(outcome.Posterior, loss, feasible)
		if err != nil {
			continue
		}
		sum += outcome.Probability * minLoss(r.ExpectedLosses)
		probMass += outcome.Probability
	}
	if probMass <= 0 {
		return 0, ErrNoProbes
	}
	return sum, nil
}

func minLoss(els []decision.ExpectedLoss) float64 {
	m := math.Inf(1)
	for _, e := range els {
		if e.Loss < m {
			m = e.Loss
		}
	}
	return m
}

// estimateESN returns the expected-samples-to-decision estimate from the
// two smallest per-action losses and the best probe's marginal gain:
// (gap / expected_gain).max(1.0), or nil when the best probe's VOI >= 0.
func estimateESN(els []decision.ExpectedLoss, best *VOIResult) *float64 {
	if best == nil || best.VOI >= 0 {
		return nil
	}
	sorted := make([]decision.ExpectedLoss, len(els))
	copy(sorted, els)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Loss < sorted[j].Loss })
	if len(sorted) < 2 {
		return nil
	}
	gap := sorted[1].Loss - sorted[0].Loss
	expectedGain := math.Max(sorted[0].Loss-best.ExpectedLossAfter, 1e-6)
	esn := math.Max(gap/expectedGain, 1.0)
	return &esn
}
