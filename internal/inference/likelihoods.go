package inference

import (
	"math"

	"github.com/process-triage/pt-core/internal/mathx"
)

type flagKind int

const (
	flagOrphan flagKind = iota
	flagTTY
	flagNetwork
	flagIOActive
)

func flagParams(cp ClassPriors, kind flagKind) BetaParams {
	switch kind {
	case flagOrphan:
		return cp.Orphan
	case flagTTY:
		return cp.TTY
	case flagNetwork:
		return cp.Network
	case flagIOActive:
		return cp.IOActive
	default:
		return BetaParams{}
	}
}

// flagLogLik treats a boolean flag as a Bernoulli draw with success
// probability equal to the Beta prior's mean, per class, in log space.
func flagLogLik(priors Priors, kind flagKind, observed bool) [numClasses]float64 {
	var out [numClasses]float64
	for i, cp := range priors.ByClass {
		bp := flagParams(cp, kind)
		p := mathx.BetaMean(bp.Alpha, bp.Beta)
		if observed {
			out[i] = safeLog(p)
		} else {
			out[i] = safeLog(1 - p)
		}
	}
	return out
}

// cpuLogLik evaluates the CPU-active-fraction feature against each
// class's Beta prior. Boundary values (fraction exactly 0 or 1) map to
// "ignore this feature" per the spec's numerical contract, signaled by
// the bool return being false.
func cpuLogLik(priors Priors, cpu CPUOccupancy) ([numClasses]float64, bool) {
	var out [numClasses]float64
	switch {
	case cpu.Fraction != nil:
		x := *cpu.Fraction
		if x <= 0 || x >= 1 {
			return out, false
		}
		for i, cp := range priors.ByClass {
			out[i] = mathx.LogBetaPDF(x, cp.CPUActive.Alpha, cp.CPUActive.Beta)
		}
		return out, true
	case cpu.K != nil && cpu.N != nil:
		k, n := *cpu.K, *cpu.N
		if n <= 0 || k < 0 || k > n {
			return out, false
		}
		for i, cp := range priors.ByClass {
			// Beta-Binomial marginal likelihood in log space:
			// log C(n,k) + logBeta(k+alpha, n-k+beta) - logBeta(alpha, beta).
			out[i] = mathx.LogBinomial(n, k) +
				mathx.LogBeta(float64(k)+cp.CPUActive.Alpha, float64(n-k)+cp.CPUActive.Beta) -
				mathx.LogBeta(cp.CPUActive.Alpha, cp.CPUActive.Beta)
		}
		return out, true
	default:
		return out, false
	}
}

// runtimeLogLik evaluates process runtime against each class's Gamma
// prior. Caller guarantees runtimeSeconds > 0 (the boundary rule for
// runtime <= 0 is enforced by Engine.Compute before calling this).
func runtimeLogLik(priors Priors, runtimeSeconds float64) [numClasses]float64 {
	var out [numClasses]float64
	for i, cp := range priors.ByClass {
		out[i] = mathx.LogGammaPDF(runtimeSeconds, cp.Runtime.Shape, cp.Runtime.Rate)
	}
	return out
}

// categoryLogLik evaluates the optional command-category tag against
// each class's multinomial, when configured. Returns ok=false when no
// class defines the category (the feature is skipped entirely, matching
// the "optional command-category multinomial" contract).
func categoryLogLik(priors Priors, category string) ([numClasses]float64, bool) {
	var out [numClasses]float64
	any := false
	for i, cp := range priors.ByClass {
		if cp.CommandCategory == nil {
			continue
		}
		if p, ok := cp.CommandCategory[category]; ok && p > 0 {
			out[i] = safeLog(p)
			any = true
		} else {
			out[i] = safeLog(1e-9) // unseen category under this class: negligible, not zero
		}
	}
	if !any {
		return out, false
	}
	return out, true
}

func safeLog(p float64) float64 {
	if p <= 0 {
		return math.Inf(-1)
	}
	return math.Log(p)
}
