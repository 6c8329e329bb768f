package decision

import "sort"

// KillCandidate is one candidate's e-value input to FDR control: a
// non-negative "e-value" (an anomaly martingale gate's terminal value,
// or exp(LogBayesFactor) from the SPRT layer) that is large when the
// candidate looks genuinely anomalous.
type KillCandidate struct {
	ID      string
	EValue  float64
}

// FDRMethod selects between the e-BH and e-BY procedures.
type FDRMethod int

const (
	FDRMethodBH FDRMethod = iota
	FDRMethodBY
)

// FDRConfig configures the false discovery rate control pass applied
// across a batch of candidates whose individual kill decisions already
// fired a martingale anomaly gate.
type FDRConfig struct {
	Method FDRMethod
	Alpha  float64
}

// FDRResult names which candidates survive FDR control.
type FDRResult struct {
	Rejected   []string // candidate IDs cleared to proceed
	Retained   int      // number of rejections (len(Rejected), kept for symmetry with source naming)
	Threshold  float64  // the e-value cutoff actually used
}

// ApplyEBH runs the e-value Benjamini-Hochberg procedure (Wang & Ramdas):
// sort e-values descending, find the largest k such that
// e_(k) >= n/(k*alpha), and reject (clear for action) the top k.
// Valid under arbitrary dependence between candidates.
func ApplyEBH(candidates []KillCandidate, alpha float64) FDRResult {
	return applyEValueProcedure(candidates, alpha, 1.0)
}

// ApplyEBY runs the e-BY variant, which multiplies the BH cutoff by the
// harmonic correction factor c_n = sum_{i=1}^n 1/i. The stricter cutoff
// means e-BY never rejects more candidates than e-BH on the same input.
func ApplyEBY(candidates []KillCandidate, alpha float64) FDRResult {
	n := len(candidates)
	if n == 0 {
		return FDRResult{}
	}
	var harmonic float64
	for i := 1; i <= n; i++ {
		harmonic += 1.0 / float64(i)
	}
	return applyEValueProcedure(candidates, alpha, harmonic)
}

func applyEValueProcedure(candidates []KillCandidate, alpha, correction float64) FDRResult {
	n := len(candidates)
	if n == 0 || alpha <= 0 {
		return FDRResult{}
	}
	sorted := make([]KillCandidate, n)
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].EValue > sorted[j].EValue })

	k := 0
	for i := n; i >= 1; i-- {
		cutoff := float64(n) * correction / (float64(i) * alpha)
		if sorted[i-1].EValue >= cutoff {
			k = i
			break
		}
	}
	if k == 0 {
		return FDRResult{Threshold: float64(n) * correction / alpha}
	}
	rejected := make([]string, k)
	for i := 0; i < k; i++ {
		rejected[i] = sorted[i].ID
	}
	return FDRResult{
		Rejected:  rejected,
		Retained:  k,
		Threshold: float64(n) * correction / (float64(k) * alpha),
	}
}

// ApplyFDR dispatches to ApplyEBH or ApplyEBY per cfg.Method.
func ApplyFDR(candidates []KillCandidate, cfg FDRConfig) FDRResult {
	switch cfg.Method {
	case FDRMethodBY:
		return ApplyEBY(candidates, cfg.Alpha)
	default:
		return ApplyEBH(candidates, cfg.Alpha)
	}
}

// EffectiveAlpha applies spec.md's conservative rule for combining a
// fixed FDR alpha with an alpha-investing wealth budget: the effective
// alpha is whichever is smaller, never a product or a replacement.
func EffectiveAlpha(configuredAlpha, alphaSpend, wealth float64) float64 {
	spend := alphaSpend * wealth
	if spend < configuredAlpha {
		return spend
	}
	return configuredAlpha
}
