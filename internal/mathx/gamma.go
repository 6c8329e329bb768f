package mathx

import "math"

// LogGammaPDF returns ln(f(x; shape, rate)) for the Gamma distribution
// parameterized by shape (k) and rate (theta^-1). x <= 0 yields -Inf,
// matching the "runtime seconds <= 0 maps to a degenerate likelihood"
// treatment used by the boundary rule for non-positive runtimes (the
// caller is responsible for mapping runtime<=0 to a skipped feature
// per the posterior engine's boundary contract; this function is the
// raw density used only when runtime > 0).
func LogGammaPDF(x, shape, rate float64) float64 {
	if shape <= 0 || rate <= 0 {
		return math.NaN()
	}
	if x <= 0 {
		return math.Inf(-1)
	}
	return shape*math.Log(rate) + (shape-1)*math.Log(x) - rate*x - LogGamma(shape)
}

// GammaMean returns shape/rate.
func GammaMean(shape, rate float64) float64 {
	return shape / rate
}
