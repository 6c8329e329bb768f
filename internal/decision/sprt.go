package decision

import (
	"math"

	"github.com/process-triage/pt-core/internal/mathx"
)

// SPRTConfig configures a mixture sequential probability ratio test: the
// null hypothesis is a fixed Bernoulli rate p0, the alternative is a
// Beta(alpha, beta) mixture over the rate, so the alternative's marginal
// likelihood is the closed-form Beta-Binomial rather than a second fixed
// point alternative. This avoids picking an arbitrary p1.
type SPRTConfig struct {
	NullP             float64
	AlternativeAlpha  float64
	AlternativeBeta   float64
	TypeIError        float64 // alpha: false-positive rate
	TypeIIError       float64 // beta: false-negative rate
}

// DefaultSPRTConfig mirrors a conventional 5%/20% error budget around the
// caller-supplied null "background" Bernoulli rate nullP, with a weakly informative
// Beta(1,1) mixture over the alternative.
func DefaultSPRTConfig(nullP float64) SPRTConfig {
	return SPRTConfig{
		NullP:            nullP,
		AlternativeAlpha: 1,
		AlternativeBeta:  1,
		TypeIError:       0.05,
		TypeIIError:      0.20,
	}
}

// SPRTBoundary is the closed enumeration of ways a sequential test can
// resolve.
type SPRTBoundary string

const (
	SPRTContinue SPRTBoundary = "continue"
	SPRTUpper    SPRTBoundary = "upper" // reject null, favor alternative
	SPRTLower    SPRTBoundary = "lower" // accept null
)

// SPRTState is the running state of one mixture-SPRT instance.
type SPRTState struct {
	Successes int
	Failures  int
	LogLR     float64
	Boundary  SPRTBoundary
}

// logBetaBinomialMarginal returns the log marginal likelihood of k
// successes in n Bernoulli trials under a Beta(alpha, beta) mixture over
// the success rate, with the n-choose-k term omitted (it cancels against
// the null's own n-choose-k in the likelihood ratio).
func logBetaBinomialMarginal(k, n int, alpha, beta float64) float64 {
	return mathx.LogBeta(float64(k)+alpha, float64(n-k)+beta) - mathx.LogBeta(alpha, beta)
}

// logBernoulliNoChoose returns log P(k successes in n trials | p0) with
// the n-choose-k term omitted, to match logBetaBinomialMarginal.
func logBernoulliNoChoose(k, n int, p0 float64) float64 {
	if p0 <= 0 || p0 >= 1 {
		return math.NaN()
	}
	return float64(k)*math.Log(p0) + float64(n-k)*math.Log1p(-p0)
}

// UpdateSPRT folds one more Bernoulli observation into state and checks
// the Wald boundaries. A boundary crossing freezes Boundary for the
// caller; further updates after a crossing still accumulate but the test
// is considered resolved.
func UpdateSPRT(state SPRTState, cfg SPRTConfig, success bool) SPRTState {
	if success {
		state.Successes++
	} else {
		state.Failures++
	}
	n := state.Successes + state.Failures
	state.LogLR = logBetaBinomialMarginal(state.Successes, n, cfg.AlternativeAlpha, cfg.AlternativeBeta) -
		logBernoulliNoChoose(state.Successes, n, cfg.NullP)

	upper := math.Log((1 - cfg.TypeIIError) / cfg.TypeIError)
	lower := math.Log(cfg.TypeIIError / (1 - cfg.TypeIError))
	switch {
	case state.LogLR >= upper:
		state.Boundary = SPRTUpper
	case state.LogLR <= lower:
		state.Boundary = SPRTLower
	default:
		state.Boundary = SPRTContinue
	}
	return state
}

// MulticlassResult is the outcome of EvaluateMulticlassLogBayesFactor:
// the log Bayes factor between the two largest posterior masses in logPosterior (log-domain, any normalization)
// and reports whether it crosses the configured decision threshold. A
// crossing means the leading class is decisively ahead of the runner-up
// and the decision can be frozen without further probing.
type MulticlassResult struct {
	LeadingClass    int
	RunnerUpClass   int
	LogBayesFactor  float64
	Crossed         bool
}

// EvaluateMulticlassLogBayesFactor finds the two largest entries in
// logPosterior and compares their difference (the log Bayes factor of
// leading vs. runner-up) against threshold.
func EvaluateMulticlassLogBayesFactor(logPosterior []float64, threshold float64) MulticlassResult {
	if len(logPosterior) < 2 {
		return MulticlassResult{}
	}
	lead, runnerUp := 0, 1
	if logPosterior[1] > logPosterior[0] {
		lead, runnerUp = 1, 0
	}
	for i := 2; i < len(logPosterior); i++ {
		if logPosterior[i] > logPosterior[lead] {
			runnerUp = lead
			lead = i
		} else if logPosterior[i] > logPosterior[runnerUp] {
			runnerUp = i
		}
	}
	lbf := logPosterior[lead] - logPosterior[runnerUp]
	return MulticlassResult{
		LeadingClass:   lead,
		RunnerUpClass:  runnerUp,
		LogBayesFactor: lbf,
		Crossed:        lbf >= threshold,
	}
}
