package inference

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidWeights is returned when BMA weights are non-finite,
// negative, or sum to zero or less.
var ErrInvalidWeights = errors.New("inference: invalid bma weights")

// ErrPosteriorNotNormalized is returned when an input posterior to BMA
// does not itself sum to 1 within tolerance.
var ErrPosteriorNotNormalized = errors.New("inference: input posterior not normalized")

// WeightedPosterior is one (name, weight, posterior) input to
// Bayesian Model Averaging.
type WeightedPosterior struct {
	Name      string
	Weight    float64
	Posterior Posterior
}

// BayesianModelAverage returns the weight-normalized mixture of the
// given posteriors. A single model of weight > 0 returns that model's
// posterior unchanged (idempotence property).
func BayesianModelAverage(models []WeightedPosterior) (Posterior, error) {
	if len(models) == 0 {
		return Posterior{}, fmt.Errorf("inference: bma requires at least one model: %w", ErrInvalidWeights)
	}
	var sumW float64
	for _, m := range models {
		if math.IsNaN(m.Weight) || math.IsInf(m.Weight, 0) || m.Weight < 0 {
			return Posterior{}, fmt.Errorf("inference: model %q has invalid weight %v: %w", m.Name, m.Weight, ErrInvalidWeights)
		}
		sum := m.Posterior.PUseful + m.Posterior.PUsefulBad + m.Posterior.PAbandoned + m.Posterior.PZombie
		if math.IsNaN(sum) || math.Abs(sum-1.0) > 1e-9 {
			return Posterior{}, fmt.Errorf("inference: model %q posterior sums to %.12f: %w", m.Name, sum, ErrPosteriorNotNormalized)
		}
		sumW += m.Weight
	}
	if sumW <= 0 {
		return Posterior{}, fmt.Errorf("inference: weights sum to %v: %w", sumW, ErrInvalidWeights)
	}
	if len(models) == 1 {
		// A single model returns its posterior unchanged, bit-exact.
		return models[0].Posterior, nil
	}

	var mix Posterior
	for _, m := range models {
		w := m.Weight / sumW
		mix.PUseful += w * m.Posterior.PUseful
		mix.PUsefulBad += w * m.Posterior.PUsefulBad
		mix.PAbandoned += w * m.Posterior.PAbandoned
		mix.PZombie += w * m.Posterior.PZombie
	}
	mix.LogPUseful = math.Log(mix.PUseful)
	mix.LogPUsefulBad = math.Log(mix.PUsefulBad)
	mix.LogPAbandoned = math.Log(mix.PAbandoned)
	mix.LogPZombie = math.Log(mix.PZombie)
	mix.LogOddsAbandonedVsUseful = mix.LogPAbandoned - mix.LogPUseful
	return mix, nil
}
