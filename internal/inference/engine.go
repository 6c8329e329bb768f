package inference

import (
	"errors"
	"fmt"
	"math"

	"github.com/process-triage/pt-core/internal/mathx"
)

// ErrNonFinitePosterior is returned when a candidate's posterior contains
// a NaN or infinite component. Per spec this is a hard error that aborts
// the candidate; callers must never silently clamp it away.
var ErrNonFinitePosterior = errors.New("inference: posterior has non-finite component")

// Engine computes posteriors from priors and evidence. It holds no
// mutable state and is safe for concurrent use by multiple workers.
type Engine struct{}

// NewEngine constructs a Posterior Engine.
func NewEngine() *Engine { return &Engine{} }

// Compute evaluates the closed-form log-domain posterior for one
// candidate. Evidence features absent, or mapped to the boundary "ignore"
// rule (CPU exactly 0 or 1, runtime <= 0), contribute nothing and are
// omitted from the returned ledger.
func (e *Engine) Compute(priors Priors, ev Evidence) (Posterior, EvidenceLedger, error) {
	var ledger EvidenceLedger
	logPosterior := [numClasses]float64{}
	for i, cp := range priors.ByClass {
		if cp.ClassPrior <= 0 {
			logPosterior[i] = math.Inf(-1)
		} else {
			logPosterior[i] = math.Log(cp.ClassPrior)
		}
	}

	addFeature := func(name string, perClass [numClasses]float64) error {
		for _, v := range perClass {
			if math.IsNaN(v) {
				return fmt.Errorf("inference: feature %q produced NaN likelihood: %w", name, ErrNonFinitePosterior)
			}
		}
		for i := range logPosterior {
			logPosterior[i] += perClass[i]
		}
		ledger = append(ledger, EvidenceLedgerEntry{FeatureName: name, LogLikPerClass: perClass})
		return nil
	}

	if ev.CPU != nil {
		if perClass, ok := cpuLogLik(priors, *ev.CPU); ok {
			if err := addFeature("cpu_active_fraction", perClass); err != nil {
				return Posterior{}, nil, err
			}
		}
	}
	if ev.RuntimeSeconds != nil && *ev.RuntimeSeconds > 0 {
		perClass := runtimeLogLik(priors, *ev.RuntimeSeconds)
		if err := addFeature("runtime_seconds", perClass); err != nil {
			return Posterior{}, nil, err
		}
	}
	if ev.Orphan != nil {
		if err := addFeature("orphan", flagLogLik(priors, flagOrphan, *ev.Orphan)); err != nil {
			return Posterior{}, nil, err
		}
	}
	if ev.HasTTY != nil {
		if err := addFeature("has_tty", flagLogLik(priors, flagTTY, *ev.HasTTY)); err != nil {
			return Posterior{}, nil, err
		}
	}
	if ev.HasNetwork != nil {
		if err := addFeature("has_network", flagLogLik(priors, flagNetwork, *ev.HasNetwork)); err != nil {
			return Posterior{}, nil, err
		}
	}
	if ev.IOActive != nil {
		if err := addFeature("io_active", flagLogLik(priors, flagIOActive, *ev.IOActive)); err != nil {
			return Posterior{}, nil, err
		}
	}
	if ev.CommandCategory != nil {
		if perClass, ok := categoryLogLik(priors, *ev.CommandCategory); ok {
			if err := addFeature("command_category", perClass); err != nil {
				return Posterior{}, nil, err
			}
		}
	}

	posterior, err := normalize(logPosterior)
	if err != nil {
		return Posterior{}, nil, err
	}
	return posterior, ledger, nil
}

// normalize exponentiates a log-posterior vector via log-sum-exp and
// validates the numerical contract: every component finite, sum to 1
// within 1e-9, every component within [-1e-12, 1+1e-12] before clamping.
func normalize(logPosterior [numClasses]float64) (Posterior, error) {
	for _, v := range logPosterior {
		if math.IsNaN(v) {
			return Posterior{}, ErrNonFinitePosterior
		}
	}
	logZ := mathx.LogSumExp(logPosterior[:])
	if math.IsNaN(logZ) || math.IsInf(logZ, 1) {
		return Posterior{}, ErrNonFinitePosterior
	}
	var normalized [numClasses]float64
	for i, v := range logPosterior {
		normalized[i] = v - logZ
	}

	var p Posterior
	p.LogPUseful = normalized[ClassUseful]
	p.LogPUsefulBad = normalized[ClassUsefulBad]
	p.LogPAbandoned = normalized[ClassAbandoned]
	p.LogPZombie = normalized[ClassZombie]
	p.PUseful = math.Exp(p.LogPUseful)
	p.PUsefulBad = math.Exp(p.LogPUsefulBad)
	p.PAbandoned = math.Exp(p.LogPAbandoned)
	p.PZombie = math.Exp(p.LogPZombie)
	p.LogOddsAbandonedVsUseful = p.LogPAbandoned - p.LogPUseful

	sum := p.PUseful + p.PUsefulBad + p.PAbandoned + p.PZombie
	if math.IsNaN(sum) || math.Abs(sum-1.0) > 1e-9 {
		return Posterior{}, fmt.Errorf("inference: posterior sum %.12f deviates from 1.0: %w", sum, ErrNonFinitePosterior)
	}
	const bound = 1e-12
	for _, v := range [numClasses]float64{p.PUseful, p.PUsefulBad, p.PAbandoned, p.PZombie} {
		if v < -bound || v > 1+bound {
			return Posterior{}, ErrNonFinitePosterior
		}
	}
	p.PUseful = math.Max(0, math.Min(1, p.PUseful))
	p.PUsefulBad = math.Max(0, math.Min(1, p.PUsefulBad))
	p.PAbandoned = math.Max(0, math.Min(1, p.PAbandoned))
	p.PZombie = math.Max(0, math.Min(1, p.PZombie))

	return p, nil
}
