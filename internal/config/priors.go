package config

import (
	"fmt"
	"math"

	"github.com/process-triage/pt-core/internal/inference"
)

// BetaParamsDoc is the on-disk form of a Beta(alpha, beta) conjugate
// prior.
type BetaParamsDoc struct {
	Alpha float64 `json:"alpha" yaml:"alpha"`
	Beta  float64 `json:"beta" yaml:"beta"`
}

// GammaParamsDoc is the on-disk form of a Gamma(shape, rate) conjugate
// prior.
type GammaParamsDoc struct {
	Shape float64 `json:"shape" yaml:"shape"`
	Rate  float64 `json:"rate" yaml:"rate"`
}

// ClassPriorsDoc is the on-disk form of every conjugate-prior parameter
// for one lifecycle class.
type ClassPriorsDoc struct {
	ClassPrior      float64            `json:"class_prior" yaml:"class_prior"`
	CPUActive       BetaParamsDoc      `json:"cpu_active" yaml:"cpu_active"`
	Runtime         GammaParamsDoc     `json:"runtime" yaml:"runtime"`
	Orphan          BetaParamsDoc      `json:"orphan" yaml:"orphan"`
	TTY             BetaParamsDoc      `json:"tty" yaml:"tty"`
	Network         BetaParamsDoc      `json:"network" yaml:"network"`
	IOActive        BetaParamsDoc      `json:"io_active" yaml:"io_active"`
	CommandCategory map[string]float64 `json:"command_category,omitempty" yaml:"command_category,omitempty"`
}

// PriorsDoc is the on-disk schema of priors.json: class priors and
// conjugate-prior parameters for the four lifecycle classes.
type PriorsDoc struct {
	SchemaVersion string         `json:"schema_version" yaml:"schema_version"`
	Useful        ClassPriorsDoc `json:"useful" yaml:"useful"`
	UsefulBad     ClassPriorsDoc `json:"useful_bad" yaml:"useful_bad"`
	Abandoned     ClassPriorsDoc `json:"abandoned" yaml:"abandoned"`
	Zombie        ClassPriorsDoc `json:"zombie" yaml:"zombie"`
}

// PriorsSchemaVersion is the only schema version this loader accepts.
const PriorsSchemaVersion = "1"

// DefaultPriors gives each class its own class-specific Beta/Gamma shapes
// (the flat Beta(1,1)/Gamma(1,1) appear only where a class has no
// informative default) and a class prior biased toward "useful", matching the
// conservative posture a fresh install should take before any baseline
// has been learned.
func DefaultPriors() PriorsDoc {
	weak := BetaParamsDoc{Alpha: 1, Beta: 1}
	weakGamma := GammaParamsDoc{Shape: 1, Rate: 1}
	return PriorsDoc{
		SchemaVersion: PriorsSchemaVersion,
		Useful: ClassPriorsDoc{
			ClassPrior: 0.55,
			CPUActive:  BetaParamsDoc{Alpha: 5, Beta: 2},
			Runtime:    GammaParamsDoc{Shape: 2, Rate: 0.02},
			Orphan:     BetaParamsDoc{Alpha: 1, Beta: 9},
			TTY:        BetaParamsDoc{Alpha: 3, Beta: 2},
			Network:    BetaParamsDoc{Alpha: 3, Beta: 2},
			IOActive:   BetaParamsDoc{Alpha: 3, Beta: 2},
		},
		UsefulBad: ClassPriorsDoc{
			ClassPrior: 0.15,
			CPUActive:  BetaParamsDoc{Alpha: 6, Beta: 2},
			Runtime:    GammaParamsDoc{Shape: 2, Rate: 0.01},
			Orphan:     BetaParamsDoc{Alpha: 2, Beta: 8},
			TTY:        weak,
			Network:    BetaParamsDoc{Alpha: 4, Beta: 2},
			IOActive:   BetaParamsDoc{Alpha: 4, Beta: 2},
		},
		Abandoned: ClassPriorsDoc{
			ClassPrior: 0.2,
			CPUActive:  BetaParamsDoc{Alpha: 1, Beta: 8},
			Runtime:    GammaParamsDoc{Shape: 2, Rate: 0.002},
			Orphan:     BetaParamsDoc{Alpha: 6, Beta: 3},
			TTY:        BetaParamsDoc{Alpha: 1, Beta: 8},
			Network:    BetaParamsDoc{Alpha: 1, Beta: 6},
			IOActive:   BetaParamsDoc{Alpha: 1, Beta: 8},
		},
		Zombie: ClassPriorsDoc{
			ClassPrior: 0.1,
			CPUActive:  BetaParamsDoc{Alpha: 1, Beta: 20},
			Runtime:    weakGamma,
			Orphan:     BetaParamsDoc{Alpha: 8, Beta: 1},
			TTY:        BetaParamsDoc{Alpha: 1, Beta: 20},
			Network:    BetaParamsDoc{Alpha: 1, Beta: 20},
			IOActive:   BetaParamsDoc{Alpha: 1, Beta: 20},
		},
	}
}

// ToPriors converts the on-disk doc into the inference package's
// runtime Priors, in the fixed (useful, useful_bad, abandoned, zombie)
// class order.
func (d PriorsDoc) ToPriors() inference.Priors {
	conv := func(c ClassPriorsDoc) inference.ClassPriors {
		return inference.ClassPriors{
			ClassPrior:      c.ClassPrior,
			CPUActive:       inference.BetaParams{Alpha: c.CPUActive.Alpha, Beta: c.CPUActive.Beta},
			Runtime:         inference.GammaParams{Shape: c.Runtime.Shape, Rate: c.Runtime.Rate},
			Orphan:          inference.BetaParams{Alpha: c.Orphan.Alpha, Beta: c.Orphan.Beta},
			TTY:             inference.BetaParams{Alpha: c.TTY.Alpha, Beta: c.TTY.Beta},
			Network:         inference.BetaParams{Alpha: c.Network.Alpha, Beta: c.Network.Beta},
			IOActive:        inference.BetaParams{Alpha: c.IOActive.Alpha, Beta: c.IOActive.Beta},
			CommandCategory: c.CommandCategory,
		}
	}
	return inference.Priors{ByClass: [4]inference.ClassPriors{
		conv(d.Useful), conv(d.UsefulBad), conv(d.Abandoned), conv(d.Zombie),
	}}
}

// ValidatePriors checks schema version, that class priors sum to 1
// within tolerance, and that every Beta/Gamma parameter is strictly
// positive (a non-positive shape parameter produces NaN or -Inf
// likelihoods downstream, which spec.md treats as a hard error).
func ValidatePriors(d PriorsDoc) error {
	var errs []string
	if d.SchemaVersion != PriorsSchemaVersion {
		errs = append(errs, fmt.Sprintf("priors.schema_version must be %q, got %q", PriorsSchemaVersion, d.SchemaVersion))
	}

	sum := d.Useful.ClassPrior + d.UsefulBad.ClassPrior + d.Abandoned.ClassPrior + d.Zombie.ClassPrior
	if math.Abs(sum-1.0) > 1e-6 {
		errs = append(errs, fmt.Sprintf("class priors must sum to 1.0, got %f", sum))
	}

	classes := map[string]ClassPriorsDoc{
		"useful": d.Useful, "useful_bad": d.UsefulBad, "abandoned": d.Abandoned, "zombie": d.Zombie,
	}
	for name, c := range classes {
		if c.ClassPrior < 0 {
			errs = append(errs, fmt.Sprintf("%s.class_prior must be >= 0, got %f", name, c.ClassPrior))
		}
		betas := map[string]BetaParamsDoc{
			"cpu_active": c.CPUActive, "orphan": c.Orphan, "tty": c.TTY,
			"network": c.Network, "io_active": c.IOActive,
		}
		for field, b := range betas {
			if b.Alpha <= 0 || b.Beta <= 0 {
				errs = append(errs, fmt.Sprintf("%s.%s alpha and beta must be > 0, got (%f, %f)", name, field, b.Alpha, b.Beta))
			}
		}
		if c.Runtime.Shape <= 0 || c.Runtime.Rate <= 0 {
			errs = append(errs, fmt.Sprintf("%s.runtime shape and rate must be > 0, got (%f, %f)", name, c.Runtime.Shape, c.Runtime.Rate))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("priors validation errors:\n  - %s", joinStrings(errs, "\n  - "))
	}
	return nil
}
