// Package contrib — probe_estimator.go
//
// Plugin interface for custom probe-cost estimators.
//
// The core ships a handful of built-in probe cost models (flat per-tool
// wall-clock estimates) but the VOI layer's population allocator only
// needs a name -> (wall-time cost, overhead cost) function, so third
// parties can supply their own model (e.g. learned from historical probe
// latencies, or derived from the target's cgroup weight) without
// touching internal/sequential.
//
// Plugin registration:
//   Plugins register themselves in an init() function using
//   RegisterProbeCostEstimator(). The pt-core pipeline always uses the
//   "flat" estimator; policy has no setting that selects another one.
//   Other registered estimators are reached by name through
//   GetProbeCostEstimator() or sequential.BuildCandidateProbe().
//
//   Built-in estimators: "flat".
//   Community estimators: registered via contrib.RegisterProbeCostEstimator().
//
// Plugin contract:
//   - Estimate() must be goroutine-safe (called from concurrent workers).
//   - Estimate() must return quickly; it runs on the allocator's hot path.
//   - Estimate() must not call blocking I/O.
//   - Estimate() must not panic.
//   - Name() must return a stable, unique string (used as registry key).
package contrib

import (
	"fmt"
	"sync"
)

// ProbeCostRequest is the input to ProbeCostEstimator.Estimate().
type ProbeCostRequest struct {
	// CandidateID identifies the process being considered for probing.
	CandidateID string

	// ProbeName is the probe's name, e.g. "lsof", "systemctl_status".
	ProbeName string

	// PriorWallTimeSeconds is the estimator's own best guess from a
	// previous run, if any; zero if this is the first observation.
	PriorWallTimeSeconds float64

	// MemoryMB is the candidate's resident memory, a useful covariate
	// for probes whose cost scales with process size (e.g. /proc/<pid>/smaps).
	MemoryMB float64
}

// ProbeCostEstimate is the cost ProbeCostEstimator predicts for one probe,
// in the same two dimensions the population allocator budgets against.
type ProbeCostEstimate struct {
	WallTimeSeconds  float64
	OverheadFraction float64
}

// ProbeCostEstimator is the interface custom probe-cost models must
// implement.
type ProbeCostEstimator interface {
	// Name returns the unique identifier for this estimator. Used as the
	// registry key for GetProbeCostEstimator.
	Name() string

	// Estimate predicts the cost of running one probe against one
	// candidate. Returns a non-negative estimate in both dimensions.
	Estimate(req ProbeCostRequest) (ProbeCostEstimate, error)
}

var (
	estimatorMu sync.RWMutex
	estimators  = make(map[string]ProbeCostEstimator)
)

// RegisterProbeCostEstimator registers a custom probe-cost estimator.
// Panics if an estimator with the same name is already registered. Call
// from init() functions in plugin packages.
func RegisterProbeCostEstimator(e ProbeCostEstimator) {
	estimatorMu.Lock()
	defer estimatorMu.Unlock()
	if _, exists := estimators[e.Name()]; exists {
		panic(fmt.Sprintf("contrib: probe cost estimator %q already registered", e.Name()))
	}
	estimators[e.Name()] = e
}

// GetProbeCostEstimator returns the registered estimator with the given
// name, or an error if none is registered under it.
func GetProbeCostEstimator(name string) (ProbeCostEstimator, error) {
	estimatorMu.RLock()
	defer estimatorMu.RUnlock()
	e, ok := estimators[name]
	if !ok {
		return nil, fmt.Errorf("contrib: probe cost estimator %q not registered (available: %v)", name, listEstimatorNames())
	}
	return e, nil
}

// ListProbeCostEstimators returns the names of all registered estimators.
func ListProbeCostEstimators() []string {
	estimatorMu.RLock()
	defer estimatorMu.RUnlock()
	return listEstimatorNames()
}

func listEstimatorNames() []string {
	names := make([]string, 0, len(estimators))
	for k := range estimators {
		names = append(names, k)
	}
	return names
}

// FlatCostEstimator is the built-in default: every probe costs a fixed
// wall-time and overhead fraction regardless of the candidate, so the
// allocator degrades to pure VOI-per-count ranking until a richer
// estimator is registered.
type FlatCostEstimator struct {
	WallTimeSeconds  float64
	OverheadFraction float64
}

func init() {
	RegisterProbeCostEstimator(&FlatCostEstimator{WallTimeSeconds: 0.5, OverheadFraction: 0.01})
}

func (f *FlatCostEstimator) Name() string { return "flat" }

func (f *FlatCostEstimator) Estimate(_ ProbeCostRequest) (ProbeCostEstimate, error) {
	return ProbeCostEstimate{WallTimeSeconds: f.WallTimeSeconds, OverheadFraction: f.OverheadFraction}, nil
}
