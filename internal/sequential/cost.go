package sequential

import (
	"github.com/process-triage/pt-core/contrib"
)

// BuildCandidateProbe fills in a CandidateProbe's cost fields by calling
// out to the named contrib.ProbeCostEstimator, leaving CandidateID,
// ProbeName, and VOI to the caller.
func BuildCandidateProbe(estimatorName, candidateID, probeName string, voi, memoryMB, priorWallTimeSeconds float64) (CandidateProbe, error) {
	estimator, err := contrib.GetProbeCostEstimator(estimatorName)
	if err != nil {
		return CandidateProbe{}, err
	}
	est, err := estimator.Estimate(contrib.ProbeCostRequest{
		CandidateID:          candidateID,
		ProbeName:            probeName,
		PriorWallTimeSeconds: priorWallTimeSeconds,
		MemoryMB:             memoryMB,
	})
	if err != nil {
		return CandidateProbe{}, err
	}
	return CandidateProbe{
		CandidateID:  candidateID,
		ProbeName:    probeName,
		VOI:          voi,
		WallTimeCost: est.WallTimeSeconds,
		OverheadCost: est.OverheadFraction,
	}, nil
}
