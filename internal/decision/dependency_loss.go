package decision

// DependencyFactors summarizes the blast-radius signals used to scale
// Kill's loss upward so that high-impact processes are not killed as
// readily as their raw posterior would suggest.
type DependencyFactors struct {
	ChildCount              int
	EstablishedConnections  int
	ListeningPorts          int
	OpenWritableHandles     int
	SharedMemorySegments    int
}

// ImpactWeights weights the dependency factors that ComputeImpactScore
// combines into a single non-negative score. Weights are policy-configurable; zero factors and
// zero weights both contribute zero.
type ImpactWeights struct {
	Child        float64
	Connection   float64
	ListenPort   float64
	WritableFD   float64
	SharedMemory float64
}

// DefaultImpactWeights gives every factor equal weight.
func DefaultImpactWeights() ImpactWeights {
	return ImpactWeights{Child: 1, Connection: 1, ListenPort: 1, WritableFD: 1, SharedMemory: 1}
}

// ComputeImpactScore returns the weighted combination used by
// ApplyDependencyWeightedLoss.
func ComputeImpactScore(f DependencyFactors, w ImpactWeights) float64 {
	return w.Child*float64(f.ChildCount) +
		w.Connection*float64(f.EstablishedConnections) +
		w.ListenPort*float64(f.ListeningPorts) +
		w.WritableFD*float64(f.OpenWritableHandles) +
		w.SharedMemory*float64(f.SharedMemorySegments)
}

// ApplyDependencyWeightedLoss scales Kill's loss by (1 + impact_score)
// in every row of the matrix. It never reduces loss (impact_score >= 0)
// and never touches other actions.
func ApplyDependencyWeightedLoss(loss LossMatrix, impactScore float64) LossMatrix {
	if impactScore < 0 {
		impactScore = 0
	}
	scaleKill := func(row LossRow) LossRow {
		row.Kill = row.Kill * (1 + impactScore)
		return row
	}
	return loss.Map(scaleKill)
}
