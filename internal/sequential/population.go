package sequential

import "sort"

// Budget is the two-dimensional population probe budget.
type Budget struct {
	WallTimeSeconds  float64
	OverheadFraction float64
}

// CandidateProbe is one (candidate, probe, voi, cost) tuple considered by
// the population allocator. Cost is expressed in the same two dimensions
// as Budget; a probe typically costs wall-clock time and a fraction of
// overhead budget simultaneously.
type CandidateProbe struct {
	CandidateID   string
	ProbeName     string
	VOI           float64
	WallTimeCost  float64
	OverheadCost  float64
}

// PopulationAllocationOptions configures the greedy allocator.
type PopulationAllocationOptions struct {
	Budget              Budget
	PerCandidateCap      map[string]int
	RequireNegativeVOI   bool
}

// AllocatePopulationProbes greedily selects probes by score = -voi/cost
// descending (tie-break by candidate id ascending then probe name
// ascending), skipping candidates at their per-candidate cap,
// non-negative-VOI probes when required, and probes whose cost would
// exceed the remaining budget in either dimension. The allocation never
// exceeds the budget in any dimension and is fully deterministic.
func AllocatePopulationProbes(candidates []CandidateProbe, opts PopulationAllocationOptions) []CandidateProbe {
	type scored struct {
		cp    CandidateProbe
		score float64
	}
	scoredList := make([]scored, 0, len(candidates))
	for _, cp := range candidates {
		cost := cp.WallTimeCost + cp.OverheadCost
		var score float64
		if cost > 0 {
			score = -cp.VOI / cost
		} else {
			score = -cp.VOI
		}
		scoredList = append(scoredList, scored{cp: cp, score: score})
	}

	sort.SliceStable(scoredList, func(i, j int) bool {
		if scoredList[i].score != scoredList[j].score {
			return scoredList[i].score > scoredList[j].score
		}
		if scoredList[i].cp.CandidateID != scoredList[j].cp.CandidateID {
			return scoredList[i].cp.CandidateID < scoredList[j].cp.CandidateID
		}
		return scoredList[i].cp.ProbeName < scoredList[j].cp.ProbeName
	})

	remainingWall := opts.Budget.WallTimeSeconds
	remainingOverhead := opts.Budget.OverheadFraction
	usedByCandidate := map[string]int{}

	var selected []CandidateProbe
	for _, s := range scoredList {
		cp := s.cp
		if cap, ok := opts.PerCandidateCap[cp.CandidateID]; ok && usedByCandidate[cp.CandidateID] >= cap {
			continue
		}
		if opts.RequireNegativeVOI && cp.VOI >= 0 {
			continue
		}
		if cp.WallTimeCost > remainingWall || cp.OverheadCost > remainingOverhead {
			continue
		}
		selected = append(selected, cp)
		remainingWall -= cp.WallTimeCost
		remainingOverhead -= cp.OverheadCost
		usedByCandidate[cp.CandidateID]++
	}
	return selected
}
