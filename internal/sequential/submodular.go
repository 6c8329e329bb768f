package sequential

// FeatureKey identifies one coverable feature in the submodular coverage
// model.
type FeatureKey string

// ProbeProfile is a probe's cost and the set of features it would cover.
type ProbeProfile struct {
	Name     string
	Cost     float64
	Features []FeatureKey
}

// SelectionResult is the greedy bundle and its achieved utility.
type SelectionResult struct {
	Selected     []ProbeProfile
	Utility      float64
	TotalCost    float64
}

// CoverageUtility returns the weighted coverage utility of the union of
// features covered by the given probes: sum of w_f over f in the union.
func CoverageUtility(probes []ProbeProfile, weights map[FeatureKey]float64) float64 {
	covered := coveredFeatures(probes)
	return sumWeights(covered, weights)
}

// CoverageMarginalGain returns the marginal utility gain of adding
// candidate to the already-selected set.
func CoverageMarginalGain(selected []ProbeProfile, candidate ProbeProfile, weights map[FeatureKey]float64) float64 {
	before := coveredFeatures(selected)
	after := coveredFeatures(append(append([]ProbeProfile{}, selected...), candidate))
	return sumWeights(after, weights) - sumWeights(before, weights)
}

// GreedySelectWithBudget greedily picks probes maximizing gain/cost until
// the budget is exhausted. Monotone submodular coverage utility under a
// cost budget admits the (1 - 1/e) approximation guarantee for this
// greedy rule.
func GreedySelectWithBudget(candidates []ProbeProfile, weights map[FeatureKey]float64, budget float64) SelectionResult {
	remaining := make([]ProbeProfile, len(candidates))
	copy(remaining, candidates)

	var selected []ProbeProfile
	var totalCost float64

	for {
		bestIdx := -1
		var bestRatio float64
		for i, cand := range remaining {
			if cand.Cost <= 0 || totalCost+cand.Cost > budget {
				continue
			}
			gain := CoverageMarginalGain(selected, cand, weights)
			if gain <= 0 {
				continue
			}
			ratio := gain / cand.Cost
			if bestIdx == -1 || ratio > bestRatio ||
				(ratio == bestRatio && cand.Name < remaining[bestIdx].Name) {
				bestIdx = i
				bestRatio = ratio
			}
		}
		if bestIdx == -1 {
			break
		}
		selected = append(selected, remaining[bestIdx])
		totalCost += remaining[bestIdx].Cost
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return SelectionResult{
		Selected:  selected,
		Utility:   CoverageUtility(selected, weights),
		TotalCost: totalCost,
	}
}

// GreedySelectK greedily picks up to k probes maximizing marginal gain,
// ignoring cost (unit-cost greedy).
func GreedySelectK(candidates []ProbeProfile, weights map[FeatureKey]float64, k int) SelectionResult {
	remaining := make([]ProbeProfile, len(candidates))
	copy(remaining, candidates)

	var selected []ProbeProfile
	for len(selected) < k && len(remaining) > 0 {
		bestIdx := -1
		var bestGain float64
		for i, cand := range remaining {
			gain := CoverageMarginalGain(selected, cand, weights)
			if bestIdx == -1 || gain > bestGain ||
				(gain == bestGain && cand.Name < remaining[bestIdx].Name) {
				bestIdx = i
				bestGain = gain
			}
		}
		if bestGain <= 0 {
			break
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return SelectionResult{Selected: selected, Utility: CoverageUtility(selected, weights)}
}

func coveredFeatures(probes []ProbeProfile) map[FeatureKey]bool {
	out := map[FeatureKey]bool{}
	for _, p := range probes {
		for _, f := range p.Features {
			out[f] = true
		}
	}
	return out
}

func sumWeights(features map[FeatureKey]bool, weights map[FeatureKey]float64) float64 {
	var sum float64
	for f := range features {
		sum += weights[f]
	}
	return sum
}

// bruteForceBestUnderBudget enumerates every subset (bitmask) and returns
// the best achievable utility under the cost budget. Exposed for the
// empirical 0.9x-of-brute-force property test; intractable beyond a
// handful of probes, which is all the property test requires.
func bruteForceBestUnderBudget(candidates []ProbeProfile, weights map[FeatureKey]float64, budget float64) float64 {
	n := len(candidates)
	best := 0.0
	for mask := 0; mask < (1 << n); mask++ {
		var subset []ProbeProfile
		var cost float64
		for i := 0; i < n; i++ {
			if mask&(1<<i) != 0 {
				subset = append(subset, candidates[i])
				cost += candidates[i].Cost
			}
		}
		if cost > budget {
			continue
		}
		u := CoverageUtility(subset, weights)
		if u > best {
			best = u
		}
	}
	return best
}

