package decision

import (
	"sort"

	"github.com/process-triage/pt-core/internal/inference"
)

// CVaRResult carries both the risk-neutral and risk-adjusted choice.
// The engine always prefers the risk-adjusted action when they differ.
type CVaRResult struct {
	RiskNeutral  DecisionRationale
	RiskAdjusted Action
	CVaRByAction map[Action]float64
	Alpha        float64
}

type weightedLoss struct {
	weight float64
	loss   float64
}

// CVaRRule computes, for each feasible action, the conditional
// expectation of loss over the worst (1-alpha) tail of the per-class
// loss distribution (losses sorted ascending, weighted by posterior
// mass), and picks the argmin over that risk-adjusted loss.
func CVaRRule(posterior inference.Posterior, loss LossMatrix, feasible Feasibility, alpha float64) (CVaRResult, error) {
	neutral, err := ExpectedLossRule(posterior, loss, feasible)
	if err != nil {
		return CVaRResult{}, err
	}
	weights := [4]float64{posterior.PUseful, posterior.PUsefulBad, posterior.PAbandoned, posterior.PZombie}
	rows := [4]LossRow{loss.Useful, loss.UsefulBad, loss.Abandoned, loss.Zombie}

	cvarByAction := make(map[Action]float64)
	for _, el := range neutral.ExpectedLosses {
		cvarByAction[el.Action] = cvarForAction(el.Action, weights, rows, alpha)
	}

	best := neutral.ExpectedLosses[0].Action
	bestCVaR := cvarByAction[best]
	for _, el := range neutral.ExpectedLosses[1:] {
		c := cvarByAction[el.Action]
		if c < bestCVaR || (c == bestCVaR && el.Action.CostTier() < best.CostTier()) {
			best = el.Action
			bestCVaR = c
		}
	}

	return CVaRResult{
		RiskNeutral:  neutral,
		RiskAdjusted: best,
		CVaRByAction: cvarByAction,
		Alpha:        alpha,
	}, nil
}

// cvarForAction sorts the per-class losses for the action ascending,
// weights each by posterior mass, and averages over the worst (1-alpha)
// tail mass.
func cvarForAction(a Action, weights [4]float64, rows [4]LossRow, alpha float64) float64 {
	wl := make([]weightedLoss, 0, 4)
	for i, row := range rows {
		v, ok := row.Get(a)
		if !ok {
			continue
		}
		wl = append(wl, weightedLoss{weight: weights[i], loss: v})
	}
	sort.Slice(wl, func(i, j int) bool { return wl[i].loss < wl[j].loss })

	tailMass := 1 - alpha
	if tailMass <= 0 {
		return wl[len(wl)-1].loss
	}

	// Walk from the highest-loss end, accumulating weight until tailMass
	// is covered; the last entry may be partially counted.
	var covered, weightedSum float64
	for i := len(wl) - 1; i >= 0 && covered < tailMass; i-- {
		take := wl[i].weight
		if covered+take > tailMass {
			take = tailMass - covered
		}
		weightedSum += take * wl[i].loss
		covered += take
	}
	if covered == 0 {
		return wl[len(wl)-1].loss
	}
	return weightedSum / covered
}
