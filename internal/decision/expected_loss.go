package decision

import (
	"errors"
	"sort"

	"github.com/process-triage/pt-core/internal/inference"
)

// ErrNoFeasibleAction is returned when every decidable action is either
// infeasible or unconfigured in the loss matrix.
var ErrNoFeasibleAction = errors.New("decision: no feasible action available")

// Feasibility masks which actions may be chosen for a candidate (pre-
// checks, platform support, policy). An action absent from the map is
// treated as infeasible.
type Feasibility map[Action]bool

// ExpectedLoss is one action's expected loss under the posterior.
type ExpectedLoss struct {
	Action Action
	Loss   float64
}

// DecisionRationale records how the expected-loss rule arrived at its
// choice, for the PlanAction's rationale block.
type DecisionRationale struct {
	Posterior        inference.Posterior
	ExpectedLosses   []ExpectedLoss
	TieBreak         bool
	DisabledActions  []Action
	ChosenAction     Action
}

// ExpectedLossRule computes EL(a) = sum_k p_k * L[k][a] for every
// configured, feasible action and returns the argmin, breaking ties by
// cost tier then action enum order.
func ExpectedLossRule(posterior inference.Posterior, loss LossMatrix, feasible Feasibility) (DecisionRationale, error) {
	weights := [4]float64{posterior.PUseful, posterior.PUsefulBad, posterior.PAbandoned, posterior.PZombie}

	var candidates []ExpectedLoss
	var disabled []Action
	for _, a := range DecidableActions {
		if !feasible[a] {
			disabled = append(disabled, a)
			continue
		}
		el, ok := expectedLossFor(a, weights, loss)
		if !ok {
			disabled = append(disabled, a)
			continue
		}
		candidates = append(candidates, ExpectedLoss{Action: a, Loss: el})
	}
	if len(candidates) == 0 {
		return DecisionRationale{}, ErrNoFeasibleAction
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Action < candidates[j].Action
	})

	best := candidates[0]
	tie := false
	for _, c := range candidates[1:] {
		if better(c, best) {
			best = c
			tie = false
		} else if c.Loss == best.Loss && c.Action.CostTier() == best.Action.CostTier() {
			tie = true
		}
	}

	return DecisionRationale{
		Posterior:       posterior,
		ExpectedLosses:  candidates,
		TieBreak:        tie,
		DisabledActions: disabled,
		ChosenAction:    best.Action,
	}, nil
}

// better reports whether b is a strictly better choice than a, using
// loss first, then cost tier, then enum order (both already applied via
// the candidates' sorted-by-enum-order traversal).
func better(b, a ExpectedLoss) bool {
	if b.Loss < a.Loss {
		return true
	}
	if b.Loss > a.Loss {
		return false
	}
	if b.Action.CostTier() < a.Action.CostTier() {
		return true
	}
	return false
}

func expectedLossFor(a Action, weights [4]float64, loss LossMatrix) (float64, bool) {
	rows := [4]LossRow{loss.Useful, loss.UsefulBad, loss.Abandoned, loss.Zombie}
	var sum float64
	for i, row := range rows {
		v, ok := row.Get(a)
		if !ok {
			return 0, false
		}
		sum += weights[i] * v
	}
	return sum, true
}
