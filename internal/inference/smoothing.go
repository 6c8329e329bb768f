package inference

import "fmt"

// Graph is an undirected adjacency list over candidate node indices.
type Graph struct {
	Neighbors [][]int
}

// SmoothingResult carries the smoothed values and, for audit, the
// per-iteration average absolute delta.
type SmoothingResult struct {
	Values         []float64
	IterationDeltas []float64
}

// SmoothGraph applies k iterations of v_i <- (1-alpha)v_i + alpha*mean(neighbors(v_i))
// over the graph. Disabled by default at the caller level; this function
// always runs when called. alpha must be in [0, 1].
func SmoothGraph(g Graph, values []float64, alpha float64, iterations int) (SmoothingResult, error) {
	if alpha < 0 || alpha > 1 {
		return SmoothingResult{}, fmt.Errorf("inference: smoothing alpha %v out of [0,1]", alpha)
	}
	if len(g.Neighbors) != len(values) {
		return SmoothingResult{}, fmt.Errorf("inference: graph has %d nodes but %d values given", len(g.Neighbors), len(values))
	}
	cur := make([]float64, len(values))
	copy(cur, values)

	deltas := make([]float64, 0, iterations)
	for it := 0; it < iterations; it++ {
		next := make([]float64, len(cur))
		var deltaSum float64
		for i, neighbors := range g.Neighbors {
			if len(neighbors) == 0 {
				next[i] = cur[i]
				continue
			}
			var sum float64
			for _, n := range neighbors {
				sum += cur[n]
			}
			mean := sum / float64(len(neighbors))
			next[i] = (1-alpha)*cur[i] + alpha*mean
			deltaSum += abs(next[i] - cur[i])
		}
		deltas = append(deltas, deltaSum/float64(len(cur)))
		cur = next
	}

	return SmoothingResult{Values: cur, IterationDeltas: deltas}, nil
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
