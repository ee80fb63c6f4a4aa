package embed

import (
	"math"
	"sort"
)

// pullPoint computes an entity's provisional position as a sharpness-weighted
// convex combination of its top-loading anchors. The same routine serves
// samples, features and projected samples.
//
// The nPull factors with the largest loadings are selected, ties broken by
// ascending factor index for determinism. Each selected loading is raised to
// alpha and the exponentiated weights are renormalized to sum to 1, so the
// result always lies inside the convex hull of the selected anchors.
//
// The boolean reports degenerate input: if every selected loading is zero the
// pull falls back to uniform weights across the selected anchors.
func pullPoint(loadings []float64, anchors []Point, nPull int, alpha float64) (Point, bool) {
	selected := topFactors(loadings, nPull)

	weights := make([]float64, len(selected))
	total := 0.0
	for i, idx := range selected {
		w := math.Pow(loadings[idx], alpha)
		weights[i] = w
		total += w
	}

	degenerate := total == 0
	if degenerate {
		uniform := 1 / float64(len(selected))
		for i := range weights {
			weights[i] = uniform
		}
		total = 1
	}

	var p Point
	for i, idx := range selected {
		w := weights[i] / total
		p.X += w * anchors[idx].X
		p.Y += w * anchors[idx].Y
	}
	return p, degenerate
}

// topFactors returns the indices of the n largest loadings, ordered by
// descending loading with ascending-index tie-breaks.
func topFactors(loadings []float64, n int) []int {
	idx := make([]int, len(loadings))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		if loadings[idx[a]] != loadings[idx[b]] {
			return loadings[idx[a]] > loadings[idx[b]]
		}
		return idx[a] < idx[b]
	})
	return idx[:n]
}
