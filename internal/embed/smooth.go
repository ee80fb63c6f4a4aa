package embed

import "math"

// smoothPoint recomputes a sample's position as a convex combination of its
// own provisional position and its graph neighbors' positions.
//
// Neighbor edge weights (expected in (0, 1]) are raised to snnExp; the
// sample's own position carries a self-weight of 1, which is 1 raised to the
// same exponent. Lowering snnExp inflates sub-unit neighbor weights toward 1
// and therefore increases neighbor influence relative to the fixed self mass.
// The full weight set is renormalized to sum to 1.
//
// The boolean reports a sample with no neighbors, which keeps its provisional
// position unchanged.
func smoothPoint(own Point, weights []float64, positions []Point, snnExp float64) (Point, bool) {
	if len(weights) == 0 {
		return own, true
	}

	const selfWeight = 1.0
	total := selfWeight
	powed := make([]float64, len(weights))
	for i, w := range weights {
		pw := math.Pow(w, snnExp)
		powed[i] = pw
		total += pw
	}

	p := Point{X: selfWeight / total * own.X, Y: selfWeight / total * own.Y}
	for i, pos := range positions {
		w := powed[i] / total
		p.X += w * pos.X
		p.Y += w * pos.Y
	}
	return p, false
}
