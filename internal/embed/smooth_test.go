package embed

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSmoothPoint_NoNeighborsKeepsPosition(t *testing.T) {
	own := Point{X: 0.3, Y: -0.7}

	p, isolated := smoothPoint(own, nil, nil, 1)

	assert.True(t, isolated)
	assert.Equal(t, own, p)
}

// TestSmoothPoint_MutualUnitWeight reproduces the reference scenario: two
// samples connected with weight 1 and snn.exp=1 put each final position at
// the midpoint of the two provisional positions, since the self-weight is
// computed identically to a unit neighbor weight.
func TestSmoothPoint_MutualUnitWeight(t *testing.T) {
	a := Point{X: 0, Y: 0}
	b := Point{X: 1, Y: 1}

	pa, isolated := smoothPoint(a, []float64{1}, []Point{b}, 1)
	assert.False(t, isolated)
	assert.InDelta(t, 0.5, pa.X, 1e-12)
	assert.InDelta(t, 0.5, pa.Y, 1e-12)

	pb, _ := smoothPoint(b, []float64{1}, []Point{a}, 1)
	assert.InDelta(t, 0.5, pb.X, 1e-12)
	assert.InDelta(t, 0.5, pb.Y, 1e-12)
}

// TestSmoothPoint_LowerExponentSmoothsMore checks the tuning contract: a
// lower snn.exp inflates sub-unit neighbor weights and drags the sample
// further toward its neighbor.
func TestSmoothPoint_LowerExponentSmoothsMore(t *testing.T) {
	own := Point{X: 0, Y: 0}
	neighbor := Point{X: 1, Y: 0}
	weights := []float64{0.4}

	prev := math.Inf(1)
	for _, exp := range []float64{4, 2, 1, 0.5, 0.25} {
		p, _ := smoothPoint(own, weights, []Point{neighbor}, exp)
		dist := math.Abs(p.X - neighbor.X)
		assert.Lessf(t, dist, prev, "snn.exp=%g should smooth more than the previous exponent", exp)
		prev = dist
	}
}

func TestSmoothPoint_StaysInsideHull(t *testing.T) {
	own := Point{X: 0.2, Y: 0.2}
	neighbors := []Point{{X: 0.8, Y: 0.1}, {X: 0.5, Y: 0.9}}
	weights := []float64{0.6, 0.3}

	p, _ := smoothPoint(own, weights, neighbors, 1.5)

	assert.GreaterOrEqual(t, p.X, 0.2)
	assert.LessOrEqual(t, p.X, 0.8)
	assert.GreaterOrEqual(t, p.Y, 0.1)
	assert.LessOrEqual(t, p.Y, 0.9)
}
