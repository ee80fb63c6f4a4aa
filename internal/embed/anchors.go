package embed

import (
	"math"
	"math/rand"
)

// minFactors is the smallest factor count that yields a meaningful 2D anchor
// layout; below it no non-degenerate convex combination exists.
const minFactors = 3

// coincidenceEps is the squared distance below which two anchors are treated
// as coincident and jittered apart.
const coincidenceEps = 1e-9

// LayoutAnchors places the k factors of a score matrix at fixed 2D
// coordinates. Dissimilar factors land far apart, similar factors close
// together. The layout is deterministic for a given input, mode, reducer and
// seed, and guarantees pairwise-distinct anchor points.
func LayoutAnchors(scores *ScoreMatrix, mode DistanceMode, reducer Reducer, seed int64) ([]Anchor, error) {
	if scores == nil {
		return nil, configErrorf("score matrix is nil")
	}
	if scores.K() < minFactors {
		return nil, configErrorf("anchor layout needs at least %d factors, got %d", minFactors, scores.K())
	}
	if reducer == nil {
		reducer = &SammonReducer{}
	}

	dissim, err := Dissimilarity(scores.Scores, mode)
	if err != nil {
		return nil, err
	}

	points, err := reducer.Reduce(dissim, seed)
	if err != nil {
		return nil, err
	}

	points = separate(points, seed)

	anchors := make([]Anchor, scores.K())
	for i, name := range scores.Factors {
		anchors[i] = Anchor{Factor: name, Point: points[i]}
	}
	return anchors, nil
}

// separate nudges coincident points apart with a seeded jitter so the layout
// never contains two anchors at the same position. The jitter is a fraction
// of the layout extent and grows until all pairs are distinct.
func separate(points []Point, seed int64) []Point {
	rng := rand.New(rand.NewSource(seed))
	scale := extent(points) * 1e-3
	if scale == 0 {
		scale = 1e-3
	}

	for attempt := 0; attempt < 16; attempt++ {
		collided := false
		for i := 0; i < len(points); i++ {
			for j := i + 1; j < len(points); j++ {
				dx := points[i].X - points[j].X
				dy := points[i].Y - points[j].Y
				if dx*dx+dy*dy < coincidenceEps {
					points[j].X += (rng.Float64()*2 - 1) * scale
					points[j].Y += (rng.Float64()*2 - 1) * scale
					collided = true
				}
			}
		}
		if !collided {
			break
		}
		scale *= 2
	}
	return points
}

func extent(points []Point) float64 {
	minX, maxX := math.MaxFloat64, -math.MaxFloat64
	minY, maxY := math.MaxFloat64, -math.MaxFloat64
	for _, p := range points {
		minX = math.Min(minX, p.X)
		maxX = math.Max(maxX, p.X)
		minY = math.Min(minY, p.Y)
		maxY = math.Max(maxY, p.Y)
	}
	if len(points) == 0 {
		return 0
	}
	return math.Max(maxX-minX, maxY-minY)
}
