package embed

import (
	"github.com/TomKellyGenetics/swne/internal/graph"
)

// ProjectParams tunes an out-of-sample projection. Projection may use
// different pull and smoothing settings than the original embedding, e.g. a
// sharper pull for projected data.
type ProjectParams struct {
	NPull  int     `json:"n_pull"`
	Alpha  float64 `json:"alpha_exp"`
	SNNExp float64 `json:"snn_exp"`
}

// ProjectSamples places new samples onto an existing embedding without
// moving it. Each new sample is pulled against the embedding's fixed anchors,
// then smoothed against the already-finalized positions of its training-set
// neighbors from the bipartite graph. The training layout is ground truth:
// neighbor positions come from emb.Samples, not from other projected samples.
//
// The result is a separate coordinate mapping; emb is never mutated. A new
// sample without edges into the training set keeps its pull-only position and
// is reported as degenerate.
func ProjectSamples(emb *Embedding, newScores *ScoreMatrix, bg *graph.Bipartite, params ProjectParams) (map[string]Point, []Degeneracy, error) {
	if emb == nil {
		return nil, nil, configErrorf("embedding is nil")
	}
	if newScores == nil {
		return nil, nil, configErrorf("score matrix is nil")
	}
	if err := validatePull(params.NPull, params.Alpha, len(emb.Anchors)); err != nil {
		return nil, nil, err
	}
	if newScores.K() != len(emb.Anchors) {
		return nil, nil, configErrorf("new scores have %d factors but the embedding has %d anchors", newScores.K(), len(emb.Anchors))
	}
	for i, a := range emb.Anchors {
		if newScores.Factors[i] != a.Factor {
			return nil, nil, configErrorf("score factor %d is %q but anchor %d is %q", i, newScores.Factors[i], i, a.Factor)
		}
	}

	// Resolve the bipartite columns to training positions up front so a
	// mismatched identifier set fails before any work.
	var trainPositions []Point
	if bg != nil {
		if len(bg.Rows()) != newScores.N() {
			return nil, nil, configErrorf("bipartite graph has %d rows for %d new samples", len(bg.Rows()), newScores.N())
		}
		for i, name := range bg.Rows() {
			if name != newScores.Samples[i] {
				return nil, nil, configErrorf("graph row %d is %q but new sample %d is %q", i, name, i, newScores.Samples[i])
			}
		}
		trainPositions = make([]Point, len(bg.Cols()))
		for j, name := range bg.Cols() {
			p, ok := emb.Samples[name]
			if !ok {
				return nil, nil, configErrorf("graph column %q is not a sample of the embedding", name)
			}
			trainPositions[j] = p
		}
	}

	anchorPts := anchorPoints(emb.Anchors)
	n := newScores.N()
	points := make([]Point, n)
	zeroLoad := make([]bool, n)
	isolated := make([]bool, n)
	parallelFor(n, func(i int) {
		provisional, degenerate := pullPoint(newScores.Column(i), anchorPts, params.NPull, params.Alpha)
		zeroLoad[i] = degenerate

		if bg == nil {
			points[i], isolated[i] = provisional, true
			return
		}
		edges := bg.Neighbors(i)
		weights := make([]float64, len(edges))
		positions := make([]Point, len(edges))
		for e, edge := range edges {
			weights[e] = edge.Weight
			positions[e] = trainPositions[edge.To]
		}
		points[i], isolated[i] = smoothPoint(provisional, weights, positions, params.SNNExp)
	})

	out := make(map[string]Point, n)
	var degeneracies []Degeneracy
	for i, name := range newScores.Samples {
		out[name] = points[i]
		if zeroLoad[i] {
			degeneracies = append(degeneracies, Degeneracy{Kind: DegenerateZeroLoadings, ID: name})
		}
		if isolated[i] {
			degeneracies = append(degeneracies, Degeneracy{Kind: DegenerateNoNeighbors, ID: name})
		}
	}
	return out, degeneracies, nil
}
