// Package embed implements the SWNE embedding engine: it lays out the
// factors of a nonnegative matrix factorization as fixed 2D anchors, pulls
// samples and features toward the anchors that best explain them, and smooths
// sample positions over a precomputed similarity graph. It also projects new
// samples onto an existing layout without moving the training positions.
package embed

import (
	"runtime"
	"sort"
	"sync"

	"github.com/TomKellyGenetics/swne/internal/graph"
)

// EmbedSWNE computes the full similarity-weighted embedding: anchor layout
// from the score matrix, a weighted pull per sample, and one smoothing pass
// over the similarity graph. A nil graph means no smoothing.
//
// The returned degeneracies list the recoverable warnings encountered
// (all-zero loading vectors, isolated samples); the embedding itself is
// always complete. Configuration mistakes return an error wrapping ErrConfig
// and no embedding.
func EmbedSWNE(scores *ScoreMatrix, g *graph.Sparse, params Params) (*Embedding, []Degeneracy, error) {
	if scores == nil {
		return nil, nil, configErrorf("score matrix is nil")
	}
	if err := validatePull(params.NPull, params.Alpha, scores.K()); err != nil {
		return nil, nil, err
	}
	if g != nil {
		if g.Len() != scores.N() {
			return nil, nil, configErrorf("similarity graph has %d nodes for %d samples", g.Len(), scores.N())
		}
		for i, name := range g.Names() {
			if name != scores.Samples[i] {
				return nil, nil, configErrorf("graph node %d is %q but sample %d is %q", i, name, i, scores.Samples[i])
			}
		}
	}

	reducer, err := NewReducer(params.Reducer)
	if err != nil {
		return nil, nil, err
	}
	anchors, err := LayoutAnchors(scores, params.Distance, reducer, params.Seed)
	if err != nil {
		return nil, nil, err
	}
	anchorPts := anchorPoints(anchors)

	n := scores.N()
	provisional := make([]Point, n)
	flags := make([]bool, n)
	parallelFor(n, func(j int) {
		provisional[j], flags[j] = pullPoint(scores.Column(j), anchorPts, params.NPull, params.Alpha)
	})

	var degeneracies []Degeneracy
	for j, degenerate := range flags {
		if degenerate {
			degeneracies = append(degeneracies, Degeneracy{Kind: DegenerateZeroLoadings, ID: scores.Samples[j]})
		}
	}

	// Smoothing reads only provisional positions, so the second pass is as
	// independent per sample as the first.
	final := make([]Point, n)
	isolated := make([]bool, n)
	parallelFor(n, func(j int) {
		if g == nil {
			final[j], isolated[j] = provisional[j], true
			return
		}
		edges := g.Neighbors(j)
		weights := make([]float64, len(edges))
		positions := make([]Point, len(edges))
		for e, edge := range edges {
			weights[e] = edge.Weight
			positions[e] = provisional[edge.To]
		}
		final[j], isolated[j] = smoothPoint(provisional[j], weights, positions, params.SNNExp)
	})
	if g != nil {
		for j, deg := range isolated {
			if deg {
				degeneracies = append(degeneracies, Degeneracy{Kind: DegenerateNoNeighbors, ID: scores.Samples[j]})
			}
		}
	}

	emb := &Embedding{
		Anchors: anchors,
		Samples: make(map[string]Point, n),
		Params:  params,
	}
	for j, name := range scores.Samples {
		emb.Samples[name] = final[j]
	}
	return emb, degeneracies, nil
}

// EmbedFeatures places the requested features onto an existing embedding's
// anchors with a pull-only computation; features carry no similarity graph.
// An empty subset embeds every feature in the loading matrix. The result is a
// copy of the embedding with FeatureCoordinates replaced; anchors and sample
// positions are untouched.
func EmbedFeatures(emb *Embedding, loadings *LoadingMatrix, subset []string, nPull int, alpha float64) (*Embedding, []Degeneracy, error) {
	if emb == nil {
		return nil, nil, configErrorf("embedding is nil")
	}
	if loadings == nil {
		return nil, nil, configErrorf("loading matrix is nil")
	}
	if err := validatePull(nPull, alpha, len(emb.Anchors)); err != nil {
		return nil, nil, err
	}
	if len(loadings.Factors) != len(emb.Anchors) {
		return nil, nil, configErrorf("loading matrix has %d factors but the embedding has %d anchors", len(loadings.Factors), len(emb.Anchors))
	}
	for i, a := range emb.Anchors {
		if loadings.Factors[i] != a.Factor {
			return nil, nil, configErrorf("loading factor %d is %q but anchor %d is %q", i, loadings.Factors[i], i, a.Factor)
		}
	}

	if len(subset) == 0 {
		subset = loadings.Features
	}
	rows := make([][]float64, len(subset))
	for i, feature := range subset {
		row, ok := loadings.Row(feature)
		if !ok {
			return nil, nil, configErrorf("feature %q is not in the loading matrix", feature)
		}
		rows[i] = row
	}

	anchorPts := anchorPoints(emb.Anchors)
	points := make([]Point, len(subset))
	flags := make([]bool, len(subset))
	parallelFor(len(subset), func(i int) {
		points[i], flags[i] = pullPoint(rows[i], anchorPts, nPull, alpha)
	})

	var degeneracies []Degeneracy
	out := emb.clone()
	out.Features = make(map[string]Point, len(subset))
	for i, feature := range subset {
		out.Features[feature] = points[i]
		if flags[i] {
			degeneracies = append(degeneracies, Degeneracy{Kind: DegenerateZeroLoadings, ID: feature})
		}
	}
	return out, degeneracies, nil
}

// FactorFeature is one entry of a per-factor feature ranking.
type FactorFeature struct {
	Feature string  `json:"feature"`
	Loading float64 `json:"loading"`
}

// SummarizeAssocFeatures ranks features by loading within each factor and
// returns the top topN per factor, keyed by factor name.
func SummarizeAssocFeatures(loadings *LoadingMatrix, topN int) (map[string][]FactorFeature, error) {
	if loadings == nil {
		return nil, configErrorf("loading matrix is nil")
	}
	if topN <= 0 {
		return nil, configErrorf("features per factor must be positive, got %d", topN)
	}

	out := make(map[string][]FactorFeature, len(loadings.Factors))
	for c, factor := range loadings.Factors {
		ranked := make([]FactorFeature, len(loadings.Features))
		for r, feature := range loadings.Features {
			ranked[r] = FactorFeature{Feature: feature, Loading: loadings.Loadings.At(r, c)}
		}
		sort.SliceStable(ranked, func(a, b int) bool {
			return ranked[a].Loading > ranked[b].Loading
		})
		if topN < len(ranked) {
			ranked = ranked[:topN]
		}
		out[factor] = ranked
	}
	return out, nil
}

func validatePull(nPull int, alpha float64, k int) error {
	if nPull < minFactors {
		return configErrorf("n_pull must be at least %d, got %d", minFactors, nPull)
	}
	if nPull > k {
		return configErrorf("n_pull %d exceeds the %d available factors", nPull, k)
	}
	if alpha <= 0 {
		return configErrorf("alpha exponent must be positive, got %g", alpha)
	}
	return nil
}

// parallelFor runs fn for every index in [0, n) across worker goroutines.
// Each index owns its output slot, so no synchronization beyond the final
// Wait is needed.
func parallelFor(n int, fn func(i int)) {
	workers := runtime.GOMAXPROCS(0)
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	var wg sync.WaitGroup
	chunk := (n + workers - 1) / workers
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > n {
			hi = n
		}
		if lo >= hi {
			break
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				fn(i)
			}
		}(lo, hi)
	}
	wg.Wait()
}
