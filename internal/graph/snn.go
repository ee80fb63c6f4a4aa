package graph

import (
	"fmt"
	"math"
	"sort"
)

// DefaultPruneThreshold drops shared-neighbor weights below 1/15, the
// customary cutoff for SNN graphs.
const DefaultPruneThreshold = 1.0 / 15

// BuildSNN constructs a shared-nearest-neighbor graph over samples embedded
// in a low-dimensional space (typically principal components). For each
// sample the kNeighbors nearest samples by Euclidean distance form its
// neighborhood; the edge weight between two samples is the Jaccard overlap of
// their neighborhoods, pruned below the threshold. The result is symmetric
// with weights in [0, 1] and a zero diagonal.
func BuildSNN(names []string, coords [][]float64, kNeighbors int, prune float64) (*Sparse, error) {
	n := len(coords)
	if n != len(names) {
		return nil, fmt.Errorf("graph: %d names for %d coordinate rows", len(names), n)
	}
	if kNeighbors <= 0 || kNeighbors >= n {
		return nil, fmt.Errorf("graph: kNeighbors must be in [1, %d), got %d", n, kNeighbors)
	}
	if prune < 0 {
		prune = DefaultPruneThreshold
	}

	hoods := make([]map[int]struct{}, n)
	for i := 0; i < n; i++ {
		nearest := nearestIndices(coords, i, kNeighbors)
		hood := make(map[int]struct{}, kNeighbors+1)
		hood[i] = struct{}{} // a sample is always in its own neighborhood
		for _, j := range nearest {
			hood[j] = struct{}{}
		}
		hoods[i] = hood
	}

	g := NewSparse(names)
	for i := 0; i < n; i++ {
		for j := range hoods[i] {
			if j <= i {
				continue
			}
			w := jaccard(hoods[i], hoods[j])
			if w >= prune {
				if err := g.AddEdge(i, j, w); err != nil {
					return nil, err
				}
			}
		}
	}
	return g, nil
}

// BuildBipartite links each new sample to its kNeighbors nearest training
// samples. Edge weights are 1/(1+d), which keeps them in (0, 1] as the
// smoothing step expects.
func BuildBipartite(newNames []string, newCoords [][]float64, trainNames []string, trainCoords [][]float64, kNeighbors int) (*Bipartite, error) {
	if len(newNames) != len(newCoords) {
		return nil, fmt.Errorf("graph: %d new names for %d coordinate rows", len(newNames), len(newCoords))
	}
	if len(trainNames) != len(trainCoords) {
		return nil, fmt.Errorf("graph: %d training names for %d coordinate rows", len(trainNames), len(trainCoords))
	}
	if kNeighbors <= 0 || kNeighbors > len(trainCoords) {
		return nil, fmt.Errorf("graph: kNeighbors must be in [1, %d], got %d", len(trainCoords), kNeighbors)
	}

	b := NewBipartite(newNames, trainNames)
	for i, c := range newCoords {
		type cand struct {
			j int
			d float64
		}
		cands := make([]cand, len(trainCoords))
		for j, t := range trainCoords {
			cands[j] = cand{j: j, d: euclidean(c, t)}
		}
		sort.Slice(cands, func(a, b int) bool {
			if cands[a].d != cands[b].d {
				return cands[a].d < cands[b].d
			}
			return cands[a].j < cands[b].j
		})
		for _, cd := range cands[:kNeighbors] {
			if err := b.AddEdge(i, cd.j, 1/(1+cd.d)); err != nil {
				return nil, err
			}
		}
	}
	return b, nil
}

// nearestIndices returns the k nearest samples to sample i, excluding i
// itself, with ascending-index tie-breaks for determinism.
func nearestIndices(coords [][]float64, i, k int) []int {
	type cand struct {
		j int
		d float64
	}
	cands := make([]cand, 0, len(coords)-1)
	for j := range coords {
		if j == i {
			continue
		}
		cands = append(cands, cand{j: j, d: euclidean(coords[i], coords[j])})
	}
	sort.Slice(cands, func(a, b int) bool {
		if cands[a].d != cands[b].d {
			return cands[a].d < cands[b].d
		}
		return cands[a].j < cands[b].j
	})

	out := make([]int, k)
	for idx := 0; idx < k; idx++ {
		out[idx] = cands[idx].j
	}
	return out
}

func jaccard(a, b map[int]struct{}) float64 {
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func euclidean(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}
