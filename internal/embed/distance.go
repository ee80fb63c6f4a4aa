package embed

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// DistanceMode selects the factor-to-factor dissimilarity used by the anchor
// layout.
type DistanceMode string

const (
	// DistanceIC weights each sample's contribution by its information
	// content: samples concentrated on few factors separate anchors more
	// than samples spread evenly across all factors.
	DistanceIC DistanceMode = "ic"
	// DistanceCosine is one minus the cosine similarity of the factors'
	// score vectors.
	DistanceCosine DistanceMode = "cosine"
)

// Dissimilarity computes the k×k pairwise factor dissimilarity matrix from a
// k×n score matrix under the selected mode. The result is symmetric with a
// zero diagonal.
func Dissimilarity(scores *mat.Dense, mode DistanceMode) (*mat.Dense, error) {
	k, _ := scores.Dims()
	d := mat.NewDense(k, k, nil)

	switch mode {
	case DistanceCosine:
		for i := 0; i < k; i++ {
			ri := mat.Row(nil, i, scores)
			for j := i + 1; j < k; j++ {
				rj := mat.Row(nil, j, scores)
				dist := 1 - cosineSimilarity(ri, rj)
				d.Set(i, j, dist)
				d.Set(j, i, dist)
			}
		}
	case DistanceIC:
		ic := informationContent(scores)
		rows := rowDistributions(scores)
		for i := 0; i < k; i++ {
			for j := i + 1; j < k; j++ {
				dist := weightedEuclidean(rows[i], rows[j], ic)
				d.Set(i, j, dist)
				d.Set(j, i, dist)
			}
		}
	default:
		return nil, configErrorf("unknown distance mode %q", mode)
	}

	return d, nil
}

// cosineSimilarity returns the cosine of the angle between a and b, or 0 when
// either vector has zero magnitude.
func cosineSimilarity(a, b []float64) float64 {
	dot := floats.Dot(a, b)
	magA := math.Sqrt(floats.Dot(a, a))
	magB := math.Sqrt(floats.Dot(b, b))
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (magA * magB)
}

// informationContent scores each sample column by how far its distribution
// over factors is from uniform, in bits. A sample loading on a single factor
// gets the maximum log2(k); a sample loading evenly on all factors gets 0.
func informationContent(scores *mat.Dense) []float64 {
	k, n := scores.Dims()
	maxBits := math.Log2(float64(k))

	ic := make([]float64, n)
	for j := 0; j < n; j++ {
		col := mat.Col(nil, j, scores)
		total := floats.Sum(col)
		if total == 0 {
			continue
		}
		entropy := 0.0
		for _, v := range col {
			if v > 0 {
				p := v / total
				entropy -= p * math.Log2(p)
			}
		}
		ic[j] = maxBits - entropy
	}
	return ic
}

// rowDistributions normalizes each factor's score vector to sum to 1. A
// factor with no mass stays at the uniform distribution so distances to it
// remain finite.
func rowDistributions(scores *mat.Dense) [][]float64 {
	k, n := scores.Dims()
	rows := make([][]float64, k)
	for i := 0; i < k; i++ {
		row := mat.Row(nil, i, scores)
		total := floats.Sum(row)
		if total == 0 {
			for j := range row {
				row[j] = 1 / float64(n)
			}
		} else {
			floats.Scale(1/total, row)
		}
		rows[i] = row
	}
	return rows
}

func weightedEuclidean(a, b, w []float64) float64 {
	sum := 0.0
	for i := range a {
		diff := a[i] - b[i]
		sum += w[i] * diff * diff
	}
	return math.Sqrt(sum)
}
