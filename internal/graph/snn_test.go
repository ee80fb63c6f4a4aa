package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Two tight clusters around (0,0) and (10,10).
func clusteredCoords() ([]string, [][]float64) {
	names := []string{"a1", "a2", "a3", "b1", "b2", "b3"}
	coords := [][]float64{
		{0, 0}, {0.1, 0}, {0, 0.1},
		{10, 10}, {10.1, 10}, {10, 10.1},
	}
	return names, coords
}

func TestBuildSNN_ConnectsWithinClusters(t *testing.T) {
	names, coords := clusteredCoords()

	g, err := BuildSNN(names, coords, 2, DefaultPruneThreshold)
	require.NoError(t, err)

	// Every pair within a cluster shares the full neighborhood; across
	// clusters there is no overlap at k=2, so those edges are pruned away.
	assert.Equal(t, 6, g.EdgeCount())
	for i := 0; i < 3; i++ {
		for _, e := range g.Neighbors(i) {
			assert.Less(t, e.To, 3, "cross-cluster edge from %s", names[i])
			assert.InDelta(t, 1.0, e.Weight, 1e-12)
		}
	}
}

func TestBuildSNN_WeightsBounded(t *testing.T) {
	names := []string{"a", "b", "c", "d", "e"}
	coords := [][]float64{{0, 0}, {1, 0}, {2, 1}, {0.5, 2}, {3, 3}}

	g, err := BuildSNN(names, coords, 2, 0.01)
	require.NoError(t, err)

	for i := range names {
		for _, e := range g.Neighbors(i) {
			assert.Greater(t, e.Weight, 0.0)
			assert.LessOrEqual(t, e.Weight, 1.0)
			assert.NotEqual(t, i, e.To)
		}
	}
}

func TestBuildSNN_PruneDropsWeakOverlap(t *testing.T) {
	names, coords := clusteredCoords()

	loose, err := BuildSNN(names, coords, 4, 0)
	require.NoError(t, err)
	strict, err := BuildSNN(names, coords, 4, 0.9)
	require.NoError(t, err)

	assert.Greater(t, loose.EdgeCount(), strict.EdgeCount())
}

func TestBuildSNN_Validation(t *testing.T) {
	names, coords := clusteredCoords()

	_, err := BuildSNN(names[:3], coords, 2, 0)
	assert.Error(t, err)

	_, err = BuildSNN(names, coords, 0, 0)
	assert.Error(t, err)

	_, err = BuildSNN(names, coords, len(coords), 0)
	assert.Error(t, err)
}

func TestBuildBipartite_NearestTrainingSamples(t *testing.T) {
	trainNames := []string{"s1", "s2", "s3"}
	trainCoords := [][]float64{{0, 0}, {5, 0}, {10, 0}}

	b, err := BuildBipartite([]string{"q1"}, [][]float64{{1, 0}}, trainNames, trainCoords, 2)
	require.NoError(t, err)

	edges := b.Neighbors(0)
	require.Len(t, edges, 2)
	got := map[int]float64{}
	for _, e := range edges {
		got[e.To] = e.Weight
		assert.Greater(t, e.Weight, 0.0)
		assert.LessOrEqual(t, e.Weight, 1.0)
	}
	// q1 sits next to s1, so s1 and s2 are its neighbors and s1 is heavier.
	assert.Contains(t, got, 0)
	assert.Contains(t, got, 1)
	assert.Greater(t, got[0], got[1])
}

func TestBuildBipartite_ExactMatchGetsUnitWeight(t *testing.T) {
	b, err := BuildBipartite([]string{"q1"}, [][]float64{{2, 2}}, []string{"s1", "s2"}, [][]float64{{2, 2}, {9, 9}}, 1)
	require.NoError(t, err)

	edges := b.Neighbors(0)
	require.Len(t, edges, 1)
	assert.Equal(t, Edge{To: 0, Weight: 1}, edges[0])
}

func TestBuildBipartite_Validation(t *testing.T) {
	_, err := BuildBipartite([]string{"q1"}, nil, []string{"s1"}, [][]float64{{0}}, 1)
	assert.Error(t, err)

	_, err = BuildBipartite([]string{"q1"}, [][]float64{{0}}, []string{"s1"}, [][]float64{{0}}, 2)
	assert.Error(t, err)
}
