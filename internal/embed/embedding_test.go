package embed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/TomKellyGenetics/swne/internal/graph"
)

func testGraph(t *testing.T, samples []string, edges [][3]float64) *graph.Sparse {
	t.Helper()
	g := graph.NewSparse(samples)
	for _, e := range edges {
		require.NoError(t, g.AddEdge(int(e[0]), int(e[1]), e[2]))
	}
	return g
}

func TestEmbedSWNE_RejectsBadNPull(t *testing.T) {
	sm := fourFactorScores(t)

	_, _, err := EmbedSWNE(sm, nil, Params{NPull: 2, Alpha: 1, SNNExp: 1, Distance: DistanceIC})
	assert.ErrorIs(t, err, ErrConfig)

	_, _, err = EmbedSWNE(sm, nil, Params{NPull: 5, Alpha: 1, SNNExp: 1, Distance: DistanceIC})
	assert.ErrorIs(t, err, ErrConfig)

	_, _, err = EmbedSWNE(sm, nil, Params{NPull: 3, Alpha: 0, SNNExp: 1, Distance: DistanceIC})
	assert.ErrorIs(t, err, ErrConfig)
}

func TestEmbedSWNE_RejectsMismatchedGraph(t *testing.T) {
	sm := fourFactorScores(t)

	wrongSize := graph.NewSparse([]string{"s1", "s2"})
	_, _, err := EmbedSWNE(sm, wrongSize, Params{NPull: 3, Alpha: 1, SNNExp: 1, Distance: DistanceIC})
	assert.ErrorIs(t, err, ErrConfig)

	wrongNames := graph.NewSparse([]string{"x1", "x2", "x3", "x4", "x5", "x6"})
	_, _, err = EmbedSWNE(sm, wrongNames, Params{NPull: 3, Alpha: 1, SNNExp: 1, Distance: DistanceIC})
	assert.ErrorIs(t, err, ErrConfig)
}

func TestEmbedSWNE_Idempotent(t *testing.T) {
	sm := fourFactorScores(t)
	g := testGraph(t, sm.Samples, [][3]float64{{0, 1, 0.8}, {2, 3, 0.6}, {4, 5, 0.3}})
	params := Params{NPull: 3, Alpha: 1.25, SNNExp: 1, Distance: DistanceIC, Reducer: "sammon", Seed: 42}

	e1, _, err := EmbedSWNE(sm, g, params)
	require.NoError(t, err)
	e2, _, err := EmbedSWNE(sm, g, params)
	require.NoError(t, err)

	assert.Equal(t, e1.Anchors, e2.Anchors)
	assert.Equal(t, e1.Samples, e2.Samples)
}

func TestEmbedSWNE_SamplesInsideAnchorHull(t *testing.T) {
	sm := fourFactorScores(t)
	g := testGraph(t, sm.Samples, [][3]float64{{0, 1, 0.8}, {1, 2, 0.4}})

	emb, _, err := EmbedSWNE(sm, g, Params{NPull: 3, Alpha: 2, SNNExp: 1, Distance: DistanceCosine, Reducer: "mds", Seed: 1})
	require.NoError(t, err)

	minX, maxX, minY, maxY := bounds(emb.Anchors)
	for id, p := range emb.Samples {
		assert.GreaterOrEqualf(t, p.X, minX, "sample %s left of hull", id)
		assert.LessOrEqualf(t, p.X, maxX, "sample %s right of hull", id)
		assert.GreaterOrEqualf(t, p.Y, minY, "sample %s below hull", id)
		assert.LessOrEqualf(t, p.Y, maxY, "sample %s above hull", id)
	}
}

func TestEmbedSWNE_ReportsDegeneracies(t *testing.T) {
	data := []float64{
		5, 0, 1, 2,
		3, 0, 0, 1,
		0, 0, 4, 4,
	}
	sm, err := NewScoreMatrix(
		[]string{"f1", "f2", "f3"},
		[]string{"s1", "s2", "s3", "s4"},
		mat.NewDense(3, 4, data),
	)
	require.NoError(t, err)

	// s2 has an all-zero loading vector; s4 has no graph edges.
	g := testGraph(t, sm.Samples, [][3]float64{{0, 1, 0.5}, {0, 2, 0.5}, {1, 2, 0.5}})

	_, degeneracies, err := EmbedSWNE(sm, g, Params{NPull: 3, Alpha: 1, SNNExp: 1, Distance: DistanceIC, Seed: 3})
	require.NoError(t, err)

	assert.Contains(t, degeneracies, Degeneracy{Kind: DegenerateZeroLoadings, ID: "s2"})
	assert.Contains(t, degeneracies, Degeneracy{Kind: DegenerateNoNeighbors, ID: "s4"})
}

func TestEmbedFeatures_PlacesSubsetWithoutTouchingLayout(t *testing.T) {
	sm := fourFactorScores(t)
	emb, _, err := EmbedSWNE(sm, nil, Params{NPull: 3, Alpha: 1, SNNExp: 1, Distance: DistanceIC, Seed: 42})
	require.NoError(t, err)

	loadings, err := NewLoadingMatrix(
		[]string{"geneA", "geneB", "geneC"},
		sm.Factors,
		mat.NewDense(3, 4, []float64{
			4, 1, 0, 0,
			0, 0, 5, 1,
			1, 1, 1, 1,
		}),
	)
	require.NoError(t, err)

	out, degeneracies, err := EmbedFeatures(emb, loadings, []string{"geneA", "geneC"}, 3, 1.5)
	require.NoError(t, err)
	assert.Empty(t, degeneracies)

	assert.Len(t, out.Features, 2)
	assert.Contains(t, out.Features, "geneA")
	assert.Contains(t, out.Features, "geneC")
	assert.Equal(t, emb.Anchors, out.Anchors)
	assert.Equal(t, emb.Samples, out.Samples)
	// The input embedding keeps its (empty) feature set.
	assert.Empty(t, emb.Features)

	minX, maxX, minY, maxY := bounds(out.Anchors)
	for id, p := range out.Features {
		assert.GreaterOrEqualf(t, p.X, minX, "feature %s outside hull", id)
		assert.LessOrEqualf(t, p.X, maxX, "feature %s outside hull", id)
		assert.GreaterOrEqualf(t, p.Y, minY, "feature %s outside hull", id)
		assert.LessOrEqualf(t, p.Y, maxY, "feature %s outside hull", id)
	}
}

func TestEmbedFeatures_EmptySubsetEmbedsAll(t *testing.T) {
	sm := fourFactorScores(t)
	emb, _, err := EmbedSWNE(sm, nil, Params{NPull: 3, Alpha: 1, SNNExp: 1, Distance: DistanceIC, Seed: 42})
	require.NoError(t, err)

	loadings, err := NewLoadingMatrix(
		[]string{"geneA", "geneB"},
		sm.Factors,
		mat.NewDense(2, 4, []float64{1, 0, 0, 2, 0, 3, 1, 0}),
	)
	require.NoError(t, err)

	out, _, err := EmbedFeatures(emb, loadings, nil, 3, 1)
	require.NoError(t, err)
	assert.Len(t, out.Features, 2)
}

func TestEmbedFeatures_MissingFeature(t *testing.T) {
	sm := fourFactorScores(t)
	emb, _, err := EmbedSWNE(sm, nil, Params{NPull: 3, Alpha: 1, SNNExp: 1, Distance: DistanceIC, Seed: 42})
	require.NoError(t, err)

	loadings, err := NewLoadingMatrix(
		[]string{"geneA"},
		sm.Factors,
		mat.NewDense(1, 4, []float64{1, 0, 0, 2}),
	)
	require.NoError(t, err)

	_, _, err = EmbedFeatures(emb, loadings, []string{"geneZ"}, 3, 1)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestSummarizeAssocFeatures(t *testing.T) {
	loadings, err := NewLoadingMatrix(
		[]string{"geneA", "geneB", "geneC"},
		[]string{"f1", "f2"},
		mat.NewDense(3, 2, []float64{
			0.9, 0.1,
			0.2, 0.8,
			0.5, 0.5,
		}),
	)
	require.NoError(t, err)

	summary, err := SummarizeAssocFeatures(loadings, 2)
	require.NoError(t, err)

	require.Len(t, summary["f1"], 2)
	assert.Equal(t, "geneA", summary["f1"][0].Feature)
	assert.Equal(t, "geneC", summary["f1"][1].Feature)
	assert.Equal(t, "geneB", summary["f2"][0].Feature)

	_, err = SummarizeAssocFeatures(loadings, 0)
	assert.ErrorIs(t, err, ErrConfig)
}

func bounds(anchors []Anchor) (minX, maxX, minY, maxY float64) {
	minX, maxX = anchors[0].Point.X, anchors[0].Point.X
	minY, maxY = anchors[0].Point.Y, anchors[0].Point.Y
	for _, a := range anchors[1:] {
		if a.Point.X < minX {
			minX = a.Point.X
		}
		if a.Point.X > maxX {
			maxX = a.Point.X
		}
		if a.Point.Y < minY {
			minY = a.Point.Y
		}
		if a.Point.Y > maxY {
			maxY = a.Point.Y
		}
	}
	return minX, maxX, minY, maxY
}
