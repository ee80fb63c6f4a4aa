package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSparse_AddEdgeValidation(t *testing.T) {
	g := NewSparse([]string{"a", "b", "c"})

	assert.ErrorIs(t, g.AddEdge(0, 3, 0.5), ErrUnknownNode)
	assert.ErrorIs(t, g.AddEdge(-1, 1, 0.5), ErrUnknownNode)
	assert.ErrorIs(t, g.AddEdge(1, 1, 0.5), ErrSelfEdge)
	assert.ErrorIs(t, g.AddEdge(0, 1, -0.1), ErrNegativeWeight)
	assert.Equal(t, 0, g.EdgeCount())
}

func TestSparse_EdgesAreSymmetric(t *testing.T) {
	g := NewSparse([]string{"a", "b", "c"})
	require.NoError(t, g.AddEdge(0, 2, 0.7))

	require.Len(t, g.Neighbors(0), 1)
	require.Len(t, g.Neighbors(2), 1)
	assert.Equal(t, Edge{To: 2, Weight: 0.7}, g.Neighbors(0)[0])
	assert.Equal(t, Edge{To: 0, Weight: 0.7}, g.Neighbors(2)[0])
	assert.Empty(t, g.Neighbors(1))
	assert.Equal(t, 1, g.EdgeCount())
}

func TestSparse_ZeroWeightIsNoOp(t *testing.T) {
	g := NewSparse([]string{"a", "b"})
	require.NoError(t, g.AddEdge(0, 1, 0))
	assert.Equal(t, 0, g.EdgeCount())
}

func TestSparse_AddEdgeOverwrites(t *testing.T) {
	g := NewSparse([]string{"a", "b"})
	require.NoError(t, g.AddEdge(0, 1, 0.4))
	require.NoError(t, g.AddEdge(1, 0, 0.9))

	assert.Equal(t, 1, g.EdgeCount())
	assert.Equal(t, 0.9, g.Neighbors(0)[0].Weight)
	assert.Equal(t, 0.9, g.Neighbors(1)[0].Weight)
}

func TestBipartite_AddEdgeValidation(t *testing.T) {
	b := NewBipartite([]string{"q1"}, []string{"s1", "s2"})

	assert.ErrorIs(t, b.AddEdge(1, 0, 0.5), ErrUnknownNode)
	assert.ErrorIs(t, b.AddEdge(0, 2, 0.5), ErrUnknownNode)
	assert.ErrorIs(t, b.AddEdge(0, 0, -1), ErrNegativeWeight)

	require.NoError(t, b.AddEdge(0, 1, 0.8))
	require.Len(t, b.Neighbors(0), 1)
	assert.Equal(t, Edge{To: 1, Weight: 0.8}, b.Neighbors(0)[0])
}
