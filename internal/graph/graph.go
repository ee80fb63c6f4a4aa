// Package graph provides the sparse similarity graphs consumed by the
// embedding engine: a symmetric shared-nearest-neighbor graph over training
// samples and a bipartite graph linking new samples into the training set.
package graph

import (
	"errors"
	"fmt"
)

var (
	// ErrNegativeWeight rejects edges with weights below zero.
	ErrNegativeWeight = errors.New("graph: edge weight must be nonnegative")
	// ErrSelfEdge rejects diagonal entries; the similarity graph keeps a
	// zero diagonal.
	ErrSelfEdge = errors.New("graph: self edges are not allowed")
	// ErrUnknownNode marks an edge endpoint outside the node set.
	ErrUnknownNode = errors.New("graph: unknown node index")
)

// Edge is one weighted adjacency entry.
type Edge struct {
	To     int
	Weight float64
}

// Sparse is a symmetric weighted graph over named samples, stored as
// row-indexed adjacency lists. The node order matches the sample order of the
// score matrix it accompanies.
type Sparse struct {
	names []string
	rows  [][]Edge
}

// NewSparse creates an empty graph over the given sample names.
func NewSparse(names []string) *Sparse {
	return &Sparse{
		names: append([]string(nil), names...),
		rows:  make([][]Edge, len(names)),
	}
}

// Len returns the number of nodes.
func (g *Sparse) Len() int { return len(g.names) }

// Names returns the node names in order.
func (g *Sparse) Names() []string { return g.names }

// AddEdge records a symmetric edge between i and j. A zero weight is a no-op
// since absent entries already mean "no edge".
func (g *Sparse) AddEdge(i, j int, weight float64) error {
	if i < 0 || i >= len(g.rows) || j < 0 || j >= len(g.rows) {
		return fmt.Errorf("%w: (%d,%d) in graph of %d nodes", ErrUnknownNode, i, j, len(g.rows))
	}
	if i == j {
		return fmt.Errorf("%w: node %d", ErrSelfEdge, i)
	}
	if weight < 0 {
		return fmt.Errorf("%w: %g", ErrNegativeWeight, weight)
	}
	if weight == 0 {
		return nil
	}
	g.rows[i] = upsert(g.rows[i], j, weight)
	g.rows[j] = upsert(g.rows[j], i, weight)
	return nil
}

// Neighbors returns node i's adjacency row. The slice is owned by the graph
// and must not be modified.
func (g *Sparse) Neighbors(i int) []Edge { return g.rows[i] }

// EdgeCount returns the number of undirected edges.
func (g *Sparse) EdgeCount() int {
	total := 0
	for _, row := range g.rows {
		total += len(row)
	}
	return total / 2
}

// Bipartite is a rectangular weighted graph whose rows are new samples and
// whose columns index into a fixed set of training samples.
type Bipartite struct {
	rowNames []string
	colNames []string
	rows     [][]Edge
}

// NewBipartite creates an empty bipartite graph from new-sample names to
// training-sample names.
func NewBipartite(rowNames, colNames []string) *Bipartite {
	return &Bipartite{
		rowNames: append([]string(nil), rowNames...),
		colNames: append([]string(nil), colNames...),
		rows:     make([][]Edge, len(rowNames)),
	}
}

// Rows returns the new-sample names in order.
func (b *Bipartite) Rows() []string { return b.rowNames }

// Cols returns the training-sample names in order.
func (b *Bipartite) Cols() []string { return b.colNames }

// AddEdge records a weighted edge from new sample i to training sample j.
func (b *Bipartite) AddEdge(i, j int, weight float64) error {
	if i < 0 || i >= len(b.rows) {
		return fmt.Errorf("%w: row %d of %d", ErrUnknownNode, i, len(b.rows))
	}
	if j < 0 || j >= len(b.colNames) {
		return fmt.Errorf("%w: column %d of %d", ErrUnknownNode, j, len(b.colNames))
	}
	if weight < 0 {
		return fmt.Errorf("%w: %g", ErrNegativeWeight, weight)
	}
	if weight == 0 {
		return nil
	}
	b.rows[i] = upsert(b.rows[i], j, weight)
	return nil
}

// Neighbors returns new sample i's edges into the training set.
func (b *Bipartite) Neighbors(i int) []Edge { return b.rows[i] }

func upsert(row []Edge, to int, weight float64) []Edge {
	for i := range row {
		if row[i].To == to {
			row[i].Weight = weight
			return row
		}
	}
	return append(row, Edge{To: to, Weight: weight})
}
