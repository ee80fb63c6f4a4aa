package embed

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Point is a position in the shared 2D layout.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Anchor is the fixed 2D position assigned to one factor.
type Anchor struct {
	Factor string `json:"factor"`
	Point  Point  `json:"point"`
}

// Params holds the tuning parameters for a full embedding run.
type Params struct {
	// NPull is the number of top-loading anchors that pull each entity.
	NPull int `json:"n_pull"`
	// Alpha is the sharpness exponent applied to pull weights. Must be > 0.
	Alpha float64 `json:"alpha_exp"`
	// SNNExp is the smoothing exponent applied to graph edge weights.
	SNNExp float64 `json:"snn_exp"`
	// Distance selects the factor dissimilarity used for the anchor layout.
	Distance DistanceMode `json:"distance"`
	// Reducer names the 2D projection strategy ("mds" or "sammon").
	Reducer string `json:"reducer"`
	// Seed drives every stochastic step so runs are reproducible.
	Seed int64 `json:"seed"`
}

// DefaultParams returns the parameters used when the caller leaves them unset.
func DefaultParams() Params {
	return Params{
		NPull:    3,
		Alpha:    1.25,
		SNNExp:   1.0,
		Distance: DistanceIC,
		Reducer:  "sammon",
		Seed:     42,
	}
}

// ScoreMatrix is a nonnegative k×n factor-by-sample score matrix. Column j is
// sample j's loading across the k factors. Read-only to the engine.
type ScoreMatrix struct {
	Factors []string
	Samples []string
	Scores  *mat.Dense
}

// NewScoreMatrix validates shape agreement between the identifier lists and
// the dense matrix and rejects negative entries.
func NewScoreMatrix(factors, samples []string, scores *mat.Dense) (*ScoreMatrix, error) {
	if scores == nil {
		return nil, configErrorf("score matrix is nil")
	}
	r, c := scores.Dims()
	if r != len(factors) || c != len(samples) {
		return nil, configErrorf("score matrix is %dx%d but %d factors and %d samples were named", r, c, len(factors), len(samples))
	}
	if err := checkNonnegative(scores, "score"); err != nil {
		return nil, err
	}
	return &ScoreMatrix{Factors: factors, Samples: samples, Scores: scores}, nil
}

// K returns the number of factors.
func (m *ScoreMatrix) K() int { return len(m.Factors) }

// N returns the number of samples.
func (m *ScoreMatrix) N() int { return len(m.Samples) }

// Column returns sample j's loading vector over all factors.
func (m *ScoreMatrix) Column(j int) []float64 {
	return mat.Col(nil, j, m.Scores)
}

// LoadingMatrix is a nonnegative m×k feature-by-factor loading matrix. Row i
// is feature i's loading across the k factors. Read-only to the engine.
type LoadingMatrix struct {
	Features []string
	Factors  []string
	Loadings *mat.Dense

	index map[string]int
}

// NewLoadingMatrix validates shape agreement and nonnegativity and builds the
// feature name index used by lookups.
func NewLoadingMatrix(features, factors []string, loadings *mat.Dense) (*LoadingMatrix, error) {
	if loadings == nil {
		return nil, configErrorf("loading matrix is nil")
	}
	r, c := loadings.Dims()
	if r != len(features) || c != len(factors) {
		return nil, configErrorf("loading matrix is %dx%d but %d features and %d factors were named", r, c, len(features), len(factors))
	}
	if err := checkNonnegative(loadings, "loading"); err != nil {
		return nil, err
	}
	idx := make(map[string]int, len(features))
	for i, f := range features {
		idx[f] = i
	}
	return &LoadingMatrix{Features: features, Factors: factors, Loadings: loadings, index: idx}, nil
}

// Row returns the named feature's loading vector over all factors.
func (m *LoadingMatrix) Row(feature string) ([]float64, bool) {
	i, ok := m.index[feature]
	if !ok {
		return nil, false
	}
	return mat.Row(nil, i, m.Loadings), true
}

// Embedding is a computed layout: anchors, sample positions, optional feature
// positions, and the parameters that produced them. Embeddings are produced
// by value and never mutated after assembly; EmbedFeatures returns a copy.
type Embedding struct {
	Anchors  []Anchor          `json:"anchors"`
	Samples  map[string]Point  `json:"samples"`
	Features map[string]Point  `json:"features,omitempty"`
	Params   Params            `json:"params"`
}

// clone copies an Embedding deeply enough that the copy can be extended
// without touching the original's maps.
func (e *Embedding) clone() *Embedding {
	out := &Embedding{
		Anchors: append([]Anchor(nil), e.Anchors...),
		Samples: make(map[string]Point, len(e.Samples)),
		Params:  e.Params,
	}
	for id, p := range e.Samples {
		out.Samples[id] = p
	}
	if e.Features != nil {
		out.Features = make(map[string]Point, len(e.Features))
		for id, p := range e.Features {
			out.Features[id] = p
		}
	}
	return out
}

func checkNonnegative(m *mat.Dense, what string) error {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if m.At(i, j) < 0 {
				return configErrorf("%s matrix has negative entry %g at (%d,%d)", what, m.At(i, j), i, j)
			}
		}
	}
	return nil
}

// anchorPoints strips factor names off a layout, for the pull inner loop.
func anchorPoints(anchors []Anchor) []Point {
	pts := make([]Point, len(anchors))
	for i, a := range anchors {
		pts[i] = a.Point
	}
	return pts
}

func (p Point) String() string {
	return fmt.Sprintf("(%.4f, %.4f)", p.X, p.Y)
}
