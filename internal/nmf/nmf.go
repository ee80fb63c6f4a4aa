// Package nmf provides the nonnegative matrix factorization consumed by the
// embedding engine: V ≈ W·H with V an m×n feature-by-sample matrix, W the
// m×k feature loadings and H the k×n factor scores. It also projects new
// data onto trained loadings and scans reconstruction error over candidate
// factor counts.
package nmf

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// eps keeps multiplicative-update denominators away from zero.
const eps = 1e-12

var (
	// ErrBadInput marks invalid factorization input: nil or negative
	// matrices, or a factor count outside [1, min(m, n)].
	ErrBadInput = errors.New("nmf: invalid input")
	// ErrNotConverged reports that the update loop hit MaxIter before the
	// relative loss change fell below Tolerance. W and H are still usable.
	ErrNotConverged = errors.New("nmf: did not converge")
)

// Loss selects the reconstruction loss minimized by the updates.
type Loss int

const (
	// LossFrobenius minimizes squared error.
	LossFrobenius Loss = iota
	// LossKL minimizes generalized Kullback-Leibler divergence.
	LossKL
)

// Init selects the initialization strategy.
type Init int

const (
	// InitRandom draws W and H from a seeded uniform distribution.
	InitRandom Init = iota
	// InitNNDSVD seeds W and H from the sign-split singular vectors of V,
	// a deterministic direction-based decomposition.
	InitNNDSVD
)

// Config tunes a factorization run.
type Config struct {
	Loss      Loss
	Init      Init
	MaxIter   int
	Tolerance float64
	Seed      int64
}

// DefaultConfig returns the settings used when the caller leaves Config
// fields zero.
func DefaultConfig() Config {
	return Config{
		Loss:      LossFrobenius,
		Init:      InitNNDSVD,
		MaxIter:   400,
		Tolerance: 1e-5,
		Seed:      42,
	}
}

// Run factorizes the nonnegative m×n matrix v into W (m×k) and H (k×n) by
// multiplicative updates. Entries of both factors are nonnegative. The run is
// deterministic for a given input, config and seed.
func Run(v *mat.Dense, k int, cfg Config) (w, h *mat.Dense, err error) {
	if v == nil {
		return nil, nil, fmt.Errorf("%w: matrix is nil", ErrBadInput)
	}
	m, n := v.Dims()
	if k < 1 || k > m || k > n {
		return nil, nil, fmt.Errorf("%w: k=%d outside [1, min(%d, %d)]", ErrBadInput, k, m, n)
	}
	if err := checkNonnegative(v); err != nil {
		return nil, nil, err
	}
	cfg = withDefaults(cfg)

	w, h, err = initialize(v, k, cfg)
	if err != nil {
		return nil, nil, err
	}

	prev := math.Inf(1)
	for iter := 0; iter < cfg.MaxIter; iter++ {
		switch cfg.Loss {
		case LossKL:
			updateKL(v, w, h)
		default:
			updateFrobenius(v, w, h)
		}

		loss := reconstructionLoss(v, w, h, cfg.Loss)
		if prev-loss < cfg.Tolerance*math.Max(prev, 1) {
			return w, h, nil
		}
		prev = loss
	}
	return w, h, ErrNotConverged
}

// ProjectScores computes approximate factor scores for new data against
// trained loadings: a nonnegative least-squares-style fit of H in
// newV ≈ W·H with W held fixed.
func ProjectScores(w, newV *mat.Dense, cfg Config) (*mat.Dense, error) {
	if w == nil || newV == nil {
		return nil, fmt.Errorf("%w: matrix is nil", ErrBadInput)
	}
	m, k := w.Dims()
	vm, n := newV.Dims()
	if vm != m {
		return nil, fmt.Errorf("%w: loadings have %d features but new data has %d", ErrBadInput, m, vm)
	}
	if err := checkNonnegative(newV); err != nil {
		return nil, err
	}
	cfg = withDefaults(cfg)

	rng := rand.New(rand.NewSource(cfg.Seed))
	h := uniformMatrix(k, n, rng)
	prev := math.Inf(1)
	for iter := 0; iter < cfg.MaxIter; iter++ {
		updateH(newV, w, h)
		loss := reconstructionLoss(newV, w, h, LossFrobenius)
		if prev-loss < cfg.Tolerance*math.Max(prev, 1) {
			break
		}
		prev = loss
	}
	return h, nil
}

// KError is the reconstruction error recorded for one candidate factor count.
type KError struct {
	K   int     `json:"k"`
	Err float64 `json:"err"`
}

// SelectK factorizes v at each candidate k and reports the relative Frobenius
// reconstruction error, smallest k first. Callers pick the elbow.
func SelectK(v *mat.Dense, ks []int, cfg Config) ([]KError, error) {
	if len(ks) == 0 {
		return nil, fmt.Errorf("%w: no candidate factor counts", ErrBadInput)
	}
	out := make([]KError, 0, len(ks))
	for _, k := range ks {
		w, h, err := Run(v, k, cfg)
		if err != nil && !errors.Is(err, ErrNotConverged) {
			return nil, err
		}
		out = append(out, KError{K: k, Err: relativeError(v, w, h)})
	}
	return out, nil
}

func withDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.MaxIter <= 0 {
		cfg.MaxIter = def.MaxIter
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = def.Tolerance
	}
	return cfg
}

func initialize(v *mat.Dense, k int, cfg Config) (*mat.Dense, *mat.Dense, error) {
	m, n := v.Dims()
	switch cfg.Init {
	case InitNNDSVD:
		return nndsvd(v, k, cfg.Seed)
	default:
		rng := rand.New(rand.NewSource(cfg.Seed))
		scale := math.Sqrt(mat.Sum(v) / float64(m*n*k))
		w := uniformMatrix(m, k, rng)
		h := uniformMatrix(k, n, rng)
		w.Scale(scale, w)
		h.Scale(scale, h)
		return w, h, nil
	}
}

// nndsvd seeds the factors from the SVD of v, splitting each singular vector
// pair into its positive and negative parts and keeping the dominant side.
func nndsvd(v *mat.Dense, k int, seed int64) (*mat.Dense, *mat.Dense, error) {
	m, n := v.Dims()

	var svd mat.SVD
	if ok := svd.Factorize(v, mat.SVDThin); !ok {
		return nil, nil, fmt.Errorf("%w: SVD factorization failed", ErrBadInput)
	}
	var u, rv mat.Dense
	svd.UTo(&u)
	svd.VTo(&rv)
	sigma := svd.Values(nil)

	w := mat.NewDense(m, k, nil)
	h := mat.NewDense(k, n, nil)

	// Leading component: |u_0| and |v_0| are already nonnegative up to sign.
	s0 := math.Sqrt(sigma[0])
	for i := 0; i < m; i++ {
		w.Set(i, 0, s0*math.Abs(u.At(i, 0)))
	}
	for j := 0; j < n; j++ {
		h.Set(0, j, s0*math.Abs(rv.At(j, 0)))
	}

	for c := 1; c < k && c < len(sigma); c++ {
		up, un := splitSigns(mat.Col(nil, c, &u))
		vp, vn := splitSigns(mat.Col(nil, c, &rv))
		upNorm, unNorm := norm(up), norm(un)
		vpNorm, vnNorm := norm(vp), norm(vn)

		pos := upNorm * vpNorm
		neg := unNorm * vnNorm
		var uSide, vSide []float64
		var sideNormU, sideNormV, weight float64
		if pos >= neg {
			uSide, vSide, sideNormU, sideNormV, weight = up, vp, upNorm, vpNorm, pos
		} else {
			uSide, vSide, sideNormU, sideNormV, weight = un, vn, unNorm, vnNorm, neg
		}
		if weight == 0 {
			continue // dead component, left at zero and repaired below
		}
		s := math.Sqrt(sigma[c] * weight)
		for i := 0; i < m; i++ {
			w.Set(i, c, s*uSide[i]/sideNormU)
		}
		for j := 0; j < n; j++ {
			h.Set(c, j, s*vSide[j]/sideNormV)
		}
	}

	// Zero columns stall multiplicative updates; fill with small seeded
	// positive values.
	rng := rand.New(rand.NewSource(seed))
	mean := mat.Sum(v) / float64(m*n)
	repairZeros(w, mean/100, rng)
	repairZeros(h, mean/100, rng)
	return w, h, nil
}

func updateFrobenius(v, w, h *mat.Dense) {
	updateH(v, w, h)

	m, k := w.Dims()
	var vht, whht, hht mat.Dense
	vht.Mul(v, h.T())
	hht.Mul(h, h.T())
	whht.Mul(w, &hht)
	for i := 0; i < m; i++ {
		for c := 0; c < k; c++ {
			w.Set(i, c, w.At(i, c)*vht.At(i, c)/(whht.At(i, c)+eps))
		}
	}
}

// updateH applies the Frobenius multiplicative update to H only.
func updateH(v, w, h *mat.Dense) {
	k, n := h.Dims()
	var wtv, wtwh, wtw mat.Dense
	wtv.Mul(w.T(), v)
	wtw.Mul(w.T(), w)
	wtwh.Mul(&wtw, h)
	for c := 0; c < k; c++ {
		for j := 0; j < n; j++ {
			h.Set(c, j, h.At(c, j)*wtv.At(c, j)/(wtwh.At(c, j)+eps))
		}
	}
}

func updateKL(v, w, h *mat.Dense) {
	m, n := v.Dims()
	_, k := w.Dims()

	var wh mat.Dense
	wh.Mul(w, h)

	// H update: H ∘ (Wᵀ(V/WH)) / (Wᵀ1)
	ratio := mat.NewDense(m, n, nil)
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			ratio.Set(i, j, v.At(i, j)/(wh.At(i, j)+eps))
		}
	}
	var num mat.Dense
	num.Mul(w.T(), ratio)
	colSumsW := make([]float64, k)
	for c := 0; c < k; c++ {
		for i := 0; i < m; i++ {
			colSumsW[c] += w.At(i, c)
		}
	}
	for c := 0; c < k; c++ {
		for j := 0; j < n; j++ {
			h.Set(c, j, h.At(c, j)*num.At(c, j)/(colSumsW[c]+eps))
		}
	}

	// W update against the refreshed H.
	wh.Mul(w, h)
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			ratio.Set(i, j, v.At(i, j)/(wh.At(i, j)+eps))
		}
	}
	var numW mat.Dense
	numW.Mul(ratio, h.T())
	rowSumsH := make([]float64, k)
	for c := 0; c < k; c++ {
		for j := 0; j < n; j++ {
			rowSumsH[c] += h.At(c, j)
		}
	}
	for i := 0; i < m; i++ {
		for c := 0; c < k; c++ {
			w.Set(i, c, w.At(i, c)*numW.At(i, c)/(rowSumsH[c]+eps))
		}
	}
}

func reconstructionLoss(v, w, h *mat.Dense, loss Loss) float64 {
	var wh mat.Dense
	wh.Mul(w, h)
	m, n := v.Dims()

	if loss == LossKL {
		total := 0.0
		for i := 0; i < m; i++ {
			for j := 0; j < n; j++ {
				x, y := v.At(i, j), wh.At(i, j)+eps
				if x > 0 {
					total += x*math.Log(x/y) - x + y
				} else {
					total += y
				}
			}
		}
		return total / float64(m*n)
	}

	var diff mat.Dense
	diff.Sub(v, &wh)
	return mat.Norm(&diff, 2)
}

// relativeError is ||V - WH||_F / ||V||_F.
func relativeError(v, w, h *mat.Dense) float64 {
	var wh, diff mat.Dense
	wh.Mul(w, h)
	diff.Sub(v, &wh)
	denom := mat.Norm(v, 2)
	if denom == 0 {
		return 0
	}
	return mat.Norm(&diff, 2) / denom
}

func uniformMatrix(r, c int, rng *rand.Rand) *mat.Dense {
	data := make([]float64, r*c)
	for i := range data {
		data[i] = rng.Float64() + eps
	}
	return mat.NewDense(r, c, data)
}

func repairZeros(m *mat.Dense, floor float64, rng *rand.Rand) {
	r, c := m.Dims()
	if floor <= 0 {
		floor = eps
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if m.At(i, j) <= 0 {
				m.Set(i, j, floor*rng.Float64())
			}
		}
	}
}

func splitSigns(v []float64) (pos, neg []float64) {
	pos = make([]float64, len(v))
	neg = make([]float64, len(v))
	for i, x := range v {
		if x > 0 {
			pos[i] = x
		} else {
			neg[i] = -x
		}
	}
	return pos, neg
}

func norm(v []float64) float64 {
	sum := 0.0
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

func checkNonnegative(v *mat.Dense) error {
	r, c := v.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v.At(i, j) < 0 {
				return fmt.Errorf("%w: negative entry %g at (%d,%d)", ErrBadInput, v.At(i, j), i, j)
			}
		}
	}
	return nil
}
