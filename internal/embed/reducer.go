package embed

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Reducer projects a k×k dissimilarity matrix down to k points in 2D.
// Implementations must be deterministic for a given input and seed.
type Reducer interface {
	Reduce(dissim *mat.Dense, seed int64) ([]Point, error)
	Name() string
}

// NewReducer returns the reducer registered under name. The zero value of
// Params selects "sammon".
func NewReducer(name string) (Reducer, error) {
	switch name {
	case "mds":
		return &MDSReducer{}, nil
	case "sammon", "":
		return &SammonReducer{}, nil
	default:
		return nil, configErrorf("unknown reducer %q", name)
	}
}

// MDSReducer implements classical (Torgerson) metric multidimensional
// scaling: a linear, variance-maximizing projection of the dissimilarities.
type MDSReducer struct{}

// Name returns the reducer name.
func (r *MDSReducer) Name() string { return "mds" }

// Reduce double-centers the squared dissimilarities and takes the top two
// eigenpairs of the resulting Gram matrix.
func (r *MDSReducer) Reduce(dissim *mat.Dense, seed int64) ([]Point, error) {
	k, _ := dissim.Dims()

	// B = -1/2 * J * D^2 * J with J = I - 11'/k.
	b := mat.NewSymDense(k, nil)
	rowMeans := make([]float64, k)
	grand := 0.0
	sq := mat.NewDense(k, k, nil)
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			v := dissim.At(i, j)
			sq.Set(i, j, v*v)
			rowMeans[i] += v * v
		}
		rowMeans[i] /= float64(k)
		grand += rowMeans[i]
	}
	grand /= float64(k)
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			b.SetSym(i, j, -0.5*(sq.At(i, j)-rowMeans[i]-rowMeans[j]+grand))
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(b, true); !ok {
		return nil, configErrorf("eigendecomposition of the centered dissimilarity matrix failed")
	}

	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	// gonum orders eigenvalues ascending; the two largest are at the end.
	points := make([]Point, k)
	sx := math.Sqrt(math.Max(vals[k-1], 0))
	sy := math.Sqrt(math.Max(vals[k-2], 0))
	for i := 0; i < k; i++ {
		points[i] = Point{
			X: sx * vecs.At(i, k-1),
			Y: sy * vecs.At(i, k-2),
		}
	}

	return normalizePoints(points), nil
}

// SammonReducer refines an MDS start with Sammon-mapping iterations, a
// manifold-preserving nonlinear projection that favors short dissimilarities.
type SammonReducer struct {
	// MaxIter bounds the gradient iterations; 0 means the default 300.
	MaxIter int
}

// Name returns the reducer name.
func (r *SammonReducer) Name() string { return "sammon" }

// Reduce runs Sammon's iterative stress minimization starting from the
// classical MDS configuration. The seed only matters when the start is
// degenerate and needs a reproducible jitter.
func (r *SammonReducer) Reduce(dissim *mat.Dense, seed int64) ([]Point, error) {
	mds := &MDSReducer{}
	points, err := mds.Reduce(dissim, seed)
	if err != nil {
		return nil, err
	}

	k := len(points)
	maxIter := r.MaxIter
	if maxIter <= 0 {
		maxIter = 300
	}

	// A flat start (all targets zero) gives Sammon nothing to work with;
	// spread it reproducibly before iterating.
	if flat(points) {
		rng := rand.New(rand.NewSource(seed))
		for i := range points {
			points[i].X = rng.Float64()*2 - 1
			points[i].Y = rng.Float64()*2 - 1
		}
	}

	total := 0.0
	for i := 0; i < k; i++ {
		for j := i + 1; j < k; j++ {
			total += dissim.At(i, j)
		}
	}
	if total == 0 {
		return points, nil
	}

	const magic = 0.3 // Sammon's step-size factor
	for iter := 0; iter < maxIter; iter++ {
		moved := 0.0
		for i := 0; i < k; i++ {
			var gx, gy, hx, hy float64
			for j := 0; j < k; j++ {
				if j == i {
					continue
				}
				target := dissim.At(i, j)
				if target == 0 {
					continue
				}
				dx := points[i].X - points[j].X
				dy := points[i].Y - points[j].Y
				d := math.Hypot(dx, dy)
				if d < 1e-12 {
					continue
				}
				c := (target - d) / (d * target)
				gx += c * dx
				gy += c * dy
				hx += (target - d - dx*dx/d*(1+(target-d)/d)) / (d * target)
				hy += (target - d - dy*dy/d*(1+(target-d)/d)) / (d * target)
			}
			var sx, sy float64
			if hx != 0 {
				sx = gx / math.Abs(hx)
			}
			if hy != 0 {
				sy = gy / math.Abs(hy)
			}
			points[i].X += magic * sx
			points[i].Y += magic * sy
			moved += math.Abs(sx) + math.Abs(sy)
		}
		if moved < 1e-9 {
			break
		}
	}

	return normalizePoints(points), nil
}

// normalizePoints scales coordinates to the [-1, 1] range so layouts from
// different reducers are comparable.
func normalizePoints(points []Point) []Point {
	if len(points) == 0 {
		return points
	}

	minX, maxX := math.MaxFloat64, -math.MaxFloat64
	minY, maxY := math.MaxFloat64, -math.MaxFloat64
	for _, p := range points {
		minX = math.Min(minX, p.X)
		maxX = math.Max(maxX, p.X)
		minY = math.Min(minY, p.Y)
		maxY = math.Max(maxY, p.Y)
	}

	scaled := make([]Point, len(points))
	for i, p := range points {
		scaled[i] = Point{X: rescale(p.X, minX, maxX), Y: rescale(p.Y, minY, maxY)}
	}
	return scaled
}

func rescale(v, lo, hi float64) float64 {
	if hi == lo {
		return 0
	}
	return 2*(v-lo)/(hi-lo) - 1
}

func flat(points []Point) bool {
	for _, p := range points {
		if p.X != 0 || p.Y != 0 {
			return false
		}
	}
	return true
}
