// Package embed computes gradient maps: low-dimensional embeddings of an
// affinity matrix by diffusion maps, Laplacian eigenmaps or PCA.
package embed

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/childmindresearch/ba-timeseries-gradients/internal/calc"
	"github.com/childmindresearch/ba-timeseries-gradients/internal/errs"
)

// Approach selects the dimensionality reduction
type Approach string

const (
	DiffusionMap       Approach = "dm"
	LaplacianEigenmaps Approach = "le"
	PCA                Approach = "pca"
)

// Approaches lists the selectable approaches
var Approaches = []Approach{PCA, LaplacianEigenmaps, DiffusionMap}

// ParseApproach validates an approach name
func ParseApproach(name string) (Approach, error) {
	for _, a := range Approaches {
		if string(a) == name {
			return a, nil
		}
	}
	return "", errs.Input("invalid dimensionality reduction %q", name)
}

// Options configures Fit
type Options struct {
	Approach    Approach
	Kernel      Kernel
	NComponents int
	Sparsity    float64

	// Gamma is the gaussian kernel width; zero means 1 / number of features.
	Gamma float64
	// Alpha is the diffusion map anisotropy.
	Alpha float64
	// DiffusionTime of zero selects multi-scale diffusion maps.
	DiffusionTime float64
}

// DefaultOptions returns the settings used when nothing is specified
func DefaultOptions() Options {
	return Options{
		Approach:    DiffusionMap,
		Kernel:      Cosine,
		NComponents: 10,
		Sparsity:    0.9,
		Alpha:       0.5,
	}
}

// Result holds a gradient map: one row per node, one column per component
type Result struct {
	Gradients *mat.Dense
	Lambdas   []float64
}

// Fit builds the affinity matrix of x and embeds it. At most N-1 components
// are returned for N rows.
func Fit(pl *calc.PipeLine, x *mat.Dense, opts Options) (*Result, error) {
	rows, _ := x.Dims()
	if rows < 2 {
		return nil, errs.Input("need at least 2 nodes to compute gradients, got %d", rows)
	}
	if _, err := ParseApproach(string(opts.Approach)); err != nil {
		return nil, err
	}
	if opts.NComponents < 1 {
		return nil, errs.Input("number of components must be positive, got %d", opts.NComponents)
	}
	if !pl.AllFinite(x) {
		return nil, errs.Input("connectivity matrix contains NaN or infinite values")
	}

	k := opts.NComponents
	if k > rows-1 {
		k = rows - 1
	}

	a, err := Affinity(pl, x, opts.Kernel, opts.Sparsity, opts.Gamma)
	if err != nil {
		return nil, err
	}

	var res *Result
	switch opts.Approach {
	case DiffusionMap:
		res, err = diffusionMap(pl, a, k, opts.Alpha, opts.DiffusionTime)
	case LaplacianEigenmaps:
		res, err = laplacianEigenmaps(pl, a, k)
	case PCA:
		res, err = pca(a, k)
	default:
		return nil, errs.Input("invalid dimensionality reduction %q", opts.Approach)
	}
	if err != nil {
		return nil, err
	}

	flipSigns(res.Gradients)
	return res, nil
}

// eigenTolerance bounds |Av - lv| for every eigenpair, relative to the 1-norm of A
const eigenTolerance = 1e-8

// eigenSym returns the ascending eigenvalues of a symmetric matrix and the
// matching eigenvectors as columns
func eigenSym(a *mat.Dense) ([]float64, *mat.Dense, error) {
	n, _ := a.Dims()
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, (a.At(i, j)+a.At(j, i))/2)
		}
	}

	var es mat.EigenSym
	if ok := es.Factorize(sym, true); !ok {
		return nil, nil, errs.Internal("eigendecomposition did not converge")
	}

	vals := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	tol := eigenTolerance * math.Max(1, mat.Norm(sym, 1))
	if !calc.CheckEigenQuality(mat.DenseCopyOf(sym), vals, &vecs, tol) {
		return nil, nil, errs.Internal("eigendecomposition failed quality check")
	}

	return vals, &vecs, nil
}

func degrees(a *mat.Dense) ([]float64, error) {
	n, _ := a.Dims()
	d := make([]float64, n)
	for i := range d {
		for _, v := range a.RawRowView(i) {
			d[i] += v
		}
		if d[i] <= 0 {
			return nil, errs.Input("node %d has no affinity to any node; the graph is disconnected", i)
		}
	}
	return d, nil
}

func diffusionMap(pl *calc.PipeLine, a *mat.Dense, k int, alpha float64, t float64) (*Result, error) {
	n, _ := a.Dims()
	w := mat.DenseCopyOf(a)

	if alpha > 0 {
		d, err := degrees(w)
		if err != nil {
			return nil, err
		}
		pl.Each(n, func(i int) {
			row := w.RawRowView(i)
			for j := range row {
				row[j] *= math.Pow(d[i], -alpha) * math.Pow(d[j], -alpha)
			}
		})
	}

	q, err := degrees(w)
	if err != nil {
		return nil, err
	}
	sq := make([]float64, n)
	for i, v := range q {
		sq[i] = math.Sqrt(v)
	}

	// symmetric conjugate of the Markov matrix diag(1/q) W
	pl.Each(n, func(i int) {
		row := w.RawRowView(i)
		for j := range row {
			row[j] /= sq[i] * sq[j]
		}
	})

	vals, vecs, err := eigenSym(w)
	if err != nil {
		return nil, err
	}

	top := n - 1
	res := &Result{
		Gradients: mat.NewDense(n, k, nil),
		Lambdas:   make([]float64, k),
	}
	for c := 0; c < k; c++ {
		col := top - 1 - c
		l := vals[col]
		if t <= 0 {
			l = l / (1 - l)
		} else {
			l = math.Pow(l, t)
		}
		res.Lambdas[c] = l

		for i := 0; i < n; i++ {
			psi := vecs.At(i, col) / vecs.At(i, top)
			res.Gradients.Set(i, c, psi*l)
		}
	}

	return res, nil
}

func laplacianEigenmaps(pl *calc.PipeLine, a *mat.Dense, k int) (*Result, error) {
	n, _ := a.Dims()
	lap := mat.DenseCopyOf(a)

	d, err := pl.Laplacian(lap)
	if err != nil {
		return nil, err
	}
	for i, v := range d {
		if v <= 0 {
			return nil, errs.Input("node %d has no affinity to any node; the graph is disconnected", i)
		}
	}

	vals, vecs, err := eigenSym(lap)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Gradients: mat.NewDense(n, k, nil),
		Lambdas:   make([]float64, k),
	}
	for c := 0; c < k; c++ {
		col := c + 1
		res.Lambdas[c] = vals[col]
		for i := 0; i < n; i++ {
			res.Gradients.Set(i, c, vecs.At(i, col)/math.Sqrt(d[i]))
		}
	}

	return res, nil
}

func pca(a *mat.Dense, k int) (*Result, error) {
	n, p := a.Dims()

	centered := mat.DenseCopyOf(a)
	for j := 0; j < p; j++ {
		var mean float64
		for i := 0; i < n; i++ {
			mean += centered.At(i, j)
		}
		mean /= float64(n)
		for i := 0; i < n; i++ {
			centered.Set(i, j, centered.At(i, j)-mean)
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(centered, mat.SVDThin); !ok {
		return nil, errs.Internal("singular value decomposition did not converge")
	}
	s := svd.Values(nil)
	var u mat.Dense
	svd.UTo(&u)

	if k > len(s) {
		k = len(s)
	}

	res := &Result{
		Gradients: mat.NewDense(n, k, nil),
		Lambdas:   make([]float64, k),
	}
	for c := 0; c < k; c++ {
		res.Lambdas[c] = s[c] * s[c] / float64(n-1)
		for i := 0; i < n; i++ {
			res.Gradients.Set(i, c, u.At(i, c)*s[c])
		}
	}

	return res, nil
}

// flipSigns makes the largest-magnitude entry of every column positive
func flipSigns(m *mat.Dense) {
	rows, cols := m.Dims()
	for c := 0; c < cols; c++ {
		best := 0
		for i := 1; i < rows; i++ {
			if math.Abs(m.At(i, c)) > math.Abs(m.At(best, c)) {
				best = i
			}
		}
		if m.At(best, c) < 0 {
			for i := 0; i < rows; i++ {
				m.Set(i, c, -m.At(i, c))
			}
		}
	}
}
