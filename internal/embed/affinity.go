package embed

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/childmindresearch/ba-timeseries-gradients/internal/calc"
	"github.com/childmindresearch/ba-timeseries-gradients/internal/errs"
)

// Kernel selects how rows of the input are compared
type Kernel string

const (
	NoKernel        Kernel = ""
	Pearson         Kernel = "pearson"
	Spearman        Kernel = "spearman"
	Cosine          Kernel = "cosine"
	NormalizedAngle Kernel = "normalized_angle"
	Gaussian        Kernel = "gaussian"
)

// Kernels lists the selectable kernels
var Kernels = []Kernel{Pearson, Spearman, Cosine, NormalizedAngle, Gaussian}

// ParseKernel validates a kernel name
func ParseKernel(name string) (Kernel, error) {
	for _, k := range Kernels {
		if string(k) == name {
			return k, nil
		}
	}
	return NoKernel, errs.Input("invalid kernel %q", name)
}

// keepCount is how many entries of a row of width cols survive the given sparsity
func keepCount(cols int, sparsity float64) int {
	keep := int(float64(cols) * (1 - sparsity))
	if keep < 1 {
		keep = 1
	}
	if keep > cols {
		keep = cols
	}
	return keep
}

// Affinity builds a non-negative symmetric affinity matrix between the rows
// of x. Each row first keeps only its largest (1 - sparsity) fraction of
// entries; the kernel then compares rows. gamma only applies to the gaussian
// kernel, where zero means 1 / number of columns.
func Affinity(pl *calc.PipeLine, x *mat.Dense, kernel Kernel, sparsity float64, gamma float64) (*mat.Dense, error) {
	rows, cols := x.Dims()
	if sparsity < 0 || sparsity >= 1 {
		return nil, errs.Input("sparsity %g is not in range [0, 1)", sparsity)
	}

	sx := mat.DenseCopyOf(x)
	if sparsity > 0 {
		if err := pl.Sparsify(sx, sx, keepCount(cols, sparsity)); err != nil {
			return nil, err
		}
	}

	a := mat.NewDense(rows, rows, nil)
	switch kernel {
	case NoKernel:
		if rows != cols {
			return nil, errs.Input("affinity without a kernel needs a square matrix, got %d by %d", rows, cols)
		}
		a.Copy(sx)
	case Pearson:
		if err := pl.Pearson(sx, a); err != nil {
			return nil, err
		}
	case Spearman:
		ranks := mat.NewDense(rows, cols, nil)
		pl.Each(rows, func(i int) {
			rank(sx.RawRowView(i), ranks.RawRowView(i))
		})
		if err := pl.Pearson(ranks, a); err != nil {
			return nil, err
		}
	case Cosine, NormalizedAngle:
		pl.Each(rows, cosine(sx, a, kernel == NormalizedAngle))
	case Gaussian:
		if gamma <= 0 {
			gamma = 1 / float64(cols)
		}
		pl.Each(rows, gaussian(sx, a, gamma))
	default:
		return nil, errs.Input("invalid kernel %q", kernel)
	}

	if err := pl.Threshold(a, a, 0, 0); err != nil {
		return nil, err
	}
	if !pl.SymCheck(a, 1e-10) {
		return nil, errs.Internal("affinity matrix is not symmetric")
	}

	return a, nil
}

func cosine(x *mat.Dense, a *mat.Dense, angle bool) func(int) {
	rows, _ := x.Dims()
	norms := make([]float64, rows)
	for i := range norms {
		norms[i] = floats.Norm(x.RawRowView(i), 2)
	}

	return func(from int) {
		u := x.RawRowView(from)
		for to := from; to < rows; to++ {
			var c float64
			if norms[from] > 0 && norms[to] > 0 {
				c = floats.Dot(u, x.RawRowView(to)) / (norms[from] * norms[to])
				c = math.Max(-1, math.Min(1, c))
			}
			if angle {
				c = 1 - math.Acos(c)/math.Pi
			}
			a.Set(from, to, c)
			a.Set(to, from, c)
		}
	}
}

func gaussian(x *mat.Dense, a *mat.Dense, gamma float64) func(int) {
	rows, _ := x.Dims()

	return func(from int) {
		u := x.RawRowView(from)
		for to := from; to < rows; to++ {
			d := floats.Distance(u, x.RawRowView(to), 2)
			g := math.Exp(-gamma * d * d)
			a.Set(from, to, g)
			a.Set(to, from, g)
		}
	}
}

// rank writes the 1-based ranks of values into dst, averaging ties
func rank(values []float64, dst []float64) {
	order := make([]int, len(values))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return values[order[i]] < values[order[j]]
	})

	for start := 0; start < len(order); {
		end := start + 1
		for end < len(order) && values[order[end]] == values[order[start]] {
			end++
		}
		avg := float64(start+end+1) / 2
		for _, idx := range order[start:end] {
			dst[idx] = avg
		}
		start = end
	}
}
