package embed

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/childmindresearch/ba-timeseries-gradients/internal/calc"
	"github.com/childmindresearch/ba-timeseries-gradients/internal/errs"
)

// twoBlocks returns a 6 node connectivity matrix with two tight clusters
func twoBlocks() *mat.Dense {
	m := mat.NewDense(6, 6, nil)
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			switch {
			case i == j:
				m.Set(i, j, 1)
			case (i < 3) == (j < 3):
				m.Set(i, j, 0.9)
			default:
				m.Set(i, j, 0.1)
			}
		}
	}
	return m
}

func TestParse(t *testing.T) {
	a, err := ParseApproach("le")
	require.NoError(t, err)
	assert.Equal(t, LaplacianEigenmaps, a)

	k, err := ParseKernel("normalized_angle")
	require.NoError(t, err)
	assert.Equal(t, NormalizedAngle, k)

	_, err = ParseApproach("tsne")
	assert.True(t, errs.IsInput(err))
	_, err = ParseKernel("rbf")
	assert.True(t, errs.IsInput(err))
}

func TestKeepCount(t *testing.T) {
	assert.Equal(t, 1, keepCount(10, 0.9))
	assert.Equal(t, 1, keepCount(3, 0.9))
	assert.Equal(t, 5, keepCount(10, 0.5))
	assert.Equal(t, 10, keepCount(10, 0))
}

func TestAffinityKernels(t *testing.T) {
	pl := calc.Init(0, 2)
	x := mat.NewDense(3, 2, []float64{
		1, 0,
		0, 1,
		1, 1,
	})

	cos, err := Affinity(pl, x, Cosine, 0, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0, cos.At(0, 1), 1e-12)
	assert.InDelta(t, 1/math.Sqrt2, cos.At(0, 2), 1e-12)
	assert.InDelta(t, 1, cos.At(2, 2), 1e-12)

	angle, err := Affinity(pl, x, NormalizedAngle, 0, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, angle.At(0, 1), 1e-12)
	assert.InDelta(t, 0.75, angle.At(1, 2), 1e-12)

	gauss, err := Affinity(pl, x, Gaussian, 0, 0)
	require.NoError(t, err)
	assert.InDelta(t, math.Exp(-1), gauss.At(0, 1), 1e-12)
	assert.InDelta(t, math.Exp(-0.5), gauss.At(0, 2), 1e-12)
	assert.InDelta(t, 1, gauss.At(1, 1), 1e-12)
}

func TestAffinityCorrelationKernelsClampNegatives(t *testing.T) {
	pl := calc.Init(0, 2)
	x := mat.NewDense(3, 4, []float64{
		1, 2, 3, 4,
		4, 3, 2, 1,
		1, 4, 9, 16,
	})

	p, err := Affinity(pl, x, Pearson, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, p.At(0, 1))
	assert.InDelta(t, 1, p.At(0, 0), 1e-12)
	assert.Less(t, p.At(0, 2), 1.0)

	s, err := Affinity(pl, x, Spearman, 0, 0)
	require.NoError(t, err)
	assert.InDelta(t, 1, s.At(0, 2), 1e-12)
	assert.Equal(t, 0.0, s.At(1, 2))
}

func TestAffinityValidation(t *testing.T) {
	pl := calc.Init(0, 1)
	x := mat.NewDense(2, 3, nil)

	_, err := Affinity(pl, x, Cosine, 1, 0)
	assert.True(t, errs.IsInput(err))
	_, err = Affinity(pl, x, NoKernel, 0, 0)
	assert.True(t, errs.IsInput(err))
	_, err = Affinity(pl, x, Kernel("rbf"), 0, 0)
	assert.True(t, errs.IsInput(err))
}

func TestRankAveragesTies(t *testing.T) {
	dst := make([]float64, 5)
	rank([]float64{10, 20, 10, 30, 20}, dst)

	assert.Equal(t, []float64{1.5, 3.5, 1.5, 5, 3.5}, dst)
}

func TestFitOnesIsZero(t *testing.T) {
	pl := calc.Init(0, 2)
	ones := mat.NewDense(3, 3, []float64{1, 1, 1, 1, 1, 1, 1, 1, 1})

	opts := DefaultOptions()
	opts.Sparsity = 0

	res, err := Fit(pl, ones, opts)
	require.NoError(t, err)

	assert.Len(t, res.Lambdas, 2)
	rows, cols := res.Gradients.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			assert.InDelta(t, 0, res.Gradients.At(i, j), 1e-8)
		}
	}
	for _, l := range res.Lambdas {
		assert.InDelta(t, 0, l, 1e-8)
	}
}

func TestFitSeparatesClusters(t *testing.T) {
	for _, approach := range Approaches {
		t.Run(string(approach), func(t *testing.T) {
			pl := calc.Init(0, 2)

			opts := DefaultOptions()
			opts.Approach = approach
			opts.Sparsity = 0
			opts.NComponents = 2

			res, err := Fit(pl, twoBlocks(), opts)
			require.NoError(t, err)

			rows, cols := res.Gradients.Dims()
			assert.Equal(t, 6, rows)
			assert.Equal(t, 2, cols)
			require.Len(t, res.Lambdas, 2)

			first := mat.Col(nil, 0, res.Gradients)
			for i := 1; i < 3; i++ {
				assert.InDelta(t, first[0], first[i], 1e-8)
				assert.InDelta(t, first[3], first[3+i], 1e-8)
			}
			assert.Less(t, first[0]*first[3], 0.0, "clusters should sit on opposite sides")

			switch approach {
			case LaplacianEigenmaps:
				assert.LessOrEqual(t, res.Lambdas[0], res.Lambdas[1])
			default:
				assert.GreaterOrEqual(t, res.Lambdas[0], res.Lambdas[1])
			}
			assert.Greater(t, res.Lambdas[0], 0.0)
		})
	}
}

func TestFitSignConvention(t *testing.T) {
	pl := calc.Init(0, 2)
	opts := DefaultOptions()
	opts.Sparsity = 0
	opts.NComponents = 1

	res, err := Fit(pl, twoBlocks(), opts)
	require.NoError(t, err)

	col := mat.Col(nil, 0, res.Gradients)
	best := 0
	for i, v := range col {
		if math.Abs(v) > math.Abs(col[best]) {
			best = i
		}
	}
	assert.Greater(t, col[best], 0.0)
}

func TestFitDiffusionTime(t *testing.T) {
	pl := calc.Init(0, 2)
	opts := DefaultOptions()
	opts.Sparsity = 0
	opts.NComponents = 1

	multi, err := Fit(pl, twoBlocks(), opts)
	require.NoError(t, err)

	opts.DiffusionTime = 1
	single, err := Fit(pl, twoBlocks(), opts)
	require.NoError(t, err)

	l := single.Lambdas[0]
	assert.InDelta(t, l/(1-l), multi.Lambdas[0], 1e-10)
}

func TestFitErrors(t *testing.T) {
	pl := calc.Init(0, 2)

	opts := DefaultOptions()
	opts.Sparsity = 0

	_, err := Fit(pl, mat.NewDense(1, 1, []float64{1}), opts)
	assert.True(t, errs.IsInput(err), "single node")

	nan := twoBlocks()
	nan.Set(0, 1, math.NaN())
	_, err = Fit(pl, nan, opts)
	assert.True(t, errs.IsInput(err), "NaN")

	bad := opts
	bad.NComponents = 0
	_, err = Fit(pl, twoBlocks(), bad)
	assert.True(t, errs.IsInput(err), "components")

	bad = opts
	bad.Approach = "umap"
	_, err = Fit(pl, twoBlocks(), bad)
	assert.True(t, errs.IsInput(err), "approach")

	disconnected := opts
	disconnected.Approach = LaplacianEigenmaps
	disconnected.Kernel = NoKernel
	eye := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	_, err = Fit(pl, eye, disconnected)
	assert.True(t, errs.IsInput(err), "disconnected")
}

func TestEigenSym(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	n := 8
	a := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := rnd.Float64()
			a.Set(i, j, v)
			a.Set(j, i, v)
		}
	}

	vals, vecs, err := eigenSym(a)
	require.NoError(t, err)

	assert.True(t, calc.CheckEigenQuality(a, vals, vecs, 1e-9))
	for i := 1; i < n; i++ {
		assert.LessOrEqual(t, vals[i-1], vals[i])
	}
}
