package calc

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/childmindresearch/ba-timeseries-gradients/internal/errs"
)

func pearson(zMat *mat.Dense, pearsonMat *mat.Dense) func(int) {
	inputRows, inputCols := zMat.Dims()
	denom := float64(inputCols - 1)

	return func(from int) {
		a := zMat.RawRowView(from)
		for to := from; to < inputRows; to++ {
			var r float64
			if to == from {
				r = 1
				if math.IsNaN(a[0]) {
					r = math.NaN()
				}
			} else {
				r = clip(floats.Dot(a, zMat.RawRowView(to)) / denom)
			}

			pearsonMat.Set(from, to, r)
			pearsonMat.Set(to, from, r)
		}
	}
}

// clip keeps rounding error from pushing a correlation outside [-1, 1]; NaN passes through
func clip(r float64) float64 {
	if r > 1 {
		return 1
	}
	if r < -1 {
		return -1
	}
	return r
}

// Pearson does Pearson's correlation between every pair of rows of
// timeSeriesMat. Rows that never vary correlate as NaN.
func (p *PipeLine) Pearson(timeSeriesMat *mat.Dense, outputMat *mat.Dense) error {
	inputRows, inputCols := timeSeriesMat.Dims()
	outputRows, outputCols := outputMat.Dims()

	if outputRows != inputRows || outputCols != inputRows {
		return errs.Internal("Pearson: input is %d by %d but output is %d by %d", inputRows, inputCols, outputRows, outputCols)
	}
	if inputCols < 2 {
		return errs.Input("Pearson: need at least 2 observations per series, got %d", inputCols)
	}

	zMat := mat.NewDense(inputRows, inputCols, nil)
	if err := p.ZScoring(timeSeriesMat, zMat); err != nil {
		return err
	}

	p.Each(inputRows, pearson(zMat, outputMat))

	return nil
}

// Correlation returns the feature-by-feature correlation of a time-by-feature matrix
func (p *PipeLine) Correlation(timeByFeature *mat.Dense) (*mat.Dense, error) {
	_, features := timeByFeature.Dims()
	if features == 0 {
		return nil, errs.Input("Correlation: timeseries has no features")
	}

	series := mat.DenseCopyOf(timeByFeature.T())
	out := mat.NewDense(features, features, nil)
	if err := p.Pearson(series, out); err != nil {
		return nil, err
	}

	return out, nil
}
