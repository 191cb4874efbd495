package calc

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/childmindresearch/ba-timeseries-gradients/internal/errs"
)

// Threshold does thresholding: every value not above thr (NaN included) becomes sub
func (p *PipeLine) Threshold(inputMat *mat.Dense, outputMat *mat.Dense, thr float64, sub float64) error {
	return p.apply("Threshold", inputMat, outputMat, func(value float64) float64 {
		if !(value > thr) {
			return sub
		}
		return value
	})
}

// Sparsify keeps the keep largest values of every row and zeroes the rest
func (p *PipeLine) Sparsify(inputMat *mat.Dense, outputMat *mat.Dense, keep int) error {
	if err := sameDims("Sparsify", inputMat, outputMat); err != nil {
		return err
	}

	rows, cols := inputMat.Dims()
	if keep < 1 || keep > cols {
		return errs.Internal("Sparsify: cannot keep %d of %d columns", keep, cols)
	}

	p.Each(rows, func(index int) {
		in := inputMat.RawRowView(index)
		out := outputMat.RawRowView(index)

		order := make([]int, cols)
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(i, j int) bool {
			return in[order[i]] > in[order[j]]
		})

		kept := make([]float64, cols)
		for _, col := range order[:keep] {
			kept[col] = in[col]
		}
		copy(out, kept)
	})

	return nil
}
