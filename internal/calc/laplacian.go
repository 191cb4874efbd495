package calc

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/childmindresearch/ba-timeseries-gradients/internal/errs"
)

// Laplacian turns an adjacency matrix into its normalised graph Laplacian
// L = I - D^-1/2 A D^-1/2 in place and returns the node degrees. The diagonal
// of A is ignored; rows of isolated nodes are left all zero.
func (p *PipeLine) Laplacian(inputMat *mat.Dense) ([]float64, error) {
	inputRows, inputCols := inputMat.Dims()
	if inputRows != inputCols {
		return nil, errs.Internal("Laplacian: adjacency is %d by %d", inputRows, inputCols)
	}

	degree := make([]float64, inputRows)
	p.Each(inputRows, func(index int) {
		row := inputMat.RawRowView(index)
		for i, value := range row {
			if i != index {
				degree[index] += value
			}
		}
	})

	scale := make([]float64, inputRows)
	for i, d := range degree {
		if d > 0 {
			scale[i] = 1 / math.Sqrt(d)
		}
	}

	p.Each(inputRows, func(index int) {
		row := inputMat.RawRowView(index)
		for i := range row {
			row[i] = -row[i] * scale[index] * scale[i]
		}
		row[index] = 0
		if degree[index] > 0 {
			row[index] = 1
		}
	})

	return degree, nil
}
