package calc

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/childmindresearch/ba-timeseries-gradients/internal/errs"
)

func sameDims(name string, inputMat, outputMat *mat.Dense) error {
	inputRows, inputCols := inputMat.Dims()
	outputRows, outputCols := outputMat.Dims()

	if inputRows != outputRows || inputCols != outputCols {
		return errs.Internal("%s: input dims: %d by %d when output dims: %d by %d", name, inputRows, inputCols, outputRows, outputCols)
	}
	return nil
}

// Acc does weighted accumulation: outputMat += weight * inputMat
func (p *PipeLine) Acc(inputMat *mat.Dense, outputMat *mat.Dense, weight float64) error {
	if err := sameDims("Acc", inputMat, outputMat); err != nil {
		return err
	}

	rows, _ := inputMat.Dims()
	p.Each(rows, func(index int) {
		in := inputMat.RawRowView(index)
		out := outputMat.RawRowView(index)
		for t := range in {
			out[t] += weight * in[t]
		}
	})

	return nil
}

func (p *PipeLine) apply(name string, inputMat *mat.Dense, outputMat *mat.Dense, fn func(float64) float64) error {
	if err := sameDims(name, inputMat, outputMat); err != nil {
		return err
	}

	rows, _ := inputMat.Dims()
	p.Each(rows, func(index int) {
		in := inputMat.RawRowView(index)
		out := outputMat.RawRowView(index)
		for t := range in {
			out[t] = fn(in[t])
		}
	})

	return nil
}

// FisherZ maps correlations into z-space with arctanh. A correlation of 1 becomes +Inf.
func (p *PipeLine) FisherZ(inputMat *mat.Dense, outputMat *mat.Dense) error {
	return p.apply("FisherZ", inputMat, outputMat, math.Atanh)
}

// InverseFisherZ maps z-values back to correlations with tanh
func (p *PipeLine) InverseFisherZ(inputMat *mat.Dense, outputMat *mat.Dense) error {
	return p.apply("InverseFisherZ", inputMat, outputMat, math.Tanh)
}
