package calc

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/childmindresearch/ba-timeseries-gradients/internal/errs"
)

func getStat(inputMat *mat.Dense, stats []statistic) func(int) {
	return func(index int) {
		stats[index].avg, stats[index].std = stat.MeanStdDev(inputMat.RawRowView(index), nil)
	}
}

func zScoring(inputMat *mat.Dense, outputMat *mat.Dense, stats []statistic) func(int) {
	_, inputCols := inputMat.Dims()

	return func(index int) {
		in := inputMat.RawRowView(index)
		out := outputMat.RawRowView(index)
		for t := 0; t < inputCols; t++ {
			out[t] = (in[t] - stats[index].avg) / stats[index].std
		}
	}
}

// ZScoring does z-scoring on each row using the sample standard deviation.
// Constant rows become NaN.
func (p *PipeLine) ZScoring(inputMat *mat.Dense, outputMat *mat.Dense) error {
	inputRows, inputCols := inputMat.Dims()
	outputRows, outputCols := outputMat.Dims()

	if outputRows != inputRows || outputCols != inputCols {
		return errs.Internal("ZScoring: input is %d by %d but output is %d by %d", inputRows, inputCols, outputRows, outputCols)
	}

	stats := make([]statistic, inputRows)

	p.Each(inputRows, getStat(inputMat, stats))
	p.Each(inputRows, zScoring(inputMat, outputMat, stats))

	return nil
}
