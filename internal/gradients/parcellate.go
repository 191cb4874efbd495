package gradients

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/childmindresearch/ba-timeseries-gradients/internal/errs"
)

// Labels returns the distinct values of labels in ascending order
func Labels(labels []float64) []float64 {
	seen := make(map[float64]bool, len(labels))
	var unique []float64
	for _, l := range labels {
		if !seen[l] {
			seen[l] = true
			unique = append(unique, l)
		}
	}
	sort.Float64s(unique)
	return unique
}

// ParcellateTimeseries averages the time-by-feature matrix ts over the
// features sharing a label. Columns of the result follow the labels in
// ascending order.
func ParcellateTimeseries(ts *mat.Dense, labels []float64) (*mat.Dense, error) {
	timepoints, features := ts.Dims()
	if features != len(labels) {
		return nil, errs.Input("Parcellation dimensions do not match timeseries dimensions.")
	}
	for _, l := range labels {
		if math.IsNaN(l) {
			return nil, errs.Input("Parcellation contains NaN labels.")
		}
	}

	unique := Labels(labels)
	column := make(map[float64]int, len(unique))
	for i, l := range unique {
		column[l] = i
	}

	counts := make([]float64, len(unique))
	for _, l := range labels {
		counts[column[l]]++
	}

	out := mat.NewDense(timepoints, len(unique), nil)
	for t := 0; t < timepoints; t++ {
		in := ts.RawRowView(t)
		row := out.RawRowView(t)
		for f, l := range labels {
			row[column[l]] += in[f]
		}
		for i := range row {
			row[i] /= counts[i]
		}
	}

	return out, nil
}
