package calc

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// SymCheck checks symmetry
func (p *PipeLine) SymCheck(matrix *mat.Dense, pre float64) bool {
	rows, cols := matrix.Dims()
	if rows != cols {
		return false
	}

	pre = math.Abs(pre)
	isSymm := make([]bool, rows)

	p.Each(rows, func(index int) {
		isSymm[index] = true
		for i := index; i < cols; i++ {
			a, b := matrix.At(index, i), matrix.At(i, index)
			if math.IsNaN(a) || math.IsNaN(b) || math.Abs(a-b) >= pre {
				isSymm[index] = false
				break
			}
		}
	})

	for _, ok := range isSymm {
		if !ok {
			return false
		}
	}
	return true
}

// AllFinite checks that no element is NaN or infinite
func (p *PipeLine) AllFinite(matrix *mat.Dense) bool {
	rows, _ := matrix.Dims()
	finite := make([]bool, rows)

	p.Each(rows, func(index int) {
		finite[index] = true
		for _, value := range matrix.RawRowView(index) {
			if math.IsNaN(value) || math.IsInf(value, 0) {
				finite[index] = false
				break
			}
		}
	})

	for _, ok := range finite {
		if !ok {
			return false
		}
	}
	return true
}

// CheckEigenQuality checks that every column of eigVec is an eigenvector of
// org with the matching entry of eigVal
func CheckEigenQuality(org *mat.Dense, eigVal []float64, eigVec *mat.Dense, pre float64) bool {
	rows, _ := org.Dims()
	_, cols := eigVec.Dims()
	if cols != len(eigVal) {
		return false
	}

	av := mat.NewVecDense(rows, nil)
	lv := mat.NewVecDense(rows, nil)
	for i := 0; i < cols; i++ {
		v := eigVec.ColView(i)
		av.MulVec(org, v)
		lv.ScaleVec(eigVal[i], v)
		if !mat.EqualApprox(av, lv, math.Abs(pre)) {
			return false
		}
	}

	return true
}
