package io

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// DenseToCSV saves a matrix as a csv file, one matrix row per line
func DenseToCSV(path string, matrix *mat.Dense) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("DenseToCSV: %w", err)
	}
	defer f.Close()

	rows, _ := matrix.Dims()

	stride := runtime.NumCPU()
	parsed := make([]string, stride)

	for row := 0; row < rows; row += stride {
		var wg sync.WaitGroup
		jobMark := stride

		if row+stride >= rows {
			jobMark = rows - row
		}

		wg.Add(jobMark)
		for offset := 0; offset < jobMark; offset++ {
			go formatLine(matrix, parsed, offset, row, &wg)
		}
		wg.Wait()

		for i := 0; i < jobMark; i++ {
			if _, err := fmt.Fprintf(f, "%s\n", parsed[i]); err != nil {
				return fmt.Errorf("DenseToCSV: %w", err)
			}
		}
	}

	return f.Close()
}

func formatLine(matrix *mat.Dense, parsed []string, offset int, row int, wg *sync.WaitGroup) {
	defer wg.Done()

	_, cols := matrix.Dims()
	fields := make([]string, cols)
	for i := range fields {
		fields[i] = strconv.FormatFloat(matrix.At(row+offset, i), 'g', -1, 64)
	}
	parsed[offset] = strings.Join(fields, ",")
}

func saveCSV(gradients *mat.Dense, lambdas []float64, filename string) error {
	if err := DenseToCSV(filename, gradients); err != nil {
		return err
	}
	return DenseToCSV(sidecar(filename, "lambdas"), mat.NewDense(1, len(lambdas), lambdas))
}
