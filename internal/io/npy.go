package io

import (
	"fmt"

	"github.com/kshedden/gonpy"
	"gonum.org/v1/gonum/mat"
)

// DenseToNpy writes a matrix to a numpy npy file
func DenseToNpy(path string, matrix *mat.Dense) error {
	rows, cols := matrix.Dims()
	return writeNpy(path, []int{rows, cols}, mat.DenseCopyOf(matrix).RawMatrix().Data)
}

// NpyToDense reads a two-dimensional numpy npy file
func NpyToDense(path string) (*mat.Dense, error) {
	r, err := gonpy.NewFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	if len(r.Shape) != 2 {
		return nil, fmt.Errorf("%s: expected a 2D array, got shape %v", path, r.Shape)
	}

	data, err := r.GetFloat64()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return mat.NewDense(r.Shape[0], r.Shape[1], data), nil
}

// NpyToSlice reads a numpy npy file as a flat slice
func NpyToSlice(path string) ([]float64, error) {
	r, err := gonpy.NewFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	data, err := r.GetFloat64()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

// SaveConnectivity writes the group connectivity matrix to a npy file
func SaveConnectivity(matrix *mat.Dense, path string) error {
	return DenseToNpy(path, matrix)
}

func writeNpy(path string, shape []int, data []float64) error {
	w, err := gonpy.NewFileWriter(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	w.Shape = shape
	w.Version = 2
	if err := w.WriteFloat64(data); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func saveNpy(gradients *mat.Dense, lambdas []float64, filename string) error {
	if err := DenseToNpy(filename, gradients); err != nil {
		return err
	}
	return writeNpy(sidecar(filename, "lambdas"), []int{len(lambdas)}, lambdas)
}
