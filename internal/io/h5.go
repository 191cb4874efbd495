package io

import (
	"fmt"

	"github.com/scigolib/hdf5"
	"gonum.org/v1/gonum/mat"
)

func saveH5(gradients *mat.Dense, lambdas []float64, filename string) error {
	fw, err := hdf5.CreateForWrite(filename, hdf5.CreateTruncate)
	if err != nil {
		return fmt.Errorf("creating %s: %w", filename, err)
	}

	rows, cols := gradients.Dims()
	if err := writeH5Dataset(fw, "/gradients", []uint64{uint64(rows), uint64(cols)}, mat.DenseCopyOf(gradients).RawMatrix().Data); err != nil {
		fw.Close()
		return err
	}
	if err := writeH5Dataset(fw, "/lambdas", []uint64{uint64(len(lambdas))}, lambdas); err != nil {
		fw.Close()
		return err
	}

	if err := fw.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", filename, err)
	}
	return nil
}

func writeH5Dataset(fw *hdf5.FileWriter, name string, dims []uint64, data []float64) error {
	ds, err := fw.CreateDataset(name, hdf5.Float64, dims)
	if err != nil {
		return fmt.Errorf("creating dataset %s: %w", name, err)
	}
	if err := ds.Write(data); err != nil {
		return fmt.Errorf("writing dataset %s: %w", name, err)
	}
	return nil
}
